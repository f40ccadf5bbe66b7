package classify

import (
	"context"
	"log/slog"
	"strings"
)

// Strategy is one way of turning crash-log text into an Analysis. A strategy
// either succeeds with a usable Analysis or fails as a whole; partial results
// are not a thing.
type Strategy interface {
	Name() string
	Analyze(ctx context.Context, logText string) (Analysis, error)
}

// Classifier tries an ordered list of strategies and returns the first
// success. With the rule strategy last (it cannot fail) classification of a
// non-empty log always produces a result.
type Classifier struct {
	strategies []Strategy
	logger     *slog.Logger
}

// New creates a Classifier. Strategies are tried in the order given.
func New(logger *slog.Logger, strategies ...Strategy) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Classifier{strategies: strategies, logger: logger}
}

// Classify analyzes logText. Empty input is rejected with ErrEmptyLog before
// any strategy runs.
func (c *Classifier) Classify(ctx context.Context, logText string) (Analysis, error) {
	if strings.TrimSpace(logText) == "" {
		return Analysis{}, ErrEmptyLog
	}
	if len(c.strategies) == 0 {
		return Analysis{}, ErrNoStrategies
	}

	var lastErr error
	for _, s := range c.strategies {
		a, err := s.Analyze(ctx, logText)
		if err != nil {
			c.logger.Warn("classify strategy failed", "strategy", s.Name(), "err", err)
			lastErr = err
			continue
		}
		return normalize(a), nil
	}
	return Analysis{}, lastErr
}
