// Package ledger tracks resource-attributed crash issues, one record per
// distinct resource name, deduplicated by an occurrence counter.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// ErrNotFound is returned when no issue exists for a resource name.
var ErrNotFound = errors.New("ledger: issue not found")

// result is the minimal interface needed from a neo4j result.
type result interface {
	Next(ctx context.Context) bool
	Record() *neo4j.Record
}

// runner is the minimal interface needed from a neo4j session.
type runner interface {
	Run(ctx context.Context, cypher string, params map[string]any) (result, error)
	Close(ctx context.Context) error
}

// Store persists IssueRecords as Issue nodes keyed by resourceName.
// Resource-name matching is exact and case-sensitive.
type Store struct {
	driver     neo4j.DriverWithContext
	newSession func(ctx context.Context) runner // for testing
	now        func() time.Time
}

// New creates an issue ledger store.
func New(driver neo4j.DriverWithContext) *Store {
	return &Store{driver: driver, now: time.Now}
}

type sessionAdapter struct {
	sess neo4j.SessionWithContext
}

func (a *sessionAdapter) Run(ctx context.Context, cypher string, params map[string]any) (result, error) {
	return a.sess.Run(ctx, cypher, params)
}

func (a *sessionAdapter) Close(ctx context.Context) error { return a.sess.Close(ctx) }

func (s *Store) session(ctx context.Context) runner {
	if s.newSession != nil {
		return s.newSession(ctx)
	}
	return &sessionAdapter{sess: s.driver.NewSession(ctx, neo4j.SessionConfig{})}
}

// Report upserts the issue for resourceName in one atomic MERGE: first report
// creates a pending record, repeats only bump crashCount and lastReported.
// Cause and description are never overwritten after creation.
func (s *Store) Report(ctx context.Context, resourceName, cause, description string) (IssueRecord, error) {
	if resourceName == "" {
		return IssueRecord{}, fmt.Errorf("ledger: report: empty resource name")
	}
	sess := s.session(ctx)
	defer sess.Close(ctx)

	cypher := `MERGE (i:Issue {resourceName: $name})
ON CREATE SET i.cause = $cause, i.description = $description,
              i.crashCount = 1, i.status = $pending,
              i.createdAt = $now, i.lastReported = $now
ON MATCH SET i.crashCount = i.crashCount + 1, i.lastReported = $now
RETURN properties(i) AS i`

	res, err := sess.Run(ctx, cypher, map[string]any{
		"name":        resourceName,
		"cause":       cause,
		"description": description,
		"pending":     string(StatusPending),
		"now":         s.now().UTC(),
	})
	if err != nil {
		return IssueRecord{}, fmt.Errorf("ledger: report %q: %w", resourceName, err)
	}
	return singleIssue(ctx, res, resourceName)
}

// Get returns the issue for resourceName, or an error when none exists.
func (s *Store) Get(ctx context.Context, resourceName string) (IssueRecord, error) {
	sess := s.session(ctx)
	defer sess.Close(ctx)

	res, err := sess.Run(ctx,
		`MATCH (i:Issue {resourceName: $name}) RETURN properties(i) AS i`,
		map[string]any{"name": resourceName})
	if err != nil {
		return IssueRecord{}, fmt.Errorf("ledger: get %q: %w", resourceName, err)
	}
	return singleIssue(ctx, res, resourceName)
}

// List returns all issues, most-reported first. Count ordering is the
// priority signal surfaced to staff.
func (s *Store) List(ctx context.Context) ([]IssueRecord, error) {
	return s.list(ctx, `MATCH (i:Issue) RETURN properties(i) AS i ORDER BY i.crashCount DESC`)
}

// Pending returns unresolved issues, most-reported first.
func (s *Store) Pending(ctx context.Context) ([]IssueRecord, error) {
	return s.list(ctx, `MATCH (i:Issue {status: 'pending'}) RETURN properties(i) AS i ORDER BY i.crashCount DESC`)
}

func (s *Store) list(ctx context.Context, cypher string) ([]IssueRecord, error) {
	sess := s.session(ctx)
	defer sess.Close(ctx)

	res, err := sess.Run(ctx, cypher, nil)
	if err != nil {
		return nil, fmt.Errorf("ledger: list: %w", err)
	}
	var records []IssueRecord
	for res.Next(ctx) {
		props, err := recordProps(res.Record())
		if err != nil {
			return nil, fmt.Errorf("ledger: list: %w", err)
		}
		records = append(records, issueFromProps(props))
	}
	return records, nil
}

// MarkFixed transitions the issue to fixed. Idempotent: fixedAt and fixedBy
// stick with the first call, repeats leave the record unchanged.
func (s *Store) MarkFixed(ctx context.Context, resourceName, fixedBy string) (IssueRecord, error) {
	sess := s.session(ctx)
	defer sess.Close(ctx)

	cypher := `MATCH (i:Issue {resourceName: $name})
SET i.status = $fixed,
    i.fixedAt = coalesce(i.fixedAt, $now),
    i.fixedBy = coalesce(i.fixedBy, $by)
RETURN properties(i) AS i`

	res, err := sess.Run(ctx, cypher, map[string]any{
		"name":  resourceName,
		"fixed": string(StatusFixed),
		"now":   s.now().UTC(),
		"by":    fixedBy,
	})
	if err != nil {
		return IssueRecord{}, fmt.Errorf("ledger: mark fixed %q: %w", resourceName, err)
	}
	return singleIssue(ctx, res, resourceName)
}

func singleIssue(ctx context.Context, res result, resourceName string) (IssueRecord, error) {
	if !res.Next(ctx) {
		return IssueRecord{}, fmt.Errorf("issue %q: %w", resourceName, ErrNotFound)
	}
	props, err := recordProps(res.Record())
	if err != nil {
		return IssueRecord{}, fmt.Errorf("ledger: issue %q: %w", resourceName, err)
	}
	return issueFromProps(props), nil
}

func recordProps(rec *neo4j.Record) (map[string]any, error) {
	if len(rec.Values) == 0 {
		return nil, fmt.Errorf("empty record")
	}
	props, ok := rec.Values[0].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("unexpected record shape %T", rec.Values[0])
	}
	return props, nil
}
