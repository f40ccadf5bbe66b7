// Package main implements the CrashBot community API server: crash-log
// triage, the resource issue ledger, Discord login glue, the dev task
// board, and page permissions.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"golang.org/x/time/rate"

	"github.com/fsrp-dev/crashbot/engine/access"
	"github.com/fsrp-dev/crashbot/engine/classify"
	"github.com/fsrp-dev/crashbot/engine/ledger"
	"github.com/fsrp-dev/crashbot/engine/tasks"
	"github.com/fsrp-dev/crashbot/pkg/discord"
	"github.com/fsrp-dev/crashbot/pkg/metrics"
	"github.com/fsrp-dev/crashbot/pkg/mid"
	"github.com/fsrp-dev/crashbot/pkg/natsutil"
)

// Config holds all environment-based configuration.
type Config struct {
	Port            string
	AnthropicKey    string
	AnthropicModel  string
	Neo4jURL        string
	Neo4jUser       string
	Neo4jPass       string
	NATSURL         string
	DiscordClientID string
	DiscordSecret   string
	DiscordRedirect string
	DiscordGuildID  string
	DiscordBotToken string
	CORSOrigin      string
}

func loadConfig() Config {
	return Config{
		Port:            envOr("PORT", "8080"),
		AnthropicKey:    os.Getenv("ANTHROPIC_API_KEY"),
		AnthropicModel:  envOr("ANTHROPIC_MODEL", classify.DefaultRemoteOptions().Model),
		Neo4jURL:        envOr("NEO4J_URL", "neo4j://localhost:7687"),
		Neo4jUser:       envOr("NEO4J_USER", "neo4j"),
		Neo4jPass:       envOr("NEO4J_PASS", "password"),
		NATSURL:         os.Getenv("NATS_URL"),
		DiscordClientID: os.Getenv("DISCORD_CLIENT_ID"),
		DiscordSecret:   os.Getenv("DISCORD_CLIENT_SECRET"),
		DiscordRedirect: os.Getenv("DISCORD_REDIRECT_URI"),
		DiscordGuildID:  os.Getenv("DISCORD_GUILD_ID"),
		DiscordBotToken: os.Getenv("DISCORD_BOT_TOKEN"),
		CORSOrigin:      envOr("CORS_ORIGIN", "*"),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := run(loadConfig(), logger); err != nil {
		logger.Error("server exited with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	driver, err := neo4j.NewDriverWithContext(cfg.Neo4jURL, neo4j.BasicAuth(cfg.Neo4jUser, cfg.Neo4jPass, ""))
	if err != nil {
		return fmt.Errorf("neo4j driver: %w", err)
	}
	defer driver.Close(ctx)

	// NATS is optional; staff tooling listens for issue and task events.
	// Left nil, event publishing is a no-op.
	var events natsutil.MsgPublisher
	if cfg.NATSURL != "" {
		nc, err := nats.Connect(cfg.NATSURL, nats.Name("crashbot-api"))
		if err != nil {
			logger.Warn("nats unavailable, events disabled", "err", err)
		} else {
			defer nc.Close()
			events = nc
		}
	}

	strategies := []classify.Strategy{}
	if cfg.AnthropicKey != "" {
		opts := classify.DefaultRemoteOptions()
		opts.Model = cfg.AnthropicModel
		strategies = append(strategies, classify.NewRemoteStrategy(cfg.AnthropicKey, opts))
	} else {
		logger.Warn("no anthropic api key, using local rules only")
	}
	strategies = append(strategies, classify.NewRuleStrategy(classify.DefaultRules))

	a := &api{
		log:      logger,
		classify: classify.New(logger, strategies...),
		issues:   ledger.New(driver),
		tasks:    tasks.New(driver),
		access:   access.New(driver),
		discord: discord.New(discord.Config{
			ClientID:     cfg.DiscordClientID,
			ClientSecret: cfg.DiscordSecret,
			RedirectURI:  cfg.DiscordRedirect,
			GuildID:      cfg.DiscordGuildID,
			BotToken:     cfg.DiscordBotToken,
		}),
		events:  events,
		metrics: metrics.New(),
	}

	handler := mid.Chain(a.routes(),
		mid.Recover(logger),
		mid.Logger(logger),
		mid.CORS(cfg.CORSOrigin),
		mid.RateLimit(rate.NewLimiter(rate.Limit(50), 100)),
		mid.OTel("crashbot-api"),
	)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server starting", "port", cfg.Port)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutCtx)
}
