package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/fsrp-dev/crashbot/engine/classify"
	"github.com/fsrp-dev/crashbot/engine/ledger"
	"github.com/fsrp-dev/crashbot/engine/tasks"
	"github.com/fsrp-dev/crashbot/pkg/discord"
	"github.com/fsrp-dev/crashbot/pkg/metrics"
	"github.com/fsrp-dev/crashbot/pkg/natsutil"
)

// The handler layer depends on these narrowed interfaces so tests can
// substitute in-memory fakes for the real services.

type classifier interface {
	Classify(ctx context.Context, logText string) (classify.Analysis, error)
}

type issueLedger interface {
	Report(ctx context.Context, resourceName, cause, description string) (ledger.IssueRecord, error)
	Get(ctx context.Context, resourceName string) (ledger.IssueRecord, error)
	List(ctx context.Context) ([]ledger.IssueRecord, error)
	Pending(ctx context.Context) ([]ledger.IssueRecord, error)
	MarkFixed(ctx context.Context, resourceName, fixedBy string) (ledger.IssueRecord, error)
}

type taskBoard interface {
	Create(ctx context.Context, title, description, createdBy string) (tasks.Task, error)
	Get(ctx context.Context, id string) (tasks.Task, error)
	List(ctx context.Context) ([]tasks.Task, error)
	Move(ctx context.Context, id string, status tasks.Status, afterID string) (tasks.Task, error)
	Claim(ctx context.Context, id, user string) (tasks.Task, error)
	Delete(ctx context.Context, id string) error
	AddComment(ctx context.Context, taskID, author, body string) (tasks.Comment, error)
	Comments(ctx context.Context, taskID string) ([]tasks.Comment, error)
}

type accessStore interface {
	SetPageRoles(ctx context.Context, page string, roleIDs []string) error
	PageRoles(ctx context.Context) (map[string][]string, error)
	AddAdmin(ctx context.Context, userID string) error
	RemoveAdmin(ctx context.Context, userID string) error
	Admins(ctx context.Context) ([]string, error)
	Allowed(ctx context.Context, page, userID string, roleIDs []string) (bool, error)
}

type identityProvider interface {
	AuthURL() string
	ExchangeCode(ctx context.Context, code string) (discord.Tokens, error)
	Refresh(ctx context.Context, refreshToken string) (discord.Tokens, error)
	CurrentUser(ctx context.Context, accessToken string) (discord.User, error)
	GuildMember(ctx context.Context, accessToken string) (discord.Member, error)
	GuildRoles(ctx context.Context) ([]discord.Role, error)
}

type api struct {
	log      *slog.Logger
	classify classifier
	issues   issueLedger
	tasks    taskBoard
	access   accessStore
	discord  identityProvider
	events   natsutil.MsgPublisher
	metrics  *metrics.Registry
}

func (a *api) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", a.handleHealth)
	mux.Handle("GET /metrics", a.metrics.Handler())

	mux.HandleFunc("POST /api/analyze", a.handleAnalyze)
	mux.HandleFunc("GET /api/issues", a.handleListIssues)
	mux.HandleFunc("GET /api/issues/{resource}", a.handleGetIssue)
	mux.HandleFunc("POST /api/issues/{resource}/fix", a.handleFixIssue)

	mux.HandleFunc("GET /api/discord/login", a.handleDiscordLogin)
	mux.HandleFunc("POST /api/discord/callback", a.handleDiscordCallback)
	mux.HandleFunc("POST /api/discord/refresh", a.handleDiscordRefresh)
	mux.HandleFunc("GET /api/discord/user", a.handleDiscordUser)
	mux.HandleFunc("GET /api/discord/roles", a.handleDiscordRoles)
	mux.HandleFunc("GET /api/discord/guild-roles", a.handleGuildRoles)

	mux.HandleFunc("GET /api/tasks", a.handleListTasks)
	mux.HandleFunc("POST /api/tasks", a.handleCreateTask)
	mux.HandleFunc("POST /api/tasks/{id}/move", a.handleMoveTask)
	mux.HandleFunc("POST /api/tasks/{id}/claim", a.handleClaimTask)
	mux.HandleFunc("DELETE /api/tasks/{id}", a.handleDeleteTask)
	mux.HandleFunc("GET /api/tasks/{id}/comments", a.handleListComments)
	mux.HandleFunc("POST /api/tasks/{id}/comments", a.handleAddComment)

	mux.HandleFunc("GET /api/permissions/pages", a.handleListPages)
	mux.HandleFunc("PUT /api/permissions/pages/{page}", a.handleSetPageRoles)
	mux.HandleFunc("GET /api/permissions/admins", a.handleListAdmins)
	mux.HandleFunc("POST /api/permissions/admins", a.handleAddAdmin)
	mux.HandleFunc("DELETE /api/permissions/admins/{id}", a.handleRemoveAdmin)

	return mux
}

func (a *api) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"success": false, "error": msg})
}
