package main

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/fsrp-dev/crashbot/engine/tasks"
	"github.com/fsrp-dev/crashbot/pkg/mid"
	"github.com/fsrp-dev/crashbot/pkg/natsutil"
)

// approvalPage is the permission page gating review sign-off.
const approvalPage = "task-approval"

func (a *api) handleListTasks(w http.ResponseWriter, r *http.Request) {
	list, err := a.tasks.List(r.Context())
	if err != nil {
		a.log.Error("task listing failed", "err", err)
		writeError(w, http.StatusInternalServerError, "could not list tasks")
		return
	}
	if list == nil {
		list = []tasks.Task{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "tasks": list, "count": len(list)})
}

// CreateTaskRequest is the JSON body for POST /api/tasks.
type CreateTaskRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	CreatedBy   string `json:"createdBy"`
}

func (a *api) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var req CreateTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	task, err := a.tasks.Create(r.Context(), req.Title, req.Description, req.CreatedBy)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "task": task})
}

// MoveTaskRequest is the JSON body for POST /api/tasks/{id}/move.
type MoveTaskRequest struct {
	Status  string `json:"status"`
	AfterID string `json:"afterId"`
}

func (a *api) handleMoveTask(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req MoveTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	target := tasks.Status(req.Status)

	current, err := a.tasks.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, tasks.ErrNotFound) {
			writeError(w, http.StatusNotFound, "task not found")
			return
		}
		a.log.Error("task lookup failed", "err", err)
		writeError(w, http.StatusInternalServerError, "could not load task")
		return
	}

	// Completing a task under review is a sign-off and needs an approver.
	if current.Status == tasks.StatusReview && target == tasks.StatusCompleted {
		if !a.authorizeApprover(w, r) {
			return
		}
	}

	task, err := a.tasks.Move(r.Context(), id, target, req.AfterID)
	if err != nil {
		switch {
		case errors.Is(err, tasks.ErrNotFound):
			writeError(w, http.StatusNotFound, "task not found")
		case errors.Is(err, tasks.ErrUnknownStatus):
			writeError(w, http.StatusBadRequest, "unknown status")
		default:
			a.log.Error("task move failed", "err", err)
			writeError(w, http.StatusInternalServerError, "could not move task")
		}
		return
	}
	if err := natsutil.Publish(r.Context(), a.events, natsutil.SubjectTaskMoved, task); err != nil {
		a.log.Warn("task event publish failed", "task", task.ID, "err", err)
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "task": task})
}

// authorizeApprover resolves the caller through the identity provider and
// checks the approval permission page. Writes the error response itself and
// reports whether the caller may proceed.
func (a *api) authorizeApprover(w http.ResponseWriter, r *http.Request) bool {
	token := mid.BearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "approval requires authentication")
		return false
	}
	user, err := a.discord.CurrentUser(r.Context(), token)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid token")
		return false
	}
	var roles []string
	if member, err := a.discord.GuildMember(r.Context(), token); err == nil {
		roles = member.Roles
	}
	ok, err := a.access.Allowed(r.Context(), approvalPage, user.ID, roles)
	if err != nil {
		a.log.Error("approval check failed", "err", err)
		writeError(w, http.StatusInternalServerError, "could not verify approval permission")
		return false
	}
	if !ok {
		writeError(w, http.StatusForbidden, "approver role required")
		return false
	}
	return true
}

// ClaimTaskRequest is the JSON body for POST /api/tasks/{id}/claim.
type ClaimTaskRequest struct {
	User string `json:"user"`
}

func (a *api) handleClaimTask(w http.ResponseWriter, r *http.Request) {
	var req ClaimTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.User == "" {
		writeError(w, http.StatusBadRequest, "user is required")
		return
	}

	task, err := a.tasks.Claim(r.Context(), r.PathValue("id"), req.User)
	if err != nil {
		if errors.Is(err, tasks.ErrNotFound) {
			writeError(w, http.StatusNotFound, "task not found")
			return
		}
		a.log.Error("task claim failed", "err", err)
		writeError(w, http.StatusInternalServerError, "could not claim task")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "task": task})
}

func (a *api) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	if err := a.tasks.Delete(r.Context(), r.PathValue("id")); err != nil {
		if errors.Is(err, tasks.ErrNotFound) {
			writeError(w, http.StatusNotFound, "task not found")
			return
		}
		a.log.Error("task delete failed", "err", err)
		writeError(w, http.StatusInternalServerError, "could not delete task")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// AddCommentRequest is the JSON body for POST /api/tasks/{id}/comments.
type AddCommentRequest struct {
	Author string `json:"author"`
	Body   string `json:"body"`
}

func (a *api) handleAddComment(w http.ResponseWriter, r *http.Request) {
	var req AddCommentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Body == "" {
		writeError(w, http.StatusBadRequest, "body is required")
		return
	}

	comment, err := a.tasks.AddComment(r.Context(), r.PathValue("id"), req.Author, req.Body)
	if err != nil {
		if errors.Is(err, tasks.ErrNotFound) {
			writeError(w, http.StatusNotFound, "task not found")
			return
		}
		a.log.Error("comment add failed", "err", err)
		writeError(w, http.StatusInternalServerError, "could not add comment")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "comment": comment})
}

func (a *api) handleListComments(w http.ResponseWriter, r *http.Request) {
	comments, err := a.tasks.Comments(r.Context(), r.PathValue("id"))
	if err != nil {
		a.log.Error("comment listing failed", "err", err)
		writeError(w, http.StatusInternalServerError, "could not list comments")
		return
	}
	if comments == nil {
		comments = []tasks.Comment{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "comments": comments})
}
