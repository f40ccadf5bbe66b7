package main

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/fsrp-dev/crashbot/engine/ledger"
	"github.com/fsrp-dev/crashbot/pkg/natsutil"
)

func (a *api) handleListIssues(w http.ResponseWriter, r *http.Request) {
	var (
		issues []ledger.IssueRecord
		err    error
	)
	if r.URL.Query().Get("status") == "pending" {
		issues, err = a.issues.Pending(r.Context())
	} else {
		issues, err = a.issues.List(r.Context())
	}
	if err != nil {
		a.log.Error("issue listing failed", "err", err)
		writeError(w, http.StatusInternalServerError, "could not list issues")
		return
	}
	if issues == nil {
		issues = []ledger.IssueRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"issues":  issues,
		"count":   len(issues),
	})
}

func (a *api) handleGetIssue(w http.ResponseWriter, r *http.Request) {
	rec, err := a.issues.Get(r.Context(), r.PathValue("resource"))
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			writeError(w, http.StatusNotFound, "issue not found")
			return
		}
		a.log.Error("issue lookup failed", "err", err)
		writeError(w, http.StatusInternalServerError, "could not load issue")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "issue": rec})
}

// FixRequest is the JSON body for POST /api/issues/{resource}/fix.
type FixRequest struct {
	FixedBy string `json:"fixedBy"`
}

func (a *api) handleFixIssue(w http.ResponseWriter, r *http.Request) {
	var req FixRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.FixedBy == "" {
		writeError(w, http.StatusBadRequest, "fixedBy is required")
		return
	}

	rec, err := a.issues.MarkFixed(r.Context(), r.PathValue("resource"), req.FixedBy)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			writeError(w, http.StatusNotFound, "issue not found")
			return
		}
		a.log.Error("mark fixed failed", "err", err)
		writeError(w, http.StatusInternalServerError, "could not mark issue fixed")
		return
	}
	a.metrics.Inc("issues_fixed_total", "Issues marked fixed.")
	if err := natsutil.Publish(r.Context(), a.events, natsutil.SubjectIssueFixed, rec); err != nil {
		a.log.Warn("fixed event publish failed", "resource", rec.ResourceName, "err", err)
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "issue": rec})
}
