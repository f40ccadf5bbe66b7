package main

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/fsrp-dev/crashbot/pkg/natsutil"
)

// AnalyzeRequest is the JSON body for POST /api/analyze.
type AnalyzeRequest struct {
	CrashLog string `json:"crashLog"`
}

// AnalyzeResponse is the JSON response for POST /api/analyze.
type AnalyzeResponse struct {
	Success  bool `json:"success"`
	Analysis any  `json:"analysis"`
	Reported bool `json:"reported"`
}

func (a *api) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req AnalyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.CrashLog) == "" {
		writeError(w, http.StatusBadRequest, "crashLog is required")
		return
	}

	analysis, err := a.classify.Classify(r.Context(), req.CrashLog)
	if err != nil {
		a.log.Error("crash analysis failed", "err", err)
		a.metrics.Inc("crash_analyses_total", "Crash logs analyzed.", "outcome", "error")
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"success": false,
			"error":   "analysis failed",
			"message": err.Error(),
		})
		return
	}
	a.metrics.Inc("crash_analyses_total", "Crash logs analyzed.",
		"outcome", "ok", "crash_type", string(analysis.CrashType))

	reported := false
	if analysis.ShouldReport() {
		rec, err := a.issues.Report(r.Context(), analysis.ResourceName, analysis.Cause, analysis.Description)
		if err != nil {
			// The analysis itself succeeded; surface it and warn.
			a.log.Warn("issue report failed", "resource", analysis.ResourceName, "err", err)
		} else {
			reported = true
			analysis.AutoReported = true
			a.metrics.Inc("issue_reports_total", "Crash analyses reported to the ledger.")
			if err := natsutil.Publish(r.Context(), a.events, natsutil.SubjectCrashReported, rec); err != nil {
				a.log.Warn("issue event publish failed", "resource", rec.ResourceName, "err", err)
			}
		}
	}

	writeJSON(w, http.StatusOK, AnalyzeResponse{Success: true, Analysis: analysis, Reported: reported})
}
