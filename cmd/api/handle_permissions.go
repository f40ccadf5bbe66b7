package main

import (
	"encoding/json"
	"net/http"
)

func (a *api) handleListPages(w http.ResponseWriter, r *http.Request) {
	pages, err := a.access.PageRoles(r.Context())
	if err != nil {
		a.log.Error("page permission listing failed", "err", err)
		writeError(w, http.StatusInternalServerError, "could not list page permissions")
		return
	}
	if pages == nil {
		pages = map[string][]string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "pages": pages})
}

// SetPageRolesRequest is the JSON body for PUT /api/permissions/pages/{page}.
type SetPageRolesRequest struct {
	RoleIDs []string `json:"roleIds"`
}

func (a *api) handleSetPageRoles(w http.ResponseWriter, r *http.Request) {
	var req SetPageRolesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.RoleIDs == nil {
		req.RoleIDs = []string{}
	}

	page := r.PathValue("page")
	if err := a.access.SetPageRoles(r.Context(), page, req.RoleIDs); err != nil {
		a.log.Error("page permission update failed", "page", page, "err", err)
		writeError(w, http.StatusInternalServerError, "could not update page permissions")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "page": page, "roleIds": req.RoleIDs})
}

func (a *api) handleListAdmins(w http.ResponseWriter, r *http.Request) {
	admins, err := a.access.Admins(r.Context())
	if err != nil {
		a.log.Error("admin listing failed", "err", err)
		writeError(w, http.StatusInternalServerError, "could not list admins")
		return
	}
	if admins == nil {
		admins = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "admins": admins})
}

// AddAdminRequest is the JSON body for POST /api/permissions/admins.
type AddAdminRequest struct {
	UserID string `json:"userId"`
}

func (a *api) handleAddAdmin(w http.ResponseWriter, r *http.Request) {
	var req AddAdminRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}
	if err := a.access.AddAdmin(r.Context(), req.UserID); err != nil {
		a.log.Error("admin add failed", "err", err)
		writeError(w, http.StatusInternalServerError, "could not add admin")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "userId": req.UserID})
}

func (a *api) handleRemoveAdmin(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := a.access.RemoveAdmin(r.Context(), id); err != nil {
		a.log.Error("admin remove failed", "err", err)
		writeError(w, http.StatusInternalServerError, "could not remove admin")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}
