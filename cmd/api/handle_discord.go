package main

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/fsrp-dev/crashbot/pkg/discord"
	"github.com/fsrp-dev/crashbot/pkg/mid"
)

func (a *api) handleDiscordLogin(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"url": a.discord.AuthURL()})
}

// CallbackRequest is the JSON body for POST /api/discord/callback.
type CallbackRequest struct {
	Code string `json:"code"`
}

func (a *api) handleDiscordCallback(w http.ResponseWriter, r *http.Request) {
	var req CallbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Code == "" {
		writeError(w, http.StatusBadRequest, "code is required")
		return
	}

	tokens, err := a.discord.ExchangeCode(r.Context(), req.Code)
	if err != nil {
		a.log.Warn("code exchange failed", "err", err)
		writeError(w, http.StatusUnauthorized, "code exchange failed")
		return
	}
	writeJSON(w, http.StatusOK, tokens)
}

// RefreshRequest is the JSON body for POST /api/discord/refresh.
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

func (a *api) handleDiscordRefresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RefreshToken == "" {
		writeError(w, http.StatusBadRequest, "refreshToken is required")
		return
	}

	tokens, err := a.discord.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		// An expired or revoked refresh token sends the browser back
		// through the full login flow.
		writeJSON(w, http.StatusUnauthorized, map[string]any{
			"success":     false,
			"error":       "refresh failed",
			"needsReauth": true,
		})
		return
	}
	writeJSON(w, http.StatusOK, tokens)
}

func (a *api) handleDiscordUser(w http.ResponseWriter, r *http.Request) {
	token := mid.BearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "missing bearer token")
		return
	}

	user, err := a.discord.CurrentUser(r.Context(), token)
	if err != nil {
		if errors.Is(err, discord.ErrUnauthorized) {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		a.log.Error("user lookup failed", "err", err)
		writeError(w, http.StatusBadGateway, "identity provider unavailable")
		return
	}

	resp := map[string]any{
		"success": true,
		"user": map[string]any{
			"id":          user.ID,
			"username":    user.Username,
			"displayName": user.DisplayName(),
			"avatarUrl":   user.AvatarURL(),
		},
	}

	member, err := a.discord.GuildMember(r.Context(), token)
	switch {
	case err == nil:
		resp["inGuild"] = true
		resp["member"] = member
	case errors.Is(err, discord.ErrNotInGuild):
		resp["inGuild"] = false
	default:
		a.log.Warn("member lookup failed", "err", err)
		resp["inGuild"] = false
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *api) handleDiscordRoles(w http.ResponseWriter, r *http.Request) {
	token := mid.BearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "missing bearer token")
		return
	}

	member, err := a.discord.GuildMember(r.Context(), token)
	if err != nil {
		switch {
		case errors.Is(err, discord.ErrUnauthorized):
			writeError(w, http.StatusUnauthorized, "invalid token")
		case errors.Is(err, discord.ErrNotInGuild):
			writeError(w, http.StatusForbidden, "not a guild member")
		default:
			a.log.Error("member lookup failed", "err", err)
			writeError(w, http.StatusBadGateway, "identity provider unavailable")
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "roles": member.Roles})
}

func (a *api) handleGuildRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := a.discord.GuildRoles(r.Context())
	if err != nil {
		if errors.Is(err, discord.ErrNoBotToken) {
			writeError(w, http.StatusServiceUnavailable, "guild role listing not configured")
			return
		}
		a.log.Error("guild role listing failed", "err", err)
		writeError(w, http.StatusBadGateway, "identity provider unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "roles": roles})
}
