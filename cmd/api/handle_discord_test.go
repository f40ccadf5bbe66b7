package main

import (
	"net/http"
	"testing"

	"github.com/fsrp-dev/crashbot/pkg/discord"
)

func TestDiscordLogin(t *testing.T) {
	srv, d := testServer(t)
	d.discord.authURL = "https://discord.example/oauth2/authorize?client_id=cid"

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/api/discord/login", nil, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if body["url"] != d.discord.authURL {
		t.Fatalf("body = %v", body)
	}
}

func TestDiscordCallback(t *testing.T) {
	srv, d := testServer(t)
	d.discord.tokens = discord.Tokens{AccessToken: "at", RefreshToken: "rt"}

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/discord/callback",
		map[string]string{"code": "abc"}, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if body["access_token"] != "at" {
		t.Fatalf("body = %v", body)
	}

	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/api/discord/callback", map[string]string{}, "")
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("missing code status = %d", resp.StatusCode)
	}
}

func TestDiscordCallbackRejected(t *testing.T) {
	srv, d := testServer(t)
	d.discord.tokensErr = discord.ErrUnauthorized

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/api/discord/callback",
		map[string]string{"code": "bad"}, "")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestDiscordRefreshNeedsReauth(t *testing.T) {
	srv, d := testServer(t)
	d.discord.tokensErr = discord.ErrUnauthorized

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/discord/refresh",
		map[string]string{"refreshToken": "stale"}, "")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if body["needsReauth"] != true {
		t.Fatalf("body = %v", body)
	}
}

func TestDiscordUser(t *testing.T) {
	srv, d := testServer(t)
	d.discord.user = discord.User{ID: "1", Username: "jdoe", GlobalName: "J Doe", Avatar: "abc"}
	d.discord.member = discord.Member{Nick: "JD", Roles: []string{"r1", "r2"}}

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/api/discord/user", nil, "tok")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	user := body["user"].(map[string]any)
	if user["displayName"] != "J Doe" {
		t.Fatalf("user = %v", user)
	}
	if body["inGuild"] != true {
		t.Fatalf("body = %v", body)
	}
}

func TestDiscordUserOutsideGuild(t *testing.T) {
	srv, d := testServer(t)
	d.discord.user = discord.User{ID: "1", Username: "jdoe"}
	d.discord.memberErr = discord.ErrNotInGuild

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/api/discord/user", nil, "tok")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if body["inGuild"] != false {
		t.Fatalf("body = %v", body)
	}
}

func TestDiscordUserAuth(t *testing.T) {
	srv, d := testServer(t)

	resp, _ := doJSON(t, http.MethodGet, srv.URL+"/api/discord/user", nil, "")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("missing token status = %d", resp.StatusCode)
	}

	d.discord.userErr = discord.ErrUnauthorized
	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/api/discord/user", nil, "bad")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("invalid token status = %d", resp.StatusCode)
	}
}

func TestDiscordRoles(t *testing.T) {
	srv, d := testServer(t)
	d.discord.member = discord.Member{Roles: []string{"r1", "r2"}}

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/api/discord/roles", nil, "tok")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if roles := body["roles"].([]any); len(roles) != 2 {
		t.Fatalf("roles = %v", roles)
	}

	d.discord.memberErr = discord.ErrNotInGuild
	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/api/discord/roles", nil, "tok")
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("non-member status = %d", resp.StatusCode)
	}
}

func TestGuildRolesEndpoint(t *testing.T) {
	srv, d := testServer(t)
	d.discord.roles = []discord.Role{{ID: "1", Name: "Staff", Color: "#e74c3c", Position: 5}}

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/api/discord/guild-roles", nil, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	roles := body["roles"].([]any)
	if len(roles) != 1 || roles[0].(map[string]any)["name"] != "Staff" {
		t.Fatalf("roles = %v", roles)
	}

	d.discord.roles = nil
	d.discord.rolesErr = discord.ErrNoBotToken
	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/api/discord/guild-roles", nil, "")
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("unconfigured status = %d", resp.StatusCode)
	}
}
