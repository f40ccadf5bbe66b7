// Package discord is a thin client for the Discord REST API: the OAuth2
// token endpoints plus the user/guild lookups the site needs. No OAuth
// protocol logic lives here, only calls to the provider's endpoints.
package discord

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"
)

// DefaultBaseURL is the Discord REST API root.
const DefaultBaseURL = "https://discord.com/api/v10"

const oauthScope = "identify guilds guilds.members.read"

// Sentinel errors.
var (
	// ErrUnauthorized means the bearer token was rejected.
	ErrUnauthorized = errors.New("discord: unauthorized")
	// ErrNotInGuild means the user is not a member of the configured guild.
	ErrNotInGuild = errors.New("discord: user not in guild")
	// ErrNoBotToken means a bot-token operation was attempted without one.
	ErrNoBotToken = errors.New("discord: bot token not configured")
)

// Config holds the application credentials.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	GuildID      string
	BotToken     string // optional, needed for guild role listing
	BaseURL      string // overridable for tests
}

// Client calls the Discord REST API.
type Client struct {
	cfg    Config
	client *http.Client
}

// New creates a Discord client.
func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	return &Client{cfg: cfg, client: &http.Client{Timeout: 15 * time.Second}}
}

// AuthURL is the authorization page the browser is sent to.
func (c *Client) AuthURL() string {
	q := url.Values{}
	q.Set("client_id", c.cfg.ClientID)
	q.Set("redirect_uri", c.cfg.RedirectURI)
	q.Set("response_type", "code")
	q.Set("scope", oauthScope)
	return c.cfg.BaseURL + "/oauth2/authorize?" + q.Encode()
}

// ExchangeCode trades an authorization code for tokens.
func (c *Client) ExchangeCode(ctx context.Context, code string) (Tokens, error) {
	return c.tokenGrant(ctx, url.Values{
		"grant_type":   {"authorization_code"},
		"code":         {code},
		"redirect_uri": {c.cfg.RedirectURI},
	})
}

// Refresh trades a refresh token for a fresh token pair.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (Tokens, error) {
	return c.tokenGrant(ctx, url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
	})
}

func (c *Client) tokenGrant(ctx context.Context, form url.Values) (Tokens, error) {
	form.Set("client_id", c.cfg.ClientID)
	form.Set("client_secret", c.cfg.ClientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.BaseURL+"/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return Tokens{}, fmt.Errorf("discord: build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		return Tokens{}, fmt.Errorf("discord: token request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Tokens{}, fmt.Errorf("discord: read token response: %w", err)
	}

	var body struct {
		Tokens
		Error     string `json:"error"`
		ErrorDesc string `json:"error_description"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return Tokens{}, fmt.Errorf("discord: decode token response: %w", err)
	}
	if body.Error != "" {
		msg := body.ErrorDesc
		if msg == "" {
			msg = body.Error
		}
		return Tokens{}, fmt.Errorf("discord: token grant failed: %s: %w", msg, ErrUnauthorized)
	}
	if resp.StatusCode != http.StatusOK {
		return Tokens{}, fmt.Errorf("discord: token grant status %d: %w", resp.StatusCode, ErrUnauthorized)
	}
	return body.Tokens, nil
}

// CurrentUser fetches the account behind a bearer token.
func (c *Client) CurrentUser(ctx context.Context, accessToken string) (User, error) {
	var u User
	if err := c.get(ctx, "/users/@me", "Bearer "+accessToken, &u); err != nil {
		return User{}, err
	}
	return u, nil
}

// GuildMember fetches the user's membership (nick, roles) in the configured
// guild. ErrNotInGuild when they are not a member.
func (c *Client) GuildMember(ctx context.Context, accessToken string) (Member, error) {
	var m Member
	err := c.get(ctx, "/users/@me/guilds/"+c.cfg.GuildID+"/member", "Bearer "+accessToken, &m)
	if err != nil {
		return Member{}, err
	}
	return m, nil
}

// GuildRoles lists the guild's roles via the bot token, highest position
// first, with @everyone filtered out.
func (c *Client) GuildRoles(ctx context.Context) ([]Role, error) {
	if c.cfg.BotToken == "" {
		return nil, ErrNoBotToken
	}

	var raw []struct {
		ID       string `json:"id"`
		Name     string `json:"name"`
		Color    int    `json:"color"`
		Position int    `json:"position"`
	}
	err := c.get(ctx, "/guilds/"+c.cfg.GuildID+"/roles", "Bot "+c.cfg.BotToken, &raw)
	if err != nil {
		return nil, err
	}

	roles := make([]Role, 0, len(raw))
	for _, r := range raw {
		if r.Name == "@everyone" {
			continue
		}
		roles = append(roles, Role{
			ID:       r.ID,
			Name:     r.Name,
			Color:    colorHex(r.Color),
			Position: r.Position,
		})
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i].Position > roles[j].Position })
	return roles, nil
}

func (c *Client) get(ctx context.Context, path, authorization string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+path, nil)
	if err != nil {
		return fmt.Errorf("discord: build request: %w", err)
	}
	req.Header.Set("Authorization", authorization)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("discord: %s: %w", path, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("discord: %s: %w", path, ErrUnauthorized)
	case http.StatusNotFound:
		return fmt.Errorf("discord: %s: %w", path, ErrNotInGuild)
	default:
		return fmt.Errorf("discord: %s: status %d", path, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("discord: %s: decode: %w", path, err)
	}
	return nil
}

// colorHex renders Discord's integer role color as #rrggbb, with the grey
// default for colorless roles.
func colorHex(color int) string {
	if color == 0 {
		return "#99aab5"
	}
	return fmt.Sprintf("#%06x", color)
}
