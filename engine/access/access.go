// Package access stores page-level role permissions and the admin bypass
// list. A page with no stored permission set is public; otherwise a viewer
// needs at least one of the page's allowed Discord roles, and admins bypass
// role checks entirely.
package access

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

type result interface {
	Next(ctx context.Context) bool
	Record() *neo4j.Record
}

type runner interface {
	Run(ctx context.Context, cypher string, params map[string]any) (result, error)
	Close(ctx context.Context) error
}

// Store persists PagePermission and AdminUser nodes.
type Store struct {
	driver     neo4j.DriverWithContext
	newSession func(ctx context.Context) runner // for testing
}

// New creates an access store.
func New(driver neo4j.DriverWithContext) *Store {
	return &Store{driver: driver}
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

// SetPageRoles replaces the allowed role set for a page. An empty set makes
// the page admin-only.
func (s *Store) SetPageRoles(ctx context.Context, page string, roleIDs []string) error {
	if page == "" {
		return fmt.Errorf("access: set page roles: empty page")
	}
	sess := s.session(ctx)
	defer sess.Close(ctx)

	_, err := sess.Run(ctx,
		`MERGE (p:PagePermission {page: $page}) SET p.roleIds = $roles`,
		map[string]any{"page": page, "roles": roleIDs})
	if err != nil {
		return fmt.Errorf("access: set page roles %q: %w", page, err)
	}
	return nil
}

// PageRoles returns the full page-to-roles map.
func (s *Store) PageRoles(ctx context.Context) (map[string][]string, error) {
	sess := s.session(ctx)
	defer sess.Close(ctx)

	res, err := sess.Run(ctx,
		`MATCH (p:PagePermission) RETURN p.page AS page, p.roleIds AS roles`, nil)
	if err != nil {
		return nil, fmt.Errorf("access: page roles: %w", err)
	}
	out := make(map[string][]string)
	for res.Next(ctx) {
		rec := res.Record()
		if len(rec.Values) < 2 {
			continue
		}
		page, _ := rec.Values[0].(string)
		out[page] = toStrings(rec.Values[1])
	}
	return out, nil
}

// AddAdmin adds a user to the bypass list. Repeats are no-ops.
func (s *Store) AddAdmin(ctx context.Context, userID string) error {
	if userID == "" {
		return fmt.Errorf("access: add admin: empty user id")
	}
	sess := s.session(ctx)
	defer sess.Close(ctx)

	_, err := sess.Run(ctx, `MERGE (a:AdminUser {userId: $id})`, map[string]any{"id": userID})
	if err != nil {
		return fmt.Errorf("access: add admin %q: %w", userID, err)
	}
	return nil
}

// RemoveAdmin drops a user from the bypass list.
func (s *Store) RemoveAdmin(ctx context.Context, userID string) error {
	sess := s.session(ctx)
	defer sess.Close(ctx)

	_, err := sess.Run(ctx, `MATCH (a:AdminUser {userId: $id}) DELETE a`, map[string]any{"id": userID})
	if err != nil {
		return fmt.Errorf("access: remove admin %q: %w", userID, err)
	}
	return nil
}

// Admins lists the bypass users.
func (s *Store) Admins(ctx context.Context) ([]string, error) {
	sess := s.session(ctx)
	defer sess.Close(ctx)

	res, err := sess.Run(ctx, `MATCH (a:AdminUser) RETURN a.userId AS id`, nil)
	if err != nil {
		return nil, fmt.Errorf("access: admins: %w", err)
	}
	var ids []string
	for res.Next(ctx) {
		rec := res.Record()
		if len(rec.Values) == 0 {
			continue
		}
		if id, ok := rec.Values[0].(string); ok {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// IsAdmin reports whether userID is on the bypass list.
func (s *Store) IsAdmin(ctx context.Context, userID string) (bool, error) {
	admins, err := s.Admins(ctx)
	if err != nil {
		return false, err
	}
	for _, id := range admins {
		if id == userID {
			return true, nil
		}
	}
	return false, nil
}

// Allowed decides whether a viewer with the given roles may open a page.
func (s *Store) Allowed(ctx context.Context, page, userID string, roleIDs []string) (bool, error) {
	if ok, err := s.IsAdmin(ctx, userID); err != nil {
		return false, err
	} else if ok {
		return true, nil
	}

	pages, err := s.PageRoles(ctx)
	if err != nil {
		return false, err
	}
	allowed, configured := pages[page]
	if !configured {
		return true, nil
	}
	for _, want := range allowed {
		for _, have := range roleIDs {
			if want == have {
				return true, nil
			}
		}
	}
	return false, nil
}

func toStrings(v any) []string {
	switch vv := v.(type) {
	case []string:
		return vv
	case []any:
		out := make([]string, 0, len(vv))
		for _, item := range vv {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
