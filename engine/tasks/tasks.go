// Package tasks persists the dev-portal kanban board. Cards keep a float
// order within their column; moves write the midpoint between neighbours so
// a drop never reindexes the rest of the column.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Sentinel errors.
var (
	ErrNotFound      = errors.New("tasks: task not found")
	ErrUnknownStatus = errors.New("tasks: unknown status")
)

type result interface {
	Next(ctx context.Context) bool
	Record() *neo4j.Record
}

type runner interface {
	Run(ctx context.Context, cypher string, params map[string]any) (result, error)
	Close(ctx context.Context) error
}

// Store persists Task and Comment nodes.
type Store struct {
	driver     neo4j.DriverWithContext
	newSession func(ctx context.Context) runner // for testing
	now        func() time.Time
	newID      func() string
}

// New creates a task store.
func New(driver neo4j.DriverWithContext) *Store {
	return &Store{
		driver: driver,
		now:    time.Now,
		newID:  func() string { return uuid.NewString() },
	}
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

// Create adds a card at the bottom of the todo column.
func (s *Store) Create(ctx context.Context, title, description, createdBy string) (Task, error) {
	if title == "" {
		return Task{}, fmt.Errorf("tasks: create: empty title")
	}
	sess := s.session(ctx)
	defer sess.Close(ctx)

	cypher := `OPTIONAL MATCH (t:Task {status: $status})
WITH coalesce(max(t.order), 0) + $step AS ord
CREATE (n:Task {id: $id, title: $title, description: $description,
                status: $status, order: ord,
                createdAt: $now, createdBy: $createdBy})
RETURN properties(n) AS t`

	res, err := sess.Run(ctx, cypher, map[string]any{
		"id":          s.newID(),
		"title":       title,
		"description": description,
		"status":      string(StatusTodo),
		"step":        float64(orderStep),
		"now":         s.now().UTC(),
		"createdBy":   createdBy,
	})
	if err != nil {
		return Task{}, fmt.Errorf("tasks: create: %w", err)
	}
	return singleTask(ctx, res)
}

// Get returns one task by ID.
func (s *Store) Get(ctx context.Context, id string) (Task, error) {
	sess := s.session(ctx)
	defer sess.Close(ctx)

	res, err := sess.Run(ctx, `MATCH (t:Task {id: $id}) RETURN properties(t) AS t`,
		map[string]any{"id": id})
	if err != nil {
		return Task{}, fmt.Errorf("tasks: get: %w", err)
	}
	return singleTask(ctx, res)
}

// List returns every card, ordered for column-wise rendering.
func (s *Store) List(ctx context.Context) ([]Task, error) {
	sess := s.session(ctx)
	defer sess.Close(ctx)

	res, err := sess.Run(ctx, `MATCH (t:Task) RETURN properties(t) AS t ORDER BY t.order ASC`, nil)
	if err != nil {
		return nil, fmt.Errorf("tasks: list: %w", err)
	}
	var out []Task
	for res.Next(ctx) {
		props, err := recordProps(res.Record())
		if err != nil {
			return nil, fmt.Errorf("tasks: list: %w", err)
		}
		out = append(out, taskFromProps(props))
	}
	return out, nil
}

// Move places a card in a column. With afterID empty the card lands at the
// bottom; otherwise it lands on the midpoint between afterID and whatever
// follows it in the target column.
func (s *Store) Move(ctx context.Context, id string, status Status, afterID string) (Task, error) {
	if !ValidStatuses[status] {
		return Task{}, fmt.Errorf("%w: %q", ErrUnknownStatus, status)
	}
	sess := s.session(ctx)
	defer sess.Close(ctx)

	ord, err := s.targetOrder(ctx, sess, status, afterID)
	if err != nil {
		return Task{}, err
	}

	res, err := sess.Run(ctx,
		`MATCH (t:Task {id: $id}) SET t.status = $status, t.order = $order RETURN properties(t) AS t`,
		map[string]any{"id": id, "status": string(status), "order": ord})
	if err != nil {
		return Task{}, fmt.Errorf("tasks: move: %w", err)
	}
	return singleTask(ctx, res)
}

// targetOrder computes the order value for a drop into status after afterID.
func (s *Store) targetOrder(ctx context.Context, sess runner, status Status, afterID string) (float64, error) {
	if afterID == "" {
		res, err := sess.Run(ctx,
			`OPTIONAL MATCH (t:Task {status: $status}) RETURN coalesce(max(t.order), 0) AS ord`,
			map[string]any{"status": string(status)})
		if err != nil {
			return 0, fmt.Errorf("tasks: move: %w", err)
		}
		maxOrd, err := singleFloat(ctx, res)
		if err != nil {
			return 0, err
		}
		return maxOrd + orderStep, nil
	}

	after, err := s.Get(ctx, afterID)
	if err != nil {
		return 0, err
	}
	res, err := sess.Run(ctx,
		`MATCH (t:Task {status: $status}) WHERE t.order > $after RETURN min(t.order) AS ord`,
		map[string]any{"status": string(status), "after": after.Order})
	if err != nil {
		return 0, fmt.Errorf("tasks: move: %w", err)
	}
	next, err := singleFloat(ctx, res)
	if err != nil || next == 0 {
		// Nothing after the anchor: append past it.
		return after.Order + orderStep, nil
	}
	return (after.Order + next) / 2, nil
}

// Claim marks a card as being worked on by user.
func (s *Store) Claim(ctx context.Context, id, user string) (Task, error) {
	sess := s.session(ctx)
	defer sess.Close(ctx)

	res, err := sess.Run(ctx,
		`MATCH (t:Task {id: $id}) SET t.claimedBy = $user RETURN properties(t) AS t`,
		map[string]any{"id": id, "user": user})
	if err != nil {
		return Task{}, fmt.Errorf("tasks: claim: %w", err)
	}
	return singleTask(ctx, res)
}

// Delete removes a card and its comments.
func (s *Store) Delete(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	sess := s.session(ctx)
	defer sess.Close(ctx)

	_, err := sess.Run(ctx, `MATCH (t:Task {id: $id}) DETACH DELETE t`, map[string]any{"id": id})
	if err != nil {
		return fmt.Errorf("tasks: delete: %w", err)
	}
	_, err = sess.Run(ctx, `MATCH (c:TaskComment {taskId: $id}) DELETE c`, map[string]any{"id": id})
	if err != nil {
		return fmt.Errorf("tasks: delete comments: %w", err)
	}
	return nil
}

// AddComment appends a comment to a task.
func (s *Store) AddComment(ctx context.Context, taskID, author, body string) (Comment, error) {
	if body == "" {
		return Comment{}, fmt.Errorf("tasks: comment: empty body")
	}
	if _, err := s.Get(ctx, taskID); err != nil {
		return Comment{}, err
	}
	sess := s.session(ctx)
	defer sess.Close(ctx)

	res, err := sess.Run(ctx,
		`CREATE (c:TaskComment {id: $id, taskId: $taskId, author: $author, body: $body, createdAt: $now})
RETURN properties(c) AS c`,
		map[string]any{
			"id":     s.newID(),
			"taskId": taskID,
			"author": author,
			"body":   body,
			"now":    s.now().UTC(),
		})
	if err != nil {
		return Comment{}, fmt.Errorf("tasks: comment: %w", err)
	}
	if !res.Next(ctx) {
		return Comment{}, fmt.Errorf("tasks: comment: no record returned")
	}
	props, err := recordProps(res.Record())
	if err != nil {
		return Comment{}, fmt.Errorf("tasks: comment: %w", err)
	}
	return commentFromProps(props), nil
}

// Comments lists a task's comments oldest first.
func (s *Store) Comments(ctx context.Context, taskID string) ([]Comment, error) {
	sess := s.session(ctx)
	defer sess.Close(ctx)

	res, err := sess.Run(ctx,
		`MATCH (c:TaskComment {taskId: $taskId}) RETURN properties(c) AS c ORDER BY c.createdAt ASC`,
		map[string]any{"taskId": taskID})
	if err != nil {
		return nil, fmt.Errorf("tasks: comments: %w", err)
	}
	var out []Comment
	for res.Next(ctx) {
		props, err := recordProps(res.Record())
		if err != nil {
			return nil, fmt.Errorf("tasks: comments: %w", err)
		}
		out = append(out, commentFromProps(props))
	}
	return out, nil
}

func singleTask(ctx context.Context, res result) (Task, error) {
	if !res.Next(ctx) {
		return Task{}, ErrNotFound
	}
	props, err := recordProps(res.Record())
	if err != nil {
		return Task{}, err
	}
	return taskFromProps(props), nil
}

func singleFloat(ctx context.Context, res result) (float64, error) {
	if !res.Next(ctx) {
		return 0, nil
	}
	rec := res.Record()
	if len(rec.Values) == 0 {
		return 0, nil
	}
	switch v := rec.Values[0].(type) {
	case float64:
		return v, nil
	case int64:
		return float64(v), nil
	}
	return 0, nil
}

func recordProps(rec *neo4j.Record) (map[string]any, error) {
	if len(rec.Values) == 0 {
		return nil, fmt.Errorf("empty record")
	}
	props, ok := rec.Values[0].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("unexpected record shape %T", rec.Values[0])
	}
	return props, nil
}
