package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sort"
	"testing"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/fsrp-dev/crashbot/engine/classify"
	"github.com/fsrp-dev/crashbot/engine/ledger"
	"github.com/fsrp-dev/crashbot/engine/tasks"
	"github.com/fsrp-dev/crashbot/pkg/discord"
	"github.com/fsrp-dev/crashbot/pkg/metrics"
)

type fakeClassifier struct {
	analysis classify.Analysis
	err      error
}

func (f *fakeClassifier) Classify(context.Context, string) (classify.Analysis, error) {
	return f.analysis, f.err
}

type fakeLedger struct {
	records map[string]ledger.IssueRecord
	err     error
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{records: make(map[string]ledger.IssueRecord)}
}

func (f *fakeLedger) Report(_ context.Context, name, cause, description string) (ledger.IssueRecord, error) {
	if f.err != nil {
		return ledger.IssueRecord{}, f.err
	}
	rec, ok := f.records[name]
	if !ok {
		rec = ledger.IssueRecord{
			ResourceName: name, Cause: cause, Description: description,
			Status: ledger.StatusPending, CreatedAt: time.Now(),
		}
	}
	rec.CrashCount++
	rec.LastReported = time.Now()
	f.records[name] = rec
	return rec, nil
}

func (f *fakeLedger) Get(_ context.Context, name string) (ledger.IssueRecord, error) {
	if f.err != nil {
		return ledger.IssueRecord{}, f.err
	}
	rec, ok := f.records[name]
	if !ok {
		return ledger.IssueRecord{}, fmt.Errorf("issue %q: %w", name, ledger.ErrNotFound)
	}
	return rec, nil
}

func (f *fakeLedger) List(context.Context) ([]ledger.IssueRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([]ledger.IssueRecord, 0, len(f.records))
	for _, rec := range f.records {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CrashCount > out[j].CrashCount })
	return out, nil
}

func (f *fakeLedger) Pending(ctx context.Context) ([]ledger.IssueRecord, error) {
	all, err := f.List(ctx)
	if err != nil {
		return nil, err
	}
	var out []ledger.IssueRecord
	for _, rec := range all {
		if rec.Status == ledger.StatusPending {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (f *fakeLedger) MarkFixed(ctx context.Context, name, fixedBy string) (ledger.IssueRecord, error) {
	rec, err := f.Get(ctx, name)
	if err != nil {
		return ledger.IssueRecord{}, err
	}
	rec.Status = ledger.StatusFixed
	rec.FixedBy = fixedBy
	f.records[name] = rec
	return rec, nil
}

type fakeTasks struct {
	byID   map[string]tasks.Task
	byTask map[string][]tasks.Comment
	nextID int
	err    error
}

func newFakeTasks() *fakeTasks {
	return &fakeTasks{byID: make(map[string]tasks.Task), byTask: make(map[string][]tasks.Comment)}
}

func (f *fakeTasks) Create(_ context.Context, title, description, createdBy string) (tasks.Task, error) {
	if f.err != nil {
		return tasks.Task{}, f.err
	}
	if title == "" {
		return tasks.Task{}, fmt.Errorf("tasks: create: empty title")
	}
	f.nextID++
	t := tasks.Task{
		ID: fmt.Sprintf("task-%d", f.nextID), Title: title, Description: description,
		Status: tasks.StatusTodo, Order: float64(f.nextID * 1000), CreatedBy: createdBy,
	}
	f.byID[t.ID] = t
	return t, nil
}

func (f *fakeTasks) Get(_ context.Context, id string) (tasks.Task, error) {
	if f.err != nil {
		return tasks.Task{}, f.err
	}
	t, ok := f.byID[id]
	if !ok {
		return tasks.Task{}, tasks.ErrNotFound
	}
	return t, nil
}

func (f *fakeTasks) List(context.Context) ([]tasks.Task, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([]tasks.Task, 0, len(f.byID))
	for _, t := range f.byID {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out, nil
}

func (f *fakeTasks) Move(ctx context.Context, id string, status tasks.Status, _ string) (tasks.Task, error) {
	t, err := f.Get(ctx, id)
	if err != nil {
		return tasks.Task{}, err
	}
	if !tasks.ValidStatuses[status] {
		return tasks.Task{}, tasks.ErrUnknownStatus
	}
	t.Status = status
	f.byID[id] = t
	return t, nil
}

func (f *fakeTasks) Claim(ctx context.Context, id, user string) (tasks.Task, error) {
	t, err := f.Get(ctx, id)
	if err != nil {
		return tasks.Task{}, err
	}
	t.ClaimedBy = user
	f.byID[id] = t
	return t, nil
}

func (f *fakeTasks) Delete(ctx context.Context, id string) error {
	if _, err := f.Get(ctx, id); err != nil {
		return err
	}
	delete(f.byID, id)
	delete(f.byTask, id)
	return nil
}

func (f *fakeTasks) AddComment(ctx context.Context, taskID, author, body string) (tasks.Comment, error) {
	if _, err := f.Get(ctx, taskID); err != nil {
		return tasks.Comment{}, err
	}
	c := tasks.Comment{ID: fmt.Sprintf("c-%d", len(f.byTask[taskID])+1), TaskID: taskID, Author: author, Body: body}
	f.byTask[taskID] = append(f.byTask[taskID], c)
	return c, nil
}

func (f *fakeTasks) Comments(_ context.Context, taskID string) ([]tasks.Comment, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.byTask[taskID], nil
}

type fakeAccess struct {
	pages  map[string][]string
	admins map[string]bool
	err    error
}

func newFakeAccess() *fakeAccess {
	return &fakeAccess{pages: make(map[string][]string), admins: make(map[string]bool)}
}

func (f *fakeAccess) SetPageRoles(_ context.Context, page string, roleIDs []string) error {
	if f.err != nil {
		return f.err
	}
	f.pages[page] = roleIDs
	return nil
}

func (f *fakeAccess) PageRoles(context.Context) (map[string][]string, error) {
	return f.pages, f.err
}

func (f *fakeAccess) AddAdmin(_ context.Context, userID string) error {
	if f.err != nil {
		return f.err
	}
	f.admins[userID] = true
	return nil
}

func (f *fakeAccess) RemoveAdmin(_ context.Context, userID string) error {
	if f.err != nil {
		return f.err
	}
	delete(f.admins, userID)
	return nil
}

func (f *fakeAccess) Admins(context.Context) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []string
	for id := range f.admins {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

func (f *fakeAccess) Allowed(_ context.Context, page, userID string, roleIDs []string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	if f.admins[userID] {
		return true, nil
	}
	allowed, configured := f.pages[page]
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

type fakeDiscord struct {
	authURL   string
	tokens    discord.Tokens
	tokensErr error
	user      discord.User
	userErr   error
	member    discord.Member
	memberErr error
	roles     []discord.Role
	rolesErr  error
}

func (f *fakeDiscord) AuthURL() string { return f.authURL }

func (f *fakeDiscord) ExchangeCode(context.Context, string) (discord.Tokens, error) {
	return f.tokens, f.tokensErr
}

func (f *fakeDiscord) Refresh(context.Context, string) (discord.Tokens, error) {
	return f.tokens, f.tokensErr
}

func (f *fakeDiscord) CurrentUser(context.Context, string) (discord.User, error) {
	return f.user, f.userErr
}

func (f *fakeDiscord) GuildMember(context.Context, string) (discord.Member, error) {
	return f.member, f.memberErr
}

func (f *fakeDiscord) GuildRoles(context.Context) ([]discord.Role, error) {
	return f.roles, f.rolesErr
}

type fakeEvents struct {
	msgs []*nats.Msg
}

func (f *fakeEvents) PublishMsg(msg *nats.Msg) error {
	f.msgs = append(f.msgs, msg)
	return nil
}

// deps bundles the fakes behind one test server.
type deps struct {
	classifier *fakeClassifier
	issues     *fakeLedger
	tasks      *fakeTasks
	access     *fakeAccess
	discord    *fakeDiscord
	events     *fakeEvents
}

func testServer(t *testing.T) (*httptest.Server, *deps) {
	t.Helper()
	d := &deps{
		classifier: &fakeClassifier{},
		issues:     newFakeLedger(),
		tasks:      newFakeTasks(),
		access:     newFakeAccess(),
		discord:    &fakeDiscord{},
		events:     &fakeEvents{},
	}
	a := &api{
		log:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		classify: d.classifier,
		issues:   d.issues,
		tasks:    d.tasks,
		access:   d.access,
		discord:  d.discord,
		events:   d.events,
		metrics:  metrics.New(),
	}
	srv := httptest.NewServer(a.routes())
	t.Cleanup(srv.Close)
	return srv, d
}

func doJSON(t *testing.T, method, url string, body any, token string) (*http.Response, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatal(err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })

	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil && err != io.EOF {
		t.Fatalf("decode response: %v", err)
	}
	return resp, out
}

func TestHealth(t *testing.T) {
	srv, _ := testServer(t)
	resp, body := doJSON(t, http.MethodGet, srv.URL+"/api/health", nil, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if body["status"] != "ok" {
		t.Fatalf("body = %v", body)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := testServer(t)
	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}
