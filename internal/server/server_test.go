package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"teamtrack/internal/notify"
	"teamtrack/internal/rights"
	"teamtrack/internal/storage/sqlite"
	"teamtrack/internal/tracker"
)

type env struct {
	srv   *Server
	store *sqlite.Store
	redis *redis.Client
}

func newEnv(t *testing.T) *env {
	t.Helper()

	store, err := sqlite.Open(filepath.Join(t.TempDir(), "test.db"), nil)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	core := tracker.NewService(store, rights.New(store), notify.NewQueue(client), nil)
	return &env{
		srv:   New(store, core, nil, ""),
		store: store,
		redis: client,
	}
}

func (e *env) do(t *testing.T, method, path string, actor int64, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if actor > 0 {
		req.Header.Set("X-Actor-ID", fmt.Sprintf("%d", actor))
	}
	rec := httptest.NewRecorder()
	e.srv.Engine().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return out
}

// seedTeam registers Ada (owner), Brian (member) and Cleo (viewer) on a
// fresh project and returns the project id.
func (e *env) seedTeam(t *testing.T) int64 {
	t.Helper()

	for _, u := range []map[string]string{
		{"name": "Ada", "email": "ada@example.com"},
		{"name": "Brian", "email": "brian@example.com"},
		{"name": "Cleo", "email": "cleo@example.com"},
	} {
		if rec := e.do(t, http.MethodPost, "/api/users", 0, u); rec.Code != http.StatusCreated {
			t.Fatalf("create user %v: %d %s", u, rec.Code, rec.Body.String())
		}
	}

	rec := e.do(t, http.MethodPost, "/api/projects", 1, map[string]string{"name": "Apollo"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create project: %d %s", rec.Code, rec.Body.String())
	}
	project := decode(t, rec)["project"].(map[string]any)
	projectID := int64(project["id"].(float64))

	for userID, role := range map[int64]string{2: "member", 3: "viewer"} {
		body := map[string]any{"user_id": userID, "role": role}
		if rec := e.do(t, http.MethodPost, fmt.Sprintf("/api/projects/%d/members", projectID), 1, body); rec.Code != http.StatusOK {
			t.Fatalf("add member %d: %d %s", userID, rec.Code, rec.Body.String())
		}
	}
	return projectID
}

func (e *env) createTask(t *testing.T, projectID, actor int64, title string) int64 {
	t.Helper()
	rec := e.do(t, http.MethodPost, fmt.Sprintf("/api/projects/%d/tasks", projectID), actor, map[string]string{"title": title})
	if rec.Code != http.StatusOK {
		t.Fatalf("create task: %d %s", rec.Code, rec.Body.String())
	}
	task := decode(t, rec)["task"].(map[string]any)
	return int64(task["id"].(float64))
}

func TestMissingActorRejected(t *testing.T) {
	e := newEnv(t)
	if rec := e.do(t, http.MethodGet, "/api/projects", 0, nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestCreateTask_EmptyTitle(t *testing.T) {
	e := newEnv(t)
	projectID := e.seedTeam(t)

	rec := e.do(t, http.MethodPost, fmt.Sprintf("/api/projects/%d/tasks", projectID), 1, map[string]string{"title": "   "})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

// The create / log time / bad reassignment scenario: the failed
// reassignment leaves the task untouched and sends nothing.
func TestTaskLifecycleScenario(t *testing.T) {
	e := newEnv(t)
	projectID := e.seedTeam(t)
	taskID := e.createTask(t, projectID, 1, "Fix bug")
	taskPath := fmt.Sprintf("/api/projects/%d/tasks/%d", projectID, taskID)

	// Brian logs 30 minutes.
	rec := e.do(t, http.MethodPut, taskPath, 2, map[string]any{"timeSpentDelta": 30})
	if rec.Code != http.StatusOK {
		t.Fatalf("log time: %d %s", rec.Code, rec.Body.String())
	}
	task := decode(t, rec)["task"].(map[string]any)
	if task["timeSpent"] != "30m" {
		t.Errorf("timeSpent rendered as %v, want 30m", task["timeSpent"])
	}

	journal := decode(t, e.do(t, http.MethodGet, fmt.Sprintf("/api/projects/%d/journal", projectID), 1, nil))["journal"].([]any)
	if len(journal) != 1 {
		t.Fatalf("journal entries = %d, want 1", len(journal))
	}

	// Reassignment to an unknown email fails closed.
	rec = e.do(t, http.MethodPut, taskPath, 1, map[string]any{"assignedByEmail": "nobody@example.com"})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("bad reassignment: %d %s", rec.Code, rec.Body.String())
	}

	got := decode(t, e.do(t, http.MethodGet, taskPath, 1, nil))
	if got["title"] != "Fix bug" {
		t.Errorf("title changed: %v", got["title"])
	}
	if got["timeSpent"] != float64(30) {
		t.Errorf("total changed: %v", got["timeSpent"])
	}
	if n, _ := e.redis.LLen(context.Background(), notify.QueueKey).Result(); n != 0 {
		t.Errorf("notification queued for failed reassignment")
	}

	// A real reassignment notifies exactly once.
	rec = e.do(t, http.MethodPut, taskPath, 1, map[string]any{"assignedByEmail": "brian@example.com"})
	if rec.Code != http.StatusOK {
		t.Fatalf("reassignment: %d %s", rec.Code, rec.Body.String())
	}
	if n, _ := e.redis.LLen(context.Background(), notify.QueueKey).Result(); n != 1 {
		t.Errorf("queued notifications = %d, want 1", n)
	}
}

// A denied field rejects the whole patch with nothing applied.
func TestUpdateDeniedLeavesTaskUntouched(t *testing.T) {
	e := newEnv(t)
	projectID := e.seedTeam(t)
	taskID := e.createTask(t, projectID, 1, "Fix bug")
	taskPath := fmt.Sprintf("/api/projects/%d/tasks/%d", projectID, taskID)

	// Cleo is a viewer: the patch is rejected atomically.
	rec := e.do(t, http.MethodPut, taskPath, 3, map[string]any{"title": "Hijacked", "priority": 5})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403 (%s)", rec.Code, rec.Body.String())
	}

	got := decode(t, e.do(t, http.MethodGet, taskPath, 1, nil))
	if got["title"] != "Fix bug" {
		t.Errorf("title = %v", got["title"])
	}
	if got["description"] != "" {
		t.Errorf("description = %v", got["description"])
	}
	if _, present := got["priority"]; present {
		t.Errorf("priority was set: %v", got["priority"])
	}
}

// Owning an unrelated project grants nothing on another project's tasks:
// addressing a foreign task through one's own project id is a 404 and the
// task is untouched.
func TestCrossProjectAccessDenied(t *testing.T) {
	e := newEnv(t)
	projectID := e.seedTeam(t)
	taskID := e.createTask(t, projectID, 1, "Fix bug")

	// Dana is nobody on Apollo but owns a fresh project of her own.
	if rec := e.do(t, http.MethodPost, "/api/users", 0, map[string]string{"name": "Dana", "email": "dana@example.com"}); rec.Code != http.StatusCreated {
		t.Fatalf("create user: %d %s", rec.Code, rec.Body.String())
	}
	rec := e.do(t, http.MethodPost, "/api/projects", 4, map[string]string{"name": "Dana's own"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create project: %d %s", rec.Code, rec.Body.String())
	}
	ownProject := int64(decode(t, rec)["project"].(map[string]any)["id"].(float64))

	wrongPath := fmt.Sprintf("/api/projects/%d/tasks/%d", ownProject, taskID)
	if rec := e.do(t, http.MethodPut, wrongPath, 4, map[string]any{"title": "Hijacked"}); rec.Code != http.StatusNotFound {
		t.Errorf("update via own project: %d, want 404 (%s)", rec.Code, rec.Body.String())
	}
	if rec := e.do(t, http.MethodGet, wrongPath, 4, nil); rec.Code != http.StatusNotFound {
		t.Errorf("read via own project: %d, want 404", rec.Code)
	}
	if rec := e.do(t, http.MethodDelete, wrongPath, 4, nil); rec.Code != http.StatusNotFound {
		t.Errorf("delete via own project: %d, want 404", rec.Code)
	}

	// The task is intact under its real project.
	got := decode(t, e.do(t, http.MethodGet, fmt.Sprintf("/api/projects/%d/tasks/%d", projectID, taskID), 1, nil))
	if got["title"] != "Fix bug" {
		t.Errorf("title = %v", got["title"])
	}
}

func TestGetTaskFieldAndAccountability(t *testing.T) {
	e := newEnv(t)
	projectID := e.seedTeam(t)
	taskID := e.createTask(t, projectID, 1, "Fix bug")
	taskPath := fmt.Sprintf("/api/projects/%d/tasks/%d", projectID, taskID)

	out := decode(t, e.do(t, http.MethodGet, taskPath+"?field=title", 2, nil))
	if out["title"] != "Fix bug" {
		t.Errorf("field read = %v", out)
	}

	rec := e.do(t, http.MethodGet, taskPath+"?field=version", 2, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unlisted field read: %d", rec.Code)
	}

	out = decode(t, e.do(t, http.MethodGet, taskPath+"?field=assigned", 2, nil))
	if out["assigned"] != "Ada (ada@example.com)" {
		t.Errorf("accountable = %v", out["assigned"])
	}
	members := out["members"].([]any)
	if len(members) != 3 || members[0] != "Ada (ada@example.com)" {
		t.Errorf("members = %v", members)
	}
}

func TestJournalDisclosesNoIdentities(t *testing.T) {
	e := newEnv(t)
	projectID := e.seedTeam(t)
	taskID := e.createTask(t, projectID, 1, "Fix bug")
	taskPath := fmt.Sprintf("/api/projects/%d/tasks/%d", projectID, taskID)

	if rec := e.do(t, http.MethodPut, taskPath, 2, map[string]any{"timeSpentDelta": 30}); rec.Code != http.StatusOK {
		t.Fatalf("log time: %d", rec.Code)
	}

	rec := e.do(t, http.MethodGet, fmt.Sprintf("/api/projects/%d/journal", projectID), 1, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("journal: %d %s", rec.Code, rec.Body.String())
	}
	body := rec.Body.String()
	for _, key := range []string{`"id"`, `"task_id"`, `"user_id"`} {
		if strings.Contains(body, key) {
			t.Errorf("journal leaks %s: %s", key, body)
		}
	}
}

func TestDeleteTaskNeedsOwner(t *testing.T) {
	e := newEnv(t)
	projectID := e.seedTeam(t)
	taskID := e.createTask(t, projectID, 1, "Fix bug")
	taskPath := fmt.Sprintf("/api/projects/%d/tasks/%d", projectID, taskID)

	if rec := e.do(t, http.MethodDelete, taskPath, 2, nil); rec.Code != http.StatusForbidden {
		t.Errorf("member delete: %d, want 403", rec.Code)
	}
	if rec := e.do(t, http.MethodDelete, taskPath, 1, nil); rec.Code != http.StatusOK {
		t.Errorf("owner delete: %d, want 200", rec.Code)
	}
	if rec := e.do(t, http.MethodGet, taskPath, 1, nil); rec.Code != http.StatusNotFound {
		t.Errorf("deleted task still readable: %d", rec.Code)
	}
}
