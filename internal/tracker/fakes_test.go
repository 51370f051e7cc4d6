package tracker

import (
	"context"
	"fmt"
	"time"

	"teamtrack/internal/models"
)

// fakeRepo is an in-memory Repository. TaskByID hands out copies so tests
// can tell applied mutations from accidental aliasing.
type fakeRepo struct {
	tasks    map[int64]*models.Task
	users    map[int64]*models.User
	projects map[int64]*models.Project
	members  map[int64][]models.Member

	journal     []models.TimeEntry
	journalView []JournalRow

	nextEntryID int64
	saveErr     error
	appendErr   error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		tasks:       map[int64]*models.Task{},
		users:       map[int64]*models.User{},
		projects:    map[int64]*models.Project{},
		members:     map[int64][]models.Member{},
		nextEntryID: 1,
	}
}

func (f *fakeRepo) addUser(u models.User) *models.User {
	f.users[u.ID] = &u
	return &u
}

func (f *fakeRepo) addTask(t models.Task) *models.Task {
	if t.Version == 0 {
		t.Version = 1
	}
	if t.Author == nil {
		t.Author = f.users[t.AuthorID]
	}
	f.tasks[t.ID] = &t
	return &t
}

func (f *fakeRepo) TaskByID(_ context.Context, id int64) (*models.Task, error) {
	t, ok := f.tasks[id]
	if !ok {
		return nil, ErrTaskNotFound
	}
	cp := *t
	return &cp, nil
}

func (f *fakeRepo) ProjectByID(_ context.Context, id int64) (*models.Project, error) {
	p, ok := f.projects[id]
	if !ok {
		return nil, ErrProjectNotFound
	}
	return p, nil
}

func (f *fakeRepo) ProjectMembers(_ context.Context, projectID int64) ([]models.Member, error) {
	return f.members[projectID], nil
}

func (f *fakeRepo) UserByID(_ context.Context, id int64) (*models.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return u, nil
}

func (f *fakeRepo) UserByEmail(_ context.Context, email string) (*models.User, error) {
	for _, u := range f.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, ErrUserNotFound
}

func (f *fakeRepo) CreateTask(_ context.Context, t *models.Task) (*models.Task, error) {
	if _, ok := f.projects[t.ProjectID]; !ok {
		return nil, ErrProjectNotFound
	}
	t.ID = int64(len(f.tasks) + 1)
	t.Version = 1
	t.Author = f.users[t.AuthorID]
	cp := *t
	f.tasks[t.ID] = &cp
	return t, nil
}

func (f *fakeRepo) SaveTask(_ context.Context, t *models.Task) (*models.Task, error) {
	if f.saveErr != nil {
		return nil, f.saveErr
	}
	stored, ok := f.tasks[t.ID]
	if !ok {
		return nil, ErrTaskNotFound
	}
	if stored.Version != t.Version {
		return nil, ErrVersionConflict
	}
	cp := *t
	cp.Version++
	cp.TimeSpent = stored.TimeSpent
	f.tasks[t.ID] = &cp
	out := cp
	return &out, nil
}

func (f *fakeRepo) DeleteTask(_ context.Context, id int64) error {
	if _, ok := f.tasks[id]; !ok {
		return ErrTaskNotFound
	}
	delete(f.tasks, id)
	return nil
}

func (f *fakeRepo) AppendTime(_ context.Context, taskID, userID, minutes int64, at time.Time) (*models.TimeEntry, error) {
	if f.appendErr != nil {
		return nil, f.appendErr
	}
	t, ok := f.tasks[taskID]
	if !ok {
		return nil, ErrTaskNotFound
	}
	t.TimeSpent += minutes
	entry := models.TimeEntry{ID: f.nextEntryID, TaskID: taskID, UserID: userID, Minutes: minutes, LoggedAt: at}
	f.nextEntryID++
	f.journal = append(f.journal, entry)
	return &entry, nil
}

func (f *fakeRepo) JournalForProject(_ context.Context, _ int64) ([]JournalRow, error) {
	out := make([]JournalRow, len(f.journalView))
	copy(out, f.journalView)
	return out, nil
}

// allowAll approves everything.
type allowAll struct{}

func (allowAll) Check(context.Context, int64, int64, Action, []Field) error { return nil }

// denyField refuses any update whose touched set includes the named field.
type denyField struct {
	field Field
}

func (d denyField) Check(_ context.Context, _, _ int64, _ Action, fields []Field) error {
	for _, f := range fields {
		if f == d.field {
			return &ForbiddenError{Reason: fmt.Sprintf("field %s is off limits", f)}
		}
	}
	return nil
}

// denyAll refuses everything.
type denyAll struct{}

func (denyAll) Check(context.Context, int64, int64, Action, []Field) error {
	return &ForbiddenError{Reason: "nothing is allowed"}
}

// recordingNotifier captures NotifyAssigned calls.
type recordingNotifier struct {
	calls []notifyCall
	err   error
}

type notifyCall struct {
	recipient string
	taskID    int64
	actor     string
}

func (n *recordingNotifier) NotifyAssigned(_ context.Context, recipient string, taskID int64, actor string) error {
	n.calls = append(n.calls, notifyCall{recipient: recipient, taskID: taskID, actor: actor})
	return n.err
}

func strPtr(s string) *string { return &s }
func intPtr(v int64) *int64   { return &v }
func boolPtr(b bool) *bool    { return &b }
