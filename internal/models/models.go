package models

import "time"

// User is a registered account. Email is unique and doubles as the
// human-facing key when assigning tasks.
type User struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Display renders the user the way project views show people.
func (u User) Display() string {
	return u.Name + " (" + u.Email + ")"
}

// Member ties a user to a project with a role. Position preserves the
// project-defined membership order.
type Member struct {
	User     User   `json:"user"`
	Role     string `json:"role"`
	Position int64  `json:"-"`
}

// Roles supported by project membership.
const (
	RoleOwner  = "owner"
	RoleMember = "member"
	RoleViewer = "viewer"
)

// ValidRoles enumerates the roles a member may hold.
var ValidRoles = map[string]struct{}{
	RoleOwner:  {},
	RoleMember: {},
	RoleViewer: {},
}

// Project groups tasks and members.
type Project struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Task is a unit of work inside a project. Author and project are fixed at
// creation; everything else changes only through the update pipeline.
// TimeSpent is the accumulated total in minutes, derived from the journal.
type Task struct {
	ID          int64     `json:"id"`
	ProjectID   int64     `json:"project_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Priority    *int64    `json:"priority,omitempty"`
	IsCompleted bool      `json:"isCompleted"`
	TimeSpent   int64     `json:"timeSpent"`
	AuthorID    int64     `json:"author_id"`
	AssignedID  *int64    `json:"assigned_id,omitempty"`
	Version     int64     `json:"-"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	// Expanded references, filled when the task is loaded with refs.
	Author   *User `json:"author,omitempty"`
	Assigned *User `json:"assigned,omitempty"`
}

// TimeEntry is one append-only journal record of time logged against a task.
type TimeEntry struct {
	ID       int64     `json:"id"`
	TaskID   int64     `json:"task_id"`
	UserID   int64     `json:"user_id"`
	Minutes  int64     `json:"minutes"`
	LoggedAt time.Time `json:"logged_at"`
}
