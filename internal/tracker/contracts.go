package tracker

import (
	"context"
	"time"

	"teamtrack/internal/models"
)

// Action names an operation checked against the rights oracle.
type Action string

const (
	ActionRead   Action = "read"
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Field names a task field a patch may touch. The set is closed: anything
// outside it is rejected rather than passed through.
type Field string

const (
	FieldTitle       Field = "title"
	FieldDescription Field = "description"
	FieldPriority    Field = "priority"
	FieldCompleted   Field = "isCompleted"
	FieldTimeSpent   Field = "timeSpent"
	FieldAssigned    Field = "assigned"
)

// Repository is the persistence contract the core consumes. Implementations
// must expand author/assignee references on TaskByID and keep AppendTime
// atomic: the journal insert and the running-total increment succeed or fail
// together.
type Repository interface {
	TaskByID(ctx context.Context, id int64) (*models.Task, error)
	ProjectByID(ctx context.Context, id int64) (*models.Project, error)
	ProjectMembers(ctx context.Context, projectID int64) ([]models.Member, error)
	UserByID(ctx context.Context, id int64) (*models.User, error)
	UserByEmail(ctx context.Context, email string) (*models.User, error)
	CreateTask(ctx context.Context, t *models.Task) (*models.Task, error)
	SaveTask(ctx context.Context, t *models.Task) (*models.Task, error)
	DeleteTask(ctx context.Context, id int64) error
	AppendTime(ctx context.Context, taskID, userID, minutes int64, at time.Time) (*models.TimeEntry, error)
	JournalForProject(ctx context.Context, projectID int64) ([]JournalRow, error)
}

// Rights is the policy decision point. A nil return allows the action; a
// denial is a *ForbiddenError carrying the oracle's reason.
type Rights interface {
	Check(ctx context.Context, projectID, actorID int64, action Action, fields []Field) error
}

// Notifier is the fire-and-forget side channel for assignment events.
// Failures are logged by the caller and never fail the operation.
type Notifier interface {
	NotifyAssigned(ctx context.Context, recipientEmail string, taskID int64, actorName string) error
}
