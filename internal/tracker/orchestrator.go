package tracker

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"teamtrack/internal/models"
)

const notifyTimeout = 2 * time.Second

// Service coordinates task mutations: it authorizes the touched field set
// once up front, applies the patch, keeps the time journal and the running
// total coupled, and triggers assignment notifications.
type Service struct {
	repo     Repository
	rights   Rights
	notifier Notifier
	logger   *slog.Logger
	now      func() time.Time
}

// NewService wires the core against its collaborators.
func NewService(repo Repository, rights Rights, notifier Notifier, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:     repo,
		rights:   rights,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
	}
}

// TaskPatch is a partial update. Nil pointers mean "leave untouched".
// TimeSpentDelta is an increment, never an absolute value.
type TaskPatch struct {
	Title          *string `json:"title"`
	Description    *string `json:"description"`
	Priority       *int64  `json:"priority"`
	IsCompleted    *bool   `json:"isCompleted"`
	TimeSpentDelta *int64  `json:"timeSpentDelta"`
	AssignedEmail  *string `json:"assignedByEmail"`
}

// touched returns the field set the patch actually changes. A blank title
// does not count as a title change; an empty description does count, since
// clearing the description is a legitimate edit.
func (p TaskPatch) touched() []Field {
	var fields []Field
	if p.Title != nil && strings.TrimSpace(*p.Title) != "" {
		fields = append(fields, FieldTitle)
	}
	if p.Description != nil {
		fields = append(fields, FieldDescription)
	}
	if p.Priority != nil {
		fields = append(fields, FieldPriority)
	}
	if p.IsCompleted != nil {
		fields = append(fields, FieldCompleted)
	}
	if p.TimeSpentDelta != nil {
		fields = append(fields, FieldTimeSpent)
	}
	if p.AssignedEmail != nil && strings.TrimSpace(*p.AssignedEmail) != "" {
		fields = append(fields, FieldAssigned)
	}
	return fields
}

// TaskView is the external shape of a task: the running total is rendered
// as a duration string instead of raw minutes.
type TaskView struct {
	ID          int64        `json:"id"`
	ProjectID   int64        `json:"project_id"`
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Priority    *int64       `json:"priority,omitempty"`
	IsCompleted bool         `json:"isCompleted"`
	TimeSpent   string       `json:"timeSpent"`
	Author      *models.User `json:"author,omitempty"`
	Assigned    *models.User `json:"assigned,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

func viewOf(t *models.Task) *TaskView {
	return &TaskView{
		ID:          t.ID,
		ProjectID:   t.ProjectID,
		Title:       t.Title,
		Description: t.Description,
		Priority:    t.Priority,
		IsCompleted: t.IsCompleted,
		TimeSpent:   FormatMinutes(t.TimeSpent),
		Author:      t.Author,
		Assigned:    t.Assigned,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
}

// CreateTask adds a task to a project with the actor as its author.
func (s *Service) CreateTask(ctx context.Context, projectID, actorID int64, title, description string, priority *int64) (*models.Task, error) {
	if err := s.rights.Check(ctx, projectID, actorID, ActionCreate, nil); err != nil {
		return nil, err
	}

	title = strings.TrimSpace(title)
	if title == "" {
		return nil, &ValidationError{Msg: "emptyTitle"}
	}

	task := &models.Task{
		ProjectID:   projectID,
		Title:       title,
		Description: strings.TrimSpace(description),
		Priority:    priority,
		AuthorID:    actorID,
	}
	created, err := s.repo.CreateTask(ctx, task)
	if err != nil {
		return nil, err
	}
	s.logger.Info("task created",
		slog.Int64("project", projectID),
		slog.Int64("task", created.ID),
		slog.Int64("actor", actorID))
	return created, nil
}

// UpdateTask applies a partial patch to a task. Authorization covers the
// whole touched field set before anything mutates; a single denied field
// rejects the entire patch. Reassignment resolves the target email before
// any write, so a missing assignee aborts with nothing persisted. The time
// increment and its journal entry are committed as one unit after the field
// save, so the running total and the ledger never diverge from each other.
func (s *Service) UpdateTask(ctx context.Context, projectID, taskID, actorID int64, patch TaskPatch) (*TaskView, error) {
	task, err := s.loadProjectTask(ctx, projectID, taskID)
	if err != nil {
		return nil, err
	}

	fields := patch.touched()
	if err := s.rights.Check(ctx, projectID, actorID, ActionUpdate, fields); err != nil {
		return nil, err
	}

	var delta int64
	if patch.TimeSpentDelta != nil {
		delta = *patch.TimeSpentDelta
		if delta <= 0 {
			return nil, &ValidationError{Msg: "timeSpentDelta must be a positive number of minutes"}
		}
	}

	var assignee *models.User
	if patch.AssignedEmail != nil && strings.TrimSpace(*patch.AssignedEmail) != "" {
		assignee, err = s.repo.UserByEmail(ctx, strings.TrimSpace(*patch.AssignedEmail))
		if err != nil {
			if errors.Is(err, ErrUserNotFound) {
				return nil, ErrAssigneeNotFound
			}
			return nil, err
		}
	}

	if patch.Title != nil && strings.TrimSpace(*patch.Title) != "" {
		task.Title = strings.TrimSpace(*patch.Title)
	}
	if patch.Description != nil {
		task.Description = strings.TrimSpace(*patch.Description)
	}
	if patch.Priority != nil {
		p := *patch.Priority
		task.Priority = &p
	}
	if patch.IsCompleted != nil {
		task.IsCompleted = *patch.IsCompleted
	}
	if assignee != nil {
		id := assignee.ID
		task.AssignedID = &id
		task.Assigned = assignee
	}

	saved, err := s.repo.SaveTask(ctx, task)
	if err != nil {
		return nil, err
	}

	if delta > 0 {
		if _, err := s.repo.AppendTime(ctx, taskID, actorID, delta, s.now()); err != nil {
			return nil, err
		}
		saved.TimeSpent += delta
	}

	s.logger.Info("task updated",
		slog.Int64("project", projectID),
		slog.Int64("task", taskID),
		slog.Int64("actor", actorID))

	if assignee != nil {
		s.notifyAssigned(ctx, assignee.Email, taskID, actorID)
	}

	return viewOf(saved), nil
}

// notifyAssigned tells the new assignee who assigned them. Best effort: a
// failed lookup or delivery is logged and swallowed.
func (s *Service) notifyAssigned(ctx context.Context, recipient string, taskID, actorID int64) {
	actorName := "someone"
	if actor, err := s.repo.UserByID(ctx, actorID); err == nil {
		actorName = actor.Display()
	}

	nctx, cancel := context.WithTimeout(ctx, notifyTimeout)
	defer cancel()
	if err := s.notifier.NotifyAssigned(nctx, recipient, taskID, actorName); err != nil {
		s.logger.Error("assignment notification failed",
			slog.Int64("task", taskID),
			slog.String("recipient", recipient),
			slog.String("error", err.Error()))
	}
}

// loadProjectTask fetches a task and verifies it belongs to the named
// project. A task reached through the wrong project is treated as absent,
// so the rights check that follows always runs against the task's real
// project.
func (s *Service) loadProjectTask(ctx context.Context, projectID, taskID int64) (*models.Task, error) {
	task, err := s.repo.TaskByID(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.ProjectID != projectID {
		return nil, ErrTaskNotFound
	}
	return task, nil
}

// DeleteTask removes a task after an authorization check.
func (s *Service) DeleteTask(ctx context.Context, projectID, taskID, actorID int64) error {
	if _, err := s.loadProjectTask(ctx, projectID, taskID); err != nil {
		return err
	}
	if err := s.rights.Check(ctx, projectID, actorID, ActionDelete, nil); err != nil {
		return err
	}
	return s.repo.DeleteTask(ctx, taskID)
}

// readableFields is the closed set of task fields exposed through the
// field query. Anything outside the map is rejected instead of being looked
// up dynamically.
var readableFields = map[string]func(*models.Task) any{
	"title":       func(t *models.Task) any { return t.Title },
	"description": func(t *models.Task) any { return t.Description },
	"priority":    func(t *models.Task) any { return t.Priority },
	"isCompleted": func(t *models.Task) any { return t.IsCompleted },
	"timeSpent":   func(t *models.Task) any { return t.TimeSpent },
}

// GetTask returns the whole task with the accountability view substituted
// for the raw assignee reference.
func (s *Service) GetTask(ctx context.Context, projectID, taskID, actorID int64) (map[string]any, error) {
	task, err := s.loadProjectTask(ctx, projectID, taskID)
	if err != nil {
		return nil, err
	}
	if err := s.rights.Check(ctx, projectID, actorID, ActionRead, nil); err != nil {
		return nil, err
	}

	acc, err := s.ResolveAccountability(ctx, task)
	if err != nil {
		return nil, err
	}

	out := map[string]any{
		"id":          task.ID,
		"project_id":  task.ProjectID,
		"title":       task.Title,
		"description": task.Description,
		"isCompleted": task.IsCompleted,
		"timeSpent":   task.TimeSpent,
		"author":      task.Author,
		"assigned":    acc,
		"created_at":  task.CreatedAt,
		"updated_at":  task.UpdatedAt,
	}
	if task.Priority != nil {
		out["priority"] = *task.Priority
	}
	return out, nil
}

// GetTaskField returns a single readable field, or the accountability view
// for "assigned".
func (s *Service) GetTaskField(ctx context.Context, projectID, taskID, actorID int64, field string) (map[string]any, error) {
	task, err := s.loadProjectTask(ctx, projectID, taskID)
	if err != nil {
		return nil, err
	}
	if err := s.rights.Check(ctx, projectID, actorID, ActionRead, []Field{Field(field)}); err != nil {
		return nil, err
	}

	if field == string(FieldAssigned) {
		acc, err := s.ResolveAccountability(ctx, task)
		if err != nil {
			return nil, err
		}
		return map[string]any{"assigned": acc.Assigned, "members": acc.Members}, nil
	}

	accessor, ok := readableFields[field]
	if !ok {
		return nil, &ValidationError{Msg: "unknown field " + field}
	}
	return map[string]any{field: accessor(task)}, nil
}
