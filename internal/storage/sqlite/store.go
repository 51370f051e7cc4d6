package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"teamtrack/internal/models"
	"teamtrack/internal/tracker"
)

// Store wraps access to the SQLite database and implements the
// tracker.Repository contract plus the thin CRUD the HTTP layer needs.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open initializes a new SQLite store and runs the required migrations.
func Open(dbPath string, logger *slog.Logger) (*Store, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("empty database path")
	}

	if logger == nil {
		logger = slog.Default()
	}

	if err := ensureDir(dbPath); err != nil {
		return nil, err
	}

	conn, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_busy_timeout=5000&_foreign_keys=ON", dbPath))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	conn.SetMaxOpenConns(1)
	conn.SetConnMaxLifetime(0)

	s := &Store{db: conn, logger: logger}
	if err := s.migrate(); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return s, nil
}

// Close releases the database resources.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func ensureDir(dbPath string) error {
	dir := filepath.Dir(dbPath)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            name TEXT NOT NULL,
            email TEXT NOT NULL UNIQUE
        );`,
		`CREATE TABLE IF NOT EXISTS projects (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            name TEXT NOT NULL,
            created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
            updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
        );`,
		`CREATE TABLE IF NOT EXISTS project_members (
            project_id INTEGER NOT NULL,
            user_id INTEGER NOT NULL,
            role TEXT NOT NULL DEFAULT 'member',
            position INTEGER NOT NULL DEFAULT 0,
            PRIMARY KEY(project_id, user_id),
            FOREIGN KEY(project_id) REFERENCES projects(id) ON DELETE CASCADE,
            FOREIGN KEY(user_id) REFERENCES users(id) ON DELETE CASCADE
        );`,
		`CREATE TABLE IF NOT EXISTS tasks (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            project_id INTEGER NOT NULL,
            author_id INTEGER NOT NULL,
            assigned_id INTEGER,
            title TEXT NOT NULL,
            description TEXT NOT NULL DEFAULT '',
            priority INTEGER,
            is_completed INTEGER NOT NULL DEFAULT 0,
            time_spent INTEGER NOT NULL DEFAULT 0 CHECK(time_spent >= 0),
            version INTEGER NOT NULL DEFAULT 1,
            created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
            updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
            FOREIGN KEY(project_id) REFERENCES projects(id) ON DELETE CASCADE,
            FOREIGN KEY(author_id) REFERENCES users(id),
            FOREIGN KEY(assigned_id) REFERENCES users(id)
        );`,
		`CREATE TABLE IF NOT EXISTS time_journal (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            task_id INTEGER NOT NULL,
            user_id INTEGER NOT NULL,
            minutes INTEGER NOT NULL CHECK(minutes > 0),
            logged_at DATETIME NOT NULL,
            FOREIGN KEY(task_id) REFERENCES tasks(id) ON DELETE CASCADE,
            FOREIGN KEY(user_id) REFERENCES users(id)
        );`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_project ON tasks(project_id);`,
		`CREATE INDEX IF NOT EXISTS idx_journal_task ON time_journal(task_id);`,
		`CREATE TRIGGER IF NOT EXISTS trg_projects_updated
            AFTER UPDATE ON projects
            FOR EACH ROW BEGIN
                UPDATE projects SET updated_at = CURRENT_TIMESTAMP WHERE id = OLD.id;
            END;`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// CreateUser registers a user. Email must be unique.
func (s *Store) CreateUser(ctx context.Context, name, email string) (*models.User, error) {
	name = strings.TrimSpace(name)
	email = strings.TrimSpace(email)
	if name == "" || email == "" {
		return nil, &tracker.ValidationError{Msg: "user name and email must not be empty"}
	}

	res, err := s.db.ExecContext(ctx, `INSERT INTO users(name, email) VALUES(?, ?)`, name, email)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return nil, &tracker.ValidationError{Msg: "email already registered"}
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("user id: %w", err)
	}
	return s.UserByID(ctx, id)
}

// ListUsers returns all users in registration order.
func (s *Store) ListUsers(ctx context.Context) ([]models.User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, email FROM users ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.Name, &u.Email); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// UserByID fetches a single user.
func (s *Store) UserByID(ctx context.Context, id int64) (*models.User, error) {
	var u models.User
	err := s.db.QueryRowContext(ctx, `SELECT id, name, email FROM users WHERE id = ?`, id).
		Scan(&u.ID, &u.Name, &u.Email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, tracker.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

// UserByEmail resolves the human-facing assignment key to a user.
func (s *Store) UserByEmail(ctx context.Context, email string) (*models.User, error) {
	var u models.User
	err := s.db.QueryRowContext(ctx, `SELECT id, name, email FROM users WHERE email = ?`, email).
		Scan(&u.ID, &u.Name, &u.Email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, tracker.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return &u, nil
}

// CreateProject persists a project and enrolls the creator as its owner.
func (s *Store) CreateProject(ctx context.Context, name string, ownerID int64) (*models.Project, error) {
	if strings.TrimSpace(name) == "" {
		return nil, &tracker.ValidationError{Msg: "project name must not be empty"}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `INSERT INTO projects(name) VALUES(?)`, strings.TrimSpace(name))
	if err != nil {
		return nil, fmt.Errorf("insert project: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("project id: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO project_members(project_id, user_id, role, position) VALUES(?, ?, ?, 0)`, id, ownerID, models.RoleOwner); err != nil {
		return nil, fmt.Errorf("insert owner membership: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit project: %w", err)
	}
	return s.ProjectByID(ctx, id)
}

// ListProjects retrieves all projects ordered by creation date.
func (s *Store) ListProjects(ctx context.Context) ([]models.Project, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, created_at, updated_at FROM projects ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	var projects []models.Project
	for rows.Next() {
		var p models.Project
		if err := rows.Scan(&p.ID, &p.Name, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

// ProjectByID fetches a single project by id.
func (s *Store) ProjectByID(ctx context.Context, id int64) (*models.Project, error) {
	var p models.Project
	err := s.db.QueryRowContext(ctx, `SELECT id, name, created_at, updated_at FROM projects WHERE id = ?`, id).
		Scan(&p.ID, &p.Name, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, tracker.ErrProjectNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get project: %w", err)
	}
	return &p, nil
}

// AddMember enrolls a user into a project at the end of the membership
// order.
func (s *Store) AddMember(ctx context.Context, projectID, userID int64, role string) error {
	if _, ok := models.ValidRoles[role]; !ok {
		return &tracker.ValidationError{Msg: "unknown role " + role}
	}
	if _, err := s.ProjectByID(ctx, projectID); err != nil {
		return err
	}
	if _, err := s.UserByID(ctx, userID); err != nil {
		return err
	}

	pos, err := s.nextMemberPosition(ctx, projectID)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO project_members(project_id, user_id, role, position) VALUES(?, ?, ?, ?)`, projectID, userID, role, pos)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") || strings.Contains(err.Error(), "PRIMARY") {
			return &tracker.ValidationError{Msg: "user is already a member"}
		}
		return fmt.Errorf("insert membership: %w", err)
	}
	return nil
}

// ProjectMembers returns members in the project's stored membership order.
func (s *Store) ProjectMembers(ctx context.Context, projectID int64) ([]models.Member, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT u.id, u.name, u.email, pm.role, pm.position
        FROM project_members pm JOIN users u ON u.id = pm.user_id
        WHERE pm.project_id = ? ORDER BY pm.position, u.id`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	var members []models.Member
	for rows.Next() {
		var m models.Member
		if err := rows.Scan(&m.User.ID, &m.User.Name, &m.User.Email, &m.Role, &m.Position); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

func (s *Store) nextMemberPosition(ctx context.Context, projectID int64) (int64, error) {
	var position sql.NullInt64
	err := s.db.QueryRowContext(ctx, `SELECT MAX(position) FROM project_members WHERE project_id = ?`, projectID).Scan(&position)
	if err != nil {
		return 0, fmt.Errorf("select member position: %w", err)
	}
	if position.Valid {
		return position.Int64 + 1, nil
	}
	return 0, nil
}

const taskColumns = `t.id, t.project_id, t.author_id, t.assigned_id, t.title, t.description,
    t.priority, t.is_completed, t.time_spent, t.version, t.created_at, t.updated_at,
    a.name, a.email, u.name, u.email`

const taskJoins = `FROM tasks t
    JOIN users a ON a.id = t.author_id
    LEFT JOIN users u ON u.id = t.assigned_id`

func scanTask(row interface{ Scan(dest ...any) error }) (*models.Task, error) {
	var t models.Task
	var priority sql.NullInt64
	var assignedID sql.NullInt64
	var authorName, authorEmail string
	var assignedName, assignedEmail sql.NullString

	err := row.Scan(&t.ID, &t.ProjectID, &t.AuthorID, &assignedID, &t.Title, &t.Description,
		&priority, &t.IsCompleted, &t.TimeSpent, &t.Version, &t.CreatedAt, &t.UpdatedAt,
		&authorName, &authorEmail, &assignedName, &assignedEmail)
	if err != nil {
		return nil, err
	}

	if priority.Valid {
		t.Priority = &priority.Int64
	}
	t.Author = &models.User{ID: t.AuthorID, Name: authorName, Email: authorEmail}
	if assignedID.Valid {
		t.AssignedID = &assignedID.Int64
		t.Assigned = &models.User{ID: assignedID.Int64, Name: assignedName.String, Email: assignedEmail.String}
	}
	return &t, nil
}

// TaskByID retrieves a task with its author and assignee references
// expanded.
func (s *Store) TaskByID(ctx context.Context, id int64) (*models.Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` `+taskJoins+` WHERE t.id = ?`, id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, tracker.ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return t, nil
}

// ListTasks returns a project's tasks in creation order.
func (s *Store) ListTasks(ctx context.Context, projectID int64) ([]models.Task, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+taskColumns+` `+taskJoins+` WHERE t.project_id = ? ORDER BY t.id`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []models.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, *t)
	}
	return tasks, rows.Err()
}

// CreateTask inserts a new task for a project. The foreign key on
// project_id makes the project's task set and the task row one write.
func (s *Store) CreateTask(ctx context.Context, t *models.Task) (*models.Task, error) {
	if strings.TrimSpace(t.Title) == "" {
		return nil, &tracker.ValidationError{Msg: "task title must not be empty"}
	}
	if _, err := s.ProjectByID(ctx, t.ProjectID); err != nil {
		return nil, err
	}

	res, err := s.db.ExecContext(ctx, `INSERT INTO tasks(project_id, author_id, title, description, priority) VALUES(?, ?, ?, ?, ?)`,
		t.ProjectID, t.AuthorID, strings.TrimSpace(t.Title), strings.TrimSpace(t.Description), nullableInt(t.Priority))
	if err != nil {
		return nil, fmt.Errorf("insert task: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("task id: %w", err)
	}
	return s.TaskByID(ctx, id)
}

// SaveTask persists the mutable simple fields under an optimistic version
// check. It leaves time_spent alone: the running total moves only through
// AppendTime.
func (s *Store) SaveTask(ctx context.Context, t *models.Task) (*models.Task, error) {
	if strings.TrimSpace(t.Title) == "" {
		return nil, &tracker.ValidationError{Msg: "task title must not be empty"}
	}

	res, err := s.db.ExecContext(ctx, `UPDATE tasks
        SET title = ?, description = ?, priority = ?, is_completed = ?, assigned_id = ?,
            version = version + 1, updated_at = CURRENT_TIMESTAMP
        WHERE id = ? AND version = ?`,
		strings.TrimSpace(t.Title), t.Description, nullableInt(t.Priority), t.IsCompleted,
		nullableInt(t.AssignedID), t.ID, t.Version)
	if err != nil {
		return nil, fmt.Errorf("update task: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		if _, err := s.TaskByID(ctx, t.ID); err != nil {
			return nil, err
		}
		return nil, tracker.ErrVersionConflict
	}
	return s.TaskByID(ctx, t.ID)
}

// DeleteTask removes a task by id. Its journal entries go with it.
func (s *Store) DeleteTask(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return tracker.ErrTaskNotFound
	}
	return nil
}

// AppendTime records logged minutes in the journal and moves the task's
// running total in the same transaction. The increment happens in SQL, so
// concurrent appends never lose updates to a stale snapshot.
func (s *Store) AppendTime(ctx context.Context, taskID, userID, minutes int64, at time.Time) (*models.TimeEntry, error) {
	if minutes <= 0 {
		return nil, &tracker.ValidationError{Msg: "logged minutes must be positive"}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `UPDATE tasks SET time_spent = time_spent + ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, minutes, taskID)
	if err != nil {
		return nil, fmt.Errorf("increment time spent: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, tracker.ErrTaskNotFound
	}

	ins, err := tx.ExecContext(ctx, `INSERT INTO time_journal(task_id, user_id, minutes, logged_at) VALUES(?, ?, ?, ?)`,
		taskID, userID, minutes, at.UTC())
	if err != nil {
		return nil, fmt.Errorf("insert journal entry: %w", err)
	}
	entryID, err := ins.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("journal entry id: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit time append: %w", err)
	}

	return &models.TimeEntry{ID: entryID, TaskID: taskID, UserID: userID, Minutes: minutes, LoggedAt: at.UTC()}, nil
}

// JournalForProject returns the project ledger with task and user
// references expanded to the disclosed projection only. Order follows entry
// creation, so repeated reads of an unchanged ledger are identical.
func (s *Store) JournalForProject(ctx context.Context, projectID int64) ([]tracker.JournalRow, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT t.title, t.is_completed, t.time_spent, u.name, u.email, j.minutes, j.logged_at
        FROM time_journal j
        JOIN tasks t ON t.id = j.task_id
        JOIN users u ON u.id = j.user_id
        WHERE t.project_id = ?
        ORDER BY j.logged_at, j.id`, projectID)
	if err != nil {
		return nil, fmt.Errorf("project journal: %w", err)
	}
	defer rows.Close()

	var out []tracker.JournalRow
	for rows.Next() {
		var r tracker.JournalRow
		if err := rows.Scan(&r.Task.Title, &r.Task.IsCompleted, &r.Task.TimeSpent, &r.User.Name, &r.User.Email, &r.TimeSpent, &r.Date); err != nil {
			return nil, fmt.Errorf("scan journal row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func nullableInt(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}
