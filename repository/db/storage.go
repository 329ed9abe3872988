package db

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"maintenance/internal/domain/errors"
	"maintenance/internal/domain/models"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
)

const queryTimeout = 15 * time.Second

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

const (
	userColumns = `id, email, password_hash, role, created_at`
	taskColumns = `id, title, status, COALESCE(category, '') AS category, due_date, completed_at,
		owner_id, COALESCE(assignee_id, '') AS assignee_id, created_at, updated_at`
)

type Storage struct {
	conn *sqlx.DB
	log  *slog.Logger
}

func NewStorage(ctx context.Context, connStr string, log *slog.Logger) (*Storage, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	conn, err := sqlx.ConnectContext(ctx, "pgx", connStr)
	if err != nil {
		log.Error("database connection failed", "error", err)
		return nil, fmt.Errorf("%w: %v", errors.ErrDatabaseConnection, err)
	}
	conn.SetMaxOpenConns(20)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxIdleTime(5 * time.Minute)

	log.Info("database connection established")
	return &Storage{conn: conn, log: log}, nil
}

func (s *Storage) Close() error {
	return s.conn.Close()
}

func (s *Storage) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	return s.conn.PingContext(ctx)
}

func (s *Storage) CreateUser(ctx context.Context, user *models.User) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	return insertUser(ctx, s.conn, user)
}

func insertUser(ctx context.Context, exec sqlx.ExecerContext, user *models.User) error {
	const q = `INSERT INTO users (id, email, password_hash, role, created_at) VALUES ($1, $2, $3, $4, $5)`
	user.Email = models.NormalizeEmail(user.Email)
	if _, err := exec.ExecContext(ctx, q, user.ID, user.Email, user.PasswordHash, user.Role, user.CreatedAt); err != nil {
		if hasCode(err, pgUniqueViolation) {
			return errors.ErrUserAlreadyExists
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// RegisterUser inserts user and keeps a requested admin role only when no
// admin exists yet. The table lock serializes concurrent admin registrations
// so the existence check and the insert cannot interleave.
func (s *Storage) RegisterUser(ctx context.Context, user *models.User) error {
	if user.Role != models.RoleAdmin {
		return s.CreateUser(ctx, user)
	}

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	tx, err := s.conn.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin register: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `LOCK TABLE users IN SHARE ROW EXCLUSIVE MODE`); err != nil {
		return fmt.Errorf("lock users: %w", err)
	}
	var exists bool
	if err := tx.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM users WHERE role = $1)`, models.RoleAdmin); err != nil {
		return fmt.Errorf("check admin: %w", err)
	}
	if exists {
		user.Role = models.RoleUser
	}
	if err := insertUser(ctx, tx, user); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit register: %w", err)
	}
	return nil
}

func (s *Storage) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	return s.getUser(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

func (s *Storage) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.getUser(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, models.NormalizeEmail(email))
}

func (s *Storage) getUser(ctx context.Context, q string, arg string) (*models.User, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var user models.User
	if err := s.conn.GetContext(ctx, &user, q, arg); err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, errors.ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &user, nil
}

func (s *Storage) UpdateUser(ctx context.Context, user *models.User) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	const q = `UPDATE users SET email = $1, password_hash = $2, role = $3 WHERE id = $4`
	user.Email = models.NormalizeEmail(user.Email)
	res, err := s.conn.ExecContext(ctx, q, user.Email, user.PasswordHash, user.Role, user.ID)
	if err != nil {
		if hasCode(err, pgUniqueViolation) {
			return errors.ErrUserAlreadyExists
		}
		return fmt.Errorf("update user: %w", err)
	}
	return expectRow(res, errors.ErrUserNotFound)
}

// DeleteUser relies on the schema to cascade owned tasks and clear
// assignments.
func (s *Storage) DeleteUser(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	res, err := s.conn.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	return expectRow(res, errors.ErrUserNotFound)
}

func (s *Storage) ListUsers(ctx context.Context) ([]models.User, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	users := []models.User{}
	if err := s.conn.SelectContext(ctx, &users, `SELECT `+userColumns+` FROM users ORDER BY email`); err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

func (s *Storage) CountUsersByRole(ctx context.Context, role models.Role) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var n int
	if err := s.conn.GetContext(ctx, &n, `SELECT count(*) FROM users WHERE role = $1`, role); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}

func (s *Storage) CreateTask(ctx context.Context, task *models.Task) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	const q = `
		INSERT INTO tasks (id, title, status, category, due_date, completed_at, owner_id, assignee_id, created_at, updated_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7, NULLIF($8, ''), $9, $10)`
	_, err := s.conn.ExecContext(ctx, q,
		task.ID, task.Title, task.Status, task.Category, task.DueDate, task.CompletedAt,
		task.OwnerID, task.AssigneeID, task.CreatedAt, task.UpdatedAt)
	if err != nil {
		return taskWriteError("insert task", err)
	}
	s.log.Debug("task inserted", "task_id", task.ID)
	return nil
}

func (s *Storage) GetTaskByID(ctx context.Context, id string) (*models.Task, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var task models.Task
	if err := s.conn.GetContext(ctx, &task, `SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id); err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, errors.ErrTaskNotFound
		}
		return nil, fmt.Errorf("get task: %w", err)
	}
	return &task, nil
}

func (s *Storage) UpdateTask(ctx context.Context, task *models.Task) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	const q = `
		UPDATE tasks
		SET title = $1, status = $2, category = NULLIF($3, ''), due_date = $4, completed_at = $5,
			assignee_id = NULLIF($6, ''), updated_at = $7
		WHERE id = $8`
	res, err := s.conn.ExecContext(ctx, q,
		task.Title, task.Status, task.Category, task.DueDate, task.CompletedAt,
		task.AssigneeID, task.UpdatedAt, task.ID)
	if err != nil {
		return taskWriteError("update task", err)
	}
	return expectRow(res, errors.ErrTaskNotFound)
}

func (s *Storage) DeleteTask(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	res, err := s.conn.ExecContext(ctx, `DELETE FROM tasks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	return expectRow(res, errors.ErrTaskNotFound)
}

func (s *Storage) ListTasks(ctx context.Context, filter models.TaskFilter) ([]models.Task, int, error) {
	if filter.Offset < 0 || filter.Limit < 0 {
		return nil, 0, errors.ErrInvalidPagination
	}
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	where, args := buildTaskWhere(filter)

	var total int
	if err := s.conn.GetContext(ctx, &total, `SELECT count(*) FROM tasks`+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count tasks: %w", err)
	}

	q := `SELECT ` + taskColumns + ` FROM tasks` + where + buildTaskOrder(filter)
	if filter.Limit > 0 {
		args = append(args, filter.Limit, filter.Offset)
		q += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	}

	tasks := []models.Task{}
	if err := s.conn.SelectContext(ctx, &tasks, q, args...); err != nil {
		return nil, 0, fmt.Errorf("list tasks: %w", err)
	}
	return tasks, total, nil
}

func buildTaskWhere(f models.TaskFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.VisibleTo != "" {
		p := arg(f.VisibleTo)
		conds = append(conds, fmt.Sprintf("(owner_id = %s OR assignee_id = %s)", p, p))
	}
	if f.Status != "" {
		conds = append(conds, "status = "+arg(f.Status))
	}
	if f.Category != "" {
		conds = append(conds, "lower(category) = lower("+arg(f.Category)+")")
	}
	if f.AssigneeID != "" {
		conds = append(conds, "assignee_id = "+arg(f.AssigneeID))
	}
	if f.Overdue != nil {
		overdue := fmt.Sprintf("(due_date IS NOT NULL AND due_date < %s AND status <> 'Done')", arg(f.Now))
		if !*f.Overdue {
			overdue = "NOT " + overdue
		}
		conds = append(conds, overdue)
	}

	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func buildTaskOrder(f models.TaskFilter) string {
	dir := "ASC"
	if f.Order == models.OrderDesc {
		dir = "DESC"
	}

	var col string
	switch f.SortBy {
	case models.SortByDueDate:
		col = "due_date " + dir + " NULLS LAST"
	case models.SortByTitle:
		col = "lower(title) " + dir
	case models.SortByStatus:
		col = `CASE status WHEN 'Pending' THEN 0 WHEN 'Accepted' THEN 1 WHEN 'In-Progress' THEN 2 ELSE 3 END ` + dir
	default:
		col = "created_at " + dir
	}
	return " ORDER BY " + col + ", id " + dir
}

func taskWriteError(op string, err error) error {
	switch {
	case hasCode(err, pgForeignKeyViolation):
		return errors.ErrUserNotFound
	case hasCode(err, pgUniqueViolation):
		return errors.ErrConflict
	}
	return fmt.Errorf("%s: %w", op, err)
}

func hasCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	return stderrors.As(err, &pgErr) && pgErr.Code == code
}

func expectRow(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}
