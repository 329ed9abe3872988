package models

import (
	"strings"
	"time"

	"maintenance/internal/domain/errors"
)

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// ParseRole accepts exactly "user" or "admin".
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", errors.ErrInvalidRole
	}
	return r, nil
}

type TaskStatus string

const (
	StatusPending    TaskStatus = "Pending"
	StatusAccepted   TaskStatus = "Accepted"
	StatusInProgress TaskStatus = "In-Progress"
	StatusDone       TaskStatus = "Done"
)

func (s TaskStatus) Valid() bool {
	switch s {
	case StatusPending, StatusAccepted, StatusInProgress, StatusDone:
		return true
	}
	return false
}

// ParseTaskStatus accepts the four stored statuses only. "Overdue" is a
// derived flag, never a status.
func ParseTaskStatus(s string) (TaskStatus, error) {
	st := TaskStatus(s)
	if !st.Valid() {
		return "", errors.ErrInvalidStatus
	}
	return st, nil
}

// NormalizeEmail trims and lower-cases an address before lookup or storage.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

type User struct {
	ID           string    `json:"id" db:"id"`
	Email        string    `json:"email" db:"email"`
	PasswordHash string    `json:"-" db:"password_hash"`
	Role         Role      `json:"role" db:"role"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
}

// Caller is the authenticated identity behind a request.
type Caller struct {
	ID    string
	Email string
	Role  Role
}

func (c *Caller) IsAdmin() bool {
	return c != nil && c.Role == RoleAdmin
}

type Task struct {
	ID          string     `json:"id" db:"id"`
	Title       string     `json:"title" db:"title"`
	Status      TaskStatus `json:"status" db:"status"`
	Category    string     `json:"category,omitempty" db:"category"`
	DueDate     *time.Time `json:"dueDate,omitempty" db:"due_date"`
	CompletedAt *time.Time `json:"completedAt,omitempty" db:"completed_at"`
	OwnerID     string     `json:"ownerId" db:"owner_id"`
	AssigneeID  string     `json:"assigneeId,omitempty" db:"assignee_id"`
	CreatedAt   time.Time  `json:"createdAt" db:"created_at"`
	UpdatedAt   time.Time  `json:"updatedAt" db:"updated_at"`
}

// TaskView is a task as returned to clients, with derived fields filled in.
type TaskView struct {
	Task
	IsOverdue bool `json:"isOverdue"`
}

type TaskPage struct {
	Tasks []TaskView `json:"tasks"`
	Total int        `json:"total"`
	Page  int        `json:"page"`
	Limit int        `json:"limit"`
}

type TaskSortField string

const (
	SortByCreatedAt TaskSortField = "createdAt"
	SortByDueDate   TaskSortField = "dueDate"
	SortByTitle     TaskSortField = "title"
	SortByStatus    TaskSortField = "status"
)

func (f TaskSortField) Valid() bool {
	switch f {
	case SortByCreatedAt, SortByDueDate, SortByTitle, SortByStatus:
		return true
	}
	return false
}

type SortOrder string

const (
	OrderAsc  SortOrder = "asc"
	OrderDesc SortOrder = "desc"
)

// TaskFilter is the storage-level query. Zero values mean "no constraint".
type TaskFilter struct {
	// VisibleTo restricts results to tasks owned by or assigned to this user.
	VisibleTo  string
	Status     TaskStatus
	Category   string
	AssigneeID string
	Overdue    *bool
	Now        time.Time
	SortBy     TaskSortField
	Order      SortOrder
	Limit      int
	Offset     int
}

// TaskQuery is the client-facing listing request before validation.
type TaskQuery struct {
	Status     string `form:"status"`
	Category   string `form:"category"`
	AssigneeID string `form:"assigneeId"`
	Overdue    string `form:"overdue"`
	Page       int    `form:"page"`
	Limit      int    `form:"limit"`
	Sort       string `form:"sort"`
	Order      string `form:"order"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,min=6,max=72"`
	Role     string `json:"role"`
}

type UpdateRoleRequest struct {
	Role string `json:"role" validate:"required"`
}

type CreateTaskRequest struct {
	Title    string     `json:"title" validate:"required,max=200"`
	Status   string     `json:"status"`
	Category string     `json:"category" validate:"max=100"`
	DueDate  *time.Time `json:"dueDate"`
}

// UpdateTaskRequest is a partial update; nil fields are left unchanged.
type UpdateTaskRequest struct {
	Title    *string    `json:"title" validate:"omitempty,max=200"`
	Status   *string    `json:"status"`
	Category *string    `json:"category" validate:"omitempty,max=100"`
	DueDate  *time.Time `json:"dueDate"`
}

type AssignTaskRequest struct {
	AssigneeID    string `json:"assigneeId"`
	AssigneeEmail string `json:"assigneeEmail" validate:"omitempty,email"`
}
