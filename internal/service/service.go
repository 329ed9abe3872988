// Package service holds the use cases behind the HTTP API. Every
// operation takes the caller explicitly, asks package rbac whether it is
// allowed and package lifecycle how the task changes, and persists the
// result through the injected repositories.
package service

import (
	"context"
	stderrors "errors"
	"log/slog"

	"maintenance/internal/domain/errors"
	"maintenance/internal/domain/models"
)

type UserRepository interface {
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	// RegisterUser inserts user. A requested admin role is downgraded to user
	// when an admin already exists; the decision is atomic with the insert
	// and user.Role carries the stored role on return.
	RegisterUser(ctx context.Context, user *models.User) error
	UpdateUser(ctx context.Context, user *models.User) error
	DeleteUser(ctx context.Context, id string) error
	ListUsers(ctx context.Context) ([]models.User, error)
}

type TaskRepository interface {
	GetTaskByID(ctx context.Context, id string) (*models.Task, error)
	CreateTask(ctx context.Context, task *models.Task) error
	UpdateTask(ctx context.Context, task *models.Task) error
	DeleteTask(ctx context.Context, id string) error
	ListTasks(ctx context.Context, filter models.TaskFilter) ([]models.Task, int, error)
}

// Pinger is implemented by stores that can report their health.
type Pinger interface {
	Ping(ctx context.Context) error
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func isNotFound(err error) bool {
	return stderrors.Is(err, errors.ErrNotFound)
}
