package service

import (
	"context"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"maintenance/internal/clock"
	"maintenance/internal/domain/errors"
	"maintenance/internal/domain/models"
	"maintenance/internal/lifecycle"
	"maintenance/internal/rbac"

	"github.com/google/uuid"
)

const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
)

type Tasks struct {
	tasks TaskRepository
	users UserRepository
	clock clock.Clock
	log   *slog.Logger
}

func NewTasks(tasks TaskRepository, users UserRepository, clk clock.Clock, log *slog.Logger) *Tasks {
	if clk == nil {
		clk = clock.Real()
	}
	if log == nil {
		log = discardLogger()
	}
	return &Tasks{tasks: tasks, users: users, clock: clk, log: log}
}

func (s *Tasks) Create(ctx context.Context, caller *models.Caller, req models.CreateTaskRequest) (models.TaskView, error) {
	if err := rbac.CheckTask(caller, rbac.CreateTask, nil); err != nil {
		return models.TaskView{}, err
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		return models.TaskView{}, errors.ErrInvalidTitle
	}
	status := models.StatusPending
	if req.Status != "" {
		parsed, err := models.ParseTaskStatus(req.Status)
		if err != nil {
			return models.TaskView{}, err
		}
		status = parsed
	}

	now := s.clock.Now()
	task := &models.Task{
		ID:        uuid.New().String(),
		Title:     title,
		Category:  strings.TrimSpace(req.Category),
		DueDate:   utc(req.DueDate),
		OwnerID:   caller.ID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := lifecycle.SetStatus(task, status, now); err != nil {
		return models.TaskView{}, err
	}

	if err := s.tasks.CreateTask(ctx, task); err != nil {
		return models.TaskView{}, err
	}
	s.log.Info("task created", "task_id", task.ID, "owner_id", task.OwnerID)
	return lifecycle.View(*task, now), nil
}

func (s *Tasks) Get(ctx context.Context, caller *models.Caller, id string) (models.TaskView, error) {
	task, err := s.authorize(ctx, caller, rbac.ReadTask, id)
	if err != nil {
		return models.TaskView{}, err
	}
	return lifecycle.View(*task, s.clock.Now()), nil
}

func (s *Tasks) Update(ctx context.Context, caller *models.Caller, id string, req models.UpdateTaskRequest) (models.TaskView, error) {
	task, err := s.authorize(ctx, caller, rbac.UpdateTask, id)
	if err != nil {
		return models.TaskView{}, err
	}
	if req.Title == nil && req.Status == nil && req.Category == nil && req.DueDate == nil {
		return models.TaskView{}, errors.ErrValidationFailed
	}

	now := s.clock.Now()
	if req.Title != nil {
		title := strings.TrimSpace(*req.Title)
		if title == "" {
			return models.TaskView{}, errors.ErrInvalidTitle
		}
		task.Title = title
	}
	if req.Category != nil {
		task.Category = strings.TrimSpace(*req.Category)
	}
	if req.DueDate != nil {
		task.DueDate = utc(req.DueDate)
	}
	if req.Status != nil {
		status, err := models.ParseTaskStatus(*req.Status)
		if err != nil {
			return models.TaskView{}, err
		}
		if err := lifecycle.SetStatus(task, status, now); err != nil {
			return models.TaskView{}, err
		}
	}
	task.UpdatedAt = now

	if err := s.tasks.UpdateTask(ctx, task); err != nil {
		return models.TaskView{}, err
	}
	return lifecycle.View(*task, now), nil
}

func (s *Tasks) Delete(ctx context.Context, caller *models.Caller, id string) error {
	task, err := s.authorize(ctx, caller, rbac.DeleteTask, id)
	if err != nil {
		return err
	}
	if err := s.tasks.DeleteTask(ctx, task.ID); err != nil {
		return err
	}
	s.log.Info("task deleted", "task_id", task.ID, "by", caller.ID)
	return nil
}

// Assign hands the task to the user named by id or, failing that, email.
func (s *Tasks) Assign(ctx context.Context, caller *models.Caller, id string, req models.AssignTaskRequest) (models.TaskView, error) {
	task, err := s.authorize(ctx, caller, rbac.AssignTask, id)
	if err != nil {
		return models.TaskView{}, err
	}

	var assignee *models.User
	switch {
	case strings.TrimSpace(req.AssigneeID) != "":
		assignee, err = s.users.GetUserByID(ctx, strings.TrimSpace(req.AssigneeID))
	case strings.TrimSpace(req.AssigneeEmail) != "":
		assignee, err = s.users.GetUserByEmail(ctx, models.NormalizeEmail(req.AssigneeEmail))
	default:
		return models.TaskView{}, errors.ErrInvalidAssignee
	}
	if err != nil {
		return models.TaskView{}, err
	}

	now := s.clock.Now()
	if lifecycle.Assign(task, assignee.ID) {
		task.UpdatedAt = now
		if err := s.tasks.UpdateTask(ctx, task); err != nil {
			return models.TaskView{}, err
		}
		s.log.Info("task assigned", "task_id", task.ID, "assignee_id", assignee.ID, "by", caller.ID)
	}
	return lifecycle.View(*task, now), nil
}

func (s *Tasks) Accept(ctx context.Context, caller *models.Caller, id string) (models.TaskView, error) {
	task, err := s.authorize(ctx, caller, rbac.AcceptTask, id)
	if err != nil {
		return models.TaskView{}, err
	}

	now := s.clock.Now()
	changed, err := lifecycle.Accept(task, now)
	if err != nil {
		return models.TaskView{}, err
	}
	if changed {
		task.UpdatedAt = now
		if err := s.tasks.UpdateTask(ctx, task); err != nil {
			return models.TaskView{}, err
		}
		s.log.Info("task accepted", "task_id", task.ID, "assignee_id", caller.ID)
	}
	return lifecycle.View(*task, now), nil
}

// List returns the page of tasks visible to the caller: everything for
// admins, owned or assigned tasks for everyone else.
func (s *Tasks) List(ctx context.Context, caller *models.Caller, q models.TaskQuery) (models.TaskPage, error) {
	if err := rbac.CheckTask(caller, rbac.ListTasks, nil); err != nil {
		return models.TaskPage{}, err
	}

	now := s.clock.Now()
	filter, page, err := buildFilter(q, now)
	if err != nil {
		return models.TaskPage{}, err
	}
	if !caller.IsAdmin() {
		filter.VisibleTo = caller.ID
	}

	tasks, total, err := s.tasks.ListTasks(ctx, filter)
	if err != nil {
		return models.TaskPage{}, err
	}
	return models.TaskPage{
		Tasks: lifecycle.Views(tasks, now),
		Total: total,
		Page:  page,
		Limit: filter.Limit,
	}, nil
}

func buildFilter(q models.TaskQuery, now time.Time) (models.TaskFilter, int, error) {
	filter := models.TaskFilter{
		Category:   strings.TrimSpace(q.Category),
		AssigneeID: strings.TrimSpace(q.AssigneeID),
		Now:        now,
		SortBy:     models.SortByCreatedAt,
		Order:      models.OrderDesc,
		Limit:      DefaultPageLimit,
	}

	if q.Status != "" {
		status, err := models.ParseTaskStatus(q.Status)
		if err != nil {
			return models.TaskFilter{}, 0, err
		}
		filter.Status = status
	}
	if q.Overdue != "" {
		overdue, err := strconv.ParseBool(q.Overdue)
		if err != nil {
			return models.TaskFilter{}, 0, errors.ErrInvalidFilter
		}
		filter.Overdue = &overdue
	}

	if q.Sort != "" {
		filter.SortBy = models.TaskSortField(q.Sort)
		if !filter.SortBy.Valid() {
			return models.TaskFilter{}, 0, errors.ErrInvalidSort
		}
	}
	switch models.SortOrder(strings.ToLower(q.Order)) {
	case "":
	case models.OrderAsc:
		filter.Order = models.OrderAsc
	case models.OrderDesc:
		filter.Order = models.OrderDesc
	default:
		return models.TaskFilter{}, 0, errors.ErrInvalidSort
	}

	page := q.Page
	if page == 0 {
		page = 1
	}
	if q.Limit != 0 {
		filter.Limit = q.Limit
	}
	if page < 1 || filter.Limit < 1 || filter.Limit > MaxPageLimit {
		return models.TaskFilter{}, 0, errors.ErrInvalidPagination
	}
	// (page-1)*limit must fit in an int.
	if page > (math.MaxInt-1)/filter.Limit+1 {
		return models.TaskFilter{}, 0, errors.ErrInvalidPagination
	}
	filter.Offset = (page - 1) * filter.Limit
	return filter, page, nil
}

// authorize loads the task and runs the policy check. A missing task is
// handed to rbac as nil so that the denial is classified in one place.
func (s *Tasks) authorize(ctx context.Context, caller *models.Caller, op rbac.Operation, id string) (*models.Task, error) {
	if caller == nil {
		return nil, rbac.CheckTask(nil, op, nil)
	}
	task, err := s.tasks.GetTaskByID(ctx, id)
	if err != nil {
		if !isNotFound(err) {
			return nil, err
		}
		task = nil
	}
	if err := rbac.CheckTask(caller, op, task); err != nil {
		return nil, err
	}
	return task, nil
}

func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
