package storage

import (
	"context"
	"sort"
	"strings"
	"sync"

	"maintenance/internal/domain/errors"
	"maintenance/internal/domain/models"
	"maintenance/internal/lifecycle"
)

// Storage keeps users and tasks in process memory. It is safe for
// concurrent use; values are copied in and out so callers never share
// state with the store.
type Storage struct {
	mu      sync.RWMutex
	users   map[string]models.User
	byEmail map[string]string
	tasks   map[string]models.Task
}

func NewStorage() *Storage {
	return &Storage{
		users:   make(map[string]models.User),
		byEmail: make(map[string]string),
		tasks:   make(map[string]models.Task),
	}
}

func (s *Storage) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *Storage) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, exists := s.users[id]
	if !exists {
		return nil, errors.ErrUserNotFound
	}
	return &user, nil
}

func (s *Storage) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, exists := s.byEmail[models.NormalizeEmail(email)]
	if !exists {
		return nil, errors.ErrUserNotFound
	}
	user := s.users[id]
	return &user, nil
}

func (s *Storage) CreateUser(ctx context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertUser(user)
}

// RegisterUser inserts user like CreateUser, but an admin role is only kept
// when no admin exists yet. The check and the insert share one lock, so
// user.Role holds the stored role on return.
func (s *Storage) RegisterUser(ctx context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if user.Role == models.RoleAdmin {
		for _, u := range s.users {
			if u.Role == models.RoleAdmin {
				user.Role = models.RoleUser
				break
			}
		}
	}
	return s.insertUser(user)
}

// insertUser expects s.mu to be held.
func (s *Storage) insertUser(user *models.User) error {
	email := models.NormalizeEmail(user.Email)
	if _, exists := s.byEmail[email]; exists {
		return errors.ErrUserAlreadyExists
	}
	if _, exists := s.users[user.ID]; exists {
		return errors.ErrUserAlreadyExists
	}
	user.Email = email
	s.users[user.ID] = *user
	s.byEmail[email] = user.ID
	return nil
}

func (s *Storage) UpdateUser(ctx context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, exists := s.users[user.ID]
	if !exists {
		return errors.ErrUserNotFound
	}
	email := models.NormalizeEmail(user.Email)
	if owner, taken := s.byEmail[email]; taken && owner != user.ID {
		return errors.ErrUserAlreadyExists
	}
	delete(s.byEmail, current.Email)
	user.Email = email
	s.users[user.ID] = *user
	s.byEmail[email] = user.ID
	return nil
}

// DeleteUser removes the user, the tasks they own, and their assignments.
func (s *Storage) DeleteUser(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, exists := s.users[id]
	if !exists {
		return errors.ErrUserNotFound
	}
	for taskID, task := range s.tasks {
		switch {
		case task.OwnerID == id:
			delete(s.tasks, taskID)
		case task.AssigneeID == id:
			task.AssigneeID = ""
			s.tasks[taskID] = task
		}
	}
	delete(s.byEmail, user.Email)
	delete(s.users, id)
	return nil
}

func (s *Storage) ListUsers(ctx context.Context) ([]models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	users := make([]models.User, 0, len(s.users))
	for _, u := range s.users {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool {
		return users[i].Email < users[j].Email
	})
	return users, nil
}

func (s *Storage) CountUsersByRole(ctx context.Context, role models.Role) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, u := range s.users {
		if u.Role == role {
			n++
		}
	}
	return n, nil
}

func (s *Storage) CreateTask(ctx context.Context, task *models.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tasks[task.ID]; exists {
		return errors.ErrConflict
	}
	if err := s.checkRefs(task); err != nil {
		return err
	}
	s.tasks[task.ID] = *task
	return nil
}

func (s *Storage) GetTaskByID(ctx context.Context, id string) (*models.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	task, exists := s.tasks[id]
	if !exists {
		return nil, errors.ErrTaskNotFound
	}
	return &task, nil
}

func (s *Storage) UpdateTask(ctx context.Context, task *models.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tasks[task.ID]; !exists {
		return errors.ErrTaskNotFound
	}
	if err := s.checkRefs(task); err != nil {
		return err
	}
	s.tasks[task.ID] = *task
	return nil
}

func (s *Storage) DeleteTask(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tasks[id]; !exists {
		return errors.ErrTaskNotFound
	}
	delete(s.tasks, id)
	return nil
}

func (s *Storage) ListTasks(ctx context.Context, filter models.TaskFilter) ([]models.Task, int, error) {
	if filter.Offset < 0 || filter.Limit < 0 {
		return nil, 0, errors.ErrInvalidPagination
	}
	s.mu.RLock()
	matched := make([]models.Task, 0)
	for _, t := range s.tasks {
		if matches(&t, &filter) {
			matched = append(matched, t)
		}
	}
	s.mu.RUnlock()

	sortTasks(matched, filter.SortBy, filter.Order)

	total := len(matched)
	if filter.Offset >= total {
		return []models.Task{}, total, nil
	}
	end := total
	if filter.Limit > 0 && filter.Offset+filter.Limit < total {
		end = filter.Offset + filter.Limit
	}
	return matched[filter.Offset:end], total, nil
}

// checkRefs mirrors the foreign keys of the relational schema.
func (s *Storage) checkRefs(task *models.Task) error {
	if _, ok := s.users[task.OwnerID]; !ok {
		return errors.ErrUserNotFound
	}
	if task.AssigneeID != "" {
		if _, ok := s.users[task.AssigneeID]; !ok {
			return errors.ErrUserNotFound
		}
	}
	return nil
}

func matches(t *models.Task, f *models.TaskFilter) bool {
	if f.VisibleTo != "" && t.OwnerID != f.VisibleTo && t.AssigneeID != f.VisibleTo {
		return false
	}
	if f.Status != "" && t.Status != f.Status {
		return false
	}
	if f.Category != "" && !strings.EqualFold(t.Category, f.Category) {
		return false
	}
	if f.AssigneeID != "" && t.AssigneeID != f.AssigneeID {
		return false
	}
	if f.Overdue != nil && lifecycle.IsOverdue(t, f.Now) != *f.Overdue {
		return false
	}
	return true
}

var statusRank = map[models.TaskStatus]int{
	models.StatusPending:    0,
	models.StatusAccepted:   1,
	models.StatusInProgress: 2,
	models.StatusDone:       3,
}

// sortTasks orders by the requested field with id as tie-breaker. Tasks
// without a due date sort last in both directions.
func sortTasks(tasks []models.Task, by models.TaskSortField, order models.SortOrder) {
	desc := order == models.OrderDesc
	sort.SliceStable(tasks, func(i, j int) bool {
		a, b := &tasks[i], &tasks[j]
		var cmp int
		switch by {
		case models.SortByDueDate:
			switch {
			case a.DueDate == nil && b.DueDate == nil:
			case a.DueDate == nil:
				return false
			case b.DueDate == nil:
				return true
			default:
				cmp = a.DueDate.Compare(*b.DueDate)
			}
		case models.SortByTitle:
			cmp = strings.Compare(strings.ToLower(a.Title), strings.ToLower(b.Title))
		case models.SortByStatus:
			cmp = statusRank[a.Status] - statusRank[b.Status]
		default:
			cmp = a.CreatedAt.Compare(b.CreatedAt)
		}
		if cmp == 0 {
			cmp = strings.Compare(a.ID, b.ID)
		}
		if desc {
			return cmp > 0
		}
		return cmp < 0
	})
}
