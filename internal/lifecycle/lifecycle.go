// Package lifecycle owns task status transitions and the fields derived
// from them. It never decides who may act; see package rbac for that.
package lifecycle

import (
	"time"

	"maintenance/internal/domain/errors"
	"maintenance/internal/domain/models"
)

// SetStatus moves task to status and keeps CompletedAt in step with it:
// entering Done stamps now, staying in Done keeps the original stamp and
// leaving Done clears it. Any of the four statuses may follow any other.
func SetStatus(task *models.Task, status models.TaskStatus, now time.Time) error {
	if !status.Valid() {
		return errors.ErrInvalidStatus
	}

	switch {
	case status == models.StatusDone && task.CompletedAt == nil:
		stamp := now
		task.CompletedAt = &stamp
	case status != models.StatusDone:
		task.CompletedAt = nil
	}
	task.Status = status
	return nil
}

// Accept moves a Pending task to Accepted. Accepting an already accepted
// task succeeds without change; tasks already in progress or done cannot
// be accepted again.
func Accept(task *models.Task, now time.Time) (changed bool, err error) {
	switch task.Status {
	case models.StatusPending:
		if err := SetStatus(task, models.StatusAccepted, now); err != nil {
			return false, err
		}
		return true, nil
	case models.StatusAccepted:
		return false, nil
	default:
		return false, errors.ErrInvalidTransition
	}
}

// Assign sets the assignee. A hand-over of an accepted task sends it back
// to Pending so that the new assignee has to accept it.
func Assign(task *models.Task, assigneeID string) (changed bool) {
	if task.AssigneeID == assigneeID {
		return false
	}
	task.AssigneeID = assigneeID
	if task.Status == models.StatusAccepted {
		task.Status = models.StatusPending
	}
	return true
}

// IsOverdue is true when the task has a due date strictly before now and
// is not done.
func IsOverdue(task *models.Task, now time.Time) bool {
	if task.DueDate == nil || task.Status == models.StatusDone {
		return false
	}
	return task.DueDate.Before(now)
}

func View(task models.Task, now time.Time) models.TaskView {
	return models.TaskView{
		Task:      task,
		IsOverdue: IsOverdue(&task, now),
	}
}

func Views(tasks []models.Task, now time.Time) []models.TaskView {
	out := make([]models.TaskView, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, View(t, now))
	}
	return out
}
