// Package rbac decides whether a caller may perform an operation on a
// task or a user account. Decisions depend only on the caller's role and
// on the caller's relationship to the resource (owner or assignee); there
// are no finer-grained grants.
//
// The package is pure: it performs no I/O and holds no state, so it is
// safe to call from any number of goroutines.
package rbac

import (
	"maintenance/internal/domain/errors"
	"maintenance/internal/domain/models"
)

type Operation int

const (
	CreateTask Operation = iota
	ReadTask
	UpdateTask
	DeleteTask
	AssignTask
	AcceptTask
	ListTasks
	ListUsers
	ChangeRole
	DeleteUser
)

func (o Operation) String() string {
	switch o {
	case CreateTask:
		return "task/create"
	case ReadTask:
		return "task/read"
	case UpdateTask:
		return "task/update"
	case DeleteTask:
		return "task/delete"
	case AssignTask:
		return "task/assign"
	case AcceptTask:
		return "task/accept"
	case ListTasks:
		return "task/list"
	case ListUsers:
		return "user/list"
	case ChangeRole:
		return "user/change-role"
	case DeleteUser:
		return "user/delete"
	default:
		return "unknown"
	}
}

// Decision is the outcome of a check.
type Decision int

const (
	Deny Decision = iota
	Allow
)

func (d Decision) String() string {
	if d == Allow {
		return "allow"
	}
	return "deny"
}

// Reason says why a check was denied. ReasonNone accompanies Allow.
type Reason int

const (
	ReasonNone Reason = iota
	ReasonUnauthenticated
	ReasonMissingResource
	ReasonHidden
	ReasonNotOwner
	ReasonNotAssignee
	ReasonNotAdmin
	ReasonAdminTarget
	ReasonInvalidRole
	ReasonUnknownOperation
)

func (r Reason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonUnauthenticated:
		return "caller not authenticated"
	case ReasonMissingResource:
		return "resource does not exist"
	case ReasonHidden:
		return "resource not visible to caller"
	case ReasonNotOwner:
		return "caller is neither owner nor admin"
	case ReasonNotAssignee:
		return "caller is not the assignee"
	case ReasonNotAdmin:
		return "admin role required"
	case ReasonAdminTarget:
		return "target user is an admin"
	case ReasonInvalidRole:
		return "target role is not a known role"
	default:
		return "operation not covered by policy"
	}
}

// Result is the full outcome of a check.
type Result struct {
	Operation Operation
	Decision  Decision
	Reason    Reason
}

func (r Result) Allowed() bool { return r.Decision == Allow }

// Err converts a denial into the error taxonomy; it is nil on Allow.
func (r Result) Err() error {
	if r.Allowed() {
		return nil
	}
	switch r.Reason {
	case ReasonUnauthenticated:
		return errors.ErrUnauthenticated
	case ReasonMissingResource, ReasonHidden:
		if r.Operation == ChangeRole || r.Operation == DeleteUser {
			return errors.ErrUserNotFound
		}
		return errors.ErrTaskNotFound
	case ReasonNotOwner:
		return errors.ErrNotTaskOwner
	case ReasonNotAssignee:
		return errors.ErrNotAssignee
	case ReasonNotAdmin:
		return errors.ErrAdminRequired
	case ReasonAdminTarget:
		return errors.ErrAdminUndeletable
	case ReasonInvalidRole:
		return errors.ErrInvalidRole
	default:
		return errors.ErrForbidden
	}
}

func allow(op Operation) Result { return Result{Operation: op, Decision: Allow} }

func deny(op Operation, reason Reason) Result {
	return Result{Operation: op, Decision: Deny, Reason: reason}
}

func isOwner(caller *models.Caller, task *models.Task) bool {
	return task.OwnerID != "" && task.OwnerID == caller.ID
}

func isAssignee(caller *models.Caller, task *models.Task) bool {
	return task.AssigneeID != "" && task.AssigneeID == caller.ID
}

// CanSee reports whether the task is visible to the caller at all.
func CanSee(caller *models.Caller, task *models.Task) bool {
	if caller == nil || task == nil {
		return false
	}
	return caller.IsAdmin() || isOwner(caller, task) || isAssignee(caller, task)
}

// EvaluateTask checks a task operation. task may be nil only for
// CreateTask and ListTasks.
//
// Callers that cannot see a task get ReasonHidden for every operation
// except AcceptTask, so that a task's existence is not leaked through
// reads, updates or deletes. Accept is answered with ReasonNotAssignee
// regardless of visibility.
func EvaluateTask(caller *models.Caller, op Operation, task *models.Task) Result {
	if caller == nil {
		return deny(op, ReasonUnauthenticated)
	}

	switch op {
	case CreateTask, ListTasks:
		return allow(op)
	}

	if task == nil {
		return deny(op, ReasonMissingResource)
	}

	switch op {
	case AcceptTask:
		if isAssignee(caller, task) {
			return allow(op)
		}
		return deny(op, ReasonNotAssignee)
	case AssignTask:
		if caller.IsAdmin() {
			return allow(op)
		}
		if !CanSee(caller, task) {
			return deny(op, ReasonHidden)
		}
		return deny(op, ReasonNotAdmin)
	}

	if !CanSee(caller, task) {
		return deny(op, ReasonHidden)
	}

	switch op {
	case ReadTask:
		return allow(op)
	case UpdateTask, DeleteTask:
		if caller.IsAdmin() || isOwner(caller, task) {
			return allow(op)
		}
		return deny(op, ReasonNotOwner)
	}
	return deny(op, ReasonUnknownOperation)
}

// EvaluateUser checks a user-administration operation. target is the
// account being acted on and may be nil for ListUsers. newRole is only
// consulted for ChangeRole.
func EvaluateUser(caller *models.Caller, op Operation, target *models.User, newRole models.Role) Result {
	if caller == nil {
		return deny(op, ReasonUnauthenticated)
	}
	if !caller.IsAdmin() {
		return deny(op, ReasonNotAdmin)
	}

	switch op {
	case ListUsers:
		return allow(op)
	case ChangeRole:
		if target == nil {
			return deny(op, ReasonMissingResource)
		}
		if !newRole.Valid() {
			return deny(op, ReasonInvalidRole)
		}
		return allow(op)
	case DeleteUser:
		if target == nil {
			return deny(op, ReasonMissingResource)
		}
		if target.Role == models.RoleAdmin {
			return deny(op, ReasonAdminTarget)
		}
		return allow(op)
	}
	return deny(op, ReasonUnknownOperation)
}

// RequireAdmin fails unless the caller is an authenticated admin.
func RequireAdmin(caller *models.Caller) error {
	if caller == nil {
		return errors.ErrUnauthenticated
	}
	if !caller.IsAdmin() {
		return errors.ErrAdminRequired
	}
	return nil
}

// CheckTask is EvaluateTask reduced to an error.
func CheckTask(caller *models.Caller, op Operation, task *models.Task) error {
	return EvaluateTask(caller, op, task).Err()
}

// CheckUser is EvaluateUser reduced to an error.
func CheckUser(caller *models.Caller, op Operation, target *models.User, newRole models.Role) error {
	return EvaluateUser(caller, op, target, newRole).Err()
}
