package errors

import "errors"

// Classification errors. Every other error in this package unwraps to
// exactly one of them, and the HTTP layer maps them to status codes.
var (
	ErrUnauthenticated = errors.New("authentication required")
	ErrForbidden       = errors.New("access denied")
	ErrNotFound        = errors.New("resource not found")
	ErrInvalidInput    = errors.New("invalid input")
	ErrConflict        = errors.New("resource conflict")
)

type classifiedError struct {
	msg  string
	kind error
}

func (e *classifiedError) Error() string { return e.msg }

func (e *classifiedError) Unwrap() error { return e.kind }

func newError(kind error, msg string) error {
	return &classifiedError{msg: msg, kind: kind}
}

var (
	ErrInvalidCredentials = newError(ErrUnauthenticated, "invalid credentials")
	ErrTokenMissing       = newError(ErrUnauthenticated, "missing authentication token")
	ErrTokenExpired       = newError(ErrUnauthenticated, "token expired")
	ErrTokenMalformed     = newError(ErrUnauthenticated, "token malformed")
	ErrTokenInvalid       = newError(ErrUnauthenticated, "token invalid")

	ErrAdminRequired    = newError(ErrForbidden, "admin role required")
	ErrNotTaskOwner     = newError(ErrForbidden, "only the task owner or an admin can do this")
	ErrNotAssignee      = newError(ErrForbidden, "only the assignee can accept this task")
	ErrAdminUndeletable = newError(ErrForbidden, "admin users cannot be deleted")

	ErrUserNotFound = newError(ErrNotFound, "user not found")
	ErrTaskNotFound = newError(ErrNotFound, "task not found")

	ErrUserAlreadyExists = newError(ErrConflict, "user already exists")

	ErrBadRequest        = newError(ErrInvalidInput, "malformed request")
	ErrValidationFailed  = newError(ErrInvalidInput, "validation failed")
	ErrInvalidEmail      = newError(ErrInvalidInput, "invalid email")
	ErrInvalidPassword   = newError(ErrInvalidInput, "invalid password")
	ErrInvalidRole       = newError(ErrInvalidInput, "invalid user role")
	ErrInvalidStatus     = newError(ErrInvalidInput, "invalid task status")
	ErrInvalidTitle      = newError(ErrInvalidInput, "invalid task title")
	ErrInvalidCategory   = newError(ErrInvalidInput, "invalid task category")
	ErrInvalidAssignee   = newError(ErrInvalidInput, "assigneeId or assigneeEmail is required")
	ErrInvalidTransition = newError(ErrInvalidInput, "task can no longer be accepted")
	ErrInvalidPagination = newError(ErrInvalidInput, "invalid pagination parameters")
	ErrInvalidSort       = newError(ErrInvalidInput, "invalid sort parameters")
	ErrInvalidFilter     = newError(ErrInvalidInput, "invalid filter parameters")
)

// Infrastructure errors; these surface as 5xx.
var (
	ErrInternalServer        = errors.New("internal server error")
	ErrDatabaseConnection    = errors.New("database connection failed")
	ErrConfigFileReadFailed  = errors.New("failed to read config file")
	ErrConfigInvalidFormat   = errors.New("invalid config value")
	ErrInvalidGzipRequest    = newError(ErrInvalidInput, "invalid gzip request body")
	ErrGzipCompressionFailed = errors.New("gzip compression failed")
)
