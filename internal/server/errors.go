package server

import (
	stderrors "errors"
	"net/http"

	"maintenance/internal/domain/errors"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator"
)

func statusFor(err error) int {
	switch {
	case stderrors.Is(err, errors.ErrUnauthenticated):
		return http.StatusUnauthorized
	case stderrors.Is(err, errors.ErrForbidden):
		return http.StatusForbidden
	case stderrors.Is(err, errors.ErrNotFound):
		return http.StatusNotFound
	case stderrors.Is(err, errors.ErrInvalidInput):
		return http.StatusBadRequest
	case stderrors.Is(err, errors.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err as {"error": msg}. Unclassified errors are logged
// and replaced by a generic message.
func (api *TaskAPI) writeError(ctx *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		api.log.Error("request failed", "method", ctx.Request.Method, "path", ctx.FullPath(), "error", err)
		ctx.AbortWithStatusJSON(status, gin.H{"error": errors.ErrInternalServer.Error()})
		return
	}
	ctx.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}

var validate = validator.New()

// validateRequest runs struct validation and reports every failing field
// as {"errors": [...]}. It returns false when a response has been written.
func validateRequest(ctx *gin.Context, req interface{}) bool {
	err := validate.Struct(req)
	if err == nil {
		return true
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		ctx.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": errors.ErrValidationFailed.Error()})
		return false
	}
	msgs := make([]string, 0, len(verrs))
	for _, verr := range verrs {
		msgs = append(msgs, fieldError(verr).Error())
	}
	ctx.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"errors": msgs})
	return false
}

func fieldError(verr validator.FieldError) error {
	switch verr.Field() {
	case "Email", "AssigneeEmail":
		return errors.ErrInvalidEmail
	case "Password":
		return errors.ErrInvalidPassword
	case "Role":
		return errors.ErrInvalidRole
	case "Status":
		return errors.ErrInvalidStatus
	case "Title":
		return errors.ErrInvalidTitle
	case "Category":
		return errors.ErrInvalidCategory
	}
	return errors.ErrValidationFailed
}
