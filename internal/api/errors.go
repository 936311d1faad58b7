package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"edustatus/internal/apperr"
)

func statusFor(err error) int {
	switch apperr.Kind(err) {
	case "InvalidCredentials", "NotAuthenticated":
		return http.StatusUnauthorized
	case "DuplicateEmail", "DuplicateRollNo", "DuplicateSubmissionToday":
		return http.StatusConflict
	case "IneligibleCohort":
		return http.StatusUnprocessableEntity
	case "Forbidden":
		return http.StatusForbidden
	case "Validation":
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// fail writes err as {"error", "code"} with the status matching its kind.
// Internal errors are logged and replaced by a generic message.
func (h *Handler) fail(c *gin.Context, err error) {
	status := statusFor(err)
	kind := apperr.Kind(err)
	if status == http.StatusInternalServerError {
		h.log.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
		c.AbortWithStatusJSON(status, gin.H{"error": "internal error", "code": kind})
		return
	}

	body := gin.H{"error": err.Error(), "code": kind}
	var verr *apperr.ValidationError
	if errors.As(err, &verr) {
		body["fields"] = verr.Fields
	}
	c.AbortWithStatusJSON(status, body)
}

// badBody reports a request body that could not be decoded.
func badBody(err error) error {
	return &apperr.ValidationError{Fields: []apperr.FieldError{{Field: "body", Message: err.Error()}}}
}
