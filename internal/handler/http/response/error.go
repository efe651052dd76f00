package response

import (
	"errors"
	"net/http"

	"github.com/linkpulse/notifyhub/internal/domain/notification"
	"github.com/linkpulse/notifyhub/internal/domain/presence"
	"github.com/linkpulse/notifyhub/internal/pkg/validator"
)

// HandleError maps domain errors to HTTP responses
func HandleError(w http.ResponseWriter, err error) {
	// Check if it's a validation error
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) {
		ValidationError(w, validationErrs.ToMap())
		return
	}

	switch {
	// Notification domain errors
	case errors.Is(err, notification.ErrNotificationNotFound):
		NotFound(w, "Notification not found")
	case errors.Is(err, notification.ErrInvalidNotificationType):
		BadRequest(w, "Invalid notification type", nil)
	case errors.Is(err, notification.ErrInvalidSelfNotification):
		BadRequest(w, "Cannot notify a user about their own action", nil)

	// Presence domain errors
	case errors.Is(err, presence.ErrMissingCredential):
		Unauthorized(w, "Missing credential")
	case errors.Is(err, presence.ErrInvalidCredential):
		Unauthorized(w, "Invalid credential")

	// Default
	default:
		InternalServerError(w, "An unexpected error occurred")
	}
}
