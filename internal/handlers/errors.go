package handlers

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/notely/internal/auth"
	"github.com/charlesng35/notely/internal/services"
	appErrors "github.com/charlesng35/notely/pkg/errors"
	"github.com/charlesng35/notely/pkg/response"
	appValidator "github.com/charlesng35/notely/pkg/validator"
)

var errNoteNotFound = appErrors.ErrNotFound.WithMessage("Note not found")

// translateError maps service and store sentinels onto the API error taxonomy.
// Unknown errors become a generic 500 carrying the cause for logging.
func translateError(err error) *appErrors.AppError {
	var ve appValidator.ValidationErrors
	switch {
	case errors.As(err, &ve):
		return appErrors.NewBadRequest(formatValidationError(err))
	case errors.Is(err, services.ErrInvalidOTP):
		return appErrors.ErrOTPInvalid
	case errors.Is(err, services.ErrAccountExists):
		return appErrors.ErrAccountExists
	case errors.Is(err, services.ErrAccountNotVerified):
		return appErrors.ErrAccountNotVerified
	case errors.Is(err, auth.ErrUserNotFound):
		return appErrors.ErrUserNotFound
	case errors.Is(err, services.ErrDeliveryFailed):
		return appErrors.ErrUpstream.WithInternal(err)
	case errors.Is(err, services.ErrNoteNotFound):
		return errNoteNotFound
	default:
		return appErrors.FromError(err)
	}
}

func writeError(c *gin.Context, err error) {
	response.Error(c, translateError(err))
}
