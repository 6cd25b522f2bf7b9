package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/notely/internal/services"
	appErrors "github.com/charlesng35/notely/pkg/errors"
	"github.com/charlesng35/notely/pkg/response"
)

// ProfileHandler exposes the signed-in user's account.
type ProfileHandler struct {
	users *services.UserService
}

// NewProfileHandler configures a profile handler with required services.
func NewProfileHandler(users *services.UserService) *ProfileHandler {
	return &ProfileHandler{users: users}
}

// GET /api/user/profile
func (h *ProfileHandler) Get(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	user, err := h.users.Profile(requestContext(c), userID)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"user": user})
}
