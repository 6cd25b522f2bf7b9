package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/notely/internal/handlers"
)

func registerProfileRoutes(protected *gin.RouterGroup, handler *handlers.ProfileHandler) {
	protected.GET("/user/profile", handler.Get)
}
