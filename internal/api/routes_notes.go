package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/notely/internal/handlers"
)

func registerNoteRoutes(protected *gin.RouterGroup, handler *handlers.NoteHandler) {
	notes := protected.Group("/notes")
	{
		notes.GET("", handler.List)
		notes.POST("", handler.Create)
		notes.GET("/:id", handler.Get)
		notes.PUT("/:id", handler.Update)
		notes.DELETE("/:id", handler.Delete)
	}
}
