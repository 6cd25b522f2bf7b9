package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/notely/internal/services"
	appErrors "github.com/charlesng35/notely/pkg/errors"
	"github.com/charlesng35/notely/pkg/response"
)

// NoteHandler exposes CRUD for the signed-in user's notes.
type NoteHandler struct {
	notes *services.NoteService
}

func NewNoteHandler(notes *services.NoteService) *NoteHandler {
	return &NoteHandler{notes: notes}
}

type noteRequest struct {
	Title   string `json:"title" validate:"required"`
	Content string `json:"content" validate:"required"`
}

func (r noteRequest) input() services.NoteInput {
	return services.NoteInput{Title: r.Title, Content: r.Content}
}

// GET /api/notes
func (h *NoteHandler) List(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	notes, err := h.notes.List(requestContext(c), userID)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"notes": notes})
}

// GET /api/notes/:id
func (h *NoteHandler) Get(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	note, err := h.notes.Get(requestContext(c), userID, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"note": note})
}

// POST /api/notes
func (h *NoteHandler) Create(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req noteRequest
	if !bindAndValidate(c, &req) {
		return
	}

	note, err := h.notes.Create(requestContext(c), userID, req.input())
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, http.StatusCreated, gin.H{
		"message": "Note created successfully",
		"note":    note,
	})
}

// PUT /api/notes/:id
func (h *NoteHandler) Update(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req noteRequest
	if !bindAndValidate(c, &req) {
		return
	}

	note, err := h.notes.Update(requestContext(c), userID, c.Param("id"), req.input())
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{
		"message": "Note updated successfully",
		"note":    note,
	})
}

// DELETE /api/notes/:id
func (h *NoteHandler) Delete(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	if err := h.notes.Delete(requestContext(c), userID, c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"message": "Note deleted successfully"})
}
