package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/charlesng35/notely/internal/models"
	"github.com/charlesng35/notely/pkg/metrics"
	"github.com/charlesng35/notely/pkg/validator"
)

// NoteInput describes the mutable fields of a note.
type NoteInput struct {
	Title   string `json:"title" validate:"required,min=1,max=200"`
	Content string `json:"content" validate:"required,min=1,max=10000"`
}

// NoteService manages notes scoped to their owner.
type NoteService struct {
	db *gorm.DB
}

// NewNoteService constructs a note service once a database handle is supplied.
func NewNoteService(db *gorm.DB) (*NoteService, error) {
	if db == nil {
		return nil, errors.New("note service: db is required")
	}
	return &NoteService{db: db}, nil
}

// List returns the owner's notes, newest first.
func (s *NoteService) List(ctx context.Context, ownerID string) ([]models.Note, error) {
	notes := make([]models.Note, 0)
	err := s.db.WithContext(ctx).
		Where("user_id = ?", ownerID).
		Order("created_at DESC").
		Order("id DESC").
		Find(&notes).Error
	if err != nil {
		record("list", err)
		return nil, fmt.Errorf("note service: list: %w", err)
	}
	record("list", nil)
	return notes, nil
}

// Get returns one of the owner's notes.
func (s *NoteService) Get(ctx context.Context, ownerID, noteID string) (*models.Note, error) {
	note, err := s.find(ctx, ownerID, noteID)
	record("get", err)
	return note, err
}

// Create stores a new note for the owner.
func (s *NoteService) Create(ctx context.Context, ownerID string, in NoteInput) (*models.Note, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, errors.New("note service: owner id is required")
	}
	in, err := normaliseNoteInput(in)
	if err != nil {
		return nil, err
	}

	note := &models.Note{UserID: ownerID, Title: in.Title, Content: in.Content}
	if err := s.db.WithContext(ctx).Create(note).Error; err != nil {
		record("create", err)
		return nil, fmt.Errorf("note service: create: %w", err)
	}
	record("create", nil)
	return note, nil
}

// Update replaces the title and content of one of the owner's notes.
func (s *NoteService) Update(ctx context.Context, ownerID, noteID string, in NoteInput) (*models.Note, error) {
	in, err := normaliseNoteInput(in)
	if err != nil {
		return nil, err
	}

	note, err := s.find(ctx, ownerID, noteID)
	if err != nil {
		record("update", err)
		return nil, err
	}

	note.Title = in.Title
	note.Content = in.Content
	if err := s.db.WithContext(ctx).Save(note).Error; err != nil {
		record("update", err)
		return nil, fmt.Errorf("note service: update: %w", err)
	}
	record("update", nil)
	return note, nil
}

// Delete removes one of the owner's notes.
func (s *NoteService) Delete(ctx context.Context, ownerID, noteID string) error {
	result := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", noteID, ownerID).
		Delete(&models.Note{})
	if result.Error != nil {
		record("delete", result.Error)
		return fmt.Errorf("note service: delete: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		record("delete", ErrNoteNotFound)
		return ErrNoteNotFound
	}
	record("delete", nil)
	return nil
}

// find never distinguishes a missing note from one owned by someone else.
func (s *NoteService) find(ctx context.Context, ownerID, noteID string) (*models.Note, error) {
	noteID = strings.TrimSpace(noteID)
	if noteID == "" || ownerID == "" {
		return nil, ErrNoteNotFound
	}

	var note models.Note
	err := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", noteID, ownerID).
		Take(&note).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNoteNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("note service: load: %w", err)
	}
	return &note, nil
}

func normaliseNoteInput(in NoteInput) (NoteInput, error) {
	in.Title = strings.TrimSpace(in.Title)
	if strings.TrimSpace(in.Content) == "" {
		in.Content = ""
	}
	if err := validator.ValidateStruct(in); err != nil {
		return in, err
	}
	return in, nil
}

func record(operation string, err error) {
	result := "success"
	switch {
	case errors.Is(err, ErrNoteNotFound):
		result = "not_found"
	case err != nil:
		result = "error"
	}
	metrics.NoteOperations.WithLabelValues(operation, result).Inc()
}
