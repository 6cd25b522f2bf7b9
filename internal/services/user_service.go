package services

import (
	"context"
	"errors"

	"github.com/charlesng35/notely/internal/auth"
	"github.com/charlesng35/notely/internal/models"
)

// UserService exposes account data to the signed-in user.
type UserService struct {
	store auth.CredentialStore
}

// NewUserService constructs a UserService.
func NewUserService(store auth.CredentialStore) (*UserService, error) {
	if store == nil {
		return nil, errors.New("user service: credential store is required")
	}
	return &UserService{store: store}, nil
}

// Profile returns the public projection of the user.
func (s *UserService) Profile(ctx context.Context, userID string) (models.PublicUser, error) {
	user, err := s.store.FindByID(ctx, userID)
	if err != nil {
		return models.PublicUser{}, err
	}
	return user.Public(), nil
}
