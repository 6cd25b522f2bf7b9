package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/charlesng35/notely/internal/database"
	"github.com/charlesng35/notely/internal/models"
	"github.com/charlesng35/notely/pkg/crypto"
)

var (
	// ErrUserNotFound is returned by finders when no record matches.
	ErrUserNotFound = errors.New("auth: user not found")
	// ErrCredentialConflict signals a uniqueness violation on email or external id.
	ErrCredentialConflict = errors.New("auth: email or external id already in use")
	// ErrAlreadyVerified is returned when a pending-only update finds the user verified.
	ErrAlreadyVerified = errors.New("auth: user already verified")
)

// CredentialStore persists user records.
type CredentialStore interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindByExternalID(ctx context.Context, externalID string) (*models.User, error)
	// Save creates the record when it has no id and fully updates it otherwise.
	// A plaintext Password is hashed into PasswordHash before writing.
	Save(ctx context.Context, user *models.User) (*models.User, error)
	// CompleteVerification marks the user verified and clears its OTP, but only
	// while code is still the stored one. It returns ErrOTPNotIssued otherwise.
	CompleteVerification(ctx context.Context, userID, code string) error
	// SetOTP replaces the outstanding code and leaves every other column alone.
	SetOTP(ctx context.Context, userID, code string, expiresAt time.Time) error
	// UpdatePending writes the name, birth date and code of a user that is still
	// unverified. It returns ErrAlreadyVerified once verification has completed.
	UpdatePending(ctx context.Context, user *models.User) error
	// LinkExternalID attaches externalID and marks the user verified. It returns
	// ErrCredentialConflict when a different external id is already linked.
	LinkExternalID(ctx context.Context, userID, externalID string) error
}

// GormCredentialStore implements CredentialStore with gorm.
type GormCredentialStore struct {
	db *gorm.DB
}

// NewGormCredentialStore constructs a gorm backed credential store.
func NewGormCredentialStore(db *gorm.DB) (*GormCredentialStore, error) {
	if db == nil {
		return nil, errors.New("credential store: db is required")
	}
	return &GormCredentialStore{db: db}, nil
}

func (s *GormCredentialStore) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	email = models.NormalizeEmail(email)
	if email == "" {
		return nil, ErrUserNotFound
	}
	return s.take(ctx, "email = ?", email)
}

func (s *GormCredentialStore) FindByID(ctx context.Context, id string) (*models.User, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrUserNotFound
	}
	return s.take(ctx, "id = ?", id)
}

func (s *GormCredentialStore) FindByExternalID(ctx context.Context, externalID string) (*models.User, error) {
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return nil, ErrUserNotFound
	}
	return s.take(ctx, "google_id = ?", externalID)
}

func (s *GormCredentialStore) Save(ctx context.Context, user *models.User) (*models.User, error) {
	if user == nil {
		return nil, errors.New("credential store: user is required")
	}
	user.Email = models.NormalizeEmail(user.Email)
	if err := hashPendingPassword(user); err != nil {
		return nil, err
	}

	db := s.db.WithContext(ctx)
	var err error
	if user.ID == "" {
		err = db.Create(user).Error
	} else {
		err = db.Save(user).Error
	}
	if err != nil {
		if database.IsUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %s", ErrCredentialConflict, user.Email)
		}
		return nil, fmt.Errorf("credential store: save user: %w", err)
	}
	return user, nil
}

func (s *GormCredentialStore) CompleteVerification(ctx context.Context, userID, code string) error {
	result := s.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ? AND otp_code = ?", userID, code).
		Updates(map[string]any{
			"is_verified":    true,
			"otp_code":       nil,
			"otp_expires_at": nil,
		})
	if result.Error != nil {
		return fmt.Errorf("credential store: complete verification: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrOTPNotIssued
	}
	return nil
}

func (s *GormCredentialStore) SetOTP(ctx context.Context, userID, code string, expiresAt time.Time) error {
	result := s.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", userID).
		Updates(map[string]any{
			"otp_code":       code,
			"otp_expires_at": expiresAt.UTC(),
		})
	if result.Error != nil {
		return fmt.Errorf("credential store: set otp: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (s *GormCredentialStore) UpdatePending(ctx context.Context, user *models.User) error {
	if user == nil || user.ID == "" {
		return errors.New("credential store: persisted user is required")
	}
	result := s.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ? AND is_verified = ?", user.ID, false).
		Updates(map[string]any{
			"name":           user.Name,
			"date_of_birth":  user.DateOfBirth,
			"otp_code":       user.OTPCode,
			"otp_expires_at": user.OTPExpiresAt,
		})
	if result.Error != nil {
		return fmt.Errorf("credential store: update pending user: %w", result.Error)
	}
	if result.RowsAffected > 0 {
		return nil
	}
	if _, err := s.FindByID(ctx, user.ID); err != nil {
		return err
	}
	return ErrAlreadyVerified
}

func (s *GormCredentialStore) LinkExternalID(ctx context.Context, userID, externalID string) error {
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return errors.New("credential store: external id is required")
	}
	result := s.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ? AND (google_id IS NULL OR google_id = ?)", userID, externalID).
		Updates(map[string]any{
			"google_id":   externalID,
			"is_verified": true,
		})
	if result.Error != nil {
		if database.IsUniqueViolation(result.Error) {
			return fmt.Errorf("%w: %s", ErrCredentialConflict, externalID)
		}
		return fmt.Errorf("credential store: link external id: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		if _, err := s.FindByID(ctx, userID); err != nil {
			return err
		}
		return fmt.Errorf("%w: %s", ErrCredentialConflict, externalID)
	}
	return nil
}

func (s *GormCredentialStore) take(ctx context.Context, query string, arg string) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).Where(query, arg).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("credential store: load user: %w", err)
	}
	return &user, nil
}

// hashPendingPassword moves a plaintext password into its bcrypt hash.
func hashPendingPassword(user *models.User) error {
	if user.Password == "" {
		return nil
	}
	hash, err := crypto.HashPassword(user.Password)
	if err != nil {
		return fmt.Errorf("credential store: hash password: %w", err)
	}
	user.PasswordHash = &hash
	user.Password = ""
	return nil
}
