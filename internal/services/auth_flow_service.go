package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/charlesng35/notely/internal/auth"
	"github.com/charlesng35/notely/internal/models"
	"github.com/charlesng35/notely/pkg/logger"
	"github.com/charlesng35/notely/pkg/mail"
	"github.com/charlesng35/notely/pkg/metrics"
	"github.com/charlesng35/notely/pkg/validator"
)

// CodeSender delivers a freshly issued one-time code to its owner.
type CodeSender interface {
	SendOTP(ctx context.Context, user *models.User, code string, ttl time.Duration) error
}

// SignupInput carries the fields collected at registration.
type SignupInput struct {
	Name        string `json:"name" validate:"required,min=2,max=50"`
	Email       string `json:"email" validate:"required,email"`
	DateOfBirth string `json:"date_of_birth" validate:"required,pastdate"`
}

type emailInput struct {
	Email string `json:"email" validate:"required,email"`
}

type verifyInput struct {
	Email string `json:"email" validate:"required,email"`
	OTP   string `json:"otp" validate:"required,otp"`
}

// AuthResult is returned whenever a session is established.
type AuthResult struct {
	Token string            `json:"token"`
	User  models.PublicUser `json:"user"`
}

// AuthFlowService sequences signup, login, verification and resend against the
// credential store, the OTP issuer and the token service.
//
// Login deliberately sends a code instead of checking a password: both entry
// points share the email OTP channel.
type AuthFlowService struct {
	store  auth.CredentialStore
	otp    *auth.OTPService
	tokens *auth.TokenService
	sender CodeSender
	log    *zap.Logger
}

// NewAuthFlowService wires the orchestrator.
func NewAuthFlowService(store auth.CredentialStore, otp *auth.OTPService, tokens *auth.TokenService, sender CodeSender) (*AuthFlowService, error) {
	switch {
	case store == nil:
		return nil, errors.New("auth flow: credential store is required")
	case otp == nil:
		return nil, errors.New("auth flow: otp service is required")
	case tokens == nil:
		return nil, errors.New("auth flow: token service is required")
	case sender == nil:
		return nil, errors.New("auth flow: code sender is required")
	}
	return &AuthFlowService{
		store:  store,
		otp:    otp,
		tokens: tokens,
		sender: sender,
		log:    logger.WithModule("auth"),
	}, nil
}

// Signup registers or refreshes a pending account and sends it a code.
// It returns the normalised email the code was sent to.
func (s *AuthFlowService) Signup(ctx context.Context, in SignupInput) (string, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = models.NormalizeEmail(in.Email)
	if err := validator.ValidateStruct(in); err != nil {
		return "", err
	}
	dob, err := validator.ParseDate(in.DateOfBirth)
	if err != nil {
		return "", err
	}
	birthDate := datatypes.Date(dob)

	// A concurrent first signup for the same email can win the insert; retry once as an update.
	for attempt := 0; ; attempt++ {
		user, err := s.store.FindByEmail(ctx, in.Email)
		switch {
		case errors.Is(err, auth.ErrUserNotFound):
			user = &models.User{Email: in.Email}
		case err != nil:
			return "", err
		case user.IsVerified:
			s.recordAttempt("signup", "exists")
			return "", ErrAccountExists
		}

		user.Name = in.Name
		user.DateOfBirth = &birthDate

		code, err := s.otp.Issue(user)
		if err != nil {
			return "", err
		}
		if user.ID == "" {
			if _, err := s.store.Save(ctx, user); err != nil {
				if errors.Is(err, auth.ErrCredentialConflict) && attempt == 0 {
					continue
				}
				return "", err
			}
		} else if err := s.store.UpdatePending(ctx, user); err != nil {
			if errors.Is(err, auth.ErrAlreadyVerified) {
				s.recordAttempt("signup", "exists")
				return "", ErrAccountExists
			}
			return "", err
		}

		if err := s.deliver(ctx, user, code); err != nil {
			s.recordAttempt("signup", "delivery_failed")
			return "", err
		}
		s.recordAttempt("signup", "success")
		return user.Email, nil
	}
}

// Login sends a fresh code to an existing verified account.
func (s *AuthFlowService) Login(ctx context.Context, email string) (string, error) {
	user, err := s.lookup(ctx, email)
	if err != nil {
		s.recordAttempt("login", "failure")
		return "", err
	}
	if !user.IsVerified {
		s.recordAttempt("login", "not_verified")
		return "", ErrAccountNotVerified
	}
	if err := s.reissue(ctx, user); err != nil {
		s.recordAttempt("login", "delivery_failed")
		return "", err
	}
	s.recordAttempt("login", "success")
	return user.Email, nil
}

// ResendOTP replaces any outstanding code for the account and sends the new one.
func (s *AuthFlowService) ResendOTP(ctx context.Context, email string) error {
	user, err := s.lookup(ctx, email)
	if err != nil {
		s.recordAttempt("resend", "failure")
		return err
	}
	if err := s.reissue(ctx, user); err != nil {
		s.recordAttempt("resend", "delivery_failed")
		return err
	}
	s.recordAttempt("resend", "success")
	return nil
}

// VerifyOTP checks a submitted code, marks the account verified and opens a session.
func (s *AuthFlowService) VerifyOTP(ctx context.Context, email, code string) (*AuthResult, error) {
	in := verifyInput{Email: models.NormalizeEmail(email), OTP: strings.TrimSpace(code)}
	if err := validator.ValidateStruct(in); err != nil {
		return nil, err
	}

	user, err := s.store.FindByEmail(ctx, in.Email)
	if err != nil {
		s.recordAttempt("verify", "failure")
		return nil, err
	}

	if err := s.otp.Verify(user, in.OTP); err != nil {
		metrics.OTPVerifications.WithLabelValues(otpFailureLabel(err)).Inc()
		s.recordAttempt("verify", "failure")
		return nil, fmt.Errorf("%w: %w", ErrInvalidOTP, err)
	}

	// Consume the code only if it is still the stored one so a racing verifier cannot reuse it.
	if err := s.store.CompleteVerification(ctx, user.ID, in.OTP); err != nil {
		if errors.Is(err, auth.ErrOTPNotIssued) {
			metrics.OTPVerifications.WithLabelValues("not_issued").Inc()
			s.recordAttempt("verify", "failure")
			return nil, fmt.Errorf("%w: %w", ErrInvalidOTP, err)
		}
		return nil, err
	}
	user.IsVerified = true
	metrics.OTPVerifications.WithLabelValues("success").Inc()

	result, err := s.openSession(user)
	if err != nil {
		return nil, err
	}
	s.recordAttempt("verify", "success")
	return result, nil
}

// OAuthLogin signs in with a provider assertion, linking or creating the account
// as needed. The provider must vouch for the email address.
func (s *AuthFlowService) OAuthLogin(ctx context.Context, identity auth.ExternalIdentity) (*AuthResult, error) {
	subject := strings.TrimSpace(identity.Subject)
	email := models.NormalizeEmail(identity.Email)
	if subject == "" || email == "" {
		s.recordAttempt("oauth", "failure")
		return nil, ErrOAuthIdentityIncomplete
	}
	if !identity.EmailVerified {
		s.recordAttempt("oauth", "email_unverified")
		return nil, ErrOAuthEmailUnverified
	}

	user, err := s.store.FindByExternalID(ctx, subject)
	if errors.Is(err, auth.ErrUserNotFound) {
		user, err = s.store.FindByEmail(ctx, email)
		switch {
		case errors.Is(err, auth.ErrUserNotFound):
			user = &models.User{
				Email:      email,
				Name:       oauthDisplayName(identity.Name, email),
				GoogleID:   &subject,
				IsVerified: true,
			}
		case err != nil:
			return nil, err
		case user.GoogleID != nil && *user.GoogleID != subject:
			s.recordAttempt("oauth", "link_conflict")
			return nil, ErrOAuthLinkConflict
		default:
			s.log.Info("linking external identity to existing account",
				zap.String("user_id", user.ID),
				zap.String("provider", identity.Provider),
			)
			if err := s.store.LinkExternalID(ctx, user.ID, subject); err != nil {
				if errors.Is(err, auth.ErrCredentialConflict) {
					s.recordAttempt("oauth", "link_conflict")
					return nil, ErrOAuthLinkConflict
				}
				return nil, err
			}
			user.GoogleID = &subject
			user.IsVerified = true
		}
		if user.ID == "" {
			if user, err = s.store.Save(ctx, user); err != nil {
				return nil, err
			}
		}
	} else if err != nil {
		return nil, err
	}

	result, err := s.openSession(user)
	if err != nil {
		return nil, err
	}
	s.recordAttempt("oauth", "success")
	return result, nil
}

func (s *AuthFlowService) lookup(ctx context.Context, email string) (*models.User, error) {
	in := emailInput{Email: models.NormalizeEmail(email)}
	if err := validator.ValidateStruct(in); err != nil {
		return nil, err
	}
	return s.store.FindByEmail(ctx, in.Email)
}

func (s *AuthFlowService) reissue(ctx context.Context, user *models.User) error {
	code, err := s.otp.Issue(user)
	if err != nil {
		return err
	}
	if err := s.store.SetOTP(ctx, user.ID, code, *user.OTPExpiresAt); err != nil {
		return err
	}
	return s.deliver(ctx, user, code)
}

// deliver sends a code that has already been persisted. A failed send leaves the
// stored code in place, so the caller may resend without further cleanup.
func (s *AuthFlowService) deliver(ctx context.Context, user *models.User, code string) error {
	err := s.sender.SendOTP(ctx, user, code, s.otp.TTL())
	switch {
	case err == nil:
		metrics.OTPIssued.WithLabelValues("sent").Inc()
		return nil
	case errors.Is(err, mail.ErrSMTPDisabled):
		metrics.OTPIssued.WithLabelValues("skipped").Inc()
		s.log.Warn("smtp disabled, one-time code not emailed", zap.String("user_id", user.ID))
		return nil
	default:
		metrics.OTPIssued.WithLabelValues("failed").Inc()
		s.log.Error("failed to deliver one-time code", zap.String("user_id", user.ID), zap.Error(err))
		return fmt.Errorf("%w: %w", ErrDeliveryFailed, err)
	}
}

func (s *AuthFlowService) openSession(user *models.User) (*AuthResult, error) {
	token, err := s.tokens.Issue(user.ID)
	if err != nil {
		return nil, err
	}
	return &AuthResult{Token: token, User: user.Public()}, nil
}

func (s *AuthFlowService) recordAttempt(flow, result string) {
	metrics.AuthAttempts.WithLabelValues(flow, result).Inc()
}

func otpFailureLabel(err error) string {
	switch {
	case errors.Is(err, auth.ErrOTPMismatch):
		return "mismatch"
	case errors.Is(err, auth.ErrOTPExpired):
		return "expired"
	default:
		return "not_issued"
	}
}

func oauthDisplayName(name, email string) string {
	if name = strings.TrimSpace(name); name != "" {
		return name
	}
	if at := strings.IndexByte(email, '@'); at > 0 {
		return email[:at]
	}
	return email
}
