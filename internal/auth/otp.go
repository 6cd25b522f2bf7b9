package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"math/big"
	"time"

	"github.com/pquerna/otp"

	"github.com/charlesng35/notely/internal/models"
)

// DefaultOTPTTL is how long an issued code stays valid.
const DefaultOTPTTL = 10 * time.Minute

const otpSpace = 1_000_000

var (
	ErrOTPNotIssued = errors.New("otp: no code issued")
	ErrOTPMismatch  = errors.New("otp: code mismatch")
	ErrOTPExpired   = errors.New("otp: code expired")
)

// OTPConfig configures an OTPService.
type OTPConfig struct {
	TTL    time.Duration
	Clock  func() time.Time
	Random io.Reader
}

// OTPService issues and checks six digit email codes.
type OTPService struct {
	ttl    time.Duration
	now    func() time.Time
	random io.Reader
}

// NewOTPService constructs an OTPService, falling back to defaults for unset fields.
func NewOTPService(cfg OTPConfig) *OTPService {
	svc := &OTPService{
		ttl:    cfg.TTL,
		now:    cfg.Clock,
		random: cfg.Random,
	}
	if svc.ttl <= 0 {
		svc.ttl = DefaultOTPTTL
	}
	if svc.now == nil {
		svc.now = time.Now
	}
	if svc.random == nil {
		svc.random = rand.Reader
	}
	return svc
}

// TTL reports the configured code lifetime.
func (s *OTPService) TTL() time.Duration {
	return s.ttl
}

// Issue attaches a fresh code to user, replacing any outstanding one. The caller persists it.
func (s *OTPService) Issue(user *models.User) (string, error) {
	if user == nil {
		return "", errors.New("otp: user is required")
	}
	n, err := rand.Int(s.random, big.NewInt(otpSpace))
	if err != nil {
		return "", fmt.Errorf("otp: generate code: %w", err)
	}
	code := otp.DigitsSix.Format(int32(n.Int64()))
	user.SetOTP(code, s.now().Add(s.ttl))
	return code, nil
}

// Verify checks submitted against the code on user and clears it on success.
// The code is expired only when now is strictly after its expiry.
func (s *OTPService) Verify(user *models.User, submitted string) error {
	if user == nil || !user.HasPendingOTP() {
		return ErrOTPNotIssued
	}
	if subtle.ConstantTimeCompare([]byte(*user.OTPCode), []byte(submitted)) != 1 {
		return ErrOTPMismatch
	}
	if s.now().After(*user.OTPExpiresAt) {
		return ErrOTPExpired
	}
	user.ClearOTP()
	return nil
}
