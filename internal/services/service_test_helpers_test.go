package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/notely/internal/auth"
	"github.com/charlesng35/notely/internal/database/testutil"
	"github.com/charlesng35/notely/internal/models"
)

type sentCode struct {
	Email string
	Code  string
	TTL   time.Duration
}

type fakeSender struct {
	mu   sync.Mutex
	sent []sentCode
	err  error
}

func (f *fakeSender) SendOTP(_ context.Context, user *models.User, code string, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentCode{Email: user.Email, Code: code, TTL: ttl})
	return nil
}

func (f *fakeSender) last(t *testing.T) sentCode {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.sent, "expected a code to be sent")
	return f.sent[len(f.sent)-1]
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type authFixture struct {
	db     *gorm.DB
	store  *auth.GormCredentialStore
	otp    *auth.OTPService
	tokens *auth.TokenService
	sender *fakeSender
	clock  *testClock
	svc    *AuthFlowService
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()

	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	store, err := auth.NewGormCredentialStore(db)
	require.NoError(t, err)

	clock := &testClock{now: time.Now().UTC()}
	otp := auth.NewOTPService(auth.OTPConfig{Clock: clock.Now})
	tokens, err := auth.NewTokenService(auth.TokenConfig{Secret: "test-secret", Issuer: "notely", Clock: clock.Now})
	require.NoError(t, err)

	sender := &fakeSender{}
	svc, err := NewAuthFlowService(store, otp, tokens, sender)
	require.NoError(t, err)

	return &authFixture{db: db, store: store, otp: otp, tokens: tokens, sender: sender, clock: clock, svc: svc}
}

// verifiedUser registers email and completes verification.
func (f *authFixture) verifiedUser(t *testing.T, name, email string) *AuthResult {
	t.Helper()
	ctx := context.Background()
	_, err := f.svc.Signup(ctx, SignupInput{Name: name, Email: email, DateOfBirth: "1990-05-17"})
	require.NoError(t, err)
	result, err := f.svc.VerifyOTP(ctx, email, f.sender.last(t).Code)
	require.NoError(t, err)
	return result
}
