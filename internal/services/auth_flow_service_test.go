package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/notely/internal/auth"
	"github.com/charlesng35/notely/internal/models"
	"github.com/charlesng35/notely/pkg/mail"
	"github.com/charlesng35/notely/pkg/validator"
)

func TestNewAuthFlowServiceRequiresDependencies(t *testing.T) {
	_, err := NewAuthFlowService(nil, nil, nil, nil)
	require.Error(t, err)
}

func TestSignupVerifyScenario(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	email, err := f.svc.Signup(ctx, SignupInput{Name: "Alice", Email: "A@X.com", DateOfBirth: "2000-01-01"})
	require.NoError(t, err)
	require.Equal(t, "a@x.com", email)

	sent := f.sender.last(t)
	require.Equal(t, "a@x.com", sent.Email)
	require.Len(t, sent.Code, 6)
	require.Equal(t, 10*time.Minute, sent.TTL)

	pending, err := f.store.FindByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	require.False(t, pending.IsVerified)
	require.True(t, pending.HasPendingOTP())

	result, err := f.svc.VerifyOTP(ctx, "a@x.com", sent.Code)
	require.NoError(t, err)
	require.NotEmpty(t, result.Token)
	require.True(t, result.User.IsVerified)
	require.Equal(t, "2000-01-01", result.User.DateOfBirth)

	userID, err := f.tokens.Verify(result.Token)
	require.NoError(t, err)
	require.Equal(t, result.User.ID, userID)

	stored, err := f.store.FindByID(ctx, userID)
	require.NoError(t, err)
	require.True(t, stored.IsVerified)
	require.False(t, stored.HasPendingOTP())
}

func TestSignupValidation(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	cases := []SignupInput{
		{Name: "A", Email: "a@x.com", DateOfBirth: "2000-01-01"},
		{Name: "Alice", Email: "not-an-email", DateOfBirth: "2000-01-01"},
		{Name: "Alice", Email: "a@x.com", DateOfBirth: time.Now().AddDate(1, 0, 0).Format("2006-01-02")},
		{Name: "Alice", Email: "a@x.com", DateOfBirth: "yesterday"},
	}
	for _, in := range cases {
		_, err := f.svc.Signup(ctx, in)
		var verrs validator.ValidationErrors
		require.ErrorAs(t, err, &verrs, "input %+v", in)
	}
	require.Zero(t, f.sender.count())
}

func TestSignupVerifiedEmailConflicts(t *testing.T) {
	f := newAuthFixture(t)
	f.verifiedUser(t, "Alice", "alice@example.com")

	_, err := f.svc.Signup(context.Background(), SignupInput{Name: "Mallory", Email: "alice@example.com", DateOfBirth: "1999-01-01"})
	require.ErrorIs(t, err, ErrAccountExists)
}

func TestSignupRepeatedReissuesAndInvalidatesOldCode(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	in := SignupInput{Name: "Bob", Email: "bob@example.com", DateOfBirth: "1985-02-03"}

	_, err := f.svc.Signup(ctx, in)
	require.NoError(t, err)
	first := f.sender.last(t).Code

	in.Name = "Robert"
	_, err = f.svc.Signup(ctx, in)
	require.NoError(t, err)
	second := f.sender.last(t).Code

	user, err := f.store.FindByEmail(ctx, "bob@example.com")
	require.NoError(t, err)
	require.Equal(t, "Robert", user.Name)
	require.Equal(t, second, *user.OTPCode)

	if first != second {
		_, err = f.svc.VerifyOTP(ctx, "bob@example.com", first)
		require.ErrorIs(t, err, ErrInvalidOTP)
	}
	_, err = f.svc.VerifyOTP(ctx, "bob@example.com", second)
	require.NoError(t, err)
}

func TestLoginOutcomes(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	_, err := f.svc.Login(ctx, "ghost@example.com")
	require.ErrorIs(t, err, auth.ErrUserNotFound)

	_, err = f.svc.Login(ctx, "bad-email")
	var verrs validator.ValidationErrors
	require.ErrorAs(t, err, &verrs)

	_, err = f.svc.Signup(ctx, SignupInput{Name: "Carol", Email: "carol@example.com", DateOfBirth: "1970-07-07"})
	require.NoError(t, err)
	_, err = f.svc.Login(ctx, "carol@example.com")
	require.ErrorIs(t, err, ErrAccountNotVerified)

	f.verifiedUser(t, "Dave", "dave@example.com")
	before := f.sender.count()
	email, err := f.svc.Login(ctx, " DAVE@example.com ")
	require.NoError(t, err)
	require.Equal(t, "dave@example.com", email)
	require.Equal(t, before+1, f.sender.count())

	result, err := f.svc.VerifyOTP(ctx, "dave@example.com", f.sender.last(t).Code)
	require.NoError(t, err)
	require.NotEmpty(t, result.Token)
}

func TestVerifyMismatchKeepsCode(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	_, err := f.svc.Signup(ctx, SignupInput{Name: "Erin", Email: "erin@example.com", DateOfBirth: "2001-11-11"})
	require.NoError(t, err)

	user, err := f.store.FindByEmail(ctx, "erin@example.com")
	require.NoError(t, err)
	user.SetOTP("111111", f.clock.Now().Add(10*time.Minute))
	_, err = f.store.Save(ctx, user)
	require.NoError(t, err)

	_, err = f.svc.VerifyOTP(ctx, "erin@example.com", "000000")
	require.ErrorIs(t, err, ErrInvalidOTP)
	require.ErrorIs(t, err, auth.ErrOTPMismatch)

	user, err = f.store.FindByEmail(ctx, "erin@example.com")
	require.NoError(t, err)
	require.False(t, user.IsVerified)

	_, err = f.svc.VerifyOTP(ctx, "erin@example.com", "111111")
	require.NoError(t, err)
}

func TestVerifyExpiryBoundary(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	_, err := f.svc.Signup(ctx, SignupInput{Name: "Frank", Email: "frank@example.com", DateOfBirth: "1960-06-06"})
	require.NoError(t, err)
	code := f.sender.last(t).Code

	f.clock.Advance(10*time.Minute + time.Second)
	_, err = f.svc.VerifyOTP(ctx, "frank@example.com", code)
	require.ErrorIs(t, err, ErrInvalidOTP)
	require.ErrorIs(t, err, auth.ErrOTPExpired)

	require.NoError(t, f.svc.ResendOTP(ctx, "frank@example.com"))
	fresh := f.sender.last(t).Code

	f.clock.Advance(10*time.Minute - time.Second)
	_, err = f.svc.VerifyOTP(ctx, "frank@example.com", fresh)
	require.NoError(t, err)
}

func TestVerifyRejectsReplayAndUnknownEmail(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	_, err := f.svc.VerifyOTP(ctx, "nobody@example.com", "123456")
	require.ErrorIs(t, err, auth.ErrUserNotFound)

	_, err = f.svc.VerifyOTP(ctx, "nobody@example.com", "12345a")
	var verrs validator.ValidationErrors
	require.ErrorAs(t, err, &verrs)

	_, err = f.svc.Signup(ctx, SignupInput{Name: "Gina", Email: "gina@example.com", DateOfBirth: "1995-03-03"})
	require.NoError(t, err)
	code := f.sender.last(t).Code

	_, err = f.svc.VerifyOTP(ctx, "gina@example.com", code)
	require.NoError(t, err)

	_, err = f.svc.VerifyOTP(ctx, "gina@example.com", code)
	require.ErrorIs(t, err, ErrInvalidOTP)
	require.ErrorIs(t, err, auth.ErrOTPNotIssued)
}

type racingStore struct {
	*auth.GormCredentialStore
}

func (racingStore) CompleteVerification(context.Context, string, string) error {
	return auth.ErrOTPNotIssued
}

func TestVerifyLosesRaceWhenCodeAlreadyConsumed(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	_, err := f.svc.Signup(ctx, SignupInput{Name: "Hank", Email: "hank@example.com", DateOfBirth: "1980-08-08"})
	require.NoError(t, err)

	svc, err := NewAuthFlowService(racingStore{f.store}, f.otp, f.tokens, f.sender)
	require.NoError(t, err)

	_, err = svc.VerifyOTP(ctx, "hank@example.com", f.sender.last(t).Code)
	require.ErrorIs(t, err, ErrInvalidOTP)

	user, err := f.store.FindByEmail(ctx, "hank@example.com")
	require.NoError(t, err)
	require.False(t, user.IsVerified)
}

// verifyingStore completes verification right after handing out a read, so the
// caller works with a row that is already stale.
type verifyingStore struct {
	*auth.GormCredentialStore
}

func (s verifyingStore) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	user, err := s.GormCredentialStore.FindByEmail(ctx, email)
	if err != nil || user.IsVerified || user.OTPCode == nil {
		return user, err
	}
	if err := s.CompleteVerification(ctx, user.ID, *user.OTPCode); err != nil {
		return nil, err
	}
	return user, nil
}

func TestConcurrentVerificationSurvivesReissue(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	svc, err := NewAuthFlowService(verifyingStore{f.store}, f.otp, f.tokens, f.sender)
	require.NoError(t, err)

	_, err = f.svc.Signup(ctx, SignupInput{Name: "Jude", Email: "jude@example.com", DateOfBirth: "1985-05-05"})
	require.NoError(t, err)
	require.NoError(t, svc.ResendOTP(ctx, "jude@example.com"))

	user, err := f.store.FindByEmail(ctx, "jude@example.com")
	require.NoError(t, err)
	require.True(t, user.IsVerified)

	_, err = f.svc.Signup(ctx, SignupInput{Name: "Kai", Email: "kai@example.com", DateOfBirth: "1986-06-06"})
	require.NoError(t, err)
	sent := f.sender.count()
	_, err = svc.Signup(ctx, SignupInput{Name: "Kai Again", Email: "kai@example.com", DateOfBirth: "1986-06-06"})
	require.ErrorIs(t, err, ErrAccountExists)
	require.Equal(t, sent, f.sender.count())

	user, err = f.store.FindByEmail(ctx, "kai@example.com")
	require.NoError(t, err)
	require.True(t, user.IsVerified)
	require.Equal(t, "Kai", user.Name)
	require.Nil(t, user.OTPCode)
}

func TestDeliveryFailureAllowsResend(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	f.sender.err = errors.New("connection refused")
	_, err := f.svc.Signup(ctx, SignupInput{Name: "Ivy", Email: "ivy@example.com", DateOfBirth: "1991-09-09"})
	require.ErrorIs(t, err, ErrDeliveryFailed)

	user, err := f.store.FindByEmail(ctx, "ivy@example.com")
	require.NoError(t, err)
	require.True(t, user.HasPendingOTP())

	f.sender.err = nil
	require.NoError(t, f.svc.ResendOTP(ctx, "ivy@example.com"))
	_, err = f.svc.VerifyOTP(ctx, "ivy@example.com", f.sender.last(t).Code)
	require.NoError(t, err)
}

func TestDisabledSMTPCountsAsDelivered(t *testing.T) {
	f := newAuthFixture(t)
	f.sender.err = fmt.Errorf("wrapped: %w", mail.ErrSMTPDisabled)

	_, err := f.svc.Signup(context.Background(), SignupInput{Name: "Jack", Email: "jack@example.com", DateOfBirth: "1975-12-12"})
	require.NoError(t, err)
}

func TestResendUnknownEmail(t *testing.T) {
	f := newAuthFixture(t)
	require.ErrorIs(t, f.svc.ResendOTP(context.Background(), "ghost@example.com"), auth.ErrUserNotFound)
}

func TestOAuthLoginCreatesLinksAndReuses(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	identity := auth.ExternalIdentity{
		Provider:      auth.ProviderGoogle,
		Subject:       "google-1",
		Email:         "Kate@Gmail.com",
		EmailVerified: true,
		Name:          "Kate",
	}
	created, err := f.svc.OAuthLogin(ctx, identity)
	require.NoError(t, err)
	require.True(t, created.User.IsVerified)
	require.Equal(t, "kate@gmail.com", created.User.Email)

	again, err := f.svc.OAuthLogin(ctx, identity)
	require.NoError(t, err)
	require.Equal(t, created.User.ID, again.User.ID)

	// An OTP-registered account gets linked by email.
	existing := f.verifiedUser(t, "Liam", "liam@example.com")
	linked, err := f.svc.OAuthLogin(ctx, auth.ExternalIdentity{
		Provider: auth.ProviderGoogle, Subject: "google-2", Email: "liam@example.com", EmailVerified: true,
	})
	require.NoError(t, err)
	require.Equal(t, existing.User.ID, linked.User.ID)

	user, err := f.store.FindByExternalID(ctx, "google-2")
	require.NoError(t, err)
	require.Equal(t, existing.User.ID, user.ID)

	// A pending account becomes verified through the trusted assertion.
	_, err = f.svc.Signup(ctx, SignupInput{Name: "Mia", Email: "mia@example.com", DateOfBirth: "1993-04-04"})
	require.NoError(t, err)
	pending, err := f.svc.OAuthLogin(ctx, auth.ExternalIdentity{Subject: "google-3", Email: "mia@example.com", EmailVerified: true})
	require.NoError(t, err)
	require.True(t, pending.User.IsVerified)
	require.Equal(t, "Mia", pending.User.Name)
}

func TestOAuthLoginRejectsUntrustedAssertions(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	_, err := f.svc.OAuthLogin(ctx, auth.ExternalIdentity{Subject: "s", Email: "x@example.com"})
	require.ErrorIs(t, err, ErrOAuthEmailUnverified)

	_, err = f.svc.OAuthLogin(ctx, auth.ExternalIdentity{Email: "x@example.com", EmailVerified: true})
	require.ErrorIs(t, err, ErrOAuthIdentityIncomplete)

	_, err = f.svc.OAuthLogin(ctx, auth.ExternalIdentity{Subject: "google-a", Email: "n@example.com", EmailVerified: true})
	require.NoError(t, err)
	_, err = f.svc.OAuthLogin(ctx, auth.ExternalIdentity{Subject: "google-b", Email: "n@example.com", EmailVerified: true})
	require.ErrorIs(t, err, ErrOAuthLinkConflict)
}
