package services

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/notely/internal/auth"
)

func TestUserProfile(t *testing.T) {
	f := newAuthFixture(t)
	result := f.verifiedUser(t, "Nora", "nora@example.com")

	svc, err := NewUserService(f.store)
	require.NoError(t, err)

	profile, err := svc.Profile(context.Background(), result.User.ID)
	require.NoError(t, err)
	require.Equal(t, "Nora", profile.Name)
	require.Equal(t, "nora@example.com", profile.Email)
	require.Equal(t, "1990-05-17", profile.DateOfBirth)
	require.True(t, profile.IsVerified)

	raw, err := json.Marshal(profile)
	require.NoError(t, err)
	require.NotContains(t, string(raw), "otp")
	require.NotContains(t, string(raw), "password")

	_, err = svc.Profile(context.Background(), "missing")
	require.ErrorIs(t, err, auth.ErrUserNotFound)

	_, err = NewUserService(nil)
	require.Error(t, err)
}
