package handlers_test

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/notely/internal/auth"
	"github.com/charlesng35/notely/internal/handlers/testutil"
	"github.com/charlesng35/notely/internal/models"
)

type fakeProvider struct {
	identity  auth.ExternalIdentity
	err       error
	challenge string
	nonce     string
}

func (p *fakeProvider) AuthCodeURL(state, nonce, challenge string) string {
	p.challenge = challenge
	p.nonce = nonce
	q := url.Values{"state": {state}, "nonce": {nonce}, "code_challenge": {challenge}}
	return "https://accounts.test/authorize?" + q.Encode()
}

func (p *fakeProvider) Exchange(_ context.Context, code, verifier, nonce string) (*auth.ExternalIdentity, error) {
	if p.err != nil {
		return nil, p.err
	}
	if code != "good-code" || auth.PKCEChallenge(verifier) != p.challenge || nonce != p.nonce {
		return nil, errors.New("exchange rejected")
	}
	identity := p.identity
	return &identity, nil
}

func beginOAuth(t *testing.T, env *testutil.Env) string {
	t.Helper()
	resp := env.Request(http.MethodGet, "/api/auth/google", nil, "")
	require.Equal(t, http.StatusFound, resp.Code)
	location, err := url.Parse(resp.Header().Get("Location"))
	require.NoError(t, err)
	require.Equal(t, "accounts.test", location.Host)
	state := location.Query().Get("state")
	require.NotEmpty(t, state)
	return state
}

func callbackRedirect(t *testing.T, env *testutil.Env, query url.Values) *url.URL {
	t.Helper()
	resp := env.Request(http.MethodGet, "/api/auth/google/callback?"+query.Encode(), nil, "")
	require.Equal(t, http.StatusSeeOther, resp.Code)
	location, err := url.Parse(resp.Header().Get("Location"))
	require.NoError(t, err)
	return location
}

func TestOAuthHandler_NotConfigured(t *testing.T) {
	env := testutil.NewEnv(t)

	begin := env.Request(http.MethodGet, "/api/auth/google", nil, "")
	require.Equal(t, http.StatusBadRequest, begin.Code)
	decoded := testutil.DecodeResponse(t, begin)
	require.Equal(t, "auth.provider_not_configured", decoded.Error.Code)

	location := callbackRedirect(t, env, url.Values{"code": {"x"}})
	require.Equal(t, testutil.FrontendURL+"/signin?error=google_not_configured", location.String())
}

func TestOAuthHandler_CreatesAccount(t *testing.T) {
	provider := &fakeProvider{identity: auth.ExternalIdentity{
		Provider:      auth.ProviderGoogle,
		Subject:       "google-123",
		Email:         "New.User@Example.com",
		EmailVerified: true,
		Name:          "New User",
	}}
	env := testutil.NewEnv(t, testutil.WithIdentityProvider(provider))

	state := beginOAuth(t, env)
	location := callbackRedirect(t, env, url.Values{"state": {state}, "code": {"good-code"}})
	require.Equal(t, "/dashboard", location.Path)
	token := location.Query().Get("token")
	require.NotEmpty(t, token)

	userID, err := env.Tokens.Verify(token)
	require.NoError(t, err)

	var user models.User
	require.NoError(t, env.DB.First(&user, "id = ?", userID).Error)
	require.Equal(t, "new.user@example.com", user.Email)
	require.Equal(t, "New User", user.Name)
	require.True(t, user.IsVerified)
	require.NotNil(t, user.GoogleID)
	require.Equal(t, "google-123", *user.GoogleID)

	// a second sign-in reuses the linked account
	state = beginOAuth(t, env)
	again := callbackRedirect(t, env, url.Values{"state": {state}, "code": {"good-code"}})
	againID, err := env.Tokens.Verify(again.Query().Get("token"))
	require.NoError(t, err)
	require.Equal(t, userID, againID)
}

func TestOAuthHandler_LinksExistingEmailAccount(t *testing.T) {
	provider := &fakeProvider{identity: auth.ExternalIdentity{
		Provider:      auth.ProviderGoogle,
		Subject:       "google-ada",
		Email:         "ada@example.com",
		EmailVerified: true,
	}}
	env := testutil.NewEnv(t, testutil.WithIdentityProvider(provider))
	session := env.SignIn("Ada Lovelace", "ada@example.com")

	state := beginOAuth(t, env)
	location := callbackRedirect(t, env, url.Values{"state": {state}, "code": {"good-code"}})
	userID, err := env.Tokens.Verify(location.Query().Get("token"))
	require.NoError(t, err)
	require.Equal(t, session.User.ID, userID)
}

func TestOAuthHandler_Failures(t *testing.T) {
	provider := &fakeProvider{identity: auth.ExternalIdentity{
		Provider:      auth.ProviderGoogle,
		Subject:       "google-123",
		Email:         "someone@example.com",
		EmailVerified: true,
	}}
	env := testutil.NewEnv(t, testutil.WithIdentityProvider(provider))
	failed := testutil.FrontendURL + "/signin?error=google_auth_failed"

	t.Run("provider error", func(t *testing.T) {
		location := callbackRedirect(t, env, url.Values{"error": {"access_denied"}})
		require.Equal(t, failed, location.String())
	})

	t.Run("tampered state", func(t *testing.T) {
		state := beginOAuth(t, env)
		location := callbackRedirect(t, env, url.Values{"state": {state + "x"}, "code": {"good-code"}})
		require.Equal(t, failed, location.String())
	})

	t.Run("missing code", func(t *testing.T) {
		state := beginOAuth(t, env)
		location := callbackRedirect(t, env, url.Values{"state": {state}})
		require.Equal(t, failed, location.String())
	})

	t.Run("exchange rejected", func(t *testing.T) {
		state := beginOAuth(t, env)
		location := callbackRedirect(t, env, url.Values{"state": {state}, "code": {"bad-code"}})
		require.Equal(t, failed, location.String())
	})

	t.Run("unverified email", func(t *testing.T) {
		provider.identity.EmailVerified = false
		t.Cleanup(func() { provider.identity.EmailVerified = true })
		state := beginOAuth(t, env)
		location := callbackRedirect(t, env, url.Values{"state": {state}, "code": {"good-code"}})
		require.Equal(t, failed, location.String())
	})

	var count int64
	require.NoError(t, env.DB.Model(&models.User{}).Count(&count).Error)
	require.Zero(t, count)
}
