package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const (
	// GoogleIssuer is the issuer Google stamps on ID tokens.
	GoogleIssuer = "https://accounts.google.com"
	// GoogleJWKSURL serves Google's ID token signing keys.
	GoogleJWKSURL = "https://www.googleapis.com/oauth2/v3/certs"

	// ProviderGoogle names the Google identity provider.
	ProviderGoogle = "google"
)

// ErrProviderNotConfigured is returned when a provider has no credentials.
var ErrProviderNotConfigured = errors.New("oauth: provider not configured")

// ExternalIdentity is a verified assertion from an external identity provider.
type ExternalIdentity struct {
	Provider      string
	Subject       string
	Email         string
	EmailVerified bool
	Name          string
}

// GoogleConfig carries the OAuth client registration.
type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Timeout      time.Duration
}

// Configured reports whether the client registration is complete.
func (c GoogleConfig) Configured() bool {
	return strings.TrimSpace(c.ClientID) != "" &&
		strings.TrimSpace(c.ClientSecret) != "" &&
		strings.TrimSpace(c.RedirectURL) != ""
}

// GoogleOption customises a GoogleProvider.
type GoogleOption func(*googleOptions)

type googleOptions struct {
	endpoint   *oauth2.Endpoint
	keySet     oidc.KeySet
	httpClient *http.Client
	now        func() time.Time
}

// WithGoogleEndpoint overrides the authorization and token endpoints.
func WithGoogleEndpoint(endpoint oauth2.Endpoint) GoogleOption {
	return func(o *googleOptions) { o.endpoint = &endpoint }
}

// WithGoogleKeySet overrides the key set used to verify ID token signatures.
func WithGoogleKeySet(keySet oidc.KeySet) GoogleOption {
	return func(o *googleOptions) { o.keySet = keySet }
}

// WithGoogleHTTPClient sets the client used for token exchange and key retrieval.
func WithGoogleHTTPClient(client *http.Client) GoogleOption {
	return func(o *googleOptions) { o.httpClient = client }
}

// WithGoogleClock overrides the clock used for ID token expiry checks.
func WithGoogleClock(now func() time.Time) GoogleOption {
	return func(o *googleOptions) { o.now = now }
}

// GoogleProvider runs the authorization code flow against Google.
type GoogleProvider struct {
	oauth      *oauth2.Config
	verifier   *oidc.IDTokenVerifier
	httpClient *http.Client
	timeout    time.Duration
}

// NewGoogleProvider builds a provider. It returns ErrProviderNotConfigured when
// the registration is incomplete.
func NewGoogleProvider(cfg GoogleConfig, opts ...GoogleOption) (*GoogleProvider, error) {
	if !cfg.Configured() {
		return nil, ErrProviderNotConfigured
	}

	options := googleOptions{}
	for _, opt := range opts {
		opt(&options)
	}

	endpoint := google.Endpoint
	if options.endpoint != nil {
		endpoint = *options.endpoint
	}

	keySet := options.keySet
	if keySet == nil {
		ctx := context.Background()
		if options.httpClient != nil {
			ctx = oidc.ClientContext(ctx, options.httpClient)
		}
		keySet = oidc.NewRemoteKeySet(ctx, GoogleJWKSURL)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &GoogleProvider{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     endpoint,
			Scopes:       []string{oidc.ScopeOpenID, "email", "profile"},
		},
		verifier: oidc.NewVerifier(GoogleIssuer, keySet, &oidc.Config{
			ClientID: cfg.ClientID,
			Now:      options.now,
		}),
		httpClient: options.httpClient,
		timeout:    timeout,
	}, nil
}

// AuthCodeURL returns the consent screen URL for the given state, nonce and PKCE challenge.
func (p *GoogleProvider) AuthCodeURL(state, nonce, challenge string) string {
	return p.oauth.AuthCodeURL(state,
		oidc.Nonce(nonce),
		oauth2.SetAuthURLParam("code_challenge", challenge),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
		oauth2.SetAuthURLParam("prompt", "select_account"),
	)
}

// Exchange redeems code and verifies the returned ID token.
func (p *GoogleProvider) Exchange(ctx context.Context, code, verifier, nonce string) (*ExternalIdentity, error) {
	if strings.TrimSpace(code) == "" {
		return nil, errors.New("google: authorization code missing")
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	if p.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
	}

	token, err := p.oauth.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, fmt.Errorf("google: exchange code: %w", err)
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return nil, errors.New("google: id token missing")
	}

	idToken, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("google: verify id token: %w", err)
	}
	if nonce != "" && idToken.Nonce != nonce {
		return nil, errors.New("google: nonce mismatch")
	}

	var claims struct {
		Email         string `json:"email"`
		EmailVerified any    `json:"email_verified"`
		Name          string `json:"name"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("google: decode claims: %w", err)
	}

	return &ExternalIdentity{
		Provider:      ProviderGoogle,
		Subject:       idToken.Subject,
		Email:         claims.Email,
		EmailVerified: claimTrue(claims.EmailVerified),
		Name:          claims.Name,
	}, nil
}

// claimTrue accepts both boolean and string encodings of a boolean claim.
func claimTrue(v any) bool {
	switch val := v.(type) {
	case bool:
		return val
	case string:
		return strings.EqualFold(val, "true")
	}
	return false
}
