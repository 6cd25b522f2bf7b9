package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/notely/internal/api"
	"github.com/charlesng35/notely/internal/app"
	iauth "github.com/charlesng35/notely/internal/auth"
	sharedtestutil "github.com/charlesng35/notely/internal/database/testutil"
	"github.com/charlesng35/notely/internal/handlers"
	"github.com/charlesng35/notely/internal/middleware"
	"github.com/charlesng35/notely/internal/models"
	"github.com/charlesng35/notely/internal/monitoring"
	"github.com/charlesng35/notely/internal/services"
	"github.com/charlesng35/notely/pkg/response"
)

// FrontendURL is the frontend base the test router redirects to.
const FrontendURL = "http://frontend.test"

// Mailbox records one-time codes instead of emailing them.
type Mailbox struct {
	mu    sync.Mutex
	codes map[string][]string
	Err   error
}

// SendOTP implements services.CodeSender.
func (m *Mailbox) SendOTP(_ context.Context, user *models.User, code string, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	if m.codes == nil {
		m.codes = make(map[string][]string)
	}
	m.codes[user.Email] = append(m.codes[user.Email], code)
	return nil
}

// LastCode returns the most recent code sent to email.
func (m *Mailbox) LastCode(t *testing.T, email string) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	codes := m.codes[email]
	require.NotEmpty(t, codes, "no code sent to %s", email)
	return codes[len(codes)-1]
}

// Count returns how many codes were sent to email.
func (m *Mailbox) Count(email string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.codes[email])
}

// Clock is a settable time source shared by the OTP and token services.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Env encapsulates a fully-wired API instance backed by an in-memory database for handler tests.
type Env struct {
	T       *testing.T
	DB      *gorm.DB
	Router  *gin.Engine
	Tokens  *iauth.TokenService
	Mailbox *Mailbox
	Clock   *Clock
	Config  *app.Config
}

type envOptions struct {
	configure func(*app.Config)
	provider  handlers.IdentityProvider
	rateStore middleware.RateStore
	health    *monitoring.HealthManager
}

// Option customises the test environment.
type Option func(*envOptions)

// WithConfig edits the configuration before the router is built.
func WithConfig(fn func(*app.Config)) Option {
	return func(o *envOptions) { o.configure = fn }
}

// WithIdentityProvider enables Google sign-in backed by provider.
func WithIdentityProvider(provider handlers.IdentityProvider) Option {
	return func(o *envOptions) { o.provider = provider }
}

// WithRateStore overrides the rate counter store.
func WithRateStore(store middleware.RateStore) Option {
	return func(o *envOptions) { o.rateStore = store }
}

// WithHealthManager supplies the probes served by the health endpoints.
func WithHealthManager(health *monitoring.HealthManager) Option {
	return func(o *envOptions) { o.health = health }
}

// NewEnv provisions a fresh handler test environment with migrations applied.
// Rate limiting is off unless enabled through WithConfig.
func NewEnv(t *testing.T, opts ...Option) *Env {
	t.Helper()

	gin.SetMode(gin.TestMode)

	var o envOptions
	for _, opt := range opts {
		opt(&o)
	}

	cfg := &app.Config{
		Server: app.ServerConfig{Port: 5000, FrontendURL: FrontendURL},
		Monitoring: app.MonitoringConfig{
			Prometheus: app.PrometheusConfig{Enabled: true, Endpoint: "/metrics"},
			Health:     app.HealthConfig{Enabled: true},
		},
		Auth: app.AuthConfig{
			JWT: app.JWTSettings{
				Secret: "test-suite-super-secret-key-32-bytes!!",
				Issuer: "test-suite",
				TTL:    time.Hour,
			},
			OTP: app.OTPSettings{TTL: 10 * time.Minute},
		},
	}
	if o.configure != nil {
		o.configure(cfg)
	}

	if o.health == nil {
		o.health = monitoring.NewHealthManager()
	}

	db := sharedtestutil.MustOpenTestDB(t, sharedtestutil.WithAutoMigrate())
	clock := &Clock{now: time.Now().UTC()}

	tokenCfg := cfg.Auth.TokenServiceConfig()
	tokenCfg.Clock = clock.Now
	tokens, err := iauth.NewTokenService(tokenCfg)
	require.NoError(t, err)

	otpCfg := cfg.Auth.OTPServiceConfig()
	otpCfg.Clock = clock.Now
	otp := iauth.NewOTPService(otpCfg)

	store, err := iauth.NewGormCredentialStore(db)
	require.NoError(t, err)

	mailbox := &Mailbox{}
	flow, err := services.NewAuthFlowService(store, otp, tokens, mailbox)
	require.NoError(t, err)
	notes, err := services.NewNoteService(db)
	require.NoError(t, err)
	users, err := services.NewUserService(store)
	require.NoError(t, err)

	deps := api.Dependencies{
		Config:    cfg,
		Tokens:    tokens,
		AuthFlow:  flow,
		Notes:     notes,
		Users:     users,
		RateStore: o.rateStore,
		Health:    o.health,
	}
	if o.provider != nil {
		key, err := cfg.Auth.StateKey()
		require.NoError(t, err)
		state, err := iauth.NewStateCodec(key, iauth.DefaultStateTTL, clock.Now)
		require.NoError(t, err)
		deps.OAuthProvider = o.provider
		deps.OAuthState = state
	}

	router, err := api.NewRouter(deps)
	require.NoError(t, err)

	return &Env{
		T:       t,
		DB:      db,
		Router:  router,
		Tokens:  tokens,
		Mailbox: mailbox,
		Clock:   clock,
		Config:  cfg,
	}
}

// APIResponse represents the canonical API envelope returned by handlers.
type APIResponse struct {
	Success bool                `json:"success"`
	Data    json.RawMessage     `json:"data"`
	Error   *response.ErrorInfo `json:"error"`
}

// DecodeResponse parses the standard API response object from a recorder.
func DecodeResponse(t *testing.T, w *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	var resp APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

// DecodeInto unmarshals the data payload into the provided destination.
func DecodeInto[T any](t *testing.T, raw json.RawMessage, dest *T) {
	t.Helper()
	if dest == nil {
		t.Fatal("destination must not be nil")
	}
	require.NoError(t, json.Unmarshal(raw, dest))
}

// Request executes an HTTP request against the test router, applying JSON encoding and auth headers automatically.
func (e *Env) Request(method, path string, body any, token string) *httptest.ResponseRecorder {
	e.T.Helper()

	var buf *bytes.Buffer
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(e.T, err)
		buf = bytes.NewBuffer(data)
	} else {
		buf = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequest(method, path, buf)
	require.NoError(e.T, err)
	req.RemoteAddr = "192.0.2.10:40000"

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	e.Router.ServeHTTP(w, req)
	return w
}

// SessionPayload mirrors the verify-otp response.
type SessionPayload struct {
	Message string            `json:"message"`
	Token   string            `json:"token"`
	User    models.PublicUser `json:"user"`
}

// Signup registers name/email with a fixed past birth date and returns the code sent.
func (e *Env) Signup(name, email string) string {
	e.T.Helper()

	w := e.Request(http.MethodPost, "/api/auth/signup", map[string]string{
		"name":          name,
		"email":         email,
		"date_of_birth": "1990-04-12",
	}, "")
	require.Equal(e.T, http.StatusOK, w.Code, w.Body.String())
	return e.Mailbox.LastCode(e.T, models.NormalizeEmail(email))
}

// Verify submits a code and returns the session payload.
func (e *Env) Verify(email, code string) SessionPayload {
	e.T.Helper()

	w := e.Request(http.MethodPost, "/api/auth/verify-otp", map[string]string{
		"email": email,
		"otp":   code,
	}, "")
	require.Equal(e.T, http.StatusOK, w.Code, w.Body.String())

	var payload SessionPayload
	DecodeInto(e.T, DecodeResponse(e.T, w).Data, &payload)
	require.NotEmpty(e.T, payload.Token)
	return payload
}

// SignIn registers and verifies a new account, returning its session.
func (e *Env) SignIn(name, email string) SessionPayload {
	e.T.Helper()
	return e.Verify(email, e.Signup(name, email))
}
