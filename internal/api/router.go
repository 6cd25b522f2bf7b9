package api

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/charlesng35/notely/internal/app"
	iauth "github.com/charlesng35/notely/internal/auth"
	"github.com/charlesng35/notely/internal/handlers"
	"github.com/charlesng35/notely/internal/middleware"
	"github.com/charlesng35/notely/internal/monitoring"
	"github.com/charlesng35/notely/internal/services"
)

// Dependencies are the services the HTTP surface is built on. OAuthProvider and
// OAuthState stay nil when Google sign-in is not configured.
type Dependencies struct {
	Config        *app.Config
	Tokens        *iauth.TokenService
	AuthFlow      *services.AuthFlowService
	Notes         *services.NoteService
	Users         *services.UserService
	OAuthProvider handlers.IdentityProvider
	OAuthState    *iauth.StateCodec
	RateStore     middleware.RateStore
	Health        *monitoring.HealthManager
}

func (d Dependencies) validate() error {
	switch {
	case d.Config == nil:
		return errors.New("config must be provided")
	case d.Tokens == nil:
		return errors.New("token service must be provided")
	case d.AuthFlow == nil:
		return errors.New("auth flow service must be provided")
	case d.Notes == nil:
		return errors.New("note service must be provided")
	case d.Users == nil:
		return errors.New("user service must be provided")
	}
	return nil
}

// NewRouter builds the Gin engine, wires middleware and registers every route.
func NewRouter(deps Dependencies) (*gin.Engine, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	cfg := deps.Config
	if deps.RateStore == nil {
		deps.RateStore = middleware.NewMemoryRateStore()
	}

	r := gin.New()
	if err := r.SetTrustedProxies(cfg.Server.TrustedProxies); err != nil {
		return nil, err
	}

	metricsPath := strings.TrimSpace(cfg.Monitoring.Prometheus.Endpoint)
	if metricsPath == "" {
		metricsPath = "/metrics"
	}

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger("/health/live", "/health/ready", metricsPath))
	r.Use(middleware.Metrics())
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS(allowedOrigins(cfg)...))

	authPolicy, otpPolicy, globalPolicy := cfg.Auth.RatePolicies()

	registerHealthRoutes(r, cfg, handlers.NewHealthHandler(deps.Health))

	api := r.Group("/api")
	api.Use(middleware.RateLimit(deps.RateStore, globalPolicy))

	registerAuthRoutes(api, authRouteDeps{
		AuthHandler:  handlers.NewAuthHandler(deps.AuthFlow),
		OAuthHandler: handlers.NewOAuthHandler(deps.OAuthProvider, deps.OAuthState, deps.AuthFlow, cfg.Server.FrontendURL),
		AuthLimit:    middleware.RateLimit(deps.RateStore, authPolicy),
		OTPLimit:     middleware.RateLimit(deps.RateStore, otpPolicy),
	})

	protected := api.Group("")
	protected.Use(middleware.Auth(deps.Tokens))

	registerNoteRoutes(protected, handlers.NewNoteHandler(deps.Notes))
	registerProfileRoutes(protected, handlers.NewProfileHandler(deps.Users))

	if cfg.Monitoring.Prometheus.Enabled {
		r.GET(metricsPath, gin.WrapH(promhttp.Handler()))
	}

	// NotFound fallback
	r.NoRoute(middleware.NotFoundHandler)

	return r, nil
}

// allowedOrigins defaults to the frontend when no explicit list is configured.
func allowedOrigins(cfg *app.Config) []string {
	if len(cfg.Server.AllowedOrigins) > 0 {
		return cfg.Server.AllowedOrigins
	}
	if frontend := strings.TrimSpace(cfg.Server.FrontendURL); frontend != "" {
		return []string{frontend}
	}
	return nil
}
