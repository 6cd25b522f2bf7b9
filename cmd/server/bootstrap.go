package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/notely/internal/api"
	"github.com/charlesng35/notely/internal/app"
	"github.com/charlesng35/notely/internal/app/maintenance"
	iauth "github.com/charlesng35/notely/internal/auth"
	"github.com/charlesng35/notely/internal/cache"
	"github.com/charlesng35/notely/internal/database"
	"github.com/charlesng35/notely/internal/middleware"
	"github.com/charlesng35/notely/internal/monitoring"
	"github.com/charlesng35/notely/internal/monitoring/checks"
	"github.com/charlesng35/notely/internal/services"
	"github.com/charlesng35/notely/pkg/logger"
	"github.com/charlesng35/notely/pkg/mail"
)

// runtimeStack bundles long-lived services used by the HTTP server.
type runtimeStack struct {
	DB      *gorm.DB
	Redis   *redis.Client
	Cleaner *maintenance.Cleaner
	Health  *monitoring.HealthManager
	Router  *gin.Engine
}

// bootstrapRuntime initialises the database, cache, services and the HTTP router.
func bootstrapRuntime(ctx context.Context, cfg *app.Config, log *zap.Logger) (*runtimeStack, error) {
	stack := &runtimeStack{}
	var err error
	success := false

	defer func() {
		if !success {
			stack.Shutdown(context.Background(), log)
		}
	}()

	// enable gin debug mod
	if debug, _ := os.LookupEnv("GIN_DEBUG"); debug != "true" {
		gin.SetMode(gin.ReleaseMode)
	}

	stack.DB, err = initialiseDatabase(cfg)
	if err != nil {
		return nil, err
	}

	var (
		store      cache.Store
		redisStore *cache.RedisStore
		dbStore    *cache.DatabaseStore
	)
	if cfg.Cache.Redis.Enabled {
		if stack.Redis, err = cache.NewRedisClient(ctx, cfg.Cache.RedisClientConfig()); err != nil {
			log.Warn("redis unavailable; falling back to database-backed rate counters", zap.Error(err))
		} else {
			redisStore = cache.NewRedisStore(stack.Redis, cfg.Cache.Redis.Prefix)
			store = redisStore
			log.Info("redis connected", zap.String("addr", cfg.Cache.Redis.Address))
		}
	}
	if store == nil {
		dbStore = cache.NewDatabaseStore(stack.DB)
		store = dbStore
	}

	tokens, err := iauth.NewTokenService(cfg.Auth.TokenServiceConfig())
	if err != nil {
		return nil, fmt.Errorf("initialise token service: %w", err)
	}

	credentials, err := iauth.NewGormCredentialStore(stack.DB)
	if err != nil {
		return nil, fmt.Errorf("initialise credential store: %w", err)
	}

	sender, err := newCodeSender(cfg, log)
	if err != nil {
		return nil, err
	}

	flow, err := services.NewAuthFlowService(credentials, iauth.NewOTPService(cfg.Auth.OTPServiceConfig()), tokens, sender)
	if err != nil {
		return nil, fmt.Errorf("initialise auth flow: %w", err)
	}

	notes, err := services.NewNoteService(stack.DB)
	if err != nil {
		return nil, fmt.Errorf("initialise note service: %w", err)
	}

	users, err := services.NewUserService(credentials)
	if err != nil {
		return nil, fmt.Errorf("initialise user service: %w", err)
	}

	// Redis expires its own keys; only the database store needs sweeping.
	var sweep []maintenance.Option
	if dbStore != nil {
		sweep = append(sweep, maintenance.WithCacheSweep(dbStore, cfg.Cache.SweepSchedule))
	}
	stack.Cleaner = maintenance.NewCleaner(sweep...)
	if err := stack.Cleaner.Start(); err != nil {
		return nil, fmt.Errorf("start maintenance jobs: %w", err)
	}

	stack.Health = newHealthManager(cfg, stack, redisStore)

	deps := api.Dependencies{
		Config:    cfg,
		Tokens:    tokens,
		AuthFlow:  flow,
		Notes:     notes,
		Users:     users,
		RateStore: middleware.NewCacheRateStore(store),
		Health:    stack.Health,
	}

	provider, state, err := newGoogleSignIn(cfg)
	switch {
	case errors.Is(err, iauth.ErrProviderNotConfigured):
		log.Info("google sign-in not configured")
	case err != nil:
		return nil, err
	default:
		deps.OAuthProvider = provider
		deps.OAuthState = state
	}

	stack.Router, err = api.NewRouter(deps)
	if err != nil {
		return nil, fmt.Errorf("build api router: %w", err)
	}

	success = true
	return stack, nil
}

// newCodeSender wires the SMTP mailer into the OTP email renderer. With SMTP
// disabled the mailer reports ErrSMTPDisabled and codes are only logged as skipped.
func newCodeSender(cfg *app.Config, log *zap.Logger) (services.CodeSender, error) {
	settings := cfg.Email.SMTPSettings()
	mailer, err := mail.NewSMTPMailer(settings)
	if err != nil {
		return nil, fmt.Errorf("initialise smtp mailer: %w", err)
	}
	if !settings.Enabled {
		log.Warn("smtp disabled; one-time codes will not be emailed")
	}

	sender, err := services.NewOTPMailer(mailer, settings.From, cfg.Email.AppName)
	if err != nil {
		return nil, fmt.Errorf("initialise otp mailer: %w", err)
	}
	return sender, nil
}

func newGoogleSignIn(cfg *app.Config) (*iauth.GoogleProvider, *iauth.StateCodec, error) {
	provider, err := iauth.NewGoogleProvider(cfg.Auth.GoogleProviderConfig())
	if err != nil {
		return nil, nil, err
	}

	key, err := cfg.Auth.StateKey()
	if err != nil {
		return nil, nil, err
	}
	state, err := iauth.NewStateCodec(key, cfg.Auth.Google.StateTTL, time.Now)
	if err != nil {
		return nil, nil, fmt.Errorf("initialise oauth state: %w", err)
	}
	return provider, state, nil
}

func newHealthManager(cfg *app.Config, stack *runtimeStack, redisStore *cache.RedisStore) *monitoring.HealthManager {
	health := monitoring.NewHealthManager()
	timeout := cfg.Monitoring.Health.Timeout

	health.RegisterLiveness(monitoring.NewCheck("process", func(context.Context) monitoring.ProbeResult {
		return monitoring.ProbeResult{Status: monitoring.StatusUp}
	}))

	health.RegisterReadiness(checks.Database(stack.DB, timeout))
	if redisStore != nil {
		health.RegisterReadiness(checks.Redis(redisStore, timeout))
	} else {
		health.RegisterReadiness(checks.Redis(nil, timeout))
	}
	health.RegisterReadiness(checks.Maintenance(stack.Cleaner, 0))

	return health
}

// Shutdown gracefully stops background jobs and releases resources.
func (s *runtimeStack) Shutdown(ctx context.Context, log *zap.Logger) {
	if s == nil {
		return
	}

	if s.Cleaner != nil {
		stopCtx := s.Cleaner.Stop()
		select {
		case <-stopCtx.Done():
		case <-ctx.Done():
			log.Warn("maintenance jobs still running at shutdown")
		}
	}

	if s.Redis != nil {
		if err := s.Redis.Close(); err != nil {
			log.Warn("redis shutdown", zap.Error(err))
		}
	}

	if s.DB != nil {
		if err := database.Close(s.DB); err != nil {
			log.Warn("failed to close database", zap.Error(err))
		}
	}
}

func initialiseDatabase(cfg *app.Config) (*gorm.DB, error) {
	dbCfg := cfg.Database.ConnectionConfig()
	db, err := database.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := database.AutoMigrate(db); err != nil {
		_ = database.Close(db)
		return nil, fmt.Errorf("auto-migrate database: %w", err)
	}

	log := logger.WithModule("database")
	log.Info("database connected", zap.String("driver", strings.ToLower(strings.TrimSpace(dbCfg.Driver))))

	return db, nil
}
