package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	googleauth "applypilot-backend/internal/auth"
	"applypilot-backend/internal/campaigns"
	"applypilot-backend/internal/dashboard"
	"applypilot-backend/internal/delivery"
	"applypilot-backend/internal/delivery/gmail"
	"applypilot-backend/internal/delivery/httpmail"
	"applypilot-backend/internal/dispatch"
	"applypilot-backend/internal/llm"
	"applypilot-backend/internal/llm/gemini"
	"applypilot-backend/internal/llm/openai"
	"applypilot-backend/internal/resumes"
	"applypilot-backend/internal/session"
	"applypilot-backend/internal/shared/config"
	"applypilot-backend/internal/shared/server"
	"applypilot-backend/internal/shared/server/middleware"
	"applypilot-backend/internal/shared/storage/db"
	"applypilot-backend/internal/shared/storage/object"
	localstore "applypilot-backend/internal/shared/storage/object/local"
	s3store "applypilot-backend/internal/shared/storage/object/s3"
	"applypilot-backend/internal/shared/telemetry"
	"applypilot-backend/internal/users"
)

// App holds shared dependencies.
type App struct {
	Config      config.Config
	Router      *gin.Engine
	DB          *sql.DB
	Store       object.Store
	Sessions    *session.Store
	Resumes     *resumes.Service
	Runner      *dispatch.Runner
	Campaigns   *campaigns.Service
	Users       *users.Service
	Dashboard   *dashboard.Service
	GoogleAuth  *googleauth.GoogleService
	RateLimiter *middleware.RateLimiter
}

// Build prepares every dependency and the router.
func Build(ctx context.Context, cfg config.Config) (*App, error) {
	if strings.TrimSpace(cfg.Env) == "" {
		cfg.Env = "dev"
	}
	if err := cfg.Validate(); err != nil {
		if !isDevLike(cfg.Env) {
			return nil, err
		}
		log.Printf("bootstrap: %v (sign-in disabled)", err)
	}

	sqlDB, err := buildDB(ctx, cfg)
	if err != nil {
		return nil, err
	}
	store, err := buildStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	sessions, err := session.NewStore(nil)
	if err != nil {
		return nil, err
	}

	app := &App{
		Config:   cfg,
		DB:       sqlDB,
		Store:    store,
		Sessions: sessions,
	}
	if err := buildServices(ctx, app); err != nil {
		return nil, err
	}

	app.RateLimiter = middleware.NewRateLimiter(nil)
	app.Router = server.NewRouter(server.RouterDeps{
		Config:      cfg,
		Dashboard:   dashboard.NewHandler(app.Dashboard),
		Users:       users.NewHandler(app.Users),
		GoogleAuth:  app.GoogleAuth,
		RateLimiter: app.RateLimiter,
		Ready:       app.ready,
	})
	return app, nil
}

// StartSweeper drops idle sessions and idle rate limiters until ctx is done.
func (a *App) StartSweeper(ctx context.Context) {
	idle := a.Config.SessionIdleTimeout
	if idle <= 0 {
		return
	}
	interval := idle / 12
	if interval < time.Minute {
		interval = time.Minute
	}
	go a.Sessions.RunSweeper(ctx, interval, idle, func(sess session.Session) {
		a.Dashboard.Release(context.Background(), sess)
	})
	if a.RateLimiter != nil {
		go a.RateLimiter.RunPruner(ctx, interval, idle)
	}
}

// Close releases the database pool.
func (a *App) Close() error {
	if a.DB != nil {
		return a.DB.Close()
	}
	return nil
}

func (a *App) ready(ctx context.Context) map[string]any {
	out := map[string]any{
		"llmProvider":      a.Config.LLMProvider,
		"deliveryProvider": a.Config.DeliveryProvider,
		"database":         "memory",
	}
	if a.DB != nil {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := a.DB.PingContext(pingCtx); err != nil {
			out["database"] = "unreachable"
		} else {
			out["database"] = "postgres"
		}
	}
	return out
}

func buildDB(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		if isDevLike(cfg.Env) {
			log.Printf("bootstrap: DATABASE_URL empty; using in-memory repositories")
			return nil, nil
		}
		return nil, db.ErrNoDatabaseURL
	}

	sqlDB, err := db.Connect(ctx, cfg.DatabaseURL, db.OptionsFromEnv(db.DefaultServerOptions()))
	if err == nil {
		err = db.RunMigrations(ctx, sqlDB)
		if err != nil {
			sqlDB.Close()
		}
	}
	if err != nil {
		if isDevLike(cfg.Env) {
			log.Printf("bootstrap: database unavailable; using in-memory repositories: %v", err)
			return nil, nil
		}
		return nil, err
	}
	return sqlDB, nil
}

func buildStore(ctx context.Context, cfg config.Config) (object.Store, error) {
	switch cfg.ObjectStoreType {
	case "s3":
		if strings.TrimSpace(cfg.S3Bucket) == "" {
			return nil, errors.New("OBJECT_STORE=s3 requires S3_BUCKET")
		}
		return s3store.New(ctx, cfg.AWSRegion, cfg.S3Bucket, cfg.S3Prefix, cfg.SSEKMSKeyID)
	default:
		return localstore.New(cfg.LocalStoreDir), nil
	}
}

func buildServices(ctx context.Context, app *App) error {
	cfg := app.Config

	var userRepo users.Repo
	var campaignRepo campaigns.Repo
	if app.DB != nil {
		userRepo = &users.PGRepo{DB: app.DB}
		campaignRepo = &campaigns.PGRepo{DB: app.DB}
	} else {
		userRepo = users.NewMemoryRepo()
		campaignRepo = campaigns.NewMemoryRepo()
	}
	app.Users = users.NewService(userRepo)
	app.Campaigns = campaigns.NewService(campaignRepo)

	app.GoogleAuth = googleauth.NewGoogleService(googleauth.Options{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  cfg.GoogleRedirectURL,
		UIRedirect:   cfg.UIRedirectURL,
		GmailSend:    cfg.DeliveryProvider == "gmail",
	}, app.Sessions, app.Users)

	runner, err := BuildRunner(ctx, cfg, app.GoogleAuth)
	if err != nil {
		return err
	}
	app.Runner = runner
	app.Resumes = &resumes.Service{Store: app.Store, ExtractText: cfg.ResumeTextExtract}
	app.Dashboard = &dashboard.Service{
		Sessions:            app.Sessions,
		Resumes:             app.Resumes,
		Runner:              runner,
		Campaigns:           app.Campaigns,
		SpreadsheetMaxBytes: cfg.SpreadsheetMaxBytes,
	}
	app.GoogleAuth.OnClose = app.Dashboard.Release
	return nil
}

// BuildRunner wires the configured generator and deliverer. googleAuth may be
// nil outside the API server; Gmail tokens are then used without refresh.
func BuildRunner(ctx context.Context, cfg config.Config, googleAuth *googleauth.GoogleService) (*dispatch.Runner, error) {
	gen, err := buildGenerator(ctx, cfg)
	if err != nil {
		return nil, err
	}
	del, err := buildDeliverer(cfg, googleAuth)
	if err != nil {
		return nil, err
	}
	return &dispatch.Runner{
		Generator:   gen,
		Deliverer:   del,
		CallTimeout: cfg.DispatchCallTimeout,
	}, nil
}

func buildGenerator(ctx context.Context, cfg config.Config) (llm.Generator, error) {
	var (
		gen llm.Generator
		err error
	)
	switch cfg.LLMProvider {
	case "gemini":
		if cfg.GeminiAPIKey != "" {
			gen, err = gemini.NewClient(ctx, cfg.GeminiAPIKey, cfg.LLMModel, "")
		}
	case "openai":
		if cfg.OpenAIAPIKey != "" {
			gen, err = openai.NewClient(cfg.OpenAIAPIKey, cfg.LLMModel)
		}
	}
	if err != nil {
		return nil, err
	}
	if gen != nil {
		return gen, nil
	}
	if cfg.LLMProvider != "none" && !isDevLike(cfg.Env) {
		return nil, fmt.Errorf("LLM_PROVIDER=%s has no API key", cfg.LLMProvider)
	}
	telemetry.Warn("bootstrap.llm_placeholder", map[string]any{"provider": cfg.LLMProvider})
	return llm.PlaceholderGenerator{}, nil
}

func buildDeliverer(cfg config.Config, googleAuth *googleauth.GoogleService) (delivery.Deliverer, error) {
	if cfg.DeliveryProvider == "gmail" {
		client := &gmail.Client{}
		if googleAuth != nil {
			client.OAuth = googleAuth.OAuthConfig()
		}
		return client, nil
	}
	if strings.TrimSpace(cfg.DeliveryURL) == "" {
		if !isDevLike(cfg.Env) {
			return nil, errors.New("DELIVERY_URL is required")
		}
		telemetry.Warn("bootstrap.delivery_unconfigured", nil)
		return delivery.Unconfigured{}, nil
	}
	timeout := cfg.DispatchCallTimeout
	if timeout <= 0 {
		timeout = dispatch.DefaultCallTimeout
	}
	return httpmail.New(cfg.DeliveryURL, &http.Client{Timeout: timeout})
}

func isDevLike(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "dev", "local":
		return true
	default:
		return false
	}
}
