package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/FIipFIop/perp-prediction/internal/analyses"
	"github.com/FIipFIop/perp-prediction/internal/auth"
	"github.com/FIipFIop/perp-prediction/internal/credits"
	"github.com/FIipFIop/perp-prediction/internal/indexer/helius"
	"github.com/FIipFIop/perp-prediction/internal/llm"
	"github.com/FIipFIop/perp-prediction/internal/llm/openrouter"
	"github.com/FIipFIop/perp-prediction/internal/payments"
	sharedauth "github.com/FIipFIop/perp-prediction/internal/shared/auth"
	"github.com/FIipFIop/perp-prediction/internal/shared/config"
	"github.com/FIipFIop/perp-prediction/internal/shared/server"
	"github.com/FIipFIop/perp-prediction/internal/shared/storage/cache"
	"github.com/FIipFIop/perp-prediction/internal/shared/storage/db"
	"github.com/FIipFIop/perp-prediction/internal/shared/storage/object"
	localstore "github.com/FIipFIop/perp-prediction/internal/shared/storage/object/local"
	s3store "github.com/FIipFIop/perp-prediction/internal/shared/storage/object/s3"
	"github.com/FIipFIop/perp-prediction/internal/shared/telemetry"
	"github.com/FIipFIop/perp-prediction/internal/telegram"
	"github.com/FIipFIop/perp-prediction/internal/users"
)

const signatureClaimTTL = 24 * time.Hour

// App holds shared dependencies and the assembled router.
type App struct {
	Config config.Config
	Router *gin.Engine
	DB     *sql.DB
	Redis  *cache.RedisClient
	Store  object.ObjectStore

	UsersService    *users.Service
	CreditsService  *credits.Service
	AnalysesService *analyses.Service
	PaymentsService *payments.Service
	Sessions        *auth.SessionVerifier
	AuthProvider    auth.Provider

	AnalysisHandler *analyses.Handler
	CreditsHandler  *credits.Handler
	AuthHandler     *auth.Handler
	PaymentHandler  *payments.Handler
	GoogleAuth      *auth.GoogleService
}

// Build prepares dependencies and wires the router.
func Build(cfg config.Config) (*App, error) {
	if strings.TrimSpace(cfg.Env) == "" {
		cfg.Env = "dev"
	}
	ctx := context.Background()

	sqlDB, err := buildDB(ctx, cfg)
	if err != nil {
		return nil, err
	}

	redisClient, err := buildRedis(ctx, cfg)
	if err != nil {
		return nil, err
	}

	store, err := buildStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	app := &App{
		Config: cfg,
		DB:     sqlDB,
		Redis:  redisClient,
		Store:  store,
	}

	if err := buildServices(app); err != nil {
		return nil, err
	}

	app.Router = server.NewRouter(server.RouterDeps{
		Config:          app.Config,
		Sessions:        app.Sessions,
		AnalysisHandler: app.AnalysisHandler,
		CreditsHandler:  app.CreditsHandler,
		AuthHandler:     app.AuthHandler,
		PaymentHandler:  app.PaymentHandler,
		GoogleAuth:      app.GoogleAuth,
	})

	return app, nil
}

// Close waits for in-flight notifications and releases pooled connections.
func (a *App) Close() {
	if a.AnalysesService != nil {
		a.AnalysesService.Wait()
	}
	if a.Redis != nil {
		a.Redis.Close()
	}
	if a.DB != nil {
		_ = a.DB.Close()
	}
}

func buildDB(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		if cfg.IsDevLike() {
			telemetry.Warn("bootstrap.db.memory_fallback", map[string]any{"reason": "DATABASE_URL empty"})
			return nil, nil
		}
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	sqlDB, err := db.Open(ctx, cfg.DatabaseURL, db.RuntimeRole())
	if err != nil {
		if cfg.IsDevLike() {
			telemetry.Warn("bootstrap.db.memory_fallback", map[string]any{"reason": "connect failed", "error": err.Error()})
			return nil, nil
		}
		return nil, err
	}

	if err := db.RunMigrations(ctx, sqlDB); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return sqlDB, nil
}

func buildRedis(ctx context.Context, cfg config.Config) (*cache.RedisClient, error) {
	if strings.TrimSpace(cfg.RedisURL) == "" {
		return nil, nil
	}
	client, err := cache.Connect(ctx, cfg.RedisURL)
	if err != nil {
		if cfg.IsDevLike() {
			telemetry.Warn("bootstrap.redis.memory_fallback", map[string]any{"error": err.Error()})
			return nil, nil
		}
		return nil, err
	}
	return client, nil
}

func buildStore(ctx context.Context, cfg config.Config) (object.ObjectStore, error) {
	switch cfg.ChartStore {
	case "s3":
		if strings.TrimSpace(cfg.S3Bucket) == "" {
			return nil, fmt.Errorf("CHART_STORE=s3 requires S3_BUCKET")
		}
		return s3store.New(ctx, cfg.AWSRegion, cfg.S3Bucket, cfg.S3Prefix)
	case "local":
		return localstore.New(cfg.LocalStoreDir), nil
	default:
		return nil, nil
	}
}

func buildServices(app *App) error {
	cfg := app.Config

	var userRepo users.Repo
	var analysisRepo analyses.Repo
	var paymentRepo payments.Repo
	var creditSvc *credits.Service
	if app.DB != nil {
		userRepo = &users.PGRepo{DB: app.DB}
		analysisRepo = &analyses.PGRepo{DB: app.DB}
		paymentRepo = &payments.PGRepo{DB: app.DB}
		creditSvc = credits.NewServiceWithStore(credits.NewPGStore(app.DB, cfg.FreeCredits))
	} else {
		userRepo = users.NewMemoryRepo()
		analysisRepo = analyses.NewMemoryRepo()
		paymentRepo = payments.NewMemoryRepo()
		creditSvc = credits.NewService(cfg.FreeCredits)
	}

	var revocations auth.RevocationStore = auth.NewMemoryRevocations()
	var ledger payments.SignatureLedger = payments.NewMemoryLedger()
	if app.Redis != nil {
		revocations = &auth.RedisRevocations{Client: app.Redis.Client}
		ledger = &payments.RedisLedger{Client: app.Redis.Client, TTL: signatureClaimTTL}
	}

	issuer, err := sharedauth.NewIssuer(cfg.AuthJWTSecret, cfg.Env)
	if err != nil {
		return err
	}
	sessions := auth.NewSessionVerifier(issuer, revocations)
	userSvc := users.NewService(userRepo)

	var provider auth.Provider
	switch cfg.AuthProvider {
	case "supabase":
		supabase, err := auth.NewSupabaseProvider(cfg.SupabaseURL, cfg.SupabaseAnonKey)
		if err != nil {
			return err
		}
		provider = supabase
	default:
		provider = auth.NewLocalProvider(userSvc, issuer)
		app.GoogleAuth = auth.NewGoogleService(
			cfg.GoogleClientID,
			cfg.GoogleClientSecret,
			cfg.GoogleRedirectURL,
			cfg.UIRedirectURL,
			userSvc,
			issuer,
		)
	}

	chartAnalyzer, err := buildAnalyzer(cfg)
	if err != nil {
		return err
	}
	var notifier analyses.Notifier
	if cfg.TelegramNotify && cfg.TelegramBotToken != "" {
		botNotifier, err := telegram.NewBotNotifier(cfg.TelegramBotToken)
		if err != nil {
			telemetry.Warn("bootstrap.telegram.disabled", map[string]any{"error": err.Error()})
		} else {
			notifier = botNotifier
		}
	}
	analysisSvc := analyses.NewService(chartAnalyzer, creditSvc, analysisRepo, app.Store, notifier, cfg.LLMModel)

	var indexer payments.Indexer
	if cfg.HeliusAPIKey != "" {
		client, err := helius.NewClient(helius.Options{
			APIKey: cfg.HeliusAPIKey,
			APIURL: cfg.HeliusAPIURL,
			RPCURL: cfg.HeliusRPCURL,
		})
		if err != nil {
			return err
		}
		indexer = client
	} else {
		telemetry.Warn("bootstrap.payments.disabled", map[string]any{"reason": "HELIUS_API_KEY empty"})
	}
	paymentSvc := payments.NewService(paymentRepo, ledger, indexer, creditSvc, cfg.ReceiverWalletAddress, cfg.CostPerAnalysisSOL)

	app.UsersService = userSvc
	app.CreditsService = creditSvc
	app.AnalysesService = analysisSvc
	app.PaymentsService = paymentSvc
	app.Sessions = sessions
	app.AuthProvider = provider

	app.AnalysisHandler = analyses.NewHandler(analysisSvc, cfg.TelegramBotToken, cfg.RequireAuthForAnalysis)
	app.CreditsHandler = credits.NewHandler(creditSvc)
	app.AuthHandler = auth.NewHandler(provider, sessions, creditSvc)
	app.PaymentHandler = payments.NewHandler(paymentSvc)
	return nil
}

// buildAnalyzer returns nil when no inference key is configured so /api/health and
// /api/analyze can report it.
func buildAnalyzer(cfg config.Config) (llm.ChartAnalyzer, error) {
	if !cfg.APIConfigured() {
		telemetry.Warn("bootstrap.analysis.disabled", map[string]any{"reason": "OPENROUTER_API_KEY empty"})
		return nil, nil
	}
	client, err := openrouter.NewClient(openrouter.Options{
		APIKey:  cfg.OpenRouterAPIKey,
		BaseURL: cfg.OpenRouterBaseURL,
		Model:   cfg.LLMModel,
		Timeout: time.Duration(cfg.LLMTimeoutSeconds) * time.Second,
	})
	if err != nil {
		return nil, err
	}
	return llm.WithRetry(client), nil
}
