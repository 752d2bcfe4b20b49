package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/FIipFIop/perp-prediction/internal/shared/telemetry"
)

// Config holds application configuration.
type Config struct {
	Port            string
	Env             string
	CORSAllowOrigin []string

	OpenRouterAPIKey  string
	OpenRouterBaseURL string
	LLMModel          string
	LLMTimeoutSeconds int

	TelegramBotToken string
	TelegramNotify   bool

	RequireAuthForAnalysis bool
	FreeCredits            int

	DatabaseURL string
	RedisURL    string

	AuthProvider    string
	AuthJWTSecret   string
	SupabaseURL     string
	SupabaseAnonKey string

	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string
	UIRedirectURL      string

	ReceiverWalletAddress string
	CostPerAnalysisSOL    decimal.Decimal
	HeliusAPIKey          string
	HeliusAPIURL          string
	HeliusRPCURL          string

	ChartStore    string
	LocalStoreDir string
	AWSRegion     string
	S3Bucket      string
	S3Prefix      string

	RateLimitAnalyzePerMin int
	OTelExporter           string
	LogLevel               string
}

// Load reads configuration from .env files, an optional CONFIG_FILE and the environment.
func Load() Config {
	cfg, err := LoadFrom(viper.New())
	if err != nil {
		telemetry.Warn("config.load_failed", map[string]any{"error": err.Error(), "fallback": "defaults"})
	}
	return cfg
}

// LoadFrom populates Config using the given viper instance.
func LoadFrom(v *viper.Viper) (Config, error) {
	// Best-effort load of local env files for dev convenience.
	for _, path := range []string{".env", "cmd/.env"} {
		_ = godotenv.Load(path)
	}

	setDefaults(v)
	v.AutomaticEnv()

	var loadErr error
	if path := strings.TrimSpace(v.GetString("CONFIG_FILE")); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				loadErr = fmt.Errorf("read config file %s: %w", path, err)
			}
		}
	}

	env := normalizeEnv(v.GetString("ENV"))
	dbURL := strings.TrimSpace(v.GetString("DATABASE_URL"))
	if env == "production" && dbURL == "" {
		telemetry.Warn("config.database_url_missing", map[string]any{"env": env})
	}

	cost, err := decimal.NewFromString(strings.TrimSpace(v.GetString("COST_PER_ANALYSIS_SOL")))
	if err != nil || !cost.IsPositive() {
		if loadErr == nil && err != nil {
			loadErr = fmt.Errorf("COST_PER_ANALYSIS_SOL: %w", err)
		}
		cost = decimal.RequireFromString(defaultCostPerAnalysis)
	}

	return Config{
		Port:            v.GetString("PORT"),
		Env:             env,
		CORSAllowOrigin: splitAndTrim(v.GetString("CORS_ALLOW_ORIGINS")),

		OpenRouterAPIKey:  strings.TrimSpace(v.GetString("OPENROUTER_API_KEY")),
		OpenRouterBaseURL: v.GetString("OPENROUTER_BASE_URL"),
		LLMModel:          v.GetString("LLM_MODEL"),
		LLMTimeoutSeconds: v.GetInt("LLM_TIMEOUT_SECONDS"),

		TelegramBotToken: strings.TrimSpace(v.GetString("TELEGRAM_BOT_TOKEN")),
		TelegramNotify:   v.GetBool("TELEGRAM_NOTIFY"),

		RequireAuthForAnalysis: v.GetBool("REQUIRE_AUTH_FOR_ANALYSIS"),
		FreeCredits:            v.GetInt("FREE_CREDITS"),

		DatabaseURL: dbURL,
		RedisURL:    strings.TrimSpace(v.GetString("REDIS_URL")),

		AuthProvider:    normalizeAuthProvider(v.GetString("AUTH_PROVIDER")),
		AuthJWTSecret:   v.GetString("AUTH_JWT_SECRET"),
		SupabaseURL:     strings.TrimRight(v.GetString("SUPABASE_URL"), "/"),
		SupabaseAnonKey: v.GetString("SUPABASE_ANON_KEY"),

		GoogleClientID:     v.GetString("GOOGLE_CLIENT_ID"),
		GoogleClientSecret: v.GetString("GOOGLE_CLIENT_SECRET"),
		GoogleRedirectURL:  v.GetString("GOOGLE_REDIRECT_URL"),
		UIRedirectURL:      v.GetString("UI_REDIRECT_URL"),

		ReceiverWalletAddress: strings.TrimSpace(v.GetString("RECEIVER_WALLET_ADDRESS")),
		CostPerAnalysisSOL:    cost,
		HeliusAPIKey:          strings.TrimSpace(v.GetString("HELIUS_API_KEY")),
		HeliusAPIURL:          strings.TrimRight(v.GetString("HELIUS_API_URL"), "/"),
		HeliusRPCURL:          strings.TrimRight(v.GetString("HELIUS_RPC_URL"), "/"),

		ChartStore:    normalizeStoreType(v.GetString("CHART_STORE")),
		LocalStoreDir: v.GetString("LOCAL_STORE_DIR"),
		AWSRegion:     v.GetString("AWS_REGION"),
		S3Bucket:      v.GetString("S3_BUCKET"),
		S3Prefix:      v.GetString("S3_PREFIX"),

		RateLimitAnalyzePerMin: v.GetInt("RATE_LIMIT_ANALYZE_PER_MIN"),
		OTelExporter:           strings.ToLower(strings.TrimSpace(v.GetString("OTEL_EXPORTER"))),
		LogLevel:               strings.ToLower(strings.TrimSpace(v.GetString("LOG_LEVEL"))),
	}, loadErr
}

const defaultCostPerAnalysis = "0.01"

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", "3000")
	v.SetDefault("ENV", "dev")
	v.SetDefault("CORS_ALLOW_ORIGINS", "http://localhost:3000")
	v.SetDefault("OPENROUTER_BASE_URL", "https://openrouter.ai/api/v1")
	v.SetDefault("LLM_MODEL", "nvidia/nemotron-nano-12b-v2-vl:free")
	v.SetDefault("LLM_TIMEOUT_SECONDS", 120)
	v.SetDefault("TELEGRAM_NOTIFY", false)
	v.SetDefault("REQUIRE_AUTH_FOR_ANALYSIS", false)
	v.SetDefault("FREE_CREDITS", 1)
	v.SetDefault("AUTH_PROVIDER", "local")
	v.SetDefault("AUTH_JWT_SECRET", "")
	v.SetDefault("COST_PER_ANALYSIS_SOL", defaultCostPerAnalysis)
	v.SetDefault("HELIUS_API_URL", "https://api.helius.xyz")
	v.SetDefault("HELIUS_RPC_URL", "https://mainnet.helius-rpc.com")
	v.SetDefault("CHART_STORE", "none")
	v.SetDefault("LOCAL_STORE_DIR", "./data")
	v.SetDefault("RATE_LIMIT_ANALYZE_PER_MIN", 10)
	v.SetDefault("OTEL_EXPORTER", "")
	v.SetDefault("LOG_LEVEL", "info")
}

// APIConfigured reports whether the inference credential is present.
func (c Config) APIConfigured() bool {
	return c.OpenRouterAPIKey != ""
}

// IsDevLike reports whether the environment tolerates in-memory fallbacks.
func (c Config) IsDevLike() bool {
	return c.Env == "dev" || c.Env == "local"
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	var out []string
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func normalizeEnv(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "production", "prod":
		return "production"
	case "staging":
		return "staging"
	case "local":
		return "local"
	default:
		return "dev"
	}
}

func normalizeStoreType(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "s3":
		return "s3"
	case "local":
		return "local"
	default:
		return "none"
	}
}

func normalizeAuthProvider(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "supabase":
		return "supabase"
	default:
		return "local"
	}
}
