package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/FIipFIop/perp-prediction/internal/analyses"
	"github.com/FIipFIop/perp-prediction/internal/auth"
	"github.com/FIipFIop/perp-prediction/internal/credits"
	"github.com/FIipFIop/perp-prediction/internal/payments"
	"github.com/FIipFIop/perp-prediction/internal/shared/config"
	"github.com/FIipFIop/perp-prediction/internal/shared/metrics"
	"github.com/FIipFIop/perp-prediction/internal/shared/server/middleware"
	"github.com/FIipFIop/perp-prediction/internal/shared/server/respond"
	"github.com/FIipFIop/perp-prediction/internal/shared/telemetry"
)

const (
	rateGroupAnalyze = "ANALYZE"
	rateGroupPayment = "PAYMENT"
)

// RouterDeps carries the handlers mounted by NewRouter.
type RouterDeps struct {
	Config          config.Config
	Sessions        middleware.TokenVerifier
	AnalysisHandler *analyses.Handler
	CreditsHandler  *credits.Handler
	AuthHandler     *auth.Handler
	PaymentHandler  *payments.Handler
	GoogleAuth      *auth.GoogleService
}

// NewRouter constructs the Gin engine with middleware and routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	r.Use(
		middleware.RequestID(),
		middleware.Logging(),
		middleware.Recovery(),
		middleware.CORS(deps.Config.CORSAllowOrigin),
	)
	if deps.Config.OTelExporter != "" {
		r.Use(otelgin.Middleware(telemetry.ServiceName))
	}
	if deps.Sessions != nil {
		r.Use(middleware.Auth(deps.Sessions))
	}

	r.GET("/metrics", metrics.Handler())
	r.NoRoute(func(c *gin.Context) {
		respond.Error(c, http.StatusNotFound, "not_found", "route not found", nil)
	})

	limit := middleware.RateLimit(rateLimitConfig(deps.Config))

	api := r.Group("/api")
	if deps.AnalysisHandler != nil {
		deps.AnalysisHandler.RegisterRoutes(api, limit)
	}
	if deps.CreditsHandler != nil {
		deps.CreditsHandler.RegisterRoutes(api)
	}
	if deps.AuthHandler != nil {
		deps.AuthHandler.RegisterRoutes(api)
	}
	if deps.GoogleAuth != nil {
		deps.GoogleAuth.RegisterRoutes(api)
	}
	if deps.PaymentHandler != nil {
		deps.PaymentHandler.RegisterRoutes(api, limit)
	}

	return r
}

func rateLimitConfig(cfg config.Config) middleware.RateLimitConfig {
	perMin := cfg.RateLimitAnalyzePerMin
	if perMin <= 0 {
		perMin = 10
	}
	return middleware.RateLimitConfig{
		Rules: map[string]middleware.RateLimitRule{
			rateGroupAnalyze: {Rate: float64(perMin) / 60, Burst: perMin},
			rateGroupPayment: {Rate: 1, Burst: 10},
		},
		GroupFor: func(c *gin.Context) string {
			if strings.HasPrefix(c.FullPath(), "/api/payment") {
				return rateGroupPayment
			}
			return rateGroupAnalyze
		},
	}
}

// Addr normalizes the listen address.
func Addr(port string) string {
	if port == "" {
		return ":3000"
	}
	if port[0] == ':' {
		return port
	}
	return ":" + port
}
