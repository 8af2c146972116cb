package server

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	googleauth "applypilot-backend/internal/auth"
	"applypilot-backend/internal/dashboard"
	"applypilot-backend/internal/shared/config"
	"applypilot-backend/internal/shared/metrics"
	"applypilot-backend/internal/shared/server/middleware"
	"applypilot-backend/internal/shared/server/respond"
	"applypilot-backend/internal/users"
)

// Rate limit groups.
const (
	GroupDispatch = "DISPATCH"
	GroupUpload   = "UPLOAD"
	GroupDefault  = "DEFAULT"
)

// RouterDeps are the handlers mounted under /api/v1.
type RouterDeps struct {
	Config      config.Config
	Dashboard   *dashboard.Handler
	Users       *users.Handler
	GoogleAuth  *googleauth.GoogleService
	RateLimiter *middleware.RateLimiter
	// Ready reports dependency health for /api/v1/health. Nil means always ok.
	Ready func(ctx context.Context) map[string]any
}

// DefaultRateLimits are the per-user token buckets.
func DefaultRateLimits() map[string]middleware.RateLimitRule {
	return map[string]middleware.RateLimitRule{
		GroupDispatch: {Rate: 6.0 / 60.0, Burst: 2},
		GroupUpload:   {Rate: 1, Burst: 5},
		GroupDefault:  {Rate: 5, Burst: 20},
	}
}

// NewRouter constructs the Gin engine with middleware and routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	if gin.Mode() != gin.TestMode {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()

	r.Use(
		middleware.RequestID(),
		middleware.Logging(),
		middleware.Recovery(),
		middleware.CORS(deps.Config.CORSAllowOrigin),
		middleware.Auth(),
		middleware.RateLimit(middleware.RateLimitConfig{
			Rules:        DefaultRateLimits(),
			DefaultGroup: GroupDefault,
			GroupFor:     rateLimitGroup,
			Limiter:      deps.RateLimiter,
		}),
	)

	r.GET("/metrics", metrics.Handler())

	api := r.Group("/api/v1")
	api.GET("/health", func(c *gin.Context) {
		body := gin.H{"ok": true}
		if deps.Ready != nil {
			for k, v := range deps.Ready(c.Request.Context()) {
				body[k] = v
			}
		}
		respond.JSON(c, http.StatusOK, body)
	})
	if deps.GoogleAuth != nil {
		deps.GoogleAuth.RegisterRoutes(api)
	}
	if deps.Users != nil {
		deps.Users.RegisterRoutes(api)
	}
	if deps.Dashboard != nil {
		deps.Dashboard.RegisterRoutes(api)
	}

	return r
}

func rateLimitGroup(c *gin.Context) string {
	if c.Request.Method != http.MethodPost {
		return GroupDefault
	}
	switch c.Request.URL.Path {
	case "/api/v1/dispatch":
		return GroupDispatch
	case "/api/v1/recipients", "/api/v1/resume":
		return GroupUpload
	}
	return GroupDefault
}

// Addr normalizes the listen address.
func Addr(port string) string {
	if port == "" {
		return ":8080"
	}
	if port[0] == ':' {
		return port
	}
	return ":" + port
}
