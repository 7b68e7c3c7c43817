// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// CORS, security headers, authentication, idempotency, and rate limiting.
//
// Design goals:
//   - Put observability first (OTel + Prometheus)
//   - Safe-by-default middleware ordering (RequestID → logging → recovery)
//   - Deterministic, minimal router setup; all dependencies injected
//   - Production-ready CORS and security header posture
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	_ "github.com/tbourn/go-notify-backend/docs" // swagger spec registration
	"github.com/tbourn/go-notify-backend/internal/config"
	"github.com/tbourn/go-notify-backend/internal/http/handlers"
	"github.com/tbourn/go-notify-backend/internal/http/middleware"
	"github.com/tbourn/go-notify-backend/internal/realtime"
	"github.com/tbourn/go-notify-backend/internal/services"
)

// Deps carries everything RegisterRoutes needs. BaseContext scopes realtime
// sessions and is cancelled on shutdown.
type Deps struct {
	Config        config.Config
	Notifications *services.NotificationService
	Users         *services.UserService
	Auth          middleware.PrincipalResolver
	Hub           *realtime.Hub
	BaseContext   context.Context
}

// Paths that bypass rate limiting and compression.
const (
	pathHealth  = "/health"
	pathMetrics = "/metrics"
	pathWS      = "/ws"
)

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine and mounts the versioned public API under cfg.APIBasePath.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with PII scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Metrics
//  7. CORS and Security headers
//  8. Authenticate: resolve the bearer token (anonymous on failure)
//  9. Idempotency validator (before rate limiter to allow bypass on replay)
//  10. Rate limiter (per user/IP, bypass on replay)
//  11. Gzip (never on the WebSocket upgrade)
func RegisterRoutes(r *gin.Engine, d Deps) {
	cfg := d.Config
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging with redaction
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{"X-API-Key"},
	}))

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit (1 MiB)
	r.Use(limitBody(1 << 20))

	// 6) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET(pathMetrics, gin.WrapH(promhttp.Handler()))

	// 7) CORS posture and security headers
	r.Use(corsMiddleware(cfg.CORS.AllowedOrigins)...)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		EnablePolicy: true,
	}))

	// 8) Identity
	r.Use(middleware.Authenticate(d.Auth))

	// 9) Idempotency validation (before rate limiting)
	r.Use(middleware.IdempotencyValidator(
		middleware.IdempotencyOptions{MaxLen: 200},
		d.Notifications.HasIdempotencyKey,
	))

	// 10) Token-bucket rate limiter per user/IP
	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByPrincipalOrIP(),
		pathHealth, pathMetrics, pathWS)
	r.Use(rl.Handler())

	// 11) Response compression
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{pathWS, pathMetrics})))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health
	r.GET(pathHealth, func(c *gin.Context) {
		body := gin.H{"status": "ok"}
		if d.Hub != nil {
			body["sessions"] = d.Hub.SessionCount()
		}
		c.JSON(http.StatusOK, body)
	})

	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	// Realtime
	base := d.BaseContext
	if base == nil {
		base = context.Background()
	}
	ws := handlers.NewWSHandler(base, d.Hub, cfg.CORS.AllowedOrigins, realtime.TransportConfig{
		WriteTimeout:    cfg.Realtime.WriteTimeout,
		PongWait:        cfg.Realtime.PongWait,
		PingInterval:    cfg.Realtime.PingInterval,
		MaxMessageBytes: cfg.Realtime.MaxMessageBytes,
	})
	r.GET(pathWS, ws.Serve)

	// Public API
	h := handlers.New(d.Notifications, d.Users)
	api := groupWithPrefix(r, cfg.APIBasePath)
	api.Use(middleware.RequireUser(), middleware.NoStore())
	{
		// Inbox
		api.GET("/notifications", h.ListNotifications)
		api.DELETE("/notifications", h.ClearAll)
		api.GET("/notifications/unread", h.ListUnread)
		api.GET("/notifications/unread/count", h.UnreadCount)
		api.POST("/notifications/read-all", h.MarkAllAsRead)
		api.POST("/notifications/test", h.SendTest)
		api.GET("/notifications/:id", h.GetNotification)
		api.DELETE("/notifications/:id", h.Dismiss)
		api.POST("/notifications/:id/read", h.MarkAsRead)

		// Preferences
		api.GET("/notifications/preferences", h.GetPreferences)
		api.PUT("/notifications/preferences", h.UpdatePreferences)
	}

	staff := api.Group("", middleware.RequireStaff())
	{
		staff.POST("/notifications", h.CreateNotification)
		staff.POST("/notifications/broadcast", h.Broadcast)
		staff.GET("/notifications/stats", h.Stats)
	}
}

// corsMiddleware returns the CORS chain. With no allowlist every origin is
// accepted without credentials; otherwise allowed origins are echoed.
func corsMiddleware(origins []string) []gin.HandlerFunc {
	methods := []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	headers := []string{"Origin", "Content-Type", "Accept", "Authorization", "If-None-Match", middleware.HeaderIdempotencyKey}
	expose := []string{"X-Request-ID", "Content-Length", "ETag", "Idempotent-Replay"}

	if len(origins) == 0 {
		return []gin.HandlerFunc{
			// Force ACAO: * even for requests without an Origin header.
			func(c *gin.Context) {
				c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
				c.Next()
			},
			cors.New(cors.Config{
				AllowAllOrigins:  true,
				AllowMethods:     methods,
				AllowHeaders:     headers,
				ExposeHeaders:    expose,
				AllowCredentials: false, // must remain false with AllowAllOrigins
				MaxAge:           12 * time.Hour,
			}),
		}
	}

	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		allowed[o] = struct{}{}
	}
	return []gin.HandlerFunc{
		func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		},
		cors.New(cors.Config{
			AllowOrigins:     origins,
			AllowMethods:     methods,
			AllowHeaders:     headers,
			ExposeHeaders:    expose,
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}),
	}
}

// limitBody returns a Gin middleware that caps the request body size for all
// endpoints to maxBytes using http.MaxBytesReader. Requests exceeding the cap
// will cause downstream body reads to error.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
