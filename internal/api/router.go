// Package api wires together all HTTP routes for the dealer CRM backend.
//
// Route grouping:
//   - Tenant routes are mounted twice, at /api/v1 and at /:tenant/api/v1, so a dealer can be
//     addressed by subdomain ({slug}.{app-domain}/api/v1/...) or by path prefix
//     (/{slug}/api/v1/...). Both run the same chain: the tenant is resolved before the
//     credentials are checked, and every query is scoped to the resolved tenant.
//   - Platform routes (/api/v1/admin) are not tenant scoped and require the admin scope.
//   - /health, /ready and /version are unauthenticated.
//
// Prometheus metrics are served by cmd/server on a separate port, not by this router.
package api

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dealer-crm/crm-backend/internal/api/admin"
	"github.com/dealer-crm/crm-backend/internal/api/crm"
	"github.com/dealer-crm/crm-backend/internal/audit"
	"github.com/dealer-crm/crm-backend/internal/auth"
	"github.com/dealer-crm/crm-backend/internal/config"
	"github.com/dealer-crm/crm-backend/internal/db/repositories"
	"github.com/dealer-crm/crm-backend/internal/fieldmap"
	"github.com/dealer-crm/crm-backend/internal/middleware"
	"github.com/dealer-crm/crm-backend/internal/session"
	"github.com/dealer-crm/crm-backend/internal/tenancy"
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
)

// Version is reported by /version and the version command.
const Version = "0.1.0"

// BackgroundServices holds references to background goroutines and clients that must be
// stopped during graceful shutdown. The caller (cmd/server) is responsible for calling
// Shutdown() when the process receives a termination signal.
type BackgroundServices struct {
	rateLimiters  []*middleware.RateLimiter
	sessionStore  *session.MemoryStore
	redisClient   *redis.Client
	auditRecorder *audit.Recorder
}

// Shutdown stops all background goroutines. It should be called after the HTTP
// server has been shut down so that in-flight requests are drained first.
func (bg *BackgroundServices) Shutdown() {
	slog.Info("stopping background services")
	for _, rl := range bg.rateLimiters {
		rl.Stop()
	}
	if bg.sessionStore != nil {
		bg.sessionStore.Stop()
	}
	if bg.auditRecorder != nil {
		if err := bg.auditRecorder.Close(); err != nil {
			slog.Warn("failed to close audit sinks", "error", err)
		}
	}
	if bg.redisClient != nil {
		if err := bg.redisClient.Close(); err != nil {
			slog.Warn("failed to close redis client", "error", err)
		}
	}
	slog.Info("all background services stopped")
}

// NewRouter creates and configures the Gin router
func NewRouter(cfg *config.Config, db *sql.DB) (*gin.Engine, *BackgroundServices) {
	router := gin.New()
	bg := &BackgroundServices{}

	sqlxDB := sqlx.NewDb(db, "postgres")
	tenantRepo := repositories.NewTenantRepository(sqlxDB)
	auditRepo := repositories.NewAuditRepository(sqlxDB)
	pipelineRepo := repositories.NewPipelineRepository(sqlxDB)
	recordRepo := repositories.NewEntityRepository(sqlxDB, repositories.BusinessRecordsSpec)
	equipmentRepo := repositories.NewEntityRepository(sqlxDB, repositories.EquipmentSpec)
	ticketRepo := repositories.NewEntityRepository(sqlxDB, repositories.ServiceTicketsSpec)

	// Redis is shared by the session store and the rate limiters when either uses it.
	if cfg.Session.Backend == "redis" || (cfg.Security.RateLimiting.Enabled && cfg.Security.RateLimiting.Backend == "redis") {
		bg.redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		slog.Info("redis client configured", "addr", cfg.Redis.Addr)
	}

	var sessions session.Store
	if cfg.Session.Backend == "redis" {
		sessions = session.NewRedisStore(bg.redisClient)
	} else {
		mem := session.NewMemoryStore(cfg.Session.SweepInterval)
		bg.sessionStore = mem
		sessions = mem
	}
	cookie := middleware.SessionCookie{
		Name:    cfg.Session.CookieName,
		TTL:     cfg.Session.TTL,
		Secure:  cfg.Security.TLS.Enabled,
		Backend: cfg.Session.Backend,
	}

	var auditWriter middleware.AuditWriter
	if cfg.Audit.Enabled {
		sinks, err := audit.NewSinks(cfg.Audit)
		if err != nil {
			slog.Error("audit export disabled", "error", err)
		}
		bg.auditRecorder = audit.NewRecorder(auditRepo, sinks...)
		auditWriter = bg.auditRecorder
	}

	// Add middleware
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.MetricsMiddleware())
	router.Use(LoggerMiddleware())
	router.Use(CORSMiddleware(cfg))
	router.Use(middleware.SecurityHeadersMiddleware(middleware.APISecurityHeadersConfig(cfg.Security.TLS.Enabled)))

	router.GET("/health", healthCheckHandler(db))
	var redisProbe redis.Cmdable
	if bg.redisClient != nil {
		redisProbe = bg.redisClient
	}
	router.GET("/ready", readinessHandler(db, redisProbe))
	router.GET("/version", versionHandler())

	// Tenant-scoped business routes
	resolver := middleware.TenantResolverMiddleware(tenantRepo, sessions, middleware.TenantResolverOptions{
		Resolver:      tenancy.NewResolver(cfg.Tenancy.AppDomains, cfg.Tenancy.ReservedLabels, cfg.Tenancy.ReservedPrefixes),
		LookupTimeout: cfg.Tenancy.LookupTimeout,
		Cookie:        cookie,
	})

	tenantChain := []gin.HandlerFunc{}
	if cfg.Security.RateLimiting.Enabled {
		limiter := newLimiter(cfg, bg, "crm:", middleware.RateLimitConfig{
			RequestsPerMinute: cfg.Security.RateLimiting.RequestsPerMinute,
			BurstSize:         cfg.Security.RateLimiting.Burst,
			CleanupInterval:   5 * time.Minute,
		})
		tenantChain = append(tenantChain, middleware.RateLimitMiddleware(limiter))
	}
	tenantChain = append(tenantChain,
		resolver,
		middleware.TenantGuardMiddleware(),
		middleware.AuthMiddleware(),
		middleware.RequireMethodScope(auth.ScopeCRMRead, auth.ScopeCRMWrite),
		middleware.AuditMiddleware(auditWriter),
	)

	recordHandlers := crm.NewBusinessRecordHandlers(recordRepo, cfg.Records.StrictValidation)
	equipmentHandlers := crm.NewEntityHandlers(equipmentRepo, fieldmap.EquipmentFields)
	ticketHandlers := crm.NewEntityHandlers(ticketRepo, fieldmap.ServiceTicketFields)
	pipelineHandlers := crm.NewPipelineHandlers(pipelineRepo)

	for _, base := range []string{"/api/v1", "/:tenant/api/v1"} {
		g := router.Group(base, tenantChain...)
		mountEntity(g, "/records", recordHandlers)
		mountEntity(g, "/equipment", equipmentHandlers)
		mountEntity(g, "/tickets", ticketHandlers)
		g.GET("/pipeline", pipelineHandlers.PipelineHandler())
	}

	// Platform administration
	tenantAdmin := admin.NewTenantHandlers(tenantRepo, sessions, cookie)
	auditAdmin := admin.NewAuditLogHandlers(auditRepo)

	adminGroup := router.Group("/api/v1/admin")
	adminGroup.Use(middleware.AuthMiddleware())
	if cfg.Security.RateLimiting.Enabled {
		adminGroup.Use(middleware.RateLimitMiddleware(newLimiter(cfg, bg, "admin:", middleware.AdminRateLimitConfig())))
	}
	{
		tenantsGroup := adminGroup.Group("/tenants", middleware.RequireScope(auth.ScopeAdmin), middleware.AuditMiddleware(auditWriter))
		tenantsGroup.GET("", tenantAdmin.ListTenantsHandler())
		tenantsGroup.POST("", tenantAdmin.CreateTenantHandler())
		tenantsGroup.PATCH("/:slug", tenantAdmin.UpdateTenantHandler())
		tenantsGroup.POST("/:slug/impersonate", tenantAdmin.ImpersonateHandler())

		auditGroup := adminGroup.Group("/audit-logs", middleware.RequireAnyScope(auth.ScopeAuditRead, auth.ScopeAdmin))
		auditGroup.GET("", auditAdmin.ListAuditLogsHandler())
		auditGroup.GET("/:id", auditAdmin.GetAuditLogHandler())
	}

	return router, bg
}

func mountEntity(g *gin.RouterGroup, path string, h *crm.EntityHandlers) {
	g.GET(path, h.ListHandler())
	g.POST(path, h.CreateHandler())
	g.GET(path+"/:id", h.GetHandler())
	g.PATCH(path+"/:id", h.UpdateHandler())
	g.DELETE(path+"/:id", h.DeleteHandler())
}

// newLimiter returns the configured limiter for one route group. In-memory limiters are
// registered with bg so their cleanup goroutines stop on shutdown.
func newLimiter(cfg *config.Config, bg *BackgroundServices, prefix string, rl middleware.RateLimitConfig) middleware.Limiter {
	if cfg.Security.RateLimiting.Backend == "redis" && bg.redisClient != nil {
		return middleware.NewRedisRateLimiter(bg.redisClient, "ratelimit:"+prefix, rl)
	}
	limiter := middleware.NewRateLimiter(rl)
	bg.rateLimiters = append(bg.rateLimiters, limiter)
	return limiter
}

// healthCheckHandler returns the health status of the service
// GET /health
func healthCheckHandler(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"error":  "database connection failed",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status": "healthy",
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// readinessHandler returns the readiness status of the service.
// Unlike the liveness probe (/health), this also checks Redis when a Redis-backed session
// store or limiter is configured, so a readiness gate fails when tenant sessions would break.
// GET /ready
func readinessHandler(db *sql.DB, rdb redis.Cmdable) gin.HandlerFunc {
	return func(c *gin.Context) {
		checks := gin.H{}

		if err := db.PingContext(c.Request.Context()); err != nil {
			checks["database"] = "unhealthy"
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"ready":  false,
				"checks": checks,
				"error":  "database not ready",
			})
			return
		}
		checks["database"] = "healthy"

		if rdb != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			err := rdb.Ping(ctx).Err()
			cancel()
			if err != nil {
				checks["redis"] = "unhealthy"
				c.JSON(http.StatusServiceUnavailable, gin.H{
					"ready":  false,
					"checks": checks,
					"error":  "redis not ready",
				})
				return
			}
			checks["redis"] = "healthy"
		}

		c.JSON(http.StatusOK, gin.H{
			"ready":  true,
			"checks": checks,
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// versionHandler returns the API version
// GET /version
func versionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version":     Version,
			"api_version": "v1",
		})
	}
}

// LoggerMiddleware provides structured logging
func LoggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		logRequest(c, time.Since(start), path, query)
	}
}

// logRequest emits one slog record per request. The output format (json or text) follows the
// handler installed by telemetry.SetupLogger.
func logRequest(c *gin.Context, latency time.Duration, path, query string) {
	attrs := []slog.Attr{
		slog.String("method", c.Request.Method),
		slog.String("path", path),
		slog.String("query", query),
		slog.Int("status", c.Writer.Status()),
		slog.Int("size", c.Writer.Size()),
		slog.Duration("latency", latency),
		slog.String("ip", c.ClientIP()),
		slog.String("request_id", c.GetString(middleware.RequestIDKey)),
		slog.String("user_agent", c.Request.UserAgent()),
	}
	if info, ok := tenancy.FromContext(c.Request.Context()); ok {
		attrs = append(attrs,
			slog.String("tenant_id", info.ID),
			slog.String("tenant_slug", info.Slug),
			slog.String("tenant_source", string(info.Source)),
		)
	}

	level := slog.LevelInfo
	if c.Writer.Status() >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	slog.LogAttrs(c.Request.Context(), level, "http request", attrs...)
}

// CORSMiddleware handles CORS
func CORSMiddleware(cfg *config.Config) gin.HandlerFunc {
	methods := "GET, POST, PATCH, DELETE, OPTIONS"
	if len(cfg.Security.CORS.AllowedMethods) > 0 {
		methods = strings.Join(cfg.Security.CORS.AllowedMethods, ", ")
	}

	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		allowed := false
		for _, allowedOrigin := range cfg.Security.CORS.AllowedOrigins {
			if allowedOrigin == "*" || allowedOrigin == origin {
				allowed = true
				break
			}
		}

		if allowed {
			if origin == "" {
				c.Header("Access-Control-Allow-Origin", "*")
			} else {
				c.Header("Access-Control-Allow-Origin", origin)
				c.Header("Vary", "Origin")
			}
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Access-Control-Allow-Methods", methods)
			c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID")
			c.Header("Access-Control-Max-Age", "3600")
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
