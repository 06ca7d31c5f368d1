// Package main is the entry point for the dealer CRM server binary.
// It dispatches its subcommands (serve, migrate, tenant, token and version) via a simple
// switch on os.Args so the binary's full CLI surface is readable in one place.
// The serve command runs auto-migration on startup when database.auto_migrate is set.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dealer-crm/crm-backend/internal/api"
	"github.com/dealer-crm/crm-backend/internal/auth"
	"github.com/dealer-crm/crm-backend/internal/config"
	"github.com/dealer-crm/crm-backend/internal/db"
	"github.com/dealer-crm/crm-backend/internal/db/models"
	"github.com/dealer-crm/crm-backend/internal/db/repositories"
	"github.com/dealer-crm/crm-backend/internal/telemetry"
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const usage = `usage: %s <command>

commands:
  serve                                 run the HTTP server (default)
  migrate <up|down>                     apply or roll back schema migrations
  tenant create <slug> <name>           provision a tenant
  tenant list                           list tenants
  tenant <activate|deactivate> <slug>   toggle a tenant
  token <tenant-id> <user-id> [scope…]  mint a signed API token
  version                               print the version
`

func main() {
	if err := run(); err != nil {
		log.Fatalf("Error: %v\n", err)
	}
}

func run() error {
	command := "serve"
	if len(os.Args) > 1 {
		command = os.Args[1]
	}
	if command == "version" {
		fmt.Printf("Dealer CRM v%s\n", api.Version)
		return nil
	}

	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	telemetry.SetupLogger(cfg.Logging.Format, cfg.Logging.Level)

	switch command {
	case "serve":
		return serve(cfg)
	case "migrate":
		if len(os.Args) < 3 {
			return fmt.Errorf("usage: %s migrate <up|down>", os.Args[0])
		}
		return runMigrations(cfg, os.Args[2])
	case "tenant":
		return runTenant(cfg, os.Args[2:])
	case "token":
		return mintToken(cfg, os.Args[2:])
	default:
		return fmt.Errorf("unknown command: %s\n"+usage, command, os.Args[0])
	}
}

func connect(cfg *config.Config) (*sqlx.DB, error) {
	database, err := db.Connect(cfg.Database.GetDSN(), db.PoolOptions{
		MaxOpen:         cfg.Database.MaxConnections,
		MaxIdle:         cfg.Database.MinIdleConnections,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return sqlx.NewDb(database, "postgres"), nil
}

func serve(cfg *config.Config) error {
	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	// Fails in production if the signing secret is not set.
	if err := auth.ValidateJWTSecret(); err != nil {
		return fmt.Errorf("security configuration error: %w", err)
	}

	slog.Info("connecting to database",
		"host", cfg.Database.Host,
		"port", cfg.Database.Port,
		"name", cfg.Database.Name,
		"user", cfg.Database.User,
		"sslmode", cfg.Database.SSLMode)

	sqlxDB, err := connect(cfg)
	if err != nil {
		return err
	}
	database := sqlxDB.DB
	defer database.Close()

	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	telemetry.StartDBStatsCollector(ctx, database, 30*time.Second)

	if cfg.Database.AutoMigrate {
		slog.Info("running database migrations")
		if err := db.RunMigrations(database, "up"); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}
	if version, dirty, err := db.GetMigrationVersion(database); err != nil {
		slog.Warn("failed to get migration version", "error", err)
	} else {
		slog.Info("database schema version", "version", version, "dirty", dirty)
	}

	// Metrics live on a dedicated port so the scrape path stays off the public ingress.
	if cfg.Telemetry.Metrics.Enabled {
		metricsAddr := fmt.Sprintf(":%d", cfg.Telemetry.Metrics.PrometheusPort)
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			slog.Info("starting Prometheus metrics server", "addr", metricsAddr)
			srv := &http.Server{
				Addr:         metricsAddr,
				Handler:      mux,
				ReadTimeout:  10 * time.Second,
				WriteTimeout: 10 * time.Second,
			}
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server error", "error", err)
			}
		}()
	}

	router, bgServices := api.NewRouter(cfg, database)

	server := &http.Server{
		Addr:              cfg.Server.GetAddress(),
		Handler:           router,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting server",
			"addr", cfg.Server.GetAddress(),
			"app_domains", cfg.Tenancy.AppDomains,
			"session_backend", cfg.Session.Backend,
			"strict_validation", cfg.Records.StrictValidation)

		var err error
		if cfg.Security.TLS.Enabled {
			err = server.ListenAndServeTLS(cfg.Security.TLS.CertFile, cfg.Security.TLS.KeyFile)
		} else {
			err = server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		bgServices.Shutdown()
		return fmt.Errorf("failed to start server: %w", err)
	}

	slog.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	// Stop rate limiter and session sweep goroutines
	bgServices.Shutdown()

	slog.Info("server stopped gracefully")
	return nil
}

func runMigrations(cfg *config.Config, direction string) error {
	sqlxDB, err := connect(cfg)
	if err != nil {
		return err
	}
	defer sqlxDB.Close()

	slog.Info("running migrations", "direction", direction)
	if err := db.RunMigrations(sqlxDB.DB, direction); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	version, dirty, err := db.GetMigrationVersion(sqlxDB.DB)
	if err != nil {
		return fmt.Errorf("failed to get migration version: %w", err)
	}
	slog.Info("migration completed", "version", version, "dirty", dirty)
	return nil
}

func runTenant(cfg *config.Config, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: %s tenant <create|list|activate|deactivate> ...", os.Args[0])
	}

	sqlxDB, err := connect(cfg)
	if err != nil {
		return err
	}
	defer sqlxDB.Close()

	repo := repositories.NewTenantRepository(sqlxDB)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	switch args[0] {
	case "create":
		if len(args) < 3 {
			return fmt.Errorf("usage: %s tenant create <slug> <name>", os.Args[0])
		}
		t := &models.Tenant{Slug: args[1], Name: args[2], IsActive: true}
		if err := repo.Create(ctx, t); err != nil {
			return err
		}
		fmt.Printf("created tenant %s (%s)\n", t.Slug, t.ID)
		return nil

	case "list":
		tenants, err := repo.List(ctx)
		if err != nil {
			return err
		}
		for _, t := range tenants {
			state := "active"
			if !t.IsActive {
				state = "inactive"
			}
			fmt.Printf("%s\t%s\t%s\t%s\n", t.ID, t.Slug, state, t.Name)
		}
		return nil

	case "activate", "deactivate":
		if len(args) < 2 {
			return fmt.Errorf("usage: %s tenant %s <slug>", os.Args[0], args[0])
		}
		t, err := repo.GetBySlug(ctx, args[1])
		if err != nil {
			return err
		}
		if t == nil {
			return fmt.Errorf("tenant %q not found", args[1])
		}
		if _, err := repo.SetActive(ctx, t.ID, args[0] == "activate"); err != nil {
			return err
		}
		fmt.Printf("tenant %s %sd\n", t.Slug, args[0])
		return nil

	default:
		return fmt.Errorf("unknown tenant command: %s", args[0])
	}
}

// mintToken prints a bearer token. An empty tenant ID ("") mints a platform token, which is
// only useful with the admin scope.
func mintToken(cfg *config.Config, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: %s token <tenant-id> <user-id> [scope...]", os.Args[0])
	}
	scopes := args[2:]
	if len(scopes) == 0 {
		scopes = auth.GetDefaultScopes()
	}
	if err := auth.ValidateScopes(scopes); err != nil {
		return err
	}
	if err := auth.ValidateJWTSecret(); err != nil {
		return fmt.Errorf("security configuration error: %w", err)
	}

	token, err := auth.GenerateJWT(args[1], args[0], scopes, cfg.Auth.JWTTTL)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}
