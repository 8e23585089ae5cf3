package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"github.com/jonesrussell/north-cloud/link-sweeper/internal/api"
	"github.com/jonesrussell/north-cloud/link-sweeper/internal/config"
	"github.com/jonesrussell/north-cloud/link-sweeper/internal/database"
	"github.com/jonesrussell/north-cloud/link-sweeper/internal/logger"
	"github.com/jonesrussell/north-cloud/link-sweeper/internal/server"
	"github.com/jonesrussell/north-cloud/link-sweeper/internal/sweep"
)

// App holds the started infrastructure and services.
type App struct {
	Config   *config.Config
	Logger   logger.Logger
	DB       *sqlx.DB
	Redis    *redis.Client
	Services *Services
	Version  string
}

// Start runs the config, logger, database, scan state and services phases.
func Start(ctx context.Context, configPath string, debug bool, version string) (*App, error) {
	cfg, err := LoadConfig(configPath, debug)
	if err != nil {
		return nil, err
	}

	log, err := CreateLogger(cfg, version)
	if err != nil {
		return nil, err
	}

	db, err := SetupDatabase(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	state, redisClient, err := SetupScanState(cfg, log)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	services, err := NewServices(ctx, cfg, log, Stores{
		Links:      database.NewLinkRepository(db),
		Operations: database.NewOperationRepository(db),
		Documents:  database.NewDocumentRepository(db),
		KV:         database.NewSettingsRepository(db),
		State:      state,
	})
	if err != nil {
		closeAll(db, redisClient)
		return nil, fmt.Errorf("create services: %w", err)
	}

	return &App{
		Config:   cfg,
		Logger:   log,
		DB:       db,
		Redis:    redisClient,
		Services: services,
		Version:  version,
	}, nil
}

// Close releases the database and Redis connections and flushes the logger.
func (a *App) Close() {
	closeAll(a.DB, a.Redis)
	_ = a.Logger.Sync()
}

// Serve runs the HTTP server, and the scheduler when one is configured,
// until ctx is cancelled.
func (a *App) Serve(ctx context.Context) error {
	scheduler, err := a.Services.NewScheduler(a.Config, a.Logger)
	switch {
	case errors.Is(err, sweep.ErrScheduleDisabled):
		a.Logger.Info("Scheduled sweeps disabled")
	case err != nil:
		return err
	default:
		scheduler.Start(ctx)
		defer scheduler.Stop()
	}

	srv := NewServer(a.Config, a.Logger, a.Version, a.Services, a.healthChecks())
	return srv.Run(ctx)
}

func (a *App) healthChecks() map[string]server.HealthCheck {
	checks := map[string]server.HealthCheck{
		"database": func(ctx context.Context) error { return a.DB.PingContext(ctx) },
	}
	if a.Redis != nil {
		checks["redis"] = func(ctx context.Context) error { return a.Redis.Ping(ctx).Err() }
	}
	return checks
}

// NewServer builds the HTTP server with health, metrics and API routes.
func NewServer(
	cfg *config.Config,
	log logger.Logger,
	version string,
	services *Services,
	checks map[string]server.HealthCheck,
) *server.Server {
	serverCfg := server.Config{
		Host:           cfg.Server.Host,
		Port:           cfg.Server.Port,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		Debug:          cfg.Debug,
		ServiceName:    "link-sweeper",
		ServiceVersion: version,
		CORS:           server.CORSConfig{AllowedOrigins: cfg.Server.CORSOrigins},
	}

	handler := api.NewHandler(api.Config{
		Scanner:  services.Scanner,
		Links:    services.Stores.Links,
		Replacer: services.Replacer,
		Rules:    services.Rules,
		Exporter: services.Exporter,
		Settings: services.Settings,
		Logger:   log.With(logger.String("component", "api")),
	})

	return server.New(serverCfg, log, func(r *gin.Engine) {
		server.RegisterHealthRoutes(r, serverCfg.ServiceName, version, checks)
		r.GET("/metrics", gin.WrapH(services.Telemetry.Handler()))
		api.SetupRoutes(r, handler)
	})
}

func closeAll(db *sqlx.DB, client *redis.Client) {
	if client != nil {
		_ = client.Close()
	}
	if db != nil {
		_ = db.Close()
	}
}
