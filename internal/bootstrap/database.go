package bootstrap

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/jonesrussell/north-cloud/link-sweeper/internal/config"
	"github.com/jonesrussell/north-cloud/link-sweeper/internal/database"
	"github.com/jonesrussell/north-cloud/link-sweeper/internal/logger"
)

// DatabaseConfig maps the service configuration to connection settings.
func DatabaseConfig(cfg *config.Config) database.Config {
	return database.Config{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		DBName:          cfg.Database.DBName,
		SSLMode:         cfg.Database.SSLMode,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}
}

// SetupDatabase connects to PostgreSQL and brings the schema up to date.
func SetupDatabase(ctx context.Context, cfg *config.Config, log logger.Logger) (*sqlx.DB, error) {
	log.Info("Connecting to PostgreSQL database",
		logger.String("host", cfg.Database.Host),
		logger.Int("port", cfg.Database.Port),
		logger.String("database", cfg.Database.DBName),
	)

	db, err := database.NewPostgresConnection(ctx, DatabaseConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	if err = database.Migrate(db, database.Up); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	log.Info("Database connected and migrated")
	return db, nil
}
