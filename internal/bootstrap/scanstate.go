package bootstrap

import (
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/jonesrussell/north-cloud/link-sweeper/internal/config"
	"github.com/jonesrussell/north-cloud/link-sweeper/internal/logger"
	"github.com/jonesrussell/north-cloud/link-sweeper/internal/scanstate"
	"github.com/jonesrussell/north-cloud/link-sweeper/internal/store"
	"github.com/jonesrussell/north-cloud/link-sweeper/internal/store/memory"
)

// SetupScanState returns the transient store for the scan flag and progress.
// With Redis disabled the state lives in process memory and the returned
// client is nil.
func SetupScanState(cfg *config.Config, log logger.Logger) (store.TransientStore, *redis.Client, error) {
	if !cfg.Redis.Enabled {
		log.Warn("Redis disabled, scan state is kept in process memory")
		return memory.NewTransientStore(), nil, nil
	}

	client, err := scanstate.NewClient(scanstate.ClientConfig{
		Address:  cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("connect to redis: %w", err)
	}

	log.Info("Redis connected", logger.String("address", cfg.Redis.Address))
	return scanstate.NewStore(client, scanstate.DefaultKeyPrefix), client, nil
}
