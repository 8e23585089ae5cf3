package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/jonesrussell/north-cloud/link-sweeper/internal/domain"
	"github.com/jonesrussell/north-cloud/link-sweeper/internal/store"
)

// SettingsRepository is a JSON key-value store backed by sweeper_settings.
type SettingsRepository struct {
	db *sqlx.DB
}

var _ store.KeyValueStore = (*SettingsRepository)(nil)

// NewSettingsRepository creates a new settings repository.
func NewSettingsRepository(db *sqlx.DB) *SettingsRepository {
	return &SettingsRepository{db: db}
}

// Get decodes the value stored at key into dest.
func (r *SettingsRepository) Get(ctx context.Context, key string, dest any) (bool, error) {
	var raw string
	err := r.db.GetContext(ctx, &raw, `SELECT value FROM sweeper_settings WHERE key = $1`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, domain.Persistence("get setting "+key, err)
	}

	if unmarshalErr := json.Unmarshal([]byte(raw), dest); unmarshalErr != nil {
		return false, domain.Persistence("decode setting "+key, unmarshalErr)
	}

	return true, nil
}

// Set stores value at key, replacing any previous value.
func (r *SettingsRepository) Set(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return domain.Persistence("encode setting "+key, err)
	}

	query := `
		INSERT INTO sweeper_settings (key, value)
		VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()
	`

	if _, execErr := r.db.ExecContext(ctx, query, key, string(data)); execErr != nil {
		return domain.Persistence("set setting "+key, execErr)
	}

	return nil
}
