package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/jonesrussell/north-cloud/link-sweeper/internal/domain"
	"github.com/jonesrussell/north-cloud/link-sweeper/internal/store"
)

// operationSelectColumns lists columns for SELECT queries on operations,
// excluding the snapshot.
const operationSelectColumns = `id, kind, actor_id, payload, undo_available, consumed_at, created_at`

// OperationRepository handles database operations for the replace audit log.
type OperationRepository struct {
	db *sqlx.DB
}

var _ store.OperationStore = (*OperationRepository)(nil)

// NewOperationRepository creates a new operation repository.
func NewOperationRepository(db *sqlx.DB) *OperationRepository {
	return &OperationRepository{db: db}
}

// operationRow is the scan target for operation queries. Payload is read as
// text so the driver buffer is never retained.
type operationRow struct {
	ID            int64          `db:"id"`
	Kind          string         `db:"kind"`
	ActorID       string         `db:"actor_id"`
	Payload       string         `db:"payload"`
	UndoSnapshot  sql.NullString `db:"undo_snapshot"`
	UndoAvailable bool           `db:"undo_available"`
	ConsumedAt    *time.Time     `db:"consumed_at"`
	CreatedAt     time.Time      `db:"created_at"`
}

func (row *operationRow) toDomain() domain.Operation {
	return domain.Operation{
		ID:            row.ID,
		Kind:          domain.OperationKind(row.Kind),
		ActorID:       row.ActorID,
		Payload:       json.RawMessage(row.Payload),
		UndoAvailable: row.UndoAvailable,
		ConsumedAt:    row.ConsumedAt,
		CreatedAt:     row.CreatedAt,
	}
}

// SaveOperation inserts op. Snapshots over the size ceiling are dropped and
// the operation is stored with undo unavailable.
func (r *OperationRepository) SaveOperation(ctx context.Context, op *domain.Operation) (int64, error) {
	var snapshot *string
	undoAvailable := false

	if op.UndoSnapshot != nil {
		data, fits, err := domain.EncodeUndoSnapshot(op.UndoSnapshot)
		if err != nil {
			return 0, domain.Persistence("encode undo snapshot", err)
		}
		if fits {
			encoded := string(data)
			snapshot = &encoded
			undoAvailable = true
		}
	}

	payload := string(op.Payload)
	if payload == "" {
		payload = "{}"
	}

	query := `
		INSERT INTO operations (kind, actor_id, payload, undo_snapshot, undo_available)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`

	var inserted struct {
		ID        int64     `db:"id"`
		CreatedAt time.Time `db:"created_at"`
	}
	err := r.db.GetContext(ctx, &inserted, query, string(op.Kind), op.ActorID, payload, snapshot, undoAvailable)
	if err != nil {
		return 0, domain.Persistence("save operation", err)
	}

	op.ID = inserted.ID
	op.CreatedAt = inserted.CreatedAt
	op.UndoAvailable = undoAvailable

	return inserted.ID, nil
}

// GetLastUndoableOperation returns the newest undoable operation with its snapshot.
func (r *OperationRepository) GetLastUndoableOperation(ctx context.Context) (*domain.Operation, error) {
	query := `
		SELECT ` + operationSelectColumns + `, undo_snapshot
		FROM operations
		WHERE undo_available
		ORDER BY id DESC
		LIMIT 1
	`

	var row operationRow
	if err := r.db.GetContext(ctx, &row, query); err != nil {
		return nil, notFoundOr(err, "get undoable operation", "no undoable operation")
	}

	op := row.toDomain()
	if row.UndoSnapshot.Valid {
		if err := json.Unmarshal([]byte(row.UndoSnapshot.String), &op.UndoSnapshot); err != nil {
			return nil, domain.Persistence("decode undo snapshot", err)
		}
	}

	return &op, nil
}

// MarkOperationConsumed disables undo for id and releases its snapshot.
func (r *OperationRepository) MarkOperationConsumed(ctx context.Context, id int64, at time.Time) error {
	query := `
		UPDATE operations
		SET undo_available = FALSE, undo_snapshot = NULL, consumed_at = $2
		WHERE id = $1 AND undo_available
	`

	result, err := r.db.ExecContext(ctx, query, id, at)
	return domain.Persistence("consume operation",
		execRequireRows(result, err, domain.NotFoundf("undoable operation %d", id)))
}

// ListOperations returns up to limit operations, newest first.
func (r *OperationRepository) ListOperations(ctx context.Context, limit int) ([]domain.Operation, error) {
	if limit <= 0 {
		limit = domain.OperationRetention
	}
	query := `SELECT ` + operationSelectColumns + ` FROM operations ORDER BY id DESC LIMIT $1`

	var rows []operationRow
	if err := r.db.SelectContext(ctx, &rows, query, limit); err != nil {
		return nil, domain.Persistence("list operations", err)
	}

	ops := make([]domain.Operation, 0, len(rows))
	for i := range rows {
		ops = append(ops, rows[i].toDomain())
	}

	return ops, nil
}

// PruneOperations deletes all but the newest keep operations.
func (r *OperationRepository) PruneOperations(ctx context.Context, keep int) (int64, error) {
	query := `
		DELETE FROM operations
		WHERE id NOT IN (SELECT id FROM operations ORDER BY id DESC LIMIT $1)
	`

	result, err := r.db.ExecContext(ctx, query, max(keep, 0))
	if err != nil {
		return 0, domain.Persistence("prune operations", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, domain.Persistence("prune operations", err)
	}

	return deleted, nil
}
