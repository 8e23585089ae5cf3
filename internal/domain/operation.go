package domain

import (
	"encoding/json"
	"time"
)

// OperationKind identifies a logged bulk mutation.
type OperationKind string

// OperationKindReplace is the only kind recorded today.
const OperationKindReplace OperationKind = "replace"

// MaxUndoSnapshotBytes is the ceiling on a serialized undo snapshot. Larger
// snapshots are dropped and the operation is recorded without undo.
const MaxUndoSnapshotBytes = 5 * 1024 * 1024

// OperationRetention is how many operations are kept after pruning.
const OperationRetention = 10

// UndoSnapshot maps a document id to its content before the operation.
type UndoSnapshot map[int64]string

// Operation is an audit record of a replace, optionally reversible.
type Operation struct {
	ID            int64           `db:"id"             json:"id"`
	Kind          OperationKind   `db:"kind"           json:"kind"`
	ActorID       string          `db:"actor_id"       json:"actor_id"`
	Payload       json.RawMessage `db:"payload"        json:"payload"`
	UndoSnapshot  UndoSnapshot    `db:"-"              json:"-"`
	UndoAvailable bool            `db:"undo_available" json:"undo_available"`
	ConsumedAt    *time.Time      `db:"consumed_at"    json:"consumed_at"`
	CreatedAt     time.Time       `db:"created_at"     json:"created_at"`
}

// UndoDropped reports whether the snapshot was discarded for size, as opposed
// to having been consumed by an undo.
func (o *Operation) UndoDropped() bool {
	return !o.UndoAvailable && o.ConsumedAt == nil
}

// EncodeUndoSnapshot serializes s and reports whether the result fits under
// MaxUndoSnapshotBytes.
func EncodeUndoSnapshot(s UndoSnapshot) (data []byte, fits bool, err error) {
	data, err = json.Marshal(s)
	if err != nil {
		return nil, false, err
	}
	return data, len(data) <= MaxUndoSnapshotBytes, nil
}
