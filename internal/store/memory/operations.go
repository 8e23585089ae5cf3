package memory

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/jonesrussell/north-cloud/link-sweeper/internal/domain"
	"github.com/jonesrussell/north-cloud/link-sweeper/internal/store"
)

type storedOperation struct {
	op       domain.Operation
	snapshot []byte
}

// OperationStore is an in-memory store.OperationStore. Snapshots are kept
// serialized so the size ceiling applies exactly as in PostgreSQL.
type OperationStore struct {
	mu     sync.RWMutex
	nextID int64
	ops    map[int64]*storedOperation
	now    func() time.Time
}

var _ store.OperationStore = (*OperationStore)(nil)

// NewOperationStore creates an empty operation store.
func NewOperationStore() *OperationStore {
	return &OperationStore{
		ops: make(map[int64]*storedOperation),
		now: time.Now,
	}
}

// SaveOperation records op and assigns its id and creation time.
func (s *OperationStore) SaveOperation(_ context.Context, op *domain.Operation) (int64, error) {
	stored := &storedOperation{op: *op}
	stored.op.UndoSnapshot = nil
	stored.op.UndoAvailable = false
	stored.op.ConsumedAt = nil

	if op.UndoSnapshot != nil {
		data, fits, err := domain.EncodeUndoSnapshot(op.UndoSnapshot)
		if err != nil {
			return 0, domain.Persistence("encode undo snapshot", err)
		}
		if fits {
			stored.snapshot = data
			stored.op.UndoAvailable = true
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	stored.op.ID = s.nextID
	stored.op.CreatedAt = s.now()
	s.ops[s.nextID] = stored

	op.ID = stored.op.ID
	op.CreatedAt = stored.op.CreatedAt
	op.UndoAvailable = stored.op.UndoAvailable

	return s.nextID, nil
}

// GetLastUndoableOperation returns the newest undoable operation with its snapshot.
func (s *OperationStore) GetLastUndoableOperation(_ context.Context) (*domain.Operation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, id := range s.idsNewestFirst() {
		stored := s.ops[id]
		if !stored.op.UndoAvailable {
			continue
		}
		op := stored.op
		if err := json.Unmarshal(stored.snapshot, &op.UndoSnapshot); err != nil {
			return nil, domain.Persistence("decode undo snapshot", err)
		}
		return &op, nil
	}

	return nil, domain.NotFoundf("no undoable operation")
}

// MarkOperationConsumed disables undo for id.
func (s *OperationStore) MarkOperationConsumed(_ context.Context, id int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.ops[id]
	if !ok || !stored.op.UndoAvailable {
		return domain.NotFoundf("undoable operation %d", id)
	}
	consumed := at
	stored.op.UndoAvailable = false
	stored.op.ConsumedAt = &consumed
	stored.snapshot = nil

	return nil
}

// ListOperations returns up to limit operations, newest first.
func (s *OperationStore) ListOperations(_ context.Context, limit int) ([]domain.Operation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.idsNewestFirst()
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	out := make([]domain.Operation, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.ops[id].op)
	}
	return out, nil
}

// PruneOperations keeps the newest keep operations.
func (s *OperationStore) PruneOperations(_ context.Context, keep int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := s.idsNewestFirst()
	if keep < 0 {
		keep = 0
	}
	if len(ids) <= keep {
		return 0, nil
	}
	for _, id := range ids[keep:] {
		delete(s.ops, id)
	}
	return int64(len(ids) - keep), nil
}

func (s *OperationStore) idsNewestFirst() []int64 {
	ids := make([]int64, 0, len(s.ops))
	for id := range s.ops {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] > ids[j] })
	return ids
}
