// Package store declares the persistence contracts consumed by the link
// sweeper services. Implementations live in internal/database (PostgreSQL),
// internal/store/memory (in-process) and internal/scanstate (Redis).
package store

import (
	"context"
	"time"

	"github.com/jonesrussell/north-cloud/link-sweeper/internal/domain"
)

// LinkStore persists links and their occurrences.
type LinkStore interface {
	// SaveLink upserts a link keyed by its normalized URL and returns its id.
	// An existing row keeps its check history but is marked due for a check.
	SaveLink(ctx context.Context, in domain.LinkInput) (int64, error)
	// SaveOccurrence upserts a sighting keyed by (link, document, field,
	// context), incrementing count and bumping last_seen_at on conflict.
	SaveOccurrence(ctx context.Context, occ OccurrenceInput) error
	GetLink(ctx context.Context, id int64) (*domain.Link, error)
	GetLinkByNormalizedURL(ctx context.Context, normalizedURL string) (*domain.Link, error)
	// RecordCheck stores the outcome of a check and sets last_checked_at.
	RecordCheck(ctx context.Context, id int64, result domain.CheckResult, checkedAt time.Time) error
	// ListUnchecked returns up to limit non-ignored links with no
	// last_checked_at, ordered by id ascending.
	ListUnchecked(ctx context.Context, limit int) ([]domain.Link, error)
	ListLinks(ctx context.Context, filter LinkFilter, page Page) ([]domain.LinkReport, error)
	CountLinks(ctx context.Context, filter LinkFilter) (int, error)
	Stats(ctx context.Context) (domain.LinkStats, error)
	IgnoreLink(ctx context.Context, id int64) error
	// MarkStale clears last_checked_at so the link is picked up by the next
	// URL batch.
	MarkStale(ctx context.Context, id int64) error
	ClearOccurrences(ctx context.Context) error
}

// OperationStore persists the replace audit log and undo snapshots.
type OperationStore interface {
	// SaveOperation records op. The snapshot is dropped and undo disabled
	// when it serializes to more than domain.MaxUndoSnapshotBytes.
	SaveOperation(ctx context.Context, op *domain.Operation) (int64, error)
	// GetLastUndoableOperation returns the most recent operation with undo
	// available, including its snapshot.
	GetLastUndoableOperation(ctx context.Context) (*domain.Operation, error)
	MarkOperationConsumed(ctx context.Context, id int64, at time.Time) error
	ListOperations(ctx context.Context, limit int) ([]domain.Operation, error)
	// PruneOperations deletes all but the newest keep operations.
	PruneOperations(ctx context.Context, keep int) (int64, error)
}

// DocumentStore is the hosting content store.
type DocumentStore interface {
	// ListDocuments returns documents ordered by id ascending.
	ListDocuments(ctx context.Context, q DocumentQuery, limit, offset int) ([]domain.Document, error)
	CountDocuments(ctx context.Context, q DocumentQuery) (int, error)
	GetDocument(ctx context.Context, id int64) (*domain.Document, error)
	UpdateContent(ctx context.Context, id int64, content string) error
	// SearchContent returns ids of documents whose content contains needle,
	// case-insensitively, ordered by id ascending.
	SearchContent(ctx context.Context, q DocumentQuery, needle string) ([]int64, error)
}

// KeyValueStore persists arbitrary JSON-encodable values by key.
type KeyValueStore interface {
	// Get decodes the value stored at key into dest. It reports false when
	// the key does not exist.
	Get(ctx context.Context, key string, dest any) (bool, error)
	Set(ctx context.Context, key string, value any) error
}

// TransientStore holds the scan flag and progress record. Both expire after
// their TTL so a crashed scan cannot block new scans forever.
type TransientStore interface {
	// AcquireScanFlag sets the scan flag if it is not already set. It
	// reports false when another scan holds the flag.
	AcquireScanFlag(ctx context.Context, ttl time.Duration) (bool, error)
	IsScanning(ctx context.Context) (bool, error)
	ReleaseScanFlag(ctx context.Context) error
	GetProgress(ctx context.Context) (*domain.ScanProgress, error)
	SetProgress(ctx context.Context, p *domain.ScanProgress, ttl time.Duration) error
	ClearProgress(ctx context.Context) error
}

// OccurrenceInput is the upsert payload for SaveOccurrence.
type OccurrenceInput struct {
	LinkID       int64
	DocumentID   int64
	DocumentType string
	Field        string
	Context      domain.OccurrenceContext
}

// DocumentQuery restricts documents by type and status.
type DocumentQuery struct {
	Types  []string
	Status string
}
