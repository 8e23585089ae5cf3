// Package replacer rewrites URLs across documents and undoes them newest first.
package replacer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jonesrussell/north-cloud/link-sweeper/internal/domain"
	"github.com/jonesrussell/north-cloud/link-sweeper/internal/extractor"
	"github.com/jonesrussell/north-cloud/link-sweeper/internal/logger"
	"github.com/jonesrussell/north-cloud/link-sweeper/internal/normalize"
	"github.com/jonesrussell/north-cloud/link-sweeper/internal/settings"
	"github.com/jonesrussell/north-cloud/link-sweeper/internal/store"
)

const (
	// MaxSamples is the number of before/after samples in a preview.
	MaxSamples = 3
	// SampleLength is the number of characters kept in a sample.
	SampleLength = 200
)

var absoluteHTTPPattern = regexp.MustCompile(`(?i)^https?://`)

// SettingsSource returns the current runtime settings.
type SettingsSource interface {
	Get(ctx context.Context) (settings.Settings, error)
}

// Recorder receives one observation per executed replacement or undo.
type Recorder interface {
	ObserveReplacement(action string, documents int)
}

// Args are the parameters of a replacement.
type Args struct {
	Find          string           `json:"find"`
	Replace       string           `json:"replace"`
	DocumentTypes []string         `json:"document_types,omitempty"`
	MatchType     domain.MatchType `json:"match_type"`
	ActorID       string           `json:"actor_id,omitempty"`
}

// SampleDiff is one document's content before and after, truncated.
type SampleDiff struct {
	DocumentID int64  `json:"document_id"`
	Before     string `json:"before"`
	After      string `json:"after"`
}

// Preview is the outcome of a dry replacement.
type Preview struct {
	AffectedCount int          `json:"affected_count"`
	SampleDiffs   []SampleDiff `json:"sample_diffs"`
	DocumentIDs   []int64      `json:"document_ids"`
}

// ExecuteResult is the outcome of an executed replacement.
type ExecuteResult struct {
	Success       bool   `json:"success"`
	ReplacedCount int    `json:"replaced_count"`
	Message       string `json:"message"`
	OperationID   int64  `json:"operation_id"`
	UndoAvailable bool   `json:"undo_available"`
}

// UndoResult is the outcome of an undo.
type UndoResult struct {
	Success       bool   `json:"success"`
	RestoredCount int    `json:"restored_count"`
	Message       string `json:"message"`
}

// Config wires an Engine.
type Config struct {
	Documents  store.DocumentStore
	Links      store.LinkStore
	Operations store.OperationStore
	Settings   SettingsSource
	Logger     logger.Logger
	Recorder   Recorder
	Now        func() time.Time
}

// Engine previews, executes and undoes replacements.
type Engine struct {
	documents  store.DocumentStore
	links      store.LinkStore
	operations store.OperationStore
	settings   SettingsSource
	log        logger.Logger
	recorder   Recorder
	now        func() time.Time
}

// New creates an Engine.
func New(cfg Config) *Engine {
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Engine{
		documents:  cfg.Documents,
		links:      cfg.Links,
		operations: cfg.Operations,
		settings:   cfg.Settings,
		log:        cfg.Logger,
		recorder:   cfg.Recorder,
		now:        cfg.Now,
	}
}

type change struct {
	id     int64
	before string
	after  string
}

// Preview computes which documents a replacement would change without
// writing anything.
func (e *Engine) Preview(ctx context.Context, args Args) (Preview, error) {
	args, err := e.prepare(args)
	if err != nil {
		return Preview{}, err
	}

	changes, err := e.plan(ctx, args)
	if err != nil {
		return Preview{}, err
	}

	out := Preview{
		AffectedCount: len(changes),
		SampleDiffs:   make([]SampleDiff, 0, min(MaxSamples, len(changes))),
		DocumentIDs:   make([]int64, 0, len(changes)),
	}
	for i, c := range changes {
		out.DocumentIDs = append(out.DocumentIDs, c.id)
		if i < MaxSamples {
			out.SampleDiffs = append(out.SampleDiffs, SampleDiff{
				DocumentID: c.id,
				Before:     Truncate(c.before, SampleLength),
				After:      Truncate(c.after, SampleLength),
			})
		}
	}
	return out, nil
}

// Execute rewrites every matching document, records an operation holding
// the original contents, and queues the affected links for a recheck.
func (e *Engine) Execute(ctx context.Context, args Args) (ExecuteResult, error) {
	args, err := e.prepare(args)
	if err != nil {
		return ExecuteResult{}, err
	}

	changes, err := e.plan(ctx, args)
	if err != nil {
		return ExecuteResult{}, err
	}
	if len(changes) == 0 {
		return ExecuteResult{}, domain.Validationf("no documents matched %q", args.Find)
	}

	snapshot := make(domain.UndoSnapshot, len(changes))
	var writeErr error
	for _, c := range changes {
		if writeErr = e.documents.UpdateContent(ctx, c.id, c.after); writeErr != nil {
			break
		}
		snapshot[c.id] = c.before
	}

	// Whatever was written stays undoable even when a later write failed.
	var op *domain.Operation
	if len(snapshot) > 0 {
		op, err = e.recordOperation(context.WithoutCancel(ctx), args, snapshot)
	}
	if writeErr != nil {
		return ExecuteResult{}, fmt.Errorf("update documents after %d of %d: %w", len(snapshot), len(changes), writeErr)
	}
	if err != nil {
		return ExecuteResult{}, err
	}

	e.refreshLinks(ctx, args)

	if e.recorder != nil {
		e.recorder.ObserveReplacement("execute", len(snapshot))
	}

	e.log.Info("Replacement executed",
		logger.String("find", args.Find),
		logger.String("replace", args.Replace),
		logger.String("match_type", string(args.MatchType)),
		logger.Int("replaced", len(snapshot)),
		logger.Int64("operation_id", op.ID),
		logger.Bool("undo_available", op.UndoAvailable),
	)

	return ExecuteResult{
		Success:       true,
		ReplacedCount: len(snapshot),
		Message:       fmt.Sprintf("Successfully updated %d documents.", len(snapshot)),
		OperationID:   op.ID,
		UndoAvailable: op.UndoAvailable,
	}, nil
}

// Undo restores the documents changed by the newest operation that has not
// been undone yet. It fails with ErrNotFound when nothing is left to undo and
// with ErrUnavailable when that operation's snapshot was too large to keep.
// The operation is consumed only after every document is restored, so a
// failed undo can be retried.
func (e *Engine) Undo(ctx context.Context) (UndoResult, error) {
	target, err := e.undoTarget(ctx)
	if err != nil {
		return UndoResult{}, err
	}

	op, err := e.operations.GetLastUndoableOperation(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return UndoResult{}, domain.NotFoundf("no operation available to undo")
		}
		return UndoResult{}, err
	}
	if op.ID != target.ID {
		return UndoResult{}, domain.NotFoundf("operation %d changed while undoing", target.ID)
	}

	ids := make([]int64, 0, len(op.UndoSnapshot))
	for id := range op.UndoSnapshot {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	restored := 0
	for _, id := range ids {
		if err = e.documents.UpdateContent(ctx, id, op.UndoSnapshot[id]); err != nil {
			return UndoResult{}, fmt.Errorf("restore document %d after %d of %d: %w", id, restored, len(ids), err)
		}
		restored++
	}

	// The conditional consume keeps a concurrent undo from reporting success twice.
	if err = e.operations.MarkOperationConsumed(context.WithoutCancel(ctx), op.ID, e.now()); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return UndoResult{}, domain.NotFoundf("operation %d was already undone", op.ID)
		}
		return UndoResult{}, err
	}

	if e.recorder != nil {
		e.recorder.ObserveReplacement("undo", restored)
	}
	e.log.Info("Operation undone", logger.Int64("operation_id", op.ID), logger.Int("restored", restored))

	return UndoResult{
		Success:       true,
		RestoredCount: restored,
		Message:       fmt.Sprintf("Successfully restored %d documents.", restored),
	}, nil
}

// undoTarget walks the log newest first past consumed operations. An
// operation whose snapshot was dropped blocks everything older than it.
func (e *Engine) undoTarget(ctx context.Context) (*domain.Operation, error) {
	ops, err := e.operations.ListOperations(ctx, domain.OperationRetention)
	if err != nil {
		return nil, err
	}
	for i := range ops {
		op := &ops[i]
		switch {
		case op.UndoAvailable:
			return op, nil
		case op.UndoDropped():
			return nil, fmt.Errorf("%w: operation %d cannot be undone, its undo data exceeded %d bytes",
				domain.ErrUnavailable, op.ID, domain.MaxUndoSnapshotBytes)
		}
	}
	return nil, domain.NotFoundf("no operation available to undo")
}

// Operations lists recent operations, newest first.
func (e *Engine) Operations(ctx context.Context, limit int) ([]domain.Operation, error) {
	return e.operations.ListOperations(ctx, limit)
}

func (e *Engine) prepare(args Args) (Args, error) {
	if strings.TrimSpace(args.Find) == "" {
		return args, domain.Validationf("find URL is required")
	}
	replace, err := SanitizeReplacement(args.Replace)
	if err != nil {
		return args, err
	}
	args.Replace = replace
	args.MatchType = domain.ParseMatchType(string(args.MatchType))
	return args, nil
}

// plan loads the candidate documents and returns those whose content would
// change, in id order.
func (e *Engine) plan(ctx context.Context, args Args) ([]change, error) {
	query := store.DocumentQuery{Types: args.DocumentTypes, Status: domain.DocumentStatusPublished}
	if len(query.Types) == 0 {
		cfg, err := e.settings.Get(ctx)
		if err != nil {
			return nil, err
		}
		query.Types = cfg.ScanDocumentTypes
	}

	ids, err := e.documents.SearchContent(ctx, query, args.Find)
	if err != nil {
		return nil, err
	}
	// href values may hold the URL entity-encoded
	if encoded := EncodeAttr(args.Find, `"`); encoded != args.Find {
		more, searchErr := e.documents.SearchContent(ctx, query, encoded)
		if searchErr != nil {
			return nil, searchErr
		}
		ids = mergeIDs(ids, more)
	}

	changes := make([]change, 0, len(ids))
	for _, id := range ids {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		doc, getErr := e.documents.GetDocument(ctx, id)
		if getErr != nil {
			if errors.Is(getErr, domain.ErrNotFound) {
				continue
			}
			return nil, getErr
		}
		after := Substitute(doc.Content, args.Find, args.Replace, args.MatchType)
		if after != doc.Content {
			changes = append(changes, change{id: id, before: doc.Content, after: after})
		}
	}
	return changes, nil
}

func mergeIDs(a, b []int64) []int64 {
	out := slices.Concat(a, b)
	slices.Sort(out)
	return slices.Compact(out)
}

func (e *Engine) recordOperation(ctx context.Context, args Args, snapshot domain.UndoSnapshot) (*domain.Operation, error) {
	payload, err := json.Marshal(args)
	if err != nil {
		return nil, domain.Persistence("encode operation payload", err)
	}

	op := &domain.Operation{
		Kind:         domain.OperationKindReplace,
		ActorID:      args.ActorID,
		Payload:      payload,
		UndoSnapshot: snapshot,
	}
	if _, err = e.operations.SaveOperation(ctx, op); err != nil {
		return nil, err
	}
	if !op.UndoAvailable {
		e.log.Warn("Undo data exceeded the size ceiling and was dropped",
			logger.Int64("operation_id", op.ID),
			logger.Int("documents", len(snapshot)),
		)
	}

	if pruned, pruneErr := e.operations.PruneOperations(ctx, domain.OperationRetention); pruneErr != nil {
		e.log.Warn("Failed to prune operations", logger.Error(pruneErr))
	} else if pruned > 0 {
		e.log.Debug("Pruned operations", logger.Int64("deleted", pruned))
	}

	return op, nil
}

// refreshLinks marks the old URL's link stale and makes sure the new URL is
// tracked. Failures are logged; the documents are already rewritten.
func (e *Engine) refreshLinks(ctx context.Context, args Args) {
	opts := normalize.DefaultOptions()
	if cfg, err := e.settings.Get(ctx); err == nil {
		opts = cfg.NormalizeOptions()
	}
	n := normalize.New(opts)

	old, err := e.links.GetLinkByNormalizedURL(ctx, n.Normalize(args.Find))
	switch {
	case err == nil:
		if staleErr := e.links.MarkStale(ctx, old.ID); staleErr != nil {
			e.log.Warn("Failed to mark link stale", logger.Int64("link_id", old.ID), logger.Error(staleErr))
		}
	case !errors.Is(err, domain.ErrNotFound):
		e.log.Warn("Failed to look up replaced link", logger.Error(err))
	}

	if !extractor.IsValidURL(args.Replace) {
		return
	}
	if _, err = e.links.SaveLink(ctx, domain.LinkInput{
		RawURL:        args.Replace,
		NormalizedURL: n.Normalize(args.Replace),
	}); err != nil {
		e.log.Warn("Failed to track replacement link", logger.Error(err))
	}
}

// SanitizeReplacement restricts a replacement to http and https. A value
// without a scheme gets "http://" prepended unless it is relative.
func SanitizeReplacement(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", domain.Validationf("replacement URL is required")
	}
	if strings.ContainsAny(s, " \t\r\n\"'<>") {
		return "", domain.Validationf("replacement URL %q contains invalid characters", s)
	}

	switch {
	case strings.Contains(s, ":"):
		if !absoluteHTTPPattern.MatchString(s) {
			return "", domain.Validationf("replacement URL %q must use http or https", s)
		}
		return s, nil
	case strings.HasPrefix(s, "/"), strings.HasPrefix(s, "#"), strings.HasPrefix(s, "?"):
		return s, nil
	default:
		return "http://" + s, nil
	}
}

// Truncate shortens s to n characters followed by "...".
func Truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n]) + "..."
}
