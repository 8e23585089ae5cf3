// Package scanner drives the resumable scan: content batches extract and
// store links, URL batches check unchecked links, and the scan flag and
// progress record live in the transient store.
package scanner

import (
	"context"
	"fmt"
	"time"

	"github.com/jonesrussell/north-cloud/link-sweeper/internal/checker"
	"github.com/jonesrussell/north-cloud/link-sweeper/internal/domain"
	"github.com/jonesrussell/north-cloud/link-sweeper/internal/extractor"
	"github.com/jonesrussell/north-cloud/link-sweeper/internal/logger"
	"github.com/jonesrussell/north-cloud/link-sweeper/internal/normalize"
	"github.com/jonesrussell/north-cloud/link-sweeper/internal/settings"
	"github.com/jonesrussell/north-cloud/link-sweeper/internal/store"
)

// DefaultScanTTL bounds how long a scan flag or progress record survives
// without being refreshed.
const DefaultScanTTL = time.Hour

// SettingsSource returns the current runtime settings.
type SettingsSource interface {
	Get(ctx context.Context) (settings.Settings, error)
}

// Recorder receives one observation per completed batch.
type Recorder interface {
	ObserveBatch(phase domain.ScanPhase, items int, duration time.Duration)
}

// Config wires an Orchestrator.
type Config struct {
	Links      store.LinkStore
	Documents  store.DocumentStore
	State      store.TransientStore
	Settings   SettingsSource
	NewChecker CheckerFactory
	Logger     logger.Logger
	Recorder   Recorder
	ScanTTL    time.Duration
	Now        func() time.Time
}

// Orchestrator implements the scan state machine. It holds no scan state of
// its own between calls.
type Orchestrator struct {
	links     store.LinkStore
	documents store.DocumentStore
	state     store.TransientStore
	settings  SettingsSource
	checkers  *checkerCache
	log       logger.Logger
	recorder  Recorder
	ttl       time.Duration
	now       func() time.Time
}

// New creates an Orchestrator.
func New(cfg Config) *Orchestrator {
	if cfg.ScanTTL <= 0 {
		cfg.ScanTTL = DefaultScanTTL
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Orchestrator{
		links:     cfg.Links,
		documents: cfg.Documents,
		state:     cfg.State,
		settings:  cfg.Settings,
		checkers:  newCheckerCache(cfg.NewChecker),
		log:       cfg.Logger,
		recorder:  cfg.Recorder,
		ttl:       cfg.ScanTTL,
		now:       cfg.Now,
	}
}

// StartScan takes the scan flag, clears occurrences and initializes progress.
// It returns the number of documents to scan.
func (o *Orchestrator) StartScan(ctx context.Context) (int, error) {
	acquired, err := o.state.AcquireScanFlag(ctx, o.ttl)
	if err != nil {
		return 0, err
	}
	if !acquired {
		return 0, domain.ErrAlreadyScanning
	}

	total, err := o.startScan(ctx)
	if err != nil {
		if releaseErr := o.state.ReleaseScanFlag(ctx); releaseErr != nil {
			o.log.Warn("Failed to release scan flag after start error", logger.Error(releaseErr))
		}
		return 0, err
	}

	o.log.Info("Scan started", logger.Int("total_documents", total))
	return total, nil
}

func (o *Orchestrator) startScan(ctx context.Context) (int, error) {
	cfg, err := o.settings.Get(ctx)
	if err != nil {
		return 0, err
	}

	if err = o.links.ClearOccurrences(ctx); err != nil {
		return 0, err
	}

	total, err := o.documents.CountDocuments(ctx, documentQuery(cfg))
	if err != nil {
		return 0, err
	}

	progress := &domain.ScanProgress{
		TotalDocuments: total,
		Phase:          domain.ScanPhaseScanningContent,
	}
	if err = o.state.SetProgress(ctx, progress, o.ttl); err != nil {
		return 0, err
	}

	return total, nil
}

// ScanDocumentsBatch extracts links from one page of documents starting at
// offset. has_more is true when the page was full. When ctx is cancelled
// between documents the partial result is returned with ctx's error.
func (o *Orchestrator) ScanDocumentsBatch(ctx context.Context, offset int) (domain.DocumentBatchResult, error) {
	start := o.now()
	if offset < 0 {
		offset = 0
	}

	cfg, err := o.settings.Get(ctx)
	if err != nil {
		return domain.DocumentBatchResult{}, err
	}

	docs, err := o.documents.ListDocuments(ctx, documentQuery(cfg), cfg.BatchSizeDocuments, offset)
	if err != nil {
		return domain.DocumentBatchResult{}, err
	}

	normalizer := normalize.New(cfg.NormalizeOptions())
	seen := make(map[string]struct{})
	result := domain.DocumentBatchResult{
		HasMore:    len(docs) == cfg.BatchSizeDocuments,
		NextOffset: offset,
	}

	for i := range docs {
		if ctxErr := ctx.Err(); ctxErr != nil {
			result.HasMore = true
			o.addScanProgress(ctx, result.ProcessedCount, len(seen))
			return result, ctxErr
		}

		if err = o.scanDocument(ctx, &docs[i], normalizer, seen); err != nil {
			o.addScanProgress(ctx, result.ProcessedCount, len(seen))
			return result, fmt.Errorf("scan document %d: %w", docs[i].ID, err)
		}
		result.ProcessedCount++
		result.NextOffset++
	}

	o.addScanProgress(ctx, result.ProcessedCount, len(seen))
	o.observe(domain.ScanPhaseScanningContent, result.ProcessedCount, start)

	o.log.Info("Scanned document batch",
		logger.Int("offset", offset),
		logger.Int("processed", result.ProcessedCount),
		logger.Int("unique_urls", len(seen)),
		logger.Bool("has_more", result.HasMore),
		logger.Duration("duration", o.now().Sub(start)),
	)

	return result, nil
}

func (o *Orchestrator) scanDocument(
	ctx context.Context,
	doc *domain.Document,
	normalizer *normalize.Normalizer,
	seen map[string]struct{},
) error {
	for _, candidate := range extractor.Extract(doc.Content) {
		normalized := normalizer.Normalize(candidate.URL)

		linkID, err := o.links.SaveLink(ctx, domain.LinkInput{
			RawURL:        candidate.URL,
			NormalizedURL: normalized,
		})
		if err != nil {
			return err
		}

		err = o.links.SaveOccurrence(ctx, store.OccurrenceInput{
			LinkID:       linkID,
			DocumentID:   doc.ID,
			DocumentType: doc.Type,
			Field:        domain.OccurrenceFieldContent,
			Context:      candidate.Context,
		})
		if err != nil {
			return err
		}

		seen[normalized] = struct{}{}
	}
	return nil
}

// CheckURLsBatch checks up to batch_size_urls unchecked links and records the
// outcomes. has_more reports whether any unchecked link remains.
func (o *Orchestrator) CheckURLsBatch(ctx context.Context) (domain.URLBatchResult, error) {
	start := o.now()

	cfg, err := o.settings.Get(ctx)
	if err != nil {
		return domain.URLBatchResult{}, err
	}

	pending, err := o.links.ListUnchecked(ctx, cfg.BatchSizeURLs)
	if err != nil {
		return domain.URLBatchResult{}, err
	}
	if len(pending) == 0 {
		return domain.URLBatchResult{}, nil
	}

	urls := make([]string, 0, len(pending))
	for i := range pending {
		urls = append(urls, pending[i].RawURL)
	}

	results := o.checkers.get(cfg.CheckerConfig()).CheckBatch(ctx, urls)

	var out domain.URLBatchResult
	for i := range pending {
		res, ok := results[pending[i].RawURL]
		if !ok || checker.Aborted(ctx, res) {
			continue
		}
		if err = o.links.RecordCheck(ctx, pending[i].ID, res, o.now()); err != nil {
			o.addCheckProgress(ctx, out.CheckedCount)
			return out, fmt.Errorf("record check for link %d: %w", pending[i].ID, err)
		}
		out.CheckedCount++
	}

	o.addCheckProgress(ctx, out.CheckedCount)

	if ctxErr := ctx.Err(); ctxErr != nil {
		out.HasMore = true
		return out, ctxErr
	}

	remaining, err := o.links.ListUnchecked(ctx, 1)
	if err != nil {
		return out, err
	}
	out.HasMore = len(remaining) > 0

	o.observe(domain.ScanPhaseCheckingURLs, out.CheckedCount, start)
	o.log.Info("Checked URL batch",
		logger.Int("checked", out.CheckedCount),
		logger.Bool("has_more", out.HasMore),
		logger.Duration("duration", o.now().Sub(start)),
	)

	return out, nil
}

// CompleteScan clears the scan flag and returns fresh statistics. The
// progress record is left to expire so the final counts stay visible.
func (o *Orchestrator) CompleteScan(ctx context.Context) (domain.LinkStats, error) {
	if err := o.state.ReleaseScanFlag(ctx); err != nil {
		return domain.LinkStats{}, err
	}

	stats, err := o.links.Stats(ctx)
	if err != nil {
		return domain.LinkStats{}, err
	}

	o.log.Info("Scan completed",
		logger.Int("total_links", stats.Total),
		logger.Int("broken_links", stats.Broken),
	)
	return stats, nil
}

// StopScan clears the scan flag and progress. A batch already running
// finishes and keeps its results.
func (o *Orchestrator) StopScan(ctx context.Context) error {
	if err := o.state.ReleaseScanFlag(ctx); err != nil {
		return err
	}
	if err := o.state.ClearProgress(ctx); err != nil {
		return err
	}
	o.log.Info("Scan stopped")
	return nil
}

// Status reports the scan flag and current progress.
func (o *Orchestrator) Status(ctx context.Context) (domain.ScanStatus, error) {
	scanning, err := o.state.IsScanning(ctx)
	if err != nil {
		return domain.ScanStatus{}, err
	}
	progress, err := o.state.GetProgress(ctx)
	if err != nil {
		return domain.ScanStatus{}, err
	}
	return domain.ScanStatus{IsScanning: scanning, Progress: progress}, nil
}

// Stats returns link statistics.
func (o *Orchestrator) Stats(ctx context.Context) (domain.LinkStats, error) {
	return o.links.Stats(ctx)
}

// RecheckLink checks one link immediately and returns its updated record.
func (o *Orchestrator) RecheckLink(ctx context.Context, id int64) (*domain.Link, error) {
	link, err := o.links.GetLink(ctx, id)
	if err != nil {
		return nil, err
	}

	cfg, err := o.settings.Get(ctx)
	if err != nil {
		return nil, err
	}

	res := o.checkers.get(cfg.CheckerConfig()).Check(ctx, link.RawURL)
	if checker.Aborted(ctx, res) {
		return nil, ctx.Err()
	}
	if err = o.links.RecordCheck(ctx, id, res, o.now()); err != nil {
		return nil, err
	}

	o.log.Debug("Rechecked link",
		logger.Int64("link_id", id),
		logger.String("status", string(res.Status)),
	)

	return o.links.GetLink(ctx, id)
}

// IgnoreLink excludes a link from reports and checks.
func (o *Orchestrator) IgnoreLink(ctx context.Context, id int64) error {
	return o.links.IgnoreLink(ctx, id)
}

// IsScanning reports whether the scan flag is held.
func (o *Orchestrator) IsScanning(ctx context.Context) (bool, error) {
	return o.state.IsScanning(ctx)
}

// addScanProgress folds a content batch into the progress record. Progress
// is only updated while a record exists, so a stopped scan stays stopped.
func (o *Orchestrator) addScanProgress(ctx context.Context, documents, urls int) {
	o.updateProgress(ctx, func(p *domain.ScanProgress) {
		p.ProcessedDocuments += documents
		p.TotalURLs += urls
		p.Phase = domain.ScanPhaseScanningContent
	})
}

func (o *Orchestrator) addCheckProgress(ctx context.Context, checked int) {
	o.updateProgress(ctx, func(p *domain.ScanProgress) {
		p.ProcessedURLs += checked
		p.Phase = domain.ScanPhaseCheckingURLs
	})
}

func (o *Orchestrator) updateProgress(ctx context.Context, apply func(*domain.ScanProgress)) {
	// Progress is advisory: failures are logged and the batch result stands.
	ctx = context.WithoutCancel(ctx)

	p, err := o.state.GetProgress(ctx)
	if err != nil {
		o.log.Warn("Failed to read scan progress", logger.Error(err))
		return
	}
	if p == nil {
		return
	}

	apply(p)
	if err = o.state.SetProgress(ctx, p, o.ttl); err != nil {
		o.log.Warn("Failed to write scan progress", logger.Error(err))
	}
}

func (o *Orchestrator) observe(phase domain.ScanPhase, items int, start time.Time) {
	if o.recorder != nil {
		o.recorder.ObserveBatch(phase, items, o.now().Sub(start))
	}
}

func documentQuery(cfg settings.Settings) store.DocumentQuery {
	return store.DocumentQuery{
		Types:  cfg.ScanDocumentTypes,
		Status: domain.DocumentStatusPublished,
	}
}
