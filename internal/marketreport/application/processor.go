package application

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	marketreport "aeso-report/internal/marketreport/domain"
	"aeso-report/internal/observability/metrics"
)

// DateFailure records why a date produced no rows.
type DateFailure struct {
	Date time.Time
	Err  error
}

func (f DateFailure) Error() string {
	return fmt.Sprintf("%s: %v", marketreport.FormatReportDate(f.Date), f.Err)
}

// BatchResult is the merged table of one report plus per-date outcomes.
type BatchResult struct {
	Rows     []marketreport.NormalizedRow
	Dates    []Reconciliation
	Failures []DateFailure
	Segments int
}

// ProcessorOption configures a Processor.
type ProcessorOption func(*Processor)

// WithWorkers bounds the number of dates processed concurrently.
func WithWorkers(workers int) ProcessorOption {
	return func(p *Processor) {
		if p != nil && workers > 0 {
			p.workers = workers
		}
	}
}

// WithLocker overrides the per-date lock provider.
func WithLocker(locker marketreport.DateLocker) ProcessorOption {
	return func(p *Processor) {
		if p != nil && locker != nil {
			p.locker = locker
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *log.Logger) ProcessorOption {
	return func(p *Processor) {
		if p != nil && logger != nil {
			p.logger = logger
		}
	}
}

// Processor runs segment, reshape, filter, classify, reconcile and persist for each date.
type Processor struct {
	layout     marketreport.Layout
	sites      marketreport.SiteFilter
	peak       marketreport.PeakHours
	store      marketreport.SnapshotStore
	reconciler *Reconciler
	locker     marketreport.DateLocker
	workers    int
	logger     *log.Logger
}

// NewProcessor constructs a Processor. When the store also implements DateLocker it is used
// for per-date mutual exclusion.
func NewProcessor(cfg Config, store marketreport.SnapshotStore, clock Clock, opts ...ProcessorOption) (*Processor, error) {
	if store == nil {
		return nil, marketreport.ErrNilStore
	}
	if err := cfg.Layout.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.PeakHours.Validate(); err != nil {
		return nil, err
	}
	reconciler, err := NewReconciler(store, clock, cfg.Tolerance)
	if err != nil {
		return nil, err
	}
	p := &Processor{
		layout:     cfg.Layout,
		sites:      marketreport.NewSiteFilter(cfg.Sites),
		peak:       cfg.PeakHours,
		store:      store,
		reconciler: reconciler,
		workers:    1,
		logger:     log.Default(),
	}
	if cfg.Workers > 0 {
		p.workers = cfg.Workers
	}
	if locker, ok := store.(marketreport.DateLocker); ok {
		p.locker = locker
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.locker == nil {
		p.locker = marketreport.NewDateMutex()
	}
	return p, nil
}

// Process segments the report and reconciles every date. A failing date is recorded in
// Failures and does not stop the others. The merged rows are sorted by (asset, date, hour).
func (p *Processor) Process(ctx context.Context, lines []marketreport.ReportLine) (*BatchResult, error) {
	if p == nil {
		return nil, errors.New("report processor: nil")
	}
	segmenter, err := marketreport.NewSegmenter(p.layout)
	if err != nil {
		return nil, err
	}
	segments := segmenter.Segment(lines)
	if len(segments) == 0 && hasData(lines) {
		metrics.IncDrift()
		return nil, &marketreport.FormatDriftError{Line: 0, Reason: fmt.Sprintf("no date anchor in %d report lines", len(lines))}
	}

	type outcome struct {
		rec Reconciliation
		err error
	}
	outcomes := make([]outcome, len(segments))

	seen := make(map[time.Time]bool, len(segments))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for i := range segments {
		i := i
		seg := segments[i]
		metrics.ObserveSegment(seg.Complete(), len(seg.Issues))
		if seen[seg.Date] {
			outcomes[i] = outcome{err: fmt.Errorf("%w: date appears twice in report", marketreport.ErrFormatDrift)}
			continue
		}
		seen[seg.Date] = true
		if !seg.Complete() {
			for _, issue := range seg.Issues {
				p.logger.Printf("report segment drift: date=%s err=%v", marketreport.FormatReportDate(seg.Date), issue)
			}
			outcomes[i] = outcome{err: fmt.Errorf("segment incomplete: %w", errors.Join(seg.Issues...))}
			continue
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				outcomes[i] = outcome{err: err}
				return err
			}
			start := time.Now()
			rec, err := p.processDate(gctx, seg)
			result := metrics.ResultSuccess
			if err != nil {
				result = metrics.ResultError
			}
			metrics.ObserveDate(result, time.Since(start))
			outcomes[i] = outcome{rec: rec, err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := &BatchResult{Segments: len(segments)}
	for i, out := range outcomes {
		if out.err != nil {
			p.logger.Printf("report date failed: date=%s err=%v", marketreport.FormatReportDate(segments[i].Date), out.err)
			result.Failures = append(result.Failures, DateFailure{Date: segments[i].Date, Err: out.err})
			continue
		}
		result.Dates = append(result.Dates, out.rec)
		result.Rows = append(result.Rows, out.rec.Rows...)
	}
	marketreport.SortRows(result.Rows)
	return result, nil
}

func (p *Processor) processDate(ctx context.Context, seg marketreport.DaySegment) (Reconciliation, error) {
	rows := marketreport.Normalize(p.sites.Apply(marketreport.ReshapeSegment(seg)), p.sites, p.peak)
	if err := marketreport.EnsureUniqueKeys(rows); err != nil {
		return Reconciliation{}, err
	}

	release, err := p.locker.LockDate(ctx, seg.Date)
	if err != nil {
		return Reconciliation{}, fmt.Errorf("lock date: %w", err)
	}
	defer release()

	rec, err := p.reconciler.Reconcile(ctx, seg.Date, rows)
	if err != nil {
		return Reconciliation{}, err
	}
	if err := p.store.PutSnapshot(ctx, seg.Date, rec.Rows); err != nil {
		metrics.IncSnapshotOp("put", metrics.ResultError)
		return Reconciliation{}, fmt.Errorf("put snapshot %s: %w", marketreport.FormatReportDate(seg.Date), err)
	}
	metrics.IncSnapshotOp("put", metrics.ResultSuccess)
	metrics.AddRowOutcomes(rec.Carried, rec.Updated, rec.Added)
	p.logger.Printf("report date reconciled: date=%s rows=%d carried=%d updated=%d added=%d first_seen=%t",
		marketreport.FormatReportDate(seg.Date), len(rec.Rows), rec.Carried, rec.Updated, rec.Added, rec.FirstSeen)
	return rec, nil
}

func hasData(lines []marketreport.ReportLine) bool {
	for _, line := range lines {
		if !line.IsBlank() {
			return true
		}
	}
	return false
}
