package application

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	marketreport "aeso-report/internal/marketreport/domain"
	"aeso-report/internal/observability/metrics"
)

// ErrRunInProgress is returned when a run is requested while another is active.
var ErrRunInProgress = errors.New("report runner: run already in progress")

// RawReport is one fetched report body and its tokenised lines.
type RawReport struct {
	Range       DateRange
	ContentType string
	Body        []byte
	Lines       []marketreport.ReportLine
}

// ReportFetcher retrieves the report covering an inclusive date range.
type ReportFetcher interface {
	FetchReport(ctx context.Context, begin, end time.Time) (*RawReport, error)
}

// RawArchive keeps a copy of each fetched report.
type RawArchive interface {
	SaveRaw(ctx context.Context, report *RawReport) error
}

// RunNotifier is told about every completed run.
type RunNotifier interface {
	NotifyRun(ctx context.Context, result *RunResult) error
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithRunNotifier sets the completed-run hook.
func WithRunNotifier(notifier RunNotifier) RunnerOption {
	return func(r *Runner) {
		if r != nil && notifier != nil {
			r.notifier = notifier
		}
	}
}

// BatchFailure records a range whose report could not be fetched or held no usable dates.
type BatchFailure struct {
	Range DateRange
	Err   error
}

// RunResult is the merged outcome of one run.
type RunResult struct {
	ID            string
	StartedAt     time.Time
	FinishedAt    time.Time
	Batches       []DateRange
	Rows          []marketreport.NormalizedRow
	Dates         int
	Failures      []DateFailure
	FetchFailures []BatchFailure
}

// Runner fetches report batches and runs them through the Processor.
type Runner struct {
	fetcher   ReportFetcher
	processor *Processor
	archive   RawArchive
	notifier  RunNotifier
	clock     Clock
	window    WindowConfig
	logger    *log.Logger

	running sync.Mutex
	mu      sync.RWMutex
	latest  *RunResult
}

// NewRunner constructs a Runner. archive may be nil.
func NewRunner(fetcher ReportFetcher, processor *Processor, archive RawArchive, clock Clock, window WindowConfig, logger *log.Logger, opts ...RunnerOption) (*Runner, error) {
	if fetcher == nil {
		return nil, errors.New("report runner: nil fetcher")
	}
	if processor == nil {
		return nil, errors.New("report runner: nil processor")
	}
	if window.RollingDays <= 0 || window.BatchDays <= 0 {
		return nil, errors.New("report runner: invalid window")
	}
	if clock == nil {
		clock = SystemClock{}
	}
	if logger == nil {
		logger = log.Default()
	}
	r := &Runner{
		fetcher:   fetcher,
		processor: processor,
		archive:   archive,
		clock:     clock,
		window:    window,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Run processes the rolling window ending yesterday.
func (r *Runner) Run(ctx context.Context) (*RunResult, error) {
	return r.run(ctx, DateBatches(r.clock.Now(), r.window.RollingDays, r.window.BatchDays))
}

// RunRange processes an explicit inclusive range.
func (r *Runner) RunRange(ctx context.Context, begin, end time.Time) (*RunResult, error) {
	batches := SplitRange(begin, end, r.window.BatchDays)
	if len(batches) == 0 {
		return nil, fmt.Errorf("report runner: invalid range %s..%s", begin.Format(marketreport.LastUpdatedLayout), end.Format(marketreport.LastUpdatedLayout))
	}
	return r.run(ctx, batches)
}

// Latest returns the most recent completed run.
func (r *Runner) Latest() (*RunResult, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.latest, r.latest != nil
}

func (r *Runner) run(ctx context.Context, batches []DateRange) (*RunResult, error) {
	if !r.running.TryLock() {
		return nil, ErrRunInProgress
	}
	defer r.running.Unlock()

	result := &RunResult{
		ID:        uuid.NewString(),
		StartedAt: r.clock.Now(),
		Batches:   batches,
	}
	r.logger.Printf("report run start: id=%s batches=%d", result.ID, len(batches))
	start := time.Now()

	for _, batch := range batches {
		report, err := r.fetch(ctx, batch)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				metrics.ObserveRun(metrics.ResultError, time.Since(start), 0)
				return nil, ctxErr
			}
			r.logger.Printf("report fetch failed: id=%s begin=%s end=%s err=%v", result.ID,
				batch.Begin.Format(marketreport.LastUpdatedLayout), batch.End.Format(marketreport.LastUpdatedLayout), err)
			result.FetchFailures = append(result.FetchFailures, BatchFailure{Range: batch, Err: err})
			continue
		}
		if r.archive != nil {
			if err := r.archive.SaveRaw(ctx, report); err != nil {
				r.logger.Printf("report archive failed: id=%s err=%v", result.ID, err)
			}
		}

		batchResult, err := r.processor.Process(ctx, report.Lines)
		if errors.Is(err, marketreport.ErrFormatDrift) {
			r.logger.Printf("report batch drift: id=%s begin=%s end=%s err=%v", result.ID,
				batch.Begin.Format(marketreport.LastUpdatedLayout), batch.End.Format(marketreport.LastUpdatedLayout), err)
			result.FetchFailures = append(result.FetchFailures, BatchFailure{Range: batch, Err: err})
			continue
		}
		if err != nil {
			metrics.ObserveRun(metrics.ResultError, time.Since(start), 0)
			return nil, err
		}
		result.Rows = append(result.Rows, batchResult.Rows...)
		result.Dates += len(batchResult.Dates)
		result.Failures = append(result.Failures, batchResult.Failures...)
	}

	if len(batches) > 0 && len(result.FetchFailures) == len(batches) {
		metrics.ObserveRun(metrics.ResultError, time.Since(start), 0)
		return nil, fmt.Errorf("report runner: all %d batches failed: %w", len(batches), result.FetchFailures[0].Err)
	}

	marketreport.SortRows(result.Rows)
	result.FinishedAt = r.clock.Now()
	metrics.ObserveRun(metrics.ResultSuccess, time.Since(start), len(result.Rows))
	r.logger.Printf("report run done: id=%s dates=%d rows=%d date_failures=%d fetch_failures=%d",
		result.ID, result.Dates, len(result.Rows), len(result.Failures), len(result.FetchFailures))

	r.mu.Lock()
	r.latest = result
	r.mu.Unlock()

	if r.notifier != nil {
		if err := r.notifier.NotifyRun(ctx, result); err != nil {
			r.logger.Printf("report run notify failed: id=%s err=%v", result.ID, err)
		}
	}
	return result, nil
}

func (r *Runner) fetch(ctx context.Context, batch DateRange) (*RawReport, error) {
	start := time.Now()
	report, err := r.fetcher.FetchReport(ctx, batch.Begin, batch.End)
	if err != nil {
		metrics.ObserveFetch(metrics.ResultError, time.Since(start))
		return nil, err
	}
	metrics.ObserveFetch(metrics.ResultSuccess, time.Since(start))
	if report.Range.Begin.IsZero() {
		report.Range = batch
	}
	return report, nil
}
