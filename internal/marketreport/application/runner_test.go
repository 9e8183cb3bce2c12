package application

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	marketreport "aeso-report/internal/marketreport/domain"
	"aeso-report/internal/marketreport/infrastructure/memory"
)

type stubFetcher struct {
	mu      sync.Mutex
	calls   []DateRange
	fail    map[time.Time]error
	garbled map[time.Time]bool
	block   chan struct{}
	started chan struct{}
}

func (f *stubFetcher) FetchReport(ctx context.Context, begin, end time.Time) (*RawReport, error) {
	f.mu.Lock()
	f.calls = append(f.calls, DateRange{Begin: begin, End: end})
	f.mu.Unlock()
	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.block != nil {
		<-f.block
	}
	if err := f.fail[end]; err != nil {
		return nil, err
	}
	if f.garbled[end] {
		return &RawReport{ContentType: ContentTypeCSV, Body: []byte("body"), Lines: []marketreport.ReportLine{{"Service unavailable"}}}, nil
	}
	var lines []marketreport.ReportLine
	lines = append(lines, reportDay(marketreport.FormatReportDate(end), hourValues(24, 40), []reportAsset{
		{"P1", "WIND", "VQ6", hourValues(24, 1)},
	})...)
	return &RawReport{ContentType: ContentTypeCSV, Body: []byte("body"), Lines: lines}, nil
}

type stubArchive struct {
	saved []DateRange
}

func (a *stubArchive) SaveRaw(ctx context.Context, report *RawReport) error {
	a.saved = append(a.saved, report.Range)
	return nil
}

func newTestRunner(t *testing.T, fetcher ReportFetcher, archive RawArchive) *Runner {
	t.Helper()
	clock := fixedClock{now: day(2024, 3, 31)}
	processor, err := NewProcessor(DefaultConfig(), memory.NewSnapshotStore(), clock, WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("new processor: %v", err)
	}
	runner, err := NewRunner(fetcher, processor, archive, clock, WindowConfig{RollingDays: 60, BatchDays: 30}, quietLogger())
	if err != nil {
		t.Fatalf("new runner: %v", err)
	}
	return runner
}

func TestRunnerRunMergesBatches(t *testing.T) {
	fetcher := &stubFetcher{}
	archive := &stubArchive{}
	runner := newTestRunner(t, fetcher, archive)

	if _, ok := runner.Latest(); ok {
		t.Fatalf("expected no latest run")
	}
	result, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(fetcher.calls) != 2 || len(archive.saved) != 2 {
		t.Fatalf("calls mismatch: fetch=%d archive=%d", len(fetcher.calls), len(archive.saved))
	}
	if result.ID == "" || result.Dates != 2 || len(result.Rows) != 48 {
		t.Fatalf("result mismatch: id=%q dates=%d rows=%d", result.ID, result.Dates, len(result.Rows))
	}
	if !result.Rows[0].Date.Equal(day(2024, 2, 29)) {
		t.Fatalf("merged rows not sorted: first=%v", result.Rows[0].Date)
	}
	latest, ok := runner.Latest()
	if !ok || latest.ID != result.ID {
		t.Fatalf("latest mismatch")
	}
}

func TestRunnerRecordsFetchFailures(t *testing.T) {
	fetcher := &stubFetcher{fail: map[time.Time]error{day(2024, 2, 29): errors.New("timeout")}}
	runner := newTestRunner(t, fetcher, nil)

	result, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(result.FetchFailures) != 1 || len(result.Rows) != 24 {
		t.Fatalf("result mismatch: fetch_failures=%d rows=%d", len(result.FetchFailures), len(result.Rows))
	}
}

func TestRunnerAllFetchesFail(t *testing.T) {
	boom := errors.New("unreachable")
	fetcher := &stubFetcher{fail: map[time.Time]error{day(2024, 3, 30): boom, day(2024, 2, 29): boom}}
	runner := newTestRunner(t, fetcher, nil)

	if _, err := runner.Run(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected fetch error, got %v", err)
	}
	if _, ok := runner.Latest(); ok {
		t.Fatalf("failed run must not replace latest")
	}
}

func TestRunnerRejectsConcurrentRun(t *testing.T) {
	fetcher := &stubFetcher{block: make(chan struct{}), started: make(chan struct{}, 4)}
	runner := newTestRunner(t, fetcher, nil)

	done := make(chan error, 1)
	go func() {
		_, err := runner.RunRange(context.Background(), day(2024, 3, 1), day(2024, 3, 1))
		done <- err
	}()
	<-fetcher.started

	if _, err := runner.Run(context.Background()); !errors.Is(err, ErrRunInProgress) {
		t.Fatalf("expected run in progress, got %v", err)
	}
	close(fetcher.block)
	if err := <-done; err != nil {
		t.Fatalf("first run: %v", err)
	}
}

func TestRunnerRunRangeInvalid(t *testing.T) {
	runner := newTestRunner(t, &stubFetcher{}, nil)
	if _, err := runner.RunRange(context.Background(), day(2024, 3, 2), day(2024, 3, 1)); err == nil {
		t.Fatalf("expected invalid range error")
	}
}

func TestParseDailyAt(t *testing.T) {
	hour, minute, err := parseDailyAt("06:30")
	if err != nil || hour != 6 || minute != 30 {
		t.Fatalf("parse mismatch: hour=%d minute=%d err=%v", hour, minute, err)
	}
	if _, _, err := parseDailyAt("6pm"); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestSchedulerNextRun(t *testing.T) {
	runner := newTestRunner(t, &stubFetcher{}, nil)
	s, err := NewScheduler(runner, "06:30", nil, nil)
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	cases := []struct {
		now  time.Time
		want time.Time
	}{
		{time.Date(2024, 3, 1, 5, 0, 0, 0, time.UTC), time.Date(2024, 3, 1, 6, 30, 0, 0, time.UTC)},
		{time.Date(2024, 3, 1, 6, 30, 0, 0, time.UTC), time.Date(2024, 3, 2, 6, 30, 0, 0, time.UTC)},
		{time.Date(2024, 3, 31, 23, 0, 0, 0, time.UTC), time.Date(2024, 4, 1, 6, 30, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		if got := s.nextRun(tc.now); !got.Equal(tc.want) {
			t.Fatalf("next run mismatch for %v: got=%v want=%v", tc.now, got, tc.want)
		}
	}
	if _, err := NewScheduler(runner, "6pm", nil, nil); err == nil {
		t.Fatalf("expected invalid daily_at error")
	}
	if _, err := NewScheduler(nil, "06:30", nil, nil); err == nil {
		t.Fatalf("expected nil trigger error")
	}
}

type recordingNotifier struct {
	results []*RunResult
}

func (n *recordingNotifier) NotifyRun(ctx context.Context, result *RunResult) error {
	n.results = append(n.results, result)
	return errors.New("webhook down")
}

func TestRunnerNotifiesCompletedRun(t *testing.T) {
	clock := fixedClock{now: day(2024, 3, 31)}
	processor, err := NewProcessor(DefaultConfig(), memory.NewSnapshotStore(), clock, WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("new processor: %v", err)
	}
	notifier := &recordingNotifier{}
	runner, err := NewRunner(&stubFetcher{}, processor, nil, clock, WindowConfig{RollingDays: 1, BatchDays: 1}, quietLogger(), WithRunNotifier(notifier))
	if err != nil {
		t.Fatalf("new runner: %v", err)
	}
	result, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("notify errors must not fail the run: %v", err)
	}
	if len(notifier.results) != 1 || notifier.results[0].ID != result.ID {
		t.Fatalf("notifier calls mismatch: got=%d", len(notifier.results))
	}
}

func TestRunnerRecordsBatchWithoutDates(t *testing.T) {
	clock := fixedClock{now: day(2024, 3, 31)}
	processor, err := NewProcessor(DefaultConfig(), memory.NewSnapshotStore(), clock, WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("new processor: %v", err)
	}
	notifier := &recordingNotifier{}
	fetcher := &stubFetcher{garbled: map[time.Time]bool{day(2024, 2, 29): true}}
	runner, err := NewRunner(fetcher, processor, nil, clock, WindowConfig{RollingDays: 60, BatchDays: 30}, quietLogger(), WithRunNotifier(notifier))
	if err != nil {
		t.Fatalf("new runner: %v", err)
	}

	result, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(result.FetchFailures) != 1 || !errors.Is(result.FetchFailures[0].Err, marketreport.ErrFormatDrift) {
		t.Fatalf("expected one drift batch failure, got %v", result.FetchFailures)
	}
	if len(result.Rows) != 24 || len(notifier.results) != 1 {
		t.Fatalf("result mismatch: rows=%d notified=%d", len(result.Rows), len(notifier.results))
	}

	fetcher.garbled[day(2024, 3, 30)] = true
	if _, err := runner.Run(context.Background()); !errors.Is(err, marketreport.ErrFormatDrift) {
		t.Fatalf("expected run to fail when no batch has dates, got %v", err)
	}
}
