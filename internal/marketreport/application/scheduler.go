package application

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"
)

// RunTrigger starts a rolling-window report run.
type RunTrigger interface {
	Run(ctx context.Context) (*RunResult, error)
}

// Scheduler triggers a report run once a day at a fixed UTC time.
type Scheduler struct {
	runs   RunTrigger
	hour   int
	minute int
	clock  Clock
	logger *log.Logger
}

// NewScheduler constructs a Scheduler. dailyAt is HH:MM in UTC.
func NewScheduler(runs RunTrigger, dailyAt string, clock Clock, logger *log.Logger) (*Scheduler, error) {
	if runs == nil {
		return nil, errors.New("scheduler: nil run trigger")
	}
	if clock == nil {
		clock = SystemClock{}
	}
	hour, minute, err := parseDailyAt(dailyAt)
	if err != nil {
		return nil, fmt.Errorf("scheduler: daily_at %q: %w", dailyAt, err)
	}
	return &Scheduler{runs: runs, hour: hour, minute: minute, clock: clock, logger: logger}, nil
}

// Start blocks until ctx is done, running the report at each daily slot.
func (s *Scheduler) Start(ctx context.Context) {
	for {
		now := s.clock.Now()
		next := s.nextRun(now)
		if s.logger != nil {
			s.logger.Printf("report schedule: next_run=%s", next.Format(time.RFC3339))
		}
		timer := time.NewTimer(next.Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			s.runOnce(ctx)
		}
	}
}

// nextRun returns the first slot strictly after now.
func (s *Scheduler) nextRun(now time.Time) time.Time {
	now = now.UTC()
	next := time.Date(now.Year(), now.Month(), now.Day(), s.hour, s.minute, 0, 0, time.UTC)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

func (s *Scheduler) runOnce(ctx context.Context) {
	_, err := s.runs.Run(ctx)
	if s.logger == nil {
		return
	}
	switch {
	case errors.Is(err, ErrRunInProgress):
		s.logger.Printf("report schedule skipped: run in progress")
	case err != nil:
		s.logger.Printf("report schedule error: %v", err)
	}
}

func parseDailyAt(value string) (int, int, error) {
	t, err := time.Parse("15:04", value)
	if err != nil {
		return 0, 0, err
	}
	return t.Hour(), t.Minute(), nil
}
