package memory

import (
	"context"
	"sync"
	"time"

	marketreport "aeso-report/internal/marketreport/domain"
)

// SnapshotStore is an in-memory snapshot store.
type SnapshotStore struct {
	*marketreport.DateMutex

	mu   sync.RWMutex
	data map[time.Time][]marketreport.NormalizedRow
}

// NewSnapshotStore constructs a store.
func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{
		DateMutex: marketreport.NewDateMutex(),
		data:      make(map[time.Time][]marketreport.NormalizedRow),
	}
}

// GetSnapshot loads a copy of the rows stored for date.
func (s *SnapshotStore) GetSnapshot(ctx context.Context, date time.Time) ([]marketreport.NormalizedRow, error) {
	_ = ctx
	if date.IsZero() {
		return nil, marketreport.ErrInvalidDate
	}
	s.mu.RLock()
	rows, ok := s.data[marketreport.DayStart(date)]
	s.mu.RUnlock()
	if !ok {
		return nil, marketreport.ErrSnapshotNotFound
	}
	return append([]marketreport.NormalizedRow(nil), rows...), nil
}

// PutSnapshot overwrites the rows stored for date.
func (s *SnapshotStore) PutSnapshot(ctx context.Context, date time.Time, rows []marketreport.NormalizedRow) error {
	_ = ctx
	if date.IsZero() {
		return marketreport.ErrInvalidDate
	}
	stored := append([]marketreport.NormalizedRow{}, rows...)
	s.mu.Lock()
	s.data[marketreport.DayStart(date)] = stored
	s.mu.Unlock()
	return nil
}

// Dates lists stored dates for assertion convenience.
func (s *SnapshotStore) Dates() []time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	dates := make([]time.Time, 0, len(s.data))
	for date := range s.data {
		dates = append(dates, date)
	}
	return dates
}
