package marketreport

import (
	"context"
	"sync"
	"time"
)

// DateMutex is an in-process DateLocker with one single-slot semaphore per report date.
type DateMutex struct {
	mu    sync.Mutex
	slots map[time.Time]chan struct{}
}

// NewDateMutex constructs a DateMutex.
func NewDateMutex() *DateMutex {
	return &DateMutex{slots: make(map[time.Time]chan struct{})}
}

// LockDate blocks until the date is free or ctx is done. The release func must be called
// exactly once.
func (m *DateMutex) LockDate(ctx context.Context, date time.Time) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key := DayStart(date)
	m.mu.Lock()
	slot, ok := m.slots[key]
	if !ok {
		slot = make(chan struct{}, 1)
		m.slots[key] = slot
	}
	m.mu.Unlock()

	select {
	case slot <- struct{}{}:
		return func() { <-slot }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
