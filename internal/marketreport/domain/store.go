package marketreport

import (
	"context"
	"time"
)

// SnapshotStore persists the reconciled rows of one date.
// GetSnapshot returns ErrSnapshotNotFound when the date was never stored.
type SnapshotStore interface {
	GetSnapshot(ctx context.Context, date time.Time) ([]NormalizedRow, error)
	PutSnapshot(ctx context.Context, date time.Time, rows []NormalizedRow) error
}

// DateLocker serialises read-reconcile-write units for one date.
type DateLocker interface {
	LockDate(ctx context.Context, date time.Time) (func(), error)
}
