package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	marketreport "aeso-report/internal/marketreport/domain"
	"aeso-report/internal/observability/metrics"
)

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// SystemClock uses time.Now.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// Reconciliation is the outcome of reconciling one date.
type Reconciliation struct {
	Date      time.Time
	Rows      []marketreport.NormalizedRow
	FirstSeen bool
	Carried   int
	Updated   int
	Added     int
}

// Reconciler assigns last-updated dates by diffing a pull against the stored snapshot.
type Reconciler struct {
	store     marketreport.SnapshotStore
	clock     Clock
	tolerance float64
}

// NewReconciler constructs a Reconciler.
func NewReconciler(store marketreport.SnapshotStore, clock Clock, tolerance float64) (*Reconciler, error) {
	if store == nil {
		return nil, marketreport.ErrNilStore
	}
	if tolerance < 0 {
		return nil, errors.New("reconciler: negative tolerance")
	}
	if clock == nil {
		clock = SystemClock{}
	}
	return &Reconciler{store: store, clock: clock, tolerance: tolerance}, nil
}

// Reconcile decorates every row with LastUpdated. A row keeps the stored date only while its
// energy value is unchanged; changed, new and first-seen rows get yesterday's date.
func (r *Reconciler) Reconcile(ctx context.Context, date time.Time, rows []marketreport.NormalizedRow) (Reconciliation, error) {
	if date.IsZero() {
		return Reconciliation{}, marketreport.ErrInvalidDate
	}
	date = marketreport.DayStart(date)
	yesterday := marketreport.Yesterday(r.clock.Now())
	result := Reconciliation{Date: date, Rows: make([]marketreport.NormalizedRow, 0, len(rows))}

	prior, err := r.store.GetSnapshot(ctx, date)
	switch {
	case errors.Is(err, marketreport.ErrSnapshotNotFound):
		metrics.IncSnapshotOp("get", metrics.ResultNotFound)
		result.FirstSeen = true
		for _, row := range rows {
			row.LastUpdated = yesterday
			result.Rows = append(result.Rows, row)
		}
		result.Added = len(rows)
		return result, nil
	case err != nil:
		metrics.IncSnapshotOp("get", metrics.ResultError)
		return Reconciliation{}, fmt.Errorf("reconcile %s: %w", marketreport.FormatReportDate(date), err)
	}
	metrics.IncSnapshotOp("get", metrics.ResultSuccess)

	index := make(map[marketreport.RowKey]marketreport.NormalizedRow, len(prior))
	for _, old := range prior {
		key := old.Key()
		if _, dup := index[key]; dup {
			return Reconciliation{}, fmt.Errorf("reconcile %s: %w: duplicate key asset=%s hour=%d",
				marketreport.FormatReportDate(date), marketreport.ErrSnapshotCorrupt, key.AssetID, key.Hour)
		}
		index[key] = old
	}

	for _, row := range rows {
		old, ok := index[row.Key()]
		switch {
		case !ok:
			row.LastUpdated = yesterday
			result.Added++
		case row.Energy.Equal(old.Energy, r.tolerance):
			row.LastUpdated = old.LastUpdated
			result.Carried++
		default:
			row.LastUpdated = yesterday
			result.Updated++
		}
		result.Rows = append(result.Rows, row)
	}
	return result, nil
}
