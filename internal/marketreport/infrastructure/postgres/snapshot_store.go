package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	marketreport "aeso-report/internal/marketreport/domain"
)

const (
	defaultDatesTable = "report_snapshot_dates"
	defaultRowsTable  = "report_snapshot_rows"
)

// SnapshotStore persists snapshots in Postgres. A date exists once it has a row in the dates
// table, so an empty snapshot is still distinct from a missing one.
type SnapshotStore struct {
	db         *sql.DB
	datesTable string
	rowsTable  string
}

// StoreOption configures the store.
type StoreOption func(*SnapshotStore)

// WithTables overrides the table names.
func WithTables(datesTable, rowsTable string) StoreOption {
	return func(store *SnapshotStore) {
		if datesTable != "" {
			store.datesTable = datesTable
		}
		if rowsTable != "" {
			store.rowsTable = rowsTable
		}
	}
}

// NewSnapshotStore constructs a store.
func NewSnapshotStore(db *sql.DB, opts ...StoreOption) *SnapshotStore {
	store := &SnapshotStore{db: db, datesTable: defaultDatesTable, rowsTable: defaultRowsTable}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

// EnsureSchema creates the snapshot tables when missing.
func (s *SnapshotStore) EnsureSchema(ctx context.Context) error {
	if s == nil || s.db == nil {
		return errors.New("snapshot store: nil db")
	}
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	report_date TEXT PRIMARY KEY,
	day DATE NOT NULL,
	written_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS %s (
	report_date TEXT NOT NULL,
	asset_id TEXT NOT NULL,
	site_name TEXT NOT NULL,
	hour INTEGER NOT NULL,
	mwh DOUBLE PRECISION NULL,
	peak_status TEXT NOT NULL,
	last_updated DATE NOT NULL,
	PRIMARY KEY (report_date, asset_id, hour)
)`, s.datesTable, s.rowsTable))
	return err
}

// GetSnapshot loads the snapshot rows for date.
func (s *SnapshotStore) GetSnapshot(ctx context.Context, date time.Time) ([]marketreport.NormalizedRow, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("snapshot store: nil db")
	}
	if date.IsZero() {
		return nil, marketreport.ErrInvalidDate
	}
	date = marketreport.DayStart(date)
	key := marketreport.FormatReportDate(date)

	var exists int
	err := s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT 1 FROM %s WHERE report_date = $1`, s.datesTable), key).Scan(&exists)
	if err == sql.ErrNoRows {
		return nil, marketreport.ErrSnapshotNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
SELECT asset_id, site_name, report_date, hour, mwh, peak_status, last_updated
FROM %s
WHERE report_date = $1
ORDER BY asset_id ASC, hour ASC`, s.rowsTable), key)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []marketreport.NormalizedRow
	for rows.Next() {
		var (
			row         marketreport.NormalizedRow
			reportDate  string
			mwh         sql.NullFloat64
			peakStatus  string
			lastUpdated time.Time
		)
		if err := rows.Scan(&row.AssetID, &row.SiteName, &reportDate, &row.Hour, &mwh, &peakStatus, &lastUpdated); err != nil {
			return nil, err
		}
		parsedDate, err := marketreport.ParseReportDate(reportDate)
		if err != nil || !parsedDate.Equal(date) {
			return nil, fmt.Errorf("%w: report_date %q", marketreport.ErrSnapshotCorrupt, reportDate)
		}
		if row.Hour < 1 || row.Hour > marketreport.HoursPerDay {
			return nil, fmt.Errorf("%w: hour %d", marketreport.ErrSnapshotCorrupt, row.Hour)
		}
		status, ok := marketreport.ParsePeakStatus(peakStatus)
		if !ok {
			return nil, fmt.Errorf("%w: peak_status %q", marketreport.ErrSnapshotCorrupt, peakStatus)
		}
		row.Date = parsedDate
		row.PeakStatus = status
		row.LastUpdated = marketreport.DayStart(lastUpdated)
		if mwh.Valid {
			row.Energy = marketreport.Number(mwh.Float64)
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// PutSnapshot replaces the snapshot rows for date in one transaction.
func (s *SnapshotStore) PutSnapshot(ctx context.Context, date time.Time, rows []marketreport.NormalizedRow) error {
	if s == nil || s.db == nil {
		return errors.New("snapshot store: nil db")
	}
	if date.IsZero() {
		return marketreport.ErrInvalidDate
	}
	date = marketreport.DayStart(date)
	key := marketreport.FormatReportDate(date)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`
INSERT INTO %s (report_date, day, written_at)
VALUES ($1, $2, $3)
ON CONFLICT (report_date) DO UPDATE SET written_at = EXCLUDED.written_at`, s.datesTable), key, date, time.Now().UTC()); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE report_date = $1`, s.rowsTable), key); err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`
INSERT INTO %s (report_date, asset_id, site_name, hour, mwh, peak_status, last_updated)
VALUES ($1, $2, $3, $4, $5, $6, $7)`, s.rowsTable))
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, row := range rows {
		var mwh sql.NullFloat64
		if row.Energy.Valid {
			mwh = sql.NullFloat64{Float64: row.Energy.Number, Valid: true}
		}
		if _, err := stmt.ExecContext(ctx, key, row.AssetID, row.SiteName, row.Hour, mwh, string(row.PeakStatus), row.LastUpdated); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// LockDate takes a session advisory lock for date on a dedicated connection, so concurrent
// processes never reconcile the same date at once.
func (s *SnapshotStore) LockDate(ctx context.Context, date time.Time) (func(), error) {
	if s == nil || s.db == nil {
		return nil, errors.New("snapshot store: nil db")
	}
	key := marketreport.FormatReportDate(marketreport.DayStart(date))
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := conn.ExecContext(ctx, `SELECT pg_advisory_lock(hashtext($1))`, key); err != nil {
		conn.Close()
		return nil, err
	}
	return func() {
		_, _ = conn.ExecContext(context.Background(), `SELECT pg_advisory_unlock(hashtext($1))`, key)
		conn.Close()
	}, nil
}
