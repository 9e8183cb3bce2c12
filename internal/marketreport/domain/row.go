package marketreport

import (
	"fmt"
	"sort"
	"time"
)

// PeakStatus classifies an hour ending.
type PeakStatus string

const (
	Peak    PeakStatus = "Peak"
	OffPeak PeakStatus = "Off-Peak"
)

// ParsePeakStatus validates a persisted peak status.
func ParsePeakStatus(value string) (PeakStatus, bool) {
	switch PeakStatus(value) {
	case Peak, OffPeak:
		return PeakStatus(value), true
	default:
		return "", false
	}
}

// HourlyRow is one reshaped (asset, date, hour) cell before filtering and classification.
type HourlyRow struct {
	ParticipantID string
	AssetType     string
	AssetID       string
	Date          time.Time
	Hour          int
	Energy        Value
	ClosingPrice  Value
}

// NormalizedRow is the unit of output and of persistence.
type NormalizedRow struct {
	AssetID      string
	SiteName     string
	Date         time.Time
	Hour         int
	Energy       Value
	ClosingPrice Value
	PeakStatus   PeakStatus
	LastUpdated  time.Time
}

// RowKey identifies a row within all dates.
type RowKey struct {
	AssetID string
	Date    time.Time
	Hour    int
}

// Key returns the row identity.
func (r NormalizedRow) Key() RowKey {
	return RowKey{AssetID: r.AssetID, Date: DayStart(r.Date), Hour: r.Hour}
}

// Less orders keys by asset id, date, hour.
func (k RowKey) Less(other RowKey) bool {
	if k.AssetID != other.AssetID {
		return k.AssetID < other.AssetID
	}
	if !k.Date.Equal(other.Date) {
		return k.Date.Before(other.Date)
	}
	return k.Hour < other.Hour
}

// SortRows sorts rows by (asset id, date, hour) ascending.
func SortRows(rows []NormalizedRow) {
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].Key().Less(rows[j].Key())
	})
}

// EnsureUniqueKeys returns ErrDuplicateRowKey when two rows share a key.
func EnsureUniqueKeys(rows []NormalizedRow) error {
	seen := make(map[RowKey]struct{}, len(rows))
	for _, row := range rows {
		key := row.Key()
		if _, ok := seen[key]; ok {
			return fmt.Errorf("%w: asset=%s date=%s hour=%d", ErrDuplicateRowKey, key.AssetID, FormatReportDate(key.Date), key.Hour)
		}
		seen[key] = struct{}{}
	}
	return nil
}
