package marketreport

import (
	"errors"
	"fmt"
)

var (
	// ErrFormatDrift is returned when the report no longer matches the fixed-offset layout.
	ErrFormatDrift = errors.New("marketreport: format drift")
	// ErrSnapshotNotFound is returned when no snapshot has been stored for a date.
	ErrSnapshotNotFound = errors.New("marketreport: snapshot not found")
	// ErrSnapshotCorrupt is returned when a stored snapshot cannot be decoded.
	ErrSnapshotCorrupt = errors.New("marketreport: snapshot corrupt")
	// ErrDuplicateRowKey is returned when two rows share (asset id, date, hour).
	ErrDuplicateRowKey = errors.New("marketreport: duplicate row key")
	// ErrInvalidLayout is returned for unusable segment offsets.
	ErrInvalidLayout = errors.New("marketreport: invalid layout")
	// ErrInvalidPeakHours is returned for peak bounds outside 1..24.
	ErrInvalidPeakHours = errors.New("marketreport: invalid peak hours")
	// ErrInvalidDate is returned when a date is zero or unparsable.
	ErrInvalidDate = errors.New("marketreport: invalid date")
	// ErrNilStore is returned when a snapshot store is missing.
	ErrNilStore = errors.New("marketreport: nil snapshot store")
)

// FormatDriftError records where a day segment diverged from the expected layout.
type FormatDriftError struct {
	Line   int
	Reason string
}

func (e *FormatDriftError) Error() string {
	return fmt.Sprintf("marketreport: format drift at line %d: %s", e.Line, e.Reason)
}

// Unwrap lets errors.Is match ErrFormatDrift.
func (e *FormatDriftError) Unwrap() error { return ErrFormatDrift }

func driftf(line int, format string, args ...any) *FormatDriftError {
	return &FormatDriftError{Line: line, Reason: fmt.Sprintf(format, args...)}
}
