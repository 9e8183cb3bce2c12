package marketreport

import (
	"strings"
	"time"
)

const (
	// ReportDateLayout is the long-form date used by the report and by persisted snapshots.
	ReportDateLayout = "January 02, 2006"
	// LastUpdatedLayout is the layout of the provenance date.
	LastUpdatedLayout = "2006-01-02"
)

// DayStart truncates t to UTC midnight.
func DayStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Yesterday returns the day preceding now. Report days are final only once they have ended.
func Yesterday(now time.Time) time.Time {
	return DayStart(now).AddDate(0, 0, -1)
}

// FormatReportDate renders a date as "May 01, 2021".
func FormatReportDate(date time.Time) string {
	return date.Format(ReportDateLayout)
}

// ParseReportDate parses a "May 01, 2021" date.
func ParseReportDate(value string) (time.Time, error) {
	date, err := time.Parse(ReportDateLayout, strings.TrimSpace(value))
	if err != nil {
		return time.Time{}, err
	}
	return date.UTC(), nil
}

// FormatLastUpdated renders a provenance date.
func FormatLastUpdated(date time.Time) string {
	return date.Format(LastUpdatedLayout)
}

// ParseLastUpdated parses a provenance date.
func ParseLastUpdated(value string) (time.Time, error) {
	date, err := time.Parse(LastUpdatedLayout, strings.TrimSpace(value))
	if err != nil {
		return time.Time{}, err
	}
	return date.UTC(), nil
}
