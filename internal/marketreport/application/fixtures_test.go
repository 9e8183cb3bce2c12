package application

import (
	"context"
	"fmt"
	"time"

	marketreport "aeso-report/internal/marketreport/domain"
)

type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time { return c.now }

type reportAsset struct {
	participant string
	assetType   string
	assetID     string
	values      []string
}

func hourValues(n int, base float64) []string {
	values := make([]string, n)
	for i := range values {
		values[i] = fmt.Sprintf("%.1f", base+float64(i))
	}
	return values
}

// reportDay renders one day in the public summary layout: date anchor, closing prices five lines
// below, core rows from seven lines below, then a blank terminator.
func reportDay(date string, prices []string, assets []reportAsset) []marketreport.ReportLine {
	lines := []marketreport.ReportLine{
		{date + "."},
		{"Pool Participant Summary"},
		{},
		{"Hourly Energy (MWh)"},
		{"", "", "", "Hour Ending"},
		append(marketreport.ReportLine{"-", "-", "-"}, prices...),
		{"Pool Participant ID", "Asset Type", "Asset ID", "Hour 1"},
	}
	for _, a := range assets {
		lines = append(lines, append(marketreport.ReportLine{a.participant, a.assetType, a.assetID}, a.values...))
	}
	return append(lines, marketreport.ReportLine{})
}

func day(year int, month time.Month, d int) time.Time {
	return time.Date(year, month, d, 0, 0, 0, 0, time.UTC)
}

type failingStore struct {
	getErr error
	putErr error
}

func (s failingStore) GetSnapshot(ctx context.Context, date time.Time) ([]marketreport.NormalizedRow, error) {
	return nil, s.getErr
}

func (s failingStore) PutSnapshot(ctx context.Context, date time.Time, rows []marketreport.NormalizedRow) error {
	return s.putErr
}
