package marketreport

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

type fixtureAsset struct {
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

func dayBlock(date string, prices []string, assets []fixtureAsset) []ReportLine {
	lines := []ReportLine{
		{date + "."},
		{"Pool Participant Summary"},
		{},
		{"Hourly Energy (MWh)"},
		{"", "", "", "Hour Ending"},
		append(ReportLine{"-", "-", "-"}, prices...),
		{"Pool Participant ID", "Asset Type", "Asset ID", "Hour 1"},
	}
	for _, a := range assets {
		lines = append(lines, append(ReportLine{a.participant, a.assetType, a.assetID}, a.values...))
	}
	return lines
}

func TestSegmenterSplitsDays(t *testing.T) {
	seg, err := NewSegmenter(DefaultLayout())
	if err != nil {
		t.Fatalf("new segmenter: %v", err)
	}

	var lines []ReportLine
	lines = append(lines, ReportLine{"Public Summary Report"}, ReportLine{})
	lines = append(lines, dayBlock("May 01, 2021", hourValues(24, 40), []fixtureAsset{
		{"P1", "GEN", "VQ6", hourValues(24, 1)},
		{"P2", "GEN", "ARD1", hourValues(24, 2)},
	})...)
	lines = append(lines, ReportLine{})
	lines = append(lines, dayBlock("May 02, 2021", hourValues(24, 50), []fixtureAsset{
		{"P1", "GEN", "VQ6", hourValues(24, 3)},
	})...)

	segments := seg.Segment(lines)
	if len(segments) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(segments))
	}
	first := segments[0]
	if !first.Date.Equal(time.Date(2021, time.May, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("first date mismatch: %v", first.Date)
	}
	if !first.Complete() {
		t.Fatalf("first segment should be complete: %v", first.Issues)
	}
	if len(first.CoreRows) != 2 {
		t.Fatalf("expected 2 core rows, got %d", len(first.CoreRows))
	}
	if len(first.ClosingPrices) != 24 || first.ClosingPrices[0] != Number(40) {
		t.Fatalf("closing prices mismatch: %v", first.ClosingPrices)
	}
	if first.CoreRows[1].AssetID != "ARD1" || first.CoreRows[1].ParticipantID != "P2" {
		t.Fatalf("core row identity mismatch: %+v", first.CoreRows[1])
	}

	second := segments[1]
	if !second.Complete() {
		t.Fatalf("segment flushed at end of stream should be complete: %v", second.Issues)
	}
	if len(second.CoreRows) != 1 || second.CoreRows[0].HourlyValues[0] != "3.0" {
		t.Fatalf("second segment rows mismatch: %+v", second.CoreRows)
	}
	if seg.State() != StateScanning {
		t.Fatalf("segmenter should end scanning, got %s", seg.State())
	}
}

func TestSegmenterToleratesMissingHours(t *testing.T) {
	seg, _ := NewSegmenter(DefaultLayout())
	lines := dayBlock("May 01, 2021", hourValues(24, 40), []fixtureAsset{
		{"P1", "GEN", "VQ6", hourValues(22, 1)},
	})
	lines = append(lines, ReportLine{})

	segments := seg.Segment(lines)
	if len(segments) != 1 {
		t.Fatalf("expected 1 segment, got %d", len(segments))
	}
	if !segments[0].Complete() {
		t.Fatalf("short row must not flag drift: %v", segments[0].Issues)
	}
	rows := ReshapeSegment(segments[0])
	if len(rows) != 22 {
		t.Fatalf("expected 22 reshaped rows, got %d", len(rows))
	}
	for _, row := range rows {
		if row.Hour > 22 {
			t.Fatalf("fabricated hour %d", row.Hour)
		}
	}
}

func TestSegmenterKeepsEmptyLastHour(t *testing.T) {
	seg, _ := NewSegmenter(DefaultLayout())
	lastEmpty := hourValues(24, 1)
	lastEmpty[23] = ""
	trailingComma := append(hourValues(24, 1), "")
	lines := dayBlock("May 01, 2021", hourValues(24, 40), []fixtureAsset{
		{"P1", "GEN", "VQ6", lastEmpty},
		{"P1", "GEN", "ARD1", trailingComma},
	})

	segments := seg.Segment(lines)
	if len(segments) != 1 || !segments[0].Complete() {
		t.Fatalf("segment mismatch: got=%+v", segments)
	}
	rows := ReshapeSegment(segments[0])
	if len(rows) != 48 {
		t.Fatalf("reshaped row count mismatch: got=%d want=48", len(rows))
	}
	if last := rows[23]; last.Hour != 24 || last.Energy.Valid {
		t.Fatalf("empty hour 24 should be missing: got=%+v", last)
	}
	if last := rows[47]; last.Hour != 24 || !last.Energy.Valid {
		t.Fatalf("trailing comma should not add a value: got=%+v", last)
	}
}

func TestSegmenterClosingPriceDrift(t *testing.T) {
	seg, _ := NewSegmenter(DefaultLayout())
	lines := dayBlock("May 01, 2021", nil, []fixtureAsset{{"P1", "GEN", "VQ6", hourValues(24, 1)}})
	lines[5] = ReportLine{"-", "-"}

	segments := seg.Segment(lines)
	if len(segments) != 1 {
		t.Fatalf("expected 1 segment, got %d", len(segments))
	}
	got := segments[0]
	if got.Complete() {
		t.Fatalf("segment with short closing price line must be incomplete")
	}
	var drift *FormatDriftError
	if !errors.As(got.Issues[0], &drift) || drift.Line != 5 {
		t.Fatalf("expected drift at line 5, got %v", got.Issues)
	}
	if !errors.Is(got.Issues[0], ErrFormatDrift) {
		t.Fatalf("drift issue should match ErrFormatDrift")
	}
	if len(got.ClosingPrices) != 0 {
		t.Fatalf("closing prices must not be padded: %v", got.ClosingPrices)
	}
	if len(got.CoreRows) != 1 {
		t.Fatalf("scanning should continue past drift, got %d rows", len(got.CoreRows))
	}
}

func TestSegmenterInterruptedByDate(t *testing.T) {
	seg, _ := NewSegmenter(DefaultLayout())
	lines := dayBlock("May 01, 2021", hourValues(24, 40), []fixtureAsset{{"P1", "GEN", "VQ6", hourValues(24, 1)}})[:4]
	lines = append(lines, dayBlock("May 02, 2021", hourValues(24, 40), []fixtureAsset{{"P1", "GEN", "VQ6", hourValues(24, 1)}})...)

	segments := seg.Segment(lines)
	if len(segments) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(segments))
	}
	if segments[0].Complete() {
		t.Fatalf("interrupted segment must be incomplete")
	}
	if !segments[1].Complete() {
		t.Fatalf("following segment should be complete: %v", segments[1].Issues)
	}
}

func TestSegmenterTruncatedReport(t *testing.T) {
	seg, _ := NewSegmenter(DefaultLayout())
	lines := dayBlock("May 01, 2021", hourValues(24, 40), nil)[:6]

	segments := seg.Segment(lines)
	if len(segments) != 1 || segments[0].Complete() {
		t.Fatalf("truncated segment must be flushed incomplete: %+v", segments)
	}
}

func TestSegmenterRejectsWideRows(t *testing.T) {
	seg, _ := NewSegmenter(DefaultLayout())
	lines := dayBlock("May 01, 2021", hourValues(24, 40), []fixtureAsset{
		{"P1", "GEN", "VQ6", hourValues(25, 1)},
		{"P1", "GEN", "ARD1", append(hourValues(24, 1), "")},
	})

	segments := seg.Segment(lines)
	if len(segments) != 1 {
		t.Fatalf("expected 1 segment, got %d", len(segments))
	}
	if segments[0].Complete() {
		t.Fatalf("25 hour values must flag drift")
	}
	if len(segments[0].CoreRows) != 1 || segments[0].CoreRows[0].AssetID != "ARD1" {
		t.Fatalf("trailing comma should be dropped: %+v", segments[0].CoreRows)
	}
}

func TestNewSegmenterValidatesLayout(t *testing.T) {
	for _, layout := range []Layout{
		{ClosingPriceOffset: 0, CoreDataOffset: 7, FillerTokens: 3},
		{ClosingPriceOffset: 7, CoreDataOffset: 7, FillerTokens: 3},
		{ClosingPriceOffset: 5, CoreDataOffset: 7, FillerTokens: -1},
	} {
		if _, err := NewSegmenter(layout); !errors.Is(err, ErrInvalidLayout) {
			t.Fatalf("expected invalid layout for %+v, got %v", layout, err)
		}
	}
}
