package marketreport

import (
	"testing"
	"time"
)

func TestReshape(t *testing.T) {
	date := time.Date(2021, time.May, 1, 0, 0, 0, 0, time.UTC)
	core := []CoreRow{
		{ParticipantID: "P1", AssetType: "GEN", AssetID: "VQ6", HourlyValues: []string{"10", "bad", "12"}},
	}
	prices := []Value{Number(40), Number(41)}

	rows := Reshape(core, prices, date)
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	if rows[0].Hour != 1 || rows[0].Energy != Number(10) || rows[0].ClosingPrice != Number(40) {
		t.Fatalf("hour 1 mismatch: %+v", rows[0])
	}
	if rows[1].Energy.Valid {
		t.Fatalf("unparsable value should be missing: %+v", rows[1])
	}
	if rows[2].ClosingPrice.Valid {
		t.Fatalf("absent closing price should be missing: %+v", rows[2])
	}
	for _, row := range rows {
		if !row.Date.Equal(date) || row.AssetID != "VQ6" {
			t.Fatalf("identity mismatch: %+v", row)
		}
	}
}

func TestEnsureUniqueKeys(t *testing.T) {
	date := time.Date(2021, time.May, 1, 0, 0, 0, 0, time.UTC)
	rows := []NormalizedRow{{AssetID: "VQ6", Date: date, Hour: 1}, {AssetID: "VQ6", Date: date, Hour: 2}}
	if err := EnsureUniqueKeys(rows); err != nil {
		t.Fatalf("unique rows: %v", err)
	}
	rows = append(rows, NormalizedRow{AssetID: "VQ6", Date: date, Hour: 1})
	if err := EnsureUniqueKeys(rows); err == nil {
		t.Fatalf("expected duplicate key error")
	}
}

func TestSortRows(t *testing.T) {
	d1 := time.Date(2021, time.May, 1, 0, 0, 0, 0, time.UTC)
	d2 := d1.AddDate(0, 0, 1)
	rows := []NormalizedRow{
		{AssetID: "VQ6", Date: d1, Hour: 2},
		{AssetID: "ARD1", Date: d2, Hour: 1},
		{AssetID: "VQ6", Date: d1, Hour: 1},
		{AssetID: "ARD1", Date: d1, Hour: 24},
	}
	SortRows(rows)
	want := []RowKey{
		{AssetID: "ARD1", Date: d1, Hour: 24},
		{AssetID: "ARD1", Date: d2, Hour: 1},
		{AssetID: "VQ6", Date: d1, Hour: 1},
		{AssetID: "VQ6", Date: d1, Hour: 2},
	}
	for i, row := range rows {
		if row.Key() != want[i] {
			t.Fatalf("row %d mismatch: got=%+v want=%+v", i, row.Key(), want[i])
		}
	}
}
