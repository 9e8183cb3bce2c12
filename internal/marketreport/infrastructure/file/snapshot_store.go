package file

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	marketreport "aeso-report/internal/marketreport/domain"
)

var snapshotHeader = []string{"Asset ID", "Name", "Date", "Hour", "MWh", "Peak Status", "Last Updated"}

// SnapshotStore keeps one CSV file per report date under root.
type SnapshotStore struct {
	*marketreport.DateMutex

	root string
}

// NewSnapshotStore constructs a store rooted at dir.
func NewSnapshotStore(root string) (*SnapshotStore, error) {
	if root == "" {
		return nil, errors.New("file snapshot store: empty root")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &SnapshotStore{DateMutex: marketreport.NewDateMutex(), root: root}, nil
}

// Path returns the snapshot file path for date.
func (s *SnapshotStore) Path(date time.Time) string {
	return filepath.Join(s.root, marketreport.DayStart(date).Format("2006-01-02")+".csv")
}

// GetSnapshot reads the snapshot for date.
func (s *SnapshotStore) GetSnapshot(ctx context.Context, date time.Time) ([]marketreport.NormalizedRow, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if date.IsZero() {
		return nil, marketreport.ErrInvalidDate
	}
	f, err := os.Open(s.Path(date))
	if errors.Is(err, os.ErrNotExist) {
		return nil, marketreport.ErrSnapshotNotFound
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	rows, err := decodeSnapshot(f, marketreport.DayStart(date))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", marketreport.ErrSnapshotCorrupt, filepath.Base(f.Name()), err)
	}
	return rows, nil
}

// PutSnapshot replaces the snapshot for date. The file is written to a temp name and renamed.
func (s *SnapshotStore) PutSnapshot(ctx context.Context, date time.Time, rows []marketreport.NormalizedRow) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if date.IsZero() {
		return marketreport.ErrInvalidDate
	}
	target := s.Path(date)
	tmp, err := os.CreateTemp(s.root, ".snapshot-*.csv")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := encodeSnapshot(tmp, rows); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, target)
}

func encodeSnapshot(w io.Writer, rows []marketreport.NormalizedRow) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(snapshotHeader); err != nil {
		return err
	}
	for _, row := range rows {
		record := []string{
			row.AssetID,
			row.SiteName,
			marketreport.FormatReportDate(row.Date),
			strconv.Itoa(row.Hour),
			row.Energy.String(),
			string(row.PeakStatus),
			marketreport.FormatLastUpdated(row.LastUpdated),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func decodeSnapshot(r io.Reader, date time.Time) ([]marketreport.NormalizedRow, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = len(snapshotHeader)
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	for i, name := range snapshotHeader {
		if header[i] != name {
			return nil, fmt.Errorf("unexpected column %q at %d", header[i], i)
		}
	}

	var rows []marketreport.NormalizedRow
	for line := 2; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		row, err := decodeRecord(record)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if !row.Date.Equal(date) {
			return nil, fmt.Errorf("line %d: row dated %s", line, record[2])
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func decodeRecord(record []string) (marketreport.NormalizedRow, error) {
	date, err := marketreport.ParseReportDate(record[2])
	if err != nil {
		return marketreport.NormalizedRow{}, fmt.Errorf("date: %w", err)
	}
	hour, err := strconv.Atoi(record[3])
	if err != nil || hour < 1 || hour > marketreport.HoursPerDay {
		return marketreport.NormalizedRow{}, fmt.Errorf("hour %q", record[3])
	}
	energy := marketreport.Missing
	if record[4] != "" {
		v, err := strconv.ParseFloat(record[4], 64)
		if err != nil {
			return marketreport.NormalizedRow{}, fmt.Errorf("mwh %q", record[4])
		}
		energy = marketreport.Number(v)
	}
	peak, ok := marketreport.ParsePeakStatus(record[5])
	if !ok {
		return marketreport.NormalizedRow{}, fmt.Errorf("peak status %q", record[5])
	}
	lastUpdated, err := marketreport.ParseLastUpdated(record[6])
	if err != nil {
		return marketreport.NormalizedRow{}, fmt.Errorf("last updated: %w", err)
	}
	return marketreport.NormalizedRow{
		AssetID:     record[0],
		SiteName:    record[1],
		Date:        date,
		Hour:        hour,
		Energy:      energy,
		PeakStatus:  peak,
		LastUpdated: lastUpdated,
	}, nil
}
