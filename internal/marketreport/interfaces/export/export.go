package export

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	marketreport "aeso-report/internal/marketreport/domain"
	"aeso-report/internal/observability/metrics"
)

const (
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"
	FormatPDF  = "pdf"

	sheetName = "generation"
)

// ErrUnsupportedFormat is returned for unknown export formats.
var ErrUnsupportedFormat = errors.New("export: unsupported format")

// Options selects optional columns.
type Options struct {
	IncludeClosingPrice bool
}

// Header returns the column titles of the final table.
func Header(opts Options) []string {
	header := []string{"Asset ID", "Name", "Date", "Hour", "MWh"}
	if opts.IncludeClosingPrice {
		header = append(header, "Closing Price")
	}
	return append(header, "Peak Status", "Last Updated")
}

// Record renders one row as text cells aligned with Header.
func Record(row marketreport.NormalizedRow, opts Options) []string {
	record := []string{
		row.AssetID,
		row.SiteName,
		marketreport.FormatReportDate(row.Date),
		strconv.Itoa(row.Hour),
		row.Energy.String(),
	}
	if opts.IncludeClosingPrice {
		record = append(record, row.ClosingPrice.String())
	}
	return append(record, string(row.PeakStatus), marketreport.FormatLastUpdated(row.LastUpdated))
}

// ContentType returns the MIME type for format.
func ContentType(format string) string {
	switch format {
	case FormatCSV:
		return "text/csv"
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case FormatPDF:
		return "application/pdf"
	default:
		return "application/octet-stream"
	}
}

// Render builds the export body for format.
func Render(format string, rows []marketreport.NormalizedRow, opts Options) ([]byte, error) {
	var (
		body []byte
		err  error
	)
	switch format {
	case FormatCSV:
		var buf bytes.Buffer
		err = WriteCSV(&buf, rows, opts)
		body = buf.Bytes()
	case FormatXLSX:
		body, err = BuildXLSX(rows, opts)
	case FormatPDF:
		body, err = BuildPDF(rows, opts)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	result := metrics.ResultSuccess
	if err != nil {
		result = metrics.ResultError
	}
	metrics.IncExport(format, result)
	if err != nil {
		return nil, err
	}
	return body, nil
}

// WriteCSV writes the table as CSV.
func WriteCSV(w io.Writer, rows []marketreport.NormalizedRow, opts Options) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(Header(opts)); err != nil {
		return err
	}
	for _, row := range rows {
		if err := writer.Write(Record(row, opts)); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// BuildXLSX renders the table into a single sheet. Numeric cells stay numeric; missing values
// are left empty.
func BuildXLSX(rows []marketreport.NormalizedRow, opts Options) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return nil, err
	}

	header := Header(opts)
	for i, title := range header {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return nil, err
		}
		_ = f.SetCellValue(sheetName, cell, title)
	}
	for i, row := range rows {
		values := []any{
			row.AssetID,
			row.SiteName,
			marketreport.FormatReportDate(row.Date),
			row.Hour,
			cellValue(row.Energy),
		}
		if opts.IncludeClosingPrice {
			values = append(values, cellValue(row.ClosingPrice))
		}
		values = append(values, string(row.PeakStatus), marketreport.FormatLastUpdated(row.LastUpdated))
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(sheetName, cell, &values); err != nil {
			return nil, err
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildPDF renders the table as a landscape A4 document.
func BuildPDF(rows []marketreport.NormalizedRow, opts Options) ([]byte, error) {
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Hourly Generation")
	pdf.Ln(10)

	header := Header(opts)
	widths := columnWidths(opts)
	pdf.SetFont("Arial", "B", 9)
	for i, title := range header {
		pdf.CellFormat(widths[i], 6, title, "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 9)
	for _, row := range rows {
		for i, value := range Record(row, opts) {
			align := "L"
			if header[i] == "Hour" || header[i] == "MWh" || header[i] == "Closing Price" {
				align = "R"
			}
			pdf.CellFormat(widths[i], 6, value, "1", 0, align, false, 0, "")
		}
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func columnWidths(opts Options) []float64 {
	widths := []float64{25, 40, 45, 15, 25}
	if opts.IncludeClosingPrice {
		widths = append(widths, 30)
	}
	return append(widths, 30, 30)
}

func cellValue(v marketreport.Value) any {
	if !v.Valid {
		return nil
	}
	return v.Number
}
