package aeso

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"

	marketreport "aeso-report/internal/marketreport/domain"
)

// ParseCSV tokenises a CSV report one physical line at a time. Blank lines are kept as empty
// ReportLines because they terminate core data blocks. An unquoted date anchor such as
// "March 04, 2024." is kept as one token; splitting it on its comma would hide the date.
func ParseCSV(r io.Reader) ([]marketreport.ReportLine, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4<<20)

	var lines []marketreport.ReportLine
	for n := 1; scanner.Scan(); n++ {
		text := strings.TrimRight(scanner.Text(), "\r")
		if n == 1 {
			text = strings.TrimPrefix(text, "\ufeff")
		}
		trimmed := strings.TrimSpace(text)
		if trimmed == "" {
			lines = append(lines, marketreport.ReportLine{})
			continue
		}
		if _, err := marketreport.ParseDateAnchor(trimmed); err == nil {
			lines = append(lines, marketreport.ReportLine{trimmed})
			continue
		}
		reader := csv.NewReader(strings.NewReader(text))
		reader.FieldsPerRecord = -1
		reader.LazyQuotes = true
		record, err := reader.Read()
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", n, err)
		}
		for i := range record {
			record[i] = strings.TrimSpace(record[i])
		}
		lines = append(lines, marketreport.ReportLine(record))
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}

// ParseHTML tokenises the HTML report: each table row becomes a line of cell texts and every
// innermost table is followed by a blank line.
func ParseHTML(r io.Reader) ([]marketreport.ReportLine, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, err
	}

	var lines []marketreport.ReportLine
	doc.Find("table:not(:has(table))").Each(func(_ int, table *goquery.Selection) {
		table.Find("tr").Each(func(_ int, row *goquery.Selection) {
			var line marketreport.ReportLine
			row.ChildrenFiltered("td, th").Each(func(_ int, cell *goquery.Selection) {
				line = append(line, strings.TrimSpace(cell.Text()))
			})
			if line.IsBlank() {
				line = marketreport.ReportLine{}
			}
			lines = append(lines, line)
		})
		lines = append(lines, marketreport.ReportLine{})
	})
	return lines, nil
}
