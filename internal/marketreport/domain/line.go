package marketreport

import (
	"errors"
	"strings"
	"time"
	"unicode/utf8"
)

// ReportLine is one tokenised row of the raw report.
type ReportLine []string

// IsBlank reports whether the line carries no data.
func (l ReportLine) IsBlank() bool {
	for _, token := range l {
		if strings.TrimSpace(token) != "" {
			return false
		}
	}
	return true
}

// IsDateLine reports whether the first token is a date anchor such as "February 09, 2021.".
func IsDateLine(line ReportLine) bool {
	if len(line) == 0 {
		return false
	}
	_, err := ParseDateAnchor(line[0])
	return err == nil
}

// ParseDateAnchor strips the single trailing terminator of an anchor token and parses the date.
func ParseDateAnchor(token string) (time.Time, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return time.Time{}, errors.New("marketreport: empty date anchor")
	}
	_, size := utf8.DecodeLastRuneInString(token)
	return ParseReportDate(token[:len(token)-size])
}
