package marketreport

import (
	"strings"
	"time"
)

const (
	// HoursPerDay is the number of hour-ending columns in the report.
	HoursPerDay = 24
	// identityColumns are participant id, asset type and asset id.
	identityColumns = 3
)

// Layout is the fixed-offset contract with the report generator.
type Layout struct {
	// ClosingPriceOffset is the distance from the date line to the closing-price line.
	ClosingPriceOffset int `yaml:"closing_price_offset"`
	// CoreDataOffset is the distance from the date line to the first core data row.
	CoreDataOffset int `yaml:"core_data_offset"`
	// FillerTokens is the number of leading dash tokens on the closing-price line.
	FillerTokens int `yaml:"filler_tokens"`
}

// DefaultLayout matches the public summary report.
func DefaultLayout() Layout {
	return Layout{ClosingPriceOffset: 5, CoreDataOffset: 7, FillerTokens: 3}
}

// Validate checks offsets are forward and ordered.
func (l Layout) Validate() error {
	if l.ClosingPriceOffset <= 0 || l.CoreDataOffset <= l.ClosingPriceOffset || l.FillerTokens < 0 {
		return ErrInvalidLayout
	}
	return nil
}

// CoreRow is one asset's hourly values for a day, as raw tokens.
type CoreRow struct {
	ParticipantID string
	AssetType     string
	AssetID       string
	HourlyValues  []string
}

// DaySegment is the date-scoped slice of a report.
type DaySegment struct {
	Date          time.Time
	Line          int
	ClosingPrices []Value
	CoreRows      []CoreRow
	Issues        []error
}

// Complete reports whether the segment was read without drift.
func (s DaySegment) Complete() bool { return len(s.Issues) == 0 }

// SegmentState is the scanner position relative to the current date anchor.
type SegmentState int

const (
	StateScanning SegmentState = iota
	StateAwaitingClosingPrice
	StateAwaitingCoreStart
	StateReadingCoreData
)

func (s SegmentState) String() string {
	switch s {
	case StateScanning:
		return "scanning"
	case StateAwaitingClosingPrice:
		return "awaiting_closing_price"
	case StateAwaitingCoreStart:
		return "awaiting_core_start"
	case StateReadingCoreData:
		return "reading_core_data"
	default:
		return "unknown"
	}
}

// Segmenter partitions report lines into day segments.
type Segmenter struct {
	layout Layout

	state          SegmentState
	closingPriceAt int
	coreStartAt    int
	current        *DaySegment
	segments       []DaySegment
}

// NewSegmenter constructs a segmenter for a layout.
func NewSegmenter(layout Layout) (*Segmenter, error) {
	if err := layout.Validate(); err != nil {
		return nil, err
	}
	return &Segmenter{layout: layout}, nil
}

// State returns the current scanner state.
func (s *Segmenter) State() SegmentState { return s.state }

// Segment runs a single forward pass over lines. The segmenter is reset first.
func (s *Segmenter) Segment(lines []ReportLine) []DaySegment {
	s.reset()
	for i, line := range lines {
		s.step(i, line)
	}
	s.flush(len(lines))
	segments := s.segments
	s.segments = nil
	return segments
}

func (s *Segmenter) reset() {
	s.state = StateScanning
	s.closingPriceAt = -1
	s.coreStartAt = -1
	s.current = nil
	s.segments = nil
}

func (s *Segmenter) step(i int, line ReportLine) {
	if IsDateLine(line) {
		date, _ := ParseDateAnchor(line[0])
		s.open(i, date)
		return
	}

	switch s.state {
	case StateAwaitingClosingPrice:
		if i == s.closingPriceAt {
			s.readClosingPrices(i, line)
			s.state = StateAwaitingCoreStart
		}
	case StateAwaitingCoreStart:
		if i == s.coreStartAt {
			if line.IsBlank() {
				s.current.Issues = append(s.current.Issues, driftf(i, "core data start line is blank"))
				s.close()
				return
			}
			s.state = StateReadingCoreData
			s.readCoreRow(i, line)
		}
	case StateReadingCoreData:
		s.readCoreRow(i, line)
	}
}

func (s *Segmenter) open(i int, date time.Time) {
	if s.current != nil {
		if s.state != StateReadingCoreData {
			s.current.Issues = append(s.current.Issues, driftf(i, "date line in state %s", s.state))
		} else {
			s.current.Issues = append(s.current.Issues, driftf(i, "core data not closed before next date"))
		}
		s.close()
	}
	s.current = &DaySegment{Date: date, Line: i}
	s.closingPriceAt = i + s.layout.ClosingPriceOffset
	s.coreStartAt = i + s.layout.CoreDataOffset
	s.state = StateAwaitingClosingPrice
}

func (s *Segmenter) readClosingPrices(i int, line ReportLine) {
	tokens := dropTrailingComma(line, s.layout.FillerTokens+HoursPerDay)
	if len(tokens) < s.layout.FillerTokens {
		s.current.Issues = append(s.current.Issues, driftf(i, "closing price line has %d tokens, expected more than %d filler", len(tokens), s.layout.FillerTokens))
		return
	}
	values := tokens[s.layout.FillerTokens:]
	if len(values) > HoursPerDay {
		s.current.Issues = append(s.current.Issues, driftf(i, "closing price line has %d values", len(values)))
		return
	}
	prices := make([]Value, 0, len(values))
	for _, raw := range values {
		prices = append(prices, ParseValue(raw))
	}
	s.current.ClosingPrices = prices
}

func (s *Segmenter) readCoreRow(i int, line ReportLine) {
	if line.IsBlank() {
		s.close()
		return
	}
	tokens := dropTrailingComma(line, identityColumns+HoursPerDay)
	if len(tokens) < identityColumns {
		s.current.Issues = append(s.current.Issues, driftf(i, "core row has %d tokens", len(tokens)))
		return
	}
	hours := tokens[identityColumns:]
	if len(hours) > HoursPerDay {
		s.current.Issues = append(s.current.Issues, driftf(i, "core row has %d hour values", len(hours)))
		return
	}
	s.current.CoreRows = append(s.current.CoreRows, CoreRow{
		ParticipantID: strings.TrimSpace(tokens[0]),
		AssetType:     strings.TrimSpace(tokens[1]),
		AssetID:       strings.TrimSpace(tokens[2]),
		HourlyValues:  append([]string(nil), hours...),
	})
}

func (s *Segmenter) close() {
	if s.current != nil {
		s.segments = append(s.segments, *s.current)
	}
	s.current = nil
	s.state = StateScanning
	s.closingPriceAt = -1
	s.coreStartAt = -1
}

func (s *Segmenter) flush(end int) {
	if s.current == nil {
		return
	}
	if s.state != StateReadingCoreData {
		s.current.Issues = append(s.current.Issues, driftf(end, "report ended in state %s", s.state))
	}
	s.close()
}

// dropTrailingComma removes the single empty token a trailing comma leaves on a row wider
// than width. Empty cells inside the width stay as missing values.
func dropTrailingComma(line ReportLine, width int) ReportLine {
	if len(line) > width && strings.TrimSpace(line[len(line)-1]) == "" {
		return line[:len(line)-1]
	}
	return line
}
