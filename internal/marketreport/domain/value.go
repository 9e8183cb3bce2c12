package marketreport

import (
	"math"
	"strconv"
	"strings"
)

// Value is a numeric report cell. Valid is false for cells that did not parse.
type Value struct {
	Number float64
	Valid  bool
}

// Missing is the sentinel for unparsable or absent cells.
var Missing = Value{}

// Number wraps a parsed float.
func Number(v float64) Value {
	return Value{Number: v, Valid: true}
}

// ParseValue parses a report cell, coercing failures to Missing.
func ParseValue(raw string) Value {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "-" {
		return Missing
	}
	raw = strings.ReplaceAll(raw, ",", "")
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return Missing
	}
	return Number(v)
}

// Equal compares within tolerance. Missing only equals Missing.
func (v Value) Equal(other Value, tolerance float64) bool {
	if !v.Valid || !other.Valid {
		return v.Valid == other.Valid
	}
	return math.Abs(v.Number-other.Number) <= tolerance
}

// String renders the value, empty when missing.
func (v Value) String() string {
	if !v.Valid {
		return ""
	}
	return strconv.FormatFloat(v.Number, 'f', -1, 64)
}
