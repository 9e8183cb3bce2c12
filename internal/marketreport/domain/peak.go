package marketreport

// PeakHours holds inclusive hour-ending bounds of the peak period.
type PeakHours struct {
	Start int `yaml:"start"`
	End   int `yaml:"end"`
}

// DefaultPeakHours is hour ending 8 (07:00) through 11 (10:59).
func DefaultPeakHours() PeakHours {
	return PeakHours{Start: 8, End: 11}
}

// Validate checks bounds are hour endings and ordered.
func (p PeakHours) Validate() error {
	if p.Start < 1 || p.End > HoursPerDay || p.Start > p.End {
		return ErrInvalidPeakHours
	}
	return nil
}

// Classify returns Peak iff Start <= hour <= End.
func (p PeakHours) Classify(hour int) PeakStatus {
	if hour >= p.Start && hour <= p.End {
		return Peak
	}
	return OffPeak
}

// Normalize decorates filtered rows with site names and peak status.
func Normalize(rows []HourlyRow, sites SiteFilter, peak PeakHours) []NormalizedRow {
	result := make([]NormalizedRow, 0, len(rows))
	for _, row := range rows {
		result = append(result, NormalizedRow{
			AssetID:      row.AssetID,
			SiteName:     sites.Name(row.AssetID),
			Date:         row.Date,
			Hour:         row.Hour,
			Energy:       row.Energy,
			ClosingPrice: row.ClosingPrice,
			PeakStatus:   peak.Classify(row.Hour),
		})
	}
	return result
}
