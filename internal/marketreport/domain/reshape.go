package marketreport

import "time"

// Reshape pivots a day's core rows into one row per (asset, hour). Rows with fewer than 24
// hour values yield only the hours present.
func Reshape(coreRows []CoreRow, closingPrices []Value, date time.Time) []HourlyRow {
	date = DayStart(date)
	var result []HourlyRow
	for _, core := range coreRows {
		for idx, raw := range core.HourlyValues {
			price := Missing
			if idx < len(closingPrices) {
				price = closingPrices[idx]
			}
			result = append(result, HourlyRow{
				ParticipantID: core.ParticipantID,
				AssetType:     core.AssetType,
				AssetID:       core.AssetID,
				Date:          date,
				Hour:          idx + 1,
				Energy:        ParseValue(raw),
				ClosingPrice:  price,
			})
		}
	}
	return result
}

// ReshapeSegment reshapes a segment.
func ReshapeSegment(seg DaySegment) []HourlyRow {
	return Reshape(seg.CoreRows, seg.ClosingPrices, seg.Date)
}
