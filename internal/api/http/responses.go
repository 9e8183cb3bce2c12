package apihttp

import (
	"aeso-report/internal/marketreport/application"
	marketreport "aeso-report/internal/marketreport/domain"
	"aeso-report/internal/marketreport/interfaces/export"
)

type rowJSON struct {
	AssetID      string   `json:"asset_id"`
	Name         string   `json:"name"`
	Date         string   `json:"date"`
	Hour         int      `json:"hour"`
	MWh          *float64 `json:"mwh"`
	ClosingPrice *float64 `json:"closing_price,omitempty"`
	PeakStatus   string   `json:"peak_status"`
	LastUpdated  string   `json:"last_updated"`
}

type rowsResponse struct {
	Count int       `json:"count"`
	Rows  []rowJSON `json:"rows"`
}

type rangeJSON struct {
	Begin string `json:"begin"`
	End   string `json:"end"`
}

type dateFailureJSON struct {
	Date  string `json:"date"`
	Error string `json:"error"`
}

type fetchFailureJSON struct {
	rangeJSON
	Error string `json:"error"`
}

type runSummary struct {
	ID            string             `json:"id"`
	StartedAt     string             `json:"started_at"`
	FinishedAt    string             `json:"finished_at"`
	Batches       []rangeJSON        `json:"batches"`
	Dates         int                `json:"dates"`
	Rows          int                `json:"rows"`
	DateFailures  []dateFailureJSON  `json:"date_failures"`
	FetchFailures []fetchFailureJSON `json:"fetch_failures"`
}

func newRowsResponse(rows []marketreport.NormalizedRow, opts export.Options) rowsResponse {
	resp := rowsResponse{Count: len(rows), Rows: make([]rowJSON, 0, len(rows))}
	for _, row := range rows {
		item := rowJSON{
			AssetID:     row.AssetID,
			Name:        row.SiteName,
			Date:        marketreport.FormatReportDate(row.Date),
			Hour:        row.Hour,
			MWh:         valuePtr(row.Energy),
			PeakStatus:  string(row.PeakStatus),
			LastUpdated: marketreport.FormatLastUpdated(row.LastUpdated),
		}
		if opts.IncludeClosingPrice {
			item.ClosingPrice = valuePtr(row.ClosingPrice)
		}
		resp.Rows = append(resp.Rows, item)
	}
	return resp
}

func newRunSummary(result *application.RunResult) runSummary {
	summary := runSummary{
		ID:            result.ID,
		StartedAt:     formatTime(result.StartedAt),
		FinishedAt:    formatTime(result.FinishedAt),
		Batches:       make([]rangeJSON, 0, len(result.Batches)),
		Dates:         result.Dates,
		Rows:          len(result.Rows),
		DateFailures:  make([]dateFailureJSON, 0, len(result.Failures)),
		FetchFailures: make([]fetchFailureJSON, 0, len(result.FetchFailures)),
	}
	for _, batch := range result.Batches {
		summary.Batches = append(summary.Batches, newRangeJSON(batch))
	}
	for _, failure := range result.Failures {
		summary.DateFailures = append(summary.DateFailures, dateFailureJSON{
			Date:  marketreport.FormatLastUpdated(failure.Date),
			Error: failure.Err.Error(),
		})
	}
	for _, failure := range result.FetchFailures {
		summary.FetchFailures = append(summary.FetchFailures, fetchFailureJSON{
			rangeJSON: newRangeJSON(failure.Range),
			Error:     failure.Err.Error(),
		})
	}
	return summary
}

func newRangeJSON(r application.DateRange) rangeJSON {
	return rangeJSON{Begin: r.Begin.Format(dayLayout), End: r.End.Format(dayLayout)}
}

func valuePtr(v marketreport.Value) *float64 {
	if !v.Valid {
		return nil
	}
	n := v.Number
	return &n
}
