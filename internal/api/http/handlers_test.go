package apihttp

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"aeso-report/internal/audit"
	"aeso-report/internal/auth"
	"aeso-report/internal/marketreport/application"
	marketreport "aeso-report/internal/marketreport/domain"
	"aeso-report/internal/marketreport/infrastructure/memory"
	"aeso-report/internal/marketreport/interfaces/export"
)

type stubRuns struct {
	latest    *application.RunResult
	err       error
	rangeArgs []time.Time
	runs      int
}

func (s *stubRuns) Run(ctx context.Context) (*application.RunResult, error) {
	s.runs++
	return s.latest, s.err
}

func (s *stubRuns) RunRange(ctx context.Context, begin, end time.Time) (*application.RunResult, error) {
	s.rangeArgs = []time.Time{begin, end}
	return s.latest, s.err
}

func (s *stubRuns) Latest() (*application.RunResult, bool) {
	return s.latest, s.latest != nil
}

func sampleResult() *application.RunResult {
	day := time.Date(2024, time.March, 4, 0, 0, 0, 0, time.UTC)
	updated := time.Date(2024, time.March, 5, 0, 0, 0, 0, time.UTC)
	return &application.RunResult{
		ID:        "run-1",
		StartedAt: updated,
		Batches:   []application.DateRange{{Begin: day, End: day}},
		Dates:     2,
		Rows: []marketreport.NormalizedRow{
			{AssetID: "ARD1", SiteName: "Ardenville", Date: day, Hour: 8, Energy: marketreport.Number(10), PeakStatus: marketreport.Peak, LastUpdated: updated},
			{AssetID: "ARD1", SiteName: "Ardenville", Date: day.AddDate(0, 0, 1), Hour: 8, Energy: marketreport.Missing, PeakStatus: marketreport.Peak, LastUpdated: updated},
			{AssetID: "VQ6", SiteName: "Waterton", Date: day, Hour: 1, Energy: marketreport.Number(3), PeakStatus: marketreport.OffPeak, LastUpdated: updated},
		},
	}
}

func TestRunsHandlerTriggerDefaultWindow(t *testing.T) {
	runs := &stubRuns{latest: sampleResult()}
	handler := NewRunsHandler(runs, nil)

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/api/v1/runs", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if runs.runs != 1 {
		t.Fatalf("run count mismatch: got=%d want=1", runs.runs)
	}
	var summary runSummary
	if err := json.NewDecoder(resp.Body).Decode(&summary); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if summary.ID != "run-1" || summary.Rows != 3 || len(summary.Batches) != 1 {
		t.Fatalf("summary mismatch: got=%+v", summary)
	}
}

func TestRunsHandlerTriggerRange(t *testing.T) {
	runs := &stubRuns{latest: sampleResult()}
	handler := NewRunsHandler(runs, nil)

	body := bytes.NewBufferString(`{"begin":"2024-03-01","end":"2024-03-10"}`)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/api/v1/runs", body))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	want := time.Date(2024, time.March, 10, 0, 0, 0, 0, time.UTC)
	if len(runs.rangeArgs) != 2 || !runs.rangeArgs[1].Equal(want) {
		t.Fatalf("range mismatch: got=%v", runs.rangeArgs)
	}

	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/api/v1/runs", bytes.NewBufferString(`{"begin":"2024-03-01"}`)))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestRunsHandlerConflict(t *testing.T) {
	handler := NewRunsHandler(&stubRuns{err: application.ErrRunInProgress}, nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/api/v1/runs", nil))
	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.Code)
	}
}

func TestRunsHandlerLatestMissing(t *testing.T) {
	handler := NewRunsHandler(&stubRuns{}, nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/runs", nil))
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
}

func TestGenerationHandlerJSONFilter(t *testing.T) {
	handler := NewGenerationHandler(&stubRuns{latest: sampleResult()}, export.Options{})
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/generation?asset_id=ARD1&to=2024-03-04", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var body rowsResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Count != 1 || body.Rows[0].AssetID != "ARD1" || body.Rows[0].Date != "March 04, 2024" {
		t.Fatalf("rows mismatch: got=%+v", body)
	}
	if body.Rows[0].MWh == nil || *body.Rows[0].MWh != 10 {
		t.Fatalf("mwh mismatch: got=%v", body.Rows[0].MWh)
	}
	if body.Rows[0].ClosingPrice != nil {
		t.Fatalf("closing price should be omitted")
	}
}

func TestGenerationHandlerExports(t *testing.T) {
	handler := NewGenerationHandler(&stubRuns{latest: sampleResult()}, export.Options{})

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/generation.csv", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if got := resp.Header().Get("Content-Type"); got != "text/csv" {
		t.Fatalf("content type mismatch: got=%q", got)
	}
	if lines := strings.Split(strings.TrimSpace(resp.Body.String()), "\n"); len(lines) != 4 {
		t.Fatalf("csv line count mismatch: got=%d want=4", len(lines))
	}

	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/generation.json", nil))
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown format, got %d", resp.Code)
	}

	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/generation?from=bad", nil))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestGenerationHandlerNoRun(t *testing.T) {
	handler := NewGenerationHandler(&stubRuns{}, export.Options{})
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/generation", nil))
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
}

func TestSnapshotHandler(t *testing.T) {
	store := memory.NewSnapshotStore()
	day := time.Date(2024, time.March, 4, 0, 0, 0, 0, time.UTC)
	rows := sampleResult().Rows[:1]
	if err := store.PutSnapshot(context.Background(), day, rows); err != nil {
		t.Fatalf("put snapshot: %v", err)
	}
	handler := NewSnapshotHandler(store)

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/snapshots/2024-03-04", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var body rowsResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Count != 1 {
		t.Fatalf("count mismatch: got=%d want=1", body.Count)
	}

	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/snapshots/2024-03-05", nil))
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}

	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/snapshots/March", nil))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

type recordingAuditor struct {
	entries []audit.Entry
}

func (a *recordingAuditor) Log(ctx context.Context, entry audit.Entry) error {
	a.entries = append(a.entries, entry)
	return nil
}

func TestRunsHandlerAuditsTrigger(t *testing.T) {
	auditor := &recordingAuditor{}
	handler := NewRunsHandler(&stubRuns{latest: sampleResult()}, auditor)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/runs", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), auth.Identity{Subject: "user-7", Role: auth.RoleOperator}))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if len(auditor.entries) != 1 {
		t.Fatalf("audit count mismatch: got=%d want=1", len(auditor.entries))
	}
	entry := auditor.entries[0]
	if entry.Actor != "user-7" || entry.Role != "operator" || entry.ResourceID != "run-1" || entry.Action != audit.ActionRunTriggered {
		t.Fatalf("audit entry mismatch: got=%+v", entry)
	}
}
