package apihttp

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"aeso-report/internal/audit"
	"aeso-report/internal/auth"
	"aeso-report/internal/marketreport/application"
	marketreport "aeso-report/internal/marketreport/domain"
	"aeso-report/internal/marketreport/interfaces/export"
)

const (
	timeLayout = time.RFC3339
	dayLayout  = marketreport.LastUpdatedLayout

	generationPath = "/api/v1/generation"
	snapshotsPath  = "/api/v1/snapshots/"
)

// RunService triggers report runs and exposes the latest result.
type RunService interface {
	Run(ctx context.Context) (*application.RunResult, error)
	RunRange(ctx context.Context, begin, end time.Time) (*application.RunResult, error)
	Latest() (*application.RunResult, bool)
}

// LatestSource exposes the latest merged table.
type LatestSource interface {
	Latest() (*application.RunResult, bool)
}

// RunsHandler serves /api/v1/runs.
type RunsHandler struct {
	runs    RunService
	auditor audit.Logger
}

// NewRunsHandler constructs a RunsHandler. auditor may be nil.
func NewRunsHandler(runs RunService, auditor audit.Logger) *RunsHandler {
	return &RunsHandler{runs: runs, auditor: auditor}
}

type runRequest struct {
	Begin string `json:"begin"`
	End   string `json:"end"`
}

// ServeHTTP handles POST (trigger) and GET (latest summary).
func (h *RunsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.runs == nil {
		http.Error(w, "server not ready", http.StatusServiceUnavailable)
		return
	}
	switch r.Method {
	case http.MethodGet:
		latest, ok := h.runs.Latest()
		if !ok {
			http.Error(w, "no completed run", http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, newRunSummary(latest))
	case http.MethodPost:
		h.trigger(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *RunsHandler) trigger(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if r.Body != nil {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
	}

	var (
		result *application.RunResult
		err    error
	)
	switch {
	case req.Begin == "" && req.End == "":
		result, err = h.runs.Run(r.Context())
	case req.Begin == "" || req.End == "":
		http.Error(w, "begin and end must be set together", http.StatusBadRequest)
		return
	default:
		begin, perr := time.Parse(dayLayout, req.Begin)
		if perr != nil {
			http.Error(w, "begin must be YYYY-MM-DD", http.StatusBadRequest)
			return
		}
		end, perr := time.Parse(dayLayout, req.End)
		if perr != nil {
			http.Error(w, "end must be YYYY-MM-DD", http.StatusBadRequest)
			return
		}
		if end.Before(begin) {
			http.Error(w, "end must not be before begin", http.StatusBadRequest)
			return
		}
		result, err = h.runs.RunRange(r.Context(), begin, end)
	}
	h.audit(r, req, result, err)
	if errors.Is(err, application.ErrRunInProgress) {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	if err != nil {
		http.Error(w, "run failed: "+err.Error(), http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, newRunSummary(result))
}

func (h *RunsHandler) audit(r *http.Request, req runRequest, result *application.RunResult, runErr error) {
	if h.auditor == nil {
		return
	}
	meta := map[string]string{"begin": req.Begin, "end": req.End}
	if runErr != nil {
		meta["error"] = runErr.Error()
	}
	metadata, _ := json.Marshal(meta)
	id, _ := auth.IdentityFromContext(r.Context())
	entry := audit.Entry{
		Actor:        id.Subject,
		Role:         string(id.Role),
		Action:       audit.ActionRunTriggered,
		ResourceType: audit.ResourceRun,
		Metadata:     metadata,
		IP:           r.RemoteAddr,
		UserAgent:    r.UserAgent(),
	}
	if result != nil {
		entry.ResourceID = result.ID
	}
	_ = h.auditor.Log(r.Context(), entry)
}

// GenerationHandler serves the latest merged table as JSON or an export.
type GenerationHandler struct {
	source LatestSource
	opts   export.Options
}

// NewGenerationHandler constructs a GenerationHandler.
func NewGenerationHandler(source LatestSource, opts export.Options) *GenerationHandler {
	return &GenerationHandler{source: source, opts: opts}
}

// ServeHTTP handles GET /api/v1/generation and /api/v1/generation.{csv,xlsx,pdf}.
// Optional filters: asset_id, from, to (YYYY-MM-DD, inclusive).
func (h *GenerationHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h == nil || h.source == nil {
		http.Error(w, "server not ready", http.StatusServiceUnavailable)
		return
	}

	format := ""
	if r.URL.Path != generationPath {
		suffix, ok := strings.CutPrefix(r.URL.Path, generationPath+".")
		if !ok {
			http.NotFound(w, r)
			return
		}
		format = suffix
	}

	filter, err := parseRowFilter(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	latest, ok := h.source.Latest()
	if !ok {
		http.Error(w, "no completed run", http.StatusNotFound)
		return
	}
	rows := filter.apply(latest.Rows)

	if format == "" {
		writeJSON(w, http.StatusOK, newRowsResponse(rows, h.opts))
		return
	}
	body, err := export.Render(format, rows, h.opts)
	if errors.Is(err, export.ErrUnsupportedFormat) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		http.Error(w, "export error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", export.ContentType(format))
	w.Header().Set("Content-Disposition", "attachment; filename=generation."+format)
	_, _ = w.Write(body)
}

// SnapshotHandler serves one stored snapshot.
type SnapshotHandler struct {
	store marketreport.SnapshotStore
	opts  export.Options
}

// NewSnapshotHandler constructs a SnapshotHandler.
func NewSnapshotHandler(store marketreport.SnapshotStore) *SnapshotHandler {
	return &SnapshotHandler{store: store}
}

// ServeHTTP handles GET /api/v1/snapshots/{YYYY-MM-DD}.
func (h *SnapshotHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h == nil || h.store == nil {
		http.Error(w, "server not ready", http.StatusServiceUnavailable)
		return
	}
	value := strings.TrimPrefix(r.URL.Path, snapshotsPath)
	date, err := time.Parse(dayLayout, value)
	if err != nil {
		http.Error(w, "date must be YYYY-MM-DD", http.StatusBadRequest)
		return
	}
	rows, err := h.store.GetSnapshot(r.Context(), date)
	switch {
	case errors.Is(err, marketreport.ErrSnapshotNotFound):
		http.Error(w, "snapshot not found", http.StatusNotFound)
		return
	case errors.Is(err, marketreport.ErrSnapshotCorrupt):
		http.Error(w, "snapshot corrupt", http.StatusInternalServerError)
		return
	case err != nil:
		http.Error(w, "query snapshot error", http.StatusInternalServerError)
		return
	}
	marketreport.SortRows(rows)
	writeJSON(w, http.StatusOK, newRowsResponse(rows, h.opts))
}

type rowFilter struct {
	assetID string
	from    time.Time
	to      time.Time
}

func parseRowFilter(r *http.Request) (rowFilter, error) {
	query := r.URL.Query()
	filter := rowFilter{assetID: query.Get("asset_id")}
	var err error
	if filter.from, err = parseDayQuery(r, "from"); err != nil {
		return rowFilter{}, err
	}
	if filter.to, err = parseDayQuery(r, "to"); err != nil {
		return rowFilter{}, err
	}
	if !filter.from.IsZero() && !filter.to.IsZero() && filter.to.Before(filter.from) {
		return rowFilter{}, errors.New("to must not be before from")
	}
	return filter, nil
}

func (f rowFilter) apply(rows []marketreport.NormalizedRow) []marketreport.NormalizedRow {
	if f.assetID == "" && f.from.IsZero() && f.to.IsZero() {
		return rows
	}
	result := make([]marketreport.NormalizedRow, 0, len(rows))
	for _, row := range rows {
		if f.assetID != "" && row.AssetID != f.assetID {
			continue
		}
		day := marketreport.DayStart(row.Date)
		if !f.from.IsZero() && day.Before(f.from) {
			continue
		}
		if !f.to.IsZero() && day.After(f.to) {
			continue
		}
		result = append(result, row)
	}
	return result
}

func parseDayQuery(r *http.Request, key string) (time.Time, error) {
	value := r.URL.Query().Get(key)
	if value == "" {
		return time.Time{}, nil
	}
	parsed, err := time.Parse(dayLayout, value)
	if err != nil {
		return time.Time{}, errors.New(key + " must be YYYY-MM-DD")
	}
	return parsed, nil
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func formatTime(value time.Time) string {
	if value.IsZero() {
		return ""
	}
	return value.UTC().Format(timeLayout)
}
