package notify

import (
	"context"

	"aeso-report/internal/marketreport/application"
	marketreport "aeso-report/internal/marketreport/domain"
)

// RunAlert summarises a run that needs attention.
type RunAlert struct {
	RunID             string            `json:"run_id"`
	DateFailures      map[string]string `json:"date_failures,omitempty"`
	FetchFailures     map[string]string `json:"fetch_failures,omitempty"`
	Rows              int               `json:"rows"`
	RecommendedAction string            `json:"recommended_action"`
}

// Notifier sends alerts.
type Notifier interface {
	Notify(ctx context.Context, alert RunAlert) error
}

// RunNotifier adapts a Notifier to the runner hook. Clean runs send nothing.
type RunNotifier struct {
	notifier Notifier
}

// NewRunNotifier wraps notifier.
func NewRunNotifier(notifier Notifier) *RunNotifier {
	return &RunNotifier{notifier: notifier}
}

// NotifyRun alerts when any date or fetch failed.
func (n *RunNotifier) NotifyRun(ctx context.Context, result *application.RunResult) error {
	if n == nil || n.notifier == nil || result == nil {
		return nil
	}
	alert, ok := BuildRunAlert(result)
	if !ok {
		return nil
	}
	return n.notifier.Notify(ctx, alert)
}

// BuildRunAlert returns false for runs without failures.
func BuildRunAlert(result *application.RunResult) (RunAlert, bool) {
	if result == nil || (len(result.Failures) == 0 && len(result.FetchFailures) == 0) {
		return RunAlert{}, false
	}
	alert := RunAlert{RunID: result.ID, Rows: len(result.Rows)}
	if len(result.Failures) > 0 {
		alert.DateFailures = make(map[string]string, len(result.Failures))
		for _, failure := range result.Failures {
			alert.DateFailures[marketreport.FormatLastUpdated(failure.Date)] = failure.Err.Error()
		}
		alert.RecommendedAction = "check the report layout offsets for format drift"
	}
	if len(result.FetchFailures) > 0 {
		alert.FetchFailures = make(map[string]string, len(result.FetchFailures))
		for _, failure := range result.FetchFailures {
			key := marketreport.FormatLastUpdated(failure.Range.Begin) + ".." + marketreport.FormatLastUpdated(failure.Range.End)
			alert.FetchFailures[key] = failure.Err.Error()
		}
		if alert.RecommendedAction == "" {
			alert.RecommendedAction = "check report source availability"
		}
	}
	return alert, true
}
