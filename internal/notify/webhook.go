package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"
)

// WebhookNotifier posts text alerts to a chat webhook.
type WebhookNotifier struct {
	url    string
	client *http.Client
}

type webhookPayload struct {
	MsgType string      `json:"msgtype"`
	Text    webhookText `json:"text"`
}

type webhookText struct {
	Content string `json:"content"`
}

// NewWebhookNotifier constructs a notifier.
func NewWebhookNotifier(url string, timeout time.Duration) *WebhookNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookNotifier{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

// Notify sends an alert to the webhook.
func (n *WebhookNotifier) Notify(ctx context.Context, alert RunAlert) error {
	if n == nil || n.url == "" {
		return errors.New("webhook notifier: empty url")
	}
	body, err := json.Marshal(webhookPayload{
		MsgType: "text",
		Text:    webhookText{Content: formatRunAlert(alert)},
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook notifier: http %d", resp.StatusCode)
	}
	return nil
}

func formatRunAlert(alert RunAlert) string {
	var b strings.Builder
	b.WriteString("[Market Report Alert]\n")
	if alert.RunID != "" {
		fmt.Fprintf(&b, "Run: %s\n", alert.RunID)
	}
	fmt.Fprintf(&b, "Rows: %d\n", alert.Rows)
	writeSorted(&b, "Date failure", alert.DateFailures)
	writeSorted(&b, "Fetch failure", alert.FetchFailures)
	if alert.RecommendedAction != "" {
		fmt.Fprintf(&b, "Suggested: %s\n", alert.RecommendedAction)
	}
	return strings.TrimSpace(b.String())
}

func writeSorted(b *strings.Builder, label string, entries map[string]string) {
	keys := make([]string, 0, len(entries))
	for key := range entries {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		fmt.Fprintf(b, "%s %s: %s\n", label, key, entries[key])
	}
}
