package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/pagewatch/internal/diff"
	"github.com/sells-group/pagewatch/internal/resilience"
)

// Webhook posts change notifications as JSON to a configured URL.
// Deliveries that fail with a server-side status or a network error
// are retried before the failure is surfaced.
type Webhook struct {
	url    string
	client *http.Client
	retry  resilience.RetryConfig
}

// NewWebhook creates a Webhook notifier.
func NewWebhook(url string) *Webhook {
	retry := resilience.DefaultRetryConfig()
	retry.MaxBackoff = 5 * time.Second
	retry.OnRetry = resilience.RetryLogger("webhook", "deliver")

	return &Webhook{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
		retry:  retry,
	}
}

type webhookPayload struct {
	Site       string    `json:"site"`
	URL        string    `json:"url"`
	Added      int       `json:"added"`
	Removed    int       `json:"removed"`
	Summary    string    `json:"summary,omitempty"`
	Diff       string    `json:"diff"`
	CapturedAt time.Time `json:"captured_at"`
}

func (w *Webhook) Notify(ctx context.Context, n Notification) error {
	payload, err := json.Marshal(webhookPayload{
		Site:       n.SiteID,
		URL:        n.URL,
		Added:      n.Diff.Added,
		Removed:    n.Diff.Removed,
		Summary:    n.Summary,
		Diff:       diff.Format(n.Diff),
		CapturedAt: n.CapturedAt,
	})
	if err != nil {
		return eris.Wrap(err, "notify: marshal webhook payload")
	}

	return resilience.Do(ctx, w.retry, func(ctx context.Context) error {
		return w.post(ctx, payload)
	})
}

func (w *Webhook) post(ctx context.Context, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "notify: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "notify: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		err := eris.Errorf("notify: webhook returned status %d", resp.StatusCode)
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return resilience.NewTransientError(err, resp.StatusCode)
		}
		return err
	}
	return nil
}
