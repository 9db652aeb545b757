// Package notify delivers change notifications over the configured
// channels. Delivery failures never undo a persisted snapshot; the
// caller records the error and moves on.
package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/pagewatch/internal/config"
	"github.com/sells-group/pagewatch/internal/diff"
	"github.com/sells-group/pagewatch/internal/model"
)

// Notification describes one detected change ready for delivery.
type Notification struct {
	SiteID     string
	URL        string
	Diff       model.DiffResult
	Summary    string
	CapturedAt time.Time
}

// NotifyError wraps a delivery failure for one site.
type NotifyError struct {
	SiteID string
	Err    error
}

func (e *NotifyError) Error() string {
	return fmt.Sprintf("notify %s: %v", e.SiteID, e.Err)
}

func (e *NotifyError) Unwrap() error { return e.Err }

// Notifier delivers a change notification.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// Multi fans a notification out to several channels. Every channel is
// attempted even when an earlier one fails; the first failure is
// reported.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, n Notification) error {
	var first error
	for _, nt := range m {
		if err := nt.Notify(ctx, n); err != nil {
			zap.L().Error("notify: delivery failed",
				zap.String("site", n.SiteID),
				zap.Error(err),
			)
			if first == nil {
				first = err
			}
		}
	}
	if first != nil {
		return &NotifyError{SiteID: n.SiteID, Err: first}
	}
	return nil
}

// LogNotifier records the change in the log and nothing else. It is
// the fallback when no delivery channel is configured.
type LogNotifier struct{}

func (LogNotifier) Notify(_ context.Context, n Notification) error {
	zap.L().Info("notify: change detected",
		zap.String("site", n.SiteID),
		zap.String("url", n.URL),
		zap.Int("added", n.Diff.Added),
		zap.Int("removed", n.Diff.Removed),
		zap.String("summary", n.Summary),
	)
	return nil
}

// DryRun renders the full notification to a writer instead of
// delivering it.
type DryRun struct {
	Out io.Writer
}

// NewDryRun creates a DryRun notifier. A nil writer defaults to stdout.
func NewDryRun(out io.Writer) DryRun {
	if out == nil {
		out = os.Stdout
	}
	return DryRun{Out: out}
}

func (d DryRun) Notify(_ context.Context, n Notification) error {
	fmt.Fprintf(d.Out, "--- dry run: %s ---\n", subject(n))
	fmt.Fprintln(d.Out, renderBody(n))
	return nil
}

// FromConfig assembles the notifier stack for the given settings.
func FromConfig(cfg config.NotifyConfig) Notifier {
	if cfg.DryRun {
		return NewDryRun(nil)
	}
	var m Multi
	if cfg.Mail.Enabled {
		m = append(m, NewMailer(cfg.Mail))
	}
	if cfg.WebhookURL != "" {
		m = append(m, NewWebhook(cfg.WebhookURL))
	}
	if len(m) == 0 {
		return LogNotifier{}
	}
	return m
}

func subject(n Notification) string {
	return fmt.Sprintf("[pagewatch] %s changed", n.SiteID)
}

// renderBody builds the plain-text body shared by the mail and
// dry-run channels.
func renderBody(n Notification) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s has changed.\n\n", n.SiteID)
	fmt.Fprintf(&b, "URL:      %s\n", n.URL)
	fmt.Fprintf(&b, "Captured: %s\n", n.CapturedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "Change:   +%d / -%d sentence(s)\n", n.Diff.Added, n.Diff.Removed)
	if n.Summary != "" {
		fmt.Fprintf(&b, "\nSummary:\n%s\n", n.Summary)
	}
	b.WriteString("\nDiff:\n")
	b.WriteString(diff.Format(n.Diff))
	return b.String()
}
