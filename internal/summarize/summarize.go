// Package summarize turns a changed page's content into a short
// natural-language summary.
package summarize

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/pagewatch/internal/config"
	"github.com/sells-group/pagewatch/internal/resilience"
	"github.com/sells-group/pagewatch/pkg/anthropic"
)

// SummaryError wraps a summarization failure. Never fatal: the caller
// degrades to "change detected, no summary".
type SummaryError struct {
	SiteID string
	Err    error
}

func (e *SummaryError) Error() string {
	return fmt.Sprintf("summarize %s: %v", e.SiteID, e.Err)
}

func (e *SummaryError) Unwrap() error { return e.Err }

// Summarizer produces a summary for changed page content.
type Summarizer interface {
	Summarize(ctx context.Context, siteID, text string) (string, error)
}

const systemPrompt = "You summarize web page updates for a change monitoring tool. " +
	"Reply with plain text only, no preamble."

const promptTemplate = "Summarize the following page content in three sentences or fewer, " +
	"focusing on whatever looks newly announced:\n\n%s"

// Service implements Summarizer over the Anthropic API. Rate limits
// and server errors are retried before the failure is reported.
type Service struct {
	client anthropic.Client
	cfg    config.SummaryConfig
	retry  resilience.RetryConfig
}

// New creates a Service.
func New(client anthropic.Client, cfg config.SummaryConfig) *Service {
	retry := resilience.DefaultRetryConfig()
	retry.InitialBackoff = time.Second
	retry.ShouldRetry = func(err error) bool {
		return anthropic.IsRetryable(err) || resilience.IsTransient(err)
	}
	retry.OnRetry = resilience.RetryLogger("anthropic", "create message")

	return &Service{client: client, cfg: cfg, retry: retry}
}

// Summarize sends the (truncated) page text to the model and returns
// the trimmed completion.
func (s *Service) Summarize(ctx context.Context, siteID, text string) (string, error) {
	if s.cfg.MaxInputChars > 0 {
		if runes := []rune(text); len(runes) > s.cfg.MaxInputChars {
			text = string(runes[:s.cfg.MaxInputChars])
		}
	}

	temp := 0.2
	req := anthropic.MessageRequest{
		Model:       s.cfg.Model,
		MaxTokens:   int64(s.cfg.MaxTokens),
		System:      systemPrompt,
		Messages:    []anthropic.Message{{Role: "user", Content: fmt.Sprintf(promptTemplate, text)}},
		Temperature: &temp,
	}

	resp, err := resilience.DoVal(ctx, s.retry, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		return s.client.CreateMessage(ctx, req)
	})
	if err != nil {
		return "", &SummaryError{SiteID: siteID, Err: err}
	}

	out := strings.TrimSpace(resp.Text())
	if out == "" {
		return "", &SummaryError{SiteID: siteID, Err: eris.New("empty completion")}
	}

	zap.L().Debug("summarize: completion",
		zap.String("site", siteID),
		zap.Int64("input_tokens", resp.Usage.InputTokens),
		zap.Int64("output_tokens", resp.Usage.OutputTokens),
	)

	return out, nil
}
