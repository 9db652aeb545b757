package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/smtp"
	"testing"
	"time"

	"github.com/jordan-wright/email"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/pagewatch/internal/config"
	"github.com/sells-group/pagewatch/internal/model"
)

func sampleNotification() Notification {
	return Notification{
		SiteID: "example",
		URL:    "https://example.com/news",
		Diff: model.DiffResult{
			SiteID: "example",
			Lines: []model.LineChange{
				{Op: model.LineUnchanged, Text: "Old headline."},
				{Op: model.LineAdded, Text: "New product released."},
			},
			Added:       1,
			Significant: true,
		},
		Summary:    "A new product was announced.",
		CapturedAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func mailConfig() config.MailConfig {
	return config.MailConfig{
		Enabled:  true,
		Host:     "smtp.example.com",
		Port:     587,
		Username: "watch@example.com",
		Password: "secret",
		From:     "Pagewatch <watch@example.com>",
		To:       []string{"ops@example.com"},
	}
}

type fakeNotifier struct {
	err    error
	called int
}

func (f *fakeNotifier) Notify(_ context.Context, _ Notification) error {
	f.called++
	return f.err
}

func TestWebhookNotify(t *testing.T) {
	var got webhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
	}))
	defer srv.Close()

	wh := NewWebhook(srv.URL)
	require.NoError(t, wh.Notify(context.Background(), sampleNotification()))

	assert.Equal(t, "example", got.Site)
	assert.Equal(t, "https://example.com/news", got.URL)
	assert.Equal(t, 1, got.Added)
	assert.Equal(t, 0, got.Removed)
	assert.Equal(t, "A new product was announced.", got.Summary)
	assert.Contains(t, got.Diff, "+ New product released.")
}

func TestWebhookServerError(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	wh := NewWebhook(srv.URL)
	wh.retry.InitialBackoff = time.Millisecond

	err := wh.Notify(context.Background(), sampleNotification())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
	assert.Equal(t, 3, hits, "server errors are retried before surfacing")
}

func TestWebhookRecoversAfterTransientFailure(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		if hits < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
	}))
	defer srv.Close()

	wh := NewWebhook(srv.URL)
	wh.retry.InitialBackoff = time.Millisecond

	require.NoError(t, wh.Notify(context.Background(), sampleNotification()))
	assert.Equal(t, 3, hits)
}

func TestWebhookDoesNotRetryClientError(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	err := NewWebhook(srv.URL).Notify(context.Background(), sampleNotification())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 400")
	assert.Equal(t, 1, hits)
}

func TestMailerSendsWithPlainAuth(t *testing.T) {
	var (
		gotMsg  *email.Email
		gotAddr string
		gotAuth smtp.Auth
	)

	m := NewMailer(mailConfig())
	m.send = func(msg *email.Email, addr string, auth smtp.Auth) error {
		gotMsg, gotAddr, gotAuth = msg, addr, auth
		return nil
	}

	require.NoError(t, m.Notify(context.Background(), sampleNotification()))

	assert.Equal(t, "smtp.example.com:587", gotAddr)
	assert.NotNil(t, gotAuth)
	assert.Equal(t, "[pagewatch] example changed", gotMsg.Subject)
	assert.Equal(t, "Pagewatch <watch@example.com>", gotMsg.From)
	assert.Equal(t, []string{"ops@example.com"}, gotMsg.To)
	assert.Contains(t, string(gotMsg.Text), "+ New product released.")
	assert.Contains(t, string(gotMsg.Text), "A new product was announced.")
}

func TestMailerFallsBackWhenAuthUnsupported(t *testing.T) {
	var auths []smtp.Auth
	m := NewMailer(mailConfig())
	m.send = func(_ *email.Email, _ string, auth smtp.Auth) error {
		auths = append(auths, auth)
		if auth != nil {
			return errors.New("smtp: server doesn't support AUTH")
		}
		return nil
	}

	require.NoError(t, m.Notify(context.Background(), sampleNotification()))
	require.Len(t, auths, 2)
	assert.NotNil(t, auths[0])
	assert.Nil(t, auths[1])
}

func TestMailerReturnsSendError(t *testing.T) {
	m := NewMailer(mailConfig())
	m.send = func(_ *email.Email, _ string, _ smtp.Auth) error {
		return errors.New("connection refused")
	}

	err := m.Notify(context.Background(), sampleNotification())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestMultiAttemptsAllChannels(t *testing.T) {
	boom := errors.New("boom")
	a := &fakeNotifier{err: boom}
	b := &fakeNotifier{}

	err := Multi{a, b}.Notify(context.Background(), sampleNotification())
	require.Error(t, err)

	var nerr *NotifyError
	require.ErrorAs(t, err, &nerr)
	assert.Equal(t, "example", nerr.SiteID)
	assert.ErrorIs(t, err, boom)

	assert.Equal(t, 1, a.called)
	assert.Equal(t, 1, b.called, "later channels still run after a failure")
}

func TestDryRunWritesRenderedBody(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewDryRun(&buf).Notify(context.Background(), sampleNotification()))

	out := buf.String()
	assert.Contains(t, out, "[pagewatch] example changed")
	assert.Contains(t, out, "https://example.com/news")
	assert.Contains(t, out, "+ New product released.")
	assert.Contains(t, out, "  Old headline.")
}

func TestRenderBodySkipsEmptySummary(t *testing.T) {
	n := sampleNotification()
	n.Summary = ""
	assert.NotContains(t, renderBody(n), "Summary:")
}

func TestFromConfig(t *testing.T) {
	assert.IsType(t, DryRun{}, FromConfig(config.NotifyConfig{DryRun: true}))
	assert.IsType(t, LogNotifier{}, FromConfig(config.NotifyConfig{}))

	cfg := config.NotifyConfig{
		Mail:       mailConfig(),
		WebhookURL: "https://hooks.example.com/pagewatch",
	}
	m, ok := FromConfig(cfg).(Multi)
	require.True(t, ok)
	assert.Len(t, m, 2)
}
