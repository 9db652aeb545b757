package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/pagewatch/internal/config"
	"github.com/sells-group/pagewatch/internal/fetch"
	"github.com/sells-group/pagewatch/internal/journal"
	"github.com/sells-group/pagewatch/internal/model"
	"github.com/sells-group/pagewatch/internal/notify"
)

// --- Fetcher mock ---

type mockFetcher struct {
	mock.Mock
}

func (m *mockFetcher) Fetch(ctx context.Context, site config.Site, lastIdentity string) (*fetch.Result, error) {
	args := m.Called(ctx, site, lastIdentity)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*fetch.Result), args.Error(1)
}

// --- Snapshot store mock ---

type mockSnapshots struct {
	mock.Mock
}

func (m *mockSnapshots) Get(siteID string) (*model.Snapshot, error) {
	args := m.Called(siteID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Snapshot), args.Error(1)
}

func (m *mockSnapshots) Put(siteID, text string, capturedAt time.Time) error {
	args := m.Called(siteID, text, capturedAt)
	return args.Error(0)
}

// --- Summarizer mock ---

type mockSummarizer struct {
	mock.Mock
}

func (m *mockSummarizer) Summarize(ctx context.Context, siteID, text string) (string, error) {
	args := m.Called(ctx, siteID, text)
	return args.String(0), args.Error(1)
}

// --- Notifier mock ---

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) Notify(ctx context.Context, n notify.Notification) error {
	args := m.Called(ctx, n)
	return args.Error(0)
}

// --- Journal stub that always errors ---

type erroringJournal struct {
	journal.Noop
}

func (erroringJournal) CreateRun(context.Context) (*journal.Run, error) {
	return nil, errors.New("journal down")
}

func (erroringJournal) RecordResult(context.Context, string, model.RunOutcome) error {
	return errors.New("journal down")
}

func (erroringJournal) FinishRun(context.Context, string, []model.RunOutcome) error {
	return errors.New("journal down")
}
