// Package journal records run history in a relational store. The
// journal holds run metadata only; page content lives in the snapshot
// store and is never written here.
package journal

import (
	"context"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/pagewatch/internal/config"
	"github.com/sells-group/pagewatch/internal/model"
)

// Run is one recorded pipeline run.
type Run struct {
	ID         string     `json:"id"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Sites      int        `json:"sites"`
	Changed    int        `json:"changed"`
	Failed     int        `json:"failed"`
}

// SiteResult is one site's outcome within a run.
type SiteResult struct {
	RunID      string           `json:"run_id"`
	SiteID     string           `json:"site"`
	Status     model.SiteStatus `json:"status"`
	Stage      model.Stage      `json:"stage"`
	Error      string           `json:"error,omitempty"`
	Added      int              `json:"added"`
	Removed    int              `json:"removed"`
	DurationMS int64            `json:"duration_ms"`
}

// Store persists run history.
type Store interface {
	CreateRun(ctx context.Context) (*Run, error)
	RecordResult(ctx context.Context, runID string, outcome model.RunOutcome) error
	FinishRun(ctx context.Context, runID string, outcomes []model.RunOutcome) error
	ListRuns(ctx context.Context, limit int) ([]Run, error)
	ListResults(ctx context.Context, runID string) ([]SiteResult, error)
	Migrate(ctx context.Context) error
	Close() error
}

// Open returns the Store for the configured driver, migrated and
// ready. The sqlite driver defaults its database file into dataDir.
func Open(ctx context.Context, cfg config.JournalConfig, dataDir string) (Store, error) {
	switch cfg.Driver {
	case "", "none":
		return Noop{}, nil
	case "sqlite":
		dsn := cfg.DSN
		if dsn == "" {
			dsn = filepath.Join(dataDir, "journal.db")
		}
		st, err := NewSQLite(dsn)
		if err != nil {
			return nil, err
		}
		if err := st.Migrate(ctx); err != nil {
			st.Close() //nolint:errcheck
			return nil, err
		}
		return st, nil
	case "postgres":
		st, err := NewPostgres(ctx, cfg.DSN)
		if err != nil {
			return nil, err
		}
		if err := st.Migrate(ctx); err != nil {
			st.Close() //nolint:errcheck
			return nil, err
		}
		return st, nil
	default:
		return nil, eris.Errorf("journal: unknown driver %q", cfg.Driver)
	}
}

// Noop discards all writes and lists nothing. Used when the journal is
// disabled; runs still get IDs so the rest of the pipeline is unaware.
type Noop struct{}

func (Noop) CreateRun(context.Context) (*Run, error) {
	return &Run{ID: uuid.New().String(), StartedAt: time.Now().UTC()}, nil
}

func (Noop) RecordResult(context.Context, string, model.RunOutcome) error { return nil }
func (Noop) FinishRun(context.Context, string, []model.RunOutcome) error  { return nil }
func (Noop) ListRuns(context.Context, int) ([]Run, error)                 { return nil, nil }
func (Noop) ListResults(context.Context, string) ([]SiteResult, error)    { return nil, nil }
func (Noop) Migrate(context.Context) error                                { return nil }
func (Noop) Close() error                                                 { return nil }

// tally computes run-level counters from site outcomes.
func tally(outcomes []model.RunOutcome) (int, int, int) {
	changed, failed := 0, 0
	for _, o := range outcomes {
		switch o.Status {
		case model.StatusChanged:
			changed++
		case model.StatusFailed:
			failed++
		}
	}
	return len(outcomes), changed, failed
}

// diffCounts pulls the added/removed counters out of an outcome.
func diffCounts(o model.RunOutcome) (int, int) {
	if o.Diff == nil {
		return 0, 0
	}
	return o.Diff.Added, o.Diff.Removed
}
