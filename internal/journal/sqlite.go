package journal

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/pagewatch/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures
// WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "journal: open sqlite")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "journal: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	started_at  DATETIME NOT NULL,
	finished_at DATETIME,
	sites       INTEGER NOT NULL DEFAULT 0,
	changed     INTEGER NOT NULL DEFAULT 0,
	failed      INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS site_results (
	id          TEXT PRIMARY KEY,
	run_id      TEXT NOT NULL REFERENCES runs(id),
	site        TEXT NOT NULL,
	status      TEXT NOT NULL,
	stage       TEXT NOT NULL,
	error       TEXT,
	added       INTEGER NOT NULL DEFAULT 0,
	removed     INTEGER NOT NULL DEFAULT 0,
	duration_ms INTEGER NOT NULL DEFAULT 0,
	recorded_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
CREATE INDEX IF NOT EXISTS idx_site_results_run_id ON site_results(run_id);
CREATE INDEX IF NOT EXISTS idx_site_results_site ON site_results(site);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "journal: migrate sqlite")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateRun(ctx context.Context) (*Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, started_at) VALUES (?, ?)`,
		id, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "journal: insert run")
	}
	return &Run{ID: id, StartedAt: now}, nil
}

func (s *SQLiteStore) RecordResult(ctx context.Context, runID string, o model.RunOutcome) error {
	added, removed := diffCounts(o)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO site_results (id, run_id, site, status, stage, error, added, removed, duration_ms, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.New().String(), runID, o.SiteID, string(o.Status), string(o.Stage), o.Err,
		added, removed, o.Duration.Milliseconds(), time.Now().UTC(),
	)
	return eris.Wrapf(err, "journal: insert result for %s", o.SiteID)
}

func (s *SQLiteStore) FinishRun(ctx context.Context, runID string, outcomes []model.RunOutcome) error {
	sites, changed, failed := tally(outcomes)
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET finished_at = ?, sites = ?, changed = ?, failed = ? WHERE id = ?`,
		time.Now().UTC(), sites, changed, failed, runID,
	)
	if err != nil {
		return eris.Wrapf(err, "journal: finish run %s", runID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "journal: rows affected")
	}
	if n == 0 {
		return eris.Errorf("journal: run not found: %s", runID)
	}
	return nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, started_at, finished_at, sites, changed, failed FROM runs
		 ORDER BY started_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "journal: list runs")
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var finished sql.NullTime
		if err := rows.Scan(&r.ID, &r.StartedAt, &finished, &r.Sites, &r.Changed, &r.Failed); err != nil {
			return nil, eris.Wrap(err, "journal: scan run")
		}
		if finished.Valid {
			t := finished.Time
			r.FinishedAt = &t
		}
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "journal: list runs iterate")
}

func (s *SQLiteStore) ListResults(ctx context.Context, runID string) ([]SiteResult, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, site, status, stage, error, added, removed, duration_ms FROM site_results
		 WHERE run_id = ? ORDER BY recorded_at`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "journal: list results for %s", runID)
	}
	defer rows.Close()

	var out []SiteResult
	for rows.Next() {
		var sr SiteResult
		var errMsg sql.NullString
		if err := rows.Scan(&sr.RunID, &sr.SiteID, &sr.Status, &sr.Stage, &errMsg,
			&sr.Added, &sr.Removed, &sr.DurationMS); err != nil {
			return nil, eris.Wrap(err, "journal: scan result")
		}
		sr.Error = errMsg.String
		out = append(out, sr)
	}
	return out, eris.Wrap(rows.Err(), "journal: list results iterate")
}
