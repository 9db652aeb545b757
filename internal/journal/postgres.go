package journal

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/pagewatch/internal/model"
)

// Pool is the subset of pgxpool.Pool the journal uses. pgxmock
// satisfies it in tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    Pool
	closeFn func()
}

// preparedStatements lists queries to prepare on each new connection.
var preparedStatements = map[string]string{
	"insert_run":    `INSERT INTO runs (id, started_at) VALUES ($1, $2)`,
	"finish_run":    `UPDATE runs SET finished_at = $1, sites = $2, changed = $3, failed = $4 WHERE id = $5`,
	"insert_result": `INSERT INTO site_results (id, run_id, site, status, stage, error, added, removed, duration_ms, recorded_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
	"list_results":  `SELECT run_id, site, status, stage, error, added, removed, duration_ms FROM site_results WHERE run_id = $1 ORDER BY recorded_at`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "journal: parse postgres config")
	}

	pgxCfg.MaxConns = 4
	pgxCfg.MinConns = 1
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "journal: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "journal: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "journal: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	started_at  TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ,
	sites       INTEGER NOT NULL DEFAULT 0,
	changed     INTEGER NOT NULL DEFAULT 0,
	failed      INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS site_results (
	id          TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	run_id      TEXT NOT NULL REFERENCES runs(id),
	site        TEXT NOT NULL,
	status      TEXT NOT NULL,
	stage       TEXT NOT NULL,
	error       TEXT,
	added       INTEGER NOT NULL DEFAULT 0,
	removed     INTEGER NOT NULL DEFAULT 0,
	duration_ms BIGINT NOT NULL DEFAULT 0,
	recorded_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
CREATE INDEX IF NOT EXISTS idx_site_results_run_id ON site_results(run_id);
CREATE INDEX IF NOT EXISTS idx_site_results_site ON site_results(site);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "journal: migrate postgres")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateRun(ctx context.Context) (*Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO runs (id, started_at) VALUES ($1, $2)`,
		id, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "journal: insert run")
	}
	return &Run{ID: id, StartedAt: now}, nil
}

func (s *PostgresStore) RecordResult(ctx context.Context, runID string, o model.RunOutcome) error {
	added, removed := diffCounts(o)
	_, err := s.pool.Exec(ctx,
		`INSERT INTO site_results (id, run_id, site, status, stage, error, added, removed, duration_ms, recorded_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		uuid.New().String(), runID, o.SiteID, string(o.Status), string(o.Stage), o.Err,
		added, removed, o.Duration.Milliseconds(), time.Now().UTC(),
	)
	return eris.Wrapf(err, "journal: insert result for %s", o.SiteID)
}

func (s *PostgresStore) FinishRun(ctx context.Context, runID string, outcomes []model.RunOutcome) error {
	sites, changed, failed := tally(outcomes)
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET finished_at = $1, sites = $2, changed = $3, failed = $4 WHERE id = $5`,
		time.Now().UTC(), sites, changed, failed, runID,
	)
	if err != nil {
		return eris.Wrapf(err, "journal: finish run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("journal: run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, started_at, finished_at, sites, changed, failed FROM runs
		 ORDER BY started_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "journal: list runs")
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.StartedAt, &r.FinishedAt, &r.Sites, &r.Changed, &r.Failed); err != nil {
			return nil, eris.Wrap(err, "journal: scan run")
		}
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "journal: list runs iterate")
}

func (s *PostgresStore) ListResults(ctx context.Context, runID string) ([]SiteResult, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT run_id, site, status, stage, error, added, removed, duration_ms FROM site_results
		 WHERE run_id = $1 ORDER BY recorded_at`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "journal: list results for %s", runID)
	}
	defer rows.Close()

	var out []SiteResult
	for rows.Next() {
		var sr SiteResult
		var errMsg *string
		if err := rows.Scan(&sr.RunID, &sr.SiteID, &sr.Status, &sr.Stage, &errMsg,
			&sr.Added, &sr.Removed, &sr.DurationMS); err != nil {
			return nil, eris.Wrap(err, "journal: scan result")
		}
		if errMsg != nil {
			sr.Error = *errMsg
		}
		out = append(out, sr)
	}
	return out, eris.Wrap(rows.Err(), "journal: list results iterate")
}
