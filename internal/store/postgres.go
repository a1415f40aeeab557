package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/jobleads-cli/internal/db"
	"github.com/sells-group/jobleads-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
	now     func() time.Time
}

var _ Store = (*PostgresStore)(nil)

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close, now: utcNow}, nil
}

func utcNow() time.Time { return time.Now().UTC() }

const postgresMigration = `
CREATE TABLE IF NOT EXISTS leads (
	id               BIGSERIAL PRIMARY KEY,
	url              TEXT NOT NULL UNIQUE,
	source           TEXT NOT NULL DEFAULT '',
	company_name     TEXT NOT NULL DEFAULT '',
	job_title        TEXT NOT NULL DEFAULT '',
	salary_text      TEXT NOT NULL DEFAULT '',
	representative   TEXT NOT NULL DEFAULT '',
	establishment    TEXT NOT NULL DEFAULT '',
	employee_count   TEXT NOT NULL DEFAULT '',
	revenue          TEXT NOT NULL DEFAULT '',
	phone            TEXT NOT NULL DEFAULT '',
	email            TEXT NOT NULL DEFAULT '',
	homepage_url     TEXT NOT NULL DEFAULT '',
	contact_form_url TEXT NOT NULL DEFAULT '',
	industry         TEXT NOT NULL DEFAULT '',
	area             TEXT NOT NULL DEFAULT '',
	address          TEXT NOT NULL DEFAULT '',
	job_description  TEXT NOT NULL DEFAULT '',
	scrape_status    TEXT NOT NULL DEFAULT 'step1_completed',
	status           TEXT NOT NULL DEFAULT 'new',
	note             TEXT NOT NULL DEFAULT '',
	ai_summary       TEXT NOT NULL DEFAULT '',
	ai_tags          TEXT NOT NULL DEFAULT '[]',
	budget_rank      TEXT NOT NULL DEFAULT '',
	last_rank        TEXT NOT NULL DEFAULT '',
	rank_confidence  DOUBLE PRECISION NOT NULL DEFAULT 0,
	rank_detected_at TIMESTAMPTZ,
	last_seen_at     TIMESTAMPTZ,
	job_count        INTEGER NOT NULL DEFAULT 0,
	listing_status   TEXT NOT NULL DEFAULT '',
	latest_job_title TEXT NOT NULL DEFAULT '',
	last_updated_at  TIMESTAMPTZ,
	update_count     INTEGER NOT NULL DEFAULT 0,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS jobs (
	id              BIGSERIAL PRIMARY KEY,
	source          TEXT NOT NULL,
	source_job_id   TEXT NOT NULL,
	source_url      TEXT NOT NULL UNIQUE,
	company_name    TEXT NOT NULL DEFAULT '',
	title           TEXT NOT NULL DEFAULT '',
	salary_text     TEXT NOT NULL DEFAULT '',
	salary_min      BIGINT,
	salary_max      BIGINT,
	salary_unit     TEXT NOT NULL DEFAULT '',
	employment_type TEXT NOT NULL DEFAULT '',
	description     TEXT NOT NULL DEFAULT '',
	location        TEXT NOT NULL DEFAULT '',
	date_expires    TIMESTAMPTZ,
	is_active       BOOLEAN NOT NULL DEFAULT TRUE,
	first_seen_at   TIMESTAMPTZ NOT NULL,
	last_checked_at TIMESTAMPTZ NOT NULL,
	updated_at      TIMESTAMPTZ NOT NULL,
	update_count    INTEGER NOT NULL DEFAULT 0,
	UNIQUE (source, source_job_id)
);

CREATE TABLE IF NOT EXISTS scraping_logs (
	id            BIGSERIAL PRIMARY KEY,
	run_id        TEXT NOT NULL,
	source        TEXT NOT NULL,
	started_at    TIMESTAMPTZ NOT NULL,
	finished_at   TIMESTAMPTZ NOT NULL,
	duration_ms   BIGINT NOT NULL DEFAULT 0,
	jobs_found    INTEGER NOT NULL DEFAULT 0,
	new_jobs      INTEGER NOT NULL DEFAULT 0,
	updated_jobs  INTEGER NOT NULL DEFAULT 0,
	duplicates    INTEGER NOT NULL DEFAULT 0,
	errors        INTEGER NOT NULL DEFAULT 0,
	smart_stopped BOOLEAN NOT NULL DEFAULT FALSE,
	status        TEXT NOT NULL,
	error_message TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_leads_source ON leads(source);
CREATE INDEX IF NOT EXISTS idx_leads_status ON leads(status);
CREATE INDEX IF NOT EXISTS idx_leads_budget_rank ON leads(budget_rank);
CREATE INDEX IF NOT EXISTS idx_jobs_company ON jobs(company_name);
CREATE INDEX IF NOT EXISTS idx_scraping_logs_started ON scraping_logs(started_at DESC);
CREATE INDEX IF NOT EXISTS idx_scraping_logs_run ON scraping_logs(run_id);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// leads

func (s *PostgresStore) List(ctx context.Context, filter LeadFilter) ([]model.Lead, error) {
	q, args := leadListQuery(filter)
	rows, err := s.pool.Query(ctx, rebind(q), args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list leads")
	}
	defer rows.Close()

	var leads []model.Lead
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan lead")
		}
		leads = append(leads, *l)
	}
	return leads, eris.Wrap(rows.Err(), "postgres: list leads iterate")
}

func (s *PostgresStore) GetByID(ctx context.Context, id int64) (*model.Lead, error) {
	return s.getLead(ctx, selectLeadSQL+" WHERE id = $1", id)
}

func (s *PostgresStore) GetByURL(ctx context.Context, url string) (*model.Lead, error) {
	return s.getLead(ctx, selectLeadSQL+" WHERE url = $1", url)
}

func (s *PostgresStore) getLead(ctx context.Context, q string, arg any) (*model.Lead, error) {
	l, err := scanLead(s.pool.QueryRow(ctx, q, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: lead %v", arg)
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get lead")
	}
	return l, nil
}

func (s *PostgresStore) Exists(ctx context.Context, url string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM leads WHERE url = $1)`, url).Scan(&exists)
	return exists, eris.Wrap(err, "postgres: lead exists")
}

func (s *PostgresStore) SafeUpsert(ctx context.Context, lead *model.Lead) (bool, error) {
	if lead.URL == "" {
		return false, eris.New("postgres: upsert lead without url")
	}
	prepareLead(lead, s.now())
	args, err := leadArgs(lead)
	if err != nil {
		return false, err
	}
	var inserted bool
	err = s.pool.QueryRow(ctx, rebind(upsertLeadSQL+" RETURNING id, (xmax = 0)"), args...).Scan(&lead.ID, &inserted)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: upsert lead %s", lead.URL)
	}
	return inserted, nil
}

// SafeUpsertBatch stages the leads with COPY and merges them in one
// statement.
func (s *PostgresStore) SafeUpsertBatch(ctx context.Context, leads []model.Lead) (BatchResult, error) {
	if len(leads) == 0 {
		return BatchResult{}, nil
	}
	now := s.now()
	var rows [][]any
	for _, l := range dedupeByURL(leads) {
		if l.URL == "" {
			return BatchResult{}, eris.New("postgres: batch lead without url")
		}
		prepareLead(&l, now)
		args, err := leadArgs(&l)
		if err != nil {
			return BatchResult{}, err
		}
		rows = append(rows, args)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return BatchResult{}, eris.Wrap(err, "postgres: begin batch")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	res, err := db.Merge(ctx, tx, db.MergeConfig{
		Table:        "leads",
		Columns:      leadColumns,
		ConflictKeys: []string{"url"},
		SetClauses:   safeSetClauses,
	}, rows)
	if err != nil {
		return BatchResult{}, eris.Wrap(err, "postgres: batch upsert")
	}
	if err := tx.Commit(ctx); err != nil {
		return BatchResult{}, eris.Wrap(err, "postgres: commit batch")
	}
	return BatchResult{New: res.Inserted, Updated: res.Updated}, nil
}

func (s *PostgresStore) Update(ctx context.Context, id int64, u model.LeadUpdate) error {
	q, args, err := leadUpdateQuery(id, u, s.now())
	if err != nil || q == "" {
		return err
	}
	tag, err := s.pool.Exec(ctx, rebind(q), args...)
	if err != nil {
		return eris.Wrapf(err, "postgres: update lead %d", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "lead %d", id)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM leads WHERE id = $1`, id)
	if err != nil {
		return eris.Wrapf(err, "postgres: delete lead %d", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "lead %d", id)
	}
	return nil
}

func (s *PostgresStore) DeleteMany(ctx context.Context, ids []int64) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM leads WHERE id = ANY($1)`, ids)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: delete leads")
	}
	return int(tag.RowsAffected()), nil
}

// jobs

func (s *PostgresStore) GetJob(ctx context.Context, id int64) (*model.NormalizedJob, error) {
	return s.getJob(ctx, selectJobSQL+" WHERE id = $1", id)
}

func (s *PostgresStore) GetJobBySource(ctx context.Context, source model.Source, sourceJobID string) (*model.NormalizedJob, error) {
	return s.getJob(ctx, selectJobSQL+" WHERE source = $1 AND source_job_id = $2", string(source), sourceJobID)
}

func (s *PostgresStore) getJob(ctx context.Context, q string, args ...any) (*model.NormalizedJob, error) {
	j, err := scanJob(s.pool.QueryRow(ctx, q, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: job %v", args)
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get job")
	}
	return j, nil
}

func (s *PostgresStore) InsertJob(ctx context.Context, job *model.NormalizedJob) error {
	err := s.pool.QueryRow(ctx, rebind(insertJobSQL), jobArgs(job)...).Scan(&job.ID)
	return eris.Wrapf(err, "postgres: insert job %s/%s", job.Source, job.SourceJobID)
}

func (s *PostgresStore) UpdateJob(ctx context.Context, job *model.NormalizedJob) error {
	tag, err := s.pool.Exec(ctx, rebind(updateJobSQL), updateJobArgs(job)...)
	if err != nil {
		return eris.Wrapf(err, "postgres: update job %d", job.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "job %d", job.ID)
	}
	job.UpdateCount++
	return nil
}

func (s *PostgresStore) UpdateJobLastChecked(ctx context.Context, id int64, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `UPDATE jobs SET last_checked_at = $1 WHERE id = $2`, at.UTC(), id)
	if err != nil {
		return eris.Wrapf(err, "postgres: touch job %d", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "job %d", id)
	}
	return nil
}

// logs

func (s *PostgresStore) InsertLog(ctx context.Context, entry *model.ScrapingLog) (int64, error) {
	if err := s.pool.QueryRow(ctx, rebind(insertLogSQL), logArgs(entry)...).Scan(&entry.ID); err != nil {
		return 0, eris.Wrapf(err, "postgres: insert log for %s", entry.Source)
	}
	return entry.ID, nil
}

func (s *PostgresStore) ListLogs(ctx context.Context, filter LogFilter) ([]model.ScrapingLog, error) {
	q, args := logListQuery(filter)
	rows, err := s.pool.Query(ctx, rebind(q), args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list logs")
	}
	defer rows.Close()

	var logs []model.ScrapingLog
	for rows.Next() {
		e, err := scanLog(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan log")
		}
		logs = append(logs, *e)
	}
	return logs, eris.Wrap(rows.Err(), "postgres: list logs iterate")
}
