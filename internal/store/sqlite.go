package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/jobleads-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS leads (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
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
	rank_confidence  REAL NOT NULL DEFAULT 0,
	rank_detected_at DATETIME,
	last_seen_at     DATETIME,
	job_count        INTEGER NOT NULL DEFAULT 0,
	listing_status   TEXT NOT NULL DEFAULT '',
	latest_job_title TEXT NOT NULL DEFAULT '',
	last_updated_at  DATETIME,
	update_count     INTEGER NOT NULL DEFAULT 0,
	created_at       DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at       DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS jobs (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	source          TEXT NOT NULL,
	source_job_id   TEXT NOT NULL,
	source_url      TEXT NOT NULL UNIQUE,
	company_name    TEXT NOT NULL DEFAULT '',
	title           TEXT NOT NULL DEFAULT '',
	salary_text     TEXT NOT NULL DEFAULT '',
	salary_min      INTEGER,
	salary_max      INTEGER,
	salary_unit     TEXT NOT NULL DEFAULT '',
	employment_type TEXT NOT NULL DEFAULT '',
	description     TEXT NOT NULL DEFAULT '',
	location        TEXT NOT NULL DEFAULT '',
	date_expires    DATETIME,
	is_active       INTEGER NOT NULL DEFAULT 1,
	first_seen_at   DATETIME NOT NULL,
	last_checked_at DATETIME NOT NULL,
	updated_at      DATETIME NOT NULL,
	update_count    INTEGER NOT NULL DEFAULT 0,
	UNIQUE (source, source_job_id)
);

CREATE TABLE IF NOT EXISTS scraping_logs (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id        TEXT NOT NULL,
	source        TEXT NOT NULL,
	started_at    DATETIME NOT NULL,
	finished_at   DATETIME NOT NULL,
	duration_ms   INTEGER NOT NULL DEFAULT 0,
	jobs_found    INTEGER NOT NULL DEFAULT 0,
	new_jobs      INTEGER NOT NULL DEFAULT 0,
	updated_jobs  INTEGER NOT NULL DEFAULT 0,
	duplicates    INTEGER NOT NULL DEFAULT 0,
	errors        INTEGER NOT NULL DEFAULT 0,
	smart_stopped INTEGER NOT NULL DEFAULT 0,
	status        TEXT NOT NULL,
	error_message TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_leads_source ON leads(source);
CREATE INDEX IF NOT EXISTS idx_leads_status ON leads(status);
CREATE INDEX IF NOT EXISTS idx_leads_budget_rank ON leads(budget_rank);
CREATE INDEX IF NOT EXISTS idx_jobs_company ON jobs(company_name);
CREATE INDEX IF NOT EXISTS idx_scraping_logs_started ON scraping_logs(started_at);
CREATE INDEX IF NOT EXISTS idx_scraping_logs_run ON scraping_logs(run_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// leads

func (s *SQLiteStore) List(ctx context.Context, filter LeadFilter) ([]model.Lead, error) {
	q, args := leadListQuery(filter)
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list leads")
	}
	defer rows.Close()

	var leads []model.Lead
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan lead")
		}
		leads = append(leads, *l)
	}
	return leads, eris.Wrap(rows.Err(), "sqlite: list leads iterate")
}

func (s *SQLiteStore) GetByID(ctx context.Context, id int64) (*model.Lead, error) {
	return s.getLead(ctx, selectLeadSQL+" WHERE id = ?", id)
}

func (s *SQLiteStore) GetByURL(ctx context.Context, url string) (*model.Lead, error) {
	return s.getLead(ctx, selectLeadSQL+" WHERE url = ?", url)
}

func (s *SQLiteStore) getLead(ctx context.Context, q string, arg any) (*model.Lead, error) {
	l, err := scanLead(s.db.QueryRowContext(ctx, q, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: lead %v", arg)
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get lead")
	}
	return l, nil
}

func (s *SQLiteStore) Exists(ctx context.Context, url string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM leads WHERE url = ?)`, url).Scan(&exists)
	return exists, eris.Wrap(err, "sqlite: lead exists")
}

func (s *SQLiteStore) SafeUpsert(ctx context.Context, lead *model.Lead) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, eris.Wrap(err, "sqlite: begin upsert")
	}
	defer tx.Rollback() //nolint:errcheck

	isNew, err := s.upsertTx(ctx, tx, lead)
	if err != nil {
		return false, err
	}
	return isNew, eris.Wrap(tx.Commit(), "sqlite: commit upsert")
}

func (s *SQLiteStore) SafeUpsertBatch(ctx context.Context, leads []model.Lead) (BatchResult, error) {
	var res BatchResult
	if len(leads) == 0 {
		return res, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return res, eris.Wrap(err, "sqlite: begin batch")
	}
	defer tx.Rollback() //nolint:errcheck

	for _, l := range dedupeByURL(leads) {
		isNew, err := s.upsertTx(ctx, tx, &l)
		if err != nil {
			return BatchResult{}, eris.Wrapf(err, "sqlite: batch upsert %s", l.URL)
		}
		if isNew {
			res.New++
		} else {
			res.Updated++
		}
	}
	if err := tx.Commit(); err != nil {
		return BatchResult{}, eris.Wrap(err, "sqlite: commit batch")
	}
	return res, nil
}

func (s *SQLiteStore) upsertTx(ctx context.Context, tx *sql.Tx, lead *model.Lead) (bool, error) {
	if lead.URL == "" {
		return false, eris.New("sqlite: upsert lead without url")
	}
	var exists bool
	if err := tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM leads WHERE url = ?)`, lead.URL).Scan(&exists); err != nil {
		return false, eris.Wrap(err, "sqlite: upsert lookup")
	}

	prepareLead(lead, s.now())
	args, err := leadArgs(lead)
	if err != nil {
		return false, err
	}
	if err := tx.QueryRowContext(ctx, upsertLeadSQL+" RETURNING id", args...).Scan(&lead.ID); err != nil {
		return false, eris.Wrapf(err, "sqlite: upsert lead %s", lead.URL)
	}
	return !exists, nil
}

func (s *SQLiteStore) Update(ctx context.Context, id int64, u model.LeadUpdate) error {
	q, args, err := leadUpdateQuery(id, u, s.now())
	if err != nil || q == "" {
		return err
	}
	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update lead %d", id)
	}
	return checkRowsAffected(res, "lead", id)
}

func (s *SQLiteStore) Delete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM leads WHERE id = ?`, id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: delete lead %d", id)
	}
	return checkRowsAffected(res, "lead", id)
}

func (s *SQLiteStore) DeleteMany(ctx context.Context, ids []int64) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM leads WHERE id IN (`+placeholders(len(ids))+`)`, args...)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: delete leads")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: rows affected")
}

// jobs

func (s *SQLiteStore) GetJob(ctx context.Context, id int64) (*model.NormalizedJob, error) {
	return s.getJob(ctx, selectJobSQL+" WHERE id = ?", id)
}

func (s *SQLiteStore) GetJobBySource(ctx context.Context, source model.Source, sourceJobID string) (*model.NormalizedJob, error) {
	return s.getJob(ctx, selectJobSQL+" WHERE source = ? AND source_job_id = ?", string(source), sourceJobID)
}

func (s *SQLiteStore) getJob(ctx context.Context, q string, args ...any) (*model.NormalizedJob, error) {
	j, err := scanJob(s.db.QueryRowContext(ctx, q, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: job %v", args)
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get job")
	}
	return j, nil
}

func (s *SQLiteStore) InsertJob(ctx context.Context, job *model.NormalizedJob) error {
	err := s.db.QueryRowContext(ctx, insertJobSQL, jobArgs(job)...).Scan(&job.ID)
	return eris.Wrapf(err, "sqlite: insert job %s/%s", job.Source, job.SourceJobID)
}

func (s *SQLiteStore) UpdateJob(ctx context.Context, job *model.NormalizedJob) error {
	res, err := s.db.ExecContext(ctx, updateJobSQL, updateJobArgs(job)...)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update job %d", job.ID)
	}
	if err := checkRowsAffected(res, "job", job.ID); err != nil {
		return err
	}
	job.UpdateCount++
	return nil
}

func (s *SQLiteStore) UpdateJobLastChecked(ctx context.Context, id int64, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `UPDATE jobs SET last_checked_at = ? WHERE id = ?`, at.UTC(), id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: touch job %d", id)
	}
	return checkRowsAffected(res, "job", id)
}

// logs

func (s *SQLiteStore) InsertLog(ctx context.Context, entry *model.ScrapingLog) (int64, error) {
	if err := s.db.QueryRowContext(ctx, insertLogSQL, logArgs(entry)...).Scan(&entry.ID); err != nil {
		return 0, eris.Wrapf(err, "sqlite: insert log for %s", entry.Source)
	}
	return entry.ID, nil
}

func (s *SQLiteStore) ListLogs(ctx context.Context, filter LogFilter) ([]model.ScrapingLog, error) {
	q, args := logListQuery(filter)
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list logs")
	}
	defer rows.Close()

	var logs []model.ScrapingLog
	for rows.Next() {
		e, err := scanLog(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan log")
		}
		logs = append(logs, *e)
	}
	return logs, eris.Wrap(rows.Err(), "sqlite: list logs iterate")
}

// helpers

func checkRowsAffected(res sql.Result, entity string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %d", entity, id)
	}
	return nil
}
