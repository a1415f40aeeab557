package store

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/jobleads-cli/internal/model"
)

// Queries are written with '?' placeholders; the Postgres store rebinds
// them to $n.

var leadColumns = []string{
	"url", "source", "company_name", "job_title", "salary_text", "representative",
	"establishment", "employee_count", "revenue", "phone", "email", "homepage_url",
	"contact_form_url", "industry", "area", "address", "job_description", "scrape_status",
	"status", "note", "ai_summary", "ai_tags", "budget_rank", "last_rank", "rank_confidence",
	"rank_detected_at", "last_seen_at", "job_count", "listing_status", "latest_job_title",
	"last_updated_at", "update_count", "created_at", "updated_at",
}

// Scraped fields a fresh, non-empty value always replaces.
var allowListColumns = []string{
	"source", "company_name", "job_title", "salary_text", "representative", "establishment",
	"employee_count", "revenue", "homepage_url", "contact_form_url", "industry", "area", "address",
}

// Fields a re-scrape may only fill while the stored value is empty.
var fillEmptyColumns = []string{"phone", "email", "job_description"}

// safeSetClauses is the conflict branch of every lead upsert. Operator
// fields (status, note, ai_*) and refresh fields are never touched.
var safeSetClauses = func() []string {
	var set []string
	for _, c := range allowListColumns {
		set = append(set, fmt.Sprintf("%s = COALESCE(NULLIF(excluded.%s, ''), leads.%s)", c, c, c))
	}
	for _, c := range fillEmptyColumns {
		set = append(set, fmt.Sprintf("%s = CASE WHEN COALESCE(leads.%s, '') = '' THEN excluded.%s ELSE leads.%s END", c, c, c, c))
	}
	return append(set,
		"budget_rank = COALESCE(NULLIF(excluded.budget_rank, ''), leads.budget_rank)",
		"rank_confidence = CASE WHEN excluded.budget_rank <> '' THEN excluded.rank_confidence ELSE leads.rank_confidence END",
		"rank_detected_at = CASE WHEN excluded.budget_rank <> '' THEN excluded.rank_detected_at ELSE leads.rank_detected_at END",
		"scrape_status = CASE WHEN leads.scrape_status = 'step2_completed' THEN leads.scrape_status ELSE COALESCE(NULLIF(excluded.scrape_status, ''), leads.scrape_status) END",
		"last_seen_at = excluded.last_seen_at",
		"updated_at = excluded.updated_at",
	)
}()

var upsertLeadSQL = fmt.Sprintf(
	"INSERT INTO leads (%s) VALUES (%s) ON CONFLICT (url) DO UPDATE SET %s",
	strings.Join(leadColumns, ", "),
	placeholders(len(leadColumns)),
	strings.Join(safeSetClauses, ", "),
)

var selectLeadSQL = "SELECT id, " + strings.Join(leadColumns, ", ") + " FROM leads"

var jobColumns = []string{
	"source", "source_job_id", "source_url", "company_name", "title", "salary_text",
	"salary_min", "salary_max", "salary_unit", "employment_type", "description", "location",
	"date_expires", "is_active", "first_seen_at", "last_checked_at", "updated_at", "update_count",
}

var insertJobSQL = fmt.Sprintf(
	"INSERT INTO jobs (%s) VALUES (%s) RETURNING id",
	strings.Join(jobColumns, ", "),
	placeholders(len(jobColumns)),
)

const updateJobSQL = `UPDATE jobs SET source_url = ?, company_name = ?, title = ?, salary_text = ?,
	salary_min = ?, salary_max = ?, salary_unit = ?, employment_type = ?, description = ?,
	location = ?, date_expires = ?, is_active = ?, last_checked_at = ?, updated_at = ?,
	update_count = update_count + 1
	WHERE id = ?`

var selectJobSQL = "SELECT id, " + strings.Join(jobColumns, ", ") + " FROM jobs"

var logColumns = []string{
	"run_id", "source", "started_at", "finished_at", "duration_ms", "jobs_found", "new_jobs",
	"updated_jobs", "duplicates", "errors", "smart_stopped", "status", "error_message",
}

var insertLogSQL = fmt.Sprintf(
	"INSERT INTO scraping_logs (%s) VALUES (%s) RETURNING id",
	strings.Join(logColumns, ", "),
	placeholders(len(logColumns)),
)

var selectLogSQL = "SELECT id, " + strings.Join(logColumns, ", ") + " FROM scraping_logs"

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// rebind rewrites '?' placeholders to Postgres $n form.
func rebind(q string) string {
	var b strings.Builder
	n := 0
	for i := 0; i < len(q); i++ {
		if q[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(q[i])
	}
	return b.String()
}

func leadArgs(l *model.Lead) ([]any, error) {
	tags, err := tagsJSON(l.AITags)
	if err != nil {
		return nil, err
	}
	return []any{
		l.URL, string(l.Source), l.CompanyName, l.JobTitle, l.SalaryText, l.Representative,
		l.Establishment, l.EmployeeCount, l.Revenue, l.Phone, l.Email, l.HomepageURL,
		l.ContactFormURL, l.Industry, l.Area, l.Address, l.JobDescription, string(l.ScrapeStatus),
		string(l.Status), l.Note, l.AISummary, tags, string(l.BudgetRank), string(l.LastRank), l.RankConfidence,
		nullTime(l.RankDetectedAt), nullTime(l.LastSeenAt), l.JobCount, string(l.ListingStatus), l.LatestJobTitle,
		nullTime(l.LastUpdatedAt), l.UpdateCount, l.CreatedAt.UTC(), l.UpdatedAt.UTC(),
	}, nil
}

// prepareLead fills the bookkeeping fields an insert needs.
func prepareLead(l *model.Lead, now time.Time) {
	if l.Status == "" {
		l.Status = model.LeadStatusNew
	}
	if l.ScrapeStatus == "" {
		l.ScrapeStatus = model.ScrapeStatusStep1
	}
	if l.BudgetRank.Valid() && l.RankDetectedAt == nil {
		l.RankDetectedAt = &now
	}
	if l.LastSeenAt == nil {
		l.LastSeenAt = &now
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = now
	}
	l.UpdatedAt = now
}

type scannable interface {
	Scan(dest ...any) error
}

func scanLead(row scannable) (*model.Lead, error) {
	var l model.Lead
	var tags string
	err := row.Scan(
		&l.ID, &l.URL, &l.Source, &l.CompanyName, &l.JobTitle, &l.SalaryText, &l.Representative,
		&l.Establishment, &l.EmployeeCount, &l.Revenue, &l.Phone, &l.Email, &l.HomepageURL,
		&l.ContactFormURL, &l.Industry, &l.Area, &l.Address, &l.JobDescription, &l.ScrapeStatus,
		&l.Status, &l.Note, &l.AISummary, &tags, &l.BudgetRank, &l.LastRank, &l.RankConfidence,
		&l.RankDetectedAt, &l.LastSeenAt, &l.JobCount, &l.ListingStatus, &l.LatestJobTitle,
		&l.LastUpdatedAt, &l.UpdateCount, &l.CreatedAt, &l.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if tags != "" {
		if err := json.Unmarshal([]byte(tags), &l.AITags); err != nil {
			return nil, eris.Wrap(err, "store: decode ai_tags")
		}
	}
	return &l, nil
}

func jobArgs(j *model.NormalizedJob) []any {
	return []any{
		string(j.Source), j.SourceJobID, j.SourceURL, j.CompanyName, j.Title, j.SalaryText,
		nullInt(j.SalaryMin), nullInt(j.SalaryMax), string(j.SalaryUnit), string(j.EmploymentType), j.Description, j.Location,
		nullTime(j.DateExpires), j.IsActive, j.FirstSeenAt.UTC(), j.LastCheckedAt.UTC(), j.UpdatedAt.UTC(), j.UpdateCount,
	}
}

func updateJobArgs(j *model.NormalizedJob) []any {
	return []any{
		j.SourceURL, j.CompanyName, j.Title, j.SalaryText,
		nullInt(j.SalaryMin), nullInt(j.SalaryMax), string(j.SalaryUnit), string(j.EmploymentType), j.Description,
		j.Location, nullTime(j.DateExpires), j.IsActive, j.LastCheckedAt.UTC(), j.UpdatedAt.UTC(),
		j.ID,
	}
}

func scanJob(row scannable) (*model.NormalizedJob, error) {
	var j model.NormalizedJob
	err := row.Scan(
		&j.ID, &j.Source, &j.SourceJobID, &j.SourceURL, &j.CompanyName, &j.Title, &j.SalaryText,
		&j.SalaryMin, &j.SalaryMax, &j.SalaryUnit, &j.EmploymentType, &j.Description, &j.Location,
		&j.DateExpires, &j.IsActive, &j.FirstSeenAt, &j.LastCheckedAt, &j.UpdatedAt, &j.UpdateCount,
	)
	if err != nil {
		return nil, err
	}
	return &j, nil
}

func logArgs(e *model.ScrapingLog) []any {
	return []any{
		e.RunID, string(e.Source), e.StartedAt.UTC(), e.FinishedAt.UTC(), e.DurationMs, e.JobsFound, e.NewJobs,
		e.UpdatedJobs, e.Duplicates, e.Errors, e.SmartStopped, string(e.Status), e.ErrorMessage,
	}
}

func scanLog(row scannable) (*model.ScrapingLog, error) {
	var e model.ScrapingLog
	err := row.Scan(
		&e.ID, &e.RunID, &e.Source, &e.StartedAt, &e.FinishedAt, &e.DurationMs, &e.JobsFound, &e.NewJobs,
		&e.UpdatedJobs, &e.Duplicates, &e.Errors, &e.SmartStopped, &e.Status, &e.ErrorMessage,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// leadListQuery builds the List query for f.
func leadListQuery(f LeadFilter) (string, []any) {
	var where []string
	var args []any
	if len(f.IDs) > 0 {
		where = append(where, "id IN ("+placeholders(len(f.IDs))+")")
		for _, id := range f.IDs {
			args = append(args, id)
		}
	}
	if f.Source != "" {
		where = append(where, "source = ?")
		args = append(args, string(f.Source))
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}
	if f.Rank != "" {
		where = append(where, "budget_rank = ?")
		args = append(args, string(f.Rank))
	}
	if f.ListingStatus != "" {
		where = append(where, "listing_status = ?")
		args = append(args, string(f.ListingStatus))
	}
	if f.Search != "" {
		where = append(where, "LOWER(company_name) LIKE ?")
		args = append(args, "%"+strings.ToLower(f.Search)+"%")
	}
	if f.MissingPhone {
		where = append(where, "phone = ''")
	}
	if f.MissingEmail {
		where = append(where, "email = ''")
	}
	if f.MissingSummary {
		where = append(where, "ai_summary = ''")
	}
	if f.HasHomepage {
		where = append(where, "homepage_url <> ''")
	}

	q := selectLeadSQL
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY id DESC LIMIT ?"
	args = append(args, limitOr(f.Limit, 100))
	if f.Offset > 0 {
		q += " OFFSET ?"
		args = append(args, f.Offset)
	}
	return q, args
}

// leadUpdateQuery builds the UPDATE for u, or "" when u changes nothing.
func leadUpdateQuery(id int64, u model.LeadUpdate, now time.Time) (string, []any, error) {
	if u.IsEmpty() {
		return "", nil, nil
	}
	var set []string
	var args []any
	add := func(col string, v any) {
		set = append(set, col+" = ?")
		args = append(args, v)
	}
	if u.Phone != nil {
		add("phone", *u.Phone)
	}
	if u.Email != nil {
		add("email", *u.Email)
	}
	if u.ContactFormURL != nil {
		add("contact_form_url", *u.ContactFormURL)
	}
	if u.ScrapeStatus != nil {
		add("scrape_status", string(*u.ScrapeStatus))
	}
	if u.Status != nil {
		add("status", string(*u.Status))
	}
	if u.Note != nil {
		add("note", *u.Note)
	}
	if u.AISummary != nil {
		add("ai_summary", *u.AISummary)
	}
	if u.AITags != nil {
		tags, err := tagsJSON(u.AITags)
		if err != nil {
			return "", nil, err
		}
		add("ai_tags", tags)
	}
	if u.BudgetRank != nil {
		add("budget_rank", string(*u.BudgetRank))
	}
	if u.LastRank != nil {
		add("last_rank", string(*u.LastRank))
	}
	if u.RankDetectedAt != nil {
		add("rank_detected_at", u.RankDetectedAt.UTC())
	}
	if u.JobCount != nil {
		add("job_count", *u.JobCount)
	}
	if u.ListingStatus != nil {
		add("listing_status", string(*u.ListingStatus))
	}
	if u.LatestJobTitle != nil {
		add("latest_job_title", *u.LatestJobTitle)
	}
	if u.LastUpdatedAt != nil {
		add("last_updated_at", u.LastUpdatedAt.UTC())
	}
	if u.IncrementUpdateCount {
		set = append(set, "update_count = update_count + 1")
	}
	add("updated_at", now.UTC())
	args = append(args, id)
	return "UPDATE leads SET " + strings.Join(set, ", ") + " WHERE id = ?", args, nil
}

func logListQuery(f LogFilter) (string, []any) {
	var where []string
	var args []any
	if f.RunID != "" {
		where = append(where, "run_id = ?")
		args = append(args, f.RunID)
	}
	if f.Source != "" {
		where = append(where, "source = ?")
		args = append(args, string(f.Source))
	}
	if !f.Since.IsZero() {
		where = append(where, "started_at >= ?")
		args = append(args, f.Since.UTC())
	}
	q := selectLogSQL
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY started_at DESC, id DESC LIMIT ?"
	args = append(args, limitOr(f.Limit, 200))
	return q, args
}

func tagsJSON(tags []string) (string, error) {
	if len(tags) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal(tags)
	if err != nil {
		return "", eris.Wrap(err, "store: encode ai_tags")
	}
	return string(b), nil
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func nullInt(n *int64) any {
	if n == nil {
		return nil
	}
	return *n
}
