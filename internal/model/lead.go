// Package model defines the leads, jobs, scraping logs and progress events
// shared across the scraper.
package model

import (
	"time"
)

// Source identifies a recruiting portal.
type Source string

const (
	SourceMynavi   Source = "mynavi"
	SourceDoda     Source = "doda"
	SourceRikunabi Source = "rikunabi"
	SourceEnJapan  Source = "enjapan"
)

// ScrapeStatus records how far a lead has progressed through extraction.
type ScrapeStatus string

const (
	ScrapeStatusStep1 ScrapeStatus = "step1_completed" // listing + detail page
	ScrapeStatusStep2 ScrapeStatus = "step2_completed" // contact pass ran
)

// LeadStatus is the sales-pipeline stage an operator assigns to a lead.
type LeadStatus string

const (
	LeadStatusNew         LeadStatus = "new"
	LeadStatusContacted   LeadStatus = "contacted"
	LeadStatusAppointment LeadStatus = "appointment"
	LeadStatusNegotiating LeadStatus = "negotiating"
	LeadStatusWon         LeadStatus = "won"
	LeadStatusLost        LeadStatus = "lost"
	LeadStatusExcluded    LeadStatus = "excluded"
)

// ListingStatus reports whether a company still has live listings.
type ListingStatus string

const (
	ListingStatusActive   ListingStatus = "active"
	ListingStatusInactive ListingStatus = "inactive"
)

// RawListing is one listing as produced by an extraction strategy. It is
// consumed immediately by the orchestrator and never stored as-is.
type RawListing struct {
	Source         Source       `json:"source" yaml:"source"`
	DetailURL      string       `json:"detail_url" yaml:"detail_url"`
	CompanyName    string       `json:"company_name" yaml:"company_name"`
	JobTitle       string       `json:"job_title" yaml:"job_title"`
	SalaryText     string       `json:"salary_text,omitempty" yaml:"salary_text,omitempty"`
	Representative string       `json:"representative,omitempty" yaml:"representative,omitempty"`
	Establishment  string       `json:"establishment,omitempty" yaml:"establishment,omitempty"`
	EmployeeCount  string       `json:"employee_count,omitempty" yaml:"employee_count,omitempty"`
	Revenue        string       `json:"revenue,omitempty" yaml:"revenue,omitempty"`
	Phone          string       `json:"phone,omitempty" yaml:"phone,omitempty"`
	Email          string       `json:"email,omitempty" yaml:"email,omitempty"`
	HomepageURL    string       `json:"homepage_url,omitempty" yaml:"homepage_url,omitempty"`
	ContactFormURL string       `json:"contact_form_url,omitempty" yaml:"contact_form_url,omitempty"`
	Industry       string       `json:"industry,omitempty" yaml:"industry,omitempty"`
	Area           string       `json:"area,omitempty" yaml:"area,omitempty"`
	Address        string       `json:"address,omitempty" yaml:"address,omitempty"`
	JobDescription string       `json:"job_description,omitempty" yaml:"job_description,omitempty"`
	EmploymentType string       `json:"employment_type,omitempty" yaml:"employment_type,omitempty"`
	ExpiresText    string       `json:"expires_text,omitempty" yaml:"expires_text,omitempty"`
	BudgetRank     Rank         `json:"budget_rank,omitempty" yaml:"budget_rank,omitempty"`
	RankConfidence float64      `json:"rank_confidence,omitempty" yaml:"rank_confidence,omitempty"`
	Position       int          `json:"position,omitempty" yaml:"position,omitempty"`
	ScrapeStatus   ScrapeStatus `json:"scrape_status" yaml:"scrape_status"`
}

// Lead is the persisted business record derived from a job listing. URL is
// unique. Phone, ContactFormURL, Status, Note and the AI fields are operator
// protected: a re-scrape only fills them while they are empty.
type Lead struct {
	ID             int64         `json:"id" db:"id"`
	URL            string        `json:"url" db:"url"`
	Source         Source        `json:"source" db:"source"`
	CompanyName    string        `json:"company_name" db:"company_name"`
	JobTitle       string        `json:"job_title" db:"job_title"`
	SalaryText     string        `json:"salary_text,omitempty" db:"salary_text"`
	Representative string        `json:"representative,omitempty" db:"representative"`
	Establishment  string        `json:"establishment,omitempty" db:"establishment"`
	EmployeeCount  string        `json:"employee_count,omitempty" db:"employee_count"`
	Revenue        string        `json:"revenue,omitempty" db:"revenue"`
	Phone          string        `json:"phone,omitempty" db:"phone"`
	Email          string        `json:"email,omitempty" db:"email"`
	HomepageURL    string        `json:"homepage_url,omitempty" db:"homepage_url"`
	ContactFormURL string        `json:"contact_form_url,omitempty" db:"contact_form_url"`
	Industry       string        `json:"industry,omitempty" db:"industry"`
	Area           string        `json:"area,omitempty" db:"area"`
	Address        string        `json:"address,omitempty" db:"address"`
	JobDescription string        `json:"job_description,omitempty" db:"job_description"`
	ScrapeStatus   ScrapeStatus  `json:"scrape_status" db:"scrape_status"`
	Status         LeadStatus    `json:"status" db:"status"`
	Note           string        `json:"note,omitempty" db:"note"`
	AISummary      string        `json:"ai_summary,omitempty" db:"ai_summary"`
	AITags         []string      `json:"ai_tags,omitempty" db:"ai_tags"`
	BudgetRank     Rank          `json:"budget_rank,omitempty" db:"budget_rank"`
	LastRank       Rank          `json:"last_rank,omitempty" db:"last_rank"`
	RankConfidence float64       `json:"rank_confidence,omitempty" db:"rank_confidence"`
	RankDetectedAt *time.Time    `json:"rank_detected_at,omitempty" db:"rank_detected_at"`
	LastSeenAt     *time.Time    `json:"last_seen_at,omitempty" db:"last_seen_at"`
	JobCount       int           `json:"job_count" db:"job_count"`
	ListingStatus  ListingStatus `json:"listing_status,omitempty" db:"listing_status"`
	LatestJobTitle string        `json:"latest_job_title,omitempty" db:"latest_job_title"`
	LastUpdatedAt  *time.Time    `json:"last_updated_at,omitempty" db:"last_updated_at"`
	UpdateCount    int           `json:"update_count" db:"update_count"`
	CreatedAt      time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at" db:"updated_at"`
}

// LeadFromRaw copies the scraped fields of a RawListing onto a new Lead.
func LeadFromRaw(raw RawListing) Lead {
	return Lead{
		URL:            raw.DetailURL,
		Source:         raw.Source,
		CompanyName:    raw.CompanyName,
		JobTitle:       raw.JobTitle,
		SalaryText:     raw.SalaryText,
		Representative: raw.Representative,
		Establishment:  raw.Establishment,
		EmployeeCount:  raw.EmployeeCount,
		Revenue:        raw.Revenue,
		Phone:          raw.Phone,
		Email:          raw.Email,
		HomepageURL:    raw.HomepageURL,
		ContactFormURL: raw.ContactFormURL,
		Industry:       raw.Industry,
		Area:           raw.Area,
		Address:        raw.Address,
		JobDescription: raw.JobDescription,
		ScrapeStatus:   raw.ScrapeStatus,
		BudgetRank:     raw.BudgetRank,
		RankConfidence: raw.RankConfidence,
	}
}

// LeadUpdate is a partial update applied by id. Nil pointers leave the
// column untouched.
type LeadUpdate struct {
	Phone                *string
	Email                *string
	ContactFormURL       *string
	ScrapeStatus         *ScrapeStatus
	Status               *LeadStatus
	Note                 *string
	AISummary            *string
	AITags               []string
	BudgetRank           *Rank
	LastRank             *Rank
	RankDetectedAt       *time.Time
	JobCount             *int
	ListingStatus        *ListingStatus
	LatestJobTitle       *string
	LastUpdatedAt        *time.Time
	IncrementUpdateCount bool
}

// IsEmpty reports whether the update would change nothing.
func (u LeadUpdate) IsEmpty() bool {
	return u.Phone == nil && u.Email == nil && u.ContactFormURL == nil &&
		u.ScrapeStatus == nil && u.Status == nil && u.Note == nil &&
		u.AISummary == nil && u.AITags == nil && u.BudgetRank == nil &&
		u.LastRank == nil && u.RankDetectedAt == nil && u.JobCount == nil &&
		u.ListingStatus == nil && u.LatestJobTitle == nil && u.LastUpdatedAt == nil &&
		!u.IncrementUpdateCount
}
