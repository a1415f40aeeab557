package model

import (
	"time"
)

// SalaryUnit is the period a parsed salary refers to.
type SalaryUnit string

const (
	SalaryUnitNone    SalaryUnit = ""
	SalaryUnitMonthly SalaryUnit = "monthly"
	SalaryUnitAnnual  SalaryUnit = "annual"
	SalaryUnitHourly  SalaryUnit = "hourly"
	SalaryUnitDaily   SalaryUnit = "daily"
)

// EmploymentType is the normalized contract category of a job.
type EmploymentType string

const (
	EmploymentUnknown   EmploymentType = ""
	EmploymentFullTime  EmploymentType = "full_time"
	EmploymentContract  EmploymentType = "contract"
	EmploymentTemporary EmploymentType = "temporary"
	EmploymentPartTime  EmploymentType = "part_time"
	EmploymentFreelance EmploymentType = "freelance"
)

// NormalizedJob is the numeric/categorical representation of a listing,
// keyed by (Source, SourceJobID).
type NormalizedJob struct {
	ID             int64          `json:"id" db:"id"`
	Source         Source         `json:"source" db:"source"`
	SourceJobID    string         `json:"source_job_id" db:"source_job_id"`
	SourceURL      string         `json:"source_url" db:"source_url"`
	CompanyName    string         `json:"company_name" db:"company_name"`
	Title          string         `json:"title" db:"title"`
	SalaryText     string         `json:"salary_text,omitempty" db:"salary_text"`
	SalaryMin      *int64         `json:"salary_min,omitempty" db:"salary_min"`
	SalaryMax      *int64         `json:"salary_max,omitempty" db:"salary_max"`
	SalaryUnit     SalaryUnit     `json:"salary_unit,omitempty" db:"salary_unit"`
	EmploymentType EmploymentType `json:"employment_type,omitempty" db:"employment_type"`
	Description    string         `json:"description,omitempty" db:"description"`
	Location       string         `json:"location,omitempty" db:"location"`
	DateExpires    *time.Time     `json:"date_expires,omitempty" db:"date_expires"`
	IsActive       bool           `json:"is_active" db:"is_active"`
	FirstSeenAt    time.Time      `json:"first_seen_at" db:"first_seen_at"`
	LastCheckedAt  time.Time      `json:"last_checked_at" db:"last_checked_at"`
	UpdatedAt      time.Time      `json:"updated_at" db:"updated_at"`
	UpdateCount    int            `json:"update_count" db:"update_count"`
}
