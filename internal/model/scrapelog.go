package model

import (
	"time"
)

// LogStatus is the outcome recorded for one source within a run.
type LogStatus string

const (
	LogStatusSuccess LogStatus = "success"
	LogStatusPartial LogStatus = "partial"
	LogStatusError   LogStatus = "error"
)

// ScrapingLog is the append-only record of one (run, source) pair.
type ScrapingLog struct {
	ID           int64     `json:"id"`
	RunID        string    `json:"run_id"`
	Source       Source    `json:"source"`
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at"`
	DurationMs   int64     `json:"duration_ms"`
	JobsFound    int       `json:"jobs_found"`
	NewJobs      int       `json:"new_jobs"`
	UpdatedJobs  int       `json:"updated_jobs"`
	Duplicates   int       `json:"duplicates"`
	Errors       int       `json:"errors"`
	SmartStopped bool      `json:"smart_stopped"`
	Status       LogStatus `json:"status"`
	ErrorMessage string    `json:"error_message,omitempty"`
}

// StatusFor derives the log status from item counters. More than half of the
// found items failing marks the source partial.
func StatusFor(found, errCount int) LogStatus {
	if errCount*2 > found {
		return LogStatusPartial
	}
	return LogStatusSuccess
}
