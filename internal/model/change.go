package model

// Direction labels a rank change.
type Direction string

const (
	DirectionUpgrade   Direction = "upgrade"
	DirectionDowngrade Direction = "downgrade"
)

// FieldChange is one before/after pair in a ChangeReport.
type FieldChange struct {
	Old       any       `json:"old"`
	New       any       `json:"new"`
	Delta     *int      `json:"delta,omitempty"`
	Direction Direction `json:"direction,omitempty"`
}

// ChangeReport maps a field name to its change. An empty report means the
// company had no material change.
type ChangeReport map[string]FieldChange

// Changed reports whether any field differs.
func (c ChangeReport) Changed() bool { return len(c) > 0 }

// Progress is a snapshot passed to progress callbacks.
type Progress struct {
	RunID                 string `json:"run_id"`
	Phase                 string `json:"phase"`
	Source                Source `json:"source,omitempty"`
	SourceIndex           int    `json:"source_index"`
	SourceTotal           int    `json:"source_total"`
	Found                 int    `json:"found"`
	New                   int    `json:"new"`
	Updated               int    `json:"updated"`
	Duplicates            int    `json:"duplicates"`
	ConsecutiveDuplicates int    `json:"consecutive_duplicates"`
	Errors                int    `json:"errors"`
	CurrentURL            string `json:"current_url,omitempty"`
	Company               string `json:"company,omitempty"`
	CompanyIndex          int    `json:"company_index,omitempty"`
	CompanyTotal          int    `json:"company_total,omitempty"`
}

// Progress phases.
const (
	PhaseNavigating = "navigating"
	PhaseItem       = "item"
	PhaseSmartStop  = "smart_stop"
	PhaseSourceDone = "source_complete"
	PhaseComplete   = "complete"
	PhaseCompany    = "company"
)
