// api/schemas/publishing.go
package schemas

import "time"

// Role is the semantic UI role a target plays in the editor.
type Role string

const (
	RoleTitleField      Role = "TITLE_FIELD"
	RoleBodyEditor      Role = "BODY_EDITOR"
	RoleCategoryTrigger Role = "CATEGORY_TRIGGER"
	RoleCategoryOption  Role = "CATEGORY_OPTION"
	RoleTagInput        Role = "TAG_INPUT"
)

// FillOutcome records what happened to one field of the document.
type FillOutcome struct {
	Role           Role   `json:"role" yaml:"role"`
	Attempted      bool   `json:"attempted" yaml:"attempted"`
	Succeeded      bool   `json:"succeeded" yaml:"succeeded"`
	VerifiedLength *int   `json:"verified_length" yaml:"verified_length"`
	StrategyUsed   int    `json:"strategy_used" yaml:"strategy_used"`
	Technique      string `json:"technique,omitempty" yaml:"technique,omitempty"`
	Warning        string `json:"warning,omitempty" yaml:"warning,omitempty"`
}

// DiagnosticBundle is a fail-soft snapshot of the page for human triage.
// Any probe that failed leaves its field empty and records the reason in
// ProbeErrors.
type DiagnosticBundle struct {
	Label          string            `json:"label" yaml:"label"`
	CapturedAt     time.Time         `json:"captured_at" yaml:"captured_at"`
	URL            string            `json:"url" yaml:"url"`
	Frames         []string          `json:"frames" yaml:"frames"`
	ActiveElement  string            `json:"active_element" yaml:"active_element"`
	Counts         map[string]int    `json:"counts" yaml:"counts"`
	ScreenshotPath string            `json:"screenshot_path,omitempty" yaml:"screenshot_path,omitempty"`
	ProbeErrors    map[string]string `json:"probe_errors,omitempty" yaml:"probe_errors,omitempty"`
}

// RunReport aggregates a whole publishing run.
type RunReport struct {
	RunID        string             `json:"run_id" yaml:"run_id"`
	Platform     string             `json:"platform" yaml:"platform"`
	DocumentPath string             `json:"document_path" yaml:"document_path"`
	Title        string             `json:"title" yaml:"title"`
	TitleFound   bool               `json:"title_found" yaml:"title_found"`
	StartedAt    time.Time          `json:"started_at" yaml:"started_at"`
	FinishedAt   time.Time          `json:"finished_at" yaml:"finished_at"`
	Outcomes     []FillOutcome      `json:"outcomes" yaml:"outcomes"`
	Diagnostics  []DiagnosticBundle `json:"diagnostics,omitempty" yaml:"diagnostics,omitempty"`
	FatalKind    ErrorKind          `json:"fatal_kind,omitempty" yaml:"fatal_kind,omitempty"`
	FatalError   string             `json:"fatal_error,omitempty" yaml:"fatal_error,omitempty"`
}

// Outcome returns the outcome recorded for role, if any.
func (r *RunReport) Outcome(role Role) (FillOutcome, bool) {
	for _, o := range r.Outcomes {
		if o.Role == role {
			return o, true
		}
	}
	return FillOutcome{}, false
}

// SoftFailures counts attempted fields that did not succeed or carry a warning.
func (r *RunReport) SoftFailures() int {
	n := 0
	for _, o := range r.Outcomes {
		if !o.Succeeded || o.Warning != "" {
			n++
		}
	}
	return n
}
