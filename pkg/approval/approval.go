// Package approval contains the core domain types for the Tempo approvals checker.
package approval

import "time"

// Source identifies which extraction strategy produced a record. It is kept
// for diagnostics only and never affects classification.
type Source string

const (
	SourceTable       Source = "table"
	SourceSpanClass   Source = "span-class"
	SourceLink        Source = "link"
	SourceTextPattern Source = "text-pattern"
)

// ErrorType classifies a failed check so callers can pattern-match without
// unwrapping errors.
type ErrorType string

const (
	ErrorNone    ErrorType = ""
	ErrorDNS     ErrorType = "dns"
	ErrorAuth    ErrorType = "auth"
	ErrorUnknown ErrorType = "unknown"
)

// Record is one (person, status) pair extracted from the approvals page.
type Record struct {
	Name   string `json:"name"`   // display name, whitespace-normalized
	Status string `json:"status"` // raw status text as rendered (locale-dependent)
	Source Source `json:"source,omitempty"`
}

// Result is the outcome of one check run.
//
// Invariant: NotSubmittedUsers ⊆ ProblemUsers ⊆ AllUsers, and a failed
// result carries no users.
type Result struct {
	Success           bool      `json:"success"`
	AllUsers          []Record  `json:"all_users"`
	ProblemUsers      []Record  `json:"problem_users"`
	NotSubmittedUsers []Record  `json:"not_submitted_users"`
	Error             string    `json:"error,omitempty"`
	ErrorType         ErrorType `json:"error_type,omitempty"`
	Timestamp         string    `json:"timestamp"`
}

// Failure builds a failed Result with the given typed error.
func Failure(errType ErrorType, msg string) Result {
	return Result{
		Success:   false,
		Error:     msg,
		ErrorType: errType,
		Timestamp: time.Now().Format(time.RFC3339),
	}
}

// State is the persisted subset of a successful check.
type State struct {
	ProblemUsers []Record `json:"problem_users"`
	LastCheck    string   `json:"last_check"`
	TeamID       int      `json:"team_id"`
}

// Team is one entry of the scraped team list.
type Team struct {
	ID     int    `json:"id"`
	Name   string `json:"name"`
	URL    string `json:"url"`
	Source Source `json:"source,omitempty"`
}
