package archive

import "time"

// OutcomeStatus describes how a delayed action ended.
type OutcomeStatus string

// Outcome status values published after every delayed action.
const (
	OutcomeArchived OutcomeStatus = "archived"
	OutcomeFailed   OutcomeStatus = "failed"
	OutcomeStale    OutcomeStatus = "stale"
)

// Submission is one accepted, debounce-eligible archive request.
type Submission struct {
	// ID correlates log lines and notifications; it plays no part in
	// staleness checks.
	ID string `json:"id"`
	// Target is the opaque identifier handed to the archival service.
	Target string `json:"target"`
	// Token is the generation assigned at acceptance. A delayed action may
	// fire only while its Token is still the current one.
	Token uint64 `json:"token"`
	// AcceptedAt is informational.
	AcceptedAt time.Time `json:"accepted_at"`
}

// Outcome is the notification payload emitted when a delayed action ends.
type Outcome struct {
	SubmissionID string        `json:"submission_id"`
	Target       string        `json:"target"`
	Status       OutcomeStatus `json:"status"`
	AcceptedAt   time.Time     `json:"accepted_at"`
	FinishedAt   time.Time     `json:"finished_at"`
}
