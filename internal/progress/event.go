package progress

import (
	"errors"
	"fmt"
	"time"
)

// Stage denotes the lifecycle milestone represented by an Event.
type Stage string

// Supported lifecycle stages.
const (
	StageSubmitted    Stage = "SUBMITTED"
	StageSuperseded   Stage = "SUPERSEDED"
	StageStale        Stage = "STALE"
	StageArchiveStart Stage = "ARCHIVE_START"
	StageArchived     Stage = "ARCHIVED"
	StageFailed       Stage = "FAILED"
)

// Terminal reports whether the stage ends a submission's lifecycle.
func (s Stage) Terminal() bool {
	switch s {
	case StageStale, StageArchived, StageFailed:
		return true
	default:
		return false
	}
}

// Event captures a single step in a submission's lifecycle.
type Event struct {
	// SubmissionID correlates events with log lines and notifications.
	SubmissionID string
	// Token is the debounce generation of the submission.
	Token uint64
	// Target is the archived identifier.
	Target string
	// AcceptedAt is when the submission was accepted.
	AcceptedAt time.Time
	// TS is the timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes which milestone occurred.
	Stage Stage
	// Dur carries the archival call latency on ARCHIVED and FAILED.
	Dur time.Duration
	// Note lets emitters attach low-volume context.
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.Token == 0 {
		return errors.New("token is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageSubmitted, StageSuperseded, StageStale, StageArchiveStart, StageArchived, StageFailed:
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}
