package archive

import (
	"context"
	"time"
)

// Archiver submits a target to the external archival service. It reports
// success as a boolean and never returns an error; failures are logged by
// the implementation.
type Archiver interface {
	Archive(ctx context.Context, target string) bool
}

// Recorder receives human-readable lines for the status page.
type Recorder interface {
	Append(message string)
	Appendf(format string, args ...any)
}

// Publisher pushes outcome notifications to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Timer is a scheduled callback that can be stopped before it fires.
type Timer interface {
	Stop() bool
}

// Clock returns the current time and schedules callbacks (useful for testing).
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// IDGenerator produces submission IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
