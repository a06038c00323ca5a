package history

import (
	"time"

	"github.com/google/uuid"
)

// Record is the journal entry of one finished command session.
type Record struct {
	ID           uuid.UUID
	Root         string
	Label        string
	CommandLines [][]string
	ExitCode     int
	Aborted      bool
	Error        string
	Warning      string
	StartedAt    time.Time
	FinishedAt   time.Time
}

// Succeeded reports whether the session completed with exit code zero.
func (r Record) Succeeded() bool {
	return !r.Aborted && r.ExitCode == 0
}

// Duration is the wall time between start and finish. Sessions aborted
// before they started have no duration.
func (r Record) Duration() time.Duration {
	if r.StartedAt.IsZero() || r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
