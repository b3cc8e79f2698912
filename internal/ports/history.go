package ports

import "time"

// RunKind classifies a history record.
type RunKind string

const (
	RunOnce    RunKind = "run"
	WatchStart RunKind = "watch-start"
	WatchStop  RunKind = "watch-stop"
)

// RunRecord is one persisted command outcome.
type RunRecord struct {
	Kind     RunKind
	Document string // document URI
	URL      string
	OK       bool
	Error    string
	Bytes    int // fetched markup size
	Elapsed  time.Duration
	At       time.Time
}

// History persists run records. Implementations must tolerate concurrent
// readers; writes come from a single host loop.
type History interface {
	Record(rec RunRecord) error
	// Recent returns up to limit records, newest first. An empty document
	// matches every record.
	Recent(document string, limit int) ([]RunRecord, error)
}
