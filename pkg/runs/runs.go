// Package runs describes executions of a CI job, and the registry that
// assigns and tracks them.
package runs

import (
	"context"
	"fmt"
)

// Status of a run. The registry may report others; callers here only
// care whether a run is in progress.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

// Run is one execution of a job. Number is assigned by the registry
// per job, strictly increasing in submission order, and never reused.
type Run struct {
	ID     int64
	Number int
	JobID  int64
	Branch string
	Event  string
	Status Status
}

func (r Run) String() string {
	return fmt.Sprintf("#%d", r.Number)
}

// Filter narrows a listing. Empty fields match everything.
type Filter struct {
	Status Status
	Branch string
}

func (f Filter) Matches(r Run) bool {
	return (f.Status == "" || f.Status == r.Status) &&
		(f.Branch == "" || f.Branch == r.Branch)
}

// CancelResult says what became of a cancellation request.
type CancelResult int

const (
	// Cancelled means the registry accepted the request.
	Cancelled CancelResult = iota
	// AlreadyTerminal means the run had already stopped.
	AlreadyTerminal
)

func (c CancelResult) String() string {
	switch c {
	case Cancelled:
		return "cancelled"
	case AlreadyTerminal:
		return "already-terminal"
	}
	return fmt.Sprintf("CancelResult(%d)", int(c))
}

// Registry lists and cancels the runs of jobs. Listings are read
// fresh on every call; pagination is the registry's concern.
type Registry interface {
	GetRun(ctx context.Context, id int64) (Run, error)
	ListRuns(ctx context.Context, jobID int64, filter Filter) ([]Run, error)
	CancelRun(ctx context.Context, id int64) (CancelResult, error)
}
