// Package runstest provides an in-memory runs.Registry for tests.
package runstest

import (
	"context"
	"fmt"
	"sort"
	"sync"

	cierrors "github.com/cicoord/cicoord/pkg/errors"
	"github.com/cicoord/cicoord/pkg/runs"
)

// Registry keeps runs in memory. Hooks let a test change the state of
// the world between polls.
type Registry struct {
	mu   sync.Mutex
	runs map[int64]runs.Run

	// Lists counts calls to ListRuns.
	Lists int
	// Cancels records the IDs passed to CancelRun, in order.
	Cancels []int64
	// OnList, if set, is called (without the lock held) before each
	// ListRuns is answered.
	OnList func(r *Registry, call int)
	// ListErr, if set, is returned from ListRuns.
	ListErr error
	// CancelErr, if set, is returned from CancelRun.
	CancelErr error
}

func NewRegistry(rs ...runs.Run) *Registry {
	r := &Registry{runs: map[int64]runs.Run{}}
	for _, run := range rs {
		r.runs[run.ID] = run
	}
	return r
}

// SetStatus moves a run to a new status.
func (r *Registry) SetStatus(id int64, status runs.Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	run := r.runs[id]
	run.Status = status
	r.runs[id] = run
}

// Add records a new run.
func (r *Registry) Add(run runs.Run) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs[run.ID] = run
}

// Run returns the run with the given ID as it is now.
func (r *Registry) Run(id int64) runs.Run {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.runs[id]
}

func (r *Registry) GetRun(ctx context.Context, id int64) (runs.Run, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[id]
	if !ok {
		return runs.Run{}, &cierrors.Error{Type: cierrors.Missing, Err: fmt.Errorf("run %d not found", id)}
	}
	return run, nil
}

func (r *Registry) ListRuns(ctx context.Context, jobID int64, filter runs.Filter) ([]runs.Run, error) {
	r.mu.Lock()
	r.Lists++
	call := r.Lists
	hook := r.OnList
	r.mu.Unlock()
	if hook != nil {
		hook(r, call)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ListErr != nil {
		return nil, r.ListErr
	}
	var out []runs.Run
	for _, run := range r.runs {
		if run.JobID == jobID && filter.Matches(run) {
			out = append(out, run)
		}
	}
	// newest first, as hosted registries tend to list them
	sort.Slice(out, func(i, j int) bool { return out[i].Number > out[j].Number })
	return out, nil
}

func (r *Registry) CancelRun(ctx context.Context, id int64) (runs.CancelResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Cancels = append(r.Cancels, id)
	if r.CancelErr != nil {
		return 0, r.CancelErr
	}
	run, ok := r.runs[id]
	if !ok {
		return 0, fmt.Errorf("run %d not found", id)
	}
	if run.Status == runs.StatusCompleted || run.Status == runs.StatusCancelled {
		return runs.AlreadyTerminal, nil
	}
	run.Status = runs.StatusCancelled
	r.runs[id] = run
	return runs.Cancelled, nil
}
