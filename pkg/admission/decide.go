package admission

import (
	"sort"
	"time"
)

// State of a run waiting at the gate.
type State int

const (
	Polling State = iota
	Admitted
	Failed
)

func (s State) String() string {
	switch s {
	case Polling:
		return "polling"
	case Admitted:
		return "admitted"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// Step is the result of one poll.
type Step struct {
	State State
	// Rank is the 0-based position of the current run among all runs
	// in progress, ordered by number; -1 if it was not listed.
	Rank int
	// InProgress is how many runs were in progress.
	InProgress int
	// Blocking is how many runs must finish before this one is admitted.
	Blocking int
	// Wait is how long to sleep before the next poll, when Polling.
	Wait time.Duration
}

// Decide works out whether the run numbered current may proceed, given
// the numbers of all runs of its job currently in progress. Admission
// is by rank: the maxConcurrency lowest numbers in progress may run.
// The numbers are taken as given; nothing is remembered between polls.
func Decide(inProgress []int, current, maxConcurrency int, budget PollBudget) Step {
	if maxConcurrency < 1 {
		return Step{State: Failed, Rank: -1}
	}
	numbers := append([]int(nil), inProgress...)
	sort.Ints(numbers)

	step := Step{Rank: -1, InProgress: len(numbers)}
	i := sort.SearchInts(numbers, current)
	if i == len(numbers) || numbers[i] != current {
		// The registry has not caught up with us yet, or is being
		// inconsistent; try again shortly.
		step.State = Polling
		step.Wait = budget.MissingRetry
		return step
	}
	step.Rank = i
	if i < maxConcurrency {
		step.State = Admitted
		return step
	}

	step.State = Polling
	step.Blocking = i - maxConcurrency + 1
	waiting := len(numbers) - maxConcurrency - 1
	step.Wait = budget.Interval(i-maxConcurrency, waiting)
	return step
}
