package admission

import "time"

// PollBudget shapes how often waiting runs poll the registry. All
// runs of a job share the registry's rate limit, so the runs at the
// back of the queue poll less often the further back they are.
type PollBudget struct {
	// RequestsPerHour is what all waiting runs of a job may spend
	// between them, leaving headroom for everything else using the
	// same credentials.
	RequestsPerHour int
	// NextInLine is the interval for the run that will be admitted
	// next, so it starts promptly once a slot frees.
	NextInLine time.Duration
	// MinInterval is a floor for every other waiting run.
	MinInterval time.Duration
	// MissingRetry is the interval after a poll that did not list the
	// current run at all.
	MissingRetry time.Duration
}

// DefaultPollBudget assumes a hosted registry allowing 1000 requests
// per hour to the job's credentials, half of which is spent waiting.
func DefaultPollBudget() PollBudget {
	return PollBudget{
		RequestsPerHour: 500,
		NextInLine:      time.Minute,
		MinInterval:     time.Minute,
		MissingRetry:    time.Minute,
	}
}

// withDefaults fills in every unset (or non-positive) field from
// DefaultPollBudget, so a gate never polls without pause.
func (b PollBudget) withDefaults() PollBudget {
	defaults := DefaultPollBudget()
	if b.RequestsPerHour <= 0 {
		b.RequestsPerHour = defaults.RequestsPerHour
	}
	if b.NextInLine <= 0 {
		b.NextInLine = defaults.NextInLine
	}
	if b.MinInterval <= 0 {
		b.MinInterval = defaults.MinInterval
	}
	if b.MissingRetry <= 0 {
		b.MissingRetry = defaults.MissingRetry
	}
	return b
}

// Interval is how long a run should sleep before polling again, given
// ahead, the number of waiting runs in front of it excluding the next
// in line (0 means it is next in line), and behind, the total number
// of runs waiting excluding the next in line.
//
// A run at distance d out of n polls every d*s*H(n), where s is the
// per-request share of the hourly budget and H(n) the n-th harmonic
// number; the request rates of all n runs then sum to exactly the
// budget.
func (b PollBudget) Interval(ahead, waiting int) time.Duration {
	if ahead <= 0 {
		return b.NextInLine
	}
	if waiting < ahead {
		waiting = ahead
	}
	perHour := b.RequestsPerHour
	if perHour <= 0 {
		perHour = DefaultPollBudget().RequestsPerHour
	}
	share := float64(time.Hour) / float64(perHour)
	interval := time.Duration(share * float64(ahead) * harmonic(waiting))
	if interval < b.MinInterval {
		return b.MinInterval
	}
	return interval
}

func harmonic(n int) float64 {
	var h float64
	for k := 1; k <= n; k++ {
		h += 1 / float64(k)
	}
	return h
}
