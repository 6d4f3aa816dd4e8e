package lock

import "time"

// Reason explains a Decision.
type Reason string

const (
	ReasonUnlocked Reason = "unlocked"
	ReasonOwned    Reason = "owned"
	ReasonStale    Reason = "stale"
	ReasonHeld     Reason = "held"
)

// Decision is the outcome of looking at the current lease.
type Decision struct {
	Acquirable bool
	Reason     Reason
	// Holder is the owner of the lease read, if there was one.
	Holder string
	// Age of the lease read, if there was one.
	Age time.Duration
}

// Decide says whether owner may write its own lease, given the lease
// currently at the key (nil if there is none). A lease older than
// deadlockTimeout is taken to belong to a holder that crashed or
// leaked it; this is a heuristic, since there is no liveness signal
// for holders.
func Decide(current *Lease, owner string, now time.Time, deadlockTimeout time.Duration) Decision {
	if current == nil {
		return Decision{Acquirable: true, Reason: ReasonUnlocked}
	}
	d := Decision{Holder: current.Owner, Age: current.Age(now)}
	switch {
	case current.Owner == owner:
		d.Acquirable, d.Reason = true, ReasonOwned
	case d.Age > deadlockTimeout:
		d.Acquirable, d.Reason = true, ReasonStale
	default:
		d.Reason = ReasonHeld
	}
	return d
}
