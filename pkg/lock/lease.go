package lock

import (
	"encoding/json"
	"math"
	"time"

	"github.com/pkg/errors"

	cierrors "github.com/cicoord/cicoord/pkg/errors"
)

// ErrMalformedLease means the content at the lock key could not be
// understood as a lease. The lock refuses to reason about it.
var ErrMalformedLease = errors.New("malformed lease")

// Lease records who holds a lock key, and since when. It is the only
// thing kept at the key; an absent key means the lock is free.
type Lease struct {
	Owner      string
	AcquiredAt time.Time
}

// The wire form is shared with the scripts that used to manage
// these locks: the acquisition time is fractional Unix seconds.
type leaseJSON struct {
	ProcessID *string  `json:"process_id"`
	Timestamp *float64 `json:"timestamp"`
}

// Age is how long ago the lease was written, as of now.
func (l Lease) Age(now time.Time) time.Duration {
	return now.Sub(l.AcquiredAt)
}

func EncodeLease(l Lease) ([]byte, error) {
	owner := l.Owner
	ts := float64(l.AcquiredAt.UnixNano()) / float64(time.Second)
	return json.Marshal(leaseJSON{ProcessID: &owner, Timestamp: &ts})
}

func DecodeLease(content []byte) (Lease, error) {
	var raw leaseJSON
	if err := json.Unmarshal(content, &raw); err != nil {
		return Lease{}, malformedLeaseError(errors.Wrap(ErrMalformedLease, err.Error()))
	}
	if raw.ProcessID == nil || *raw.ProcessID == "" {
		return Lease{}, malformedLeaseError(errors.Wrap(ErrMalformedLease, "no process_id"))
	}
	if raw.Timestamp == nil || math.IsNaN(*raw.Timestamp) || math.IsInf(*raw.Timestamp, 0) {
		return Lease{}, malformedLeaseError(errors.Wrap(ErrMalformedLease, "no usable timestamp"))
	}
	secs, frac := math.Modf(*raw.Timestamp)
	return Lease{
		Owner:      *raw.ProcessID,
		AcquiredAt: time.Unix(int64(secs), int64(frac*float64(time.Second))),
	}, nil
}

func malformedLeaseError(actual error) error {
	return &cierrors.Error{
		Type: cierrors.Server,
		Err:  actual,
		Help: `The lock key holds something that is not a lease

The content stored at the lock key could not be read as a lease of the
form

    {"process_id": "<owner>", "timestamp": <unix seconds>}

Rather than guess who holds the lock, cicoord stops here. If no job is
running under the lock, delete the key from the store by hand; the next
acquire will then write a fresh lease.
`,
	}
}
