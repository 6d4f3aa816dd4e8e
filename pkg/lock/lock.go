// Package lock implements mutual exclusion over a single key in a
// kvstore.Store, which offers no conditional write.
//
// Acquiring is optimistic: read the lease, decide whether it can be
// taken, write our own lease, then wait a fixed settle window and read
// it back. Anyone who read the old lease before our write has had the
// settle window to make their own write, so whoever reads back their
// own lease after the window has won. Two contenders whose initial
// reads both precede either write can still race; the window narrows
// that, it does not close it.
//
// Backends that can detect a concurrent write (kvstore.ErrConflict)
// close the gap for writes that collide at the store; the lock treats
// a conflict the same as losing the race.
package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/pkg/errors"

	"github.com/cicoord/cicoord/pkg/kvstore"
	cimetrics "github.com/cicoord/cicoord/pkg/metrics"
)

const (
	DefaultKey             = ".lockfile"
	DefaultSettleWindow    = 2 * time.Second
	DefaultPollInterval    = 5 * time.Minute
	DefaultDeadlockTimeout = 3 * time.Hour
)

// AcquireOptions control a call to Acquire.
type AcquireOptions struct {
	// Wait keeps trying until the lock is acquired; otherwise, Acquire
	// makes a single attempt.
	Wait bool
	// DeadlockTimeout is the age after which another owner's lease is
	// considered abandoned.
	DeadlockTimeout time.Duration
	// PollInterval is how long to sleep between attempts.
	PollInterval time.Duration
}

// Lock guards one key in a store. It holds no state of its own; every
// decision re-reads the lease.
type Lock struct {
	store  kvstore.Store
	key    string
	logger log.Logger

	settle time.Duration
	now    func() time.Time
	sleep  func(context.Context, time.Duration) error
}

type Option func(*Lock)

// WithSettleWindow sets how long to wait between writing a lease and
// reading it back. It should comfortably exceed the time a contender
// takes between reading the lease and writing its own.
func WithSettleWindow(d time.Duration) Option {
	return func(l *Lock) {
		l.settle = d
	}
}

// WithClock substitutes the source of the current time.
func WithClock(now func() time.Time) Option {
	return func(l *Lock) {
		l.now = now
	}
}

func New(store kvstore.Store, key string, logger log.Logger, opts ...Option) *Lock {
	if key == "" {
		key = DefaultKey
	}
	if logger == nil {
		logger = log.NewNopLogger()
	}
	l := &Lock{
		store:  store,
		key:    key,
		settle: DefaultSettleWindow,
		now:    time.Now,
		sleep:  sleep,
	}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = log.With(logger, "lock", l.String())
	return l
}

func (l *Lock) String() string {
	return fmt.Sprintf("%s/%s", l.store, l.key)
}

// Holder reports the current lease, if any.
func (l *Lock) Holder(ctx context.Context) (Lease, bool, error) {
	content, err := l.store.Get(ctx, l.key)
	if err == kvstore.ErrNotFound || (err == nil && len(content) == 0) {
		return Lease{}, false, nil
	}
	if err != nil {
		return Lease{}, false, errors.Wrap(err, "reading lease")
	}
	lease, err := DecodeLease(content)
	if err != nil {
		return Lease{}, false, err
	}
	return lease, true, nil
}

// Acquire takes the lock for owner, which must identify the calling
// process and stay the same across its retries. It returns false
// without error when the lock is held by someone else and
// opts.Wait is false. Store errors are returned as they happen; only
// an unavailable lock is retried.
func (l *Lock) Acquire(ctx context.Context, owner string, opts AcquireOptions) (acquired bool, err error) {
	if owner == "" {
		return false, errors.New("an owner is required to acquire a lock")
	}
	logger := log.With(l.logger, "owner", owner)
	start := time.Now()
	defer func() {
		acquireDuration.With(cimetrics.LabelSuccess, fmt.Sprint(acquired)).Observe(time.Since(start).Seconds())
	}()

	for {
		outcome, holder, err := l.attempt(ctx, owner, opts.DeadlockTimeout)
		if err != nil {
			return false, err
		}
		attempts.With(cimetrics.LabelOutcome, outcome).Add(1)
		if outcome == outcomeWon {
			logger.Log("decision", "acquired")
			return true, nil
		}
		if !opts.Wait {
			logger.Log("decision", "not-acquired", "reason", outcome, "holder", holder)
			return false, nil
		}
		logger.Log("decision", "waiting", "reason", outcome, "holder", holder, "next_poll", opts.PollInterval)
		if err := l.sleep(ctx, opts.PollInterval); err != nil {
			return false, err
		}
	}
}

// attempt runs one read-decide-write-settle-reread cycle.
func (l *Lock) attempt(ctx context.Context, owner string, deadlockTimeout time.Duration) (outcome, holder string, err error) {
	current, found, err := l.Holder(ctx)
	if err != nil {
		return "", "", err
	}
	var lease *Lease
	if found {
		lease = &current
	}
	decision := Decide(lease, owner, l.now(), deadlockTimeout)
	if !decision.Acquirable {
		return outcomeHeld, decision.Holder, nil
	}
	if decision.Reason == ReasonStale {
		l.logger.Log("info", "taking over stale lease", "holder", decision.Holder, "age", decision.Age)
	}

	content, err := EncodeLease(Lease{Owner: owner, AcquiredAt: l.now()})
	if err != nil {
		return "", "", err
	}
	switch err := l.store.Put(ctx, l.key, content); {
	case err == kvstore.ErrConflict:
		return outcomeLost, decision.Holder, nil
	case err != nil:
		return "", "", errors.Wrap(err, "writing lease")
	}

	// Anyone who read the lease before our write has now had time to
	// write their own; see who is left standing.
	if err := l.sleep(ctx, l.settle); err != nil {
		return "", "", err
	}
	after, found, err := l.Holder(ctx)
	if err != nil {
		return "", "", err
	}
	if found && after.Owner == owner {
		return outcomeWon, owner, nil
	}
	return outcomeLost, after.Owner, nil
}

// Release deletes the lease if, and only if, owner holds it. It
// returns false without error if someone else (or no one) holds the
// lock, so it is safe to call speculatively.
func (l *Lock) Release(ctx context.Context, owner string) (bool, error) {
	logger := log.With(l.logger, "owner", owner)
	for {
		current, found, err := l.Holder(ctx)
		if err != nil {
			return false, err
		}
		if !found || current.Owner != owner {
			logger.Log("warning", "lock not owned by this process", "holder", current.Owner)
			return false, nil
		}
		switch err := l.store.Delete(ctx, l.key); {
		case err == kvstore.ErrConflict:
			// the lease changed under us; look again at who holds it
			logger.Log("info", "concurrent write while releasing")
			continue
		case err != nil:
			return false, errors.Wrap(err, "deleting lease")
		}
		logger.Log("decision", "released")
		return true, nil
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
