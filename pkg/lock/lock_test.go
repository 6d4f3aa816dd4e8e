package lock

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cicoord/cicoord/pkg/kvstore"
)

const testSettle = 50 * time.Millisecond

var noWait = AcquireOptions{
	Wait:            false,
	DeadlockTimeout: time.Hour,
	PollInterval:    10 * time.Millisecond,
}

func newTestLock(store kvstore.Store, opts ...Option) *Lock {
	return New(store, "", nil, append([]Option{WithSettleWindow(testSettle)}, opts...)...)
}

func putLease(t *testing.T, store kvstore.Store, owner string, at time.Time) {
	t.Helper()
	content, err := EncodeLease(Lease{Owner: owner, AcquiredAt: at})
	require.NoError(t, err)
	require.NoError(t, store.Put(context.Background(), DefaultKey, content))
}

func TestAcquire_EmptyLock(t *testing.T) {
	ctx := context.Background()
	store := kvstore.NewMemory()
	l := newTestLock(store)

	ok, err := l.Acquire(ctx, "a", noWait)
	require.NoError(t, err)
	assert.True(t, ok)

	lease, found, err := l.Holder(ctx)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "a", lease.Owner)
}

func TestAcquire_ReacquireRefreshes(t *testing.T) {
	ctx := context.Background()
	store := kvstore.NewMemory()
	first := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	now := first
	l := newTestLock(store, WithClock(func() time.Time { return now }))

	ok, err := l.Acquire(ctx, "a", noWait)
	require.NoError(t, err)
	require.True(t, ok)

	now = first.Add(30 * time.Minute)
	ok, err = l.Acquire(ctx, "a", noWait)
	require.NoError(t, err)
	assert.True(t, ok)

	lease, _, err := l.Holder(ctx)
	require.NoError(t, err)
	assert.True(t, now.Equal(lease.AcquiredAt), "lease time %s, want %s", lease.AcquiredAt, now)
}

func TestAcquire_StaleTakeover(t *testing.T) {
	ctx := context.Background()
	store := kvstore.NewMemory()
	opts := noWait
	opts.DeadlockTimeout = 3 * time.Hour
	putLease(t, store, "b", time.Now().Add(-opts.DeadlockTimeout-time.Second))

	l := newTestLock(store)
	ok, err := l.Acquire(ctx, "a", opts)
	require.NoError(t, err)
	assert.True(t, ok)

	lease, _, err := l.Holder(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a", lease.Owner)
}

func TestAcquire_HeldNoWait(t *testing.T) {
	ctx := context.Background()
	store := kvstore.NewMemory()
	putLease(t, store, "b", time.Now())
	before, _ := store.Get(ctx, DefaultKey)

	l := newTestLock(store)
	ok, err := l.Acquire(ctx, "a", noWait)
	require.NoError(t, err)
	assert.False(t, ok)

	after, _ := store.Get(ctx, DefaultKey)
	assert.Equal(t, before, after, "a held lease must not be touched")
}

func TestAcquire_WaitsForRelease(t *testing.T) {
	ctx := context.Background()
	store := kvstore.NewMemory()
	holder := newTestLock(store)
	ok, err := holder.Acquire(ctx, "b", noWait)
	require.NoError(t, err)
	require.True(t, ok)

	go func() {
		time.Sleep(100 * time.Millisecond)
		holder.Release(ctx, "b")
	}()

	opts := noWait
	opts.Wait = true
	ok, err = newTestLock(store).Acquire(ctx, "a", opts)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAcquire_WaitRespectsContext(t *testing.T) {
	store := kvstore.NewMemory()
	putLease(t, store, "b", time.Now())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	opts := noWait
	opts.Wait = true
	ok, err := newTestLock(store).Acquire(ctx, "a", opts)
	assert.False(t, ok)
	assert.Equal(t, context.DeadlineExceeded, err)
}

// Two contenders on an empty lock: exactly one wins, and the loser
// sees the winner as holder afterwards.
func TestAcquire_MutualExclusion(t *testing.T) {
	for i := 0; i < 5; i++ {
		ctx := context.Background()
		store := kvstore.NewMemory()
		owners := []string{"a", "b"}
		results := make([]bool, len(owners))

		var wg sync.WaitGroup
		for i, owner := range owners {
			wg.Add(1)
			go func(i int, owner string) {
				defer wg.Done()
				ok, err := newTestLock(store).Acquire(ctx, owner, noWait)
				assert.NoError(t, err)
				results[i] = ok
			}(i, owner)
		}
		wg.Wait()

		require.NotEqual(t, results[0], results[1], "exactly one contender must win")
		winner := owners[0]
		if results[1] {
			winner = owners[1]
		}
		lease, found, err := newTestLock(store).Holder(ctx)
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, winner, lease.Owner)
	}
}

// racingStore lets another contender write its lease just after ours.
type racingStore struct {
	kvstore.Store
	racer []byte
}

func (s *racingStore) Put(ctx context.Context, key string, value []byte) error {
	if err := s.Store.Put(ctx, key, value); err != nil {
		return err
	}
	if s.racer != nil {
		racer := s.racer
		s.racer = nil
		return s.Store.Put(ctx, key, racer)
	}
	return nil
}

func TestAcquire_LostRace(t *testing.T) {
	ctx := context.Background()
	racer, err := EncodeLease(Lease{Owner: "b", AcquiredAt: time.Now()})
	require.NoError(t, err)
	store := &racingStore{Store: kvstore.NewMemory(), racer: racer}

	ok, err := newTestLock(store).Acquire(ctx, "a", noWait)
	require.NoError(t, err)
	assert.False(t, ok)

	lease, _, err := newTestLock(store).Holder(ctx)
	require.NoError(t, err)
	assert.Equal(t, "b", lease.Owner)
}

type conflictStore struct {
	kvstore.Store
	conflicts int
}

func (s *conflictStore) Put(ctx context.Context, key string, value []byte) error {
	if s.conflicts > 0 {
		s.conflicts--
		return kvstore.ErrConflict
	}
	return s.Store.Put(ctx, key, value)
}

func TestAcquire_ConflictIsRetried(t *testing.T) {
	ctx := context.Background()
	store := &conflictStore{Store: kvstore.NewMemory(), conflicts: 1}
	l := newTestLock(store)

	ok, err := l.Acquire(ctx, "a", noWait)
	require.NoError(t, err)
	assert.False(t, ok, "a conflicting write is a lost attempt")

	opts := noWait
	opts.Wait = true
	store.conflicts = 2
	ok, err = l.Acquire(ctx, "a", opts)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAcquire_MalformedLeaseIsFatal(t *testing.T) {
	ctx := context.Background()
	store := kvstore.NewMemory()
	require.NoError(t, store.Put(ctx, DefaultKey, []byte("garbage")))

	opts := noWait
	opts.Wait = true
	_, err := newTestLock(store).Acquire(ctx, "a", opts)
	assert.True(t, errors.Is(err, ErrMalformedLease))
}

func TestAcquire_EmptyContentIsUnlocked(t *testing.T) {
	ctx := context.Background()
	store := kvstore.NewMemory()
	require.NoError(t, store.Put(ctx, DefaultKey, []byte{}))

	ok, err := newTestLock(store).Acquire(ctx, "a", noWait)
	require.NoError(t, err)
	assert.True(t, ok)
}

type brokenStore struct {
	kvstore.Store
}

func (brokenStore) Get(context.Context, string) ([]byte, error) {
	return nil, errors.New("connection refused")
}

func TestAcquire_StoreErrorsPropagate(t *testing.T) {
	opts := noWait
	opts.Wait = true
	_, err := newTestLock(brokenStore{kvstore.NewMemory()}).Acquire(context.Background(), "a", opts)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestAcquire_RequiresOwner(t *testing.T) {
	_, err := newTestLock(kvstore.NewMemory()).Acquire(context.Background(), "", noWait)
	assert.Error(t, err)
}

func TestRelease(t *testing.T) {
	ctx := context.Background()
	store := kvstore.NewMemory()
	l := newTestLock(store)
	ok, err := l.Acquire(ctx, "a", noWait)
	require.NoError(t, err)
	require.True(t, ok)

	released, err := l.Release(ctx, "a")
	require.NoError(t, err)
	assert.True(t, released)

	_, found, err := l.Holder(ctx)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRelease_NonOwnerIsNoop(t *testing.T) {
	ctx := context.Background()
	store := kvstore.NewMemory()
	putLease(t, store, "b", time.Now())

	released, err := newTestLock(store).Release(ctx, "a")
	require.NoError(t, err)
	assert.False(t, released)

	lease, found, err := newTestLock(store).Holder(ctx)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "b", lease.Owner)
}

func TestRelease_Unlocked(t *testing.T) {
	released, err := newTestLock(kvstore.NewMemory()).Release(context.Background(), "a")
	require.NoError(t, err)
	assert.False(t, released)
}

// takeoverStore has someone else write their lease at the moment a
// delete is attempted, and rejects the delete as a backend with
// resource versions would.
type takeoverStore struct {
	kvstore.Store
	takeover []byte
}

func (s *takeoverStore) Delete(ctx context.Context, key string) error {
	if s.takeover != nil {
		lease := s.takeover
		s.takeover = nil
		if err := s.Store.Put(ctx, key, lease); err != nil {
			return err
		}
		return kvstore.ErrConflict
	}
	return s.Store.Delete(ctx, key)
}

func TestRelease_ConflictWithTakeover(t *testing.T) {
	ctx := context.Background()
	takeover, err := EncodeLease(Lease{Owner: "b", AcquiredAt: time.Now()})
	require.NoError(t, err)
	store := &takeoverStore{Store: kvstore.NewMemory(), takeover: takeover}
	putLease(t, store, "a", time.Now())

	released, err := newTestLock(store).Release(ctx, "a")
	require.NoError(t, err)
	assert.False(t, released, "the lease now belongs to b")

	lease, found, err := newTestLock(store).Holder(ctx)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "b", lease.Owner)
}

type deleteConflictStore struct {
	kvstore.Store
	conflicts int
}

func (s *deleteConflictStore) Delete(ctx context.Context, key string) error {
	if s.conflicts > 0 {
		s.conflicts--
		return kvstore.ErrConflict
	}
	return s.Store.Delete(ctx, key)
}

func TestRelease_ConflictStillOwned(t *testing.T) {
	ctx := context.Background()
	store := &deleteConflictStore{Store: kvstore.NewMemory(), conflicts: 1}
	putLease(t, store, "a", time.Now())

	released, err := newTestLock(store).Release(ctx, "a")
	require.NoError(t, err)
	assert.True(t, released)

	_, found, err := newTestLock(store).Holder(ctx)
	require.NoError(t, err)
	assert.False(t, found)
}
