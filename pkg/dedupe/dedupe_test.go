package dedupe

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore is an in-memory Store used for deterministic engine tests;
// it implements the same first-writer-wins semantics the GORM-backed
// production store provides via a unique index.
type fakeStore struct {
	mu   sync.Mutex
	rows map[string]*Row
	seen map[string]int
	fail bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{rows: make(map[string]*Row), seen: make(map[string]int)}
}

func rowKey(tenant, eventID string, version uint64) string {
	return tenant + "|" + eventID + "|" + string(rune(version))
}

func (s *fakeStore) Insert(_ context.Context, row Row) (bool, error) {
	if s.fail {
		return false, assert.AnError
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	k := rowKey(row.Tenant, row.EventID, row.Version)
	if _, ok := s.rows[k]; ok {
		return false, nil
	}
	r := row
	s.rows[k] = &r
	s.seen[k] = 1
	return true, nil
}

func (s *fakeStore) BumpSeen(_ context.Context, tenant, eventID string, version uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen[rowKey(tenant, eventID, version)]++
	return nil
}

func defaultPolicy() Policy {
	return Policy{MinAcceptedVersion: 1, ReplayWindow: 10 * 24 * time.Hour, MaxFutureSkew: time.Minute}
}

func TestCheckAndMark_AcceptThenDuplicate(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	engine := New(store, StaticPolicyProvider{Default: defaultPolicy()}, MinTTL)

	ts := time.Now()
	d1 := engine.CheckAndMark(ctx, "t1", "e1", 7, &ts, "f", false)
	assert.Equal(t, AcceptFirstSeen, d1)

	d2 := engine.CheckAndMark(ctx, "t1", "e1", 7, &ts, "f", false)
	assert.Equal(t, Duplicate, d2)
}

func TestCheckAndMark_ConcurrentExactlyOneAccept(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	engine := New(store, StaticPolicyProvider{Default: defaultPolicy()}, MinTTL)

	ts := time.Now()
	const workers = 20
	var accepted atomic.Int64
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			d := engine.CheckAndMark(ctx, "t1", "e1", 7, &ts, "f", false)
			if d == AcceptFirstSeen {
				accepted.Add(1)
			} else {
				assert.Equal(t, Duplicate, d)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), accepted.Load())
}

func TestCheckAndMark_TooOldVersion(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	policy := defaultPolicy()
	policy.MinAcceptedVersion = 10
	engine := New(store, StaticPolicyProvider{Default: policy}, MinTTL)

	d := engine.CheckAndMark(ctx, "t1", "e1", 5, nil, "f", false)
	assert.Equal(t, QuarantineTooOldVersion, d)
}

func TestCheckAndMark_ReplayWindow(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	policy := Policy{MinAcceptedVersion: 1, ReplayWindow: 10 * 24 * time.Hour, MaxFutureSkew: time.Minute}
	engine := New(store, StaticPolicyProvider{Default: policy}, MinTTL)

	old := time.Now().Add(-30 * 24 * time.Hour)

	d := engine.CheckAndMark(ctx, "t1", "e1", 7, &old, "f", false)
	assert.Equal(t, QuarantineOutsideReplayWindow, d)

	d2 := engine.CheckAndMark(ctx, "t1", "e2", 7, &old, "f", true)
	assert.Equal(t, AcceptFirstSeen, d2, "operatorReplay must bypass the replay window fence")
}

func TestCheckAndMark_FutureSkew(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	engine := New(store, StaticPolicyProvider{Default: defaultPolicy()}, MinTTL)

	future := time.Now().Add(time.Hour)
	d := engine.CheckAndMark(ctx, "t1", "e1", 7, &future, "f", false)
	assert.Equal(t, QuarantineFutureSkew, d)
}

func TestCheckAndMark_NoEventTsSkipsTimeFences(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	engine := New(store, StaticPolicyProvider{Default: defaultPolicy()}, MinTTL)

	d := engine.CheckAndMark(ctx, "t1", "e1", 7, nil, "f", false)
	assert.Equal(t, AcceptFirstSeen, d)
}

func TestCheckAndMark_StoreErrorFailsClosed(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	store.fail = true
	engine := New(store, StaticPolicyProvider{Default: defaultPolicy()}, MinTTL)

	d := engine.CheckAndMark(ctx, "t1", "e1", 7, nil, "f", false)
	assert.Equal(t, QuarantineStoreError, d)
}

type fakeCache struct {
	mu   sync.Mutex
	seen map[string]bool
}

func newFakeCache() *fakeCache { return &fakeCache{seen: make(map[string]bool)} }

func (c *fakeCache) CheckAndSet(_ context.Context, key string, _ time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.seen[key] {
		return false, nil
	}
	c.seen[key] = true
	return true, nil
}

func TestCheckAndMark_FastPathShortCircuitsDuplicate(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	cache := newFakeCache()
	engine := New(store, StaticPolicyProvider{Default: defaultPolicy()}, MinTTL, WithFastCache(cache))

	d1 := engine.CheckAndMark(ctx, "t1", "e1", 7, nil, "f", false)
	require.Equal(t, AcceptFirstSeen, d1)

	d2 := engine.CheckAndMark(ctx, "t1", "e1", 7, nil, "f", false)
	assert.Equal(t, Duplicate, d2)

	store.mu.Lock()
	inserts := len(store.rows)
	store.mu.Unlock()
	assert.Equal(t, 1, inserts, "a cache hit must skip the durable insert entirely")
}
