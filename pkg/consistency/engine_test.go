package consistency

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/txsubstrate/platform/pkg/token"
	"github.com/txsubstrate/platform/pkg/watermark"
)

func testEngine(t *testing.T, now func() time.Time) (*Engine, watermark.Store, token.Signer) {
	t.Helper()
	store := watermark.NewInMemoryStore()
	signer := token.NewHMACSigner("k1", []byte("secret-key-material"))
	cfg := Config{
		TokenTTL:       time.Minute,
		ClockSkew:      5 * time.Second,
		RYWMaxWait:     200 * time.Millisecond,
		RYWInitialPoll: 5 * time.Millisecond,
		RYWMaxPoll:     50 * time.Millisecond,
	}
	return New(cfg, store, signer, nil, now), store, signer
}

func TestOpenRequest_SeedsWatermarkFromPriorToken(t *testing.T) {
	ctx := context.Background()
	clock := time.Now()
	now := func() time.Time { return clock }
	engine, store, signer := testEngine(t, now)

	prior, err := token.Encode(token.Token{
		Tenant:    "acme",
		IssuedAt:  now().UnixMilli(),
		Watermark: 1000,
	}, signer)
	require.NoError(t, err)

	_, _, err = engine.OpenRequest(ctx, "acme", "", prior)
	require.NoError(t, err)

	cur, err := store.Current(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, int64(1000), cur)
}

func TestOpenRequest_RejectsCrossTenantToken(t *testing.T) {
	ctx := context.Background()
	now := time.Now
	engine, store, signer := testEngine(t, now)

	otherTenantToken, err := token.Encode(token.Token{
		Tenant:    "other",
		IssuedAt:  now().UnixMilli(),
		Watermark: 5000,
	}, signer)
	require.NoError(t, err)

	_, scope, err := engine.OpenRequest(ctx, "acme", "", otherTenantToken)
	require.NoError(t, err)
	_, ok := scope.PriorToken()
	assert.False(t, ok, "cross-tenant token must be treated as absent")

	cur, err := store.Current(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, int64(0), cur)
}

func TestOpenRequest_RejectsExpiredToken(t *testing.T) {
	ctx := context.Background()
	clock := time.Now()
	now := func() time.Time { return clock }
	engine, _, signer := testEngine(t, now)

	expired, err := token.Encode(token.Token{
		Tenant:    "acme",
		IssuedAt:  now().Add(-time.Hour).UnixMilli(),
		Watermark: 1000,
	}, signer)
	require.NoError(t, err)

	_, scope, err := engine.OpenRequest(ctx, "acme", "", expired)
	require.NoError(t, err)
	_, ok := scope.PriorToken()
	assert.False(t, ok)
}

func TestMarkWriteNow_PanicsWithoutScope(t *testing.T) {
	engine, _, _ := testEngine(t, time.Now)
	assert.PanicsWithValue(t, ErrNoScope, func() {
		_ = engine.MarkWriteNow(context.Background())
	})
}

func TestEmitTokenForCurrentTenant_RoundTrips(t *testing.T) {
	ctx := context.Background()
	engine, store, signer := testEngine(t, time.Now)

	_, err := store.AdvanceAtLeast(ctx, "acme", 4242)
	require.NoError(t, err)

	scope := &Scope{tenant: "acme", startedAt: time.Now()}
	scopedCtx := scope.Context(ctx)

	compact, err := engine.EmitTokenForCurrentTenant(scopedCtx, token.AbsentVersion)
	require.NoError(t, err)

	tok, ok := token.ParseAndVerify(compact, signer)
	require.True(t, ok)
	assert.Equal(t, "acme", tok.Tenant)
	assert.Equal(t, int64(4242), tok.Watermark)
}

func TestWaitReadYourWrites_HappyPathNoWait(t *testing.T) {
	ctx := context.Background()
	engine, store, _ := testEngine(t, time.Now)

	_, err := store.AdvanceAtLeast(ctx, "acme", 1000)
	require.NoError(t, err)

	scope := &Scope{tenant: "acme"}
	tok := token.Token{Tenant: "acme", Watermark: 1000}
	scope.ifConsistentWith = &tok

	ok := engine.WaitReadYourWrites(ctx, scope)
	assert.True(t, ok)
}

func TestWaitReadYourWrites_WaitsThenSucceeds(t *testing.T) {
	ctx := context.Background()
	engine, store, _ := testEngine(t, time.Now)

	_, err := store.AdvanceAtLeast(ctx, "acme", 900)
	require.NoError(t, err)

	go func() {
		time.Sleep(40 * time.Millisecond)
		_, _ = store.AdvanceAtLeast(ctx, "acme", 1000)
	}()

	scope := &Scope{tenant: "acme"}
	tok := token.Token{Tenant: "acme", Watermark: 1000}
	scope.ifConsistentWith = &tok

	start := time.Now()
	ok := engine.WaitReadYourWrites(ctx, scope)
	elapsed := time.Since(start)

	assert.True(t, ok)
	assert.Less(t, elapsed, 200*time.Millisecond)
}

func TestWaitReadYourWrites_TimesOut(t *testing.T) {
	ctx := context.Background()
	engine, store, _ := testEngine(t, time.Now)

	_, err := store.AdvanceAtLeast(ctx, "acme", 900)
	require.NoError(t, err)

	scope := &Scope{tenant: "acme"}
	tok := token.Token{Tenant: "acme", Watermark: 1000}
	scope.ifConsistentWith = &tok

	start := time.Now()
	ok := engine.WaitReadYourWrites(ctx, scope)
	elapsed := time.Since(start)

	assert.False(t, ok)
	assert.GreaterOrEqual(t, elapsed, 190*time.Millisecond)
}

func TestScope_NestedOpenRestoresParentOnClose(t *testing.T) {
	ctx := context.Background()
	engine, _, _ := testEngine(t, time.Now)

	outerCtx, outer, err := engine.OpenRequest(ctx, "acme", "", "")
	require.NoError(t, err)

	innerCtx, inner, err := engine.OpenRequest(outerCtx, "acme", "", "")
	require.NoError(t, err)
	assert.Same(t, outer, inner.Parent())

	inner.Close()
	assert.True(t, inner.Closed())

	restored, ok := FromContext(outerCtx)
	require.True(t, ok)
	assert.Same(t, outer, restored)
	_ = innerCtx
}
