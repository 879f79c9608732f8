package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/txsubstrate/platform/pkg/consistency"
	"github.com/txsubstrate/platform/pkg/etag"
	"github.com/txsubstrate/platform/pkg/token"
	"github.com/txsubstrate/platform/pkg/watermark"
)

func testBoundary(t *testing.T) (*Boundary, *consistency.Engine) {
	t.Helper()
	store := watermark.NewInMemoryStore()
	signer := token.NewHMACSigner("k1", []byte("test-secret-key-material"))
	cfg := consistency.Config{
		TokenTTL:       time.Minute,
		ClockSkew:      5 * time.Second,
		RYWMaxWait:     100 * time.Millisecond,
		RYWInitialPoll: 2 * time.Millisecond,
		RYWMaxPoll:     20 * time.Millisecond,
	}
	engine := consistency.New(cfg, store, signer, nil, nil)
	return NewBoundary(engine), engine
}

func TestBoundary_RejectsMissingTenantHeader(t *testing.T) {
	boundary, _ := testBoundary(t)
	handler := boundary.Handle(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/widgets/1", nil)
	rec := httptest.NewRecorder()
	handler(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBoundary_SkipsAllowlistedPaths(t *testing.T) {
	boundary, _ := testBoundary(t)
	called := false
	handler := boundary.Handle(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/favicon.ico", nil)
	rec := httptest.NewRecorder()
	handler(rec, req)

	assert.True(t, called)
	assert.Empty(t, rec.Header().Get(consistencyTokenHeader), "allowlisted paths never get a scope or token")
}

func TestBoundary_EmitsTokenAndETagFromHandlerVersion(t *testing.T) {
	boundary, _ := testBoundary(t)
	v, err := etag.NewEntityVersion(5)
	require.NoError(t, err)

	handler := boundary.Handle(func(w http.ResponseWriter, r *http.Request) {
		SetEntityVersion(r.Context(), v)
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodPost, "/widgets", nil)
	req.Header.Set(tenantHeader, "tenant-a")
	rec := httptest.NewRecorder()
	handler(rec, req)

	assert.Equal(t, `"5"`, rec.Header().Get(etagResponseHeader))
	assert.NotEmpty(t, rec.Header().Get(consistencyTokenHeader))
	assert.Equal(t, ifConsistentWithHeader, rec.Header().Get(varyHeader))
}

func TestBoundary_DoesNotOverrideHandlerSetToken(t *testing.T) {
	boundary, _ := testBoundary(t)
	handler := boundary.Handle(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(consistencyTokenHeader, "handler-set-token")
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/widgets", nil)
	req.Header.Set(tenantHeader, "tenant-a")
	rec := httptest.NewRecorder()
	handler(rec, req)

	assert.Equal(t, "handler-set-token", rec.Header().Get(consistencyTokenHeader))
}

func TestBoundary_SkipsTokenEmissionOnError(t *testing.T) {
	boundary, _ := testBoundary(t)
	handler := boundary.Handle(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusConflict)
	})

	req := httptest.NewRequest(http.MethodPost, "/widgets", nil)
	req.Header.Set(tenantHeader, "tenant-a")
	rec := httptest.NewRecorder()
	handler(rec, req)

	assert.Empty(t, rec.Header().Get(consistencyTokenHeader))
}

func TestBoundary_MergesVaryHeaderOnce(t *testing.T) {
	boundary, _ := testBoundary(t)
	handler := boundary.Handle(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Add(varyHeader, "Accept-Encoding")
		w.Header().Add(varyHeader, "if-consistent-with")
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/widgets", nil)
	req.Header.Set(tenantHeader, "tenant-a")
	rec := httptest.NewRecorder()
	handler(rec, req)

	assert.Equal(t, []string{"Accept-Encoding", "if-consistent-with"}, rec.Header().Values(varyHeader))
}

func TestBoundary_RYWWaitsThenProceeds(t *testing.T) {
	boundary, engine := testBoundary(t)

	ctx, scope, err := engine.OpenRequest(httptest.NewRequest(http.MethodGet, "/", nil).Context(), "tenant-a", "", "")
	require.NoError(t, err)
	require.NoError(t, engine.MarkWriteNow(ctx))
	priorToken, err := engine.EmitTokenForCurrentTenant(ctx, token.AbsentVersion)
	require.NoError(t, err)
	scope.Close()

	handler := boundary.Handle(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/widgets", nil)
	req.Header.Set(tenantHeader, "tenant-a")
	req.Header.Set(ifConsistentWithHeader, priorToken)
	rec := httptest.NewRecorder()
	handler(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("X-Consistency-Stale"))
}
