// Package middleware holds the thin HTTP boundary adapter: the only
// layer that speaks HTTP, translating request/response headers into
// calls against the consistency engine.
package middleware

import (
	"context"
	"net/http"
	"strings"
	"sync"

	"github.com/zeromicro/go-zero/core/logx"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/txsubstrate/platform/pkg/consistency"
	"github.com/txsubstrate/platform/pkg/etag"
	"github.com/txsubstrate/platform/pkg/tenant"
	"github.com/txsubstrate/platform/pkg/token"
)

// tracer emits one span per boundary-wrapped request.
var tracer = otel.Tracer("github.com/txsubstrate/platform/shared/middleware")

const (
	tenantHeader           = "X-Tenant-Id"
	ifConsistentWithHeader = "If-Consistent-With"
	consistencyTokenHeader = "X-Consistency-Token"
	varyHeader             = "Vary"
	etagResponseHeader     = "ETag"
)

// exactAllowlist and prefixAllowlist name the paths the boundary never
// opens a consistency scope for.
var exactAllowlist = map[string]bool{
	"/error":       true,
	"/favicon.ico": true,
}

var prefixAllowlist = []string{"/actuator", "/internal", "/_internal"}

func isSkipped(r *http.Request) bool {
	if r.Method == http.MethodOptions {
		return true
	}
	if exactAllowlist[r.URL.Path] {
		return true
	}
	for _, prefix := range prefixAllowlist {
		if strings.HasPrefix(r.URL.Path, prefix) {
			return true
		}
	}
	return false
}

// Boundary opens and closes a consistency scope around every
// non-allowlisted request.
type Boundary struct {
	engine *consistency.Engine
}

func NewBoundary(engine *consistency.Engine) *Boundary {
	return &Boundary{engine: engine}
}

func (b *Boundary) Handle(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if isSkipped(r) {
			next(w, r)
			return
		}

		tenantID := r.Header.Get(tenantHeader)
		if _, err := tenant.Parse(tenantID); err != nil {
			http.Error(w, "invalid or missing "+tenantHeader, http.StatusBadRequest)
			return
		}

		spanCtx, span := tracer.Start(r.Context(), "consistency.request")
		span.SetAttributes(attribute.String("tenant.id", tenantID), attribute.String("http.method", r.Method))
		defer span.End()
		r = r.WithContext(spanCtx)

		ctx, scope, err := b.engine.OpenRequest(r.Context(), tenantID,
			r.Header.Get(ifConsistentWithHeader), r.Header.Get(consistencyTokenHeader))
		if err != nil {
			span.RecordError(err)
			logx.WithContext(r.Context()).Errorf("boundary: open scope failed: %v", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		defer scope.Close()

		if ifMatch := r.Header.Get("If-Match"); ifMatch != "" {
			scope.SetIfMatch(ifMatch)
		}

		if r.Method == http.MethodGet || r.Method == http.MethodHead {
			if _, has := scope.IfConsistentWith(); has {
				if !b.engine.WaitReadYourWrites(ctx, scope) {
					w.Header().Set("X-Consistency-Stale", "true")
				}
			}
		}

		ctx = withVersionHolder(ctx)
		rec := &finalizingWriter{
			ResponseWriter: w,
			finalize: func(h http.Header, status int) {
				b.finalizeHeaders(ctx, h, status)
			},
		}

		next(rec, r.WithContext(ctx))

		// A handler that returned without writing anything gets the
		// implicit 200 from net/http after this middleware returns, so the
		// header map is still mutable here.
		rec.finalizeOnce(http.StatusOK)
	}
}

// finalizeHeaders applies the boundary's response advice to the header
// map. It must run before the first byte of the response is written:
// net/http snapshots headers at WriteHeader time and silently drops
// later mutations.
func (b *Boundary) finalizeHeaders(ctx context.Context, h http.Header, status int) {
	mergeVary(h)

	if status >= 400 {
		return
	}

	if h.Get(etagResponseHeader) == "" {
		if v, ok := versionFromContext(ctx); ok {
			h.Set(etagResponseHeader, v.Strong())
		}
	}

	if h.Get(consistencyTokenHeader) == "" {
		var version uint64
		if v, ok := versionFromContext(ctx); ok {
			version = uint64(v)
		}
		compact, err := b.engine.EmitTokenForCurrentTenant(ctx, token.PresentVersion(version))
		if err != nil {
			logx.WithContext(ctx).Errorf("boundary: emit token failed: %v", err)
		} else {
			h.Set(consistencyTokenHeader, compact)
		}
	}
}

// finalizingWriter invokes finalize exactly once, just before the first
// WriteHeader or Write reaches the underlying ResponseWriter, so the
// boundary's completion headers land while the header map still counts.
type finalizingWriter struct {
	http.ResponseWriter
	finalize  func(h http.Header, status int)
	finalized bool
}

func (s *finalizingWriter) finalizeOnce(status int) {
	if s.finalized {
		return
	}
	s.finalized = true
	s.finalize(s.Header(), status)
}

func (s *finalizingWriter) WriteHeader(code int) {
	s.finalizeOnce(code)
	s.ResponseWriter.WriteHeader(code)
}

func (s *finalizingWriter) Write(p []byte) (int, error) {
	s.finalizeOnce(http.StatusOK)
	return s.ResponseWriter.Write(p)
}

// mergeVary adds If-Consistent-With to the Vary header exactly once,
// case-insensitively.
func mergeVary(h http.Header) {
	existing := h.Values(varyHeader)
	for _, v := range existing {
		for _, part := range strings.Split(v, ",") {
			if strings.EqualFold(strings.TrimSpace(part), ifConsistentWithHeader) {
				return
			}
		}
	}
	h.Add(varyHeader, ifConsistentWithHeader)
}

type versionHolderKey struct{}

type versionHolder struct {
	mu      sync.Mutex
	version etag.EntityVersion
	has     bool
}

func withVersionHolder(ctx context.Context) context.Context {
	return context.WithValue(ctx, versionHolderKey{}, &versionHolder{})
}

// SetEntityVersion lets a handler record the positive entity version its
// response body exposes, so the boundary can derive a strong ETag and
// propagate the version into the emitted consistency token.
func SetEntityVersion(ctx context.Context, v etag.EntityVersion) {
	holder, ok := ctx.Value(versionHolderKey{}).(*versionHolder)
	if !ok {
		return
	}
	holder.mu.Lock()
	defer holder.mu.Unlock()
	holder.version = v
	holder.has = true
}

func versionFromContext(ctx context.Context) (etag.EntityVersion, bool) {
	holder, ok := ctx.Value(versionHolderKey{}).(*versionHolder)
	if !ok {
		return 0, false
	}
	holder.mu.Lock()
	defer holder.mu.Unlock()
	return holder.version, holder.has
}
