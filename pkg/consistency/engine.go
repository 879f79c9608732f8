package consistency

import (
	"context"
	"runtime"
	"time"

	"github.com/zeromicro/go-zero/core/logx"

	"github.com/txsubstrate/platform/pkg/token"
	"github.com/txsubstrate/platform/pkg/watermark"
)

// Metrics receives observability events the engine emits but does not
// itself export; the HTTP boundary or a Prometheus adapter wires an
// implementation. A nil Metrics is safe to use (all methods are no-ops via
// noopMetrics).
type Metrics interface {
	TokenInvalid(tenant, reason string)
	RYWTimeout(tenant string)
}

type noopMetrics struct{}

func (noopMetrics) TokenInvalid(string, string) {}
func (noopMetrics) RYWTimeout(string)           {}

// Config holds the engine's timing tunables.
type Config struct {
	TokenTTL       time.Duration
	ClockSkew      time.Duration
	RYWMaxWait     time.Duration
	RYWInitialPoll time.Duration
	RYWMaxPoll     time.Duration
}

// Engine is the consistency engine. It is safe for concurrent use by
// many request-handling goroutines.
type Engine struct {
	cfg     Config
	store   watermark.Store
	signer  token.Signer
	metrics Metrics
	now     func() time.Time
}

// New builds an Engine. now defaults to time.Now if nil; tests may inject
// a deterministic clock.
func New(cfg Config, store watermark.Store, signer token.Signer, metrics Metrics, now func() time.Time) *Engine {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	if now == nil {
		now = time.Now
	}
	return &Engine{cfg: cfg, store: store, signer: signer, metrics: metrics, now: now}
}

func (e *Engine) nowMillis() int64 { return e.now().UnixMilli() }

// validToken enforces the token acceptance invariants: tenant match,
// positive payload timestamps, and age within tokenTTL+skew.
func (e *Engine) validToken(tok token.Token, tenant string) bool {
	if tok.Tenant != tenant {
		return false
	}
	if tok.IssuedAt <= 0 || tok.Watermark <= 0 {
		return false
	}
	age := e.nowMillis() - tok.IssuedAt
	if age < 0 {
		age = 0
	}
	maxAge := (e.cfg.TokenTTL + e.cfg.ClockSkew).Milliseconds()
	return age <= maxAge
}

// OpenRequest opens a request scope. It parses and verifies both optional
// tokens, seeds the watermark from priorToken when valid, and returns a
// context carrying the new Scope plus the Scope itself for direct use
// (e.g. RYW waiting before handler dispatch).
//
// Malformed or cross-tenant tokens are never treated as errors: they are
// silently treated as if absent, with a metric emitted so operators can
// see the rejection rate.
func (e *Engine) OpenRequest(ctx context.Context, tenant string, ifConsistentWithCompact, priorTokenCompact string) (context.Context, *Scope, error) {
	parent, _ := FromContext(ctx)
	scope := &Scope{tenant: tenant, startedAt: e.now(), parent: parent}

	if ifConsistentWithCompact != "" {
		if tok, ok := token.ParseAndVerify(ifConsistentWithCompact, e.signer); ok && e.validToken(tok, tenant) {
			t := tok
			scope.ifConsistentWith = &t
		} else {
			e.metrics.TokenInvalid(tenant, "if-consistent-with")
		}
	}

	if priorTokenCompact != "" {
		if tok, ok := token.ParseAndVerify(priorTokenCompact, e.signer); ok && e.validToken(tok, tenant) {
			t := tok
			scope.priorToken = &t
			if _, err := e.store.AdvanceAtLeast(ctx, tenant, tok.Watermark); err != nil {
				return ctx, nil, err
			}
		} else {
			e.metrics.TokenInvalid(tenant, "prior-token")
		}
	}

	return scope.Context(ctx), scope, nil
}

// MarkWriteNow advances the current scope's tenant watermark to now.
// Handlers must call this after every successful write a subsequent
// read-your-writes should be able to observe. Panics with ErrNoScope if
// ctx carries no open scope: that is a programming error, not a
// validation error, and is expected to be recovered into a 500 at the
// HTTP boundary rather than silently ignored.
func (e *Engine) MarkWriteNow(ctx context.Context) error {
	scope, ok := FromContext(ctx)
	if !ok {
		panic(ErrNoScope)
	}
	_, err := e.store.AdvanceAtLeast(ctx, scope.tenant, e.nowMillis())
	return err
}

// EmitTokenForCurrentTenant builds and signs a token bound to the
// tenant's current watermark and an optional entity version. Panics with
// ErrNoScope if ctx carries no open scope.
func (e *Engine) EmitTokenForCurrentTenant(ctx context.Context, version token.Version) (string, error) {
	scope, ok := FromContext(ctx)
	if !ok {
		panic(ErrNoScope)
	}
	wm, err := e.store.Current(ctx, scope.tenant)
	if err != nil {
		return "", err
	}
	return token.Encode(token.Token{
		Tenant:    scope.tenant,
		IssuedAt:  e.nowMillis(),
		Watermark: wm,
		Version:   version,
	}, e.signer)
}

// WaitReadYourWrites blocks until the tenant's watermark has caught up to
// scope's IfConsistentWith token, or until cfg.RYWMaxWait elapses,
// whichever comes first. It returns true if the watermark caught up and
// false on timeout or context cancellation; in both false cases the
// caller proceeds best-effort with a possibly stale read.
func (e *Engine) WaitReadYourWrites(ctx context.Context, scope *Scope) bool {
	target, ok := scope.IfConsistentWith()
	if !ok {
		return true
	}

	deadline := e.now().Add(e.cfg.RYWMaxWait)
	poll := e.cfg.RYWInitialPoll
	if poll <= 0 {
		poll = time.Millisecond
	}

	for {
		cur, err := e.store.Current(ctx, scope.tenant)
		if err != nil {
			logx.WithContext(ctx).Errorf("consistency: watermark read failed during RYW wait: %v", err)
		} else if cur >= target.Watermark {
			return true
		}

		remaining := deadline.Sub(e.now())
		if remaining <= 0 {
			e.metrics.RYWTimeout(scope.tenant)
			return false
		}

		wait := poll
		if wait > remaining {
			wait = remaining
		}

		if !e.sleep(ctx, wait) {
			return false
		}

		poll *= 2
		if poll > e.cfg.RYWMaxPoll {
			poll = e.cfg.RYWMaxPoll
		}
	}
}

// sleep waits for d, honoring ctx cancellation, and busy-spins with
// runtime.Gosched for sub-millisecond waits where a timer's own overhead
// would dominate the wait itself.
func (e *Engine) sleep(ctx context.Context, d time.Duration) bool {
	if d < time.Millisecond {
		deadline := e.now().Add(d)
		for e.now().Before(deadline) {
			if ctx.Err() != nil {
				return false
			}
			runtime.Gosched()
		}
		return ctx.Err() == nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
