// Package dedupe implements per-(tenant, eventId, version) at-most-once
// admission: fence evaluation, first-writer-wins persistence, and a
// best-effort fast-path cache in front of a fail-closed durable store.
package dedupe

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Decision is the outcome of CheckAndMark.
type Decision int

const (
	AcceptFirstSeen Decision = iota
	Duplicate
	QuarantineTooOldVersion
	QuarantineOutsideReplayWindow
	QuarantineFutureSkew
	QuarantineStoreError
)

func (d Decision) String() string {
	switch d {
	case AcceptFirstSeen:
		return "ACCEPT_FIRST_SEEN"
	case Duplicate:
		return "DUPLICATE"
	case QuarantineTooOldVersion:
		return "QUARANTINE_TOO_OLD_VERSION"
	case QuarantineOutsideReplayWindow:
		return "QUARANTINE_OUTSIDE_REPLAY_WINDOW"
	case QuarantineFutureSkew:
		return "QUARANTINE_FUTURE_SKEW"
	case QuarantineStoreError:
		return "QUARANTINE_STORE_ERROR"
	default:
		return "UNKNOWN"
	}
}

// IsQuarantine reports whether d is any of the quarantine variants.
func (d Decision) IsQuarantine() bool {
	return d == QuarantineTooOldVersion || d == QuarantineOutsideReplayWindow ||
		d == QuarantineFutureSkew || d == QuarantineStoreError
}

// Policy is the per-(tenant, family) fence configuration.
type Policy struct {
	MinAcceptedVersion uint64
	ReplayWindow       time.Duration
	MaxFutureSkew      time.Duration
}

// PolicyProvider resolves fence policy for a tenant and optional family.
type PolicyProvider interface {
	Resolve(ctx context.Context, tenant, family string) (Policy, error)
}

// Row is the durable dedupe row to persist on first sight of a key.
type Row struct {
	Tenant  string
	EventID string
	Version uint64
	TTL     time.Duration
}

// Store is the durable, source-of-truth dedupe store.
type Store interface {
	// Insert attempts a first-writer-wins insert. inserted=false with a
	// nil error means the key already existed (treat as DUPLICATE).
	Insert(ctx context.Context, row Row) (inserted bool, err error)
	// BumpSeen increments the seen counter for an existing row. It is
	// best-effort: failures never change the returned Decision.
	BumpSeen(ctx context.Context, tenant, eventID string, version uint64) error
}

// FastCache is the optional best-effort cache in front of Store.
type FastCache interface {
	// CheckAndSet writes key with ttl if absent. wasAbsent=true means this
	// call created the key (proceed to Store); wasAbsent=false means the
	// key was already present (short-circuit to DUPLICATE).
	CheckAndSet(ctx context.Context, key string, ttl time.Duration) (wasAbsent bool, err error)
}

// Metrics receives the engine's decision and latency events. A nil
// Metrics is replaced with a no-op.
type Metrics interface {
	Accept(tenant, family string)
	Duplicate(tenant, family string)
	Quarantine(tenant, family, reason string)
	Error(tenant, family string)
	StoreLatency(tenant, family string, d time.Duration)
}

type noopMetrics struct{}

func (noopMetrics) Accept(string, string)                      {}
func (noopMetrics) Duplicate(string, string)                   {}
func (noopMetrics) Quarantine(string, string, string)          {}
func (noopMetrics) Error(string, string)                       {}
func (noopMetrics) StoreLatency(string, string, time.Duration) {}

// MinTTL is the floor every dedupe row's TTL is clamped up to.
const MinTTL = 7 * 24 * time.Hour

// Engine is the dedupe engine.
type Engine struct {
	store    Store
	cache    FastCache // optional; nil disables the fast path
	policies PolicyProvider
	ttl      time.Duration
	metrics  Metrics
	now      func() time.Time
}

// Option configures an Engine at construction time.
type Option func(*Engine)

// WithFastCache installs a best-effort cache in front of the durable
// store.
func WithFastCache(c FastCache) Option {
	return func(e *Engine) { e.cache = c }
}

// WithMetrics installs an observability sink.
func WithMetrics(m Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithClock overrides the engine's notion of "now", for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New builds an Engine. ttl is clamped up to MinTTL.
func New(store Store, policies PolicyProvider, ttl time.Duration, opts ...Option) *Engine {
	if ttl < MinTTL {
		ttl = MinTTL
	}
	e := &Engine{store: store, policies: policies, ttl: ttl, metrics: noopMetrics{}, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// CheckAndMark evaluates the admission fences in order (version floor,
// future skew, replay window) and then attempts the first-writer-wins
// insert. eventTs is optional (nil skips all time-based fences); family
// is optional ("" resolves the default policy); operatorReplay, when
// true, skips the replay-window fence only.
func (e *Engine) CheckAndMark(ctx context.Context, tenantID, eventID string, version uint64, eventTs *time.Time, family string, operatorReplay bool) Decision {
	policy, err := e.policies.Resolve(ctx, tenantID, family)
	if err != nil {
		e.metrics.Error(tenantID, family)
		return QuarantineStoreError
	}

	if version < policy.MinAcceptedVersion {
		e.metrics.Quarantine(tenantID, family, "too_old_version")
		return QuarantineTooOldVersion
	}

	if eventTs != nil {
		now := e.now()
		if eventTs.After(now.Add(policy.MaxFutureSkew)) {
			e.metrics.Quarantine(tenantID, family, "future_skew")
			return QuarantineFutureSkew
		}
		if !operatorReplay && eventTs.Before(now.Add(-policy.ReplayWindow)) {
			e.metrics.Quarantine(tenantID, family, "outside_replay_window")
			return QuarantineOutsideReplayWindow
		}
	}

	start := e.now()
	decision := e.persist(ctx, tenantID, eventID, version)
	e.metrics.StoreLatency(tenantID, family, e.now().Sub(start))

	switch decision {
	case AcceptFirstSeen:
		e.metrics.Accept(tenantID, family)
	case Duplicate:
		e.metrics.Duplicate(tenantID, family)
	case QuarantineStoreError:
		e.metrics.Error(tenantID, family)
	}
	return decision
}

func (e *Engine) persist(ctx context.Context, tenantID, eventID string, version uint64) Decision {
	if e.cache != nil {
		key := cacheKey(tenantID, eventID, version)
		wasAbsent, err := e.cache.CheckAndSet(ctx, key, e.ttl)
		if err == nil && !wasAbsent {
			e.bumpSeenBestEffort(ctx, tenantID, eventID, version)
			return Duplicate
		}
		// Cache errors are swallowed: the cache is best-effort and the
		// durable store remains the source of truth.
	}

	inserted, err := e.store.Insert(ctx, Row{Tenant: tenantID, EventID: eventID, Version: version, TTL: e.ttl})
	if err != nil {
		return QuarantineStoreError
	}
	if !inserted {
		e.bumpSeenBestEffort(ctx, tenantID, eventID, version)
		return Duplicate
	}
	return AcceptFirstSeen
}

func (e *Engine) bumpSeenBestEffort(ctx context.Context, tenantID, eventID string, version uint64) {
	_ = e.store.BumpSeen(ctx, tenantID, eventID, version)
}

// cacheKey is a compact hash of tenant|eventId|version. Only the key
// itself is hashed, never event content, so cache keys are safe to log.
func cacheKey(tenant, eventID string, version uint64) string {
	h := sha256.New()
	h.Write([]byte(tenant))
	h.Write([]byte{'|'})
	h.Write([]byte(eventID))
	h.Write([]byte{'|'})
	h.Write([]byte{byte(version), byte(version >> 8), byte(version >> 16), byte(version >> 24),
		byte(version >> 32), byte(version >> 40), byte(version >> 48), byte(version >> 56)})
	return hex.EncodeToString(h.Sum(nil))[:32]
}
