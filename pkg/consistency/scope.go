// Package consistency implements the request-scope lifecycle, precondition
// forwarding, and read-your-writes guard.
package consistency

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/txsubstrate/platform/pkg/token"
)

type ctxKey struct{}

// Scope is the request-scoped consistency state installed by OpenRequest.
// Scopes nest: opening a new scope on a context that already carries one
// captures the outer scope as parent, and closing restores nothing by
// itself — callers restore the parent by simply reverting to the context
// value they held before the nested Open, matching the "stackable, close
// restores prior state" contract without any ambient mutable global.
type Scope struct {
	tenant           string
	ifConsistentWith *token.Token
	priorToken       *token.Token
	rawIfMatch       string
	hasIfMatch       bool
	startedAt        time.Time
	parent           *Scope
	closed           atomic.Bool
}

// Tenant returns the tenant this scope was opened for.
func (s *Scope) Tenant() string { return s.tenant }

// IfConsistentWith returns the parsed, verified token carried by the
// incoming If-Consistent-With header, if any.
func (s *Scope) IfConsistentWith() (token.Token, bool) {
	if s.ifConsistentWith == nil {
		return token.Token{}, false
	}
	return *s.ifConsistentWith, true
}

// PriorToken returns the parsed, verified prior X-Consistency-Token, if
// any.
func (s *Scope) PriorToken() (token.Token, bool) {
	if s.priorToken == nil {
		return token.Token{}, false
	}
	return *s.priorToken, true
}

// SetIfMatch installs the raw If-Match header value for write handlers.
// The engine never enforces the precondition itself; the resource
// handler does, using the version data carried here.
func (s *Scope) SetIfMatch(raw string) {
	s.rawIfMatch = raw
	s.hasIfMatch = true
}

// IfMatch returns the raw If-Match header value, if the boundary set one.
func (s *Scope) IfMatch() (string, bool) {
	return s.rawIfMatch, s.hasIfMatch
}

// StartedAt returns when the scope was opened.
func (s *Scope) StartedAt() time.Time { return s.startedAt }

// Parent returns the enclosing scope, or nil at the outermost nesting
// level.
func (s *Scope) Parent() *Scope { return s.parent }

// Close marks the scope closed. It is idempotent and safe to call more
// than once or from a deferred statement after an early return.
func (s *Scope) Close() { s.closed.Store(true) }

// Closed reports whether Close has been called.
func (s *Scope) Closed() bool { return s.closed.Load() }

// Context returns a context.Context carrying s, for use by downstream
// handler code and by EmitTokenForCurrentTenant/MarkWriteNow.
func (s *Scope) Context(parent context.Context) context.Context {
	return context.WithValue(parent, ctxKey{}, s)
}

// FromContext extracts the innermost open Scope from ctx, if any.
func FromContext(ctx context.Context) (*Scope, bool) {
	s, ok := ctx.Value(ctxKey{}).(*Scope)
	return s, ok
}
