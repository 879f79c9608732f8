package consistency

import "errors"

// ErrNoScope is the panic value used by MarkWriteNow and
// EmitTokenForCurrentTenant when called without an open scope in context.
// Calling either outside a request scope is a programming error, not a
// runtime validation failure, so it is surfaced rather than absorbed.
var ErrNoScope = errors.New("consistency: no open scope in context")
