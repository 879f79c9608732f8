// Package models holds the cross-cutting row/document shapes shared
// across services, as opposed to the row types each pkg/ component
// defines for itself (outbox.Row, dedupe.Row).
package models

import "time"

// IdempotencyRecord is a boundary-level cache of "I already handled this
// exact request" keyed by (tenantId, requestKey), immutable once
// inserted. It is distinct from dedupe.Row, which guards business-event
// processing rather than HTTP request replay.
type IdempotencyRecord struct {
	TenantID         string    `bson:"tenant_id"`
	RequestKey       string    `bson:"request_key"`
	RequestHash      string    `bson:"request_hash"`
	HTTPMethod       string    `bson:"http_method"`
	HTTPPath         string    `bson:"http_path"`
	ResponseSnapshot []byte    `bson:"response_snapshot"`
	StatusCode       int       `bson:"status_code"`
	CreatedAt        time.Time `bson:"created_at"`
	ExpiresAt        time.Time `bson:"expires_at"`
}
