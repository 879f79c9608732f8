// Package outbox implements the transactional outbox drainer:
// claim-and-publish with bounded retries, per-aggregate ordering via the
// publisher's key, and operator quarantine.
package outbox

import (
	"time"

	"github.com/google/uuid"
)

// Status is an outbox row's lifecycle state. PUBLISHED and QUARANTINED
// are terminal; RETRY marks a failed attempt waiting out its backoff
// before becoming eligible for claim again.
type Status string

const (
	StatusPending     Status = "PENDING"
	StatusInProgress  Status = "IN_PROGRESS"
	StatusPublished   Status = "PUBLISHED"
	StatusRetry       Status = "RETRY"
	StatusQuarantined Status = "QUARANTINED"
)

// Row is a pending domain message co-committed with business state and
// drained to the bus asynchronously. Priority orders claims ahead of the
// FIFO created_at tiebreak.
type Row struct {
	ID            uuid.UUID  `db:"id"`
	TenantID      string     `db:"tenant_id"`
	Topic         string     `db:"topic"`
	EventKey      *string    `db:"event_key"`
	AggregateType *string    `db:"aggregate_type"`
	AggregateID   *string    `db:"aggregate_id"`
	EventType     *string    `db:"event_type"`
	EntityVersion *int64     `db:"entity_version"`
	Payload       []byte     `db:"payload"`
	Headers       []byte     `db:"headers"` // JSON-encoded map[string]string, nil if absent
	Priority      int        `db:"priority"`
	CreatedAt     time.Time  `db:"created_at"`
	AvailableAt   time.Time  `db:"available_at"`
	PublishedAt   *time.Time `db:"published_at"`
	Partition     *int32     `db:"partition"`
	Offset        *int64     `db:"kafka_offset"`
	ClaimedBy     *string    `db:"claimed_by"`
	Status        Status     `db:"status"`
	Attempts      int        `db:"attempts"`
	LastError     *string    `db:"last_error"`
	RowVersion    int64      `db:"row_version"`
}

// NewRow builds a PENDING row ready for insertion, stamping CreatedAt and
// AvailableAt to now.
func NewRow(tenantID, topic string, payload []byte, now time.Time) Row {
	return Row{
		ID:          uuid.New(),
		TenantID:    tenantID,
		Topic:       topic,
		Payload:     payload,
		CreatedAt:   now,
		AvailableAt: now,
		Status:      StatusPending,
	}
}
