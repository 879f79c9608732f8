package outbox

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/txsubstrate/platform/shared/repository"
)

// Repository is the sqlx-backed outbox store, built on top of the shared
// BaseRepository's panic-safe transaction wrapper for the claim query.
type Repository struct {
	base   *repository.BaseRepository
	db     *sqlx.DB
	worker string
}

func NewRepository(db *sqlx.DB) *Repository {
	host, _ := os.Hostname()
	return &Repository{
		base:   repository.NewBaseRepository(db),
		db:     db,
		worker: host + "-" + uuid.NewString(),
	}
}

const claimQuery = `
UPDATE outbox_rows SET status = 'IN_PROGRESS', claimed_by = $2, attempts = attempts + 1
WHERE id IN (
	SELECT id FROM outbox_rows
	WHERE status IN ('PENDING', 'RETRY') AND available_at <= now()
	ORDER BY priority DESC, created_at ASC
	FOR UPDATE SKIP LOCKED
	LIMIT $1
)
RETURNING id, tenant_id, topic, event_key, aggregate_type, aggregate_id, event_type,
	entity_version, payload, headers, priority, created_at, available_at, published_at,
	partition, kafka_offset, claimed_by, status, attempts, last_error, row_version`

// Claim atomically claims up to batchSize eligible rows, using
// FOR UPDATE SKIP LOCKED so no two concurrent workers can claim the same
// row, and returns them IN_PROGRESS with attempts already incremented and
// claimed_by stamped with this process's worker identity.
func (r *Repository) Claim(ctx context.Context, batchSize int) ([]Row, error) {
	var rows []Row
	err := r.base.Transaction(ctx, func(tx *sqlx.Tx) error {
		return tx.SelectContext(ctx, &rows, claimQuery, batchSize, r.worker)
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// Insert writes a new PENDING row. Callers are expected to call this
// inside the same database transaction as the domain write it
// accompanies, co-committing outbox rows with business state.
func (r *Repository) Insert(ctx context.Context, row Row) error {
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO outbox_rows (
			id, tenant_id, topic, event_key, aggregate_type, aggregate_id, event_type,
			entity_version, payload, headers, priority, created_at, available_at, status,
			attempts, row_version
		) VALUES (
			:id, :tenant_id, :topic, :event_key, :aggregate_type, :aggregate_id, :event_type,
			:entity_version, :payload, :headers, :priority, :created_at, :available_at, :status,
			:attempts, :row_version
		)`, row)
	return err
}

// MarkPublished transitions a row to PUBLISHED, recording partition/offset
// and clearing any previous error. PUBLISHED is terminal: it can never be
// re-claimed (the claim query's status filter excludes it).
func (r *Repository) MarkPublished(ctx context.Context, id string, partition int32, offset int64, now time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE outbox_rows
		SET status = 'PUBLISHED', published_at = $2, partition = $3, kafka_offset = $4,
			last_error = NULL, row_version = row_version + 1
		WHERE id = $1`, id, now, partition, offset)
	return err
}

// MarkRetry transitions a row back to RETRY with a new availableAt and the
// latest error, for attempts below the configured maximum.
func (r *Repository) MarkRetry(ctx context.Context, id string, availableAt time.Time, lastErr string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE outbox_rows
		SET status = 'RETRY', available_at = $2, last_error = $3, row_version = row_version + 1
		WHERE id = $1`, id, availableAt, lastErr)
	return err
}

// MarkQuarantined transitions a row to the terminal QUARANTINED state.
func (r *Repository) MarkQuarantined(ctx context.Context, id string, lastErr string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE outbox_rows
		SET status = 'QUARANTINED', last_error = $2, row_version = row_version + 1
		WHERE id = $1`, id, lastErr)
	return err
}

// Requeue moves a QUARANTINED row back to PENDING with attempts reset.
// Quarantine recovery is strictly operator-driven: nothing in the drainer
// calls this. It is a no-op (no rows affected) if id is not currently
// QUARANTINED.
func (r *Repository) Requeue(ctx context.Context, id string, now time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE outbox_rows
		SET status = 'PENDING', attempts = 0, available_at = $2, last_error = NULL,
			row_version = row_version + 1
		WHERE id = $1 AND status = 'QUARANTINED'`, id, now)
	return err
}

// SweepPublished deletes PUBLISHED rows older than olderThan in bounded
// batches.
func (r *Repository) SweepPublished(ctx context.Context, olderThan time.Time, batchSize int) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM outbox_rows WHERE ctid IN (
			SELECT ctid FROM outbox_rows WHERE status = 'PUBLISHED' AND published_at < $1 LIMIT $2
		)`, olderThan, batchSize)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// EncodeHeaders serializes a header map into the row's opaque JSON column.
func EncodeHeaders(headers map[string]string) ([]byte, error) {
	if len(headers) == 0 {
		return nil, nil
	}
	return json.Marshal(headers)
}

// DecodeHeaders deserializes the row's opaque JSON headers column.
func DecodeHeaders(raw []byte) (map[string]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var headers map[string]string
	if err := json.Unmarshal(raw, &headers); err != nil {
		return nil, err
	}
	return headers, nil
}
