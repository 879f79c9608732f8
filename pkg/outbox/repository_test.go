package outbox

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
)

func newMockRepository(t *testing.T) (*Repository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewRepository(sqlx.NewDb(db, "postgres")), mock
}

func TestRepository_ClaimUsesSkipLockedAndReturnsRows(t *testing.T) {
	repo, mock := newMockRepository(t)
	ctx := context.Background()
	id := uuid.New()
	now := time.Now()

	cols := []string{
		"id", "tenant_id", "topic", "event_key", "aggregate_type", "aggregate_id", "event_type",
		"entity_version", "payload", "headers", "priority", "created_at", "available_at", "published_at",
		"partition", "kafka_offset", "claimed_by", "status", "attempts", "last_error", "row_version",
	}
	rows := sqlmock.NewRows(cols).AddRow(
		id, "tenant-a", "topic.a", nil, nil, nil, nil,
		nil, []byte(`{}`), nil, 0, now, now, nil,
		nil, nil, "worker-1", "IN_PROGRESS", 1, nil, 0,
	)

	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE outbox_rows SET status = 'IN_PROGRESS'").
		WithArgs(10, sqlmock.AnyArg()).
		WillReturnRows(rows)
	mock.ExpectCommit()

	claimed, err := repo.Claim(ctx, 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	require.Equal(t, StatusInProgress, claimed[0].Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_ClaimRollsBackOnQueryError(t *testing.T) {
	repo, mock := newMockRepository(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE outbox_rows SET status = 'IN_PROGRESS'").
		WithArgs(10, sqlmock.AnyArg()).
		WillReturnError(assertError{"boom"})
	mock.ExpectRollback()

	_, err := repo.Claim(ctx, 10)
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_MarkPublishedUpdatesTerminalState(t *testing.T) {
	repo, mock := newMockRepository(t)
	ctx := context.Background()
	id := uuid.New().String()

	mock.ExpectExec(`(?s)UPDATE outbox_rows\s+SET status = 'PUBLISHED'`).
		WithArgs(id, sqlmock.AnyArg(), int32(2), int64(42)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.MarkPublished(ctx, id, 2, 42, time.Now())
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_RequeueOnlyAffectsQuarantinedRows(t *testing.T) {
	repo, mock := newMockRepository(t)
	ctx := context.Background()
	id := uuid.New().String()

	mock.ExpectExec(`(?s)UPDATE outbox_rows\s+SET status = 'PENDING'.*WHERE id = \$1 AND status = 'QUARANTINED'`).
		WithArgs(id, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Requeue(ctx, id, time.Now())
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEncodeDecodeHeaders_RoundTrips(t *testing.T) {
	in := map[string]string{"x-tenant-id": "tenant-a"}
	encoded, err := EncodeHeaders(in)
	require.NoError(t, err)

	out, err := DecodeHeaders(encoded)
	require.NoError(t, err)
	require.Equal(t, in, out)
}

func TestEncodeDecodeHeaders_EmptyIsNil(t *testing.T) {
	encoded, err := EncodeHeaders(nil)
	require.NoError(t, err)
	require.Nil(t, encoded)

	out, err := DecodeHeaders(nil)
	require.NoError(t, err)
	require.Nil(t, out)
}

type assertError struct{ msg string }

func (e assertError) Error() string { return e.msg }
