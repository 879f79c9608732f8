package dedupe

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// postgresUniqueViolation is the SQLSTATE Postgres reports for a unique
// index conflict.
const postgresUniqueViolation = "23505"

// dedupeRow is the GORM model backing the durable dedupe table. The
// composite primary key (tenant_id, event_id, version) is what makes the
// insert first-writer-wins.
type dedupeRow struct {
	TenantID    string `gorm:"column:tenant_id;primaryKey"`
	EventID     string `gorm:"column:event_id;primaryKey"`
	Version     uint64 `gorm:"column:version;primaryKey"`
	FirstSeenAt time.Time
	LastSeenAt  time.Time
	ExpiresAt   time.Time
	SeenCount   int64
}

func (dedupeRow) TableName() string { return "dedupe_rows" }

// GormStore is the durable, source-of-truth dedupe store, backed by gorm.io/gorm + gorm.io/driver/postgres.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Insert(ctx context.Context, row Row) (bool, error) {
	now := time.Now()
	rec := dedupeRow{
		TenantID:    row.Tenant,
		EventID:     row.EventID,
		Version:     row.Version,
		FirstSeenAt: now,
		LastSeenAt:  now,
		ExpiresAt:   now.Add(row.TTL),
		SeenCount:   1,
	}

	err := s.db.WithContext(ctx).Create(&rec).Error
	if err == nil {
		return true, nil
	}
	if isUniqueViolation(err) {
		return false, nil
	}
	return false, err
}

func (s *GormStore) BumpSeen(ctx context.Context, tenant, eventID string, version uint64) error {
	return s.db.WithContext(ctx).Model(&dedupeRow{}).
		Where("tenant_id = ? AND event_id = ? AND version = ?", tenant, eventID, version).
		Updates(map[string]interface{}{
			"seen_count":   gorm.Expr("seen_count + 1"),
			"last_seen_at": time.Now(),
		}).Error
}

// SweepExpired deletes dedupe rows past their TTL in bounded batches.
func (s *GormStore) SweepExpired(ctx context.Context, batchSize int) (int64, error) {
	res := s.db.WithContext(ctx).Exec(
		`DELETE FROM dedupe_rows WHERE ctid IN (
			SELECT ctid FROM dedupe_rows WHERE expires_at <= now() LIMIT ?
		)`, batchSize,
	)
	return res.RowsAffected, res.Error
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == postgresUniqueViolation
	}
	return false
}
