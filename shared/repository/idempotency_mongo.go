package repository

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/txsubstrate/platform/shared/models"
)

const idempotencyCollectionName = "idempotency_records"

// IdempotencyStore persists the HTTP boundary's request-replay cache:
// document storage with a composite unique index plus a TTL index for
// automatic expiry.
type IdempotencyStore struct {
	collection *mongo.Collection
}

// NewIdempotencyStore connects to the idempotency_records collection and
// ensures its indexes exist.
func NewIdempotencyStore(ctx context.Context, db *mongo.Database) (*IdempotencyStore, error) {
	if db == nil {
		return nil, fmt.Errorf("idempotency store: database cannot be nil")
	}

	collection := db.Collection(idempotencyCollectionName)
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "tenant_id", Value: 1}, {Key: "request_key", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "expires_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(0),
		},
	}
	if _, err := collection.Indexes().CreateMany(ctx, indexes); err != nil {
		return nil, fmt.Errorf("idempotency store: create indexes: %w", err)
	}

	return &IdempotencyStore{collection: collection}, nil
}

// Put inserts a new record for (tenantId, requestKey). Records are
// immutable after insert, so this never upserts: a conflicting insert
// reports inserted=false rather than overwriting the original response
// snapshot.
func (s *IdempotencyStore) Put(ctx context.Context, rec models.IdempotencyRecord) (inserted bool, err error) {
	_, err = s.collection.InsertOne(ctx, rec)
	if err == nil {
		return true, nil
	}
	if mongo.IsDuplicateKeyError(err) {
		return false, nil
	}
	return false, fmt.Errorf("idempotency store: insert: %w", err)
}

// Get looks up a previously stored record for replay. The bool result is
// false (with a nil error) when no record exists yet.
func (s *IdempotencyStore) Get(ctx context.Context, tenantID, requestKey string) (models.IdempotencyRecord, bool, error) {
	filter := bson.M{
		"tenant_id":   tenantID,
		"request_key": requestKey,
		"expires_at":  bson.M{"$gt": time.Now()},
	}

	var rec models.IdempotencyRecord
	err := s.collection.FindOne(ctx, filter).Decode(&rec)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return models.IdempotencyRecord{}, false, nil
		}
		return models.IdempotencyRecord{}, false, fmt.Errorf("idempotency store: find: %w", err)
	}
	return rec, true, nil
}
