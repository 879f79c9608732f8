package svc

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	mongooptions "go.mongodb.org/mongo-driver/mongo/options"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/txsubstrate/platform/migrations"
	"github.com/txsubstrate/platform/pkg/consistency"
	"github.com/txsubstrate/platform/pkg/dedupe"
	"github.com/txsubstrate/platform/pkg/outbox"
	"github.com/txsubstrate/platform/pkg/token"
	"github.com/txsubstrate/platform/pkg/watermark"
	"github.com/txsubstrate/platform/services/consistencysvc/internal/config"
	"github.com/txsubstrate/platform/shared/middleware"
	"github.com/txsubstrate/platform/shared/repository"
	"github.com/txsubstrate/platform/third_party/cache"
	"github.com/txsubstrate/platform/third_party/database"
	"github.com/txsubstrate/platform/third_party/metrics"
)

// ServiceContext wires every component the boundary depends on: one
// struct built once at startup and threaded through every handler.
type ServiceContext struct {
	Config      config.Config
	DB          *sqlx.DB
	Redis       *redis.Client
	Mongo       *mongo.Client
	Boundary    *middleware.Boundary
	Consistency *consistency.Engine
	Dedupe      *dedupe.Engine
	Idempotency *repository.IdempotencyStore
	Outbox      *outbox.Repository
	Metrics     *metrics.Registry
}

func NewServiceContext(c config.Config) *ServiceContext {
	if err := migrations.Up(database.DSN(c.Database)); err != nil {
		panic(err)
	}

	db, err := database.NewPostgresConnection(c.Database)
	if err != nil {
		panic(err)
	}

	redisClient, err := cache.NewRedisConnection(c.Redis)
	if err != nil {
		panic(err)
	}

	mongoCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	mongoClient, err := mongo.Connect(mongoCtx, mongooptions.Client().ApplyURI(c.Mongo.URI))
	if err != nil {
		panic(err)
	}

	idempotencyStore, err := repository.NewIdempotencyStore(mongoCtx, mongoClient.Database(c.Mongo.Database))
	if err != nil {
		panic(err)
	}

	signer := token.NewHMACSigner(c.Signing.KeyID, []byte(c.Signing.Key))
	for kid, key := range c.Signing.PreviousKeys {
		signer.AddKey(kid, []byte(key))
	}

	watermarkStore := watermark.NewRedisStore(redisClient)

	engineCfg := consistency.Config{
		TokenTTL:       time.Duration(c.Consistency.TokenTTLSeconds) * time.Second,
		ClockSkew:      time.Duration(c.Consistency.ClockSkewSeconds) * time.Second,
		RYWMaxWait:     time.Duration(c.Consistency.RYWMaxWaitMillis) * time.Millisecond,
		RYWInitialPoll: time.Duration(c.Consistency.RYWInitialPollMillis) * time.Millisecond,
		RYWMaxPoll:     time.Duration(c.Consistency.RYWMaxPollMillis) * time.Millisecond,
	}
	metricsRegistry := metrics.New()
	engine := consistency.New(engineCfg, watermarkStore, signer, metricsRegistry, nil)

	gormDB, err := gorm.Open(postgres.Open(database.DSN(c.Database)), &gorm.Config{})
	if err != nil {
		panic(err)
	}
	dedupeStore := dedupe.NewGormStore(gormDB)
	policyProvider := dedupe.NewRedisPolicyProvider(redisClient, dedupe.Policy{
		MinAcceptedVersion: c.Dedupe.MinAcceptedVersion,
		ReplayWindow:       time.Duration(c.Dedupe.ReplayWindowSeconds) * time.Second,
		MaxFutureSkew:      time.Duration(c.Dedupe.MaxFutureSkewSeconds) * time.Second,
	})
	dedupeEngine := dedupe.New(
		dedupeStore,
		policyProvider,
		time.Duration(c.Dedupe.TTLSeconds)*time.Second,
		dedupe.WithFastCache(dedupe.NewRedisFastCache(redisClient)),
		dedupe.WithMetrics(metricsRegistry),
	)

	return &ServiceContext{
		Config:      c,
		DB:          db,
		Redis:       redisClient,
		Mongo:       mongoClient,
		Boundary:    middleware.NewBoundary(engine),
		Consistency: engine,
		Dedupe:      dedupeEngine,
		Idempotency: idempotencyStore,
		Outbox:      outbox.NewRepository(db),
		Metrics:     metricsRegistry,
	}
}
