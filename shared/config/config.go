package config

import (
	"github.com/zeromicro/go-zero/rest"

	"github.com/txsubstrate/platform/third_party/cache"
	"github.com/txsubstrate/platform/third_party/database"
)

// Config is the boundary service's full configuration: go-zero's
// rest.RestConf plus the platform's own option blocks.
type Config struct {
	rest.RestConf
	Database    database.PostgresConfig
	Redis       cache.RedisConfig
	Mongo       MongoConfig
	Consistency ConsistencyConfig
	Outbox      OutboxConfig
	Dedupe      DedupeConfig
	Signing     SigningConfig
}

type MongoConfig struct {
	URI                 string `json:",env=MONGO_URI"`
	Database            string `json:",env=MONGO_DATABASE"`
	IdempotencyTTLHours int64  `json:",default=24"`
}

// SigningConfig names the HMAC key material the token codec signs and
// verifies with. KeyID/Key is the active signing key; PreviousKeys stay
// valid for Verify during a rotation window.
type SigningConfig struct {
	KeyID        string            `json:",env=SIGNING_KEY_ID"`
	Key          string            `json:",env=SIGNING_KEY"`
	PreviousKeys map[string]string `json:",optional"`
}

// ConsistencyConfig carries the consistency engine's timing tunables.
type ConsistencyConfig struct {
	TokenTTLSeconds      int64 `json:",default=60"`
	ClockSkewSeconds     int64 `json:",default=5"`
	RYWMaxWaitMillis     int64 `json:",default=2000"`
	RYWInitialPollMillis int64 `json:",default=5"`
	RYWMaxPollMillis     int64 `json:",default=200"`
}

// OutboxSchedulerConfig carries the drainer's fixed-delay scheduling
// knobs.
type OutboxSchedulerConfig struct {
	InitialDelayMillis     int64 `json:",default=0"`
	IntervalMillis         int64 `json:",default=500"`
	BurstBatches           int   `json:",default=10"`
	MaxBurstDurationMillis int64 `json:",default=5000"`
	IdleSleepMillis        int64 `json:",default=500"`
}

// OutboxConfig carries the drainer's tunables.
type OutboxConfig struct {
	BatchSize         int   `json:",default=100"`
	Parallelism       int64 `json:",default=8"`
	MaxAttempts       int   `json:",default=8"`
	BaseBackoffMillis int64 `json:",default=500"`
	MaxBackoffMillis  int64 `json:",default=300000"`
	Scheduler         OutboxSchedulerConfig
	Housekeeper       HousekeeperConfig
}

// HousekeeperConfig carries the retention-sweep tunables for PUBLISHED
// outbox rows and expired dedupe rows.
type HousekeeperConfig struct {
	IntervalMinutes       int64 `json:",default=60"`
	RetentionHours        int64 `json:",default=168"`
	BatchSize             int   `json:",default=10000"`
	DedupeIntervalMinutes int64 `json:",default=60"`
	DedupeBatchSize       int   `json:",default=10000"`
}

// DedupeConfig carries the dedupe engine's tunables.
type DedupeConfig struct {
	TTLSeconds           int64  `json:",default=604800"`
	MinAcceptedVersion   uint64 `json:",default=1"`
	ReplayWindowSeconds  int64  `json:",default=864000"`
	MaxFutureSkewSeconds int64  `json:",default=60"`
}
