package config

import (
	"github.com/zeromicro/go-zero/core/service"

	"github.com/txsubstrate/platform/third_party/database"
)

// KafkaConfig names the franz-go seed brokers the drainer publishes to.
type KafkaConfig struct {
	Brokers []string `json:",env=KAFKA_BROKERS"`
}

// SchedulerConfig mirrors pkg/outbox.SchedulerConfig in millisecond form,
// the way go-zero yaml config blocks are conventionally expressed.
type SchedulerConfig struct {
	InitialDelayMillis     int64 `json:",default=0"`
	IntervalMillis         int64 `json:",default=500"`
	BurstBatches           int   `json:",default=10"`
	MaxBurstDurationMillis int64 `json:",default=5000"`
	IdleSleepMillis        int64 `json:",default=500"`
}

// OutboxConfig mirrors shared/config's drainer tunables so the worker can
// run standalone without pulling in the boundary service's full Config.
type OutboxConfig struct {
	BatchSize         int   `json:",default=100"`
	Parallelism       int64 `json:",default=8"`
	MaxAttempts       int   `json:",default=8"`
	BaseBackoffMillis int64 `json:",default=500"`
	MaxBackoffMillis  int64 `json:",default=300000"`
	Scheduler         SchedulerConfig
}

// HousekeeperConfig mirrors pkg/outbox.HousekeeperConfig.
type HousekeeperConfig struct {
	IntervalMinutes       int64 `json:",default=60"`
	RetentionHours        int64 `json:",default=168"`
	BatchSize             int   `json:",default=10000"`
	DedupeIntervalMinutes int64 `json:",default=60"`
	DedupeBatchSize       int   `json:",default=10000"`
}

// MetricsConfig exposes the Prometheus scrape endpoint this standalone
// worker serves, since it has no rest.Server of its own to piggyback on.
type MetricsConfig struct {
	Host string `json:",default=0.0.0.0"`
	Port int    `json:",default=9101"`
}

// Config is the outbox drainer worker's process configuration. It embeds
// service.ServiceConf rather than rest.RestConf, since this process
// serves no HTTP traffic of its own.
type Config struct {
	service.ServiceConf
	Database    database.PostgresConfig
	Kafka       KafkaConfig
	Outbox      OutboxConfig
	Housekeeper HousekeeperConfig
	Metrics     MetricsConfig
}
