package svc

import (
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/twmb/franz-go/pkg/kgo"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/txsubstrate/platform/migrations"
	"github.com/txsubstrate/platform/pkg/dedupe"
	"github.com/txsubstrate/platform/pkg/outbox"
	"github.com/txsubstrate/platform/services/outboxworker/internal/config"
	"github.com/txsubstrate/platform/third_party/database"
	"github.com/txsubstrate/platform/third_party/metrics"
)

// ServiceContext wires the drainer and its housekeeping sweep into a
// single struct built once at startup, the same role the boundary
// service's ServiceContext plays for the HTTP side.
type ServiceContext struct {
	Config      config.Config
	DB          *sqlx.DB
	Scheduler   *outbox.Scheduler
	Housekeeper *outbox.Housekeeper
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

	gormDB, err := gorm.Open(postgres.Open(database.DSN(c.Database)), &gorm.Config{})
	if err != nil {
		panic(err)
	}
	dedupeStore := dedupe.NewGormStore(gormDB)

	kafkaClient, err := kgo.NewClient(kgo.SeedBrokers(c.Kafka.Brokers...))
	if err != nil {
		panic(err)
	}

	metricsRegistry := metrics.New()

	repo := outbox.NewRepository(db)
	publisher := outbox.NewKafkaPublisher(kafkaClient)
	drainer := outbox.NewDrainer(outbox.Config{
		BatchSize:   c.Outbox.BatchSize,
		Concurrency: c.Outbox.Parallelism,
		MaxAttempts: c.Outbox.MaxAttempts,
		BaseBackoff: time.Duration(c.Outbox.BaseBackoffMillis) * time.Millisecond,
		MaxBackoff:  time.Duration(c.Outbox.MaxBackoffMillis) * time.Millisecond,
	}, repo, publisher, metricsRegistry)

	scheduler := outbox.NewScheduler(drainer, outbox.SchedulerConfig{
		InitialDelay:     time.Duration(c.Outbox.Scheduler.InitialDelayMillis) * time.Millisecond,
		Interval:         time.Duration(c.Outbox.Scheduler.IntervalMillis) * time.Millisecond,
		BurstBatches:     c.Outbox.Scheduler.BurstBatches,
		MaxBurstDuration: time.Duration(c.Outbox.Scheduler.MaxBurstDurationMillis) * time.Millisecond,
		IdleSleep:        time.Duration(c.Outbox.Scheduler.IdleSleepMillis) * time.Millisecond,
	})

	housekeeper := outbox.NewHousekeeper(outbox.HousekeeperConfig{
		Interval:       time.Duration(c.Housekeeper.IntervalMinutes) * time.Minute,
		Retention:      time.Duration(c.Housekeeper.RetentionHours) * time.Hour,
		BatchSize:      c.Housekeeper.BatchSize,
		DedupeInterval: time.Duration(c.Housekeeper.DedupeIntervalMinutes) * time.Minute,
		DedupeBatch:    c.Housekeeper.DedupeBatchSize,
	}, repo, dedupeStore)

	return &ServiceContext{
		Config:      c,
		DB:          db,
		Scheduler:   scheduler,
		Housekeeper: housekeeper,
		Metrics:     metricsRegistry,
	}
}
