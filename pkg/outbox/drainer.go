package outbox

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/zeromicro/go-zero/core/logx"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"
)

var tracer = otel.Tracer("github.com/txsubstrate/platform/pkg/outbox")

// Config tunes a Drainer's claim batch size, retry policy, and worker
// pool width.
type Config struct {
	BatchSize   int
	Concurrency int64
	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

func (c Config) withDefaults() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 8
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 8
	}
	if c.BaseBackoff <= 0 {
		c.BaseBackoff = 500 * time.Millisecond
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 5 * time.Minute
	}
	return c
}

// ClaimStore is the subset of Repository the Drainer depends on, split
// out so tests can exercise drain/backoff/quarantine logic against an
// in-memory fake instead of a live Postgres connection.
type ClaimStore interface {
	Claim(ctx context.Context, batchSize int) ([]Row, error)
	MarkPublished(ctx context.Context, id string, partition int32, offset int64, now time.Time) error
	MarkRetry(ctx context.Context, id string, availableAt time.Time, lastErr string) error
	MarkQuarantined(ctx context.Context, id string, lastErr string) error
}

// Drainer claims batches of outbox rows and publishes them with a
// bounded worker pool, retrying failures with exponential backoff and
// jitter before quarantining rows that exhaust their attempt budget.
type Drainer struct {
	cfg       Config
	repo      ClaimStore
	publisher Publisher
	metrics   Metrics
	sem       *semaphore.Weighted
	now       func() time.Time
}

func NewDrainer(cfg Config, repo ClaimStore, publisher Publisher, metrics Metrics) *Drainer {
	cfg = cfg.withDefaults()
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Drainer{
		cfg:       cfg,
		repo:      repo,
		publisher: publisher,
		metrics:   metrics,
		sem:       semaphore.NewWeighted(cfg.Concurrency),
		now:       time.Now,
	}
}

// DrainOnce claims one batch and publishes every row concurrently (bounded
// by Config.Concurrency), waiting for the whole batch to finish before
// returning. It returns the number of rows claimed.
func (d *Drainer) DrainOnce(ctx context.Context) (int, error) {
	rows, err := d.repo.Claim(ctx, d.cfg.BatchSize)
	if err != nil {
		return 0, err
	}
	d.metrics.ClaimBatchSize(len(rows))
	if len(rows) == 0 {
		return 0, nil
	}

	var wg sync.WaitGroup
	wg.Add(len(rows))
	for _, row := range rows {
		row := row
		if err := d.sem.Acquire(ctx, 1); err != nil {
			wg.Done()
			continue
		}
		go func() {
			defer d.sem.Release(1)
			defer wg.Done()
			d.publishOne(ctx, row)
		}()
	}
	wg.Wait()

	return len(rows), nil
}

func (d *Drainer) publishOne(ctx context.Context, row Row) {
	var span trace.Span
	ctx, span = tracer.Start(ctx, "outbox.publish", trace.WithAttributes(
		attribute.String("tenant.id", row.TenantID),
		attribute.String("outbox.topic", row.Topic),
		attribute.Int("outbox.attempts", row.Attempts),
	))
	defer span.End()

	result, err := d.publisher.Publish(ctx, row)
	if err == nil {
		if markErr := d.repo.MarkPublished(ctx, row.ID.String(), result.Partition, result.Offset, d.now()); markErr != nil {
			span.RecordError(markErr)
			logx.WithContext(ctx).Errorf("outbox: mark published failed for %s: %v", row.ID, markErr)
			return
		}
		d.metrics.Published(row.TenantID, row.Topic)
		return
	}
	span.RecordError(err)

	if row.Attempts >= d.cfg.MaxAttempts {
		if qErr := d.repo.MarkQuarantined(ctx, row.ID.String(), err.Error()); qErr != nil {
			logx.WithContext(ctx).Errorf("outbox: quarantine failed for %s: %v", row.ID, qErr)
			return
		}
		d.metrics.Quarantined(row.TenantID, row.Topic, "max_attempts_exceeded")
		return
	}

	delay := backoffWithJitter(row.Attempts, d.cfg.BaseBackoff, d.cfg.MaxBackoff)
	if retryErr := d.repo.MarkRetry(ctx, row.ID.String(), d.now().Add(delay), err.Error()); retryErr != nil {
		logx.WithContext(ctx).Errorf("outbox: mark retry failed for %s: %v", row.ID, retryErr)
		return
	}
	d.metrics.Retried(row.TenantID, row.Topic)
}

// backoffWithJitter computes base*2^(attempts-1) capped at max, plus up
// to 250ms of jitter to avoid synchronized retry storms across workers.
func backoffWithJitter(attempts int, base, max time.Duration) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	backoff := base
	for i := 1; i < attempts; i++ {
		backoff *= 2
		if backoff >= max {
			backoff = max
			break
		}
	}
	jitter := time.Duration(rand.Intn(200)+50) * time.Millisecond
	return backoff + jitter
}
