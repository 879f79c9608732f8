package outbox

import (
	"context"
	"sync"
	"time"

	"github.com/zeromicro/go-zero/core/logx"
)

// ShutdownGrace is the maximum time Stop waits for an in-flight tick to
// finish draining before returning anyway, so shutdown never blocks on a
// stuck publish.
const ShutdownGrace = 500 * time.Millisecond

// SchedulerConfig carries the fixed-delay scheduling knobs: an initial
// delay before the first tick, a steady-state tick interval, a per-tick
// burst cap (both by cycle count and wall-clock duration), and an idle
// sleep applied after a tick that found no rows, to reduce polling churn
// when the outbox is empty.
type SchedulerConfig struct {
	InitialDelay     time.Duration
	Interval         time.Duration
	BurstBatches     int
	MaxBurstDuration time.Duration
	IdleSleep        time.Duration
}

func (c SchedulerConfig) withDefaults() SchedulerConfig {
	if c.Interval <= 0 {
		c.Interval = 500 * time.Millisecond
	}
	if c.BurstBatches <= 0 {
		c.BurstBatches = 10
	}
	if c.MaxBurstDuration <= 0 {
		c.MaxBurstDuration = 5 * time.Second
	}
	if c.IdleSleep <= 0 {
		c.IdleSleep = c.Interval
	}
	return c
}

// Scheduler runs a Drainer on a fixed-delay tick, draining in bursts: each
// tick calls DrainOnce back-to-back (up to BurstBatches cycles, bounded by
// MaxBurstDuration), stopping early once a claim returns fewer rows than
// the batch size. A tick that found nothing waits IdleSleep before trying
// again instead of the steady-state Interval, so an empty outbox doesn't
// poll at full speed. Unlike Housekeeper, this does not use robfig/cron:
// cron's entry model has no notion of "keep draining while full batches
// keep coming back" or a distinct idle-vs-busy cadence, so the tick loop
// is a plain timer.
type Scheduler struct {
	drainer *Drainer
	cfg     SchedulerConfig
	now     func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewScheduler(drainer *Drainer, cfg SchedulerConfig) *Scheduler {
	return &Scheduler{drainer: drainer, cfg: cfg.withDefaults(), now: time.Now}
}

// Start schedules the drain loop and returns immediately. Call Stop to
// shut down gracefully.
func (s *Scheduler) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	s.mu.Lock()
	s.cancel = cancel
	s.done = done
	s.mu.Unlock()

	go func() {
		defer close(done)
		s.run(runCtx)
	}()
	return nil
}

func (s *Scheduler) run(ctx context.Context) {
	timer := time.NewTimer(s.cfg.InitialDelay)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		foundAny := s.burst(ctx)

		if ctx.Err() != nil {
			return
		}
		if foundAny {
			timer.Reset(s.cfg.Interval)
		} else {
			timer.Reset(s.cfg.IdleSleep)
		}
	}
}

// burst runs up to BurstBatches back-to-back DrainOnce cycles, stopping
// early on a short claim, a claim error, context cancellation, or once
// MaxBurstDuration has elapsed. It reports whether any row was claimed
// during the burst.
func (s *Scheduler) burst(ctx context.Context) bool {
	deadline := s.now().Add(s.cfg.MaxBurstDuration)
	foundAny := false

	for i := 0; i < s.cfg.BurstBatches; i++ {
		if ctx.Err() != nil {
			return foundAny
		}
		if s.now().After(deadline) {
			return foundAny
		}

		n, err := s.drainer.DrainOnce(ctx)
		if err != nil {
			logx.WithContext(ctx).Errorf("outbox: drain cycle failed: %v", err)
			return foundAny
		}
		if n == 0 {
			return foundAny
		}
		foundAny = true
		if n < s.drainer.cfg.BatchSize {
			return foundAny
		}
	}
	return foundAny
}

// Stop halts scheduling and waits up to ShutdownGrace for an in-flight
// tick to finish before returning anyway, so shutdown never blocks
// indefinitely on a stuck publish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	done := s.done
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()

	select {
	case <-done:
	case <-time.After(ShutdownGrace):
	}
}
