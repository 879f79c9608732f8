package outbox

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/zeromicro/go-zero/core/logx"
)

// HousekeeperConfig controls the retention sweeps run alongside the
// drainer: PUBLISHED outbox rows past Retention and expired dedupe rows,
// each on its own cadence.
type HousekeeperConfig struct {
	Interval       time.Duration
	Retention      time.Duration
	BatchSize      int
	DedupeInterval time.Duration
	DedupeBatch    int
}

func (c HousekeeperConfig) withDefaults() HousekeeperConfig {
	if c.Interval <= 0 {
		c.Interval = time.Hour
	}
	if c.Retention <= 0 {
		c.Retention = 7 * 24 * time.Hour
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 10000
	}
	if c.DedupeInterval <= 0 {
		c.DedupeInterval = c.Interval
	}
	if c.DedupeBatch <= 0 {
		c.DedupeBatch = c.BatchSize
	}
	return c
}

// DedupeSweeper is the subset of dedupe.GormStore the Housekeeper depends
// on, split out the same way ClaimStore narrows Repository for the
// Drainer, so a nil sweeper (no dedupe store wired) can skip that sweep
// cleanly.
type DedupeSweeper interface {
	SweepExpired(ctx context.Context, batchSize int) (int64, error)
}

// Housekeeper periodically sweeps PUBLISHED outbox rows older than
// Retention and expired dedupe rows, both in bounded batches, so neither
// table grows unbounded once its rows have served their purpose.
type Housekeeper struct {
	cfg    HousekeeperConfig
	repo   *Repository
	dedupe DedupeSweeper // optional
	cron   *cron.Cron
	now    func() time.Time
}

func NewHousekeeper(cfg HousekeeperConfig, repo *Repository, dedupe DedupeSweeper) *Housekeeper {
	return &Housekeeper{
		cfg:    cfg.withDefaults(),
		repo:   repo,
		dedupe: dedupe,
		cron:   cron.New(),
		now:    time.Now,
	}
}

func (h *Housekeeper) Start(ctx context.Context) error {
	if _, err := h.cron.AddFunc(fmt.Sprintf("@every %s", h.cfg.Interval), func() {
		h.sweepOutbox(ctx)
	}); err != nil {
		return err
	}
	if h.dedupe != nil {
		if _, err := h.cron.AddFunc(fmt.Sprintf("@every %s", h.cfg.DedupeInterval), func() {
			h.sweepDedupe(ctx)
		}); err != nil {
			return err
		}
	}
	h.cron.Start()
	return nil
}

func (h *Housekeeper) sweepOutbox(ctx context.Context) {
	cutoff := h.now().Add(-h.cfg.Retention)
	for {
		n, err := h.repo.SweepPublished(ctx, cutoff, h.cfg.BatchSize)
		if err != nil {
			logx.WithContext(ctx).Errorf("outbox: housekeeper outbox sweep failed: %v", err)
			return
		}
		if n < int64(h.cfg.BatchSize) {
			return
		}
	}
}

func (h *Housekeeper) sweepDedupe(ctx context.Context) {
	for {
		n, err := h.dedupe.SweepExpired(ctx, h.cfg.DedupeBatch)
		if err != nil {
			logx.WithContext(ctx).Errorf("outbox: housekeeper dedupe sweep failed: %v", err)
			return
		}
		if n < int64(h.cfg.DedupeBatch) {
			return
		}
	}
}

func (h *Housekeeper) Stop() {
	stopCtx := h.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(ShutdownGrace):
	}
}
