package reconcile

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	logger "log/slog"

	"github.com/claimgate/claimgate/internal/core/domain"
	"github.com/claimgate/claimgate/internal/infra/storage"
	"github.com/claimgate/claimgate/internal/reconcile/metrics"
)

// SweeperConfig tunes the retry queue drain loop.
type SweeperConfig struct {
	SweepInterval time.Duration
	BatchSize     int
	BaseDelay     time.Duration
	MaxAttempts   int

	// ChainIDs drive the queue depth gauge.
	ChainIDs []int64
}

func (c *SweeperConfig) setDefaults() {
	if c.SweepInterval <= 0 {
		c.SweepInterval = 30 * time.Second
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = time.Minute
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 10
	}
}

// maxBackoff caps the exponential delay between attempts.
const maxBackoff = 6 * time.Hour

// Sweeper drains the retry queue: due entries are re-applied through the
// pipeline, rescheduled with exponential backoff on failure, and moved to
// the dead-letter state once attempts are exhausted.
type Sweeper struct {
	cfg      SweeperConfig
	store    storage.Store
	pipeline *Pipeline
	log      *logger.Logger
	now      func() time.Time
}

func NewSweeper(cfg SweeperConfig, store storage.Store, pipeline *Pipeline) *Sweeper {
	cfg.setDefaults()
	return &Sweeper{
		cfg:      cfg,
		store:    store,
		pipeline: pipeline,
		log:      logger.Default(),
		now:      time.Now,
	}
}

// SetClock overrides the time source, for tests.
func (s *Sweeper) SetClock(now func() time.Time) { s.now = now }

// Run sweeps until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	s.log.Info("sweeper started",
		"interval", s.cfg.SweepInterval, "max_attempts", s.cfg.MaxAttempts)

	for {
		select {
		case <-ctx.Done():
			s.log.Info("sweeper stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := s.Sweep(ctx); err != nil && ctx.Err() == nil {
				s.log.Warn("sweep failed", "error", err)
			}
			s.observeDepth(ctx)
		}
	}
}

// Sweep processes one batch of due entries.
func (s *Sweeper) Sweep(ctx context.Context) error {
	entries, err := s.store.Retry().Due(ctx, s.now(), s.cfg.BatchSize)
	if err != nil {
		return fmt.Errorf("load due entries: %w", err)
	}

	for _, entry := range entries {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.sweepOne(ctx, entry)
	}
	return nil
}

func (s *Sweeper) sweepOne(ctx context.Context, entry *domain.RetryEntry) {
	var ev domain.Event
	if err := json.Unmarshal(entry.Payload, &ev); err != nil {
		// Unparseable payloads can never succeed; dead-letter immediately.
		s.deadLetter(ctx, entry, fmt.Sprintf("unmarshal payload: %v", err))
		return
	}

	if err := s.pipeline.Apply(ctx, &ev); err != nil {
		attempts := entry.Attempts + 1
		if attempts >= s.cfg.MaxAttempts {
			s.deadLetter(ctx, entry, err.Error())
			return
		}
		next := s.now().Add(Backoff(s.cfg.BaseDelay, attempts))
		if rerr := s.store.Retry().Reschedule(ctx, entry.ID, attempts, next, err.Error()); rerr != nil {
			s.log.Error("reschedule retry entry", "id", entry.ID, "error", rerr)
		}
		return
	}

	if err := s.store.Retry().Delete(ctx, entry.ID); err != nil {
		s.log.Error("delete retry entry", "id", entry.ID, "error", err)
	}
}

func (s *Sweeper) deadLetter(ctx context.Context, entry *domain.RetryEntry, cause string) {
	if err := s.store.Retry().MarkDead(ctx, entry.ID, cause); err != nil {
		s.log.Error("mark retry entry dead", "id", entry.ID, "error", err)
		return
	}
	metrics.RetryDeadTotal.WithLabelValues(label(entry.ChainID)).Inc()
	s.log.Error("event dead-lettered, manual intervention required",
		"id", entry.ID, "chain", entry.ChainID, "type", entry.EventType,
		"tx", entry.TxHash, "attempts", entry.Attempts+1, "cause", cause)
}

func (s *Sweeper) observeDepth(ctx context.Context) {
	for _, chainID := range s.cfg.ChainIDs {
		depth, err := s.store.Retry().CountPending(ctx, chainID)
		if err != nil {
			continue
		}
		metrics.RetryQueueDepth.WithLabelValues(label(chainID)).Set(float64(depth))
	}
}

// Backoff returns the delay before the given attempt number, doubling per
// attempt from base and capped at maxBackoff.
func Backoff(base time.Duration, attempts int) time.Duration {
	d := base
	for i := 1; i < attempts; i++ {
		d *= 2
		if d >= maxBackoff {
			return maxBackoff
		}
	}
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}
