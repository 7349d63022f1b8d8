package reconcile

import (
	"context"
	"fmt"
	"time"

	logger "log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/claimgate/claimgate/internal/core/domain"
	"github.com/claimgate/claimgate/internal/infra/chain"
	"github.com/claimgate/claimgate/internal/infra/storage"
	"github.com/claimgate/claimgate/internal/reconcile/metrics"
)

// PollerConfig tunes one chain's log tailing loop.
type PollerConfig struct {
	ChainID       int64
	StartBlock    uint64
	Confirmations uint64
	PollInterval  time.Duration
	ChunkSize     uint64

	// MaxChunksPerTick caps how far one tick advances, bounding memory
	// while backfilling.
	MaxChunksPerTick int
}

func (c *PollerConfig) setDefaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = 10 * time.Second
	}
	if c.ChunkSize == 0 {
		c.ChunkSize = 2000
	}
	if c.MaxChunksPerTick <= 0 {
		c.MaxChunksPerTick = 5
	}
}

// Poller tails one chain's distributor logs and feeds them to the pipeline.
// The cursor only advances past a block range after every event in it has
// been either applied or enqueued for retry, so a crash re-reads at most one
// tick's worth of already-deduplicated events.
type Poller struct {
	cfg      PollerConfig
	source   chain.LogSource
	pipeline *Pipeline
	store    storage.Store
	log      *logger.Logger
}

func NewPoller(cfg PollerConfig, source chain.LogSource, pipeline *Pipeline, store storage.Store) *Poller {
	cfg.setDefaults()
	return &Poller{
		cfg:      cfg,
		source:   source,
		pipeline: pipeline,
		store:    store,
		log:      logger.Default().With("chain", cfg.ChainID),
	}
}

// Run polls until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	p.log.Info("poller started",
		"interval", p.cfg.PollInterval, "confirmations", p.cfg.Confirmations)

	for {
		if err := p.tick(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.log.Warn("poll tick failed", "error", err)
		}
		select {
		case <-ctx.Done():
			p.log.Info("poller stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (p *Poller) tick(ctx context.Context) error {
	head, err := p.source.LatestBlock(ctx)
	if err != nil {
		return fmt.Errorf("latest block: %w", err)
	}
	metrics.ChainLatestBlock.WithLabelValues(label(p.cfg.ChainID)).Set(float64(head))

	if head < p.cfg.Confirmations {
		return nil
	}
	safe := head - p.cfg.Confirmations

	from, err := p.nextBlock(ctx)
	if err != nil {
		return err
	}
	if from > safe {
		return nil
	}

	to := safe
	maxSpan := p.cfg.ChunkSize * uint64(p.cfg.MaxChunksPerTick)
	if to-from+1 > maxSpan {
		to = from + maxSpan - 1
	}

	events, err := p.fetchRange(ctx, from, to)
	if err != nil {
		return fmt.Errorf("fetch logs [%d,%d]: %w", from, to, err)
	}

	// Apply in block order. Process defers failures instead of returning
	// them, so a single poisonous event cannot stall the cursor.
	for _, ev := range events {
		p.pipeline.Process(ctx, ev)
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}

	if err := p.store.Cursors().Save(ctx, p.cfg.ChainID, to); err != nil {
		return fmt.Errorf("save cursor: %w", err)
	}
	metrics.PollerCursor.WithLabelValues(label(p.cfg.ChainID)).Set(float64(to))

	if len(events) > 0 {
		p.log.Info("applied events", "from", from, "to", to, "count", len(events))
	}
	return nil
}

func (p *Poller) nextBlock(ctx context.Context) (uint64, error) {
	cursor, err := p.store.Cursors().Get(ctx, p.cfg.ChainID)
	if err != nil {
		return 0, fmt.Errorf("load cursor: %w", err)
	}
	if cursor == nil {
		return p.cfg.StartBlock, nil
	}
	return cursor.BlockNumber + 1, nil
}

// fetchRange fetches log chunks concurrently and returns the concatenation
// in block order.
func (p *Poller) fetchRange(ctx context.Context, from, to uint64) ([]*domain.Event, error) {
	type span struct{ from, to uint64 }
	var spans []span
	for start := from; start <= to; start += p.cfg.ChunkSize {
		end := start + p.cfg.ChunkSize - 1
		if end > to {
			end = to
		}
		spans = append(spans, span{start, end})
	}

	chunks := make([][]*domain.Event, len(spans))
	g, gctx := errgroup.WithContext(ctx)
	for i, sp := range spans {
		i, sp := i, sp
		g.Go(func() error {
			events, err := p.source.FilterEvents(gctx, sp.from, sp.to)
			if err != nil {
				return err
			}
			chunks[i] = events
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var events []*domain.Event
	for _, chunk := range chunks {
		events = append(events, chunk...)
	}
	return events, nil
}
