// Package reconcile drives convergence between on-chain distributor state
// and the local store: a poller that tails contract logs, a pipeline that
// applies decoded events idempotently, and a sweeper that retries failures.
package reconcile

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	logger "log/slog"

	"github.com/claimgate/claimgate/internal/claims/lock"
	"github.com/claimgate/claimgate/internal/core/domain"
	"github.com/claimgate/claimgate/internal/infra/storage"
	"github.com/claimgate/claimgate/internal/reconcile/metrics"
)

// Pipeline applies decoded on-chain events to the store. Apply is safe to
// call any number of times with the same event and in any delivery order;
// the processed-event ledger and conditional updates keep the outcome fixed.
type Pipeline struct {
	store storage.Store
	locks lock.Locker
	log   *logger.Logger
	now   func() time.Time
}

func NewPipeline(store storage.Store, locks lock.Locker) *Pipeline {
	return &Pipeline{
		store: store,
		locks: locks,
		log:   logger.Default(),
		now:   time.Now,
	}
}

// SetClock overrides the time source, for tests.
func (p *Pipeline) SetClock(now func() time.Time) { p.now = now }

// Process applies one event and routes failures to the retry queue. It
// never returns an error; a failed apply is deferred, not dropped.
func (p *Pipeline) Process(ctx context.Context, ev *domain.Event) {
	if err := p.Apply(ctx, ev); err != nil {
		metrics.EventApplyFailures.WithLabelValues(label(ev.ChainID), string(ev.Type)).Inc()
		p.log.Warn("event apply failed, deferring",
			"chain", ev.ChainID, "type", ev.Type, "tx", ev.TxHash, "error", err)
		p.deferEvent(ctx, ev, err)
	}
}

// Apply applies one event inside a serializable transaction, guarded by the
// processed-event ledger. Reward-level events additionally hold the per
// reward lock so they serialize against in-flight claim preparations.
func (p *Pipeline) Apply(ctx context.Context, ev *domain.Event) error {
	if ev.TxHash == "" {
		return fmt.Errorf("event without tx hash: %w", domain.ErrInvalidState)
	}

	if ev.RewardID != 0 {
		release, err := p.locks.Acquire(ctx, lock.Key(ev.ChainID, ev.AssetID, ev.RewardID))
		if err != nil {
			return fmt.Errorf("%w: %v", domain.ErrUnavailable, err)
		}
		defer release()
	}

	var deduplicated bool
	err := p.store.WithTx(ctx, func(tx storage.Store) error {
		done, err := tx.Ledger().Exists(ctx, ev.TxHash, ev.Type, ev.AssetID, ev.RewardID)
		if err != nil {
			return err
		}
		if done {
			deduplicated = true
			return nil
		}
		if err := p.apply(ctx, tx, ev); err != nil {
			return err
		}
		return tx.Ledger().Mark(ctx, ev.TxHash, ev.Type, ev.AssetID, ev.RewardID)
	})
	if err != nil {
		return err
	}
	if deduplicated {
		metrics.EventsDeduplicated.WithLabelValues(label(ev.ChainID), string(ev.Type)).Inc()
		return nil
	}
	metrics.EventsApplied.WithLabelValues(label(ev.ChainID), string(ev.Type)).Inc()
	return nil
}

func (p *Pipeline) apply(ctx context.Context, tx storage.Store, ev *domain.Event) error {
	switch ev.Type {
	case domain.EventAssetRegistered:
		return p.applyAssetRegistered(ctx, tx, ev)
	case domain.EventRewardRegistered:
		return p.applyRewardRegistered(ctx, tx, ev)
	case domain.EventRewardClaimed:
		return p.applyRewardClaimed(ctx, tx, ev)
	case domain.EventAirdropRegistered:
		return p.applyAirdropRegistered(ctx, tx, ev)
	case domain.EventAirdropPeriodUpdated:
		return p.applyAirdropPeriodUpdated(ctx, tx, ev)
	case domain.EventAirdropStatusUpdated:
		return p.applyAirdropStatusUpdated(ctx, tx, ev)
	default:
		return fmt.Errorf("unknown event type %q: %w", ev.Type, domain.ErrInvalidState)
	}
}

func (p *Pipeline) applyAssetRegistered(ctx context.Context, tx storage.Store, ev *domain.Event) error {
	return tx.Assets().Upsert(ctx, &domain.Asset{
		ChainID:      ev.ChainID,
		OnchainID:    ev.AssetID,
		TokenAddress: ev.TokenAddress,
		Kind:         ev.Kind,
		Provider:     ev.Provider,
		Active:       true,
	})
}

func (p *Pipeline) applyAirdropRegistered(ctx context.Context, tx storage.Store, ev *domain.Event) error {
	return tx.Airdrops().Upsert(ctx, &domain.Airdrop{
		OnchainID: ev.AirdropID,
		Creator:   ev.Creator,
		StartTime: ev.StartTime,
		EndTime:   ev.EndTime,
		Active:    true,
	})
}

func (p *Pipeline) applyAirdropPeriodUpdated(ctx context.Context, tx storage.Store, ev *domain.Event) error {
	if ev.EndTime <= ev.StartTime {
		return fmt.Errorf("airdrop %d: period end %d not after start %d: %w",
			ev.AirdropID, ev.EndTime, ev.StartTime, domain.ErrInvalidState)
	}
	airdrop, err := tx.Airdrops().GetByOnchainID(ctx, ev.AirdropID)
	if err != nil {
		return err
	}
	if airdrop == nil {
		return fmt.Errorf("period update for unknown airdrop %d: %w", ev.AirdropID, domain.ErrNotFound)
	}
	return tx.Airdrops().UpdatePeriod(ctx, ev.AirdropID, ev.StartTime, ev.EndTime)
}

func (p *Pipeline) applyAirdropStatusUpdated(ctx context.Context, tx storage.Store, ev *domain.Event) error {
	airdrop, err := tx.Airdrops().GetByOnchainID(ctx, ev.AirdropID)
	if err != nil {
		return err
	}
	if airdrop == nil {
		return fmt.Errorf("status update for unknown airdrop %d: %w", ev.AirdropID, domain.ErrNotFound)
	}
	if err := tx.Airdrops().SetActive(ctx, ev.AirdropID, ev.Active); err != nil {
		return err
	}
	// Synthetic refresh events carry the authoritative on-chain end time.
	if ev.EndTime > 0 && ev.EndTime != airdrop.EndTime {
		return tx.Airdrops().UpdatePeriod(ctx, ev.AirdropID, airdrop.StartTime, ev.EndTime)
	}
	return nil
}

func (p *Pipeline) applyRewardRegistered(ctx context.Context, tx storage.Store, ev *domain.Event) error {
	existing, err := tx.Rewards().Get(ctx, ev.ChainID, ev.AssetID, ev.RewardID)
	if err != nil {
		return err
	}
	if existing != nil {
		// Redelivery, possibly from a different transaction after a reorg.
		// Registration metadata follows the latest delivery; amount,
		// recipient and status never move here.
		if ev.TxHash != existing.RegTxHash {
			return tx.Rewards().PatchRegTx(ctx, ev.ChainID, ev.AssetID, ev.RewardID, ev.TxHash, ev.BlockNumber)
		}
		return nil
	}

	reward := &domain.Reward{
		ChainID:   ev.ChainID,
		AssetID:   ev.AssetID,
		OnchainID: ev.RewardID,
		AirdropID: ev.AirdropID,
		Recipient: ev.Recipient,
		Amount:    ev.Amount,
		TokenID:   ev.TokenID,
		Status:    domain.RewardStatusPending,
		RegTxHash: ev.TxHash,
		RegBlock:  ev.BlockNumber,
	}
	if err := tx.Rewards().Insert(ctx, reward); err != nil {
		return err
	}
	return nil
}

func (p *Pipeline) applyRewardClaimed(ctx context.Context, tx storage.Store, ev *domain.Event) error {
	reward, err := tx.Rewards().Get(ctx, ev.ChainID, ev.AssetID, ev.RewardID)
	if err != nil {
		return err
	}
	if reward == nil {
		// Claim for a reward the store never saw. The registration event
		// may still be in flight; retrying gives it time to land.
		return fmt.Errorf("claim for unknown reward (%d,%d,%d): %w",
			ev.ChainID, ev.AssetID, ev.RewardID, domain.ErrNotFound)
	}

	claimedAt := ev.Timestamp
	if claimedAt == 0 {
		claimedAt = p.now().Unix()
	}
	ok, err := tx.Rewards().MarkClaimed(ctx, ev.ChainID, ev.AssetID, ev.RewardID, ev.TxHash, ev.BlockNumber, claimedAt)
	if err != nil {
		return err
	}
	if !ok {
		if reward.Status == domain.RewardStatusClaimed {
			return nil
		}
		return fmt.Errorf("claim event for %s reward (%d,%d,%d): %w",
			reward.Status, ev.ChainID, ev.AssetID, ev.RewardID, domain.ErrConflict)
	}
	return nil
}

// deferEvent enqueues a failed event for the sweeper. Best effort: if the
// enqueue itself fails the event is lost until the poller re-reads its
// block range.
func (p *Pipeline) deferEvent(ctx context.Context, ev *domain.Event, cause error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		p.log.Error("marshal deferred event", "tx", ev.TxHash, "error", err)
		return
	}
	entry := &domain.RetryEntry{
		ChainID:     ev.ChainID,
		EventType:   ev.Type,
		Payload:     payload,
		TxHash:      ev.TxHash,
		BlockNumber: ev.BlockNumber,
		NextAttempt: p.now(),
		LastError:   cause.Error(),
	}
	if err := p.store.Retry().Enqueue(ctx, entry); err != nil {
		p.log.Error("enqueue deferred event", "tx", ev.TxHash, "error", err)
	}
}

func label(chainID int64) string {
	return fmt.Sprintf("%d", chainID)
}
