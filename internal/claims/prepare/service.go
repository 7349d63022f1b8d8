// Package prepare implements the claim-preparation protocol: validation,
// nonce binding, expiry, signing and persistence of claim authorizations.
package prepare

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	logger "log/slog"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/claimgate/claimgate/internal/claims/lock"
	"github.com/claimgate/claimgate/internal/claims/signer"
	"github.com/claimgate/claimgate/internal/core/domain"
	"github.com/claimgate/claimgate/internal/infra/chain"
	"github.com/claimgate/claimgate/internal/infra/storage"
	"github.com/claimgate/claimgate/internal/reconcile/metrics"
)

// Request identifies the reward a user wants to claim.
type Request struct {
	ChainID     int64
	AssetID     int64
	RewardID    int64
	AirdropID   int64
	UserAddress string
}

// Service is the single entry point called before submitting an on-chain
// claim transaction.
type Service struct {
	store    storage.Store
	gateways map[int64]chain.Gateway
	signer   signer.Signer
	locks    lock.Locker
	log      *logger.Logger
	now      func() time.Time
}

func NewService(store storage.Store, gateways map[int64]chain.Gateway, s signer.Signer, locks lock.Locker) *Service {
	return &Service{
		store:    store,
		gateways: gateways,
		signer:   s,
		locks:    locks,
		log:      logger.Default(),
		now:      time.Now,
	}
}

// SetClock overrides the time source, for tests.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// PrepareClaim validates the reward, binds a fresh nonce and timestamp,
// signs the claim message and persists the signature. Calling again before
// expiry returns a fresh signature; calling after expiry is the renew path.
func (s *Service) PrepareClaim(ctx context.Context, req Request) (*domain.ClaimAuthorization, error) {
	auth, err := s.prepareClaim(ctx, req)
	chainLabel := fmt.Sprintf("%d", req.ChainID)
	if err != nil {
		metrics.ClaimPrepareErrors.WithLabelValues(chainLabel, errorClass(err)).Inc()
		return nil, err
	}
	metrics.ClaimsPrepared.WithLabelValues(chainLabel).Inc()
	return auth, nil
}

func (s *Service) prepareClaim(ctx context.Context, req Request) (*domain.ClaimAuthorization, error) {
	gw, ok := s.gateways[req.ChainID]
	if !ok {
		return nil, fmt.Errorf("chain %d: %w", req.ChainID, domain.ErrNotFound)
	}
	if !common.IsHexAddress(req.UserAddress) {
		return nil, fmt.Errorf("invalid user address %q: %w", req.UserAddress, domain.ErrNotFound)
	}
	user := common.HexToAddress(req.UserAddress)

	// At most one in-flight preparation per reward key; event application
	// for the same key takes the same lock.
	release, err := s.locks.Acquire(ctx, lock.Key(req.ChainID, req.AssetID, req.RewardID))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUnavailable, err)
	}
	defer release()

	var (
		auth    *domain.ClaimAuthorization
		prepErr error
		refresh *domain.Event
	)

	err = s.store.WithTx(ctx, func(tx storage.Store) error {
		reward, err := tx.Rewards().Get(ctx, req.ChainID, req.AssetID, req.RewardID)
		if err != nil {
			return err
		}
		if reward == nil || !reward.BelongsTo(req.UserAddress) {
			return fmt.Errorf("reward (%d,%d,%d): %w", req.ChainID, req.AssetID, req.RewardID, domain.ErrNotFound)
		}
		if req.AirdropID != 0 && req.AirdropID != reward.AirdropID {
			return fmt.Errorf("reward (%d,%d,%d) is not under airdrop %d: %w",
				req.ChainID, req.AssetID, req.RewardID, req.AirdropID, domain.ErrNotFound)
		}
		if reward.Status == domain.RewardStatusClaimed {
			return domain.ErrAlreadyClaimed
		}
		if reward.Status != domain.RewardStatusPending {
			return fmt.Errorf("reward status %s: %w", reward.Status, domain.ErrConflict)
		}

		airdrop, err := tx.Airdrops().GetByOnchainID(ctx, reward.AirdropID)
		if err != nil {
			return err
		}
		if airdrop == nil {
			return fmt.Errorf("airdrop %d: %w", reward.AirdropID, domain.ErrNotFound)
		}

		now := s.now().Unix()
		onchainValid, onchainEnd, err := gw.IsAirdropValid(ctx, reward.AirdropID)
		if err != nil {
			return err
		}
		offchainValid := airdrop.ValidAt(now)

		// On-chain is authoritative in both directions; the local row is a
		// cache. A mismatch schedules a background refresh of the cached row,
		// and only the on-chain answer decides whether to proceed.
		if !onchainValid {
			if offchainValid {
				refresh = airdropRefreshEvent(req.ChainID, reward.AirdropID, false, onchainEnd)
			}
			return fmt.Errorf("airdrop %d not valid on-chain: %w", reward.AirdropID, domain.ErrInvalidState)
		}
		if !offchainValid {
			refresh = airdropRefreshEvent(req.ChainID, reward.AirdropID, true, onchainEnd)
			s.log.Warn("airdrop valid on-chain but stale locally, proceeding",
				"chain", req.ChainID, "airdrop", reward.AirdropID)
		}

		claimed, err := gw.IsRewardClaimed(ctx, req.AssetID, req.RewardID)
		if err != nil {
			return err
		}
		if claimed {
			// Self-heal: the chain says claimed, the cache lagged. Commit
			// the transition and surface the conflict.
			if _, err := tx.Rewards().MarkClaimed(ctx, req.ChainID, req.AssetID, req.RewardID, "", 0, now); err != nil {
				return err
			}
			s.log.Warn("reward claimed on-chain but PENDING locally, healed",
				"chain", req.ChainID, "asset", req.AssetID, "reward", req.RewardID)
			prepErr = domain.ErrAlreadyClaimed
			return nil
		}

		nonce, err := gw.GetNonce(ctx, user)
		if err != nil {
			return err
		}
		duration, err := gw.SignatureExpiryDuration(ctx)
		if err != nil {
			return err
		}

		issuedAt := s.now().Unix()
		expiresAt := issuedAt + duration

		sig, err := signer.SignClaim(s.signer, req.ChainID, user, req.AssetID, req.RewardID, nonce, issuedAt)
		if err != nil {
			return err
		}

		if err := tx.Rewards().SetSignature(ctx, reward.ID, sig, issuedAt, expiresAt); err != nil {
			return err
		}
		if err := tx.Audit().Append(ctx, &domain.ClaimAudit{
			ID:          uuid.NewString(),
			ChainID:     req.ChainID,
			AssetID:     req.AssetID,
			RewardID:    req.RewardID,
			UserAddress: user.Hex(),
			Nonce:       nonce,
			SignedAt:    issuedAt,
			ExpiresAt:   expiresAt,
		}); err != nil {
			return err
		}

		auth = &domain.ClaimAuthorization{
			ChainID:   req.ChainID,
			AssetID:   req.AssetID,
			RewardID:  req.RewardID,
			AirdropID: reward.AirdropID,
			Amount:    reward.Amount,
			TokenID:   reward.TokenID,
			Nonce:     nonce,
			IssuedAt:  issuedAt,
			Signature: sig,
			ExpiresAt: expiresAt,
		}
		return nil
	})

	if refresh != nil {
		s.scheduleRefresh(ctx, refresh)
	}
	if err != nil {
		return nil, err
	}
	if prepErr != nil {
		return nil, prepErr
	}
	return auth, nil
}

// scheduleRefresh routes an authoritative on-chain airdrop fact through the
// retry queue so the cached row converges. Best effort.
func (s *Service) scheduleRefresh(ctx context.Context, ev *domain.Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		s.log.Error("marshal airdrop refresh", "error", err)
		return
	}
	entry := &domain.RetryEntry{
		ChainID:     ev.ChainID,
		EventType:   ev.Type,
		Payload:     payload,
		TxHash:      ev.TxHash,
		NextAttempt: s.now(),
	}
	if err := s.store.Retry().Enqueue(ctx, entry); err != nil {
		s.log.Error("enqueue airdrop refresh", "airdrop", ev.AirdropID, "error", err)
	}
}

func airdropRefreshEvent(chainID, airdropID int64, active bool, endTime int64) *domain.Event {
	return &domain.Event{
		ChainID:   chainID,
		Type:      domain.EventAirdropStatusUpdated,
		TxHash:    fmt.Sprintf("refresh-%d-%d", airdropID, time.Now().UnixNano()),
		AirdropID: airdropID,
		Active:    active,
		EndTime:   endTime,
	}
}

func errorClass(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrConflict):
		return "conflict"
	case errors.Is(err, domain.ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, domain.ErrSigning):
		return "signing"
	case errors.Is(err, domain.ErrUnavailable):
		return "unavailable"
	default:
		return "internal"
	}
}
