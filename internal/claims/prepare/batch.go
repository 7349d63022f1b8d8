package prepare

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/claimgate/claimgate/internal/claims/signer"
	"github.com/claimgate/claimgate/internal/core/domain"
	"github.com/claimgate/claimgate/internal/infra/storage"
)

// RegistrationInput is one reward in a batch registration request.
type RegistrationInput struct {
	ChainID   int64
	AssetID   int64
	RewardID  int64
	AirdropID int64
	Recipient string
	Amount    *big.Int
	TokenID   *big.Int
	TxHash    string
	Block     uint64
}

func (in *RegistrationInput) validate() error {
	if in.ChainID <= 0 || in.AssetID <= 0 || in.RewardID <= 0 || in.AirdropID <= 0 {
		return fmt.Errorf("reward (%d,%d,%d): non-positive identifier", in.ChainID, in.AssetID, in.RewardID)
	}
	if !common.IsHexAddress(in.Recipient) {
		return fmt.Errorf("reward (%d,%d,%d): invalid recipient %q", in.ChainID, in.AssetID, in.RewardID, in.Recipient)
	}
	if in.Amount == nil || in.Amount.Sign() <= 0 {
		return fmt.Errorf("reward (%d,%d,%d): amount must be positive", in.ChainID, in.AssetID, in.RewardID)
	}
	if in.TokenID != nil && in.TokenID.Sign() < 0 {
		return fmt.Errorf("reward (%d,%d,%d): negative token id", in.ChainID, in.AssetID, in.RewardID)
	}
	return nil
}

// RegisterBatch records a batch of rewards as PENDING with their commitments
// precomputed. All-or-nothing: any invalid entry, unknown airdrop or
// duplicate triple rejects the whole batch.
func (s *Service) RegisterBatch(ctx context.Context, inputs []RegistrationInput) ([]*domain.Reward, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("empty batch: %w", domain.ErrInvalidState)
	}
	for i := range inputs {
		if err := inputs[i].validate(); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrInvalidState, err)
		}
	}

	rewards := make([]*domain.Reward, 0, len(inputs))
	err := s.store.WithTx(ctx, func(tx storage.Store) error {
		seen := make(map[int64]bool, len(inputs))
		for i := range inputs {
			in := &inputs[i]
			if !seen[in.AirdropID] {
				airdrop, err := tx.Airdrops().GetByOnchainID(ctx, in.AirdropID)
				if err != nil {
					return err
				}
				if airdrop == nil {
					return fmt.Errorf("airdrop %d: %w", in.AirdropID, domain.ErrNotFound)
				}
				seen[in.AirdropID] = true
			}

			recipient := common.HexToAddress(in.Recipient)
			reward := &domain.Reward{
				ChainID:    in.ChainID,
				AssetID:    in.AssetID,
				OnchainID:  in.RewardID,
				AirdropID:  in.AirdropID,
				Recipient:  recipient.Hex(),
				Amount:     new(big.Int).Set(in.Amount),
				Status:     domain.RewardStatusPending,
				Commitment: signer.Commitment(recipient, in.Amount, in.TokenID).Hex(),
				RegTxHash:  in.TxHash,
				RegBlock:   in.Block,
			}
			if in.TokenID != nil {
				reward.TokenID = new(big.Int).Set(in.TokenID)
			}

			if err := tx.Rewards().Insert(ctx, reward); err != nil {
				if errors.Is(err, storage.ErrDuplicate) {
					return fmt.Errorf("reward (%d,%d,%d) already registered: %w",
						in.ChainID, in.AssetID, in.RewardID, domain.ErrConflict)
				}
				return err
			}
			rewards = append(rewards, reward)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rewards, nil
}
