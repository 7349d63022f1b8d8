package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/big"

	"github.com/claimgate/claimgate/internal/core/domain"
	"github.com/claimgate/claimgate/internal/infra/storage"
)

type rewardRepo struct {
	q querier
}

type rewardRow struct {
	ID          int64          `db:"id"`
	ChainID     int64          `db:"chain_id"`
	AssetID     int64          `db:"asset_id"`
	OnchainID   int64          `db:"onchain_id"`
	AirdropID   int64          `db:"airdrop_id"`
	Recipient   string         `db:"recipient"`
	Amount      string         `db:"amount"`
	TokenID     sql.NullString `db:"token_id"`
	Status      string         `db:"status"`
	Commitment  string         `db:"commitment"`
	Signature   sql.NullString `db:"signature"`
	SignedAt    sql.NullInt64  `db:"signed_at"`
	ExpiresAt   sql.NullInt64  `db:"expires_at"`
	RegTxHash   sql.NullString `db:"reg_tx_hash"`
	RegBlock    sql.NullInt64  `db:"reg_block"`
	ClaimTxHash sql.NullString `db:"claim_tx_hash"`
	ClaimBlock  sql.NullInt64  `db:"claim_block"`
	ClaimedAt   sql.NullInt64  `db:"claimed_at"`
}

const rewardColumns = `id, chain_id, asset_id, onchain_id, airdrop_id, recipient, amount::text AS amount,
	token_id::text AS token_id, status, commitment, signature, signed_at, expires_at,
	reg_tx_hash, reg_block, claim_tx_hash, claim_block, claimed_at`

func (r rewardRow) toDomain() (*domain.Reward, error) {
	amount, ok := new(big.Int).SetString(r.Amount, 10)
	if !ok {
		return nil, fmt.Errorf("reward %d: invalid amount %q", r.ID, r.Amount)
	}
	var tokenID *big.Int
	if r.TokenID.Valid {
		tokenID, ok = new(big.Int).SetString(r.TokenID.String, 10)
		if !ok {
			return nil, fmt.Errorf("reward %d: invalid token id %q", r.ID, r.TokenID.String)
		}
	}
	return &domain.Reward{
		ID:          r.ID,
		ChainID:     r.ChainID,
		AssetID:     r.AssetID,
		OnchainID:   r.OnchainID,
		AirdropID:   r.AirdropID,
		Recipient:   r.Recipient,
		Amount:      amount,
		TokenID:     tokenID,
		Status:      domain.RewardStatus(r.Status),
		Commitment:  r.Commitment,
		Signature:   r.Signature.String,
		SignedAt:    r.SignedAt.Int64,
		ExpiresAt:   r.ExpiresAt.Int64,
		RegTxHash:   r.RegTxHash.String,
		RegBlock:    uint64(r.RegBlock.Int64),
		ClaimTxHash: r.ClaimTxHash.String,
		ClaimBlock:  uint64(r.ClaimBlock.Int64),
		ClaimedAt:   r.ClaimedAt.Int64,
	}, nil
}

func (r *rewardRepo) Get(ctx context.Context, chainID, assetID, rewardID int64) (*domain.Reward, error) {
	var row rewardRow
	err := r.q.GetContext(ctx, &row, `
		SELECT `+rewardColumns+`
		FROM rewards WHERE chain_id = $1 AND asset_id = $2 AND onchain_id = $3
	`, chainID, assetID, rewardID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return row.toDomain()
}

func (r *rewardRepo) Insert(ctx context.Context, reward *domain.Reward) error {
	var tokenID any
	if reward.TokenID != nil {
		tokenID = reward.TokenID.String()
	}
	err := r.q.QueryRowxContext(ctx, `
		INSERT INTO rewards (chain_id, asset_id, onchain_id, airdrop_id, recipient, amount, token_id,
			status, commitment, reg_tx_hash, reg_block, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6::numeric, $7::numeric, $8, $9, NULLIF($10, ''), NULLIF($11, 0), NOW(), NOW())
		RETURNING id
	`, reward.ChainID, reward.AssetID, reward.OnchainID, reward.AirdropID,
		reward.Recipient, reward.Amount.String(), tokenID,
		string(reward.Status), reward.Commitment,
		reward.RegTxHash, int64(reward.RegBlock),
	).Scan(&reward.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("reward (%d,%d,%d): %w",
				reward.ChainID, reward.AssetID, reward.OnchainID, storage.ErrDuplicate)
		}
		return err
	}
	return nil
}

func (r *rewardRepo) SetSignature(ctx context.Context, id int64, signature string, signedAt, expiresAt int64) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE rewards SET signature = $2, signed_at = $3, expires_at = $4, updated_at = NOW()
		WHERE id = $1 AND status = $5
	`, id, signature, signedAt, expiresAt, string(domain.RewardStatusPending))
	if err != nil {
		return err
	}
	return requireRow(res, "reward", id)
}

func (r *rewardRepo) MarkClaimed(ctx context.Context, chainID, assetID, rewardID int64, txHash string, blockNumber uint64, claimedAt int64) (bool, error) {
	res, err := r.q.ExecContext(ctx, `
		UPDATE rewards SET status = $4, claim_tx_hash = $5, claim_block = $6, claimed_at = $7, updated_at = NOW()
		WHERE chain_id = $1 AND asset_id = $2 AND onchain_id = $3 AND status = $8
	`, chainID, assetID, rewardID,
		string(domain.RewardStatusClaimed), txHash, int64(blockNumber), claimedAt,
		string(domain.RewardStatusPending))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r *rewardRepo) MarkFailed(ctx context.Context, chainID, assetID, rewardID int64) (bool, error) {
	res, err := r.q.ExecContext(ctx, `
		UPDATE rewards SET status = $4, updated_at = NOW()
		WHERE chain_id = $1 AND asset_id = $2 AND onchain_id = $3 AND status = $5
	`, chainID, assetID, rewardID,
		string(domain.RewardStatusFailed), string(domain.RewardStatusPending))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r *rewardRepo) PatchRegTx(ctx context.Context, chainID, assetID, rewardID int64, txHash string, blockNumber uint64) error {
	_, err := r.q.ExecContext(ctx, `
		UPDATE rewards SET reg_tx_hash = $4, reg_block = $5, updated_at = NOW()
		WHERE chain_id = $1 AND asset_id = $2 AND onchain_id = $3
	`, chainID, assetID, rewardID, txHash, int64(blockNumber))
	return err
}
