package postgres

import (
	"context"

	"github.com/claimgate/claimgate/internal/core/domain"
)

type auditRepo struct {
	q querier
}

func (r *auditRepo) Append(ctx context.Context, a *domain.ClaimAudit) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO claim_audit (id, chain_id, asset_id, reward_id, user_address, nonce, signed_at, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
	`, a.ID, a.ChainID, a.AssetID, a.RewardID, a.UserAddress, int64(a.Nonce), a.SignedAt, a.ExpiresAt)
	return err
}
