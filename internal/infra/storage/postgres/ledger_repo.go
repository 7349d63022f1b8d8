package postgres

import (
	"context"

	"github.com/claimgate/claimgate/internal/core/domain"
)

type ledgerRepo struct {
	q querier
}

func (r *ledgerRepo) Exists(ctx context.Context, txHash string, eventType domain.EventType, assetID, rewardID int64) (bool, error) {
	var exists bool
	err := r.q.GetContext(ctx, &exists, `
		SELECT EXISTS (
			SELECT 1 FROM processed_events
			WHERE tx_hash = $1 AND event_type = $2 AND asset_id = $3 AND reward_id = $4
		)
	`, txHash, string(eventType), assetID, rewardID)
	return exists, err
}

func (r *ledgerRepo) Mark(ctx context.Context, txHash string, eventType domain.EventType, assetID, rewardID int64) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO processed_events (tx_hash, event_type, asset_id, reward_id, processed_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT DO NOTHING
	`, txHash, string(eventType), assetID, rewardID)
	return err
}
