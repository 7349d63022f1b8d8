package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/claimgate/claimgate/internal/core/domain"
)

type assetRepo struct {
	q querier
}

type assetRow struct {
	ID           int64  `db:"id"`
	ChainID      int64  `db:"chain_id"`
	OnchainID    int64  `db:"onchain_id"`
	TokenAddress string `db:"token_address"`
	Kind         string `db:"kind"`
	Provider     string `db:"provider"`
	Active       bool   `db:"active"`
}

func (r *assetRepo) Get(ctx context.Context, chainID, onchainID int64) (*domain.Asset, error) {
	var row assetRow
	err := r.q.GetContext(ctx, &row, `
		SELECT id, chain_id, onchain_id, token_address, kind, provider, active
		FROM assets WHERE chain_id = $1 AND onchain_id = $2
	`, chainID, onchainID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &domain.Asset{
		ID:           row.ID,
		ChainID:      row.ChainID,
		OnchainID:    row.OnchainID,
		TokenAddress: row.TokenAddress,
		Kind:         domain.AssetKind(row.Kind),
		Provider:     row.Provider,
		Active:       row.Active,
	}, nil
}

func (r *assetRepo) Upsert(ctx context.Context, a *domain.Asset) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO assets (chain_id, onchain_id, token_address, kind, provider, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
		ON CONFLICT (chain_id, onchain_id) DO UPDATE SET
			provider   = EXCLUDED.provider,
			active     = EXCLUDED.active,
			updated_at = NOW()
	`, a.ChainID, a.OnchainID, a.TokenAddress, string(a.Kind), a.Provider, a.Active)
	return err
}
