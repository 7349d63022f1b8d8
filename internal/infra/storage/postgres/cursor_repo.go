package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/claimgate/claimgate/internal/core/domain"
)

type cursorRepo struct {
	q querier
}

func (r *cursorRepo) Get(ctx context.Context, chainID int64) (*domain.Cursor, error) {
	var row struct {
		ChainID     int64 `db:"chain_id"`
		BlockNumber int64 `db:"block_number"`
		UpdatedAt   int64 `db:"updated_at"`
	}
	err := r.q.GetContext(ctx, &row, `
		SELECT chain_id, block_number, updated_at FROM cursors WHERE chain_id = $1
	`, chainID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &domain.Cursor{
		ChainID:     row.ChainID,
		BlockNumber: uint64(row.BlockNumber),
		UpdatedAt:   row.UpdatedAt,
	}, nil
}

func (r *cursorRepo) Save(ctx context.Context, chainID int64, blockNumber uint64) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO cursors (chain_id, block_number, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (chain_id) DO UPDATE SET
			block_number = EXCLUDED.block_number,
			updated_at   = EXCLUDED.updated_at
	`, chainID, int64(blockNumber), time.Now().Unix())
	return err
}
