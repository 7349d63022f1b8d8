package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/claimgate/claimgate/internal/core/domain"
)

type airdropRepo struct {
	q querier
}

type airdropRow struct {
	ID          int64  `db:"id"`
	OnchainID   int64  `db:"onchain_id"`
	Name        string `db:"name"`
	Description string `db:"description"`
	StartTime   int64  `db:"start_time"`
	EndTime     int64  `db:"end_time"`
	Active      bool   `db:"active"`
	Creator     string `db:"creator"`
}

func (r airdropRow) toDomain() *domain.Airdrop {
	return &domain.Airdrop{
		ID:          r.ID,
		OnchainID:   r.OnchainID,
		Name:        r.Name,
		Description: r.Description,
		StartTime:   r.StartTime,
		EndTime:     r.EndTime,
		Active:      r.Active,
		Creator:     r.Creator,
	}
}

func (r *airdropRepo) GetByOnchainID(ctx context.Context, onchainID int64) (*domain.Airdrop, error) {
	var row airdropRow
	err := r.q.GetContext(ctx, &row, `
		SELECT id, onchain_id, name, description, start_time, end_time, active, creator
		FROM airdrops WHERE onchain_id = $1
	`, onchainID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return row.toDomain(), nil
}

func (r *airdropRepo) Upsert(ctx context.Context, a *domain.Airdrop) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO airdrops (onchain_id, name, description, start_time, end_time, active, creator, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
		ON CONFLICT (onchain_id) DO UPDATE SET
			start_time = EXCLUDED.start_time,
			end_time   = EXCLUDED.end_time,
			active     = EXCLUDED.active,
			creator    = EXCLUDED.creator,
			updated_at = NOW()
	`, a.OnchainID, a.Name, a.Description, a.StartTime, a.EndTime, a.Active, a.Creator)
	return err
}

func (r *airdropRepo) UpdatePeriod(ctx context.Context, onchainID, startTime, endTime int64) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE airdrops SET start_time = $2, end_time = $3, updated_at = NOW()
		WHERE onchain_id = $1
	`, onchainID, startTime, endTime)
	if err != nil {
		return err
	}
	return requireRow(res, "airdrop", onchainID)
}

func (r *airdropRepo) SetActive(ctx context.Context, onchainID int64, active bool) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE airdrops SET active = $2, updated_at = NOW()
		WHERE onchain_id = $1
	`, onchainID, active)
	if err != nil {
		return err
	}
	return requireRow(res, "airdrop", onchainID)
}
