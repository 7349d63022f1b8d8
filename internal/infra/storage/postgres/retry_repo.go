package postgres

import (
	"context"
	"time"

	"github.com/claimgate/claimgate/internal/core/domain"
)

type retryRepo struct {
	q querier
}

type retryRow struct {
	ID          int64     `db:"id"`
	ChainID     int64     `db:"chain_id"`
	EventType   string    `db:"event_type"`
	Payload     []byte    `db:"payload"`
	TxHash      string    `db:"tx_hash"`
	BlockNumber int64     `db:"block_number"`
	Attempts    int       `db:"attempts"`
	NextAttempt time.Time `db:"next_attempt_at"`
	LastError   string    `db:"last_error"`
	Status      string    `db:"status"`
}

func (r retryRow) toDomain() *domain.RetryEntry {
	return &domain.RetryEntry{
		ID:          r.ID,
		ChainID:     r.ChainID,
		EventType:   domain.EventType(r.EventType),
		Payload:     r.Payload,
		TxHash:      r.TxHash,
		BlockNumber: uint64(r.BlockNumber),
		Attempts:    r.Attempts,
		NextAttempt: r.NextAttempt,
		LastError:   r.LastError,
		Status:      domain.RetryStatus(r.Status),
	}
}

func (r *retryRepo) Enqueue(ctx context.Context, entry *domain.RetryEntry) error {
	return r.q.QueryRowxContext(ctx, `
		INSERT INTO retry_queue (chain_id, event_type, payload, tx_hash, block_number,
			attempts, next_attempt_at, last_error, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())
		RETURNING id
	`, entry.ChainID, string(entry.EventType), string(entry.Payload), entry.TxHash, int64(entry.BlockNumber),
		entry.Attempts, entry.NextAttempt, entry.LastError, string(domain.RetryStatusPending),
	).Scan(&entry.ID)
}

// Due skips rows another statement holds locked. Outside a transaction the
// locks drop as soon as the statement returns, so concurrent sweeps can
// still pick the same entry; the processed-event ledger makes that harmless.
func (r *retryRepo) Due(ctx context.Context, now time.Time, limit int) ([]*domain.RetryEntry, error) {
	var rows []retryRow
	err := r.q.SelectContext(ctx, &rows, `
		SELECT id, chain_id, event_type, payload, tx_hash, block_number,
			attempts, next_attempt_at, last_error, status
		FROM retry_queue
		WHERE status = $1 AND next_attempt_at <= $2
		ORDER BY next_attempt_at ASC
		LIMIT $3
		FOR UPDATE SKIP LOCKED
	`, string(domain.RetryStatusPending), now, limit)
	if err != nil {
		return nil, err
	}
	entries := make([]*domain.RetryEntry, len(rows))
	for i, row := range rows {
		entries[i] = row.toDomain()
	}
	return entries, nil
}

func (r *retryRepo) Reschedule(ctx context.Context, id int64, attempts int, next time.Time, lastError string) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE retry_queue SET attempts = $2, next_attempt_at = $3, last_error = $4, updated_at = NOW()
		WHERE id = $1
	`, id, attempts, next, lastError)
	if err != nil {
		return err
	}
	return requireRow(res, "retry entry", id)
}

func (r *retryRepo) MarkDead(ctx context.Context, id int64, lastError string) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE retry_queue SET status = $2, last_error = $3, updated_at = NOW()
		WHERE id = $1
	`, id, string(domain.RetryStatusDead), lastError)
	if err != nil {
		return err
	}
	return requireRow(res, "retry entry", id)
}

func (r *retryRepo) Delete(ctx context.Context, id int64) error {
	_, err := r.q.ExecContext(ctx, `DELETE FROM retry_queue WHERE id = $1`, id)
	return err
}

func (r *retryRepo) CountPending(ctx context.Context, chainID int64) (int, error) {
	var count int
	err := r.q.GetContext(ctx, &count, `
		SELECT count(*) FROM retry_queue WHERE chain_id = $1 AND status = $2
	`, chainID, string(domain.RetryStatusPending))
	return count, err
}
