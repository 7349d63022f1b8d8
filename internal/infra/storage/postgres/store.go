package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/sethvargo/go-retry"

	"github.com/claimgate/claimgate/internal/core/domain"
	"github.com/claimgate/claimgate/internal/infra/storage"
)

// querier is satisfied by both *sqlx.DB and *sqlx.Tx so repositories work
// inside and outside transactions.
type querier interface {
	sqlx.ExtContext
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
}

// Store implements storage.Store over PostgreSQL.
type Store struct {
	db *DB
	q  querier
}

// NewStore creates the root (non-transactional) store.
func NewStore(db *DB) *Store {
	return &Store{db: db, q: db.DB}
}

func (s *Store) Airdrops() storage.AirdropRepository      { return &airdropRepo{q: s.q} }
func (s *Store) Assets() storage.AssetRepository          { return &assetRepo{q: s.q} }
func (s *Store) Rewards() storage.RewardRepository        { return &rewardRepo{q: s.q} }
func (s *Store) Retry() storage.RetryQueueRepository      { return &retryRepo{q: s.q} }
func (s *Store) Ledger() storage.ProcessedEventRepository { return &ledgerRepo{q: s.q} }
func (s *Store) Cursors() storage.CursorRepository        { return &cursorRepo{q: s.q} }
func (s *Store) Audit() storage.AuditRepository           { return &auditRepo{q: s.q} }

// WithTx runs fn at serializable isolation with guaranteed commit-or-rollback
// on every exit path. Serialization conflicts and transient connection
// failures are retried a bounded number of times with backoff.
func (s *Store) WithTx(ctx context.Context, fn func(storage.Store) error) error {
	// Already inside a transaction: join it.
	if _, ok := s.q.(*sqlx.Tx); ok {
		return fn(s)
	}

	backoff := retry.WithMaxRetries(3, retry.NewExponential(100*time.Millisecond))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := s.runTx(ctx, fn)
		if err != nil && isTransientSQL(err) {
			return retry.RetryableError(err)
		}
		return err
	})
}

func (s *Store) runTx(ctx context.Context, fn func(storage.Store) error) (err error) {
	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		err = tx.Commit()
	}()

	err = fn(&Store{db: s.db, q: tx})
	return err
}

// isTransientSQL reports whether the error is a serialization conflict,
// deadlock or connection failure worth retrying.
func isTransientSQL(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		code := string(pqErr.Code)
		if code == "40001" || code == "40P01" {
			return true
		}
		if strings.HasPrefix(code, "08") { // connection exceptions
			return true
		}
	}
	return errors.Is(err, sql.ErrConnDone)
}

// isUniqueViolation maps SQLSTATE 23505 onto storage.ErrDuplicate.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// requireRow converts a zero-row UPDATE into a NotFound error.
func requireRow(res sql.Result, entity string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s %d: %w", entity, id, domain.ErrNotFound)
	}
	return nil
}
