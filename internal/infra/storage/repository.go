package storage

import (
	"context"
	"errors"
	"time"

	"github.com/claimgate/claimgate/internal/core/domain"
)

// ErrDuplicate is returned when an insert violates a uniqueness constraint.
var ErrDuplicate = errors.New("duplicate row")

// Store is the single shared mutable resource. Multi-step operations run
// inside WithTx; repositories obtained from the transactional view see
// uncommitted state.
type Store interface {
	Airdrops() AirdropRepository
	Assets() AssetRepository
	Rewards() RewardRepository
	Retry() RetryQueueRepository
	Ledger() ProcessedEventRepository
	Cursors() CursorRepository
	Audit() AuditRepository

	// WithTx runs fn against a transaction-scoped store at serializable
	// isolation, committing on nil return and rolling back on error or
	// panic. Transient serialization failures are retried a bounded
	// number of times.
	WithTx(ctx context.Context, fn func(Store) error) error
}

// AirdropRepository handles airdrop rows keyed by on-chain id.
// Lookups return (nil, nil) when the row is absent.
type AirdropRepository interface {
	GetByOnchainID(ctx context.Context, onchainID int64) (*domain.Airdrop, error)

	// Upsert inserts or refreshes the row matching on on-chain id.
	Upsert(ctx context.Context, airdrop *domain.Airdrop) error

	// UpdatePeriod replaces the validity window.
	UpdatePeriod(ctx context.Context, onchainID, startTime, endTime int64) error

	// SetActive flips only the active flag.
	SetActive(ctx context.Context, onchainID int64, active bool) error
}

// AssetRepository handles asset rows keyed by (chain id, on-chain id).
type AssetRepository interface {
	Get(ctx context.Context, chainID, onchainID int64) (*domain.Asset, error)
	Upsert(ctx context.Context, asset *domain.Asset) error
}

// RewardRepository handles reward rows keyed by (chain, asset, reward).
type RewardRepository interface {
	Get(ctx context.Context, chainID, assetID, rewardID int64) (*domain.Reward, error)

	// Insert creates a new PENDING reward; ErrDuplicate if the triple
	// already exists.
	Insert(ctx context.Context, reward *domain.Reward) error

	// SetSignature persists an issued signature onto the reward row.
	SetSignature(ctx context.Context, id int64, signature string, signedAt, expiresAt int64) error

	// MarkClaimed transitions PENDING -> CLAIMED, recording the claim
	// transaction. Returns false when the row was not PENDING.
	MarkClaimed(ctx context.Context, chainID, assetID, rewardID int64, txHash string, blockNumber uint64, claimedAt int64) (bool, error)

	// MarkFailed transitions PENDING -> FAILED. Returns false when the
	// row was not PENDING.
	MarkFailed(ctx context.Context, chainID, assetID, rewardID int64) (bool, error)

	// PatchRegTx updates only the registration transaction metadata, used
	// when a redelivered registration carries a new transaction hash.
	// Never touches amount, recipient or status.
	PatchRegTx(ctx context.Context, chainID, assetID, rewardID int64, txHash string, blockNumber uint64) error
}

// RetryQueueRepository handles deferred event applications.
type RetryQueueRepository interface {
	Enqueue(ctx context.Context, entry *domain.RetryEntry) error

	// Due returns up to limit pending entries whose next attempt is at or
	// before now. Concurrent sweeps may overlap; re-applying an entry is
	// idempotent through the processed-event ledger.
	Due(ctx context.Context, now time.Time, limit int) ([]*domain.RetryEntry, error)

	// Reschedule records a failed attempt and the next attempt time.
	Reschedule(ctx context.Context, id int64, attempts int, next time.Time, lastError string) error

	// MarkDead moves an entry to the dead-letter state.
	MarkDead(ctx context.Context, id int64, lastError string) error

	// Delete removes a successfully applied entry.
	Delete(ctx context.Context, id int64) error

	// CountPending returns the pending depth for one chain.
	CountPending(ctx context.Context, chainID int64) (int, error)
}

// ProcessedEventRepository is the idempotency ledger for event replay.
type ProcessedEventRepository interface {
	Exists(ctx context.Context, txHash string, eventType domain.EventType, assetID, rewardID int64) (bool, error)
	Mark(ctx context.Context, txHash string, eventType domain.EventType, assetID, rewardID int64) error
}

// CursorRepository tracks the poller's scan position per chain.
type CursorRepository interface {
	Get(ctx context.Context, chainID int64) (*domain.Cursor, error)
	Save(ctx context.Context, chainID int64, blockNumber uint64) error
}

// AuditRepository appends signature issuance records.
type AuditRepository interface {
	Append(ctx context.Context, audit *domain.ClaimAudit) error
}
