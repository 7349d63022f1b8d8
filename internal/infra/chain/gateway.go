package chain

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/claimgate/claimgate/internal/core/domain"
)

// Gateway exposes the on-chain distributor contract's view methods for one
// (chain, contract) pair. Stateless; all failures are transient RPCErrors
// and retry policy lives in callers.
type Gateway interface {
	// IsAirdropValid reports whether the airdrop is currently valid
	// on-chain, and its end timestamp.
	IsAirdropValid(ctx context.Context, airdropID int64) (bool, int64, error)

	// GetNonce returns the user's claim nonce. Monotonically
	// non-decreasing per user.
	GetNonce(ctx context.Context, user common.Address) (uint64, error)

	// IsRewardClaimed reports whether the reward's claimed flag is set.
	IsRewardClaimed(ctx context.Context, assetID, rewardID int64) (bool, error)

	// SignatureExpiryDuration returns the contract's configured signature
	// lifetime in seconds.
	SignatureExpiryDuration(ctx context.Context) (int64, error)
}

// LogSource feeds the event reconciliation poller.
type LogSource interface {
	// LatestBlock returns the current chain head.
	LatestBlock(ctx context.Context) (uint64, error)

	// FilterEvents returns decoded distributor events emitted in
	// [fromBlock, toBlock], in block order.
	FilterEvents(ctx context.Context, fromBlock, toBlock uint64) ([]*domain.Event, error)
}
