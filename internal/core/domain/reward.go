package domain

import (
	"math/big"
	"strings"
)

// RewardStatus tracks the claim lifecycle of a reward. Transitions are
// monotone: PENDING -> CLAIMED or PENDING -> FAILED, never back.
type RewardStatus string

const (
	RewardStatusPending RewardStatus = "PENDING"
	RewardStatusClaimed RewardStatus = "CLAIMED"
	RewardStatusFailed  RewardStatus = "FAILED"
)

// Reward is one user's entitlement to claim tokens under one asset and
// airdrop. Identified by (ChainID, AssetID, OnchainID).
type Reward struct {
	ID        int64
	ChainID   int64
	AssetID   int64
	OnchainID int64
	AirdropID int64 // on-chain airdrop id
	Recipient string
	Amount    *big.Int
	TokenID   *big.Int // nil for fungible assets
	Status    RewardStatus

	// Commitment binds (recipient, amount, tokenId); checked on-chain at
	// claim time.
	Commitment string

	// Signature fields are only meaningful while Status is PENDING and
	// now < ExpiresAt.
	Signature string
	SignedAt  int64
	ExpiresAt int64

	RegTxHash   string
	RegBlock    uint64
	ClaimTxHash string
	ClaimBlock  uint64
	ClaimedAt   int64
}

// BelongsTo reports whether the reward's recipient matches the given
// address, case-insensitively.
func (r *Reward) BelongsTo(address string) bool {
	return strings.EqualFold(r.Recipient, address)
}

// ClaimAuthorization is the signed, time-bounded payload a user submits
// on-chain to execute a claim.
type ClaimAuthorization struct {
	ChainID   int64    `json:"chainId"`
	AssetID   int64    `json:"assetId"`
	RewardID  int64    `json:"rewardId"`
	AirdropID int64    `json:"airdropId"`
	Amount    *big.Int `json:"amount"`
	TokenID   *big.Int `json:"tokenId,omitempty"`
	Nonce     uint64   `json:"nonce"`
	IssuedAt  int64    `json:"timestamp"`
	Signature string   `json:"signature"`
	ExpiresAt int64    `json:"expiresAt"`
}
