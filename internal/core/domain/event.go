package domain

import "math/big"

// EventType identifies an on-chain event consumed by the reconciler.
type EventType string

const (
	EventAssetRegistered      EventType = "AssetRegistered"
	EventRewardRegistered     EventType = "RewardRegistered"
	EventRewardClaimed        EventType = "RewardClaimed"
	EventAirdropRegistered    EventType = "AirdropRegistered"
	EventAirdropPeriodUpdated EventType = "AirdropPeriodUpdated"
	EventAirdropStatusUpdated EventType = "AirdropStatusUpdated"
)

// Event is one decoded on-chain event instance. Delivery is at-least-once
// and possibly reordered; (TxHash, Type, AssetID, RewardID) is the dedup key.
type Event struct {
	ChainID     int64     `json:"chainId"`
	Type        EventType `json:"type"`
	TxHash      string    `json:"txHash"`
	BlockNumber uint64    `json:"blockNumber"`

	// Asset / reward identifiers; zero when not carried by the event.
	AssetID  int64 `json:"assetId,omitempty"`
	RewardID int64 `json:"rewardId,omitempty"`

	// AssetRegistered
	TokenAddress string    `json:"tokenAddress,omitempty"`
	Kind         AssetKind `json:"kind,omitempty"`
	Provider     string    `json:"provider,omitempty"`

	// RewardRegistered / RewardClaimed
	AirdropID int64    `json:"airdropId,omitempty"`
	Recipient string   `json:"recipient,omitempty"`
	Amount    *big.Int `json:"amount,omitempty"`
	TokenID   *big.Int `json:"tokenId,omitempty"`

	// Airdrop events
	Creator   string `json:"creator,omitempty"`
	StartTime int64  `json:"startTime,omitempty"`
	EndTime   int64  `json:"endTime,omitempty"`
	Active    bool   `json:"active,omitempty"`

	// Block timestamp of the claim transaction, when known.
	Timestamp int64 `json:"timestamp,omitempty"`
}
