package domain

import "time"

// RetryStatus tracks a retry queue entry's lifecycle.
type RetryStatus string

const (
	RetryStatusPending RetryStatus = "pending"
	RetryStatusDead    RetryStatus = "dead"
)

// RetryEntry is a deferred event application. Created when an apply fails,
// deleted on success, dead-lettered after too many attempts.
type RetryEntry struct {
	ID          int64
	ChainID     int64
	EventType   EventType
	Payload     []byte // JSON-encoded Event
	TxHash      string
	BlockNumber uint64
	Attempts    int
	NextAttempt time.Time
	LastError   string
	Status      RetryStatus
}

// ProcessedEvent records that an event has been durably applied; the
// idempotency guard against replays and redeliveries.
type ProcessedEvent struct {
	TxHash      string
	EventType   EventType
	AssetID     int64
	RewardID    int64
	ProcessedAt time.Time
}

// Cursor marks the last block scanned for events on one chain.
type Cursor struct {
	ChainID     int64
	BlockNumber uint64
	UpdatedAt   int64
}
