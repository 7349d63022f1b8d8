package domain

// ClaimAudit records one signature issuance for operator traceability.
type ClaimAudit struct {
	ID          string // uuid
	ChainID     int64
	AssetID     int64
	RewardID    int64
	UserAddress string
	Nonce       uint64
	SignedAt    int64
	ExpiresAt   int64
}
