package domain

// Airdrop is a named, time-bounded grouping of rewards mirroring an
// on-chain registration. Never deleted, only deactivated.
type Airdrop struct {
	ID          int64
	OnchainID   int64
	Name        string
	Description string
	StartTime   int64
	EndTime     int64
	Active      bool
	Creator     string
}

// ValidAt reports whether the airdrop is active and inside its
// [start, end] window at the given unix time.
func (a *Airdrop) ValidAt(now int64) bool {
	return a.Active && now >= a.StartTime && now <= a.EndTime
}
