// Package memory provides an in-memory storage.Store used in tests and in
// database-less development mode. A single mutex serializes transactions,
// which trivially satisfies the serializable-isolation contract.
package memory

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/claimgate/claimgate/internal/core/domain"
	"github.com/claimgate/claimgate/internal/infra/storage"
)

type Store struct {
	mu   *sync.Mutex
	data *data
	inTx bool
}

type data struct {
	airdrops  map[int64]*domain.Airdrop // by onchain id
	assets    map[string]*domain.Asset  // by chain:onchain
	rewards   map[string]*domain.Reward // by chain:asset:reward
	retry     map[int64]*domain.RetryEntry
	ledger    map[string]struct{}
	cursors   map[int64]*domain.Cursor
	audits    []*domain.ClaimAudit
	nextID    int64
	retrySeq  int64
	airdropID int64
}

func NewStore() *Store {
	return &Store{
		mu: &sync.Mutex{},
		data: &data{
			airdrops: make(map[int64]*domain.Airdrop),
			assets:   make(map[string]*domain.Asset),
			rewards:  make(map[string]*domain.Reward),
			retry:    make(map[int64]*domain.RetryEntry),
			ledger:   make(map[string]struct{}),
			cursors:  make(map[int64]*domain.Cursor),
		},
	}
}

func rewardKey(chainID, assetID, rewardID int64) string {
	return fmt.Sprintf("%d:%d:%d", chainID, assetID, rewardID)
}

func assetKey(chainID, onchainID int64) string {
	return fmt.Sprintf("%d:%d", chainID, onchainID)
}

func ledgerKey(txHash string, et domain.EventType, assetID, rewardID int64) string {
	return fmt.Sprintf("%s:%s:%d:%d", txHash, et, assetID, rewardID)
}

func (s *Store) WithTx(ctx context.Context, fn func(storage.Store) error) error {
	if s.inTx {
		return fn(s)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	backup := s.data.clone()
	if err := fn(&Store{mu: s.mu, data: s.data, inTx: true}); err != nil {
		*s.data = *backup
		return err
	}
	return nil
}

// clone deep-copies the dataset so a failed transaction can be rolled back.
func (d *data) clone() *data {
	cp := &data{
		airdrops:  make(map[int64]*domain.Airdrop, len(d.airdrops)),
		assets:    make(map[string]*domain.Asset, len(d.assets)),
		rewards:   make(map[string]*domain.Reward, len(d.rewards)),
		retry:     make(map[int64]*domain.RetryEntry, len(d.retry)),
		ledger:    make(map[string]struct{}, len(d.ledger)),
		cursors:   make(map[int64]*domain.Cursor, len(d.cursors)),
		audits:    make([]*domain.ClaimAudit, len(d.audits)),
		nextID:    d.nextID,
		retrySeq:  d.retrySeq,
		airdropID: d.airdropID,
	}
	for k, v := range d.airdrops {
		a := *v
		cp.airdrops[k] = &a
	}
	for k, v := range d.assets {
		a := *v
		cp.assets[k] = &a
	}
	for k, v := range d.rewards {
		cp.rewards[k] = copyReward(v)
	}
	for k, v := range d.retry {
		e := *v
		cp.retry[k] = &e
	}
	for k := range d.ledger {
		cp.ledger[k] = struct{}{}
	}
	for k, v := range d.cursors {
		c := *v
		cp.cursors[k] = &c
	}
	copy(cp.audits, d.audits)
	return cp
}

func (s *Store) lock() func() {
	if s.inTx {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

func (s *Store) Airdrops() storage.AirdropRepository      { return &airdropRepo{s} }
func (s *Store) Assets() storage.AssetRepository          { return &assetRepo{s} }
func (s *Store) Rewards() storage.RewardRepository        { return &rewardRepo{s} }
func (s *Store) Retry() storage.RetryQueueRepository      { return &retryRepo{s} }
func (s *Store) Ledger() storage.ProcessedEventRepository { return &ledgerRepo{s} }
func (s *Store) Cursors() storage.CursorRepository        { return &cursorRepo{s} }
func (s *Store) Audit() storage.AuditRepository           { return &auditRepo{s} }

// Audits returns a snapshot of appended audit records, for assertions.
func (s *Store) Audits() []*domain.ClaimAudit {
	defer s.lock()()
	out := make([]*domain.ClaimAudit, len(s.data.audits))
	copy(out, s.data.audits)
	return out
}

// RetryEntries returns a snapshot of the retry queue, for assertions.
func (s *Store) RetryEntries() []*domain.RetryEntry {
	defer s.lock()()
	out := make([]*domain.RetryEntry, 0, len(s.data.retry))
	for _, e := range s.data.retry {
		cp := *e
		out = append(out, &cp)
	}
	return out
}

type airdropRepo struct{ s *Store }

func (r *airdropRepo) GetByOnchainID(ctx context.Context, onchainID int64) (*domain.Airdrop, error) {
	defer r.s.lock()()
	a, ok := r.s.data.airdrops[onchainID]
	if !ok {
		return nil, nil
	}
	cp := *a
	return &cp, nil
}

func (r *airdropRepo) Upsert(ctx context.Context, a *domain.Airdrop) error {
	defer r.s.lock()()
	if existing, ok := r.s.data.airdrops[a.OnchainID]; ok {
		existing.StartTime = a.StartTime
		existing.EndTime = a.EndTime
		existing.Active = a.Active
		existing.Creator = a.Creator
		return nil
	}
	r.s.data.airdropID++
	cp := *a
	cp.ID = r.s.data.airdropID
	r.s.data.airdrops[a.OnchainID] = &cp
	return nil
}

func (r *airdropRepo) UpdatePeriod(ctx context.Context, onchainID, startTime, endTime int64) error {
	defer r.s.lock()()
	a, ok := r.s.data.airdrops[onchainID]
	if !ok {
		return fmt.Errorf("airdrop %d: %w", onchainID, domain.ErrNotFound)
	}
	a.StartTime = startTime
	a.EndTime = endTime
	return nil
}

func (r *airdropRepo) SetActive(ctx context.Context, onchainID int64, active bool) error {
	defer r.s.lock()()
	a, ok := r.s.data.airdrops[onchainID]
	if !ok {
		return fmt.Errorf("airdrop %d: %w", onchainID, domain.ErrNotFound)
	}
	a.Active = active
	return nil
}

type assetRepo struct{ s *Store }

func (r *assetRepo) Get(ctx context.Context, chainID, onchainID int64) (*domain.Asset, error) {
	defer r.s.lock()()
	a, ok := r.s.data.assets[assetKey(chainID, onchainID)]
	if !ok {
		return nil, nil
	}
	cp := *a
	return &cp, nil
}

func (r *assetRepo) Upsert(ctx context.Context, a *domain.Asset) error {
	defer r.s.lock()()
	key := assetKey(a.ChainID, a.OnchainID)
	if existing, ok := r.s.data.assets[key]; ok {
		existing.Provider = a.Provider
		existing.Active = a.Active
		return nil
	}
	cp := *a
	r.s.data.assets[key] = &cp
	return nil
}

type rewardRepo struct{ s *Store }

func copyReward(rw *domain.Reward) *domain.Reward {
	cp := *rw
	if rw.Amount != nil {
		cp.Amount = new(big.Int).Set(rw.Amount)
	}
	if rw.TokenID != nil {
		cp.TokenID = new(big.Int).Set(rw.TokenID)
	}
	return &cp
}

func (r *rewardRepo) Get(ctx context.Context, chainID, assetID, rewardID int64) (*domain.Reward, error) {
	defer r.s.lock()()
	rw, ok := r.s.data.rewards[rewardKey(chainID, assetID, rewardID)]
	if !ok {
		return nil, nil
	}
	return copyReward(rw), nil
}

func (r *rewardRepo) Insert(ctx context.Context, reward *domain.Reward) error {
	defer r.s.lock()()
	key := rewardKey(reward.ChainID, reward.AssetID, reward.OnchainID)
	if _, ok := r.s.data.rewards[key]; ok {
		return fmt.Errorf("reward (%d,%d,%d): %w",
			reward.ChainID, reward.AssetID, reward.OnchainID, storage.ErrDuplicate)
	}
	r.s.data.nextID++
	reward.ID = r.s.data.nextID
	r.s.data.rewards[key] = copyReward(reward)
	return nil
}

func (r *rewardRepo) SetSignature(ctx context.Context, id int64, signature string, signedAt, expiresAt int64) error {
	defer r.s.lock()()
	for _, rw := range r.s.data.rewards {
		if rw.ID == id && rw.Status == domain.RewardStatusPending {
			rw.Signature = signature
			rw.SignedAt = signedAt
			rw.ExpiresAt = expiresAt
			return nil
		}
	}
	return fmt.Errorf("reward %d: %w", id, domain.ErrNotFound)
}

func (r *rewardRepo) MarkClaimed(ctx context.Context, chainID, assetID, rewardID int64, txHash string, blockNumber uint64, claimedAt int64) (bool, error) {
	defer r.s.lock()()
	rw, ok := r.s.data.rewards[rewardKey(chainID, assetID, rewardID)]
	if !ok || rw.Status != domain.RewardStatusPending {
		return false, nil
	}
	rw.Status = domain.RewardStatusClaimed
	rw.ClaimTxHash = txHash
	rw.ClaimBlock = blockNumber
	rw.ClaimedAt = claimedAt
	return true, nil
}

func (r *rewardRepo) MarkFailed(ctx context.Context, chainID, assetID, rewardID int64) (bool, error) {
	defer r.s.lock()()
	rw, ok := r.s.data.rewards[rewardKey(chainID, assetID, rewardID)]
	if !ok || rw.Status != domain.RewardStatusPending {
		return false, nil
	}
	rw.Status = domain.RewardStatusFailed
	return true, nil
}

func (r *rewardRepo) PatchRegTx(ctx context.Context, chainID, assetID, rewardID int64, txHash string, blockNumber uint64) error {
	defer r.s.lock()()
	rw, ok := r.s.data.rewards[rewardKey(chainID, assetID, rewardID)]
	if !ok {
		return fmt.Errorf("reward (%d,%d,%d): %w", chainID, assetID, rewardID, domain.ErrNotFound)
	}
	rw.RegTxHash = txHash
	rw.RegBlock = blockNumber
	return nil
}

type retryRepo struct{ s *Store }

func (r *retryRepo) Enqueue(ctx context.Context, entry *domain.RetryEntry) error {
	defer r.s.lock()()
	r.s.data.retrySeq++
	entry.ID = r.s.data.retrySeq
	entry.Status = domain.RetryStatusPending
	cp := *entry
	r.s.data.retry[entry.ID] = &cp
	return nil
}

func (r *retryRepo) Due(ctx context.Context, now time.Time, limit int) ([]*domain.RetryEntry, error) {
	defer r.s.lock()()
	var due []*domain.RetryEntry
	for _, e := range r.s.data.retry {
		if e.Status == domain.RetryStatusPending && !e.NextAttempt.After(now) {
			cp := *e
			due = append(due, &cp)
			if len(due) >= limit {
				break
			}
		}
	}
	return due, nil
}

func (r *retryRepo) Reschedule(ctx context.Context, id int64, attempts int, next time.Time, lastError string) error {
	defer r.s.lock()()
	e, ok := r.s.data.retry[id]
	if !ok {
		return fmt.Errorf("retry entry %d: %w", id, domain.ErrNotFound)
	}
	e.Attempts = attempts
	e.NextAttempt = next
	e.LastError = lastError
	return nil
}

func (r *retryRepo) MarkDead(ctx context.Context, id int64, lastError string) error {
	defer r.s.lock()()
	e, ok := r.s.data.retry[id]
	if !ok {
		return fmt.Errorf("retry entry %d: %w", id, domain.ErrNotFound)
	}
	e.Status = domain.RetryStatusDead
	e.LastError = lastError
	return nil
}

func (r *retryRepo) Delete(ctx context.Context, id int64) error {
	defer r.s.lock()()
	delete(r.s.data.retry, id)
	return nil
}

func (r *retryRepo) CountPending(ctx context.Context, chainID int64) (int, error) {
	defer r.s.lock()()
	count := 0
	for _, e := range r.s.data.retry {
		if e.ChainID == chainID && e.Status == domain.RetryStatusPending {
			count++
		}
	}
	return count, nil
}

type ledgerRepo struct{ s *Store }

func (r *ledgerRepo) Exists(ctx context.Context, txHash string, et domain.EventType, assetID, rewardID int64) (bool, error) {
	defer r.s.lock()()
	_, ok := r.s.data.ledger[ledgerKey(txHash, et, assetID, rewardID)]
	return ok, nil
}

func (r *ledgerRepo) Mark(ctx context.Context, txHash string, et domain.EventType, assetID, rewardID int64) error {
	defer r.s.lock()()
	r.s.data.ledger[ledgerKey(txHash, et, assetID, rewardID)] = struct{}{}
	return nil
}

type cursorRepo struct{ s *Store }

func (r *cursorRepo) Get(ctx context.Context, chainID int64) (*domain.Cursor, error) {
	defer r.s.lock()()
	c, ok := r.s.data.cursors[chainID]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (r *cursorRepo) Save(ctx context.Context, chainID int64, blockNumber uint64) error {
	defer r.s.lock()()
	r.s.data.cursors[chainID] = &domain.Cursor{
		ChainID:     chainID,
		BlockNumber: blockNumber,
		UpdatedAt:   time.Now().Unix(),
	}
	return nil
}

type auditRepo struct{ s *Store }

func (r *auditRepo) Append(ctx context.Context, a *domain.ClaimAudit) error {
	defer r.s.lock()()
	cp := *a
	r.s.data.audits = append(r.s.data.audits, &cp)
	return nil
}
