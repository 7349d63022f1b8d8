package reconcile

import (
	"context"
	"errors"
	"math/big"
	"math/rand"
	"testing"
	"time"

	"github.com/claimgate/claimgate/internal/claims/lock"
	"github.com/claimgate/claimgate/internal/core/domain"
	"github.com/claimgate/claimgate/internal/infra/storage/memory"
)

func newTestPipeline() (*Pipeline, *memory.Store) {
	store := memory.NewStore()
	p := NewPipeline(store, lock.NewKeyedMutex())
	p.SetClock(func() time.Time { return time.Unix(1_700_000_000, 0) })
	return p, store
}

func airdropRegistered(txHash string) *domain.Event {
	return &domain.Event{
		ChainID:     1,
		Type:        domain.EventAirdropRegistered,
		TxHash:      txHash,
		BlockNumber: 100,
		AirdropID:   10,
		Creator:     "0x1111111111111111111111111111111111111111",
		StartTime:   1_600_000_000,
		EndTime:     1_900_000_000,
	}
}

func rewardRegistered(txHash string) *domain.Event {
	return &domain.Event{
		ChainID:     1,
		Type:        domain.EventRewardRegistered,
		TxHash:      txHash,
		BlockNumber: 101,
		AssetID:     2,
		RewardID:    42,
		AirdropID:   10,
		Recipient:   "0x2222222222222222222222222222222222222222",
		Amount:      big.NewInt(1000),
		TokenID:     big.NewInt(0),
	}
}

func rewardClaimed(txHash string) *domain.Event {
	return &domain.Event{
		ChainID:     1,
		Type:        domain.EventRewardClaimed,
		TxHash:      txHash,
		BlockNumber: 102,
		AssetID:     2,
		RewardID:    42,
		Recipient:   "0x2222222222222222222222222222222222222222",
		Timestamp:   1_690_000_000,
	}
}

func TestApplyRewardLifecycle(t *testing.T) {
	p, store := newTestPipeline()
	ctx := context.Background()

	for _, ev := range []*domain.Event{airdropRegistered("0xa1"), rewardRegistered("0xb1"), rewardClaimed("0xc1")} {
		if err := p.Apply(ctx, ev); err != nil {
			t.Fatalf("Apply(%s): %v", ev.Type, err)
		}
	}

	reward, err := store.Rewards().Get(ctx, 1, 2, 42)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if reward.Status != domain.RewardStatusClaimed {
		t.Errorf("status = %s, want CLAIMED", reward.Status)
	}
	if reward.ClaimTxHash != "0xc1" || reward.ClaimBlock != 102 {
		t.Errorf("claim tx metadata = (%s, %d)", reward.ClaimTxHash, reward.ClaimBlock)
	}
	if reward.ClaimedAt != 1_690_000_000 {
		t.Errorf("claimedAt = %d, want the event timestamp", reward.ClaimedAt)
	}
	if reward.RegTxHash != "0xb1" {
		t.Errorf("regTxHash = %s, want 0xb1", reward.RegTxHash)
	}
}

func TestApplyIsIdempotent(t *testing.T) {
	p, store := newTestPipeline()
	ctx := context.Background()

	ev := rewardRegistered("0xb1")
	if err := p.Apply(ctx, ev); err != nil {
		t.Fatalf("first Apply: %v", err)
	}
	first, _ := store.Rewards().Get(ctx, 1, 2, 42)

	// Exact redelivery must be a no-op short-circuited by the ledger.
	if err := p.Apply(ctx, rewardRegistered("0xb1")); err != nil {
		t.Fatalf("second Apply: %v", err)
	}
	second, _ := store.Rewards().Get(ctx, 1, 2, 42)
	if first.ID != second.ID {
		t.Errorf("redelivery created a new row: %d vs %d", first.ID, second.ID)
	}
}

func TestApplyRedeliveredRegistrationPatchesTxOnly(t *testing.T) {
	p, store := newTestPipeline()
	ctx := context.Background()

	if err := p.Apply(ctx, rewardRegistered("0xb1")); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	// Same reward from a different transaction, carrying a different amount.
	// Only registration metadata may move.
	redelivered := rewardRegistered("0xb2")
	redelivered.BlockNumber = 150
	redelivered.Amount = big.NewInt(9999)
	if err := p.Apply(ctx, redelivered); err != nil {
		t.Fatalf("Apply redelivered: %v", err)
	}

	reward, _ := store.Rewards().Get(ctx, 1, 2, 42)
	if reward.RegTxHash != "0xb2" || reward.RegBlock != 150 {
		t.Errorf("registration metadata = (%s, %d), want (0xb2, 150)", reward.RegTxHash, reward.RegBlock)
	}
	if reward.Amount.Cmp(big.NewInt(1000)) != 0 {
		t.Errorf("amount = %s, must not change on redelivery", reward.Amount)
	}
}

func TestApplyClaimBeforeRegistrationFails(t *testing.T) {
	p, _ := newTestPipeline()

	err := p.Apply(context.Background(), rewardClaimed("0xc1"))
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestProcessDefersFailedApply(t *testing.T) {
	p, store := newTestPipeline()
	ctx := context.Background()

	p.Process(ctx, rewardClaimed("0xc1"))

	entries := store.RetryEntries()
	if len(entries) != 1 {
		t.Fatalf("retry entries = %d, want 1", len(entries))
	}
	if entries[0].EventType != domain.EventRewardClaimed || entries[0].TxHash != "0xc1" {
		t.Errorf("deferred entry mismatch: %+v", entries[0])
	}
	if entries[0].LastError == "" {
		t.Error("deferred entry missing the failure cause")
	}
}

func TestApplyDuplicateClaimFromDifferentTx(t *testing.T) {
	p, store := newTestPipeline()
	ctx := context.Background()

	if err := p.Apply(ctx, rewardRegistered("0xb1")); err != nil {
		t.Fatalf("Apply registration: %v", err)
	}
	if err := p.Apply(ctx, rewardClaimed("0xc1")); err != nil {
		t.Fatalf("Apply claim: %v", err)
	}

	// The chain can only claim once, but delivery can duplicate. A second
	// claim event must leave the first transition untouched.
	if err := p.Apply(ctx, rewardClaimed("0xc2")); err != nil {
		t.Fatalf("Apply duplicate claim: %v", err)
	}

	reward, _ := store.Rewards().Get(ctx, 1, 2, 42)
	if reward.ClaimTxHash != "0xc1" {
		t.Errorf("claim tx = %s, want the original 0xc1", reward.ClaimTxHash)
	}
}

func TestApplyShuffledOrdersKeepClaimedFinal(t *testing.T) {
	// Delivery order is not guaranteed. Whatever order the events land in,
	// once a reward reaches CLAIMED it must never leave it, and replaying
	// the full set must converge on CLAIMED.
	events := []*domain.Event{
		airdropRegistered("0xa1"),
		rewardRegistered("0xb1"),
		rewardRegistered("0xb1"), // duplicate delivery
		rewardClaimed("0xc1"),
		rewardClaimed("0xc2"), // duplicate claim from another tx
		{ChainID: 1, Type: domain.EventAirdropPeriodUpdated, TxHash: "0xd1", AirdropID: 10,
			StartTime: 1_650_000_000, EndTime: 1_950_000_000},
		{ChainID: 1, Type: domain.EventAirdropStatusUpdated, TxHash: "0xe1", AirdropID: 10, Active: false},
	}

	for seed := int64(0); seed < 20; seed++ {
		p, store := newTestPipeline()
		ctx := context.Background()

		shuffled := make([]*domain.Event, len(events))
		copy(shuffled, events)
		rand.New(rand.NewSource(seed)).Shuffle(len(shuffled), func(i, j int) {
			shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
		})

		claimed := false
		for _, ev := range shuffled {
			_ = p.Apply(ctx, ev) // out-of-order deliveries may fail, that is fine
			reward, err := store.Rewards().Get(ctx, 1, 2, 42)
			if err != nil {
				t.Fatalf("seed %d: Get: %v", seed, err)
			}
			if claimed && (reward == nil || reward.Status != domain.RewardStatusClaimed) {
				t.Fatalf("seed %d: reward left CLAIMED after %s", seed, ev.Type)
			}
			if reward != nil && reward.Status == domain.RewardStatusClaimed {
				claimed = true
			}
		}

		// A second full pass stands in for the retry sweep: every order
		// must converge.
		for _, ev := range shuffled {
			_ = p.Apply(ctx, ev)
		}
		reward, _ := store.Rewards().Get(ctx, 1, 2, 42)
		if reward == nil || reward.Status != domain.RewardStatusClaimed {
			t.Fatalf("seed %d: reward = %+v, want CLAIMED after replay", seed, reward)
		}
	}
}

func TestApplyPeriodUpdateValidation(t *testing.T) {
	p, store := newTestPipeline()
	ctx := context.Background()

	if err := p.Apply(ctx, airdropRegistered("0xa1")); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	bad := &domain.Event{
		ChainID:   1,
		Type:      domain.EventAirdropPeriodUpdated,
		TxHash:    "0xd1",
		AirdropID: 10,
		StartTime: 1_800_000_000,
		EndTime:   1_700_000_000,
	}
	if err := p.Apply(ctx, bad); !errors.Is(err, domain.ErrInvalidState) {
		t.Errorf("err = %v, want ErrInvalidState for inverted window", err)
	}

	good := &domain.Event{
		ChainID:   1,
		Type:      domain.EventAirdropPeriodUpdated,
		TxHash:    "0xd2",
		AirdropID: 10,
		StartTime: 1_650_000_000,
		EndTime:   1_950_000_000,
	}
	if err := p.Apply(ctx, good); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	airdrop, _ := store.Airdrops().GetByOnchainID(ctx, 10)
	if airdrop.StartTime != 1_650_000_000 || airdrop.EndTime != 1_950_000_000 {
		t.Errorf("window = [%d, %d]", airdrop.StartTime, airdrop.EndTime)
	}
}

func TestApplyStatusUpdate(t *testing.T) {
	p, store := newTestPipeline()
	ctx := context.Background()

	if err := p.Apply(ctx, airdropRegistered("0xa1")); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	ev := &domain.Event{
		ChainID:   1,
		Type:      domain.EventAirdropStatusUpdated,
		TxHash:    "0xe1",
		AirdropID: 10,
		Active:    false,
	}
	if err := p.Apply(ctx, ev); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	airdrop, _ := store.Airdrops().GetByOnchainID(ctx, 10)
	if airdrop.Active {
		t.Error("airdrop still active after deactivation event")
	}
}

func TestApplyAssetRegistered(t *testing.T) {
	p, store := newTestPipeline()
	ctx := context.Background()

	ev := &domain.Event{
		ChainID:      1,
		Type:         domain.EventAssetRegistered,
		TxHash:       "0xf1",
		AssetID:      2,
		TokenAddress: "0x3333333333333333333333333333333333333333",
		Kind:         domain.AssetKindFungible,
		Provider:     "0x4444444444444444444444444444444444444444",
	}
	if err := p.Apply(ctx, ev); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	asset, err := store.Assets().Get(ctx, 1, 2)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if asset == nil || asset.Kind != domain.AssetKindFungible || !asset.Active {
		t.Errorf("asset = %+v", asset)
	}
}

func TestApplyRejectsMissingTxHash(t *testing.T) {
	p, _ := newTestPipeline()
	ev := airdropRegistered("")
	if err := p.Apply(context.Background(), ev); !errors.Is(err, domain.ErrInvalidState) {
		t.Errorf("err = %v, want ErrInvalidState", err)
	}
}
