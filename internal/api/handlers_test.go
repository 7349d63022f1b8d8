package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/claimgate/claimgate/internal/claims/lock"
	"github.com/claimgate/claimgate/internal/claims/prepare"
	"github.com/claimgate/claimgate/internal/claims/signer"
	"github.com/claimgate/claimgate/internal/core/domain"
	"github.com/claimgate/claimgate/internal/infra/chain"
	"github.com/claimgate/claimgate/internal/infra/storage/memory"
)

const testUser = "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"

type stubGateway struct {
	claimed bool
}

func (g *stubGateway) IsAirdropValid(ctx context.Context, airdropID int64) (bool, int64, error) {
	return true, 1_900_000_000, nil
}
func (g *stubGateway) GetNonce(ctx context.Context, user common.Address) (uint64, error) {
	return 1, nil
}
func (g *stubGateway) IsRewardClaimed(ctx context.Context, assetID, rewardID int64) (bool, error) {
	return g.claimed, nil
}
func (g *stubGateway) SignatureExpiryDuration(ctx context.Context) (int64, error) {
	return 3600, nil
}

func newTestHandlers(t *testing.T) (*handlers, *memory.Store, *stubGateway) {
	t.Helper()
	store := memory.NewStore()
	gw := &stubGateway{}
	keySigner, err := signer.NewKeySigner("b71c71a67e1177ad4e901695e1b4b9ee17ae16c6668d313eac2f96dbcda3f291")
	if err != nil {
		t.Fatalf("NewKeySigner: %v", err)
	}
	svc := prepare.NewService(store, map[int64]chain.Gateway{137: gw}, keySigner, lock.NewKeyedMutex())
	svc.SetClock(func() time.Time { return time.Unix(1_700_000_000, 0) })
	return &handlers{svc: svc, log: slog.Default()}, store, gw
}

func seedClaimable(t *testing.T, store *memory.Store) {
	t.Helper()
	ctx := context.Background()
	if err := store.Airdrops().Upsert(ctx, &domain.Airdrop{
		OnchainID: 10, StartTime: 1_600_000_000, EndTime: 1_900_000_000, Active: true,
	}); err != nil {
		t.Fatalf("seed airdrop: %v", err)
	}
	if err := store.Rewards().Insert(ctx, &domain.Reward{
		ChainID: 137, AssetID: 1, OnchainID: 42, AirdropID: 10,
		Recipient: testUser, Amount: big.NewInt(1000), Status: domain.RewardStatusPending,
	}); err != nil {
		t.Fatalf("seed reward: %v", err)
	}
}

func postJSON(t *testing.T, handler http.HandlerFunc, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case string:
		buf.WriteString(b)
	default:
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(http.MethodPost, "/", &buf)
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func prepareBody(rewardID int64, user string) map[string]any {
	return map[string]any{
		"chainId": 137, "assetId": 1, "rewardId": rewardID, "airdropId": 10,
		"userAddress": user,
	}
}

func TestPrepareClaimEndpoint(t *testing.T) {
	h, store, _ := newTestHandlers(t)
	seedClaimable(t, store)

	rec := postJSON(t, h.prepareClaim, prepareBody(42, testUser))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}

	var auth domain.ClaimAuthorization
	if err := json.Unmarshal(rec.Body.Bytes(), &auth); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if auth.Signature == "" || auth.ExpiresAt != 1_700_000_000+3600 {
		t.Errorf("auth = %+v", auth)
	}
}

func TestPrepareClaimEndpointStatusMapping(t *testing.T) {
	h, store, gw := newTestHandlers(t)
	seedClaimable(t, store)

	cases := []struct {
		name  string
		setup func()
		body  any
		want  int
	}{
		{"malformed body", nil, "{broken", http.StatusBadRequest},
		{"missing address", nil, prepareBody(42, ""), http.StatusBadRequest},
		{"negative id", nil, prepareBody(-1, testUser), http.StatusBadRequest},
		{"unknown reward", nil, prepareBody(999, testUser), http.StatusNotFound},
		{"already claimed on-chain", func() { gw.claimed = true }, prepareBody(42, testUser), http.StatusConflict},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if tc.setup != nil {
				tc.setup()
			}
			rec := postJSON(t, h.prepareClaim, tc.body)
			if rec.Code != tc.want {
				t.Errorf("status = %d, want %d, body %s", rec.Code, tc.want, rec.Body)
			}
		})
	}
}

func TestRegisterRewardsEndpoint(t *testing.T) {
	h, store, _ := newTestHandlers(t)
	seedClaimable(t, store)

	body := map[string]any{
		"rewards": []map[string]any{{
			"chainId": 137, "assetId": 1, "rewardId": 43, "airdropId": 10,
			"recipient": testUser, "amount": "2500",
		}},
	}
	rec := postJSON(t, h.registerRewards, body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}

	var resp registerRewardsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Registered != 1 || len(resp.Commitments) != 1 {
		t.Errorf("resp = %+v", resp)
	}

	reward, err := store.Rewards().Get(context.Background(), 137, 1, 43)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if reward == nil || reward.Amount.Cmp(big.NewInt(2500)) != 0 {
		t.Errorf("reward = %+v", reward)
	}
}

func TestRegisterRewardsEndpointErrors(t *testing.T) {
	h, store, _ := newTestHandlers(t)
	seedClaimable(t, store)

	cases := []struct {
		name string
		body any
		want int
	}{
		{"empty batch", map[string]any{"rewards": []map[string]any{}}, http.StatusBadRequest},
		{"bad amount", map[string]any{"rewards": []map[string]any{{
			"chainId": 137, "assetId": 1, "rewardId": 43, "airdropId": 10,
			"recipient": testUser, "amount": "1.5",
		}}}, http.StatusBadRequest},
		{"duplicate", map[string]any{"rewards": []map[string]any{{
			"chainId": 137, "assetId": 1, "rewardId": 42, "airdropId": 10,
			"recipient": testUser, "amount": "100",
		}}}, http.StatusConflict},
		{"unknown airdrop", map[string]any{"rewards": []map[string]any{{
			"chainId": 137, "assetId": 1, "rewardId": 44, "airdropId": 99,
			"recipient": testUser, "amount": "100",
		}}}, http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := postJSON(t, h.registerRewards, tc.body)
			if rec.Code != tc.want {
				t.Errorf("status = %d, want %d, body %s", rec.Code, tc.want, rec.Body)
			}
		})
	}
}

func TestHealthEndpoint(t *testing.T) {
	ok := healthStub{}
	failing := healthStub{err: fmt.Errorf("connection refused")}

	h := &handlers{checkers: map[string]HealthChecker{"postgres": ok}, log: slog.Default()}
	rec := httptest.NewRecorder()
	h.health(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}

	h = &handlers{checkers: map[string]HealthChecker{"postgres": ok, "redis": failing}, log: slog.Default()}
	rec = httptest.NewRecorder()
	h.health(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

type healthStub struct{ err error }

func (s healthStub) Health(ctx context.Context) error { return s.err }
