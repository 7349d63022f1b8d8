package api

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"time"

	logger "log/slog"

	"github.com/claimgate/claimgate/internal/claims/prepare"
	"github.com/claimgate/claimgate/internal/core/domain"
)

type handlers struct {
	svc      *prepare.Service
	checkers map[string]HealthChecker
	log      *logger.Logger
}

type prepareClaimRequest struct {
	ChainID     int64  `json:"chainId"`
	AssetID     int64  `json:"assetId"`
	RewardID    int64  `json:"rewardId"`
	AirdropID   int64  `json:"airdropId"`
	UserAddress string `json:"userAddress"`
}

func (h *handlers) prepareClaim(w http.ResponseWriter, r *http.Request) {
	var req prepareClaimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ChainID <= 0 || req.AssetID <= 0 || req.RewardID <= 0 {
		writeError(w, http.StatusBadRequest, "chainId, assetId and rewardId must be positive")
		return
	}
	if req.UserAddress == "" {
		writeError(w, http.StatusBadRequest, "userAddress is required")
		return
	}

	auth, err := h.svc.PrepareClaim(r.Context(), prepare.Request{
		ChainID:     req.ChainID,
		AssetID:     req.AssetID,
		RewardID:    req.RewardID,
		AirdropID:   req.AirdropID,
		UserAddress: req.UserAddress,
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, auth)
}

type registerRewardInput struct {
	ChainID   int64  `json:"chainId"`
	AssetID   int64  `json:"assetId"`
	RewardID  int64  `json:"rewardId"`
	AirdropID int64  `json:"airdropId"`
	Recipient string `json:"recipient"`
	Amount    string `json:"amount"`
	TokenID   string `json:"tokenId,omitempty"`
	TxHash    string `json:"txHash,omitempty"`
	Block     uint64 `json:"block,omitempty"`
}

type registerRewardsRequest struct {
	Rewards []registerRewardInput `json:"rewards"`
}

type registerRewardsResponse struct {
	Registered  int      `json:"registered"`
	Commitments []string `json:"commitments"`
}

func (h *handlers) registerRewards(w http.ResponseWriter, r *http.Request) {
	var req registerRewardsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Rewards) == 0 {
		writeError(w, http.StatusBadRequest, "rewards must not be empty")
		return
	}

	inputs := make([]prepare.RegistrationInput, 0, len(req.Rewards))
	for _, in := range req.Rewards {
		amount, ok := new(big.Int).SetString(in.Amount, 10)
		if !ok {
			writeError(w, http.StatusBadRequest, "amount must be a base-10 integer")
			return
		}
		var tokenID *big.Int
		if in.TokenID != "" {
			tokenID, ok = new(big.Int).SetString(in.TokenID, 10)
			if !ok {
				writeError(w, http.StatusBadRequest, "tokenId must be a base-10 integer")
				return
			}
		}
		inputs = append(inputs, prepare.RegistrationInput{
			ChainID:   in.ChainID,
			AssetID:   in.AssetID,
			RewardID:  in.RewardID,
			AirdropID: in.AirdropID,
			Recipient: in.Recipient,
			Amount:    amount,
			TokenID:   tokenID,
			TxHash:    in.TxHash,
			Block:     in.Block,
		})
	}

	rewards, err := h.svc.RegisterBatch(r.Context(), inputs)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	resp := registerRewardsResponse{Registered: len(rewards)}
	for _, reward := range rewards {
		resp.Commitments = append(resp.Commitments, reward.Commitment)
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := http.StatusOK
	deps := make(map[string]string, len(h.checkers))
	for name, checker := range h.checkers {
		if err := checker.Health(ctx); err != nil {
			deps[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		deps[name] = "ok"
	}
	writeJSON(w, status, map[string]any{
		"status": http.StatusText(status),
		"deps":   deps,
	})
}

// writeDomainError maps the service error taxonomy onto HTTP statuses.
func (h *handlers) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var status int
	switch {
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrInvalidState):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrUnavailable):
		status = http.StatusServiceUnavailable
	default:
		status = http.StatusInternalServerError
	}
	if status == http.StatusInternalServerError {
		h.log.Error("request failed", "path", r.URL.Path, "error", err)
	}
	writeError(w, status, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
