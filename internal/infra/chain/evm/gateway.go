package evm

import (
	"context"
	"fmt"

	logger "log/slog"

	"github.com/ethereum/go-ethereum/common"

	"github.com/claimgate/claimgate/internal/core/domain"
	"github.com/claimgate/claimgate/internal/infra/rpc"
)

// Gateway translates distributor contract calls into typed results for one
// (chain id, contract) pair. No side effects beyond the RPC call itself.
type Gateway struct {
	chainID  int64
	contract common.Address
	client   *rpc.Client
	retryCfg rpc.RetryConfig
	log      *logger.Logger
}

func NewGateway(chainID int64, contract common.Address, client *rpc.Client) *Gateway {
	return &Gateway{
		chainID:  chainID,
		contract: contract,
		client:   client,
		retryCfg: rpc.DefaultRetryConfig,
		log:      logger.Default(),
	}
}

func (g *Gateway) ChainID() int64 { return g.chainID }

func (g *Gateway) IsAirdropValid(ctx context.Context, airdropID int64) (bool, int64, error) {
	words, err := g.view(ctx, "isAirdropValid", packCall(selIsAirdropValid, uintWord(airdropID)), 2)
	if err != nil {
		return false, 0, err
	}
	return wordToBool(words[0]), wordToBig(words[1]).Int64(), nil
}

func (g *Gateway) GetNonce(ctx context.Context, user common.Address) (uint64, error) {
	words, err := g.view(ctx, "getNonce", packCall(selGetNonce, user.Bytes()), 1)
	if err != nil {
		return 0, err
	}
	return wordToBig(words[0]).Uint64(), nil
}

func (g *Gateway) IsRewardClaimed(ctx context.Context, assetID, rewardID int64) (bool, error) {
	words, err := g.view(ctx, "isRewardClaimed", packCall(selIsRewardClaimed, uintWord(assetID), uintWord(rewardID)), 1)
	if err != nil {
		return false, err
	}
	return wordToBool(words[0]), nil
}

func (g *Gateway) SignatureExpiryDuration(ctx context.Context) (int64, error) {
	words, err := g.view(ctx, "signatureExpiryDuration", packCall(selSignatureDuration), 1)
	if err != nil {
		return 0, err
	}
	return wordToBig(words[0]).Int64(), nil
}

// view executes an eth_call against the distributor and decodes the return
// data into 32-byte words.
func (g *Gateway) view(ctx context.Context, method, data string, wantWords int) ([][]byte, error) {
	params := []any{
		map[string]any{
			"to":   g.contract.Hex(),
			"data": data,
		},
		"latest",
	}
	result, err := rpc.CallWithRetry(ctx, g.client, "eth_call", params, g.retryCfg)
	if err != nil {
		return nil, &domain.RPCError{Method: method, Err: err}
	}

	hexStr, ok := result.(string)
	if !ok {
		return nil, &domain.RPCError{Method: method, Err: fmt.Errorf("unexpected result type %T", result)}
	}
	words, err := decodeWords(hexStr, wantWords)
	if err != nil {
		return nil, &domain.RPCError{Method: method, Err: err}
	}
	return words, nil
}

func (g *Gateway) LatestBlock(ctx context.Context) (uint64, error) {
	result, err := rpc.CallWithRetry(ctx, g.client, "eth_blockNumber", nil, g.retryCfg)
	if err != nil {
		return 0, &domain.RPCError{Method: "eth_blockNumber", Err: err}
	}
	blockHex, ok := result.(string)
	if !ok {
		return 0, &domain.RPCError{Method: "eth_blockNumber", Err: fmt.Errorf("invalid block number response")}
	}
	n, err := parseHexUint(blockHex)
	if err != nil {
		return 0, &domain.RPCError{Method: "eth_blockNumber", Err: err}
	}
	return n, nil
}

// FilterEvents fetches distributor logs in [fromBlock, toBlock] and decodes
// them into domain events. Unknown topics are skipped.
func (g *Gateway) FilterEvents(ctx context.Context, fromBlock, toBlock uint64) ([]*domain.Event, error) {
	params := []any{
		map[string]any{
			"fromBlock": fmt.Sprintf("0x%x", fromBlock),
			"toBlock":   fmt.Sprintf("0x%x", toBlock),
			"address":   g.contract.Hex(),
		},
	}
	result, err := rpc.CallWithRetry(ctx, g.client, "eth_getLogs", params, g.retryCfg)
	if err != nil {
		return nil, &domain.RPCError{Method: "eth_getLogs", Err: err}
	}

	rawLogs, ok := result.([]any)
	if !ok {
		return nil, &domain.RPCError{Method: "eth_getLogs", Err: fmt.Errorf("invalid logs response")}
	}

	events := make([]*domain.Event, 0, len(rawLogs))
	for _, rawLog := range rawLogs {
		logData, ok := rawLog.(map[string]any)
		if !ok {
			continue
		}
		if removed, _ := logData["removed"].(bool); removed {
			continue
		}
		ev, err := g.decodeLog(logData)
		if err != nil {
			g.log.Warn("undecodable distributor log", "chain", g.chainID, "error", err)
			continue
		}
		if ev != nil {
			events = append(events, ev)
		}
	}
	return events, nil
}

func (g *Gateway) decodeLog(logData map[string]any) (*domain.Event, error) {
	rawTopics, ok := logData["topics"].([]any)
	if !ok || len(rawTopics) == 0 {
		return nil, fmt.Errorf("log without topics")
	}
	topics := make([]common.Hash, len(rawTopics))
	for i, t := range rawTopics {
		topics[i] = common.HexToHash(getString(t))
	}

	data, err := hexBytes(getString(logData["data"]))
	if err != nil {
		return nil, fmt.Errorf("log data: %w", err)
	}
	blockNumber, err := parseHexUint(getString(logData["blockNumber"]))
	if err != nil {
		return nil, fmt.Errorf("log block number: %w", err)
	}

	ev := &domain.Event{
		ChainID:     g.chainID,
		TxHash:      getString(logData["transactionHash"]),
		BlockNumber: blockNumber,
	}

	switch topics[0] {
	case topicAssetRegistered:
		if len(topics) < 2 || len(data) < 96 {
			return nil, fmt.Errorf("malformed AssetRegistered log")
		}
		ev.Type = domain.EventAssetRegistered
		ev.AssetID = topics[1].Big().Int64()
		ev.TokenAddress = wordToAddress(data[0:32]).Hex()
		ev.Kind = assetKindFromCode(wordToBig(data[32:64]).Int64())
		ev.Provider = wordToAddress(data[64:96]).Hex()

	case topicRewardRegistered:
		if len(topics) < 3 || len(data) < 128 {
			return nil, fmt.Errorf("malformed RewardRegistered log")
		}
		ev.Type = domain.EventRewardRegistered
		ev.AssetID = topics[1].Big().Int64()
		ev.RewardID = topics[2].Big().Int64()
		ev.AirdropID = wordToBig(data[0:32]).Int64()
		ev.Recipient = wordToAddress(data[32:64]).Hex()
		ev.Amount = wordToBig(data[64:96])
		ev.TokenID = wordToBig(data[96:128])

	case topicRewardClaimed:
		if len(topics) < 3 || len(data) < 32 {
			return nil, fmt.Errorf("malformed RewardClaimed log")
		}
		ev.Type = domain.EventRewardClaimed
		ev.AssetID = topics[1].Big().Int64()
		ev.RewardID = topics[2].Big().Int64()
		ev.Recipient = wordToAddress(data[0:32]).Hex()

	case topicAirdropRegistered:
		if len(topics) < 2 || len(data) < 96 {
			return nil, fmt.Errorf("malformed AirdropRegistered log")
		}
		ev.Type = domain.EventAirdropRegistered
		ev.AirdropID = topics[1].Big().Int64()
		ev.Creator = wordToAddress(data[0:32]).Hex()
		ev.StartTime = wordToBig(data[32:64]).Int64()
		ev.EndTime = wordToBig(data[64:96]).Int64()

	case topicAirdropPeriodUpdated:
		if len(topics) < 2 || len(data) < 64 {
			return nil, fmt.Errorf("malformed AirdropPeriodUpdated log")
		}
		ev.Type = domain.EventAirdropPeriodUpdated
		ev.AirdropID = topics[1].Big().Int64()
		ev.StartTime = wordToBig(data[0:32]).Int64()
		ev.EndTime = wordToBig(data[32:64]).Int64()

	case topicAirdropStatusUpdated:
		if len(topics) < 2 || len(data) < 32 {
			return nil, fmt.Errorf("malformed AirdropStatusUpdated log")
		}
		ev.Type = domain.EventAirdropStatusUpdated
		ev.AirdropID = topics[1].Big().Int64()
		ev.Active = wordToBool(data[0:32])

	default:
		// Not a distributor event we track.
		return nil, nil
	}

	return ev, nil
}

func assetKindFromCode(code int64) domain.AssetKind {
	switch code {
	case 1:
		return domain.AssetKindNonFungible
	case 2:
		return domain.AssetKindSemiFungible
	default:
		return domain.AssetKindFungible
	}
}
