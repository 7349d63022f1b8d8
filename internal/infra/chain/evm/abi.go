package evm

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// View method selectors, first 4 bytes of the Keccak-256 of the canonical
// signature. Must match the deployed distributor contract ABI exactly.
var (
	selIsAirdropValid    = selector("isAirdropValid(uint256)")
	selGetNonce          = selector("getNonce(address)")
	selIsRewardClaimed   = selector("isRewardClaimed(uint256,uint256)")
	selSignatureDuration = selector("signatureExpiryDuration()")
)

// Event topic hashes.
var (
	topicAssetRegistered      = eventTopic("AssetRegistered(uint256,address,uint8,address)")
	topicRewardRegistered     = eventTopic("RewardRegistered(uint256,uint256,uint256,address,uint256,uint256)")
	topicRewardClaimed        = eventTopic("RewardClaimed(uint256,uint256,address)")
	topicAirdropRegistered    = eventTopic("AirdropRegistered(uint256,address,uint256,uint256)")
	topicAirdropPeriodUpdated = eventTopic("AirdropPeriodUpdated(uint256,uint256,uint256)")
	topicAirdropStatusUpdated = eventTopic("AirdropStatusUpdated(uint256,bool)")
)

func selector(sig string) []byte {
	return crypto.Keccak256([]byte(sig))[:4]
}

func eventTopic(sig string) common.Hash {
	return common.BytesToHash(crypto.Keccak256([]byte(sig)))
}

// packCall builds eth_call data: selector followed by 32-byte ABI words.
func packCall(sel []byte, words ...[]byte) string {
	data := make([]byte, 0, 4+32*len(words))
	data = append(data, sel...)
	for _, w := range words {
		data = append(data, common.LeftPadBytes(w, 32)...)
	}
	return "0x" + common.Bytes2Hex(data)
}

func uintWord(n int64) []byte {
	return big.NewInt(n).Bytes()
}

// decodeWords splits a hex eth_call result into 32-byte words.
func decodeWords(hexStr string, want int) ([][]byte, error) {
	raw, err := hexBytes(hexStr)
	if err != nil {
		return nil, err
	}
	if len(raw) < want*32 {
		return nil, fmt.Errorf("short return data: %d bytes, want %d words", len(raw), want)
	}
	words := make([][]byte, want)
	for i := 0; i < want; i++ {
		words[i] = raw[i*32 : (i+1)*32]
	}
	return words, nil
}

func hexBytes(hexStr string) ([]byte, error) {
	s := strings.TrimPrefix(hexStr, "0x")
	if len(s)%2 != 0 {
		s = "0" + s
	}
	b := common.Hex2Bytes(s)
	if len(b)*2 != len(s) {
		return nil, fmt.Errorf("invalid hex: %s", hexStr)
	}
	return b, nil
}

func wordToBig(w []byte) *big.Int {
	return new(big.Int).SetBytes(w)
}

func wordToBool(w []byte) bool {
	return wordToBig(w).Sign() != 0
}

func wordToAddress(w []byte) common.Address {
	return common.BytesToAddress(w)
}

func parseHexUint(hexStr string) (uint64, error) {
	n := new(big.Int)
	if _, ok := n.SetString(strings.TrimPrefix(hexStr, "0x"), 16); !ok {
		return 0, fmt.Errorf("invalid hex: %s", hexStr)
	}
	return n.Uint64(), nil
}

func getString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}
