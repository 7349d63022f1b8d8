package signer

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/claimgate/claimgate/internal/core/domain"
)

// personalPrefix is the standard Ethereum signed-message prefix for a
// 32-byte payload. The on-chain verifier reconstructs the same wrapping
// before ecrecover.
const personalPrefix = "\x19Ethereum Signed Message:\n32"

// Signer produces claim-authorization signatures with the verifier key
// whose address is configured on-chain.
type Signer interface {
	// Sign signs a 32-byte digest and returns a 65-byte [R || S || V]
	// signature with V in {27, 28}.
	Sign(digest []byte) ([]byte, error)

	// Address returns the signer's public address.
	Address() common.Address
}

// KeySigner signs with a single long-lived secp256k1 key held in memory.
type KeySigner struct {
	key  *ecdsa.PrivateKey
	addr common.Address
}

// NewKeySigner parses a hex-encoded private key (with or without 0x).
func NewKeySigner(hexKey string) (*KeySigner, error) {
	if len(hexKey) >= 2 && hexKey[:2] == "0x" {
		hexKey = hexKey[2:]
	}
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrSigning, err)
	}
	return &KeySigner{
		key:  key,
		addr: crypto.PubkeyToAddress(key.PublicKey),
	}, nil
}

func (s *KeySigner) Sign(digest []byte) ([]byte, error) {
	if len(digest) != 32 {
		return nil, fmt.Errorf("%w: digest must be 32 bytes, got %d", domain.ErrSigning, len(digest))
	}
	sig, err := crypto.Sign(digest, s.key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrSigning, err)
	}
	// Solidity ecrecover expects V in {27, 28}.
	sig[64] += 27
	return sig, nil
}

func (s *KeySigner) Address() common.Address { return s.addr }

// Commitment binds the economically meaningful reward parameters. Packed as
// abi.encodePacked(address, uint256, uint256); a nil tokenId packs as zero.
// Independent of chain id and nonce so registration and claim agree on it.
func Commitment(recipient common.Address, amount, tokenID *big.Int) common.Hash {
	return common.BytesToHash(crypto.Keccak256(
		recipient.Bytes(),
		word(amount),
		word(tokenID),
	))
}

// ClaimDigest computes the personal-message digest the contract recovers
// the verifier address from. Byte order and integer widths must match the
// on-chain abi.encodePacked reconstruction exactly.
func ClaimDigest(chainID int64, user common.Address, assetID, rewardID int64, nonce uint64, issuedAt int64) common.Hash {
	inner := crypto.Keccak256(
		word(big.NewInt(chainID)),
		user.Bytes(),
		word(big.NewInt(assetID)),
		word(big.NewInt(rewardID)),
		word(new(big.Int).SetUint64(nonce)),
		word(big.NewInt(issuedAt)),
	)
	return common.BytesToHash(crypto.Keccak256([]byte(personalPrefix), inner))
}

// SignClaim computes the claim digest and signs it, returning the
// hex-encoded signature stored and returned to the claimant.
func SignClaim(s Signer, chainID int64, user common.Address, assetID, rewardID int64, nonce uint64, issuedAt int64) (string, error) {
	digest := ClaimDigest(chainID, user, assetID, rewardID, nonce, issuedAt)
	sig, err := s.Sign(digest.Bytes())
	if err != nil {
		return "", err
	}
	return hexutil.Encode(sig), nil
}

// word left-pads a non-negative integer to a 32-byte ABI word.
func word(n *big.Int) []byte {
	if n == nil {
		return make([]byte, 32)
	}
	return common.LeftPadBytes(n.Bytes(), 32)
}
