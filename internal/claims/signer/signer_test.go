package signer

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

const testKey = "b71c71a67e1177ad4e901695e1b4b9ee17ae16c6668d313eac2f96dbcda3f291"

func TestNewKeySignerAcceptsHexPrefix(t *testing.T) {
	bare, err := NewKeySigner(testKey)
	if err != nil {
		t.Fatalf("bare key: %v", err)
	}
	prefixed, err := NewKeySigner("0x" + testKey)
	if err != nil {
		t.Fatalf("prefixed key: %v", err)
	}
	if bare.Address() != prefixed.Address() {
		t.Errorf("addresses differ: %s vs %s", bare.Address().Hex(), prefixed.Address().Hex())
	}
}

func TestNewKeySignerRejectsGarbage(t *testing.T) {
	if _, err := NewKeySigner("not-a-key"); err == nil {
		t.Error("expected error for invalid key")
	}
}

func TestCommitmentDeterministic(t *testing.T) {
	recipient := common.HexToAddress("0x1111111111111111111111111111111111111111")
	amount := big.NewInt(1000)

	a := Commitment(recipient, amount, nil)
	b := Commitment(recipient, amount, nil)
	if a != b {
		t.Errorf("same inputs produced different commitments: %s vs %s", a.Hex(), b.Hex())
	}

	if c := Commitment(recipient, big.NewInt(1001), nil); c == a {
		t.Error("different amounts produced the same commitment")
	}
	if c := Commitment(common.HexToAddress("0x2222222222222222222222222222222222222222"), amount, nil); c == a {
		t.Error("different recipients produced the same commitment")
	}
	if c := Commitment(recipient, amount, big.NewInt(7)); c == a {
		t.Error("token id did not affect the commitment")
	}
}

func TestCommitmentNilTokenIDEqualsZero(t *testing.T) {
	recipient := common.HexToAddress("0x1111111111111111111111111111111111111111")
	amount := big.NewInt(5)

	if Commitment(recipient, amount, nil) != Commitment(recipient, amount, big.NewInt(0)) {
		t.Error("nil token id should pack identically to zero")
	}
}

func TestClaimDigestSensitivity(t *testing.T) {
	user := common.HexToAddress("0x3333333333333333333333333333333333333333")
	base := ClaimDigest(1, user, 2, 3, 4, 1700000000)

	variants := map[string]common.Hash{
		"chain":  ClaimDigest(2, user, 2, 3, 4, 1700000000),
		"asset":  ClaimDigest(1, user, 9, 3, 4, 1700000000),
		"reward": ClaimDigest(1, user, 2, 9, 4, 1700000000),
		"nonce":  ClaimDigest(1, user, 2, 3, 5, 1700000000),
		"time":   ClaimDigest(1, user, 2, 3, 4, 1700000001),
	}
	for name, digest := range variants {
		if digest == base {
			t.Errorf("changing %s did not change the digest", name)
		}
	}
}

func TestSignClaimRecoversSignerAddress(t *testing.T) {
	s, err := NewKeySigner(testKey)
	if err != nil {
		t.Fatalf("NewKeySigner: %v", err)
	}
	user := common.HexToAddress("0x4444444444444444444444444444444444444444")

	sigHex, err := SignClaim(s, 137, user, 1, 42, 7, 1700000000)
	if err != nil {
		t.Fatalf("SignClaim: %v", err)
	}

	sig, err := hexutil.Decode(sigHex)
	if err != nil {
		t.Fatalf("decode signature: %v", err)
	}
	if len(sig) != 65 {
		t.Fatalf("signature length = %d, want 65", len(sig))
	}
	if v := sig[64]; v != 27 && v != 28 {
		t.Fatalf("V = %d, want 27 or 28", v)
	}

	// Recover and compare against the signer address.
	sig[64] -= 27
	digest := ClaimDigest(137, user, 1, 42, 7, 1700000000)
	pub, err := crypto.SigToPub(digest.Bytes(), sig)
	if err != nil {
		t.Fatalf("SigToPub: %v", err)
	}
	if recovered := crypto.PubkeyToAddress(*pub); recovered != s.Address() {
		t.Errorf("recovered %s, want %s", recovered.Hex(), s.Address().Hex())
	}
}

func TestSignRejectsShortDigest(t *testing.T) {
	s, err := NewKeySigner(testKey)
	if err != nil {
		t.Fatalf("NewKeySigner: %v", err)
	}
	if _, err := s.Sign([]byte{1, 2, 3}); err == nil {
		t.Error("expected error for non-32-byte digest")
	}
}
