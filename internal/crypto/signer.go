// Package crypto provides EIP-712 hashing, signing, and signature recovery
// for trade settlements, plus encrypted private-key storage for the local
// signer. The engine never holds user keys: it hashes and verifies, and
// signing happens wherever the key lives.
package crypto

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

var (
	// EIP712Domain(string name,string version,uint256 chainId)
	eip712DomainTypeHash = ethcrypto.Keccak256(
		[]byte("EIP712Domain(string name,string version,uint256 chainId)"),
	)

	// Settlement(string nonce,address wallet,string marketId,uint8 outcome,uint256 price,uint256 quantity,uint256 collateral,uint256 expiry)
	settlementTypeHash = ethcrypto.Keccak256(
		[]byte("Settlement(string nonce,address wallet,string marketId,uint8 outcome,uint256 price,uint256 quantity,uint256 collateral,uint256 expiry)"),
	)
)

const (
	domainName    = "PaddockSettlement"
	domainVersion = "1"
)

// Outcome codes used in the signed struct.
const (
	OutcomeCodeYes = 0
	OutcomeCodeNo  = 1
)

// SettlementPayload is the unsigned description of a trade settlement. The
// build call returns it to the client, an external signer produces a 65-byte
// signature over its EIP-712 digest, and the submit call verifies that the
// recovered address matches the settling wallet.
type SettlementPayload struct {
	Nonce       string `json:"nonce"`
	Wallet      string `json:"wallet"`
	MarketID    string `json:"marketId"`
	Outcome     int    `json:"outcome"` // 0 = YES, 1 = NO
	PriceMicros int64  `json:"price"`
	Quantity    int64  `json:"quantity"`
	Collateral  int64  `json:"collateral"`
	Expiry      int64  `json:"expiry"` // unix seconds
}

// Digest computes the EIP-712 digest of the payload for the given chain:
// keccak256("\x19\x01" || domainSeparator || structHash).
func (p SettlementPayload) Digest(chainID int) []byte {
	domainSep := ethcrypto.Keccak256(concatBytes(
		eip712DomainTypeHash,
		ethcrypto.Keccak256([]byte(domainName)),
		ethcrypto.Keccak256([]byte(domainVersion)),
		bigIntTo32Bytes(big.NewInt(int64(chainID))),
	))

	structHash := ethcrypto.Keccak256(concatBytes(
		settlementTypeHash,
		ethcrypto.Keccak256([]byte(p.Nonce)),
		common.LeftPadBytes(common.HexToAddress(p.Wallet).Bytes(), 32),
		ethcrypto.Keccak256([]byte(p.MarketID)),
		bigIntTo32Bytes(big.NewInt(int64(p.Outcome))),
		bigIntTo32Bytes(big.NewInt(p.PriceMicros)),
		bigIntTo32Bytes(big.NewInt(p.Quantity)),
		bigIntTo32Bytes(big.NewInt(p.Collateral)),
		bigIntTo32Bytes(big.NewInt(p.Expiry)),
	))

	return ethcrypto.Keccak256(concatBytes([]byte{0x19, 0x01}, domainSep, structHash))
}

// Signer signs settlement payloads with a locally held secp256k1 key. It is
// used by tests and by operators who run the signing side in-process; in
// production the counterpart usually lives in the user's wallet.
type Signer struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
	chainID    int
}

// NewSigner creates a Signer from a hex-encoded private key and chain id.
func NewSigner(privateKeyHex string, chainID int) (*Signer, error) {
	pk, err := ethcrypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("crypto: invalid private key: %w", err)
	}
	return &Signer{
		privateKey: pk,
		address:    ethcrypto.PubkeyToAddress(pk.PublicKey),
		chainID:    chainID,
	}, nil
}

// Address returns the address derived from the signer's key.
func (s *Signer) Address() common.Address {
	return s.address
}

// SignSettlement signs the payload's EIP-712 digest and returns the
// hex-encoded 65-byte signature (r || s || v).
func (s *Signer) SignSettlement(p SettlementPayload) (string, error) {
	sig, err := ethcrypto.Sign(p.Digest(s.chainID), s.privateKey)
	if err != nil {
		return "", fmt.Errorf("crypto: sign settlement: %w", err)
	}
	// go-ethereum yields v in {0,1}; wallets expect {27,28}.
	if sig[64] < 27 {
		sig[64] += 27
	}
	return "0x" + hex.EncodeToString(sig), nil
}

// RecoverSigner returns the address that produced the given signature over
// the payload's digest.
func RecoverSigner(p SettlementPayload, sigHex string, chainID int) (common.Address, error) {
	sig, err := hex.DecodeString(strings.TrimPrefix(sigHex, "0x"))
	if err != nil {
		return common.Address{}, fmt.Errorf("crypto: decode signature: %w", err)
	}
	if len(sig) != 65 {
		return common.Address{}, fmt.Errorf("crypto: signature must be 65 bytes, got %d", len(sig))
	}
	// Normalize v back to {0,1} for recovery.
	recSig := make([]byte, 65)
	copy(recSig, sig)
	if recSig[64] >= 27 {
		recSig[64] -= 27
	}

	pub, err := ethcrypto.SigToPub(p.Digest(chainID), recSig)
	if err != nil {
		return common.Address{}, fmt.Errorf("crypto: recover public key: %w", err)
	}
	return ethcrypto.PubkeyToAddress(*pub), nil
}

func bigIntTo32Bytes(n *big.Int) []byte {
	b := n.Bytes()
	if len(b) >= 32 {
		return b[:32]
	}
	padded := make([]byte, 32)
	copy(padded[32-len(b):], b)
	return padded
}

func concatBytes(slices ...[]byte) []byte {
	total := 0
	for _, s := range slices {
		total += len(s)
	}
	buf := make([]byte, 0, total)
	for _, s := range slices {
		buf = append(buf, s...)
	}
	return buf
}
