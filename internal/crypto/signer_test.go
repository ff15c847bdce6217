package crypto

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testKeyHex  = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"
	otherKeyHex = "8da4ef21b864d2cc526dbdb2a120bd2874c36c9d0a1fb7f8c63d7f7a8b41de8f"
	testChainID = 137
)

func testPayload() SettlementPayload {
	return SettlementPayload{
		Nonce:       "1b671a64-40d5-491e-99b0-da01ff1f3341",
		Wallet:      "0x2c7536E3605D9C16a7a3D7b1898e529396a65c23",
		MarketID:    "mkt-verstappen-monza",
		Outcome:     OutcomeCodeYes,
		PriceMicros: 620_000,
		Quantity:    25,
		Collateral:  15_500_000,
		Expiry:      1_772_000_000,
	}
}

func TestNewSigner_RejectsBadKey(t *testing.T) {
	_, err := NewSigner("not-a-key", testChainID)
	assert.Error(t, err)
}

func TestSignSettlement_RecoverRoundTrip(t *testing.T) {
	signer, err := NewSigner(testKeyHex, testChainID)
	require.NoError(t, err)

	payload := testPayload()
	sig, err := signer.SignSettlement(payload)
	require.NoError(t, err)

	recovered, err := RecoverSigner(payload, sig, testChainID)
	require.NoError(t, err)
	assert.Equal(t, signer.Address(), recovered)

	// The 0x prefix is optional on verification.
	recovered, err = RecoverSigner(payload, sig[2:], testChainID)
	require.NoError(t, err)
	assert.Equal(t, signer.Address(), recovered)
}

func TestRecoverSigner_TamperedPayloadRecoversDifferentAddress(t *testing.T) {
	signer, err := NewSigner(testKeyHex, testChainID)
	require.NoError(t, err)

	payload := testPayload()
	sig, err := signer.SignSettlement(payload)
	require.NoError(t, err)

	tampered := payload
	tampered.PriceMicros = 10_000

	recovered, err := RecoverSigner(tampered, sig, testChainID)
	if err == nil {
		assert.NotEqual(t, signer.Address(), recovered)
	}
}

func TestRecoverSigner_WrongChainDoesNotVerify(t *testing.T) {
	signer, err := NewSigner(testKeyHex, testChainID)
	require.NoError(t, err)

	payload := testPayload()
	sig, err := signer.SignSettlement(payload)
	require.NoError(t, err)

	recovered, err := RecoverSigner(payload, sig, testChainID+1)
	if err == nil {
		assert.NotEqual(t, signer.Address(), recovered)
	}
}

func TestRecoverSigner_RejectsMalformedSignature(t *testing.T) {
	_, err := RecoverSigner(testPayload(), "0xdeadbeef", testChainID)
	assert.Error(t, err)
}

func TestDigest_DistinctKeysDistinctAddresses(t *testing.T) {
	a, err := NewSigner(testKeyHex, testChainID)
	require.NoError(t, err)
	b, err := NewSigner(otherKeyHex, testChainID)
	require.NoError(t, err)
	assert.NotEqual(t, a.Address(), b.Address())
}

func TestEncryptKey_LoadRoundTrip(t *testing.T) {
	blob, err := EncryptKey("0x"+testKeyHex, "horse battery staple")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "signer.json")
	require.NoError(t, os.WriteFile(path, blob, 0o600))

	got, err := LoadKey(KeyConfig{EncryptedKeyPath: path, KeyPassword: "horse battery staple"})
	require.NoError(t, err)
	assert.Equal(t, testKeyHex, got)
}

func TestLoadKey_WrongPassword(t *testing.T) {
	blob, err := EncryptKey(testKeyHex, "correct")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "signer.json")
	require.NoError(t, os.WriteFile(path, blob, 0o600))

	_, err = LoadKey(KeyConfig{EncryptedKeyPath: path, KeyPassword: "wrong"})
	assert.Error(t, err)
}

func TestLoadKey_RawKeyWins(t *testing.T) {
	got, err := LoadKey(KeyConfig{RawPrivateKey: "0x" + testKeyHex, EncryptedKeyPath: "/does/not/exist"})
	require.NoError(t, err)
	assert.Equal(t, testKeyHex, got)

	_, err = LoadKey(KeyConfig{})
	assert.Error(t, err)
}
