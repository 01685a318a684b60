package crypto

import (
	"bytes"
	"os"
	"strings"
	"testing"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

func TestAddressRoundTrip(t *testing.T) {
	key, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	addr := key.PubKey().Address()
	encoded := addr.String()
	if !strings.HasPrefix(encoded, string(ByePrefix)) {
		t.Fatalf("expected %q prefix, got %s", ByePrefix, encoded)
	}
	decoded, err := DecodeAddress(encoded)
	if err != nil {
		t.Fatalf("decode address: %v", err)
	}
	if !bytes.Equal(decoded.Bytes(), addr.Bytes()) {
		t.Fatalf("round trip mismatch: %x != %x", decoded.Bytes(), addr.Bytes())
	}
}

func TestDecodeAddressRejectsGarbage(t *testing.T) {
	if _, err := DecodeAddress("not-a-bech32-address"); err == nil {
		t.Fatal("expected error for malformed address")
	}
}

func TestSignDigestRecoversSigner(t *testing.T) {
	key, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	var digest [32]byte
	copy(digest[:], ethcrypto.Keccak256([]byte("goal_create|bye1...")))

	sig, err := key.SignDigest(digest)
	if err != nil {
		t.Fatalf("sign digest: %v", err)
	}
	recovered, err := RecoverAddress(digest, sig)
	if err != nil {
		t.Fatalf("recover address: %v", err)
	}
	if !bytes.Equal(recovered.Bytes(), key.PubKey().Address().Bytes()) {
		t.Fatalf("recovered %x, want %x", recovered.Bytes(), key.PubKey().Address().Bytes())
	}
}

func TestSignBatchOrderPreserved(t *testing.T) {
	key, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	digests := make([][32]byte, 3)
	for i := range digests {
		copy(digests[i][:], ethcrypto.Keccak256([]byte{byte(i)}))
	}
	sigs, err := key.SignBatch(digests)
	if err != nil {
		t.Fatalf("sign batch: %v", err)
	}
	if len(sigs) != len(digests) {
		t.Fatalf("expected %d signatures, got %d", len(digests), len(sigs))
	}
	for i, sig := range sigs {
		recovered, err := RecoverAddress(digests[i], sig)
		if err != nil {
			t.Fatalf("recover %d: %v", i, err)
		}
		if !bytes.Equal(recovered.Bytes(), key.PubKey().Address().Bytes()) {
			t.Fatalf("signature %d does not recover the signing key", i)
		}
	}
}

func TestKeystoreRoundTrip(t *testing.T) {
	key, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	path := t.TempDir() + "/node.keystore"
	if err := SaveToKeystore(path, key, "passphrase"); err != nil {
		t.Fatalf("save keystore: %v", err)
	}
	loaded, err := LoadFromKeystore(path, "passphrase")
	if err != nil {
		t.Fatalf("load keystore: %v", err)
	}
	if !bytes.Equal(loaded.Bytes(), key.Bytes()) {
		t.Fatal("loaded key differs from saved key")
	}
	if _, err := LoadFromKeystore(path, "wrong"); err == nil {
		t.Fatal("expected error for wrong passphrase")
	}
}

func TestKeystoreOverwriteReplacesKey(t *testing.T) {
	first, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	second, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	path := t.TempDir() + "/operator.keystore"
	if err := SaveToKeystore(path, first, ""); err != nil {
		t.Fatalf("save keystore: %v", err)
	}
	if err := SaveToKeystore(path, second, ""); err != nil {
		t.Fatalf("overwrite keystore: %v", err)
	}
	loaded, err := LoadFromKeystore(path, "")
	if err != nil {
		t.Fatalf("load keystore: %v", err)
	}
	if !bytes.Equal(loaded.Bytes(), second.Bytes()) {
		t.Fatal("keystore did not hold the replacement key")
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat keystore: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Fatalf("keystore permissions %o, want 600", perm)
	}
}
