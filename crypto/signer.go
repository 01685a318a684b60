package crypto

import (
	"errors"

	"github.com/ethereum/go-ethereum/crypto"
)

// Signer is the narrow capability a wallet backend must provide to authorise
// goal operations. Implementations exist per backend (local key, keystore
// file, remote signer); consumers never see anything beyond these two calls.
type Signer interface {
	// SignDigest signs a single 32-byte digest and returns a 65-byte
	// [R || S || V] compact signature.
	SignDigest(digest [32]byte) ([]byte, error)
	// SignBatch signs each digest in order, failing as a whole on the first
	// error so callers never observe a partially signed batch.
	SignBatch(digests [][32]byte) ([][]byte, error)
}

var _ Signer = (*PrivateKey)(nil)

// SignDigest implements Signer for a locally held private key.
func (k *PrivateKey) SignDigest(digest [32]byte) ([]byte, error) {
	if k == nil || k.PrivateKey == nil {
		return nil, errors.New("crypto: nil private key")
	}
	return crypto.Sign(digest[:], k.PrivateKey)
}

// SignBatch implements Signer for a locally held private key.
func (k *PrivateKey) SignBatch(digests [][32]byte) ([][]byte, error) {
	out := make([][]byte, 0, len(digests))
	for _, digest := range digests {
		sig, err := k.SignDigest(digest)
		if err != nil {
			return nil, err
		}
		out = append(out, sig)
	}
	return out, nil
}

// RecoverAddress returns the address whose key produced the signature over the
// digest. It is the verification half of the Signer capability.
func RecoverAddress(digest [32]byte, sig []byte) (Address, error) {
	pub, err := crypto.SigToPub(digest[:], sig)
	if err != nil {
		return Address{}, err
	}
	return NewAddress(ByePrefix, crypto.PubkeyToAddress(*pub).Bytes()), nil
}
