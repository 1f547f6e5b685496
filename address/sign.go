package address

import (
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"

	registry "github.com/ipfsreg/registry"
)

// Sign produces a 65-byte recoverable signature over keccak256(payload)
// using priv, in the {r, s, v} layout [Recover] expects, with v in {0,1}.
//
// This exists for tests and tooling that need to construct valid requests;
// the registry itself only ever recovers signatures, never creates them.
func Sign(priv *secp256k1.PrivateKey, payload []byte) (registry.Signature, error) {
	digest := Keccak256(payload)
	compact := ecdsa.SignCompact(priv, digest, false)

	var sig registry.Signature
	copy(sig[:64], compact[1:])
	sig[64] = (compact[0] - 27) & 1
	return sig, nil
}

// GenerateKey returns a new random secp256k1 private key, for tests.
func GenerateKey() (*secp256k1.PrivateKey, error) {
	return secp256k1.GeneratePrivateKey()
}

// AddressOf returns the registry.Address for a private key's public key,
// without going through signature recovery. Useful in tests to assert
// Recover's output against the expected signer.
func AddressOf(priv *secp256k1.PrivateKey) registry.Address {
	return fromPublicKey(priv.PubKey())
}
