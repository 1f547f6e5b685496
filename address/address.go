// Package address recovers a publisher's 20-byte address from a recoverable
// secp256k1 signature and the payload it was made over. See spec §4.C2.
package address

import (
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"golang.org/x/crypto/sha3"

	registry "github.com/ipfsreg/registry"
)

const (
	// SignatureLength is the wire length of a recoverable signature: 32
	// bytes r, 32 bytes s, 1 byte recovery id.
	SignatureLength = 65

	// SignupPayload is the literal byte string signed over for the
	// account-creation / signup call. See spec §3.
	SignupPayload = ".ipfs-registry"
)

// Recover derives the 20-byte address of the signer of payload, given a
// 65-byte recoverable signature over keccak256(payload).
//
// The recovery id byte (sig[64]) is accepted in either the {0,1} convention
// or the {27,28} convention used by some signing libraries; see spec §9 open
// question (a).
func Recover(sig registry.Signature, payload []byte) (registry.Address, error) {
	const op = "address.Recover"

	recID := sig[64]
	switch {
	case recID == 27 || recID == 28:
		recID -= 27
	case recID == 0 || recID == 1:
		// already normalized
	default:
		return registry.Address{}, registry.New(op, registry.ErrUnauthorized, nil,
			fmt.Sprintf("invalid recovery id %d", sig[64]))
	}

	// decred's RecoverCompact expects a "compact signature": 1 header byte
	// followed by r‖s, where the header byte encodes the recovery id (and a
	// compression flag, which we always set since we derive the uncompressed
	// key ourselves below).
	compact := make([]byte, SignatureLength)
	compact[0] = 27 + 4 + recID // compressed-pubkey header, matches decred's ecdsa.RecoverCompact contract
	copy(compact[1:], sig[:64])

	digest := Keccak256(payload)

	pub, _, err := ecdsa.RecoverCompact(compact, digest)
	if err != nil {
		return registry.Address{}, registry.New(op, registry.ErrUnauthorized, err, "signature recovery failed")
	}

	return fromPublicKey(pub), nil
}

// fromPublicKey derives the 20-byte address from a recovered public key: the
// rightmost 20 bytes of Keccak256 of the 64-byte uncompressed coordinates
// (the 0x04 prefix byte is dropped before hashing). See spec §4.C2.
func fromPublicKey(pub *secp256k1.PublicKey) registry.Address {
	uncompressed := pub.SerializeUncompressed() // 65 bytes: 0x04 ‖ X ‖ Y
	h := Keccak256(uncompressed[1:])
	var a registry.Address
	copy(a[:], h[len(h)-20:])
	return a
}

// Keccak256 is the legacy (pre-NIST-finalization) Keccak hash used
// throughout this package, distinct from the standardized SHA3-256.
func Keccak256(data ...[]byte) []byte {
	h := sha3.NewLegacyKeccak256()
	for _, d := range data {
		h.Write(d)
	}
	return h.Sum(nil)
}
