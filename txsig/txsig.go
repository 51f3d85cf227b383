// Package txsig is the cryptographic-primitives collaborator abstracted by
// spec §1/§6: "a recoverable signature over a 32-byte message digest". The
// scheme itself is out of scope; this package only fixes the seam and
// ships one concrete implementation, secp256k1 recovery via go-ethereum's
// crypto package.
package txsig

import (
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"
)

// Recoverer recovers the public key that produced signature over hash.
// It returns an error whenever recovery is not possible; verify.Verifier
// maps that to BadSig (spec §4.B step 3) and never inspects the error's
// type.
type Recoverer interface {
	Recover(hash [32]byte, signature []byte) (pubKey []byte, err error)
}

// Secp256k1 recovers an uncompressed secp256k1 public key from a 65-byte
// [R || S || V] recoverable signature, the same encoding
// github.com/ethereum/go-ethereum/crypto uses.
type Secp256k1 struct{}

// Recover implements Recoverer.
func (Secp256k1) Recover(hash [32]byte, signature []byte) ([]byte, error) {
	pub, err := crypto.Ecrecover(hash[:], signature)
	if err != nil {
		return nil, fmt.Errorf("txsig: recover: %w", err)
	}
	return pub, nil
}
