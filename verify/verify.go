// Package verify implements the stateless per-request transaction
// validation composed with a hashwindow.Window (spec §4.B).
package verify

import (
	"github.com/chainforge/node/hashwindow"
	"github.com/chainforge/node/message"
	"github.com/chainforge/node/txsig"
)

// MaxNonceLen is the maximum accepted nonce length in bytes (spec §4.B
// step 1).
const MaxNonceLen = 128

// SignatureLength is SIGNATURE_BYTES_LEN (spec §3): a secp256k1 recoverable
// signature encoded as [R || S || V].
const SignatureLength = 65

// Verifier validates VerifyTxReq messages against a Window and a
// signature recoverer (spec §4.B). It holds no mutable state of its own:
// every call is a pure function of (req, window snapshot), as required by
// spec §8 property 6.
type Verifier struct {
	window    *hashwindow.Window
	recoverer txsig.Recoverer
}

// New builds a Verifier over window using recoverer for signature recovery.
func New(window *hashwindow.Window, recoverer txsig.Recoverer) *Verifier {
	return &Verifier{window: window, recoverer: recoverer}
}

// Verify implements spec §4.B "verify(req) → resp".
func (v *Verifier) Verify(req message.VerifyTxReq) message.VerifyTxResp {
	resp := message.VerifyTxResp{RequestID: req.RequestID, TxHash: req.TxHash}

	if len(req.Nonce) > MaxNonceLen {
		resp.Ret = message.RetInvalidNonce
		return resp
	}

	if v.window.Contains(req.TxHash) {
		if v.window.IsInited() {
			resp.Ret = message.RetDup
		} else {
			resp.Ret = message.RetNotReady
		}
		return resp
	}

	if len(req.Signature) != SignatureLength {
		resp.Ret = message.RetBadSig
		return resp
	}
	if req.CryptoKind != message.CryptoSecp256k1 {
		resp.Ret = message.RetBadSig
		return resp
	}
	signer, err := v.recoverer.Recover(req.Hash, req.Signature)
	if err != nil {
		resp.Ret = message.RetBadSig
		return resp
	}

	if len(req.Signer) > 0 && !bytesEqual(req.Signer, signer) {
		resp.Ret = message.RetBadSig
		return resp
	}

	resp.Signer = signer
	resp.Ret = message.RetOK
	return resp
}

// VerifyUntilBlock implements spec §4.B "verify_until_block(v)": the result
// is latest < v <= latest + L, false if the window has no latest yet.
func (v *Verifier) VerifyUntilBlock(validUntilBlock message.Height) bool {
	latest, ok := v.window.Latest()
	if !ok {
		return false
	}
	limit := v.window.Limit()
	return validUntilBlock > latest && validUntilBlock <= latest+limit
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
