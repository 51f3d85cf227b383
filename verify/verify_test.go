package verify

import (
	"testing"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"github.com/chainforge/node/bus"
	"github.com/chainforge/node/hashwindow"
	"github.com/chainforge/node/message"
	"github.com/chainforge/node/txsig"
)

func signedReq(t *testing.T, txHash message.TxHash) (message.VerifyTxReq, []byte) {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	var digest [32]byte
	copy(digest[:], crypto.Keccak256([]byte("payload")))
	sig, err := crypto.Sign(digest[:], key)
	require.NoError(t, err)
	return message.VerifyTxReq{
		TxHash:     txHash,
		Hash:       digest,
		Signature:  sig,
		CryptoKind: message.CryptoSecp256k1,
		Nonce:      []byte("nonce"),
	}, crypto.FromECDSAPub(&key.PublicKey)
}

// TestS5VerifyPipeline covers spec §8 scenario S5.
func TestS5VerifyPipeline(t *testing.T) {
	b := bus.NewInProcess()
	w := hashwindow.New(10)
	h0 := message.TxHash{0xAA}
	w.Update(0, mapset.NewSet(h0), b)
	require.True(t, w.IsInited())

	v := New(w, txsig.Secp256k1{})

	req, _ := signedReq(t, h0)
	resp := v.Verify(req)
	require.Equal(t, message.RetDup, resp.Ret)

	// Uninitialized window -> NotReady for the same hash.
	cold := hashwindow.New(10)
	vCold := New(cold, txsig.Secp256k1{})
	resp = vCold.Verify(req)
	require.Equal(t, message.RetNotReady, resp.Ret)

	// Unseen hash with a correctly signed request -> OK with signer.
	unseen, signer := signedReq(t, message.TxHash{0xBB})
	resp = v.Verify(unseen)
	require.Equal(t, message.RetOK, resp.Ret)
	require.Equal(t, signer, resp.Signer)
}

func TestVerifyInvalidNonce(t *testing.T) {
	b := bus.NewInProcess()
	w := hashwindow.New(10)
	w.Update(0, mapset.NewSet[message.TxHash](), b)
	v := New(w, txsig.Secp256k1{})

	req, _ := signedReq(t, message.TxHash{0x01})
	req.Nonce = make([]byte, 129)
	resp := v.Verify(req)
	require.Equal(t, message.RetInvalidNonce, resp.Ret)
}

func TestVerifyBadSignatureLength(t *testing.T) {
	b := bus.NewInProcess()
	w := hashwindow.New(10)
	w.Update(0, mapset.NewSet[message.TxHash](), b)
	v := New(w, txsig.Secp256k1{})

	req, _ := signedReq(t, message.TxHash{0x02})
	req.Signature = req.Signature[:64]
	resp := v.Verify(req)
	require.Equal(t, message.RetBadSig, resp.Ret)
}

func TestVerifyUnsupportedCryptoKind(t *testing.T) {
	b := bus.NewInProcess()
	w := hashwindow.New(10)
	w.Update(0, mapset.NewSet[message.TxHash](), b)
	v := New(w, txsig.Secp256k1{})

	req, _ := signedReq(t, message.TxHash{0x03})
	req.CryptoKind = message.CryptoUnknown
	resp := v.Verify(req)
	require.Equal(t, message.RetBadSig, resp.Ret)
}

func TestVerifySignerMismatch(t *testing.T) {
	b := bus.NewInProcess()
	w := hashwindow.New(10)
	w.Update(0, mapset.NewSet[message.TxHash](), b)
	v := New(w, txsig.Secp256k1{})

	req, _ := signedReq(t, message.TxHash{0x04})
	req.Signer = []byte("not the recovered key")
	resp := v.Verify(req)
	require.Equal(t, message.RetBadSig, resp.Ret)
}

func TestVerifyUntilBlock(t *testing.T) {
	b := bus.NewInProcess()
	w := hashwindow.New(10)
	w.Update(5, mapset.NewSet[message.TxHash](), b)
	v := New(w, txsig.Secp256k1{})

	require.False(t, v.VerifyUntilBlock(5))  // must be > latest
	require.True(t, v.VerifyUntilBlock(6))   // latest+1
	require.True(t, v.VerifyUntilBlock(15))  // latest+L
	require.False(t, v.VerifyUntilBlock(16)) // latest+L+1

	cold := hashwindow.New(10)
	vCold := New(cold, txsig.Secp256k1{})
	require.False(t, vCold.VerifyUntilBlock(1))
}

func TestVerifyCarriesRequestIDVerbatim(t *testing.T) {
	b := bus.NewInProcess()
	w := hashwindow.New(10)
	w.Update(0, mapset.NewSet[message.TxHash](), b)
	v := New(w, txsig.Secp256k1{})

	req, _ := signedReq(t, message.TxHash{0x06})
	req.RequestID = []byte("req-xyz")
	resp := v.Verify(req)
	require.Equal(t, []byte("req-xyz"), resp.RequestID)

	// Also holds on the InvalidNonce early-return path.
	req.Nonce = make([]byte, 129)
	resp = v.Verify(req)
	require.Equal(t, message.RetInvalidNonce, resp.Ret)
	require.Equal(t, []byte("req-xyz"), resp.RequestID)
}

// TestVerifyPureFunction covers spec §8 property 6: repeated calls on the
// same snapshot yield identical responses.
func TestVerifyPureFunction(t *testing.T) {
	b := bus.NewInProcess()
	w := hashwindow.New(10)
	w.Update(0, mapset.NewSet[message.TxHash](), b)
	v := New(w, txsig.Secp256k1{})

	req, _ := signedReq(t, message.TxHash{0x05})
	first := v.Verify(req)
	second := v.Verify(req)
	require.Equal(t, first, second)
}
