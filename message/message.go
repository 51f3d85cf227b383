// Package message defines the structured message variants carried over the
// bus (spec §6, the "libproto" collaborator). Wire framing is out of scope
// (Non-goals, spec §1); Marshal/Unmarshal here are a thin JSON seam so the
// framing choice never leaks into component logic.
package message

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/ethereum/go-ethereum/common"
)

// Height is the unsigned 64-bit monotone block counter (spec §3).
type Height = uint64

// HeightPseudoProof is the reserved sentinel meaning "proof-only
// pseudo-block" (HMAX in spec §3).
const HeightPseudoProof Height = math.MaxUint64

// TxHash and BlockHash are 32-byte digests.
type TxHash = common.Hash
type BlockHash = common.Hash

// CryptoKind enumerates supported signature schemes (spec §4.B step 3).
type CryptoKind uint8

const (
	CryptoUnknown CryptoKind = iota
	CryptoSecp256k1
)

// ProofType identifies the consensus proof carried by a block header.
// The core never interprets a proof's contents beyond its height and type;
// those are opaque bytes supplied by the (out of scope) consensus engine.
type ProofType uint8

const (
	ProofTypeUnknown ProofType = iota
	ProofTypeTendermint
)

// Proof is an opaque consensus proof plus the height it commits to.
type Proof struct {
	Type   ProofType
	Height Height
	Data   []byte
}

// OperateType mirrors libproto's broadcast/single addressing.
type OperateType uint8

const (
	OperateBroadcast OperateType = iota
	OperateSingle
)

// Block is the minimal block shape this core touches: enough to route,
// enqueue and hash-check, never enough to execute (execution is external).
type Block struct {
	Height       Height
	Hash         BlockHash
	ProofType    ProofType
	Proof        Proof
	TxHashes     []TxHash
	IsPseudo     bool // not set by this module: pseudo-proofs travel in SyncResponse.PseudoProofs, never as a Block
}

// VerifyTxReq is the per-transaction admission request (spec §3).
type VerifyTxReq struct {
	RequestID      []byte // carried verbatim into VerifyTxResp for jsonrpc correlation
	TxHash         TxHash
	Hash           [32]byte // digest that Signature was produced over
	Signature      []byte
	CryptoKind     CryptoKind
	Nonce          []byte
	Signer         []byte // optional; empty means "not asserted"
	ValidUntilBlock Height
}

// Ret enumerates VerifyTxResp outcomes (spec §3, §7).
type Ret string

const (
	RetOK                Ret = "OK"
	RetDup               Ret = "Dup"
	RetNotReady          Ret = "NotReady"
	RetBadSig            Ret = "BadSig"
	RetInvalidNonce      Ret = "InvalidNonce"
	RetInvalidUntilBlock Ret = "InvalidUntilBlock"
)

// VerifyTxResp is the admission result (spec §3).
type VerifyTxResp struct {
	RequestID []byte // echoes VerifyTxReq.RequestID; empty for batch-originated verifications
	TxHash    TxHash
	Ret       Ret
	Signer    []byte
}

// BatchRequest wraps a batch of new-tx requests under one request id
// (spec §4.C).
type BatchRequest struct {
	RequestID      [16]byte
	NewTxRequests  []VerifyTxReq
}

// BlockWithProof is a consensus-produced block (spec §4.E).
type BlockWithProof struct {
	Block Block
	Proof Proof
}

// SyncRequest asks a peer for a set of heights.
type SyncRequest struct {
	Heights []Height
	Origin  uint32
}

// SyncResponse carries the blocks requested by a SyncRequest, possibly
// followed by one PseudoProof (spec §4.E "SyncResponse construction").
type SyncResponse struct {
	Blocks       []Block
	PseudoProofs []PseudoProof
}

// PseudoProof is the in-process stand-in for the wire's HMAX pseudo-block
// (Design Note "Sentinel heights"): it carries only the proof of the
// current tip, never a real block body.
type PseudoProof struct {
	ProofHeight Height
	Proof       Proof
}

// BlockTxHashes notifies the Verifier of a height's transaction hashes
// (spec §4.E BlockTxHashesReq handler).
type BlockTxHashes struct {
	Height          Height
	TxHashes        []TxHash
	BlockGasLimit   uint64
	AccountGasLimit string // decimal-encoded uint256, see chain.GasLimits
}

// BlockTxHashesReq asks for a height's transaction hashes.
type BlockTxHashesReq struct {
	Height Height
}

// Envelope is the bus message envelope: exactly one payload field is set.
type Envelope struct {
	Origin  uint32
	Operate OperateType

	Request          *Request
	Response         *Response
	ExecutedResult   *ExecutedResult
	BlockWithProof   *BlockWithProof
	SyncRequest      *SyncRequest
	SyncResponse     *SyncResponse
	BlockTxHashes    *BlockTxHashes
	BlockTxHashesReq *BlockTxHashesReq
	Batch            *BatchRequest
	VerifyTxResp     *VerifyTxResp
}

// ExecutedResult is the executor's notification that a height has been
// executed (consumed by the block processor, spec §4.E dispatch table).
type ExecutedResult struct {
	Height        Height
	BlockGasLimit uint64
}

// Marshal encodes an envelope. Framing/format is an implementation seam,
// not part of the spec (Non-goals, §1).
func Marshal(e Envelope) ([]byte, error) {
	return json.Marshal(e)
}

// Unmarshal decodes an envelope previously produced by Marshal.
func Unmarshal(b []byte) (Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(b, &e); err != nil {
		return Envelope{}, fmt.Errorf("message: unmarshal envelope: %w", err)
	}
	return e, nil
}
