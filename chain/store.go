// Package chain implements the ChainForwarder dispatch/state-tracking
// component (spec §4.E) against the external ChainStore collaborator
// (spec §6).
package chain

import (
	"context"

	"github.com/chainforge/node/message"
)

// Store is the persistent chain-store collaborator (spec §6): out of
// scope for this core, consumed only through this read/write surface.
// Blocking lookups take a context, matching the teacher's
// eth/filters backend convention.
type Store interface {
	// Read surface.
	Block(ctx context.Context, id BlockID) (message.Block, bool, error)
	BlockByHash(ctx context.Context, hash message.BlockHash) (message.Block, bool, error)
	FullTransaction(ctx context.Context, hash message.TxHash) (LocalizedTransaction, bool, error)
	LocalizedReceipt(ctx context.Context, hash message.TxHash) (LocalizedReceipt, bool, error)
	GetLogs(ctx context.Context, filter LogFilter) ([]Log, error)
	TransactionHashes(ctx context.Context, id BlockID) ([]message.TxHash, bool, error)

	CurrentBlockProof(ctx context.Context) (message.Proof, bool, error)
	GetMaxHeight(ctx context.Context) message.Height
	GetMaxStoreHeight(ctx context.Context) message.Height
	GetCurrentHeight(ctx context.Context) message.Height
	ChainProofType(ctx context.Context) message.ProofType

	// Write surface.
	SaveCurrentBlockProof(ctx context.Context, proof message.Proof) error
	SetBlockBody(ctx context.Context, height message.Height, block message.Block) error
	DeliveryBlockTxHashes(ctx context.Context, height message.Height, hashes []message.TxHash) error

	// VerifyBody checks a synced block's transactions-root (or equivalent
	// integrity digest) before it is allowed into the queue (SPEC_FULL §B,
	// grounded on forward.rs's `block.check_hash()`).
	VerifyBody(ctx context.Context, block message.Block) bool
}

// BlockID selects a block by height or by the chain's current tip.
type BlockID struct {
	Height  message.Height
	Current bool
}

// LocalizedTransaction is a transaction annotated with its block hash and
// index (GLOSSARY).
type LocalizedTransaction struct {
	BlockHash message.BlockHash
	Index     uint
	Raw       []byte
}

// LocalizedReceipt is a receipt annotated with its block hash and index.
type LocalizedReceipt struct {
	BlockHash message.BlockHash
	Index     uint
	Raw       []byte
}

// LogFilter is the decoded form of a jsonrpc filter spec (spec §4.F
// "filter(spec)").
type LogFilter struct {
	FromBlock *message.Height
	ToBlock   *message.Height
	Addresses [][]byte
	Topics    [][][]byte
}

// Log is one matched log entry.
type Log struct {
	Address     []byte
	Topics      [][]byte
	Data        []byte
	BlockHeight message.Height
	TxHash      message.TxHash
}
