// Package blockqueue implements the concurrent height->BlockInQueue map and
// its accompanying frontier atomics (spec §3 "BlockQueue state", §4.D).
package blockqueue

import (
	"sync"
	"sync/atomic"

	"github.com/chainforge/node/message"
)

// Entry is the tagged BlockInQueue variant (spec §3): either a consensus
// block or a sync block whose proof may still be pending.
type Entry struct {
	Consensus *ConsensusBlock
	Sync      *SyncBlock
}

// ConsensusBlock is an immutable consensus-origin queue entry.
type ConsensusBlock struct {
	Block message.Block
	Proof message.Proof
}

// SyncBlock is a sync-origin queue entry whose Proof starts nil and may be
// filled exactly once (spec §3 Lifecycle, §4.D invariant).
type SyncBlock struct {
	Block message.Block
	Proof *message.Proof
}

// Queue is the single-writer/multi-reader height->Entry map plus the two
// monotone frontier atomics (spec §4.D).
type Queue struct {
	mu      sync.RWMutex
	entries map[message.Height]Entry

	maxStoreHeight atomic.Uint64 // highest height whose body is persisted
	maxHeight      atomic.Uint64 // highest height executed (advanced by the executor)
}

// New returns an empty queue.
func New() *Queue {
	return &Queue{entries: make(map[message.Height]Entry)}
}

// Get returns the entry at h, if any.
func (q *Queue) Get(h message.Height) (Entry, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	e, ok := q.entries[h]
	return e, ok
}

// PutConsensus inserts an immutable ConsensusBlock entry at h, overwriting
// whatever was there (spec §4.E "Consensus-enqueue").
func (q *Queue) PutConsensus(h message.Height, block message.Block, proof message.Proof) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.entries[h] = Entry{Consensus: &ConsensusBlock{Block: block, Proof: proof}}
}

// PutSync inserts a SyncBlock entry at h with an absent proof (spec §4.E
// "Add-sync" Case A).
func (q *Queue) PutSync(h message.Height, block message.Block) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.entries[h] = Entry{Sync: &SyncBlock{Block: block}}
}

// FillSyncProof fills the proof slot of the SyncBlock at h exactly once: if
// an entry exists there, is a SyncBlock, and its proof is still nil, it is
// set to proof and true is returned. Otherwise false, and the entry (if any)
// is left untouched (spec §3 "its proof field may be mutated exactly once
// from None to Some").
func (q *Queue) FillSyncProof(h message.Height, proof message.Proof) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.entries[h]
	if !ok || e.Sync == nil || e.Sync.Proof != nil {
		return false
	}
	p := proof
	e.Sync.Proof = &p
	q.entries[h] = e
	return true
}

// MaxStoreHeight returns the highest height whose block body is persisted.
func (q *Queue) MaxStoreHeight() message.Height { return q.maxStoreHeight.Load() }

// SetMaxStoreHeight advances the store frontier. It keeps max_store_height
// monotone (spec §8 property 4) itself: a height at or below the current
// frontier is ignored. It is the single mutation point, so that enforcement
// lives in one place.
func (q *Queue) SetMaxStoreHeight(h message.Height) {
	for {
		cur := q.maxStoreHeight.Load()
		if h <= cur {
			return
		}
		if q.maxStoreHeight.CompareAndSwap(cur, h) {
			return
		}
	}
}

// MaxHeight returns the highest height executed so far.
func (q *Queue) MaxHeight() message.Height { return q.maxHeight.Load() }

// SetMaxHeight advances the executed frontier. Called by the block
// processor consuming ExecutedResult messages (spec §4.E dispatch table).
func (q *Queue) SetMaxHeight(h message.Height) {
	for {
		cur := q.maxHeight.Load()
		if h <= cur {
			return
		}
		if q.maxHeight.CompareAndSwap(cur, h) {
			return
		}
	}
}
