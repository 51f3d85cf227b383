// Package readdispatcher implements the ReadDispatcher component (spec
// §4.F): it answers read queries against a chain.Store and routes
// execution-bound queries to the executor.
package readdispatcher

import (
	"sync"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/event"

	"github.com/chainforge/node/chain"
)

// filterEntry is one installed filter: its spec and the log/chain-event
// subscription feeding filter_changes (SPEC_FULL §4.F).
type filterEntry struct {
	spec chain.LogFilter
	isBlockFilter bool

	mu      sync.Mutex
	pending []chain.Log
	blocks  []chain.BlockID

	unsubscribe func()
}

// FilterTable allocates monotone filter ids and accumulates log/block
// entries for filter_changes/filter_logs (spec §4.F).
type FilterTable struct {
	nextID  atomic.Uint64
	mu      sync.Mutex
	entries map[uint64]*filterEntry
}

// NewFilterTable returns an empty filter table.
func NewFilterTable() *FilterTable {
	return &FilterTable{entries: make(map[uint64]*filterEntry)}
}

// NewFilter allocates a filter id over spec and returns it (spec §4.F
// "new_filter").
func (t *FilterTable) NewFilter(spec chain.LogFilter, logFeed *event.Feed) uint64 {
	id := t.nextID.Add(1)
	entry := &filterEntry{spec: spec}
	if logFeed != nil {
		ch := make(chan []chain.Log, 64)
		sub := logFeed.Subscribe(ch)
		entry.unsubscribe = sub.Unsubscribe
		go entry.drainLogs(ch)
	}
	t.mu.Lock()
	t.entries[id] = entry
	t.mu.Unlock()
	return id
}

func (e *filterEntry) drainLogs(ch chan []chain.Log) {
	for logs := range ch {
		e.mu.Lock()
		e.pending = append(e.pending, logs...)
		e.mu.Unlock()
	}
}

// NewBlockFilter allocates a filter id that accumulates new block ids
// (spec §4.F "new_block_filter").
func (t *FilterTable) NewBlockFilter(chainFeed *event.Feed) uint64 {
	id := t.nextID.Add(1)
	entry := &filterEntry{isBlockFilter: true}
	if chainFeed != nil {
		ch := make(chan chain.BlockID, 64)
		sub := chainFeed.Subscribe(ch)
		entry.unsubscribe = sub.Unsubscribe
		go entry.drainBlocks(ch)
	}
	t.mu.Lock()
	t.entries[id] = entry
	t.mu.Unlock()
	return id
}

func (e *filterEntry) drainBlocks(ch chan chain.BlockID) {
	for b := range ch {
		e.mu.Lock()
		e.blocks = append(e.blocks, b)
		e.mu.Unlock()
	}
}

// Uninstall removes a filter, returning whether it existed (spec §4.F
// "uninstall_filter").
func (t *FilterTable) Uninstall(id uint64) bool {
	t.mu.Lock()
	entry, ok := t.entries[id]
	if ok {
		delete(t.entries, id)
	}
	t.mu.Unlock()
	if ok && entry.unsubscribe != nil {
		entry.unsubscribe()
	}
	return ok
}

// Changes drains and returns the entries accumulated since the last call
// (spec §4.F "filter_changes").
func (t *FilterTable) Changes(id uint64) ([]chain.Log, []chain.BlockID, bool) {
	t.mu.Lock()
	entry, ok := t.entries[id]
	t.mu.Unlock()
	if !ok {
		return nil, nil, false
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	logs := entry.pending
	blocks := entry.blocks
	entry.pending = nil
	entry.blocks = nil
	return logs, blocks, true
}

// Logs returns the logs accumulated since the last Changes call, without
// draining them (spec §4.F "filter_logs").
func (t *FilterTable) Logs(id uint64) ([]chain.Log, bool) {
	t.mu.Lock()
	entry, ok := t.entries[id]
	t.mu.Unlock()
	if !ok {
		return nil, false
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	out := make([]chain.Log, len(entry.pending))
	copy(out, entry.pending)
	return out, true
}
