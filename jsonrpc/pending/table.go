// Package pending implements the bounded table of in-flight jsonrpc
// requests awaiting a bus response (spec §6 "backlog_capacity", Open
// Question: bounded pending-responses map). Overflow evicts oldest and
// records a metric, per the spec's SHOULD.
package pending

import (
	"sync"

	lru "github.com/hashicorp/golang-lru"

	"github.com/chainforge/node/internal/metrics"
)

// Table tracks one channel per in-flight request id, keyed by the raw
// request id bytes. It is generic so the same bounded-eviction mechanism
// serves both read-query responses (message.Response) and transaction
// verification responses (message.VerifyTxResp) — the original jsonrpc
// process keeps both kinds of reply in one pending-response map fed by both
// its auth.rpc and chain.rpc subscriptions; here each bus topic gets its own
// typed Table instead, since Go's type system can express the per-topic
// payload shape directly.
type Table[T any] struct {
	mu    sync.Mutex
	cache *lru.Cache
}

// New returns a Table bounded at capacity entries (spec §6
// "backlog_capacity").
func New[T any](capacity int) *Table[T] {
	t := &Table[T]{}
	cache, err := lru.NewWithEvict(capacity, t.onEvicted)
	if err != nil {
		// capacity <= 0 is rejected by the LRU; fall back to a one-entry
		// table rather than failing.
		cache, _ = lru.NewWithEvict(1, t.onEvicted)
	}
	t.cache = cache
	return t
}

// onEvicted fires when the LRU drops the oldest entry to make room; it
// closes the waiting channel so the caller's receive unblocks with no
// response rather than leaking a goroutine.
func (t *Table[T]) onEvicted(key interface{}, value interface{}) {
	ch, ok := value.(chan T)
	if !ok {
		return
	}
	close(ch)
	metrics.PendingResponsesEvicted.Inc()
}

// Register allocates a channel for requestID and returns it; the caller
// receives at most once from the returned channel (closed, zero-value read
// if evicted before a reply arrives).
func (t *Table[T]) Register(requestID []byte) <-chan T {
	ch := make(chan T, 1)
	t.mu.Lock()
	t.cache.Add(string(requestID), ch)
	metrics.PendingResponsesInFlight.Set(float64(t.cache.Len()))
	t.mu.Unlock()
	return ch
}

// Deliver completes the pending request matching requestID, if any. It
// reports whether a waiter was found.
func (t *Table[T]) Deliver(requestID []byte, value T) bool {
	t.mu.Lock()
	raw, ok := t.cache.Get(string(requestID))
	if ok {
		// Remove runs onEvicted; blank the entry first so the callback
		// neither closes the channel nor counts this as an eviction.
		t.cache.Add(string(requestID), nil)
		t.cache.Remove(string(requestID))
	}
	metrics.PendingResponsesInFlight.Set(float64(t.cache.Len()))
	t.mu.Unlock()

	if !ok {
		return false
	}
	ch := raw.(chan T)
	ch <- value
	close(ch)
	return true
}

// Forget removes requestID without delivering a response, e.g. after the
// caller's own context is cancelled.
func (t *Table[T]) Forget(requestID []byte) {
	t.mu.Lock()
	if t.cache.Contains(string(requestID)) {
		// Blank the entry so onEvicted does not count it as an eviction.
		t.cache.Add(string(requestID), nil)
		t.cache.Remove(string(requestID))
	}
	metrics.PendingResponsesInFlight.Set(float64(t.cache.Len()))
	t.mu.Unlock()
}

// Len reports the number of in-flight requests.
func (t *Table[T]) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cache.Len()
}
