// Package hashwindow implements the sliding window of recently observed
// block transaction-hash sets used by the auth service to reject duplicate
// transactions (spec §4.A).
package hashwindow

import (
	"fmt"
	"sync"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/ethereum/go-ethereum/event"
	"github.com/ethereum/go-ethereum/log"

	"github.com/chainforge/node/bus"
	"github.com/chainforge/node/internal/metrics"
	"github.com/chainforge/node/message"
)

// BackfillRequest is emitted when the window needs heights it doesn't have
// yet; each height is also published as a BlockTxHashesReq on the
// auth.blk_tx_hashs_req topic (spec §4.A).
type BackfillRequest struct {
	Heights []message.Height // half-open range [low, high)
}

// Window is the sliding window of recent block tx-hash sets (spec §3, §4.A).
//
// All state is guarded by one mutex: writes come only from the auth
// service's single reader goroutine (spec §5 "HashWindow is owned by the
// auth thread"), but reads (Contains, IsInited, Latest) also come from the
// verifier goroutine in cmd/auth and from tests, hence the lock.
type Window struct {
	limit message.Height // BLOCKLIMIT, L

	mu      sync.RWMutex
	inited  bool
	latest  *message.Height
	low     *message.Height
	hashes  map[message.Height]mapset.Set[message.TxHash]

	// BackfillFeed fans out every BackfillRequest this window emits, so
	// callers (and tests) can observe the side effect without coupling to
	// the bus transport (SPEC_FULL §4.A).
	BackfillFeed event.Feed
}

// New returns an empty, uninitialized window. L must be at least 1 (Design
// Note, Open Question: "implementers must assert L ≥ 1 at construction").
func New(limit message.Height) *Window {
	if limit < 1 {
		panic(fmt.Sprintf("hashwindow: BLOCKLIMIT must be >= 1, got %d", limit))
	}
	return &Window{
		limit:  limit,
		hashes: make(map[message.Height]mapset.Set[message.TxHash], limit),
	}
}

// IsInited reports whether the window has been fully populated at least
// once. Once true it never reverts (spec §8 property 2).
func (w *Window) IsInited() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.inited
}

// Latest returns the highest height the window has observed, if any.
func (w *Window) Latest() (message.Height, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.latest == nil {
		return 0, false
	}
	return *w.latest, true
}

// Low returns the lowest height currently retained, if any.
func (w *Window) Low() (message.Height, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.low == nil {
		return 0, false
	}
	return *w.low, true
}

func lowFor(h, limit message.Height) message.Height {
	if h < limit {
		return 0
	}
	return h - limit + 1
}

// Update processes one block's observed transaction hash set at height h
// (spec §4.A "update"). sink receives any backfill request this call emits.
func (w *Window) Update(h message.Height, hashes mapset.Set[message.TxHash], sink bus.Bus) {
	w.mu.Lock()
	defer w.mu.Unlock()

	switch {
	case w.latest == nil && w.low == nil:
		// First call: set latest/low unconditionally, even for h == 0
		// (Design Note, Open Question — S1 follows this behavior).
		latest := h
		low := lowFor(h, w.limit)
		w.latest = &latest
		w.low = &low
		if low < h {
			w.sendBackfill(low, h, sink)
		}

	case h == *w.latest+1:
		// Forward step: advance, evict below the new low.
		oldLow := *w.low
		newLatest := h
		newLow := lowFor(h, w.limit)
		w.latest = &newLatest
		w.low = &newLow
		for i := oldLow; i < newLow; i++ {
			delete(w.hashes, i)
		}

	case h > *w.latest+1:
		// Jump ahead: request the gap, do not insert, reprocess later.
		w.sendBackfill(*w.latest+1, h+1, sink)
		return

	default:
		// h <= latest: either below the window (ignore) or within it
		// (insert/overwrite), handled uniformly below by the range check.
		if h < *w.low {
			return
		}
	}

	log.Trace("hashwindow: update", "height", h, "low", *w.low, "latest", *w.latest)
	w.hashes[h] = hashes
	if message.Height(len(w.hashes)) == *w.latest-*w.low+1 {
		w.inited = true
	}
}

func (w *Window) sendBackfill(low, high message.Height, sink bus.Bus) {
	heights := make([]message.Height, 0, high-low)
	for i := low; i < high; i++ {
		heights = append(heights, i)
	}
	w.BackfillFeed.Send(BackfillRequest{Heights: heights})
	metrics.HashWindowBackfills.Inc()
	if sink == nil {
		return
	}
	for _, height := range heights {
		env := message.Envelope{BlockTxHashesReq: &message.BlockTxHashesReq{Height: height}}
		payload, err := message.Marshal(env)
		if err != nil {
			log.Warn("hashwindow: failed to marshal backfill request", "height", height, "err", err)
			continue
		}
		if err := sink.Publish(bus.TopicAuthBlkTxHashsReq, payload); err != nil {
			log.Warn("hashwindow: failed to publish backfill request", "height", height, "err", err)
		}
	}
}

// Contains reports whether hash appears in any retained set. While the
// window is not yet initialized it conservatively answers true (spec
// §4.A "contains"): the caller maps this to NotReady instead of Dup.
func (w *Window) Contains(hash message.TxHash) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if !w.inited {
		return true
	}
	for _, set := range w.hashes {
		if set.Contains(hash) {
			return true
		}
	}
	return false
}

// Limit returns the configured BLOCKLIMIT.
func (w *Window) Limit() message.Height { return w.limit }
