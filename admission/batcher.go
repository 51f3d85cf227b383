// Package admission implements the bounded-queue, time-windowed batcher
// that sits in front of the Verifier on the ingress side (spec §4.C).
package admission

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/google/uuid"

	"github.com/chainforge/node/bus"
	"github.com/chainforge/node/internal/metrics"
	"github.com/chainforge/node/message"
)

// Config holds the batcher's two tunables (spec §4.C, §6
// new_tx_flow_config).
type Config struct {
	CountPerBatch  int
	BufferDuration time.Duration
}

// Batcher buffers VerifyTxReq submissions and flushes them as one
// BatchRequest, by size or by elapsed time (spec §4.C).
//
// Contract: at most one in-flight flush at a time, insertion order is
// preserved within a batch, and a flushed batch is published exactly once
// (spec §4.C "Contract").
type Batcher struct {
	cfg Config
	out bus.Bus

	mu        sync.Mutex
	buffer    []message.VerifyTxReq
	lastFlush time.Time
}

// New builds a Batcher that publishes flushed batches and forwarded
// requests on out.
func New(cfg Config, out bus.Bus) *Batcher {
	return &Batcher{cfg: cfg, out: out, lastFlush: time.Now()}
}

// SubmitTx implements spec §4.C "submit(topic, req)" for the new-tx topic:
// append to the buffer, then flush if the buffer has grown past
// CountPerBatch or the last flush is older than BufferDuration.
func (b *Batcher) SubmitTx(req message.VerifyTxReq) error {
	b.mu.Lock()
	b.buffer = append(b.buffer, req)
	bySize := len(b.buffer) > b.cfg.CountPerBatch
	byTime := time.Since(b.lastFlush) > b.cfg.BufferDuration
	b.mu.Unlock()

	switch {
	case bySize:
		return b.flush("size")
	case byTime:
		return b.flush("time")
	default:
		return nil
	}
}

// Forward implements spec §4.C step 1: a request on any topic other than
// the new-tx topic is republished immediately, unbuffered.
func (b *Batcher) Forward(topic string, payload []byte) error {
	return b.out.Publish(topic, payload)
}

// Flush wraps the current buffer in a BatchRequest, assigns a fresh 128-bit
// id, publishes it, and resets the buffer (spec §4.C "Flush").
func (b *Batcher) Flush() error {
	return b.flush("manual")
}

func (b *Batcher) flush(trigger string) error {
	// The lock is held through Publish so that at most one flush is in
	// flight and batches are published in the order they were cut.
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.buffer) == 0 {
		return nil
	}
	batch := message.BatchRequest{NewTxRequests: b.buffer}
	id := uuid.New()
	copy(batch.RequestID[:], id[:])
	b.buffer = nil
	b.lastFlush = time.Now()

	payload, err := message.Marshal(message.Envelope{Batch: &batch})
	if err != nil {
		log.Warn("admission: failed to marshal batch", "err", err)
		return err
	}
	if err := b.out.Publish(bus.TopicNewTxBatch, payload); err != nil {
		return err
	}
	metrics.BatchesFlushed.WithLabelValues(trigger).Inc()
	return nil
}

// RunTicker is the background tick (spec §4.C "Background tick"): every
// BufferDuration it flushes a non-empty buffer whose last flush is at least
// one BufferDuration old. The time of the latest submission is not
// consulted, so a buffer that is still receiving submissions is flushed as
// well. It runs until ctx is cancelled.
func (b *Batcher) RunTicker(ctx context.Context) {
	ticker := time.NewTicker(b.cfg.BufferDuration)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.mu.Lock()
			idle := len(b.buffer) > 0 && time.Since(b.lastFlush) >= b.cfg.BufferDuration
			b.mu.Unlock()
			if idle {
				if err := b.flush("idle"); err != nil {
					log.Warn("admission: idle flush failed", "err", err)
				}
			}
		}
	}
}

// Len reports the current buffer length, for tests and metrics.
func (b *Batcher) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.buffer)
}
