package jsonrpc

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/log"
	"github.com/google/uuid"

	"github.com/chainforge/node/admission"
	"github.com/chainforge/node/bus"
	"github.com/chainforge/node/jsonrpc/pending"
	"github.com/chainforge/node/message"
)

// Relay is the front-end ingress collaborator: it turns decoded HTTP/WS
// calls into bus traffic and matches bus responses back to the waiting
// caller via the pending tables (spec §6). It subscribes to both topics
// the original jsonrpc process listens on, auth.rpc and chain.rpc: a
// read-query reply arrives on chain.rpc, a transaction-verification
// reply arrives on auth.rpc, so each gets its own typed pending.Table
// rather than sharing one dynamically-typed map as the original does.
type Relay struct {
	batcher *admission.Batcher
	out     bus.Bus
	table   *pending.Table[message.Response]
	txTable *pending.Table[message.VerifyTxResp]
}

// NewRelay wires a Relay over batcher/out, each pending table sized at
// backlogCapacity (spec §6 "backlog_capacity").
func NewRelay(batcher *admission.Batcher, out bus.Bus, backlogCapacity int) *Relay {
	return &Relay{
		batcher: batcher,
		out:     out,
		table:   pending.New[message.Response](backlogCapacity),
		txTable: pending.New[message.VerifyTxResp](backlogCapacity),
	}
}

// Run subscribes to chain-rpc and auth-rpc and delivers every Response or
// VerifyTxResp it sees to the matching pending caller. It blocks until
// ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	chainDeliveries, cancelChain := r.out.Subscribe(bus.TopicChainRPC)
	defer cancelChain()
	authDeliveries, cancelAuth := r.out.Subscribe(bus.TopicAuthRPC)
	defer cancelAuth()

	for {
		select {
		case <-ctx.Done():
			return nil

		case d := <-chainDeliveries:
			env, err := message.Unmarshal(d.Payload)
			if err != nil {
				log.Warn("jsonrpc: dropping undecodable chain-rpc message", "err", err)
				continue
			}
			if env.Response == nil {
				continue
			}
			r.table.Deliver(env.Response.RequestID, *env.Response)

		case d := <-authDeliveries:
			env, err := message.Unmarshal(d.Payload)
			if err != nil {
				log.Warn("jsonrpc: dropping undecodable auth-rpc message", "err", err)
				continue
			}
			if env.VerifyTxResp == nil {
				continue
			}
			if len(env.VerifyTxResp.RequestID) == 0 {
				// Verification results reaching auth.rpc from a
				// fire-and-forget batch submission (SubmitTx, not
				// SubmitTxAndWait) carry no request id; nothing here is
				// waiting on them.
				continue
			}
			r.txTable.Deliver(env.VerifyTxResp.RequestID, *env.VerifyTxResp)
		}
	}
}

// SubmitTx forwards req to the admission batcher without waiting for a
// verification result (spec §4.C, a fire-and-forget write path into the
// admission pipeline). The "sendTransaction" method uses SubmitTxAndWait
// instead.
func (r *Relay) SubmitTx(req message.VerifyTxReq) error {
	return r.batcher.SubmitTx(req)
}

// SubmitTxAndWait submits req and blocks for its VerifyTxResp, correlated
// by a freshly minted request id delivered back over auth.rpc — the
// send_transaction counterpart to Query's read-side request/response
// pattern, grounded on the original jsonrpc process correlating replies
// from both of its subscribed topics against one pending-response table.
func (r *Relay) SubmitTxAndWait(ctx context.Context, req message.VerifyTxReq) (message.VerifyTxResp, error) {
	id := uuid.New()
	req.RequestID = id[:]

	ch := r.txTable.Register(req.RequestID)
	if err := r.batcher.SubmitTx(req); err != nil {
		r.txTable.Forget(req.RequestID)
		return message.VerifyTxResp{}, fmt.Errorf("jsonrpc: submit transaction: %w", err)
	}

	select {
	case <-ctx.Done():
		r.txTable.Forget(req.RequestID)
		return message.VerifyTxResp{}, ctx.Err()
	case resp, ok := <-ch:
		if !ok {
			return message.VerifyTxResp{}, fmt.Errorf("jsonrpc: transaction %x evicted before a verification result arrived", req.RequestID)
		}
		return resp, nil
	}
}

// Forward publishes req on the chain-rpc topic without waiting for a
// reply, for the three request variants spec §4.F re-forwards to the
// executor and never answers locally (call, transaction_count, code).
func (r *Relay) Forward(req message.Request) error {
	payload, err := message.Marshal(message.Envelope{Request: &req})
	if err != nil {
		return fmt.Errorf("jsonrpc: marshal request: %w", err)
	}
	return r.out.Publish(bus.TopicChainRPC, payload)
}

// Query submits a read request and waits for its matching response, or for
// ctx to be cancelled. Callers must not use Query for the re-forwarded
// variants (call/transaction_count/code); use Forward instead, since no
// response will ever arrive on this path (spec §4.F).
func (r *Relay) Query(ctx context.Context, req message.Request) (message.Response, error) {
	id := uuid.New()
	req.RequestID = id[:]

	ch := r.table.Register(req.RequestID)
	payload, err := message.Marshal(message.Envelope{Request: &req})
	if err != nil {
		r.table.Forget(req.RequestID)
		return message.Response{}, fmt.Errorf("jsonrpc: marshal request: %w", err)
	}
	if err := r.out.Publish(bus.TopicChainRPC, payload); err != nil {
		r.table.Forget(req.RequestID)
		return message.Response{}, fmt.Errorf("jsonrpc: publish request: %w", err)
	}

	select {
	case <-ctx.Done():
		r.table.Forget(req.RequestID)
		return message.Response{}, ctx.Err()
	case resp, ok := <-ch:
		if !ok {
			return message.Response{}, fmt.Errorf("jsonrpc: request %x evicted before a reply arrived", req.RequestID)
		}
		return resp, nil
	}
}
