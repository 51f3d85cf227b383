package readdispatcher

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/event"
	"github.com/ethereum/go-ethereum/log"

	"github.com/chainforge/node/chain"
	"github.com/chainforge/node/message"
)

// ErrQueryDecode is wrapped into QueryError responses (spec §7 QueryError).
var ErrQueryDecode = fmt.Errorf("readdispatcher: query decode error")

// queryErrorCode matches the original's ErrorCode::query_error() sentinel:
// a stable, non-zero response code callers can branch on without parsing
// ErrorMsg.
const queryErrorCode = 1

// Dispatcher implements spec §4.F against a chain.Store and a FilterTable.
type Dispatcher struct {
	store     chain.Store
	filters   *FilterTable
	logFeed   *event.Feed
	chainFeed *event.Feed

	forwardToExecutor func(raw []byte) error
}

// New builds a Dispatcher. forwardToExecutor is called verbatim for
// call/transaction_count/code requests (spec §4.F), logFeed/chainFeed back
// new_filter/new_block_filter subscriptions (SPEC_FULL §4.F); either may be
// nil.
func New(store chain.Store, filters *FilterTable, logFeed, chainFeed *event.Feed, forwardToExecutor func(raw []byte) error) *Dispatcher {
	return &Dispatcher{store: store, filters: filters, logFeed: logFeed, chainFeed: chainFeed, forwardToExecutor: forwardToExecutor}
}

// Dispatch implements chain.Reader (spec §4.F). ok is false exactly for the
// three re-forwarded variants, which produce no local response.
func (d *Dispatcher) Dispatch(ctx context.Context, req message.Request, raw []byte) (message.Response, bool) {
	resp := message.Response{RequestID: req.RequestID}

	switch {
	case req.BlockNumber != nil:
		h := d.store.GetMaxStoreHeight(ctx)
		if h == message.HeightPseudoProof {
			h = d.store.GetMaxHeight(ctx)
		}
		resp.BlockNumber = &h

	case req.BlockByHash != nil:
		block, ok, err := d.store.BlockByHash(ctx, req.BlockByHash.Hash)
		if err != nil {
			d.setQueryError(&resp, err)
			break
		}
		if !ok {
			resp.None = true
			break
		}
		d.setBlockResponse(&resp, block, req.BlockByHash.IncludeTxs)

	case req.BlockByHeight != nil:
		id := chain.BlockID{Current: req.BlockByHeight.BlockID.Latest}
		if req.BlockByHeight.BlockID.Number != nil {
			id.Height = *req.BlockByHeight.BlockID.Number
		}
		block, ok, err := d.store.Block(ctx, id)
		if err != nil {
			d.setQueryError(&resp, err)
			break
		}
		if !ok {
			resp.None = true
			break
		}
		d.setBlockResponse(&resp, block, req.BlockByHeight.IncludeTxs)

	case req.Transaction != nil:
		tx, ok, err := d.store.FullTransaction(ctx, *req.Transaction)
		if err != nil {
			d.setQueryError(&resp, err)
			break
		}
		if !ok {
			resp.None = true
			break
		}
		encoded := string(tx.Raw)
		resp.Ts = &encoded

	case req.TransactionReceipt != nil:
		receipt, ok, err := d.store.LocalizedReceipt(ctx, *req.TransactionReceipt)
		if err != nil {
			d.setQueryError(&resp, err)
			break
		}
		if !ok {
			resp.None = true
			break
		}
		serialized, err := json.Marshal(receipt)
		if err != nil {
			d.setQueryError(&resp, err)
			break
		}
		s := string(serialized)
		resp.Receipt = &s

	case req.Filter != nil:
		var filter chain.LogFilter
		if err := json.Unmarshal([]byte(*req.Filter), &filter); err != nil {
			d.setQueryError(&resp, fmt.Errorf("%w: %v", ErrQueryDecode, err))
			break
		}
		logs, err := d.store.GetLogs(ctx, filter)
		if err != nil {
			d.setQueryError(&resp, err)
			break
		}
		serialized, err := json.Marshal(logs)
		if err != nil {
			d.setQueryError(&resp, err)
			break
		}
		s := string(serialized)
		resp.Logs = &s

	case req.Call != nil:
		d.forward(raw)
		return message.Response{}, false

	case req.TransactionCount != nil:
		d.forward(raw)
		return message.Response{}, false

	case req.Code != nil:
		d.forward(raw)
		return message.Response{}, false

	case req.NewFilter != nil:
		var filter chain.LogFilter
		if err := json.Unmarshal([]byte(*req.NewFilter), &filter); err != nil {
			d.setQueryError(&resp, fmt.Errorf("%w: %v", ErrQueryDecode, err))
			break
		}
		id := d.filters.NewFilter(filter, d.logFeed)
		resp.FilterID = &id

	case req.NewBlockFilter != nil:
		id := d.filters.NewBlockFilter(d.chainFeed)
		resp.FilterID = &id

	case req.UninstallFilter != nil:
		ok := d.filters.Uninstall(*req.UninstallFilter)
		resp.UninstallResult = &ok

	case req.FilterChanges != nil:
		logs, blocks, ok := d.filters.Changes(*req.FilterChanges)
		if !ok {
			log.Warn("readdispatcher: filter_changes for unknown id", "id", *req.FilterChanges)
			break
		}
		type filterChanges struct {
			Logs   []chain.Log     `json:"logs,omitempty"`
			Blocks []chain.BlockID `json:"blocks,omitempty"`
		}
		serialized, err := json.Marshal(filterChanges{Logs: logs, Blocks: blocks})
		if err != nil {
			d.setQueryError(&resp, err)
			break
		}
		s := string(serialized)
		resp.FilterChanges = &s

	case req.FilterLogs != nil:
		logs, ok := d.filters.Logs(*req.FilterLogs)
		if !ok {
			logs = nil
		}
		serialized, err := json.Marshal(logs)
		if err != nil {
			d.setQueryError(&resp, err)
			break
		}
		s := string(serialized)
		resp.FilterLogsResp = &s

	default:
		log.Error("readdispatcher: unmatched request variant")
	}

	return resp, true
}

func (d *Dispatcher) forward(raw []byte) {
	if d.forwardToExecutor == nil {
		return
	}
	if err := d.forwardToExecutor(raw); err != nil {
		log.Warn("readdispatcher: forward to executor failed", "err", err)
	}
}

func (d *Dispatcher) setQueryError(resp *message.Response, err error) {
	resp.Code = queryErrorCode
	resp.ErrorMsg = err.Error()
}

func (d *Dispatcher) setBlockResponse(resp *message.Response, block message.Block, includeTxs bool) {
	type rpcBlock struct {
		Hash       message.BlockHash `json:"hash"`
		Height     message.Height    `json:"height"`
		IncludeTxs bool              `json:"includeTxs"`
		TxHashes   []message.TxHash  `json:"txHashes,omitempty"`
	}
	rb := rpcBlock{Hash: block.Hash, Height: block.Height, IncludeTxs: includeTxs}
	if includeTxs {
		rb.TxHashes = block.TxHashes
	}
	serialized, err := json.Marshal(rb)
	if err != nil {
		d.setQueryError(resp, err)
		return
	}
	s := string(serialized)
	resp.Block = &s
}
