package jsonrpc

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/ethereum/go-ethereum/log"

	"github.com/chainforge/node/message"
)

// Method names are an implementation choice: the wire method-name surface
// is out of scope for the spec itself (Non-goals, spec §1), so these exist
// only to route a decoded call to the right Relay operation.
const (
	methodSendTransaction   = "sendTransaction"
	methodBlockNumber       = "blockNumber"
	methodBlockByHash       = "getBlockByHash"
	methodBlockByHeight     = "getBlockByHeight"
	methodTransaction       = "getTransaction"
	methodTransactionReceipt = "getTransactionReceipt"
	methodFilter            = "getLogs"
	methodNewFilter         = "newFilter"
	methodNewBlockFilter    = "newBlockFilter"
	methodUninstallFilter   = "uninstallFilter"
	methodFilterChanges     = "getFilterChanges"
	methodFilterLogs        = "getFilterLogs"
	methodCall              = "call"
	methodTransactionCount  = "getTransactionCount"
	methodCode              = "getCode"
)

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResult struct {
	Result interface{} `json:"result,omitempty"`
	Error  *rpcError   `json:"error,omitempty"`
}

// dispatchCall decodes call.Params against the method name and drives it
// through relay, writing a jsonrpc-shaped result to w. Shared by the HTTP
// and WS front ends.
func dispatchCall(ctx context.Context, relay *Relay, call rpcCall, w http.ResponseWriter) {
	switch call.Method {
	case methodSendTransaction:
		var req message.VerifyTxReq
		if err := json.Unmarshal(call.Params, &req); err != nil {
			writeError(w, err)
			return
		}
		resp, err := relay.SubmitTxAndWait(ctx, req)
		if err != nil {
			writeError(w, err)
			return
		}
		writeResult(w, resp)

	case methodBlockNumber:
		queryAndWrite(ctx, relay, w, message.Request{BlockNumber: &struct{}{}})

	case methodBlockByHash:
		var params message.BlockByHashParams
		if err := json.Unmarshal(call.Params, &params); err != nil {
			writeError(w, err)
			return
		}
		queryAndWrite(ctx, relay, w, message.Request{BlockByHash: &params})

	case methodBlockByHeight:
		var params message.BlockByHeightParams
		if err := json.Unmarshal(call.Params, &params); err != nil {
			writeError(w, err)
			return
		}
		queryAndWrite(ctx, relay, w, message.Request{BlockByHeight: &params})

	case methodTransaction:
		var hash message.TxHash
		if err := json.Unmarshal(call.Params, &hash); err != nil {
			writeError(w, err)
			return
		}
		queryAndWrite(ctx, relay, w, message.Request{Transaction: &hash})

	case methodTransactionReceipt:
		var hash message.TxHash
		if err := json.Unmarshal(call.Params, &hash); err != nil {
			writeError(w, err)
			return
		}
		queryAndWrite(ctx, relay, w, message.Request{TransactionReceipt: &hash})

	case methodFilter:
		spec := string(call.Params)
		queryAndWrite(ctx, relay, w, message.Request{Filter: &spec})

	case methodNewFilter:
		spec := string(call.Params)
		queryAndWrite(ctx, relay, w, message.Request{NewFilter: &spec})

	case methodNewBlockFilter:
		queryAndWrite(ctx, relay, w, message.Request{NewBlockFilter: &struct{}{}})

	case methodUninstallFilter:
		var id uint64
		if err := json.Unmarshal(call.Params, &id); err != nil {
			writeError(w, err)
			return
		}
		queryAndWrite(ctx, relay, w, message.Request{UninstallFilter: &id})

	case methodFilterChanges:
		var id uint64
		if err := json.Unmarshal(call.Params, &id); err != nil {
			writeError(w, err)
			return
		}
		queryAndWrite(ctx, relay, w, message.Request{FilterChanges: &id})

	case methodFilterLogs:
		var id uint64
		if err := json.Unmarshal(call.Params, &id); err != nil {
			writeError(w, err)
			return
		}
		queryAndWrite(ctx, relay, w, message.Request{FilterLogs: &id})

	case methodCall:
		forwardOnly(ctx, relay, w, message.Request{Call: call.Params})

	case methodTransactionCount:
		forwardOnly(ctx, relay, w, message.Request{TransactionCount: call.Params})

	case methodCode:
		forwardOnly(ctx, relay, w, message.Request{Code: call.Params})

	default:
		writeError(w, errUnknownMethod(call.Method))
	}
}

func queryAndWrite(ctx context.Context, relay *Relay, w http.ResponseWriter, req message.Request) {
	resp, err := relay.Query(ctx, req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeResult(w, resp)
}

// forwardOnly implements spec §4.F's three re-forwarded variants: there is
// no local response to wait for, so the HTTP caller gets an acknowledgement
// rather than a query result.
func forwardOnly(ctx context.Context, relay *Relay, w http.ResponseWriter, req message.Request) {
	if err := relay.Forward(req); err != nil {
		log.Debug("jsonrpc: forward failed", "err", err)
		writeError(w, err)
		return
	}
	writeResult(w, map[string]bool{"forwarded": true})
}

func writeResult(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(rpcResult{Result: v})
}

func writeError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(rpcResult{Error: &rpcError{Code: 1, Message: err.Error()}})
}

type methodError string

func (e methodError) Error() string { return string(e) }

func errUnknownMethod(method string) error {
	return methodError("jsonrpc: unknown method " + method)
}
