package message

// Request is the read-path request variant dispatched by ReadDispatcher
// (spec §4.F). Exactly one field is set, mirroring the original's
// Request_oneof_req.
type Request struct {
	RequestID []byte

	BlockNumber        *struct{}
	BlockByHash        *BlockByHashParams
	BlockByHeight      *BlockByHeightParams
	Transaction        *TxHash
	TransactionReceipt *TxHash
	Filter             *string // JSON-encoded filter spec, decoded by readdispatcher
	Call               []byte  // raw bytes, re-forwarded verbatim to the executor
	TransactionCount   []byte
	Code               []byte
	NewFilter          *string
	NewBlockFilter     *struct{}
	UninstallFilter    *uint64
	FilterChanges      *uint64
	FilterLogs         *uint64
}

// BlockByHashParams mirrors jsonrpc_types::rpctypes::BlockParamsByHash.
type BlockByHashParams struct {
	Hash        BlockHash
	IncludeTxs  bool
}

// BlockByHeightParams mirrors jsonrpc_types::rpctypes::BlockParamsByNumber.
type BlockByHeightParams struct {
	BlockID    BlockID
	IncludeTxs bool
}

// BlockID selects a block by number or by a symbolic tag.
type BlockID struct {
	Number  *Height
	Latest  bool
}

// Response is the read-path reply (spec §4.F); every reply carries the
// request's id verbatim and is published on the chain-rpc topic.
type Response struct {
	RequestID []byte

	Code    int
	ErrorMsg string

	BlockNumber     *Height
	Block           *string // serialized RpcBlock
	None            bool
	Ts              *string // serialized localized transaction
	Receipt         *string // serialized localized receipt
	Logs            *string // serialized []RpcLog
	FilterID        *uint64
	UninstallResult *bool
	FilterChanges   *string
	FilterLogsResp  *string
}
