package readdispatcher

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/event"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainforge/node/chain"
	"github.com/chainforge/node/message"
)

type fakeStore struct {
	blocks          map[message.Height]message.Block
	blocksByHash    map[message.BlockHash]message.Block
	txs             map[message.TxHash]chain.LocalizedTransaction
	receipts        map[message.TxHash]chain.LocalizedReceipt
	logs            []chain.Log
	maxHeight       message.Height
	maxStoreHeight  message.Height
	currentHeight   message.Height
	proofType       message.ProofType
	currentProof    message.Proof
	hasCurrentProof bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		blocks:       make(map[message.Height]message.Block),
		blocksByHash: make(map[message.BlockHash]message.Block),
		txs:          make(map[message.TxHash]chain.LocalizedTransaction),
		receipts:     make(map[message.TxHash]chain.LocalizedReceipt),
	}
}

func (s *fakeStore) Block(ctx context.Context, id chain.BlockID) (message.Block, bool, error) {
	if id.Current {
		b, ok := s.blocks[s.currentHeight]
		return b, ok, nil
	}
	b, ok := s.blocks[id.Height]
	return b, ok, nil
}

func (s *fakeStore) BlockByHash(ctx context.Context, hash message.BlockHash) (message.Block, bool, error) {
	b, ok := s.blocksByHash[hash]
	return b, ok, nil
}

func (s *fakeStore) FullTransaction(ctx context.Context, hash message.TxHash) (chain.LocalizedTransaction, bool, error) {
	tx, ok := s.txs[hash]
	return tx, ok, nil
}

func (s *fakeStore) LocalizedReceipt(ctx context.Context, hash message.TxHash) (chain.LocalizedReceipt, bool, error) {
	r, ok := s.receipts[hash]
	return r, ok, nil
}

func (s *fakeStore) GetLogs(ctx context.Context, filter chain.LogFilter) ([]chain.Log, error) {
	return s.logs, nil
}

func (s *fakeStore) TransactionHashes(ctx context.Context, id chain.BlockID) ([]message.TxHash, bool, error) {
	b, ok := s.blocks[id.Height]
	return b.TxHashes, ok, nil
}

func (s *fakeStore) CurrentBlockProof(ctx context.Context) (message.Proof, bool, error) {
	return s.currentProof, s.hasCurrentProof, nil
}

func (s *fakeStore) GetMaxHeight(ctx context.Context) message.Height           { return s.maxHeight }
func (s *fakeStore) GetMaxStoreHeight(ctx context.Context) message.Height     { return s.maxStoreHeight }
func (s *fakeStore) GetCurrentHeight(ctx context.Context) message.Height     { return s.currentHeight }
func (s *fakeStore) ChainProofType(ctx context.Context) message.ProofType    { return s.proofType }

func (s *fakeStore) SaveCurrentBlockProof(ctx context.Context, proof message.Proof) error {
	s.currentProof, s.hasCurrentProof = proof, true
	return nil
}

func (s *fakeStore) SetBlockBody(ctx context.Context, height message.Height, block message.Block) error {
	s.blocks[height] = block
	s.blocksByHash[block.Hash] = block
	return nil
}

func (s *fakeStore) DeliveryBlockTxHashes(ctx context.Context, height message.Height, hashes []message.TxHash) error {
	return nil
}

func (s *fakeStore) VerifyBody(ctx context.Context, block message.Block) bool { return true }

func TestDispatchBlockNumberPrefersMaxStoreHeight(t *testing.T) {
	store := newFakeStore()
	store.maxStoreHeight = 42
	store.maxHeight = 10
	d := New(store, NewFilterTable(), nil, nil, nil)

	resp, ok := d.Dispatch(context.Background(), message.Request{BlockNumber: &struct{}{}}, nil)
	require.True(t, ok)
	require.NotNil(t, resp.BlockNumber)
	assert.EqualValues(t, 42, *resp.BlockNumber)
}

func TestDispatchBlockNumberFallsBackToMaxHeight(t *testing.T) {
	store := newFakeStore()
	store.maxStoreHeight = message.HeightPseudoProof
	store.maxHeight = 7
	d := New(store, NewFilterTable(), nil, nil, nil)

	resp, ok := d.Dispatch(context.Background(), message.Request{BlockNumber: &struct{}{}}, nil)
	require.True(t, ok)
	assert.EqualValues(t, 7, *resp.BlockNumber)
}

func TestDispatchBlockByHashNotFound(t *testing.T) {
	store := newFakeStore()
	d := New(store, NewFilterTable(), nil, nil, nil)

	resp, ok := d.Dispatch(context.Background(), message.Request{
		BlockByHash: &message.BlockByHashParams{Hash: message.BlockHash{0xaa}},
	}, nil)
	require.True(t, ok)
	assert.True(t, resp.None)
}

func TestDispatchBlockByHeightIncludeTxs(t *testing.T) {
	store := newFakeStore()
	block := message.Block{Height: 5, Hash: message.BlockHash{1}, TxHashes: []message.TxHash{{0x1}, {0x2}}}
	store.blocks[5] = block
	d := New(store, NewFilterTable(), nil, nil, nil)

	n := message.Height(5)
	resp, ok := d.Dispatch(context.Background(), message.Request{
		BlockByHeight: &message.BlockByHeightParams{BlockID: message.BlockID{Number: &n}, IncludeTxs: true},
	}, nil)
	require.True(t, ok)
	require.NotNil(t, resp.Block)

	var decoded struct {
		TxHashes []message.TxHash `json:"txHashes"`
	}
	require.NoError(t, json.Unmarshal([]byte(*resp.Block), &decoded))
	assert.Len(t, decoded.TxHashes, 2)
}

func TestDispatchTransactionNotFound(t *testing.T) {
	store := newFakeStore()
	d := New(store, NewFilterTable(), nil, nil, nil)

	hash := message.TxHash{0x9}
	resp, ok := d.Dispatch(context.Background(), message.Request{Transaction: &hash}, nil)
	require.True(t, ok)
	assert.True(t, resp.None)
}

func TestDispatchCallReForwardsAndProducesNoResponse(t *testing.T) {
	store := newFakeStore()
	var forwarded []byte
	d := New(store, NewFilterTable(), nil, nil, func(raw []byte) error {
		forwarded = raw
		return nil
	})

	raw := []byte(`{"call":"payload"}`)
	resp, ok := d.Dispatch(context.Background(), message.Request{Call: []byte("payload")}, raw)
	assert.False(t, ok)
	assert.Equal(t, message.Response{}, resp)
	assert.Equal(t, raw, forwarded)
}

func TestDispatchTransactionCountReForwards(t *testing.T) {
	store := newFakeStore()
	called := false
	d := New(store, NewFilterTable(), nil, nil, func(raw []byte) error {
		called = true
		return nil
	})

	_, ok := d.Dispatch(context.Background(), message.Request{TransactionCount: []byte("x")}, []byte("raw"))
	assert.False(t, ok)
	assert.True(t, called)
}

func TestDispatchCodeReForwards(t *testing.T) {
	store := newFakeStore()
	called := false
	d := New(store, NewFilterTable(), nil, nil, func(raw []byte) error {
		called = true
		return nil
	})

	_, ok := d.Dispatch(context.Background(), message.Request{Code: []byte("x")}, []byte("raw"))
	assert.False(t, ok)
	assert.True(t, called)
}

func TestDispatchNewFilterAndUninstall(t *testing.T) {
	store := newFakeStore()
	filters := NewFilterTable()
	d := New(store, filters, nil, nil, nil)

	spec := `{"Addresses":null}`
	resp, ok := d.Dispatch(context.Background(), message.Request{NewFilter: &spec}, nil)
	require.True(t, ok)
	require.NotNil(t, resp.FilterID)
	id := *resp.FilterID

	uninstallResp, ok := d.Dispatch(context.Background(), message.Request{UninstallFilter: &id}, nil)
	require.True(t, ok)
	require.NotNil(t, uninstallResp.UninstallResult)
	assert.True(t, *uninstallResp.UninstallResult)

	again, ok := d.Dispatch(context.Background(), message.Request{UninstallFilter: &id}, nil)
	require.True(t, ok)
	assert.False(t, *again.UninstallResult)
}

func TestDispatchNewBlockFilterChangesAndLogs(t *testing.T) {
	store := newFakeStore()
	filters := NewFilterTable()
	var chainFeed event.Feed
	d := New(store, filters, nil, &chainFeed, nil)

	resp, ok := d.Dispatch(context.Background(), message.Request{NewBlockFilter: &struct{}{}}, nil)
	require.True(t, ok)
	id := *resp.FilterID

	sent := chainFeed.Send(chain.BlockID{Height: 9})
	require.Equal(t, 1, sent)

	// The feed delivery is drained by a background goroutine
	// (filtertable.go's drainBlocks), so poll filter_changes until it shows
	// up instead of assuming it is already visible.
	var decoded struct {
		Blocks []chain.BlockID `json:"blocks"`
	}
	require.Eventually(t, func() bool {
		changes, ok := d.Dispatch(context.Background(), message.Request{FilterChanges: &id}, nil)
		if !ok || changes.FilterChanges == nil {
			return false
		}
		if err := json.Unmarshal([]byte(*changes.FilterChanges), &decoded); err != nil {
			return false
		}
		return len(decoded.Blocks) > 0
	}, time.Second, time.Millisecond)
	require.Len(t, decoded.Blocks, 1)
	assert.EqualValues(t, 9, decoded.Blocks[0].Height)

	logsResp, ok := d.Dispatch(context.Background(), message.Request{FilterLogs: &id}, nil)
	require.True(t, ok)
	require.NotNil(t, logsResp.FilterLogsResp)
}

func TestDispatchUnknownFilterIDForChanges(t *testing.T) {
	store := newFakeStore()
	d := New(store, NewFilterTable(), nil, nil, nil)

	missing := uint64(999)
	resp, ok := d.Dispatch(context.Background(), message.Request{FilterChanges: &missing}, nil)
	require.True(t, ok)
	assert.Nil(t, resp.FilterChanges)
}

func TestDispatchFilterDecodeErrorYieldsQueryError(t *testing.T) {
	store := newFakeStore()
	d := New(store, NewFilterTable(), nil, nil, nil)

	bad := "not json"
	resp, ok := d.Dispatch(context.Background(), message.Request{Filter: &bad}, nil)
	require.True(t, ok)
	assert.Equal(t, queryErrorCode, resp.Code)
	assert.NotEmpty(t, resp.ErrorMsg)
}

func TestDispatchRequestIDCarriedVerbatim(t *testing.T) {
	store := newFakeStore()
	d := New(store, NewFilterTable(), nil, nil, nil)

	resp, ok := d.Dispatch(context.Background(), message.Request{RequestID: []byte("req-1"), BlockNumber: &struct{}{}}, nil)
	require.True(t, ok)
	assert.Equal(t, []byte("req-1"), resp.RequestID)
}
