package chain

import (
	"context"

	"github.com/ethereum/go-ethereum/event"
	"github.com/ethereum/go-ethereum/log"

	"github.com/chainforge/node/blockqueue"
	"github.com/chainforge/node/bus"
	"github.com/chainforge/node/message"
)

// Reader is the read-path collaborator ChainForwarder delegates Request
// envelopes to (spec §4.E dispatch table "Request(r) -> ReadDispatcher").
// raw is the envelope's original encoding, needed verbatim for the three
// request variants that are re-forwarded rather than answered locally
// (spec §4.F "call, transaction_count, code"); ok is false for those.
type Reader interface {
	Dispatch(ctx context.Context, req message.Request, raw []byte) (resp message.Response, ok bool)
}

// Forwarder is the ChainForwarder component (spec §4.E): it consumes bus
// messages and routes them to the block queue, the hash-window notification
// path, or the read path.
type Forwarder struct {
	store Store
	queue *blockqueue.Queue
	gas   *GasLimits
	out   bus.Bus
	read  Reader

	executed chan message.ExecutedResult

	// BlockTxHashesFeed fans out every BlockTxHashes notification this
	// forwarder emits, mirroring chain.txhashes on the bus (SPEC_FULL §4.E).
	BlockTxHashesFeed event.Feed
}

// New builds a Forwarder. executedBuffer sizes the single-producer/
// single-consumer channel ExecutedResult messages are relayed through
// (spec §5 "a block processor consuming executed-result messages via a
// single-producer/single-consumer channel").
func New(store Store, queue *blockqueue.Queue, gas *GasLimits, out bus.Bus, read Reader, executedBuffer int) *Forwarder {
	return &Forwarder{
		store:    store,
		queue:    queue,
		gas:      gas,
		out:      out,
		read:     read,
		executed: make(chan message.ExecutedResult, executedBuffer),
	}
}

// Dispatch implements spec §4.E's message dispatch table.
func (f *Forwarder) Dispatch(ctx context.Context, env message.Envelope, raw []byte) {
	switch {
	case env.Request != nil:
		if resp, ok := f.read.Dispatch(ctx, *env.Request, raw); ok {
			f.publishResponse(resp)
		}

	case env.ExecutedResult != nil:
		select {
		case f.executed <- *env.ExecutedResult:
		default:
			log.Warn("chain: block processor channel full, dropping executed result", "height", env.ExecutedResult.Height)
		}

	case env.BlockWithProof != nil:
		f.consensusEnqueue(ctx, *env.BlockWithProof)

	case env.SyncRequest != nil:
		f.replySyncRequest(ctx, *env.SyncRequest)

	case env.SyncResponse != nil:
		f.dealSyncBlocks(ctx, *env.SyncResponse)

	case env.BlockTxHashesReq != nil:
		f.dealBlockTxReq(ctx, *env.BlockTxHashesReq)

	default:
		log.Error("chain: unrecognized envelope, dropping")
	}
}

// RunBlockProcessor drains ExecutedResult messages and advances the
// executed-height frontier (spec §4.D "max_height: ... advanced by the
// executor"). It runs until ctx is cancelled.
func (f *Forwarder) RunBlockProcessor(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-f.executed:
			f.queue.SetMaxHeight(e.Height)
			f.gas.SetBlock(e.BlockGasLimit)
		}
	}
}

func (f *Forwarder) publishResponse(resp message.Response) {
	payload, err := message.Marshal(message.Envelope{Response: &resp})
	if err != nil {
		log.Warn("chain: failed to marshal response", "err", err)
		return
	}
	if err := f.out.Publish(bus.TopicChainRPC, payload); err != nil {
		log.Warn("chain: failed to publish response", "err", err)
	}
}

// consensusEnqueue implements spec §4.E "Consensus-enqueue".
func (f *Forwarder) consensusEnqueue(ctx context.Context, bp message.BlockWithProof) {
	h := bp.Block.Height
	want := f.queue.MaxStoreHeight() + 1
	if h != want {
		log.Warn("chain: out-of-order consensus block, dropping", "height", h, "want", want)
		return
	}

	f.queue.PutConsensus(h, bp.Block, bp.Proof)
	if err := f.store.SaveCurrentBlockProof(ctx, bp.Proof); err != nil {
		log.Warn("chain: failed to save current block proof", "height", h, "err", err)
	}
	if err := f.store.SetBlockBody(ctx, h, bp.Block); err != nil {
		log.Warn("chain: failed to persist block body", "height", h, "err", err)
	}
	f.queue.SetMaxStoreHeight(h)
	f.emitBlockTxHashes(ctx, h, bp.Block.TxHashes)
}

// replySyncRequest implements spec §4.E "SyncResponse construction".
func (f *Forwarder) replySyncRequest(ctx context.Context, req message.SyncRequest) {
	var resp message.SyncResponse
	currentHeight := f.store.GetCurrentHeight(ctx)

	for _, h := range req.Heights {
		block, ok, err := f.store.Block(ctx, BlockID{Height: h})
		if err != nil {
			log.Warn("chain: sync request block lookup failed", "height", h, "err", err)
			continue
		}
		if !ok {
			continue
		}
		resp.Blocks = append(resp.Blocks, block)

		if h == currentHeight {
			if proof, ok, err := f.store.CurrentBlockProof(ctx); err == nil && ok {
				resp.PseudoProofs = append(resp.PseudoProofs, message.PseudoProof{
					ProofHeight: h,
					Proof:       proof,
				})
			}
		}
	}

	if len(resp.Blocks) == 0 && len(resp.PseudoProofs) == 0 {
		return
	}
	payload, err := message.Marshal(message.Envelope{
		Origin:       req.Origin,
		Operate:      message.OperateSingle,
		SyncResponse: &resp,
	})
	if err != nil {
		log.Warn("chain: failed to marshal sync response", "err", err)
		return
	}
	if err := f.out.Publish(bus.TopicChainBlk, payload); err != nil {
		log.Warn("chain: failed to publish sync response", "origin", req.Origin, "err", err)
	}
}

// dealSyncBlocks implements spec §4.E "Add-sync" entry point, checking the
// transactions root before each block is allowed into addSync
// (SPEC_FULL §B, forward.rs's block.check_hash()).
func (f *Forwarder) dealSyncBlocks(ctx context.Context, res message.SyncResponse) {
	maxHeight := f.queue.MaxHeight()
	for _, block := range res.Blocks {
		if block.Height < maxHeight {
			continue
		}
		if !f.store.VerifyBody(ctx, block) {
			log.Warn("chain: sync block failed body verification", "height", block.Height)
			break
		}
		f.addSyncRegular(ctx, block)
	}
	for _, pp := range res.PseudoProofs {
		f.addSyncPseudo(ctx, pp)
	}
}

// addSyncRegular implements spec §4.E "Add-sync" Case A.
func (f *Forwarder) addSyncRegular(ctx context.Context, block message.Block) {
	chainProofType := f.store.ChainProofType(ctx)
	if block.ProofType != chainProofType {
		log.Error("chain: sync block proof type mismatch", "block", block.ProofType, "chain", chainProofType)
		return
	}

	proofHeight := proofHeightOf(block.Proof)
	maxHeight := f.queue.MaxHeight()
	maxStoreHeight := f.queue.MaxStoreHeight()

	if proofHeight != maxHeight && proofHeight != maxStoreHeight {
		log.Info("chain: sync block is not continuous proof height, dropping", "height", block.Height, "proofHeight", proofHeight)
		return
	}

	f.queue.FillSyncProof(proofHeight, block.Proof)

	if err := f.store.SetBlockBody(ctx, block.Height, block); err != nil {
		log.Warn("chain: failed to persist synced block body", "height", block.Height, "err", err)
	}
	f.queue.SetMaxStoreHeight(block.Height)
	f.emitBlockTxHashes(ctx, block.Height, block.TxHashes)
	f.queue.PutSync(block.Height, block)
}

// addSyncPseudo implements spec §4.E "Add-sync" Case B.
func (f *Forwarder) addSyncPseudo(ctx context.Context, pp message.PseudoProof) {
	currentHeight := f.store.GetCurrentHeight(ctx)
	if pp.ProofHeight > currentHeight {
		f.queue.FillSyncProof(pp.ProofHeight, pp.Proof)
	}
}

func proofHeightOf(p message.Proof) message.Height {
	if p.Height == message.HeightPseudoProof {
		return 0
	}
	return p.Height
}

// emitBlockTxHashes publishes a BlockTxHashes notification for h (spec
// §4.E, §5 ordering guarantee: emitted after the body at h is visible and
// max_store_height >= h — consensusEnqueue and addSyncRegular set
// max_store_height first; dealBlockTxReq only re-emits hashes the store
// already holds for h).
func (f *Forwarder) emitBlockTxHashes(ctx context.Context, h message.Height, hashes []message.TxHash) {
	if err := f.store.DeliveryBlockTxHashes(ctx, h, hashes); err != nil {
		log.Warn("chain: failed to record delivered block tx hashes", "height", h, "err", err)
	}

	notif := message.BlockTxHashes{
		Height:          h,
		TxHashes:        hashes,
		BlockGasLimit:   f.gas.Block(),
		AccountGasLimit: f.gas.Account().Dec(),
	}
	f.BlockTxHashesFeed.Send(notif)

	payload, err := message.Marshal(message.Envelope{BlockTxHashes: &notif})
	if err != nil {
		log.Warn("chain: failed to marshal block tx hashes", "height", h, "err", err)
		return
	}
	if err := f.out.Publish(bus.TopicChainTxHashes, payload); err != nil {
		log.Warn("chain: failed to publish block tx hashes", "height", h, "err", err)
	}
}

// dealBlockTxReq implements spec §4.E "BlockTxHashesReq(h) handler".
func (f *Forwarder) dealBlockTxReq(ctx context.Context, req message.BlockTxHashesReq) {
	hashes, ok, err := f.store.TransactionHashes(ctx, BlockID{Height: req.Height})
	if err != nil || !ok {
		log.Warn("chain: get block's tx hashes error", "height", req.Height, "err", err)
		return
	}
	f.emitBlockTxHashes(ctx, req.Height, hashes)
}
