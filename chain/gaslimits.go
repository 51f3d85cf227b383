package chain

import (
	"sync"
	"sync/atomic"

	"github.com/holiman/uint256"
)

// GasLimits holds the two gas-limit atomics ChainForwarder reads when
// answering BlockTxHashesReq (spec §4.E, §5): block_gas_limit is a plain
// atomic, account_gas_limit is "a small structure behind a reader-writer
// lock" per spec §5.
type GasLimits struct {
	block   atomic.Uint64
	mu      sync.RWMutex
	account *uint256.Int
}

// NewGasLimits returns GasLimits initialized to zero.
func NewGasLimits() *GasLimits {
	return &GasLimits{account: uint256.NewInt(0)}
}

// Block returns the current block gas limit.
func (g *GasLimits) Block() uint64 { return g.block.Load() }

// SetBlock sets the block gas limit.
func (g *GasLimits) SetBlock(v uint64) { g.block.Store(v) }

// Account returns a copy of the current account gas limit.
func (g *GasLimits) Account() *uint256.Int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return new(uint256.Int).Set(g.account)
}

// SetAccount replaces the account gas limit.
func (g *GasLimits) SetAccount(v *uint256.Int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.account = new(uint256.Int).Set(v)
}
