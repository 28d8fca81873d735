// Package chain implements block validation, fork choice and
// reorganization, the orphan block buffer, and the
// single global chain-state lock serializing every mutation.
// Modeled on blockdag/dag.go (tip tracking,
// acceptance, orphan handling) and blockdag/validate.go (per-block
// validation pipeline), generalized from a DAG/blue-set model
// to a single canonical chain selected strictly by cumulative
// work, not length.
package chain

import (
	"math/big"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/xai-blockchain/xai-sub017/addressindex"
	"github.com/xai-blockchain/xai-sub017/block"
	"github.com/xai-blockchain/xai-sub017/checkpoint"
	"github.com/xai-blockchain/xai-sub017/consensuserr"
	"github.com/xai-blockchain/xai-sub017/crypto"
	"github.com/xai-blockchain/xai-sub017/mempool"
	"github.com/xai-blockchain/xai-sub017/reward"
	"github.com/xai-blockchain/xai-sub017/transaction"
	"github.com/xai-blockchain/xai-sub017/utxo"
)

// Result is the outcome of submitting a block.
type Result int

const (
	Accepted Result = iota
	Orphaned
	Rejected
)

func (r Result) String() string {
	switch r {
	case Accepted:
		return "accepted"
	case Orphaned:
		return "orphaned"
	case Rejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// FutureTimeLimit is T_future: how far ahead of wall
// clock a header's timestamp may be.
const FutureTimeLimit = 2 * time.Hour

// TargetBlockTimeSeconds is the network's target inter-block interval,
// feeding package block's retarget algorithm.
const TargetBlockTimeSeconds = 600

// MedianTimePastWindow is the number of trailing block timestamps used for
// the median-time-past check against a new block's timestamp.
const MedianTimePastWindow = 11

// connectMeta records the issuance accounting for a connected block so
// that a later disconnect (reorg undo) can reverse it exactly, rather than
// recomputing a value that depends on chain history at the time.
type connectMeta struct {
	rewardIssued    uint64
	feesTotal       uint64
	txIDs           []crypto.Hash
	consumedEntries []*utxo.Entry
}

// ReorgEvent is delivered to subscribers on every accepted reorganization
// (or simple extension, reported as a single connected block with no
// disconnects).
type ReorgEvent struct {
	Connected    []*block.Block
	Disconnected []*block.Block
}

// Config wires a Chain to its collaborators.
type Config struct {
	UTXOSet      *utxo.Set
	Mempool      *mempool.Pool
	AddressIndex *addressindex.Index
	Checkpoints  *checkpoint.Manager
	// CheckpointDepth bounds reorg depth: once the tip is above
	// CheckpointDepth, a reorg whose common ancestor is at or below
	// tip.Index - CheckpointDepth (one that would disconnect CheckpointDepth
	// or more blocks) is rejected with ErrReorgRejected. Zero disables the
	// bound.
	CheckpointDepth uint64
	// OrphanPruneAge is how many blocks below the tip an orphan may sit
	// before being pruned (default: 100).
	OrphanPruneAge uint64
}

// Chain is the consensus engine's block store and validator. All mutation
// is serialized by mtx; reads
// take the same lock in shared mode.
type Chain struct {
	mtx sync.RWMutex
	cfg Config

	genesisHash crypto.Hash

	// canonical chain: index -> block, and the reverse hash -> index.
	canonical    map[uint64]*block.Block
	indexOfHash  map[crypto.Hash]uint64
	tipIndex     uint64

	// every block ever accepted as individually valid, canonical or not,
	// so that fork candidates and reorg undo/redo can address them by hash.
	blocksByHash map[crypto.Hash]*block.Block
	workByHash   map[crypto.Hash]*big.Int
	metaByHash   map[crypto.Hash]connectMeta

	issuedRewards uint64

	orphans *orphanBlocks

	subscribers []func(ReorgEvent)
}

// New constructs a Chain rooted at genesis, which must already satisfy
// its structural/PoW/merkle checks (its previous_hash is expected
// to be the zero hash and its index 0).
func New(cfg Config, genesis *block.Block) (*Chain, error) {
	if genesis.Header.Index != 0 || !genesis.Header.PreviousHash.IsZero() {
		return nil, errors.New("chain: genesis must have index 0 and a zero previous_hash")
	}
	work, err := block.Work(genesis.Header.Difficulty)
	if err != nil {
		return nil, err
	}
	genesisHash := genesis.Header.Hash()

	c := &Chain{
		cfg:          cfg,
		genesisHash:  genesisHash,
		canonical:    map[uint64]*block.Block{0: genesis},
		indexOfHash:  map[crypto.Hash]uint64{genesisHash: 0},
		blocksByHash: map[crypto.Hash]*block.Block{genesisHash: genesis},
		workByHash:   map[crypto.Hash]*big.Int{genesisHash: work},
		metaByHash:   map[crypto.Hash]connectMeta{genesisHash: {}},
		orphans:      newOrphanBlocks(cfg.OrphanPruneAge),
	}

	// Genesis mints the pre-mine allocation directly: it is not
	// subject to the reward schedule, so issuedRewards stays at zero.
	for i, tx := range genesis.Transactions {
		for vout, out := range tx.Outputs {
			if err := cfg.UTXOSet.AddUTXO(out.Address, tx.TxID(), uint32(vout), out.Amount, nil); err != nil {
				return nil, errors.Wrap(err, "chain: seed genesis utxo")
			}
		}
		if cfg.AddressIndex != nil {
			if err := cfg.AddressIndex.IndexTransaction(tx, 0, uint32(i), genesis.Header.Timestamp); err != nil {
				return nil, errors.Wrap(err, "chain: index genesis transaction")
			}
		}
	}
	return c, nil
}

// Subscribe registers fn to receive every future ReorgEvent.
func (c *Chain) Subscribe(fn func(ReorgEvent)) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	c.subscribers = append(c.subscribers, fn)
}

func (c *Chain) notify(ev ReorgEvent) {
	for _, fn := range c.subscribers {
		fn(ev)
	}
}

// Tip returns the current canonical tip header.
func (c *Chain) Tip() block.Header {
	c.mtx.RLock()
	defer c.mtx.RUnlock()
	return c.canonical[c.tipIndex].Header
}

// TipIndex returns the current canonical tip height.
func (c *Chain) TipIndex() uint64 {
	c.mtx.RLock()
	defer c.mtx.RUnlock()
	return c.tipIndex
}

// GetBlockAt returns the canonical block at index.
func (c *Chain) GetBlockAt(index uint64) (*block.Block, bool) {
	c.mtx.RLock()
	defer c.mtx.RUnlock()
	b, ok := c.canonical[index]
	return b, ok
}

// GetBlockByHash returns any known block (canonical or not) by hash.
func (c *Chain) GetBlockByHash(hash crypto.Hash) (*block.Block, bool) {
	c.mtx.RLock()
	defer c.mtx.RUnlock()
	b, ok := c.blocksByHash[hash]
	return b, ok
}

// CirculatingSupply returns the genesis allocation plus every reward
// issued on the canonical chain so far.
func (c *Chain) CirculatingSupply() uint64 {
	c.mtx.RLock()
	defer c.mtx.RUnlock()
	return reward.GenesisAllocation + c.issuedRewards
}

// GetBalance returns addr's spendable balance.
func (c *Chain) GetBalance(addr string) (uint64, error) {
	bal, err := c.cfg.UTXOSet.Balance(addr)
	return uint64(bal), err
}

// GetUTXOs returns addr's unlocked, unspent outputs.
func (c *Chain) GetUTXOs(addr string) []*utxo.Entry {
	return c.cfg.UTXOSet.GetUTXOs(addr, true)
}

// GetTransactionHistory delegates to the address index.
func (c *Chain) GetTransactionHistory(addr string, limit, offset int) ([]addressindex.Row, int, error) {
	return c.cfg.AddressIndex.GetTransactions(addr, limit, offset)
}

// GetMempoolOverview delegates to the mempool.
func (c *Chain) GetMempoolOverview() mempool.Overview {
	return c.cfg.Mempool.Overview()
}

// EstimateFee returns a simple linear fee estimate for a transaction of
// the given serialized size, derived from the current mempool's median fee
// rate so that estimates track real-time contention.
func (c *Chain) EstimateFee(sizeBytes uint64) uint64 {
	ov := c.cfg.Mempool.Overview()
	rate := ov.MedianFeeRate
	if rate <= 0 {
		rate = 1
	}
	return uint64(rate * float64(sizeBytes))
}

// ForEachTransaction walks the canonical chain's transactions in order,
// satisfying addressindex.BlockSource for rebuild_from_chain.
func (c *Chain) ForEachTransaction(yield func(blockIndex uint64, txIndex int, tx *transaction.Transaction, timestamp int64) error) error {
	c.mtx.RLock()
	defer c.mtx.RUnlock()
	for h := uint64(0); h <= c.tipIndex; h++ {
		b := c.canonical[h]
		for i, tx := range b.Transactions {
			if err := yield(h, i, tx, b.Header.Timestamp); err != nil {
				return err
			}
		}
	}
	return nil
}

// SubmitTransaction validates tx and admits it to the mempool against the current
// chain state, buffering as an orphan if its inputs aren't yet known.
func (c *Chain) SubmitTransaction(tx *transaction.Transaction, rbfEnabled bool) (Result, error) {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	_, err := c.cfg.Mempool.AddOrAddOrphan(tx, rbfEnabled)
	switch {
	case err == nil:
		return Accepted, nil
	case consensuserr.Is(err, consensuserr.ErrOrphanPending):
		return Orphaned, err
	default:
		return Rejected, err
	}
}
