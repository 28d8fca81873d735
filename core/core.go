// Package core wires the consensus engine's components together behind
// a single in-process API surface: transaction and block
// submission, chain/balance/history queries, mempool overview, fee
// estimation, and reorg-event subscription. Collaborators (network, CLI,
// API servers) talk to an *Engine and never touch package chain, mempool,
// utxo, addressindex, checkpoint, or blockstore directly. Modeled on a
// top-level server.go wiring blockdag.BlockDAG + mempool.TxPool
// + database handles behind a single Server type.
package core

import (
	"path/filepath"

	"github.com/pkg/errors"
	"golang.org/x/crypto/chacha20poly1305"

	"github.com/xai-blockchain/xai-sub017/addressindex"
	"github.com/xai-blockchain/xai-sub017/block"
	"github.com/xai-blockchain/xai-sub017/blockstore"
	"github.com/xai-blockchain/xai-sub017/chain"
	"github.com/xai-blockchain/xai-sub017/checkpoint"
	"github.com/xai-blockchain/xai-sub017/crypto"
	"github.com/xai-blockchain/xai-sub017/logger"
	"github.com/xai-blockchain/xai-sub017/mempool"
	"github.com/xai-blockchain/xai-sub017/transaction"
	"github.com/xai-blockchain/xai-sub017/utxo"
)

// Config wires an Engine's durable storage locations and tunables.
type Config struct {
	// DataDir roots every durable resource: DataDir/blocks, DataDir/tip,
	// DataDir/addressindex, DataDir/checkpoints.
	DataDir string

	// CheckpointKey seals checkpoint snapshots at rest.
	CheckpointKey [chacha20poly1305.KeySize]byte
	// CheckpointInterval is how many blocks of height apart checkpoints
	// are taken; 0 disables automatic checkpointing.
	CheckpointInterval uint64
	// CheckpointDepth bounds reorg depth.
	CheckpointDepth uint64
	// OrphanPruneAge bounds how long an orphan block may sit buffered
	// before being pruned.
	OrphanPruneAge uint64

	MempoolPolicy mempool.Policy
}

// Engine is the external API facade. All of its exported methods
// are safe for concurrent use; mutation is serialized by the wrapped
// Chain's single global chain-state lock.
type Engine struct {
	cfg Config

	utxoSet      *utxo.Set
	mempool      *mempool.Pool
	addressIndex *addressindex.Index
	checkpoints  *checkpoint.Manager
	store        *blockstore.Store
	chain        *chain.Chain

	subscribers []func(chain.ReorgEvent)
}

// New constructs an Engine rooted at cfg.DataDir, bootstrapping from
// genesis. Callers must supply the same genesis block on every restart;
// New does not attempt to detect or reconcile a mismatched genesis.
func New(cfg Config, genesis *block.Block) (*Engine, error) {
	utxoSet := utxo.New()

	addrIdx, err := addressindex.Open(filepath.Join(cfg.DataDir, "addressindex"))
	if err != nil {
		return nil, errors.Wrap(err, "core: open address index")
	}

	policy := cfg.MempoolPolicy
	if policy == (mempool.Policy{}) {
		policy = mempool.DefaultPolicy()
	}
	pool := mempool.New(mempool.Config{Policy: policy, UTXOSet: utxoSet})

	ckpts := checkpoint.NewManager(filepath.Join(cfg.DataDir, "checkpoints"), cfg.CheckpointKey)

	store, err := blockstore.Open(cfg.DataDir)
	if err != nil {
		return nil, errors.Wrap(err, "core: open block store")
	}

	c, err := chain.New(chain.Config{
		UTXOSet:         utxoSet,
		Mempool:         pool,
		AddressIndex:    addrIdx,
		Checkpoints:     ckpts,
		CheckpointDepth: cfg.CheckpointDepth,
		OrphanPruneAge:  cfg.OrphanPruneAge,
	}, genesis)
	if err != nil {
		return nil, errors.Wrap(err, "core: construct chain")
	}

	if !store.HasBlock(0) {
		if err := store.PutBlock(genesis); err != nil {
			return nil, errors.Wrap(err, "core: persist genesis")
		}
		if err := store.SetTip(genesis.Header.Hash()); err != nil {
			return nil, errors.Wrap(err, "core: record genesis tip")
		}
	}

	e := &Engine{
		cfg:          cfg,
		utxoSet:      utxoSet,
		mempool:      pool,
		addressIndex: addrIdx,
		checkpoints:  ckpts,
		store:        store,
		chain:        c,
	}
	c.Subscribe(e.onReorg)
	return e, nil
}

// Close releases the Engine's durable-storage handles.
func (e *Engine) Close() error {
	return e.addressIndex.Close()
}

// Subscribe registers fn to receive every future reorg event.
func (e *Engine) Subscribe(fn func(chain.ReorgEvent)) {
	e.subscribers = append(e.subscribers, fn)
}

// onReorg persists newly connected blocks and the tip pointer, takes a
// checkpoint if the new tip lands on a configured interval, then fans the
// event out to subscribers. Registered with the underlying Chain, so it
// runs inside the chain-state lock's writer section: readers never
// observe a partially-persisted block.
func (e *Engine) onReorg(ev chain.ReorgEvent) {
	for _, b := range ev.Connected {
		if e.store.HasBlock(b.Header.Index) {
			continue
		}
		if err := e.store.PutBlock(b); err != nil {
			logger.CoreLog.Errorf("core: persist block %d: %v", b.Header.Index, err)
		}
	}

	tip := e.chain.Tip()
	if err := e.store.SetTip(tip.Hash()); err != nil {
		logger.CoreLog.Errorf("core: persist tip: %v", err)
	}

	if e.cfg.CheckpointInterval > 0 && tip.Index%e.cfg.CheckpointInterval == 0 {
		e.saveCheckpoint(tip)
	}

	for _, fn := range e.subscribers {
		fn(ev)
	}
}

func (e *Engine) saveCheckpoint(tip block.Header) {
	snap := checkpoint.FromUTXOSet(tip.Hash(), tip.Index, e.chain.CirculatingSupply(), e.utxoSet.All())
	if err := e.checkpoints.Save(tip.Index, snap); err != nil {
		logger.CoreLog.Errorf("core: save checkpoint at height %d: %v", tip.Index, err)
		return
	}
	logger.CoreLog.Infof("checkpoint saved at height %d", tip.Index)
}

// SubmitTransaction validates tx and admits it to the mempool against current chain
// state.
func (e *Engine) SubmitTransaction(tx *transaction.Transaction, rbfEnabled bool) (chain.Result, error) {
	return e.chain.SubmitTransaction(tx, rbfEnabled)
}

// SubmitBlock validates b, connecting it to the tip, buffering it as an
// orphan, or triggering a reorganization as appropriate.
func (e *Engine) SubmitBlock(b *block.Block) (chain.Result, error) {
	return e.chain.SubmitBlock(b)
}

// GetTip returns the current canonical tip header.
func (e *Engine) GetTip() block.Header {
	return e.chain.Tip()
}

// GetBlockAt returns the canonical block at index, preferring the live
// chain and falling back to durable storage for indices the in-memory
// chain no longer retains.
func (e *Engine) GetBlockAt(index uint64) (*block.Block, error) {
	if b, ok := e.chain.GetBlockAt(index); ok {
		return b, nil
	}
	return e.store.GetBlock(index)
}

// GetBlockByHash returns any known block (canonical or not) by hash.
func (e *Engine) GetBlockByHash(hash crypto.Hash) (*block.Block, bool) {
	return e.chain.GetBlockByHash(hash)
}

// GetBalance returns addr's spendable balance.
func (e *Engine) GetBalance(addr string) (uint64, error) {
	return e.chain.GetBalance(addr)
}

// GetUTXOs returns addr's unlocked, unspent outputs.
func (e *Engine) GetUTXOs(addr string) []*utxo.Entry {
	return e.chain.GetUTXOs(addr)
}

// GetTransactionHistory delegates to the address index.
func (e *Engine) GetTransactionHistory(addr string, limit, offset int) ([]addressindex.Row, int, error) {
	return e.chain.GetTransactionHistory(addr, limit, offset)
}

// GetMempoolOverview returns the pool's health snapshot plus up to limit
// of its highest fee-rate pending transactions, satisfying its
// get_mempool_overview(limit).
func (e *Engine) GetMempoolOverview(limit int) (mempool.Overview, []*transaction.Transaction) {
	ov := e.mempool.Overview()
	if limit <= 0 {
		return ov, nil
	}
	sample := e.mempool.SelectForBlock(^uint64(0), ^uint64(0))
	if len(sample) > limit {
		sample = sample[:limit]
	}
	return ov, sample
}

// EstimateFee returns a fee estimate for a transaction of the given
// serialized size, derived from current mempool contention.
func (e *Engine) EstimateFee(sizeBytes uint64) uint64 {
	return e.chain.EstimateFee(sizeBytes)
}

// GetCirculatingSupply returns the genesis allocation plus every reward
// issued on the canonical chain so far.
func (e *Engine) GetCirculatingSupply() uint64 {
	return e.chain.CirculatingSupply()
}
