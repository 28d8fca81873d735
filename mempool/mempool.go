// Package mempool implements a fee-rate-ordered transaction pool:
// structural/signature/UTXO-availability admission, nonce and
// UTXO conflict detection, replace-by-fee, and orphan buffering. Modeled
// on domain/mempool/mempool.go's TxPool (Config/Policy split,
// orphan TTL constants, depends-on-unconfirmed tracking).
package mempool

import (
	"sort"
	"sync"
	"time"

	"github.com/xai-blockchain/xai-sub017/amount"
	"github.com/xai-blockchain/xai-sub017/consensuserr"
	"github.com/xai-blockchain/xai-sub017/crypto"
	"github.com/xai-blockchain/xai-sub017/logger"
	"github.com/xai-blockchain/xai-sub017/transaction"
	"github.com/xai-blockchain/xai-sub017/utxo"
)

// Policy houses the configuration parameters controlling mempool admission
// and eviction, modeled on mempool.Policy.
type Policy struct {
	// MaxTransactions is N_max, the pool's nominal transaction capacity.
	// Overview measures pressure against it; Add neither rejects nor
	// evicts when it is reached.
	MaxTransactions int
	// MaxBytes is B_max, the pool's nominal size capacity in bytes.
	// Overview measures pressure against it; Add neither rejects nor
	// evicts when it is reached.
	MaxBytes uint64
	// MaxAge is A_max. Neither Pool nor Overview reads it.
	MaxAge time.Duration
	// MinRelayFeeRate is the minimum fee (in base units) per byte a
	// transaction must pay to be relayed/pooled at all.
	MinRelayFeeRate float64
	// RBFFeeRateMultiplier is the minimum ratio a replacement's fee rate
	// must reach relative to the replaced transaction's
	// ("new_fee_rate >= old_fee_rate * 1.1").
	RBFFeeRateMultiplier float64
	// OrphanTTL is how long an orphan transaction may sit in the orphan
	// buffer before expiring (default: 24 hours).
	OrphanTTL time.Duration
}

// DefaultPolicy returns sensible defaults modeled on
// domain/mempool's orphanTTL/orphanExpireScanInterval constants.
func DefaultPolicy() Policy {
	return Policy{
		MaxTransactions:       50_000,
		MaxBytes:               300 * 1024 * 1024,
		MaxAge:                 72 * time.Hour,
		MinRelayFeeRate:        1.0,
		RBFFeeRateMultiplier:   1.1,
		OrphanTTL:              24 * time.Hour,
	}
}

// Config wires the mempool to the rest of the chain state, in the style of
// mempool.Config's function-field callbacks.
type Config struct {
	Policy Policy

	// UTXOSet provides existence/lock checks for transaction inputs.
	UTXOSet *utxo.Set

	// ExpectedNonce returns the next nonce the given sender is expected
	// to use, for the nonce-monotonicity admission check.
	ExpectedNonce func(sender string) uint64

	// EstimateSigOps estimates a transaction's signature-operation cost
	// for select_for_block's budget_sigops accounting,
	// modeled on CountSigOps.
	EstimateSigOps func(tx *transaction.Transaction) uint64
}

// Entry is a pooled mempool entry: a validated transaction plus arrival
// time, fee-rate, and the set of input UTXO keys it locks.
type Entry struct {
	Tx          *transaction.Transaction
	TxID        crypto.Hash
	ArrivalTime time.Time
	SizeBytes   uint64
	Fee         amount.Amount
	Inputs      []utxo.Outpoint
	RBFEnabled  bool
}

// FeeRate returns fee-per-byte. This value drives block-template ordering
// and mempool admission policy (the minimum relay rate and RBF), not
// consensus validity, so it is the one place a float is permitted: it never
// decides whether a block is valid.
func (e *Entry) FeeRate() float64 {
	if e.SizeBytes == 0 {
		return 0
	}
	return float64(e.Fee) / float64(e.SizeBytes)
}

// Pool is the mempool: transactions ordered by (fee-rate desc, arrival-time
// asc), with UTXO-conflict detection and RBF support.
type Pool struct {
	mtx sync.RWMutex
	cfg Config

	byTxID map[crypto.Hash]*Entry
	// outpointOwner tracks which pooled tx currently locks each outpoint,
	// mirroring the UTXO set's own lock table for fast conflict lookups.
	outpointOwner map[utxo.Outpoint]crypto.Hash

	orphans *orphanPool
}

// New constructs an empty Pool.
func New(cfg Config) *Pool {
	return &Pool{
		cfg:           cfg,
		byTxID:        make(map[crypto.Hash]*Entry),
		outpointOwner: make(map[utxo.Outpoint]crypto.Hash),
		orphans:       newOrphanPool(cfg.Policy.OrphanTTL),
	}
}

// estimateSize approximates a transaction's serialized size; callers may
// override via Config.EstimateSigOps for sigops, but size estimation is
// intrinsic to the transaction itself.
func estimateSize(tx *transaction.Transaction) uint64 {
	return uint64(len(tx.SigningDigest()) + len(tx.Signature) + 64*len(tx.Inputs))
}

// Add validates tx against the UTXO set and admits it to the
// pool, applying RBF policy on conflict. On acceptance, the
// transaction's inputs are locked with its txid.
func (p *Pool) Add(tx *transaction.Transaction, rbfEnabled bool) (*Entry, error) {
	if err := transaction.ValidateStructure(tx); err != nil {
		return nil, err
	}

	txID := tx.TxID()

	p.mtx.Lock()
	defer p.mtx.Unlock()

	if _, exists := p.byTxID[txID]; exists {
		return nil, consensuserr.New(consensuserr.ErrInvalidStructure, "mempool: transaction already pooled")
	}

	if !tx.IsCoinbase() {
		if err := p.checkNonceLocked(tx); err != nil {
			return nil, err
		}
	}

	fee, ops, err := p.checkInputsLocked(tx)
	if err != nil {
		return nil, err
	}

	conflicting := p.conflictingOwnersLocked(ops, txID)
	entry := &Entry{
		Tx:          tx,
		TxID:        txID,
		ArrivalTime: time.Now(),
		SizeBytes:   estimateSize(tx),
		Fee:         fee,
		Inputs:      ops,
		RBFEnabled:  rbfEnabled,
	}

	if !tx.IsCoinbase() && entry.FeeRate() < p.cfg.Policy.MinRelayFeeRate {
		return nil, consensuserr.Newf(consensuserr.ErrInsufficientFunds,
			"mempool: fee rate %.4f below minimum relay fee rate %.4f", entry.FeeRate(), p.cfg.Policy.MinRelayFeeRate)
	}

	if len(conflicting) > 0 {
		if err := p.applyRBFLocked(entry, conflicting); err != nil {
			return nil, err
		}
	}

	if err := p.cfg.UTXOSet.Lock(ops, txID); err != nil {
		return nil, consensuserr.New(consensuserr.ErrDoubleSpend, "mempool: inputs already locked")
	}
	for _, op := range ops {
		p.outpointOwner[op] = txID
	}
	p.byTxID[txID] = entry
	logger.MempoolLog.Debugf("admitted tx %x (fee=%d, size=%d)", txID, fee, entry.SizeBytes)
	return entry, nil
}

func (p *Pool) checkNonceLocked(tx *transaction.Transaction) error {
	if p.cfg.ExpectedNonce == nil {
		return nil
	}
	expected := p.cfg.ExpectedNonce(tx.Sender)
	if tx.Nonce < expected {
		return consensuserr.Newf(consensuserr.ErrNonceViolation, "mempool: nonce %d below expected %d for sender %s", tx.Nonce, expected, tx.Sender)
	}
	return nil
}

func (p *Pool) checkInputsLocked(tx *transaction.Transaction) (amount.Amount, []utxo.Outpoint, error) {
	if tx.IsCoinbase() {
		return 0, nil, nil
	}
	ops := make([]utxo.Outpoint, len(tx.Inputs))
	var totalIn amount.Amount
	for i, in := range tx.Inputs {
		op := utxo.Outpoint{TxID: in.TxID, Vout: in.Vout}
		entry, ok := p.cfg.UTXOSet.Get(op)
		if !ok {
			return 0, nil, consensuserr.Newf(consensuserr.ErrUTXONotFound, "mempool: input %x:%d not found", in.TxID, in.Vout)
		}
		if entry.Address != tx.Sender {
			return 0, nil, consensuserr.New(consensuserr.ErrInvalidStructure, "mempool: input does not belong to sender")
		}
		var err error
		totalIn, err = totalIn.Add(entry.Amount)
		if err != nil {
			return 0, nil, consensuserr.New(consensuserr.ErrInvalidStructure, "mempool: input amount overflow")
		}
		ops[i] = op
	}
	totalOut, err := tx.OutputSum()
	if err != nil {
		return 0, nil, consensuserr.New(consensuserr.ErrInvalidStructure, "mempool: output amount overflow")
	}
	required, err := totalOut.Add(tx.Fee)
	if err != nil {
		return 0, nil, consensuserr.New(consensuserr.ErrInvalidStructure, "mempool: output+fee overflow")
	}
	if totalIn.Cmp(required) < 0 {
		return 0, nil, consensuserr.Newf(consensuserr.ErrInsufficientFunds, "mempool: inputs %d less than outputs+fee %d", totalIn, required)
	}
	return tx.Fee, ops, nil
}

func (p *Pool) conflictingOwnersLocked(ops []utxo.Outpoint, selfTxID crypto.Hash) map[crypto.Hash]struct{} {
	conflicts := make(map[crypto.Hash]struct{})
	for _, op := range ops {
		if owner, ok := p.outpointOwner[op]; ok && owner != selfTxID {
			conflicts[owner] = struct{}{}
		}
	}
	return conflicts
}

// Remove unlocks inputs via the UTXO manager and evicts the entry.
func (p *Pool) Remove(txID crypto.Hash) {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	p.removeLocked(txID)
}

func (p *Pool) removeLocked(txID crypto.Hash) {
	entry, ok := p.byTxID[txID]
	if !ok {
		return
	}
	p.cfg.UTXOSet.ReleaseForTx(txID)
	for _, op := range entry.Inputs {
		if owner, ok := p.outpointOwner[op]; ok && owner == txID {
			delete(p.outpointOwner, op)
		}
	}
	delete(p.byTxID, txID)
}

// Get returns the pooled entry for txID, if present.
func (p *Pool) Get(txID crypto.Hash) (*Entry, bool) {
	p.mtx.RLock()
	defer p.mtx.RUnlock()
	e, ok := p.byTxID[txID]
	return e, ok
}

// Count returns the number of pooled transactions.
func (p *Pool) Count() int {
	p.mtx.RLock()
	defer p.mtx.RUnlock()
	return len(p.byTxID)
}

// SelectForBlock greedily packs transactions by descending fee-rate within
// the given byte and sigops budgets. CPFP
// (child-pays-for-parent) chain aggregation is explicitly left as an
// extension point; this implementation packs
// strictly by each transaction's own fee rate.
func (p *Pool) SelectForBlock(budgetBytes, budgetSigops uint64) []*transaction.Transaction {
	p.mtx.RLock()
	entries := make([]*Entry, 0, len(p.byTxID))
	for _, e := range p.byTxID {
		entries = append(entries, e)
	}
	p.mtx.RUnlock()

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].FeeRate() != entries[j].FeeRate() {
			return entries[i].FeeRate() > entries[j].FeeRate()
		}
		return entries[i].ArrivalTime.Before(entries[j].ArrivalTime)
	})

	var usedBytes, usedSigops uint64
	selected := make([]*transaction.Transaction, 0, len(entries))
	for _, e := range entries {
		sigops := uint64(0)
		if p.cfg.EstimateSigOps != nil {
			sigops = p.cfg.EstimateSigOps(e.Tx)
		}
		if usedBytes+e.SizeBytes > budgetBytes {
			continue
		}
		if budgetSigops > 0 && usedSigops+sigops > budgetSigops {
			continue
		}
		usedBytes += e.SizeBytes
		usedSigops += sigops
		selected = append(selected, e.Tx)
	}
	return selected
}

// AddOrAddOrphan attempts Add; if it fails solely because one or more
// inputs are not yet in the UTXO set, tx is buffered in the orphan pool
// instead of being rejected outright. Any other validation
// failure is returned unchanged.
func (p *Pool) AddOrAddOrphan(tx *transaction.Transaction, rbfEnabled bool) (*Entry, error) {
	entry, err := p.Add(tx, rbfEnabled)
	if err == nil {
		return entry, nil
	}
	if !consensuserr.Is(err, consensuserr.ErrUTXONotFound) {
		return nil, err
	}
	missing := make([]crypto.Hash, len(tx.Inputs))
	for i, in := range tx.Inputs {
		missing[i] = in.TxID
	}
	p.orphans.Add(tx, missing)
	return nil, consensuserr.New(consensuserr.ErrOrphanPending, "mempool: buffered as orphan pending inputs")
}

// ResolveOrphans re-attempts admission for every orphan that was waiting on
// resolvedTxID (typically because that transaction just landed in a block
// or was itself admitted), returning the entries that became admissible.
func (p *Pool) ResolveOrphans(resolvedTxID crypto.Hash, rbfEnabled bool) []*Entry {
	candidates := p.orphans.ResolvedBy(resolvedTxID)
	admitted := make([]*Entry, 0, len(candidates))
	for _, tx := range candidates {
		entry, err := p.AddOrAddOrphan(tx, rbfEnabled)
		if err == nil {
			admitted = append(admitted, entry)
		}
	}
	return admitted
}

// ExpireOrphans evicts orphans older than the configured TTL as of now.
func (p *Pool) ExpireOrphans(now time.Time) int {
	return p.orphans.ExpireOlderThan(now)
}

// OrphanCount returns the number of buffered orphan transactions.
func (p *Pool) OrphanCount() int {
	return p.orphans.Count()
}

// RemoveIncluded evicts every transaction in txIDs and drops the pool's own
// outpoint-ownership records for their inputs. It does not touch the UTXO
// set's locks: utxo.Set.ConsumeAndFinalize releases those when the block
// connects.
func (p *Pool) RemoveIncluded(txIDs []crypto.Hash) {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	for _, id := range txIDs {
		if entry, ok := p.byTxID[id]; ok {
			for _, op := range entry.Inputs {
				delete(p.outpointOwner, op)
			}
		}
		delete(p.byTxID, id)
	}
}
