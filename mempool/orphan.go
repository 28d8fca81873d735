package mempool

import (
	"sync"
	"time"

	"github.com/xai-blockchain/xai-sub017/crypto"
	"github.com/xai-blockchain/xai-sub017/logger"
	"github.com/xai-blockchain/xai-sub017/transaction"
)

// orphanTx is a transaction buffered because one or more of its inputs is
// not (yet) present in the UTXO set.
type orphanTx struct {
	tx         *transaction.Transaction
	receivedAt time.Time
	missing    map[uint32]struct{} // input indices not yet resolvable
}

// orphanPool buffers orphan transactions keyed by txid and indexes them by
// the input txids they're waiting on, so that a newly arrived UTXO can
// trigger re-evaluation. Modeled on the orphan-tx handling in
// mempool.go (orphans map + orphansByPrev index + TTL-based expiry scan).
type orphanPool struct {
	mtx sync.Mutex
	ttl time.Duration

	byTxID   map[crypto.Hash]*orphanTx
	byInput  map[crypto.Hash]map[crypto.Hash]struct{} // missing input txid -> waiting orphan txids
}

func newOrphanPool(ttl time.Duration) *orphanPool {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &orphanPool{
		ttl:     ttl,
		byTxID:  make(map[crypto.Hash]*orphanTx),
		byInput: make(map[crypto.Hash]map[crypto.Hash]struct{}),
	}
}

// Add buffers tx as an orphan, indexed by the input txids it's missing.
func (o *orphanPool) Add(tx *transaction.Transaction, missingInputTxIDs []crypto.Hash) {
	o.mtx.Lock()
	defer o.mtx.Unlock()

	txID := tx.TxID()
	missing := make(map[uint32]struct{}, len(tx.Inputs))
	for i := range tx.Inputs {
		missing[uint32(i)] = struct{}{}
	}
	o.byTxID[txID] = &orphanTx{tx: tx, receivedAt: time.Now(), missing: missing}
	for _, prevTxID := range missingInputTxIDs {
		if o.byInput[prevTxID] == nil {
			o.byInput[prevTxID] = make(map[crypto.Hash]struct{})
		}
		o.byInput[prevTxID][txID] = struct{}{}
	}
	logger.MempoolLog.Debugf("buffered orphan tx %x (%d missing inputs)", txID, len(missingInputTxIDs))
}

// ResolvedBy returns (and removes from the index) every orphan that was
// waiting on resolvedTxID, so the caller can retry admitting them.
func (o *orphanPool) ResolvedBy(resolvedTxID crypto.Hash) []*transaction.Transaction {
	o.mtx.Lock()
	defer o.mtx.Unlock()

	waiters, ok := o.byInput[resolvedTxID]
	if !ok {
		return nil
	}
	delete(o.byInput, resolvedTxID)

	out := make([]*transaction.Transaction, 0, len(waiters))
	for txID := range waiters {
		if entry, ok := o.byTxID[txID]; ok {
			out = append(out, entry.tx)
			delete(o.byTxID, txID)
		}
	}
	return out
}

// ExpireOlderThan removes every orphan whose TTL has elapsed as of now,
// returning how many were evicted. Modeled on the periodic
// orphan-expiry scan; it runs only when Pool.ExpireOrphans is called, and
// nothing in this module calls that on a schedule.
func (o *orphanPool) ExpireOlderThan(now time.Time) int {
	o.mtx.Lock()
	defer o.mtx.Unlock()

	evicted := 0
	for txID, entry := range o.byTxID {
		if now.Sub(entry.receivedAt) >= o.ttl {
			delete(o.byTxID, txID)
			evicted++
		}
	}
	for prevTxID, waiters := range o.byInput {
		for txID := range waiters {
			if _, exists := o.byTxID[txID]; !exists {
				delete(waiters, txID)
			}
		}
		if len(waiters) == 0 {
			delete(o.byInput, prevTxID)
		}
	}
	if evicted > 0 {
		logger.MempoolLog.Infof("expired %d orphan transaction(s)", evicted)
	}
	return evicted
}

// Count returns the number of buffered orphans.
func (o *orphanPool) Count() int {
	o.mtx.Lock()
	defer o.mtx.Unlock()
	return len(o.byTxID)
}
