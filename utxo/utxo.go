// Package utxo implements the UTXO manager: an address-keyed
// and outpoint-keyed unspent-output set with transaction-scoped locking for
// mempool safety, serialized by a single reader-writer guard. Modeled on
// blockdag/utxoset.go's UTXOEntry layout, generalized from a
// single global set to an explicit lock/release lifecycle
// in place of timeout-based expiry.
package utxo

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/xai-blockchain/xai-sub017/amount"
	"github.com/xai-blockchain/xai-sub017/crypto"
	"github.com/xai-blockchain/xai-sub017/logger"
)

// Outpoint uniquely identifies a UTXO: the pair (txid, vout).
type Outpoint struct {
	TxID crypto.Hash
	Vout uint32
}

// Entry is a single unspent transaction output.
type Entry struct {
	Address      string
	TxID         crypto.Hash
	Vout         uint32
	Amount       amount.Amount
	ScriptPubKey []byte
	Spent        bool
}

// Outpoint returns the (txid, vout) pair identifying this entry.
func (e *Entry) Outpoint() Outpoint {
	return Outpoint{TxID: e.TxID, Vout: e.Vout}
}

// Set is the UTXO manager: the exclusive owner of the unspent-output set
// and its transaction-scoped locks. All access is serialized
// through mtx; lock/unlock/add/consume are writer operations, get_utxos is
// a reader operation.
type Set struct {
	mtx sync.RWMutex

	byAddress    map[string][]*Entry
	byOutpoint   map[Outpoint]*Entry
	pendingLocks map[Outpoint]crypto.Hash            // outpoint -> locking tx id
	locksByTx    map[crypto.Hash]map[Outpoint]struct{} // tx id -> outpoints it locks
}

// New returns an empty UTXO set.
func New() *Set {
	return &Set{
		byAddress:    make(map[string][]*Entry),
		byOutpoint:   make(map[Outpoint]*Entry),
		pendingLocks: make(map[Outpoint]crypto.Hash),
		locksByTx:    make(map[crypto.Hash]map[Outpoint]struct{}),
	}
}

// ErrDuplicateOutpoint is a logic error: the caller attempted to add a UTXO
// at an outpoint that already exists. This can only happen if the caller
// violates the invariant that txids are unique, so it is a programmer
// error rather than a consensus rejection.
var ErrDuplicateOutpoint = errors.New("utxo: duplicate outpoint")

// AddUTXO inserts a new unspent output. A duplicate outpoint
// is a logic error, not a validation rejection: callers must never attempt
// to add an outpoint twice.
func (s *Set) AddUTXO(addr string, txid crypto.Hash, vout uint32, amt amount.Amount, scriptPubKey []byte) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	op := Outpoint{TxID: txid, Vout: vout}
	if _, exists := s.byOutpoint[op]; exists {
		return ErrDuplicateOutpoint
	}
	entry := &Entry{
		Address:      addr,
		TxID:         txid,
		Vout:         vout,
		Amount:       amt,
		ScriptPubKey: scriptPubKey,
	}
	s.byOutpoint[op] = entry
	s.byAddress[addr] = append(s.byAddress[addr], entry)
	return nil
}

// Consume marks the outpoint spent and removes it from the active index,
// returning the removed entry so callers can restore it on reorg undo.
func (s *Set) Consume(op Outpoint) (*Entry, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return s.consumeLocked(op)
}

func (s *Set) consumeLocked(op Outpoint) (*Entry, error) {
	entry, ok := s.byOutpoint[op]
	if !ok || entry.Spent {
		return nil, errors.Errorf("utxo: outpoint %x:%d not found or already spent", op.TxID, op.Vout)
	}
	entry.Spent = true
	delete(s.byOutpoint, op)
	s.removeFromAddressIndexLocked(entry)
	return entry, nil
}

func (s *Set) removeFromAddressIndexLocked(entry *Entry) {
	list := s.byAddress[entry.Address]
	for i, e := range list {
		if e == entry {
			s.byAddress[entry.Address] = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(s.byAddress[entry.Address]) == 0 {
		delete(s.byAddress, entry.Address)
	}
}

// Restore re-adds a previously consumed entry, used only by reorg undo to
// reverse a Consume. It bypasses the duplicate-outpoint
// check since the entry is, by construction, the exact one just removed.
func (s *Set) Restore(entry *Entry) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	entry.Spent = false
	s.byOutpoint[entry.Outpoint()] = entry
	s.byAddress[entry.Address] = append(s.byAddress[entry.Address], entry)
}

// GetUTXOs returns the unspent outputs for addr. When excludeLocked is
// true, outpoints currently locked by a pending mempool transaction are
// omitted, satisfying its invariant that a locked outpoint is never
// returned from get_utxos(_, exclude_locked=true).
func (s *Set) GetUTXOs(addr string, excludeLocked bool) []*Entry {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	src := s.byAddress[addr]
	out := make([]*Entry, 0, len(src))
	for _, e := range src {
		if excludeLocked {
			if _, locked := s.pendingLocks[e.Outpoint()]; locked {
				continue
			}
		}
		out = append(out, e)
	}
	return out
}

// Get looks up a single UTXO by outpoint, regardless of lock state.
func (s *Set) Get(op Outpoint) (*Entry, bool) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	e, ok := s.byOutpoint[op]
	return e, ok
}

// Balance sums the unlocked, unspent outputs for addr.
func (s *Set) Balance(addr string) (amount.Amount, error) {
	entries := s.GetUTXOs(addr, true)
	amounts := make([]amount.Amount, len(entries))
	for i, e := range entries {
		amounts[i] = e.Amount
	}
	return amount.Sum(amounts)
}

// ErrAlreadyLocked is returned by Lock when any requested outpoint is
// already bound to a different transaction.
var ErrAlreadyLocked = errors.New("utxo: outpoint already locked by another transaction")

// Lock atomically binds every outpoint in ops to txID. If any outpoint is
// already locked by a different transaction, no lock is taken and
// ErrAlreadyLocked is returned. Locks never expire by timeout
//: they are released only via ReleaseForTx.
func (s *Set) Lock(ops []Outpoint, txID crypto.Hash) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	for _, op := range ops {
		if existing, locked := s.pendingLocks[op]; locked && existing != txID {
			return ErrAlreadyLocked
		}
	}
	if s.locksByTx[txID] == nil {
		s.locksByTx[txID] = make(map[Outpoint]struct{})
	}
	for _, op := range ops {
		s.pendingLocks[op] = txID
		s.locksByTx[txID][op] = struct{}{}
	}
	logger.UTXOLog.Debugf("locked %d outpoint(s) for tx %x", len(ops), txID)
	return nil
}

// LockOwner returns the transaction id currently locking op, if any.
func (s *Set) LockOwner(op Outpoint) (crypto.Hash, bool) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	txID, ok := s.pendingLocks[op]
	return txID, ok
}

// ReleaseForTx unlocks every outpoint bound to txID. Called when the
// transaction is rejected, replaced, or finalized in a block (in which
// case the outpoints are first consumed, then released).
func (s *Set) ReleaseForTx(txID crypto.Hash) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.releaseForTxLocked(txID)
}

func (s *Set) releaseForTxLocked(txID crypto.Hash) {
	ops, ok := s.locksByTx[txID]
	if !ok {
		return
	}
	for op := range ops {
		if owner, locked := s.pendingLocks[op]; locked && owner == txID {
			delete(s.pendingLocks, op)
		}
	}
	delete(s.locksByTx, txID)
	logger.UTXOLog.Debugf("released locks for tx %x", txID)
}

// ConsumeAndFinalize releases txID's locks and consumes the given
// outpoints in one writer-locked step, used when a transaction is included
// in an accepted block.
func (s *Set) ConsumeAndFinalize(txID crypto.Hash, ops []Outpoint) ([]*Entry, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	consumed := make([]*Entry, 0, len(ops))
	for _, op := range ops {
		entry, err := s.consumeLocked(op)
		if err != nil {
			return nil, err
		}
		consumed = append(consumed, entry)
	}
	s.releaseForTxLocked(txID)
	return consumed, nil
}

// Clear removes all UTXOs and all locks, resetting the set to empty.
func (s *Set) Clear() {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.byAddress = make(map[string][]*Entry)
	s.byOutpoint = make(map[Outpoint]*Entry)
	s.pendingLocks = make(map[Outpoint]crypto.Hash)
	s.locksByTx = make(map[crypto.Hash]map[Outpoint]struct{})
}

// Len returns the number of active (unspent) entries, for diagnostics and
// tests.
func (s *Set) Len() int {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	return len(s.byOutpoint)
}

// All returns every active (unspent) entry in the set, for checkpoint
// snapshotting.
func (s *Set) All() []*Entry {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	out := make([]*Entry, 0, len(s.byOutpoint))
	for _, e := range s.byOutpoint {
		out = append(out, e)
	}
	return out
}
