// Package addressindex implements a durable address-transaction index:
// an ordered key-value store keyed by
// (address, block_index desc, tx_index asc), supporting O(log n) paginated
// lookups, rollback on reorg, and full rebuild from the chain. Built on
// goleveldb as the ordered KV backend (mirroring
// blockdag/dbaccess's LevelDB wrapper), generalized from its
// opaque byte-blob records to an explicit
// (txid, is_sender, amount, timestamp) row shape.
package addressindex

import (
	"encoding/binary"
	stderrors "errors"
	"sync"

	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/xai-blockchain/xai-sub017/amount"
	"github.com/xai-blockchain/xai-sub017/consensuserr"
	"github.com/xai-blockchain/xai-sub017/crypto"
	"github.com/xai-blockchain/xai-sub017/logger"
	"github.com/xai-blockchain/xai-sub017/transaction"
)

// Row is a single indexed appearance of a transaction for an address.
type Row struct {
	TxID      crypto.Hash
	IsSender  bool
	Amount    amount.Amount
	Timestamp int64
}

// Index is the durable address-transaction index. All public methods are
// concurrency-safe; the chain-state writer lock serializes
// mutation, but reads may run concurrently with goleveldb's own snapshot
// isolation.
type Index struct {
	mtx sync.Mutex // serializes multi-key writes so index+reverse+count stay consistent
	db  *leveldb.DB
}

const (
	prefixPrimary = 'P'
	prefixReverse = 'R'
	prefixCount   = 'C'
)

// Open opens (creating if absent) a LevelDB-backed index at dir.
func Open(dir string) (*Index, error) {
	db, err := leveldb.OpenFile(dir, nil)
	if err != nil {
		return nil, consensuserr.Newf(consensuserr.ErrStorageError, "addressindex: open %s: %v", dir, err)
	}
	return &Index{db: db}, nil
}

// Close releases the underlying database handle.
func (idx *Index) Close() error {
	return idx.db.Close()
}

func invertHeight(h uint64) uint64 { return ^h }

func primaryKey(addr string, blockIndex uint64, txIndex uint32) []byte {
	b := make([]byte, 1+len(addr)+8+4)
	b[0] = prefixPrimary
	copy(b[1:], addr)
	binary.BigEndian.PutUint64(b[1+len(addr):], invertHeight(blockIndex))
	binary.BigEndian.PutUint32(b[1+len(addr)+8:], txIndex)
	return b
}

func addrPrefix(addr string) []byte {
	b := make([]byte, 1+len(addr))
	b[0] = prefixPrimary
	copy(b[1:], addr)
	return b
}

func reverseKey(blockIndex uint64, txIndex uint32, addr string) []byte {
	b := make([]byte, 1+8+4+len(addr))
	b[0] = prefixReverse
	binary.BigEndian.PutUint64(b[1:], blockIndex)
	binary.BigEndian.PutUint32(b[9:], txIndex)
	copy(b[13:], addr)
	return b
}

func reverseHeightPrefix(blockIndex uint64) []byte {
	b := make([]byte, 1+8)
	b[0] = prefixReverse
	binary.BigEndian.PutUint64(b[1:], blockIndex)
	return b
}

func countKey(addr string) []byte {
	b := make([]byte, 1+len(addr))
	b[0] = prefixCount
	copy(b[1:], addr)
	return b
}

func encodeRow(r Row) []byte {
	b := make([]byte, crypto.HashSize+1+8+8)
	copy(b, r.TxID.Bytes())
	if r.IsSender {
		b[crypto.HashSize] = 1
	}
	binary.BigEndian.PutUint64(b[crypto.HashSize+1:], uint64(r.Amount))
	binary.BigEndian.PutUint64(b[crypto.HashSize+9:], uint64(r.Timestamp))
	return b
}

func decodeRow(b []byte) (Row, error) {
	if len(b) != crypto.HashSize+1+8+8 {
		return Row{}, errors.New("addressindex: corrupt row record")
	}
	var txid crypto.Hash
	copy(txid[:], b[:crypto.HashSize])
	return Row{
		TxID:      txid,
		IsSender:  b[crypto.HashSize] == 1,
		Amount:    amount.Amount(binary.BigEndian.Uint64(b[crypto.HashSize+1:])),
		Timestamp: int64(binary.BigEndian.Uint64(b[crypto.HashSize+9:])),
	}, nil
}

// IndexTransaction records tx's appearance in the chain at
// (blockIndex, txIndex). Coinbase transactions index only
// their recipient-side outputs (no sender row, since COINBASE is a
// sentinel, not a real address).
func (idx *Index) IndexTransaction(tx *transaction.Transaction, blockIndex uint64, txIndex uint32, timestamp int64) error {
	idx.mtx.Lock()
	defer idx.mtx.Unlock()

	batch := new(leveldb.Batch)
	txID := tx.TxID()

	if !tx.IsCoinbase() {
		if err := idx.appendLocked(batch, tx.Sender, blockIndex, txIndex, Row{TxID: txID, IsSender: true, Amount: tx.Amount, Timestamp: timestamp}); err != nil {
			return err
		}
	}
	seen := make(map[string]struct{})
	for _, out := range tx.Outputs {
		if _, dup := seen[out.Address]; dup {
			continue
		}
		seen[out.Address] = struct{}{}
		if err := idx.appendLocked(batch, out.Address, blockIndex, txIndex, Row{TxID: txID, IsSender: false, Amount: out.Amount, Timestamp: timestamp}); err != nil {
			return err
		}
	}

	if err := idx.db.Write(batch, nil); err != nil {
		return consensuserr.Newf(consensuserr.ErrStorageError, "addressindex: write batch: %v", err)
	}
	return nil
}

func (idx *Index) appendLocked(batch *leveldb.Batch, addr string, blockIndex uint64, txIndex uint32, row Row) error {
	batch.Put(primaryKey(addr, blockIndex, txIndex), encodeRow(row))
	batch.Put(reverseKey(blockIndex, txIndex, addr), []byte(addr))

	count, err := idx.countLocked(addr)
	if err != nil {
		return err
	}
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, count+1)
	batch.Put(countKey(addr), b)
	return nil
}

func (idx *Index) countLocked(addr string) (uint64, error) {
	v, err := idx.db.Get(countKey(addr), nil)
	if stderrors.Is(err, leveldb.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, consensuserr.Newf(consensuserr.ErrStorageError, "addressindex: read count: %v", err)
	}
	return binary.BigEndian.Uint64(v), nil
}

// RollbackToBlock deletes every indexed entry whose block_index exceeds
// height. It also decrements each affected
// address's cached row count.
func (idx *Index) RollbackToBlock(height uint64) error {
	idx.mtx.Lock()
	defer idx.mtx.Unlock()

	start := make([]byte, 1+8)
	start[0] = prefixReverse
	binary.BigEndian.PutUint64(start[1:], height+1)
	end := []byte{prefixReverse + 1}

	iter := idx.db.NewIterator(&util.Range{Start: start, Limit: end}, nil)
	defer iter.Release()

	batch := new(leveldb.Batch)
	decrement := make(map[string]uint64)
	removed := 0
	for iter.Next() {
		key := append([]byte(nil), iter.Key()...)
		addr := string(iter.Value())
		if len(key) < 13 {
			continue
		}
		blockIndex := binary.BigEndian.Uint64(key[1:9])
		txIndex := binary.BigEndian.Uint32(key[9:13])
		batch.Delete(key)
		batch.Delete(primaryKey(addr, blockIndex, txIndex))
		decrement[addr]++
		removed++
	}
	if err := iter.Error(); err != nil {
		return consensuserr.Newf(consensuserr.ErrStorageError, "addressindex: rollback scan: %v", err)
	}

	for addr, n := range decrement {
		count, err := idx.countLocked(addr)
		if err != nil {
			return err
		}
		if n > count {
			count = 0
		} else {
			count -= n
		}
		b := make([]byte, 8)
		binary.BigEndian.PutUint64(b, count)
		batch.Put(countKey(addr), b)
	}

	if err := idx.db.Write(batch, nil); err != nil {
		return consensuserr.Newf(consensuserr.ErrStorageError, "addressindex: rollback write: %v", err)
	}
	logger.AddressIndexLog.Infof("rolled back %d indexed entries above height %d", removed, height)
	return nil
}

// GetTransactions returns up to limit rows for addr starting at offset,
// ordered by (block_index desc, tx_index asc), along with the address's
// total indexed row count. Validation: limit must be > 0,
// offset must be >= 0.
func (idx *Index) GetTransactions(addr string, limit, offset int) ([]Row, int, error) {
	if limit <= 0 {
		return nil, 0, consensuserr.New(consensuserr.ErrInvalidStructure, "addressindex: limit must be positive")
	}
	if offset < 0 {
		return nil, 0, consensuserr.New(consensuserr.ErrInvalidStructure, "addressindex: offset must not be negative")
	}

	total, err := idx.countLocked(addr)
	if err != nil {
		return nil, 0, err
	}

	prefix := addrPrefix(addr)
	iter := idx.db.NewIterator(util.BytesPrefix(prefix), nil)
	defer iter.Release()

	rows := make([]Row, 0, limit)
	skipped := 0
	for iter.Next() {
		if skipped < offset {
			skipped++
			continue
		}
		if len(rows) >= limit {
			break
		}
		row, err := decodeRow(iter.Value())
		if err != nil {
			return nil, 0, err
		}
		rows = append(rows, row)
	}
	if err := iter.Error(); err != nil {
		return nil, 0, consensuserr.Newf(consensuserr.ErrStorageError, "addressindex: query scan: %v", err)
	}
	return rows, int(total), nil
}

// BlockSource is implemented by anything that can walk its full transaction
// history in chain order, satisfied structurally by package chain's Chain
// type without either package importing the other.
type BlockSource interface {
	ForEachTransaction(func(blockIndex uint64, txIndex int, tx *transaction.Transaction, timestamp int64) error) error
}

// RebuildFromChain drops and repopulates the entire index from source.
// Used for disaster recovery when the index
// is suspected corrupt relative to the chain it mirrors.
func (idx *Index) RebuildFromChain(source BlockSource) error {
	if err := idx.wipe(); err != nil {
		return err
	}
	return source.ForEachTransaction(func(blockIndex uint64, txIndex int, tx *transaction.Transaction, timestamp int64) error {
		return idx.IndexTransaction(tx, blockIndex, uint32(txIndex), timestamp)
	})
}

func (idx *Index) wipe() error {
	idx.mtx.Lock()
	defer idx.mtx.Unlock()

	iter := idx.db.NewIterator(nil, nil)
	defer iter.Release()
	batch := new(leveldb.Batch)
	for iter.Next() {
		batch.Delete(append([]byte(nil), iter.Key()...))
	}
	if err := iter.Error(); err != nil {
		return consensuserr.Newf(consensuserr.ErrStorageError, "addressindex: wipe scan: %v", err)
	}
	if err := idx.db.Write(batch, nil); err != nil {
		return consensuserr.Newf(consensuserr.ErrStorageError, "addressindex: wipe write: %v", err)
	}
	return nil
}
