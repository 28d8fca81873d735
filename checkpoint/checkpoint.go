// Package checkpoint implements an encrypted UTXO snapshot manager:
// at configured heights the chain header tip, UTXO snapshot,
// and total supply are serialized and sealed at rest with an
// authenticated-encryption construction. Checkpoints bound reorg depth.
// Modeled on the
// snapshot persistence in blockdag/blockindex.go and utxodiff.go for the
// shape of a point-in-time UTXO snapshot, with encryption adopted from
// golang.org/x/crypto/chacha20poly1305 (XChaCha20-Poly1305), since
// nothing upstream has at-rest encryption to imitate.
package checkpoint

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"golang.org/x/crypto/chacha20poly1305"

	"github.com/xai-blockchain/xai-sub017/amount"
	"github.com/xai-blockchain/xai-sub017/consensuserr"
	"github.com/xai-blockchain/xai-sub017/crypto"
	"github.com/xai-blockchain/xai-sub017/logger"
	"github.com/xai-blockchain/xai-sub017/utxo"
	"github.com/xai-blockchain/xai-sub017/wire"
)

// UTXORecord is a single unspent output captured in a snapshot.
type UTXORecord struct {
	Address      string
	TxID         crypto.Hash
	Vout         uint32
	Amount       amount.Amount
	ScriptPubKey []byte
}

// Snapshot is a checkpoint payload: the chain tip, the total
// issued supply as of that tip, and the complete UTXO set.
type Snapshot struct {
	TipHash     crypto.Hash
	TipIndex    uint64
	TotalSupply uint64
	UTXOs       []UTXORecord
}

// Manager saves and loads checkpoint files under a directory, encrypting
// the UTXO snapshot payload at rest.
type Manager struct {
	dir string
	key [chacha20poly1305.KeySize]byte
}

// NewManager constructs a Manager rooted at dir, sealing checkpoints with
// key (the persistent key referenced by ).
func NewManager(dir string, key [chacha20poly1305.KeySize]byte) *Manager {
	return &Manager{dir: dir, key: key}
}

func (m *Manager) path(height uint64) string {
	return filepath.Join(m.dir, fmt.Sprintf("%d.chk", height))
}

// encode serializes a Snapshot canonically.
func encode(snap Snapshot) []byte {
	w := wire.NewWriter()
	w.WriteVarBytes(snap.TipHash.Bytes())
	w.WriteUint64(snap.TipIndex)
	w.WriteUint64(snap.TotalSupply)
	w.WriteUint32(uint32(len(snap.UTXOs)))
	for _, u := range snap.UTXOs {
		w.WriteVarString(u.Address)
		w.WriteVarBytes(u.TxID.Bytes())
		w.WriteUint32(u.Vout)
		w.WriteUint64(uint64(u.Amount))
		w.WriteVarBytes(u.ScriptPubKey)
	}
	return w.Bytes()
}

func decode(data []byte) (Snapshot, error) {
	r := wire.NewReader(data)
	tipHashBytes, err := r.ReadVarBytes()
	if err != nil {
		return Snapshot{}, errors.Wrap(err, "checkpoint: read tip hash")
	}
	var snap Snapshot
	copy(snap.TipHash[:], tipHashBytes)

	if snap.TipIndex, err = r.ReadUint64(); err != nil {
		return Snapshot{}, errors.Wrap(err, "checkpoint: read tip index")
	}
	if snap.TotalSupply, err = r.ReadUint64(); err != nil {
		return Snapshot{}, errors.Wrap(err, "checkpoint: read total supply")
	}
	count, err := r.ReadUint32()
	if err != nil {
		return Snapshot{}, errors.Wrap(err, "checkpoint: read utxo count")
	}

	snap.UTXOs = make([]UTXORecord, count)
	for i := range snap.UTXOs {
		addr, err := r.ReadVarString()
		if err != nil {
			return Snapshot{}, errors.Wrap(err, "checkpoint: read utxo address")
		}
		txidBytes, err := r.ReadVarBytes()
		if err != nil {
			return Snapshot{}, errors.Wrap(err, "checkpoint: read utxo txid")
		}
		vout, err := r.ReadUint32()
		if err != nil {
			return Snapshot{}, errors.Wrap(err, "checkpoint: read utxo vout")
		}
		amt, err := r.ReadUint64()
		if err != nil {
			return Snapshot{}, errors.Wrap(err, "checkpoint: read utxo amount")
		}
		script, err := r.ReadVarBytes()
		if err != nil {
			return Snapshot{}, errors.Wrap(err, "checkpoint: read utxo script")
		}
		var txid crypto.Hash
		copy(txid[:], txidBytes)
		snap.UTXOs[i] = UTXORecord{Address: addr, TxID: txid, Vout: vout, Amount: amount.Amount(amt), ScriptPubKey: script}
	}
	return snap, nil
}

// recordMagic marks an encrypted payload so Load can distinguish it from a
// legacy/foreign plaintext snapshot without attempting decryption first.
var recordMagic = [4]byte{'X', 'C', 'K', 1}

// Save encrypts and atomically persists a snapshot at the given height,
// using a write-to-tmp-then-rename durability rule.
func (m *Manager) Save(height uint64, snap Snapshot) error {
	aead, err := chacha20poly1305.NewX(m.key[:])
	if err != nil {
		return consensuserr.Newf(consensuserr.ErrStorageError, "checkpoint: init cipher: %v", err)
	}
	nonce, err := crypto.SecureRandomBytes(aead.NonceSize())
	if err != nil {
		return consensuserr.Newf(consensuserr.ErrStorageError, "checkpoint: generate nonce: %v", err)
	}
	plaintext := encode(snap)
	sealed := aead.Seal(nil, nonce, plaintext, nil)

	out := make([]byte, 0, len(recordMagic)+len(nonce)+len(sealed))
	out = append(out, recordMagic[:]...)
	out = append(out, nonce...)
	out = append(out, sealed...)

	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return consensuserr.Newf(consensuserr.ErrStorageError, "checkpoint: mkdir: %v", err)
	}
	tmp := m.path(height) + ".tmp"
	if err := os.WriteFile(tmp, out, 0o600); err != nil {
		return consensuserr.Newf(consensuserr.ErrStorageError, "checkpoint: write temp file: %v", err)
	}
	if err := os.Rename(tmp, m.path(height)); err != nil {
		return consensuserr.Newf(consensuserr.ErrStorageError, "checkpoint: rename into place: %v", err)
	}
	logger.CheckpointLog.Infof("saved checkpoint at height %d (%d utxos)", height, len(snap.UTXOs))
	return nil
}

// Load reads and decrypts the checkpoint at height. A payload lacking the
// encrypted-record magic is treated as a foreign plaintext snapshot:
// it is accepted but logged as an anomaly rather than
// rejected.
func (m *Manager) Load(height uint64) (Snapshot, error) {
	data, err := os.ReadFile(m.path(height))
	if err != nil {
		return Snapshot{}, consensuserr.Newf(consensuserr.ErrStorageError, "checkpoint: read %d: %v", height, err)
	}

	if len(data) >= len(recordMagic) && string(data[:len(recordMagic)]) == string(recordMagic[:]) {
		return m.decryptRecord(data[len(recordMagic):])
	}

	logger.CheckpointLog.Warnf("checkpoint %d is not in encrypted format; loading as plaintext anomaly", height)
	return decode(data)
}

func (m *Manager) decryptRecord(data []byte) (Snapshot, error) {
	aead, err := chacha20poly1305.NewX(m.key[:])
	if err != nil {
		return Snapshot{}, consensuserr.Newf(consensuserr.ErrStorageError, "checkpoint: init cipher: %v", err)
	}
	if len(data) < aead.NonceSize() {
		return Snapshot{}, consensuserr.New(consensuserr.ErrStorageError, "checkpoint: truncated record")
	}
	nonce, ciphertext := data[:aead.NonceSize()], data[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return Snapshot{}, consensuserr.Newf(consensuserr.ErrStorageError, "checkpoint: decrypt: %v", err)
	}
	return decode(plaintext)
}

// FromUTXOSet captures a Snapshot of every active entry in set.
func FromUTXOSet(tipHash crypto.Hash, tipIndex, totalSupply uint64, entries []*utxo.Entry) Snapshot {
	records := make([]UTXORecord, len(entries))
	for i, e := range entries {
		records[i] = UTXORecord{Address: e.Address, TxID: e.TxID, Vout: e.Vout, Amount: e.Amount, ScriptPubKey: e.ScriptPubKey}
	}
	return Snapshot{TipHash: tipHash, TipIndex: tipIndex, TotalSupply: totalSupply, UTXOs: records}
}
