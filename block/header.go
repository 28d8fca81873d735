// Package block implements the block/header model and proof-of-work target
// arithmetic, built on the numeric (not
// string-prefix) PoW comparison in blockdag/validate.go's checkProofOfWork,
// adapted from compact-bits difficulty encoding to a
// plain-integer Difficulty field.
package block

import (
	"github.com/pkg/errors"

	"github.com/xai-blockchain/xai-sub017/crypto"
	"github.com/xai-blockchain/xai-sub017/merkle"
	"github.com/xai-blockchain/xai-sub017/transaction"
	"github.com/xai-blockchain/xai-sub017/wire"
)

// Header is a block header: everything hashed for proof-of-work and linkage.
type Header struct {
	Index        uint64
	PreviousHash crypto.Hash
	MerkleRoot   crypto.Hash
	Timestamp    int64
	Difficulty   uint64
	Nonce        uint64
	Version      int32
}

// canonicalBytes serializes the header deterministically for hashing.
func (h *Header) canonicalBytes() []byte {
	w := wire.NewWriter()
	w.WriteInt64(int64(h.Version))
	w.WriteUint64(h.Index)
	w.WriteVarBytes(h.PreviousHash.Bytes())
	w.WriteVarBytes(h.MerkleRoot.Bytes())
	w.WriteInt64(h.Timestamp)
	w.WriteUint64(h.Difficulty)
	w.WriteUint64(h.Nonce)
	return w.Bytes()
}

// Hash returns SHA-256 of the canonical header serialization.
func (h *Header) Hash() crypto.Hash {
	return crypto.Sum256(h.canonicalBytes())
}

// Block is a header plus an ordered transaction list
// whose first entry is the coinbase.
type Block struct {
	Header       Header
	Transactions []*transaction.Transaction
}

// ComputeMerkleRoot recomputes the merkle root over this block's
// transaction ids, for comparison against Header.MerkleRoot.
func (b *Block) ComputeMerkleRoot() crypto.Hash {
	leaves := make([]crypto.Hash, len(b.Transactions))
	for i, tx := range b.Transactions {
		leaves[i] = tx.TxID()
	}
	return merkle.Root(leaves)
}

// Coinbase returns the block's coinbase transaction (transactions[0]).
func (b *Block) Coinbase() *transaction.Transaction {
	if len(b.Transactions) == 0 {
		return nil
	}
	return b.Transactions[0]
}

// Encode serializes the full block (header plus every transaction, in
// full, including signatures) for on-disk storage under the
// "blocks/<index>.bin" layout.
func (b *Block) Encode() []byte {
	w := wire.NewWriter()
	w.WriteInt64(int64(b.Header.Version))
	w.WriteUint64(b.Header.Index)
	w.WriteVarBytes(b.Header.PreviousHash.Bytes())
	w.WriteVarBytes(b.Header.MerkleRoot.Bytes())
	w.WriteInt64(b.Header.Timestamp)
	w.WriteUint64(b.Header.Difficulty)
	w.WriteUint64(b.Header.Nonce)

	w.WriteUint32(uint32(len(b.Transactions)))
	for _, tx := range b.Transactions {
		w.WriteVarBytes(tx.Encode())
	}
	return w.Bytes()
}

// Decode reverses Encode.
func Decode(data []byte) (*Block, error) {
	r := wire.NewReader(data)
	version, err := r.ReadInt64()
	if err != nil {
		return nil, errors.Wrap(err, "block: decode version")
	}
	index, err := r.ReadUint64()
	if err != nil {
		return nil, errors.Wrap(err, "block: decode index")
	}
	prevBytes, err := r.ReadVarBytes()
	if err != nil {
		return nil, errors.Wrap(err, "block: decode previous_hash")
	}
	merkleBytes, err := r.ReadVarBytes()
	if err != nil {
		return nil, errors.Wrap(err, "block: decode merkle_root")
	}
	timestamp, err := r.ReadInt64()
	if err != nil {
		return nil, errors.Wrap(err, "block: decode timestamp")
	}
	difficulty, err := r.ReadUint64()
	if err != nil {
		return nil, errors.Wrap(err, "block: decode difficulty")
	}
	nonce, err := r.ReadUint64()
	if err != nil {
		return nil, errors.Wrap(err, "block: decode nonce")
	}

	var prevHash, merkleRoot crypto.Hash
	copy(prevHash[:], prevBytes)
	copy(merkleRoot[:], merkleBytes)

	numTx, err := r.ReadUint32()
	if err != nil {
		return nil, errors.Wrap(err, "block: decode tx count")
	}
	txs := make([]*transaction.Transaction, numTx)
	for i := range txs {
		txBytes, err := r.ReadVarBytes()
		if err != nil {
			return nil, errors.Wrap(err, "block: decode tx envelope")
		}
		tx, err := transaction.Decode(wire.NewReader(txBytes))
		if err != nil {
			return nil, errors.Wrapf(err, "block: decode transaction %d", i)
		}
		txs[i] = tx
	}

	return &Block{
		Header: Header{
			Index:        index,
			PreviousHash: prevHash,
			MerkleRoot:   merkleRoot,
			Timestamp:    timestamp,
			Difficulty:   difficulty,
			Nonce:        nonce,
			Version:      int32(version),
		},
		Transactions: txs,
	}, nil
}
