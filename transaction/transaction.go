// Package transaction implements the transaction model and its
// stateless structural/signature checks. Stateful
// checks that require UTXO-set and nonce context are
// implemented in package chain, which composes this package's stateless
// ValidateStructure with package utxo and package mempool.
package transaction

import (
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/pkg/errors"

	"github.com/xai-blockchain/xai-sub017/amount"
	"github.com/xai-blockchain/xai-sub017/crypto"
	"github.com/xai-blockchain/xai-sub017/wire"
)

// Type identifies a transaction's variant, dispatching to a per-variant
// metadata validator.
type Type uint8

const (
	// Coinbase transactions create new supply; sender=COINBASE, no
	// inputs, no signature.
	Coinbase Type = iota
	// Normal transactions spend UTXOs to new outputs.
	Normal
	// TimeLocked transactions are only spendable at or after a locktime.
	TimeLocked
	// HTLCReveal transactions spend a hash-time-locked output by
	// revealing its preimage.
	HTLCReveal
	// GovernanceVote transactions cast a vote; metadata identifies the
	// proposal and choice rather than moving value in the usual sense.
	GovernanceVote
)

func (t Type) String() string {
	switch t {
	case Coinbase:
		return "coinbase"
	case Normal:
		return "normal"
	case TimeLocked:
		return "time_locked"
	case HTLCReveal:
		return "htlc_reveal"
	case GovernanceVote:
		return "governance_vote"
	default:
		return "unknown"
	}
}

// Input references a prior transaction output being spent.
type Input struct {
	TxID      crypto.Hash
	Vout      uint32
	Signature []byte
}

// Output creates a new spendable value at an address.
type Output struct {
	Address string
	Amount  amount.Amount
}

// Transaction is a hybrid of an
// account-style nonce/sender/recipient envelope and UTXO-style
// inputs/outputs.
type Transaction struct {
	Sender    string
	Recipient string
	Amount    amount.Amount
	Fee       amount.Amount
	Type      Type
	Nonce     uint64
	Timestamp int64
	Inputs    []Input
	Outputs   []Output
	PublicKey []byte // uncompressed secp256k1 public key bytes of Sender

	// Metadata carries per-Type auxiliary fields (e.g. locktime, hash
	// preimage, proposal id) as opaque canonical-encoded values, each
	// validated by a type-specific validator.
	Metadata map[string][]byte

	Signature []byte // 64-byte R||S, absent for coinbase
}

// canonicalBytes serializes the transaction deterministically. When
// includeSignature is false, the Signature field is omitted: this is the
// digest signed by Sender and the input to TxID. TxID itself is never part
// of the serialization (it is derived from it).
func (tx *Transaction) canonicalBytes(includeSignature bool) []byte {
	w := wire.NewWriter()
	w.WriteVarString(tx.Sender)
	w.WriteVarString(tx.Recipient)
	w.WriteUint64(uint64(tx.Amount))
	w.WriteUint64(uint64(tx.Fee))
	w.WriteUint8(uint8(tx.Type))
	w.WriteUint64(tx.Nonce)
	w.WriteInt64(tx.Timestamp)

	w.WriteUint32(uint32(len(tx.Inputs)))
	for _, in := range tx.Inputs {
		w.WriteVarBytes(in.TxID.Bytes())
		w.WriteUint32(in.Vout)
	}

	w.WriteUint32(uint32(len(tx.Outputs)))
	for _, out := range tx.Outputs {
		w.WriteVarString(out.Address)
		w.WriteUint64(uint64(out.Amount))
	}

	w.WriteVarBytes(tx.PublicKey)
	w.WriteSortedStringMap(tx.Metadata)

	if includeSignature {
		w.WriteUint32(uint32(len(tx.Inputs)))
		for _, in := range tx.Inputs {
			w.WriteVarBytes(in.Signature)
		}
	}

	return w.Bytes()
}

// SigningDigest returns the canonical bytes a non-coinbase transaction's
// inputs are signed over: canonical(tx \ {signature, txid}).
func (tx *Transaction) SigningDigest() []byte {
	return tx.canonicalBytes(false)
}

// TxID computes the transaction id: SHA-256 over the canonical
// serialization excluding the signature and txid fields.
func (tx *Transaction) TxID() crypto.Hash {
	return crypto.Sum256(tx.canonicalBytes(false))
}

// IsCoinbase reports whether this is a coinbase transaction.
func (tx *Transaction) IsCoinbase() bool {
	return tx.Type == Coinbase
}

// Sign signs the transaction's SigningDigest with priv and records the
// result in Signature, also setting PublicKey to the signer's serialized
// public key. Coinbase transactions are never signed.
func (tx *Transaction) Sign(priv *secp256k1.PrivateKey) error {
	if tx.IsCoinbase() {
		return errors.New("transaction: coinbase transactions are not signed")
	}
	tx.PublicKey = crypto.SerializePublicKeyUncompressed(priv.PubKey())
	tx.Signature = crypto.Sign(priv, tx.SigningDigest())
	return nil
}

// OutputSum returns the sum of all output amounts, failing on overflow or
// max-supply breach.
func (tx *Transaction) OutputSum() (amount.Amount, error) {
	amounts := make([]amount.Amount, len(tx.Outputs))
	for i, o := range tx.Outputs {
		amounts[i] = o.Amount
	}
	return amount.Sum(amounts)
}

// Encode serializes tx in full, including its signature and per-input
// signature bytes, for on-disk block storage.
// This differs from canonicalBytes(false)/TxID in that it round-trips the
// complete transaction rather than just the signing digest.
func (tx *Transaction) Encode() []byte {
	w := wire.NewWriter()
	w.WriteVarString(tx.Sender)
	w.WriteVarString(tx.Recipient)
	w.WriteUint64(uint64(tx.Amount))
	w.WriteUint64(uint64(tx.Fee))
	w.WriteUint8(uint8(tx.Type))
	w.WriteUint64(tx.Nonce)
	w.WriteInt64(tx.Timestamp)

	w.WriteUint32(uint32(len(tx.Inputs)))
	for _, in := range tx.Inputs {
		w.WriteVarBytes(in.TxID.Bytes())
		w.WriteUint32(in.Vout)
		w.WriteVarBytes(in.Signature)
	}

	w.WriteUint32(uint32(len(tx.Outputs)))
	for _, out := range tx.Outputs {
		w.WriteVarString(out.Address)
		w.WriteUint64(uint64(out.Amount))
	}

	w.WriteVarBytes(tx.PublicKey)
	w.WriteSortedStringMap(tx.Metadata)
	w.WriteVarBytes(tx.Signature)
	return w.Bytes()
}

// Decode reverses Encode.
func Decode(r *wire.Reader) (*Transaction, error) {
	tx := &Transaction{}
	var err error
	if tx.Sender, err = r.ReadVarString(); err != nil {
		return nil, errors.Wrap(err, "transaction: decode sender")
	}
	if tx.Recipient, err = r.ReadVarString(); err != nil {
		return nil, errors.Wrap(err, "transaction: decode recipient")
	}
	amt, err := r.ReadUint64()
	if err != nil {
		return nil, errors.Wrap(err, "transaction: decode amount")
	}
	tx.Amount = amount.Amount(amt)
	fee, err := r.ReadUint64()
	if err != nil {
		return nil, errors.Wrap(err, "transaction: decode fee")
	}
	tx.Fee = amount.Amount(fee)
	typ, err := r.ReadUint8()
	if err != nil {
		return nil, errors.Wrap(err, "transaction: decode type")
	}
	tx.Type = Type(typ)
	if tx.Nonce, err = r.ReadUint64(); err != nil {
		return nil, errors.Wrap(err, "transaction: decode nonce")
	}
	if tx.Timestamp, err = r.ReadInt64(); err != nil {
		return nil, errors.Wrap(err, "transaction: decode timestamp")
	}

	numInputs, err := r.ReadUint32()
	if err != nil {
		return nil, errors.Wrap(err, "transaction: decode input count")
	}
	tx.Inputs = make([]Input, numInputs)
	for i := range tx.Inputs {
		txidBytes, err := r.ReadVarBytes()
		if err != nil {
			return nil, errors.Wrap(err, "transaction: decode input txid")
		}
		var txid crypto.Hash
		copy(txid[:], txidBytes)
		vout, err := r.ReadUint32()
		if err != nil {
			return nil, errors.Wrap(err, "transaction: decode input vout")
		}
		sig, err := r.ReadVarBytes()
		if err != nil {
			return nil, errors.Wrap(err, "transaction: decode input signature")
		}
		tx.Inputs[i] = Input{TxID: txid, Vout: vout, Signature: sig}
	}

	numOutputs, err := r.ReadUint32()
	if err != nil {
		return nil, errors.Wrap(err, "transaction: decode output count")
	}
	tx.Outputs = make([]Output, numOutputs)
	for i := range tx.Outputs {
		addr, err := r.ReadVarString()
		if err != nil {
			return nil, errors.Wrap(err, "transaction: decode output address")
		}
		outAmt, err := r.ReadUint64()
		if err != nil {
			return nil, errors.Wrap(err, "transaction: decode output amount")
		}
		tx.Outputs[i] = Output{Address: addr, Amount: amount.Amount(outAmt)}
	}

	if tx.PublicKey, err = r.ReadVarBytes(); err != nil {
		return nil, errors.Wrap(err, "transaction: decode public key")
	}
	if tx.Metadata, err = r.ReadSortedStringMap(); err != nil {
		return nil, errors.Wrap(err, "transaction: decode metadata")
	}
	if tx.Signature, err = r.ReadVarBytes(); err != nil {
		return nil, errors.Wrap(err, "transaction: decode signature")
	}
	return tx, nil
}
