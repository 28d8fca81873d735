package transaction

import (
	"time"

	"github.com/xai-blockchain/xai-sub017/amount"
	"github.com/xai-blockchain/xai-sub017/consensuserr"
	"github.com/xai-blockchain/xai-sub017/crypto"
)

// ValidateStructure checks structural well-formedness (the txid is always
// derived, never stored, so there is none to check), and (for non-coinbase) sender/public-key binding and
// signature verification. It does not touch UTXO state or nonce tracking;
// callers compose this with package utxo/chain for the stateful checks.
func ValidateStructure(tx *Transaction) error {
	if err := checkStructuralSanity(tx); err != nil {
		return err
	}
	if tx.IsCoinbase() {
		if tx.Sender != crypto.CoinbaseAddress {
			return consensuserr.New(consensuserr.ErrInvalidStructure, "transaction: coinbase sender must be COINBASE")
		}
		if len(tx.Inputs) != 0 {
			return consensuserr.New(consensuserr.ErrInvalidStructure, "transaction: coinbase must have no inputs")
		}
		return nil
	}

	if err := checkSenderBinding(tx); err != nil {
		return err
	}
	if err := checkSignature(tx); err != nil {
		return err
	}
	return nil
}

func checkStructuralSanity(tx *Transaction) error {
	if tx.Sender == "" || tx.Recipient == "" {
		return consensuserr.New(consensuserr.ErrInvalidStructure, "transaction: sender and recipient are required")
	}
	if len(tx.Outputs) == 0 {
		return consensuserr.New(consensuserr.ErrInvalidStructure, "transaction: outputs must be non-empty")
	}
	if tx.Amount > amount.MaxSupplyBaseUnits {
		return consensuserr.New(consensuserr.ErrInvalidStructure, "transaction: amount exceeds max supply")
	}
	if !tx.IsCoinbase() {
		if err := crypto.ValidateAddress(tx.Sender); err != nil {
			return consensuserr.Newf(consensuserr.ErrInvalidStructure, "transaction: invalid sender address: %v", err)
		}
	}
	if err := crypto.ValidateAddress(tx.Recipient); err != nil {
		return consensuserr.Newf(consensuserr.ErrInvalidStructure, "transaction: invalid recipient address: %v", err)
	}
	for _, out := range tx.Outputs {
		if err := crypto.ValidateAddress(out.Address); err != nil {
			return consensuserr.Newf(consensuserr.ErrInvalidStructure, "transaction: invalid output address: %v", err)
		}
		if out.Amount > amount.MaxSupplyBaseUnits {
			return consensuserr.New(consensuserr.ErrInvalidStructure, "transaction: output amount exceeds max supply")
		}
	}
	if err := validateTypeMetadata(tx); err != nil {
		return err
	}
	return nil
}

func checkSenderBinding(tx *Transaction) error {
	if len(tx.PublicKey) == 0 {
		return consensuserr.New(consensuserr.ErrInvalidStructure, "transaction: public_key is required for non-coinbase transactions")
	}
	pub, err := crypto.ParsePublicKey(tx.PublicKey)
	if err != nil {
		return consensuserr.Newf(consensuserr.ErrInvalidStructure, "transaction: malformed public_key: %v", err)
	}
	if !crypto.AddressMatchesPublicKey(tx.Sender, pub) {
		return consensuserr.New(consensuserr.ErrInvalidStructure, "transaction: sender address does not match public_key")
	}
	return nil
}

func checkSignature(tx *Transaction) error {
	if len(tx.Signature) != crypto.SignatureSize {
		return consensuserr.Newf(consensuserr.ErrInvalidSignature, "transaction: signature must be %d bytes, got %d", crypto.SignatureSize, len(tx.Signature))
	}
	pub, err := crypto.ParsePublicKey(tx.PublicKey)
	if err != nil {
		return consensuserr.New(consensuserr.ErrInvalidSignature, "transaction: malformed public_key")
	}
	if !crypto.Verify(pub, tx.SigningDigest(), tx.Signature) {
		return consensuserr.New(consensuserr.ErrInvalidSignature, "transaction: signature does not verify")
	}
	return nil
}

// Metadata keys recognized for typed transactions.
const (
	// MetaLockTime is a big-endian int64 unix timestamp before which a
	// TimeLocked transaction may not be spent.
	MetaLockTime = "locktime"
	// MetaHTLCPreimage is the revealed preimage for an HTLCReveal
	// transaction.
	MetaHTLCPreimage = "preimage"
	// MetaHTLCHash is the SHA-256 hash the preimage must match.
	MetaHTLCHash = "hash"
	// MetaHTLCExpiry is a big-endian int64 unix timestamp after which the
	// HTLC can no longer be redeemed by preimage (only refunded).
	MetaHTLCExpiry = "expiry"
	// MetaProposalID identifies the governance proposal being voted on.
	MetaProposalID = "proposal_id"
	// MetaVoteChoice is a single byte: 0=against, 1=for, 2=abstain.
	MetaVoteChoice = "choice"
)

// nowFunc is overridable in tests to deterministically exercise
// time/secret-constrained typed transactions without sleeping.
var nowFunc = time.Now

func validateTypeMetadata(tx *Transaction) error {
	switch tx.Type {
	case Coinbase, Normal:
		return nil
	case TimeLocked:
		raw, ok := tx.Metadata[MetaLockTime]
		if !ok || len(raw) != 8 {
			return consensuserr.New(consensuserr.ErrInvalidStructure, "transaction: time-locked spend requires an 8-byte locktime")
		}
		lockTime := decodeBEInt64(raw)
		if nowFunc().Unix() < lockTime {
			return consensuserr.Newf(consensuserr.ErrInvalidStructure, "transaction: locktime %d not yet reached", lockTime)
		}
		return nil
	case HTLCReveal:
		preimage, ok := tx.Metadata[MetaHTLCPreimage]
		if !ok {
			return consensuserr.New(consensuserr.ErrInvalidStructure, "transaction: HTLC reveal requires a preimage")
		}
		wantHash, ok := tx.Metadata[MetaHTLCHash]
		if !ok || len(wantHash) != crypto.HashSize {
			return consensuserr.New(consensuserr.ErrInvalidStructure, "transaction: HTLC reveal requires a hash commitment")
		}
		gotHash := crypto.Sum256(preimage)
		if string(gotHash.Bytes()) != string(wantHash) {
			return consensuserr.New(consensuserr.ErrInvalidStructure, "transaction: HTLC preimage does not match hash commitment")
		}
		if raw, ok := tx.Metadata[MetaHTLCExpiry]; ok && len(raw) == 8 {
			if nowFunc().Unix() > decodeBEInt64(raw) {
				return consensuserr.New(consensuserr.ErrInvalidStructure, "transaction: HTLC reveal submitted after expiry")
			}
		}
		return nil
	case GovernanceVote:
		if _, ok := tx.Metadata[MetaProposalID]; !ok {
			return consensuserr.New(consensuserr.ErrInvalidStructure, "transaction: governance vote requires a proposal_id")
		}
		choice, ok := tx.Metadata[MetaVoteChoice]
		if !ok || len(choice) != 1 || choice[0] > 2 {
			return consensuserr.New(consensuserr.ErrInvalidStructure, "transaction: governance vote requires a valid choice byte")
		}
		return nil
	default:
		return consensuserr.Newf(consensuserr.ErrInvalidStructure, "transaction: unknown transaction type %d", tx.Type)
	}
}

func decodeBEInt64(b []byte) int64 {
	var v uint64
	for _, c := range b {
		v = v<<8 | uint64(c)
	}
	return int64(v)
}
