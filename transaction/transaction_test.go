package transaction

import (
	"testing"
	"time"

	"github.com/xai-blockchain/xai-sub017/amount"
	"github.com/xai-blockchain/xai-sub017/crypto"
	"github.com/xai-blockchain/xai-sub017/consensuserr"
)

func newSignedTx(t *testing.T) (*Transaction, *struct{ addr string }) {
	t.Helper()
	kp, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	sender := crypto.DeriveAddress(kp.Public, crypto.Mainnet)
	tx := &Transaction{
		Sender:    sender,
		Recipient: "XAI" + "1111111111111111111111111111111111111111",
		Amount:    100,
		Fee:       1,
		Type:      Normal,
		Nonce:     1,
		Timestamp: time.Now().Unix(),
		Inputs: []Input{
			{TxID: crypto.Sum256([]byte("prev")), Vout: 0},
		},
		Outputs: []Output{
			{Address: "XAI" + "1111111111111111111111111111111111111111", Amount: 99},
		},
	}
	if err := tx.Sign(kp.Private); err != nil {
		t.Fatal(err)
	}
	return tx, &struct{ addr string }{sender}
}

func TestTxIDExcludesSignature(t *testing.T) {
	tx, _ := newSignedTx(t)
	id1 := tx.TxID()
	tx.Signature[0] ^= 0xFF
	id2 := tx.TxID()
	if id1 != id2 {
		t.Fatal("expected txid to be independent of the signature field")
	}
}

func TestValidateStructureAcceptsWellFormedTx(t *testing.T) {
	tx, _ := newSignedTx(t)
	if err := ValidateStructure(tx); err != nil {
		t.Fatalf("expected valid tx to pass structural validation: %v", err)
	}
}

func TestValidateStructureRejectsTamperedSignature(t *testing.T) {
	tx, _ := newSignedTx(t)
	tx.Amount = 999999 // mutate a signed field without resigning
	if err := ValidateStructure(tx); !consensuserr.Is(err, consensuserr.ErrInvalidSignature) {
		t.Fatalf("expected InvalidSignature, got %v", err)
	}
}

func TestValidateStructureRejectsEmptyOutputs(t *testing.T) {
	tx, _ := newSignedTx(t)
	tx.Outputs = nil
	if err := ValidateStructure(tx); !consensuserr.Is(err, consensuserr.ErrInvalidStructure) {
		t.Fatalf("expected InvalidStructure, got %v", err)
	}
}

func TestCoinbaseSkipsSignatureChecks(t *testing.T) {
	tx := &Transaction{
		Sender:    crypto.CoinbaseAddress,
		Recipient: "XAI" + "2222222222222222222222222222222222222222",
		Type:      Coinbase,
		Outputs: []Output{
			{Address: "XAI" + "2222222222222222222222222222222222222222", Amount: amount.Amount(12 * amount.Unit)},
		},
	}
	if err := ValidateStructure(tx); err != nil {
		t.Fatalf("expected coinbase to validate without signature: %v", err)
	}
}

func TestTimeLockedRejectsBeforeLockTime(t *testing.T) {
	kp, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	sender := crypto.DeriveAddress(kp.Public, crypto.Mainnet)
	future := time.Now().Add(time.Hour).Unix()
	tx := &Transaction{
		Sender:    sender,
		Recipient: "XAI" + "3333333333333333333333333333333333333333",
		Type:      TimeLocked,
		Nonce:     1,
		Inputs:    []Input{{TxID: crypto.Sum256([]byte("prev")), Vout: 0}},
		Outputs:   []Output{{Address: "XAI" + "3333333333333333333333333333333333333333", Amount: 1}},
		Metadata:  map[string][]byte{MetaLockTime: encodeBEInt64(future)},
	}
	if err := tx.Sign(kp.Private); err != nil {
		t.Fatal(err)
	}
	if err := ValidateStructure(tx); !consensuserr.Is(err, consensuserr.ErrInvalidStructure) {
		t.Fatalf("expected locktime not yet reached to be rejected, got %v", err)
	}
}

func encodeBEInt64(v int64) []byte {
	b := make([]byte, 8)
	u := uint64(v)
	for i := 7; i >= 0; i-- {
		b[i] = byte(u)
		u >>= 8
	}
	return b
}
