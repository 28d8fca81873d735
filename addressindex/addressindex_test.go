package addressindex

import (
	"testing"

	"github.com/xai-blockchain/xai-sub017/amount"
	"github.com/xai-blockchain/xai-sub017/transaction"
)

func newTestIndex(t *testing.T) *Index {
	t.Helper()
	idx, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { idx.Close() })
	return idx
}

func normalTx(sender, recipient string, amt uint64, nonce uint64) *transaction.Transaction {
	return &transaction.Transaction{
		Sender:    sender,
		Recipient: recipient,
		Amount:    amount.Amount(amt),
		Type:      transaction.Normal,
		Nonce:     nonce,
		Outputs:   []transaction.Output{{Address: recipient, Amount: amount.Amount(amt)}},
	}
}

func TestIndexAndQueryRoundTrip(t *testing.T) {
	idx := newTestIndex(t)
	tx := normalTx("XAI1111111111111111111111111111111111111", "XAI2222222222222222222222222222222222222", 100, 0)

	if err := idx.IndexTransaction(tx, 10, 0, 1000); err != nil {
		t.Fatal(err)
	}

	rows, total, err := idx.GetTransactions("XAI1111111111111111111111111111111111111", 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if total != 1 || len(rows) != 1 {
		t.Fatalf("expected 1 row for sender, got total=%d rows=%d", total, len(rows))
	}
	if !rows[0].IsSender {
		t.Fatal("expected sender row to have IsSender=true")
	}

	rows, total, err = idx.GetTransactions("XAI2222222222222222222222222222222222222", 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if total != 1 || rows[0].IsSender {
		t.Fatalf("expected 1 recipient row with IsSender=false, got %+v (total=%d)", rows, total)
	}
}

func TestGetTransactionsOrdersByBlockIndexDescending(t *testing.T) {
	idx := newTestIndex(t)
	addr := "XAI3333333333333333333333333333333333333"
	other := "XAI4444444444444444444444444444444444444"

	for h := uint64(1); h <= 3; h++ {
		tx := normalTx(addr, other, 1, h)
		if err := idx.IndexTransaction(tx, h, 0, int64(h)); err != nil {
			t.Fatal(err)
		}
	}

	rows, total, err := idx.GetTransactions(addr, 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if total != 3 {
		t.Fatalf("expected total 3, got %d", total)
	}
	if rows[0].Timestamp != 3 || rows[1].Timestamp != 2 || rows[2].Timestamp != 1 {
		t.Fatalf("expected descending block order, got %+v", rows)
	}
}

func TestRollbackToBlockRemovesHigherEntries(t *testing.T) {
	idx := newTestIndex(t)
	addr := "XAI5555555555555555555555555555555555555"
	other := "XAI6666666666666666666666666666666666666"

	for h := uint64(1); h <= 5; h++ {
		tx := normalTx(addr, other, 1, h)
		if err := idx.IndexTransaction(tx, h, 0, int64(h)); err != nil {
			t.Fatal(err)
		}
	}

	if err := idx.RollbackToBlock(3); err != nil {
		t.Fatal(err)
	}

	rows, total, err := idx.GetTransactions(addr, 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if total != 3 || len(rows) != 3 {
		t.Fatalf("expected 3 rows to survive rollback, got total=%d rows=%d", total, len(rows))
	}
	for _, r := range rows {
		if r.Timestamp > 3 {
			t.Fatalf("expected no surviving row above height 3, got %+v", r)
		}
	}
}

func TestGetTransactionsRejectsNonPositiveLimit(t *testing.T) {
	idx := newTestIndex(t)
	if _, _, err := idx.GetTransactions("XAI0000000000000000000000000000000000001", 0, 0); err == nil {
		t.Fatal("expected error for non-positive limit")
	}
}

type sourceEntry struct {
	blockIndex uint64
	txIndex    int
	tx         *transaction.Transaction
	timestamp  int64
}

type fakeBlockSource struct {
	entries []sourceEntry
}

func (f fakeBlockSource) ForEachTransaction(yield func(blockIndex uint64, txIndex int, tx *transaction.Transaction, timestamp int64) error) error {
	for _, e := range f.entries {
		if err := yield(e.blockIndex, e.txIndex, e.tx, e.timestamp); err != nil {
			return err
		}
	}
	return nil
}

func TestRebuildFromChainRepopulatesFromSource(t *testing.T) {
	idx := newTestIndex(t)
	addr := "XAI7777777777777777777777777777777777777"
	other := "XAI8888888888888888888888888888888888888"
	stale := "XAI9999999999999999999999999999999999999"

	if err := idx.IndexTransaction(normalTx(stale, other, 1, 0), 1, 0, 1); err != nil {
		t.Fatal(err)
	}

	source := fakeBlockSource{entries: []sourceEntry{
		{blockIndex: 1, txIndex: 0, tx: normalTx(addr, other, 5, 0), timestamp: 50},
	}}
	if err := idx.RebuildFromChain(source); err != nil {
		t.Fatal(err)
	}

	if _, total, err := idx.GetTransactions(stale, 10, 0); err != nil || total != 0 {
		t.Fatalf("expected stale address wiped, got total=%d err=%v", total, err)
	}
	rows, total, err := idx.GetTransactions(addr, 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if total != 1 || rows[0].Timestamp != 50 {
		t.Fatalf("expected rebuilt entry, got rows=%+v total=%d", rows, total)
	}
}
