package chain

import (
	"testing"

	"github.com/xai-blockchain/xai-sub017/addressindex"
	"github.com/xai-blockchain/xai-sub017/amount"
	"github.com/xai-blockchain/xai-sub017/block"
	"github.com/xai-blockchain/xai-sub017/crypto"
	"github.com/xai-blockchain/xai-sub017/mempool"
	"github.com/xai-blockchain/xai-sub017/reward"
	"github.com/xai-blockchain/xai-sub017/transaction"
	"github.com/xai-blockchain/xai-sub017/utxo"
)

// Difficulty 1 gives a target of 2^256, so every header hash satisfies
// proof of work trivially; no nonce search is needed for these tests.
const testDifficulty = 1

func coinbaseTx(minerAddr string, amt uint64, nonce uint64) *transaction.Transaction {
	return &transaction.Transaction{
		Sender:    crypto.CoinbaseAddress,
		Recipient: minerAddr,
		Amount:    amount.Amount(amt),
		Type:      transaction.Coinbase,
		Nonce:     nonce,
		Outputs:   []transaction.Output{{Address: minerAddr, Amount: amount.Amount(amt)}},
	}
}

func buildBlock(index uint64, prevHash crypto.Hash, timestamp int64, txs []*transaction.Transaction) *block.Block {
	b := &block.Block{
		Header: block.Header{
			Index:        index,
			PreviousHash: prevHash,
			Timestamp:    timestamp,
			Difficulty:   testDifficulty,
			Version:      1,
		},
		Transactions: txs,
	}
	b.Header.MerkleRoot = b.ComputeMerkleRoot()
	return b
}

func newTestChain(t *testing.T) (*Chain, *crypto.KeyPair, string) {
	t.Helper()
	kp, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	miner := crypto.DeriveAddress(kp.Public, crypto.Mainnet)

	genesis := buildBlock(0, crypto.Hash{}, 1, []*transaction.Transaction{
		coinbaseTx(miner, reward.GenesisAllocation, 0),
	})

	utxoSet := utxo.New()
	addrIdx, err := addressindex.Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { addrIdx.Close() })
	pool := mempool.New(mempool.Config{Policy: mempool.DefaultPolicy(), UTXOSet: utxoSet})

	c, err := New(Config{
		UTXOSet:         utxoSet,
		Mempool:         pool,
		AddressIndex:    addrIdx,
		CheckpointDepth: 0,
		OrphanPruneAge:  100,
	}, genesis)
	if err != nil {
		t.Fatal(err)
	}
	return c, kp, miner
}

func TestGenesisSeedsUTXOAndTip(t *testing.T) {
	c, _, miner := newTestChain(t)
	if c.TipIndex() != 0 {
		t.Fatalf("expected tip index 0, got %d", c.TipIndex())
	}
	bal, err := c.GetBalance(miner)
	if err != nil {
		t.Fatal(err)
	}
	if bal != reward.GenesisAllocation {
		t.Fatalf("expected genesis balance %d, got %d", reward.GenesisAllocation, bal)
	}
}

func TestSubmitBlockExtendsTip(t *testing.T) {
	c, _, miner := newTestChain(t)
	tip := c.Tip()

	nextReward := reward.RewardAt(1, c.CirculatingSupply())
	b1 := buildBlock(1, tip.Hash(), tip.Timestamp+600, []*transaction.Transaction{
		coinbaseTx(miner, uint64(nextReward), 1),
	})

	result, err := c.SubmitBlock(b1)
	if err != nil {
		t.Fatal(err)
	}
	if result != Accepted {
		t.Fatalf("expected Accepted, got %v", result)
	}
	if c.TipIndex() != 1 {
		t.Fatalf("expected tip index 1, got %d", c.TipIndex())
	}
}

func TestSubmitBlockRejectsCoinbaseOverflow(t *testing.T) {
	c, _, miner := newTestChain(t)
	tip := c.Tip()

	tooMuch := reward.RewardAt(1, c.CirculatingSupply()) + 1
	b1 := buildBlock(1, tip.Hash(), tip.Timestamp+600, []*transaction.Transaction{
		coinbaseTx(miner, uint64(tooMuch), 1),
	})

	result, err := c.SubmitBlock(b1)
	if result != Rejected || err == nil {
		t.Fatalf("expected Rejected with error, got %v / %v", result, err)
	}
}

func TestSubmitBlockBuffersOrphanOnUnknownParent(t *testing.T) {
	c, _, miner := newTestChain(t)
	bogusParent := crypto.Sum256([]byte("nonexistent"))
	b := buildBlock(5, bogusParent, 1000, []*transaction.Transaction{
		coinbaseTx(miner, uint64(reward.RewardAt(5, c.CirculatingSupply())), 1),
	})

	result, _ := c.SubmitBlock(b)
	if result != Orphaned {
		t.Fatalf("expected Orphaned, got %v", result)
	}
	if c.TipIndex() != 0 {
		t.Fatal("expected tip unchanged while orphan is buffered")
	}
}

func TestSubmitTransactionThenBlockIncludesIt(t *testing.T) {
	c, minerKP, miner := newTestChain(t)

	recipientKP, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	recipient := crypto.DeriveAddress(recipientKP.Public, crypto.Mainnet)

	minerUTXOs := c.GetUTXOs(miner)
	if len(minerUTXOs) != 1 {
		t.Fatalf("expected 1 genesis utxo for miner, got %d", len(minerUTXOs))
	}
	op := minerUTXOs[0].Outpoint()

	spend := &transaction.Transaction{
		Sender:    miner,
		Recipient: recipient,
		Amount:    1000,
		Fee:       10,
		Type:      transaction.Normal,
		Nonce:     0,
		Timestamp: 1,
		Inputs:    []transaction.Input{{TxID: op.TxID, Vout: op.Vout}},
		Outputs:   []transaction.Output{{Address: recipient, Amount: 1000}},
	}
	if err := spend.Sign(minerKP.Private); err != nil {
		t.Fatal(err)
	}

	result, err := c.SubmitTransaction(spend, false)
	if err != nil || result != Accepted {
		t.Fatalf("expected transaction accepted into mempool, got %v (%v)", result, err)
	}

	ov := c.GetMempoolOverview()
	if ov.TransactionCount != 1 {
		t.Fatalf("expected 1 pooled transaction, got %d", ov.TransactionCount)
	}

	tip := c.Tip()
	b1 := buildBlock(1, tip.Hash(), tip.Timestamp+600, []*transaction.Transaction{
		coinbaseTx(miner, uint64(reward.RewardAt(1, c.CirculatingSupply()))+uint64(spend.Fee), 1),
		spend,
	})

	result, err = c.SubmitBlock(b1)
	if err != nil {
		t.Fatal(err)
	}
	if result != Accepted {
		t.Fatalf("expected block with spend accepted, got %v", result)
	}

	recipientBalance, err := c.GetBalance(recipient)
	if err != nil {
		t.Fatal(err)
	}
	if recipientBalance != 1000 {
		t.Fatalf("expected recipient balance 1000, got %d", recipientBalance)
	}

	history, total, err := c.GetTransactionHistory(recipient, 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if total != 1 || len(history) != 1 {
		t.Fatalf("expected 1 history entry for recipient, got %d/%d", total, len(history))
	}
}

func TestReorgAdoptsHeavierSideChain(t *testing.T) {
	c, _, miner := newTestChain(t)
	tip := c.Tip()

	light := buildBlock(1, tip.Hash(), tip.Timestamp+600, []*transaction.Transaction{
		coinbaseTx(miner, uint64(reward.RewardAt(1, c.CirculatingSupply())), 1),
	})
	if res, err := c.SubmitBlock(light); res != Accepted {
		t.Fatalf("expected light block accepted, got %v (%v)", res, err)
	}

	// A side block at the same height with higher difficulty carries more
	// cumulative work despite the same length, and must supersede it:
	// cumulative work, not length, is the fork-choice tiebreaker.
	heavy := &block.Block{
		Header: block.Header{
			Index:        1,
			PreviousHash: tip.Hash(),
			Timestamp:    tip.Timestamp + 600,
			Difficulty:   testDifficulty * 2,
			Version:      1,
		},
		Transactions: []*transaction.Transaction{
			coinbaseTx(miner, uint64(reward.RewardAt(1, c.CirculatingSupply())), 2),
		},
	}
	heavy.Header.MerkleRoot = heavy.ComputeMerkleRoot()
	// Difficulty 2 halves the target to 2^255, so search for a nonce.
	for {
		ok, err := block.CheckProofOfWork(&heavy.Header)
		if err != nil {
			t.Fatal(err)
		}
		if ok {
			break
		}
		heavy.Header.Nonce++
	}

	if heavy.Header.Hash() == light.Header.Hash() {
		t.Skip("degenerate hash collision between test fixtures")
	}

	result, err := c.SubmitBlock(heavy)
	if err != nil {
		t.Fatal(err)
	}
	if result != Accepted {
		t.Fatalf("expected second same-height block accepted as a side block, got %v", result)
	}
	if c.TipIndex() != 1 {
		t.Fatalf("expected tip still at index 1, got %d", c.TipIndex())
	}
	if c.Tip().Hash() != heavy.Header.Hash() {
		t.Fatal("expected the heavier side block to become the canonical tip")
	}
}
