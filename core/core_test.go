package core

import (
	"testing"

	"github.com/xai-blockchain/xai-sub017/amount"
	"github.com/xai-blockchain/xai-sub017/block"
	"github.com/xai-blockchain/xai-sub017/chain"
	"github.com/xai-blockchain/xai-sub017/crypto"
	"github.com/xai-blockchain/xai-sub017/reward"
	"github.com/xai-blockchain/xai-sub017/transaction"
)

func testGenesis(miner string) *block.Block {
	tx := &transaction.Transaction{
		Sender:    crypto.CoinbaseAddress,
		Recipient: miner,
		Amount:    amount.Amount(reward.GenesisAllocation),
		Type:      transaction.Coinbase,
		Outputs:   []transaction.Output{{Address: miner, Amount: amount.Amount(reward.GenesisAllocation)}},
	}
	b := &block.Block{
		Header: block.Header{Index: 0, Timestamp: 1, Difficulty: 1, Version: 1},
		Transactions: []*transaction.Transaction{tx},
	}
	b.Header.MerkleRoot = b.ComputeMerkleRoot()
	return b
}

func newTestEngine(t *testing.T) (*Engine, string) {
	t.Helper()
	kp, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	miner := crypto.DeriveAddress(kp.Public, crypto.Mainnet)
	genesis := testGenesis(miner)

	var key [32]byte
	engine, err := New(Config{
		DataDir:            t.TempDir(),
		CheckpointKey:      key,
		CheckpointInterval: 1,
		CheckpointDepth:    0,
		OrphanPruneAge:     100,
	}, genesis)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { engine.Close() })
	return engine, miner
}

func TestNewBootstrapsGenesisAndPersistsIt(t *testing.T) {
	e, miner := newTestEngine(t)
	if e.GetTip().Index != 0 {
		t.Fatalf("expected tip index 0, got %d", e.GetTip().Index)
	}
	bal, err := e.GetBalance(miner)
	if err != nil {
		t.Fatal(err)
	}
	if bal != reward.GenesisAllocation {
		t.Fatalf("expected genesis balance, got %d", bal)
	}

	stored, err := e.GetBlockAt(0)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Header.Hash() != e.GetTip().Hash() {
		t.Fatal("expected persisted genesis block to match chain tip")
	}
}

func TestSubmitBlockFiresSubscriberAndChecksSupply(t *testing.T) {
	e, miner := newTestEngine(t)

	var events []chain.ReorgEvent
	e.Subscribe(func(ev chain.ReorgEvent) { events = append(events, ev) })

	tip := e.GetTip()
	nextReward := reward.RewardAt(1, e.GetCirculatingSupply())
	b1 := &block.Block{
		Header: block.Header{
			Index:        1,
			PreviousHash: tip.Hash(),
			Timestamp:    tip.Timestamp + 600,
			Difficulty:   1,
			Version:      1,
		},
		Transactions: []*transaction.Transaction{{
			Sender:    crypto.CoinbaseAddress,
			Recipient: miner,
			Amount:    amount.Amount(nextReward),
			Type:      transaction.Coinbase,
			Nonce:     1,
			Outputs:   []transaction.Output{{Address: miner, Amount: amount.Amount(nextReward)}},
		}},
	}
	b1.Header.MerkleRoot = b1.ComputeMerkleRoot()

	result, err := e.SubmitBlock(b1)
	if err != nil {
		t.Fatal(err)
	}
	if result != chain.Accepted {
		t.Fatalf("expected Accepted, got %v", result)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 reorg event notification, got %d", len(events))
	}

	stored, err := e.GetBlockAt(1)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Header.Hash() != b1.Header.Hash() {
		t.Fatal("expected block 1 persisted to durable storage")
	}

	supply := e.GetCirculatingSupply()
	if supply != reward.GenesisAllocation+nextReward {
		t.Fatalf("expected supply %d, got %d", reward.GenesisAllocation+nextReward, supply)
	}
}

func TestGetMempoolOverviewRespectsLimit(t *testing.T) {
	e, _ := newTestEngine(t)
	ov, sample := e.GetMempoolOverview(5)
	if ov.TransactionCount != 0 {
		t.Fatalf("expected empty pool, got %d", ov.TransactionCount)
	}
	if len(sample) != 0 {
		t.Fatal("expected no sample transactions in an empty pool")
	}
}

func TestEstimateFeeIsNonzero(t *testing.T) {
	e, _ := newTestEngine(t)
	fee := e.EstimateFee(250)
	if fee == 0 {
		t.Fatal("expected a nonzero baseline fee estimate")
	}
}
