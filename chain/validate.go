package chain

import (
	"math/big"
	"time"

	"github.com/xai-blockchain/xai-sub017/block"
	"github.com/xai-blockchain/xai-sub017/consensuserr"
	"github.com/xai-blockchain/xai-sub017/crypto"
	"github.com/xai-blockchain/xai-sub017/logger"
	"github.com/xai-blockchain/xai-sub017/reward"
	"github.com/xai-blockchain/xai-sub017/transaction"
	"github.com/xai-blockchain/xai-sub017/utxo"
)

// SubmitBlock validates b and, if valid, connects it. If b does not connect to the
// current tip, it is either buffered as an orphan or, if it
// connects to a known non-tip block and out-works the tip, triggers a
// reorganization. Caller must not hold c.mtx.
func (c *Chain) SubmitBlock(b *block.Block) (Result, error) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	return c.submitBlockLocked(b)
}

func (c *Chain) submitBlockLocked(b *block.Block) (Result, error) {
	hash := b.Header.Hash()
	if _, known := c.blocksByHash[hash]; known {
		return Rejected, consensuserr.New(consensuserr.ErrInvalidStructure, "chain: block already known")
	}

	if err := c.checkStructural(b); err != nil {
		return Rejected, err
	}
	if err := c.checkPoW(b); err != nil {
		return Rejected, err
	}
	if err := c.checkMerkle(b); err != nil {
		return Rejected, err
	}

	tip := c.canonical[c.tipIndex]
	if b.Header.PreviousHash == tip.Header.Hash() {
		if err := c.checkHeaderLinkage(b, tip); err != nil {
			return Rejected, err
		}
		if err := c.validateAndConnect(b); err != nil {
			return Rejected, err
		}
		c.attachOrphans(hash)
		return Accepted, nil
	}

	parent, haveParent := c.blocksByHash[b.Header.PreviousHash]
	if !haveParent {
		c.orphans.Add(b)
		logger.ChainLog.Debugf("buffered orphan block %d (%x)", b.Header.Index, hash)
		return Orphaned, consensuserr.New(consensuserr.ErrOrphanPending, "chain: previous_hash not yet known")
	}

	if err := c.checkHeaderLinkage(b, parent); err != nil {
		return Rejected, err
	}
	if err := c.storeSideBlock(b, parent); err != nil {
		return Rejected, err
	}
	if c.sideChainOutworksTip(hash) {
		if err := c.reorganizeTo(hash); err != nil {
			return Rejected, err
		}
		return Accepted, nil
	}
	return Accepted, nil
}

func (c *Chain) checkStructural(b *block.Block) error {
	if len(b.Transactions) == 0 {
		return consensuserr.New(consensuserr.ErrInvalidStructure, "chain: block must contain at least the coinbase transaction")
	}
	if !b.Transactions[0].IsCoinbase() {
		return consensuserr.New(consensuserr.ErrInvalidStructure, "chain: transactions[0] must be coinbase")
	}
	for _, tx := range b.Transactions[1:] {
		if tx.IsCoinbase() {
			return consensuserr.New(consensuserr.ErrInvalidStructure, "chain: only transactions[0] may be coinbase")
		}
	}
	return nil
}

func (c *Chain) checkHeaderLinkage(b *block.Block, prev *block.Block) error {
	if b.Header.Index != prev.Header.Index+1 {
		return consensuserr.Newf(consensuserr.ErrInvalidStructure, "chain: block index %d does not follow parent index %d", b.Header.Index, prev.Header.Index)
	}
	now := time.Now().Unix()
	if b.Header.Timestamp > now+int64(FutureTimeLimit.Seconds()) {
		return consensuserr.Newf(consensuserr.ErrInvalidStructure, "chain: block timestamp %d too far in the future", b.Header.Timestamp)
	}
	mtp := c.medianTimePast(prev)
	if b.Header.Timestamp <= mtp {
		return consensuserr.Newf(consensuserr.ErrInvalidStructure, "chain: block timestamp %d not greater than median time past %d", b.Header.Timestamp, mtp)
	}
	return nil
}

// medianTimePast returns the median of the last MedianTimePastWindow
// timestamps ending at and including anchor, walking anchor's ancestors
// through blocksByHash.
func (c *Chain) medianTimePast(anchor *block.Block) int64 {
	timestamps := make([]int64, 0, MedianTimePastWindow)
	cur := anchor
	for i := 0; i < MedianTimePastWindow; i++ {
		timestamps = append(timestamps, cur.Header.Timestamp)
		if cur.Header.PreviousHash.IsZero() {
			break
		}
		parent, ok := c.blocksByHash[cur.Header.PreviousHash]
		if !ok {
			break
		}
		cur = parent
	}
	return block.MedianTimestamp(timestamps)
}

func (c *Chain) checkPoW(b *block.Block) error {
	ok, err := block.CheckProofOfWork(&b.Header)
	if err != nil {
		return consensuserr.Newf(consensuserr.ErrInvalidPoW, "chain: %v", err)
	}
	if !ok {
		return consensuserr.New(consensuserr.ErrInvalidPoW, "chain: block hash does not satisfy proof of work")
	}
	return nil
}

func (c *Chain) checkMerkle(b *block.Block) error {
	if b.ComputeMerkleRoot() != b.Header.MerkleRoot {
		return consensuserr.New(consensuserr.ErrMerkleMismatch, "chain: recomputed merkle root differs from header")
	}
	return nil
}

// validateAndConnect validates b's transactions and coinbase cap and, on success, applies the
// block to UTXO/mempool/address-index/chain state. It does not check proof of work or the merkle
// root. Used both for direct tip extension and reorg replay.
func (c *Chain) validateAndConnect(b *block.Block) error {
	seen := make(map[utxo.Outpoint]struct{})
	var totalFees uint64
	txIDs := make([]crypto.Hash, 0, len(b.Transactions))

	nonCoinbase := b.Transactions[1:]
	for _, tx := range nonCoinbase {
		if err := transaction.ValidateStructure(tx); err != nil {
			return err
		}
		for _, in := range tx.Inputs {
			op := utxo.Outpoint{TxID: in.TxID, Vout: in.Vout}
			if _, dup := seen[op]; dup {
				return consensuserr.New(consensuserr.ErrDoubleSpend, "chain: two transactions in the same block spend the same outpoint")
			}
			seen[op] = struct{}{}
		}
		fee, _, err := c.checkInputsAgainstUTXO(tx)
		if err != nil {
			return err
		}
		totalFees += uint64(fee)
	}

	currentSupply := reward.GenesisAllocation + c.issuedRewards
	nominalReward := reward.RewardAt(b.Header.Index, currentSupply)
	coinbase := b.Transactions[0]
	coinbaseTotal, err := coinbase.OutputSum()
	if err != nil {
		return consensuserr.New(consensuserr.ErrInvalidStructure, "chain: coinbase output overflow")
	}
	if uint64(coinbaseTotal) > nominalReward+totalFees {
		logger.ChainLog.Errorf("block %d coinbase %d exceeds reward %d + fees %d", b.Header.Index, coinbaseTotal, nominalReward, totalFees)
		return consensuserr.New(consensuserr.ErrCoinbaseOverflow, "chain: coinbase output exceeds reward plus fees")
	}

	var consumedEntries []*utxo.Entry
	for _, tx := range nonCoinbase {
		ops := make([]utxo.Outpoint, len(tx.Inputs))
		for i, in := range tx.Inputs {
			ops[i] = utxo.Outpoint{TxID: in.TxID, Vout: in.Vout}
		}
		entries, err := c.cfg.UTXOSet.ConsumeAndFinalize(tx.TxID(), ops)
		if err != nil {
			return consensuserr.Newf(consensuserr.ErrStorageError, "chain: consume inputs: %v", err)
		}
		consumedEntries = append(consumedEntries, entries...)
	}
	for _, tx := range b.Transactions {
		for vout, out := range tx.Outputs {
			if err := c.cfg.UTXOSet.AddUTXO(out.Address, tx.TxID(), uint32(vout), out.Amount, nil); err != nil {
				return consensuserr.Newf(consensuserr.ErrStorageError, "chain: add utxo: %v", err)
			}
		}
	}

	for i, tx := range b.Transactions {
		txID := tx.TxID()
		txIDs = append(txIDs, txID)
		c.cfg.Mempool.RemoveIncluded([]crypto.Hash{txID})
		if err := c.cfg.AddressIndex.IndexTransaction(tx, b.Header.Index, uint32(i), b.Header.Timestamp); err != nil {
			return err
		}
	}

	hash := b.Header.Hash()
	work, err := block.Work(b.Header.Difficulty)
	if err != nil {
		return err
	}
	parentWork := c.workByHash[b.Header.PreviousHash]
	cumulative := new(big.Int).Add(parentWork, work)

	c.blocksByHash[hash] = b
	c.workByHash[hash] = cumulative
	c.metaByHash[hash] = connectMeta{rewardIssued: nominalReward, feesTotal: totalFees, txIDs: txIDs, consumedEntries: consumedEntries}
	c.canonical[b.Header.Index] = b
	c.indexOfHash[hash] = b.Header.Index
	c.tipIndex = b.Header.Index
	c.issuedRewards += nominalReward

	for _, resolved := range txIDs {
		c.cfg.Mempool.ResolveOrphans(resolved, false)
	}

	logger.ChainLog.Infof("connected block %d (%x), %d tx, reward %d, fees %d", b.Header.Index, hash, len(b.Transactions), nominalReward, totalFees)
	return nil
}

func (c *Chain) checkInputsAgainstUTXO(tx *transaction.Transaction) (uint64, []utxo.Outpoint, error) {
	ops := make([]utxo.Outpoint, len(tx.Inputs))
	var totalIn uint64
	for i, in := range tx.Inputs {
		op := utxo.Outpoint{TxID: in.TxID, Vout: in.Vout}
		entry, ok := c.cfg.UTXOSet.Get(op)
		if !ok {
			return 0, nil, consensuserr.Newf(consensuserr.ErrUTXONotFound, "chain: input %x:%d not found", in.TxID, in.Vout)
		}
		if entry.Spent {
			return 0, nil, consensuserr.New(consensuserr.ErrDoubleSpend, "chain: input already spent")
		}
		if entry.Address != tx.Sender {
			return 0, nil, consensuserr.New(consensuserr.ErrInvalidStructure, "chain: input does not belong to sender")
		}
		totalIn += uint64(entry.Amount)
		ops[i] = op
	}
	outSum, err := tx.OutputSum()
	if err != nil {
		return 0, nil, consensuserr.New(consensuserr.ErrInvalidStructure, "chain: output overflow")
	}
	required := uint64(outSum) + uint64(tx.Fee)
	if totalIn < required {
		return 0, nil, consensuserr.Newf(consensuserr.ErrInsufficientFunds, "chain: inputs %d below outputs+fee %d", totalIn, required)
	}
	return uint64(tx.Fee), ops, nil
}
