package chain

import (
	"math/big"

	"github.com/xai-blockchain/xai-sub017/block"
	"github.com/xai-blockchain/xai-sub017/consensuserr"
	"github.com/xai-blockchain/xai-sub017/crypto"
	"github.com/xai-blockchain/xai-sub017/logger"
	"github.com/xai-blockchain/xai-sub017/utxo"
)

// storeSideBlock records a block that does not extend the canonical tip,
// computing its cumulative work from its (already known) parent without
// touching UTXO/mempool/address-index state. Its transactions are only
// validated against live state if/when a reorg actually adopts it.
func (c *Chain) storeSideBlock(b *block.Block, parent *block.Block) error {
	hash := b.Header.Hash()
	work, err := block.Work(b.Header.Difficulty)
	if err != nil {
		return err
	}
	parentWork, ok := c.workByHash[parent.Header.Hash()]
	if !ok {
		return consensuserr.New(consensuserr.ErrInvalidStructure, "chain: unknown parent cumulative work")
	}
	cumulative := new(big.Int).Add(parentWork, work)
	c.blocksByHash[hash] = b
	c.workByHash[hash] = cumulative
	return nil
}

// sideChainOutworksTip reports whether the chain ending at hash has
// strictly greater cumulative work than the current canonical tip.
// Cumulative work, not chain length, is the fork-choice tiebreaker.
func (c *Chain) sideChainOutworksTip(hash crypto.Hash) bool {
	tipHash := c.canonical[c.tipIndex].Header.Hash()
	candidateWork, ok := c.workByHash[hash]
	if !ok {
		return false
	}
	return candidateWork.Cmp(c.workByHash[tipHash]) > 0
}

// findCommonAncestor walks both chains backward through blocksByHash until
// a shared hash is found, returning the ancestor hash and the two
// tip-to-ancestor-exclusive paths (nearest-first).
func (c *Chain) findCommonAncestor(aHash, bHash crypto.Hash) (ancestor crypto.Hash, aPath, bPath []crypto.Hash, err error) {
	visited := make(map[crypto.Hash]int) // hash -> distance from a
	cur := aHash
	for dist := 0; ; dist++ {
		visited[cur] = dist
		if cur == c.genesisHash {
			break
		}
		blk, ok := c.blocksByHash[cur]
		if !ok {
			break
		}
		cur = blk.Header.PreviousHash
	}

	cur = bHash
	bTrail := []crypto.Hash{}
	for {
		if _, ok := visited[cur]; ok {
			ancestor = cur
			break
		}
		bTrail = append(bTrail, cur)
		if cur == c.genesisHash {
			return crypto.Hash{}, nil, nil, consensuserr.New(consensuserr.ErrReorgRejected, "chain: no common ancestor found")
		}
		blk, ok := c.blocksByHash[cur]
		if !ok {
			return crypto.Hash{}, nil, nil, consensuserr.New(consensuserr.ErrReorgRejected, "chain: no common ancestor found")
		}
		cur = blk.Header.PreviousHash
	}

	cur = aHash
	for cur != ancestor {
		aPath = append(aPath, cur)
		blk := c.blocksByHash[cur]
		cur = blk.Header.PreviousHash
	}
	bPath = bTrail
	return ancestor, aPath, bPath, nil
}

// reorganizeTo adopts the chain ending at newTipHash as canonical.
// On any failure to replay the new chain, the pre-reorg state is
// restored and ErrReorgRejected is returned.
func (c *Chain) reorganizeTo(newTipHash crypto.Hash) error {
	oldTipHash := c.canonical[c.tipIndex].Header.Hash()
	ancestorHash, disconnectHashes, connectHashesNearestFirst, err := c.findCommonAncestor(oldTipHash, newTipHash)
	if err != nil {
		return err
	}
	ancestorIndex := c.indexOfHash[ancestorHash]

	if c.cfg.CheckpointDepth > 0 && c.tipIndex > c.cfg.CheckpointDepth && ancestorIndex <= c.tipIndex-c.cfg.CheckpointDepth {
		return consensuserr.Newf(consensuserr.ErrReorgRejected, "chain: reorg would disconnect past checkpoint depth (ancestor %d, tip %d)", ancestorIndex, c.tipIndex)
	}

	// connectHashesNearestFirst is ordered newTip -> ancestor; reverse to
	// ancestor -> newTip for replay order.
	connectHashes := make([]crypto.Hash, len(connectHashesNearestFirst))
	for i, h := range connectHashesNearestFirst {
		connectHashes[len(connectHashesNearestFirst)-1-i] = h
	}

	disconnected := make([]*block.Block, 0, len(disconnectHashes))
	for range disconnectHashes {
		b, err := c.disconnectTip()
		if err != nil {
			return err
		}
		disconnected = append(disconnected, b)
	}
	if err := c.cfg.AddressIndex.RollbackToBlock(ancestorIndex); err != nil {
		c.reconnectOrPanic(disconnected)
		return consensuserr.Newf(consensuserr.ErrReorgRejected, "chain: address index rollback failed: %v", err)
	}

	connected := make([]*block.Block, 0, len(connectHashes))
	for _, h := range connectHashes {
		b := c.blocksByHash[h]
		if err := c.validateAndConnect(b); err != nil {
			// Undo whatever of the new chain connected so far, then restore
			// the original chain exactly ( step 3: "abort and
			// restore the pre-reorg state atomically").
			for range connected {
				if _, undoErr := c.disconnectTip(); undoErr != nil {
					logger.ChainLog.Errorf("chain: critical failure undoing partial reorg: %v", undoErr)
				}
			}
			c.reconnectOrPanic(disconnected)
			return consensuserr.Newf(consensuserr.ErrReorgRejected, "chain: replay failed at block %d: %v", b.Header.Index, err)
		}
		connected = append(connected, b)
	}

	for _, b := range disconnected {
		for _, tx := range b.Transactions[1:] {
			if _, err := c.cfg.Mempool.AddOrAddOrphan(tx, false); err != nil {
				logger.ChainLog.Debugf("chain: disconnected transaction %x dropped from mempool: %v", tx.TxID(), err)
			}
		}
	}

	logger.ChainLog.Infof("reorganized: disconnected %d block(s), connected %d block(s), new tip %d",
		len(disconnected), len(connected), c.tipIndex)
	c.notify(ReorgEvent{Connected: connected, Disconnected: disconnected})
	return nil
}

// reconnectOrPanic restores disconnected blocks (tip-first order) after a
// failed reorg replay. These blocks were canonical and individually valid
// moments ago, so failure here indicates state corruption rather than a
// validation disagreement; it is logged at Critical rather than silently
// swallowed.
func (c *Chain) reconnectOrPanic(disconnectedTipFirst []*block.Block) {
	for i := len(disconnectedTipFirst) - 1; i >= 0; i-- {
		if err := c.validateAndConnect(disconnectedTipFirst[i]); err != nil {
			logger.ChainLog.Criticalf("chain: failed to restore pre-reorg block %d: %v", disconnectedTipFirst[i].Header.Index, err)
			return
		}
	}
}

// disconnectTip undoes the current canonical tip: restores every UTXO it
// consumed, removes every UTXO it created, reverses its reward issuance,
// and rewinds the tip pointer.
func (c *Chain) disconnectTip() (*block.Block, error) {
	b := c.canonical[c.tipIndex]
	hash := b.Header.Hash()
	meta, ok := c.metaByHash[hash]
	if !ok {
		return nil, consensuserr.New(consensuserr.ErrReorgRejected, "chain: missing connect metadata for tip")
	}

	for _, entry := range meta.consumedEntries {
		c.cfg.UTXOSet.Restore(entry)
	}
	for _, tx := range b.Transactions {
		for vout := range tx.Outputs {
			_, _ = c.cfg.UTXOSet.Consume(utxo.Outpoint{TxID: tx.TxID(), Vout: uint32(vout)})
		}
	}

	delete(c.canonical, b.Header.Index)
	delete(c.indexOfHash, hash)
	c.issuedRewards -= meta.rewardIssued
	c.tipIndex--
	return b, nil
}
