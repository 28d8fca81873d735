package chain

import (
	"sync"

	"github.com/xai-blockchain/xai-sub017/block"
	"github.com/xai-blockchain/xai-sub017/crypto"
	"github.com/xai-blockchain/xai-sub017/logger"
)

// orphanBlocks buffers blocks whose previous_hash is not yet known,
// indexed by the index at which they would connect.
type orphanBlocks struct {
	mtx             sync.Mutex
	byExpectedIndex map[uint64][]*block.Block
	pruneAge        uint64
}

func newOrphanBlocks(pruneAge uint64) *orphanBlocks {
	if pruneAge == 0 {
		pruneAge = 100
	}
	return &orphanBlocks{byExpectedIndex: make(map[uint64][]*block.Block), pruneAge: pruneAge}
}

// Add buffers b, keyed by the index at which it would connect.
func (o *orphanBlocks) Add(b *block.Block) {
	o.mtx.Lock()
	defer o.mtx.Unlock()
	o.byExpectedIndex[b.Header.Index] = append(o.byExpectedIndex[b.Header.Index], b)
}

// TakeMatching removes and returns every buffered block at expectedIndex
// whose previous_hash equals parentHash.
func (o *orphanBlocks) TakeMatching(expectedIndex uint64, parentHash crypto.Hash) []*block.Block {
	o.mtx.Lock()
	defer o.mtx.Unlock()

	bucket := o.byExpectedIndex[expectedIndex]
	if len(bucket) == 0 {
		return nil
	}
	var matched, rest []*block.Block
	for _, b := range bucket {
		if b.Header.PreviousHash == parentHash {
			matched = append(matched, b)
		} else {
			rest = append(rest, b)
		}
	}
	if len(rest) == 0 {
		delete(o.byExpectedIndex, expectedIndex)
	} else {
		o.byExpectedIndex[expectedIndex] = rest
	}
	return matched
}

// PruneBelow evicts every orphan buffered for an index more than
// pruneAge below tipIndex.
func (o *orphanBlocks) PruneBelow(tipIndex uint64) int {
	o.mtx.Lock()
	defer o.mtx.Unlock()

	if tipIndex < o.pruneAge {
		return 0
	}
	floor := tipIndex - o.pruneAge
	pruned := 0
	for idx, bucket := range o.byExpectedIndex {
		if idx < floor {
			pruned += len(bucket)
			delete(o.byExpectedIndex, idx)
		}
	}
	return pruned
}

// attachOrphans repeatedly connects any buffered orphan whose
// previous_hash now matches the block just connected at parentHash.
// Each newly connected block may itself
// unblock further orphans, so the scan repeats until a round finds none.
func (c *Chain) attachOrphans(parentHash crypto.Hash) {
	frontier := parentHash
	for {
		expectedIndex := c.indexOfHash[frontier] + 1
		candidates := c.orphans.TakeMatching(expectedIndex, frontier)
		if len(candidates) == 0 {
			c.orphans.PruneBelow(c.tipIndex)
			return
		}
		// Only one candidate can extend the canonical tip; extras become
		// side-chain candidates for fork choice, same as a fresh submission.
		attached := false
		for _, cand := range candidates {
			if !attached && cand.Header.PreviousHash == c.canonical[c.tipIndex].Header.Hash() {
				if err := c.checkPoW(cand); err == nil {
					if err := c.checkMerkle(cand); err == nil {
						if err := c.validateAndConnect(cand); err == nil {
							logger.ChainLog.Infof("attached orphan block %d", cand.Header.Index)
							attached = true
							frontier = cand.Header.Hash()
							continue
						}
					}
				}
			}
			if err := c.storeSideBlock(cand, c.blocksByHash[cand.Header.PreviousHash]); err == nil {
				if c.sideChainOutworksTip(cand.Header.Hash()) {
					_ = c.reorganizeTo(cand.Header.Hash())
				}
			}
		}
		if !attached {
			return
		}
	}
}
