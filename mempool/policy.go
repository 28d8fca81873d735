package mempool

import (
	"github.com/xai-blockchain/xai-sub017/amount"
	"github.com/xai-blockchain/xai-sub017/consensuserr"
	"github.com/xai-blockchain/xai-sub017/crypto"
	"github.com/xai-blockchain/xai-sub017/logger"
)

// applyRBFLocked implements the replace-by-fee rule: a newly
// admitted entry conflicting with one or more already-pooled transactions
// over a shared input is accepted only if rbfEnabled was requested by the
// submitter AND its fee rate beats every conflicting transaction's fee
// rate by at least RBFFeeRateMultiplier AND its absolute fee meets or
// exceeds the replaced transaction's absolute fee plus a minimum relay
// increment (Policy.MinRelayFeeRate times the replacement's size), so a
// bump that only wins on rate against a much smaller replaced transaction
// still pays for the extra relay/validation work network-wide. On
// acceptance, every conflicting transaction is evicted. Caller holds
// p.mtx for writing.
func (p *Pool) applyRBFLocked(candidate *Entry, conflicting map[crypto.Hash]struct{}) error {
	if !candidate.RBFEnabled {
		return consensuserr.New(consensuserr.ErrDoubleSpend, "mempool: conflicting input and replacement not requested")
	}

	minMultiplier := p.cfg.Policy.RBFFeeRateMultiplier
	if minMultiplier <= 0 {
		minMultiplier = 1.0
	}
	minIncrement := amount.Amount(p.cfg.Policy.MinRelayFeeRate * float64(candidate.SizeBytes))

	for owner := range conflicting {
		old, ok := p.byTxID[owner]
		if !ok {
			continue
		}
		if candidate.FeeRate() < old.FeeRate()*minMultiplier {
			return consensuserr.Newf(consensuserr.ErrDoubleSpend,
				"mempool: replacement fee rate %.4f below required %.4f", candidate.FeeRate(), old.FeeRate()*minMultiplier)
		}
		required, err := old.Fee.Add(minIncrement)
		if err != nil {
			return consensuserr.New(consensuserr.ErrInvalidStructure, "mempool: replacement fee overflow")
		}
		if candidate.Fee.Cmp(required) < 0 {
			return consensuserr.Newf(consensuserr.ErrDoubleSpend,
				"mempool: replacement fee %d below required minimum %d", candidate.Fee, required)
		}
	}

	for owner := range conflicting {
		logger.MempoolLog.Debugf("evicting tx %x: replaced by fee", owner)
		p.removeLocked(owner)
	}
	return nil
}
