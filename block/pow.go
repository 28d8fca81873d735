package block

import (
	"math/big"

	"github.com/pkg/errors"

	"github.com/xai-blockchain/xai-sub017/logger"
)

// twoPow256 is 2^256, the numeric space block hashes are drawn from.
var twoPow256 = new(big.Int).Lsh(big.NewInt(1), 256)

// Target returns T = floor(2^256 / D) for a positive integer difficulty D.
// Implementations MUST compare this as an integer, never as
// a hex-string prefix, since a string-prefix test wrongly accepts hashes
// whose high bits are nonzero within the target's leading nibble.
func Target(difficulty uint64) (*big.Int, error) {
	if difficulty == 0 {
		return nil, errors.New("block: difficulty must be a positive integer")
	}
	d := new(big.Int).SetUint64(difficulty)
	return new(big.Int).Div(twoPow256, d), nil
}

// CheckProofOfWork reports whether header satisfies proof of work: the
// integer value of its hash is strictly less than Target(header.Difficulty).
func CheckProofOfWork(h *Header) (bool, error) {
	target, err := Target(h.Difficulty)
	if err != nil {
		return false, err
	}
	hash := h.Hash()
	hashNum := new(big.Int).SetBytes(hash[:])
	ok := hashNum.Cmp(target) < 0
	if !ok {
		logger.PowLog.Debugf("block %d hash %x (%s) is not below target %s", h.Index, hash, hashNum, target)
	}
	return ok, nil
}

// Work returns a block's contribution to cumulative chain work:
// 2^256 / T, computed from its difficulty. It is computed from the
// actual (floor-rounded) target rather than simply returning difficulty, so
// that small rounding differences at low difficulties still accumulate
// correctly.
func Work(difficulty uint64) (*big.Int, error) {
	target, err := Target(difficulty)
	if err != nil {
		return nil, err
	}
	if target.Sign() == 0 {
		return new(big.Int).Set(twoPow256), nil
	}
	return new(big.Int).Div(twoPow256, target), nil
}
