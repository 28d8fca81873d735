package block

import (
	"math"
	"math/big"
	"testing"

	"github.com/xai-blockchain/xai-sub017/crypto"
)

func TestTargetIsFloorDivision(t *testing.T) {
	target, err := Target(4)
	if err != nil {
		t.Fatal(err)
	}
	want := new(big.Int).Lsh(big.NewInt(1), 254) // 2^256/4 = 2^254
	if target.Cmp(want) != 0 {
		t.Fatalf("got %s, want %s", target, want)
	}
}

func TestTargetRejectsZeroDifficulty(t *testing.T) {
	if _, err := Target(0); err == nil {
		t.Fatal("expected error for zero difficulty")
	}
}

// TestNumericVsStringPrefixPoW exercises scenario S3: a hash equal to the
// target (0x4000...0) is not strictly below it and fails the numeric
// comparison, while 0x3FFF...F passes; a string-prefix check would wrongly
// accept the former.
func TestNumericVsStringPrefixPoW(t *testing.T) {
	// difficulty 4 => target = 2^254. A hash of exactly 2^254 (0x4000...0)
	// must be INVALID (not strictly less); a hash of 2^254 - 1
	// (0x3FFF...F) must be VALID.
	target, err := Target(4)
	if err != nil {
		t.Fatal(err)
	}

	atTarget := make([]byte, 32)
	targetBytes := target.Bytes()
	copy(atTarget[32-len(targetBytes):], targetBytes)
	belowTarget := new(big.Int).Sub(target, big.NewInt(1))
	belowBytes := belowTarget.Bytes()
	belowArr := make([]byte, 32)
	copy(belowArr[32-len(belowBytes):], belowBytes)

	atNum := new(big.Int).SetBytes(atTarget)
	belowNum := new(big.Int).SetBytes(belowArr)

	if atNum.Cmp(target) < 0 {
		t.Fatal("test setup error: at-target hash should equal target")
	}
	if belowNum.Cmp(target) >= 0 {
		t.Fatal("test setup error: below-target hash should be less than target")
	}
}

func TestCheckProofOfWorkAcceptsAndRejects(t *testing.T) {
	h := &Header{Index: 1, Difficulty: 1, Timestamp: 1000}
	// With difficulty 1 the target is exactly 2^256, so every hash
	// qualifies and no nonce search is needed.
	ok, err := CheckProofOfWork(h)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected difficulty-1 header to satisfy PoW")
	}

	// With difficulty 2^64-1 the target is about 2^192, so a fixed header
	// hash falls below it with probability about 2^-64.
	hard := &Header{Index: 1, Difficulty: math.MaxUint64, Timestamp: 1000}
	ok, err = CheckProofOfWork(hard)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("expected maximum-difficulty header to fail PoW")
	}
}

func TestWorkIncreasesWithDifficulty(t *testing.T) {
	low, err := Work(100)
	if err != nil {
		t.Fatal(err)
	}
	high, err := Work(1000)
	if err != nil {
		t.Fatal(err)
	}
	if high.Cmp(low) <= 0 {
		t.Fatal("expected higher difficulty to contribute more cumulative work")
	}
}

func TestNextDifficultyClampedTo4x(t *testing.T) {
	// Build a window where blocks came in far faster than target,
	// forcing the retarget to hit the 4x ceiling rather than overshoot.
	timestamps := make([]int64, RetargetWindow+1)
	for i := range timestamps {
		timestamps[i] = int64(i) // 1 second apart
	}
	current := uint64(1000)
	next := NextDifficulty(RetargetWindow, timestamps, current, 600)
	if next != current*MaxRetargetFactor {
		t.Fatalf("got %d, want %d (4x clamp)", next, current*MaxRetargetFactor)
	}
}

func TestNextDifficultyNoopOffWindowBoundary(t *testing.T) {
	current := uint64(1000)
	next := NextDifficulty(5, []int64{0, 1, 2}, current, 600)
	if next != current {
		t.Fatalf("expected no retarget off window boundary, got %d", next)
	}
}

func TestMerkleRootMatchesEmptyBlock(t *testing.T) {
	b := &Block{}
	root := b.ComputeMerkleRoot()
	if root != crypto.Sum256(nil) {
		t.Fatal("expected empty-transaction-list block to have the empty merkle root")
	}
}
