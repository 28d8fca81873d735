// Package reward implements the supply cap and halving schedule,
// modeled on CalcBlockSubsidy (blockdag/validate.go),
// generalized from a fixed base subsidy to a genesis-allocation
// and remaining-supply-ceiling-aware schedule.
package reward

import "github.com/xai-blockchain/xai-sub017/amount"

// MaxSupply is S_max in whole units.
const MaxSupply uint64 = amount.MaxSupply

// MaxSupplyBaseUnits is S_max in base units.
const MaxSupplyBaseUnits uint64 = amount.MaxSupplyBaseUnits

// GenesisAllocation is G = S_max / 2, pre-mined at genesis.
const GenesisAllocation uint64 = MaxSupplyBaseUnits / 2

// InitialReward is R0 = 12 units, expressed in base units.
const InitialReward uint64 = 12 * amount.Unit

// HalvingInterval is H, the approximate number of blocks per year at the
// network's target block time ( "≈ one year in blocks").
// Grounded on a 10-minute target block time: 6 blocks/hour * 24 * 365.
const HalvingInterval uint64 = 6 * 24 * 365

// DustThreshold is the reward floor below which R(h) is clamped to zero:
// below a dust threshold of 2^-26 of a unit, R(h)=0. 2^-26 of a
// unit is 10^8/2^26 base units, rounded up to 2 since reward amounts are
// integers.
const DustThreshold uint64 = 2

// RewardAt computes R(h) = max(0, min(R0 * 2^floor(-h/H), S_max -
// currentSupply)), clamped to zero below DustThreshold.
// currentSupply is the total base units already issued (including the
// genesis allocation) before this reward is minted.
func RewardAt(height uint64, currentSupply uint64) uint64 {
	halvings := height / HalvingInterval
	var nominal uint64
	if halvings >= 64 {
		nominal = 0
	} else {
		nominal = InitialReward >> halvings
	}

	if nominal < DustThreshold {
		nominal = 0
	}

	remaining := uint64(0)
	if MaxSupplyBaseUnits > currentSupply {
		remaining = MaxSupplyBaseUnits - currentSupply
	}
	if nominal > remaining {
		return remaining
	}
	return nominal
}

// CumulativeSupplyInvariant reports whether genesisAllocation plus every
// reward issued so far stays within MaxSupplyBaseUnits. Callers accumulate
// issuedRewards as blocks are connected; this is a pure check suitable for
// assertions and tests.
func CumulativeSupplyInvariant(genesisAllocation, issuedRewards uint64) bool {
	total := genesisAllocation + issuedRewards
	return total >= genesisAllocation && total <= MaxSupplyBaseUnits
}
