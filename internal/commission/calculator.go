// Package commission computes multi-level referral commissions from a single
// usage amount. Nothing in this file does I/O.
package commission

import (
	"errors"

	"github.com/shopspring/decimal"
)

const (
	// MinRewardAmount is the smallest amount worth paying at any level.
	MinRewardAmount = 10
	// MaxLevels bounds how far up the referral chain commission travels.
	MaxLevels = 10

	DefaultFirstLevelRatePercent = 10
	DefaultNthLevelDenominator   = 20
)

var (
	ErrInvalidRate        = errors.New("first level rate must be within [0, 100]")
	ErrInvalidDenominator = errors.New("nth level denominator must be >= 2")
	ErrNegativeAmount     = errors.New("usage amount must not be negative")
)

var hundred = decimal.NewFromInt(100)

// LevelReward is the commission owed at one level of the chain, level 1 being the direct referrer.
type LevelReward struct {
	Level  int   `json:"level"`
	Amount int64 `json:"amount"`
}

// CalculateRewards splits usageAmount into per-level commissions.
//
// Level 1 receives floor(amount * rate / 100). The rest of the amount forms a
// pool; level L (2..MaxLevels) receives floor(pool / denominator^(L-1)).
// Level 1 is dropped when below MinRewardAmount, and the deeper levels stop at
// the first one below it.
func CalculateRewards(usageAmount int64, firstLevelRatePercent decimal.Decimal, nthLevelDenominator int64) ([]LevelReward, error) {
	if usageAmount < 0 {
		return nil, ErrNegativeAmount
	}
	if firstLevelRatePercent.IsNegative() || firstLevelRatePercent.GreaterThan(hundred) {
		return nil, ErrInvalidRate
	}
	if nthLevelDenominator < 2 {
		return nil, ErrInvalidDenominator
	}

	amount := decimal.NewFromInt(usageAmount)
	var out []LevelReward

	first := floorDiv(amount.Mul(firstLevelRatePercent), hundred)
	if first >= MinRewardAmount {
		out = append(out, LevelReward{Level: 1, Amount: first})
	}

	// pool = amount * (100 - rate) / 100; each level divides the exact
	// numerator once so no intermediate quotient is rounded.
	poolNumerator := amount.Mul(hundred.Sub(firstLevelRatePercent))
	denominator := decimal.NewFromInt(nthLevelDenominator)
	divisor := hundred
	for level := 2; level <= MaxLevels; level++ {
		divisor = divisor.Mul(denominator)
		v := floorDiv(poolNumerator, divisor)
		if v < MinRewardAmount {
			break
		}
		out = append(out, LevelReward{Level: level, Amount: v})
	}
	return out, nil
}

// floorDiv is floor(n / d) for n >= 0, d > 0, computed without rounding.
func floorDiv(n, d decimal.Decimal) int64 {
	q, _ := n.QuoRem(d, 0)
	return q.IntPart()
}

// Total sums the amounts of rewards.
func Total(rewards []LevelReward) int64 {
	var sum int64
	for _, r := range rewards {
		sum += r.Amount
	}
	return sum
}
