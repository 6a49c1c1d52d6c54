package whirlpool

import (
	"math"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
)

func x64(f float64) *big.Int {
	scaled, _ := new(big.Float).Mul(
		big.NewFloat(f),
		new(big.Float).SetInt(new(big.Int).Lsh(big.NewInt(1), 64)),
	).Int(nil)
	return scaled
}

func zeroGrowthPosition(liquidity int64, lower, upper int32) *Position {
	return &Position{
		Liquidity:            big.NewInt(liquidity),
		TickLower:            lower,
		TickUpper:            upper,
		FeeGrowthCheckpointA: big.NewInt(0),
		FeeGrowthCheckpointB: big.NewInt(0),
		RewardInfos: [NumRewards]PositionRewardInfo{
			{GrowthInsideCheckpoint: big.NewInt(0)},
			{GrowthInsideCheckpoint: big.NewInt(0)},
			{GrowthInsideCheckpoint: big.NewInt(0)},
		},
	}
}

func flatPool(sqrtPrice float64) *Whirlpool {
	return &Whirlpool{
		SqrtPrice:        x64(sqrtPrice),
		FeeGrowthGlobalA: big.NewInt(0),
		FeeGrowthGlobalB: big.NewInt(0),
		RewardInfos: [NumRewards]WhirlpoolRewardInfo{
			{GrowthGlobalX64: big.NewInt(0)},
			{GrowthGlobalX64: big.NewInt(0)},
			{GrowthGlobalX64: big.NewInt(0)},
		},
	}
}

func TestQuotePositionInRange(t *testing.T) {
	position := zeroGrowthPosition(1_000_000, -100, 100)
	pool := flatPool(1.0) // tick 0, inside the range

	quote := QuotePosition(position, pool)

	sqrtLower := sqrtPriceForTick(-100)
	sqrtUpper := sqrtPriceForTick(100)
	wantA := 1_000_000 * (sqrtUpper - 1.0) / (1.0 * sqrtUpper)
	wantB := 1_000_000 * (1.0 - sqrtLower)

	assert.InDelta(t, wantA, quote.TokenAmountA, 1e-6)
	assert.InDelta(t, wantB, quote.TokenAmountB, 1e-6)
	assert.Greater(t, quote.TokenAmountA, 0.0)
	assert.Greater(t, quote.TokenAmountB, 0.0)
}

func TestQuotePositionBelowRange(t *testing.T) {
	position := zeroGrowthPosition(1_000_000, 100, 200)
	pool := flatPool(sqrtPriceForTick(0)) // below the range: all token A

	quote := QuotePosition(position, pool)

	sqrtLower := sqrtPriceForTick(100)
	sqrtUpper := sqrtPriceForTick(200)
	wantA := 1_000_000 * (sqrtUpper - sqrtLower) / (sqrtLower * sqrtUpper)

	assert.InDelta(t, wantA, quote.TokenAmountA, 1e-6)
	assert.Zero(t, quote.TokenAmountB)
}

func TestQuotePositionAboveRange(t *testing.T) {
	position := zeroGrowthPosition(1_000_000, -200, -100)
	pool := flatPool(sqrtPriceForTick(0)) // above the range: all token B

	quote := QuotePosition(position, pool)

	sqrtLower := sqrtPriceForTick(-200)
	sqrtUpper := sqrtPriceForTick(-100)
	wantB := 1_000_000 * (sqrtUpper - sqrtLower)

	assert.Zero(t, quote.TokenAmountA)
	assert.InDelta(t, wantB, quote.TokenAmountB, 1e-6)
}

func TestQuoteFeesAddGrowthDelta(t *testing.T) {
	position := zeroGrowthPosition(1000, -100, 100)
	position.FeeOwedA = 500
	position.FeeOwedB = 600
	position.FeeGrowthCheckpointA = x64(1.0)

	pool := flatPool(1.0)
	pool.FeeGrowthGlobalA = x64(3.0) // 2.0 growth per liquidity unit since checkpoint

	quote := QuotePosition(position, pool)

	assert.InDelta(t, 500+2.0*1000, quote.FeeA, 1e-6)
	assert.InDelta(t, 600.0, quote.FeeB, 1e-6)
}

func TestQuoteClampsCheckpointAboveGlobal(t *testing.T) {
	position := zeroGrowthPosition(1000, -100, 100)
	position.FeeOwedA = 123
	position.FeeGrowthCheckpointA = x64(5.0)

	pool := flatPool(1.0)
	pool.FeeGrowthGlobalA = x64(1.0)

	quote := QuotePosition(position, pool)
	assert.InDelta(t, 123.0, quote.FeeA, 1e-9)
}

func TestQuoteRewards(t *testing.T) {
	position := zeroGrowthPosition(1000, -100, 100)
	position.RewardInfos[1].AmountOwed = 50

	pool := flatPool(1.0)
	pool.RewardInfos[1].Mint = pk(0xC1)
	pool.RewardInfos[1].GrowthGlobalX64 = x64(0.5)

	quote := QuotePosition(position, pool)

	// Slot 0 has no mint configured and stays zero.
	assert.True(t, quote.Rewards[0].Mint.IsZero())
	assert.Equal(t, pk(0xC1), quote.Rewards[1].Mint)
	assert.InDelta(t, 50+0.5*1000, quote.Rewards[1].Amount, 1e-6)
}

func TestQuoteZeroLiquidity(t *testing.T) {
	position := zeroGrowthPosition(0, -100, 100)
	pool := flatPool(1.0)

	quote := QuotePosition(position, pool)
	assert.Zero(t, quote.TokenAmountA)
	assert.Zero(t, quote.TokenAmountB)
	assert.True(t, math.Abs(quote.FeeA) < 1e-12)
}
