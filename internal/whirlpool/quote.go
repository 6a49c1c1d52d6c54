// internal/whirlpool/quote.go
package whirlpool

import (
	"math"
	"math/big"

	"github.com/gagliardetto/solana-go"
)

// LiveQuote is the current redeemable state of an open position: the raw
// token amounts its liquidity converts to at the pool's present price,
// plus uncollected fees and rewards. A closed or missing position quotes
// as all zeros.
type LiveQuote struct {
	TokenAmountA float64 // raw units
	TokenAmountB float64
	FeeA         float64
	FeeB         float64
	Rewards      [NumRewards]RewardQuote
}

type RewardQuote struct {
	Mint   solana.PublicKey
	Amount float64 // raw units
}

// q64 scales the pool's X64 fixed-point fields.
var q64 = new(big.Float).SetInt(new(big.Int).Lsh(big.NewInt(1), 64))

// QuotePosition computes the live quote of a position against its pool's
// current tick and price state.
func QuotePosition(position *Position, pool *Whirlpool) *LiveQuote {
	quote := &LiveQuote{}

	liquidity := bigToFloat(position.Liquidity)
	if liquidity > 0 {
		quote.TokenAmountA, quote.TokenAmountB = tokenAmountsForLiquidity(
			liquidity,
			sqrtPriceX64ToFloat(pool.SqrtPrice),
			sqrtPriceForTick(position.TickLower),
			sqrtPriceForTick(position.TickUpper),
		)
	}

	// Uncollected fees: the checkpointed owed amounts plus the pool-global
	// growth accrued since the checkpoint. The growth delta ignores
	// tick-boundary crossings (a full tick-array walk would be needed for
	// those), so it is an upper-bound estimate.
	quote.FeeA = float64(position.FeeOwedA) + growthDelta(pool.FeeGrowthGlobalA, position.FeeGrowthCheckpointA, liquidity)
	quote.FeeB = float64(position.FeeOwedB) + growthDelta(pool.FeeGrowthGlobalB, position.FeeGrowthCheckpointB, liquidity)

	for i := 0; i < NumRewards; i++ {
		info := pool.RewardInfos[i]
		if info.Mint.IsZero() {
			continue
		}
		quote.Rewards[i] = RewardQuote{
			Mint: info.Mint,
			Amount: float64(position.RewardInfos[i].AmountOwed) +
				growthDelta(info.GrowthGlobalX64, position.RewardInfos[i].GrowthInsideCheckpoint, liquidity),
		}
	}

	return quote
}

// tokenAmountsForLiquidity splits a liquidity amount into the raw token
// amounts redeemable at the current price, clamped to the position range.
func tokenAmountsForLiquidity(liquidity, sqrtCurrent, sqrtLower, sqrtUpper float64) (amountA, amountB float64) {
	switch {
	case sqrtCurrent <= sqrtLower:
		// Price below range: all token A.
		amountA = liquidity * (sqrtUpper - sqrtLower) / (sqrtLower * sqrtUpper)
	case sqrtCurrent >= sqrtUpper:
		// Price above range: all token B.
		amountB = liquidity * (sqrtUpper - sqrtLower)
	default:
		amountA = liquidity * (sqrtUpper - sqrtCurrent) / (sqrtCurrent * sqrtUpper)
		amountB = liquidity * (sqrtCurrent - sqrtLower)
	}
	return amountA, amountB
}

// sqrtPriceForTick returns sqrt(1.0001^tick).
func sqrtPriceForTick(tick int32) float64 {
	return math.Pow(1.0001, float64(tick)/2)
}

func sqrtPriceX64ToFloat(sqrtPriceX64 *big.Int) float64 {
	f := new(big.Float).SetInt(sqrtPriceX64)
	f.Quo(f, q64)
	out, _ := f.Float64()
	return out
}

// growthDelta converts an X64 fee/reward growth delta into raw token units
// for the given liquidity. Growth counters only increase, but positions
// written before a pool-side counter reset can checkpoint above the global
// value; those clamp to zero.
func growthDelta(global, checkpoint *big.Int, liquidity float64) float64 {
	if liquidity <= 0 || global.Cmp(checkpoint) <= 0 {
		return 0
	}
	delta := new(big.Float).SetInt(new(big.Int).Sub(global, checkpoint))
	delta.Quo(delta, q64)
	out, _ := delta.Float64()
	return out * liquidity
}

func bigToFloat(v *big.Int) float64 {
	out, _ := new(big.Float).SetInt(v).Float64()
	return out
}
