// internal/ledger/ledger.go
package ledger

import (
	"errors"
	"fmt"
	"math"
	"math/big"
	"time"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/whirlpool-pnl/internal/whirlpool"
)

var (
	// ErrMissingPrice marks a (mint, time) pair with no resolvable price.
	// Fatal for the position; the ledger never substitutes a price.
	ErrMissingPrice = errors.New("missing price")

	// ErrMalformedSequence marks an event sequence without exactly one
	// open event or with more than one close event.
	ErrMalformedSequence = errors.New("malformed event sequence")

	// ErrInvalidWithdrawnFraction marks a decrease whose liquidity delta
	// falls outside the currently deposited total.
	ErrInvalidWithdrawnFraction = errors.New("withdrawn fraction outside (0, 1]")
)

// PriceSource resolves fiat prices. PriceAt fails with a wrapped
// ErrMissingPrice when the pair cannot be resolved.
type PriceSource interface {
	PriceAt(mint solana.PublicKey, at time.Time) (float64, error)
	CurrentPrice(mint solana.PublicKey) (float64, error)
}

// TokenInfoSource resolves token display decimals.
type TokenInfoSource interface {
	Decimals(mint solana.PublicKey) (uint8, error)
}

// Totals are the accumulated position-scoped sums, fiat-denominated.
// All fields are non-negative except PaidRent, which goes negative when
// the close refund exceeds what opening cost.
type Totals struct {
	DepositedValue        float64
	WithdrawnValue        float64
	ForgoneValue          float64
	PositionSize          float64 // peak of deposited minus withdrawn
	CollectedFeesValue    float64
	CollectedRewardsValue float64
	PaidRent              float64
	TransactionCost       float64
}

// ValidateSequence checks the open/close invariant: exactly one open
// event (positions whose opening falls outside the transaction window are
// not recoverable) and at most one close.
func ValidateSequence(events []whirlpool.Event) error {
	var opens, closes int
	for _, ev := range events {
		switch ev.(type) {
		case *whirlpool.OpenPositionEvent:
			opens++
		case *whirlpool.ClosePositionEvent:
			closes++
		}
	}
	if opens != 1 {
		return fmt.Errorf("%w: %d open events", ErrMalformedSequence, opens)
	}
	if closes > 1 {
		return fmt.Errorf("%w: %d close events", ErrMalformedSequence, closes)
	}
	return nil
}

// Account runs the single forward pass over one position's time-sorted
// events. It tracks the rolling un-withdrawn token amounts and total
// deposited liquidity; each partial withdrawal removes its
// liquidity-weighted share of the rolling balances, and that share's
// value at withdrawal time is what holding the tokens would have
// yielded. Whatever remains after the pass is priced at the current
// price: those tokens are still locked in.
func Account(events []whirlpool.Event, prices PriceSource, tokens TokenInfoSource, logger *zap.Logger) (*Totals, error) {
	totals := &Totals{}

	var (
		rollingA, rollingB float64 // raw token units not yet withdrawn
		totalLiquidity     = new(big.Int)
		mintA, mintB       solana.PublicKey
		costedSignatures   = make(map[solana.Signature]struct{})
	)

	for _, ev := range events {
		if err := addTransactionCost(totals, costedSignatures, ev.Meta(), prices); err != nil {
			return nil, err
		}

		switch e := ev.(type) {
		case *whirlpool.OpenPositionEvent:
			rentValue, err := lamportsValue(e.RentFee, e.BlockTime, prices)
			if err != nil {
				return nil, err
			}
			totals.PaidRent += rentValue

		case *whirlpool.IncreaseLiquidityEvent:
			mintA, mintB = e.TokenAMint, e.TokenBMint
			valueA, err := tokenValue(e.TokenAIn, e.TokenAMint, e.BlockTime, prices, tokens)
			if err != nil {
				return nil, err
			}
			valueB, err := tokenValue(e.TokenBIn, e.TokenBMint, e.BlockTime, prices, tokens)
			if err != nil {
				return nil, err
			}

			totals.DepositedValue += valueA + valueB
			rollingA += float64(e.TokenAIn)
			rollingB += float64(e.TokenBIn)
			totalLiquidity.Add(totalLiquidity, e.LiquidityDelta)
			totals.PositionSize = math.Max(totals.PositionSize, totals.DepositedValue-totals.WithdrawnValue)

		case *whirlpool.DecreaseLiquidityEvent:
			valueA, err := tokenValue(e.TokenAOut, e.TokenAMint, e.BlockTime, prices, tokens)
			if err != nil {
				return nil, err
			}
			valueB, err := tokenValue(e.TokenBOut, e.TokenBMint, e.BlockTime, prices, tokens)
			if err != nil {
				return nil, err
			}
			totals.WithdrawnValue += valueA + valueB

			fraction, err := withdrawnFraction(e.LiquidityDelta, totalLiquidity)
			if err != nil {
				return nil, err
			}

			removedA := rollingA * fraction
			removedB := rollingB * fraction
			forgoneA, err := rawValue(removedA, e.TokenAMint, e.BlockTime, prices, tokens)
			if err != nil {
				return nil, err
			}
			forgoneB, err := rawValue(removedB, e.TokenBMint, e.BlockTime, prices, tokens)
			if err != nil {
				return nil, err
			}

			totals.ForgoneValue += forgoneA + forgoneB
			rollingA -= removedA
			rollingB -= removedB
			totalLiquidity.Sub(totalLiquidity, e.LiquidityDelta)

		case *whirlpool.CollectFeesEvent:
			valueA, err := tokenValue(e.TokenAFee, e.TokenAMint, e.BlockTime, prices, tokens)
			if err != nil {
				return nil, err
			}
			valueB, err := tokenValue(e.TokenBFee, e.TokenBMint, e.BlockTime, prices, tokens)
			if err != nil {
				return nil, err
			}
			totals.CollectedFeesValue += valueA + valueB

		case *whirlpool.CollectRewardEvent:
			value, err := tokenValue(e.RewardAmount, e.RewardMint, e.BlockTime, prices, tokens)
			if err != nil {
				return nil, err
			}
			totals.CollectedRewardsValue += value

		case *whirlpool.ClosePositionEvent:
			rentValue, err := lamportsValue(e.ReclaimedRent, e.BlockTime, prices)
			if err != nil {
				return nil, err
			}
			totals.PaidRent -= rentValue
		}
	}

	// Tokens never withdrawn are still forgone exposure, priced now.
	if rollingA > 0 && !mintA.IsZero() {
		value, err := currentRawValue(rollingA, mintA, prices, tokens)
		if err != nil {
			return nil, err
		}
		totals.ForgoneValue += value
	}
	if rollingB > 0 && !mintB.IsZero() {
		value, err := currentRawValue(rollingB, mintB, prices, tokens)
		if err != nil {
			return nil, err
		}
		totals.ForgoneValue += value
	}

	logger.Debug("Accounting pass complete",
		zap.Float64("deposited_value", totals.DepositedValue),
		zap.Float64("withdrawn_value", totals.WithdrawnValue),
		zap.Float64("forgone_value", totals.ForgoneValue),
		zap.Float64("transaction_cost", totals.TransactionCost))

	return totals, nil
}

// withdrawnFraction computes liquidityDelta over the rolling total.
// Out-of-range fractions indicate a broken sequence (a decrease larger
// than what was ever deposited) and fail loudly rather than clamp.
func withdrawnFraction(delta, total *big.Int) (float64, error) {
	if delta.Sign() <= 0 || total.Sign() <= 0 || delta.Cmp(total) > 0 {
		return 0, fmt.Errorf("%w: delta=%s total=%s", ErrInvalidWithdrawnFraction, delta, total)
	}
	fraction, _ := new(big.Float).Quo(
		new(big.Float).SetInt(delta),
		new(big.Float).SetInt(total),
	).Float64()
	return fraction, nil
}

// addTransactionCost prices the transaction fee once per signature; one
// transaction may carry several decoded events.
func addTransactionCost(totals *Totals, seen map[solana.Signature]struct{}, meta whirlpool.EventMeta, prices PriceSource) error {
	if _, ok := seen[meta.Signature]; ok {
		return nil
	}
	seen[meta.Signature] = struct{}{}

	feeValue, err := lamportsValue(meta.TxFee, meta.BlockTime, prices)
	if err != nil {
		return err
	}
	totals.TransactionCost += feeValue
	return nil
}

func lamportsValue(lamports uint64, at time.Time, prices PriceSource) (float64, error) {
	price, err := prices.PriceAt(whirlpool.WrappedSOLMint, at)
	if err != nil {
		return 0, fmt.Errorf("%w: SOL at %s: %v", ErrMissingPrice, at.UTC().Format(time.RFC3339), err)
	}
	return float64(lamports) / whirlpool.LamportsPerSOL * price, nil
}

func tokenValue(amount uint64, mint solana.PublicKey, at time.Time, prices PriceSource, tokens TokenInfoSource) (float64, error) {
	return rawValue(float64(amount), mint, at, prices, tokens)
}

func rawValue(amount float64, mint solana.PublicKey, at time.Time, prices PriceSource, tokens TokenInfoSource) (float64, error) {
	if amount == 0 {
		return 0, nil
	}
	display, err := toDisplay(amount, mint, tokens)
	if err != nil {
		return 0, err
	}
	price, err := prices.PriceAt(mint, at)
	if err != nil {
		return 0, fmt.Errorf("%w: %s at %s: %v", ErrMissingPrice, mint, at.UTC().Format(time.RFC3339), err)
	}
	return display * price, nil
}

func currentRawValue(amount float64, mint solana.PublicKey, prices PriceSource, tokens TokenInfoSource) (float64, error) {
	display, err := toDisplay(amount, mint, tokens)
	if err != nil {
		return 0, err
	}
	price, err := prices.CurrentPrice(mint)
	if err != nil {
		return 0, fmt.Errorf("%w: %s current: %v", ErrMissingPrice, mint, err)
	}
	return display * price, nil
}

func toDisplay(amount float64, mint solana.PublicKey, tokens TokenInfoSource) (float64, error) {
	decimals, err := tokens.Decimals(mint)
	if err != nil {
		return 0, fmt.Errorf("failed to resolve decimals for %s: %w", mint, err)
	}
	return amount / math.Pow10(int(decimals)), nil
}
