// internal/ledger/summary.go
package ledger

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/rovshanmuradov/whirlpool-pnl/internal/whirlpool"
)

// MaterialityThreshold is the minimum deposited value, in fiat units,
// for a position to be worth analyzing. Below it the profitability
// ratios divide by a near-zero position size and mean nothing.
const MaterialityThreshold = 1.0

// ErrBelowMateriality marks positions too small to analyze reliably.
var ErrBelowMateriality = errors.New("deposited value below materiality threshold")

// Identity names a position. Extracted from the event sequence.
type Identity struct {
	Whirlpool    solana.PublicKey
	Position     solana.PublicKey
	PositionMint solana.PublicKey
	Owner        solana.PublicKey
	OpenedAt     time.Time
	ClosedAt     *time.Time
}

// LiveValue is the fiat-valued live quote of an open position. Closed or
// unresolvable positions supply the zero value.
type LiveValue struct {
	CurrentValue            float64
	CollectibleFeesValue    float64
	CollectibleRewardsValue float64
	ReclaimableRent         float64
}

// Summary is the immutable per-position output record.
type Summary struct {
	Identity
	Totals
	LiveValue

	Profit               float64
	ProfitRatio          float64
	ForgoneProfit        float64
	ForgoneProfitRatio   float64
	OpportunityCost      float64
	OpportunityCostRatio float64
}

// ExtractIdentity pulls the identity fields out of a validated,
// time-sorted event sequence.
func ExtractIdentity(events []whirlpool.Event) (Identity, error) {
	var id Identity
	for _, ev := range events {
		switch e := ev.(type) {
		case *whirlpool.OpenPositionEvent:
			id.Whirlpool = e.Whirlpool
			id.Position = e.PositionAddr
			id.PositionMint = e.PositionMint
			id.Owner = e.Owner
			id.OpenedAt = e.BlockTime
		case *whirlpool.ClosePositionEvent:
			closedAt := e.BlockTime
			id.ClosedAt = &closedAt
		}
	}
	if id.Position.IsZero() {
		return Identity{}, fmt.Errorf("%w: no open event", ErrMalformedSequence)
	}
	return id, nil
}

// Summarize combines ledger totals with the live quote into the final
// record and derives the profitability figures.
func Summarize(id Identity, totals *Totals, live LiveValue) (*Summary, error) {
	if totals.DepositedValue < MaterialityThreshold {
		return nil, fmt.Errorf("%w: deposited %.2f", ErrBelowMateriality, totals.DepositedValue)
	}

	s := &Summary{
		Identity:  id,
		Totals:    *totals,
		LiveValue: live,
	}

	gains := s.WithdrawnValue + s.CurrentValue + s.CollectedFeesValue + s.CollectedRewardsValue +
		s.CollectibleFeesValue + s.CollectibleRewardsValue + s.ReclaimableRent
	losses := s.DepositedValue + s.TransactionCost + s.PaidRent

	s.Profit = gains - losses
	s.ProfitRatio = s.Profit / s.PositionSize
	s.ForgoneProfit = s.ForgoneValue - s.DepositedValue
	s.ForgoneProfitRatio = s.ForgoneProfit / s.PositionSize
	s.OpportunityCost = s.ForgoneProfit - s.Profit
	s.OpportunityCostRatio = -s.OpportunityCost / s.PositionSize

	return s, nil
}

// CSVHeaders returns the column names for summary export.
func CSVHeaders() []string {
	return []string{
		"position", "position_mint", "whirlpool", "owner",
		"opened_at", "closed_at",
		"deposited_value", "withdrawn_value", "current_value",
		"collected_fees_value", "collected_rewards_value",
		"collectible_fees_value", "collectible_rewards_value",
		"forgone_value", "position_size",
		"paid_rent", "reclaimable_rent", "transaction_cost",
		"profit", "profit_ratio",
		"forgone_profit", "forgone_profit_ratio",
		"opportunity_cost", "opportunity_cost_ratio",
	}
}

// ToCSV renders one summary row: fiat fields fixed to two decimals,
// identifiers in canonical base58, times in RFC 3339.
func (s *Summary) ToCSV() []string {
	closedAt := ""
	if s.ClosedAt != nil {
		closedAt = s.ClosedAt.UTC().Format(time.RFC3339)
	}
	return []string{
		s.Position.String(), s.PositionMint.String(), s.Whirlpool.String(), s.Owner.String(),
		s.OpenedAt.UTC().Format(time.RFC3339), closedAt,
		fiat(s.DepositedValue), fiat(s.WithdrawnValue), fiat(s.CurrentValue),
		fiat(s.CollectedFeesValue), fiat(s.CollectedRewardsValue),
		fiat(s.CollectibleFeesValue), fiat(s.CollectibleRewardsValue),
		fiat(s.ForgoneValue), fiat(s.PositionSize),
		fiat(s.PaidRent), fiat(s.ReclaimableRent), fiat(s.TransactionCost),
		fiat(s.Profit), ratio(s.ProfitRatio),
		fiat(s.ForgoneProfit), ratio(s.ForgoneProfitRatio),
		fiat(s.OpportunityCost), ratio(s.OpportunityCostRatio),
	}
}

func fiat(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func ratio(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}
