package analyzer

import (
	"math/big"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/whirlpool-pnl/internal/ledger"
	"github.com/rovshanmuradov/whirlpool-pnl/internal/pricing"
	"github.com/rovshanmuradov/whirlpool-pnl/internal/tokens"
	"github.com/rovshanmuradov/whirlpool-pnl/internal/whirlpool"
)

func pk(b byte) solana.PublicKey {
	var key solana.PublicKey
	key[0] = b
	return key
}

func sig(b byte) solana.Signature {
	var s solana.Signature
	s[0] = b
	return s
}

func bigNew(v int64) *big.Int { return big.NewInt(v) }

var (
	mintA = pk(0xA1)

	t0 = time.Now().UTC().Truncate(time.Hour).Add(-48 * time.Hour)
	t1 = t0.Add(time.Hour)
	t2 = t0.Add(2 * time.Hour)
)

func fixtureSnapshot() *pricing.Snapshot {
	sol := whirlpool.WrappedSOLMint
	series := map[solana.PublicKey][]pricing.PricePoint{
		sol: {
			{At: t0, Price: 100}, {At: t1, Price: 100}, {At: t2, Price: 100},
		},
		mintA: {
			{At: t0, Price: 1.00}, {At: t1, Price: 1.00}, {At: t2, Price: 1.10},
		},
	}
	current := map[solana.PublicKey]float64{
		mintA: 2.00,
		sol:   100,
	}
	return pricing.NewFixedSnapshot(series, current)
}

func fixtureRegistry() *tokens.Registry {
	return tokens.NewFixedRegistry(map[solana.PublicKey]tokens.Meta{
		mintA:                    {Decimals: 6},
		whirlpool.WrappedSOLMint: {Decimals: 9, Symbol: "SOL"},
	})
}

func lifecycleEvents(withClose bool) []whirlpool.Event {
	events := []whirlpool.Event{
		&whirlpool.OpenPositionEvent{
			EventMeta:    whirlpool.EventMeta{Signature: sig(1), BlockTime: t0, TxFee: 5000},
			Whirlpool:    pk(1),
			PositionAddr: pk(2),
			PositionMint: pk(3),
			Owner:        pk(4),
			RentFee:      whirlpool.RentOpenPosition,
		},
		&whirlpool.IncreaseLiquidityEvent{
			EventMeta:      whirlpool.EventMeta{Signature: sig(2), BlockTime: t1, TxFee: 5000},
			Whirlpool:      pk(1),
			PositionAddr:   pk(2),
			LiquidityDelta: bigNew(100),
			TokenAIn:       10_000_000,
			TokenAMint:     mintA,
			TokenBMint:     mintA,
		},
	}
	if withClose {
		events = append(events,
			&whirlpool.DecreaseLiquidityEvent{
				EventMeta:      whirlpool.EventMeta{Signature: sig(3), BlockTime: t2, TxFee: 5000},
				Whirlpool:      pk(1),
				PositionAddr:   pk(2),
				LiquidityDelta: bigNew(100),
				TokenAOut:      10_000_000,
				TokenAMint:     mintA,
				TokenBMint:     mintA,
			},
			&whirlpool.ClosePositionEvent{
				EventMeta:     whirlpool.EventMeta{Signature: sig(3), BlockTime: t2, TxFee: 5000},
				PositionAddr:  pk(2),
				ReclaimedRent: whirlpool.RentReclaimOnClose,
			})
	}
	return events
}

func testAnalyzer() *Analyzer {
	return &Analyzer{logger: zap.NewNop()}
}

func TestAnalyzePositionClosedLifecycle(t *testing.T) {
	a := testAnalyzer()

	summary, err := a.analyzePosition(pk(2), lifecycleEvents(true), nil,
		fixtureSnapshot(), fixtureRegistry(), false)
	require.NoError(t, err)

	assert.Equal(t, pk(1), summary.Whirlpool)
	assert.Equal(t, pk(4), summary.Owner)
	require.NotNil(t, summary.ClosedAt)

	assert.InDelta(t, 10.00, summary.DepositedValue, 1e-9)
	assert.InDelta(t, 11.00, summary.WithdrawnValue, 1e-9)
	// Full withdrawal at $1.10: holding would have yielded the same $11.
	assert.InDelta(t, 11.00, summary.ForgoneValue, 1e-9)
	assert.Zero(t, summary.CurrentValue)
}

func TestAnalyzePositionOpenExcludedByDefault(t *testing.T) {
	a := testAnalyzer()

	_, err := a.analyzePosition(pk(2), lifecycleEvents(false), nil,
		fixtureSnapshot(), fixtureRegistry(), false)
	assert.ErrorIs(t, err, errOpenExcluded)

	// With include-open the residual tokens price at the current $2.00.
	summary, err := a.analyzePosition(pk(2), lifecycleEvents(false), nil,
		fixtureSnapshot(), fixtureRegistry(), true)
	require.NoError(t, err)
	assert.Nil(t, summary.ClosedAt)
	assert.InDelta(t, 20.00, summary.ForgoneValue, 1e-9)
}

func TestAnalyzePositionRejectsMalformedSequence(t *testing.T) {
	a := testAnalyzer()

	events := []whirlpool.Event{
		&whirlpool.ClosePositionEvent{PositionAddr: pk(2)},
	}
	_, err := a.analyzePosition(pk(2), events, nil, fixtureSnapshot(), fixtureRegistry(), true)
	assert.ErrorIs(t, err, ledger.ErrMalformedSequence)
}

func TestValueLiveState(t *testing.T) {
	a := testAnalyzer()

	position := &whirlpool.Position{
		Liquidity:            bigNew(0),
		FeeOwedA:             2_000_000, // 2 tokens at $2.00
		FeeGrowthCheckpointA: bigNew(0),
		FeeGrowthCheckpointB: bigNew(0),
	}
	for i := range position.RewardInfos {
		position.RewardInfos[i].GrowthInsideCheckpoint = bigNew(0)
	}
	pool := &whirlpool.Whirlpool{
		SqrtPrice:        bigNew(0),
		TokenMintA:       mintA,
		TokenMintB:       mintA,
		FeeGrowthGlobalA: bigNew(0),
		FeeGrowthGlobalB: bigNew(0),
	}
	for i := range pool.RewardInfos {
		pool.RewardInfos[i].GrowthGlobalX64 = bigNew(0)
	}

	live, err := a.valueLiveState(&livePosition{position: position, pool: pool},
		fixtureSnapshot(), fixtureRegistry())
	require.NoError(t, err)

	assert.InDelta(t, 4.00, live.CollectibleFeesValue, 1e-9)
	assert.Zero(t, live.CurrentValue)

	wantRent := float64(whirlpool.RentReclaimOnClose-closeTxFeeLamports) / 1e9 * 100
	assert.InDelta(t, wantRent, live.ReclaimableRent, 1e-9)
}

func TestValueLiveStateNil(t *testing.T) {
	a := testAnalyzer()
	live, err := a.valueLiveState(nil, fixtureSnapshot(), fixtureRegistry())
	require.NoError(t, err)
	assert.Equal(t, ledger.LiveValue{}, live)
}

func TestGroupSummaries(t *testing.T) {
	summaries := []*ledger.Summary{
		{Identity: ledger.Identity{Whirlpool: pk(1), Owner: pk(7)}, Totals: ledger.Totals{DepositedValue: 10}, Profit: 1},
		{Identity: ledger.Identity{Whirlpool: pk(1), Owner: pk(8)}, Totals: ledger.Totals{DepositedValue: 20}, Profit: -2},
		{Identity: ledger.Identity{Whirlpool: pk(2), Owner: pk(7)}, Totals: ledger.Totals{DepositedValue: 30}, Profit: 3},
	}

	byPool := groupSummaries(summaries, "whirlpool")
	require.Len(t, byPool, 2)
	assert.Equal(t, pk(1).String(), byPool[0].Key)
	assert.Equal(t, 2, byPool[0].Positions)
	assert.InDelta(t, -1.0, byPool[0].Profit, 1e-9)
	assert.InDelta(t, 30.0, byPool[0].Deposited, 1e-9)

	byOwner := groupSummaries(summaries, "owner")
	require.Len(t, byOwner, 2)
	assert.Equal(t, 2, byOwner[0].Positions)
}

func TestParseAddresses(t *testing.T) {
	keys, err := parseAddresses([]string{
		"So11111111111111111111111111111111111111112",
		"whirLbMiicVdio4qvUfM5KAg6Ct8VwpYzGff3uctyCc",
	})
	require.NoError(t, err)
	assert.Len(t, keys, 2)

	_, err = parseAddresses([]string{"not-an-address"})
	assert.Error(t, err)

	_, err = parseAddresses(nil)
	assert.Error(t, err)
}
