// internal/analyzer/find.go
package analyzer

import (
	"context"
	"fmt"
	"sort"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/whirlpool-pnl/internal/pricing"
	"github.com/rovshanmuradov/whirlpool-pnl/internal/tokens"
	"github.com/rovshanmuradov/whirlpool-pnl/internal/whirlpool"
)

const defaultFindLimit = 50

// FindOptions filters a pool's position scan.
type FindOptions struct {
	Pool     string
	MinValue float64 // fiat, 0 means no bound
	MaxValue float64 // fiat, 0 means no bound
	Limit    int
}

// FoundPosition is one scan hit, valued at current prices.
type FoundPosition struct {
	Address      solana.PublicKey
	PositionMint solana.PublicKey
	Whirlpool    solana.PublicKey
	TickLower    int32
	TickUpper    int32
	InRange      bool
	Value        float64 // fiat value of redeemable tokens
}

// Find scans all open positions of one whirlpool and returns the ones
// whose current redeemable value falls inside the requested bounds,
// largest first.
func (a *Analyzer) Find(ctx context.Context, opts FindOptions) ([]FoundPosition, error) {
	poolAddress, err := solana.PublicKeyFromBase58(opts.Pool)
	if err != nil {
		return nil, fmt.Errorf("invalid pool address %q: %w", opts.Pool, err)
	}
	if opts.Limit <= 0 {
		opts.Limit = defaultFindLimit
	}

	poolData, _, err := a.chain.AccountData(ctx, poolAddress)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch pool %s: %w", poolAddress, err)
	}
	pool, err := whirlpool.ParseWhirlpool(poolData)
	if err != nil {
		return nil, fmt.Errorf("account %s is not a whirlpool: %w", poolAddress, err)
	}

	accounts, err := a.chain.PoolPositions(ctx, poolAddress)
	if err != nil {
		return nil, err
	}
	a.logger.Info("Pool position scan complete",
		zap.String("pool", poolAddress.String()),
		zap.Int("positions", len(accounts)))

	registry, snapshot, err := a.scanPricing(ctx, pool)
	if err != nil {
		return nil, err
	}

	var found []FoundPosition
	for _, account := range accounts {
		position, err := whirlpool.ParsePosition(account.Data)
		if err != nil {
			a.logger.Debug("Skipping unparsable position account",
				zap.String("address", account.Address.String()),
				zap.Error(err))
			continue
		}

		quote := whirlpool.QuotePosition(position, pool)
		valueA, err := displayValue(quote.TokenAmountA, pool.TokenMintA, snapshot, registry)
		if err != nil {
			continue // unpriced token, cannot rank this position
		}
		valueB, err := displayValue(quote.TokenAmountB, pool.TokenMintB, snapshot, registry)
		if err != nil {
			continue
		}
		value := valueA + valueB

		if opts.MinValue > 0 && value < opts.MinValue {
			continue
		}
		if opts.MaxValue > 0 && value > opts.MaxValue {
			continue
		}

		found = append(found, FoundPosition{
			Address:      account.Address,
			PositionMint: position.PositionMint,
			Whirlpool:    poolAddress,
			TickLower:    position.TickLower,
			TickUpper:    position.TickUpper,
			InRange:      pool.TickCurrentIndex >= position.TickLower && pool.TickCurrentIndex < position.TickUpper,
			Value:        value,
		})
	}

	sort.Slice(found, func(i, j int) bool { return found[i].Value > found[j].Value })
	if len(found) > opts.Limit {
		found = found[:opts.Limit]
	}
	return found, nil
}

// scanPricing builds the minimal registry and current-price snapshot a
// scan needs: just the pool's two token mints.
func (a *Analyzer) scanPricing(ctx context.Context, pool *whirlpool.Whirlpool) (*tokens.Registry, *pricing.Snapshot, error) {
	mints := []solana.PublicKey{pool.TokenMintA, pool.TokenMintB}

	registry, err := tokens.BuildRegistry(ctx, a.chain, mints, a.pool, a.logger)
	if err != nil {
		return nil, nil, err
	}

	builder := pricing.NewSnapshotBuilder(a.prices, a.ids, a.pool, a.logger)
	snapshot, err := builder.Build(ctx, nil, mints)
	if err != nil {
		return nil, nil, err
	}
	return registry, snapshot, nil
}
