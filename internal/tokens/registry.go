// internal/tokens/registry.go

// Package tokens resolves token mints to display metadata. The registry
// is built once before the accounting stage and never mutated after, so
// the decoder and ledger read it without locks.
package tokens

import (
	"context"
	"fmt"
	"sync"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/whirlpool-pnl/internal/fetchpool"
)

// Mint account layout: decimals live at a fixed offset.
const (
	mintAccountMinLen  = 82
	mintDecimalsOffset = 44

	mintFetchBatch = 100
)

// Meta is one token's display metadata.
type Meta struct {
	Decimals uint8
	Symbol   string
}

// Registry is an immutable mint metadata snapshot.
type Registry struct {
	tokens map[solana.PublicKey]Meta
}

// AccountSource is the slice of the chain client the registry needs.
type AccountSource interface {
	MultipleAccountData(ctx context.Context, addresses []solana.PublicKey) ([][]byte, error)
}

// NewFixedRegistry builds a registry from in-memory metadata. Intended
// for fixtures.
func NewFixedRegistry(tokens map[solana.PublicKey]Meta) *Registry {
	copied := make(map[solana.PublicKey]Meta, len(tokens))
	for mint, meta := range tokens {
		copied[mint] = meta
	}
	return &Registry{tokens: copied}
}

// Decimals returns a mint's display decimals.
func (r *Registry) Decimals(mint solana.PublicKey) (uint8, error) {
	meta, ok := r.tokens[mint]
	if !ok {
		return 0, fmt.Errorf("unknown mint %s", mint)
	}
	return meta.Decimals, nil
}

// Symbol returns a mint's symbol, or its shortened address if unknown.
func (r *Registry) Symbol(mint solana.PublicKey) string {
	if meta, ok := r.tokens[mint]; ok && meta.Symbol != "" {
		return meta.Symbol
	}
	s := mint.String()
	return s[:4] + ".." + s[len(s)-4:]
}

// knownSymbols covers the usual Whirlpool pairs; everything else keeps
// its shortened address.
var knownSymbols = map[string]string{
	"So11111111111111111111111111111111111111112":  "SOL",
	"EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v": "USDC",
	"Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB": "USDT",
	"orcaEKTdK7LKz57vaAYr9QeNsVEPfiu6QeMU1kektZE":  "ORCA",
	"DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263": "BONK",
	"mSoLzYCxHdYgdzU16g5QSh3i5K3z3KZK7ytfqcJm7So":  "mSOL",
}

// BuildRegistry fetches decimals for all given mints from their mint
// accounts. Mints that fail to resolve are omitted; positions touching
// them fail individually later.
func BuildRegistry(ctx context.Context, source AccountSource, mints []solana.PublicKey, pool *fetchpool.Pool, logger *zap.Logger) (*Registry, error) {
	log := logger.Named("token-registry")

	unique := make([]solana.PublicKey, 0, len(mints))
	seen := make(map[solana.PublicKey]struct{}, len(mints))
	for _, mint := range mints {
		if _, dup := seen[mint]; dup {
			continue
		}
		seen[mint] = struct{}{}
		unique = append(unique, mint)
	}

	registry := &Registry{tokens: make(map[solana.PublicKey]Meta, len(unique))}
	var mu sync.Mutex
	var tasks []fetchpool.Task

	for start := 0; start < len(unique); start += mintFetchBatch {
		end := start + mintFetchBatch
		if end > len(unique) {
			end = len(unique)
		}
		batch := unique[start:end]

		tasks = append(tasks, func(taskCtx context.Context) error {
			data, err := source.MultipleAccountData(taskCtx, batch)
			if err != nil {
				return fmt.Errorf("mint batch fetch: %w", err)
			}
			mu.Lock()
			defer mu.Unlock()
			for i, raw := range data {
				if len(raw) < mintAccountMinLen {
					continue
				}
				registry.tokens[batch[i]] = Meta{
					Decimals: raw[mintDecimalsOffset],
					Symbol:   knownSymbols[batch[i].String()],
				}
			}
			return nil
		})
	}

	results, err := pool.Run(ctx, tasks)
	if err != nil {
		return nil, fmt.Errorf("token registry build canceled: %w", err)
	}
	for _, taskErr := range results {
		if taskErr != nil {
			log.Warn("Mint metadata fetch failed, affected positions will be skipped", zap.Error(taskErr))
		}
	}

	log.Debug("Token registry built",
		zap.Int("requested", len(unique)),
		zap.Int("resolved", len(registry.tokens)))

	return registry, nil
}
