// internal/pricing/snapshot.go
package pricing

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/whirlpool-pnl/internal/fetchpool"
)

const (
	// hourlyWindow is how far back the source serves hourly granularity.
	hourlyWindow = 90 * 24 * time.Hour

	// Maximum distance between a query and the nearest sampled point
	// before the pair counts as unpriced.
	hourlyTolerance = 2 * time.Hour
	dailyTolerance  = 36 * time.Hour

	// Padding around each mint's requirement window so edge queries
	// still find a neighboring sample.
	rangePadding = 48 * time.Hour

	currentPriceBatch = 50
)

// Requirement is one (mint, time) pair the ledger will ask for.
type Requirement struct {
	Mint solana.PublicKey
	At   time.Time
}

// Snapshot is an immutable price lookup table, fully populated before
// the accounting stage starts. It implements the ledger's PriceSource.
type Snapshot struct {
	series  map[solana.PublicKey][]PricePoint // ascending by time
	current map[solana.PublicKey]float64
	builtAt time.Time
}

// NewFixedSnapshot builds a snapshot from in-memory data. Intended for
// fixtures; production snapshots come from SnapshotBuilder.
func NewFixedSnapshot(series map[solana.PublicKey][]PricePoint, current map[solana.PublicKey]float64) *Snapshot {
	sorted := make(map[solana.PublicKey][]PricePoint, len(series))
	for mint, points := range series {
		cp := append([]PricePoint(nil), points...)
		sort.Slice(cp, func(i, j int) bool { return cp[i].At.Before(cp[j].At) })
		sorted[mint] = cp
	}
	cur := make(map[solana.PublicKey]float64, len(current))
	for mint, price := range current {
		cur[mint] = price
	}
	return &Snapshot{series: sorted, current: cur, builtAt: time.Now().UTC()}
}

// PriceAt returns the historical price nearest the query rounded to the
// enclosing hour. Queries within the hourly window tolerate a gap of a
// couple hours; older queries fall back to the source's daily,
// forward/backward-filled resolution.
func (s *Snapshot) PriceAt(mint solana.PublicKey, at time.Time) (float64, error) {
	points := s.series[mint]
	if len(points) == 0 {
		return 0, fmt.Errorf("%w for %s", ErrNoPrice, mint)
	}

	query := at.UTC().Truncate(time.Hour)
	idx := sort.Search(len(points), func(i int) bool {
		return !points[i].At.Before(query)
	})

	best := -1
	for _, candidate := range []int{idx - 1, idx} {
		if candidate < 0 || candidate >= len(points) {
			continue
		}
		if best == -1 || absDuration(points[candidate].At.Sub(query)) < absDuration(points[best].At.Sub(query)) {
			best = candidate
		}
	}

	tolerance := hourlyTolerance
	if s.builtAt.Sub(query) > hourlyWindow {
		tolerance = dailyTolerance
	}
	if best == -1 || absDuration(points[best].At.Sub(query)) > tolerance {
		return 0, fmt.Errorf("%w for %s at %s", ErrNoPrice, mint, query.Format(time.RFC3339))
	}
	return points[best].Price, nil
}

// CurrentPrice returns the present price of a mint.
func (s *Snapshot) CurrentPrice(mint solana.PublicKey) (float64, error) {
	price, ok := s.current[mint]
	if !ok {
		return 0, fmt.Errorf("%w for %s (current)", ErrNoPrice, mint)
	}
	return price, nil
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

// SnapshotBuilder fetches everything a run will ask for up front, one
// bounded pool task per mint, so the ledger stage stays pure and
// lock-free.
type SnapshotBuilder struct {
	client *Client
	ids    IDMap
	pool   *fetchpool.Pool
	logger *zap.Logger
}

func NewSnapshotBuilder(client *Client, ids IDMap, pool *fetchpool.Pool, logger *zap.Logger) *SnapshotBuilder {
	return &SnapshotBuilder{
		client: client,
		ids:    ids,
		pool:   pool,
		logger: logger.Named("price-snapshot"),
	}
}

// Build resolves all historical requirements and current prices. A mint
// that fails to fetch (or has no price-source id) is omitted: positions
// depending on it fail individually at accounting time, the rest of the
// batch is unaffected.
func (b *SnapshotBuilder) Build(ctx context.Context, historical []Requirement, currentMints []solana.PublicKey) (*Snapshot, error) {
	snapshot := &Snapshot{
		series:  make(map[solana.PublicKey][]PricePoint),
		current: make(map[solana.PublicKey]float64),
		builtAt: time.Now().UTC(),
	}

	windows := requirementWindows(historical)

	var mu sync.Mutex
	var tasks []fetchpool.Task

	for mint, window := range windows {
		id, ok := b.ids.Lookup(mint)
		if !ok {
			b.logger.Warn("No price-source id for mint, its positions will be skipped",
				zap.String("mint", mint.String()))
			continue
		}

		mint, window, id := mint, window, id
		tasks = append(tasks, func(taskCtx context.Context) error {
			points, err := b.client.HistoricalRange(taskCtx,
				id, window.from.Add(-rangePadding), window.to.Add(rangePadding))
			if err != nil {
				return fmt.Errorf("range for %s: %w", mint, err)
			}
			sort.Slice(points, func(i, j int) bool { return points[i].At.Before(points[j].At) })
			mu.Lock()
			snapshot.series[mint] = points
			mu.Unlock()
			return nil
		})
	}

	for _, batch := range batchCurrentMints(b.ids, currentMints) {
		batch := batch
		tasks = append(tasks, func(taskCtx context.Context) error {
			prices, err := b.client.CurrentPrices(taskCtx, batch.ids)
			if err != nil {
				return fmt.Errorf("current prices: %w", err)
			}
			mu.Lock()
			for i, id := range batch.ids {
				if price, ok := prices[id]; ok {
					snapshot.current[batch.mints[i]] = price
				}
			}
			mu.Unlock()
			return nil
		})
	}

	results, err := b.pool.Run(ctx, tasks)
	if err != nil {
		return nil, fmt.Errorf("price snapshot build canceled: %w", err)
	}
	for _, taskErr := range results {
		if taskErr != nil {
			b.logger.Warn("Price fetch failed, affected positions will be skipped", zap.Error(taskErr))
		}
	}

	return snapshot, nil
}

type timeWindow struct {
	from, to time.Time
}

func requirementWindows(reqs []Requirement) map[solana.PublicKey]timeWindow {
	windows := make(map[solana.PublicKey]timeWindow)
	for _, req := range reqs {
		at := req.At.UTC()
		w, ok := windows[req.Mint]
		if !ok {
			windows[req.Mint] = timeWindow{from: at, to: at}
			continue
		}
		if at.Before(w.from) {
			w.from = at
		}
		if at.After(w.to) {
			w.to = at
		}
		windows[req.Mint] = w
	}
	return windows
}

type currentBatch struct {
	ids   []string
	mints []solana.PublicKey
}

func batchCurrentMints(ids IDMap, mints []solana.PublicKey) []currentBatch {
	seen := make(map[solana.PublicKey]struct{}, len(mints))
	var batches []currentBatch
	var cur currentBatch

	for _, mint := range mints {
		if _, dup := seen[mint]; dup {
			continue
		}
		seen[mint] = struct{}{}

		id, ok := ids.Lookup(mint)
		if !ok {
			continue
		}
		cur.ids = append(cur.ids, id)
		cur.mints = append(cur.mints, mint)
		if len(cur.ids) == currentPriceBatch {
			batches = append(batches, cur)
			cur = currentBatch{}
		}
	}
	if len(cur.ids) > 0 {
		batches = append(batches, cur)
	}
	return batches
}
