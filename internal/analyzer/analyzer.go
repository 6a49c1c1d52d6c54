// internal/analyzer/analyzer.go

// Package analyzer sequences the full pipeline: fetch, decode, account,
// summarize. All fetching is front-loaded into immutable snapshots so
// the decode and accounting stages run as pure in-memory passes.
package analyzer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/whirlpool-pnl/internal/chain"
	"github.com/rovshanmuradov/whirlpool-pnl/internal/fetchpool"
	"github.com/rovshanmuradov/whirlpool-pnl/internal/ledger"
	"github.com/rovshanmuradov/whirlpool-pnl/internal/pricing"
	"github.com/rovshanmuradov/whirlpool-pnl/internal/tokens"
	"github.com/rovshanmuradov/whirlpool-pnl/internal/whirlpool"
)

// closeTxFeeLamports estimates the fee of the close transaction that
// reclaiming rent would cost an open position.
const closeTxFeeLamports = 5000

// mint account length, to tell position mints apart from wallets
const mintAccountLen = 82

type Analyzer struct {
	chain   *chain.Client
	prices  *pricing.Client
	ids     pricing.IDMap
	pool    *fetchpool.Pool
	pageLen int
	logger  *zap.Logger
}

func New(chainClient *chain.Client, priceClient *pricing.Client, ids pricing.IDMap, pool *fetchpool.Pool, pageLen int, logger *zap.Logger) *Analyzer {
	return &Analyzer{
		chain:   chainClient,
		prices:  priceClient,
		ids:     ids,
		pool:    pool,
		pageLen: pageLen,
		logger:  logger.Named("analyzer"),
	}
}

// AnalyzeOptions mirrors the analyze command's surface.
type AnalyzeOptions struct {
	Addresses   []string // pool, wallet, position, or position mint
	Cycles      int      // pagination depth per address
	IncludeOpen bool
	GroupBy     string // "", "whirlpool", or "owner"
}

// Report is the outcome of one analysis run. The run always completes;
// per-position failures are recorded, never propagated.
type Report struct {
	Summaries []*ledger.Summary
	Groups    []Group
	Analyzed  int
	Skipped   int
}

// Group aggregates summaries sharing a grouping key.
type Group struct {
	Key       string
	Positions int
	Profit    float64
	Deposited float64
}

// Analyze runs the pipeline over every position discovered in the
// transaction histories of the given addresses.
func (a *Analyzer) Analyze(ctx context.Context, opts AnalyzeOptions) (*Report, error) {
	addresses, err := parseAddresses(opts.Addresses)
	if err != nil {
		return nil, err
	}
	if opts.Cycles <= 0 {
		opts.Cycles = 1
	}

	signatures, err := a.gatherSignatures(ctx, addresses, opts.Cycles)
	if err != nil {
		return nil, err
	}
	a.logger.Info("Gathered signature history",
		zap.Int("addresses", len(addresses)),
		zap.Int("signatures", len(signatures)))

	transactions, err := a.fetchTransactions(ctx, signatures)
	if err != nil {
		return nil, err
	}

	decoder := whirlpool.NewDecoder(a.logger)
	eventsByPosition := decoder.Decode(transactions)
	if len(eventsByPosition) == 0 {
		a.logger.Warn("No position events decoded from transaction window")
		return &Report{}, nil
	}
	for _, events := range eventsByPosition {
		whirlpool.SortEvents(events)
	}

	live, err := a.fetchLiveState(ctx, eventsByPosition)
	if err != nil {
		return nil, err
	}

	registry, snapshot, err := a.buildSnapshots(ctx, eventsByPosition, live)
	if err != nil {
		return nil, err
	}

	report := &Report{}
	for position, events := range eventsByPosition {
		summary, err := a.analyzePosition(position, events, live[position], snapshot, registry, opts.IncludeOpen)
		if err != nil {
			report.Skipped++
			a.logger.Warn("Position skipped",
				zap.String("position", position.String()),
				zap.Error(err))
			continue
		}
		report.Analyzed++
		report.Summaries = append(report.Summaries, summary)
	}

	if opts.GroupBy != "" {
		report.Groups = groupSummaries(report.Summaries, opts.GroupBy)
	}

	a.logger.Info("Analysis run complete",
		zap.Int("analyzed", report.Analyzed),
		zap.Int("skipped", report.Skipped))

	return report, nil
}

// errOpenExcluded marks open positions dropped without --include-open.
var errOpenExcluded = errors.New("open position excluded (use include-open)")

func (a *Analyzer) analyzePosition(
	position solana.PublicKey,
	events []whirlpool.Event,
	liveState *livePosition,
	snapshot *pricing.Snapshot,
	registry *tokens.Registry,
	includeOpen bool,
) (*ledger.Summary, error) {
	if err := ledger.ValidateSequence(events); err != nil {
		return nil, err
	}
	identity, err := ledger.ExtractIdentity(events)
	if err != nil {
		return nil, err
	}
	if identity.ClosedAt == nil && !includeOpen {
		return nil, errOpenExcluded
	}

	totals, err := ledger.Account(events, snapshot, registry, a.logger.With(zap.String("position", position.String())))
	if err != nil {
		return nil, err
	}

	liveValue, err := a.valueLiveState(liveState, snapshot, registry)
	if err != nil {
		return nil, err
	}

	return ledger.Summarize(identity, totals, liveValue)
}

// valueLiveState converts a live quote into fiat at current prices.
// Positions without a resolvable live account value as zero.
func (a *Analyzer) valueLiveState(liveState *livePosition, snapshot *pricing.Snapshot, registry *tokens.Registry) (ledger.LiveValue, error) {
	if liveState == nil {
		return ledger.LiveValue{}, nil
	}

	quote := whirlpool.QuotePosition(liveState.position, liveState.pool)

	valueA, err := displayValue(quote.TokenAmountA, liveState.pool.TokenMintA, snapshot, registry)
	if err != nil {
		return ledger.LiveValue{}, err
	}
	valueB, err := displayValue(quote.TokenAmountB, liveState.pool.TokenMintB, snapshot, registry)
	if err != nil {
		return ledger.LiveValue{}, err
	}
	feeA, err := displayValue(quote.FeeA, liveState.pool.TokenMintA, snapshot, registry)
	if err != nil {
		return ledger.LiveValue{}, err
	}
	feeB, err := displayValue(quote.FeeB, liveState.pool.TokenMintB, snapshot, registry)
	if err != nil {
		return ledger.LiveValue{}, err
	}

	var rewardsValue float64
	for _, reward := range quote.Rewards {
		if reward.Mint.IsZero() || reward.Amount == 0 {
			continue
		}
		value, err := displayValue(reward.Amount, reward.Mint, snapshot, registry)
		if err != nil {
			return ledger.LiveValue{}, err
		}
		rewardsValue += value
	}

	solPrice, err := snapshot.CurrentPrice(whirlpool.WrappedSOLMint)
	if err != nil {
		return ledger.LiveValue{}, fmt.Errorf("%w: %v", ledger.ErrMissingPrice, err)
	}
	reclaimable := float64(whirlpool.RentReclaimOnClose-closeTxFeeLamports) / whirlpool.LamportsPerSOL * solPrice

	return ledger.LiveValue{
		CurrentValue:            valueA + valueB,
		CollectibleFeesValue:    feeA + feeB,
		CollectibleRewardsValue: rewardsValue,
		ReclaimableRent:         reclaimable,
	}, nil
}

func displayValue(rawAmount float64, mint solana.PublicKey, snapshot *pricing.Snapshot, registry *tokens.Registry) (float64, error) {
	if rawAmount == 0 {
		return 0, nil
	}
	decimals, err := registry.Decimals(mint)
	if err != nil {
		return 0, err
	}
	price, err := snapshot.CurrentPrice(mint)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ledger.ErrMissingPrice, err)
	}
	return rawAmount / pow10(decimals) * price, nil
}

func pow10(decimals uint8) float64 {
	out := 1.0
	for i := uint8(0); i < decimals; i++ {
		out *= 10
	}
	return out
}

// gatherSignatures pulls the bounded history of every input address.
// All addresses failing is fatal (the data source is unusable); a
// partial failure only drops that address's positions.
func (a *Analyzer) gatherSignatures(ctx context.Context, addresses []solana.PublicKey, cycles int) ([]solana.Signature, error) {
	var mu sync.Mutex
	seen := make(map[solana.Signature]struct{})
	var ordered []solana.Signature

	tasks := make([]fetchpool.Task, len(addresses))
	for i, address := range addresses {
		address := address
		tasks[i] = func(taskCtx context.Context) error {
			target := a.resolveHistoryAddress(taskCtx, address)
			sigs, err := a.chain.SignatureHistory(taskCtx, target, a.pageLen, cycles)
			if err != nil {
				return fmt.Errorf("history for %s: %w", address, err)
			}
			mu.Lock()
			defer mu.Unlock()
			for _, sig := range sigs {
				if _, dup := seen[sig]; dup {
					continue
				}
				seen[sig] = struct{}{}
				ordered = append(ordered, sig)
			}
			return nil
		}
	}

	results, err := a.pool.Run(ctx, tasks)
	if err != nil {
		return nil, err
	}

	failed := 0
	for _, taskErr := range results {
		if taskErr == nil {
			continue
		}
		failed++
		if chain.IsFatal(taskErr) {
			return nil, fmt.Errorf("%w: %v", chain.ErrUnreachable, taskErr)
		}
		a.logger.Warn("Address history fetch failed", zap.Error(taskErr))
	}
	if failed == len(addresses) {
		return nil, fmt.Errorf("%w: all address history fetches failed", chain.ErrUnreachable)
	}

	return ordered, nil
}

// resolveHistoryAddress maps a position mint to its position PDA; every
// other input kind is used for history as given.
func (a *Analyzer) resolveHistoryAddress(ctx context.Context, address solana.PublicKey) solana.PublicKey {
	data, owner, err := a.chain.AccountData(ctx, address)
	if err != nil {
		return address // closed accounts still have history
	}
	isMint := (owner.Equals(whirlpool.TokenProgramID) || owner.Equals(whirlpool.Token2022ProgramID)) &&
		len(data) == mintAccountLen
	if !isMint {
		return address
	}

	position, err := whirlpool.DerivePositionAddress(address)
	if err != nil {
		a.logger.Warn("Failed to derive position for mint",
			zap.String("mint", address.String()),
			zap.Error(err))
		return address
	}
	return position
}

func (a *Analyzer) fetchTransactions(ctx context.Context, signatures []solana.Signature) ([][]whirlpool.RawInstruction, error) {
	transactions := make([][]whirlpool.RawInstruction, len(signatures))

	tasks := make([]fetchpool.Task, len(signatures))
	for i, signature := range signatures {
		i, signature := i, signature
		tasks[i] = func(taskCtx context.Context) error {
			instructions, err := a.chain.TransactionInstructions(taskCtx, signature)
			if err != nil {
				return err
			}
			transactions[i] = instructions
			return nil
		}
	}

	results, err := a.pool.Run(ctx, tasks)
	if err != nil {
		return nil, err
	}
	for _, taskErr := range results {
		if taskErr != nil {
			if chain.IsFatal(taskErr) {
				return nil, fmt.Errorf("%w: %v", chain.ErrUnreachable, taskErr)
			}
			a.logger.Warn("Transaction fetch failed", zap.Error(taskErr))
		}
	}

	// Drop the slots of failed fetches.
	out := transactions[:0]
	for _, tx := range transactions {
		if tx != nil {
			out = append(out, tx)
		}
	}
	return out, nil
}

// livePosition pairs a still-open position account with its pool.
type livePosition struct {
	position *whirlpool.Position
	pool     *whirlpool.Whirlpool
}

// fetchLiveState resolves current position and pool accounts for every
// decoded position. Closed positions simply resolve to nothing.
func (a *Analyzer) fetchLiveState(ctx context.Context, eventsByPosition map[solana.PublicKey][]whirlpool.Event) (map[solana.PublicKey]*livePosition, error) {
	positions := make([]solana.PublicKey, 0, len(eventsByPosition))
	for position := range eventsByPosition {
		positions = append(positions, position)
	}

	positionData, err := a.chain.MultipleAccountData(ctx, positions)
	if err != nil {
		a.logger.Warn("Live position fetch failed, quoting all as zero", zap.Error(err))
		return map[solana.PublicKey]*livePosition{}, nil
	}

	live := make(map[solana.PublicKey]*livePosition)
	poolAddresses := make(map[solana.PublicKey][]solana.PublicKey) // pool -> positions

	for i, data := range positionData {
		if data == nil {
			continue
		}
		parsed, err := whirlpool.ParsePosition(data)
		if err != nil {
			a.logger.Debug("Account is not a position",
				zap.String("address", positions[i].String()),
				zap.Error(err))
			continue
		}
		live[positions[i]] = &livePosition{position: parsed}
		poolAddresses[parsed.Whirlpool] = append(poolAddresses[parsed.Whirlpool], positions[i])
	}

	pools := make([]solana.PublicKey, 0, len(poolAddresses))
	for pool := range poolAddresses {
		pools = append(pools, pool)
	}
	poolData, err := a.chain.MultipleAccountData(ctx, pools)
	if err != nil {
		a.logger.Warn("Pool state fetch failed, quoting open positions as zero", zap.Error(err))
		return map[solana.PublicKey]*livePosition{}, nil
	}

	for i, data := range poolData {
		if data == nil {
			continue
		}
		parsed, err := whirlpool.ParseWhirlpool(data)
		if err != nil {
			a.logger.Warn("Failed to parse pool account",
				zap.String("pool", pools[i].String()),
				zap.Error(err))
			continue
		}
		for _, position := range poolAddresses[pools[i]] {
			live[position].pool = parsed
		}
	}

	// A position without its pool cannot be quoted.
	for position, state := range live {
		if state.pool == nil {
			delete(live, position)
		}
	}

	return live, nil
}

// buildSnapshots walks all events once to collect every (mint, time)
// pair and mint the run will touch, then populates the price snapshot
// and token registry through the bounded pool.
func (a *Analyzer) buildSnapshots(
	ctx context.Context,
	eventsByPosition map[solana.PublicKey][]whirlpool.Event,
	live map[solana.PublicKey]*livePosition,
) (*tokens.Registry, *pricing.Snapshot, error) {
	var requirements []pricing.Requirement
	mintSet := map[solana.PublicKey]struct{}{whirlpool.WrappedSOLMint: {}}

	addReq := func(mint solana.PublicKey, at time.Time) {
		requirements = append(requirements, pricing.Requirement{Mint: mint, At: at})
		mintSet[mint] = struct{}{}
	}

	for _, events := range eventsByPosition {
		for _, ev := range events {
			meta := ev.Meta()
			addReq(whirlpool.WrappedSOLMint, meta.BlockTime) // tx fee, rent

			switch e := ev.(type) {
			case *whirlpool.IncreaseLiquidityEvent:
				addReq(e.TokenAMint, meta.BlockTime)
				addReq(e.TokenBMint, meta.BlockTime)
			case *whirlpool.DecreaseLiquidityEvent:
				addReq(e.TokenAMint, meta.BlockTime)
				addReq(e.TokenBMint, meta.BlockTime)
			case *whirlpool.CollectFeesEvent:
				addReq(e.TokenAMint, meta.BlockTime)
				addReq(e.TokenBMint, meta.BlockTime)
			case *whirlpool.CollectRewardEvent:
				addReq(e.RewardMint, meta.BlockTime)
			}
		}
	}

	for _, state := range live {
		mintSet[state.pool.TokenMintA] = struct{}{}
		mintSet[state.pool.TokenMintB] = struct{}{}
		for _, reward := range state.pool.RewardInfos {
			if !reward.Mint.IsZero() {
				mintSet[reward.Mint] = struct{}{}
			}
		}
	}

	mints := make([]solana.PublicKey, 0, len(mintSet))
	for mint := range mintSet {
		mints = append(mints, mint)
	}

	registry, err := tokens.BuildRegistry(ctx, a.chain, mints, a.pool, a.logger)
	if err != nil {
		return nil, nil, err
	}

	builder := pricing.NewSnapshotBuilder(a.prices, a.ids, a.pool, a.logger)
	snapshot, err := builder.Build(ctx, requirements, mints)
	if err != nil {
		return nil, nil, err
	}

	return registry, snapshot, nil
}

func groupSummaries(summaries []*ledger.Summary, key string) []Group {
	grouped := make(map[string]*Group)
	var order []string

	for _, summary := range summaries {
		var groupKey string
		switch key {
		case "owner":
			groupKey = summary.Owner.String()
		default:
			groupKey = summary.Whirlpool.String()
		}

		group, ok := grouped[groupKey]
		if !ok {
			group = &Group{Key: groupKey}
			grouped[groupKey] = group
			order = append(order, groupKey)
		}
		group.Positions++
		group.Profit += summary.Profit
		group.Deposited += summary.DepositedValue
	}

	out := make([]Group, 0, len(order))
	for _, groupKey := range order {
		out = append(out, *grouped[groupKey])
	}
	return out
}

func parseAddresses(raw []string) ([]solana.PublicKey, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("no addresses given")
	}
	out := make([]solana.PublicKey, 0, len(raw))
	for _, s := range raw {
		key, err := solana.PublicKeyFromBase58(s)
		if err != nil {
			return nil, fmt.Errorf("invalid address %q: %w", s, err)
		}
		out = append(out, key)
	}
	return out, nil
}
