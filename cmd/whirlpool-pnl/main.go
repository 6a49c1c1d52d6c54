package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rovshanmuradov/whirlpool-pnl/internal/analyzer"
	"github.com/rovshanmuradov/whirlpool-pnl/internal/chain"
	"github.com/rovshanmuradov/whirlpool-pnl/internal/config"
	"github.com/rovshanmuradov/whirlpool-pnl/internal/export"
	"github.com/rovshanmuradov/whirlpool-pnl/internal/fetchpool"
	"github.com/rovshanmuradov/whirlpool-pnl/internal/logger"
	"github.com/rovshanmuradov/whirlpool-pnl/internal/pricing"
)

const usage = `Usage:
  whirlpool-pnl analyze -addresses <addr>[,<addr>...] [flags]
  whirlpool-pnl find -pool <addr> [flags]

Run "whirlpool-pnl <command> -h" for command flags.`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "analyze":
		err = runAnalyze(ctx, os.Args[2:])
	case "find":
		err = runFind(ctx, os.Args[2:])
	case "-h", "--help", "help":
		fmt.Println(usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n%s\n", os.Args[1], usage)
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func runAnalyze(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("analyze", flag.ExitOnError)
	configPath := fs.String("config", "configs/config.json", "path to the configuration file")
	addresses := fs.String("addresses", "", "comma-separated pool, wallet, position, or position-mint addresses")
	cycles := fs.Int("cycles", 1, "signature history pages to fetch per address")
	includeOpen := fs.Bool("include-open", false, "include positions that are still open")
	groupBy := fs.String("group-by", "", "aggregate results by \"whirlpool\" or \"owner\"")
	csvPath := fs.String("csv", "", "write summaries to this CSV file")
	jsonPath := fs.String("json", "", "write summaries to this JSON file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *addresses == "" {
		return errors.New("analyze requires -addresses")
	}
	if *groupBy != "" && *groupBy != "whirlpool" && *groupBy != "owner" {
		return fmt.Errorf("unsupported -group-by value %q", *groupBy)
	}

	a, log, cleanup, err := buildAnalyzer(*configPath)
	if err != nil {
		return err
	}
	defer cleanup()

	report, err := a.Analyze(ctx, analyzer.AnalyzeOptions{
		Addresses:   strings.Split(*addresses, ","),
		Cycles:      *cycles,
		IncludeOpen: *includeOpen,
		GroupBy:     *groupBy,
	})
	if err != nil {
		return err
	}

	printReport(report)

	exporter := export.NewSummaryExporter(log.Logger)
	if *csvPath != "" && len(report.Summaries) > 0 {
		if _, err := exporter.ExportSummaries(report.Summaries, export.ExportOptions{
			Format:     export.FormatCSV,
			OutputPath: *csvPath,
		}); err != nil {
			return err
		}
		fmt.Println("CSV written to", *csvPath)
	}
	if *jsonPath != "" && len(report.Summaries) > 0 {
		if _, err := exporter.ExportSummaries(report.Summaries, export.ExportOptions{
			Format:     export.FormatJSON,
			OutputPath: *jsonPath,
		}); err != nil {
			return err
		}
		fmt.Println("JSON written to", *jsonPath)
	}

	return nil
}

func runFind(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("find", flag.ExitOnError)
	configPath := fs.String("config", "configs/config.json", "path to the configuration file")
	pool := fs.String("pool", "", "whirlpool address to scan")
	minValue := fs.Float64("min-value", 0, "minimum position value in USD")
	maxValue := fs.Float64("max-value", 0, "maximum position value in USD")
	limit := fs.Int("limit", 50, "maximum number of positions to report")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *pool == "" {
		return errors.New("find requires -pool")
	}

	a, _, cleanup, err := buildAnalyzer(*configPath)
	if err != nil {
		return err
	}
	defer cleanup()

	found, err := a.Find(ctx, analyzer.FindOptions{
		Pool:     *pool,
		MinValue: *minValue,
		MaxValue: *maxValue,
		Limit:    *limit,
	})
	if err != nil {
		return err
	}

	if len(found) == 0 {
		fmt.Println("No positions matched the filters.")
		return nil
	}

	fmt.Printf("%-46s %-10s %-12s %-8s %s\n", "POSITION", "VALUE", "TICKS", "IN RANGE", "MINT")
	for _, p := range found {
		fmt.Printf("%-46s $%-9.2f %6d/%-6d %-8t %s\n",
			p.Address, p.Value, p.TickLower, p.TickUpper, p.InRange, p.PositionMint)
	}
	return nil
}

func buildAnalyzer(configPath string) (*analyzer.Analyzer, *logger.Logger, func(), error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	logCfg := logger.DefaultConfig()
	logCfg.Development = cfg.DebugLogging
	if cfg.LogFile != "" {
		logCfg.LogFile = cfg.LogFile
	}
	log, err := logger.New(logCfg)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	chainClient, err := chain.NewClient(cfg.RPCList, cfg.Retries, log.Logger)
	if err != nil {
		return nil, nil, nil, err
	}
	priceClient := pricing.NewClient(cfg.PriceAPIBaseURL, cfg.PriceAPIKey, cfg.Retries, log.Logger)
	pool := fetchpool.New(cfg.Workers, time.Duration(cfg.DispatchDelay)*time.Millisecond)
	ids := pricing.DefaultIDMap(cfg.PriceIDOverrides)

	a := analyzer.New(chainClient, priceClient, ids, pool, cfg.SignaturePageLen, log.Logger)
	cleanup := func() { _ = log.Sync() }
	return a, log, cleanup, nil
}

func printReport(report *analyzer.Report) {
	fmt.Printf("Analyzed %d position(s), skipped %d.\n", report.Analyzed, report.Skipped)

	for _, s := range report.Summaries {
		status := "open"
		closedAt := "-"
		if s.ClosedAt != nil {
			status = "closed"
			closedAt = s.ClosedAt.UTC().Format(time.RFC3339)
		}
		fmt.Printf("\nPosition %s (%s)\n", s.Position, status)
		fmt.Printf("  Whirlpool:        %s\n", s.Whirlpool)
		fmt.Printf("  Opened / closed:  %s / %s\n", s.OpenedAt.UTC().Format(time.RFC3339), closedAt)
		fmt.Printf("  Deposited:        $%.2f\n", s.DepositedValue)
		fmt.Printf("  Withdrawn:        $%.2f\n", s.WithdrawnValue)
		if s.CurrentValue > 0 {
			fmt.Printf("  Current value:    $%.2f (+$%.2f fees, +$%.2f rewards, +$%.2f rent)\n",
				s.CurrentValue, s.CollectibleFeesValue, s.CollectibleRewardsValue, s.ReclaimableRent)
		}
		fmt.Printf("  Fees collected:   $%.2f\n", s.CollectedFeesValue)
		fmt.Printf("  Rewards:          $%.2f\n", s.CollectedRewardsValue)
		fmt.Printf("  Costs:            $%.2f fees, $%.2f rent\n", s.TransactionCost, s.PaidRent)
		fmt.Printf("  Profit:           $%.2f (%.2f%% of position size)\n", s.Profit, s.ProfitRatio*100)
		fmt.Printf("  vs. holding:      $%.2f forgone profit, $%.2f opportunity cost\n", s.ForgoneProfit, s.OpportunityCost)
	}

	if len(report.Groups) > 0 {
		fmt.Println("\nGrouped results:")
		for _, g := range report.Groups {
			fmt.Printf("  %s: %d position(s), deposited $%.2f, profit $%.2f\n",
				g.Key, g.Positions, g.Deposited, g.Profit)
		}
	}
}
