// internal/export/export.go

// Package export writes analysis results to disk.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/rovshanmuradov/whirlpool-pnl/internal/ledger"
)

// ExportFormat represents the export file format
type ExportFormat string

const (
	FormatCSV  ExportFormat = "csv"
	FormatJSON ExportFormat = "json"
)

// ExportOptions configures the export behavior
type ExportOptions struct {
	Format     ExportFormat
	OutputPath string // exact file path; empty generates one in OutputDir
	OutputDir  string
	OnlyClosed bool // drop positions still open
}

// SummaryExporter writes position summaries to CSV or JSON
type SummaryExporter struct {
	logger *zap.Logger
}

func NewSummaryExporter(logger *zap.Logger) *SummaryExporter {
	return &SummaryExporter{
		logger: logger.Named("export"),
	}
}

// ExportSummaries writes the summaries and returns the output path.
func (se *SummaryExporter) ExportSummaries(summaries []*ledger.Summary, options ExportOptions) (string, error) {
	filtered := se.filterSummaries(summaries, options)
	if len(filtered) == 0 {
		return "", fmt.Errorf("no positions match the export criteria")
	}

	// Oldest opening first, the natural reading order.
	sort.Slice(filtered, func(i, j int) bool {
		return filtered[i].OpenedAt.Before(filtered[j].OpenedAt)
	})

	outputPath := options.OutputPath
	if outputPath == "" {
		outputPath = filepath.Join(options.OutputDir, se.generateFilename(options))
	}
	if dir := filepath.Dir(outputPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return "", fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	var err error
	switch options.Format {
	case FormatCSV:
		err = se.exportToCSV(filtered, outputPath)
	case FormatJSON:
		err = se.exportToJSON(filtered, outputPath)
	default:
		err = fmt.Errorf("unsupported format: %s", options.Format)
	}
	if err != nil {
		return "", err
	}

	se.logger.Info("Summaries exported",
		zap.String("file", outputPath),
		zap.Int("count", len(filtered)),
		zap.String("format", string(options.Format)))

	return outputPath, nil
}

func (se *SummaryExporter) filterSummaries(summaries []*ledger.Summary, options ExportOptions) []*ledger.Summary {
	var filtered []*ledger.Summary
	for _, summary := range summaries {
		if options.OnlyClosed && summary.ClosedAt == nil {
			continue
		}
		filtered = append(filtered, summary)
	}
	return filtered
}

func (se *SummaryExporter) generateFilename(options ExportOptions) string {
	timestamp := time.Now().Format("20060102_150405")
	return fmt.Sprintf("positions_%s.%s", timestamp, options.Format)
}

func (se *SummaryExporter) exportToCSV(summaries []*ledger.Summary, outputPath string) error {
	file, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	if err := writer.Write(ledger.CSVHeaders()); err != nil {
		return fmt.Errorf("failed to write CSV headers: %w", err)
	}
	for _, summary := range summaries {
		if err := writer.Write(summary.ToCSV()); err != nil {
			return fmt.Errorf("failed to write summary row: %w", err)
		}
	}

	writer.Flush()
	return writer.Error()
}

func (se *SummaryExporter) exportToJSON(summaries []*ledger.Summary, outputPath string) error {
	file, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create JSON file: %w", err)
	}
	defer file.Close()

	exportData := struct {
		ExportTime    time.Time         `json:"export_time"`
		PositionCount int               `json:"position_count"`
		Positions     []*ledger.Summary `json:"positions"`
		Aggregate     ExportAggregate   `json:"aggregate"`
	}{
		ExportTime:    time.Now().UTC(),
		PositionCount: len(summaries),
		Positions:     summaries,
		Aggregate:     se.calculateAggregate(summaries),
	}

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(exportData); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}

	return nil
}

// ExportAggregate carries run-level statistics alongside the rows.
type ExportAggregate struct {
	TotalPositions  int     `json:"total_positions"`
	ClosedPositions int     `json:"closed_positions"`
	OpenPositions   int     `json:"open_positions"`
	TotalDeposited  float64 `json:"total_deposited"`
	TotalProfit     float64 `json:"total_profit"`
	ProfitableCount int     `json:"profitable_count"`
	WinRate         float64 `json:"win_rate"`
	AvgProfit       float64 `json:"avg_profit"`
}

func (se *SummaryExporter) calculateAggregate(summaries []*ledger.Summary) ExportAggregate {
	agg := ExportAggregate{TotalPositions: len(summaries)}
	if len(summaries) == 0 {
		return agg
	}

	for _, summary := range summaries {
		if summary.ClosedAt != nil {
			agg.ClosedPositions++
		} else {
			agg.OpenPositions++
		}
		agg.TotalDeposited += summary.DepositedValue
		agg.TotalProfit += summary.Profit
		if summary.Profit > 0 {
			agg.ProfitableCount++
		}
	}

	agg.WinRate = float64(agg.ProfitableCount) / float64(len(summaries)) * 100
	agg.AvgProfit = agg.TotalProfit / float64(len(summaries))
	return agg
}
