package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"gemscope/internal/backtest"
	"gemscope/internal/cfg"
	"gemscope/internal/dataset"
	"gemscope/internal/warehouse"
)

func main() {
	var (
		csvPath    = flag.String("csv", "", "Path to a labeled auction CSV (loaded into a scratch warehouse)")
		datasetID  = flag.String("dataset", "", "Registered dataset ID to read from the configured warehouse")
		families   = flag.String("families", "", "Comma-separated model families to test (default: all)")
		holdout    = flag.Float64("holdout", 0, "Holdout share in (0,1) (default: 0.25)")
		seed       = flag.Int64("seed", 0, "Training seed (default: 42)")
		outputPath = flag.String("output", "backtest_results", "Output directory for results")
		logLevel   = flag.String("log-level", "info", "Log level: debug, info, warn, error")
	)
	flag.Parse()

	level, err := zerolog.ParseLevel(*logLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if (*csvPath == "") == (*datasetID == "") {
		log.Fatal().Msg("exactly one of -csv or -dataset is required")
	}

	fmt.Println("=== Backtest Configuration ===")
	if *csvPath != "" {
		fmt.Printf("CSV: %s\n", *csvPath)
	} else {
		fmt.Printf("Dataset: %s\n", *datasetID)
	}
	fmt.Printf("Families: %s\n", orDefault(*families, "all"))
	fmt.Printf("Output Directory: %s\n", *outputPath)
	fmt.Println("==============================")

	ctx := context.Background()
	frame, id, err := loadFrame(ctx, *csvPath, *datasetID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load dataset")
	}

	report, err := backtest.Run(frame, backtest.Params{
		DatasetID:    id,
		Families:     parseFamilies(*families),
		HoldoutShare: *holdout,
		Seed:         *seed,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Backtest failed")
	}

	reporter := backtest.NewReporter(report, *outputPath)
	if err := reporter.GenerateReport(); err != nil {
		log.Error().Err(err).Msg("Failed to generate reports")
	}
	reporter.PrintSummary()

	log.Info().Str("output", *outputPath).Msg("Backtest completed")
}

// loadFrame reads rows either from a standalone CSV via a scratch
// in-memory warehouse, or from the configured warehouse by dataset ID.
func loadFrame(ctx context.Context, csvPath, datasetID string) (*dataset.Frame, string, error) {
	if csvPath != "" {
		client, err := warehouse.NewClient(":memory:")
		if err != nil {
			return nil, "", fmt.Errorf("open scratch warehouse: %w", err)
		}
		defer client.Close()

		wh := warehouse.New(client)
		id := "backtest-csv"
		if _, _, err := wh.IngestCSV(ctx, id, csvPath); err != nil {
			return nil, "", fmt.Errorf("ingest %s: %w", csvPath, err)
		}
		frame, err := dataset.LoadFrame(ctx, wh, id)
		return frame, id, err
	}

	config, err := cfg.Load()
	if err != nil {
		return nil, "", fmt.Errorf("load config: %w", err)
	}
	client, err := warehouse.NewClient(config.WarehousePath)
	if err != nil {
		return nil, "", fmt.Errorf("open warehouse %s: %w", config.WarehousePath, err)
	}
	defer client.Close()

	frame, err := dataset.LoadFrame(ctx, warehouse.New(client), datasetID)
	return frame, datasetID, err
}

// parseFamilies parses comma-separated model families.
func parseFamilies(families string) []string {
	var result []string
	for _, f := range strings.Split(families, ",") {
		f = strings.TrimSpace(f)
		if f != "" {
			result = append(result, f)
		}
	}
	return result
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
