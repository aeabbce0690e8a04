package backtest

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
)

// Reporter writes a backtest report to disk in the formats the analysis
// notebooks consume.
type Reporter struct {
	report     *Report
	outputPath string
}

// NewReporter creates a reporter for the given report.
func NewReporter(report *Report, outputPath string) *Reporter {
	return &Reporter{
		report:     report,
		outputPath: outputPath,
	}
}

// GenerateReport writes all report formats into the output directory.
func (r *Reporter) GenerateReport() error {
	if err := os.MkdirAll(r.outputPath, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	if err := r.generateSummary(); err != nil {
		return err
	}
	if err := r.generatePredictionLog(); err != nil {
		return err
	}
	return r.generateJSONReport()
}

// generateSummary writes a human-readable summary.
func (r *Reporter) generateSummary() error {
	summaryPath := filepath.Join(r.outputPath, "summary.txt")
	file, err := os.Create(summaryPath)
	if err != nil {
		return fmt.Errorf("create summary file: %w", err)
	}
	defer file.Close()

	fmt.Fprintf(file, "BACKTEST SUMMARY\n")
	fmt.Fprintf(file, "================\n\n")

	fmt.Fprintf(file, "Dataset: %s\n", r.report.DatasetID)
	fmt.Fprintf(file, "Rows: %d (%d train / %d holdout, %.0f%% holdout)\n",
		r.report.Rows, r.report.TrainRows, r.report.HoldoutRows, r.report.HoldoutShare*100)
	fmt.Fprintf(file, "Seed: %d\n", r.report.Seed)
	fmt.Fprintf(file, "Generated: %s\n\n", r.report.GeneratedAt.Format("2006-01-02 15:04:05"))

	for _, result := range r.report.Results {
		fmt.Fprintf(file, "FAMILY: %s\n", result.Family)
		fmt.Fprintf(file, "-------%s\n", dashes(len(result.Family)))
		fmt.Fprintf(file, "Price MAE: %.2f\n", result.PriceMAE)
		fmt.Fprintf(file, "Price RMSE: %.2f\n", result.PriceRMSE)
		fmt.Fprintf(file, "Price R2: %.4f\n", result.PriceR2)
		fmt.Fprintf(file, "Sale Accuracy: %.2f%%\n", result.SaleAccuracy*100)
		fmt.Fprintf(file, "Brier Score: %.4f\n", result.BrierScore)
		fmt.Fprintf(file, "Revenue Capture: %.2f%%\n", result.RevenueCapture*100)
		fmt.Fprintf(file, "Reserve Hit Rate: %.2f%%\n\n", result.ReserveHitRate*100)
	}

	if r.report.Best != "" {
		fmt.Fprintf(file, "Best family by price RMSE: %s\n", r.report.Best)
	}

	log.Info().Str("file", summaryPath).Msg("Summary report generated")
	return nil
}

// generatePredictionLog writes every holdout outcome as one CSV row.
func (r *Reporter) generatePredictionLog() error {
	csvPath := filepath.Join(r.outputPath, "predictions.csv")
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("create prediction log: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{
		"family", "row", "carat", "color", "clarity",
		"actual_price", "predicted_price", "actual_sold", "predicted_proba", "reserve",
	}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, result := range r.report.Results {
		for _, outcome := range result.Outcomes {
			sold := "0"
			if outcome.ActualSold {
				sold = "1"
			}
			record := []string{
				result.Family,
				strconv.Itoa(outcome.Row),
				fmt.Sprintf("%.2f", outcome.Carat),
				outcome.Color,
				outcome.Clarity,
				fmt.Sprintf("%.2f", outcome.ActualPrice),
				fmt.Sprintf("%.2f", outcome.PredPrice),
				sold,
				fmt.Sprintf("%.4f", outcome.PredProb),
				fmt.Sprintf("%.2f", outcome.Reserve),
			}
			if err := writer.Write(record); err != nil {
				return err
			}
		}
	}

	log.Info().Str("file", csvPath).Msg("Prediction log generated")
	return nil
}

// generateJSONReport writes the full report as JSON.
func (r *Reporter) generateJSONReport() error {
	jsonPath := filepath.Join(r.outputPath, "results.json")

	data, err := json.MarshalIndent(r.report, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	if err := os.WriteFile(jsonPath, data, 0o644); err != nil {
		return fmt.Errorf("write JSON report: %w", err)
	}

	log.Info().Str("file", jsonPath).Msg("JSON report generated")
	return nil
}

// PrintSummary prints the per-family scores to the console.
func (r *Reporter) PrintSummary() {
	fmt.Println("\n=== BACKTEST RESULTS ===")
	fmt.Printf("Dataset: %s (%d rows, %d holdout)\n",
		r.report.DatasetID, r.report.Rows, r.report.HoldoutRows)
	for _, result := range r.report.Results {
		fmt.Printf("%-10s MAE %8.2f  RMSE %8.2f  R2 %6.3f  acc %5.1f%%  brier %.4f\n",
			result.Family, result.PriceMAE, result.PriceRMSE, result.PriceR2,
			result.SaleAccuracy*100, result.BrierScore)
	}
	if r.report.Best != "" {
		fmt.Printf("Best: %s\n", r.report.Best)
	}
	fmt.Println("========================")
}

func dashes(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = '-'
	}
	return string(b)
}
