package backtest

import (
	"encoding/csv"
	"errors"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	json "github.com/goccy/go-json"

	"gemscope/internal/common"
	"gemscope/internal/dataset"
)

var (
	testColors    = []string{"D", "E", "F", "G"}
	testClarities = []string{"IF", "VVS1", "VS1", "SI1"}
)

// labeledFrame generates rows whose price is an exact linear function of
// the features so the linear families can fit the earlier rows and score
// well on the later ones.
func labeledFrame(n int, seed int64) *dataset.Frame {
	rng := rand.New(rand.NewSource(seed))
	frame := &dataset.Frame{
		Carat:      make([]float64, n),
		Color:      make([]string, n),
		Clarity:    make([]string, n),
		Viewings:   make([]float64, n),
		PriceIndex: make([]float64, n),
		FinalPrice: make([]float64, n),
		Sold:       make([]float64, n),
	}
	for i := 0; i < n; i++ {
		carat := 0.5 + 2.0*rng.Float64()
		color := testColors[rng.Intn(len(testColors))]
		clarity := testClarities[rng.Intn(len(testClarities))]
		viewings := float64(rng.Intn(10) + 1)
		index := 95 + 10*rng.Float64()

		price := 1000 + 3000*carat + 80*viewings + 40*(index-100)
		price += 300 * float64(len(color))
		price += 150 * float64(len(clarity))

		sold := 0.0
		if 0.8*carat+0.3*viewings > 2.5 {
			sold = 1.0
		}

		frame.Carat[i] = carat
		frame.Color[i] = color
		frame.Clarity[i] = clarity
		frame.Viewings[i] = viewings
		frame.PriceIndex[i] = index
		frame.FinalPrice[i] = price
		frame.Sold[i] = sold
	}
	return frame
}

func TestRunScoresAllFamilies(t *testing.T) {
	frame := labeledFrame(200, 7)

	report, err := Run(frame, Params{DatasetID: "ds-backtest"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if report.Rows != 200 || report.TrainRows != 150 || report.HoldoutRows != 50 {
		t.Fatalf("unexpected split: rows=%d train=%d holdout=%d",
			report.Rows, report.TrainRows, report.HoldoutRows)
	}
	if report.Seed != common.TrainSeed {
		t.Errorf("seed = %d, want %d", report.Seed, common.TrainSeed)
	}
	if len(report.Results) != len(common.ModelFamilies) {
		t.Fatalf("got %d results, want %d", len(report.Results), len(common.ModelFamilies))
	}

	byFamily := make(map[string]FamilyResult, len(report.Results))
	for i, result := range report.Results {
		if result.Family != common.ModelFamilies[i] {
			t.Errorf("result %d family = %q, want %q", i, result.Family, common.ModelFamilies[i])
		}
		if result.HoldoutRows != 50 || len(result.Outcomes) != 50 {
			t.Errorf("%s: holdout rows %d, outcomes %d", result.Family, result.HoldoutRows, len(result.Outcomes))
		}
		if result.SaleAccuracy < 0 || result.SaleAccuracy > 1 {
			t.Errorf("%s: sale accuracy %g out of range", result.Family, result.SaleAccuracy)
		}
		if result.BrierScore < 0 || result.BrierScore > 1 {
			t.Errorf("%s: brier %g out of range", result.Family, result.BrierScore)
		}
		if result.RevenueCapture < 0 || result.RevenueCapture > 1 {
			t.Errorf("%s: revenue capture %g out of range", result.Family, result.RevenueCapture)
		}
		if result.ReserveHitRate < 0 || result.ReserveHitRate > 1 {
			t.Errorf("%s: reserve hit rate %g out of range", result.Family, result.ReserveHitRate)
		}
		if math.IsNaN(result.PriceMAE) || math.IsNaN(result.PriceRMSE) || math.IsNaN(result.PriceR2) {
			t.Errorf("%s: NaN price metric", result.Family)
		}
		byFamily[result.Family] = result
	}

	// The price column is an exact linear function of the features, so
	// the ridge head should leave the mean-anchored baseline far behind.
	ridge, baseline := byFamily[common.FamilyRidge], byFamily[common.FamilyBaseline]
	if ridge.PriceR2 < 0.9 {
		t.Errorf("ridge R2 = %g, want > 0.9", ridge.PriceR2)
	}
	if ridge.PriceR2 <= baseline.PriceR2 {
		t.Errorf("ridge R2 %g should beat baseline R2 %g", ridge.PriceR2, baseline.PriceR2)
	}
	if report.Best == "" {
		t.Error("best family not set")
	}
}

func TestRunDeterministic(t *testing.T) {
	frame := labeledFrame(120, 3)

	first, err := Run(frame, Params{DatasetID: "ds-a", Families: []string{common.FamilyRidge}})
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	second, err := Run(frame, Params{DatasetID: "ds-a", Families: []string{common.FamilyRidge}})
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if first.Results[0].PriceRMSE != second.Results[0].PriceRMSE {
		t.Errorf("RMSE differs across runs: %g vs %g",
			first.Results[0].PriceRMSE, second.Results[0].PriceRMSE)
	}
	if first.Results[0].BrierScore != second.Results[0].BrierScore {
		t.Errorf("brier differs across runs: %g vs %g",
			first.Results[0].BrierScore, second.Results[0].BrierScore)
	}
}

func TestRunSingleFamily(t *testing.T) {
	frame := labeledFrame(80, 11)

	report, err := Run(frame, Params{DatasetID: "ds-b", Families: []string{common.FamilyBaseline}})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(report.Results) != 1 {
		t.Fatalf("got %d results, want 1", len(report.Results))
	}
	if report.Best != common.FamilyBaseline {
		t.Errorf("best = %q, want %q", report.Best, common.FamilyBaseline)
	}
}

func TestRunValidation(t *testing.T) {
	frame := labeledFrame(100, 5)

	cases := []struct {
		name   string
		frame  *dataset.Frame
		params Params
	}{
		{"missing targets", &dataset.Frame{
			Carat:      frame.Carat,
			Color:      frame.Color,
			Clarity:    frame.Clarity,
			Viewings:   frame.Viewings,
			PriceIndex: frame.PriceIndex,
		}, Params{}},
		{"share too large", frame, Params{HoldoutShare: 1.5}},
		{"share negative", frame, Params{HoldoutShare: -0.1}},
		{"unknown family", frame, Params{Families: []string{"forest"}}},
		{"too few train rows", labeledFrame(6, 5), Params{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Run(tc.frame, tc.params)
			if !errors.Is(err, common.ErrValidation) {
				t.Fatalf("err = %v, want validation error", err)
			}
		})
	}
}

func TestReporterWritesAllFormats(t *testing.T) {
	frame := labeledFrame(100, 9)
	report, err := Run(frame, Params{DatasetID: "ds-report", Families: []string{common.FamilyRidge}})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	dir := t.TempDir()
	if err := NewReporter(report, dir).GenerateReport(); err != nil {
		t.Fatalf("GenerateReport: %v", err)
	}

	summary, err := os.ReadFile(filepath.Join(dir, "summary.txt"))
	if err != nil {
		t.Fatalf("read summary: %v", err)
	}
	if !strings.Contains(string(summary), "BACKTEST SUMMARY") ||
		!strings.Contains(string(summary), "FAMILY: ridge") {
		t.Errorf("summary missing expected sections:\n%s", summary)
	}

	csvFile, err := os.Open(filepath.Join(dir, "predictions.csv"))
	if err != nil {
		t.Fatalf("open predictions: %v", err)
	}
	defer csvFile.Close()
	rows, err := csv.NewReader(csvFile).ReadAll()
	if err != nil {
		t.Fatalf("parse predictions: %v", err)
	}
	wantRows := 1 + report.HoldoutRows // header + one row per outcome
	if len(rows) != wantRows {
		t.Errorf("prediction log has %d rows, want %d", len(rows), wantRows)
	}
	if rows[0][0] != "family" || rows[0][5] != "actual_price" {
		t.Errorf("unexpected header: %v", rows[0])
	}

	data, err := os.ReadFile(filepath.Join(dir, "results.json"))
	if err != nil {
		t.Fatalf("read results.json: %v", err)
	}
	var decoded Report
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal results.json: %v", err)
	}
	if decoded.DatasetID != "ds-report" || len(decoded.Results) != 1 {
		t.Errorf("decoded report mismatch: %+v", decoded)
	}
}
