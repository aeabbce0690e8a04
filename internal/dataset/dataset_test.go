package dataset

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"gemscope/internal/common"
	"gemscope/internal/warehouse"
)

const sampleCSV = `carat,color,clarity,viewings,price_index,final_price,sold
1.2,D,VS1,5,102.5,5400,1
0.8,E,SI1,3,99.0,3100,0
1.5,D,VVS2,8,101.0,7800,1
0.8,F,SI1,2,98.5,2900,1
`

const featureOnlyCSV = `carat,color,clarity,viewings,price_index
1.0,G,VS2,4,100.0
`

func ingest(t *testing.T, csv, datasetID string) *warehouse.Warehouse {
	t.Helper()

	client, err := warehouse.NewClient(":memory:")
	if err != nil {
		t.Fatalf("Failed to open duckdb: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	csvPath := filepath.Join(t.TempDir(), "data.csv")
	if err := os.WriteFile(csvPath, []byte(csv), 0o600); err != nil {
		t.Fatalf("Failed to write csv: %v", err)
	}

	wh := warehouse.New(client)
	if _, _, err := wh.IngestCSV(context.Background(), datasetID, csvPath); err != nil {
		t.Fatalf("Failed to ingest: %v", err)
	}
	return wh
}

func TestValidateColumns(t *testing.T) {
	tests := []struct {
		name    string
		cols    []string
		wantErr bool
	}{
		{
			name: "all required present",
			cols: []string{"carat", "color", "clarity", "viewings", "price_index"},
		},
		{
			name: "targets and extras allowed",
			cols: []string{"carat", "color", "clarity", "viewings", "price_index", "final_price", "sold", "lot_id"},
		},
		{
			name:    "missing clarity",
			cols:    []string{"carat", "color", "viewings", "price_index"},
			wantErr: true,
		},
		{
			name:    "empty",
			cols:    nil,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateColumns(tt.cols)
			if tt.wantErr {
				if !errors.Is(err, common.ErrValidation) {
					t.Errorf("Expected ErrValidation, got: %v", err)
				}
			} else if err != nil {
				t.Errorf("Expected no error, got: %v", err)
			}
		})
	}
}

func TestLoadFrame(t *testing.T) {
	wh := ingest(t, sampleCSV, "ds-1")

	frame, err := LoadFrame(context.Background(), wh, "ds-1")
	if err != nil {
		t.Fatalf("Failed to load frame: %v", err)
	}

	if frame.Len() != 4 {
		t.Errorf("Expected 4 rows, got %d", frame.Len())
	}
	if !frame.HasTargets() {
		t.Error("Expected targets present")
	}
	if frame.Carat[2] != 1.5 || frame.Color[2] != "D" || frame.Clarity[2] != "VVS2" {
		t.Errorf("Row 2 mismatch: carat=%g color=%q clarity=%q", frame.Carat[2], frame.Color[2], frame.Clarity[2])
	}
	if frame.FinalPrice[0] != 5400 || frame.Sold[1] != 0 {
		t.Errorf("Target values mismatch: price=%g sold=%g", frame.FinalPrice[0], frame.Sold[1])
	}

	row := frame.Row(0)
	if row[common.ColColor] != "D" || row[common.ColViewings] != 5.0 {
		t.Errorf("Row lookup mismatch: %v", row)
	}
}

func TestLoadFrame_FeatureOnly(t *testing.T) {
	wh := ingest(t, featureOnlyCSV, "ds-2")

	frame, err := LoadFrame(context.Background(), wh, "ds-2")
	if err != nil {
		t.Fatalf("Failed to load frame: %v", err)
	}
	if frame.HasTargets() {
		t.Error("Expected no targets for feature-only dataset")
	}
	if frame.Len() != 1 {
		t.Errorf("Expected 1 row, got %d", frame.Len())
	}
}

func TestLoadFrame_MissingDataset(t *testing.T) {
	client, err := warehouse.NewClient(":memory:")
	if err != nil {
		t.Fatalf("Failed to open duckdb: %v", err)
	}
	defer client.Close()

	_, err = LoadFrame(context.Background(), warehouse.New(client), "nope")
	if !errors.Is(err, common.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got: %v", err)
	}
}

func TestBuildProfile(t *testing.T) {
	wh := ingest(t, sampleCSV, "ds-1")

	profile, err := BuildProfile(context.Background(), wh, "ds-1")
	if err != nil {
		t.Fatalf("Failed to build profile: %v", err)
	}

	if profile.RowCount != 4 {
		t.Errorf("Expected 4 rows, got %d", profile.RowCount)
	}
	if !profile.HasTargets() {
		t.Error("Expected targets present")
	}

	carat := profile.Numeric[common.ColCarat]
	if carat.Min != 0.8 || carat.Max != 1.5 {
		t.Errorf("Expected carat range [0.8, 1.5], got [%g, %g]", carat.Min, carat.Max)
	}
	price := profile.Numeric[common.ColFinalPrice]
	if price.Min != 2900 || price.Max != 7800 {
		t.Errorf("Expected price range [2900, 7800], got [%g, %g]", price.Min, price.Max)
	}

	colors := profile.Levels[common.ColColor]
	if len(colors) != 3 || colors[0] != "D" || colors[2] != "F" {
		t.Errorf("Unexpected color levels: %v", colors)
	}
	if profile.Modes[common.ColClarity] != "SI1" {
		t.Errorf("Expected clarity mode SI1, got %q", profile.Modes[common.ColClarity])
	}

	if profile.SoldRate != 0.75 {
		t.Errorf("Expected sold rate 0.75, got %g", profile.SoldRate)
	}
}

func TestBuildProfile_FeatureOnly(t *testing.T) {
	wh := ingest(t, featureOnlyCSV, "ds-2")

	profile, err := BuildProfile(context.Background(), wh, "ds-2")
	if err != nil {
		t.Fatalf("Failed to build profile: %v", err)
	}
	if profile.HasTargets() {
		t.Error("Expected no targets")
	}
	if _, ok := profile.Numeric[common.ColFinalPrice]; ok {
		t.Error("Expected no final_price stats for feature-only dataset")
	}
	if profile.SoldRate != 0 {
		t.Errorf("Expected zero sold rate, got %g", profile.SoldRate)
	}
}
