package dataset

import (
	"context"

	"gemscope/internal/common"
	"gemscope/internal/warehouse"
)

// Profile summarizes a dataset: aggregate stats per numeric column and
// level sets plus modes per categorical column. Optimizer ranges and
// surface grid axes both come from here.
type Profile struct {
	RowCount int                               `json:"rowCount"`
	Columns  []string                          `json:"columns"`
	Numeric  map[string]warehouse.NumericStats `json:"numeric"`
	Levels   map[string][]string               `json:"levels"`
	Modes    map[string]string                 `json:"modes"`
	SoldRate float64                           `json:"soldRate,omitempty"`
}

// HasTargets reports whether the profiled dataset carries both target
// columns.
func (p *Profile) HasTargets() bool {
	present := make(map[string]bool, len(p.Columns))
	for _, c := range p.Columns {
		present[c] = true
	}
	return present[common.ColFinalPrice] && present[common.ColSold]
}

// BuildProfile computes the dataset profile with warehouse aggregates.
// The required feature columns must exist.
func BuildProfile(ctx context.Context, wh *warehouse.Warehouse, datasetID string) (*Profile, error) {
	cols, err := wh.Columns(ctx, datasetID)
	if err != nil {
		return nil, err
	}
	if err := ValidateColumns(cols); err != nil {
		return nil, err
	}
	present := make(map[string]bool, len(cols))
	for _, c := range cols {
		present[c] = true
	}

	rows, err := wh.RowCount(ctx, datasetID)
	if err != nil {
		return nil, err
	}

	profile := &Profile{
		RowCount: rows,
		Columns:  cols,
		Numeric:  make(map[string]warehouse.NumericStats),
		Levels:   make(map[string][]string),
		Modes:    make(map[string]string),
	}

	numericCols := append([]string{}, common.NumericColumns...)
	if present[common.ColFinalPrice] {
		numericCols = append(numericCols, common.ColFinalPrice)
	}
	for _, col := range numericCols {
		stats, err := wh.ColumnStats(ctx, datasetID, col)
		if err != nil {
			return nil, err
		}
		profile.Numeric[col] = stats
	}

	for _, col := range common.CategoricalColumns {
		levels, err := wh.DistinctValues(ctx, datasetID, col)
		if err != nil {
			return nil, err
		}
		profile.Levels[col] = levels

		mode, err := wh.Mode(ctx, datasetID, col)
		if err != nil {
			return nil, err
		}
		profile.Modes[col] = mode
	}

	if present[common.ColSold] {
		stats, err := wh.ColumnStats(ctx, datasetID, common.ColSold)
		if err != nil {
			return nil, err
		}
		profile.SoldRate = stats.Mean
	}

	return profile, nil
}
