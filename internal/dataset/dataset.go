// Package dataset loads registered auction datasets out of the warehouse
// and derives the column profiles that drive optimizer ranges, surface
// grids, and training frames.
package dataset

import (
	"context"
	"fmt"
	"strings"

	"gemscope/internal/common"
	"gemscope/internal/warehouse"
)

// Frame holds one dataset in column form. Target columns are nil when the
// dataset was registered without them.
type Frame struct {
	Carat      []float64
	Color      []string
	Clarity    []string
	Viewings   []float64
	PriceIndex []float64
	FinalPrice []float64
	Sold       []float64
}

// Len returns the number of rows.
func (f *Frame) Len() int {
	return len(f.Carat)
}

// HasTargets reports whether both target columns are present.
func (f *Frame) HasTargets() bool {
	return len(f.FinalPrice) > 0 && len(f.Sold) > 0
}

// Row returns the feature values of row i as a lookup by column name.
func (f *Frame) Row(i int) map[string]any {
	return map[string]any{
		common.ColCarat:      f.Carat[i],
		common.ColColor:      f.Color[i],
		common.ColClarity:    f.Clarity[i],
		common.ColViewings:   f.Viewings[i],
		common.ColPriceIndex: f.PriceIndex[i],
	}
}

// ValidateColumns checks that every required feature column is present.
func ValidateColumns(cols []string) error {
	present := make(map[string]bool, len(cols))
	for _, c := range cols {
		present[c] = true
	}

	var missing []string
	for _, c := range common.RequiredColumns {
		if !present[c] {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("dataset is missing required columns %s: %w",
			strings.Join(missing, ", "), common.ErrValidation)
	}
	return nil
}

// LoadFrame reads the dataset's columns out of the warehouse. The required
// feature columns must exist; final_price and sold load only when present.
func LoadFrame(ctx context.Context, wh *warehouse.Warehouse, datasetID string) (*Frame, error) {
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

	frame := &Frame{}
	if frame.Carat, err = wh.ReadFloats(ctx, datasetID, common.ColCarat); err != nil {
		return nil, err
	}
	if frame.Color, err = wh.ReadStrings(ctx, datasetID, common.ColColor); err != nil {
		return nil, err
	}
	if frame.Clarity, err = wh.ReadStrings(ctx, datasetID, common.ColClarity); err != nil {
		return nil, err
	}
	if frame.Viewings, err = wh.ReadFloats(ctx, datasetID, common.ColViewings); err != nil {
		return nil, err
	}
	if frame.PriceIndex, err = wh.ReadFloats(ctx, datasetID, common.ColPriceIndex); err != nil {
		return nil, err
	}
	if present[common.ColFinalPrice] {
		if frame.FinalPrice, err = wh.ReadFloats(ctx, datasetID, common.ColFinalPrice); err != nil {
			return nil, err
		}
	}
	if present[common.ColSold] {
		if frame.Sold, err = wh.ReadFloats(ctx, datasetID, common.ColSold); err != nil {
			return nil, err
		}
	}
	return frame, nil
}
