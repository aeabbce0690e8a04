// Package surface evaluates 2D response surfaces over a trained model
// pair: two numeric features sweep their observed dataset ranges while
// every other feature holds at its typical value, and each grid cell is
// scored through both heads.
package surface

import (
	"fmt"
	"math"

	"gemscope/internal/common"
	"gemscope/internal/dataset"
	"gemscope/internal/model"
	"gemscope/internal/warehouse"
)

// Params configures one surface evaluation. Metric defaults to Final
// Price and Points to 25. FixedColor and FixedClarity pin the categorical
// base values; otherwise the dataset modes hold.
type Params struct {
	VarX         string
	VarY         string
	Metric       string
	Points       int
	FixedColor   string
	FixedClarity string
}

// Grid is a full mesh under the meshgrid convention: X[i][j] = xs[j],
// Y[i][j] = ys[i], Z[i][j] the metric at that cell. All three arrays
// share the same Points×Points shape.
type Grid struct {
	X [][]float64 `json:"x"`
	Y [][]float64 `json:"y"`
	Z [][]float64 `json:"z"`
}

// Compute evaluates the surface: VarX sweeps along columns, VarY along
// rows, both spanning their dataset min..max inclusive. Viewings is
// rounded to the nearest integer in every cell, swept or not. VarX may
// equal VarY; the Y assignment wins and the grid degenerates to the
// diagonal sweep. Adapter errors abort the whole grid.
func Compute(profile *dataset.Profile, adapter model.Adapter, params Params) (*Grid, error) {
	if err := validAxis("x", params.VarX); err != nil {
		return nil, err
	}
	if err := validAxis("y", params.VarY); err != nil {
		return nil, err
	}

	metric := params.Metric
	if metric == "" {
		metric = common.MetricFinalPrice
	}
	switch metric {
	case common.MetricFinalPrice, common.MetricSaleProbability, common.MetricExpectedRevenue:
	default:
		return nil, fmt.Errorf("unknown surface metric %q: %w", metric, common.ErrValidation)
	}

	points := params.Points
	if points == 0 {
		points = common.DefaultSurfacePoints
	}
	if points < 2 || points > common.MaxSurfacePoints {
		return nil, fmt.Errorf("points must be between 2 and %d, got %d: %w",
			common.MaxSurfacePoints, points, common.ErrValidation)
	}

	stats := make(map[string]warehouse.NumericStats, len(common.NumericColumns))
	for _, col := range common.NumericColumns {
		s, ok := profile.Numeric[col]
		if !ok {
			return nil, fmt.Errorf("profile has no stats for column %s: %w", col, common.ErrValidation)
		}
		stats[col] = s
	}

	color, err := categoricalBase(profile, common.ColColor, params.FixedColor)
	if err != nil {
		return nil, err
	}
	clarity, err := categoricalBase(profile, common.ColClarity, params.FixedClarity)
	if err != nil {
		return nil, err
	}

	base := model.Candidate{
		Carat:      stats[common.ColCarat].Mean,
		Viewings:   stats[common.ColViewings].Mean,
		PriceIndex: stats[common.ColPriceIndex].Mean,
		Color:      color,
		Clarity:    clarity,
	}
	xs := linspace(stats[params.VarX].Min, stats[params.VarX].Max, points)
	ys := linspace(stats[params.VarY].Min, stats[params.VarY].Max, points)

	grid := &Grid{
		X: make([][]float64, points),
		Y: make([][]float64, points),
		Z: make([][]float64, points),
	}
	for i := 0; i < points; i++ {
		grid.X[i] = make([]float64, points)
		grid.Y[i] = make([]float64, points)
		grid.Z[i] = make([]float64, points)
		for j := 0; j < points; j++ {
			grid.X[i][j] = xs[j]
			grid.Y[i][j] = ys[i]

			candidate := base
			setField(&candidate, params.VarX, xs[j])
			setField(&candidate, params.VarY, ys[i])
			candidate.Viewings = math.Round(candidate.Viewings)

			predPrice, err := adapter.Predict(candidate)
			if err != nil {
				return nil, fmt.Errorf("predict price at cell (%d,%d): %w", i, j, err)
			}
			predProb, err := adapter.PredictProba(candidate)
			if err != nil {
				return nil, fmt.Errorf("predict sale probability at cell (%d,%d): %w", i, j, err)
			}

			switch metric {
			case common.MetricFinalPrice:
				grid.Z[i][j] = predPrice
			case common.MetricSaleProbability:
				grid.Z[i][j] = predProb
			case common.MetricExpectedRevenue:
				grid.Z[i][j] = predPrice * predProb
			}
		}
	}
	return grid, nil
}

func validAxis(name, col string) error {
	for _, c := range common.NumericColumns {
		if col == c {
			return nil
		}
	}
	return fmt.Errorf("%s axis must be one of carat, viewings, price_index, got %q: %w",
		name, col, common.ErrValidation)
}

// categoricalBase returns the fixed override when set, otherwise the
// dataset mode for the column.
func categoricalBase(profile *dataset.Profile, col, fixed string) (string, error) {
	if fixed != "" {
		return fixed, nil
	}
	if mode := profile.Modes[col]; mode != "" {
		return mode, nil
	}
	return "", fmt.Errorf("profile has no %s mode: %w", col, common.ErrValidation)
}

func setField(c *model.Candidate, col string, v float64) {
	switch col {
	case common.ColCarat:
		c.Carat = v
	case common.ColViewings:
		c.Viewings = v
	case common.ColPriceIndex:
		c.PriceIndex = v
	}
}

// linspace returns n evenly spaced values from lo to hi, both endpoints
// included. The last value is pinned to hi to keep float drift out of the
// range edge.
func linspace(lo, hi float64, n int) []float64 {
	values := make([]float64, n)
	step := (hi - lo) / float64(n-1)
	for i := range values {
		values[i] = lo + float64(i)*step
	}
	values[n-1] = hi
	return values
}
