package model

import (
	"math"
	"sort"

	"gemscope/internal/common"
	"gemscope/internal/dataset"
)

// Schema fixes the feature encoding of a trained model: standardization
// stats for the numeric columns and the observed category levels, sorted.
// Encoding is bias + standardized numerics + one-hot color + one-hot
// clarity. Categories unseen at training time encode to the zero vector,
// matching a one-hot encoder that ignores unknowns.
type Schema struct {
	NumericMeans  map[string]float64 `json:"numericMeans"`
	NumericStds   map[string]float64 `json:"numericStds"`
	ColorLevels   []string           `json:"colorLevels"`
	ClarityLevels []string           `json:"clarityLevels"`
}

// Dim returns the encoded feature vector length.
func (s *Schema) Dim() int {
	return 1 + len(common.NumericColumns) + len(s.ColorLevels) + len(s.ClarityLevels)
}

// Encode maps a candidate onto the schema's feature vector.
func (s *Schema) Encode(c Candidate) []float64 {
	x := make([]float64, s.Dim())
	x[0] = 1 // bias

	x[1] = s.standardize(common.ColCarat, c.Carat)
	x[2] = s.standardize(common.ColViewings, c.Viewings)
	x[3] = s.standardize(common.ColPriceIndex, c.PriceIndex)

	offset := 1 + len(common.NumericColumns)
	for i, level := range s.ColorLevels {
		if c.Color == level {
			x[offset+i] = 1
			break
		}
	}
	offset += len(s.ColorLevels)
	for i, level := range s.ClarityLevels {
		if c.Clarity == level {
			x[offset+i] = 1
			break
		}
	}
	return x
}

func (s *Schema) standardize(col string, v float64) float64 {
	std := s.NumericStds[col]
	if std == 0 {
		std = 1
	}
	return (v - s.NumericMeans[col]) / std
}

// buildSchema derives the encoding schema from training rows.
func buildSchema(frame *dataset.Frame) Schema {
	schema := Schema{
		NumericMeans:  make(map[string]float64, len(common.NumericColumns)),
		NumericStds:   make(map[string]float64, len(common.NumericColumns)),
		ColorLevels:   sortedUnique(frame.Color),
		ClarityLevels: sortedUnique(frame.Clarity),
	}
	for col, values := range map[string][]float64{
		common.ColCarat:      frame.Carat,
		common.ColViewings:   frame.Viewings,
		common.ColPriceIndex: frame.PriceIndex,
	} {
		mean, std := meanStd(values)
		schema.NumericMeans[col] = mean
		schema.NumericStds[col] = std
	}
	return schema
}

// encodeFrame encodes every row of the frame into a design matrix.
func encodeFrame(schema *Schema, frame *dataset.Frame) [][]float64 {
	x := make([][]float64, frame.Len())
	for i := range x {
		x[i] = schema.Encode(Candidate{
			Carat:      frame.Carat[i],
			Color:      frame.Color[i],
			Clarity:    frame.Clarity[i],
			Viewings:   frame.Viewings[i],
			PriceIndex: frame.PriceIndex[i],
		})
	}
	return x
}

func sortedUnique(values []string) []string {
	seen := make(map[string]bool, len(values))
	var out []string
	for _, v := range values {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	sort.Strings(out)
	return out
}

func meanStd(values []float64) (mean, std float64) {
	if len(values) == 0 {
		return 0, 0
	}
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))

	var variance float64
	for _, v := range values {
		d := v - mean
		variance += d * d
	}
	variance /= float64(len(values))
	if variance > 0 {
		std = math.Sqrt(variance)
	}
	return mean, std
}
