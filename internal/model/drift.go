package model

import (
	"math"
	"sort"

	"gemscope/internal/common"
	"gemscope/internal/dataset"
)

// DefaultDriftThreshold is the PSI level above which a column counts as
// drifted. 0.2 is the conventional "significant shift" cutoff.
const DefaultDriftThreshold = 0.2

const driftBins = 10

// DriftReport compares a scoring dataset against the dataset a model was
// trained on, column by column.
type DriftReport struct {
	Columns   map[string]float64 `json:"columns"`
	Drifted   []string           `json:"drifted"`
	Threshold float64            `json:"threshold"`
}

// DetectDrift computes the population stability index of every feature
// column between the reference and current frames. A threshold of zero
// uses the default.
func DetectDrift(reference, current *dataset.Frame, threshold float64) *DriftReport {
	if threshold <= 0 {
		threshold = DefaultDriftThreshold
	}

	report := &DriftReport{
		Columns:   make(map[string]float64, len(common.RequiredColumns)),
		Threshold: threshold,
	}

	report.Columns[common.ColCarat] = numericPSI(reference.Carat, current.Carat)
	report.Columns[common.ColViewings] = numericPSI(reference.Viewings, current.Viewings)
	report.Columns[common.ColPriceIndex] = numericPSI(reference.PriceIndex, current.PriceIndex)
	report.Columns[common.ColColor] = categoricalPSI(reference.Color, current.Color)
	report.Columns[common.ColClarity] = categoricalPSI(reference.Clarity, current.Clarity)

	for col, psi := range report.Columns {
		if psi > threshold {
			report.Drifted = append(report.Drifted, col)
		}
	}
	sort.Strings(report.Drifted)
	return report
}

// numericPSI bins both samples over their combined range and accumulates
// (current% - reference%) * ln(current%/reference%), skipping empty bins.
func numericPSI(reference, current []float64) float64 {
	if len(reference) == 0 || len(current) == 0 {
		return 0
	}

	minVal, maxVal := reference[0], reference[0]
	for _, v := range reference {
		minVal = math.Min(minVal, v)
		maxVal = math.Max(maxVal, v)
	}
	for _, v := range current {
		minVal = math.Min(minVal, v)
		maxVal = math.Max(maxVal, v)
	}
	if maxVal == minVal {
		return 0
	}

	binWidth := (maxVal - minVal) / float64(driftBins)
	count := func(values []float64) []int {
		bins := make([]int, driftBins)
		for _, v := range values {
			bin := int((v - minVal) / binWidth)
			if bin >= driftBins {
				bin = driftBins - 1
			}
			if bin < 0 {
				bin = 0
			}
			bins[bin]++
		}
		return bins
	}

	return psiFromCounts(count(reference), count(current), len(reference), len(current))
}

// categoricalPSI treats each observed category as its own bin.
func categoricalPSI(reference, current []string) float64 {
	if len(reference) == 0 || len(current) == 0 {
		return 0
	}

	levels := make(map[string]int)
	for _, v := range reference {
		if _, ok := levels[v]; !ok {
			levels[v] = len(levels)
		}
	}
	for _, v := range current {
		if _, ok := levels[v]; !ok {
			levels[v] = len(levels)
		}
	}

	refBins := make([]int, len(levels))
	curBins := make([]int, len(levels))
	for _, v := range reference {
		refBins[levels[v]]++
	}
	for _, v := range current {
		curBins[levels[v]]++
	}
	return psiFromCounts(refBins, curBins, len(reference), len(current))
}

func psiFromCounts(refBins, curBins []int, refTotal, curTotal int) float64 {
	psi := 0.0
	for i := range refBins {
		refPercent := float64(refBins[i]) / float64(refTotal)
		curPercent := float64(curBins[i]) / float64(curTotal)
		if refPercent > 0 && curPercent > 0 {
			psi += (curPercent - refPercent) * math.Log(curPercent/refPercent)
		}
	}
	return math.Abs(psi)
}
