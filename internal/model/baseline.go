package model

import (
	"math"

	"gemscope/internal/common"
	"gemscope/internal/dataset"
)

// Baseline feature weights. Carat dominates, the demand signals refine.
const (
	baselineCaratWeight    = 0.6
	baselineViewingsWeight = 0.25
	baselineIndexWeight    = 0.15
	baselinePriceSwing     = 0.5 // max relative move away from the mean price
)

// BaselineHead is the heuristic family: price anchored at the training
// mean, sale probability anchored at the training sold rate, both shifted
// by a weighted score over the standardized numeric features. It needs no
// fitting beyond the anchors, which makes it the fallback when the linear
// families hit degenerate data.
type BaselineHead struct {
	MeanPrice float64 `json:"meanPrice"`
	SoldLogit float64 `json:"soldLogit"`
}

// fitBaseline computes the anchors from training rows. The sold rate is
// clamped away from 0 and 1 so the logit stays finite on single-class data.
func fitBaseline(frame *dataset.Frame) BaselineHead {
	meanPrice, _ := meanStd(frame.FinalPrice)
	soldRate, _ := meanStd(frame.Sold)
	soldRate = math.Min(0.95, math.Max(0.05, soldRate))
	return BaselineHead{
		MeanPrice: meanPrice,
		SoldLogit: math.Log(soldRate / (1 - soldRate)),
	}
}

// score combines the standardized numeric features into one signal.
func (b *BaselineHead) score(schema *Schema, c Candidate) float64 {
	carat := math.Tanh(schema.standardize(common.ColCarat, c.Carat))
	viewings := math.Tanh(schema.standardize(common.ColViewings, c.Viewings))
	index := math.Tanh(schema.standardize(common.ColPriceIndex, c.PriceIndex))
	return baselineCaratWeight*carat + baselineViewingsWeight*viewings + baselineIndexWeight*index
}

// Price predicts the final price for a candidate.
func (b *BaselineHead) Price(schema *Schema, c Candidate) float64 {
	price := b.MeanPrice * (1 + baselinePriceSwing*b.score(schema, c))
	if price < 0 {
		return 0
	}
	return price
}

// Proba predicts the sale probability for a candidate.
func (b *BaselineHead) Proba(schema *Schema, c Candidate) float64 {
	return sigmoid(b.SoldLogit + b.score(schema, c))
}
