// Package backtest replays a labeled auction dataset through a
// chronological holdout split. Each model family trains on the earlier
// rows and is scored against the later rows it never saw, so families
// can be compared on the same dataset before one is promoted.
package backtest

import (
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog/log"

	"gemscope/internal/common"
	"gemscope/internal/dataset"
	"gemscope/internal/model"
)

// Params configures one backtest run. Zero values fall back to defaults:
// all model families, a 25% holdout share, seed 42.
type Params struct {
	DatasetID    string
	Families     []string
	HoldoutShare float64
	Seed         int64
}

const defaultHoldoutShare = 0.25

// RowOutcome is one holdout row scored by a trained family: the actual
// auction outcome next to what the model predicted for it.
type RowOutcome struct {
	Row         int     `json:"row"`
	Carat       float64 `json:"carat"`
	Color       string  `json:"color"`
	Clarity     string  `json:"clarity"`
	ActualPrice float64 `json:"actualPrice"`
	PredPrice   float64 `json:"predPrice"`
	ActualSold  bool    `json:"actualSold"`
	PredProb    float64 `json:"predProb"`
	Reserve     float64 `json:"reserve"`
}

// FamilyResult holds one family's holdout scores. RevenueCapture is the
// share of realized sale revenue the price head would have captured,
// sum(min(pred, actual)) / sum(actual) over rows that actually sold.
// ReserveHitRate is the share of actual sales the suggested reserve
// would not have blocked.
type FamilyResult struct {
	Family         string       `json:"family"`
	TrainRows      int          `json:"trainRows"`
	HoldoutRows    int          `json:"holdoutRows"`
	PriceMAE       float64      `json:"priceMae"`
	PriceRMSE      float64      `json:"priceRmse"`
	PriceR2        float64      `json:"priceR2"`
	SaleAccuracy   float64      `json:"saleAccuracy"`
	BrierScore     float64      `json:"brierScore"`
	RevenueCapture float64      `json:"revenueCapture"`
	ReserveHitRate float64      `json:"reserveHitRate"`
	Outcomes       []RowOutcome `json:"-"`
}

// Report is the outcome of one backtest run across all requested
// families. Best names the family with the lowest price RMSE.
type Report struct {
	DatasetID    string         `json:"datasetId"`
	Rows         int            `json:"rows"`
	TrainRows    int            `json:"trainRows"`
	HoldoutRows  int            `json:"holdoutRows"`
	HoldoutShare float64        `json:"holdoutShare"`
	Seed         int64          `json:"seed"`
	Results      []FamilyResult `json:"results"`
	Best         string         `json:"best"`
	GeneratedAt  time.Time      `json:"generatedAt"`
}

// Run trains each requested family on the earlier share of the frame and
// scores it on the later share. The frame must carry target columns.
func Run(frame *dataset.Frame, params Params) (*Report, error) {
	if !frame.HasTargets() {
		return nil, fmt.Errorf("backtest requires final_price and sold columns: %w", common.ErrValidation)
	}

	share := params.HoldoutShare
	if share == 0 {
		share = defaultHoldoutShare
	}
	if share <= 0 || share >= 1 {
		return nil, fmt.Errorf("holdout share must be in (0, 1), got %g: %w", share, common.ErrValidation)
	}

	n := frame.Len()
	holdoutRows := int(math.Round(float64(n) * share))
	if holdoutRows < 1 {
		holdoutRows = 1
	}
	trainRows := n - holdoutRows
	if trainRows < common.MinTrainRows {
		return nil, fmt.Errorf("dataset too small to backtest: %d train rows, need at least %d: %w",
			trainRows, common.MinTrainRows, common.ErrValidation)
	}

	families := params.Families
	if len(families) == 0 {
		families = common.ModelFamilies
	}
	for _, family := range families {
		if !knownFamily(family) {
			return nil, fmt.Errorf("unknown model family %q: %w", family, common.ErrValidation)
		}
	}

	seed := params.Seed
	if seed == 0 {
		seed = common.TrainSeed
	}

	log.Info().
		Str("dataset", params.DatasetID).
		Int("rows", n).
		Int("trainRows", trainRows).
		Int("holdoutRows", holdoutRows).
		Strs("families", families).
		Msg("Starting backtest")

	trainFrame := sliceFrame(frame, 0, trainRows)
	holdoutFrame := sliceFrame(frame, trainRows, n)

	report := &Report{
		DatasetID:    params.DatasetID,
		Rows:         n,
		TrainRows:    trainRows,
		HoldoutRows:  holdoutRows,
		HoldoutShare: share,
		Seed:         seed,
		GeneratedAt:  time.Now().UTC(),
	}

	bestRMSE := math.Inf(1)
	for _, family := range families {
		artifact, _, err := model.Train(trainFrame, model.TrainParams{
			DatasetID: params.DatasetID,
			Family:    family,
			Seed:      seed,
		})
		if err != nil {
			return nil, fmt.Errorf("train %s for backtest: %w", family, err)
		}

		result, err := scoreHoldout(artifact, holdoutFrame, trainRows)
		if err != nil {
			return nil, fmt.Errorf("score %s holdout: %w", family, err)
		}
		result.Family = family
		result.TrainRows = trainRows

		log.Info().
			Str("family", family).
			Float64("priceRmse", result.PriceRMSE).
			Float64("priceR2", result.PriceR2).
			Float64("brier", result.BrierScore).
			Float64("saleAccuracy", result.SaleAccuracy).
			Msg("Backtested family")

		report.Results = append(report.Results, result)
		if result.PriceRMSE < bestRMSE {
			bestRMSE = result.PriceRMSE
			report.Best = family
		}
	}

	return report, nil
}

func knownFamily(family string) bool {
	for _, f := range common.ModelFamilies {
		if f == family {
			return true
		}
	}
	return false
}

// sliceFrame returns the rows [lo, hi) of the frame. Target columns copy
// over when present.
func sliceFrame(f *dataset.Frame, lo, hi int) *dataset.Frame {
	out := &dataset.Frame{
		Carat:      f.Carat[lo:hi],
		Color:      f.Color[lo:hi],
		Clarity:    f.Clarity[lo:hi],
		Viewings:   f.Viewings[lo:hi],
		PriceIndex: f.PriceIndex[lo:hi],
	}
	if len(f.FinalPrice) > 0 {
		out.FinalPrice = f.FinalPrice[lo:hi]
	}
	if len(f.Sold) > 0 {
		out.Sold = f.Sold[lo:hi]
	}
	return out
}

// scoreHoldout runs every holdout row through the artifact and folds the
// errors into family-level scores. rowOffset maps holdout indices back to
// dataset row numbers for the outcome log.
func scoreHoldout(artifact *model.Artifact, holdout *dataset.Frame, rowOffset int) (FamilyResult, error) {
	n := holdout.Len()
	result := FamilyResult{
		HoldoutRows: n,
		Outcomes:    make([]RowOutcome, 0, n),
	}

	var (
		absErrSum, sqErrSum   float64
		actualSum, brierSum   float64
		correct               int
		soldActual, soldPred  float64
		soldCount, reserveHit int
	)

	for i := 0; i < n; i++ {
		candidate := model.Candidate{
			Carat:      holdout.Carat[i],
			Color:      holdout.Color[i],
			Clarity:    holdout.Clarity[i],
			Viewings:   holdout.Viewings[i],
			PriceIndex: holdout.PriceIndex[i],
		}
		predPrice, err := artifact.Predict(candidate)
		if err != nil {
			return FamilyResult{}, fmt.Errorf("predict price for row %d: %w", rowOffset+i, err)
		}
		predProb, err := artifact.PredictProba(candidate)
		if err != nil {
			return FamilyResult{}, fmt.Errorf("predict sale probability for row %d: %w", rowOffset+i, err)
		}

		actualPrice := holdout.FinalPrice[i]
		sold := holdout.Sold[i] >= 0.5
		reserve := model.Reserve(predPrice, predProb)

		diff := predPrice - actualPrice
		absErrSum += math.Abs(diff)
		sqErrSum += diff * diff
		actualSum += actualPrice

		label := 0.0
		if sold {
			label = 1.0
		}
		brierSum += (predProb - label) * (predProb - label)
		if (predProb >= 0.5) == sold {
			correct++
		}

		if sold {
			soldCount++
			soldActual += actualPrice
			soldPred += math.Min(predPrice, actualPrice)
			if actualPrice >= reserve {
				reserveHit++
			}
		}

		result.Outcomes = append(result.Outcomes, RowOutcome{
			Row:         rowOffset + i,
			Carat:       holdout.Carat[i],
			Color:       holdout.Color[i],
			Clarity:     holdout.Clarity[i],
			ActualPrice: actualPrice,
			PredPrice:   predPrice,
			ActualSold:  sold,
			PredProb:    predProb,
			Reserve:     reserve,
		})
	}

	fn := float64(n)
	result.PriceMAE = absErrSum / fn
	result.PriceRMSE = math.Sqrt(sqErrSum / fn)
	result.PriceR2 = rSquared(holdout.FinalPrice, sqErrSum)
	result.SaleAccuracy = float64(correct) / fn
	result.BrierScore = brierSum / fn
	if soldActual > 0 {
		result.RevenueCapture = soldPred / soldActual
	}
	if soldCount > 0 {
		result.ReserveHitRate = float64(reserveHit) / float64(soldCount)
	}
	return result, nil
}

// rSquared computes 1 - SSres/SStot against the actual prices. A constant
// actual column has no variance to explain, so it scores zero.
func rSquared(actual []float64, ssRes float64) float64 {
	var mean float64
	for _, v := range actual {
		mean += v
	}
	mean /= float64(len(actual))

	var ssTot float64
	for _, v := range actual {
		ssTot += (v - mean) * (v - mean)
	}
	if ssTot == 0 {
		return 0
	}
	return 1 - ssRes/ssTot
}
