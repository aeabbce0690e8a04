package model

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"gemscope/internal/common"
	"gemscope/internal/dataset"
)

// TrainParams selects what to train. Zero values fall back to the ridge
// family and the fixed training seed.
type TrainParams struct {
	DatasetID string
	Family    string
	Seed      int64
}

// Metrics holds the holdout evaluation of a training run.
type Metrics struct {
	PriceR2      float64 `json:"price_r2"`
	PriceMAE     float64 `json:"price_mae"`
	SaleAccuracy float64 `json:"sale_accuracy"`
}

// Map returns the metrics as the flat map persisted with model records.
func (m Metrics) Map() map[string]float64 {
	return map[string]float64{
		"price_r2":      m.PriceR2,
		"price_mae":     m.PriceMAE,
		"sale_accuracy": m.SaleAccuracy,
	}
}

// Train fits both heads of the requested family on the frame and evaluates
// them on a held-out split. Degenerate data (a singular normal matrix or
// single-class sale labels) downgrades the run to the baseline family
// instead of failing.
func Train(frame *dataset.Frame, params TrainParams) (*Artifact, Metrics, error) {
	if !frame.HasTargets() {
		return nil, Metrics{}, fmt.Errorf("dataset has no final_price/sold targets: %w", common.ErrValidation)
	}
	if frame.Len() < common.MinTrainRows {
		return nil, Metrics{}, fmt.Errorf("dataset has %d rows, need at least %d: %w",
			frame.Len(), common.MinTrainRows, common.ErrValidation)
	}

	family := params.Family
	if family == "" {
		family = common.FamilyRidge
	}
	if !validFamily(family) {
		return nil, Metrics{}, fmt.Errorf("unknown model family %q: %w", family, common.ErrValidation)
	}
	seed := params.Seed
	if seed == 0 {
		seed = common.TrainSeed
	}

	rng := rand.New(rand.NewSource(seed))
	trainIdx, holdoutIdx := splitIndices(frame.Len(), common.TrainHoldoutShare, rng)

	trainFrame := selectRows(frame, trainIdx)
	holdoutFrame := selectRows(frame, holdoutIdx)
	schema := buildSchema(trainFrame)

	x := encodeFrame(&schema, trainFrame)

	artifact := &Artifact{
		ID:          uuid.NewString(),
		DatasetID:   params.DatasetID,
		Family:      family,
		Schema:      schema,
		Seed:        seed,
		TrainedRows: len(trainIdx),
		HoldoutRows: len(holdoutIdx),
		TrainedAt:   time.Now().UTC(),
	}

	switch family {
	case common.FamilyRidge:
		if singleClass(trainFrame.Sold) {
			fallBack(artifact, trainFrame, "sale labels are single-class")
			break
		}
		priceWeights, err := ridgeSolve(x, trainFrame.FinalPrice, 1.0)
		if err != nil {
			fallBack(artifact, trainFrame, err.Error())
			break
		}
		artifact.PriceWeights = priceWeights
		artifact.SaleWeights = trainLogisticSGD(x, trainFrame.Sold, defaultSGD, rng.Shuffle)
	case common.FamilySGD:
		if singleClass(trainFrame.Sold) {
			fallBack(artifact, trainFrame, "sale labels are single-class")
			break
		}
		artifact.PriceWeights = trainLinearSGD(x, trainFrame.FinalPrice, defaultSGD, rng.Shuffle)
		artifact.SaleWeights = trainLogisticSGD(x, trainFrame.Sold, defaultSGD, rng.Shuffle)
	case common.FamilyBaseline:
		head := fitBaseline(trainFrame)
		artifact.Baseline = &head
	}

	metrics, err := evaluate(artifact, holdoutFrame)
	if err != nil {
		return nil, Metrics{}, err
	}
	return artifact, metrics, nil
}

func validFamily(family string) bool {
	for _, f := range common.ModelFamilies {
		if f == family {
			return true
		}
	}
	return false
}

// fallBack downgrades an artifact to the baseline family.
func fallBack(artifact *Artifact, trainFrame *dataset.Frame, reason string) {
	log.Warn().
		Str("dataset", artifact.DatasetID).
		Str("family", artifact.Family).
		Str("reason", reason).
		Msg("Training data degenerate, falling back to baseline family")
	artifact.Family = common.FamilyBaseline
	head := fitBaseline(trainFrame)
	artifact.Baseline = &head
	artifact.PriceWeights = nil
	artifact.SaleWeights = nil
}

// splitIndices shuffles row indices and carves off the holdout share.
// The holdout size rounds up so small datasets still get evaluated.
func splitIndices(n int, holdoutShare float64, rng *rand.Rand) (train, holdout []int) {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	rng.Shuffle(n, func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })

	nHoldout := int(math.Ceil(float64(n) * holdoutShare))
	if nHoldout >= n {
		nHoldout = n - 1
	}
	return idx[nHoldout:], idx[:nHoldout]
}

// selectRows builds a sub-frame from row indices.
func selectRows(frame *dataset.Frame, idx []int) *dataset.Frame {
	sub := &dataset.Frame{
		Carat:      make([]float64, len(idx)),
		Color:      make([]string, len(idx)),
		Clarity:    make([]string, len(idx)),
		Viewings:   make([]float64, len(idx)),
		PriceIndex: make([]float64, len(idx)),
	}
	if len(frame.FinalPrice) > 0 {
		sub.FinalPrice = make([]float64, len(idx))
	}
	if len(frame.Sold) > 0 {
		sub.Sold = make([]float64, len(idx))
	}
	for i, r := range idx {
		sub.Carat[i] = frame.Carat[r]
		sub.Color[i] = frame.Color[r]
		sub.Clarity[i] = frame.Clarity[r]
		sub.Viewings[i] = frame.Viewings[r]
		sub.PriceIndex[i] = frame.PriceIndex[r]
		if sub.FinalPrice != nil {
			sub.FinalPrice[i] = frame.FinalPrice[r]
		}
		if sub.Sold != nil {
			sub.Sold[i] = frame.Sold[r]
		}
	}
	return sub
}

func singleClass(labels []float64) bool {
	if len(labels) == 0 {
		return true
	}
	first := labels[0] >= 0.5
	for _, l := range labels[1:] {
		if (l >= 0.5) != first {
			return false
		}
	}
	return true
}

// evaluate scores both heads on the holdout rows.
func evaluate(artifact *Artifact, holdout *dataset.Frame) (Metrics, error) {
	var m Metrics
	n := holdout.Len()
	if n == 0 {
		return m, nil
	}

	var absErr, ssRes float64
	meanPrice, _ := meanStd(holdout.FinalPrice)
	var ssTot float64
	correct := 0

	for i := 0; i < n; i++ {
		c := Candidate{
			Carat:      holdout.Carat[i],
			Color:      holdout.Color[i],
			Clarity:    holdout.Clarity[i],
			Viewings:   holdout.Viewings[i],
			PriceIndex: holdout.PriceIndex[i],
		}
		predPrice, err := artifact.Predict(c)
		if err != nil {
			return m, err
		}
		predProba, err := artifact.PredictProba(c)
		if err != nil {
			return m, err
		}

		diff := predPrice - holdout.FinalPrice[i]
		absErr += math.Abs(diff)
		ssRes += diff * diff
		d := holdout.FinalPrice[i] - meanPrice
		ssTot += d * d

		predicted := predProba >= 0.5
		actual := holdout.Sold[i] >= 0.5
		if predicted == actual {
			correct++
		}
	}

	m.PriceMAE = absErr / float64(n)
	if ssTot > 0 {
		m.PriceR2 = 1 - ssRes/ssTot
	}
	m.SaleAccuracy = float64(correct) / float64(n)
	return m, nil
}
