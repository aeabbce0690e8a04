package model

import (
	"fmt"
	"math"
	"math/rand"

	"gemscope/internal/common"
	"gemscope/internal/dataset"
)

// Importance holds per-feature permutation importances for both heads.
// Price importance is the MAE increase after permuting the feature; sale
// importance is the accuracy drop. Larger means the head leans on the
// feature more.
type Importance struct {
	PriceImportance map[string]float64 `json:"price_importance"`
	SaleImportance  map[string]float64 `json:"sale_importance"`
}

// PermutationImportance scores each feature by shuffling its column and
// measuring how much both heads degrade. The frame must carry targets.
// The shuffle order derives from seed, so reports are reproducible.
func PermutationImportance(adapter Adapter, frame *dataset.Frame, seed int64) (*Importance, error) {
	if !frame.HasTargets() {
		return nil, fmt.Errorf("permutation importance needs final_price/sold targets: %w", common.ErrValidation)
	}
	if frame.Len() == 0 {
		return nil, fmt.Errorf("permutation importance needs rows: %w", common.ErrValidation)
	}

	baseMAE, baseAcc, err := scoreFrame(adapter, frame)
	if err != nil {
		return nil, err
	}

	rng := rand.New(rand.NewSource(seed))
	result := &Importance{
		PriceImportance: make(map[string]float64, len(common.RequiredColumns)),
		SaleImportance:  make(map[string]float64, len(common.RequiredColumns)),
	}

	for _, col := range common.RequiredColumns {
		permuted := cloneFrame(frame)
		shuffleColumn(permuted, col, rng)

		mae, acc, err := scoreFrame(adapter, permuted)
		if err != nil {
			return nil, err
		}
		result.PriceImportance[col] = mae - baseMAE
		result.SaleImportance[col] = baseAcc - acc
	}
	return result, nil
}

// scoreFrame evaluates both heads over every row: price MAE and sale
// accuracy at the 0.5 threshold.
func scoreFrame(adapter Adapter, frame *dataset.Frame) (mae, accuracy float64, err error) {
	n := frame.Len()
	var absErr float64
	correct := 0

	for i := 0; i < n; i++ {
		c := Candidate{
			Carat:      frame.Carat[i],
			Color:      frame.Color[i],
			Clarity:    frame.Clarity[i],
			Viewings:   frame.Viewings[i],
			PriceIndex: frame.PriceIndex[i],
		}
		price, err := adapter.Predict(c)
		if err != nil {
			return 0, 0, err
		}
		proba, err := adapter.PredictProba(c)
		if err != nil {
			return 0, 0, err
		}

		absErr += math.Abs(price - frame.FinalPrice[i])
		if (proba >= 0.5) == (frame.Sold[i] >= 0.5) {
			correct++
		}
	}
	return absErr / float64(n), float64(correct) / float64(n), nil
}

func cloneFrame(frame *dataset.Frame) *dataset.Frame {
	clone := &dataset.Frame{
		Carat:      append([]float64(nil), frame.Carat...),
		Color:      append([]string(nil), frame.Color...),
		Clarity:    append([]string(nil), frame.Clarity...),
		Viewings:   append([]float64(nil), frame.Viewings...),
		PriceIndex: append([]float64(nil), frame.PriceIndex...),
	}
	if frame.FinalPrice != nil {
		clone.FinalPrice = append([]float64(nil), frame.FinalPrice...)
	}
	if frame.Sold != nil {
		clone.Sold = append([]float64(nil), frame.Sold...)
	}
	return clone
}

func shuffleColumn(frame *dataset.Frame, col string, rng *rand.Rand) {
	switch col {
	case common.ColCarat:
		rng.Shuffle(len(frame.Carat), func(i, j int) { frame.Carat[i], frame.Carat[j] = frame.Carat[j], frame.Carat[i] })
	case common.ColColor:
		rng.Shuffle(len(frame.Color), func(i, j int) { frame.Color[i], frame.Color[j] = frame.Color[j], frame.Color[i] })
	case common.ColClarity:
		rng.Shuffle(len(frame.Clarity), func(i, j int) { frame.Clarity[i], frame.Clarity[j] = frame.Clarity[j], frame.Clarity[i] })
	case common.ColViewings:
		rng.Shuffle(len(frame.Viewings), func(i, j int) { frame.Viewings[i], frame.Viewings[j] = frame.Viewings[j], frame.Viewings[i] })
	case common.ColPriceIndex:
		rng.Shuffle(len(frame.PriceIndex), func(i, j int) { frame.PriceIndex[i], frame.PriceIndex[j] = frame.PriceIndex[j], frame.PriceIndex[i] })
	}
}
