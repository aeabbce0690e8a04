// Package optimize runs a seeded random search over candidate auction
// configurations. Candidates are drawn inside the observed ranges of a
// dataset profile, scored through the trained model pair, and the best
// scoring candidate wins. Identical inputs always produce identical
// results.
package optimize

import (
	"fmt"
	"math"
	"math/rand"

	json "github.com/goccy/go-json"

	"gemscope/internal/common"
	"gemscope/internal/dataset"
	"gemscope/internal/model"
	"gemscope/internal/warehouse"
)

// progressStride is how many samples pass between progress callbacks.
const progressStride = 100

// Params configures one optimizer run. Zero values fall back to defaults:
// objective max_price, 1000 samples, seed 42. TargetPrice and TargetProb
// are only read by the target objective; nil means unset. FixedColor and
// FixedClarity collapse the categorical domains to a single value.
type Params struct {
	Objective    string
	Samples      int
	MinProb      float64
	TargetPrice  *float64
	TargetProb   *float64
	FixedColor   string
	FixedClarity string
	Seed         int64

	// Progress, when set, is called with (done, total) every progressStride
	// samples and once after the final sample. It does not affect the draw
	// sequence.
	Progress func(done, total int)
}

// Result is the winning candidate with its predictions and score. Found is
// false when no sample qualified, which serializes as an empty object.
type Result struct {
	Found          bool    `json:"-"`
	Carat          float64 `json:"carat"`
	Viewings       int     `json:"viewings"`
	PriceIndex     float64 `json:"price_index"`
	Color          string  `json:"color"`
	Clarity        string  `json:"clarity"`
	PredPrice      float64 `json:"pred_price"`
	PredProb       float64 `json:"pred_prob"`
	ObjectiveScore float64 `json:"objective_score"`
}

// MarshalJSON renders an unqualified run as {} rather than a zeroed
// candidate.
func (r Result) MarshalJSON() ([]byte, error) {
	if !r.Found {
		return []byte("{}"), nil
	}
	type plain Result
	return json.Marshal(plain(r))
}

// sampleRanges holds the numeric sampling ranges taken from the profile.
type sampleRanges struct {
	carat      warehouse.NumericStats
	viewings   warehouse.NumericStats
	priceIndex warehouse.NumericStats
}

// Run draws params.Samples random candidates and returns the best one
// under the requested objective. Each sample draws carat, viewings,
// price index, color, and clarity in that order from a rand source seeded
// by params.Seed; viewings is an integer draw inclusive of both range
// endpoints. Scoring errors from the adapter abort the run.
func Run(profile *dataset.Profile, adapter model.Adapter, params Params) (Result, error) {
	objective := params.Objective
	if objective == "" {
		objective = common.ObjectiveMaxPrice
	}
	switch objective {
	case common.ObjectiveMaxPrice, common.ObjectiveMaxProb, common.ObjectiveTarget:
	default:
		return Result{}, fmt.Errorf("unknown objective %q: %w", objective, common.ErrValidation)
	}

	samples := params.Samples
	if samples == 0 {
		samples = common.DefaultOptimizerSamples
	}
	if samples < 1 || samples > common.MaxOptimizerSamples {
		return Result{}, fmt.Errorf("samples must be between 1 and %d, got %d: %w",
			common.MaxOptimizerSamples, samples, common.ErrValidation)
	}

	seed := params.Seed
	if seed == 0 {
		seed = common.DefaultOptimizerSeed
	}

	ranges, err := profileRanges(profile)
	if err != nil {
		return Result{}, err
	}
	colors, err := domain(profile, common.ColColor, params.FixedColor)
	if err != nil {
		return Result{}, err
	}
	clarities, err := domain(profile, common.ColClarity, params.FixedClarity)
	if err != nil {
		return Result{}, err
	}

	rng := rand.New(rand.NewSource(seed))
	best := Result{}
	bestScore := math.Inf(-1)

	for n := 0; n < samples; n++ {
		if params.Progress != nil && n > 0 && n%progressStride == 0 {
			params.Progress(n, samples)
		}

		// Draw order is part of the determinism contract.
		carat := uniformIn(rng, ranges.carat)
		viewings := integerIn(rng, ranges.viewings)
		priceIndex := uniformIn(rng, ranges.priceIndex)
		color := colors[rng.Intn(len(colors))]
		clarity := clarities[rng.Intn(len(clarities))]

		candidate := model.Candidate{
			Carat:      carat,
			Color:      color,
			Clarity:    clarity,
			Viewings:   float64(viewings),
			PriceIndex: priceIndex,
		}
		predPrice, err := adapter.Predict(candidate)
		if err != nil {
			return Result{}, fmt.Errorf("predict price for sample %d: %w", n, err)
		}
		predProb, err := adapter.PredictProba(candidate)
		if err != nil {
			return Result{}, fmt.Errorf("predict sale probability for sample %d: %w", n, err)
		}

		var score float64
		switch objective {
		case common.ObjectiveMaxPrice:
			if predProb < params.MinProb {
				continue
			}
			score = predPrice
		case common.ObjectiveMaxProb:
			score = predProb
		case common.ObjectiveTarget:
			if params.TargetPrice == nil || params.TargetProb == nil {
				continue
			}
			dPrice := predPrice - *params.TargetPrice
			dProb := predProb - *params.TargetProb
			score = -(dPrice*dPrice + dProb*dProb)
		}

		// Strict improvement only, so ties keep the earliest candidate.
		if score > bestScore {
			bestScore = score
			best = Result{
				Found:          true,
				Carat:          carat,
				Viewings:       viewings,
				PriceIndex:     priceIndex,
				Color:          color,
				Clarity:        clarity,
				PredPrice:      predPrice,
				PredProb:       predProb,
				ObjectiveScore: score,
			}
		}
	}
	if params.Progress != nil {
		params.Progress(samples, samples)
	}
	return best, nil
}

// profileRanges pulls the three numeric sampling ranges out of the
// profile. A profile missing stats for a required column is rejected.
func profileRanges(profile *dataset.Profile) (sampleRanges, error) {
	var ranges sampleRanges
	for _, col := range common.NumericColumns {
		stats, ok := profile.Numeric[col]
		if !ok {
			return ranges, fmt.Errorf("profile has no stats for column %s: %w", col, common.ErrValidation)
		}
		switch col {
		case common.ColCarat:
			ranges.carat = stats
		case common.ColViewings:
			ranges.viewings = stats
		case common.ColPriceIndex:
			ranges.priceIndex = stats
		}
	}
	return ranges, nil
}

// domain returns the categorical sampling domain: the fixed override when
// set, otherwise every level observed in the dataset.
func domain(profile *dataset.Profile, col, fixed string) ([]string, error) {
	if fixed != "" {
		return []string{fixed}, nil
	}
	levels := profile.Levels[col]
	if len(levels) == 0 {
		return nil, fmt.Errorf("profile has no %s levels: %w", col, common.ErrValidation)
	}
	return levels, nil
}

func uniformIn(rng *rand.Rand, stats warehouse.NumericStats) float64 {
	return stats.Min + rng.Float64()*(stats.Max-stats.Min)
}

// integerIn draws an integer uniformly between the truncated range
// endpoints, inclusive on both sides.
func integerIn(rng *rand.Rand, stats warehouse.NumericStats) int {
	lo, hi := int(stats.Min), int(stats.Max)
	if hi <= lo {
		return lo
	}
	return lo + rng.Intn(hi-lo+1)
}
