package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"gemscope/internal/blob"
	"gemscope/internal/common"
)

// Artifact is a trained model as stored: the encoding schema plus the
// weights of both heads (or the baseline anchors). It satisfies Adapter,
// so a loaded artifact plugs straight into the optimizer and surface
// evaluator.
type Artifact struct {
	ID           string        `json:"id"`
	DatasetID    string        `json:"datasetId"`
	Family       string        `json:"family"`
	Schema       Schema        `json:"schema"`
	PriceWeights []float64     `json:"priceWeights,omitempty"`
	SaleWeights  []float64     `json:"saleWeights,omitempty"`
	Baseline     *BaselineHead `json:"baseline,omitempty"`
	Seed         int64         `json:"seed"`
	TrainedRows  int           `json:"trainedRows"`
	HoldoutRows  int           `json:"holdoutRows"`
	TrainedAt    time.Time     `json:"trainedAt"`
}

// ArtifactKey returns the blob key a model's artifact is stored under.
func ArtifactKey(modelID string) string {
	return "models/" + modelID + "/artifact.json"
}

// Predict returns the expected final price for a candidate.
func (a *Artifact) Predict(c Candidate) (float64, error) {
	switch a.Family {
	case common.FamilyRidge, common.FamilySGD:
		if len(a.PriceWeights) != a.Schema.Dim() {
			return 0, fmt.Errorf("artifact %s: price head has %d weights, schema dimension is %d",
				a.ID, len(a.PriceWeights), a.Schema.Dim())
		}
		return dot(a.PriceWeights, a.Schema.Encode(c)), nil
	case common.FamilyBaseline:
		if a.Baseline == nil {
			return 0, fmt.Errorf("artifact %s: baseline head missing", a.ID)
		}
		return a.Baseline.Price(&a.Schema, c), nil
	default:
		return 0, fmt.Errorf("artifact %s: unknown family %q", a.ID, a.Family)
	}
}

// PredictProba returns the sale probability for a candidate.
func (a *Artifact) PredictProba(c Candidate) (float64, error) {
	switch a.Family {
	case common.FamilyRidge, common.FamilySGD:
		if len(a.SaleWeights) != a.Schema.Dim() {
			return 0, fmt.Errorf("artifact %s: sale head has %d weights, schema dimension is %d",
				a.ID, len(a.SaleWeights), a.Schema.Dim())
		}
		return sigmoid(dot(a.SaleWeights, a.Schema.Encode(c))), nil
	case common.FamilyBaseline:
		if a.Baseline == nil {
			return 0, fmt.Errorf("artifact %s: baseline head missing", a.ID)
		}
		return a.Baseline.Proba(&a.Schema, c), nil
	default:
		return 0, fmt.Errorf("artifact %s: unknown family %q", a.ID, a.Family)
	}
}

// Reserve computes the recommended reserve price from the two heads:
// the predicted price scaled between 80% and 100% by the sale probability.
func Reserve(predPrice, predProba float64) float64 {
	return predPrice * (common.ReserveBaseFraction + common.ReserveProbSpan*predProba)
}

// SaveArtifact writes the artifact to the blob store under its model key.
func SaveArtifact(store *blob.Store, a *Artifact) (string, error) {
	data, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal artifact: %w", err)
	}
	key := ArtifactKey(a.ID)
	if _, err := store.Put(key, bytes.NewReader(data)); err != nil {
		return "", err
	}
	return key, nil
}

// LoadArtifact reads an artifact back from the blob store.
func LoadArtifact(store *blob.Store, key string) (*Artifact, error) {
	r, err := store.Open(key)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	var a Artifact
	if err := json.NewDecoder(r).Decode(&a); err != nil {
		return nil, fmt.Errorf("decode artifact %q: %w", key, err)
	}
	return &a, nil
}
