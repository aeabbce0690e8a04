// Package model trains, stores, and serves the two prediction heads every
// search operation runs against: a price regressor and a sale-probability
// classifier. Artifacts are plain JSON documents so a trained model can be
// inspected, diffed, and reloaded without any native runtime.
package model

// Candidate is one auction configuration to score: the three numeric
// features plus the two categorical grades.
type Candidate struct {
	Carat      float64 `json:"carat"`
	Color      string  `json:"color"`
	Clarity    string  `json:"clarity"`
	Viewings   float64 `json:"viewings"`
	PriceIndex float64 `json:"price_index"`
}
