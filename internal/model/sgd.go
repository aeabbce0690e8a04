package model

import "math"

// sigmoid converts a score to a probability
func sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}

// sgdParams fixes the stochastic gradient descent schedule. Both heads
// use the same schedule so a trained artifact depends only on the data
// and the seed.
type sgdParams struct {
	epochs int
	lr     float64
	l2     float64
}

var defaultSGD = sgdParams{epochs: 200, lr: 0.05, l2: 1e-4}

// trainLogisticSGD fits logistic regression weights with seeded SGD.
// Labels are 0/1. The row visit order reshuffles every epoch from the
// shared rng so runs are reproducible.
func trainLogisticSGD(x [][]float64, y []float64, p sgdParams, shuffle func(n int, swap func(i, j int))) []float64 {
	dim := len(x[0])
	w := make([]float64, dim)
	order := make([]int, len(x))
	for i := range order {
		order[i] = i
	}

	for epoch := 0; epoch < p.epochs; epoch++ {
		shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
		// Step size decays with the epoch for stable convergence.
		step := p.lr / (1 + 0.01*float64(epoch))
		for _, r := range order {
			pred := sigmoid(dot(w, x[r]))
			grad := pred - y[r]
			for i := range w {
				delta := grad * x[r][i]
				if i > 0 {
					delta += p.l2 * w[i]
				}
				w[i] -= step * delta
			}
		}
	}
	return w
}

// trainLinearSGD fits least-squares weights with seeded SGD. Targets are
// standardized internally so the step size works across price scales; the
// returned weights are mapped back to the raw target scale.
func trainLinearSGD(x [][]float64, y []float64, p sgdParams, shuffle func(n int, swap func(i, j int))) []float64 {
	dim := len(x[0])
	mean, std := meanStd(y)
	if std == 0 {
		std = 1
	}
	scaled := make([]float64, len(y))
	for i, v := range y {
		scaled[i] = (v - mean) / std
	}

	w := make([]float64, dim)
	order := make([]int, len(x))
	for i := range order {
		order[i] = i
	}

	for epoch := 0; epoch < p.epochs; epoch++ {
		shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
		step := p.lr / (1 + 0.01*float64(epoch))
		for _, r := range order {
			grad := dot(w, x[r]) - scaled[r]
			for i := range w {
				delta := grad * x[r][i]
				if i > 0 {
					delta += p.l2 * w[i]
				}
				w[i] -= step * delta
			}
		}
	}

	// Undo the target standardization: y = std*(w·x) + mean, and x[0] is
	// the bias input.
	for i := range w {
		w[i] *= std
	}
	w[0] += mean
	return w
}
