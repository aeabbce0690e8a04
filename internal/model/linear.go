package model

import (
	"fmt"
	"math"
)

func dot(a, b []float64) float64 {
	sum := 0.0
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

// y = A * x
func matVecMul(a [][]float64, x []float64) []float64 {
	y := make([]float64, len(a))
	for i := range a {
		y[i] = dot(a[i], x)
	}
	return y
}

// Invert an n x n matrix using Gauss-Jordan.
func invertMatrix(a [][]float64) ([][]float64, error) {
	n := len(a)

	// Build augmented [A | I]
	aug := make([][]float64, n)
	for i := range aug {
		aug[i] = make([]float64, 2*n)
		copy(aug[i], a[i])
		aug[i][n+i] = 1.0
	}

	// Gauss-Jordan elimination with partial pivoting
	for col := 0; col < n; col++ {
		pivotRow := col
		for i := col + 1; i < n; i++ {
			if math.Abs(aug[i][col]) > math.Abs(aug[pivotRow][col]) {
				pivotRow = i
			}
		}
		aug[col], aug[pivotRow] = aug[pivotRow], aug[col]

		pivot := aug[col][col]
		if math.Abs(pivot) < 1e-9 {
			return nil, fmt.Errorf("matrix is singular")
		}

		// Normalize pivot row
		for j := 0; j < 2*n; j++ {
			aug[col][j] /= pivot
		}

		// Eliminate other rows
		for i := 0; i < n; i++ {
			if i == col {
				continue
			}
			factor := aug[i][col]
			for j := 0; j < 2*n; j++ {
				aug[i][j] -= factor * aug[col][j]
			}
		}
	}

	// Extract inverse
	inv := make([][]float64, n)
	for i := range inv {
		inv[i] = make([]float64, n)
		copy(inv[i], aug[i][n:])
	}
	return inv, nil
}

// ridgeSolve fits least-squares weights through the normal equations
// (XᵀX + λI) w = Xᵀy. The bias column is left unpenalized.
func ridgeSolve(x [][]float64, y []float64, lambda float64) ([]float64, error) {
	if len(x) == 0 || len(x) != len(y) {
		return nil, fmt.Errorf("ridge solve: %d rows against %d targets", len(x), len(y))
	}
	dim := len(x[0])

	// A = XᵀX + λI, b = Xᵀy
	a := make([][]float64, dim)
	for i := range a {
		a[i] = make([]float64, dim)
	}
	b := make([]float64, dim)
	for _, row := range x {
		for i := range row {
			for j := range row {
				a[i][j] += row[i] * row[j]
			}
		}
	}
	for r, row := range x {
		for i := range row {
			b[i] += y[r] * row[i]
		}
	}
	for i := 1; i < dim; i++ {
		a[i][i] += lambda
	}

	inv, err := invertMatrix(a)
	if err != nil {
		return nil, err
	}
	return matVecMul(inv, b), nil
}
