package bandit

import "math"

// Small dense-matrix helpers for the per-arm design matrices. Dimensions here
// are tiny (the context feature count), so plain Gauss-Jordan is plenty.

// pivotTolerance below which a pivot counts as singular.
const pivotTolerance = 1e-12

// identity returns a d×d identity scaled by ridge.
func identity(d int, ridge float64) [][]float64 {
	m := make([][]float64, d)
	for i := range m {
		m[i] = make([]float64, d)
		m[i][i] = ridge
	}
	return m
}

// cloneMatrix deep-copies m.
func cloneMatrix(m [][]float64) [][]float64 {
	out := make([][]float64, len(m))
	for i := range m {
		out[i] = make([]float64, len(m[i]))
		copy(out[i], m[i])
	}
	return out
}

// addOuter adds x·xᵀ to m in place.
func addOuter(m [][]float64, x []float64) {
	for i := range x {
		for j := range x {
			m[i][j] += x[i] * x[j]
		}
	}
}

// matVec returns m·x.
func matVec(m [][]float64, x []float64) []float64 {
	out := make([]float64, len(m))
	for i := range m {
		var s float64
		for j := range x {
			s += m[i][j] * x[j]
		}
		out[i] = s
	}
	return out
}

// dot returns a·b.
func dot(a, b []float64) float64 {
	var s float64
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}

// invert returns the inverse of m via Gauss-Jordan elimination with partial
// pivoting. A singular (or numerically degenerate) matrix yields the identity
// instead, so exploration degrades gracefully rather than producing NaNs.
func invert(m [][]float64) ([][]float64, bool) {
	d := len(m)
	a := cloneMatrix(m)
	inv := identity(d, 1)

	for col := 0; col < d; col++ {
		// Partial pivot: pick the largest remaining entry in this column.
		pivotRow := col
		for r := col + 1; r < d; r++ {
			if math.Abs(a[r][col]) > math.Abs(a[pivotRow][col]) {
				pivotRow = r
			}
		}
		if math.Abs(a[pivotRow][col]) < pivotTolerance {
			return identity(d, 1), false
		}
		a[col], a[pivotRow] = a[pivotRow], a[col]
		inv[col], inv[pivotRow] = inv[pivotRow], inv[col]

		pivot := a[col][col]
		for j := 0; j < d; j++ {
			a[col][j] /= pivot
			inv[col][j] /= pivot
		}

		for r := 0; r < d; r++ {
			if r == col {
				continue
			}
			factor := a[r][col]
			if factor == 0 {
				continue
			}
			for j := 0; j < d; j++ {
				a[r][j] -= factor * a[col][j]
				inv[r][j] -= factor * inv[col][j]
			}
		}
	}

	return inv, true
}
