package bandit

import (
	"math"
	"testing"
)

func TestInvert_Diagonal(t *testing.T) {
	inv, ok := invert([][]float64{{2, 0}, {0, 4}})
	if !ok {
		t.Fatal("diagonal matrix reported singular")
	}
	want := [][]float64{{0.5, 0}, {0, 0.25}}
	for i := range want {
		for j := range want[i] {
			if math.Abs(inv[i][j]-want[i][j]) > 1e-12 {
				t.Errorf("inv[%d][%d] = %v, want %v", i, j, inv[i][j], want[i][j])
			}
		}
	}
}

func TestInvert_RoundTrip(t *testing.T) {
	m := [][]float64{
		{4, 1, 0.5},
		{1, 3, 0.2},
		{0.5, 0.2, 2},
	}
	inv, ok := invert(m)
	if !ok {
		t.Fatal("well-conditioned matrix reported singular")
	}

	// m·inv should reproduce the identity.
	for i := 0; i < 3; i++ {
		row := matVec(m, []float64{inv[0][i], inv[1][i], inv[2][i]})
		for j := 0; j < 3; j++ {
			want := 0.0
			if i == j {
				want = 1.0
			}
			if math.Abs(row[j]-want) > 1e-9 {
				t.Errorf("(m*inv)[%d][%d] = %v, want %v", j, i, row[j], want)
			}
		}
	}
}

func TestInvert_SingularFallsBackToIdentity(t *testing.T) {
	// Second row is a multiple of the first.
	inv, ok := invert([][]float64{{1, 2}, {2, 4}})
	if ok {
		t.Fatal("rank-deficient matrix reported invertible")
	}
	want := identity(2, 1)
	for i := range want {
		for j := range want[i] {
			if inv[i][j] != want[i][j] {
				t.Errorf("fallback[%d][%d] = %v, want identity", i, j, inv[i][j])
			}
		}
	}
}

func TestAddOuter(t *testing.T) {
	m := identity(2, 1)
	addOuter(m, []float64{2, 3})

	want := [][]float64{{5, 6}, {6, 10}}
	for i := range want {
		for j := range want[i] {
			if m[i][j] != want[i][j] {
				t.Errorf("m[%d][%d] = %v, want %v", i, j, m[i][j], want[i][j])
			}
		}
	}
}
