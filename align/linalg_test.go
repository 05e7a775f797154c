package align

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"
)

func TestRunningSum(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		want   float64
	}{
		{name: "empty", values: nil, want: 0},
		{name: "simple", values: []float64{1, 2, 3}, want: 6},
		{
			name:   "catastrophic cancellation",
			values: []float64{1e16, 1, -1e16},
			want:   1,
		},
		{
			name:   "alternating magnitudes",
			values: []float64{1, 1e100, 1, -1e100},
			want:   2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var s runningSum
			for _, v := range tt.values {
				s.digest(v)
			}
			if got := s.value(); got != tt.want {
				t.Errorf("runningSum = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCentroid(t *testing.T) {
	tests := []struct {
		name   string
		points []r3.Vector
		want   r3.Vector
	}{
		{
			name:   "single point",
			points: []r3.Vector{{X: 5, Y: -3, Z: 7}},
			want:   r3.Vector{X: 5, Y: -3, Z: 7},
		},
		{
			name: "tetrahedron",
			points: []r3.Vector{
				{X: 0, Y: 0, Z: 0}, {X: 2, Y: 0, Z: 0},
				{X: 0, Y: 2, Z: 0}, {X: 0, Y: 0, Z: 2},
			},
			want: r3.Vector{X: 0.5, Y: 0.5, Z: 0.5},
		},
		{
			name:   "symmetric pair",
			points: []r3.Vector{{X: -1e9, Y: 0, Z: 0}, {X: 1e9, Y: 0, Z: 0}},
			want:   r3.Vector{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := centroid(tt.points)
			if !vecsEqual(got, tt.want, epsilon) {
				t.Errorf("centroid = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEigenSymAscending(t *testing.T) {
	// Diagonal matrix: eigenvalues are the entries, ascending.
	a := Mat3{{9, 0, 0}, {0, 1, 0}, {0, 0, 4}}
	vals, vecs, err := eigenSym(a)
	if err != nil {
		t.Fatalf("eigenSym error: %v", err)
	}

	want := [3]float64{1, 4, 9}
	for i := range want {
		if !almostEqual(vals[i], want[i]) {
			t.Errorf("eigenvalue[%d] = %v, want %v", i, vals[i], want[i])
		}
	}

	// Each eigenvector column must satisfy A·v = λ·v and be unit length.
	for k := 0; k < 3; k++ {
		v := vecs.Col(k)
		if !almostEqual(v.Norm(), 1) {
			t.Errorf("eigenvector %d not unit: |v| = %v", k, v.Norm())
		}
		av := a.Apply(v)
		if !vecsEqual(av, v.Mul(vals[k]), 1e-9) {
			t.Errorf("A·v != λ·v for eigenpair %d", k)
		}
	}
}

func TestSVDReconstruction(t *testing.T) {
	tests := []struct {
		name string
		a    Mat3
	}{
		{name: "identity", a: Identity3()},
		{name: "rotation-ish", a: Mat3{{0, -1, 0}, {1, 0, 0}, {0, 0, 1}}},
		{name: "general", a: Mat3{{2, -1, 0.5}, {0.25, 3, -2}, {1, 1, 1}}},
		{name: "rank one", a: Mat3{{1, 2, 3}, {2, 4, 6}, {3, 6, 9}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, s, v, err := svd3(tt.a)
			if err != nil {
				t.Fatalf("svd3 error: %v", err)
			}

			if s[0] < s[1] || s[1] < s[2] || s[2] < 0 {
				t.Errorf("singular values not descending non-negative: %v", s)
			}

			// Reconstruct U·Σ·Vᵀ and compare against A relative to ‖A‖.
			sigma := Mat3{{s[0], 0, 0}, {0, s[1], 0}, {0, 0, s[2]}}
			recon := u.Mul(sigma).Mul(v.Transpose())

			var diff Mat3
			for i := 0; i < 3; i++ {
				for j := 0; j < 3; j++ {
					diff[i][j] = recon[i][j] - tt.a[i][j]
				}
			}
			if diff.frobenius() > 1e-10*tt.a.frobenius() {
				t.Errorf("‖A − UΣVᵀ‖ = %v exceeds 1e-10·‖A‖", diff.frobenius())
			}
		})
	}
}

func TestSVDZeroMatrix(t *testing.T) {
	u, s, v, err := svd3(Mat3{})
	if err != nil {
		t.Fatalf("svd3(zero) error: %v", err)
	}
	if !matsEqual(u, Identity3(), epsilon) || !matsEqual(v, Identity3(), epsilon) {
		t.Errorf("svd3(zero) factors U=%v V=%v, want identity", u, v)
	}
	for i, val := range s {
		if math.IsNaN(val) || val != 0 {
			t.Errorf("singular value[%d] = %v, want 0", i, val)
		}
	}
}

func TestMat3Det(t *testing.T) {
	tests := []struct {
		name string
		a    Mat3
		want float64
	}{
		{name: "identity", a: Identity3(), want: 1},
		{name: "reflection", a: Mat3{{1, 0, 0}, {0, 1, 0}, {0, 0, -1}}, want: -1},
		{name: "singular", a: Mat3{{1, 2, 3}, {2, 4, 6}, {0, 0, 1}}, want: 0},
		{name: "scaled", a: Mat3{{2, 0, 0}, {0, 3, 0}, {0, 0, 4}}, want: 24},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.Det(); !almostEqual(got, tt.want) {
				t.Errorf("Det = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCovarianceSymmetric(t *testing.T) {
	points := []r3.Vector{
		{X: 1, Y: 2, Z: 0}, {X: -1, Y: 0, Z: 3},
		{X: 2, Y: -2, Z: 1}, {X: 0, Y: 1, Z: -1},
	}
	cov := covariance(points, centroid(points))
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			if cov[i][j] != cov[j][i] {
				t.Errorf("covariance not symmetric at (%d,%d)", i, j)
			}
		}
		if cov[i][i] < 0 {
			t.Errorf("negative diagonal at %d: %v", i, cov[i][i])
		}
	}
}

func BenchmarkSVD3(b *testing.B) {
	a := Mat3{{2, -1, 0.5}, {0.25, 3, -2}, {1, 1, 1}}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _, _, _ = svd3(a)
	}
}

func BenchmarkCentroid(b *testing.B) {
	points := make([]r3.Vector, 1000)
	for i := range points {
		points[i] = r3.Vector{X: float64(i), Y: float64(i % 7), Z: float64(i % 13)}
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = centroid(points)
	}
}
