package align

import (
	"fmt"
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
)

// Mat3 is a row-major 3×3 matrix. It covers the handful of small-matrix
// products the aligners need; factorizations are delegated to gonum.
type Mat3 [3][3]float64

// Identity3 returns the 3×3 identity matrix.
func Identity3() Mat3 {
	return Mat3{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
}

// Mul returns the matrix product a·b.
func (a Mat3) Mul(b Mat3) Mat3 {
	var out Mat3
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out[i][j] = a[i][0]*b[0][j] + a[i][1]*b[1][j] + a[i][2]*b[2][j]
		}
	}
	return out
}

// Transpose returns aᵀ.
func (a Mat3) Transpose() Mat3 {
	var out Mat3
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out[i][j] = a[j][i]
		}
	}
	return out
}

// Apply returns a·v.
func (a Mat3) Apply(v r3.Vector) r3.Vector {
	return r3.Vector{
		X: a[0][0]*v.X + a[0][1]*v.Y + a[0][2]*v.Z,
		Y: a[1][0]*v.X + a[1][1]*v.Y + a[1][2]*v.Z,
		Z: a[2][0]*v.X + a[2][1]*v.Y + a[2][2]*v.Z,
	}
}

// Det returns the determinant by cofactor expansion.
func (a Mat3) Det() float64 {
	return a[0][0]*(a[1][1]*a[2][2]-a[1][2]*a[2][1]) -
		a[0][1]*(a[1][0]*a[2][2]-a[1][2]*a[2][0]) +
		a[0][2]*(a[1][0]*a[2][1]-a[1][1]*a[2][0])
}

// Col returns column j as a vector.
func (a Mat3) Col(j int) r3.Vector {
	return r3.Vector{X: a[0][j], Y: a[1][j], Z: a[2][j]}
}

// setCol stores v into column j.
func (a *Mat3) setCol(j int, v r3.Vector) {
	a[0][j] = v.X
	a[1][j] = v.Y
	a[2][j] = v.Z
}

func (a Mat3) dense() *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		a[0][0], a[0][1], a[0][2],
		a[1][0], a[1][1], a[1][2],
		a[2][0], a[2][1], a[2][2],
	})
}

func fromDense(d *mat.Dense) Mat3 {
	var out Mat3
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out[i][j] = d.At(i, j)
		}
	}
	return out
}

// frobenius returns the Frobenius norm of a.
func (a Mat3) frobenius() float64 {
	var s float64
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			s += a[i][j] * a[i][j]
		}
	}
	return math.Sqrt(s)
}

// runningSum is a Neumaier-compensated accumulator. Centroid and moment
// passes digest values in input order; the compensation term keeps long sums
// of mixed-magnitude coordinates from losing low bits.
type runningSum struct {
	sum  float64
	comp float64
}

func (s *runningSum) digest(v float64) {
	t := s.sum + v
	if math.Abs(s.sum) >= math.Abs(v) {
		s.comp += (s.sum - t) + v
	} else {
		s.comp += (v - t) + s.sum
	}
	s.sum = t
}

func (s *runningSum) value() float64 {
	return s.sum + s.comp
}

// centroid returns the mean of the point set, digested in input order.
func centroid(points []r3.Vector) r3.Vector {
	var sx, sy, sz runningSum
	for _, p := range points {
		sx.digest(p.X)
		sy.digest(p.Y)
		sz.digest(p.Z)
	}
	n := float64(len(points))
	return r3.Vector{X: sx.value() / n, Y: sy.value() / n, Z: sz.value() / n}
}

// covariance builds the un-normalized scatter matrix Σ (p−μ)(p−μ)ᵀ. The 1/N
// factor is omitted: eigenvectors are scale invariant.
func covariance(points []r3.Vector, mean r3.Vector) Mat3 {
	var acc [3][3]runningSum
	for _, p := range points {
		d := p.Sub(mean)
		c := [3]float64{d.X, d.Y, d.Z}
		for i := 0; i < 3; i++ {
			for j := i; j < 3; j++ {
				acc[i][j].digest(c[i] * c[j])
			}
		}
	}
	var out Mat3
	for i := 0; i < 3; i++ {
		for j := i; j < 3; j++ {
			out[i][j] = acc[i][j].value()
			out[j][i] = out[i][j]
		}
	}
	return out
}

// eigenSym decomposes a symmetric matrix into eigenvalues in ascending order
// with the matching orthonormal eigenvectors as columns of the returned
// matrix.
func eigenSym(a Mat3) (vals [3]float64, vecs Mat3, err error) {
	sym := mat.NewSymDense(3, []float64{
		a[0][0], a[0][1], a[0][2],
		a[1][0], a[1][1], a[1][2],
		a[2][0], a[2][1], a[2][2],
	})
	var es mat.EigenSym
	if !es.Factorize(sym, true) {
		return vals, Identity3(), fmt.Errorf("symmetric eigendecomposition: %w", ErrDegenerateSVD)
	}
	v := es.Values(nil)
	vals[0], vals[1], vals[2] = v[0], v[1], v[2]
	var vec mat.Dense
	es.VectorsTo(&vec)
	return vals, fromDense(&vec), nil
}

// svd3 computes A = U·Σ·Vᵀ with singular values non-negative descending. A
// zero matrix yields identity factors rather than NaN.
func svd3(a Mat3) (u Mat3, s [3]float64, v Mat3, err error) {
	if a.frobenius() == 0 {
		return Identity3(), s, Identity3(), nil
	}
	var svd mat.SVD
	if !svd.Factorize(a.dense(), mat.SVDFull) {
		return u, s, v, fmt.Errorf("3x3 svd: %w", ErrDegenerateSVD)
	}
	vals := svd.Values(nil)
	s[0], s[1], s[2] = vals[0], vals[1], vals[2]
	var ud, vd mat.Dense
	svd.UTo(&ud)
	svd.VTo(&vd)
	return fromDense(&ud), s, fromDense(&vd), nil
}
