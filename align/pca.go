package align

import (
	"fmt"
	"math"

	"github.com/golang/geo/r3"
)

// pcaRankTolerance is the relative threshold below which the smallest
// eigenvalue of the scatter matrix marks the cloud as degenerate. The test is
// relative because the scatter matrix is not normalized by N.
const pcaRankTolerance = 1e-12

// AlignPCA aligns the moving cloud to the stationary cloud by matching their
// principal axes. Each cloud's axes come from the eigendecomposition of its
// centred scatter matrix; the direction of each axis is fixed by the sign of
// the third central moment along it. The second moment cannot distinguish a
// direction from its opposite, and the first is eliminated by centring, so
// the skew is the lowest moment that can orient an axis.
//
// The result may include a reflection (det −1) when the moment signs flip an
// odd number of axes; callers that need a proper rotation use CPD.
func AlignPCA(moving, stationary *Cloud) (AffineTransform, error) {
	if err := checkPair(moving, stationary); err != nil {
		return AffineTransform{}, err
	}

	comM := centroid(moving.Points)
	comS := centroid(stationary.Points)

	basisM, err := principalBasis(moving, comM)
	if err != nil {
		return AffineTransform{}, err
	}
	basisS, err := principalBasis(stationary, comS)
	if err != nil {
		return AffineTransform{}, err
	}

	// Both bases are orthonormal column matrices, so the map M → S is
	// A = S·Mᵀ (Mᵀ = M⁻¹).
	a := basisS.Mul(basisM.Transpose())

	// The centring is implicit, so fold it into the translation:
	// A·(p − μm) + μs = A·p + (μs − A·μm).
	b := comS.Sub(a.Apply(comM))

	return fromRigid(a, b), nil
}

// principalBasis returns the cloud's moment-oriented principal axes as the
// columns of an orthonormal matrix, ordered by ascending eigenvalue. The
// ordering itself is arbitrary but must be identical for both clouds.
func principalBasis(c *Cloud, com r3.Vector) (Mat3, error) {
	if c.Len() < 3 {
		return Mat3{}, fmt.Errorf("cloud %q has %d points: %w", cloudName(c), c.Len(), ErrDegeneratePCA)
	}

	cov := covariance(c.Points, com)
	vals, vecs, err := eigenSym(cov)
	if err != nil {
		return Mat3{}, fmt.Errorf("cloud %q: %w", cloudName(c), err)
	}
	if vals[2] <= 0 || vals[0] <= pcaRankTolerance*vals[2] {
		return Mat3{}, fmt.Errorf("cloud %q: %w", cloudName(c), ErrDegeneratePCA)
	}

	for k := 0; k < 3; k++ {
		axis := vecs.Col(k)
		var skew runningSum
		for _, p := range c.Points {
			proj := p.Sub(com).Dot(axis)
			skew.digest(proj * proj * proj)
		}
		// A zero third moment (perfectly symmetric cloud) leaves the axis
		// as-is; the alignment is then defined only up to reflection.
		if skew.value() < 0 {
			vecs.setCol(k, axis.Mul(-1))
		}
	}

	// Eigenvectors from the decomposition are orthonormal; re-normalize the
	// columns anyway so the basis product stays orthonormal to machine
	// precision after the sign pass.
	for k := 0; k < 3; k++ {
		axis := vecs.Col(k)
		n := axis.Norm()
		if math.Abs(n-1) > 1e-14 {
			vecs.setCol(k, axis.Mul(1/n))
		}
	}

	return vecs, nil
}
