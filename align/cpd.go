package align

import (
	"fmt"
	"math"

	"github.com/golang/geo/r3"
)

// sigmaSquaredFloor is the smallest σ² the EM loop will carry into the next
// E-step; reaching it terminates the iteration.
const sigmaSquaredFloor = 1e-10

// CPDParams configures the rigid Coherent Point Drift aligner.
type CPDParams struct {
	// MaxIterations caps the number of EM iterations. Must be positive.
	MaxIterations int

	// Tolerance terminates the EM loop when successive σ² values differ by
	// at most this. Must be non-negative.
	Tolerance float64

	// W is the probability mass of the uniform-noise mixture component that
	// absorbs outliers. Must lie in [0, 1).
	W float64

	// SigmaSquaredInit overrides the data-driven initial σ² when positive.
	SigmaSquaredInit float64

	// Observer, when non-nil, is invoked after every M-step with the
	// iteration's telemetry. Returning false stops the aligner cleanly with
	// the last computed transform. The observer must not retain or mutate
	// internal state.
	Observer func(CPDIteration) bool
}

// DefaultCPDParams returns the parameters used when the caller has no
// opinion: a generous iteration budget, a tight tolerance, and no outlier
// mass.
func DefaultCPDParams() CPDParams {
	return CPDParams{
		MaxIterations: 100,
		Tolerance:     1e-10,
		W:             0,
	}
}

// CPDIteration is the per-iteration telemetry handed to the observer.
type CPDIteration struct {
	Iteration    int       `json:"iteration"`
	Rotation     Mat3      `json:"rotation"`
	Translation  r3.Vector `json:"translation"`
	SigmaSquared float64   `json:"sigmaSquared"`
}

// CPDResult reports the outcome of a CPD run.
type CPDResult struct {
	Transform    AffineTransform
	Iterations   int
	SigmaSquared float64
	Converged    bool // |Δσ²| ≤ tolerance, σ² hit the floor, or the posterior mass vanished
	Stopped      bool // the observer requested termination
}

// AlignCPDRigid aligns the moving cloud to the stationary cloud with rigid
// Coherent Point Drift and returns the transform. Running out of iterations
// is success: the last computed transform is returned.
func AlignCPDRigid(moving, stationary *Cloud, params CPDParams) (AffineTransform, error) {
	res, err := AlignCPD(moving, stationary, params)
	if err != nil {
		return AffineTransform{}, err
	}
	return res.Transform, nil
}

// AlignCPD runs the rigid CPD EM loop and reports the full result.
//
// The stationary cloud X is treated as data drawn from a Gaussian mixture
// whose centroids are the transformed moving cloud Y, plus a uniform noise
// component with weight W. Each iteration estimates the posterior
// correspondence matrix P (E-step), then recovers the rigid transform and a
// new σ² from the P-weighted centroids and cross-covariance (M-step).
func AlignCPD(moving, stationary *Cloud, params CPDParams) (CPDResult, error) {
	if err := checkPair(moving, stationary); err != nil {
		return CPDResult{}, err
	}
	if params.MaxIterations <= 0 {
		return CPDResult{}, fmt.Errorf("max iterations %d must be positive", params.MaxIterations)
	}
	if params.Tolerance < 0 {
		return CPDResult{}, fmt.Errorf("tolerance %v must be non-negative", params.Tolerance)
	}
	if params.W < 0 || params.W >= 1 {
		return CPDResult{}, fmt.Errorf("w = %v: %w", params.W, ErrInvalidOutlierWeight)
	}

	x := stationary.Points // N×3
	y := moving.Points     // M×3
	n := len(x)
	m := len(y)

	sigma2 := params.SigmaSquaredInit
	if sigma2 <= 0 {
		sigma2 = initialSigmaSquared(x, y)
	}
	if sigma2 < sigmaSquaredFloor {
		sigma2 = sigmaSquaredFloor
	}

	rot := Identity3()
	var trans r3.Vector

	em := &emScratch{
		p:           make([]float64, m*n),
		transformed: make([]r3.Vector, m),
		colP:        make([]float64, n), // Σ_m P(m,n), per column
		rowP:        make([]float64, m), // Σ_n P(m,n), per row
	}

	res := CPDResult{Transform: fromRigid(rot, trans), SigmaSquared: sigma2}

	for iter := 0; iter < params.MaxIterations; iter++ {
		res.Iterations = iter + 1

		np := em.estimatePosterior(x, y, rot, trans, sigma2, params.W)
		if np <= 0 || math.IsNaN(np) {
			// Every pairing underflowed: the data carry no signal at this
			// σ². Keep the last transform and stop.
			res.Converged = true
			break
		}

		newRot, newTrans, newSigma2, err := em.maximize(x, y, np)
		if err != nil {
			return CPDResult{}, err
		}
		if newSigma2 < sigmaSquaredFloor {
			newSigma2 = sigmaSquaredFloor
		}

		rot, trans = newRot, newTrans
		res.Transform = fromRigid(rot, trans)

		if params.Observer != nil {
			keep := params.Observer(CPDIteration{
				Iteration:    iter,
				Rotation:     rot,
				Translation:  trans,
				SigmaSquared: newSigma2,
			})
			if !keep {
				res.SigmaSquared = newSigma2
				res.Stopped = true
				return res, nil
			}
		}

		if math.Abs(newSigma2-sigma2) <= params.Tolerance || newSigma2 <= sigmaSquaredFloor {
			res.SigmaSquared = newSigma2
			res.Converged = true
			return res, nil
		}
		sigma2 = newSigma2
		res.SigmaSquared = sigma2
	}

	// Iteration budget exhausted: the last transform is the answer.
	return res, nil
}

// initialSigmaSquared seeds σ² with the mean pairwise squared distance over
// the dimensionality: σ²₀ = (1 / (N·M·D)) · Σₙ Σₘ ‖xₙ − yₘ‖².
func initialSigmaSquared(x, y []r3.Vector) float64 {
	var sum runningSum
	for _, xn := range x {
		for _, ym := range y {
			sum.digest(xn.Sub(ym).Norm2())
		}
	}
	return sum.value() / (float64(len(x)) * float64(len(y)) * 3)
}

// emScratch owns the per-call EM working set. Nothing in it survives the
// aligner's return.
type emScratch struct {
	p           []float64   // posterior, m rows × n cols, row-major
	transformed []r3.Vector // R·yₘ + t
	colP        []float64
	rowP        []float64
}

// estimatePosterior fills P for the current (R, t, σ²) and returns the total
// posterior mass Np. Each column is normalized with its maximum exponent
// subtracted first, so small σ² cannot underflow every numerator while the
// denominator's uniform term keeps a stale scale.
func (em *emScratch) estimatePosterior(x, y []r3.Vector, rot Mat3, trans r3.Vector, sigma2, w float64) float64 {
	m := len(y)
	n := len(x)

	for i, ym := range y {
		em.transformed[i] = rot.Apply(ym).Add(trans)
	}

	// Uniform-component constant: (2πσ²)^{D/2} · w/(1−w) · M/N.
	c := 0.0
	if w > 0 {
		c = math.Pow(2*math.Pi*sigma2, 1.5) * (w / (1 - w)) * (float64(m) / float64(n))
	}

	inv2s := 1 / (2 * sigma2)
	var np runningSum
	for i := range em.rowP {
		em.rowP[i] = 0
	}

	exponents := make([]float64, m)
	for j, xn := range x {
		maxExp := math.Inf(-1)
		for i := range y {
			e := -xn.Sub(em.transformed[i]).Norm2() * inv2s
			exponents[i] = e
			if e > maxExp {
				maxExp = e
			}
		}

		var sumExp float64
		for i := range y {
			exponents[i] = math.Exp(exponents[i] - maxExp)
			sumExp += exponents[i]
		}

		denom := sumExp + c*math.Exp(-maxExp)
		var colSum float64
		if denom > 0 && !math.IsInf(denom, 1) {
			for i := range y {
				p := exponents[i] / denom
				em.p[i*n+j] = p
				em.rowP[i] += p
				colSum += p
			}
		} else {
			for i := range y {
				em.p[i*n+j] = 0
			}
		}
		em.colP[j] = colSum
		np.digest(colSum)
	}

	return np.value()
}

// maximize recovers the rigid transform and the next σ² from the posterior.
func (em *emScratch) maximize(x, y []r3.Vector, np float64) (Mat3, r3.Vector, float64, error) {
	n := len(x)

	// P-weighted centroids.
	var mux, muy r3.Vector
	for j, xn := range x {
		mux = mux.Add(xn.Mul(em.colP[j]))
	}
	for i, ym := range y {
		muy = muy.Add(ym.Mul(em.rowP[i]))
	}
	mux = mux.Mul(1 / np)
	muy = muy.Mul(1 / np)

	// Cross-covariance A = X̂ᵀ·Pᵀ·Ŷ and the X-side scatter term for σ².
	var a Mat3
	var trXPX runningSum
	for i, ym := range y {
		yhat := ym.Sub(muy)
		row := em.p[i*n : (i+1)*n]
		for j, xn := range x {
			p := row[j]
			if p == 0 {
				continue
			}
			xhat := xn.Sub(mux)
			a[0][0] += p * xhat.X * yhat.X
			a[0][1] += p * xhat.X * yhat.Y
			a[0][2] += p * xhat.X * yhat.Z
			a[1][0] += p * xhat.Y * yhat.X
			a[1][1] += p * xhat.Y * yhat.Y
			a[1][2] += p * xhat.Y * yhat.Z
			a[2][0] += p * xhat.Z * yhat.X
			a[2][1] += p * xhat.Z * yhat.Y
			a[2][2] += p * xhat.Z * yhat.Z
		}
	}
	for j, xn := range x {
		trXPX.digest(em.colP[j] * xn.Sub(mux).Norm2())
	}

	u, _, v, err := svd3(a)
	if err != nil {
		return Mat3{}, r3.Vector{}, 0, err
	}

	// diag(1, 1, det(U·Vᵀ)) rules out reflections.
	d := u.Mul(v.Transpose()).Det()
	c := Identity3()
	c[2][2] = d
	rot := u.Mul(c).Mul(v.Transpose())

	trans := mux.Sub(rot.Apply(muy))

	// σ² = (tr(X̂ᵀ·diag(Pᵀ1)·X̂) − tr(Aᵀ·R)) / (Np·D).
	var trAR float64
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			trAR += a[i][j] * rot[i][j]
		}
	}
	sigma2 := (trXPX.value() - trAR) / (np * 3)
	if sigma2 < 0 || math.IsNaN(sigma2) {
		sigma2 = 0
	}

	return rot, trans, sigma2, nil
}
