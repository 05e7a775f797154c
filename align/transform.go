package align

import (
	"fmt"
	"math"
	"strings"

	"github.com/golang/geo/r3"
)

// affineTolerance bounds how far the homogeneous weight of an applied point
// may drift from 1 before the transform is rejected as non-affine.
const affineTolerance = 1e-12

// AffineTransform is a 4×4 affine matrix.
//
// The coefficient layout follows the host application's convention:
//
//	(0,0)  (0,1)  (0,2) | (0,3)
//	(1,0)  (1,1)  (1,2) | (1,3)      rows 0-2: linear transform
//	(2,0)  (2,1)  (2,2) | (2,3)      row  3:   translation
//	----------------------------
//	(3,0)  (3,1)  (3,2) | (3,3)
//
// where index i ∈ [0,3] selects the linear rows / translation row and
// j ∈ [0,2] the output coordinate. Column j = 3 is the homogeneous column and
// stays fixed at (0, 0, 0, 1); writing it is refused.
type AffineTransform struct {
	m [4][4]float64
}

// Identity returns the identity transform.
func Identity() AffineTransform {
	var t AffineTransform
	for i := 0; i < 4; i++ {
		t.m[i][i] = 1
	}
	return t
}

// SetCoeff writes coefficient (i, j). Writing the fixed homogeneous column
// (j = 3) or indexing outside the matrix fails with ErrFixedCoefficient.
func (t *AffineTransform) SetCoeff(i, j int, v float64) error {
	if i < 0 || i > 3 || j < 0 || j > 2 {
		return fmt.Errorf("coefficient (%d,%d): %w", i, j, ErrFixedCoefficient)
	}
	t.m[i][j] = v
	return nil
}

// Coeff reads coefficient (i, j) for i, j ∈ [0,3]. Reads outside the matrix
// return 0.
func (t *AffineTransform) Coeff(i, j int) float64 {
	if i < 0 || i > 3 || j < 0 || j > 3 {
		return 0
	}
	return t.m[i][j]
}

// Apply transforms a single point. The homogeneous weight of the result must
// be 1 (within tolerance); otherwise the transform has been corrupted and
// ErrNotAffine is returned.
func (t *AffineTransform) Apply(p r3.Vector) (r3.Vector, error) {
	x := p.X*t.m[0][0] + p.Y*t.m[1][0] + p.Z*t.m[2][0] + t.m[3][0]
	y := p.X*t.m[0][1] + p.Y*t.m[1][1] + p.Z*t.m[2][1] + t.m[3][1]
	z := p.X*t.m[0][2] + p.Y*t.m[1][2] + p.Z*t.m[2][2] + t.m[3][2]
	w := p.X*t.m[0][3] + p.Y*t.m[1][3] + p.Z*t.m[2][3] + t.m[3][3]

	if math.Abs(w-1) > affineTolerance {
		return r3.Vector{}, fmt.Errorf("homogeneous weight %v: %w", w, ErrNotAffine)
	}
	return r3.Vector{X: x, Y: y, Z: z}, nil
}

// ApplyTo transforms every point of the cloud in place, preserving order and
// attributes.
func (t *AffineTransform) ApplyTo(c *Cloud) error {
	for i, p := range c.Points {
		out, err := t.Apply(p)
		if err != nil {
			return fmt.Errorf("cloud %q point %d: %w", cloudName(c), i, err)
		}
		c.Points[i] = out
	}
	return nil
}

// Rotation returns the linear block as a conventional row-major matrix R,
// such that Apply(p) = R·p + Translation().
func (t *AffineTransform) Rotation() Mat3 {
	var r Mat3
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			r[j][i] = t.m[i][j]
		}
	}
	return r
}

// Translation returns the translation column.
func (t *AffineTransform) Translation() r3.Vector {
	return r3.Vector{X: t.m[3][0], Y: t.m[3][1], Z: t.m[3][2]}
}

// setLinear stores a conventional row-major matrix R into the linear block.
func (t *AffineTransform) setLinear(r Mat3) {
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			t.m[i][j] = r[j][i]
		}
	}
}

// setTranslation stores v into the translation row.
func (t *AffineTransform) setTranslation(v r3.Vector) {
	t.m[3][0] = v.X
	t.m[3][1] = v.Y
	t.m[3][2] = v.Z
}

// fromRigid assembles a transform from rotation R and translation v.
func fromRigid(r Mat3, v r3.Vector) AffineTransform {
	t := Identity()
	t.setLinear(r)
	t.setTranslation(v)
	return t
}

// String renders the linear block and translation in the layout the host
// application logs.
func (t *AffineTransform) String() string {
	r := t.Rotation()
	v := t.Translation()
	var b strings.Builder
	fmt.Fprintf(&b, "linear:\n")
	for i := 0; i < 3; i++ {
		fmt.Fprintf(&b, "  ( %12.6g  %12.6g  %12.6g )\n", r[i][0], r[i][1], r[i][2])
	}
	fmt.Fprintf(&b, "translation:\n  ( %12.6g  %12.6g  %12.6g )", v.X, v.Y, v.Z)
	return b.String()
}
