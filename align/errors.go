package align

import "errors"

// Failure kinds reported by the aligners and the transform type. Call sites
// wrap these with context via fmt.Errorf("...: %w", ...); callers test with
// errors.Is.
var (
	// ErrEmptyCloud is returned when an input cloud has no points.
	ErrEmptyCloud = errors.New("point cloud contains no points")

	// ErrInvalidSelection is returned when the reference selector resolves to
	// anything other than exactly one cloud.
	ErrInvalidSelection = errors.New("selection did not resolve to exactly one cloud")

	// ErrFixedCoefficient is returned on an attempt to write the fixed column
	// of an affine transform.
	ErrFixedCoefficient = errors.New("attempt to write a fixed affine coefficient")

	// ErrNotAffine is returned when applying a transform yields a homogeneous
	// weight other than 1.
	ErrNotAffine = errors.New("transform is not affine")

	// ErrDegeneratePCA is returned when a cloud's covariance matrix is rank
	// deficient, leaving the principal axes undefined.
	ErrDegeneratePCA = errors.New("covariance matrix is rank deficient")

	// ErrDegenerateSVD is returned if the singular value decomposition fails
	// to converge.
	ErrDegenerateSVD = errors.New("singular value decomposition failed")

	// ErrInvalidOutlierWeight is returned when the CPD outlier weight lies
	// outside [0, 1).
	ErrInvalidOutlierWeight = errors.New("outlier weight must be in [0, 1)")

	// ErrNonFinite is returned when an input coordinate is NaN or infinite.
	ErrNonFinite = errors.New("input contains a non-finite coordinate")

	// ErrUnknownMethod is returned when a method string matches no aligner.
	ErrUnknownMethod = errors.New("unknown alignment method")
)
