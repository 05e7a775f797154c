package align

// AlignCOM computes a rotation-less translation that overlaps the moving
// cloud's centre of mass with the stationary cloud's. It identifies the
// transform only; applying it is the caller's choice.
func AlignCOM(moving, stationary *Cloud) (AffineTransform, error) {
	if err := checkPair(moving, stationary); err != nil {
		return AffineTransform{}, err
	}

	comM := centroid(moving.Points)
	comS := centroid(stationary.Points)

	t := Identity()
	t.setTranslation(comS.Sub(comM))
	return t, nil
}
