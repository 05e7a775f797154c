package align

import (
	"fmt"
	"log"
)

// Align dispatches a moving/stationary pair to the selected aligner and
// returns the identified transform without applying it.
func Align(moving, stationary *Cloud, method Method, params CPDParams) (AffineTransform, error) {
	switch method {
	case MethodCOM:
		return AlignCOM(moving, stationary)
	case MethodPCA:
		return AlignPCA(moving, stationary)
	case MethodCPD:
		return AlignCPDRigid(moving, stationary, params)
	}
	return AffineTransform{}, fmt.Errorf("method %v: %w", method, ErrUnknownMethod)
}

// AlignPoints registers every cloud matched by movingSel against the single
// cloud matched by refSel, applying each identified transform to the moving
// cloud in place. When the moving selector also matches the reference, the
// reference is aligned against itself and the resulting transform (the
// identity up to numerical error) is applied to it in place like any other
// moving cloud.
//
// The returned map carries the identified transform per moving-cloud name.
func AlignPoints(store *Store, movingSel, refSel string, method Method, params CPDParams) (map[string]AffineTransform, error) {
	refs, err := store.Select(refSel)
	if err != nil {
		return nil, err
	}
	if len(refs) != 1 {
		return nil, fmt.Errorf("reference selector %q matched %d clouds: %w", refSel, len(refs), ErrInvalidSelection)
	}
	ref := refs[0]

	movers, err := store.Select(movingSel)
	if err != nil {
		return nil, err
	}

	transforms := make(map[string]AffineTransform, len(movers))
	for _, moving := range movers {
		log.Printf("aligning %q (%d points) to %q (%d points) via %v",
			cloudName(moving), moving.Len(), cloudName(ref), ref.Len(), method)

		t, err := Align(moving, ref, method, params)
		if err != nil {
			return nil, fmt.Errorf("align %q: %w", cloudName(moving), err)
		}
		if err := t.ApplyTo(moving); err != nil {
			return nil, err
		}
		transforms[moving.Name] = t
	}

	return transforms, nil
}
