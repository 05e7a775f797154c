package align

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/golang/geo/r3"
)

// Cloud is a named, ordered set of 3D points. Attrs optionally carries one
// scalar per point (intensity, dose, label weight, ...); it is preserved by
// transforms and ignored by the aligners. When non-nil it must be parallel to
// Points.
type Cloud struct {
	Name   string
	Points []r3.Vector
	Attrs  []float64
}

// NewCloud builds a cloud without attributes.
func NewCloud(name string, points []r3.Vector) *Cloud {
	return &Cloud{Name: name, Points: points}
}

// Len returns the number of points.
func (c *Cloud) Len() int {
	if c == nil {
		return 0
	}
	return len(c.Points)
}

// Copy returns a deep copy of the cloud.
func (c *Cloud) Copy() *Cloud {
	out := &Cloud{Name: c.Name, Points: make([]r3.Vector, len(c.Points))}
	copy(out.Points, c.Points)
	if c.Attrs != nil {
		out.Attrs = make([]float64, len(c.Attrs))
		copy(out.Attrs, c.Attrs)
	}
	return out
}

// finite reports whether every coordinate of the cloud is a finite number.
func (c *Cloud) finite() bool {
	for _, p := range c.Points {
		if !finiteVec(p) {
			return false
		}
	}
	return true
}

func finiteVec(v r3.Vector) bool {
	return !math.IsNaN(v.X) && !math.IsInf(v.X, 0) &&
		!math.IsNaN(v.Y) && !math.IsInf(v.Y, 0) &&
		!math.IsNaN(v.Z) && !math.IsInf(v.Z, 0)
}

// checkPair validates the common aligner preconditions on a moving/stationary
// pair: both non-empty, all coordinates finite.
func checkPair(moving, stationary *Cloud) error {
	if moving.Len() == 0 {
		return fmt.Errorf("moving cloud %q: %w", cloudName(moving), ErrEmptyCloud)
	}
	if stationary.Len() == 0 {
		return fmt.Errorf("stationary cloud %q: %w", cloudName(stationary), ErrEmptyCloud)
	}
	if !moving.finite() {
		return fmt.Errorf("moving cloud %q: %w", cloudName(moving), ErrNonFinite)
	}
	if !stationary.finite() {
		return fmt.Errorf("stationary cloud %q: %w", cloudName(stationary), ErrNonFinite)
	}
	return nil
}

func cloudName(c *Cloud) string {
	if c == nil || c.Name == "" {
		return "(unnamed)"
	}
	return c.Name
}

// Method selects one of the three aligners.
type Method int

const (
	MethodCOM Method = iota
	MethodPCA
	MethodCPD
)

func (m Method) String() string {
	switch m {
	case MethodCOM:
		return "com"
	case MethodPCA:
		return "pca"
	case MethodCPD:
		return "cpd"
	}
	return fmt.Sprintf("method(%d)", int(m))
}

// Method strings are matched with the same prefix tolerance as the host
// application: "c"/"co"/"com", "p"/"pc"/"pca", "cp"/"cpd". "rigid" is the
// CLI spelling for rigid CPD.
var (
	methodCOMRe = regexp.MustCompile(`^co?m?$`)
	methodPCARe = regexp.MustCompile(`^pc?a?$`)
	methodCPDRe = regexp.MustCompile(`^cp?d?$`)
)

// ParseMethod resolves a method name, case-insensitively and with prefix
// tolerance. Note the bare "c" matches both the COM and CPD patterns; the CPD
// case excludes it explicitly, so "c" resolves to COM and "cp" to CPD.
func ParseMethod(s string) (Method, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	switch {
	case name == "rigid":
		return MethodCPD, nil
	case methodCPDRe.MatchString(name) && name != "c":
		return MethodCPD, nil
	case methodCOMRe.MatchString(name):
		return MethodCOM, nil
	case methodPCARe.MatchString(name):
		return MethodPCA, nil
	}
	return 0, fmt.Errorf("method %q: %w", s, ErrUnknownMethod)
}
