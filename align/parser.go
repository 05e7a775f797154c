package align

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/golang/geo/r3"
)

// ParseXYZ reads a whitespace-delimited point stream: one point per line as
// "x y z" with an optional fourth scalar attribute. Blank lines and lines
// starting with '#' are skipped. Attribute columns may appear on a subset of
// lines; points without one get attribute 0 once any line carries one.
//
// The reader is the host's concern; the registration core itself never opens
// files.
func ParseXYZ(name string, r io.Reader) (*Cloud, error) {
	cloud := &Cloud{Name: name}
	sawAttr := false

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) < 3 || len(fields) > 4 {
			return nil, fmt.Errorf("line %d: expected 3 or 4 columns, got %d", lineNo, len(fields))
		}

		var coords [3]float64
		for i := 0; i < 3; i++ {
			v, err := strconv.ParseFloat(fields[i], 64)
			if err != nil {
				return nil, fmt.Errorf("line %d column %d: %w", lineNo, i+1, err)
			}
			coords[i] = v
		}
		cloud.Points = append(cloud.Points, r3.Vector{X: coords[0], Y: coords[1], Z: coords[2]})

		attr := 0.0
		if len(fields) == 4 {
			v, err := strconv.ParseFloat(fields[3], 64)
			if err != nil {
				return nil, fmt.Errorf("line %d column 4: %w", lineNo, err)
			}
			attr = v
			sawAttr = true
		}
		cloud.Attrs = append(cloud.Attrs, attr)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading points: %w", err)
	}

	if !sawAttr {
		cloud.Attrs = nil
	}
	if len(cloud.Points) == 0 {
		return nil, fmt.Errorf("cloud %q: %w", name, ErrEmptyCloud)
	}
	return cloud, nil
}

// WriteXYZ writes a cloud in the same format ParseXYZ reads.
func WriteXYZ(w io.Writer, c *Cloud) error {
	bw := bufio.NewWriter(w)
	for i, p := range c.Points {
		var err error
		if c.Attrs != nil {
			_, err = fmt.Fprintf(bw, "%g %g %g %g\n", p.X, p.Y, p.Z, c.Attrs[i])
		} else {
			_, err = fmt.Fprintf(bw, "%g %g %g\n", p.X, p.Y, p.Z)
		}
		if err != nil {
			return fmt.Errorf("writing cloud %q: %w", cloudName(c), err)
		}
	}
	return bw.Flush()
}
