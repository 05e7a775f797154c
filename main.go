package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/kwv/pointalign/align"
)

// stringList collects a repeatable flag.
type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }

func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

var (
	movingFiles    stringList
	stationaryFile string
	methodName     string
	iterations     int
	tuneW          float64
	sigma0         float64
	tolerance      float64
	configFile     string
	outputDir      string
	telemetryMode  bool
)

func init() {
	flag.Var(&movingFiles, "m", "Moving point file, one 'x y z [attr]' per line (repeatable)")
	flag.StringVar(&stationaryFile, "s", "", "Stationary (reference) point file")
	flag.StringVar(&methodName, "type", "", "Alignment algorithm: com, pca, cpd (or 'rigid' for cpd)")
	flag.StringVar(&methodName, "t", "", "Alias for --type")
	flag.IntVar(&iterations, "d", 0, "Maximum EM iterations for cpd (default 100)")
	// The upstream driver declared both --type and --tune on -t; tune lives
	// on -T here so the two stay addressable.
	flag.Float64Var(&tuneW, "tune", -1, "CPD outlier weight w in [0,1): mass given to the uniform-noise component")
	flag.Float64Var(&tuneW, "T", -1, "Alias for --tune")
	flag.Float64Var(&sigma0, "sigma0", 0, "Initial sigma-squared for cpd (default: derived from the data)")
	flag.Float64Var(&tolerance, "tolerance", -1, "CPD convergence tolerance on sigma-squared (default 1e-10)")
	flag.StringVar(&configFile, "config", "", "Optional YAML configuration file")
	flag.StringVar(&outputDir, "o", "", "Directory to write aligned clouds as XYZ files")
	flag.BoolVar(&telemetryMode, "telemetry", false, "Publish registration telemetry to the configured MQTT broker")
}

func main() {
	os.Exit(run())
}

func run() int {
	flag.Parse()

	cfg := &align.Config{}
	if configFile != "" {
		loaded, err := align.LoadConfig(configFile)
		if err != nil {
			return fail(err)
		}
		cfg = loaded
	} else if err := cfg.Validate(); err != nil {
		return fail(err)
	}

	name := methodName
	if name == "" {
		name = cfg.Method
	}
	method, err := align.ParseMethod(name)
	if err != nil {
		return fail(err)
	}

	if stationaryFile == "" {
		return fail(fmt.Errorf("a stationary point file is required (-s)"))
	}
	if len(movingFiles) == 0 {
		return fail(fmt.Errorf("at least one moving point file is required (-m)"))
	}

	params, err := buildCPDParams(cfg, iterations, tuneW, sigma0, tolerance)
	if err != nil {
		return fail(err)
	}

	stationary, err := loadCloud(stationaryFile)
	if err != nil {
		return fail(err)
	}

	var pub *align.TelemetryPublisher
	if telemetryMode {
		client, err := align.ConnectTelemetry(cfg.Telemetry)
		if err != nil {
			return fail(err)
		}
		if client != nil {
			defer client.Disconnect(250)
			pub = align.NewTelemetryPublisher(client, cfg.Telemetry)
		}
	}

	for _, path := range movingFiles {
		moving, err := loadCloud(path)
		if err != nil {
			return fail(err)
		}

		var (
			t      align.AffineTransform
			result *align.CPDResult
		)
		if method == align.MethodCPD {
			p := params
			if pub != nil {
				p.Observer = pub.Observer(moving.Name)
			}
			res, err := align.AlignCPD(moving, stationary, p)
			if err != nil {
				return fail(fmt.Errorf("align %q: %w", moving.Name, err))
			}
			t = res.Transform
			result = &res
			log.Printf("cpd: %q converged=%v after %d iterations (sigma2=%g)",
				moving.Name, res.Converged, res.Iterations, res.SigmaSquared)
		} else {
			t, err = align.Align(moving, stationary, method, params)
			if err != nil {
				return fail(fmt.Errorf("align %q: %w", moving.Name, err))
			}
		}

		fmt.Printf("%s -> %s (%v)\n%s\n", moving.Name, stationary.Name, method, t.String())

		if err := t.ApplyTo(moving); err != nil {
			return fail(err)
		}

		if pub != nil {
			if err := pub.PublishTransform(moving.Name, method, t, result); err != nil {
				log.Printf("telemetry: %v", err)
			}
		}

		if outputDir != "" {
			if err := writeCloud(outputDir, moving); err != nil {
				return fail(err)
			}
		}
	}

	return 0
}

// buildCPDParams merges CLI overrides over the config-file defaults. A
// non-positive iteration count or σ², or a negative w or tolerance, means
// "flag not given".
func buildCPDParams(cfg *align.Config, iters int, w, s0, tol float64) (align.CPDParams, error) {
	params := cfg.CPDParams()
	if iters > 0 {
		params.MaxIterations = iters
	}
	if w >= 0 {
		if w >= 1 {
			return align.CPDParams{}, fmt.Errorf("tune = %v: %w", w, align.ErrInvalidOutlierWeight)
		}
		params.W = w
	}
	if s0 > 0 {
		params.SigmaSquaredInit = s0
	}
	if tol >= 0 {
		params.Tolerance = tol
	}
	return params, nil
}

func loadCloud(path string) (*align.Cloud, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	cloud, err := align.ParseXYZ(name, f)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	log.Printf("loaded %d points from %s", cloud.Len(), path)
	return cloud, nil
}

func writeCloud(dir string, c *align.Cloud) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	path := filepath.Join(dir, c.Name+"_aligned.xyz")
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer f.Close()
	if err := align.WriteXYZ(f, c); err != nil {
		return err
	}
	log.Printf("wrote %s", path)
	return nil
}

func fail(err error) int {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	return 1
}
