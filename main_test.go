package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/kwv/pointalign/align"
)

func TestBuildCPDParams(t *testing.T) {
	cfg := &align.Config{}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate error: %v", err)
	}

	t.Run("defaults pass through", func(t *testing.T) {
		params, err := buildCPDParams(cfg, 0, -1, 0, -1)
		if err != nil {
			t.Fatalf("buildCPDParams error: %v", err)
		}
		defaults := align.DefaultCPDParams()
		if params.MaxIterations != defaults.MaxIterations {
			t.Errorf("MaxIterations = %d, want %d", params.MaxIterations, defaults.MaxIterations)
		}
		if params.W != 0 {
			t.Errorf("W = %v, want 0", params.W)
		}
	})

	t.Run("flags override config", func(t *testing.T) {
		params, err := buildCPDParams(cfg, 42, 0.3, 0.5, 1e-6)
		if err != nil {
			t.Fatalf("buildCPDParams error: %v", err)
		}
		if params.MaxIterations != 42 {
			t.Errorf("MaxIterations = %d, want 42", params.MaxIterations)
		}
		if params.W != 0.3 {
			t.Errorf("W = %v, want 0.3", params.W)
		}
		if params.SigmaSquaredInit != 0.5 {
			t.Errorf("SigmaSquaredInit = %v, want 0.5", params.SigmaSquaredInit)
		}
		if params.Tolerance != 1e-6 {
			t.Errorf("Tolerance = %v, want 1e-6", params.Tolerance)
		}
	})

	t.Run("tune out of range", func(t *testing.T) {
		if _, err := buildCPDParams(cfg, 0, 1.0, 0, -1); err == nil {
			t.Error("tune = 1.0 must fail")
		}
	})
}

func TestLoadCloud(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "probe.xyz")
	content := "# probe scan\n0 0 0\n1 2 3\n4 5 6 0.5\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	cloud, err := loadCloud(path)
	if err != nil {
		t.Fatalf("loadCloud error: %v", err)
	}
	if cloud.Name != "probe" {
		t.Errorf("cloud name = %q, want %q", cloud.Name, "probe")
	}
	if cloud.Len() != 3 {
		t.Errorf("loaded %d points, want 3", cloud.Len())
	}
}

func TestLoadCloudMissing(t *testing.T) {
	if _, err := loadCloud(filepath.Join(t.TempDir(), "absent.xyz")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestWriteCloud(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "in.xyz")
	if err := os.WriteFile(src, []byte("1 2 3\n"), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}
	loaded, err := loadCloud(src)
	if err != nil {
		t.Fatalf("loadCloud error: %v", err)
	}

	outDir := filepath.Join(dir, "aligned")
	if err := writeCloud(outDir, loaded); err != nil {
		t.Fatalf("writeCloud error: %v", err)
	}
	if _, err := os.Stat(filepath.Join(outDir, "in_aligned.xyz")); err != nil {
		t.Errorf("expected output file: %v", err)
	}
}
