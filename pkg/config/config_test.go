package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"bcdiprep/internal/models"
	"bcdiprep/pkg/centering"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default configuration should be valid: %v", err)
	}
	opts, err := cfg.CenteringOptions()
	if err != nil {
		t.Fatalf("CenteringOptions failed: %v", err)
	}
	if opts.Policy != centering.CropSymmetricAll || opts.MaxPrime != 7 {
		t.Errorf("Unexpected centering defaults %+v", opts)
	}
}

func TestSaveAndLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "bcdiprep.yaml")
	if err := CreateDefaultConfigFile(path); err != nil {
		t.Fatalf("CreateDefaultConfigFile failed: %v", err)
	}

	got, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if diff := cmp.Diff(DefaultConfig(), got, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("Round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	got, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("A missing file should fall back to defaults, got %v", err)
	}
	if got.Center.Policy != DefaultConfig().Center.Policy {
		t.Errorf("Expected default policy, got %q", got.Center.Policy)
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bcdiprep.yaml")
	content := `
center:
  policy: pad_symmetric_ZYX
  padsize: [64, 128, 128]
detector:
  name: Eiger2M
  roi: [0, 512, 100, 356]
filters:
  meanfilter:
    enabled: true
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	t.Setenv("BCDI_OUTPUT_DIR", "/tmp/products")
	t.Setenv("BCDI_NORMALIZE_TOMIN", "true")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Center.Policy != "pad_symmetric_ZYX" {
		t.Errorf("Expected policy from file, got %q", cfg.Center.Policy)
	}
	if diff := cmp.Diff([]int{64, 128, 128}, cfg.Center.PadSize); diff != "" {
		t.Errorf("Unexpected padsize (-want +got):\n%s", diff)
	}
	if !cfg.Filters.MeanFilter.Enabled || cfg.Filters.MeanFilter.Neighbours != 4 {
		t.Errorf("Nested values should merge with defaults, got %+v", cfg.Filters.MeanFilter)
	}
	if cfg.Output.Dir != "/tmp/products" || !cfg.Normalize.ToMin {
		t.Errorf("Environment should override, got dir %q tomin %v", cfg.Output.Dir, cfg.Normalize.ToMin)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate failed: %v", err)
	}
	d, err := cfg.DetectorDescriptor()
	if err != nil || d.PixelsY != 2164 || len(d.ROI) != 4 {
		t.Errorf("Unexpected detector %+v (%v)", d, err)
	}
}

func TestLoadConfigRejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bcdiprep.yaml")
	if err := os.WriteFile(path, []byte("center:\n  polcy: crop_symmetric_ZYX\n"), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if _, err := LoadConfig(path); !errors.Is(err, models.ErrInvalidConfiguration) {
		t.Errorf("Expected ErrInvalidConfiguration for a misspelt key, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		want   error
	}{
		{"loader kind", func(c *Config) { c.Loader.Kind = "hdf5" }, models.ErrInvalidConfiguration},
		{"detector", func(c *Config) { c.Detector.Name = "Pilatus" }, models.ErrUnsupportedDetector},
		{"roi", func(c *Config) { c.Detector.ROI = []int{0, 600, 0, 10} }, models.ErrInvalidConfiguration},
		{"neighbours", func(c *Config) { c.Filters.MeanFilter.Neighbours = 9 }, models.ErrInvalidConfiguration},
		{"mode", func(c *Config) { c.Center.Mode = "median" }, models.ErrInvalidConfiguration},
		{"policy", func(c *Config) { c.Center.Policy = "pad_everything" }, models.ErrInvalidConfiguration},
		{"padsize value", func(c *Config) { c.Center.PadSize = []int{64, 66, 64} }, models.ErrInvalidConfiguration},
		{"padsize length", func(c *Config) { c.Center.PadSize = []int{64} }, models.ErrInvalidConfiguration},
		{"padsize missing", func(c *Config) { c.Center.Policy = "pad_symmetric_Z" }, models.ErrInvalidConfiguration},
		{"fixedbounds", func(c *Config) { c.Center.FixedBounds = []int{0, 1} }, models.ErrInvalidConfiguration},
		{"peak", func(c *Config) { c.Center.Peak = []int{1, 2} }, models.ErrInvalidConfiguration},
		{"window", func(c *Config) { c.Apodize.Window = "hamming" }, models.ErrInvalidConfiguration},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			if err := cfg.Validate(); !errors.Is(err, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, err)
			}
		})
	}
}
