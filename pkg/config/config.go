// Package config provides configuration loading and management for bcdiprep.
// Values are layered: built-in defaults, then the YAML file, then BCDI_
// environment variables (BCDI_CENTER_POLICY overrides center.policy).
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf"
	kyaml "github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"

	"bcdiprep/internal/models"
	"bcdiprep/pkg/apodize"
	"bcdiprep/pkg/centering"
	"bcdiprep/pkg/detector"
	"bcdiprep/pkg/fftsize"
	"bcdiprep/pkg/loader"
)

// EnvPrefix is the prefix of the environment variables read by LoadConfig
const EnvPrefix = "BCDI_"

// Config represents the application configuration loaded from YAML
type Config struct {
	// Loader selects the raw file layout
	Loader struct {
		// Kind is "fits" or "tiff"
		Kind string `yaml:"kind" koanf:"kind"`

		// DataDir is the directory holding the scans
		DataDir string `yaml:"datadir" koanf:"datadir"`

		// Template is formatted with the scan number
		Template string `yaml:"template" koanf:"template"`

		// MonitorFile names the monitor file of a TIFF scan directory
		MonitorFile string `yaml:"monitorfile" koanf:"monitorfile"`
	} `yaml:"loader" koanf:"loader"`

	// Detector parameters
	Detector struct {
		// Name is the detector model (Maxipix, Eiger2M, Eiger4M)
		Name string `yaml:"name" koanf:"name"`

		// ROI is [ystart, ystop, xstart, xstop]; empty keeps the full frame
		ROI []int `yaml:"roi" koanf:"roi"`

		// HotPixels and Flatfield are optional FITS calibration files
		HotPixels string `yaml:"hotpixels" koanf:"hotpixels"`
		Flatfield string `yaml:"flatfield" koanf:"flatfield"`
	} `yaml:"detector" koanf:"detector"`

	// Filters applied after loading
	Filters struct {
		// VarianceOutliers masks pixels with too little photon noise
		VarianceOutliers bool `yaml:"varianceoutliers" koanf:"varianceoutliers"`

		MeanFilter struct {
			Enabled bool `yaml:"enabled" koanf:"enabled"`

			// Neighbours is the minimum number of non-zero neighbours (0 to 8)
			Neighbours int `yaml:"neighbours" koanf:"neighbours"`

			// Interpolate replaces isolated zeros by the local mean instead
			// of masking them
			Interpolate bool `yaml:"interpolate" koanf:"interpolate"`
		} `yaml:"meanfilter" koanf:"meanfilter"`
	} `yaml:"filters" koanf:"filters"`

	// Center controls the FFT crop/pad engine
	Center struct {
		// Mode is "max" or "com"
		Mode string `yaml:"mode" koanf:"mode"`

		// Policy is a policy name such as "crop_symmetric_ZYX"
		Policy string `yaml:"policy" koanf:"policy"`

		// PadSize is the output size of the symmetric pad policies
		PadSize []int `yaml:"padsize" koanf:"padsize"`

		// FixedBounds is the crop box of do_nothing
		FixedBounds []int `yaml:"fixedbounds" koanf:"fixedbounds"`

		// Peak overrides the detected peak position (z, y, x)
		Peak []int `yaml:"peak" koanf:"peak"`

		// MaxPrime and Divisors define the FFT size constraint
		MaxPrime int   `yaml:"maxprime" koanf:"maxprime"`
		Divisors []int `yaml:"divisors" koanf:"divisors"`
	} `yaml:"center" koanf:"center"`

	// Normalize by the incident beam monitor
	Normalize struct {
		Enabled bool `yaml:"enabled" koanf:"enabled"`

		// ToMin scales to the smallest monitor value instead of the largest
		ToMin bool `yaml:"tomin" koanf:"tomin"`
	} `yaml:"normalize" koanf:"normalize"`

	// Apodize parameters used by the apodize command
	Apodize struct {
		// Window is "gaussian" or "tukey"
		Window string `yaml:"window" koanf:"window"`

		// Sigma is the per-axis width of the Gaussian window
		Sigma []float64 `yaml:"sigma" koanf:"sigma"`

		// Alpha is the shape parameter of the Tukey window
		Alpha float64 `yaml:"alpha" koanf:"alpha"`
	} `yaml:"apodize" koanf:"apodize"`

	// Output parameters
	Output struct {
		// Dir receives the products and previews
		Dir string `yaml:"dir" koanf:"dir"`

		// SaveIntermediary writes a preview after every pipeline stage
		SaveIntermediary bool `yaml:"saveintermediary" koanf:"saveintermediary"`

		// Verbose controls the level of logging output
		Verbose bool `yaml:"verbose" koanf:"verbose"`
	} `yaml:"output" koanf:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Loader.Kind = string(loader.KindFITS)
	cfg.Loader.DataDir = "."
	cfg.Loader.Template = "scan_%04d.fits"
	cfg.Loader.MonitorFile = loader.DefaultMonitorFile

	cfg.Detector.Name = "Maxipix"
	cfg.Detector.ROI = []int{}

	cfg.Filters.VarianceOutliers = false
	cfg.Filters.MeanFilter.Enabled = false
	cfg.Filters.MeanFilter.Neighbours = 4
	cfg.Filters.MeanFilter.Interpolate = true

	cfg.Center.Mode = centering.Max.String()
	cfg.Center.Policy = centering.CropSymmetricAll.String()
	cfg.Center.PadSize = []int{}
	cfg.Center.FixedBounds = []int{}
	cfg.Center.Peak = []int{}
	cfg.Center.MaxPrime = fftsize.EngineMaxPrime
	cfg.Center.Divisors = append([]int(nil), fftsize.EngineDivisors...)

	cfg.Normalize.Enabled = true
	cfg.Normalize.ToMin = false

	cfg.Apodize.Window = apodize.Gaussian.String()
	cfg.Apodize.Sigma = append([]float64(nil), apodize.DefaultSigma...)
	cfg.Apodize.Alpha = apodize.DefaultAlpha

	cfg.Output.Dir = "output"
	cfg.Output.SaveIntermediary = false
	cfg.Output.Verbose = true

	return cfg
}

// LoadConfig loads configuration from a YAML file layered over the
// defaults and under the environment. A missing file is not an error.
// Unknown keys are rejected.
func LoadConfig(configPath string) (*Config, error) {
	k := koanf.New(".")
	if err := k.Load(structs.Provider(DefaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("error loading defaults: %w", err)
	}

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			if err := k.Load(file.Provider(configPath), kyaml.Parser()); err != nil {
				return nil, fmt.Errorf("%w: error parsing config file: %v", models.ErrInvalidConfiguration, err)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("error loading environment: %w", err)
	}

	cfg := &Config{}
	err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToSliceHookFunc(","),
				mapstructure.TextUnmarshallerHookFunc()),
			ErrorUnused:      true,
			WeaklyTypedInput: true,
			Result:           cfg,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidConfiguration, err)
	}
	return cfg, nil
}

// envKey maps BCDI_CENTER_POLICY to center.policy
func envKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "_", ".")
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}
	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	return SaveConfig(DefaultConfig(), configPath)
}

// Validate checks the names and sizes that can be checked before any data
// is read
func (c *Config) Validate() error {
	if c.Loader.Kind != string(loader.KindFITS) && c.Loader.Kind != string(loader.KindTIFF) {
		return fmt.Errorf("%w: loader.kind %q (expected fits or tiff)", models.ErrInvalidConfiguration, c.Loader.Kind)
	}
	if _, err := c.DetectorDescriptor(); err != nil {
		return err
	}
	if n := c.Filters.MeanFilter.Neighbours; n < 0 || n > 8 {
		return fmt.Errorf("%w: filters.meanfilter.neighbours %d outside [0, 8]", models.ErrInvalidConfiguration, n)
	}
	if _, err := centering.ParseCenteringMode(c.Center.Mode); err != nil {
		return err
	}
	policy, err := centering.ParsePolicy(c.Center.Policy)
	if err != nil {
		return err
	}
	if len(c.Center.PadSize) != 0 && len(c.Center.PadSize) != 3 {
		return fmt.Errorf("%w: center.padsize needs 3 sizes, got %v", models.ErrInvalidConfiguration, c.Center.PadSize)
	}
	maxPrime, divisors := c.fftConstraint()
	for _, n := range c.Center.PadSize {
		if !fftsize.Satisfies(n, maxPrime, divisors) {
			return fmt.Errorf("%w: center.padsize %v: %d is not an FFT size (max prime %d, divisors %v)",
				models.ErrInvalidConfiguration, c.Center.PadSize, n, maxPrime, divisors)
		}
	}
	if len(c.Center.PadSize) == 0 {
		switch policy {
		case centering.PadSymmetricRockingCropDetector, centering.PadSymmetricRockingKeepDetector, centering.PadSymmetricAll:
			return fmt.Errorf("%w: center.policy %s needs center.padsize", models.ErrInvalidConfiguration, policy)
		}
	}
	if len(c.Center.FixedBounds) != 0 && len(c.Center.FixedBounds) != 6 {
		return fmt.Errorf("%w: center.fixedbounds needs 6 integers, got %v", models.ErrInvalidConfiguration, c.Center.FixedBounds)
	}
	if len(c.Center.Peak) != 0 && len(c.Center.Peak) != 3 {
		return fmt.Errorf("%w: center.peak needs 3 integers, got %v", models.ErrInvalidConfiguration, c.Center.Peak)
	}
	if _, err := apodize.ParseWindow(c.Apodize.Window); err != nil {
		return err
	}
	return nil
}

// DetectorDescriptor returns the configured detector with its ROI
func (c *Config) DetectorDescriptor() (detector.Detector, error) {
	d, err := detector.Lookup(c.Detector.Name)
	if err != nil {
		return d, err
	}
	d.ROI = append([]int(nil), c.Detector.ROI...)
	if _, err := d.Bounds(); err != nil {
		return d, err
	}
	return d, nil
}

// fftConstraint returns the configured constraint, falling back to the
// engine defaults
func (c *Config) fftConstraint() (int, []int) {
	maxPrime, divisors := c.Center.MaxPrime, c.Center.Divisors
	if maxPrime == 0 {
		maxPrime = fftsize.EngineMaxPrime
	}
	if len(divisors) == 0 {
		divisors = fftsize.EngineDivisors
	}
	return maxPrime, divisors
}

// CenteringOptions converts the center section to engine options
func (c *Config) CenteringOptions() (centering.Options, error) {
	mode, err := centering.ParseCenteringMode(c.Center.Mode)
	if err != nil {
		return centering.Options{}, err
	}
	policy, err := centering.ParsePolicy(c.Center.Policy)
	if err != nil {
		return centering.Options{}, err
	}
	maxPrime, divisors := c.fftConstraint()
	return centering.Options{
		Centering:    mode,
		Policy:       policy,
		PadSize:      c.Center.PadSize,
		FixedBounds:  c.Center.FixedBounds,
		PeakOverride: c.Center.Peak,
		MaxPrime:     maxPrime,
		Divisors:     divisors,
	}, nil
}

// ApodizeOptions converts the apodize section
func (c *Config) ApodizeOptions() (apodize.Options, error) {
	window, err := apodize.ParseWindow(c.Apodize.Window)
	if err != nil {
		return apodize.Options{}, err
	}
	return apodize.Options{Window: window, Sigma: c.Apodize.Sigma, Alpha: c.Apodize.Alpha}, nil
}
