// Package pipeline chains the preprocessing stages of a BCDI scan: loading
// and detector calibration, the optional isolated-zero filter, the FFT
// crop/pad around the Bragg peak, monitor normalization and export.
package pipeline

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/astrogo/fitsio"

	"bcdiprep/internal/models"
	"bcdiprep/pkg/centering"
	"bcdiprep/pkg/config"
	"bcdiprep/pkg/export"
	"bcdiprep/pkg/filters"
	"bcdiprep/pkg/loader"
	"bcdiprep/pkg/ndarray"
	"bcdiprep/pkg/normalize"
	"bcdiprep/pkg/visualization"
)

// Stage names, also used as the directories of the intermediary previews
const (
	StageLoaded     = "01_loaded"
	StageFiltered   = "02_filtered"
	StageCentered   = "03_centered"
	StageNormalized = "04_normalized"
)

// Summary reports what one run did
type Summary struct {
	Scan int

	// RawShape is the shape after the ROI crop, Shape the exported one
	RawShape []int
	Shape    []int

	// Filtered is the number of pixels treated by the isolated-zero filter
	Filtered int

	// Masked is the number of masked voxels in the product
	Masked int

	Peak     [3]int
	Policy   string
	PadWidth models.PadWidth

	// Normalized is false when normalization was disabled or the scan has
	// no monitor
	Normalized bool

	Output string
}

// Preprocessor runs the preprocessing of scans described by a configuration.
//
// The process consists of:
// 1. Loading the scan and applying the detector corrections
// 2. Filtering isolated zero pixels (optional)
// 3. Cropping and padding around the Bragg peak to FFT friendly sizes
// 4. Normalizing by the incident beam monitor (optional)
// 5. Writing the product
type Preprocessor struct {
	cfg    *config.Config
	opts   centering.Options
	loader loader.Loader
	logger *log.Logger

	// OnStage is called before every step with its number and description
	OnStage func(step int, description string)
}

// NewPreprocessor validates cfg, reads the calibration files it names and
// prepares the loader. A nil logger uses log.Default().
func NewPreprocessor(cfg *config.Config, logger *log.Logger) (*Preprocessor, error) {
	if logger == nil {
		logger = log.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	opts, err := cfg.CenteringOptions()
	if err != nil {
		return nil, err
	}
	opts.Logger = logger

	det, err := cfg.DetectorDescriptor()
	if err != nil {
		return nil, err
	}
	cal := loader.Calibration{
		Detector:         det,
		VarianceOutliers: cfg.Filters.VarianceOutliers,
		Logger:           logger,
	}
	if cfg.Detector.HotPixels != "" {
		if cal.HotPixels, err = loader.ReadHotPixels(cfg.Detector.HotPixels); err != nil {
			return nil, fmt.Errorf("failed to read hot pixel map: %w", err)
		}
	}
	if cfg.Detector.Flatfield != "" {
		if cal.Flatfield, err = loader.ReadFlatfield(cfg.Detector.Flatfield); err != nil {
			return nil, fmt.Errorf("failed to read flatfield: %w", err)
		}
	}

	l, err := loader.New(loader.Settings{
		Kind:        loader.Kind(cfg.Loader.Kind),
		DataDir:     cfg.Loader.DataDir,
		Template:    cfg.Loader.Template,
		MonitorFile: cfg.Loader.MonitorFile,
		Calibration: cal,
	})
	if err != nil {
		return nil, err
	}

	return &Preprocessor{cfg: cfg, opts: opts, loader: l, logger: logger}, nil
}

func (p *Preprocessor) step(n int, description string) {
	p.logger.Printf("Step %d: %s", n, description)
	if p.OnStage != nil {
		p.OnStage(n, description)
	}
}

// Process runs the complete preprocessing of one scan
func (p *Preprocessor) Process(scan int) (*Summary, error) {
	if err := os.MkdirAll(p.cfg.Output.Dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	summary := &Summary{Scan: scan}

	// Step 1: Load and calibrate
	p.step(1, fmt.Sprintf("Loading scan %d...", scan))
	s, err := p.loader.Load(scan)
	if err != nil {
		return nil, fmt.Errorf("failed to load scan %d: %w", scan, err)
	}
	summary.RawShape = s.Data.Shape()
	p.logger.Printf("Data shape after ROI: %v", summary.RawShape)
	p.saveIntermediaryResult(scan, StageLoaded, s.Data, s.Mask)

	// Step 2: Isolated zeros
	data, mask := s.Data, s.Mask
	if p.cfg.Filters.MeanFilter.Enabled {
		p.step(2, "Filtering isolated zero pixels...")
		mf := p.cfg.Filters.MeanFilter
		if data, mask, summary.Filtered, err = filters.MeanFilterIsolatedZeros(data, mask, mf.Neighbours, mf.Interpolate); err != nil {
			return nil, fmt.Errorf("failed to filter scan %d: %w", scan, err)
		}
		p.logger.Printf("%d isolated zero pixels treated", summary.Filtered)
		p.saveIntermediaryResult(scan, StageFiltered, data, mask)
	}

	// Step 3: Crop and pad around the peak
	p.step(3, fmt.Sprintf("Centering with policy %s...", p.opts.Policy))
	res, err := centering.CenterFFT(data, mask, s.Frames, s.QGrid, p.opts)
	if err != nil {
		return nil, fmt.Errorf("failed to center scan %d: %w", scan, err)
	}
	product := export.FromResult(res)
	summary.Peak = res.Peak
	summary.Policy = product.Policy
	summary.PadWidth = res.PadWidth
	p.saveIntermediaryResult(scan, StageCentered, product.Data, product.Mask)

	// Step 4: Monitor
	if p.cfg.Normalize.Enabled {
		if s.Monitor == nil {
			p.logger.Printf("Scan %d has no monitor, skipping normalization", scan)
		} else {
			p.step(4, "Normalizing by the monitor...")
			if product.Data, _, err = normalize.Normalize(product.Data, s.Monitor, product.Frames, p.cfg.Normalize.ToMin); err != nil {
				return nil, fmt.Errorf("failed to normalize scan %d: %w", scan, err)
			}
			summary.Normalized = true
			p.saveIntermediaryResult(scan, StageNormalized, product.Data, product.Mask)
		}
	}

	// Step 5: Export
	summary.Shape = product.Data.Shape()
	summary.Output = filepath.Join(p.cfg.Output.Dir, OutputName(scan, summary.Shape))
	p.step(5, fmt.Sprintf("Writing %s...", summary.Output))
	err = export.Write(summary.Output, product,
		fitsio.Card{Name: "SCAN", Value: scan, Comment: "scan number"},
		fitsio.Card{Name: "DETECTOR", Value: p.cfg.Detector.Name},
		fitsio.Card{Name: "NORM", Value: summary.Normalized, Comment: "normalized by the monitor"},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to write scan %d: %w", scan, err)
	}

	for _, m := range product.Mask.Data() {
		if m != 0 {
			summary.Masked++
		}
	}
	p.logger.Printf("Scan %d done: shape %v, peak %v, %d masked voxels", scan, summary.Shape, summary.Peak, summary.Masked)
	return summary, nil
}

// ProcessAll runs Process on every scan, stopping at the first failure
func (p *Preprocessor) ProcessAll(scans []int) ([]*Summary, error) {
	summaries := make([]*Summary, 0, len(scans))
	for _, scan := range scans {
		summary, err := p.Process(scan)
		if err != nil {
			return summaries, err
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

// OutputName returns the product file name of a scan
func OutputName(scan int, shape []int) string {
	if len(shape) != 3 {
		return fmt.Sprintf("S%d_pynx.fits", scan)
	}
	return fmt.Sprintf("S%d_pynx_%d_%d_%d.fits", scan, shape[0], shape[1], shape[2])
}

// IntermediaryDir returns the preview directory of a stage
func (p *Preprocessor) IntermediaryDir(scan int, stage string) string {
	return filepath.Join(p.cfg.Output.Dir, "intermediary", fmt.Sprintf("S%d", scan), stage)
}

// saveIntermediaryResult writes the projections of a stage when enabled.
// Failures are logged and do not stop the run.
func (p *Preprocessor) saveIntermediaryResult(scan int, stage string, data *ndarray.Array[float64], mask *ndarray.Array[uint8]) {
	if !p.cfg.Output.SaveIntermediary {
		return
	}
	viewer, err := visualization.NewViewer(data, mask)
	if err == nil {
		err = viewer.SaveProjections(p.IntermediaryDir(scan, stage))
	}
	if err != nil {
		p.logger.Printf("Warning: Failed to save %s previews: %v", stage, err)
	}
}
