package loader

import (
	"bufio"
	"errors"
	"fmt"
	"image"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/image/tiff"

	"bcdiprep/internal/models"
	"bcdiprep/pkg/ndarray"
)

// DefaultMonitorFile is the monitor file name looked up in a TIFF scan directory
const DefaultMonitorFile = "monitor.txt"

// TIFFStackLoader reads one directory per scan holding one TIFF file per
// frame. Frames are ordered by the number in their file name. An optional
// text file lists one monitor value per frame.
type TIFFStackLoader struct {
	Dir         string
	Template    string
	MonitorFile string
	Calibration Calibration
}

// ScanDir returns the frame directory of a scan
func (l *TIFFStackLoader) ScanDir(scan int) string {
	return filepath.Join(l.Dir, fmt.Sprintf(l.Template, scan))
}

// Load reads and assembles a scan
func (l *TIFFStackLoader) Load(scan int) (*Scan, error) {
	dir := l.ScanDir(scan)
	raw, err := loadFrames(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to load frames of scan %d: %w", scan, err)
	}
	l.Calibration.logger().Printf("Loaded %d frames with dimensions %dx%d from %s",
		raw.Dim(0), raw.Dim(2), raw.Dim(1), dir)

	data, mask, err := Assemble(raw, l.Calibration)
	if err != nil {
		return nil, fmt.Errorf("failed to assemble scan %d: %w", scan, err)
	}
	out := &Scan{
		Data:   data,
		Mask:   mask,
		Frames: models.NewProvenance(data.Dim(0)),
	}

	if l.MonitorFile != "" {
		monitor, err := ReadMonitor(filepath.Join(dir, l.MonitorFile))
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, err
		case len(monitor) != data.Dim(0):
			return nil, fmt.Errorf("%w: %d monitor values for %d frames in %s",
				models.ErrLengthMismatch, len(monitor), data.Dim(0), dir)
		default:
			out.Monitor = monitor
		}
	}
	return out, nil
}

// loadFrames reads and stacks the TIFF frames of a directory
func loadFrames(dir string) (*ndarray.Array[float64], error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var frameFiles []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext == ".tif" || ext == ".tiff" {
			frameFiles = append(frameFiles, e.Name())
		}
	}
	if len(frameFiles) == 0 {
		return nil, fmt.Errorf("no TIFF frames found in %s", dir)
	}

	// file names carry the frame number; plain string order breaks at 10
	sort.SliceStable(frameFiles, func(i, j int) bool {
		return extractNumber(frameFiles[i]) < extractNumber(frameFiles[j])
	})

	var values []float64
	var ny, nx int
	for i, name := range frameFiles {
		img, err := loadImage(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("failed to load frame %s: %v", name, err)
		}
		b := img.Bounds()
		if i == 0 {
			ny, nx = b.Dy(), b.Dx()
			values = make([]float64, 0, len(frameFiles)*ny*nx)
		} else if b.Dy() != ny || b.Dx() != nx {
			return nil, fmt.Errorf("%w: frame %s is %dx%d, expected %dx%d",
				models.ErrShape, name, b.Dx(), b.Dy(), nx, ny)
		}
		values = append(values, imageToCounts(img)...)
	}
	return ndarray.FromSlice(values, len(frameFiles), ny, nx)
}

// extractNumber returns the digits of the file name read as one integer
func extractNumber(filename string) int {
	base := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	var digits strings.Builder
	for _, c := range base {
		if c >= '0' && c <= '9' {
			digits.WriteRune(c)
		}
	}
	if digits.Len() == 0 {
		return 0
	}
	n, err := strconv.Atoi(digits.String())
	if err != nil {
		return 0
	}
	return n
}

// loadImage decodes a TIFF file
func loadImage(path string) (image.Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return tiff.Decode(file)
}

// imageToCounts converts a frame to photon counts. Grey frames keep their
// raw values; other colour models use the red channel at 16 bit depth.
func imageToCounts(img image.Image) []float64 {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	result := make([]float64, width*height)

	switch g := img.(type) {
	case *image.Gray16:
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				result[y*width+x] = float64(g.Gray16At(bounds.Min.X+x, bounds.Min.Y+y).Y)
			}
		}
	case *image.Gray:
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				result[y*width+x] = float64(g.GrayAt(bounds.Min.X+x, bounds.Min.Y+y).Y)
			}
		}
	default:
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				r, _, _, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
				result[y*width+x] = float64(r)
			}
		}
	}
	return result
}

// ReadMonitor reads one monitor value per line. Blank lines and lines
// starting with # are skipped.
func ReadMonitor(path string) ([]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var monitor []float64
	scanner := bufio.NewScanner(f)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		v, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %s line %d: %v", models.ErrInvalidConfiguration, path, line, err)
		}
		monitor = append(monitor, v)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %v", path, err)
	}
	return monitor, nil
}
