// Package apodize multiplies reciprocal space data by a smooth 3D window to
// soften the truncation at the array borders before phasing.
package apodize

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distmv"

	"bcdiprep/internal/models"
	"bcdiprep/pkg/ndarray"
)

// Window selects the window function
type Window int

const (
	// Gaussian is a multivariate normal density over [-1, 1] on each axis
	Gaussian Window = iota
	// Tukey is the separable product of 1D tapered cosine windows
	Tukey
)

func (w Window) String() string {
	if w == Tukey {
		return "tukey"
	}
	return "gaussian"
}

// ParseWindow accepts "gaussian" and "tukey"
func ParseWindow(s string) (Window, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "gaussian":
		return Gaussian, nil
	case "tukey":
		return Tukey, nil
	default:
		return 0, fmt.Errorf("%w: window %q, expected gaussian or tukey", models.ErrInvalidConfiguration, s)
	}
}

// Options configures Apply
type Options struct {
	Window Window

	// Mu and Sigma are the per-axis mean and standard deviation of the
	// Gaussian window in normalized coordinates; empty values select
	// DefaultMu and DefaultSigma
	Mu    []float64
	Sigma []float64

	// Alpha is the shape parameter of the Tukey window: 0 is rectangular,
	// 1 is a Hann window
	Alpha float64
}

var (
	DefaultMu    = []float64{0, 0, 0}
	DefaultSigma = []float64{0.3, 0.3, 0.3}
)

// DefaultAlpha is the Tukey shape parameter used by the CLI
const DefaultAlpha = 0.5

// Apply returns data multiplied by the window and rescaled so that its
// maximum equals the maximum of data.
func Apply(data *ndarray.Array[float64], opts Options) (*ndarray.Array[float64], error) {
	if err := data.RequireNdim(3, "data"); err != nil {
		return nil, err
	}
	shape := [3]int{data.Dim(0), data.Dim(1), data.Dim(2)}

	var window *ndarray.Array[float64]
	var err error
	switch opts.Window {
	case Gaussian:
		window, err = GaussianWindow(shape, opts.Mu, opts.Sigma)
	case Tukey:
		window, err = TukeyWindow(shape, opts.Alpha)
	default:
		err = fmt.Errorf("%w: window %d", models.ErrInvalidConfiguration, int(opts.Window))
	}
	if err != nil {
		return nil, err
	}

	out := data.Clone()
	od := out.Data()
	if len(od) == 0 {
		return out, nil
	}
	floats.Mul(od, window.Data())

	maxData, maxOut := floats.Max(data.Data()), floats.Max(od)
	if maxOut != 0 {
		floats.Scale(maxData/maxOut, od)
	}
	return out, nil
}

// GaussianWindow evaluates a normal density with diagonal covariance
// sigma^2 on the grid linspace(-1, 1, n) of each axis
func GaussianWindow(shape [3]int, mu, sigma []float64) (*ndarray.Array[float64], error) {
	if len(mu) == 0 {
		mu = DefaultMu
	}
	if len(sigma) == 0 {
		sigma = DefaultSigma
	}
	if len(mu) != 3 || len(sigma) != 3 {
		return nil, fmt.Errorf("%w: gaussian window needs 3 means and 3 widths, got %v and %v",
			models.ErrInvalidConfiguration, mu, sigma)
	}

	cov := mat.NewSymDense(3, nil)
	for i, s := range sigma {
		if s <= 0 {
			return nil, fmt.Errorf("%w: gaussian width %f", models.ErrInvalidConfiguration, s)
		}
		cov.SetSym(i, i, s*s)
	}
	normal, ok := distmv.NewNormal(mu, cov, nil)
	if !ok {
		return nil, fmt.Errorf("%w: covariance is not positive definite", models.ErrInvalidConfiguration)
	}

	window, err := ndarray.New[float64](shape[0], shape[1], shape[2])
	if err != nil {
		return nil, err
	}
	gz, gy, gx := linspace(shape[0]), linspace(shape[1]), linspace(shape[2])
	wd := window.Data()
	point := make([]float64, 3)
	i := 0
	for _, z := range gz {
		for _, y := range gy {
			for _, x := range gx {
				point[0], point[1], point[2] = z, y, x
				wd[i] = normal.Prob(point)
				i++
			}
		}
	}
	return window, nil
}

// TukeyWindow is the outer product of three 1D Tukey windows
func TukeyWindow(shape [3]int, alpha float64) (*ndarray.Array[float64], error) {
	window, err := ndarray.New[float64](shape[0], shape[1], shape[2])
	if err != nil {
		return nil, err
	}
	wz, wy, wx := Tukey1D(shape[0], alpha), Tukey1D(shape[1], alpha), Tukey1D(shape[2], alpha)
	wd := window.Data()
	i := 0
	for _, z := range wz {
		for _, y := range wy {
			for _, x := range wx {
				wd[i] = z * y * x
				i++
			}
		}
	}
	return window, nil
}

// Tukey1D returns a symmetric tapered cosine window of n points. The first
// and last alpha/2 fractions of the window are cosine lobes.
func Tukey1D(n int, alpha float64) []float64 {
	w := make([]float64, n)
	if n == 0 {
		return w
	}
	if n == 1 || alpha <= 0 {
		for i := range w {
			w[i] = 1
		}
		return w
	}
	m := float64(n - 1)
	if alpha >= 1 {
		for i := range w {
			w[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/m)
		}
		return w
	}

	width := int(math.Floor(alpha * m / 2))
	for i := range w {
		x := float64(i)
		switch {
		case i <= width:
			w[i] = 0.5 * (1 + math.Cos(math.Pi*(-1+2*x/alpha/m)))
		case i >= n-width-1:
			w[i] = 0.5 * (1 + math.Cos(math.Pi*(-2/alpha+1+2*x/alpha/m)))
		default:
			w[i] = 1
		}
	}
	return w
}

// linspace returns n points evenly spaced over [-1, 1]; a single point is -1
func linspace(n int) []float64 {
	switch n {
	case 0:
		return nil
	case 1:
		return []float64{-1}
	}
	return floats.Span(make([]float64, n), -1, 1)
}
