package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"bcdiprep/pkg/apodize"
	"bcdiprep/pkg/export"
	"bcdiprep/pkg/maskedit"
	"bcdiprep/pkg/ndarray"
	"bcdiprep/pkg/rockingcurve"
	"bcdiprep/pkg/visualization"
)

func countMasked(mask *ndarray.Array[uint8]) int {
	n := 0
	for _, m := range mask.Data() {
		if m != 0 {
			n++
		}
	}
	return n
}

// suffixed inserts suffix before the extension of path
func suffixed(path, suffix string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + suffix + ext
}

func newMaskCmd() *cobra.Command {
	var output, preview string

	cmd := &cobra.Command{
		Use:   "mask PRODUCT SCRIPT",
		Short: "Replay a recorded mask editing session on a product",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			product, err := export.Read(args[0])
			if err != nil {
				return err
			}
			f, err := os.Open(args[1])
			if err != nil {
				return err
			}
			defer f.Close()
			script, err := maskedit.ParseScript(f)
			if err != nil {
				return err
			}
			events, err := script.ToEvents()
			if err != nil {
				return err
			}

			state, err := maskedit.New3D(product.Data, product.Mask, script.Axis, script.Options())
			if err != nil {
				return err
			}
			before := countMasked(state.Mask)
			if state, err = maskedit.Run(state, events); err != nil {
				return err
			}
			product.Data, product.Mask = state.Data, state.Mask

			if output == "" {
				output = args[0]
			}
			if err := export.Write(output, product); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Masked voxels: %d -> %d, saved to %s\n", before, countMasked(state.Mask), output)

			if preview != "" {
				frame, err := state.DisplayedFrame()
				if err != nil {
					return err
				}
				mask, err := state.DisplayedMask()
				if err != nil {
					return err
				}
				img, err := visualization.Render(frame, mask, state.VMax)
				if err != nil {
					return err
				}
				if err := visualization.SavePNG(img, preview); err != nil {
					return err
				}
				if state.Projection {
					fmt.Fprintf(out, "Projection along axis %d rendered to %s\n", state.Axis, preview)
				} else {
					fmt.Fprintf(out, "Frame %d along axis %d rendered to %s\n", state.Frame, state.Axis, preview)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "output product (default: overwrite PRODUCT)")
	cmd.Flags().StringVar(&preview, "preview", "", "PNG of the last displayed frame or projection")
	return cmd
}

func newRockingCurveCmd() *cobra.Command {
	var method string
	var position []int
	var tiltStart, tiltStep float64
	var showCurve bool

	cmd := &cobra.Command{
		Use:   "rockingcurve PRODUCT",
		Short: "Locate the Bragg peak and measure the rocking curve width",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := rockingcurve.ParsePeakMethod(method)
			if err != nil {
				return err
			}
			product, err := export.Read(args[0])
			if err != nil {
				return err
			}

			var tilt []float64
			if tiltStep != 0 {
				tilt = make([]float64, product.Data.Dim(0))
				for i := range tilt {
					tilt[i] = tiltStart + float64(i)*tiltStep
				}
			}
			a, err := rockingcurve.Analyze(product.Data, m, tilt, position)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Bragg peak (%s): %v\n", m, a.Peak)
			fmt.Fprintf(out, "Rocking curve maximum at frame %d\n", a.PeakFrame)
			fmt.Fprintf(out, "FWHM: %.4f\n", a.FWHM)
			if showCurve {
				for i, v := range a.Curve {
					fmt.Fprintf(out, "%d\t%g\n", i, v)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&method, "method", "m", rockingcurve.MaxCOM.String(), "peak method: max, com or maxcom")
	cmd.Flags().IntSliceVar(&position, "position", nil, "detector position y,x of the integration box")
	cmd.Flags().Float64Var(&tiltStart, "tilt-start", 0, "tilt of the first frame")
	cmd.Flags().Float64Var(&tiltStep, "tilt-step", 0, "tilt increment per frame (0 uses the frame index)")
	cmd.Flags().BoolVar(&showCurve, "curve", false, "print the integrated intensity per frame")
	return cmd
}

func newApodizeCmd(configPath *string) *cobra.Command {
	var window, output string

	cmd := &cobra.Command{
		Use:   "apodize PRODUCT",
		Short: "Multiply a product by a Gaussian or Tukey window",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			opts, err := cfg.ApodizeOptions()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("window") {
				if opts.Window, err = apodize.ParseWindow(window); err != nil {
					return err
				}
			}

			product, err := export.Read(args[0])
			if err != nil {
				return err
			}
			if product.Data, err = apodize.Apply(product.Data, opts); err != nil {
				return err
			}
			if output == "" {
				output = suffixed(args[0], "_apodized")
			}
			if err := export.Write(output, product); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s window applied, saved to %s\n", opts.Window, output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&window, "window", "w", "", "gaussian or tukey (default: apodize.window)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output product (default: PRODUCT_apodized.fits)")
	return cmd
}
