package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"github.com/theckman/yacspin"

	"bcdiprep/internal/models"
	"bcdiprep/pkg/config"
	"bcdiprep/pkg/pipeline"
)

const defaultConfigPath = "bcdiprep.yaml"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:          "bcdiprep",
		Short:        "Preprocess BCDI rocking curves for phase retrieval",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath,
		"configuration file, overridden by BCDI_ environment variables")

	root.AddCommand(
		newPreprocessCmd(&configPath),
		newMaskCmd(),
		newRockingCurveCmd(),
		newApodizeCmd(&configPath),
		newConfigCmd(&configPath),
	)
	return root
}

// loadConfig reads and validates the configuration
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newLogger writes to w when verbose and discards otherwise
func newLogger(verbose bool, w io.Writer) *log.Logger {
	if !verbose {
		return log.New(io.Discard, "", 0)
	}
	return log.New(w, "", log.LstdFlags)
}

func newSpinner(w io.Writer, message string) (*yacspin.Spinner, error) {
	return yacspin.New(yacspin.Config{
		Writer:            w,
		Frequency:         100 * time.Millisecond,
		CharSet:           yacspin.CharSets[14],
		Suffix:            " ",
		Message:           message,
		StopCharacter:     "✓",
		StopColors:        []string{"fgGreen"},
		StopFailCharacter: "✗",
		StopFailColors:    []string{"fgRed"},
	})
}

func parseScans(args []string) ([]int, error) {
	scans := make([]int, 0, len(args))
	for _, a := range args {
		n, err := strconv.Atoi(a)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("%w: scan number %q", models.ErrInvalidArgument, a)
		}
		scans = append(scans, n)
	}
	return scans, nil
}

func newPreprocessCmd(configPath *string) *cobra.Command {
	var outputDir string
	var saveIntermediary bool

	cmd := &cobra.Command{
		Use:   "preprocess SCAN...",
		Short: "Load, filter, center, normalize and export scans",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("output-dir") {
				cfg.Output.Dir = outputDir
			}
			if cmd.Flags().Changed("save-intermediary") {
				cfg.Output.SaveIntermediary = saveIntermediary
			}
			scans, err := parseScans(args)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			p, err := pipeline.NewPreprocessor(cfg, newLogger(cfg.Output.Verbose, cmd.ErrOrStderr()))
			if err != nil {
				return err
			}

			var spinner *yacspin.Spinner
			if !cfg.Output.Verbose {
				if spinner, err = newSpinner(out, "starting"); err != nil {
					return err
				}
				if err := spinner.Start(); err != nil {
					return err
				}
				p.OnStage = func(_ int, description string) { spinner.Message(description) }
			}

			startTime := time.Now()
			summaries, err := p.ProcessAll(scans)
			if spinner != nil {
				if err != nil {
					spinner.StopFailMessage(err.Error())
					_ = spinner.StopFail()
				} else {
					spinner.StopMessage(fmt.Sprintf("%d scans", len(summaries)))
					_ = spinner.Stop()
				}
			}
			if err != nil {
				return err
			}

			for _, s := range summaries {
				fmt.Fprintf(out, "Scan %d: %v -> %v, peak %v, policy %s, pad %v\n",
					s.Scan, s.RawShape, s.Shape, s.Peak, s.Policy, s.PadWidth)
				fmt.Fprintf(out, "  saved to %s (%d masked voxels)\n", s.Output, s.Masked)
			}
			fmt.Fprintf(out, "Completed in %.2f seconds\n", time.Since(startTime).Seconds())
			return nil
		},
	}
	cmd.Flags().StringVarP(&outputDir, "output-dir", "o", "", "override output.dir")
	cmd.Flags().BoolVar(&saveIntermediary, "save-intermediary", false, "write projections after every stage")
	return cmd
}

func newConfigCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the configuration file",
	}

	var force bool
	initCmd := &cobra.Command{
		Use:   "init [PATH]",
		Short: "Write the default configuration",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := *configPath
			if len(args) == 1 {
				path = args[0]
			}
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%w: %s already exists, use --force to overwrite", models.ErrInvalidArgument, path)
			}
			if err := config.CreateDefaultConfigFile(path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Default configuration written to %s\n", path)
			return nil
		},
	}
	initCmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing file")
	cmd.AddCommand(initCmd)
	return cmd
}
