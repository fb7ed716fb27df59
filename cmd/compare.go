// File: cmd/compare.go
package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/karstlabs/vizdiff/internal/browser"
	"github.com/karstlabs/vizdiff/internal/capture"
	"github.com/karstlabs/vizdiff/internal/comparison"
	"github.com/karstlabs/vizdiff/internal/config"
	"github.com/karstlabs/vizdiff/internal/observability"
)

// newCompareCmd creates and configures the `compare` command.
func newCompareCmd() *cobra.Command {
	var (
		waitFor         string
		fullPage        bool
		maskSelectors   []string
		threshold       float64
		includeAA       bool
		timeoutMS       int
		stabilizationMS int
		outputPath      string
		saveImages      bool
	)

	compareCmd := &cobra.Command{
		Use:   "compare <urlA> <urlB>",
		Short: "Capture two URLs under identical conditions and diff the renders",
		Args:  cobra.ExactArgs(2),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if err := viper.BindPFlag("diff.threshold", cmd.Flags().Lookup("threshold")); err != nil {
				return err
			}
			return viper.BindPFlag("diff.include_aa", cmd.Flags().Lookup("include-aa"))
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()
			defer observability.Sync()

			cfg, err := config.NewConfigFromViper(viper.GetViper())
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}

			session, err := browser.NewSession(ctx, logger, cfg.Browser)
			if err != nil {
				return fmt.Errorf("failed to start browser session: %w", err)
			}
			defer func() {
				if err := session.Dispose(ctx); err != nil {
					logger.Warn("Browser session did not shut down cleanly.", zap.Error(err))
				}
			}()

			opts := comparison.DefaultOptions()
			opts.WaitFor = waitFor
			opts.FullPage = fullPage
			opts.DiffThreshold = threshold
			opts.IncludeAA = includeAA
			if cmd.Flags().Changed("mask") {
				opts.MaskSelectors = maskSelectors
			}
			if timeoutMS > 0 {
				opts.Timeout = time.Duration(timeoutMS) * time.Millisecond
			}
			if cmd.Flags().Changed("stabilization-delay") {
				opts.StabilizationDelay = time.Duration(stabilizationMS) * time.Millisecond
			}

			pipeline := capture.NewPipeline(session, cfg, logger)
			orch := comparison.NewOrchestrator(pipeline, cfg.Diff, logger)

			result, err := orch.Compare(ctx, args[0], args[1], opts)
			if err != nil {
				return err
			}

			payload, err := result.Serialize()
			if err != nil {
				return fmt.Errorf("failed to serialize comparison result: %w", err)
			}

			if outputPath != "" {
				if err := os.WriteFile(outputPath, payload, 0o644); err != nil {
					return fmt.Errorf("failed to write result to %s: %w", outputPath, err)
				}
				logger.Info("Result written.", zap.String("path", outputPath))
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), string(payload))
			}

			if saveImages {
				if err := writeRasters(outputPath, result); err != nil {
					return err
				}
				logger.Info("Rasters written alongside the result.")
			}

			logger.Info("Comparison finished.",
				zap.String("id", result.ID),
				zap.Float64("mismatch_percent", result.Metrics().MismatchPercent))
			return nil
		},
	}

	compareCmd.Flags().StringVar(&waitFor, "wait-for", "networkidle", `wait strategy: "networkidle" or "css:<selector>"`)
	compareCmd.Flags().BoolVar(&fullPage, "full-page", true, "capture the full scrollable page")
	compareCmd.Flags().StringSliceVar(&maskSelectors, "mask", nil, "CSS selectors to hide before capture (replaces the default set)")
	compareCmd.Flags().Float64Var(&threshold, "threshold", 0.1, "perceptual pixel threshold in [0,1]")
	compareCmd.Flags().BoolVar(&includeAA, "include-aa", true, "count anti-aliasing pixels as changes")
	compareCmd.Flags().IntVar(&timeoutMS, "timeout", 0, "per-capture timeout in milliseconds (capped at 120000)")
	compareCmd.Flags().IntVar(&stabilizationMS, "stabilization-delay", 0, "quiet period before each screenshot in milliseconds (capped at 5000)")
	compareCmd.Flags().StringVarP(&outputPath, "output", "o", "", "write the JSON result to a file instead of stdout")
	compareCmd.Flags().BoolVar(&saveImages, "save-images", false, "also write the A, B, and diff rasters as PNG files")

	return compareCmd
}

// writeRasters stores the three rasters next to the result file, or in the
// working directory when the result went to stdout.
func writeRasters(outputPath string, result *comparison.Result) error {
	dir := "."
	base := result.ID
	if outputPath != "" {
		dir = filepath.Dir(outputPath)
		base = strings.TrimSuffix(filepath.Base(outputPath), filepath.Ext(outputPath))
	}

	files := map[string][]byte{
		base + ".a.png":    result.CaptureA.Raster,
		base + ".b.png":    result.CaptureB.Raster,
		base + ".diff.png": result.Diff.Raster,
	}
	for name, buf := range files {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, buf, 0o644); err != nil {
			return fmt.Errorf("failed to write raster %s: %w", path, err)
		}
	}
	return nil
}
