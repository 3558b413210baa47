package cmd

import (
	"fmt"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/shotcheck/internal/observability"
	"github.com/xkilldash9x/shotcheck/internal/perceptual"
)

func newCompareCmd() *cobra.Command {
	var diffPath string

	cmd := &cobra.Command{
		Use:   "compare <processed.png> <expected.png>",
		Short: "Compare two screenshots and print the mismatch percentage",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFromContext(cmd.Context())
			if err != nil {
				return err
			}
			logger := observability.GetLogger()
			client := perceptual.NewPixelClient(afero.NewOsFs(), cfg.Diff().PixelThreshold, logger)

			processed, expected := perceptual.FileURI(args[0]), perceptual.FileURI(args[1])
			var m perceptual.Mismatch
			if diffPath != "" {
				m, err = client.WriteDiff(cmd.Context(), processed, expected, diffPath)
			} else {
				m, err = client.Compare(cmd.Context(), processed, expected)
			}
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "mismatch = %s%% (%d of %d pixels)\n", m, m.DiffPixels, m.TotalPixels)
			if diffPath != "" {
				logger.Info("Diff image written.", zap.String("path", diffPath))
			}
			if m.Percentage != 0 {
				return fmt.Errorf("%w: screenshots differ", ErrChecksFailed)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&diffPath, "diff", "", "write a diff image to this path")
	return cmd
}
