package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version is the application version.
// Set at build time with: go build -ldflags "-X github.com/xkilldash9x/shotcheck/cmd.Version=1.0.0"
var Version = "dev"

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the shotcheck version",
		Args:  cobra.NoArgs,
		// Printing the version needs no configuration.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "shotcheck version %s\n", Version)
			return err
		},
	}
}
