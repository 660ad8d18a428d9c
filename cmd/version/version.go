package version

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/frigate-speciesid/speciesid/internal/buildinfo"
)

// Command creates a command that prints build information.
func Command(info buildinfo.BuildInfo) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version of speciesid",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "speciesid %s (built %s, %s %s/%s)\n",
				info.Version(), info.BuildDate(), runtime.Version(), runtime.GOOS, runtime.GOARCH)
			return err
		},
	}
}
