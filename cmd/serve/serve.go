package serve

import (
	"github.com/spf13/cobra"

	"github.com/frigate-speciesid/speciesid/internal/analysis"
	"github.com/frigate-speciesid/speciesid/internal/buildinfo"
	"github.com/frigate-speciesid/speciesid/internal/conf"
)

// Command creates the command that serves the reporting API on its own.
func Command(settings *conf.Settings, info *buildinfo.Context) *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the detection reporting API",
		Long:  "Serve the read-only reporting API over the detection database without consuming events.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			settings.WebUI.Enabled = true
			if cmd.Flags().Changed("host") {
				settings.WebUI.Host = host
			}
			if cmd.Flags().Changed("port") {
				settings.WebUI.Port = port
			}
			if err := conf.ValidateSettings(settings); err != nil {
				return err
			}
			return analysis.ServeReports(cmd.Context(), settings, info)
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "Listen host (default from webui.host)")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "Listen port (default from webui.port)")
	return cmd
}
