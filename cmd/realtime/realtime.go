package realtime

import (
	"github.com/spf13/cobra"

	"github.com/frigate-speciesid/speciesid/internal/analysis"
	"github.com/frigate-speciesid/speciesid/internal/buildinfo"
	"github.com/frigate-speciesid/speciesid/internal/conf"
)

type overrides struct {
	threshold float64
	webui     bool
	metrics   bool
}

// Command creates the command that runs the event consumer.
func Command(settings *conf.Settings, info *buildinfo.Context) *cobra.Command {
	o := &overrides{}

	cmd := &cobra.Command{
		Use:     "run",
		Aliases: []string{"realtime"},
		Short:   "Classify Frigate bird events as they happen",
		Long:    "Subscribe to Frigate event notifications, classify each bird snapshot and write the species back as the event sub label.",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := o.apply(cmd, settings); err != nil {
				return err
			}
			return analysis.RealtimeAnalysis(cmd.Context(), settings, info)
		},
	}

	setupFlags(cmd, o)
	return cmd
}

// setupFlags configures flags specific to the run command.
func setupFlags(cmd *cobra.Command, o *overrides) {
	cmd.Flags().Float64VarP(&o.threshold, "threshold", "t", 0, "Minimum score a classification must exceed to be stored")
	cmd.Flags().BoolVar(&o.webui, "webui", false, "Also serve the reporting API")
	cmd.Flags().BoolVar(&o.metrics, "metrics", false, "Also serve the Prometheus metrics endpoint")
}

// apply copies explicitly set flags over the loaded settings
func (o *overrides) apply(cmd *cobra.Command, settings *conf.Settings) error {
	flags := cmd.Flags()
	if !flags.Changed("threshold") && !flags.Changed("webui") && !flags.Changed("metrics") {
		return nil
	}
	if flags.Changed("threshold") {
		settings.Classification.Threshold = o.threshold
	}
	if flags.Changed("webui") {
		settings.WebUI.Enabled = o.webui
	}
	if flags.Changed("metrics") {
		settings.Metrics.Enabled = o.metrics
	}
	return conf.ValidateSettings(settings)
}
