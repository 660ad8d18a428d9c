package config

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/frigate-speciesid/speciesid/internal/conf"
	"github.com/frigate-speciesid/speciesid/internal/errors"
	"github.com/frigate-speciesid/speciesid/internal/httpclient"
	"github.com/frigate-speciesid/speciesid/internal/mqtt"
	"github.com/frigate-speciesid/speciesid/internal/privacy"
)

const frigateCheckTimeout = 10 * time.Second

// Command creates the command group for inspecting configuration.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and check the configuration",
	}
	cmd.AddCommand(showCommand(settings), checkCommand(settings), exportCommand(settings))
	return cmd
}

func showCommand(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration with secrets masked",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := conf.MarshalYAML(settings.Redacted())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if settings.ConfigFile != "" {
				fmt.Fprintf(out, "# %s\n", settings.ConfigFile)
			}
			_, err = out.Write(data)
			return err
		},
	}
}

func exportCommand(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "export <path>",
		Short: "Write the effective configuration, including environment overrides, to a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := conf.SaveYAMLConfig(args[0], settings); err != nil {
				return err
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "configuration written to %s\n", args[0])
			return err
		},
	}
}

func checkCommand(settings *conf.Settings) *cobra.Command {
	var offline bool

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Validate the configuration and test connectivity to Frigate and the broker",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if err := conf.ValidateSettings(settings); err != nil {
				var ve conf.ValidationError
				if errors.As(err, &ve) {
					fmt.Fprintln(out, "configuration is invalid:")
					for _, e := range ve.Errors {
						fmt.Fprintf(out, "  - %s\n", e)
					}
				}
				return err
			}
			fmt.Fprintln(out, "configuration is valid")
			if offline {
				return nil
			}

			failed := false
			if err := checkFrigate(cmd.Context(), settings); err != nil {
				fmt.Fprintf(out, "frigate %s: FAILED %v\n", privacy.RedactURL(settings.Frigate.URL), err)
				failed = true
			} else {
				fmt.Fprintf(out, "frigate %s: ok\n", privacy.RedactURL(settings.Frigate.URL))
			}

			mqttConfig := mqtt.ConfigFromSettings(settings)
			for _, r := range mqtt.Diagnose(cmd.Context(), mqttConfig, mqtt.NewPahoBroker(mqttConfig)) {
				printStage(out, r)
				failed = failed || !r.Success
			}

			if failed {
				return errors.Newf("connectivity check failed").
					Component("cmd").
					Category(errors.CategoryNetwork).
					Build()
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&offline, "offline", false, "Only validate, skip connectivity checks")
	return cmd
}

// checkFrigate requests the Frigate version endpoint
func checkFrigate(ctx context.Context, settings *conf.Settings) error {
	cfg := httpclient.DefaultConfig()
	cfg.DefaultTimeout = frigateCheckTimeout
	client := httpclient.New(&cfg)
	defer client.Close()

	resp, err := client.Get(ctx, settings.Frigate.URL+"/api/version")
	if err != nil {
		return privacy.WrapError(err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}

func printStage(out io.Writer, r mqtt.StageResult) {
	status := "ok"
	if !r.Success {
		status = "FAILED " + r.Error
	}
	fmt.Fprintf(out, "mqtt %-20s %s (%s)\n", r.Stage+":", status, r.Duration.Round(time.Millisecond))
}
