package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/frigate-speciesid/speciesid/cmd/classify"
	configcmd "github.com/frigate-speciesid/speciesid/cmd/config"
	"github.com/frigate-speciesid/speciesid/cmd/names"
	"github.com/frigate-speciesid/speciesid/cmd/realtime"
	"github.com/frigate-speciesid/speciesid/cmd/serve"
	"github.com/frigate-speciesid/speciesid/cmd/version"
	"github.com/frigate-speciesid/speciesid/internal/buildinfo"
	"github.com/frigate-speciesid/speciesid/internal/conf"
	"github.com/frigate-speciesid/speciesid/internal/logger"
	"github.com/frigate-speciesid/speciesid/internal/telemetry"
)

type rootFlags struct {
	configPath string
	debug      bool
	validate   bool
}

// RootCommand creates the root command. Settings are loaded once the
// selected subcommand is known and shared with it through settings. The
// returned cleanup flushes telemetry and closes log files; call it after
// Execute returns.
func RootCommand(info *buildinfo.Context) (*cobra.Command, func()) {
	settings := &conf.Settings{}
	flags := &rootFlags{}
	var cleanups []func()

	rootCmd := &cobra.Command{
		Use:           "speciesid",
		Short:         "Bird species identification for Frigate events",
		Long:          "speciesid listens to Frigate event notifications, classifies each bird snapshot and labels the event with the species.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "Path to config.yaml (default: search standard locations)")
	rootCmd.PersistentFlags().BoolVarP(&flags.debug, "debug", "d", false, "Enable debug output")

	realtimeCmd := realtime.Command(settings, info)
	serveCmd := serve.Command(settings, info)
	versionCmd := version.Command(info)

	rootCmd.AddCommand(
		realtimeCmd,
		serveCmd,
		names.Command(settings),
		classify.Command(settings),
		configcmd.Command(settings),
		versionCmd,
	)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		// version needs no configuration
		if cmd == versionCmd {
			return nil
		}
		// offline tools only read the sections they use
		flags.validate = cmd == realtimeCmd || cmd == serveCmd
		cleanup, err := initialize(flags, settings, info)
		if cleanup != nil {
			cleanups = append(cleanups, cleanup)
		}
		return err
	}

	return rootCmd, func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}
}

// initialize loads settings and sets up logging and telemetry
func initialize(flags *rootFlags, settings *conf.Settings, info *buildinfo.Context) (func(), error) {
	load := conf.Load
	if !flags.validate {
		load = conf.Read
	}

	loaded, err := load(flags.configPath)
	if err != nil {
		return nil, err
	}
	if flags.debug {
		loaded.Debug = true
		loaded.Logging.DefaultLevel = "debug"
		if loaded.Logging.Console != nil {
			loaded.Logging.Console.Level = "debug"
		}
	}
	*settings = *loaded

	central, err := logger.NewCentralLogger(&settings.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logging: %w", err)
	}
	logger.SetGlobal(central)
	closeLogs := func() {
		_ = central.Flush()
		_ = central.Close()
	}

	if !settings.Sentry.Enabled {
		return closeLogs, nil
	}

	systemID, err := telemetry.LoadOrCreateSystemID(filepath.Dir(settings.ConfigFile))
	if err != nil {
		central.Module("main").Warn("failed to load system id", logger.Error(err))
	}
	flush, err := telemetry.InitSentry(settings, info.WithSystemID(systemID))
	if err != nil {
		return closeLogs, err
	}
	return func() {
		flush()
		closeLogs()
	}, nil
}
