package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/examwatch/examwatch/cmd/cameras"
	"github.com/examwatch/examwatch/cmd/health"
	"github.com/examwatch/examwatch/cmd/process"
	"github.com/examwatch/examwatch/cmd/serve"
	"github.com/examwatch/examwatch/cmd/submit"
	"github.com/examwatch/examwatch/internal/buildinfo"
	"github.com/examwatch/examwatch/internal/conf"
	"github.com/examwatch/examwatch/internal/errors"
	"github.com/examwatch/examwatch/internal/logger"
)

// RootCommand creates and returns the root command
func RootCommand(settings *conf.Settings, build *buildinfo.Context) *cobra.Command {
	var debug bool

	rootCmd := &cobra.Command{
		Use:           "examwatch",
		Short:         "ExamWatch exam proctoring frame analysis",
		Version:       build.String(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Set up the global flags for the root command.
	if err := setupFlags(rootCmd, settings, &debug); err != nil {
		fmt.Fprintf(os.Stderr, "error setting up flags: %v\n", err)
		os.Exit(1)
	}

	rootCmd.AddCommand(
		serve.Command(settings),
		process.Command(settings),
		cameras.Command(settings),
		health.Command(settings),
		submit.Command(settings),
	)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if debug {
			settings.Logging.DefaultLevel = "debug"
			if settings.Logging.Console != nil {
				settings.Logging.Console.Level = "debug"
			}
		}
		settings.Main.Version = build.GetVersion()
		return initialize(settings)
	}

	return rootCmd
}

// initialize is called before any subcommand runs, after flags have been
// merged into settings. It replaces the bootstrap console logger and enables
// error telemetry.
func initialize(settings *conf.Settings) error {
	cl, err := logger.NewCentralLogger(&settings.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	logger.SetGlobal(cl)

	if err := errors.InitSentry(settings.Telemetry.SentryDSN, settings.Main.Version); err != nil {
		cl.Module("main").Warn("error reporting disabled", logger.Error(err))
	}
	return nil
}

// setupFlags defines flags that are global to the command line interface
func setupFlags(rootCmd *cobra.Command, settings *conf.Settings, debug *bool) error {
	rootCmd.PersistentFlags().BoolVarP(debug, "debug", "d", false, "Enable debug output")
	rootCmd.PersistentFlags().StringVar(&settings.Output.SQLite.Path, "database", viper.GetString("output.sqlite.path"), "Path to the SQLite event database")

	if err := viper.BindPFlag("output.sqlite.path", rootCmd.PersistentFlags().Lookup("database")); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}

	return nil
}
