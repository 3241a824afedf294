// Package serve provides the long-running ExamWatch service command.
package serve

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/examwatch/examwatch/internal/analysis"
	"github.com/examwatch/examwatch/internal/conf"
)

// Command creates the serve command.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and frame intake",
		Long:  "Start the HTTP API and, when enabled, the Kafka frame consumer. Findings are stored and fanned out to MQTT and the evidence bucket as configured.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, settings)
		},
	}

	if err := setupFlags(cmd, settings); err != nil {
		fmt.Printf("error setting up flags: %v\n", err)
		os.Exit(1)
	}

	return cmd
}

func run(ctx context.Context, settings *conf.Settings) error {
	if err := conf.ValidateSettings(settings); err != nil {
		return err
	}
	return analysis.RealtimeAnalysis(ctx, settings)
}

// setupFlags configures flags specific to the serve command.
func setupFlags(cmd *cobra.Command, settings *conf.Settings) error {
	cmd.Flags().StringVar(&settings.WebServer.Host, "host", viper.GetString("webserver.host"), "Address the HTTP API listens on")
	cmd.Flags().StringVar(&settings.WebServer.Port, "port", viper.GetString("webserver.port"), "Port the HTTP API listens on")
	cmd.Flags().StringVar(&settings.WebServer.StaticDir, "static", viper.GetString("webserver.staticdir"), "Directory with the dashboard files, empty to disable")
	cmd.Flags().BoolVar(&settings.Kafka.Enabled, "kafka", viper.GetBool("kafka.enabled"), "Consume frames from Kafka")
	cmd.Flags().BoolVar(&settings.MQTT.Enabled, "mqtt", viper.GetBool("mqtt.enabled"), "Publish saved events to MQTT")
	cmd.Flags().BoolVar(&settings.Evidence.Enabled, "evidence", viper.GetBool("evidence.enabled"), "Upload evidence snapshots")

	bindings := map[string]string{
		"host":     "webserver.host",
		"port":     "webserver.port",
		"static":   "webserver.staticdir",
		"kafka":    "kafka.enabled",
		"mqtt":     "mqtt.enabled",
		"evidence": "evidence.enabled",
	}
	for flag, key := range bindings {
		if err := viper.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
			return fmt.Errorf("error binding flags: %w", err)
		}
	}

	return nil
}
