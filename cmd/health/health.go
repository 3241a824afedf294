// Package health provides a probe for a running ExamWatch server, suitable
// for container health checks.
package health

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/examwatch/examwatch/internal/conf"
	"github.com/examwatch/examwatch/internal/httpclient"
)

// Status is the subset of the /health body the probe reports.
type Status struct {
	Status         string  `json:"status"`
	DatabaseStatus string  `json:"database_status"`
	Version        string  `json:"version"`
	UptimeSeconds  float64 `json:"uptime_seconds"`
}

// Command creates the health command.
func Command(settings *conf.Settings) *cobra.Command {
	var (
		server  string
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check a running server",
		Long:  "Query /health of a running ExamWatch server. Exits non-zero unless the server reports healthy.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if server == "" {
				server = DefaultServerURL(settings)
			}
			client := httpclient.New(&httpclient.Config{DefaultTimeout: timeout})
			defer client.Close()

			var st Status
			code, err := client.GetJSON(cmd.Context(), strings.TrimSuffix(server, "/")+"/health", &st)
			if err != nil {
				return err
			}
			out, _ := json.Marshal(st)
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			if code != http.StatusOK || st.Status != "healthy" {
				return fmt.Errorf("server is %s (HTTP %d, database %s)", st.Status, code, st.DatabaseStatus)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&server, "server", "", "Base URL of the server, defaults to the configured listen port on localhost")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "Request timeout")

	return cmd
}

// DefaultServerURL is the local address of the configured web server.
func DefaultServerURL(settings *conf.Settings) string {
	port := settings.WebServer.Port
	if port == "" {
		port = "8000"
	}
	return "http://127.0.0.1:" + port
}
