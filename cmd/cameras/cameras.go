// Package cameras provides the command printing the online camera roster.
package cameras

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/examwatch/examwatch/internal/conf"
	"github.com/examwatch/examwatch/internal/datastore"
	"github.com/examwatch/examwatch/internal/errors"
	"github.com/examwatch/examwatch/internal/logger"
	"github.com/examwatch/examwatch/internal/query"
)

// Command creates the cameras command.
func Command(settings *conf.Settings) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "cameras",
		Short: "List online cameras",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cameras, err := onlineCameras(cmd.Context(), settings)
			if err != nil {
				return err
			}
			if asJSON {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(cameras)
			}
			return writeTable(cmd.OutOrStdout(), cameras)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the roster as JSON")

	return cmd
}

func onlineCameras(ctx context.Context, settings *conf.Settings) ([]datastore.Camera, error) {
	store := datastore.New(settings, logger.Global().Module("datastore"))
	if store == nil {
		return nil, errors.Newf("no event store enabled").
			Component("cameras").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if err := store.Open(); err != nil {
		return nil, err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Global().Module("datastore").Warn("failed to close event store", logger.Error(err))
		}
	}()

	svc := query.New(store, query.Options{Logger: logger.Global().Module("query")})
	cameras, err := svc.OnlineCameras(ctx)
	if err != nil {
		return nil, err
	}
	if cameras == nil {
		cameras = []datastore.Camera{}
	}
	return cameras, nil
}

func writeTable(w io.Writer, cameras []datastore.Camera) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tIP\tPOSITION")
	for _, c := range cameras {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", c.ID, c.CameraName, c.CameraIP, c.Position)
	}
	return tw.Flush()
}
