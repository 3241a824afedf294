// Package process provides offline analysis of image files.
package process

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/examwatch/examwatch/internal/analysis"
	"github.com/examwatch/examwatch/internal/conf"
)

// Command creates the process command.
func Command(settings *conf.Settings) *cobra.Command {
	var opts analysis.FileOptions

	cmd := &cobra.Command{
		Use:   "process [image...]",
		Short: "Analyze image files",
		Long:  "Run each image through the detector and print the findings as JSON. With --save the findings are recorded as behavior events.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			results, err := analysis.FileAnalysis(cmd.Context(), settings, args, opts)
			if err != nil {
				return err
			}
			failed, err := writeResults(cmd.OutOrStdout(), results)
			if err != nil {
				return err
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d files failed", failed, len(results))
			}
			return nil
		},
	}

	cmd.Flags().UintVarP(&opts.CameraID, "camera", "c", 0, "Camera id the frames belong to")
	cmd.Flags().BoolVar(&opts.Save, "save", false, "Record findings as behavior events")
	cmd.Flags().IntVarP(&opts.Concurrency, "jobs", "j", 0, "Files analyzed in parallel, 0 for one per CPU")

	return cmd
}

// writeResults prints one JSON document per line and returns the number of
// failed files.
func writeResults(w io.Writer, results []analysis.FileResult) (int, error) {
	enc := json.NewEncoder(w)
	failed := 0
	for i := range results {
		if !results[i].Success {
			failed++
		}
		if err := enc.Encode(&results[i]); err != nil {
			return failed, fmt.Errorf("write result: %w", err)
		}
	}
	return failed, nil
}
