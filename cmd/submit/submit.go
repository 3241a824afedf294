// Package submit provides a client that sends image files to a running
// server's process-frame endpoint.
package submit

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/examwatch/examwatch/cmd/health"
	"github.com/examwatch/examwatch/internal/api/v2/dto"
	"github.com/examwatch/examwatch/internal/conf"
	"github.com/examwatch/examwatch/internal/errors"
	"github.com/examwatch/examwatch/internal/httpclient"
)

type options struct {
	server      string
	cameraID    uint
	recordingID uint
	frameIndex  int
	timeout     time.Duration
}

// errorBody is the failure envelope returned by the API.
type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Command creates the submit command.
func Command(settings *conf.Settings) *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:   "submit [image...]",
		Short: "Send image files to a running server",
		Long:  "POST each image to /api/process-frame of a running server and print the responses. Frames are numbered from --frame-index when it is set.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.server == "" {
				opts.server = health.DefaultServerURL(settings)
			}
			client := httpclient.New(&httpclient.Config{DefaultTimeout: opts.timeout})
			defer client.Close()

			url := strings.TrimSuffix(opts.server, "/") + "/api/process-frame"
			var failed int
			for i, path := range args {
				req, err := buildRequest(path, opts, i, cmd.Flags().Changed("recording"), cmd.Flags().Changed("frame-index"))
				if err != nil {
					return err
				}

				var raw json.RawMessage
				code, err := client.PostJSON(cmd.Context(), url, req, &raw)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(raw))
				if code != http.StatusOK {
					failed++
					var eb errorBody
					_ = json.Unmarshal(raw, &eb)
					fmt.Fprintf(cmd.ErrOrStderr(), "%s: HTTP %d: %s\n", path, code, eb.Error)
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d frames rejected", failed, len(args))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.server, "server", "", "Base URL of the server, defaults to the configured listen port on localhost")
	cmd.Flags().UintVarP(&opts.cameraID, "camera", "c", 0, "Camera id the frames belong to")
	cmd.Flags().UintVar(&opts.recordingID, "recording", 0, "Recording id to attach to every frame")
	cmd.Flags().IntVar(&opts.frameIndex, "frame-index", 0, "Index of the first frame")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "Per-request timeout")
	_ = cmd.MarkFlagRequired("camera")

	return cmd
}

// buildRequest reads path and wraps it as a process-frame request. The i-th
// file gets frame index frameIndex+i when an index was given.
func buildRequest(path string, opts options, i int, withRecording, withIndex bool) (*dto.ProcessFrameRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.New(err).
			Component("submit").
			Category(errors.CategoryFileIO).
			Context("path", path).
			Build()
	}

	req := &dto.ProcessFrameRequest{
		CameraID: opts.cameraID,
		Frame:    base64.StdEncoding.EncodeToString(data),
	}
	if withRecording {
		rec := opts.recordingID
		req.RecordingID = &rec
	}
	if withIndex {
		idx := opts.frameIndex + i
		req.FrameIndex = &idx
	}
	return req, nil
}
