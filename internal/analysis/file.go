package analysis

import (
	"context"
	"os"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/examwatch/examwatch/internal/conf"
	"github.com/examwatch/examwatch/internal/errors"
	"github.com/examwatch/examwatch/internal/logger"
	"github.com/examwatch/examwatch/internal/pipeline"
)

// FileOptions controls FileAnalysis.
type FileOptions struct {
	CameraID uint
	// Save records findings through the configured store and hooks.
	Save bool
	// Concurrency bounds in-flight files. Zero means GOMAXPROCS.
	Concurrency int
}

// FileResult is the outcome for one image file.
type FileResult struct {
	Path string `json:"path"`
	pipeline.Result
	EventIDs    []uint `json:"event_ids,omitempty"`
	FailedSaves int    `json:"failed_saves,omitempty"`
}

// FrameSource processes one frame payload.
type FrameSource interface {
	Process(ctx context.Context, payload []byte, cameraID uint) pipeline.Result
}

// ResultRecorder persists a processed frame.
type ResultRecorder interface {
	Record(ctx context.Context, result *pipeline.Result, meta pipeline.Meta) pipeline.Outcome
}

// FileAnalysis runs every path through the pipeline. Results keep the order
// of paths. A file that cannot be read or decoded yields a failed result and
// does not stop the batch.
func FileAnalysis(ctx context.Context, settings *conf.Settings, paths []string, opts FileOptions) ([]FileResult, error) {
	if len(paths) == 0 {
		return nil, errors.ValidationError("no input files given")
	}
	log := logger.Global().Module("analysis")

	var recorder ResultRecorder
	var source FrameSource
	if opts.Save {
		c, err := Build(ctx, settings, log)
		if err != nil {
			return nil, err
		}
		defer c.Close()
		source, recorder = c.Pipeline, c.Recorder
	} else {
		source = NewPipeline(settings, nil, log)
	}

	return analyzeFiles(ctx, source, recorder, paths, opts)
}

// analyzeFiles fans paths out over a bounded errgroup. recorder may be nil.
func analyzeFiles(ctx context.Context, source FrameSource, recorder ResultRecorder, paths []string, opts FileOptions) ([]FileResult, error) {
	limit := opts.Concurrency
	if limit <= 0 {
		limit = runtime.GOMAXPROCS(0)
	}

	results := make([]FileResult, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for i, path := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = analyzeFile(gctx, source, recorder, path, opts.CameraID)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func analyzeFile(ctx context.Context, source FrameSource, recorder ResultRecorder, path string, cameraID uint) FileResult {
	out := FileResult{Path: path}

	payload, err := os.ReadFile(path)
	if err != nil {
		err = errors.New(err).
			Component("analysis").
			Category(errors.CategoryFileIO).
			Context("path", path).
			Build()
		out.Result = pipeline.Result{CameraID: cameraID, Error: err.Error(), Err: err}
		return out
	}

	out.Result = source.Process(ctx, payload, cameraID)
	if !out.Success || recorder == nil {
		return out
	}

	outcome := recorder.Record(ctx, &out.Result, pipeline.Meta{})
	out.EventIDs = outcome.EventIDs()
	out.FailedSaves = len(outcome.Failures)
	return out
}
