package evidence

import (
	"bytes"
	"context"
	"fmt"
	"image/jpeg"
	"sync"
	"time"

	"github.com/examwatch/examwatch/internal/errors"
	"github.com/examwatch/examwatch/internal/logger"
	"github.com/examwatch/examwatch/internal/observability/metrics"
	"github.com/examwatch/examwatch/internal/pipeline"
)

const (
	contentTypeJPEG = "image/jpeg"
	defaultQuality  = 85
)

// Uploader stores one JPEG per recorded frame under
// <camera_id>/<first event id>.jpg. It is a pipeline.Hook.
type Uploader struct {
	store   ObjectStore
	bucket  string
	quality int
	metrics metrics.Recorder
	bytes   func(int)
	logger  logger.Logger

	mu      sync.Mutex
	ensured bool
}

// Option configures an Uploader.
type Option func(*Uploader)

// WithQuality sets the JPEG quality, 1 to 100.
func WithQuality(q int) Option {
	return func(u *Uploader) { u.quality = min(max(q, 1), 100) }
}

// WithMetrics records uploads against r.
func WithMetrics(r *metrics.ComponentRecorder) Option {
	return func(u *Uploader) {
		if r != nil {
			u.metrics = r
			u.bytes = r.AddBytes
		}
	}
}

// WithLogger sets the uploader logger.
func WithLogger(l logger.Logger) Option {
	return func(u *Uploader) { u.logger = l }
}

// NewUploader creates an uploader writing into bucket.
func NewUploader(store ObjectStore, bucket string, opts ...Option) *Uploader {
	u := &Uploader{
		store:   store,
		bucket:  bucket,
		quality: defaultQuality,
		metrics: metrics.NopRecorder{},
		bytes:   func(int) {},
	}
	for _, opt := range opts {
		opt(u)
	}
	if u.logger == nil {
		u.logger = logger.NewNopLogger()
	}
	return u
}

// Name implements pipeline.Hook.
func (u *Uploader) Name() string { return "evidence" }

// ObjectKey returns the key a frame with the given first event is stored at.
func ObjectKey(cameraID, eventID uint) string {
	return fmt.Sprintf("%d/%d.jpg", cameraID, eventID)
}

// AfterRecord encodes the decoded frame and uploads it. Results without a
// raster are skipped.
func (u *Uploader) AfterRecord(ctx context.Context, result *pipeline.Result, _ pipeline.Meta, saved []pipeline.SavedFinding) error {
	if result.Raster == nil || len(saved) == 0 {
		return nil
	}

	start := time.Now()
	err := u.upload(ctx, result, saved[0].EventID)
	u.metrics.RecordDuration(metrics.OpUpload, time.Since(start).Seconds())
	if err != nil {
		u.metrics.RecordOperation(metrics.OpUpload, metrics.StatusError)
		u.metrics.RecordError(metrics.OpUpload, string(errors.CategoryEvidence))
		return err
	}
	u.metrics.RecordOperation(metrics.OpUpload, metrics.StatusSuccess)
	return nil
}

func (u *Uploader) upload(ctx context.Context, result *pipeline.Result, eventID uint) error {
	if err := u.ensureBucket(ctx); err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, result.Raster.Image(), &jpeg.Options{Quality: u.quality}); err != nil {
		return errors.New(err).
			Component("evidence").
			Category(errors.CategoryEvidence).
			Context("operation", "encode_jpeg").
			Build()
	}

	key := ObjectKey(result.CameraID, eventID)
	size := buf.Len()
	if err := u.store.Put(ctx, u.bucket, key, &buf, int64(size), contentTypeJPEG); err != nil {
		return err
	}
	u.bytes(size)

	u.logger.Debug("evidence snapshot stored",
		logger.String("bucket", u.bucket),
		logger.String("key", key),
		logger.Int("bytes", size))
	return nil
}

// ensureBucket checks the bucket once; a failed check is retried on the next upload.
func (u *Uploader) ensureBucket(ctx context.Context) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.ensured {
		return nil
	}
	if err := u.store.EnsureBucket(ctx, u.bucket); err != nil {
		return err
	}
	u.ensured = true
	return nil
}

var _ pipeline.Hook = (*Uploader)(nil)
