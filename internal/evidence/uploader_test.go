package evidence

import (
	"bytes"
	"context"
	"image/color"
	"image/jpeg"
	"io"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/examwatch/examwatch/internal/behavior"
	"github.com/examwatch/examwatch/internal/conf"
	"github.com/examwatch/examwatch/internal/errors"
	"github.com/examwatch/examwatch/internal/frame"
	"github.com/examwatch/examwatch/internal/observability/metrics"
	"github.com/examwatch/examwatch/internal/pipeline"
)

type mockStore struct {
	mock.Mock
	body []byte
}

func (m *mockStore) EnsureBucket(ctx context.Context, bucket string) error {
	return m.Called(ctx, bucket).Error(0)
}

func (m *mockStore) Put(ctx context.Context, bucket, key string, r io.Reader, size int64, contentType string) error {
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.body = b
	return m.Called(ctx, bucket, key, size, contentType).Error(0)
}

func recordedResult() (*pipeline.Result, []pipeline.SavedFinding) {
	r := &pipeline.Result{
		Success:  true,
		CameraID: 5,
		Raster:   frame.Filled(32, 24, color.RGBA{R: 200, G: 10, B: 10, A: 255}),
		Findings: []behavior.Finding{{Label: behavior.LabelNoFace, Confidence: 0.95, Severity: behavior.SeverityHigh}},
	}
	return r, []pipeline.SavedFinding{{EventID: 77, Finding: r.Findings[0]}, {EventID: 78, Finding: r.Findings[0]}}
}

func TestObjectKey(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "5/77.jpg", ObjectKey(5, 77))
}

func TestUploadsJPEGUnderFirstEventID(t *testing.T) {
	t.Parallel()

	store := &mockStore{}
	store.On("EnsureBucket", mock.Anything, "evidence").Return(nil).Once()
	store.On("Put", mock.Anything, "evidence", "5/77.jpg", mock.AnythingOfType("int64"), "image/jpeg").Return(nil).Twice()

	u := NewUploader(store, "evidence")
	result, saved := recordedResult()

	require.NoError(t, u.AfterRecord(context.Background(), result, pipeline.Meta{}, saved))
	require.NoError(t, u.AfterRecord(context.Background(), result, pipeline.Meta{}, saved))
	store.AssertExpectations(t)

	img, err := jpeg.Decode(bytes.NewReader(store.body))
	require.NoError(t, err)
	assert.Equal(t, 32, img.Bounds().Dx())
	assert.Equal(t, 24, img.Bounds().Dy())
}

func TestSkipsResultWithoutRaster(t *testing.T) {
	t.Parallel()

	store := &mockStore{}
	u := NewUploader(store, "evidence")
	result, saved := recordedResult()
	result.Raster = nil

	require.NoError(t, u.AfterRecord(context.Background(), result, pipeline.Meta{}, saved))
	store.AssertNotCalled(t, "EnsureBucket", mock.Anything, mock.Anything)
}

func TestBucketCheckRetriedAfterFailure(t *testing.T) {
	t.Parallel()

	store := &mockStore{}
	store.On("EnsureBucket", mock.Anything, "evidence").
		Return(storageError(errors.NewStd("unreachable"), "bucket_exists", "evidence")).Once()
	store.On("EnsureBucket", mock.Anything, "evidence").Return(nil).Once()
	store.On("Put", mock.Anything, "evidence", "5/77.jpg", mock.Anything, "image/jpeg").Return(nil).Once()

	u := NewUploader(store, "evidence")
	result, saved := recordedResult()

	err := u.AfterRecord(context.Background(), result, pipeline.Meta{}, saved)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryEvidence))

	require.NoError(t, u.AfterRecord(context.Background(), result, pipeline.Meta{}, saved))
	store.AssertExpectations(t)
}

func TestUploadMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	im, err := metrics.NewIntegrationMetrics(reg)
	require.NoError(t, err)

	store := &mockStore{}
	store.On("EnsureBucket", mock.Anything, "evidence").Return(nil)
	store.On("Put", mock.Anything, "evidence", mock.Anything, mock.Anything, mock.Anything).
		Return(storageError(errors.NewStd("denied"), "put_object", "evidence")).Once()
	store.On("Put", mock.Anything, "evidence", mock.Anything, mock.Anything, mock.Anything).Return(nil).Once()

	u := NewUploader(store, "evidence", WithMetrics(im.For("evidence")), WithQuality(500))
	assert.Equal(t, 100, u.quality)

	result, saved := recordedResult()
	require.Error(t, u.AfterRecord(context.Background(), result, pipeline.Meta{}, saved))
	require.NoError(t, u.AfterRecord(context.Background(), result, pipeline.Meta{}, saved))

	assert.Equal(t, 2, testutil.CollectAndCount(im, "examwatch_integration_operations_total"))
}

func TestUploaderAsRecorderHookNeverFailsTheSave(t *testing.T) {
	t.Parallel()

	store := &mockStore{}
	store.On("EnsureBucket", mock.Anything, mock.Anything).
		Return(storageError(errors.NewStd("unreachable"), "bucket_exists", "evidence"))

	saver := saverFunc(func() (uint, error) { return 9, nil })
	rec := pipeline.NewRecorder(saver, nil, NewUploader(store, "evidence"))

	result, _ := recordedResult()
	out := rec.Record(context.Background(), result, pipeline.Meta{})
	assert.Equal(t, []uint{9}, out.EventIDs())
	assert.Empty(t, out.Failures)
}

func TestNewMinioStore(t *testing.T) {
	t.Parallel()

	s, err := NewMinioStore(&conf.EvidenceSettings{Endpoint: "localhost:9000", AccessKey: "a", SecretKey: "b"})
	require.NoError(t, err)
	assert.NotNil(t, s)

	_, err = NewMinioStore(&conf.EvidenceSettings{Endpoint: "bad host:9000"})
	require.Error(t, err)
}
