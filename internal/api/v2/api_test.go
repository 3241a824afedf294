package api

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mw "github.com/examwatch/examwatch/internal/api/middleware"
	"github.com/examwatch/examwatch/internal/behavior"
	"github.com/examwatch/examwatch/internal/conf"
	"github.com/examwatch/examwatch/internal/datastore"
	"github.com/examwatch/examwatch/internal/errors"
	"github.com/examwatch/examwatch/internal/frame"
	"github.com/examwatch/examwatch/internal/pipeline"
	"github.com/examwatch/examwatch/internal/query"
)

var frameTime = time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)

type harness struct {
	echo  *echo.Echo
	store *datastore.SQLiteStore
}

func getTestSettings(t *testing.T) *conf.Settings {
	t.Helper()
	settings := &conf.Settings{}
	settings.Output.SQLite.Enabled = true
	settings.Output.SQLite.Path = filepath.Join(t.TempDir(), "api.db")
	return settings
}

// newHarness wires the controller over a real SQLite store and the
// reference detector, with a fixed clock.
func newHarness(t *testing.T, settings *conf.Settings) *harness {
	t.Helper()
	return newHarnessWithDetector(t, settings, behavior.NewFaceCountDetector(behavior.NewSkinRegionLocator()))
}

func newHarnessWithDetector(t *testing.T, settings *conf.Settings, det behavior.Detector) *harness {
	t.Helper()

	store := datastore.New(settings, nil)
	require.NoError(t, store.Open())
	t.Cleanup(func() { _ = store.Close() })

	p := pipeline.New(det, pipeline.WithClock(func() time.Time { return frameTime }))
	rec := pipeline.NewRecorder(store, nil)
	q := query.New(store, query.Options{})

	e := echo.New()
	e.Use(mw.NewTraceID())
	New(e, settings, p, rec, store, q)

	return &harness{echo: e, store: store.(*datastore.SQLiteStore)}
}

func (h *harness) do(t *testing.T, method, target string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, target, reader)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	h.echo.ServeHTTP(rec, req)

	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return rec, out
}

func darkFrame(t *testing.T) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, frame.Filled(80, 60, color.RGBA{R: 20, G: 20, B: 20, A: 255}).Image()))
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

func TestProcessFrameRecordsFindings(t *testing.T) {
	t.Parallel()
	h := newHarness(t, getTestSettings(t))

	rec, body := h.do(t, http.MethodPost, "/api/process-frame", map[string]any{
		"camera_id":    3,
		"frame":        darkFrame(t),
		"recording_id": 11,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	assert.Equal(t, true, body["success"])
	assert.EqualValues(t, 3, body["camera_id"])
	assert.Equal(t, "2024-03-04T10:00:00Z", body["timestamp"])
	assert.EqualValues(t, 1, body["behavior_count"])
	assert.EqualValues(t, 0, body["failed_count"])

	behaviors := body["behaviors"].([]any)
	require.Len(t, behaviors, 1)
	first := behaviors[0].(map[string]any)
	assert.Equal(t, behavior.LabelNoFace, first["behavior_label"])
	assert.Equal(t, "high", first["severity"])
	assert.NotZero(t, first["id"])

	events, err := h.store.RecentEvents(context.Background(), 3, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.NotNil(t, events[0].RecordingID)
	assert.Equal(t, uint(11), *events[0].RecordingID)
	assert.True(t, frameTime.Equal(events[0].FrameTimestamp))
}

func TestProcessFrameDetectorFailureIsServerSide(t *testing.T) {
	t.Parallel()
	h := newHarnessWithDetector(t, getTestSettings(t),
		behavior.DetectorFunc(func(context.Context, *frame.Raster) ([]behavior.Finding, error) {
			return nil, errors.NewStd("model not loaded")
		}))

	rec, body := h.do(t, http.MethodPost, "/api/process-frame", map[string]any{
		"camera_id": 2,
		"frame":     darkFrame(t),
	})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code, rec.Body.String())
	assert.Equal(t, false, body["success"])
	assert.NotEmpty(t, body["error"])

	var count int64
	require.NoError(t, h.store.DB.Model(&datastore.BehaviorEvent{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestProcessFrameRejectsBadInput(t *testing.T) {
	t.Parallel()
	h := newHarness(t, getTestSettings(t))

	tests := []struct {
		name string
		body any
	}{
		{"malformed json", `{"camera_id":`},
		{"missing camera", map[string]any{"frame": "abc"}},
		{"missing frame", map[string]any{"camera_id": 1}},
		{"undecodable frame", map[string]any{"camera_id": 1, "frame": "bm90IGFuIGltYWdl"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, body := h.do(t, http.MethodPost, "/api/process-frame", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, false, body["success"])
			assert.NotEmpty(t, body["error"])
			assert.Equal(t, rec.Header().Get(echo.HeaderXRequestID), body["correlation_id"])
		})
	}

	var count int64
	require.NoError(t, h.store.DB.Model(&datastore.BehaviorEvent{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestRecordBehaviorEvent(t *testing.T) {
	t.Parallel()
	h := newHarness(t, getTestSettings(t))

	rec, body := h.do(t, http.MethodPost, "/api/behavior-event", map[string]any{
		"camera_id":       2,
		"behavior_label":  "looking_away",
		"confidence":      0.7,
		"frame_timestamp": "2024-03-04T09:30:00",
		"bbox":            map[string]int{"x": 1, "y": 2, "w": 3, "h": 4},
		"frame_index":     120,
		"extra_data":      map[string]any{"source": "pt-system"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, true, body["success"])
	assert.NotZero(t, body["behavior_event_id"])

	events, err := h.store.RecentEvents(context.Background(), 2, 1)
	require.NoError(t, err)
	require.Len(t, events, 1)
	ev := events[0]
	assert.Equal(t, behavior.SeverityMedium, ev.Severity, "severity defaults to medium")
	assert.Equal(t, "2024-03-04T09:30:00Z", ev.FrameTimestamp.UTC().Format(time.RFC3339))
	require.NotNil(t, ev.BoundingBox)
	assert.Equal(t, 4, ev.BoundingBox.H)
	assert.Equal(t, "pt-system", ev.Extra["source"])
}

func TestRecordBehaviorEventValidation(t *testing.T) {
	t.Parallel()
	h := newHarness(t, getTestSettings(t))

	base := func() map[string]any {
		return map[string]any{
			"camera_id":       2,
			"behavior_label":  "looking_away",
			"confidence":      0.7,
			"frame_timestamp": "2024-03-04T09:30:00Z",
		}
	}
	tests := []struct {
		name   string
		mutate func(m map[string]any)
	}{
		{"confidence above one", func(m map[string]any) { m["confidence"] = 1.5 }},
		{"negative confidence", func(m map[string]any) { m["confidence"] = -0.1 }},
		{"empty label", func(m map[string]any) { m["behavior_label"] = "" }},
		{"unknown severity", func(m map[string]any) { m["severity"] = "apocalyptic" }},
		{"bad timestamp", func(m map[string]any) { m["frame_timestamp"] = "yesterday" }},
		{"missing timestamp", func(m map[string]any) { delete(m, "frame_timestamp") }},
		{"missing camera", func(m map[string]any) { delete(m, "camera_id") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := base()
			tt.mutate(req)
			rec, body := h.do(t, http.MethodPost, "/api/behavior-event", req)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			assert.Equal(t, false, body["success"])
		})
	}

	var count int64
	require.NoError(t, h.store.DB.Model(&datastore.BehaviorEvent{}).Count(&count).Error)
	assert.Zero(t, count, "rejected events write no rows")
}

func TestListBehaviorEvents(t *testing.T) {
	t.Parallel()
	h := newHarness(t, getTestSettings(t))

	for i := 1; i <= 3; i++ {
		ts := frameTime.Add(time.Duration(i) * time.Minute).Format(time.RFC3339)
		rec, _ := h.do(t, http.MethodPost, "/api/behavior-event", map[string]any{
			"camera_id": 5, "behavior_label": "no_face_detected", "confidence": 0.95,
			"severity": "high", "frame_timestamp": ts,
		})
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec, body := h.do(t, http.MethodGet, "/api/behavior-events?camera_id=5&limit=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 2, body["count"])
	events := body["events"].([]any)
	require.Len(t, events, 2)
	assert.Equal(t, "2024-03-04T10:03:00Z", events[0].(map[string]any)["frame_timestamp"])
	assert.Equal(t, "2024-03-04T10:02:00Z", events[1].(map[string]any)["frame_timestamp"])

	rec, body = h.do(t, http.MethodGet, "/api/behavior-events?camera_id=99", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []any{}, body["events"])

	for _, target := range []string{
		"/api/behavior-events",
		"/api/behavior-events?camera_id=abc",
		"/api/behavior-events?camera_id=5&limit=0",
		"/api/behavior-events?camera_id=5&limit=ten",
	} {
		rec, _ := h.do(t, http.MethodGet, target, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
	}
}

func TestListCamerasAndStatistics(t *testing.T) {
	t.Parallel()
	h := newHarness(t, getTestSettings(t))

	for _, c := range []datastore.Camera{
		{CameraName: "Room B", Status: datastore.CameraStatusOnline},
		{CameraName: "Room A", Status: datastore.CameraStatusOnline},
		{CameraName: "Room C", Status: "offline"},
	} {
		require.NoError(t, h.store.DB.Create(&c).Error)
	}

	rec, body := h.do(t, http.MethodGet, "/api/cameras", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 2, body["count"])
	cams := body["cameras"].([]any)
	assert.Equal(t, "Room A", cams[0].(map[string]any)["camera_name"])
	assert.Equal(t, "Room B", cams[1].(map[string]any)["camera_name"])

	_, _ = h.do(t, http.MethodPost, "/api/process-frame", map[string]any{"camera_id": 1, "frame": darkFrame(t)})

	rec, body = h.do(t, http.MethodGet, "/api/statistics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	stats := body["statistics"].(map[string]any)
	assert.EqualValues(t, 3, stats["total_cameras"])
	assert.EqualValues(t, 2, stats["online_cameras"])
	assert.EqualValues(t, 1, stats["total_events"])
}

// failingQuery always fails with a storage error.
type failingQuery struct{}

func (failingQuery) RecentEvents(context.Context, uint, int) ([]datastore.Event, error) {
	return nil, errors.Newf("connection refused").Category(errors.CategoryDatabase).Build()
}

func (failingQuery) OnlineCameras(context.Context) ([]datastore.Camera, error) {
	return nil, errors.Newf("connection refused").Category(errors.CategoryDatabase).Build()
}

func (failingQuery) DefaultLimit() int { return 50 }

func TestStorageFailuresAreServerErrors(t *testing.T) {
	t.Parallel()

	e := echo.New()
	New(e, &conf.Settings{}, nil, nil, nil, failingQuery{})

	for _, target := range []string{"/api/cameras", "/api/behavior-events?camera_id=1"} {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
		assert.Equal(t, http.StatusInternalServerError, rec.Code, target)
		assert.True(t, strings.Contains(rec.Body.String(), `"success":false`))
	}
}

func TestProcessFrameRateLimited(t *testing.T) {
	t.Parallel()

	settings := getTestSettings(t)
	settings.WebServer.RateLimit.Enabled = true
	settings.WebServer.RateLimit.RPS = 0.001
	settings.WebServer.RateLimit.Burst = 1
	h := newHarness(t, settings)

	frameBody := map[string]any{"camera_id": 1, "frame": darkFrame(t)}
	rec, _ := h.do(t, http.MethodPost, "/api/process-frame", frameBody)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec, _ = h.do(t, http.MethodPost, "/api/process-frame", frameBody)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	// Reads are not limited.
	rec, _ = h.do(t, http.MethodGet, "/api/cameras", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestParseTimestamp(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{
		"2024-03-04T09:30:00Z",
		"2024-03-04T11:30:00+02:00",
		"2024-03-04T09:30:00",
		"2024-03-04 09:30:00.000000",
	} {
		ts, err := parseTimestamp(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, "2024-03-04T09:30:00Z", ts.Format(time.RFC3339), raw)
	}
}
