package datastore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/examwatch/examwatch/internal/behavior"
	"github.com/examwatch/examwatch/internal/conf"
	"github.com/examwatch/examwatch/internal/errors"
	"github.com/examwatch/examwatch/internal/logger"
	"github.com/examwatch/examwatch/internal/observability/metrics"
)

func createTestSettings(t *testing.T) *conf.Settings {
	t.Helper()
	settings := &conf.Settings{}
	settings.Output.SQLite.Enabled = true
	settings.Output.SQLite.Path = filepath.Join(t.TempDir(), "test.db")
	return settings
}

// createDatabase opens a real SQLite store in a temp dir.
func createDatabase(t *testing.T, settings *conf.Settings) *SQLiteStore {
	t.Helper()

	dataStore := New(settings, logger.NewNopLogger())
	require.NoError(t, dataStore.Open(), "Failed to open database")

	t.Cleanup(func() {
		assert.NoError(t, dataStore.Close(), "Failed to close datastore")
	})

	store, ok := dataStore.(*SQLiteStore)
	require.True(t, ok, "sqlite settings must yield *SQLiteStore")
	return store
}

func seedCameras(t *testing.T, ds *SQLiteStore, cameras ...Camera) {
	t.Helper()
	for i := range cameras {
		require.NoError(t, ds.DB.Create(&cameras[i]).Error)
	}
}

func noFaceInput(cameraID uint, ts time.Time) *EventInput {
	return &EventInput{
		Finding: behavior.Finding{
			Label:      behavior.LabelNoFace,
			Confidence: 0.95,
			Severity:   behavior.SeverityHigh,
			Extra:      map[string]any{behavior.ExtraFaceCount: 0},
		},
		CameraID:       cameraID,
		FrameTimestamp: ts,
	}
}

func countEvents(t *testing.T, ds *SQLiteStore) int64 {
	t.Helper()
	var n int64
	require.NoError(t, ds.DB.Model(&BehaviorEvent{}).Count(&n).Error)
	return n
}

func TestNewSelectsBackend(t *testing.T) {
	t.Parallel()

	s := &conf.Settings{}
	assert.Nil(t, New(s, nil), "no backend enabled")

	s.Output.SQLite.Enabled = true
	assert.IsType(t, &SQLiteStore{}, New(s, nil))

	s.Output.MySQL.Enabled = true
	assert.IsType(t, &MySQLStore{}, New(s, nil), "mysql wins when both are enabled")
}

func TestSaveEventRoundTrip(t *testing.T) {
	t.Parallel()

	ds := createDatabase(t, createTestSettings(t))
	ctx := context.Background()

	recording := uint(42)
	frameIndex := 17
	ts := time.Date(2024, 5, 6, 9, 30, 15, 0, time.UTC)
	in := &EventInput{
		Finding: behavior.Finding{
			Label:       "phone_visible",
			Confidence:  0.81,
			Severity:    behavior.SeverityMedium,
			BoundingBox: &behavior.BoundingBox{X: 10, Y: 20, W: 30, H: 40},
			Extra:       map[string]any{"model": "yolo", "score_raw": 0.8123},
		},
		CameraID:       3,
		FrameTimestamp: ts,
		RecordingID:    &recording,
		FrameIndex:     &frameIndex,
	}

	id, err := ds.SaveEvent(ctx, in)
	require.NoError(t, err)
	assert.NotZero(t, id)

	events, err := ds.RecentEvents(ctx, 3, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)

	ev := events[0]
	assert.Equal(t, id, ev.ID)
	assert.Equal(t, uint(3), ev.CameraID)
	assert.Equal(t, "phone_visible", ev.Label)
	assert.InDelta(t, 0.81, ev.Confidence, 1e-9)
	assert.Equal(t, behavior.SeverityMedium, ev.Severity)
	assert.True(t, ts.Equal(ev.FrameTimestamp), "frame timestamp %v != %v", ev.FrameTimestamp, ts)
	require.NotNil(t, ev.RecordingID)
	assert.Equal(t, recording, *ev.RecordingID)
	require.NotNil(t, ev.FrameIndex)
	assert.Equal(t, frameIndex, *ev.FrameIndex)
	assert.Equal(t, &behavior.BoundingBox{X: 10, Y: 20, W: 30, H: 40}, ev.BoundingBox)
	assert.Equal(t, map[string]any{"model": "yolo", "score_raw": 0.8123}, ev.Extra)
	assert.False(t, ev.CreatedAt.IsZero())
}

func TestSaveEventStoresNullForAbsentJSON(t *testing.T) {
	t.Parallel()

	ds := createDatabase(t, createTestSettings(t))
	in := noFaceInput(1, time.Now())
	in.Finding.Extra = nil

	id, err := ds.SaveEvent(context.Background(), in)
	require.NoError(t, err)

	var row BehaviorEvent
	require.NoError(t, ds.DB.First(&row, id).Error)
	assert.Nil(t, row.BBox)
	assert.Nil(t, row.ExtraData)
	assert.Nil(t, row.RecordingID)
	assert.Nil(t, row.FrameIndex)
}

func TestSaveEventAssignsIncreasingIDs(t *testing.T) {
	t.Parallel()

	ds := createDatabase(t, createTestSettings(t))
	var last uint
	for i := range 5 {
		id, err := ds.SaveEvent(context.Background(), noFaceInput(1, time.Now().Add(time.Duration(i)*time.Second)))
		require.NoError(t, err)
		assert.Greater(t, id, last)
		last = id
	}
}

func TestSaveEventRejectsInvalidInput(t *testing.T) {
	t.Parallel()

	ds := createDatabase(t, createTestSettings(t))
	now := time.Now()

	tests := []struct {
		name   string
		mutate func(*EventInput)
	}{
		{"empty label", func(in *EventInput) { in.Finding.Label = "" }},
		{"blank label", func(in *EventInput) { in.Finding.Label = "   " }},
		{"confidence below zero", func(in *EventInput) { in.Finding.Confidence = -0.01 }},
		{"confidence above one", func(in *EventInput) { in.Finding.Confidence = 1.01 }},
		{"unknown severity", func(in *EventInput) { in.Finding.Severity = behavior.SeverityUnknown }},
		{"negative bbox", func(in *EventInput) { in.Finding.BoundingBox = &behavior.BoundingBox{X: -1, W: 2, H: 2} }},
		{"missing camera", func(in *EventInput) { in.CameraID = 0 }},
		{"missing timestamp", func(in *EventInput) { in.FrameTimestamp = time.Time{} }},
		{"unserializable extra", func(in *EventInput) { in.Finding.Extra = map[string]any{"ch": make(chan int)} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := noFaceInput(1, now)
			tt.mutate(in)

			id, err := ds.SaveEvent(context.Background(), in)
			require.Error(t, err)
			assert.Zero(t, id)
			assert.True(t, errors.IsValidationError(err), "got %v", err)
		})
	}

	_, err := ds.SaveEvent(context.Background(), nil)
	assert.True(t, errors.IsValidationError(err))

	assert.Zero(t, countEvents(t, ds), "no row may be written for invalid input")
}

func TestSaveEventStorageFailureKeepsPriorRows(t *testing.T) {
	t.Parallel()

	ds := createDatabase(t, createTestSettings(t))
	ctx := context.Background()

	_, err := ds.SaveEvent(ctx, noFaceInput(1, time.Now()))
	require.NoError(t, err)

	// A failing insert on one row must not disturb the committed one.
	require.NoError(t, ds.DB.Exec(`CREATE TRIGGER reject_camera_9 BEFORE INSERT ON behavior_events
		WHEN NEW.camera_id = 9 BEGIN SELECT RAISE(ABORT, 'camera 9 rejected'); END`).Error)

	_, err = ds.SaveEvent(ctx, noFaceInput(9, time.Now()))
	require.Error(t, err)
	assert.True(t, errors.IsStorageError(err), "got %v", err)

	_, err = ds.SaveEvent(ctx, noFaceInput(2, time.Now()))
	require.NoError(t, err)

	assert.Equal(t, int64(2), countEvents(t, ds))
}

func TestRecentEventsOrderingAndLimit(t *testing.T) {
	t.Parallel()

	ds := createDatabase(t, createTestSettings(t))
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	// inserted out of order so ordering cannot come from ids
	t2, err := ds.SaveEvent(ctx, noFaceInput(5, base.Add(2*time.Minute)))
	require.NoError(t, err)
	_, err = ds.SaveEvent(ctx, noFaceInput(5, base.Add(1*time.Minute)))
	require.NoError(t, err)
	t3, err := ds.SaveEvent(ctx, noFaceInput(5, base.Add(3*time.Minute)))
	require.NoError(t, err)
	_, err = ds.SaveEvent(ctx, noFaceInput(6, base.Add(10*time.Minute)))
	require.NoError(t, err)

	events, err := ds.RecentEvents(ctx, 5, 2)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, t3, events[0].ID)
	assert.Equal(t, t2, events[1].ID)

	all, err := ds.RecentEvents(ctx, 5, 10_000)
	require.NoError(t, err)
	assert.Len(t, all, 3, "limit above the cap is clamped, not rejected")

	none, err := ds.RecentEvents(ctx, 99, 5)
	require.NoError(t, err)
	assert.Empty(t, none)

	for _, bad := range []int{0, -1} {
		_, err := ds.RecentEvents(ctx, 5, bad)
		assert.True(t, errors.IsValidationError(err), "limit %d", bad)
	}
}

func TestOnlineCamerasFiltersAndSorts(t *testing.T) {
	t.Parallel()

	ds := createDatabase(t, createTestSettings(t))
	seedCameras(t, ds,
		Camera{CameraName: "Room C", CameraIP: "10.0.0.3", Position: "back", Status: "online"},
		Camera{CameraName: "Room A", CameraIP: "10.0.0.1", Position: "front", Status: "online"},
		Camera{CameraName: "Room B", CameraIP: "10.0.0.2", Position: "left", Status: "offline"},
		Camera{CameraName: "Room D", CameraIP: "10.0.0.4", Position: "right", Status: "Online"},
		Camera{CameraName: "Room E", CameraIP: "10.0.0.5", Position: "door", Status: "maintenance"},
	)

	cameras, err := ds.OnlineCameras(context.Background())
	require.NoError(t, err)

	names := make([]string, 0, len(cameras))
	for _, c := range cameras {
		names = append(names, c.CameraName)
		assert.Equal(t, CameraStatusOnline, c.Status)
	}
	assert.Equal(t, []string{"Room A", "Room C"}, names)
}

func TestStatistics(t *testing.T) {
	t.Parallel()

	ds := createDatabase(t, createTestSettings(t))
	ctx := context.Background()
	seedCameras(t, ds,
		Camera{CameraName: "A", Status: "online"},
		Camera{CameraName: "B", Status: "offline"},
	)

	empty, err := ds.Statistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), empty.TotalCameras)
	assert.Equal(t, int64(1), empty.OnlineCameras)
	assert.Zero(t, empty.TotalEvents)
	assert.Nil(t, empty.LastEventAt)

	rec1, rec2 := uint(1), uint(2)
	latest := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	inputs := []*EventInput{
		noFaceInput(1, latest.Add(-time.Hour)),
		noFaceInput(1, latest),
		{
			Finding: behavior.Finding{
				Label: behavior.LabelMultipleFaces, Confidence: 0.9, Severity: behavior.SeverityCritical,
			},
			CameraID: 1, FrameTimestamp: latest.Add(-2 * time.Hour),
		},
	}
	inputs[0].RecordingID = &rec1
	inputs[1].RecordingID = &rec1
	inputs[2].RecordingID = &rec2
	for _, in := range inputs {
		_, err := ds.SaveEvent(ctx, in)
		require.NoError(t, err)
	}

	stats, err := ds.Statistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.TotalEvents)
	assert.Equal(t, int64(2), stats.DistinctRecordings)
	assert.Equal(t, map[string]int64{"high": 2, "critical": 1}, stats.EventsBySeverity)
	assert.Equal(t, map[string]int64{behavior.LabelNoFace: 2, behavior.LabelMultipleFaces: 1}, stats.EventsByLabel)
	require.NotNil(t, stats.LastEventAt)
	assert.True(t, latest.Equal(*stats.LastEventAt))
}

func TestPingAndClosedStore(t *testing.T) {
	t.Parallel()

	settings := createTestSettings(t)
	store := New(settings, nil)
	require.NoError(t, store.Open())
	require.NoError(t, store.Ping(context.Background()))
	require.NoError(t, store.Close())

	err := store.Ping(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsStorageError(err))

	_, err = store.SaveEvent(context.Background(), noFaceInput(1, time.Now()))
	assert.True(t, errors.IsStorageError(err), "got %v", err)
}

func TestUninitializedStore(t *testing.T) {
	t.Parallel()

	ds := &DataStore{}
	_, err := ds.OnlineCameras(context.Background())
	assert.True(t, errors.IsStorageError(err))
	_, err = ds.SaveEvent(context.Background(), noFaceInput(1, time.Now()))
	assert.True(t, errors.IsStorageError(err))
}

func TestInMemorySQLite(t *testing.T) {
	t.Parallel()

	settings := &conf.Settings{}
	settings.Output.SQLite.Enabled = true
	settings.Output.SQLite.Path = memoryPath
	ds := createDatabase(t, settings)

	_, err := ds.SaveEvent(context.Background(), noFaceInput(1, time.Now()))
	require.NoError(t, err)
	assert.Equal(t, int64(1), countEvents(t, ds))
}

func TestMetricsRecorded(t *testing.T) {
	t.Parallel()

	ds := createDatabase(t, createTestSettings(t))
	m, err := metrics.NewDatastoreMetrics(prometheus.NewRegistry())
	require.NoError(t, err)
	ds.SetMetrics(m)

	_, err = ds.SaveEvent(context.Background(), noFaceInput(1, time.Now()))
	require.NoError(t, err)
	_, err = ds.SaveEvent(context.Background(), noFaceInput(0, time.Now()))
	require.Error(t, err)

	assert.Equal(t, 1, testutil.CollectAndCount(m, "examwatch_behavior_events_saved_total"))
	assert.Equal(t, 2, testutil.CollectAndCount(m, "examwatch_datastore_operations_total"),
		"success and error series for save_event")
}
