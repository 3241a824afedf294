// interfaces.go: event store contract and the GORM implementation shared by
// the SQLite and MySQL backends
package datastore

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/examwatch/examwatch/internal/behavior"
	"github.com/examwatch/examwatch/internal/conf"
	"github.com/examwatch/examwatch/internal/errors"
	"github.com/examwatch/examwatch/internal/logger"
	"github.com/examwatch/examwatch/internal/observability/metrics"
)

// MaxRecentLimit bounds RecentEvents so a caller cannot request an unbounded scan.
const MaxRecentLimit = 500

// DefaultSlowQueryThreshold is passed to the GORM logger adapter.
const DefaultSlowQueryThreshold = 500 * time.Millisecond

// Interface abstracts the underlying event store.
type Interface interface {
	Open() error
	Close() error
	// SaveEvent validates and writes one behavior event in its own
	// transaction and returns the store-assigned id.
	SaveEvent(ctx context.Context, in *EventInput) (uint, error)
	// RecentEvents returns up to limit events for a camera, newest frame
	// timestamp first. limit must be at least 1 and is capped at MaxRecentLimit.
	RecentEvents(ctx context.Context, cameraID uint, limit int) ([]Event, error)
	// OnlineCameras returns cameras with status "online" ordered by name.
	OnlineCameras(ctx context.Context) ([]Camera, error)
	Statistics(ctx context.Context) (*Statistics, error)
	Ping(ctx context.Context) error
}

// DataStore implements Interface on top of a GORM connection.
type DataStore struct {
	DB      *gorm.DB
	logger  logger.Logger
	metrics *Metrics
}

// New returns a store for the configured backend. MySQL takes precedence.
func New(settings *conf.Settings, log logger.Logger) Interface {
	if log == nil {
		log = logger.Global().Module("datastore")
	}
	switch {
	case settings.Output.MySQL.Enabled:
		return &MySQLStore{DataStore: DataStore{logger: log}, Settings: settings}
	case settings.Output.SQLite.Enabled:
		return &SQLiteStore{DataStore: DataStore{logger: log}, Settings: settings}
	default:
		return nil
	}
}

// NewWithDB wraps an already opened connection and migrates it.
func NewWithDB(db *gorm.DB, log logger.Logger) (*DataStore, error) {
	if log == nil {
		log = logger.NewNopLogger()
	}
	ds := &DataStore{DB: db, logger: log}
	if err := performAutoMigration(db, log, "gorm"); err != nil {
		return nil, err
	}
	return ds, nil
}

func (ds *DataStore) log() logger.Logger {
	if ds.logger == nil {
		return logger.NewNopLogger()
	}
	return ds.logger
}

func (ds *DataStore) ensureOpen(operation string) error {
	if ds.DB == nil {
		return dbError(errors.NewStd("database connection is not initialized"), operation)
	}
	return nil
}

// gormConfig routes GORM output through the datastore logger.
func gormConfig(log logger.Logger) *gorm.Config {
	return &gorm.Config{
		Logger: logger.NewGormLoggerAdapter(log.Module("gorm"), DefaultSlowQueryThreshold),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// performAutoMigration creates or updates the behavior_events and cameras tables.
func performAutoMigration(db *gorm.DB, log logger.Logger, dbType string) error {
	if err := db.AutoMigrate(&BehaviorEvent{}, &Camera{}); err != nil {
		return dbError(err, "auto_migrate", "db_type", dbType)
	}
	log.Debug("schema migrated", logger.String("db_type", dbType))
	return nil
}

// validateInput checks the finding and the persistence metadata.
func validateInput(in *EventInput) error {
	if in == nil {
		return validationError("event input is nil", "input", nil)
	}
	if err := in.Finding.Validate(); err != nil {
		return err
	}
	if in.CameraID == 0 {
		return validationError("camera id is required", "camera_id", in.CameraID)
	}
	if in.FrameTimestamp.IsZero() {
		return validationError("frame timestamp is required", "frame_timestamp", in.FrameTimestamp)
	}
	if in.FrameIndex != nil && *in.FrameIndex < 0 {
		return validationError("frame index must not be negative", "frame_index", *in.FrameIndex)
	}
	return nil
}

// toRow converts an input into its persisted form. JSON columns stay NULL
// when the finding carries no box or extra data.
func toRow(in *EventInput) (*BehaviorEvent, error) {
	row := &BehaviorEvent{
		CameraID:       in.CameraID,
		RecordingID:    in.RecordingID,
		BehaviorLabel:  in.Finding.Label,
		Confidence:     in.Finding.Confidence,
		Severity:       in.Finding.Severity.String(),
		FrameTimestamp: in.FrameTimestamp.UTC(),
		FrameIndex:     in.FrameIndex,
	}

	if in.Finding.BoundingBox != nil {
		data, err := json.Marshal(in.Finding.BoundingBox)
		if err != nil {
			return nil, validationError("bounding box is not serializable", "bbox", err)
		}
		s := string(data)
		row.BBox = &s
	}
	if len(in.Finding.Extra) > 0 {
		data, err := json.Marshal(in.Finding.Extra)
		if err != nil {
			return nil, validationError("extra data is not serializable", "extra_data", err)
		}
		s := string(data)
		row.ExtraData = &s
	}
	return row, nil
}

// toEvent decodes the JSON columns of a stored row.
func toEvent(row *BehaviorEvent) (Event, error) {
	ev := Event{
		ID:             row.ID,
		CameraID:       row.CameraID,
		RecordingID:    row.RecordingID,
		Label:          row.BehaviorLabel,
		Confidence:     row.Confidence,
		FrameTimestamp: row.FrameTimestamp,
		FrameIndex:     row.FrameIndex,
		CreatedAt:      row.CreatedAt,
	}

	severity, err := behavior.ParseSeverity(row.Severity)
	if err != nil {
		return Event{}, fmt.Errorf("event %d: %w", row.ID, err)
	}
	ev.Severity = severity

	if row.BBox != nil && *row.BBox != "" {
		var box behavior.BoundingBox
		if err := json.Unmarshal([]byte(*row.BBox), &box); err != nil {
			return Event{}, fmt.Errorf("event %d: decode bbox: %w", row.ID, err)
		}
		ev.BoundingBox = &box
	}
	if row.ExtraData != nil && *row.ExtraData != "" {
		if err := json.Unmarshal([]byte(*row.ExtraData), &ev.Extra); err != nil {
			return Event{}, fmt.Errorf("event %d: decode extra_data: %w", row.ID, err)
		}
	}
	return ev, nil
}

// SaveEvent validates in and inserts it as a single-row transaction. Earlier
// rows are never touched, so a failure here leaves prior commits in place.
// The write is detached from ctx cancellation so a started save always
// completes or fails on its own.
func (ds *DataStore) SaveEvent(ctx context.Context, in *EventInput) (id uint, err error) {
	start := time.Now()
	defer func() { ds.observe(metrics.OpSaveEvent, start, err) }()

	if err := validateInput(in); err != nil {
		return 0, err
	}
	if err := ds.ensureOpen("save_event"); err != nil {
		return 0, err
	}

	row, err := toRow(in)
	if err != nil {
		return 0, err
	}

	tx := ds.DB.WithContext(context.WithoutCancel(ctx)).Begin()
	if tx.Error != nil {
		return 0, dbError(tx.Error, "begin_transaction", "camera_id", in.CameraID)
	}

	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			ds.recordTransaction("rollback")
			panic(r)
		}
	}()

	if err := tx.Create(row).Error; err != nil {
		tx.Rollback()
		ds.recordTransaction("rollback")
		ds.log().Error("failed to save behavior event",
			logger.Uint64("camera_id", uint64(in.CameraID)),
			logger.String("behavior_label", in.Finding.Label),
			logger.Error(err))
		return 0, dbError(err, "save_event",
			"camera_id", in.CameraID,
			"behavior_label", in.Finding.Label)
	}

	if err := tx.Commit().Error; err != nil {
		ds.recordTransaction("rollback")
		return 0, dbError(err, "commit_transaction", "camera_id", in.CameraID)
	}
	ds.recordTransaction("committed")

	if ds.metrics != nil {
		ds.metrics.RecordEventSaved(row.BehaviorLabel, row.Severity)
	}
	ds.log().Debug("behavior event saved",
		logger.Uint64("event_id", uint64(row.ID)),
		logger.Uint64("camera_id", uint64(row.CameraID)),
		logger.String("behavior_label", row.BehaviorLabel),
		logger.String("severity", row.Severity))

	return row.ID, nil
}

func (ds *DataStore) recordTransaction(status string) {
	if ds.metrics != nil {
		ds.metrics.RecordTransaction(status)
	}
}

// RecentEvents returns the newest events for one camera.
func (ds *DataStore) RecentEvents(ctx context.Context, cameraID uint, limit int) (events []Event, err error) {
	start := time.Now()
	defer func() { ds.observe(metrics.OpRecentEvents, start, err) }()

	if limit < 1 {
		return nil, validationError("limit must be a positive integer", "limit", limit)
	}
	limit = min(limit, MaxRecentLimit)
	if err := ds.ensureOpen("recent_events"); err != nil {
		return nil, err
	}

	var rows []BehaviorEvent
	err = ds.DB.WithContext(ctx).
		Where("camera_id = ?", cameraID).
		Order("frame_timestamp DESC").
		Order("id DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, dbError(err, "recent_events", "camera_id", cameraID, "limit", limit)
	}

	events = make([]Event, 0, len(rows))
	for i := range rows {
		ev, err := toEvent(&rows[i])
		if err != nil {
			return nil, dbError(err, "decode_event", "event_id", rows[i].ID)
		}
		events = append(events, ev)
	}

	if ds.metrics != nil {
		ds.metrics.RecordResultSize(metrics.OpRecentEvents, metrics.TableBehaviorEvents, len(events))
	}
	return events, nil
}

// OnlineCameras returns the online roster sorted by camera name.
func (ds *DataStore) OnlineCameras(ctx context.Context) (cameras []Camera, err error) {
	start := time.Now()
	defer func() { ds.observe(metrics.OpOnlineCameras, start, err) }()

	if err := ds.ensureOpen("online_cameras"); err != nil {
		return nil, err
	}

	err = ds.DB.WithContext(ctx).
		Where("status = ?", CameraStatusOnline).
		Order("camera_name ASC").
		Order("id ASC").
		Find(&cameras).Error
	if err != nil {
		return nil, dbError(err, "online_cameras")
	}

	if ds.metrics != nil {
		ds.metrics.RecordResultSize(metrics.OpOnlineCameras, metrics.TableCameras, len(cameras))
	}
	return cameras, nil
}

// Statistics aggregates camera and event counts.
func (ds *DataStore) Statistics(ctx context.Context) (stats *Statistics, err error) {
	start := time.Now()
	defer func() { ds.observe(metrics.OpStatistics, start, err) }()

	if err := ds.ensureOpen("statistics"); err != nil {
		return nil, err
	}

	db := ds.DB.WithContext(ctx)
	stats = &Statistics{
		EventsBySeverity: make(map[string]int64),
		EventsByLabel:    make(map[string]int64),
	}

	if err := db.Model(&Camera{}).Count(&stats.TotalCameras).Error; err != nil {
		return nil, dbError(err, "count_cameras")
	}
	if err := db.Model(&Camera{}).Where("status = ?", CameraStatusOnline).Count(&stats.OnlineCameras).Error; err != nil {
		return nil, dbError(err, "count_online_cameras")
	}
	if err := db.Model(&BehaviorEvent{}).Count(&stats.TotalEvents).Error; err != nil {
		return nil, dbError(err, "count_events")
	}
	if err := db.Model(&BehaviorEvent{}).Where("recording_id IS NOT NULL").
		Distinct("recording_id").Count(&stats.DistinctRecordings).Error; err != nil {
		return nil, dbError(err, "count_recordings")
	}

	type groupCount struct {
		Grp   string
		Total int64
	}

	var bySeverity []groupCount
	if err := db.Model(&BehaviorEvent{}).
		Select("severity AS grp, COUNT(*) AS total").
		Group("severity").
		Scan(&bySeverity).Error; err != nil {
		return nil, dbError(err, "events_by_severity")
	}
	for _, g := range bySeverity {
		stats.EventsBySeverity[g.Grp] = g.Total
	}

	var byLabel []groupCount
	if err := db.Model(&BehaviorEvent{}).
		Select("behavior_label AS grp, COUNT(*) AS total").
		Group("behavior_label").
		Scan(&byLabel).Error; err != nil {
		return nil, dbError(err, "events_by_label")
	}
	for _, g := range byLabel {
		stats.EventsByLabel[g.Grp] = g.Total
	}

	if stats.TotalEvents > 0 {
		var last BehaviorEvent
		if err := db.Order("frame_timestamp DESC").Take(&last).Error; err != nil {
			return nil, dbError(err, "last_event")
		}
		ts := last.FrameTimestamp
		stats.LastEventAt = &ts
	}

	return stats, nil
}

// Ping checks that the database answers.
func (ds *DataStore) Ping(ctx context.Context) (err error) {
	start := time.Now()
	defer func() { ds.observe(metrics.OpPing, start, err) }()

	if err := ds.ensureOpen("ping"); err != nil {
		return err
	}
	sqlDB, err := ds.DB.DB()
	if err != nil {
		return dbError(err, "ping")
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return dbError(err, "ping")
	}
	return nil
}

// closeDB releases the underlying connection pool.
func (ds *DataStore) closeDB(dbType string) error {
	if ds.DB == nil {
		return dbError(errors.NewStd("database connection is not initialized"), "close", "db_type", dbType)
	}
	sqlDB, err := ds.DB.DB()
	if err != nil {
		return dbError(err, "close", "db_type", dbType)
	}
	if err := sqlDB.Close(); err != nil {
		return dbError(err, "close", "db_type", dbType)
	}
	ds.log().Debug("database connection closed", logger.String("db_type", strings.ToLower(dbType)))
	return nil
}
