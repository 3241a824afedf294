package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/examwatch/examwatch/internal/api/v2/dto"
	"github.com/examwatch/examwatch/internal/behavior"
	"github.com/examwatch/examwatch/internal/datastore"
	"github.com/examwatch/examwatch/internal/errors"
)

// RecordBehaviorEvent stores an externally computed finding without running
// detection. Severity defaults to medium.
func (c *Controller) RecordBehaviorEvent(ctx echo.Context) error {
	var req dto.BehaviorEventRequest
	if err := ctx.Bind(&req); err != nil {
		return c.HandleError(ctx, err, "invalid request body", http.StatusBadRequest)
	}
	if req.CameraID == 0 {
		return c.HandleError(ctx, nil, "camera_id is required", http.StatusBadRequest)
	}

	if req.Severity == "" {
		req.Severity = defaultSeverity
	}
	severity, err := behavior.ParseSeverity(req.Severity)
	if err != nil {
		return c.HandleError(ctx, err, "invalid severity", http.StatusBadRequest)
	}

	ts, err := parseTimestamp(req.FrameTimestamp)
	if err != nil {
		return c.HandleError(ctx, err, "invalid frame_timestamp", http.StatusBadRequest)
	}

	id, err := c.store.SaveEvent(ctx.Request().Context(), &datastore.EventInput{
		Finding: behavior.Finding{
			Label:       req.BehaviorLabel,
			Confidence:  req.Confidence,
			Severity:    severity,
			BoundingBox: req.BBox,
			Extra:       req.ExtraData,
			Timestamp:   ts,
		},
		CameraID:       req.CameraID,
		FrameTimestamp: ts,
		RecordingID:    req.RecordingID,
		FrameIndex:     req.FrameIndex,
	})
	if err != nil {
		return c.HandleError(ctx, err, "failed to record behavior event", statusFor(err))
	}

	return ctx.JSON(http.StatusOK, dto.BehaviorEventResponse{
		Success:         true,
		BehaviorEventID: id,
		Message:         "Behavior event created",
	})
}

// ListBehaviorEvents returns the newest events of one camera.
func (c *Controller) ListBehaviorEvents(ctx echo.Context) error {
	cameraID, err := strconv.ParseUint(ctx.QueryParam(cameraIDParam), 10, 64)
	if err != nil || cameraID == 0 {
		return c.HandleError(ctx, err, "camera_id must be a positive integer", http.StatusBadRequest)
	}

	limit := c.query.DefaultLimit()
	if raw := ctx.QueryParam(limitParam); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil {
			return c.HandleError(ctx, err, "limit must be an integer", http.StatusBadRequest)
		}
	}

	events, err := c.query.RecentEvents(ctx.Request().Context(), uint(cameraID), limit)
	if err != nil {
		return c.HandleError(ctx, err, "failed to list behavior events", statusFor(err))
	}
	if events == nil {
		events = []datastore.Event{}
	}

	return ctx.JSON(http.StatusOK, dto.EventsResponse{
		Success:  true,
		CameraID: uint(cameraID),
		Events:   events,
		Count:    len(events),
	})
}

func parseTimestamp(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, errors.Newf("frame_timestamp is required").
			Component("api").
			Category(errors.CategoryValidation).
			Build()
	}
	for _, layout := range timestampLayouts {
		if ts, err := time.ParseInLocation(layout, raw, time.UTC); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, errors.Newf("unrecognized timestamp %q", raw).
		Component("api").
		Category(errors.CategoryValidation).
		Build()
}
