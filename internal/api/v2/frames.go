package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/examwatch/examwatch/internal/api/v2/dto"
	"github.com/examwatch/examwatch/internal/pipeline"
)

// ProcessFrame decodes and analyzes one frame, then records every finding.
// Findings that fail to save are counted in failed_count and left out of
// behaviors.
func (c *Controller) ProcessFrame(ctx echo.Context) error {
	var req dto.ProcessFrameRequest
	if err := ctx.Bind(&req); err != nil {
		return c.HandleError(ctx, err, "invalid request body", http.StatusBadRequest)
	}
	if req.CameraID == 0 {
		return c.HandleError(ctx, nil, "camera_id is required", http.StatusBadRequest)
	}
	if req.Frame == "" {
		return c.HandleError(ctx, nil, "frame is required", http.StatusBadRequest)
	}

	reqCtx := ctx.Request().Context()
	result := c.processor.Process(reqCtx, []byte(req.Frame), req.CameraID)
	if !result.Success {
		return c.HandleError(ctx, result.Err, "frame processing failed", statusFor(result.Err))
	}

	outcome := c.recorder.Record(reqCtx, &result, pipeline.Meta{
		RecordingID: req.RecordingID,
		FrameIndex:  req.FrameIndex,
	})
	return ctx.JSON(http.StatusOK, dto.NewProcessFrameResponse(&result, outcome))
}
