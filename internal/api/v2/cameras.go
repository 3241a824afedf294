package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/examwatch/examwatch/internal/api/v2/dto"
	"github.com/examwatch/examwatch/internal/datastore"
)

// ListCameras returns the online camera roster ordered by name.
func (c *Controller) ListCameras(ctx echo.Context) error {
	cameras, err := c.query.OnlineCameras(ctx.Request().Context())
	if err != nil {
		return c.HandleError(ctx, err, "failed to list cameras", statusFor(err))
	}
	if cameras == nil {
		cameras = []datastore.Camera{}
	}
	return ctx.JSON(http.StatusOK, dto.CamerasResponse{
		Success: true,
		Cameras: cameras,
		Count:   len(cameras),
	})
}

// GetStatistics returns store-wide totals.
func (c *Controller) GetStatistics(ctx echo.Context) error {
	stats, err := c.store.Statistics(ctx.Request().Context())
	if err != nil {
		return c.HandleError(ctx, err, "failed to compute statistics", statusFor(err))
	}
	return ctx.JSON(http.StatusOK, dto.StatisticsResponse{Success: true, Statistics: stats})
}
