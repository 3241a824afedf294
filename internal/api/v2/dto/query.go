package dto

import (
	"github.com/examwatch/examwatch/internal/datastore"
)

// EventsResponse is the body of GET /api/behavior-events.
type EventsResponse struct {
	Success  bool              `json:"success"`
	CameraID uint              `json:"camera_id"`
	Events   []datastore.Event `json:"events"`
	Count    int               `json:"count"`
}

// CamerasResponse is the body of GET /api/cameras.
type CamerasResponse struct {
	Success bool               `json:"success"`
	Cameras []datastore.Camera `json:"cameras"`
	Count   int                `json:"count"`
}

// StatisticsResponse is the body of GET /api/statistics.
type StatisticsResponse struct {
	Success    bool                  `json:"success"`
	Statistics *datastore.Statistics `json:"statistics"`
}
