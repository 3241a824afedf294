// Package datastore provides type aliases and integration with the observability metrics package
package datastore

import (
	"time"

	"github.com/examwatch/examwatch/internal/errors"
	"github.com/examwatch/examwatch/internal/observability/metrics"
)

// Metrics is a type alias for the metrics.DatastoreMetrics
type Metrics = metrics.DatastoreMetrics

// SetMetrics attaches collectors. A nil value disables recording.
func (ds *DataStore) SetMetrics(m *Metrics) {
	ds.metrics = m
}

// observe records the outcome and duration of one operation.
func (ds *DataStore) observe(operation string, start time.Time, err error) {
	if ds.metrics == nil {
		return
	}
	ds.metrics.RecordDuration(operation, time.Since(start).Seconds())
	if err != nil {
		ds.metrics.RecordOperation(operation, metrics.StatusError)
		ds.metrics.RecordError(operation, errorType(err))
		return
	}
	ds.metrics.RecordOperation(operation, metrics.StatusSuccess)
}

func errorType(err error) string {
	var ee *errors.EnhancedError
	if errors.As(err, &ee) {
		return ee.GetCategory()
	}
	return string(errors.CategoryGeneric)
}
