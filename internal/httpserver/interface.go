// Package httpserver defines the lifecycle the command layer drives the HTTP
// server through, so serve can be tested without binding a port.
package httpserver

import (
	api "github.com/examwatch/examwatch/internal/api/v2"
)

// Server defines the interface for HTTP servers in ExamWatch.
type Server interface {
	// Start begins serving HTTP requests in a background goroutine and
	// returns immediately. Use Shutdown to stop the server.
	Start()

	// Wait yields once the server has stopped, with its error if it failed.
	Wait() <-chan error

	// Shutdown gracefully stops the server and releases resources.
	Shutdown() error

	// APIController returns the v2 API controller, nil if not initialized.
	APIController() *api.Controller
}
