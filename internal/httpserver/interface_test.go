package httpserver_test

import (
	"github.com/examwatch/examwatch/internal/api"
	"github.com/examwatch/examwatch/internal/httpserver"
)

var _ httpserver.Server = (*api.Server)(nil)
