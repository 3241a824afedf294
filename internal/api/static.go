package api

import (
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/labstack/echo/v4"

	"github.com/examwatch/examwatch/internal/logger"
)

const indexFile = "index.html"

// StaticFileServer serves the proctoring dashboard from a directory on disk.
// Lookups are sandboxed with os.Root so "../" never escapes the directory.
type StaticFileServer struct {
	dir    string
	logger logger.Logger
}

// NewStaticFileServer creates a server for dir.
func NewStaticFileServer(dir string, log logger.Logger) *StaticFileServer {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &StaticFileServer{dir: dir, logger: log}
}

// RegisterRoutes serves index.html at / and every file under /static/*.
func (sfs *StaticFileServer) RegisterRoutes(e *echo.Echo) {
	e.GET("/", sfs.handleIndex)
	e.GET("/static/*", sfs.handleAssetRequest)
}

func (sfs *StaticFileServer) handleIndex(c echo.Context) error {
	return sfs.serveFromDisk(c, indexFile)
}

func (sfs *StaticFileServer) handleAssetRequest(c echo.Context) error {
	return sfs.serveFromDisk(c, c.Param("*"))
}

// serveFromDisk serves path relative to the dashboard directory.
func (sfs *StaticFileServer) serveFromDisk(c echo.Context, path string) error {
	root, err := os.OpenRoot(sfs.dir)
	if err != nil {
		sfs.logError("failed to open static directory", sfs.dir, err)
		return echo.NewHTTPError(http.StatusInternalServerError, "static directory unavailable")
	}
	defer sfs.closeWithLog(root, "root handle")

	file, err := root.Open(filepath.Clean(path))
	if err != nil {
		if os.IsNotExist(err) {
			return echo.NewHTTPError(http.StatusNotFound, "file not found")
		}
		// os.Root rejects escapes with a path error, which is not a 500.
		sfs.logError("failed to open static file", path, err)
		return echo.NewHTTPError(http.StatusNotFound, "file not found")
	}
	defer sfs.closeWithLog(file, path)

	stat, err := file.Stat()
	if err != nil {
		sfs.logError("failed to stat static file", path, err)
		httpErr := echo.NewHTTPError(http.StatusInternalServerError, "failed to get file info")
		httpErr.Internal = err
		return httpErr
	}
	if stat.IsDir() {
		return echo.NewHTTPError(http.StatusNotFound, "file not found")
	}

	http.ServeContent(c.Response(), c.Request(), filepath.Base(path), stat.ModTime(), file)
	return nil
}

func (sfs *StaticFileServer) logError(msg, path string, err error) {
	sfs.logger.Warn(msg, logger.String("path", path), logger.Error(err))
}

func (sfs *StaticFileServer) closeWithLog(c io.Closer, name string) {
	if err := c.Close(); err != nil {
		sfs.logger.Debug("close failed", logger.String("name", name), logger.Error(err))
	}
}
