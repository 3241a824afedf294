// Package query implements the read path: recent behavior events per camera
// and the online camera roster.
package query

import (
	"context"
	"slices"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"

	"github.com/examwatch/examwatch/internal/datastore"
	"github.com/examwatch/examwatch/internal/errors"
	"github.com/examwatch/examwatch/internal/logger"
)

const onlineCamerasKey = "online_cameras"

// MaxRecentLimit is the largest number of events one RecentEvents call returns.
const MaxRecentLimit = datastore.MaxRecentLimit

// Store is the read side of the event store.
type Store interface {
	RecentEvents(ctx context.Context, cameraID uint, limit int) ([]datastore.Event, error)
	OnlineCameras(ctx context.Context) ([]datastore.Camera, error)
}

// Options configures a Service.
type Options struct {
	// CameraCacheTTL keeps the online roster in memory. Zero disables caching.
	CameraCacheTTL time.Duration
	// DefaultLimit applies when a caller does not pass a limit.
	DefaultLimit int
	Logger       logger.Logger
}

// Service answers read queries. It is safe for concurrent use.
type Service struct {
	store        Store
	roster       *cache.Cache
	ttl          time.Duration
	group        singleflight.Group
	defaultLimit int
	logger       logger.Logger
}

// New creates a query service over store.
func New(store Store, opts Options) *Service {
	s := &Service{
		store:        store,
		ttl:          opts.CameraCacheTTL,
		defaultLimit: opts.DefaultLimit,
		logger:       opts.Logger,
	}
	if s.defaultLimit < 1 {
		s.defaultLimit = 50
	}
	if s.logger == nil {
		s.logger = logger.NewNopLogger()
	}
	if s.ttl > 0 {
		// No janitor: the roster is a single key checked for expiry on read.
		s.roster = cache.New(s.ttl, 0)
	}
	return s
}

// DefaultLimit returns the limit used when callers omit one.
func (s *Service) DefaultLimit() int {
	return s.defaultLimit
}

// RecentEvents returns up to limit events for cameraID, newest frame
// timestamp first. limit must be positive; values above MaxRecentLimit are
// clamped.
func (s *Service) RecentEvents(ctx context.Context, cameraID uint, limit int) ([]datastore.Event, error) {
	if limit < 1 {
		return nil, errors.Newf("limit must be a positive integer, got %d", limit).
			Component("query").
			Category(errors.CategoryValidation).
			Context("limit", limit).
			Build()
	}
	if limit > MaxRecentLimit {
		s.logger.Debug("clamping recent events limit",
			logger.Int("requested", limit),
			logger.Int("max", MaxRecentLimit))
		limit = MaxRecentLimit
	}
	return s.store.RecentEvents(ctx, cameraID, limit)
}

// OnlineCameras returns cameras whose status is exactly "online", sorted by
// name. Results may be up to CameraCacheTTL old.
func (s *Service) OnlineCameras(ctx context.Context) ([]datastore.Camera, error) {
	if s.roster != nil {
		if cached, ok := s.roster.Get(onlineCamerasKey); ok {
			return slices.Clone(cached.([]datastore.Camera)), nil
		}
	}

	// The fetch is shared by every waiting caller, so one caller's
	// cancellation must not fail the others.
	fetchCtx := context.WithoutCancel(ctx)
	ch := s.group.DoChan(onlineCamerasKey, func() (any, error) {
		cameras, err := s.store.OnlineCameras(fetchCtx)
		if err != nil {
			return nil, err
		}
		if s.roster != nil {
			s.roster.SetDefault(onlineCamerasKey, cameras)
		}
		return cameras, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return slices.Clone(res.Val.([]datastore.Camera)), nil
	}
}

// Invalidate drops the cached roster.
func (s *Service) Invalidate() {
	if s.roster != nil {
		s.roster.Delete(onlineCamerasKey)
	}
}
