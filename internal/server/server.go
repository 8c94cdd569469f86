// Package server serves the consolidated dataset to the dashboard, it is the cooperating
// backend that the backend refresh mode talks to.
package server

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"churchrank/internal/assert"
	"churchrank/internal/chrono"
	"churchrank/internal/refresh"
	"churchrank/internal/telemetry"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	report_server_refresh   = "server.refresh"
	report_server_scheduled = "server.scheduled-refresh"
	report_server_respond   = "server.respond"
)

// scheduledRefreshTimeout bounds a refresh started by the cron schedule.
const scheduledRefreshTimeout = 30 * time.Minute

type Options struct {
	// Years is the range refreshed when a request doesn't ask for one.
	Years         []int
	CacheTtl      time.Duration
	RefreshCron   string
	AllowedOrigin string
	// Time defaults to chrono.StandardTime.
	Time chrono.TimeAPI
}

type Server struct {
	source   refresh.Source
	opts     Options
	cache    *expirable.LRU[string, refresh.Result]
	registry *prometheus.Registry
	metrics  *serverMetrics
	tel      telemetry.API

	// refreshLock serializes refreshes, concurrent requests for an uncached result wait
	// for the refresh in progress and then use its result.
	refreshLock sync.Mutex
	// lastRefresh is the completion time of the latest successful refresh. It is read without
	// refreshLock so health checks never wait on a refresh.
	lastRefresh atomic.Pointer[time.Time]
}

func New(source refresh.Source, opts Options, tel telemetry.API) *Server {
	assert.NotNil(source)
	assert.NotNil(tel)
	if opts.CacheTtl <= 0 {
		opts.CacheTtl = time.Hour
	}
	if opts.AllowedOrigin == "" {
		opts.AllowedOrigin = "*"
	}
	if opts.Time == nil {
		opts.Time = chrono.NewStandardTime()
	}

	registry := prometheus.NewRegistry()
	return &Server{
		source:   source,
		opts:     opts,
		cache:    expirable.NewLRU[string, refresh.Result](64, nil, opts.CacheTtl),
		registry: registry,
		metrics:  newServerMetrics(registry),
		tel:      telemetry.NewScopedAPI("server", tel),
	}
}

func cacheKey(years []int) string {
	parts := make([]string, len(years))
	for i, y := range years {
		parts[i] = strconv.Itoa(y)
	}
	return strings.Join(parts, ",")
}

// Result returns the cached result for years (the configured range when empty), refreshing
// it when it is missing, expired or force is set. A refresh cut short by ctx is returned but
// not cached.
func (s *Server) Result(ctx context.Context, years []int, force bool) (refresh.Result, error) {
	if len(years) == 0 {
		years = s.opts.Years
	}
	key := cacheKey(years)

	if !force {
		cached, hit := s.cache.Get(key)
		if hit {
			s.metrics.cacheHits.Inc()
			return cached, nil
		}
	}

	s.refreshLock.Lock()
	defer s.refreshLock.Unlock()

	if !force {
		// another request may have refreshed while this one waited
		cached, hit := s.cache.Get(key)
		if hit {
			s.metrics.cacheHits.Inc()
			return cached, nil
		}
	}

	start := s.opts.Time.Now()
	result, err := s.source.Refresh(ctx, years)
	end := s.opts.Time.Now()
	s.metrics.recordRefresh(end.Sub(start), len(result.Entities), len(result.Errors), err)
	if err != nil {
		s.tel.ReportBroken(report_server_refresh, err, key)
		return result, err
	}
	if ctx.Err() != nil {
		s.tel.ReportWarning(report_server_refresh, fmt.Errorf("refresh cut short, not caching: %w", ctx.Err()), key)
		return result, nil
	}

	s.cache.Add(key, result)
	s.lastRefresh.Store(&end)
	s.tel.ReportDebug("refreshed dataset", result.RunId, len(result.Entities), len(result.Errors))
	return result, nil
}

// LastRefresh returns when the latest successful refresh finished, the zero time if none has.
func (s *Server) LastRefresh() time.Time {
	last := s.lastRefresh.Load()
	if last == nil {
		return time.Time{}
	}
	return *last
}

// Schedule refreshes the configured range on the configured cron spec. It does nothing when
// no spec is configured.
func (s *Server) Schedule(cron chrono.CronAPI) error {
	if s.opts.RefreshCron == "" {
		return nil
	}
	return cron.Cron(s.opts.RefreshCron, func() {
		ctx, cancel := context.WithTimeout(context.Background(), scheduledRefreshTimeout)
		defer cancel()
		_, err := s.Result(ctx, nil, true)
		if err != nil {
			s.tel.ReportWarning(report_server_scheduled, err)
		}
	})
}
