// Package health aggregates dependency probes into liveness and readiness
// endpoints.
package health

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Status is the probe outcome for a component or the service as a whole
type Status string

const (
	StatusUp       Status = "up"
	StatusDegraded Status = "degraded"
	StatusDown     Status = "down"
)

// Probe is the result of a single component check
type Probe struct {
	Status    Status  `json:"status"`
	LatencyMS float64 `json:"latency_ms"`
	Detail    string  `json:"detail,omitempty"`
}

// Checker probes one dependency. Critical checkers gate readiness; a
// non-critical checker going down degrades the report without failing it.
type Checker interface {
	Name() string
	Critical() bool
	Check(ctx context.Context) Probe
}

// Report is the aggregate of all registered probes
type Report struct {
	Status     Status           `json:"status"`
	Components map[string]Probe `json:"components"`
	Version    string           `json:"version,omitempty"`
	UptimeSec  int64            `json:"uptime_seconds"`
	CheckedAt  time.Time        `json:"checked_at"`
}

// Service runs registered checkers and serves the probe endpoints
type Service struct {
	mu       sync.RWMutex
	checkers []Checker
	version  string
	started  time.Time
	logger   *zap.Logger
}

// NewService creates an empty health service
func NewService(logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		started: time.Now(),
		logger:  logger.With(zap.String("component", "health")),
	}
}

// SetVersion sets the version string included in reports
func (s *Service) SetVersion(version string) {
	s.mu.Lock()
	s.version = version
	s.mu.Unlock()
}

// Register adds a checker
func (s *Service) Register(c Checker) {
	s.mu.Lock()
	s.checkers = append(s.checkers, c)
	s.mu.Unlock()
	s.logger.Info("registered health checker",
		zap.String("name", c.Name()),
		zap.Bool("critical", c.Critical()))
}

// Report runs every checker concurrently and aggregates the results.
// Each probe gets a five second budget.
func (s *Service) Report(ctx context.Context) *Report {
	s.mu.RLock()
	checkers := make([]Checker, len(s.checkers))
	copy(checkers, s.checkers)
	version := s.version
	s.mu.RUnlock()

	type outcome struct {
		name  string
		probe Probe
	}
	results := make(chan outcome, len(checkers))
	for _, c := range checkers {
		go func(c Checker) {
			probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			results <- outcome{name: c.Name(), probe: c.Check(probeCtx)}
		}(c)
	}

	report := &Report{
		Status:     StatusUp,
		Components: make(map[string]Probe, len(checkers)),
		Version:    version,
		UptimeSec:  int64(time.Since(s.started).Seconds()),
		CheckedAt:  time.Now().UTC(),
	}
	for range checkers {
		r := <-results
		report.Components[r.name] = r.probe
		switch r.probe.Status {
		case StatusDown:
			report.Status = StatusDown
			s.logger.Warn("component down", zap.String("name", r.name), zap.String("detail", r.probe.Detail))
		case StatusDegraded:
			if report.Status != StatusDown {
				report.Status = StatusDegraded
			}
		}
	}
	return report
}

// Ready reports whether every critical checker passes
func (s *Service) Ready(ctx context.Context) (bool, string) {
	s.mu.RLock()
	checkers := make([]Checker, len(s.checkers))
	copy(checkers, s.checkers)
	s.mu.RUnlock()

	for _, c := range checkers {
		if !c.Critical() {
			continue
		}
		probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		probe := c.Check(probeCtx)
		cancel()
		if probe.Status == StatusDown {
			return false, c.Name()
		}
	}
	return true, ""
}

// RegisterRoutes mounts /health, /health/ready and /health/live.
// The full endpoint answers 503 only when the aggregate is down;
// readiness answers 503 as soon as one critical dependency fails.
func (s *Service) RegisterRoutes(router *gin.Engine) {
	router.GET("/health", func(c *gin.Context) {
		report := s.Report(c.Request.Context())
		code := http.StatusOK
		if report.Status == StatusDown {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, report)
	})
	router.GET("/health/ready", func(c *gin.Context) {
		ok, failed := s.Ready(c.Request.Context())
		if !ok {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready", "failed": failed})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	router.GET("/health/live", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "alive", "uptime_seconds": int64(time.Since(s.started).Seconds())})
	})
}
