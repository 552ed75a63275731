// Package observer provides an optional local HTTP listener so an
// experimenter can watch a running session from another terminal: health,
// prometheus metrics, and a JSON snapshot of the loop state.
package observer

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/coglabtools/pmback/internal/metrics"
	"github.com/coglabtools/pmback/internal/session"
)

// Config holds the listener address.
type Config struct {
	Host string
	Port int
}

// Server serves the observer endpoints.
type Server struct {
	echo   *echo.Echo
	logger *zap.Logger
	config Config

	mu   sync.RWMutex
	last session.Snapshot
}

// NewServer creates the observer server over the session's metrics registry.
func NewServer(m *metrics.Metrics, logger *zap.Logger, cfg Config) (*Server, error) {
	if m == nil {
		return nil, fmt.Errorf("metrics registry is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			logger.Debug("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
			)
			return err
		}
	})

	s := &Server{
		echo:   e,
		logger: logger,
		config: cfg,
	}

	e.GET("/health", s.handleHealth)
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(m.Registry(), promhttp.HandlerOpts{})))
	e.GET("/api/v1/session", s.handleSession)

	return s, nil
}

// Update stores the latest session snapshot for the /api/v1/session view.
// Safe to call from the controller's notify callback.
func (s *Server) Update(snap session.Snapshot) {
	s.mu.Lock()
	s.last = snap
	s.mu.Unlock()
}

// Start begins serving. Blocks until shutdown; returns http.ErrServerClosed
// on graceful shutdown.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("observer listening", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// Echo exposes the router for tests.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "healthy"})
}

// sessionView is the wire form of a session snapshot.
type sessionView struct {
	Phase      string `json:"phase"`
	Paused     bool   `json:"paused"`
	Category   string `json:"category"`
	Block      int    `json:"block"`
	BlockCount int    `json:"blockCount"`
	TrialIndex int    `json:"trialIndex"`
	TrialCount int    `json:"trialCount"`
	Presented  int    `json:"presented"`

	Summary any `json:"summary,omitempty"`
}

func (s *Server) handleSession(c echo.Context) error {
	s.mu.RLock()
	snap := s.last
	s.mu.RUnlock()

	view := sessionView{
		Phase:      snap.Phase.String(),
		Paused:     snap.Paused,
		Category:   string(snap.Category),
		Block:      snap.Block,
		BlockCount: snap.BlockCount,
		TrialIndex: snap.TrialIndex,
		TrialCount: snap.TrialCount,
		Presented:  snap.Presented,
	}
	if snap.Summary != nil {
		view.Summary = snap.Summary
	}
	return c.JSON(http.StatusOK, view)
}
