// Package ops serves the operational HTTP surface: health, readiness,
// a live device snapshot and Prometheus metrics. It is not the control
// surface; the object-model server stays external.
package ops

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"psbridge/internal/bridge"
	"psbridge/internal/device"
	"psbridge/internal/observability"
)

// Server hosts the ops endpoints for one bridge instance.
type Server struct {
	deviceName string
	br         *bridge.Bridge
	registry   *device.Registry
	log        zerolog.Logger
	router     *gin.Engine
	started    time.Time
}

func New(deviceName string, br *bridge.Bridge, registry *device.Registry, corsOrigins []string, logger zerolog.Logger) *Server {
	observability.RegisterMetrics()
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(logger))
	r.Use(observability.RequestMetricsMiddleware())
	if len(corsOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins: corsOrigins,
			AllowMethods: []string{"GET"},
			AllowHeaders: []string{"Origin", "Content-Type"},
			MaxAge:       12 * time.Hour,
		}))
	}
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	s := &Server{
		deviceName: deviceName,
		br:         br,
		registry:   registry,
		log:        logger,
		router:     r,
		started:    time.Now(),
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"uptime": time.Since(s.started).String(),
			"device": s.deviceName,
		})
	})

	s.router.GET("/ready", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"ready":  true,
			"uptime": time.Since(s.started).String(),
			"device": s.deviceName,
		})
	})

	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	s.router.GET("/registers", func(c *gin.Context) {
		regs := s.registry.Registers()
		out := make([]gin.H, len(regs))
		for i, reg := range regs {
			out[i] = gin.H{
				"number":      reg.Number,
				"name":        reg.Name,
				"description": reg.Description,
			}
		}
		c.JSON(http.StatusOK, gin.H{"registers": out})
	})

	// One live snapshot, three device round trips. Failures surface as
	// 502 with the failing stage named.
	s.router.GET("/status", func(c *gin.Context) {
		status, err := s.br.Status()
		if err != nil {
			s.snapshotError(c, "status", err)
			return
		}
		current, err := s.br.Current()
		if err != nil {
			s.snapshotError(c, "current", err)
			return
		}
		voltage, err := s.br.Voltage()
		if err != nil {
			s.snapshotError(c, "voltage", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"device":    s.deviceName,
			"status":    status,
			"output_on": device.OutputOn(status),
			"current":   current,
			"voltage":   voltage,
		})
	})
}

func (s *Server) snapshotError(c *gin.Context, stage string, err error) {
	c.JSON(http.StatusBadGateway, gin.H{
		"stage": stage,
		"error": err.Error(),
	})
}

// Router exposes the gin engine for tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.router}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	s.log.Info().Str("addr", addr).Msg("ops server listening")

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
