// Package server provides the thin HTTP front end over the memory engine.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/hrygo/dolphin/ai/memory"
	"github.com/hrygo/dolphin/ai/metrics"
	"github.com/hrygo/dolphin/internal/profile"
	"github.com/hrygo/dolphin/store"
)

// Server wires the HTTP surface to the memory engine.
type Server struct {
	echoServer *echo.Echo
	profile    *profile.Profile
	store      *store.Store
	engine     *memory.Engine
	exporter   *metrics.Exporter
}

// NewServer creates a new Server.
func NewServer(profile *profile.Profile, st *store.Store, engine *memory.Engine, exporter *metrics.Exporter) (*Server, error) {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	s := &Server{
		echoServer: e,
		profile:    profile,
		store:      st,
		engine:     engine,
		exporter:   exporter,
	}
	s.registerRoutes()

	return s, nil
}

func (s *Server) registerRoutes() {
	s.echoServer.GET("/healthz", s.healthz)
	if s.exporter != nil {
		s.echoServer.GET("/metrics", echo.WrapHandler(s.exporter.Handler()))
	}

	v1 := s.echoServer.Group("/api/v1")
	v1.POST("/chat", s.chat)
	v1.GET("/sessions/:session/turns", s.listTurns)
	v1.GET("/sessions/:session/facts", s.listFacts)
}

// Start starts the server and blocks until it stops.
func (s *Server) Start(_ context.Context) error {
	address := fmt.Sprintf("%s:%d", s.profile.Addr, s.profile.Port)
	return s.echoServer.Start(address)
}

// Shutdown gracefully shuts down the server: HTTP first, then in-flight
// extractions, then the store.
func (s *Server) Shutdown(ctx context.Context) {
	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := s.echoServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("failed to shutdown http server", "error", err)
	}
	if err := s.engine.Shutdown(shutdownCtx); err != nil {
		slog.Error("failed to drain memory engine", "error", err)
	}
	if err := s.store.Close(); err != nil {
		slog.Error("failed to close store", "error", err)
	}

	slog.Info("dolphin stopped properly")
}

func (s *Server) healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "ok",
		"version": s.profile.Version,
	})
}
