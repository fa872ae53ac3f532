// Package server wires the router, middleware and handlers, and owns the
// process lifecycle: it is the composition root for everything below main.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/adsabs/harbour/internal/classic"
	"github.com/adsabs/harbour/internal/config"
	"github.com/adsabs/harbour/internal/directory"
	"github.com/adsabs/harbour/internal/handler"
	"github.com/adsabs/harbour/internal/middleware"
	sqliteRepo "github.com/adsabs/harbour/internal/repository/sqlite"
	"github.com/adsabs/harbour/internal/service"
)

// Server holds the HTTP server and the resources it owns. The database
// connection is closed during graceful shutdown.
type Server struct {
	router *chi.Mux
	cfg    *config.Config
	logger *slog.Logger
	db     *sqliteRepo.DB
}

// New assembles the dependency chain: store → gateway → bridge → handlers.
// The directory snapshot and bundle store are created by main (they need AWS
// wiring) and injected here.
func New(cfg *config.Config, logger *slog.Logger, dir *directory.Directory, bundles service.BundleStore) (*Server, error) {
	db, err := sqliteRepo.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Server{
		router: chi.NewRouter(),
		cfg:    cfg,
		logger: logger,
		db:     db,
	}

	gateway := classic.NewClient(cfg.RequestTimeout)
	bridge := service.NewBridge(db, gateway, dir, bundles, cfg, logger)
	s.setupRoutes(handler.NewBridgeHandler(bridge, logger))

	return s, nil
}

// setupRoutes registers middleware and endpoints. Endpoints that identify the
// caller through the trusted header sit behind the Identity middleware; the
// uid-parameterized endpoints are internal service-to-service routes.
func (s *Server) setupRoutes(h *handler.BridgeHandler) {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.Logger(s.logger))

	s.router.Get("/mirrors", h.HandleMirrors)

	s.router.Group(func(r chi.Router) {
		r.Use(middleware.Identity)
		r.Post("/auth/classic", h.HandleAuthClassic)
		r.Post("/auth/twopointoh", h.HandleAuthTwoPointOh)
		r.Get("/export/twopointoh/{export}", h.HandleExport)
		r.Get("/user", h.HandleUser)
	})

	s.router.Get("/libraries/classic/{uid}", h.HandleClassicLibraries)
	s.router.Get("/libraries/twopointoh/{uid}", h.HandleTwoPointOhLibraries)
	s.router.Get("/myads/classic/{uid}", h.HandleClassicFeed)
}

// Start runs the server until SIGINT/SIGTERM, then shuts down gracefully and
// closes the database.
func (s *Server) Start() error {
	defer s.db.Close()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: s.cfg.RequestTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.cfg.Port),
			slog.String("database", s.cfg.DBPath),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
