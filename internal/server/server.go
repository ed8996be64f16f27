// Package server is the daemon's control plane: a loopback REST API the
// farm's web UI drives to create and monitor transfers.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/octa-computer/transfer-manager/internal/config"
	"github.com/octa-computer/transfer-manager/internal/metrics"
	"github.com/octa-computer/transfer-manager/internal/transfer"
)

// Server wires the router, the transfer manager and the HTTP listener.
type Server struct {
	cfg     *config.Config
	log     zerolog.Logger
	manager *transfer.Manager

	// baseCtx bounds async transfer initialization; it is not tied to any
	// single request.
	baseCtx context.Context
}

// New builds the control-plane server around an already-constructed
// transfer manager.
func New(cfg *config.Config, manager *transfer.Manager, log zerolog.Logger) *Server {
	return &Server{
		cfg:     cfg,
		log:     log.With().Str("component", "server").Logger(),
		manager: manager,
		baseCtx: context.Background(),
	}
}

// Router assembles the full route tree.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(s.requestLogger)
	r.Use(corsMiddleware)
	r.Use(versionGate)

	r.Get("/", s.handleIndex)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(s.userDataMiddleware)

		r.Get("/transfer_manager_info", s.handleInfo)
		r.Get("/logs", s.handleLogs)
		r.Get("/queues", s.handleQueues)

		r.Post("/upload", s.handleCreateUpload)
		r.Post("/download", s.handleCreateDownload)
		r.Get("/transfers", s.handleListTransfers)
		r.Get("/transfers/{id}", s.handleGetTransfer)
		r.Delete("/transfers/{id}", s.handleDeleteTransfer)
		r.Put("/transfers/{id}/status", s.handleSetTransferStatus)
	})

	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

// Run serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	s.baseCtx = ctx

	addr := net.JoinHostPort(s.cfg.ListenHost, fmt.Sprintf("%d", s.cfg.ListenPort))
	srv := &http.Server{
		Addr:    addr,
		Handler: s.Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", addr).Msg("control plane listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	s.log.Info().Msg("control plane stopped")
	return nil
}
