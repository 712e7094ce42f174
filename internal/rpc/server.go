package rpc

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

// Server is the HTTP endpoint hosting the RPC handlers, grounded on the
// teacher's internal/colony/httpapi.Server: a ServeMux wrapped in h2c for
// cleartext HTTP/2 (agents and operator CLIs alike connect over plain
// TCP inside the cluster), background Start/graceful Stop.
type Server struct {
	httpServer *http.Server
	logger     zerolog.Logger
}

// New builds a Server routing spec §6's RPCs onto svc.
func New(addr string, svc *Service, logger zerolog.Logger) *Server {
	logger = logger.With().Str("component", "rpc").Logger()

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK\n"))
	})
	mux.HandleFunc("/v1/write_raw", svc.HandleWriteRaw)
	mux.HandleFunc("/v1/query", svc.HandleQuery)
	mux.HandleFunc("/v1/debuginfo/should_initiate_upload", svc.HandleShouldInitiateUpload)
	mux.HandleFunc("/v1/debuginfo/initiate_upload", svc.HandleInitiateUpload)
	mux.HandleFunc("/v1/debuginfo/upload", svc.HandleUpload)
	mux.HandleFunc("/v1/debuginfo/mark_upload_finished", svc.HandleMarkUploadFinished)

	handler := withAccessLog(logger, mux)

	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           h2c.NewHandler(handler, &http2.Server{}),
			ReadHeaderTimeout: 10 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		logger: logger,
	}
}

// withAccessLog logs method, path, status, and a per-request correlation
// id for every request, in the teacher's audit-middleware style
// (internal/colony/httpapi's AuditMiddleware) minus the auth/RBAC layers
// this backend has no analogue for. The correlation id rides back to the
// caller as X-Request-Id, letting an operator tie a CLI invocation to the
// matching server log line.
func withAccessLog(logger zerolog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.New().String()
		w.Header().Set("X-Request-Id", requestID)

		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		logger.Debug().
			Str("request_id", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", sw.status).
			Msg("rpc request")
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Start runs the server in a background goroutine.
func (s *Server) Start() {
	s.logger.Info().Str("addr", s.httpServer.Addr).Msg("starting rpc server")
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("rpc server error")
		}
	}()
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info().Msg("stopping rpc server")
	return s.httpServer.Shutdown(ctx)
}

// Addr returns the server's configured address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}
