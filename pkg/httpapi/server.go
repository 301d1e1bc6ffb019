// Package httpapi provides a small HTTP status surface over a
// supervisor.Supervisor: CORS and request-logging middleware around two
// read-only fleet-state endpoints.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/ethan/mediabridge/pkg/logger"
	"github.com/ethan/mediabridge/pkg/supervisor"
)

// BridgeInfo is the JSON-facing view of one supervised bridge.
type BridgeInfo struct {
	ID           string `json:"id"`
	State        string `json:"state"`
	FailureCount int    `json:"failureCount"`
	LastError    string `json:"lastError,omitempty"`
}

// QueueInfo is the JSON-facing view of the shared reconnect scheduler.
type QueueInfo struct {
	QueueDepth     int   `json:"queueDepth"`
	TotalEnqueued  int64 `json:"totalEnqueued"`
	TotalExecuted  int64 `json:"totalExecuted"`
	TotalFailed    int64 `json:"totalFailed"`
	TotalCoalesced int64 `json:"totalCoalesced"`
}

// Server exposes bridge fleet status over HTTP.
type Server struct {
	sup        *supervisor.Supervisor
	log        *logger.Logger
	httpServer *http.Server
	mu         sync.Mutex
}

// NewServer creates a Server fronting sup.
func NewServer(sup *supervisor.Supervisor, log *logger.Logger) *Server {
	if log == nil {
		log = logger.Default()
	}
	return &Server{sup: sup, log: log}
}

// Start launches the HTTP server on addr in the background. It returns the
// listen error if one arrives within 100ms and nil otherwise, rather than
// blocking for the server's lifetime.
func (s *Server) Start(addr string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/bridges", s.ServeBridges)
	mux.HandleFunc("/bridges/status", s.ServeQueueStatus)

	s.mu.Lock()
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.withCORS(s.withLogging(mux)),
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}
	srv := s.httpServer
	s.mu.Unlock()

	s.log.Info("starting http status server", "address", addr)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Error("http status server error", "error", err)
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-time.After(100 * time.Millisecond):
		return nil
	}
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.httpServer
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	s.log.Info("stopping http status server")
	return srv.Shutdown(ctx)
}

// ServeBridges returns the current state of every supervised bridge. It is
// exported so it can be exercised directly in tests without binding a real
// listener via Start.
func (s *Server) ServeBridges(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	snap := s.sup.Snapshot()
	out := make([]BridgeInfo, 0, len(snap))
	for _, b := range snap {
		info := BridgeInfo{ID: b.ID, State: b.State.String(), FailureCount: b.FailureCount}
		if b.LastError != nil {
			info.LastError = b.LastError.Error()
		}
		out = append(out, info)
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(out); err != nil {
		s.log.Error("failed to encode bridges response", "error", err)
	}
}

// ServeQueueStatus returns the shared reconnect queue's activity counters.
func (s *Server) ServeQueueStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	stats := s.sup.Stats()
	out := QueueInfo{
		QueueDepth:     stats.QueueDepth,
		TotalEnqueued:  stats.TotalEnqueued,
		TotalExecuted:  stats.TotalExecuted,
		TotalFailed:    stats.TotalFailed,
		TotalCoalesced: stats.TotalCoalesced,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(out)
}

// withCORS adds permissive CORS headers so a browser dashboard can poll
// the status endpoints directly.
func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withLogging logs method/path/status/duration for every request.
func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		s.log.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.statusCode,
			"duration_ms", time.Since(start).Milliseconds(),
			"remote_addr", r.RemoteAddr,
		)
	})
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
