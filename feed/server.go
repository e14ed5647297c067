// Package feed serves a session's reconstructed history to renderers.
//
// JSON endpoints expose point reads over the ingestion state. The /ws
// endpoint pushes the same frames as the ipc stream, encoded as JSON text
// messages, while the session is still collecting.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/justapithecus/tankreplay/log"
	"github.com/justapithecus/tankreplay/metrics"
	"github.com/justapithecus/tankreplay/store"
	"github.com/justapithecus/tankreplay/types"
)

// DefaultAddr is the listen address used when none is configured.
const DefaultAddr = "127.0.0.1:8089"

const (
	writeTimeout    = 5 * time.Second
	shutdownTimeout = 5 * time.Second
)

// Config configures a feed server.
type Config struct {
	// Addr is the listen address. Defaults to DefaultAddr.
	Addr string
	// AllowRemote accepts non-loopback clients.
	AllowRemote bool
}

// Server serves one session.
type Server struct {
	state     *store.State
	meta      types.SessionMeta
	collector *metrics.Collector
	logger    *log.Logger
	config    Config

	upgrader websocket.Upgrader
	clients  atomic.Int64
}

// NewServer creates a feed server over state. collector may be nil, in
// which case /metrics reports only process metrics.
func NewServer(state *store.State, meta types.SessionMeta, collector *metrics.Collector, logger *log.Logger, config Config) *Server {
	if config.Addr == "" {
		config.Addr = DefaultAddr
	}
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Server{
		state:     state,
		meta:      meta,
		collector: collector,
		logger:    logger,
		config:    config,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Clients returns the number of connected websocket clients.
func (s *Server) Clients() int64 {
	return s.clients.Load()
}

// Handler returns the feed routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /api/timesteps/{index}", s.handleTimestep)
	mux.HandleFunc("GET /api/timesteps/latest", s.handleLatest)
	mux.HandleFunc("GET /api/map", s.handleMap)
	mux.HandleFunc("GET /api/roster", s.handleRoster)
	mux.HandleFunc("GET /api/lifecycle", s.handleLifecycles)
	mux.HandleFunc("GET /api/lifecycle/{id}", s.handleLifecycle)
	mux.HandleFunc("GET /ws", s.handleWS)
	mux.Handle("GET /metrics", promhttp.HandlerFor(metrics.NewRegistry(s.collector), promhttp.HandlerOpts{}))
	return s.guard(mux)
}

// ListenAndServe serves until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	s.logger.Info("feed listening", map[string]any{
		"addr":         ln.Addr().String(),
		"allow_remote": s.config.AllowRemote,
	})

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}

func (s *Server) guard(next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		if !s.config.AllowRemote && !isLoopbackRemote(r.RemoteAddr) {
			writeError(rw, http.StatusForbidden, "forbidden")
			return
		}
		next.ServeHTTP(rw, r)
	})
}

// StatusResponse is the body of /api/status.
type StatusResponse struct {
	SessionID string         `json:"session_id"`
	Source    string         `json:"source"`
	Progress  types.Progress `json:"progress"`
	Objects   int            `json:"objects"`
	Outcome   *types.Outcome `json:"outcome,omitempty"`
	Clients   int64          `json:"clients"`
}

func (s *Server) handleStatus(rw http.ResponseWriter, _ *http.Request) {
	resp := StatusResponse{
		SessionID: s.meta.SessionID,
		Source:    s.meta.Source,
		Progress:  s.state.Progress(),
		Clients:   s.clients.Load(),
	}
	if ts, ok := s.state.Latest(); ok {
		resp.Objects = len(ts.Objects)
	}
	if o, ok := s.state.Outcome(); ok {
		resp.Outcome = &o
	}
	writeJSON(rw, http.StatusOK, resp)
}

func (s *Server) handleTimestep(rw http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil || index < 0 {
		writeError(rw, http.StatusBadRequest, "index must be a non-negative integer")
		return
	}
	ts, ok := s.state.Timestep(index)
	if !ok {
		writeError(rw, http.StatusNotFound, "timestep not available")
		return
	}
	writeJSON(rw, http.StatusOK, ts)
}

func (s *Server) handleLatest(rw http.ResponseWriter, _ *http.Request) {
	ts, ok := s.state.Latest()
	if !ok {
		writeError(rw, http.StatusNotFound, "no timesteps yet")
		return
	}
	writeJSON(rw, http.StatusOK, ts)
}

func (s *Server) handleMap(rw http.ResponseWriter, _ *http.Request) {
	m, ok := s.state.Map()
	if !ok {
		writeError(rw, http.StatusNotFound, "map not received")
		return
	}
	writeJSON(rw, http.StatusOK, m)
}

func (s *Server) handleRoster(rw http.ResponseWriter, _ *http.Request) {
	r, ok := s.state.Roster()
	if !ok {
		writeError(rw, http.StatusNotFound, "roster not received")
		return
	}
	writeJSON(rw, http.StatusOK, r)
}

func (s *Server) handleLifecycles(rw http.ResponseWriter, _ *http.Request) {
	writeJSON(rw, http.StatusOK, s.state.Lifecycles())
}

func (s *Server) handleLifecycle(rw http.ResponseWriter, r *http.Request) {
	lc, ok := s.state.Lifecycle(r.PathValue("id"))
	if !ok {
		writeError(rw, http.StatusNotFound, "unknown object")
		return
	}
	writeJSON(rw, http.StatusOK, lc)
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(v)
}

func writeError(rw http.ResponseWriter, status int, msg string) {
	writeJSON(rw, status, errorResponse{Error: msg})
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
