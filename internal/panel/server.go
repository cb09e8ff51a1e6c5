// Package panel serves the chat panel surface: the command endpoint, a WebSocket
// carrying commands and store events, status and metrics.
package panel

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"chatmark/internal/bus"
	"chatmark/internal/command"
	"chatmark/internal/domain"
	"chatmark/internal/metrics"
)

const (
	maxBodySize    = 4 << 20
	requestTimeout = 30 * time.Second
)

// Config configures the panel server.
type Config struct {
	Host   string
	Port   int
	WSPath string // default /ws

	// Per-client WebSocket request rate. Zero disables limiting.
	RateLimit float64
	Burst     int

	Client *command.Client
	Events *bus.EventBus
	// MetricsPath, when set, serves the metrics registry there.
	MetricsPath string
	Logger      *slog.Logger
}

// Server is the panel HTTP server.
type Server struct {
	host        string
	port        int
	wsPath      string
	rateLimit   float64
	burst       int
	client      *command.Client
	events      *bus.EventBus
	metricsPath string
	logger      *slog.Logger
	started     time.Time
	eventsSub   string

	mu      sync.RWMutex
	clients map[string]*wsClient
}

func New(cfg Config) *Server {
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 8765
	}
	if cfg.WSPath == "" {
		cfg.WSPath = "/ws"
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	s := &Server{
		host:        cfg.Host,
		port:        cfg.Port,
		wsPath:      cfg.WSPath,
		rateLimit:   cfg.RateLimit,
		burst:       cfg.Burst,
		client:      cfg.Client,
		events:      cfg.Events,
		metricsPath: cfg.MetricsPath,
		logger:      cfg.Logger,
		started:     time.Now(),
		clients:     make(map[string]*wsClient),
	}
	if s.events != nil {
		s.eventsSub = s.events.On("*", s.broadcast)
	}
	return s
}

// Close stops forwarding events and disconnects every panel client.
func (s *Server) Close() {
	if s.events != nil && s.eventsSub != "" {
		s.events.Off("*", s.eventsSub)
		s.eventsSub = ""
	}
	s.closeAllClients()
}

// Handler returns the routes of the panel.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("POST /api/command", s.handleCommand)
	mux.HandleFunc("GET /api/chats", s.handleChats)
	mux.HandleFunc("GET /api/bookmarks", s.handleBookmarks)
	mux.HandleFunc("GET "+s.wsPath, s.handleUpgrade)
	if s.metricsPath != "" {
		mux.HandleFunc("GET "+s.metricsPath, metrics.Collector.Handler())
	}
	return mux
}

// Start serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.host, s.port)
	server := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info("panel started", "addr", "http://"+addr, "ws", s.wsPath)

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	clients := len(s.clients)
	s.mu.RUnlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"uptime":  time.Since(s.started).Round(time.Second).String(),
		"clients": clients,
	})
}

// handleCommand executes one Request. Command failures are still 200 with
// success=false; only transport problems change the status code.
func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	var req domain.Request
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, domain.Failure("invalid request: %v", err))
		return
	}
	resp, err := s.send(r.Context(), req)
	if err != nil {
		s.logger.Error("command failed", "action", req.Action, "err", err)
		writeJSON(w, http.StatusServiceUnavailable, domain.Failure("%v", err))
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleChats lists stored chats filtered by ?search=, newest first.
func (s *Server) handleChats(w http.ResponseWriter, r *http.Request) {
	resp, err := s.send(r.Context(), domain.Request{Action: domain.ActionGetAllChats})
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, domain.Failure("%v", err))
		return
	}
	if !resp.Success {
		writeJSON(w, http.StatusInternalServerError, resp)
		return
	}

	type chatEntry struct {
		ID string `json:"id"`
		domain.Chat
	}
	chats := command.FilterChats(resp.Chats, r.URL.Query().Get("search"))
	out := make([]chatEntry, len(chats))
	for i, c := range chats {
		out[i] = chatEntry{ID: c.ID, Chat: c}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleBookmarks(w http.ResponseWriter, r *http.Request) {
	resp, err := s.send(r.Context(), domain.Request{Action: domain.ActionGetBookmarks})
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, domain.Failure("%v", err))
		return
	}
	if !resp.Success {
		writeJSON(w, http.StatusInternalServerError, resp)
		return
	}
	writeJSON(w, http.StatusOK, command.FilterBookmarks(resp.Bookmarks, r.URL.Query().Get("search")))
}

func (s *Server) send(ctx context.Context, req domain.Request) (domain.Response, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	return s.client.Send(ctx, req)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
