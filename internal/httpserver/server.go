// Package httpserver exposes health, metrics, and the tracker query API.
package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/discuit-community/alt-text-bot/internal/config"
	"github.com/discuit-community/alt-text-bot/internal/tracker"
)

// MetricsSource reports watch-loop counters as a JSON string.
type MetricsSource interface {
	GetMetrics() string
}

// RoundupRunner triggers a roundup run on demand.
type RoundupRunner interface {
	RunRoundup(ctx context.Context) error
}

// Server serves the read-only query API plus the operational endpoints.
type Server struct {
	cfg        *config.Config
	store      *tracker.Store
	metrics    MetricsSource
	roundups   RoundupRunner
	httpServer *http.Server
}

// NewServer creates the HTTP server and wires up its routes.
func NewServer(cfg *config.Config, store *tracker.Store, metrics MetricsSource, roundups RoundupRunner) *Server {
	s := &Server{
		cfg:      cfg,
		store:    store,
		metrics:  metrics,
		roundups: roundups,
	}

	router := mux.NewRouter()
	router.HandleFunc("/health", s.handleHealth).Methods("GET")
	router.HandleFunc("/metrics", s.handleMetrics).Methods("GET")
	router.HandleFunc("/trigger", s.handleTrigger).Methods("POST")
	router.HandleFunc("/api/stats", s.handleStats).Methods("GET")
	router.HandleFunc("/api/posts", s.handlePosts).Methods("GET")
	router.HandleFunc("/api/posts/user/{username}", s.handlePostsByUser).Methods("GET")
	router.HandleFunc("/api/posts/community/{community}", s.handlePostsByCommunity).Methods("GET")

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Start begins listening for HTTP requests. It blocks until the server is
// shut down or an error occurs.
func (s *Server) Start() error {
	logrus.Infof("HTTP server starting on port %s", s.cfg.Port)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Router returns the underlying handler, for tests.
func (s *Server) Router() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "database unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(s.metrics.GetMetrics()))
}

func (s *Server) handleTrigger(w http.ResponseWriter, _ *http.Request) {
	go func() {
		if err := s.roundups.RunRoundup(context.Background()); err != nil {
			logrus.Errorf("Manual roundup trigger failed: %v", err)
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{"message": "Roundup triggered"})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.GetAggregateStats(r.Context())
	if err != nil {
		logrus.Errorf("Failed to load aggregate stats: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to load stats")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handlePosts(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := pagination(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	posts, err := s.store.GetAllPosts(r.Context(), limit, offset)
	if err != nil {
		logrus.Errorf("Failed to list posts: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to list posts")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"posts": posts})
}

func (s *Server) handlePostsByUser(w http.ResponseWriter, r *http.Request) {
	limit, _, err := pagination(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	username := mux.Vars(r)["username"]
	posts, err := s.store.GetPostsByUser(r.Context(), username, limit)
	if err != nil {
		logrus.Errorf("Failed to list posts for user %s: %v", username, err)
		writeError(w, http.StatusInternalServerError, "failed to list posts")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"username": username, "posts": posts})
}

func (s *Server) handlePostsByCommunity(w http.ResponseWriter, r *http.Request) {
	limit, _, err := pagination(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	community := mux.Vars(r)["community"]
	posts, err := s.store.GetPostsByCommunity(r.Context(), community, limit)
	if err != nil {
		logrus.Errorf("Failed to list posts for community %s: %v", community, err)
		writeError(w, http.StatusInternalServerError, "failed to list posts")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"community": community, "posts": posts})
}

func pagination(r *http.Request) (limit, offset int, err error) {
	limit = 50
	if l := r.URL.Query().Get("limit"); l != "" {
		parsed, perr := strconv.Atoi(l)
		if perr != nil || parsed < 1 || parsed > 500 {
			return 0, 0, fmt.Errorf("limit must be between 1 and 500")
		}
		limit = parsed
	}

	if o := r.URL.Query().Get("offset"); o != "" {
		parsed, perr := strconv.Atoi(o)
		if perr != nil || parsed < 0 {
			return 0, 0, fmt.Errorf("offset must be non-negative")
		}
		offset = parsed
	}

	return limit, offset, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
