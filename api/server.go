package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	feedscan "github.com/zombar/feedscan"
	"github.com/zombar/feedscan/models"
	"github.com/zombar/feedscan/storage"
)

// MatchStore is the read/clear surface of the match list the API needs
type MatchStore interface {
	List(ctx context.Context) ([]models.MatchRecord, error)
	Clear(ctx context.Context) error
}

// Server represents the API server
type Server struct {
	scanner     *feedscan.Scanner
	store       MatchStore
	thumbs      *storage.Storage
	uploader    *storage.S3Storage
	addr        string
	server      *http.Server
	mux         *http.ServeMux
	corsEnabled bool
}

// Config contains server configuration
type Config struct {
	Addr        string
	CORSEnabled bool
}

// DefaultConfig returns default server configuration
func DefaultConfig() Config {
	return Config{
		Addr:        ":8080",
		CORSEnabled: true,
	}
}

// NewServer creates a new API server. thumbs and uploader are optional;
// routes that need them report failure when they are absent.
func NewServer(config Config, scanner *feedscan.Scanner, store MatchStore, thumbs *storage.Storage, uploader *storage.S3Storage) *Server {
	s := &Server{
		scanner:     scanner,
		store:       store,
		thumbs:      thumbs,
		uploader:    uploader,
		addr:        config.Addr,
		mux:         http.NewServeMux(),
		corsEnabled: config.CORSEnabled,
	}

	// Register routes
	s.registerRoutes()

	// Create HTTP server
	s.server = &http.Server{
		Addr:         config.Addr,
		Handler:      s.middleware(s.mux),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s
}

// registerRoutes sets up all API routes
func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.Handle("/metrics", promhttp.Handler())
	s.mux.HandleFunc("/api/control", s.handleControl)
	s.mux.HandleFunc("/api/export", s.handleExport)
	s.mux.HandleFunc("/api/thumbs/", s.handleThumb) // Handles /api/thumbs/{path}
}

// Start starts the API server
func (s *Server) Start() error {
	log.Printf("Starting API server on %s", s.addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	log.Println("Shutting down API server...")
	return s.server.Shutdown(ctx)
}

// Handler returns the full handler chain, for tests
func (s *Server) Handler() http.Handler {
	return s.middleware(s.mux)
}

// middleware applies common middleware to all routes
func (s *Server) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// CORS headers
		if s.corsEnabled {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}
		}

		// Logging (skip health checks to reduce noise)
		start := time.Now()
		if r.URL.Path != "/health" && r.URL.Path != "/metrics" {
			log.Printf("%s %s", r.Method, r.URL.Path)
		}

		next.ServeHTTP(w, r)

		if r.URL.Path != "/health" && r.URL.Path != "/metrics" {
			log.Printf("%s %s - completed in %v", r.Method, r.URL.Path, time.Since(start))
		}
	})
}

// handleHealth returns server health status
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	matches, err := s.store.List(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to read match list")
		return
	}

	status := s.scanner.Status()
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":          "healthy",
		"scanning":        status.Scanning,
		"classifierReady": status.ClassifierReady,
		"matches":         len(matches),
		"time":            time.Now(),
	})
}

// handleControl dispatches typed control messages to the scanner and store.
// A single endpoint keeps the surface identical for every client action.
func (s *Server) handleControl(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req models.ControlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	switch req.Type {
	case models.MsgStartScan:
		resp := s.scanner.Start(r.Context())
		status := http.StatusOK
		if !resp.OK {
			status = http.StatusBadGateway
		}
		respondJSON(w, status, resp)

	case models.MsgStopScan:
		respondJSON(w, http.StatusOK, s.scanner.Stop())

	case models.MsgGetStatus:
		respondJSON(w, http.StatusOK, s.scanner.Status())

	case models.MsgClearList:
		if err := s.store.Clear(r.Context()); err != nil {
			log.Printf("Failed to clear match list: %v", err)
			respondJSON(w, http.StatusInternalServerError, models.ClearResponse{
				OK:    false,
				Error: "failed to clear match list",
			})
			return
		}
		respondJSON(w, http.StatusOK, models.ClearResponse{OK: true})

	case models.MsgGetMatches:
		matches, err := s.store.List(r.Context())
		if err != nil {
			log.Printf("Failed to list matches: %v", err)
			respondJSON(w, http.StatusInternalServerError, models.MatchesResponse{
				OK:    false,
				Error: "failed to read match list",
			})
			return
		}
		respondJSON(w, http.StatusOK, models.MatchesResponse{OK: true, Matches: matches})

	default:
		respondError(w, http.StatusBadRequest, fmt.Sprintf("unknown message type: %q", req.Type))
	}
}

// handleExport returns the match list as a downloadable JSON document and,
// when storage backends are configured, persists a copy of the snapshot.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	matches, err := s.store.List(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to read match list")
		return
	}

	data, err := json.MarshalIndent(matches, "", "  ")
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to encode match list")
		return
	}

	name := "matches-" + time.Now().UTC().Format("20060102-150405")

	if s.thumbs != nil {
		if _, err := s.thumbs.WriteExport(data, name); err != nil {
			log.Printf("Failed to persist export: %v", err)
		}
	}
	if s.uploader != nil {
		if _, err := s.uploader.UploadExport(r.Context(), data, name); err != nil {
			log.Printf("Failed to upload export: %v", err)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s.json", name))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// handleThumb serves stored match thumbnails
func (s *Server) handleThumb(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	if s.thumbs == nil {
		respondError(w, http.StatusNotFound, "thumbnail storage not configured")
		return
	}

	relPath := strings.TrimPrefix(r.URL.Path, "/api/thumbs/")
	if relPath == "" || strings.Contains(relPath, "..") {
		respondError(w, http.StatusBadRequest, "invalid thumbnail path")
		return
	}

	data, err := s.thumbs.ReadFrame(relPath)
	if err != nil {
		respondError(w, http.StatusNotFound, "thumbnail not found")
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError sends an error response
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}
