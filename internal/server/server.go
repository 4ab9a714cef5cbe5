// Package server exposes the attack-tree builder over HTTP: static
// front-end assets, the collaboration WebSocket endpoint, the example
// tree, and document validation.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/riskforge/attree/internal/codec"
	"github.com/riskforge/attree/internal/config"
	"github.com/riskforge/attree/internal/session"
	"github.com/riskforge/attree/internal/tree"
)

// Server hosts the collaboration hub and the HTTP surface around it.
type Server struct {
	cfg        *config.Config
	hub        *Hub
	sessions   *session.Manager
	router     chi.Router
	httpServer *http.Server
}

// New creates a server from the given configuration.
func New(cfg *config.Config) *Server {
	s := &Server{cfg: cfg, hub: newHub()}
	s.sessions = session.NewManager(s.hub)
	s.router = s.buildRouter()
	return s
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	corsOpts := cors.Options{
		AllowedOrigins: []string{"http://localhost:*", "http://127.0.0.1:*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}
	if s.cfg.AllowAllOrigins {
		corsOpts.AllowedOrigins = []string{"*"}
	}
	r.Use(cors.Handler(corsOpts))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	r.Get("/ws", s.handleWebSocket)
	r.Get("/example_tree", s.handleExampleTree)

	// Bounded request handlers get a timeout; the WebSocket endpoint must
	// stay outside it, connections there live as long as the session.
	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(15 * time.Second))
		r.Post("/api/tree/validate", s.handleValidate)
	})

	s.registerPages(r)

	// Front-end assets, like the original express.static root.
	if st, err := os.Stat(s.cfg.StaticDir); err == nil && st.IsDir() {
		fs := http.FileServer(http.Dir(s.cfg.StaticDir))
		r.Handle("/*", fs)
	} else {
		log.Printf("server: static dir %q not found, skipping asset serving", s.cfg.StaticDir)
	}

	return r
}

// Router returns the chi router, mainly for tests.
func (s *Server) Router() chi.Router { return s.router }

// handleExampleTree serves the canned demo document.
func (s *Server) handleExampleTree(w http.ResponseWriter, r *http.Request) {
	data, err := codec.Marshal(codec.Export(tree.Example()))
	if err != nil {
		http.Error(w, `{"error":"building example tree"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

// handleValidate runs an uploaded document through the codec and reports
// whether it would import cleanly.
func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, s.cfg.MaxSnapshotBytes))
	if err != nil {
		http.Error(w, `{"error":"reading body"}`, http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if _, err := codec.Decode(raw); err != nil {
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(map[string]string{"valid": "false", "error": err.Error()})
		return
	}
	json.NewEncoder(w).Encode(map[string]string{"valid": "true"})
}

// Start begins listening on the configured port.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.cfg.Port)
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf("attree server listening on %s", addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}
