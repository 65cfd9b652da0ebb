package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"videodocs/config"
	"videodocs/docindex"
	"videodocs/pipeline"
	"videodocs/session"
)

// Server wires the HTTP surface over the orchestrator and session
// manager. All state lives in the injected collaborators.
type Server struct {
	cfg      *config.Config
	manager  *session.Manager
	orch     *pipeline.Orchestrator
	store    session.Store
	index    docindex.Index
	router   *mux.Router
	verifier func() bool
}

func New(cfg *config.Config, manager *session.Manager, orch *pipeline.Orchestrator, store session.Store, index docindex.Index) *Server {
	s := &Server{
		cfg:     cfg,
		manager: manager,
		orch:    orch,
		store:   store,
		index:   index,
		router:  mux.NewRouter(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	api.HandleFunc("/modes", s.handleModes).Methods(http.MethodGet)
	api.HandleFunc("/sessions", s.handleUpload).Methods(http.MethodPost)
	api.HandleFunc("/sessions/active", s.handleActive).Methods(http.MethodGet)
	api.HandleFunc("/sessions/history", s.handleHistory).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{id}", s.handleStatus).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{id}/result", s.handleResult).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{id}/cancel", s.handleCancel).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}/search", s.handleSearch).Methods(http.MethodPost)
}

// Handler returns the router wrapped with CORS for browser clients.
func (s *Server) Handler() http.Handler {
	return cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
	}).Handler(s.router)
}

// ListenAndServe blocks serving HTTP until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("server: listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
