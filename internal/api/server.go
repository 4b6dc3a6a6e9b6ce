// Package api exposes the ingestion, scrape-trigger and detection endpoints
// over HTTP. The engine itself lives below this layer; handlers only decode,
// delegate and encode.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/contracheck/contracheck/internal/auth"
	"github.com/contracheck/contracheck/internal/detector"
	"github.com/contracheck/contracheck/internal/ingest"
	"github.com/contracheck/contracheck/internal/scrape"
	"github.com/contracheck/contracheck/internal/storage"
	"github.com/contracheck/contracheck/internal/transcribe"
)

// Server wires the HTTP boundary to the engine.
type Server struct {
	router      *chi.Mux
	log         zerolog.Logger
	authService *auth.Service
	ingester    *ingest.Service
	detector    *detector.Detector
	scraper     *scrape.Runner
	transcriber transcribe.Transcriber
	sources     storage.SourceRepository
	segments    storage.SegmentRepository
}

// Config holds the server dependencies.
type Config struct {
	Log         zerolog.Logger
	AuthService *auth.Service
	Ingester    *ingest.Service
	Detector    *detector.Detector
	Scraper     *scrape.Runner
	Transcriber transcribe.Transcriber
	Sources     storage.SourceRepository
	Segments    storage.SegmentRepository
}

// NewServer creates the router and registers all routes.
func NewServer(cfg Config) *Server {
	s := &Server{
		log:         cfg.Log,
		authService: cfg.AuthService,
		ingester:    cfg.Ingester,
		detector:    cfg.Detector,
		scraper:     cfg.Scraper,
		transcriber: cfg.Transcriber,
		sources:     cfg.Sources,
		segments:    cfg.Segments,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:*", "https://*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	s.router = r
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/register", s.handleRegister)
		r.Post("/auth/login", s.handleLogin)

		r.Group(func(r chi.Router) {
			r.Use(s.authService.Middleware)

			r.Post("/ingest/captions", s.handleIngestCaptions)
			r.Post("/ingest/text", s.handleIngestText)
			r.Post("/ingest/audio", s.handleIngestAudio)

			r.Post("/detect", s.handleDetect)

			r.Get("/sources", s.handleListSources)
			r.Get("/sources/{sourceID}/segments", s.handleListSegments)

			r.Get("/scrape/providers", s.handleListProviders)
			r.Post("/scrape/{provider}", s.handleScrape)

			r.Post("/corpus/reset", s.handleCorpusReset)
		})
	})
}

// Run starts the HTTP server.
func (s *Server) Run(addr string) error {
	return http.ListenAndServe(addr, s.router)
}

// Handler exposes the router, used by httptest in tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// requestLogger emits one structured log line per request.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("request")
	})
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
