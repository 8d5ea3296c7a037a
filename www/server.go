// Package www exposes the transcription engine over HTTP: OpenAI-style
// REST endpoints plus the realtime websocket.
package www

import (
	"context"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"

	"github.com/perchd/perch/db"
	"github.com/perchd/perch/rt"
	"github.com/perchd/perch/stt"
)

// Store persists finished sessions. A nil Store disables persistence.
type Store interface {
	SaveSession(ctx context.Context, rec db.SessionRecord) error
}

type Config struct {
	// Engine may be nil, in which case every transcription request is
	// answered with a model-not-loaded error.
	Engine stt.Engine

	// Window configures the streaming decoder context. Zero means the
	// engine default.
	Window stt.StreamConfig

	Store  Store
	Logger *log.Logger

	// IdleTimeout drops realtime sessions that send nothing for this
	// long. Zero disables the timeout.
	IdleTimeout time.Duration
}

type Server struct {
	engine      stt.Engine
	store       Store
	logger      *log.Logger
	idleTimeout time.Duration
	handler     *rt.Handler
	upgrader    websocket.Upgrader
}

func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}

	return &Server{
		engine:      cfg.Engine,
		store:       cfg.Store,
		logger:      logger,
		idleTimeout: cfg.IdleTimeout,
		handler:     rt.NewHandler(cfg.Engine, cfg.Window, logger),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Origin policy belongs to the gateway in front of us.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: false,
	}))

	r.Get("/", s.handleRoot)
	r.Get("/health", s.handleHealth)
	r.Get("/v1/models", s.handleModels)
	r.Post("/v1/audio/transcriptions", s.handleTranscribe)
	r.Get("/v1/realtime", s.handleRealtime)

	return r
}

// Serve runs the HTTP server until ctx is canceled, then drains open
// connections.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:    addr,
		Handler: s.Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	s.logger.Info("listening", "addr", addr)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(
			context.Background(),
			10*time.Second,
		)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return srv.Close()
		}
		return nil
	}
}
