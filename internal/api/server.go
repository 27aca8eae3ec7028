package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/snarg/call-engine/internal/config"
	"github.com/snarg/call-engine/internal/metrics"
	"github.com/snarg/call-engine/internal/queue"
	"github.com/snarg/call-engine/internal/store"
)

// Deps are the server's collaborators. Optional fields may be nil.
type Deps struct {
	Store    store.Store
	Pipeline Pipeline

	// DBCheck pings the backing database; nil for the in-memory store.
	DBCheck func(ctx context.Context) error
	// MQTTConnected reports broker liveness; nil when not configured.
	MQTTConnected func() bool
	QueueStats    func() queue.Stats

	Version   string
	StartTime time.Time
}

type Server struct {
	http *http.Server
	log  zerolog.Logger
}

func NewServer(cfg *config.Config, deps Deps, log zerolog.Logger) *Server {
	r := chi.NewRouter()

	// Global middleware
	r.Use(RequestID)
	r.Use(Recoverer)
	r.Use(Logger(log))
	r.Use(CORS)
	r.Use(metrics.InstrumentHandler)

	// Unauthenticated endpoints
	health := NewHealthHandler(deps.DBCheck, deps.MQTTConnected, deps.QueueStats, deps.Version, deps.StartTime)
	r.Get("/api/v1/health", health.ServeHTTP)
	r.Handle("/metrics", promhttp.Handler())

	// Authenticated routes
	rec := NewRecordingsHandler(deps.Store, deps.Pipeline, log)
	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(cfg.AuthToken))

		r.Route("/api/v1", func(r chi.Router) {
			r.Post("/recordings", rec.Create)
			r.Get("/recordings", rec.List)

			r.Route("/recordings/{id}", func(r chi.Router) {
				r.Get("/", rec.Get)
				r.Post("/process", rec.Process)
				r.Post("/resubmit", rec.Resubmit)

				r.Get("/transcript", rec.GetTranscript)
				r.Patch("/transcript", rec.EditTranscript)

				r.Get("/artifacts", rec.Artifacts)
				r.Get("/summaries", rec.Summaries)
				r.Get("/action-items", rec.ActionItems)
				r.Post("/action-items/{itemID}/confirm", rec.ConfirmActionItem)
				r.Get("/sentiment", rec.Sentiment)
				r.Get("/key-moments", rec.KeyMoments)
				r.Post("/key-moments/{momentID}/confirm", rec.ConfirmKeyMoment)
				r.Get("/call-score", rec.CallScore)
				r.Get("/categories", rec.Categories)
			})

			r.Get("/settings/{ownerID}", rec.GetSettings)
			r.Put("/settings/{ownerID}", rec.PutSettings)
		})
	})

	return &Server{
		http: &http.Server{
			Addr:         cfg.HTTPAddr,
			Handler:      r,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  cfg.IdleTimeout,
		},
		log: log,
	}
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.http.Handler }

func (s *Server) Start() error {
	s.log.Info().Str("addr", s.http.Addr).Msg("http server starting")
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("http server shutting down")
	return s.http.Shutdown(ctx)
}
