// Package api serves the transcription and health endpoints.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/fmueller/voxserve/internal/audio"
	"github.com/fmueller/voxserve/internal/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type Resources interface {
	ResourceReporter
	ModelResolver
}

type Options struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	UploadDir      string
	ModelDir       string
	Language       string
	KeepUploads    bool
	MaxUploadBytes int64
	CORSOrigins    []string
	Version        string

	Transcriber Transcriber
	Resources   Resources
	Validator   *audio.Validator
	Logger      *zap.Logger
}

type Server struct {
	http *http.Server
	log  *zap.Logger
}

func NewRouter(opts Options) http.Handler {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	validator := opts.Validator
	if validator == nil {
		validator = audio.NewValidator(log)
	}
	maxUpload := opts.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = 100 << 20
	}

	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(Logger(log))
	r.Use(Recoverer(log))
	r.Use(CORS(opts.CORSOrigins))
	r.Use(metrics.InstrumentHandler)

	r.Get("/api/health", NewHealthHandler(opts.Resources, opts.Version).ServeHTTP)
	r.Post("/api/transcribe", (&TranscribeHandler{
		transcriber: opts.Transcriber,
		models:      opts.Resources,
		validator:   validator,
		uploadDir:   opts.UploadDir,
		modelDir:    opts.ModelDir,
		language:    opts.Language,
		keepUploads: opts.KeepUploads,
		maxUpload:   maxUpload,
		log:         log.Named("transcribe"),
		now:         time.Now,
	}).ServeHTTP)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	return r
}

func NewServer(opts Options) *Server {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		http: &http.Server{
			Addr:         opts.Addr,
			Handler:      NewRouter(opts),
			ReadTimeout:  opts.ReadTimeout,
			WriteTimeout: opts.WriteTimeout,
			IdleTimeout:  opts.IdleTimeout,
		},
		log: log,
	}
}

func (s *Server) Start() error {
	s.log.Info("http server starting", zap.String("addr", s.http.Addr))
	err := s.http.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("http server shutting down")
	return s.http.Shutdown(ctx)
}
