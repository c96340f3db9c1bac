package web

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/manash/imgstudio/internal/journal"
	"github.com/manash/imgstudio/internal/presets"
	"github.com/manash/imgstudio/internal/security"
	"github.com/manash/imgstudio/internal/session"
	"github.com/manash/imgstudio/pkg/models"
)

const (
	// DefaultMaxUploadBytes caps the multipart upload body.
	DefaultMaxUploadBytes = 20 << 20

	shutdownTimeout = 30 * time.Second
)

// Journal is the read side of the generation journal.
type Journal interface {
	ListGenerations(ctx context.Context, sessionID string) ([]*journal.Generation, error)
	GetTotalCost(ctx context.Context) (*journal.CostSummary, error)
	GetCostByProvider(ctx context.Context) ([]journal.ProviderCostSummary, error)
	GetSessionCost(ctx context.Context, sessionID string) (*journal.CostSummary, error)
}

type Config struct {
	Controller *session.Controller
	Catalog    *presets.Catalog
	// Journal is optional; without it the journal routes return empty data.
	Journal        Journal
	ExportPrefix   string
	ExportFormat   models.OutputFormat
	ExportScale    float64
	MaxUploadBytes int64
}

// Server exposes a controller over HTTP.
type Server struct {
	controller *session.Controller
	catalog    *presets.Catalog
	journal    Journal
	prefix     string
	format     models.OutputFormat
	scale      float64
	maxUpload  int64
	router     *gin.Engine
}

func New(cfg Config) *Server {
	s := &Server{
		controller: cfg.Controller,
		catalog:    cfg.Catalog,
		journal:    cfg.Journal,
		format:     cfg.ExportFormat,
		scale:      cfg.ExportScale,
		maxUpload:  cfg.MaxUploadBytes,
	}
	if cfg.ExportPrefix != "" {
		s.prefix = security.SanitizeFilename(cfg.ExportPrefix)
	}
	if s.catalog == nil {
		s.catalog = presets.Default()
	}
	if !s.format.IsValid() {
		s.format = models.FormatPNG
	}
	if !models.IsValidScale(s.scale) {
		s.scale = 1.0
	}
	if s.maxUpload <= 0 {
		s.maxUpload = DefaultMaxUploadBytes
	}

	router := gin.New()
	router.Use(Logger())
	router.Use(gin.CustomRecovery(HandlePanics()))
	s.routes(router)
	s.router = router
	return s
}

func (s *Server) routes(router *gin.Engine) {
	router.GET("/healthz", s.health)

	api := router.Group("/api")
	{
		api.GET("/presets", s.listPresets)
		api.GET("/generations", s.listGenerations)
		api.GET("/costs", s.costs)
	}

	sess := api.Group("/session")
	{
		sess.GET("", s.snapshot)
		sess.POST("/upload", s.upload)
		sess.POST("/generate", s.generate)
		sess.POST("/undo", s.undo)
		sess.POST("/redo", s.redo)
		sess.POST("/reset", s.reset)
		sess.POST("/dismiss", s.dismiss)
		sess.GET("/image/current", s.currentImage)
		sess.GET("/image/original", s.originalImage)
		sess.GET("/image/history/:index", s.historyImage)
		sess.GET("/export", s.export)
	}
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("starting server")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	log.Info().Msg("server stopped")
	return nil
}
