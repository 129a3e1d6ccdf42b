// Package server exposes the analyzer over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/maastricht-university/audio-analyzer/metrics"
	"github.com/maastricht-university/audio-analyzer/models"
	"github.com/maastricht-university/audio-analyzer/orchestrator"
	"github.com/maastricht-university/audio-analyzer/search"
	"github.com/maastricht-university/audio-analyzer/storage"
	"github.com/maastricht-university/audio-analyzer/stream"
)

// Index is the document store used by the record endpoints.
type Index interface {
	EnsureIndex(ctx context.Context) error
	Save(ctx context.Context, doc any) (string, error)
	Get(ctx context.Context, id string) (search.Document, error)
	Update(ctx context.Context, id string, fields map[string]any) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, size int) ([]search.Document, error)
	Search(ctx context.Context, q string, size, from int) ([]search.Document, int64, error)
	Stats(ctx context.Context) (search.Stats, error)
	Ping(ctx context.Context) bool
	Info(ctx context.Context) (search.ClusterInfo, error)
}

// Analyzer runs the analysis pipeline on a stored upload.
type Analyzer interface {
	Analyze(ctx context.Context, src, originalName string) (orchestrator.AnalysisRecord, error)
}

type Deps struct {
	Store       *storage.Store
	Streamer    *stream.Streamer
	Analyzer    Analyzer
	Index       Index
	Models      *models.Registry
	Metrics     *metrics.Metrics
	Log         logrus.FieldLogger
	MaxUploadMB int64
}

type Server struct {
	Deps
	engine *gin.Engine
}

func New(d Deps) *Server {
	if d.Log == nil {
		d.Log = logrus.StandardLogger()
	}
	d.Log = d.Log.WithField("component", "http")
	if d.Metrics == nil {
		d.Metrics = metrics.New()
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	s := &Server{Deps: d, engine: r}

	r.Use(gin.Recovery(), s.requestLogger(), cors())
	r.GET("/metrics", gin.WrapH(d.Metrics.Handler()))

	api := r.Group("/api")
	api.GET("/health", s.health)
	api.GET("/es-status", s.esStatus)
	api.POST("/reindex", s.reindex)
	api.GET("/models", s.modelStates)

	api.POST("/analyze", s.analyze)
	api.POST("/save", s.save)
	api.GET("/items", s.listItems)
	api.GET("/items/:id", s.getItem)
	api.PUT("/items/:id", s.updateItem)
	api.DELETE("/items/:id", s.deleteItem)
	api.GET("/search", s.search)
	api.GET("/stats", s.stats)

	api.GET("/audio/:filename", s.audio)
	api.HEAD("/audio/:filename", s.audio)
	r.GET("/uploads/:filename", s.audio)
	return s
}

func (s *Server) Handler() http.Handler { return s.engine }

// Run serves on addr until ctx is cancelled, then drains in-flight requests
// for up to 10 seconds.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.Log.WithField("addr", addr).Info("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	s.Log.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.Log.WithError(err).Warn("graceful shutdown failed")
		if closeErr := srv.Close(); closeErr != nil {
			s.Log.WithError(closeErr).Warn("forced close failed")
		}
		return err
	}
	return nil
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		entry := s.Log.WithFields(logrus.Fields{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
		})
		if c.Writer.Status() >= http.StatusInternalServerError {
			entry.Warn("request")
			return
		}
		entry.Debug("request")
	}
}

// cors allows any origin, method and header.
func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "*")
		h.Set("Access-Control-Allow-Headers", "*")
		h.Set("Access-Control-Expose-Headers", "X-Total-Count, Content-Range, Accept-Ranges, Content-Length")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
