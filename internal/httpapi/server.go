package httpapi

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gokaycavdar/go-nightguard/internal/pipeline"
	"github.com/gokaycavdar/go-nightguard/pkg/baseline"
	"github.com/gokaycavdar/go-nightguard/pkg/engine"
	"github.com/gokaycavdar/go-nightguard/pkg/models"
	"github.com/gokaycavdar/go-nightguard/pkg/normalize"
	"github.com/gokaycavdar/go-nightguard/pkg/storage"
	"github.com/gokaycavdar/go-nightguard/pkg/window"
)

// ClassifyRequest is the body of POST /api/v1/classify.
type ClassifyRequest struct {
	TargetDate   string            `json:"target_date"`
	Organization string            `json:"organization"`
	Network      string            `json:"network"`
	Events       []models.RawEvent `json:"events" binding:"required"`
}

// IngestRequest is the body of POST /api/v1/events.
type IngestRequest struct {
	Organization string            `json:"organization"`
	Network      string            `json:"network"`
	Events       []models.RawEvent `json:"events" binding:"required"`
}

// Server serves classification over HTTP.
type Server struct {
	inv      *pipeline.Investigation
	store    storage.ConnectionStore
	gatherer prometheus.Gatherer
	logger   *slog.Logger
}

// NewServer creates the HTTP surface. store backs ingestion and
// archive-based analysis; gatherer backs /metrics.
func NewServer(inv *pipeline.Investigation, store storage.ConnectionStore, gatherer prometheus.Gatherer, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{inv: inv, store: store, gatherer: gatherer, logger: logger}
}

// Router builds the gin engine with every route registered.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())

	r.GET("/healthz", s.handleHealth)
	if s.gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	}

	v1 := r.Group("/api/v1")
	v1.POST("/classify", s.handleClassify)
	v1.POST("/events", s.handleIngest)
	v1.GET("/analysis", s.handleAnalysis)
	return r
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Info("http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"elapsed", time.Since(start),
		)
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handleClassify classifies the posted events as one investigation.
func (s *Server) handleClassify(c *gin.Context) {
	var req ClassifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var date time.Time
	if req.TargetDate != "" {
		d, err := window.ParseDate(req.TargetDate)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "target_date must be YYYY-MM-DD"})
			return
		}
		date = d
	}

	inv := *s.inv
	inv.Organization = req.Organization
	inv.Network = req.Network

	report := inv.AnalyzeRaw(engine.NewRun(date, s.logger), req.Events)
	c.JSON(http.StatusOK, report.Analysis)
}

// handleIngest normalizes the posted events and archives them.
func (s *Server) handleIngest(c *gin.Context) {
	var req IngestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	n := normalize.New(req.Organization, req.Network)
	n.Add(req.Events...)

	stored, err := s.store.Save(c.Request.Context(), n.Events())
	if err != nil {
		if errors.Is(err, storage.ErrInvalidEvent) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		s.logger.Error("archive write failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "archive unavailable"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"received":   len(req.Events),
		"accepted":   n.Len(),
		"duplicates": n.Duplicates(),
		"dropped":    n.Dropped(),
		"stored":     stored,
	})
}

// handleAnalysis investigates a night from the archive.
func (s *Server) handleAnalysis(c *gin.Context) {
	raw := c.Query("date")
	if raw == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "date query parameter is required"})
		return
	}
	date, err := window.ParseDate(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
		return
	}

	inv := *s.inv
	inv.Archive = nil // reading from the archive, not writing back
	report, err := inv.Investigate(c.Request.Context(), engine.NewRun(date, s.logger), storage.NewSource(s.store))
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, baseline.ErrSourceUnavailable) {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"analysis":        report.Analysis,
		"connections":     len(report.Connections),
		"baseline_failed": len(report.Baseline.Failures),
	})
}
