// Package web serves the stored reports and the analytics operations over HTTP
// for the dashboard frontend, plus health and Prometheus endpoints.
package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rewired-gh/oeewatch/internal/analytics"
	"github.com/rewired-gh/oeewatch/internal/logger"
	"github.com/rewired-gh/oeewatch/internal/models"
)

// ReportStore is the read side of the report storage.
type ReportStore interface {
	LatestParetoReport(scope string) (*models.ParetoReport, error)
	LatestDowntimeReport(scope string) (*models.DowntimeReport, error)
	ListScopes(kind models.ReportKind) ([]string, error)
}

// Server is the dashboard HTTP API
type Server struct {
	router      *gin.Engine
	addr        string
	store       ReportStore
	defaultTopN int
}

// NewServer creates the server and registers all routes. gatherer backs /metrics.
func NewServer(addr string, store ReportStore, gatherer prometheus.Gatherer, defaultTopN int) *Server {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	// Allow the dashboard frontend from any origin
	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept, Origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})

	router.NoRoute(func(c *gin.Context) {
		NotFound(c, fmt.Sprintf("no route for %s %s", c.Request.Method, c.Request.URL.Path))
	})

	s := &Server{
		router:      router,
		addr:        addr,
		store:       store,
		defaultTopN: defaultTopN,
	}

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	api := router.Group("/api")
	api.GET("/reports/pareto/*scope", s.getParetoReport)
	api.GET("/reports/downtime/*scope", s.getDowntimeReport)
	api.GET("/scopes/:kind", s.listScopes)
	api.POST("/normalize", s.normalize)
	api.POST("/pareto", s.pareto)

	return s
}

// Handler returns the HTTP handler of the server
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Web server listening on %s", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("web server failed: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("web server shutdown failed: %w", err)
		}
		return nil
	}
}

func (s *Server) getParetoReport(c *gin.Context) {
	scope, ok := scopeParam(c)
	if !ok {
		return
	}
	report, err := s.store.LatestParetoReport(scope)
	if err != nil {
		RespondWithDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *Server) getDowntimeReport(c *gin.Context) {
	scope, ok := scopeParam(c)
	if !ok {
		return
	}
	report, err := s.store.LatestDowntimeReport(scope)
	if err != nil {
		RespondWithDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *Server) listScopes(c *gin.Context) {
	kind, err := models.ParseReportKind(c.Param("kind"))
	if err != nil {
		BadRequest(c, err.Error())
		return
	}
	scopes, err := s.store.ListScopes(kind)
	if err != nil {
		RespondWithDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, scopes)
}

type normalizeRequest struct {
	Values []float64 `json:"values" binding:"required"`
}

type normalizeResponse struct {
	Percents []int `json:"percents"`
}

func (s *Server) normalize(c *gin.Context) {
	var req normalizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	percents, err := analytics.Normalize(req.Values)
	if err != nil {
		RespondWithDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, normalizeResponse{Percents: percents})
}

type paretoRequest struct {
	Items  []models.RankedItem `json:"items" binding:"required"`
	TopN   *int                `json:"top_n"`
	Metric string              `json:"metric"`
}

func (s *Server) pareto(c *gin.Context) {
	var req paretoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	metric, err := models.ParseMetric(req.Metric)
	if err != nil {
		BadRequest(c, err.Error())
		return
	}
	topN := s.defaultTopN
	if req.TopN != nil {
		topN = *req.TopN
	}

	entries, err := analytics.Rank(req.Items, topN, analytics.TransformFor(metric))
	if err != nil {
		RespondWithDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, entries)
}

// scopeParam reads a "*scope" wildcard, which gin delivers with a leading slash.
func scopeParam(c *gin.Context) (string, bool) {
	scope := strings.TrimPrefix(c.Param("scope"), "/")
	if scope == "" {
		BadRequest(c, "scope must not be empty")
		return "", false
	}
	return scope, true
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("%s %s -> %d (%v)", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}
