// Package api serves the ops HTTP API: health, metrics and a read-only view
// of each server's attendance.
package api

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"dbot/internal/attendance"
	"dbot/internal/auth"
	"dbot/internal/httpmiddleware"
)

// defaultReportDays applies when the report is requested without ?days.
const defaultReportDays = 7

// Check reports whether one dependency is reachable.
type Check func(ctx context.Context) bool

// Deps wires the router. Checks are keyed by the name reported in /healthz.
type Deps struct {
	Registry       *attendance.Registry
	Checks         map[string]Check
	Gatherer       prometheus.Gatherer
	Limiter        *httpmiddleware.SimpleTokenBucket
	Logger         *zap.Logger
	SigningKey     string
	Issuer         string
	AllowedOrigins []string
	Production     bool
	Now            func() time.Time
}

type handler struct {
	registry *attendance.Registry
	checks   map[string]Check
	logger   *zap.Logger
	now      func() time.Time
}

// NewRouter builds the gin engine.
func NewRouter(d Deps) *gin.Engine {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Gatherer == nil {
		d.Gatherer = prometheus.DefaultGatherer
	}
	h := &handler{registry: d.Registry, checks: d.Checks, logger: d.Logger, now: d.Now}

	r := gin.New()
	r.Use(recovery(d.Logger))
	r.Use(requestLogger(d.Logger, "/healthz", "/metrics"))
	r.Use(cors.New(corsConfig(d.AllowedOrigins)))
	r.Use(securityHeaders(d.Production))
	r.Use(d.Limiter.GinMiddleware())

	r.GET("/healthz", h.health)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))

	v1 := r.Group("/v1", auth.BearerAuth(d.SigningKey, d.Issuer))
	v1.GET("/servers/:server_id/members", h.members)
	v1.GET("/servers/:server_id/report", h.report)
	return r
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:     []string{"GET", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
		cfg.AllowCredentials = false
	} else {
		cfg.AllowOrigins = origins
	}
	return cfg
}

func securityHeaders(production bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		if production {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		c.Next()
	}
}

func (h *handler) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	var mu sync.Mutex
	body := gin.H{}
	status, code := "ok", http.StatusOK
	g, gctx := errgroup.WithContext(ctx)
	for name, check := range h.checks {
		g.Go(func() error {
			healthy := check(gctx)
			mu.Lock()
			defer mu.Unlock()
			body[name] = healthy
			if !healthy {
				status, code = "degraded", http.StatusServiceUnavailable
			}
			return nil
		})
	}
	_ = g.Wait()
	body["status"] = status
	c.JSON(code, body)
}

// server resolves :server_id (a Discord guild id) or writes the error response.
func (h *handler) server(c *gin.Context) (*attendance.Server, bool) {
	s, err := h.registry.LookupServer(c.Request.Context(), c.Param("server_id"))
	if err != nil {
		h.logger.Error("lookup server failed", zap.String("server_id", c.Param("server_id")), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
		return nil, false
	}
	if s == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "server not found"})
		return nil, false
	}
	return s, true
}

func (h *handler) members(c *gin.Context) {
	s, ok := h.server(c)
	if !ok {
		return
	}
	members, err := h.registry.ListRegisteredUsers(c.Request.Context(), s.ID)
	if err != nil {
		h.logger.Error("list members failed", zap.String("server_id", s.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list failed"})
		return
	}
	if members == nil {
		members = []attendance.Member{}
	}
	c.JSON(http.StatusOK, gin.H{"server": s, "members": members})
}

func (h *handler) report(c *gin.Context) {
	days := defaultReportDays
	if v := c.Query("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "days must be a number"})
			return
		}
		days = n
	}
	s, ok := h.server(c)
	if !ok {
		return
	}
	summary, err := h.registry.AttendanceReport(c.Request.Context(), s.ID, days, h.now())
	if err != nil {
		h.logger.Error("attendance report failed", zap.String("server_id", s.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "report failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"server": s, "report": summary})
}
