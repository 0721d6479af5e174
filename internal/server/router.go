// Package server exposes an embeddable HTTP surface over the supervisor
// for harnesses that keep a control daemon around.
//
// Endpoints:
//
//	GET  {basePath}/status              per-entry liveness rows
//	POST {basePath}/terminate?name=db   terminate one entry
//	POST {basePath}/terminate           terminate everything
//	GET  {basePath}/history?name=db     launch history (store required)
package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/xprocd/xproc/internal/store"
	"github.com/xprocd/xproc/internal/supervisor"
)

type Router struct {
	sup      *supervisor.Supervisor
	hist     store.Store
	basePath string
}

// NewRouter builds a Router. hist may be nil; the history endpoint then
// answers 404.
func NewRouter(sup *supervisor.Supervisor, hist store.Store, basePath string) *Router {
	return &Router{sup: sup, hist: hist, basePath: sanitizeBase(basePath)}
}

// Handler returns a gin-powered http.Handler mountable in any mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	group.GET("/status", r.handleStatus)
	group.POST("/terminate", r.handleTerminate)
	group.GET("/history", r.handleHistory)
	return g
}

// NewServer starts a standalone HTTP server on addr using this router.
func NewServer(addr, basePath string, sup *supervisor.Supervisor, hist store.Store) (*http.Server, error) {
	r := NewRouter(sup, hist, basePath)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() { _ = srv.ListenAndServe() }()
	return srv, nil
}

type errorResp struct {
	Error string `json:"error"`
}

func (r *Router) handleStatus(c *gin.Context) {
	rows, err := r.sup.StatusAll()
	if err != nil {
		c.JSON(http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, rows)
}

func (r *Router) handleTerminate(c *gin.Context) {
	if name := c.Query("name"); name != "" {
		res, err := r.sup.Terminate(c.Request.Context(), name)
		if err != nil {
			c.JSON(http.StatusBadRequest, errorResp{Error: err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"name": name, "outcome": res.String()})
		return
	}
	sum, err := r.sup.TerminateAll(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, sum)
}

func (r *Router) handleHistory(c *gin.Context) {
	if r.hist == nil {
		c.JSON(http.StatusNotFound, errorResp{Error: "no launch-history store configured"})
		return
	}
	name := c.Query("name")
	if name == "" {
		c.JSON(http.StatusBadRequest, errorResp{Error: "name query param required"})
		return
	}
	recs, err := r.hist.GetByName(c.Request.Context(), name, 50)
	if err != nil {
		c.JSON(http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, recs)
}

func sanitizeBase(bp string) string {
	bp = strings.TrimSpace(bp)
	if bp == "" || bp == "/" {
		return ""
	}
	if !strings.HasPrefix(bp, "/") {
		bp = "/" + bp
	}
	return strings.TrimRight(bp, "/")
}
