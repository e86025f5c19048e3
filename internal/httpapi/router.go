// Package httpapi exposes instance polling and the interactive mailbox
// operations over HTTP.
package httpapi

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/Martian-dev/mailpoll/internal/auth"
	"github.com/Martian-dev/mailpoll/internal/eventstore/sqlite"
	"github.com/Martian-dev/mailpoll/internal/mailops"
	"github.com/Martian-dev/mailpoll/internal/sync"
)

// IncidentLog gives read access to emitted incidents. It is only
// available with the sqlite platform.
type IncidentLog interface {
	Incidents(ctx context.Context, instance string, limit int) ([]sqlite.StoredIncident, error)
	File(ctx context.Context, id string) (string, []byte, error)
}

// Server holds the dependencies of the HTTP handlers
type Server struct {
	Manager  *sync.Manager
	Ops      *mailops.Service
	Folder   string
	Verifier auth.Verifier
	Log      IncidentLog
	Logger   *zap.Logger
}

// Router builds the gin engine. Routes other than /healthz and /metrics
// require a verified bearer token when a Verifier is configured.
func (s *Server) Router() *gin.Engine {
	if s.Logger == nil {
		s.Logger = zap.NewNop()
	}

	r := gin.New()
	r.Use(gin.Recovery(), s.accessLog())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.HEAD("/healthz", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/")
	if s.Verifier != nil {
		api.Use(authMiddleware(s.Verifier))
	}

	api.POST("/instances/:name/fetch", s.fetch)
	api.GET("/instances/:name/cursor", s.cursor)
	api.DELETE("/instances/:name/cursor", s.resetCursor)
	api.POST("/outbox/dispatch", s.dispatch)

	api.GET("/items", s.getItems)
	api.POST("/items/read", s.markItems)
	api.GET("/items/:id/eml", s.itemEML)
	api.GET("/health/mailbox", s.mailboxHealth)

	if s.Log != nil {
		api.GET("/instances/:name/incidents", s.incidents)
		api.GET("/files/:id", s.file)
	}
	return r
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		s.Logger.Debug("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
		)
	}
}

func authMiddleware(v auth.Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, err := v.Verify(c.Request)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		c.Set("principal", principal)
		c.Next()
	}
}
