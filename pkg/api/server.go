// Package api exposes the synchronous HTTP surface: enqueue endpoints, run
// queries, diffs, and health.
package api

import (
	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/quorumlabs/quorum/pkg/broker"
	"github.com/quorumlabs/quorum/pkg/config"
	"github.com/quorumlabs/quorum/pkg/database"
	"github.com/quorumlabs/quorum/pkg/schema"
	"github.com/quorumlabs/quorum/pkg/services"
)

// Server wires the HTTP routes to the service layer.
type Server struct {
	enqueue *services.EnqueueService
	runs    *services.RunService
	db      *database.Client
	broker  *broker.Broker
	cfg     *config.Config
	logger  *slog.Logger
}

// NewServer creates the API server.
func NewServer(enqueue *services.EnqueueService, runs *services.RunService, db *database.Client, b *broker.Broker, cfg *config.Config, logger *slog.Logger) *Server {
	return &Server{enqueue: enqueue, runs: runs, db: db, broker: b, cfg: cfg, logger: logger}
}

// Router builds the gin engine with middleware and routes.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), requestID(), accessLog(s.logger))

	r.GET("/health", s.health)

	v1 := r.Group("/v1", versionPin(schema.CurrentVersion, s.cfg.PromptSetVersion))
	{
		v1.POST("/full-review", s.createFullReview)
		v1.POST("/runs/:run_id/revisions", s.createRevision)
		v1.GET("/runs", s.listRuns)
		v1.GET("/runs/:run_id", s.getRun)
		v1.GET("/runs/:run_id/diff/:other_run_id", s.diffRuns)
	}

	return r
}
