// Package api exposes the inbound HTTP surface: unified search, provider
// stats, item retrieval, matching runs and the RAG query endpoints.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/licitahub/licitahub/pkg/cache"
	"github.com/licitahub/licitahub/pkg/matching"
	"github.com/licitahub/licitahub/pkg/observability"
	"github.com/licitahub/licitahub/pkg/persistence"
	"github.com/licitahub/licitahub/pkg/providers"
	"github.com/licitahub/licitahub/pkg/rag"
	"github.com/licitahub/licitahub/pkg/unifiedsearch"
	"github.com/licitahub/licitahub/pkg/vectorstore"
)

// Config configures the HTTP server.
type Config struct {
	ListenAddress string
	ReadTimeout   time.Duration
	// WriteTimeout must cover the slowest search fan-out; RAG answers on a
	// cold tender can also take minutes.
	WriteTimeout time.Duration
}

// Deps are the services the handlers dispatch to. Matcher and RAG may be
// nil; their endpoints then answer 503.
type Deps struct {
	Search   *unifiedsearch.Service
	Store    *persistence.Service
	Registry *providers.Registry
	Matcher  *matching.Engine
	RAG      *rag.Engine
	Vectors  *vectorstore.Store
	Cache    cache.Cache
}

// Server is the inbound HTTP server.
type Server struct {
	router *gin.Engine
	server *http.Server
	deps   Deps
	logger observability.Logger
}

// NewServer builds the router and binds all routes.
func NewServer(cfg Config, deps Deps, logger observability.Logger) *Server {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestLogger(logger))

	s := &Server{
		router: router,
		deps:   deps,
		logger: logger.WithPrefix("api"),
		server: &http.Server{
			Addr:         cfg.ListenAddress,
			Handler:      router,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/healthz", s.handleHealth)

	v1 := s.router.Group("/api/v1")
	{
		v1.GET("/search", s.handleUnifiedSearch)
		v1.GET("/search/:provider", s.handleProviderSearch)
		v1.GET("/providers", s.handleProviderStats)

		v1.GET("/opportunities", s.handleStoredSearch)
		v1.GET("/opportunities/stats", s.handleStoredStats)
		v1.GET("/opportunities/:provider/:external_id/items", s.handleGetItems)

		v1.POST("/matching/run", s.handleRunMatching)

		v1.POST("/rag/query", s.handleRAGQuery)
		v1.GET("/rag/:opportunity_id/status", s.handleVectorizationStatus)

		v1.DELETE("/cache", s.handleCachePurge)
	}
}

// Start runs the server until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Handler exposes the router, for httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}
