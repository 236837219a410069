package server

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/corridorx/corridor-gateway/internal/config"
	"github.com/corridorx/corridor-gateway/internal/database"
	"github.com/corridorx/corridor-gateway/internal/ingest"
	"github.com/corridorx/corridor-gateway/internal/middleware"
	"github.com/corridorx/corridor-gateway/internal/models"
	"github.com/corridorx/corridor-gateway/internal/wzdx"
	"github.com/corridorx/corridor-gateway/pkg/cache"
	"github.com/corridorx/corridor-gateway/pkg/metrics"
)

func init() {
	gin.SetMode(gin.ReleaseMode)
	gin.DefaultWriter = io.Discard
}

// EventSource is the data-access collaborator: it returns normalized event
// records for a filter. The aggregation subsystem behind it is not the
// gateway's concern.
type EventSource interface {
	ListEvents(ctx context.Context, filter database.EventFilter) ([]models.NormalizedEvent, error)
}

// KeyAdminStore is the slice of the persistence collaborator behind the
// admin key-management endpoints.
type KeyAdminStore interface {
	CreateAPIKey(ctx context.Context, key *models.APIKey) error
	ListAPIKeys(ctx context.Context) ([]models.APIKey, error)
	RevokeAPIKey(ctx context.Context, id string) error
}

// Server is the gateway's HTTP surface.
type Server struct {
	cfg         *config.Config
	logger      *logrus.Logger
	router      *gin.Engine
	events      EventSource
	keys        KeyAdminStore
	store       *cache.Store
	transformer *wzdx.Transformer
	pipeline    *ingest.Pipeline
	authMW      *middleware.AuthMiddleware
	cached      *middleware.CachedJSON
}

func New(
	cfg *config.Config,
	logger *logrus.Logger,
	events EventSource,
	keys KeyAdminStore,
	store *cache.Store,
	transformer *wzdx.Transformer,
	pipeline *ingest.Pipeline,
	authMW *middleware.AuthMiddleware,
) *Server {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Metrics())

	s := &Server{
		cfg:         cfg,
		logger:      logger,
		router:      router,
		events:      events,
		keys:        keys,
		store:       store,
		transformer: transformer,
		pipeline:    pipeline,
		authMW:      authMW,
		cached:      middleware.NewCachedJSON(cache.NewMemoizer(store), cfg.Cache.FeedTTLSeconds, cfg.Cache.Public, logger),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})
	s.router.GET("/metrics", gin.WrapH(metrics.Handler()))

	v1 := s.router.Group("/api/v1")
	{
		protected := v1.Group("")
		protected.Use(s.authMW.RequireAPIKey())
		{
			protected.GET("/wzdx", s.getFeed())

			contribute := protected.Group("/contribute")
			{
				contribute.POST("/probe-data", s.contribute(models.ContributionProbeData))
				contribute.POST("/incident", s.contribute(models.ContributionIncident))
				contribute.POST("/parking-status", s.contribute(models.ContributionParkingStatus))
			}
		}

		// Admin surface. Machine-key auth deliberately does not apply here;
		// operator access control happens at the deployment boundary.
		admin := v1.Group("/admin")
		{
			admin.POST("/api-keys", s.createAPIKey)
			admin.GET("/api-keys", s.listAPIKeys)
			admin.DELETE("/api-keys/:key_id", s.revokeAPIKey)
			admin.GET("/cache/stats", s.cacheStats)
		}
	}
}

// Router exposes the gin engine for tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Run starts the server and blocks until ctx is canceled, then drains
// in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", addr).Info("starting gateway server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) cacheStats(c *gin.Context) {
	c.JSON(http.StatusOK, s.store.Stats())
}
