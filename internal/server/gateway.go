package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/corridorx/corridor-gateway/internal/database"
	"github.com/corridorx/corridor-gateway/internal/ingest"
	"github.com/corridorx/corridor-gateway/internal/middleware"
	"github.com/corridorx/corridor-gateway/internal/models"
	"github.com/corridorx/corridor-gateway/pkg/cache"
	"github.com/corridorx/corridor-gateway/pkg/metrics"
)

// getFeed serves the WZDx feed, memoized per filter combination. The bbox
// parameter participates in the cache key but does not yet narrow the query;
// geographic filtering is a stub.
func (s *Server) getFeed() gin.HandlerFunc {
	keyFn := func(c *gin.Context) string {
		return cache.Key("wzdx",
			c.Query("corridor"),
			c.Query("state"),
			c.Query("bbox"),
		)
	}
	load := func(c *gin.Context) (interface{}, error) {
		events, err := s.events.ListEvents(c.Request.Context(), database.EventFilter{
			Corridor: c.Query("corridor"),
			StateKey: c.Query("state"),
		})
		if err != nil {
			return nil, err
		}
		return s.transformer.Transform(events), nil
	}
	return s.cached.Handle(keyFn, load)
}

// contribute accepts one contribution of the given type.
func (s *Server) contribute(contributionType string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var payload map[string]interface{}
		if err := c.ShouldBindJSON(&payload); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body"})
			return
		}

		key := mustKeyFromContext(c)
		contribution, err := s.pipeline.Ingest(c.Request.Context(), contributionType, payload, key.ID)
		if err != nil {
			var valErr *ingest.ValidationError
			if errors.As(err, &valErr) {
				c.JSON(http.StatusBadRequest, gin.H{"error": valErr.Error(), "fields": valErr.Fields})
				return
			}
			s.logger.WithError(err).WithFields(map[string]interface{}{
				"key_id":            key.ID,
				"contribution_type": contributionType,
			}).Error("failed to ingest contribution")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
			return
		}

		metrics.ContributionsIngested.WithLabelValues(contributionType).Inc()
		c.JSON(http.StatusCreated, gin.H{
			"success":         true,
			"contribution_id": contribution.ID,
			"message":         fmt.Sprintf("%s contribution accepted for validation", contributionType),
		})
	}
}

// mustKeyFromContext returns the authenticated key record the auth
// middleware stored. Handlers behind RequireAPIKey can rely on it.
func mustKeyFromContext(c *gin.Context) *models.APIKey {
	value, _ := c.Get(middleware.APIKeyContextKey)
	key, ok := value.(*models.APIKey)
	if !ok {
		// Route wiring error, not a client error.
		panic("api key missing from request context")
	}
	return key
}
