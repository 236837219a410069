package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/corridorx/corridor-gateway/internal/auth"
	"github.com/corridorx/corridor-gateway/internal/database"
	"github.com/corridorx/corridor-gateway/internal/models"
)

var validate = validator.New()

type createKeyRequest struct {
	Name             string   `json:"name" validate:"required,min=3,max=255"`
	Organization     string   `json:"organization" validate:"max=255"`
	Tier             string   `json:"tier" validate:"omitempty,oneof=basic standard premium unlimited"`
	ExpiresInDays    int      `json:"expires_in_days" validate:"omitempty,min=1,max=3650"`
	AllowedEndpoints []string `json:"allowed_endpoints"`
}

// createAPIKey mints a new key. The plaintext secret appears in this
// response and nowhere else; only its hash is stored.
func (s *Server) createAPIKey(c *gin.Context) {
	var req createKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := validate.Struct(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if req.Tier == "" {
		req.Tier = models.TierBasic
	}
	if len(req.AllowedEndpoints) == 0 {
		req.AllowedEndpoints = []string{"*"}
	}

	secret, err := auth.GenerateSecret()
	if err != nil {
		s.logger.WithError(err).Error("failed to generate api key secret")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	key := &models.APIKey{
		ID:               uuid.NewString(),
		SecretHash:       auth.HashSecret(secret),
		Name:             req.Name,
		Organization:     req.Organization,
		Tier:             req.Tier,
		RateLimitPerHour: models.TierRateLimits[req.Tier],
		AllowedEndpoints: req.AllowedEndpoints,
		CreatedAt:        time.Now(),
	}
	if req.ExpiresInDays > 0 {
		expires := time.Now().AddDate(0, 0, req.ExpiresInDays)
		key.ExpiresAt = &expires
	}

	if err := s.keys.CreateAPIKey(c.Request.Context(), key); err != nil {
		if errors.Is(err, database.ErrDuplicate) {
			c.JSON(http.StatusConflict, gin.H{"error": "key already exists"})
			return
		}
		s.logger.WithError(err).Error("failed to create api key")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	s.logger.WithFields(map[string]interface{}{
		"key_id": key.ID,
		"tier":   key.Tier,
	}).Info("created api key")

	c.JSON(http.StatusCreated, gin.H{
		"api_key": secret,
		"key":     key,
		"message": "store this secret now; it will not be shown again",
	})
}

// listAPIKeys lists key records. Secrets and hashes never leave the server;
// the model's json tags keep the hash out of the payload.
func (s *Server) listAPIKeys(c *gin.Context) {
	keys, err := s.keys.ListAPIKeys(c.Request.Context())
	if err != nil {
		s.logger.WithError(err).Error("failed to list api keys")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"keys": keys, "count": len(keys)})
}

func (s *Server) revokeAPIKey(c *gin.Context) {
	id := c.Param("key_id")
	if err := s.keys.RevokeAPIKey(c.Request.Context(), id); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "key not found"})
			return
		}
		s.logger.WithError(err).WithField("key_id", id).Error("failed to revoke api key")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "key revoked"})
}
