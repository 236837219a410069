package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corridorx/corridor-gateway/internal/auth"
	"github.com/corridorx/corridor-gateway/internal/config"
	"github.com/corridorx/corridor-gateway/internal/database"
	"github.com/corridorx/corridor-gateway/internal/ingest"
	"github.com/corridorx/corridor-gateway/internal/middleware"
	"github.com/corridorx/corridor-gateway/internal/models"
	"github.com/corridorx/corridor-gateway/internal/wzdx"
	"github.com/corridorx/corridor-gateway/pkg/cache"
	"github.com/corridorx/corridor-gateway/pkg/kvstore"
)

// fakeRepo stands in for the persistence and data-access collaborators.
type fakeRepo struct {
	mu            sync.Mutex
	keysByHash    map[string]*models.APIKey
	keysByID      map[string]*models.APIKey
	usage         []*models.UsageLog
	contributions []*models.Contribution
	events        []models.NormalizedEvent
	listCalls     int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		keysByHash: make(map[string]*models.APIKey),
		keysByID:   make(map[string]*models.APIKey),
	}
}

func (r *fakeRepo) GetAPIKeyByHash(_ context.Context, hash string) (*models.APIKey, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key, ok := r.keysByHash[hash]
	if !ok {
		return nil, database.ErrNotFound
	}
	return key, nil
}

func (r *fakeRepo) TouchAPIKey(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if key, ok := r.keysByID[id]; ok {
		key.LastUsedAt = &at
	}
	return nil
}

func (r *fakeRepo) CreateAPIKey(_ context.Context, key *models.APIKey) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.keysByHash[key.SecretHash]; exists {
		return database.ErrDuplicate
	}
	r.keysByHash[key.SecretHash] = key
	r.keysByID[key.ID] = key
	return nil
}

func (r *fakeRepo) ListAPIKeys(_ context.Context) ([]models.APIKey, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	keys := make([]models.APIKey, 0, len(r.keysByID))
	for _, key := range r.keysByID {
		keys = append(keys, *key)
	}
	return keys, nil
}

func (r *fakeRepo) RevokeAPIKey(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key, ok := r.keysByID[id]
	if !ok {
		return database.ErrNotFound
	}
	key.Revoked = true
	return nil
}

func (r *fakeRepo) AppendUsageLog(_ context.Context, entry *models.UsageLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.usage = append(r.usage, entry)
	return nil
}

func (r *fakeRepo) CreateContribution(_ context.Context, c *models.Contribution) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.contributions = append(r.contributions, c)
	return nil
}

func (r *fakeRepo) ListEvents(_ context.Context, filter database.EventFilter) ([]models.NormalizedEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listCalls++
	var out []models.NormalizedEvent
	for _, ev := range r.events {
		if filter.Corridor != "" && ev.Corridor != filter.Corridor {
			continue
		}
		if filter.StateKey != "" && ev.StateKey != filter.StateKey {
			continue
		}
		out = append(out, ev)
	}
	return out, nil
}

func (r *fakeRepo) usageCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.usage)
}

func (r *fakeRepo) seedKey(secret string, mutate func(*models.APIKey)) *models.APIKey {
	key := &models.APIKey{
		ID:               fmt.Sprintf("key-%s", secret),
		SecretHash:       auth.HashSecret(secret),
		Name:             "test key",
		Tier:             models.TierStandard,
		RateLimitPerHour: 1000,
		AllowedEndpoints: models.StringArray{"*"},
		CreatedAt:        time.Now(),
	}
	if mutate != nil {
		mutate(key)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keysByHash[key.SecretHash] = key
	r.keysByID[key.ID] = key
	return key
}

func setupTestServer(t *testing.T) (*Server, *fakeRepo) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	cfg := &config.Config{
		Server: config.ServerConfig{Port: 8080, Host: "127.0.0.1"},
		Cache:  config.CacheConfig{FeedTTLSeconds: 60, Public: true},
		Feed: config.FeedConfig{
			Publisher:       "Corridor Data Exchange",
			License:         "https://creativecommons.org/publicdomain/zero/1.0/",
			UpdateFrequency: 60,
		},
	}

	repo := newFakeRepo()
	store := cache.NewStoreWithClock(logger, time.Now)
	t.Cleanup(store.Stop)

	authenticator := auth.NewAuthenticator(repo, store, logger)
	limiter := auth.NewRateLimiter(kvstore.NewMemoryStore())
	authMW := middleware.NewAuthMiddleware(authenticator, limiter, repo, logger)
	transformer := wzdx.NewTransformer(cfg.Feed, []config.SourceDescriptor{
		{SourceID: "ia-dot-events", Organization: "Iowa DOT"},
	}, logger)
	pipeline := ingest.NewPipeline(repo, logger)

	return New(cfg, logger, repo, repo, store, transformer, pipeline, authMW), repo
}

func doRequest(s *Server, method, path, apiKey string, body interface{}) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if apiKey != "" {
		req.Header.Set(middleware.APIKeyHeader, apiKey)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	return w
}

func TestHealthCheck(t *testing.T) {
	s, _ := setupTestServer(t)
	w := doRequest(s, "GET", "/health", "", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "healthy")
}

func TestGatewayRejectionMatrix(t *testing.T) {
	s, repo := setupTestServer(t)
	repo.seedKey("valid-secret", nil)
	repo.seedKey("revoked-secret", func(k *models.APIKey) { k.Revoked = true })
	repo.seedKey("expired-secret", func(k *models.APIKey) {
		past := time.Now().Add(-time.Hour)
		k.ExpiresAt = &past
	})
	repo.seedKey("scoped-secret", func(k *models.APIKey) {
		k.AllowedEndpoints = models.StringArray{"/api/v1/contribute/*"}
	})

	tests := []struct {
		name       string
		apiKey     string
		wantStatus int
		wantReason string
	}{
		{"no key", "", http.StatusUnauthorized, ""},
		{"unknown key", "bogus-secret", http.StatusForbidden, "not_found"},
		{"revoked key", "revoked-secret", http.StatusForbidden, "revoked"},
		{"expired key", "expired-secret", http.StatusForbidden, "expired"},
		{"path not allowed", "scoped-secret", http.StatusForbidden, "path_not_allowed"},
		{"valid key", "valid-secret", http.StatusOK, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := repo.usageCount()
			w := doRequest(s, "GET", "/api/v1/wzdx", tt.apiKey, nil)
			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantReason != "" {
				var body map[string]interface{}
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
				assert.Equal(t, tt.wantReason, body["reason"])
			}
			// Every completed request appends exactly one usage row,
			// asynchronously.
			assert.Eventually(t, func() bool {
				return repo.usageCount() == before+1
			}, time.Second, 10*time.Millisecond)
		})
	}
}

func TestAPIKeyViaQueryParameter(t *testing.T) {
	s, repo := setupTestServer(t)
	repo.seedKey("query-secret", nil)

	w := doRequest(s, "GET", "/api/v1/wzdx?api_key=query-secret", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRateLimitExceeded(t *testing.T) {
	s, repo := setupTestServer(t)
	repo.seedKey("tight-secret", func(k *models.APIKey) { k.RateLimitPerHour = 2 })

	for i := 0; i < 2; i++ {
		w := doRequest(s, "GET", "/api/v1/wzdx", "tight-secret", nil)
		require.Equal(t, http.StatusOK, w.Code)
	}

	w := doRequest(s, "GET", "/api/v1/wzdx", "tight-secret", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "rate_limit_exceeded", body["reason"])
}

func TestFeedCacheHitAndMiss(t *testing.T) {
	s, repo := setupTestServer(t)
	repo.seedKey("feed-secret", nil)

	first := doRequest(s, "GET", "/api/v1/wzdx", "feed-secret", nil)
	require.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, "MISS", first.Header().Get(middleware.CacheStatusHeader))
	assert.Equal(t, "public, max-age=60", first.Header().Get("Cache-Control"))
	assert.NotEmpty(t, first.Header().Get("ETag"))
	assert.NotEmpty(t, first.Header().Get("Last-Modified"))

	second := doRequest(s, "GET", "/api/v1/wzdx", "feed-secret", nil)
	require.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, "HIT", second.Header().Get(middleware.CacheStatusHeader))
	assert.Equal(t, 1, repo.listCalls, "handler body runs once per TTL window")
}

func TestFeedETag304Contract(t *testing.T) {
	s, repo := setupTestServer(t)
	repo.seedKey("feed-secret", nil)

	first := doRequest(s, "GET", "/api/v1/wzdx", "feed-secret", nil)
	require.Equal(t, http.StatusOK, first.Code)
	etag := first.Header().Get("ETag")
	require.NotEmpty(t, etag)

	req := httptest.NewRequest("GET", "/api/v1/wzdx", nil)
	req.Header.Set(middleware.APIKeyHeader, "feed-secret")
	req.Header.Set("If-None-Match", etag)
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotModified, w.Code)
	assert.Empty(t, w.Body.String(), "304 carries no body")

	// A stale validator gets the full 200 with the current tag.
	req = httptest.NewRequest("GET", "/api/v1/wzdx", nil)
	req.Header.Set(middleware.APIKeyHeader, "feed-secret")
	req.Header.Set("If-None-Match", `"stale"`)
	w = httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, etag, w.Header().Get("ETag"))
}

func TestFeedCacheKeyIsolation(t *testing.T) {
	s, repo := setupTestServer(t)
	repo.seedKey("feed-secret", nil)

	doRequest(s, "GET", "/api/v1/wzdx?corridor=I-80", "feed-secret", nil)
	doRequest(s, "GET", "/api/v1/wzdx?corridor=I-35", "feed-secret", nil)
	assert.Equal(t, 2, repo.listCalls, "different filters must not share an entry")

	doRequest(s, "GET", "/api/v1/wzdx?corridor=I-80", "feed-secret", nil)
	assert.Equal(t, 2, repo.listCalls, "identical filters must share an entry")
}

func TestFeedEndToEnd(t *testing.T) {
	s, repo := setupTestServer(t)
	repo.seedKey("feed-secret", nil)
	repo.events = []models.NormalizedEvent{{
		EventID:          "evt-i80-001",
		Corridor:         "I-80",
		StateKey:         "IA",
		Latitude:         41.59,
		Longitude:        -93.62,
		Severity:         "minor",
		SourceID:         "ia-dot-events",
		SourceType:       "official_dot",
		SourceName:       "Iowa DOT 511",
		ConfidenceScore:  0.8,
		ValidationStatus: "validated",
		LastVerified:     time.Now(),
		StartTime:        time.Now().Add(-time.Hour),
	}}

	w := doRequest(s, "GET", "/api/v1/wzdx?corridor=I-80", "feed-secret", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var doc struct {
		Type     string `json:"type"`
		Features []struct {
			Geometry struct {
				Coordinates []float64 `json:"coordinates"`
			} `json:"geometry"`
			Properties struct {
				DataQuality struct {
					ConfidenceScore float64 `json:"confidence_score"`
					SourceType      string  `json:"source_type"`
				} `json:"data_quality"`
			} `json:"properties"`
		} `json:"features"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &doc))
	require.Len(t, doc.Features, 1)
	assert.Equal(t, "FeatureCollection", doc.Type)
	assert.Equal(t, 0.8, doc.Features[0].Properties.DataQuality.ConfidenceScore)
	assert.Equal(t, "official_dot", doc.Features[0].Properties.DataQuality.SourceType)
	assert.Equal(t, []float64{-93.62, 41.59}, doc.Features[0].Geometry.Coordinates)
}

func TestContributeProbeData(t *testing.T) {
	s, repo := setupTestServer(t)
	repo.seedKey("contrib-secret", nil)

	w := doRequest(s, "POST", "/api/v1/contribute/probe-data", "contrib-secret", map[string]interface{}{
		"location":  map[string]interface{}{"lat": 41.59, "lon": -93.62},
		"speed_mph": 58,
	})
	require.Equal(t, http.StatusCreated, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, true, body["success"])
	assert.NotEmpty(t, body["contribution_id"])

	require.Len(t, repo.contributions, 1)
	assert.Equal(t, ingest.ProbeDataConfidence, repo.contributions[0].ConfidenceScore)
	assert.Equal(t, models.ContributionPending, repo.contributions[0].Status)
}

func TestContributeIncidentCapsConfidence(t *testing.T) {
	s, repo := setupTestServer(t)
	repo.seedKey("contrib-secret", nil)

	w := doRequest(s, "POST", "/api/v1/contribute/incident", "contrib-secret", map[string]interface{}{
		"location":          map[string]interface{}{"lat": 41.0, "lon": -95.0},
		"description":       "debris on shoulder",
		"source_confidence": 0.95,
	})
	require.Equal(t, http.StatusCreated, w.Code)
	require.Len(t, repo.contributions, 1)
	assert.Equal(t, ingest.IncidentConfidenceCap, repo.contributions[0].ConfidenceScore)
}

func TestContributeValidationError(t *testing.T) {
	s, repo := setupTestServer(t)
	repo.seedKey("contrib-secret", nil)

	w := doRequest(s, "POST", "/api/v1/contribute/parking-status", "contrib-secret", map[string]interface{}{
		"location": map[string]interface{}{"lat": 41.0, "lon": -95.0},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Contains(t, body["fields"], "facility_id")
	assert.Contains(t, body["fields"], "spaces_available")
	assert.Empty(t, repo.contributions)
}

func TestContributeRejectsMalformedJSON(t *testing.T) {
	s, repo := setupTestServer(t)
	repo.seedKey("contrib-secret", nil)

	req := httptest.NewRequest("POST", "/api/v1/contribute/incident", bytes.NewReader([]byte("{not json")))
	req.Header.Set(middleware.APIKeyHeader, "contrib-secret")
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAdminCreateAndUseKey(t *testing.T) {
	s, _ := setupTestServer(t)

	w := doRequest(s, "POST", "/api/v1/admin/api-keys", "", map[string]interface{}{
		"name":         "partner feed reader",
		"organization": "Acme Logistics",
		"tier":         "premium",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	var body struct {
		APIKey string        `json:"api_key"`
		Key    models.APIKey `json:"key"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.NotEmpty(t, body.APIKey)
	assert.Equal(t, "premium", body.Key.Tier)
	assert.Equal(t, models.TierRateLimits[models.TierPremium], body.Key.RateLimitPerHour)

	// The minted secret works against the gateway immediately.
	feed := doRequest(s, "GET", "/api/v1/wzdx", body.APIKey, nil)
	assert.Equal(t, http.StatusOK, feed.Code)
}

func TestAdminCreateKeyValidation(t *testing.T) {
	s, _ := setupTestServer(t)

	tests := []struct {
		name    string
		payload map[string]interface{}
	}{
		{"missing name", map[string]interface{}{"tier": "basic"}},
		{"bad tier", map[string]interface{}{"name": "x-key-name", "tier": "platinum"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(s, "POST", "/api/v1/admin/api-keys", "", tt.payload)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestAdminListKeysHidesSecrets(t *testing.T) {
	s, repo := setupTestServer(t)
	repo.seedKey("hidden-secret", nil)

	w := doRequest(s, "GET", "/api/v1/admin/api-keys", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), auth.HashSecret("hidden-secret"))
	assert.NotContains(t, w.Body.String(), "hidden-secret")
	assert.Contains(t, w.Body.String(), "test key")
}

func TestAdminRevokeKey(t *testing.T) {
	s, repo := setupTestServer(t)
	key := repo.seedKey("doomed-secret", nil)

	w := doRequest(s, "DELETE", "/api/v1/admin/api-keys/"+key.ID, "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	rejected := doRequest(s, "GET", "/api/v1/wzdx", "doomed-secret", nil)
	assert.Equal(t, http.StatusForbidden, rejected.Code)
	assert.Contains(t, rejected.Body.String(), "revoked")

	missing := doRequest(s, "DELETE", "/api/v1/admin/api-keys/no-such-id", "", nil)
	assert.Equal(t, http.StatusNotFound, missing.Code)
}

func TestCacheStatsEndpoint(t *testing.T) {
	s, repo := setupTestServer(t)
	repo.seedKey("feed-secret", nil)

	doRequest(s, "GET", "/api/v1/wzdx", "feed-secret", nil)
	doRequest(s, "GET", "/api/v1/wzdx", "feed-secret", nil)

	w := doRequest(s, "GET", "/api/v1/admin/cache/stats", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var stats cache.Stats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.GreaterOrEqual(t, stats.Hits, int64(1))
	assert.GreaterOrEqual(t, stats.Size, 1)
}
