package middleware

// Header and context keys shared by the gateway middlewares.
const (
	APIKeyHeader      = "X-Api-Key"
	APIKeyQueryParam  = "api_key"
	CacheStatusHeader = "X-Cache"

	// APIKeyContextKey holds the authenticated *models.APIKey on the gin
	// context.
	APIKeyContextKey = "api_key_record"
)
