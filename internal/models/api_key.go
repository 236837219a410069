package models

import (
	"time"
)

// Tier names and their hourly request allowances. The unlimited tier carries
// no counter at all.
const (
	TierBasic     = "basic"
	TierStandard  = "standard"
	TierPremium   = "premium"
	TierUnlimited = "unlimited"
)

// TierRateLimits maps each tier to its requests-per-hour allowance. A zero
// value means no limit is enforced.
var TierRateLimits = map[string]int{
	TierBasic:     1000,
	TierStandard:  10000,
	TierPremium:   100000,
	TierUnlimited: 0,
}

// APIKey is a machine client credential. The presented secret is never
// stored; lookup goes through SecretHash. A key is immutable after creation
// except for revocation and the last-used timestamp.
type APIKey struct {
	ID               string      `json:"id" gorm:"type:uuid;primary_key"`
	SecretHash       string      `json:"-" gorm:"uniqueIndex;size:64"`
	Name             string      `json:"name"`
	Organization     string      `json:"organization"`
	Tier             string      `json:"tier" gorm:"default:basic"`
	RateLimitPerHour int         `json:"rate_limit_per_hour"`
	AllowedEndpoints StringArray `json:"allowed_endpoints" gorm:"type:jsonb"`
	Revoked          bool        `json:"revoked"`
	ExpiresAt        *time.Time  `json:"expires_at"`
	LastUsedAt       *time.Time  `json:"last_used_at"`
	CreatedAt        time.Time   `json:"created_at"`
}

func (APIKey) TableName() string {
	return "api_keys"
}

// AllowsPath reports whether the key may call path. A "*" pattern matches
// everything; other patterns match exact paths or act as prefixes when they
// end in "*".
func (k *APIKey) AllowsPath(path string) bool {
	for _, pattern := range k.AllowedEndpoints {
		if pattern == "*" {
			return true
		}
		if pattern == path {
			return true
		}
		if n := len(pattern); n > 0 && pattern[n-1] == '*' && len(path) >= n-1 && path[:n-1] == pattern[:n-1] {
			return true
		}
	}
	return false
}
