// Package httpcond implements HTTP conditional-response semantics (ETag,
// If-None-Match, Cache-Control) for JSON payloads.
package httpcond

import (
	"crypto/md5" //nolint:gosec // content fingerprint, not a security boundary
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/bytedance/sonic"
)

// ComputeETag returns a double-quoted 128-bit content digest of v's canonical
// JSON serialization. The digest algorithm is an implementation detail; the
// contract is only that identical bodies produce identical tags. ConfigStd
// sorts map keys, so structurally identical bodies serialize identically.
func ComputeETag(v interface{}) (string, error) {
	data, err := sonic.ConfigStd.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to serialize body for etag: %w", err)
	}
	sum := md5.Sum(data) //nolint:gosec
	return `"` + hex.EncodeToString(sum[:]) + `"`, nil
}

// Matches reports whether an If-None-Match header value matches etag. It
// accepts comma-separated candidate lists, weak validators (W/ prefix is
// ignored for comparison) and the wildcard "*".
func Matches(ifNoneMatch, etag string) bool {
	if ifNoneMatch == "" {
		return false
	}
	if strings.TrimSpace(ifNoneMatch) == "*" {
		return true
	}
	for _, candidate := range strings.Split(ifNoneMatch, ",") {
		candidate = strings.TrimSpace(candidate)
		candidate = strings.TrimPrefix(candidate, "W/")
		if candidate == etag {
			return true
		}
	}
	return false
}

// CacheControl renders a Cache-Control header value. Public selects between
// "public" and "private"; maxAge is in seconds.
func CacheControl(public bool, maxAge int) string {
	scope := "private"
	if public {
		scope = "public"
	}
	return fmt.Sprintf("%s, max-age=%d", scope, maxAge)
}
