package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// KeyParams identifies a cacheable listing.
type KeyParams struct {
	InstanceURL string
	APIVersion  string
	Query       string
}

// GenerateKey returns a stable hex SHA-256 key for p. The instance URL is
// normalised so trailing slashes and case do not split the cache.
func GenerateKey(p KeyParams) string {
	instance := strings.ToLower(strings.TrimRight(p.InstanceURL, "/"))
	sum := sha256.Sum256([]byte(instance + "|" + p.APIVersion + "|" + strings.TrimSpace(p.Query)))
	return hex.EncodeToString(sum[:])
}
