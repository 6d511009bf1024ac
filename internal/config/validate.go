package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/sunyxi/salesforce-flow-cli/internal/engine/batch"
)

// Validation limits.
const (
	MinMaxConcurrent  = 1
	MaxMaxConcurrent  = 10
	MinMaxRetries     = 0
	MaxMaxRetries     = 10
	MinTimeoutSeconds = 10
	MaxTimeoutSeconds = 3600
	MinCacheTTL       = 60
	MaxCacheTTL       = 7 * 24 * 60 * 60
	minAPIVersion     = "41.0"
)

// ErrInvalidConfig matches every ValidationError.
var ErrInvalidConfig = errors.New("configuration validation failed")

//nolint:gochecknoglobals // Fixed lookup table.
var validLogLevels = []string{"error", "warn", "info", "debug", "verbose"}

// ValidationError lists every problem found by Validate.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "configuration validation failed:\n  - " + strings.Join(e.Problems, "\n  - ")
}

func (e *ValidationError) Unwrap() error { return ErrInvalidConfig }

// Validate checks credentials and value ranges and reports all problems at once.
func (c *Config) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	a := c.Auth
	if isUnset(a.ClientID) {
		add("client_id is required for authentication (set %s)", EnvClientID)
	}
	if isUnset(a.Username) {
		add("username is required for authentication (set %s)", EnvUsername)
	}
	switch a.Method {
	case AuthMethodJWT:
		if isUnset(a.PrivateKeyPath) && isUnset(a.PrivateKey) {
			add("private_key_path is required for JWT authentication (set %s)", EnvPrivateKeyPath)
		}
	case AuthMethodOAuth:
		if isUnset(a.ClientSecret) {
			add("client_secret is required for OAuth authentication (set %s)", EnvClientSecret)
		}
		if isUnset(a.Password) {
			add("password is required for OAuth authentication (set %s)", EnvPassword)
		}
	default:
		add("invalid authentication method: %q (expected %s or %s)", a.Method, AuthMethodJWT, AuthMethodOAuth)
	}

	c.validateBatch(add)

	if !slices.Contains(validLogLevels, c.Logging.Level) {
		add("invalid log level: %q (expected one of %s)", c.Logging.Level, strings.Join(validLogLevels, ", "))
	}

	if err := ValidateAPIVersion(c.API.Version); err != nil {
		add("%v", err)
	}
	if c.API.TimeoutSeconds <= 0 {
		add("api.timeout_seconds must be positive")
	}

	if c.Cache.Enabled && (c.Cache.TTLSeconds < MinCacheTTL || c.Cache.TTLSeconds > MaxCacheTTL) {
		add("cache.ttl_seconds must be between %d and %d", MinCacheTTL, MaxCacheTTL)
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

func (c *Config) validateBatch(add func(string, ...any)) {
	b := c.Batch
	if b.MaxConcurrent < MinMaxConcurrent || b.MaxConcurrent > MaxMaxConcurrent {
		add("max_concurrent must be between %d and %d", MinMaxConcurrent, MaxMaxConcurrent)
	}
	if b.RateLimitDelayMS < 0 {
		add("rate_limit_delay_ms must be non-negative")
	}
	if b.MaxRetries != nil && (*b.MaxRetries < MinMaxRetries || *b.MaxRetries > MaxMaxRetries) {
		add("max_retries must be between %d and %d", MinMaxRetries, MaxMaxRetries)
	}
	if b.TimeoutSeconds < MinTimeoutSeconds || b.TimeoutSeconds > MaxTimeoutSeconds {
		add("timeout_seconds must be between %d and %d", MinTimeoutSeconds, MaxTimeoutSeconds)
	}
	if _, err := batch.RetryPolicyByName(b.RetryProfile); err != nil {
		add("invalid retry_profile %q (expected default, aggressive or conservative)", b.RetryProfile)
	}
	if b.BaseDelayMS < 0 || b.MaxDelayMS < 0 {
		add("base_delay_ms and max_delay_ms must be non-negative")
	}
	if b.JitterFactor != nil && (*b.JitterFactor < 0 || *b.JitterFactor > 1) {
		add("jitter_factor must be between 0 and 1")
	}
}

// ValidateAPIVersion checks that v is a Tooling API version such as "58.0" or "v58.0".
func ValidateAPIVersion(v string) error {
	ver, err := semver.NewVersion(strings.TrimPrefix(v, "v"))
	if err != nil {
		return fmt.Errorf("invalid api.version %q: %w", v, err)
	}
	minVer := semver.MustParse(minAPIVersion)
	if ver.LessThan(minVer) {
		return fmt.Errorf("api.version %q is below the minimum supported %s", v, minAPIVersion)
	}
	return nil
}

// isUnset treats empty values and unexpanded ${VAR} placeholders as missing.
func isUnset(s string) bool {
	return s == "" || strings.HasPrefix(s, "${")
}
