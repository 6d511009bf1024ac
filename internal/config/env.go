package config

import (
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"
)

// Environment variable names.
const (
	EnvClientID       = "SF_CLIENT_ID"
	EnvUsername       = "SF_USERNAME"
	EnvPrivateKeyPath = "SF_PRIVATE_KEY_PATH"
	EnvPrivateKey     = "SF_PRIVATE_KEY"
	EnvClientSecret   = "SF_CLIENT_SECRET"
	EnvPassword       = "SF_PASSWORD"
	EnvSecurityToken  = "SF_SECURITY_TOKEN"
	EnvSandbox        = "SF_SANDBOX"
	EnvAuthMethod     = "SF_AUTH_METHOD"
	EnvLoginURL       = "SF_LOGIN_URL"
	EnvMaxConcurrent  = "SF_MAX_CONCURRENT"
	EnvRateLimitDelay = "SF_RATE_LIMIT_DELAY"
	EnvMaxRetries     = "SF_MAX_RETRIES"
	EnvTimeoutSeconds = "SF_TIMEOUT_SECONDS"
	EnvRetryProfile   = "SF_RETRY_PROFILE"
	EnvLogLevel       = "SF_LOG_LEVEL"
	EnvLogFile        = "SF_LOG_FILE"
	EnvLogFormat      = "SF_LOG_FORMAT"
	EnvAPIVersion     = "SF_API_VERSION"
	EnvCacheTTL       = "SF_FLOW_CACHE_TTL_SECONDS"
	EnvCacheDir       = "SF_FLOW_CACHE_DIR"
	EnvCacheEnabled   = "SF_FLOW_CACHE_ENABLED"
)

const pemMarker = "-----BEGIN"

//nolint:gochecknoglobals // Compiled once.
var varPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// ExpandString replaces ${VAR} references with their values. Unset variables are left as-is.
func ExpandString(s string, lookup func(string) (string, bool)) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		name := match[2 : len(match)-1]
		if v, ok := lookup(name); ok && v != "" {
			return v
		}
		return match
	})
}

// ExpandVariables applies ExpandString to every string and string list in cfg.
func ExpandVariables(cfg *Config, lookup func(string) (string, bool)) {
	expandValue(reflect.ValueOf(cfg).Elem(), lookup)
}

func expandValue(v reflect.Value, lookup func(string) (string, bool)) {
	switch v.Kind() {
	case reflect.Struct:
		for i := range v.NumField() {
			if v.Type().Field(i).IsExported() {
				expandValue(v.Field(i), lookup)
			}
		}
	case reflect.Slice:
		for i := range v.Len() {
			expandValue(v.Index(i), lookup)
		}
	case reflect.String:
		if v.CanSet() {
			v.SetString(ExpandString(v.String(), lookup))
		}
	default:
	}
}

// ApplyEnv overrides cfg with SF_* environment variables.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(name); ok && v != "" {
			*dst = v
		}
	}

	str(EnvClientID, &cfg.Auth.ClientID)
	str(EnvUsername, &cfg.Auth.Username)
	str(EnvPrivateKeyPath, &cfg.Auth.PrivateKeyPath)
	str(EnvClientSecret, &cfg.Auth.ClientSecret)
	str(EnvPassword, &cfg.Auth.Password)
	str(EnvSecurityToken, &cfg.Auth.SecurityToken)
	str(EnvAuthMethod, &cfg.Auth.Method)
	str(EnvLoginURL, &cfg.Auth.LoginURL)
	str(EnvRetryProfile, &cfg.Batch.RetryProfile)
	str(EnvLogLevel, &cfg.Logging.Level)
	str(EnvLogFile, &cfg.Logging.File)
	str(EnvLogFormat, &cfg.Logging.Format)
	str(EnvAPIVersion, &cfg.API.Version)
	str(EnvCacheDir, &cfg.Cache.Directory)

	// SF_PRIVATE_KEY carries either PEM contents or a path.
	if v, ok := lookup(EnvPrivateKey); ok && v != "" {
		if strings.Contains(v, pemMarker) {
			cfg.Auth.PrivateKey = v
		} else {
			cfg.Auth.PrivateKeyPath = v
		}
	}

	if v, ok := lookup(EnvSandbox); ok && v != "" {
		cfg.Auth.Sandbox = strings.EqualFold(v, "true")
	}
	if v, ok := lookup(EnvCacheEnabled); ok && v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvCacheEnabled, v, err)
		}
		cfg.Cache.Enabled = enabled
	}

	ints := []struct {
		name string
		dst  *int
	}{
		{EnvMaxConcurrent, &cfg.Batch.MaxConcurrent},
		{EnvRateLimitDelay, &cfg.Batch.RateLimitDelayMS},
		{EnvTimeoutSeconds, &cfg.Batch.TimeoutSeconds},
		{EnvCacheTTL, &cfg.Cache.TTLSeconds},
	}
	for _, e := range ints {
		v, ok := lookup(e.name)
		if !ok || v == "" {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", e.name, v, err)
		}
		*e.dst = n
	}

	if v, ok := lookup(EnvMaxRetries); ok && v != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvMaxRetries, v, err)
		}
		cfg.Batch.MaxRetries = &n
	}

	return nil
}
