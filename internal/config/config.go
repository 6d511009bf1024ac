// Package config loads, validates and persists sf-flow settings.
//
// Sources are applied in this order, later ones winning: built-in defaults,
// the user config file, the project overlay ./config/sf-flow.yaml, ${VAR}
// expansion, SF_* environment variables, and finally CLI flags applied by the
// caller.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sunyxi/salesforce-flow-cli/internal/engine/batch"
)

// Authentication methods.
const (
	AuthMethodJWT   = "jwt"
	AuthMethodOAuth = "oauth"
)

// Default values.
const (
	DefaultAuthMethod       = AuthMethodJWT
	DefaultMaxConcurrent    = batch.DefaultMaxConcurrent
	DefaultRateLimitDelayMS = 1000
	DefaultTimeoutSeconds   = 300
	DefaultRetryProfile     = "default"
	DefaultLogLevel         = "info"
	DefaultLogFormat        = "json"
	DefaultAPIVersion       = "58.0"
	DefaultAPITimeoutSecs   = 30
	DefaultCacheTTLSeconds  = 300

	configDirName       = "sf-flow"
	configFileName      = "config.yaml"
	projectConfigSubdir = "config"
	projectConfigFile   = "sf-flow.yaml"
	redactedValue       = "********"
)

// ErrConfigNotFound is returned when an explicitly requested config file does not exist.
var ErrConfigNotFound = errors.New("config file not found")

// Config is the full sf-flow configuration.
type Config struct {
	Auth    AuthConfig    `yaml:"auth"`
	Batch   BatchSettings `yaml:"batch"`
	Logging LoggingConfig `yaml:"logging"`
	Flows   FlowsConfig   `yaml:"flows"`
	CLI     CLIConfig     `yaml:"cli"`
	API     APIConfig     `yaml:"api"`
	Cache   CacheConfig   `yaml:"cache"`
}

// AuthConfig holds Salesforce connected-app credentials.
type AuthConfig struct {
	Method         string `yaml:"method"`
	ClientID       string `yaml:"client_id"`
	Username       string `yaml:"username"`
	PrivateKeyPath string `yaml:"private_key_path,omitempty"`
	PrivateKey     string `yaml:"private_key,omitempty"`
	ClientSecret   string `yaml:"client_secret,omitempty"`
	Password       string `yaml:"password,omitempty"`
	SecurityToken  string `yaml:"security_token,omitempty"`
	Sandbox        bool   `yaml:"sandbox"`

	// LoginURL overrides the login host derived from Sandbox.
	LoginURL string `yaml:"login_url,omitempty"`
}

// BatchSettings controls the batch processor. Zero-valued optional fields fall
// back to the selected retry profile.
type BatchSettings struct {
	MaxConcurrent    int    `yaml:"max_concurrent"`
	RateLimitDelayMS int    `yaml:"rate_limit_delay_ms"`
	TimeoutSeconds   int    `yaml:"timeout_seconds"`
	RetryProfile     string `yaml:"retry_profile"`

	MaxRetries   *int     `yaml:"max_retries,omitempty"`
	BaseDelayMS  int      `yaml:"base_delay_ms,omitempty"`
	MaxDelayMS   int      `yaml:"max_delay_ms,omitempty"`
	JitterFactor *float64 `yaml:"jitter_factor,omitempty"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
	Caller bool   `yaml:"caller,omitempty"`
}

// FlowsConfig lists flow names per environment.
type FlowsConfig struct {
	Production []string `yaml:"production"`
	Sandbox    []string `yaml:"sandbox"`
}

// CLIConfig controls terminal output.
type CLIConfig struct {
	ShowProgressBar    bool `yaml:"show_progress_bar"`
	ShowDetailedOutput bool `yaml:"show_detailed_output"`
	ColorOutput        bool `yaml:"color_output"`
}

// APIConfig controls the Tooling API client.
type APIConfig struct {
	Version        string `yaml:"version"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// CacheConfig controls the flow listing cache.
type CacheConfig struct {
	Enabled    bool   `yaml:"enabled"`
	TTLSeconds int    `yaml:"ttl_seconds"`
	Directory  string `yaml:"directory,omitempty"`
}

// New returns a Config populated with defaults only.
func New() *Config {
	dir, err := ConfigDir()
	logFile := ""
	if err == nil {
		logFile = filepath.Join(dir, "logs", "sf-flow.log")
	}

	return &Config{
		Auth: AuthConfig{Method: DefaultAuthMethod},
		Batch: BatchSettings{
			MaxConcurrent:    DefaultMaxConcurrent,
			RateLimitDelayMS: DefaultRateLimitDelayMS,
			TimeoutSeconds:   DefaultTimeoutSeconds,
			RetryProfile:     DefaultRetryProfile,
		},
		Logging: LoggingConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
			File:   logFile,
		},
		Flows: FlowsConfig{Production: []string{}, Sandbox: []string{}},
		CLI: CLIConfig{
			ShowProgressBar:    true,
			ShowDetailedOutput: true,
			ColorOutput:        true,
		},
		API: APIConfig{
			Version:        DefaultAPIVersion,
			TimeoutSeconds: DefaultAPITimeoutSecs,
		},
		Cache: CacheConfig{
			Enabled:    true,
			TTLSeconds: DefaultCacheTTLSeconds,
		},
	}
}

// LoadOptions customises Load.
type LoadOptions struct {
	// Path replaces the user config file when set. It must exist.
	Path string

	// WorkDir is where the project overlay is looked up. Defaults to the current directory.
	WorkDir string

	// LookupEnv resolves environment variables. Defaults to os.LookupEnv.
	LookupEnv func(string) (string, bool)
}

// Load builds a Config from every source except CLI flags.
// It does not validate; call Validate before connecting to Salesforce.
func Load(opts LoadOptions) (*Config, error) {
	if opts.LookupEnv == nil {
		opts.LookupEnv = os.LookupEnv
	}

	cfg := New()

	basePath := opts.Path
	if basePath == "" {
		userPath, err := UserConfigPath()
		if err == nil && fileExists(userPath) {
			basePath = userPath
		}
	} else if !fileExists(basePath) {
		return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, basePath)
	}

	if basePath != "" {
		if err := ShallowMergeYAML(cfg, basePath); err != nil {
			return nil, err
		}
	}

	workDir := opts.WorkDir
	if workDir == "" {
		if wd, err := os.Getwd(); err == nil {
			workDir = wd
		}
	}
	if workDir != "" {
		projectPath := filepath.Join(workDir, projectConfigSubdir, projectConfigFile)
		if fileExists(projectPath) {
			if err := ShallowMergeYAML(cfg, projectPath); err != nil {
				return nil, err
			}
		}
	}

	ExpandVariables(cfg, opts.LookupEnv)

	if err := ApplyEnv(cfg, opts.LookupEnv); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFile returns defaults merged with the config file at path only, without
// the project overlay or environment. An empty path means the user config file,
// which may be absent. It is used to edit a file without persisting overrides.
func LoadFile(path string) (*Config, error) {
	cfg := New()
	if path == "" {
		userPath, err := UserConfigPath()
		if err != nil {
			return nil, err
		}
		if !fileExists(userPath) {
			return cfg, nil
		}
		path = userPath
	}
	if err := ShallowMergeYAML(cfg, path); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ConfigDir returns the user configuration directory. SF_FLOW_HOME overrides it.
func ConfigDir() (string, error) {
	if home := os.Getenv("SF_FLOW_HOME"); home != "" {
		return home, nil
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user config directory: %w", err)
	}
	return filepath.Join(base, configDirName), nil
}

// UserConfigPath returns the path of the user config file.
func UserConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, configFileName), nil
}

// IsProduction reports whether the target org is production.
func (c *Config) IsProduction() bool {
	return !c.Auth.Sandbox
}

// IsSandbox reports whether the target org is a sandbox.
func (c *Config) IsSandbox() bool {
	return c.Auth.Sandbox
}

// Environment names the target org type.
func (c *Config) Environment() string {
	if c.Auth.Sandbox {
		return "sandbox"
	}
	return "production"
}

// EnvironmentFlows returns the flow list configured for the current environment.
func (c *Config) EnvironmentFlows() []string {
	if c.Auth.Sandbox {
		return c.Flows.Sandbox
	}
	return c.Flows.Production
}

// BatchConfig converts the batch settings into a processor configuration.
func (c *Config) BatchConfig() (batch.Config, error) {
	policy, err := batch.RetryPolicyByName(c.Batch.RetryProfile)
	if err != nil {
		return batch.Config{}, err
	}
	if c.Batch.MaxRetries != nil {
		policy.MaxRetries = *c.Batch.MaxRetries
	}
	if c.Batch.BaseDelayMS > 0 {
		policy.BaseDelay = time.Duration(c.Batch.BaseDelayMS) * time.Millisecond
	}
	if c.Batch.MaxDelayMS > 0 {
		policy.MaxDelay = time.Duration(c.Batch.MaxDelayMS) * time.Millisecond
	}
	if c.Batch.JitterFactor != nil {
		policy.JitterFactor = *c.Batch.JitterFactor
	}

	cfg := batch.Config{
		MaxConcurrent:  c.Batch.MaxConcurrent,
		RateLimitDelay: time.Duration(c.Batch.RateLimitDelayMS) * time.Millisecond,
		Timeout:        time.Duration(c.Batch.TimeoutSeconds) * time.Second,
		Retry:          policy,
	}
	if err = cfg.Validate(); err != nil {
		return batch.Config{}, err
	}
	return cfg, nil
}

// APITimeout returns the per-request HTTP timeout.
func (c *Config) APITimeout() time.Duration {
	return time.Duration(c.API.TimeoutSeconds) * time.Second
}

// CacheDir returns the listing cache directory.
func (c *Config) CacheDir() (string, error) {
	if c.Cache.Directory != "" {
		return c.Cache.Directory, nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "cache"), nil
}

// Save writes the config to path as YAML with credentials removed.
// If path is empty the user config path is used. It returns the written path.
func (c *Config) Save(path string) (string, error) {
	if path == "" {
		userPath, err := UserConfigPath()
		if err != nil {
			return "", err
		}
		path = userPath
	}

	clean := c.withSecrets(func(string) string { return "" })
	data, err := yaml.Marshal(&clean)
	if err != nil {
		return "", fmt.Errorf("marshalling config: %w", err)
	}
	if err = os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return "", fmt.Errorf("creating config directory: %w", err)
	}
	if err = os.WriteFile(path, data, 0o600); err != nil {
		return "", fmt.Errorf("writing config file %s: %w", path, err)
	}
	return path, nil
}

// Redacted returns a copy of the config with credentials masked, for display.
func (c *Config) Redacted() Config {
	return c.withSecrets(func(v string) string {
		if v == "" {
			return ""
		}
		return redactedValue
	})
}

func (c *Config) withSecrets(mask func(string) string) Config {
	clean := *c
	clean.Flows.Production = append([]string(nil), c.Flows.Production...)
	clean.Flows.Sandbox = append([]string(nil), c.Flows.Sandbox...)
	clean.Auth.PrivateKey = mask(c.Auth.PrivateKey)
	clean.Auth.ClientSecret = mask(c.Auth.ClientSecret)
	clean.Auth.Password = mask(c.Auth.Password)
	clean.Auth.SecurityToken = mask(c.Auth.SecurityToken)
	return clean
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
