package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Backend names accepted in Config.Backend.
const (
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// Config holds application configuration.
type Config struct {
	// Backend selects the persistence backend: "sqlite" (default), "redis" or "memory".
	// The memory backend keeps nothing between runs.
	Backend string `json:"backend,omitempty"`

	RedisAddr             string `json:"redis_addr,omitempty"`
	RedisPassword         string `json:"redis_password,omitempty"`
	RedisDB               int    `json:"redis_db,omitempty"`
	RedisKeyPrefix        string `json:"redis_key_prefix,omitempty"`
	RedisConnectTimeoutMs int    `json:"redis_connect_timeout_ms,omitempty"`

	// LogLevel is one of debug, info, warn, error. Logs go to stderr.
	LogLevel  string `json:"log_level,omitempty"`
	PrettyLog bool   `json:"pretty_log,omitempty"`

	// PersistTimeoutMs bounds a single persistence call including retries.
	PersistTimeoutMs int `json:"persist_timeout_ms,omitempty"`

	// PersistRetries is the number of extra attempts after a failed write.
	PersistRetries      int `json:"persist_retries,omitempty"`
	PersistRetryDelayMs int `json:"persist_retry_delay_ms,omitempty"`

	// AllowedPaths is an allowlist of directories for import/export operations.
	// Paths outside ~/.promptkeep/exports require either being in this list or AllowUnsafePaths=true.
	// Paths should be absolute (relative paths are ignored).
	AllowedPaths []string `json:"allowed_paths,omitempty"`

	// AllowUnsafePaths disables directory restrictions for import/export.
	// Symlink and extension checks still apply.
	AllowUnsafePaths bool `json:"allow_unsafe_paths,omitempty"`

	// DBMaxOpenConns limits the maximum number of open database connections.
	// 0 means use sql.DB default (unlimited).
	DBMaxOpenConns int `json:"db_max_open_conns,omitempty"`

	// DBMaxIdleConns limits the maximum number of idle database connections.
	DBMaxIdleConns int `json:"db_max_idle_conns,omitempty"`

	// DisabledTools is a list of MCP tool names to exclude from registration.
	// Unknown tool names are logged as warnings.
	DisabledTools []string `json:"disabled_tools,omitempty"`

	// DisabledTypes is a list of type names to disable entirely.
	// Known types: "prompt", "category", "library".
	DisabledTypes []string `json:"disabled_types,omitempty"`

	HTTPBind string `json:"http_bind,omitempty"`
	HTTPPort int    `json:"http_port,omitempty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Backend:               BackendSQLite,
		RedisAddr:             "localhost:6379",
		RedisKeyPrefix:        "promptkeep",
		RedisConnectTimeoutMs: 10000,
		LogLevel:              "warn",
		PersistTimeoutMs:      5000,
		PersistRetries:        2,
		PersistRetryDelayMs:   50,
		HTTPBind:              "127.0.0.1",
		HTTPPort:              8787,
	}
}

// BaseDir returns the promptkeep home directory: $PROMPTKEEP_HOME if set,
// otherwise ~/.promptkeep.
func BaseDir() (string, error) {
	if dir := strings.TrimSpace(os.Getenv("PROMPTKEEP_HOME")); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".promptkeep"), nil
}

// Load loads configuration from baseDir/config.json.
// Returns default config if the file doesn't exist.
func Load(baseDir string) (*Config, error) {
	return loadFile(filepath.Join(baseDir, "config.json"))
}

// LoadWithProject loads the global config and the nearest .promptkeep/config.json
// found by walking upward from startDir. Project values win for scalars; arrays are merged.
func LoadWithProject(globalDir, startDir string) (*Config, error) {
	global, err := loadFileRaw(filepath.Join(globalDir, "config.json"))
	if err != nil {
		return nil, err
	}

	project, err := loadFileRaw(FindProjectConfig(startDir))
	if err != nil {
		return nil, err
	}

	return Merge(Merge(DefaultConfig(), global), project), nil
}

// FindProjectConfig walks upward from startDir to find the nearest .promptkeep/config.json.
// Returns the path if found, or empty string if not found.
func FindProjectConfig(startDir string) string {
	if startDir == "" {
		return ""
	}
	dir := startDir
	for {
		configPath := filepath.Join(dir, ".promptkeep", "config.json")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// PersistTimeout returns PersistTimeoutMs as a duration.
func (c *Config) PersistTimeout() time.Duration {
	return time.Duration(c.PersistTimeoutMs) * time.Millisecond
}

// PersistRetryDelay returns PersistRetryDelayMs as a duration.
func (c *Config) PersistRetryDelay() time.Duration {
	return time.Duration(c.PersistRetryDelayMs) * time.Millisecond
}

// RedisConnectTimeout returns RedisConnectTimeoutMs as a duration.
func (c *Config) RedisConnectTimeout() time.Duration {
	return time.Duration(c.RedisConnectTimeoutMs) * time.Millisecond
}

// loadFileRaw returns a zero-valued config (not defaults) if the file doesn't exist.
func loadFileRaw(configPath string) (*Config, error) {
	if configPath == "" {
		return &Config{}, nil
	}
	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, err
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func loadFile(configPath string) (*Config, error) {
	cfg, err := loadFileRaw(configPath)
	if err != nil {
		return nil, err
	}
	return Merge(DefaultConfig(), cfg), nil
}

// Merge combines base and overlay configs.
// Overlay values take precedence for scalars; arrays are merged and deduplicated.
func Merge(base, overlay *Config) *Config {
	result := &Config{
		Backend:               pickString(base.Backend, overlay.Backend),
		RedisAddr:             pickString(base.RedisAddr, overlay.RedisAddr),
		RedisPassword:         pickString(base.RedisPassword, overlay.RedisPassword),
		RedisDB:               pickInt(base.RedisDB, overlay.RedisDB),
		RedisKeyPrefix:        pickString(base.RedisKeyPrefix, overlay.RedisKeyPrefix),
		RedisConnectTimeoutMs: pickInt(base.RedisConnectTimeoutMs, overlay.RedisConnectTimeoutMs),
		LogLevel:              pickString(base.LogLevel, overlay.LogLevel),
		PersistTimeoutMs:      pickInt(base.PersistTimeoutMs, overlay.PersistTimeoutMs),
		PersistRetries:        pickInt(base.PersistRetries, overlay.PersistRetries),
		PersistRetryDelayMs:   pickInt(base.PersistRetryDelayMs, overlay.PersistRetryDelayMs),
		DBMaxOpenConns:        pickInt(base.DBMaxOpenConns, overlay.DBMaxOpenConns),
		DBMaxIdleConns:        pickInt(base.DBMaxIdleConns, overlay.DBMaxIdleConns),
		HTTPBind:              pickString(base.HTTPBind, overlay.HTTPBind),
		HTTPPort:              pickInt(base.HTTPPort, overlay.HTTPPort),
	}

	// Booleans: overlay wins if true, else base
	result.PrettyLog = base.PrettyLog || overlay.PrettyLog
	result.AllowUnsafePaths = base.AllowUnsafePaths || overlay.AllowUnsafePaths

	result.AllowedPaths = mergeStringSlice(base.AllowedPaths, overlay.AllowedPaths)
	result.DisabledTools = mergeStringSlice(base.DisabledTools, overlay.DisabledTools)
	result.DisabledTypes = mergeStringSlice(base.DisabledTypes, overlay.DisabledTypes)

	return result
}

func pickString(base, overlay string) string {
	if overlay != "" {
		return overlay
	}
	return base
}

func pickInt(base, overlay int) int {
	if overlay != 0 {
		return overlay
	}
	return base
}

// mergeStringSlice combines two slices, trims whitespace, and removes duplicates.
func mergeStringSlice(a, b []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(a)+len(b))

	for _, list := range [][]string{a, b} {
		for _, s := range list {
			s = strings.TrimSpace(s)
			if s != "" && !seen[s] {
				seen[s] = true
				result = append(result, s)
			}
		}
	}

	if len(result) == 0 {
		return nil
	}
	return result
}
