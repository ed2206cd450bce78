package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Backend names.
const (
	BackendLocal      = "local"
	BackendContentful = "contentful"
)

// Config holds application configuration.
type Config struct {
	// Backend selects where entries and content live: "local" (SQLite in the base dir)
	// or "contentful" (Management API for edits, GraphQL Content API for rendering).
	Backend string `json:"backend,omitempty"`

	// SpaceID and Environment address the Contentful space.
	SpaceID     string `json:"space_id,omitempty"`
	Environment string `json:"environment,omitempty"`

	// AccessToken is the Content Delivery token used by the GraphQL client.
	AccessToken string `json:"access_token,omitempty"`

	// ManagementToken is the Content Management token used to read and write entries.
	ManagementToken string `json:"management_token,omitempty"`

	// Locale is the locale tag the layout field and block fields are read under.
	Locale string `json:"locale,omitempty"`

	// LayoutField is the entry field key holding the layout list.
	LayoutField string `json:"layout_field,omitempty"`

	// SaveDebounceMS is the quiet window before a layout edit is written back.
	SaveDebounceMS int `json:"save_debounce_ms,omitempty"`

	// SaveTimeoutMS bounds a single layout write to the CMS.
	SaveTimeoutMS int `json:"save_timeout_ms,omitempty"`

	// RequestsPerSecond throttles calls to the Contentful APIs. 0 means the default.
	RequestsPerSecond float64 `json:"requests_per_second,omitempty"`

	// RedisURL enables the content query cache when set.
	RedisURL string `json:"redis_url,omitempty"`

	// CacheTTLSeconds is how long cached query results live.
	CacheTTLSeconds int `json:"cache_ttl_seconds,omitempty"`

	// SiteURL is the public origin used for canonical URLs in page metadata.
	SiteURL string `json:"site_url,omitempty"`

	// CORSOrigins lists origins allowed to call the editor API (e.g. the CMS app frame).
	CORSOrigins []string `json:"cors_origins,omitempty"`

	// DBMaxOpenConns limits the maximum number of open database connections.
	// 0 means use sql.DB default (unlimited). Only set if you experience contention.
	DBMaxOpenConns int `json:"db_max_open_conns,omitempty"`

	// DBMaxIdleConns limits the maximum number of idle database connections.
	DBMaxIdleConns int `json:"db_max_idle_conns,omitempty"`

	// DisabledTools is a list of MCP tool names to exclude from registration.
	DisabledTools []string `json:"disabled_tools,omitempty"`

	// DisabledTypes is a list of tool type names to disable entirely.
	// Known types: "layout", "page". Unknown type names are logged as warnings.
	DisabledTypes []string `json:"disabled_types,omitempty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Backend:           BackendLocal,
		Environment:       "master",
		Locale:            "en-US",
		LayoutField:       "layoutConfig",
		SaveDebounceMS:    1000,
		SaveTimeoutMS:     30000,
		RequestsPerSecond: 7,
		CacheTTLSeconds:   60,
		SiteURL:           "https://your-domain.com",
	}
}

// SaveDebounce returns the save quiet window as a duration.
func (c *Config) SaveDebounce() time.Duration {
	return time.Duration(c.SaveDebounceMS) * time.Millisecond
}

// SaveTimeout returns the per-write bound as a duration.
func (c *Config) SaveTimeout() time.Duration {
	return time.Duration(c.SaveTimeoutMS) * time.Millisecond
}

// CacheTTL returns the cache lifetime as a duration.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

// Load loads configuration from baseDir/config.json and applies environment overrides.
// Returns default config if the file doesn't exist.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.tessera.
func Load(baseDir string) (*Config, error) {
	cfg, err := loadFile(filepath.Join(baseDir, "config.json"))
	if err != nil {
		return nil, err
	}
	return ApplyEnv(cfg, os.Getenv), nil
}

// LoadWithRepo loads configuration from both global (~/.tessera) and repo (.tessera) directories.
// Repo config is found by walking upward from startDir to find the nearest .tessera/config.json.
// Repo config takes precedence for scalar values; arrays are merged (deduplicated).
// Environment variables win over both.
func LoadWithRepo(globalDir, startDir string) (*Config, error) {
	global, err := loadFileRaw(filepath.Join(globalDir, "config.json"))
	if err != nil {
		return nil, err
	}

	repo, err := loadFileRaw(FindRepoConfig(startDir))
	if err != nil {
		return nil, err
	}

	return ApplyEnv(Merge(Merge(DefaultConfig(), global), repo), os.Getenv), nil
}

// FindRepoConfig walks upward from startDir to find the nearest .tessera/config.json.
// Returns the path if found, or empty string if not found.
func FindRepoConfig(startDir string) string {
	dir := startDir
	for {
		configPath := filepath.Join(dir, ".tessera", "config.json")
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

// ApplyEnv overlays environment variables onto cfg. getenv is injected for tests.
func ApplyEnv(cfg *Config, getenv func(string) string) *Config {
	if v := getenv("TESSERA_BACKEND"); v != "" {
		cfg.Backend = v
	}
	if v := getenv("CONTENTFUL_SPACE_ID"); v != "" {
		cfg.SpaceID = v
	}
	if v := getenv("CONTENTFUL_ENVIRONMENT"); v != "" {
		cfg.Environment = v
	}
	if v := getenv("CONTENTFUL_ACCESS_TOKEN"); v != "" {
		cfg.AccessToken = v
	}
	if v := getenv("CONTENTFUL_MANAGEMENT_TOKEN"); v != "" {
		cfg.ManagementToken = v
	}
	if v := getenv("REDIS_URL"); v != "" {
		cfg.RedisURL = v
	}
	if v := getenv("TESSERA_SITE_URL"); v != "" {
		cfg.SiteURL = v
	}
	if v := getenv("TESSERA_SAVE_DEBOUNCE_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil && ms > 0 {
			cfg.SaveDebounceMS = ms
		}
	}
	return cfg
}

// Validate checks that the selected backend has what it needs.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendLocal:
		return nil
	case BackendContentful:
		var missing []string
		if c.SpaceID == "" {
			missing = append(missing, "space_id")
		}
		if c.AccessToken == "" {
			missing = append(missing, "access_token")
		}
		if c.ManagementToken == "" {
			missing = append(missing, "management_token")
		}
		if len(missing) > 0 {
			return errors.New("contentful backend requires: " + strings.Join(missing, ", "))
		}
		return nil
	default:
		return errors.New("backend must be one of: local, contentful")
	}
}

// loadFileRaw loads configuration from a specific file path.
// Returns zero-valued config if the file doesn't exist (not defaults).
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

// loadFile loads configuration from a specific file path.
// Returns default config if the file doesn't exist.
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
		Backend:           pickString(overlay.Backend, base.Backend),
		SpaceID:           pickString(overlay.SpaceID, base.SpaceID),
		Environment:       pickString(overlay.Environment, base.Environment),
		AccessToken:       pickString(overlay.AccessToken, base.AccessToken),
		ManagementToken:   pickString(overlay.ManagementToken, base.ManagementToken),
		Locale:            pickString(overlay.Locale, base.Locale),
		LayoutField:       pickString(overlay.LayoutField, base.LayoutField),
		RedisURL:          pickString(overlay.RedisURL, base.RedisURL),
		SiteURL:           pickString(overlay.SiteURL, base.SiteURL),
		SaveDebounceMS:    pickInt(overlay.SaveDebounceMS, base.SaveDebounceMS),
		SaveTimeoutMS:     pickInt(overlay.SaveTimeoutMS, base.SaveTimeoutMS),
		CacheTTLSeconds:   pickInt(overlay.CacheTTLSeconds, base.CacheTTLSeconds),
		DBMaxOpenConns:    pickInt(overlay.DBMaxOpenConns, base.DBMaxOpenConns),
		DBMaxIdleConns:    pickInt(overlay.DBMaxIdleConns, base.DBMaxIdleConns),
		RequestsPerSecond: overlay.RequestsPerSecond,
	}
	if result.RequestsPerSecond == 0 {
		result.RequestsPerSecond = base.RequestsPerSecond
	}

	result.CORSOrigins = mergeStringSlice(base.CORSOrigins, overlay.CORSOrigins)
	result.DisabledTools = mergeStringSlice(base.DisabledTools, overlay.DisabledTools)
	result.DisabledTypes = mergeStringSlice(base.DisabledTypes, overlay.DisabledTypes)

	return result
}

func pickString(overlay, base string) string {
	if strings.TrimSpace(overlay) != "" {
		return overlay
	}
	return base
}

func pickInt(overlay, base int) int {
	if overlay != 0 {
		return overlay
	}
	return base
}

// mergeStringSlice combines two slices, trims whitespace, and removes duplicates.
func mergeStringSlice(a, b []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(a)+len(b))

	for _, s := range append(append([]string{}, a...), b...) {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}

	if len(result) == 0 {
		return nil
	}
	return result
}
