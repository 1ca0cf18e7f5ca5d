// Package config provides configuration loading and management for the catalog sync server.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/stacklok/catalog-sync-server/internal/telemetry"
)

// EnvPrefix is the prefix used for environment variables read through viper.
const EnvPrefix = "CATALOG_SYNC"

const (
	// StorageTypeDatabase persists products and executions in PostgreSQL
	StorageTypeDatabase = "database"

	// StorageTypeMemory keeps products and executions in process memory
	StorageTypeMemory = "memory"
)

const (
	// ProviderRP is the RP retail ERP integration
	ProviderRP = "rp"

	// ProviderCresceVendas is the CresceVendas promotions platform
	ProviderCresceVendas = "crescevendas"
)

const (
	// ChannelTypeWebhook delivers notifications as a JSON POST
	ChannelTypeWebhook = "webhook"

	// ChannelTypeLog writes notifications to the structured log
	ChannelTypeLog = "log"
)

const (
	// CacheTypeNone disables fetch caching
	CacheTypeNone = "none"

	// CacheTypeMemory caches fetched payloads in process memory
	CacheTypeMemory = "memory"

	// CacheTypeRedis caches fetched payloads in Redis
	CacheTypeRedis = "redis"
)

const (
	// DefaultProductLimit is used when a provider does not state a limit
	DefaultProductLimit = 10

	// DefaultFetchTimeout bounds a single catalog fetch when timeoutMinutes is unset
	DefaultFetchTimeout = 5 * time.Minute

	// DefaultFetchRetries is the number of attempts for transient fetch failures
	DefaultFetchRetries = 3

	// DefaultCacheTTL is how long a fetched payload may be reused
	DefaultCacheTTL = 10 * time.Minute
)

// Option defines the interface for configuration options
type Option func(*loaderConfig) error

// loaderConfig defines the configuration for loading a configuration
type loaderConfig struct {
	path string
}

// WithConfigPath loads configuration from a YAML file
func WithConfigPath(path string) Option {
	return func(cfg *loaderConfig) error {
		if path == "" {
			return fmt.Errorf("path is required")
		}

		// Resolve symlinks to prevent symlink attacks.
		// Note that this calls filepath.Clean internally.
		realPath, err := filepath.EvalSymlinks(path)
		if err != nil {
			return fmt.Errorf("failed to evaluate symlinks: %w", err)
		}

		if !filepath.IsAbs(realPath) {
			if !filepath.IsLocal(realPath) {
				return fmt.Errorf("path is not local or contains invalid traversal: %s", path)
			}
		}

		cfg.path = realPath
		return nil
	}
}

// Config represents the root configuration structure
type Config struct {
	Storage              StorageConfig               `yaml:"storage"`
	Database             *DatabaseConfig             `yaml:"database,omitempty"`
	Sync                 SyncDefaults                `yaml:"sync,omitempty"`
	FetchCache           *FetchCacheConfig           `yaml:"fetchCache,omitempty"`
	Integrations         []IntegrationConfig         `yaml:"integrations"`
	NotificationChannels []NotificationChannelConfig `yaml:"notificationChannels,omitempty"`
	SyncConfigurations   []SyncConfiguration         `yaml:"syncConfigurations"`
	Telemetry            *telemetry.Config           `yaml:"telemetry,omitempty"`
}

// StorageConfig selects where products and executions are kept
type StorageConfig struct {
	// Type is either "database" or "memory". Defaults to "memory".
	Type string `yaml:"type,omitempty"`
}

// SyncDefaults holds engine-wide defaults applied when a sync configuration
// does not override them.
type SyncDefaults struct {
	// DefaultLimit is the product limit used when the provider states none
	DefaultLimit int `yaml:"defaultLimit,omitempty"`

	// FetchTimeout is the per-fetch timeout (e.g., "5m") when timeoutMinutes is unset
	FetchTimeout string `yaml:"fetchTimeout,omitempty"`

	// FetchRetries is the number of attempts made for transient upstream failures
	FetchRetries int `yaml:"fetchRetries,omitempty"`
}

// FetchCacheConfig configures reuse of recently fetched catalogs
type FetchCacheConfig struct {
	Type  string       `yaml:"type"`
	TTL   string       `yaml:"ttl,omitempty"`
	Redis *RedisConfig `yaml:"redis,omitempty"`
}

// RedisConfig defines Redis connection settings for the fetch cache
type RedisConfig struct {
	Address     string `yaml:"address"`
	DB          int    `yaml:"db,omitempty"`
	PasswordEnv string `yaml:"passwordEnv,omitempty"`
	KeyPrefix   string `yaml:"keyPrefix,omitempty"`
}

// IntegrationConfig describes an external commerce system
type IntegrationConfig struct {
	// ID is the identifier sync configurations refer to
	ID string `yaml:"id"`

	// Provider selects the fetch and normalization adapter (rp, crescevendas)
	Provider string `yaml:"provider"`

	// BaseURL is the root of the provider's HTTP API
	BaseURL string `yaml:"baseURL"`

	// TokenFile is the path to a file containing the bearer token
	TokenFile string `yaml:"tokenFile,omitempty"`

	// TokenEnv names the environment variable holding the bearer token
	TokenEnv string `yaml:"tokenEnv,omitempty"`
}

// NotificationChannelConfig describes where execution reports are sent
type NotificationChannelConfig struct {
	ID   string `yaml:"id"`
	Type string `yaml:"type"`
	URL  string `yaml:"url,omitempty"`
}

// SyncConfiguration binds a source integration to a set of stores
type SyncConfiguration struct {
	ID                    string         `yaml:"id"`
	SourceIntegrationID   string         `yaml:"sourceIntegrationId"`
	TargetIntegrationID   string         `yaml:"targetIntegrationId,omitempty"`
	NotificationChannelID string         `yaml:"notificationChannelId,omitempty"`
	StoreIDs              []int64        `yaml:"storeIds"`
	Schedule              ScheduleConfig `yaml:"schedule,omitempty"`
	Options               SyncOptions    `yaml:"options,omitempty"`
}

// ScheduleConfig is carried for collaborators that trigger runs; the engine does not parse it
type ScheduleConfig struct {
	Enabled bool   `yaml:"enabled"`
	Cron    string `yaml:"cron,omitempty"`
}

// SyncOptions tunes a single run
type SyncOptions struct {
	// ForceSync bypasses the fetch cache
	ForceSync bool `yaml:"forceSync,omitempty"`

	// SkipComparison replaces without computing added/updated/removed statistics
	SkipComparison bool `yaml:"skipComparison,omitempty"`

	// BatchSize is the number of stores synchronized concurrently
	BatchSize int `yaml:"batchSize,omitempty"`

	// TimeoutMinutes bounds each catalog fetch
	TimeoutMinutes int `yaml:"timeoutMinutes,omitempty"`
}

// UniqueStoreIDs returns the configured stores with duplicates removed,
// keeping the order of first occurrence.
func (s *SyncConfiguration) UniqueStoreIDs() []int64 {
	seen := make(map[int64]struct{}, len(s.StoreIDs))
	out := make([]int64, 0, len(s.StoreIDs))
	for _, id := range s.StoreIDs {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// Concurrency returns how many store pipelines may run at once
func (o SyncOptions) Concurrency() int {
	if o.BatchSize < 1 {
		return 1
	}
	return o.BatchSize
}

// FetchTimeout returns the per-fetch timeout, falling back to def
func (o SyncOptions) FetchTimeout(def time.Duration) time.Duration {
	if o.TimeoutMinutes > 0 {
		return time.Duration(o.TimeoutMinutes) * time.Minute
	}
	return def
}

// GetDefaultLimit returns the configured default limit or DefaultProductLimit
func (s SyncDefaults) GetDefaultLimit() int {
	if s.DefaultLimit <= 0 {
		return DefaultProductLimit
	}
	return s.DefaultLimit
}

// GetFetchTimeout returns the parsed fetch timeout or DefaultFetchTimeout
func (s SyncDefaults) GetFetchTimeout() time.Duration {
	if s.FetchTimeout == "" {
		return DefaultFetchTimeout
	}
	d, err := time.ParseDuration(s.FetchTimeout)
	if err != nil || d <= 0 {
		return DefaultFetchTimeout
	}
	return d
}

// GetFetchRetries returns the configured attempt count or DefaultFetchRetries
func (s SyncDefaults) GetFetchRetries() int {
	if s.FetchRetries <= 0 {
		return DefaultFetchRetries
	}
	return s.FetchRetries
}

// GetType returns the cache type, treating a nil config as CacheTypeNone
func (f *FetchCacheConfig) GetType() string {
	if f == nil || f.Type == "" {
		return CacheTypeNone
	}
	return f.Type
}

// GetTTL returns the parsed cache TTL or DefaultCacheTTL
func (f *FetchCacheConfig) GetTTL() time.Duration {
	if f == nil || f.TTL == "" {
		return DefaultCacheTTL
	}
	d, err := time.ParseDuration(f.TTL)
	if err != nil || d <= 0 {
		return DefaultCacheTTL
	}
	return d
}

// GetToken returns the integration's bearer token using the following priority:
// 1. Read from TokenFile if specified
// 2. Read from the environment variable named by TokenEnv
func (i *IntegrationConfig) GetToken() (string, error) {
	if i.TokenFile != "" {
		data, err := os.ReadFile(filepath.Clean(i.TokenFile))
		if err != nil {
			return "", fmt.Errorf("failed to read token from file %s: %w", i.TokenFile, err)
		}
		return strings.TrimSpace(string(data)), nil
	}

	if i.TokenEnv != "" {
		if token := os.Getenv(i.TokenEnv); token != "" {
			return token, nil
		}
	}

	return "", fmt.Errorf("no token configured for integration %s", i.ID)
}

// DatabaseConfig defines database connection settings
type DatabaseConfig struct {
	// Host is the database server hostname or IP address
	Host string `yaml:"host"`

	// Port is the database server port
	Port int `yaml:"port"`

	// User is the database username
	User string `yaml:"user"`

	// PasswordFile is the path to a file containing the database password
	// The file should contain only the password with optional trailing whitespace
	PasswordFile string `yaml:"passwordFile,omitempty"`

	// Database is the database name
	Database string `yaml:"database"`

	// SSLMode is the SSL mode for the connection (disable, require, verify-ca, verify-full)
	SSLMode string `yaml:"sslMode,omitempty"`

	// MaxOpenConns is the maximum number of open connections to the database
	MaxOpenConns int32 `yaml:"maxOpenConns,omitempty"`

	// MaxIdleConns is the maximum number of idle connections in the pool
	MaxIdleConns int32 `yaml:"maxIdleConns,omitempty"`

	// ConnMaxLifetime is the maximum lifetime of a connection (e.g., "1h", "30m")
	ConnMaxLifetime string `yaml:"connMaxLifetime,omitempty"`
}

// GetPassword returns the database password using the following priority:
// 1. Read from PasswordFile if specified
// 2. Read from CATALOG_SYNC_DATABASE_PASSWORD environment variable
//
// The password from file will have leading/trailing whitespace trimmed.
func (d *DatabaseConfig) GetPassword() (string, error) {
	if d.PasswordFile != "" {
		cleanPath := filepath.Clean(d.PasswordFile)

		data, err := os.ReadFile(cleanPath)
		if err != nil {
			return "", fmt.Errorf("failed to read password from file %s: %w", d.PasswordFile, err)
		}

		return strings.TrimSpace(string(data)), nil
	}

	if envPassword := os.Getenv(EnvPrefix + "_DATABASE_PASSWORD"); envPassword != "" {
		return envPassword, nil
	}

	return "", fmt.Errorf(
		"no database password configured: set passwordFile or %s_DATABASE_PASSWORD environment variable", EnvPrefix,
	)
}

// GetConnectionString builds a PostgreSQL connection string with proper password handling.
// The password is URL-escaped to handle special characters safely.
func (d *DatabaseConfig) GetConnectionString() (string, error) {
	password, err := d.GetPassword()
	if err != nil {
		return "", err
	}

	sslMode := d.SSLMode
	if sslMode == "" {
		sslMode = "require"
	}

	connString := fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User,
		url.QueryEscape(password),
		d.Host,
		d.Port,
		d.Database,
		sslMode,
	)

	return connString, nil
}

// LoadConfig loads and parses configuration from a YAML file
func LoadConfig(opts ...Option) (*Config, error) {
	loaderCfg := &loaderConfig{}
	for _, opt := range opts {
		if err := opt(loaderCfg); err != nil {
			return nil, err
		}
	}

	if loaderCfg.path == "" {
		return nil, fmt.Errorf("path is required")
	}

	data, err := os.ReadFile(loaderCfg.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

// Parse decodes and validates a YAML configuration document
func Parse(data []byte) (*Config, error) {
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// GetStorageType returns the storage type, using memory if not specified
func (c *Config) GetStorageType() string {
	if c.Storage.Type == "" {
		return StorageTypeMemory
	}
	return c.Storage.Type
}

// FindSyncConfiguration returns the sync configuration with the given id
func (c *Config) FindSyncConfiguration(id string) (*SyncConfiguration, bool) {
	for i := range c.SyncConfigurations {
		if c.SyncConfigurations[i].ID == id {
			return &c.SyncConfigurations[i], true
		}
	}
	return nil, false
}

// FindIntegration returns the integration with the given id
func (c *Config) FindIntegration(id string) (*IntegrationConfig, bool) {
	for i := range c.Integrations {
		if c.Integrations[i].ID == id {
			return &c.Integrations[i], true
		}
	}
	return nil, false
}

// FindNotificationChannel returns the notification channel with the given id
func (c *Config) FindNotificationChannel(id string) (*NotificationChannelConfig, bool) {
	for i := range c.NotificationChannels {
		if c.NotificationChannels[i].ID == id {
			return &c.NotificationChannels[i], true
		}
	}
	return nil, false
}

func (c *Config) validate() error {
	if c == nil {
		return fmt.Errorf("config cannot be nil")
	}

	switch c.GetStorageType() {
	case StorageTypeMemory:
	case StorageTypeDatabase:
		if c.Database == nil {
			return fmt.Errorf("database configuration is required when storage.type is %q", StorageTypeDatabase)
		}
	default:
		return fmt.Errorf("storage.type must be one of %q or %q, got %q",
			StorageTypeMemory, StorageTypeDatabase, c.Storage.Type)
	}

	if err := validateDuration("sync.fetchTimeout", c.Sync.FetchTimeout); err != nil {
		return err
	}

	if err := c.validateFetchCache(); err != nil {
		return err
	}

	integrationIDs := make(map[string]struct{}, len(c.Integrations))
	for i, integ := range c.Integrations {
		if err := validateIntegration(&integ, i); err != nil {
			return err
		}
		if _, dup := integrationIDs[integ.ID]; dup {
			return fmt.Errorf("integrations[%d]: duplicate id %q", i, integ.ID)
		}
		integrationIDs[integ.ID] = struct{}{}
	}

	channelIDs := make(map[string]struct{}, len(c.NotificationChannels))
	for i, ch := range c.NotificationChannels {
		if err := validateChannel(&ch, i); err != nil {
			return err
		}
		if _, dup := channelIDs[ch.ID]; dup {
			return fmt.Errorf("notificationChannels[%d]: duplicate id %q", i, ch.ID)
		}
		channelIDs[ch.ID] = struct{}{}
	}

	syncIDs := make(map[string]struct{}, len(c.SyncConfigurations))
	for i, sc := range c.SyncConfigurations {
		prefix := fmt.Sprintf("syncConfigurations[%d]", i)
		if sc.ID == "" {
			return fmt.Errorf("%s: id is required", prefix)
		}
		if _, dup := syncIDs[sc.ID]; dup {
			return fmt.Errorf("%s: duplicate id %q", prefix, sc.ID)
		}
		syncIDs[sc.ID] = struct{}{}

		if _, ok := integrationIDs[sc.SourceIntegrationID]; !ok {
			return fmt.Errorf("%s: unknown sourceIntegrationId %q", prefix, sc.SourceIntegrationID)
		}
		if sc.TargetIntegrationID != "" {
			if _, ok := integrationIDs[sc.TargetIntegrationID]; !ok {
				return fmt.Errorf("%s: unknown targetIntegrationId %q", prefix, sc.TargetIntegrationID)
			}
		}
		if sc.NotificationChannelID != "" {
			if _, ok := channelIDs[sc.NotificationChannelID]; !ok {
				return fmt.Errorf("%s: unknown notificationChannelId %q", prefix, sc.NotificationChannelID)
			}
		}
		for _, storeID := range sc.StoreIDs {
			if storeID <= 0 {
				return fmt.Errorf("%s: store ids must be positive, got %d", prefix, storeID)
			}
		}
		if sc.Options.BatchSize < 0 || sc.Options.TimeoutMinutes < 0 {
			return fmt.Errorf("%s: batchSize and timeoutMinutes cannot be negative", prefix)
		}
		if sc.Schedule.Enabled && strings.TrimSpace(sc.Schedule.Cron) == "" {
			return fmt.Errorf("%s: schedule.cron is required when the schedule is enabled", prefix)
		}
	}

	if err := c.Telemetry.Validate(); err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}

	return nil
}

func (c *Config) validateFetchCache() error {
	switch c.FetchCache.GetType() {
	case CacheTypeNone, CacheTypeMemory:
	case CacheTypeRedis:
		if c.FetchCache.Redis == nil || c.FetchCache.Redis.Address == "" {
			return fmt.Errorf("fetchCache.redis.address is required when fetchCache.type is %q", CacheTypeRedis)
		}
	default:
		return fmt.Errorf("fetchCache.type must be one of none, memory or redis, got %q", c.FetchCache.Type)
	}
	if c.FetchCache != nil {
		return validateDuration("fetchCache.ttl", c.FetchCache.TTL)
	}
	return nil
}

func validateIntegration(integ *IntegrationConfig, index int) error {
	prefix := fmt.Sprintf("integrations[%d]", index)
	if integ.ID == "" {
		return fmt.Errorf("%s: id is required", prefix)
	}
	switch integ.Provider {
	case ProviderRP, ProviderCresceVendas:
	default:
		return fmt.Errorf("%s: unsupported provider %q", prefix, integ.Provider)
	}
	if integ.BaseURL == "" {
		return fmt.Errorf("%s: baseURL is required", prefix)
	}
	u, err := url.Parse(integ.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("%s: baseURL must be an http(s) URL", prefix)
	}
	return nil
}

func validateChannel(ch *NotificationChannelConfig, index int) error {
	prefix := fmt.Sprintf("notificationChannels[%d]", index)
	if ch.ID == "" {
		return fmt.Errorf("%s: id is required", prefix)
	}
	switch ch.Type {
	case ChannelTypeLog:
	case ChannelTypeWebhook:
		if ch.URL == "" {
			return fmt.Errorf("%s: url is required for webhook channels", prefix)
		}
	default:
		return fmt.Errorf("%s: unsupported channel type %q", prefix, ch.Type)
	}
	return nil
}

func validateDuration(field, value string) error {
	if value == "" {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("%s: invalid duration %q: %w", field, value, err)
	}
	if d <= 0 {
		return fmt.Errorf("%s: duration must be positive", field)
	}
	return nil
}
