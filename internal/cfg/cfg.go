package cfg

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"gemscope/internal/common"
)

type Settings struct {
	DataPath      string
	BlobDir       string
	BlobBucket    string
	MetaDBPath    string
	WarehousePath string

	APIPort       int
	MetricsPort   int
	PublicBaseURL string

	SignSecret  string
	UploadTTL   time.Duration
	DownloadTTL time.Duration

	AuthSecret string
	APIKeys    []string
	TokenTTL   time.Duration

	RegistryBaseURL string
	RegistryAppID   string
	RegistryToken   string
	RegistryTimeout time.Duration

	OptimizerSamples int
	OptimizerSeed    int64
	SurfacePoints    int

	ModelCacheSize int
	ModelCacheTTL  time.Duration

	JobWorkers   int
	JobQueueSize int
	JobRetention time.Duration

	RequestTimeout time.Duration
	RateLimitRPS   int
	CORSOrigins    []string
	LogLevel       string
}

// RegistryEnabled reports whether the hosted metadata mirror is configured.
func (s *Settings) RegistryEnabled() bool {
	return s.RegistryAppID != "" && s.RegistryToken != ""
}

type ConfigFile struct {
	Server struct {
		APIPort        int      `yaml:"apiPort"`
		MetricsPort    int      `yaml:"metricsPort"`
		PublicBaseURL  string   `yaml:"publicBaseURL"`
		RequestTimeout string   `yaml:"requestTimeout"`
		RateLimitRPS   int      `yaml:"rateLimitRPS"`
		CORSOrigins    []string `yaml:"corsOrigins"`
	} `yaml:"server"`

	Storage struct {
		DataPath      string `yaml:"dataPath"`
		BlobDir       string `yaml:"blobDir"`
		BlobBucket    string `yaml:"blobBucket"`
		MetaDBPath    string `yaml:"metaDBPath"`
		WarehousePath string `yaml:"warehousePath"`
	} `yaml:"storage"`

	Auth struct {
		SignSecret  string   `yaml:"signSecret"`
		AuthSecret  string   `yaml:"authSecret"`
		APIKeys     []string `yaml:"apiKeys"`
		TokenTTL    string   `yaml:"tokenTTL"`
		UploadTTL   string   `yaml:"uploadTTL"`
		DownloadTTL string   `yaml:"downloadTTL"`
	} `yaml:"auth"`

	Registry struct {
		BaseURL string `yaml:"baseURL"`
		AppID   string `yaml:"appID"`
		Token   string `yaml:"token"`
		Timeout string `yaml:"timeout"`
	} `yaml:"registry"`

	Optimizer struct {
		Samples int   `yaml:"samples"`
		Seed    int64 `yaml:"seed"`
	} `yaml:"optimizer"`

	Surface struct {
		Points int `yaml:"points"`
	} `yaml:"surface"`

	Models struct {
		CacheSize int    `yaml:"cacheSize"`
		CacheTTL  string `yaml:"cacheTTL"`
	} `yaml:"models"`

	Jobs struct {
		Workers   int    `yaml:"workers"`
		QueueSize int    `yaml:"queueSize"`
		Retention string `yaml:"retention"`
	} `yaml:"jobs"`

	System struct {
		LogLevel string `yaml:"logLevel"`
	} `yaml:"system"`
}

func Load() (Settings, error) {
	_ = godotenv.Load()

	// Try to load from YAML file first
	if configPath := os.Getenv(common.EnvConfigPath); configPath != "" {
		return loadFromYAML(configPath)
	}

	// Fallback to environment variables
	return loadFromEnv()
}

func loadFromYAML(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config ConfigFile
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Settings{}, fmt.Errorf("failed to parse config file: %w", err)
	}

	settings := Settings{
		DataPath:      getEnvOrDefault(common.EnvDataPath, stringOrDefault(config.Storage.DataPath, common.DefaultDataPath)),
		BlobDir:       getEnvOrDefault(common.EnvBlobDir, config.Storage.BlobDir),
		BlobBucket:    getEnvOrDefault(common.EnvBlobBucket, stringOrDefault(config.Storage.BlobBucket, common.DefaultBlobBucket)),
		MetaDBPath:    getEnvOrDefault(common.EnvMetaDBPath, config.Storage.MetaDBPath),
		WarehousePath: getEnvOrDefault(common.EnvWarehousePath, config.Storage.WarehousePath),

		APIPort:       getIntFromEnvOrConfig(common.EnvAPIPort, config.Server.APIPort, common.DefaultAPIPort),
		MetricsPort:   getIntFromEnvOrConfig(common.EnvMetricsPort, config.Server.MetricsPort, common.DefaultMetricsPort),
		PublicBaseURL: getEnvOrDefault(common.EnvPublicBaseURL, stringOrDefault(config.Server.PublicBaseURL, common.DefaultPublicBaseURL)),

		SignSecret:  getEnvOrDefault(common.EnvSignSecret, config.Auth.SignSecret),
		UploadTTL:   getDurationFromEnvOrConfig(common.EnvUploadTTL, config.Auth.UploadTTL, common.DefaultUploadTTL*time.Minute),
		DownloadTTL: getDurationFromEnvOrConfig(common.EnvDownloadTTL, config.Auth.DownloadTTL, common.DefaultDownloadTTL*time.Minute),

		AuthSecret: getEnvOrDefault(common.EnvAuthSecret, config.Auth.AuthSecret),
		APIKeys:    getListFromEnvOrConfig(common.EnvAPIKeys, config.Auth.APIKeys),
		TokenTTL:   getDurationFromEnvOrConfig(common.EnvTokenTTL, config.Auth.TokenTTL, common.DefaultTokenTTLHours*time.Hour),

		RegistryBaseURL: getEnvOrDefault(common.EnvRegistryBaseURL, stringOrDefault(config.Registry.BaseURL, common.DefaultRegistryBaseURL)),
		RegistryAppID:   getEnvOrDefault(common.EnvRegistryAppID, config.Registry.AppID),
		RegistryToken:   getEnvOrDefault(common.EnvRegistryToken, config.Registry.Token),
		RegistryTimeout: getDurationFromEnvOrConfig(common.EnvRegistryTimeout, config.Registry.Timeout, 30*time.Second),

		OptimizerSamples: getIntFromEnvOrConfig(common.EnvOptimizerSamples, config.Optimizer.Samples, common.DefaultOptimizerSamples),
		OptimizerSeed:    getInt64FromEnvOrConfig(common.EnvOptimizerSeed, config.Optimizer.Seed, common.DefaultOptimizerSeed),
		SurfacePoints:    getIntFromEnvOrConfig(common.EnvSurfacePoints, config.Surface.Points, common.DefaultSurfacePoints),

		ModelCacheSize: getIntFromEnvOrConfig(common.EnvModelCacheSize, config.Models.CacheSize, common.DefaultModelCacheSize),
		ModelCacheTTL:  getDurationFromEnvOrConfig(common.EnvModelCacheTTL, config.Models.CacheTTL, common.DefaultModelCacheTTL*time.Second),

		JobWorkers:   getIntFromEnvOrConfig(common.EnvJobWorkers, config.Jobs.Workers, common.DefaultJobWorkers),
		JobQueueSize: getIntFromEnvOrConfig(common.EnvJobQueueSize, config.Jobs.QueueSize, common.DefaultJobQueueSize),
		JobRetention: getDurationFromEnvOrConfig(common.EnvJobRetention, config.Jobs.Retention, common.DefaultJobRetention*time.Hour),

		RequestTimeout: getDurationOrDefault(common.EnvRequestTimeout, 60*time.Second),
		RateLimitRPS:   getIntFromEnvOrConfig(common.EnvRateLimitRPS, config.Server.RateLimitRPS, common.DefaultRateLimitRPS),
		CORSOrigins:    getListFromEnvOrConfig(common.EnvCORSOrigins, config.Server.CORSOrigins),
		LogLevel:       getEnvOrDefault(common.EnvLogLevel, stringOrDefault(config.System.LogLevel, "info")),
	}

	applyDerivedPaths(&settings)

	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}

	return settings, nil
}

func loadFromEnv() (Settings, error) {
	settings := Settings{
		DataPath:      getEnvOrDefault(common.EnvDataPath, common.DefaultDataPath),
		BlobDir:       os.Getenv(common.EnvBlobDir),
		BlobBucket:    getEnvOrDefault(common.EnvBlobBucket, common.DefaultBlobBucket),
		MetaDBPath:    os.Getenv(common.EnvMetaDBPath),
		WarehousePath: os.Getenv(common.EnvWarehousePath),

		APIPort:       getIntOrDefault(common.EnvAPIPort, common.DefaultAPIPort),
		MetricsPort:   getIntOrDefault(common.EnvMetricsPort, common.DefaultMetricsPort),
		PublicBaseURL: getEnvOrDefault(common.EnvPublicBaseURL, common.DefaultPublicBaseURL),

		SignSecret:  os.Getenv(common.EnvSignSecret),
		UploadTTL:   getDurationOrDefault(common.EnvUploadTTL, common.DefaultUploadTTL*time.Minute),
		DownloadTTL: getDurationOrDefault(common.EnvDownloadTTL, common.DefaultDownloadTTL*time.Minute),

		AuthSecret: os.Getenv(common.EnvAuthSecret),
		APIKeys:    splitOrDefault(os.Getenv(common.EnvAPIKeys), nil),
		TokenTTL:   getDurationOrDefault(common.EnvTokenTTL, common.DefaultTokenTTLHours*time.Hour),

		RegistryBaseURL: getEnvOrDefault(common.EnvRegistryBaseURL, common.DefaultRegistryBaseURL),
		RegistryAppID:   os.Getenv(common.EnvRegistryAppID),
		RegistryToken:   os.Getenv(common.EnvRegistryToken),
		RegistryTimeout: getDurationOrDefault(common.EnvRegistryTimeout, 30*time.Second),

		OptimizerSamples: getIntOrDefault(common.EnvOptimizerSamples, common.DefaultOptimizerSamples),
		OptimizerSeed:    getInt64OrDefault(common.EnvOptimizerSeed, common.DefaultOptimizerSeed),
		SurfacePoints:    getIntOrDefault(common.EnvSurfacePoints, common.DefaultSurfacePoints),

		ModelCacheSize: getIntOrDefault(common.EnvModelCacheSize, common.DefaultModelCacheSize),
		ModelCacheTTL:  getDurationOrDefault(common.EnvModelCacheTTL, common.DefaultModelCacheTTL*time.Second),

		JobWorkers:   getIntOrDefault(common.EnvJobWorkers, common.DefaultJobWorkers),
		JobQueueSize: getIntOrDefault(common.EnvJobQueueSize, common.DefaultJobQueueSize),
		JobRetention: getDurationOrDefault(common.EnvJobRetention, common.DefaultJobRetention*time.Hour),

		RequestTimeout: getDurationOrDefault(common.EnvRequestTimeout, 60*time.Second),
		RateLimitRPS:   getIntOrDefault(common.EnvRateLimitRPS, common.DefaultRateLimitRPS),
		CORSOrigins:    splitOrDefault(os.Getenv(common.EnvCORSOrigins), nil),
		LogLevel:       getEnvOrDefault(common.EnvLogLevel, "info"),
	}

	applyDerivedPaths(&settings)

	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}

	return settings, nil
}

// applyDerivedPaths fills storage locations left unset relative to DataPath.
func applyDerivedPaths(s *Settings) {
	if s.BlobDir == "" {
		s.BlobDir = filepath.Join(s.DataPath, "blobs")
	}
	if s.MetaDBPath == "" {
		s.MetaDBPath = filepath.Join(s.DataPath, "meta.db")
	}
	if s.WarehousePath == "" {
		s.WarehousePath = filepath.Join(s.DataPath, "warehouse.db")
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func stringOrDefault(v, def string) string {
	if v != "" {
		return v
	}
	return def
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultValue
}

func getInt64OrDefault(key string, defaultValue int64) int64 {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func splitOrDefault(v string, def []string) []string {
	if v == "" {
		return def
	}
	parts := strings.Split(v, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func getIntFromEnvOrConfig(key string, configValue, defaultValue int) int {
	if env := os.Getenv(key); env != "" {
		if val, err := strconv.Atoi(env); err == nil {
			return val
		}
	}
	if configValue != 0 {
		return configValue
	}
	return defaultValue
}

func getInt64FromEnvOrConfig(key string, configValue, defaultValue int64) int64 {
	if env := os.Getenv(key); env != "" {
		if val, err := strconv.ParseInt(env, 10, 64); err == nil {
			return val
		}
	}
	if configValue != 0 {
		return configValue
	}
	return defaultValue
}

func getDurationFromEnvOrConfig(key, configValue string, defaultValue time.Duration) time.Duration {
	if env := os.Getenv(key); env != "" {
		if d, err := time.ParseDuration(env); err == nil {
			return d
		}
	}
	if configValue != "" {
		if d, err := time.ParseDuration(configValue); err == nil {
			return d
		}
	}
	return defaultValue
}

func getListFromEnvOrConfig(key string, configValue []string) []string {
	if env := os.Getenv(key); env != "" {
		return splitOrDefault(env, nil)
	}
	return configValue
}

// validateSettings performs comprehensive validation of configuration values
func validateSettings(settings *Settings) error {
	if settings.DataPath == "" {
		return fmt.Errorf("%s", common.ErrMsgDataPathRequired)
	}
	if settings.SignSecret == "" {
		return fmt.Errorf("%s", common.ErrMsgSignSecretRequired)
	}
	if len(settings.APIKeys) > 0 && settings.AuthSecret == "" {
		return fmt.Errorf("%s", common.ErrMsgAuthSecretRequired)
	}

	if settings.APIPort < common.MinPort || settings.APIPort > common.MaxPort {
		return fmt.Errorf("%s, got %d", common.ErrMsgBadAPIPort, settings.APIPort)
	}
	if settings.MetricsPort < common.MinPort || settings.MetricsPort > common.MaxPort {
		return fmt.Errorf("%s, got %d", common.ErrMsgBadMetricsPort, settings.MetricsPort)
	}
	if settings.APIPort == settings.MetricsPort {
		return fmt.Errorf("api port and metrics port must differ, both are %d", settings.APIPort)
	}
	if settings.PublicBaseURL == "" {
		return fmt.Errorf("public base URL cannot be empty")
	}

	if settings.UploadTTL < time.Minute || settings.UploadTTL > 24*time.Hour {
		return fmt.Errorf("upload URL TTL must be between 1m and 24h, got %v", settings.UploadTTL)
	}
	if settings.DownloadTTL < time.Minute || settings.DownloadTTL > 7*24*time.Hour {
		return fmt.Errorf("download URL TTL must be between 1m and 168h, got %v", settings.DownloadTTL)
	}
	if settings.TokenTTL < time.Minute || settings.TokenTTL > 7*24*time.Hour {
		return fmt.Errorf("token TTL must be between 1m and 168h, got %v", settings.TokenTTL)
	}
	if settings.RegistryTimeout < time.Second || settings.RegistryTimeout > 2*time.Minute {
		return fmt.Errorf("registry timeout must be between 1s and 2m, got %v", settings.RegistryTimeout)
	}
	if settings.RequestTimeout < time.Second || settings.RequestTimeout > 10*time.Minute {
		return fmt.Errorf("request timeout must be between 1s and 10m, got %v", settings.RequestTimeout)
	}

	if settings.OptimizerSamples < 1 || settings.OptimizerSamples > common.MaxOptimizerSamples {
		return fmt.Errorf("optimizer samples must be between 1 and %d, got %d", common.MaxOptimizerSamples, settings.OptimizerSamples)
	}
	if settings.SurfacePoints < 2 || settings.SurfacePoints > common.MaxSurfacePoints {
		return fmt.Errorf("surface points must be between 2 and %d, got %d", common.MaxSurfacePoints, settings.SurfacePoints)
	}

	if settings.ModelCacheSize < common.MinModelCacheSize || settings.ModelCacheSize > common.MaxModelCacheSize {
		return fmt.Errorf("model cache size must be between %d and %d, got %d", common.MinModelCacheSize, common.MaxModelCacheSize, settings.ModelCacheSize)
	}
	if settings.ModelCacheTTL < time.Second {
		return fmt.Errorf("model cache TTL must be at least 1s, got %v", settings.ModelCacheTTL)
	}

	if settings.JobWorkers < 1 || settings.JobWorkers > common.MaxJobWorkers {
		return fmt.Errorf("job workers must be between 1 and %d, got %d", common.MaxJobWorkers, settings.JobWorkers)
	}
	if settings.JobQueueSize < 1 {
		return fmt.Errorf("job queue size must be positive, got %d", settings.JobQueueSize)
	}
	if settings.JobRetention < time.Minute {
		return fmt.Errorf("job retention must be at least 1m, got %v", settings.JobRetention)
	}

	if settings.RateLimitRPS < 1 || settings.RateLimitRPS > common.MaxRateLimitRPS {
		return fmt.Errorf("rate limit must be between 1 and %d requests per second, got %d", common.MaxRateLimitRPS, settings.RateLimitRPS)
	}

	return nil
}
