package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
)

const envPrefix = "QUANTUMLINK_"

type LookupFunc func(string) (string, bool)

type Profile string

const (
	ProfileDev  Profile = "dev"
	ProfileTest Profile = "test"
	ProfileProd Profile = "prod"
)

type Config struct {
	Profile       Profile
	Service       ServiceConfig
	HTTP          HTTPConfig
	Engine        EngineConfig
	Staging       StagingConfig
	Jobs          JobsConfig
	ObjectStore   ObjectStoreConfig
	Observability ObservabilityConfig
	Auth          AuthConfig
}

type ServiceConfig struct {
	Name string
}

type HTTPConfig struct {
	Address        string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	MaxUploadBytes int64
}

type EngineConfig struct {
	ScratchDir           string
	SpreadsheetExtension string
	MemoryLimit          string
	Threads              int
	PreviewDefaultRows   int
	PreviewMaxRows       int
}

type StagingConfig struct {
	UploadDir string
	ResultDir string
}

// JobsConfig selects the job store. An empty DSN keeps job records in memory.
type JobsConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxIdleTime time.Duration
	ConnMaxLifetime time.Duration
}

type ObjectStoreConfig struct {
	Enabled          bool
	Endpoint         string
	Region           string
	Bucket           string
	AccessKeyID      string
	SecretAccessKey  string
	UseSSL           bool
	Prefix           string
	AutoCreateBucket bool
	PresignExpiry    time.Duration
}

type ObservabilityConfig struct {
	LogLevel slog.Level
	LogJSON  bool
}

type AuthConfig struct {
	Required   bool
	StaticKeys string
}

func LoadFromEnv(serviceName string) (Config, error) {
	return Load(serviceName, os.LookupEnv)
}

// Load builds the profile defaults and applies QUANTUMLINK_* overrides. All
// malformed values are reported together.
func Load(serviceName string, lookup LookupFunc) (Config, error) {
	if lookup == nil {
		return Config{}, fmt.Errorf("lookup function is required")
	}

	profile := ProfileDev
	if raw, ok := lookup(envPrefix + "PROFILE"); ok {
		profile = Profile(strings.ToLower(strings.TrimSpace(raw)))
	}
	if !isValidProfile(profile) {
		return Config{}, fmt.Errorf("invalid %sPROFILE: %q", envPrefix, profile)
	}

	cfg := defaultsForProfile(profile)
	if serviceName != "" {
		cfg.Service.Name = serviceName
	}

	env := binder{lookup: lookup}
	env.String("SERVICE_NAME", &cfg.Service.Name)

	env.String("HTTP_ADDR", &cfg.HTTP.Address)
	env.Duration("HTTP_READ_TIMEOUT", &cfg.HTTP.ReadTimeout)
	env.Duration("HTTP_WRITE_TIMEOUT", &cfg.HTTP.WriteTimeout)
	env.Duration("HTTP_IDLE_TIMEOUT", &cfg.HTTP.IdleTimeout)
	env.Int64("HTTP_MAX_UPLOAD_BYTES", &cfg.HTTP.MaxUploadBytes)

	env.String("ENGINE_SCRATCH_DIR", &cfg.Engine.ScratchDir)
	env.String("ENGINE_SPREADSHEET_EXTENSION", &cfg.Engine.SpreadsheetExtension)
	env.String("ENGINE_MEMORY_LIMIT", &cfg.Engine.MemoryLimit)
	env.Int("ENGINE_THREADS", &cfg.Engine.Threads)
	env.Int("ENGINE_PREVIEW_DEFAULT_ROWS", &cfg.Engine.PreviewDefaultRows)
	env.Int("ENGINE_PREVIEW_MAX_ROWS", &cfg.Engine.PreviewMaxRows)

	env.String("UPLOAD_DIR", &cfg.Staging.UploadDir)
	env.String("RESULT_DIR", &cfg.Staging.ResultDir)

	env.String("JOBS_DSN", &cfg.Jobs.DSN)
	env.Int("JOBS_MAX_OPEN_CONNS", &cfg.Jobs.MaxOpenConns)
	env.Int("JOBS_MAX_IDLE_CONNS", &cfg.Jobs.MaxIdleConns)
	env.Duration("JOBS_CONN_MAX_IDLE_TIME", &cfg.Jobs.ConnMaxIdleTime)
	env.Duration("JOBS_CONN_MAX_LIFETIME", &cfg.Jobs.ConnMaxLifetime)

	env.Bool("OBJECTSTORE_ENABLED", &cfg.ObjectStore.Enabled)
	env.String("OBJECTSTORE_ENDPOINT", &cfg.ObjectStore.Endpoint)
	env.String("OBJECTSTORE_REGION", &cfg.ObjectStore.Region)
	env.String("OBJECTSTORE_BUCKET", &cfg.ObjectStore.Bucket)
	env.String("OBJECTSTORE_ACCESS_KEY", &cfg.ObjectStore.AccessKeyID)
	env.String("OBJECTSTORE_SECRET_KEY", &cfg.ObjectStore.SecretAccessKey)
	env.Bool("OBJECTSTORE_USE_SSL", &cfg.ObjectStore.UseSSL)
	env.String("OBJECTSTORE_PREFIX", &cfg.ObjectStore.Prefix)
	env.Bool("OBJECTSTORE_AUTO_CREATE_BUCKET", &cfg.ObjectStore.AutoCreateBucket)
	env.Duration("OBJECTSTORE_PRESIGN_EXPIRY", &cfg.ObjectStore.PresignExpiry)

	env.Bool("LOG_JSON", &cfg.Observability.LogJSON)
	env.LogLevel("LOG_LEVEL", &cfg.Observability.LogLevel)

	env.Bool("AUTH_REQUIRED", &cfg.Auth.Required)
	env.String("AUTH_STATIC_KEYS", &cfg.Auth.StaticKeys)

	if err := env.errs.ErrorOrNil(); err != nil {
		return Config{}, err
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	var result *multierror.Error
	if c.Service.Name == "" {
		result = multierror.Append(result, fmt.Errorf("service name is required"))
	}
	if c.HTTP.Address == "" {
		result = multierror.Append(result, fmt.Errorf("http address is required"))
	}
	if c.Engine.PreviewDefaultRows <= 0 || c.Engine.PreviewMaxRows <= 0 {
		result = multierror.Append(result, fmt.Errorf("preview row limits must be positive"))
	} else if c.Engine.PreviewDefaultRows > c.Engine.PreviewMaxRows {
		result = multierror.Append(result, fmt.Errorf("preview default rows %d exceed max %d", c.Engine.PreviewDefaultRows, c.Engine.PreviewMaxRows))
	}
	if c.Staging.UploadDir == "" || c.Staging.ResultDir == "" {
		result = multierror.Append(result, fmt.Errorf("upload and result dirs are required"))
	}
	if c.ObjectStore.Enabled && (c.ObjectStore.Endpoint == "" || c.ObjectStore.Bucket == "") {
		result = multierror.Append(result, fmt.Errorf("object store endpoint and bucket are required when enabled"))
	}
	return result.ErrorOrNil()
}

func defaultsForProfile(profile Profile) Config {
	cfg := Config{
		Profile: profile,
		Service: ServiceConfig{Name: "quantumlink-api"},
		HTTP: HTTPConfig{
			Address:        ":8080",
			ReadTimeout:    30 * time.Second,
			WriteTimeout:   10 * time.Minute,
			IdleTimeout:    60 * time.Second,
			MaxUploadBytes: 512 << 20,
		},
		Engine: EngineConfig{
			ScratchDir:           "duckdb_temp",
			SpreadsheetExtension: "spatial",
			PreviewDefaultRows:   10,
			PreviewMaxRows:       1000,
		},
		Staging: StagingConfig{
			UploadDir: "uploads",
			ResultDir: "results",
		},
		Jobs: JobsConfig{
			MaxOpenConns:    10,
			MaxIdleConns:    10,
			ConnMaxIdleTime: 5 * time.Minute,
			ConnMaxLifetime: 30 * time.Minute,
		},
		ObjectStore: ObjectStoreConfig{
			Enabled:          false,
			Endpoint:         "localhost:9000",
			Region:           "us-east-1",
			Bucket:           "quantumlink",
			AccessKeyID:      "minio",
			SecretAccessKey:  "miniostorage",
			AutoCreateBucket: true,
			PresignExpiry:    time.Hour,
		},
		Observability: ObservabilityConfig{
			LogLevel: slog.LevelDebug,
			LogJSON:  true,
		},
	}

	switch profile {
	case ProfileTest:
		cfg.HTTP.Address = ":18080"
		cfg.Observability.LogLevel = slog.LevelWarn
		cfg.Engine.SpreadsheetExtension = "none"
	case ProfileProd:
		cfg.Observability.LogLevel = slog.LevelInfo
		cfg.Auth.Required = true
		cfg.ObjectStore.UseSSL = true
		cfg.ObjectStore.AutoCreateBucket = false
	}

	return cfg
}

func isValidProfile(profile Profile) bool {
	switch profile {
	case ProfileDev, ProfileTest, ProfileProd:
		return true
	default:
		return false
	}
}

// binder applies prefixed environment overrides and accumulates parse
// errors.
type binder struct {
	lookup LookupFunc
	errs   *multierror.Error
}

func (b *binder) raw(key string) (string, string, bool) {
	name := envPrefix + key
	value, ok := b.lookup(name)
	return name, strings.TrimSpace(value), ok
}

func (b *binder) fail(name string, err error) {
	b.errs = multierror.Append(b.errs, fmt.Errorf("invalid %s: %w", name, err))
}

func (b *binder) String(key string, dst *string) {
	if _, value, ok := b.raw(key); ok {
		*dst = value
	}
}

func (b *binder) Duration(key string, dst *time.Duration) {
	name, value, ok := b.raw(key)
	if !ok {
		return
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		b.fail(name, err)
		return
	}
	*dst = parsed
}

func (b *binder) Bool(key string, dst *bool) {
	name, value, ok := b.raw(key)
	if !ok {
		return
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		b.fail(name, err)
		return
	}
	*dst = parsed
}

func (b *binder) Int(key string, dst *int) {
	name, value, ok := b.raw(key)
	if !ok {
		return
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		b.fail(name, err)
		return
	}
	*dst = parsed
}

func (b *binder) Int64(key string, dst *int64) {
	name, value, ok := b.raw(key)
	if !ok {
		return
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		b.fail(name, err)
		return
	}
	*dst = parsed
}

func (b *binder) LogLevel(key string, dst *slog.Level) {
	name, value, ok := b.raw(key)
	if !ok {
		return
	}
	switch strings.ToLower(value) {
	case "debug":
		*dst = slog.LevelDebug
	case "info":
		*dst = slog.LevelInfo
	case "warn", "warning":
		*dst = slog.LevelWarn
	case "error":
		*dst = slog.LevelError
	default:
		b.fail(name, fmt.Errorf("unknown level %q", value))
	}
}
