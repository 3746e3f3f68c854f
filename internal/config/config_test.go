package config

import (
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaultsForDevProfile(t *testing.T) {
	cfg, err := Load("quantumlink-api", mapLookup(map[string]string{}))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Profile != ProfileDev {
		t.Fatalf("Profile = %q, want %q", cfg.Profile, ProfileDev)
	}
	if cfg.HTTP.Address != ":8080" {
		t.Fatalf("HTTP.Address = %q", cfg.HTTP.Address)
	}
	if cfg.Observability.LogLevel != slog.LevelDebug {
		t.Fatalf("LogLevel = %v", cfg.Observability.LogLevel)
	}
	if cfg.Auth.Required {
		t.Fatal("Auth.Required should default to false in dev")
	}
	if cfg.Engine.ScratchDir != "duckdb_temp" || cfg.Engine.SpreadsheetExtension != "spatial" {
		t.Fatalf("Engine = %#v", cfg.Engine)
	}
	if cfg.Engine.PreviewDefaultRows != 10 || cfg.Engine.PreviewMaxRows != 1000 {
		t.Fatalf("preview rows = %d/%d", cfg.Engine.PreviewDefaultRows, cfg.Engine.PreviewMaxRows)
	}
	if cfg.Staging.UploadDir != "uploads" || cfg.Staging.ResultDir != "results" {
		t.Fatalf("Staging = %#v", cfg.Staging)
	}
	if cfg.Jobs.DSN != "" {
		t.Fatalf("Jobs.DSN = %q, want in-memory default", cfg.Jobs.DSN)
	}
	if cfg.ObjectStore.Enabled {
		t.Fatal("ObjectStore.Enabled should default to false")
	}
}

func TestLoadProdProfileDefaults(t *testing.T) {
	cfg, err := Load("quantumlink-api", mapLookup(map[string]string{"QUANTUMLINK_PROFILE": "prod"}))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Profile != ProfileProd {
		t.Fatalf("Profile = %q, want %q", cfg.Profile, ProfileProd)
	}
	if !cfg.Auth.Required {
		t.Fatal("Auth.Required should default to true in prod")
	}
	if cfg.Observability.LogLevel != slog.LevelInfo {
		t.Fatalf("LogLevel = %v", cfg.Observability.LogLevel)
	}
	if !cfg.ObjectStore.UseSSL || cfg.ObjectStore.AutoCreateBucket {
		t.Fatalf("ObjectStore = %#v", cfg.ObjectStore)
	}
}

func TestLoadWithEnvOverrides(t *testing.T) {
	lookup := mapLookup(map[string]string{
		"QUANTUMLINK_PROFILE":                     "test",
		"QUANTUMLINK_SERVICE_NAME":                "quantumlink-custom",
		"QUANTUMLINK_HTTP_ADDR":                   ":9999",
		"QUANTUMLINK_HTTP_READ_TIMEOUT":           "2s",
		"QUANTUMLINK_HTTP_MAX_UPLOAD_BYTES":       "1024",
		"QUANTUMLINK_ENGINE_SCRATCH_DIR":          "/tmp/ql-scratch",
		"QUANTUMLINK_ENGINE_MEMORY_LIMIT":         "2GB",
		"QUANTUMLINK_ENGINE_THREADS":              "4",
		"QUANTUMLINK_ENGINE_PREVIEW_DEFAULT_ROWS": "25",
		"QUANTUMLINK_ENGINE_PREVIEW_MAX_ROWS":     "50",
		"QUANTUMLINK_UPLOAD_DIR":                  "/srv/uploads",
		"QUANTUMLINK_RESULT_DIR":                  "/srv/results",
		"QUANTUMLINK_JOBS_DSN":                    "postgres://example",
		"QUANTUMLINK_JOBS_MAX_OPEN_CONNS":         "42",
		"QUANTUMLINK_OBJECTSTORE_ENABLED":         "true",
		"QUANTUMLINK_OBJECTSTORE_ENDPOINT":        "s3.example.com",
		"QUANTUMLINK_OBJECTSTORE_BUCKET":          "quantumlink-prod",
		"QUANTUMLINK_OBJECTSTORE_PRESIGN_EXPIRY":  "15m",
		"QUANTUMLINK_LOG_LEVEL":                   "error",
		"QUANTUMLINK_AUTH_REQUIRED":               "true",
		"QUANTUMLINK_AUTH_STATIC_KEYS":            "k1:analyst:reader|writer",
	})
	cfg, err := Load("quantumlink-api", lookup)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Service.Name != "quantumlink-custom" {
		t.Fatalf("Service.Name = %q", cfg.Service.Name)
	}
	if cfg.HTTP.Address != ":9999" || cfg.HTTP.ReadTimeout != 2*time.Second || cfg.HTTP.MaxUploadBytes != 1024 {
		t.Fatalf("HTTP = %#v", cfg.HTTP)
	}
	if cfg.Engine.ScratchDir != "/tmp/ql-scratch" || cfg.Engine.MemoryLimit != "2GB" || cfg.Engine.Threads != 4 {
		t.Fatalf("Engine = %#v", cfg.Engine)
	}
	if cfg.Engine.SpreadsheetExtension != "none" {
		t.Fatalf("test profile SpreadsheetExtension = %q", cfg.Engine.SpreadsheetExtension)
	}
	if cfg.Engine.PreviewDefaultRows != 25 || cfg.Engine.PreviewMaxRows != 50 {
		t.Fatalf("preview rows = %d/%d", cfg.Engine.PreviewDefaultRows, cfg.Engine.PreviewMaxRows)
	}
	if cfg.Staging.UploadDir != "/srv/uploads" || cfg.Staging.ResultDir != "/srv/results" {
		t.Fatalf("Staging = %#v", cfg.Staging)
	}
	if cfg.Jobs.DSN != "postgres://example" || cfg.Jobs.MaxOpenConns != 42 {
		t.Fatalf("Jobs = %#v", cfg.Jobs)
	}
	if !cfg.ObjectStore.Enabled || cfg.ObjectStore.Bucket != "quantumlink-prod" || cfg.ObjectStore.PresignExpiry != 15*time.Minute {
		t.Fatalf("ObjectStore = %#v", cfg.ObjectStore)
	}
	if cfg.Observability.LogLevel != slog.LevelError {
		t.Fatalf("LogLevel = %v", cfg.Observability.LogLevel)
	}
	if !cfg.Auth.Required || cfg.Auth.StaticKeys != "k1:analyst:reader|writer" {
		t.Fatalf("Auth = %#v", cfg.Auth)
	}
}

func TestLoadErrorsOnInvalidValues(t *testing.T) {
	tests := []map[string]string{
		{"QUANTUMLINK_PROFILE": "oops"},
		{"QUANTUMLINK_HTTP_READ_TIMEOUT": "NaN"},
		{"QUANTUMLINK_HTTP_MAX_UPLOAD_BYTES": "lots"},
		{"QUANTUMLINK_JOBS_MAX_OPEN_CONNS": "oops"},
		{"QUANTUMLINK_ENGINE_THREADS": "many"},
		{"QUANTUMLINK_AUTH_REQUIRED": "not-bool"},
		{"QUANTUMLINK_LOG_LEVEL": "verbose"},
		{"QUANTUMLINK_ENGINE_PREVIEW_DEFAULT_ROWS": "0"},
		{"QUANTUMLINK_ENGINE_PREVIEW_DEFAULT_ROWS": "2000"},
		{"QUANTUMLINK_UPLOAD_DIR": " "},
		{"QUANTUMLINK_OBJECTSTORE_ENABLED": "true", "QUANTUMLINK_OBJECTSTORE_BUCKET": ""},
	}
	for _, env := range tests {
		_, err := Load("quantumlink-api", mapLookup(env))
		if err == nil {
			t.Fatalf("Load() expected error for env %#v", env)
		}
	}
}

func TestLoadReportsEveryInvalidValue(t *testing.T) {
	_, err := Load("quantumlink-api", mapLookup(map[string]string{
		"QUANTUMLINK_HTTP_READ_TIMEOUT": "soon",
		"QUANTUMLINK_ENGINE_THREADS":    "many",
	}))
	if err == nil {
		t.Fatal("expected error")
	}
	for _, name := range []string{"QUANTUMLINK_HTTP_READ_TIMEOUT", "QUANTUMLINK_ENGINE_THREADS"} {
		if !strings.Contains(err.Error(), name) {
			t.Fatalf("error %q does not mention %s", err, name)
		}
	}
}

func mapLookup(values map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		value, ok := values[key]
		return value, ok
	}
}
