package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/quantumlink/quantumlink/internal/auth"
	"github.com/quantumlink/quantumlink/internal/config"
	"github.com/quantumlink/quantumlink/internal/enrich"
	"github.com/quantumlink/quantumlink/internal/jobs"
	"github.com/quantumlink/quantumlink/internal/observability"
	"github.com/quantumlink/quantumlink/internal/query"
	"github.com/quantumlink/quantumlink/internal/storage"
)

type ReadinessCheck func(ctx context.Context) error

// Enricher is the part of the enrich service the HTTP layer drives.
type Enricher interface {
	ResolvePath(raw string) (string, error)
	Columns(ctx context.Context, path string) ([]query.Column, error)
	SaveUpload(ctx context.Context, name string, r io.Reader, maxBytes int64) (enrich.Upload, error)
	Uploads(ctx context.Context) ([]enrich.Upload, error)
	ResolvePlan(plan query.ChainPlan) (query.ChainPlan, error)
	Query(plan query.ChainPlan) (string, error)
	Preview(ctx context.Context, plan query.ChainPlan, limit int) (query.PreviewResult, error)
	Submit(ctx context.Context, req enrich.SubmitRequest) (jobs.Job, error)
	Job(ctx context.Context, id string) (jobs.Job, error)
	ListJobs(ctx context.Context, filter jobs.ListFilter) ([]jobs.Job, error)
	DownloadURL(ctx context.Context, job jobs.Job) (string, error)
	OpenPublished(ctx context.Context, job jobs.Job) (io.ReadCloser, storage.ObjectInfo, error)
}

var _ Enricher = (*enrich.Service)(nil)

type Dependencies struct {
	Logger            *slog.Logger
	Readiness         ReadinessCheck
	AuthMiddleware    func(http.Handler) http.Handler
	DependencyTimeout time.Duration
	Enricher          Enricher
}

type route struct {
	pattern string
	role    string
	handle  func(deps Dependencies, cfg config.Config, w http.ResponseWriter, r *http.Request)
}

var protectedRoutes = []route{
	{pattern: "POST /v1/uploads", role: auth.RoleWriter, handle: handleUpload},
	{pattern: "GET /v1/uploads", role: auth.RoleReader, handle: handleListUploads},
	{pattern: "GET /v1/columns", role: auth.RoleReader, handle: handleColumns},
	{pattern: "POST /v1/query-plan", role: auth.RoleReader, handle: handleQueryPlan},
	{pattern: "POST /v1/preview", role: auth.RoleReader, handle: handlePreview},
	{pattern: "POST /v1/jobs", role: auth.RoleWriter, handle: handleCreateJob},
	{pattern: "GET /v1/jobs", role: auth.RoleReader, handle: handleListJobs},
	{pattern: "GET /v1/jobs/{id}", role: auth.RoleReader, handle: handleGetJob},
	{pattern: "GET /v1/jobs/{id}/download", role: auth.RoleReader, handle: handleDownload},
}

func NewHandler(cfg config.Config, deps Dependencies) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "service": cfg.Service.Name})
	})

	mux.HandleFunc("GET /v1/ready", func(w http.ResponseWriter, r *http.Request) {
		if deps.Readiness == nil {
			writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
			return
		}
		timeout := deps.DependencyTimeout
		if timeout <= 0 {
			timeout = 2 * time.Second
		}
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()
		if err := deps.Readiness(ctx); err != nil {
			writeError(r.Context(), w, http.StatusServiceUnavailable, "NOT_READY", err.Error(), true, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
	})

	mux.Handle("GET /v1/metrics", promhttp.Handler())

	protected := http.NewServeMux()
	for _, rt := range protectedRoutes {
		protected.HandleFunc(rt.pattern, func(w http.ResponseWriter, r *http.Request) {
			if deps.Enricher == nil {
				writeError(r.Context(), w, http.StatusNotImplemented, "ENRICH_NOT_CONFIGURED", "enrich service is not configured", false, nil)
				return
			}
			if err := auth.RequireRole(r.Context(), rt.role); err != nil {
				writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
				return
			}
			rt.handle(deps, cfg, w, r)
		})
	}

	var protectedHandler http.Handler = protected
	if cfg.Auth.Required {
		if deps.AuthMiddleware == nil {
			if deps.Logger != nil {
				deps.Logger.Error("auth_middleware_missing")
			}
			protectedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeError(r.Context(), w, http.StatusInternalServerError, "AUTH_MIDDLEWARE_MISSING", "auth middleware is required by configuration", false, nil)
			})
		} else {
			protectedHandler = deps.AuthMiddleware(protectedHandler)
		}
	}
	for _, rt := range protectedRoutes {
		mux.Handle(rt.pattern, protectedHandler)
	}

	middlewares := []func(http.Handler) http.Handler{
		observability.TraceMiddleware,
		observability.MetricsMiddleware,
	}
	if deps.Logger != nil {
		middlewares = append(middlewares, observability.LoggingMiddleware(deps.Logger))
	}
	return chain(mux, middlewares...)
}

// CheckObjectStoreConfig fails when publishing is enabled without a usable
// endpoint and bucket.
func CheckObjectStoreConfig(cfg config.Config) ReadinessCheck {
	return func(_ context.Context) error {
		if !cfg.ObjectStore.Enabled {
			return nil
		}
		if cfg.ObjectStore.Endpoint == "" {
			return errors.New("object store endpoint is not configured")
		}
		if cfg.ObjectStore.Bucket == "" {
			return errors.New("object store bucket is not configured")
		}
		return nil
	}
}

func CombineReadinessChecks(checks ...ReadinessCheck) ReadinessCheck {
	filtered := make([]ReadinessCheck, 0, len(checks))
	for _, check := range checks {
		if check != nil {
			filtered = append(filtered, check)
		}
	}
	return func(ctx context.Context) error {
		for _, check := range filtered {
			if err := check(ctx); err != nil {
				return err
			}
		}
		return nil
	}
}

func chain(base http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	wrapped := base
	for i := len(middlewares) - 1; i >= 0; i-- {
		wrapped = middlewares[i](wrapped)
	}
	return wrapped
}

func decodeJSON(r *http.Request, target any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(target)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(ctx context.Context, w http.ResponseWriter, status int, code, message string, retryable bool, extra map[string]any) {
	writeJSON(w, status, map[string]any{
		"error_code": code,
		"message":    message,
		"retryable":  retryable,
		"context":    extra,
		"trace_id":   observability.TraceIDFromContext(ctx),
	})
}
