// Package enrich runs chain joins on behalf of API callers: it resolves
// staged inputs, records each materialization as a job, inspects the written
// file and optionally publishes it to the object store.
package enrich

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/quantumlink/quantumlink/internal/jobs"
	"github.com/quantumlink/quantumlink/internal/observability"
	"github.com/quantumlink/quantumlink/internal/output"
	"github.com/quantumlink/quantumlink/internal/query"
	"github.com/quantumlink/quantumlink/internal/staging"
	"github.com/quantumlink/quantumlink/internal/storage"
)

const (
	defaultPresignExpiry = time.Hour
	anonymousPrincipal   = "anonymous"
)

var (
	ErrNotReady     = errors.New("engine session is not ready")
	ErrNoPresigner  = errors.New("object store cannot presign downloads")
	ErrNotPublished = errors.New("job result was not published")
)

type Config struct {
	PresignExpiry time.Duration
}

type Service struct {
	Engine      query.Engine
	Jobs        jobs.Store
	Staging     *staging.Area
	ObjectStore storage.ObjectStore
	Config      Config
	Logger      *slog.Logger
	Clock       func() time.Time
}

type Upload struct {
	output.Info
	Columns []string `json:"columns"`
}

type MaterializeRequest struct {
	Principal  string
	Plan       query.ChainPlan
	OutputPath string
	Format     query.OutputFormat
}

// SubmitRequest is a materialization against staged files: plan paths are
// upload names (or absolute paths inside the staging area) and the output
// lands in the result directory under OutputName.
type SubmitRequest struct {
	Principal  string
	Plan       query.ChainPlan
	OutputName string
	Format     string
}

func (s *Service) ensureDefaults() {
	if s.Logger == nil {
		s.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if s.Clock == nil {
		s.Clock = time.Now
	}
	if s.Config.PresignExpiry <= 0 {
		s.Config.PresignExpiry = defaultPresignExpiry
	}
}

// Ready reports an error when the engine session or the job store cannot
// serve requests.
func (s *Service) Ready(ctx context.Context) error {
	if s.Engine == nil || !s.Engine.Ready() {
		return ErrNotReady
	}
	if s.Jobs != nil {
		if err := s.Jobs.HealthCheck(ctx); err != nil {
			return fmt.Errorf("job store: %w", err)
		}
	}
	return nil
}

func (s *Service) Columns(ctx context.Context, path string) ([]query.Column, error) {
	s.ensureDefaults()
	columns, err := s.Engine.Describe(ctx, path)
	observability.ObserveSchemaProbe(err)
	if err != nil {
		s.Logger.DebugContext(ctx, "schema_probe_failed", slog.String("path", path), slog.Any("error", err))
		return nil, err
	}
	return columns, nil
}

// SaveUpload stages r under name and probes its columns. A file the engine
// cannot parse is still kept and reported with no columns.
func (s *Service) SaveUpload(ctx context.Context, name string, r io.Reader, maxBytes int64) (Upload, error) {
	s.ensureDefaults()
	info, err := s.Staging.SaveUpload(name, r, maxBytes)
	if err != nil {
		return Upload{}, err
	}
	columns := query.ColumnsOrEmpty(s.Engine.Columns(ctx, info.Path))
	s.Logger.InfoContext(ctx, "upload_staged",
		slog.String("name", info.Name),
		slog.Int64("size_bytes", info.SizeBytes),
		slog.Int("columns", len(columns)),
	)
	return Upload{Info: info, Columns: columns}, nil
}

func (s *Service) Uploads(ctx context.Context) ([]Upload, error) {
	infos, err := s.Staging.Uploads()
	if err != nil {
		return nil, err
	}
	uploads := make([]Upload, 0, len(infos))
	for _, info := range infos {
		columns := query.ColumnsOrEmpty(s.Engine.Columns(ctx, info.Path))
		uploads = append(uploads, Upload{Info: info, Columns: columns})
	}
	return uploads, nil
}

// ResolvePath maps an upload name, or an absolute path inside the staging
// area, to a file path.
func (s *Service) ResolvePath(raw string) (string, error) {
	return s.Staging.ResolvePath(raw)
}

// ResolvePlan maps every plan path onto the staging area.
func (s *Service) ResolvePlan(plan query.ChainPlan) (query.ChainPlan, error) {
	if err := plan.Validate(); err != nil {
		return query.ChainPlan{}, err
	}
	master, err := s.Staging.ResolvePath(plan.Master)
	if err != nil {
		return query.ChainPlan{}, fmt.Errorf("resolve master: %w", err)
	}
	resolved := query.ChainPlan{Master: master, References: make([]query.JoinSpec, len(plan.References))}
	for i, ref := range plan.References {
		path, err := s.Staging.ResolvePath(ref.Path)
		if err != nil {
			return query.ChainPlan{}, fmt.Errorf("resolve reference %s: %w", query.ReferenceAlias(i), err)
		}
		ref.Path = path
		resolved.References[i] = ref
	}
	return resolved, nil
}

func (s *Service) Query(plan query.ChainPlan) (string, error) {
	return s.Engine.Query(plan)
}

func (s *Service) Preview(ctx context.Context, plan query.ChainPlan, limit int) (query.PreviewResult, error) {
	s.ensureDefaults()
	result, err := s.Engine.Preview(ctx, plan, limit)
	observability.ObservePreview(len(plan.References), err)
	if err != nil {
		s.Logger.WarnContext(ctx, "chain_join_preview_failed",
			slog.Int("links", len(plan.References)),
			slog.Any("error", err),
		)
		return query.PreviewResult{}, err
	}
	return result, nil
}

// Submit resolves a staged request and materializes it.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (jobs.Job, error) {
	format, err := query.ParseOutputFormat(req.Format)
	if err != nil {
		return jobs.Job{}, &query.Error{Kind: query.KindPlan, Op: "parse output format", Err: err}
	}
	plan, err := s.ResolvePlan(req.Plan)
	if err != nil {
		return jobs.Job{}, err
	}
	outputPath, err := s.Staging.ResultPath(req.OutputName, format)
	if err != nil {
		return jobs.Job{}, err
	}
	return s.Materialize(ctx, MaterializeRequest{
		Principal:  req.Principal,
		Plan:       plan,
		OutputPath: outputPath,
		Format:     format,
	})
}

// Materialize records a job, runs the plan to disk and finishes the job with
// the outcome. The returned job reflects the final state even when err is
// non-nil, unless the job could not be created at all.
func (s *Service) Materialize(ctx context.Context, req MaterializeRequest) (jobs.Job, error) {
	s.ensureDefaults()
	if err := req.Plan.Validate(); err != nil {
		return jobs.Job{}, err
	}
	principal := req.Principal
	if principal == "" {
		principal = anonymousPrincipal
	}

	job, err := s.Jobs.Create(ctx, jobs.CreateInput{
		Principal:  principal,
		Plan:       req.Plan,
		OutputPath: req.OutputPath,
		Format:     req.Format,
	})
	if err != nil {
		return jobs.Job{}, fmt.Errorf("create job: %w", err)
	}
	if err := s.Jobs.MarkRunning(ctx, job.ID); err != nil {
		return job, fmt.Errorf("start job %s: %w", job.ID, err)
	}

	started := s.Clock()
	result, runErr := s.Engine.Materialize(ctx, req.Plan, req.OutputPath, req.Format)
	elapsed := s.Clock().Sub(started)
	observability.ObserveMaterialize(string(req.Format), len(req.Plan.References), result.RowsWritten, elapsed, runErr)

	// Bookkeeping must land even when the caller has gone away.
	bookkeeping := context.WithoutCancel(ctx)
	if runErr != nil {
		message := result.Message
		if message == "" {
			message = runErr.Error()
		}
		s.Logger.ErrorContext(ctx, "chain_join_failed",
			slog.String("job_id", job.ID),
			slog.String("output_path", req.OutputPath),
			slog.Any("error", runErr),
		)
		finished, err := s.Jobs.Finish(bookkeeping, jobs.FinishInput{
			ID:          job.ID,
			Status:      jobs.StatusFailed,
			Message:     message,
			RowsWritten: result.RowsWritten,
			Duration:    elapsed,
		})
		if err != nil {
			return job, errors.Join(runErr, fmt.Errorf("finish job %s: %w", job.ID, err))
		}
		return finished, runErr
	}

	finish := jobs.FinishInput{
		ID:          job.ID,
		Status:      jobs.StatusSucceeded,
		Message:     result.Message,
		RowsWritten: result.RowsWritten,
		Duration:    elapsed,
	}
	if summary, err := output.Inspect(req.OutputPath); err != nil {
		s.Logger.WarnContext(ctx, "result_inspect_failed", slog.String("job_id", job.ID), slog.Any("error", err))
	} else {
		finish.SizeBytes = summary.SizeBytes
		if finish.RowsWritten < 0 {
			finish.RowsWritten = summary.Rows
		}
	}
	finish.ObjectKey = s.publish(bookkeeping, job.ID, principal, req.OutputPath)

	finished, err := s.Jobs.Finish(bookkeeping, finish)
	if err != nil {
		return job, fmt.Errorf("finish job %s: %w", job.ID, err)
	}
	s.Logger.InfoContext(ctx, "chain_join_materialized",
		slog.String("job_id", job.ID),
		slog.String("principal", principal),
		slog.String("format", string(req.Format)),
		slog.Int("links", len(req.Plan.References)),
		slog.Int64("rows_written", finished.RowsWritten),
		slog.String("size", output.FormatBytes(finished.SizeBytes)),
		slog.Duration("duration", elapsed),
	)
	return finished, nil
}

// publish uploads the result when an object store is configured and returns
// its key. Publishing is best effort; the local file stays authoritative.
func (s *Service) publish(ctx context.Context, jobID, principal, path string) string {
	if s.ObjectStore == nil {
		return ""
	}
	name := filepath.Base(path)
	key, err := storage.BuildResultPath(jobID, name, s.Clock())
	if err != nil {
		s.Logger.WarnContext(ctx, "result_publish_failed", slog.String("job_id", jobID), slog.Any("error", err))
		return ""
	}
	opts := storage.PutOptions{
		Filename: name,
		Metadata: map[string]string{"job-id": jobID, "principal": principal},
	}
	if _, err := storage.PublishFile(ctx, s.ObjectStore, key, path, opts); err != nil {
		s.Logger.WarnContext(ctx, "result_publish_failed",
			slog.String("job_id", jobID),
			slog.String("object_key", key),
			slog.Any("error", err),
		)
		return ""
	}
	return key
}

func (s *Service) Job(ctx context.Context, id string) (jobs.Job, error) {
	return s.Jobs.Get(ctx, id)
}

func (s *Service) ListJobs(ctx context.Context, filter jobs.ListFilter) ([]jobs.Job, error) {
	filter.Limit = jobs.NormalizeLimit(filter.Limit)
	return s.Jobs.List(ctx, filter)
}

// DownloadURL presigns the published copy of a succeeded job.
func (s *Service) DownloadURL(ctx context.Context, job jobs.Job) (string, error) {
	s.ensureDefaults()
	if job.ObjectKey == "" {
		return "", ErrNotPublished
	}
	presigner, ok := s.ObjectStore.(storage.Presigner)
	if !ok {
		return "", ErrNoPresigner
	}
	return presigner.PresignGet(ctx, job.ObjectKey, s.Config.PresignExpiry)
}

// OpenPublished opens the object-store copy of a job result. The caller closes
// the returned reader.
func (s *Service) OpenPublished(ctx context.Context, job jobs.Job) (io.ReadCloser, storage.ObjectInfo, error) {
	if job.ObjectKey == "" || s.ObjectStore == nil {
		return nil, storage.ObjectInfo{}, ErrNotPublished
	}
	info, err := s.ObjectStore.Stat(ctx, job.ObjectKey)
	if err != nil {
		return nil, storage.ObjectInfo{}, fmt.Errorf("stat published result %q: %w", job.ObjectKey, err)
	}
	body, err := s.ObjectStore.Get(ctx, job.ObjectKey)
	if err != nil {
		return nil, storage.ObjectInfo{}, fmt.Errorf("open published result %q: %w", job.ObjectKey, err)
	}
	return body, info, nil
}
