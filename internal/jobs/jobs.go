package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/quantumlink/quantumlink/internal/query"
)

var ErrNotFound = errors.New("jobs: not found")

const DefaultListLimit = 50

type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// Job records one materialization request and its outcome.
type Job struct {
	ID          string             `json:"job_id"`
	Principal   string             `json:"principal"`
	Status      Status             `json:"status"`
	Plan        query.ChainPlan    `json:"plan"`
	OutputPath  string             `json:"output_path"`
	Format      query.OutputFormat `json:"format"`
	RowsWritten int64              `json:"rows_written"`
	SizeBytes   int64              `json:"size_bytes"`
	ObjectKey   string             `json:"object_key,omitempty"`
	Message     string             `json:"message,omitempty"`
	DurationMS  int64              `json:"duration_ms"`
	CreatedAt   time.Time          `json:"created_at"`
	StartedAt   *time.Time         `json:"started_at,omitempty"`
	FinishedAt  *time.Time         `json:"finished_at,omitempty"`
}

type CreateInput struct {
	Principal  string
	Plan       query.ChainPlan
	OutputPath string
	Format     query.OutputFormat
}

type FinishInput struct {
	ID          string
	Status      Status
	Message     string
	RowsWritten int64
	SizeBytes   int64
	ObjectKey   string
	Duration    time.Duration
}

type Store interface {
	HealthCheck(ctx context.Context) error
	Create(ctx context.Context, in CreateInput) (Job, error)
	MarkRunning(ctx context.Context, id string) error
	Finish(ctx context.Context, in FinishInput) (Job, error)
	Get(ctx context.Context, id string) (Job, error)
	List(ctx context.Context, filter ListFilter) ([]Job, error)
}

// ListFilter selects jobs for List. An empty Principal matches every job.
type ListFilter struct {
	Principal string
	Limit     int
}

func NewID() string {
	return uuid.NewString()
}

// NormalizeLimit maps non-positive limits to DefaultListLimit.
func NormalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	return limit
}
