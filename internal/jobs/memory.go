package jobs

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps jobs in process memory. It is used when no jobs DSN is
// configured and by tests.
type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[string]Job
	now  func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: map[string]Job{}, now: func() time.Time { return time.Now().UTC() }}
}

func (s *MemoryStore) HealthCheck(context.Context) error {
	return nil
}

func (s *MemoryStore) Create(_ context.Context, in CreateInput) (Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job := Job{
		ID:          NewID(),
		Principal:   in.Principal,
		Status:      StatusPending,
		Plan:        in.Plan,
		OutputPath:  in.OutputPath,
		Format:      in.Format,
		RowsWritten: -1,
		CreatedAt:   s.now(),
	}
	s.jobs[job.ID] = job
	return job, nil
}

func (s *MemoryStore) MarkRunning(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return ErrNotFound
	}
	if job.Status.Terminal() {
		return fmt.Errorf("job %s already %s", id, job.Status)
	}
	startedAt := s.now()
	job.Status = StatusRunning
	job.StartedAt = &startedAt
	s.jobs[id] = job
	return nil
}

func (s *MemoryStore) Finish(_ context.Context, in FinishInput) (Job, error) {
	if !in.Status.Terminal() {
		return Job{}, fmt.Errorf("finish job %s with non-terminal status %q", in.ID, in.Status)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[in.ID]
	if !ok {
		return Job{}, ErrNotFound
	}
	finishedAt := s.now()
	job.Status = in.Status
	job.Message = in.Message
	job.RowsWritten = in.RowsWritten
	job.SizeBytes = in.SizeBytes
	job.ObjectKey = in.ObjectKey
	job.DurationMS = in.Duration.Milliseconds()
	job.FinishedAt = &finishedAt
	s.jobs[in.ID] = job
	return job, nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return Job{}, ErrNotFound
	}
	return job, nil
}

// List returns the newest jobs first.
func (s *MemoryStore) List(_ context.Context, filter ListFilter) ([]Job, error) {
	limit := NormalizeLimit(filter.Limit)
	s.mu.RLock()
	defer s.mu.RUnlock()

	jobs := make([]Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		if filter.Principal != "" && job.Principal != filter.Principal {
			continue
		}
		jobs = append(jobs, job)
	}
	sort.Slice(jobs, func(i, j int) bool {
		if jobs[i].CreatedAt.Equal(jobs[j].CreatedAt) {
			return jobs[i].ID > jobs[j].ID
		}
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})
	if len(jobs) > limit {
		jobs = jobs[:limit]
	}
	return jobs, nil
}
