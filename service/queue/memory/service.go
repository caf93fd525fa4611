// Package memory implements the job-queue contract in memory. It backs the
// test suite and lets embedders run the engine against a local queue.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/viant/trustor/internal/clock"
	"github.com/viant/trustor/internal/idgen"
	"github.com/viant/trustor/model/job"
	"github.com/viant/trustor/service/dao"
	"github.com/viant/trustor/service/queue"
)

// Service is an in-memory job queue.
type Service struct {
	mu   sync.RWMutex
	jobs map[string]*job.Job
}

var _ queue.Service = (*Service)(nil)

// Submit enqueues a job as pending, minting an identifier when absent, and
// returns the job ID.
func (s *Service) Submit(j *job.Job) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j.ID == "" {
		j.ID = idgen.New()
	}
	if j.CreatedAt.IsZero() {
		j.CreatedAt = clock.Now()
	}
	j.Status = job.StatusPending
	s.jobs[j.ID] = j
	return j.ID
}

// ListPending returns all jobs still awaiting review.
func (s *Service) ListPending(_ context.Context) ([]*job.Job, error) {
	return s.listByStatus(job.StatusPending), nil
}

// Approve marks a job approved. Approving a job that already left the
// pending state is a no-op, so re-approval is harmless.
func (s *Service) Approve(_ context.Context, id string, _ string) error {
	return s.transition(id, job.StatusApproved)
}

// Deny marks a job denied, with the same idempotency as Approve.
func (s *Service) Deny(_ context.Context, id string, _ string) error {
	return s.transition(id, job.StatusDenied)
}

// ListCompleted returns all jobs that finished execution.
func (s *Service) ListCompleted(_ context.Context) ([]*job.Job, error) {
	return s.listByStatus(job.StatusCompleted), nil
}

// Complete moves an approved job to completed, stamping the completion
// time. Tests use it to simulate the executor.
func (s *Service) Complete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("job %s: %w", id, dao.ErrNotFound)
	}
	if j.Status != job.StatusApproved {
		return fmt.Errorf("job %s is %s, not approved", id, j.Status)
	}
	now := clock.Now()
	j.Status = job.StatusCompleted
	j.CompletedAt = &now
	return nil
}

// Status returns the current status of a job.
func (s *Service) Status(id string) (job.Status, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.jobs[id]
	if !ok {
		return "", fmt.Errorf("job %s: %w", id, dao.ErrNotFound)
	}
	return j.Status, nil
}

func (s *Service) transition(id string, status job.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("job %s: %w", id, dao.ErrNotFound)
	}
	if j.Status != job.StatusPending {
		return nil
	}
	j.Status = status
	return nil
}

func (s *Service) listByStatus(status job.Status) []*job.Job {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*job.Job
	for _, j := range s.jobs {
		if j.Status == status {
			out = append(out, j)
		}
	}
	return out
}

// New creates an empty in-memory queue.
func New() *Service {
	return &Service{jobs: make(map[string]*job.Job)}
}
