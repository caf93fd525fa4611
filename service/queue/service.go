// Package queue declares the external job-queue collaborator contract. The
// queue owns job state; the engine only lists jobs and requests status
// transitions.
package queue

import (
	"context"

	"github.com/viant/trustor/model/job"
)

// Service is the surface the reconciliation loop consumes. Implementations
// must make Approve idempotent: approving an already-approved or completed
// job is harmless.
type Service interface {
	// ListPending returns jobs awaiting review.
	ListPending(ctx context.Context) ([]*job.Job, error)

	// Approve transitions a pending job to approved, recording reason.
	Approve(ctx context.Context, id string, reason string) error

	// Deny transitions a pending job to denied, recording reason. Part of
	// the queue contract; the reconciliation loop never calls it.
	Deny(ctx context.Context, id string, reason string) error

	// ListCompleted returns jobs that finished execution, feeding the
	// trusted-code history.
	ListCompleted(ctx context.Context) ([]*job.Job, error)
}
