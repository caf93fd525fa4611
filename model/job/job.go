package job

import (
	"time"

	"github.com/viant/trustor/service/signature"
)

// Status represents the lifecycle state of a job inside the external queue.
type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusDenied    Status = "denied"
	StatusCompleted Status = "completed"
)

// Files maps a code file name to its exact content.
type Files map[string]string

// Names returns the file names.
func (f Files) Names() []string {
	names := make([]string, 0, len(f))
	for name := range f {
		names = append(names, name)
	}
	return names
}

// Job is the read-only view of a queued code-execution job. The queue owns
// the job; this engine only requests status transitions.
type Job struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Tags        []string   `json:"tags,omitempty"`
	Files       Files      `json:"files,omitempty"`
	Sender      string     `json:"sender"`
	Status      Status     `json:"status"`
	CreatedAt   time.Time  `json:"createdAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// Record is an immutable history entry for a completed job, eligible for
// trusted-code marking.
type Record struct {
	ID          string              `json:"id"` // job identifier, unique within history
	Name        string              `json:"name"`
	Description string              `json:"description,omitempty"`
	Tags        []string            `json:"tags,omitempty"`
	Files       Files               `json:"files,omitempty"`
	Sender      string              `json:"sender"`
	Signature   signature.Signature `json:"signature"`
	CompletedAt time.Time           `json:"completedAt"`
	StoredAt    time.Time           `json:"storedAt"`
}

// NewRecord derives a history record from a completed job, computing its
// signature from the job's semantic content.
func NewRecord(j *Job, storedAt time.Time) *Record {
	completedAt := storedAt
	if j.CompletedAt != nil {
		completedAt = *j.CompletedAt
	}
	return &Record{
		ID:          j.ID,
		Name:        j.Name,
		Description: j.Description,
		Tags:        append([]string(nil), j.Tags...),
		Files:       j.Files,
		Sender:      j.Sender,
		Signature:   signature.Compute(j.Name, j.Description, j.Tags, j.Files),
		CompletedAt: completedAt,
		StoredAt:    storedAt,
	}
}

// TrustedEntry maps a signature to the history record it was derived from.
type TrustedEntry struct {
	Signature signature.Signature `json:"signature"`
	Record    *Record             `json:"record,omitempty"`
	MarkedAt  time.Time           `json:"markedAt"`
}
