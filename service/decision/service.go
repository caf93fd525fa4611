// Package decision implements the trust verdict for a single pending job:
// approve when the sender is allowlisted or the code signature is trusted,
// otherwise leave the job for manual review.
package decision

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/viant/trustor/internal/clock"
	"github.com/viant/trustor/model/job"
	"github.com/viant/trustor/service/allowlist"
	"github.com/viant/trustor/service/signature"
	"github.com/viant/trustor/service/trustedcode"
)

// Verdict is the terminal state of a decision.
type Verdict string

const (
	Approved     Verdict = "approved"
	StillPending Verdict = "still_pending"
)

// Approval reasons. The allowlist check runs first because it is cheaper;
// either path alone is sufficient for approval.
const (
	ReasonAllowlist   = "allowlist"
	ReasonTrustedCode = "trusted_code"
)

// ErrMalformedJob is returned when a job lacks the fields required to
// evaluate it; the caller logs and skips the job, leaving it pending.
var ErrMalformedJob = errors.New("decision: malformed job")

// Decision is the outcome of evaluating one pending job against the
// current store snapshots.
type Decision struct {
	JobID     string              `json:"jobId"`
	JobName   string              `json:"jobName,omitempty"`
	Sender    string              `json:"sender"`
	Verdict   Verdict             `json:"verdict"`
	Reason    string              `json:"reason,omitempty"`
	Signature signature.Signature `json:"signature,omitempty"`
	DecidedAt time.Time           `json:"decidedAt"`
}

// ApprovalReason renders the reason string recorded on the queue's approve
// call, e.g. "Auto-approved (trusted sender (a@x.org)) at <RFC3339>".
func (d *Decision) ApprovalReason() string {
	var detail string
	switch d.Reason {
	case ReasonAllowlist:
		detail = fmt.Sprintf("trusted sender (%s)", d.Sender)
	case ReasonTrustedCode:
		detail = fmt.Sprintf("trusted code pattern (%.12s...)", d.Signature)
	default:
		detail = d.Reason
	}
	return fmt.Sprintf("Auto-approved (%s) at %s", detail, d.DecidedAt.Format(time.RFC3339))
}

// Event is published for every approval the reconciliation loop issues.
type Event struct {
	Topic    string    `json:"topic"`
	Decision *Decision `json:"decision"`
}

// TopicApproved is the event topic for auto-approval decisions.
const TopicApproved = "decision.approved"

// Service evaluates pending jobs against the two trust stores.
type Service struct {
	allowlist allowlist.Service
	trusted   trustedcode.Service
}

// Decide evaluates one job. The decision is pure given the current store
// snapshots; evaluating an already-approved job again is safe because the
// queue's approve operation is idempotent.
func (s *Service) Decide(ctx context.Context, j *job.Job) (*Decision, error) {
	if j == nil || j.ID == "" || j.Sender == "" {
		return nil, ErrMalformedJob
	}
	decision := &Decision{
		JobID:     j.ID,
		JobName:   j.Name,
		Sender:    allowlist.Normalize(j.Sender),
		Verdict:   StillPending,
		DecidedAt: clock.Now(),
	}

	trusted, err := s.allowlist.Contains(ctx, j.Sender)
	if err != nil {
		return nil, fmt.Errorf("allowlist check for job %s: %w", j.ID, err)
	}
	if trusted {
		decision.Verdict = Approved
		decision.Reason = ReasonAllowlist
		return decision, nil
	}

	decision.Signature = signature.Compute(j.Name, j.Description, j.Tags, j.Files)
	matched, err := s.trusted.IsTrusted(ctx, decision.Signature)
	if err != nil {
		return nil, fmt.Errorf("trusted code check for job %s: %w", j.ID, err)
	}
	if matched {
		decision.Verdict = Approved
		decision.Reason = ReasonTrustedCode
	}
	return decision, nil
}

// New creates a decision engine over the two trust stores.
func New(allowlistService allowlist.Service, trustedService trustedcode.Service) *Service {
	return &Service{allowlist: allowlistService, trusted: trustedService}
}
