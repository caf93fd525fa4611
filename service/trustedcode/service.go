// Package trustedcode defines the trusted-code store: job signatures marked
// as trusted plus the history of completed jobs eligible for marking.
package trustedcode

import (
	"context"

	"github.com/viant/trustor/model/job"
	"github.com/viant/trustor/service/signature"
)

// Service is the trusted-code store contract. Marking is symmetric with the
// signature computer: the same name/description/tags/files material always
// yields the same key, so two separately-submitted identical jobs are
// indistinguishable to this store.
type Service interface {
	// RecordHistory appends a history record for a completed job.
	// Idempotent on the job identifier: re-recording updates in place.
	RecordHistory(ctx context.Context, record *job.Record) error

	// Mark creates or refreshes the trusted entry for sig. Marking an
	// already-trusted signature refreshes its timestamp, never duplicates.
	Mark(ctx context.Context, sig signature.Signature, record *job.Record) error

	// Unmark removes the trusted entry; unmarking an absent signature
	// succeeds without effect.
	Unmark(ctx context.Context, sig signature.Signature) error

	// IsTrusted reports whether sig has been marked trusted.
	IsTrusted(ctx context.Context, sig signature.Signature) (bool, error)

	// Lookup returns the trusted entry for sig, or nil when absent.
	Lookup(ctx context.Context, sig signature.Signature) (*job.TrustedEntry, error)

	// ListTrusted returns every trusted entry.
	ListTrusted(ctx context.Context) ([]*job.TrustedEntry, error)

	// ListHistory returns all history records, most recent first.
	ListHistory(ctx context.Context) ([]*job.Record, error)
}
