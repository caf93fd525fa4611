// Package memory provides an in-memory trusted-code store used by tests
// and embedders that do not need durability.
package memory

import (
	"context"
	"sort"

	"github.com/viant/trustor/internal/clock"
	"github.com/viant/trustor/model/job"
	"github.com/viant/trustor/service/dao"
	"github.com/viant/trustor/service/dao/store"
	"github.com/viant/trustor/service/signature"
	"github.com/viant/trustor/service/trustedcode"
)

// key selectors - grab the identifying field
func recordKey(r *job.Record) string      { return r.ID }
func entryKey(e *job.TrustedEntry) string { return string(e.Signature) }

// Service is an in-memory implementation of trustedcode.Service backed by
// the generic memory store.
type Service struct {
	history *store.MemoryStore[string, job.Record]
	trusted *store.MemoryStore[string, job.TrustedEntry]
}

var _ trustedcode.Service = (*Service)(nil)

// RecordHistory stores or refreshes a history record keyed by job ID.
func (s *Service) RecordHistory(ctx context.Context, record *job.Record) error {
	if record == nil {
		return dao.ErrNilEntity
	}
	if record.ID == "" {
		return dao.ErrInvalidID
	}
	return s.history.Save(ctx, record)
}

// Mark creates or refreshes the trusted entry for sig.
func (s *Service) Mark(ctx context.Context, sig signature.Signature, record *job.Record) error {
	if !sig.IsValid() {
		return dao.ErrInvalidID
	}
	return s.trusted.Save(ctx, &job.TrustedEntry{Signature: sig, Record: record, MarkedAt: clock.Now()})
}

// Unmark removes the trusted entry for sig.
func (s *Service) Unmark(ctx context.Context, sig signature.Signature) error {
	if !sig.IsValid() {
		return dao.ErrInvalidID
	}
	return s.trusted.Delete(ctx, string(sig))
}

// IsTrusted reports whether sig is marked trusted.
func (s *Service) IsTrusted(ctx context.Context, sig signature.Signature) (bool, error) {
	entry, err := s.trusted.Load(ctx, string(sig))
	return entry != nil, err
}

// Lookup returns the trusted entry for sig, or nil.
func (s *Service) Lookup(ctx context.Context, sig signature.Signature) (*job.TrustedEntry, error) {
	return s.trusted.Load(ctx, string(sig))
}

// ListTrusted returns every trusted entry.
func (s *Service) ListTrusted(ctx context.Context) ([]*job.TrustedEntry, error) {
	return s.trusted.List(ctx)
}

// ListHistory returns all history records, most recent first.
func (s *Service) ListHistory(ctx context.Context) ([]*job.Record, error) {
	records, err := s.history.List(ctx)
	if err != nil {
		return nil, err
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].StoredAt.After(records[j].StoredAt)
	})
	return records, nil
}

// New creates an empty in-memory trusted-code store.
func New() *Service {
	return &Service{
		history: store.NewMemoryStore[string, job.Record](recordKey),
		trusted: store.NewMemoryStore[string, job.TrustedEntry](entryKey),
	}
}
