// Package facade is the thin synchronous layer the external management API
// calls into. It wraps the two trust stores with input validation and the
// privacy rule: a non-administrative caller may only learn its own
// allowlist membership.
package facade

import (
	"context"
	"errors"
	"fmt"
	"log"
	"regexp"
	"sort"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
	"github.com/viant/trustor/internal/clock"
	"github.com/viant/trustor/model/job"
	"github.com/viant/trustor/service/allowlist"
	"github.com/viant/trustor/service/dao"
	"github.com/viant/trustor/service/signature"
	"github.com/viant/trustor/service/trustedcode"
	"github.com/viant/trustor/tracing"
)

// Caller identifies the authenticated identity behind a request; supplied
// by the surrounding platform.
type Caller = allowlist.Caller

var (
	// ErrUnauthorized mirrors the store-level privacy error.
	ErrUnauthorized = allowlist.ErrUnauthorized

	// ErrInvalidInput is returned for malformed identities or signatures,
	// before any storage is touched.
	ErrInvalidInput = errors.New("facade: invalid input")
)

var emailPattern = regexp.MustCompile(`^[^@\s/]+@[^@\s/]+\.[^@\s/]+$`)

// HistoryItem is a history record annotated with its current trust state.
type HistoryItem struct {
	*job.Record
	Trusted bool `json:"trusted"`
}

// CheckResult is the outcome of a compute-and-check request.
type CheckResult struct {
	Signature signature.Signature `json:"signature"`
	Trusted   bool                `json:"trusted"`
	Match     *job.TrustedEntry   `json:"match,omitempty"`
}

// Status is a point-in-time snapshot of the trust stores.
type Status struct {
	AllowlistSize int `json:"allowlistSize"`
	TrustedCount  int `json:"trustedCount"`
	HistoryCount  int `json:"historyCount"`
}

// Service holds references to the two stores and nothing else; it performs
// no polling and keeps no long-lived state.
type Service struct {
	allowlist allowlist.Service
	trusted   trustedcode.Service
}

// New creates the management facade over the two stores.
func New(allowlistService allowlist.Service, trustedService trustedcode.Service) *Service {
	return &Service{allowlist: allowlistService, trusted: trustedService}
}

// ListAllowlist returns every trusted sender; administrative capability
// required.
func (s *Service) ListAllowlist(ctx context.Context, caller Caller) ([]string, error) {
	if err := requireAdmin(caller); err != nil {
		return nil, err
	}
	senders, err := s.allowlist.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	sort.Strings(senders)
	return senders, nil
}

// ReplaceAllowlist overwrites the allowlist with target, applying the
// minimal add/remove diff against current state. Administrative capability
// required.
func (s *Service) ReplaceAllowlist(ctx context.Context, caller Caller, target []string) error {
	if err := requireAdmin(caller); err != nil {
		return err
	}
	ctx, span := tracing.StartSpan(ctx, "facade.replaceAllowlist", "SERVER")
	var err error
	defer func() { tracing.EndSpan(span, err) }()

	desired := make(map[string]bool, len(target))
	for _, sender := range target {
		normalized, vErr := validateSender(sender)
		if vErr != nil {
			err = vErr
			return err
		}
		desired[normalized] = true
	}
	current, err := s.allowlist.ListAll(ctx)
	if err != nil {
		return err
	}
	existing := make(map[string]bool, len(current))
	for _, sender := range current {
		existing[sender] = true
	}

	for sender := range existing {
		if !desired[sender] {
			if err = s.allowlist.Remove(ctx, sender); err != nil {
				return err
			}
		}
	}
	for sender := range desired {
		if !existing[sender] {
			if err = s.allowlist.Add(ctx, sender); err != nil {
				return err
			}
		}
	}
	logAllowlistDiff(existing, desired)
	return nil
}

// AddSender adds one trusted sender; administrative capability required.
func (s *Service) AddSender(ctx context.Context, caller Caller, sender string) error {
	if err := requireAdmin(caller); err != nil {
		return err
	}
	normalized, err := validateSender(sender)
	if err != nil {
		return err
	}
	return s.allowlist.Add(ctx, normalized)
}

// RemoveSender removes one trusted sender; administrative capability
// required.
func (s *Service) RemoveSender(ctx context.Context, caller Caller, sender string) error {
	if err := requireAdmin(caller); err != nil {
		return err
	}
	normalized, err := validateSender(sender)
	if err != nil {
		return err
	}
	return s.allowlist.Remove(ctx, normalized)
}

// CheckMembership reports whether target is allowlisted, subject to the
// privacy rule: callers may ask about themselves, administrators about
// anyone. The authorization failure carries no list contents.
func (s *Service) CheckMembership(ctx context.Context, caller Caller, target string) (bool, error) {
	normalized, err := validateSender(target)
	if err != nil {
		return false, err
	}
	return allowlist.CheckOwn(ctx, s.allowlist, caller, normalized)
}

// ListHistory returns marking candidates, most recent first, each
// annotated with whether its signature is currently trusted.
func (s *Service) ListHistory(ctx context.Context) ([]*HistoryItem, error) {
	records, err := s.trusted.ListHistory(ctx)
	if err != nil {
		return nil, err
	}
	items := make([]*HistoryItem, 0, len(records))
	for _, record := range records {
		trusted, err := s.trusted.IsTrusted(ctx, record.Signature)
		if err != nil {
			return nil, err
		}
		items = append(items, &HistoryItem{Record: record, Trusted: trusted})
	}
	return items, nil
}

// ListTrusted returns every trusted signature entry.
func (s *Service) ListTrusted(ctx context.Context) ([]*job.TrustedEntry, error) {
	return s.trusted.ListTrusted(ctx)
}

// Mark marks a signature as trusted. The signature must belong to a job in
// history so the entry can carry the record it was derived from.
// Administrative capability required.
func (s *Service) Mark(ctx context.Context, caller Caller, rawSignature string) error {
	if err := requireAdmin(caller); err != nil {
		return err
	}
	ctx, span := tracing.StartSpan(ctx, "facade.mark", "SERVER")
	var err error
	defer func() { tracing.EndSpan(span, err) }()

	sig, err := parseSignature(rawSignature)
	if err != nil {
		return err
	}
	records, err := s.trusted.ListHistory(ctx)
	if err != nil {
		return err
	}
	for _, record := range records {
		if record.Signature == sig {
			err = s.trusted.Mark(ctx, sig, record)
			return err
		}
	}
	err = fmt.Errorf("signature %.12s... not present in job history: %w", sig, dao.ErrNotFound)
	return err
}

// Unmark removes a signature from the trusted set; administrative
// capability required.
func (s *Service) Unmark(ctx context.Context, caller Caller, rawSignature string) error {
	if err := requireAdmin(caller); err != nil {
		return err
	}
	sig, err := parseSignature(rawSignature)
	if err != nil {
		return err
	}
	return s.trusted.Unmark(ctx, sig)
}

// ComputeAndCheck returns the signature of the supplied job fields and
// whether it is currently trusted, without mutating any store.
func (s *Service) ComputeAndCheck(ctx context.Context, name, description string, tags []string, files job.Files) (*CheckResult, error) {
	sig := signature.Compute(name, description, tags, files)
	match, err := s.trusted.Lookup(ctx, sig)
	if err != nil {
		return nil, err
	}
	return &CheckResult{Signature: sig, Trusted: match != nil, Match: match}, nil
}

// AppendHistory manually records a job completed outside the normal
// reconciliation path; administrative capability required.
func (s *Service) AppendHistory(ctx context.Context, caller Caller, record *job.Record) error {
	if err := requireAdmin(caller); err != nil {
		return err
	}
	if record == nil || record.ID == "" {
		return fmt.Errorf("%w: history record requires a job identifier", ErrInvalidInput)
	}
	normalized, err := validateSender(record.Sender)
	if err != nil {
		return err
	}
	record.Sender = normalized
	if record.Signature == "" {
		record.Signature = signature.Compute(record.Name, record.Description, record.Tags, record.Files)
	}
	if record.StoredAt.IsZero() {
		record.StoredAt = clock.Now()
	}
	return s.trusted.RecordHistory(ctx, record)
}

// StoreStatus returns a snapshot of the store sizes.
func (s *Service) StoreStatus(ctx context.Context) (*Status, error) {
	senders, err := s.allowlist.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	trusted, err := s.trusted.ListTrusted(ctx)
	if err != nil {
		return nil, err
	}
	history, err := s.trusted.ListHistory(ctx)
	if err != nil {
		return nil, err
	}
	return &Status{AllowlistSize: len(senders), TrustedCount: len(trusted), HistoryCount: len(history)}, nil
}

func requireAdmin(caller Caller) error {
	if !caller.Admin {
		return ErrUnauthorized
	}
	return nil
}

// validateSender rejects malformed identities before any storage access.
func validateSender(sender string) (string, error) {
	normalized := allowlist.Normalize(sender)
	if !emailPattern.MatchString(normalized) {
		return "", fmt.Errorf("%w: sender must be an email-shaped identity", ErrInvalidInput)
	}
	return normalized, nil
}

// parseSignature rejects malformed hex signatures before any storage
// access.
func parseSignature(raw string) (signature.Signature, error) {
	sig, ok := signature.Parse(strings.ToLower(strings.TrimSpace(raw)))
	if !ok {
		return "", fmt.Errorf("%w: signature must be %d lower-case hex characters", ErrInvalidInput, signature.Size)
	}
	return sig, nil
}

// logAllowlistDiff renders the applied replacement as a unified diff.
func logAllowlistDiff(before, after map[string]bool) {
	a := sortedKeys(before)
	b := sortedKeys(after)
	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(strings.Join(a, "\n")),
		B:        difflib.SplitLines(strings.Join(b, "\n")),
		FromFile: "allowlist(before)",
		ToFile:   "allowlist(after)",
		Context:  3,
	})
	if err != nil || diff == "" {
		return
	}
	log.Printf("facade: allowlist replaced:\n%s", diff)
}

func sortedKeys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
