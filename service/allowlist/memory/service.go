// Package memory provides an in-memory allowlist store used by tests and
// embedders that do not need durability.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/viant/trustor/service/allowlist"
)

// Service is an in-memory implementation of allowlist.Service.
type Service struct {
	mu      sync.RWMutex
	senders map[string]bool
}

var _ allowlist.Service = (*Service)(nil)

// Add records a trusted sender.
func (s *Service) Add(_ context.Context, sender string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.senders[allowlist.Normalize(sender)] = true
	return nil
}

// Remove drops a trusted sender.
func (s *Service) Remove(_ context.Context, sender string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.senders, allowlist.Normalize(sender))
	return nil
}

// Contains reports sender membership.
func (s *Service) Contains(_ context.Context, sender string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.senders[allowlist.Normalize(sender)], nil
}

// ListAll returns every trusted sender, sorted for deterministic output.
func (s *Service) ListAll(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.senders))
	for sender := range s.senders {
		out = append(out, sender)
	}
	sort.Strings(out)
	return out, nil
}

// New creates an empty in-memory allowlist store.
func New() *Service {
	return &Service{senders: make(map[string]bool)}
}
