package fs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/afs/url"
	"github.com/viant/trustor/internal/clock"
	"github.com/viant/trustor/service/allowlist"
)

// ownerOnlyMode restricts each sender record to its owner; administrators
// read the whole set through the store, which runs under the service
// account.
const ownerOnlyMode = os.FileMode(0o600)

// record is the durable per-sender unit.
type record struct {
	Sender  string `json:"sender"`
	AddedAt string `json:"addedAt"`
}

// Service implements a filesystem-based allowlist with one durable record
// per trusted sender.
type Service struct {
	basePath string
	fs       afs.Service
	mu       sync.RWMutex
}

// Ensure Service implements allowlist.Service
var _ allowlist.Service = (*Service)(nil)

// Add persists a sender record; re-adding an existing sender overwrites it
// in place and succeeds.
func (s *Service) Add(ctx context.Context, sender string) error {
	sender = allowlist.Normalize(sender)
	if sender == "" {
		return fmt.Errorf("sender cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(&record{Sender: sender, AddedAt: clock.Now().Format(time.RFC3339)})
	if err != nil {
		return fmt.Errorf("failed to marshal sender record: %w", err)
	}
	recordPath := s.recordPath(sender)
	if err := s.fs.Upload(ctx, recordPath, ownerOnlyMode, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to save sender record %s: %w", recordPath, err)
	}
	return nil
}

// Remove deletes the sender's record; removing an absent sender is a no-op.
func (s *Service) Remove(ctx context.Context, sender string) error {
	sender = allowlist.Normalize(sender)
	if sender == "" {
		return fmt.Errorf("sender cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	recordPath := s.recordPath(sender)
	exists, err := s.fs.Exists(ctx, recordPath)
	if err != nil {
		return fmt.Errorf("failed to check sender record: %w", err)
	}
	if !exists {
		return nil
	}
	if err := s.fs.Delete(ctx, recordPath); err != nil {
		return fmt.Errorf("failed to delete sender record %s: %w", recordPath, err)
	}
	return nil
}

// Contains reports sender membership, reading through to storage on every
// call so that facade mutations are visible to the reconciliation loop
// without any cache staleness.
func (s *Service) Contains(ctx context.Context, sender string) (bool, error) {
	sender = allowlist.Normalize(sender)
	if sender == "" {
		return false, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	exists, err := s.fs.Exists(ctx, s.recordPath(sender))
	if err != nil {
		return false, fmt.Errorf("failed to check sender record: %w", err)
	}
	return exists, nil
}

// ListAll returns every trusted sender, decoded from the record names.
func (s *Service) ListAll(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	objects, err := s.fs.List(ctx, s.basePath)
	if err != nil {
		return nil, fmt.Errorf("failed to list sender records: %w", err)
	}
	var senders []string
	for _, object := range objects {
		if object.IsDir() || !strings.HasSuffix(object.Name(), ".json") {
			continue
		}
		sender, err := allowlist.DecodeRecordName(object.Name())
		if err != nil {
			// A foreign file in the store directory is not fatal.
			fmt.Printf("Skipping unrecognised allowlist record %s: %v\n", object.URL(), err)
			continue
		}
		senders = append(senders, sender)
	}
	return senders, nil
}

// recordPath returns the durable record location for a sender.
func (s *Service) recordPath(sender string) string {
	return url.Join(s.basePath, allowlist.EncodeRecordName(sender))
}

// New creates a filesystem allowlist store rooted at basePath.
func New(basePath string) (*Service, error) {
	if basePath == "" {
		return nil, fmt.Errorf("base path cannot be empty")
	}
	fs := afs.New()
	ctx := context.Background()
	exists, _ := fs.Exists(ctx, basePath)
	if !exists {
		if err := fs.Create(ctx, basePath, file.DefaultDirOsMode, true); err != nil {
			return nil, fmt.Errorf("failed to create base directory: %w", err)
		}
	}
	basePath = url.Normalize(basePath, file.Scheme)
	return &Service{basePath: basePath, fs: fs}, nil
}
