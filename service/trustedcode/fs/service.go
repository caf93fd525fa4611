package fs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/afs/option"
	"github.com/viant/afs/url"
	"github.com/viant/trustor/internal/clock"
	"github.com/viant/trustor/model/job"
	"github.com/viant/trustor/service/dao"
	"github.com/viant/trustor/service/signature"
	"github.com/viant/trustor/service/trustedcode"
)

const (
	historyFolder = "history"
	trustedFolder = "trusted"
)

// Service implements a filesystem-based trusted-code store: one JSON record
// per history entry under history/, one per trusted signature under
// trusted/.
type Service struct {
	basePath string
	fs       afs.Service
	mu       sync.RWMutex
}

var _ trustedcode.Service = (*Service)(nil)

// RecordHistory persists a completed-job record keyed by job identifier.
func (s *Service) RecordHistory(ctx context.Context, record *job.Record) error {
	if record == nil {
		return dao.ErrNilEntity
	}
	if record.ID == "" {
		return dao.ErrInvalidID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal history record: %w", err)
	}
	recordPath := s.historyPath(record.ID)
	if err := s.fs.Upload(ctx, recordPath, file.DefaultFileOsMode, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to save history record %s: %w", recordPath, err)
	}
	return nil
}

// Mark creates or refreshes the trusted entry for sig.
func (s *Service) Mark(ctx context.Context, sig signature.Signature, record *job.Record) error {
	if !sig.IsValid() {
		return fmt.Errorf("%w: malformed signature %q", dao.ErrInvalidID, sig)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entry := &job.TrustedEntry{Signature: sig, Record: record, MarkedAt: clock.Now()}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal trusted entry: %w", err)
	}
	entryPath := s.trustedPath(sig)
	if err := s.fs.Upload(ctx, entryPath, file.DefaultFileOsMode, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to save trusted entry %s: %w", entryPath, err)
	}
	return nil
}

// Unmark removes the trusted entry; absent signatures are a no-op.
func (s *Service) Unmark(ctx context.Context, sig signature.Signature) error {
	if !sig.IsValid() {
		return fmt.Errorf("%w: malformed signature %q", dao.ErrInvalidID, sig)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entryPath := s.trustedPath(sig)
	exists, err := s.fs.Exists(ctx, entryPath)
	if err != nil {
		return fmt.Errorf("failed to check trusted entry: %w", err)
	}
	if !exists {
		return nil
	}
	if err := s.fs.Delete(ctx, entryPath); err != nil {
		return fmt.Errorf("failed to delete trusted entry %s: %w", entryPath, err)
	}
	return nil
}

// IsTrusted reports whether sig is currently marked trusted, reading
// through to storage on every call.
func (s *Service) IsTrusted(ctx context.Context, sig signature.Signature) (bool, error) {
	if !sig.IsValid() {
		return false, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	exists, err := s.fs.Exists(ctx, s.trustedPath(sig))
	if err != nil {
		return false, fmt.Errorf("failed to check trusted entry: %w", err)
	}
	return exists, nil
}

// Lookup returns the trusted entry for sig, or nil when absent.
func (s *Service) Lookup(ctx context.Context, sig signature.Signature) (*job.TrustedEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entryPath := s.trustedPath(sig)
	exists, err := s.fs.Exists(ctx, entryPath)
	if err != nil {
		return nil, fmt.Errorf("failed to check trusted entry: %w", err)
	}
	if !exists {
		return nil, nil
	}
	data, err := s.fs.DownloadWithURL(ctx, entryPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read trusted entry: %w", err)
	}
	entry := &job.TrustedEntry{}
	if err := json.Unmarshal(data, entry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal trusted entry: %w", err)
	}
	return entry, nil
}

// ListTrusted returns every trusted entry.
func (s *Service) ListTrusted(ctx context.Context) ([]*job.TrustedEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var entries []*job.TrustedEntry
	err := s.listInto(ctx, path.Join(s.basePath, trustedFolder), func(data []byte) error {
		entry := &job.TrustedEntry{}
		if err := json.Unmarshal(data, entry); err != nil {
			return err
		}
		entries = append(entries, entry)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// ListHistory returns all history records, most recent first.
func (s *Service) ListHistory(ctx context.Context) ([]*job.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var records []*job.Record
	err := s.listInto(ctx, path.Join(s.basePath, historyFolder), func(data []byte) error {
		record := &job.Record{}
		if err := json.Unmarshal(data, record); err != nil {
			return err
		}
		records = append(records, record)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].StoredAt.After(records[j].StoredAt)
	})
	return records, nil
}

// listInto downloads every JSON record under parent and feeds it to accept.
// A single unreadable record is skipped so that it cannot take the whole
// listing down with it.
func (s *Service) listInto(ctx context.Context, parent string, accept func([]byte) error) error {
	objects, err := s.fs.List(ctx, parent, option.NewRecursive(true))
	if err != nil {
		return fmt.Errorf("failed to list records in %s: %w", parent, err)
	}
	for _, object := range objects {
		if object.IsDir() || !strings.HasSuffix(object.Name(), ".json") {
			continue
		}
		data, err := s.fs.Download(ctx, object)
		if err != nil {
			fmt.Printf("Error reading record %s: %v\n", object.URL(), err)
			continue
		}
		if err := accept(data); err != nil {
			fmt.Printf("Error unmarshaling record %s: %v\n", object.URL(), err)
		}
	}
	return nil
}

func (s *Service) historyPath(id string) string {
	return path.Join(s.basePath, historyFolder, fmt.Sprintf("%s.json", id))
}

func (s *Service) trustedPath(sig signature.Signature) string {
	return path.Join(s.basePath, trustedFolder, fmt.Sprintf("%s.json", sig))
}

// New creates a filesystem trusted-code store rooted at basePath.
func New(basePath string) (*Service, error) {
	if basePath == "" {
		return nil, fmt.Errorf("base path cannot be empty")
	}
	fs := afs.New()
	ctx := context.Background()
	for _, folder := range []string{historyFolder, trustedFolder} {
		parent := path.Join(basePath, folder)
		exists, _ := fs.Exists(ctx, parent)
		if !exists {
			if err := fs.Create(ctx, parent, file.DefaultDirOsMode, true); err != nil {
				return nil, fmt.Errorf("failed to create %s directory: %w", folder, err)
			}
		}
	}
	basePath = url.Normalize(basePath, file.Scheme)
	return &Service{basePath: basePath, fs: fs}, nil
}
