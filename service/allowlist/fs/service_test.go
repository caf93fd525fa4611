package fs

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/trustor/service/allowlist"
)

func TestAddRemoveContains(t *testing.T) {
	ctx := context.Background()
	svc, err := New(t.TempDir())
	require.NoError(t, err)

	ok, err := svc.Contains(ctx, "a@x.org")
	assert.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, svc.Add(ctx, "A@X.org "))
	ok, err = svc.Contains(ctx, "a@x.org")
	assert.NoError(t, err)
	assert.True(t, ok, "lookups must be case and whitespace insensitive")

	// re-adding is a no-op success
	require.NoError(t, svc.Add(ctx, "a@x.org"))
	all, err := svc.ListAll(ctx)
	assert.NoError(t, err)
	assert.Equal(t, []string{"a@x.org"}, all)

	require.NoError(t, svc.Remove(ctx, "a@x.org"))
	ok, err = svc.Contains(ctx, "a@x.org")
	assert.NoError(t, err)
	assert.False(t, ok)

	// removing an absent sender succeeds
	assert.NoError(t, svc.Remove(ctx, "a@x.org"))
}

func TestRecordNameRoundTrip(t *testing.T) {
	for _, sender := range []string{"a@x.org", "weird+tag@sub.domain.io", "UPPER@CASE.ORG"} {
		name := allowlist.EncodeRecordName(sender)
		decoded, err := allowlist.DecodeRecordName(name)
		assert.NoError(t, err)
		assert.Equal(t, allowlist.Normalize(sender), decoded)
	}
	_, err := allowlist.DecodeRecordName("not-hex.json")
	assert.Error(t, err)
}

func TestRecordPermissions(t *testing.T) {
	ctx := context.Background()
	baseDir := t.TempDir()
	svc, err := New(baseDir)
	require.NoError(t, err)
	require.NoError(t, svc.Add(ctx, "a@x.org"))

	info, err := os.Stat(filepath.Join(baseDir, allowlist.EncodeRecordName("a@x.org")))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm(), "sender records are owner-readable only")
}

func TestCheckOwn(t *testing.T) {
	ctx := context.Background()
	svc, err := New(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, svc.Add(ctx, "a@x.org"))

	// caller asking about itself
	ok, err := allowlist.CheckOwn(ctx, svc, allowlist.Caller{Identity: "a@x.org"}, "a@x.org")
	assert.NoError(t, err)
	assert.True(t, ok)

	// admin asking about anyone
	ok, err = allowlist.CheckOwn(ctx, svc, allowlist.Caller{Identity: "root@x.org", Admin: true}, "a@x.org")
	assert.NoError(t, err)
	assert.True(t, ok)

	// non-admin asking about another identity gets an authorization error,
	// never a boolean
	_, err = allowlist.CheckOwn(ctx, svc, allowlist.Caller{Identity: "b@x.org"}, "a@x.org")
	assert.ErrorIs(t, err, allowlist.ErrUnauthorized)
}

func TestConcurrentMutation(t *testing.T) {
	ctx := context.Background()
	svc, err := New(t.TempDir())
	require.NoError(t, err)

	senders := []string{"a@x.org", "b@x.org", "c@x.org", "d@x.org"}
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sender := senders[i%len(senders)]
			_ = svc.Add(ctx, sender)
			_, _ = svc.Contains(ctx, sender)
		}(i)
	}
	wg.Wait()

	all, err := svc.ListAll(ctx)
	assert.NoError(t, err)
	assert.ElementsMatch(t, senders, all)
}
