// Package allowlist defines the trusted-sender store: the set of identities
// whose jobs are auto-approved regardless of content.
package allowlist

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// Service is the allowlist store contract. Implementations must serialize
// concurrent mutations and guarantee that readers never observe a record
// mid-write.
type Service interface {
	// Add normalizes and persists a trusted sender; adding an existing
	// sender succeeds without effect.
	Add(ctx context.Context, sender string) error

	// Remove deletes the sender's record; removing an absent sender
	// succeeds without effect.
	Remove(ctx context.Context, sender string) error

	// Contains reports whether sender is trusted. It reflects every
	// completed Add/Remove: implementations read through to storage, so a
	// mutation is visible on the very next call (well inside the 30s
	// worst-case propagation budget callers may rely on).
	Contains(ctx context.Context, sender string) (bool, error)

	// ListAll returns every trusted sender. Administrative capability is
	// enforced by the management facade, not here.
	ListAll(ctx context.Context) ([]string, error)
}

// Caller identifies who invokes a membership check. The surrounding
// platform authenticates the identity; Admin marks the administrative
// capability.
type Caller struct {
	Identity string
	Admin    bool
}

// ErrUnauthorized is returned when the privacy rule is violated: a
// non-administrative caller may only learn its own membership. The error
// never carries list contents.
var ErrUnauthorized = errors.New("allowlist: unauthorized")

// CheckOwn returns target's membership only when the caller asks about
// itself or holds the administrative capability.
func CheckOwn(ctx context.Context, service Service, caller Caller, target string) (bool, error) {
	if !caller.Admin && Normalize(caller.Identity) != Normalize(target) {
		return false, ErrUnauthorized
	}
	return service.Contains(ctx, target)
}

// Normalize canonicalises a sender identity for storage and comparison.
func Normalize(sender string) string {
	return strings.ToLower(strings.TrimSpace(sender))
}

// EncodeRecordName returns the durable record name for a sender: a
// reversible, collision-free encoding of the normalized identity. Distinct
// senders never map to the same name and the name decodes back to the
// sender.
func EncodeRecordName(sender string) string {
	return hex.EncodeToString([]byte(Normalize(sender))) + ".json"
}

// DecodeRecordName recovers the sender identity from a record name.
func DecodeRecordName(name string) (string, error) {
	encoded := strings.TrimSuffix(name, ".json")
	if encoded == name {
		return "", fmt.Errorf("allowlist: unexpected record name %q", name)
	}
	data, err := hex.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("allowlist: malformed record name %q: %w", name, err)
	}
	return string(data), nil
}
