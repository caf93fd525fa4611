// Package signature derives deterministic fingerprints from a job's semantic
// content. Two jobs share a signature iff their name, description, tag set
// and code files are byte-identical after canonical ordering.
package signature

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"sort"
)

// Signature is the lower-case hexadecimal encoding of a 256-bit digest.
type Signature string

// Size is the expected length of the hexadecimal representation.
const Size = sha256.Size * 2

// IsValid reports whether s is a well-formed lower-case hex digest.
func (s Signature) IsValid() bool {
	if len(s) != Size {
		return false
	}
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'f':
		default:
			return false
		}
	}
	return true
}

// Parse validates raw and returns it as a Signature.
func Parse(raw string) (Signature, bool) {
	s := Signature(raw)
	return s, s.IsValid()
}

// Compute returns the signature of the supplied job material. Tags are
// sorted and files are ordered by name so that input ordering is
// immaterial. Every field is framed with its length before hashing so that
// no two distinct inputs can collide by shifting bytes across field
// boundaries (e.g. a file name that ends where the next content begins).
// The function is pure and stable across process restarts.
func Compute(name, description string, tags []string, files map[string]string) Signature {
	h := sha256.New()
	writeFrame(h.Write, []byte(name))
	writeFrame(h.Write, []byte(description))

	sortedTags := append([]string(nil), tags...)
	sort.Strings(sortedTags)
	writeCount(h.Write, len(sortedTags))
	for _, tag := range sortedTags {
		writeFrame(h.Write, []byte(tag))
	}

	names := make([]string, 0, len(files))
	for fileName := range files {
		names = append(names, fileName)
	}
	sort.Strings(names)
	writeCount(h.Write, len(names))
	for _, fileName := range names {
		writeFrame(h.Write, []byte(fileName))
		writeFrame(h.Write, []byte(files[fileName]))
	}
	return Signature(hex.EncodeToString(h.Sum(nil)))
}

func writeFrame(write func([]byte) (int, error), data []byte) {
	writeCount(write, len(data))
	_, _ = write(data)
}

func writeCount(write func([]byte) (int, error), n int) {
	var buf [binary.MaxVarintLen64]byte
	_, _ = write(buf[:binary.PutUvarint(buf[:], uint64(n))])
}
