package signature

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComputeOrderIndependence(t *testing.T) {
	files := map[string]string{"run.py": "print(1)", "util.py": "x = 2"}
	base := Compute("Report", "weekly", []string{"x", "a"}, files)

	reordered := Compute("Report", "weekly", []string{"a", "x"}, files)
	assert.Equal(t, base, reordered, "tag order must be immaterial")

	assert.True(t, base.IsValid())
	assert.Len(t, string(base), Size)
}

func TestComputeSensitivity(t *testing.T) {
	files := map[string]string{"run.py": "print(1)"}
	base := Compute("Report", "weekly", []string{"x"}, files)

	type testCase struct {
		name        string
		fname       string
		description string
		tags        []string
		files       map[string]string
	}

	tests := []testCase{
		{name: "name changed", fname: "report", description: "weekly", tags: []string{"x"}, files: files},
		{name: "description changed", fname: "Report", description: "weekly ", tags: []string{"x"}, files: files},
		{name: "tag added", fname: "Report", description: "weekly", tags: []string{"x", "y"}, files: files},
		{name: "file content changed", fname: "Report", description: "weekly", tags: []string{"x"}, files: map[string]string{"run.py": "print(2)"}},
		{name: "file renamed", fname: "Report", description: "weekly", tags: []string{"x"}, files: map[string]string{"run2.py": "print(1)"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.NotEqual(t, base, Compute(tc.fname, tc.description, tc.tags, tc.files))
		})
	}
}

// TestComputeBoundaryShifting feeds adversarial inputs where content is
// moved across field boundaries without changing the concatenation of all
// bytes. Length framing must keep the digests distinct.
func TestComputeBoundaryShifting(t *testing.T) {
	a := Compute("ab", "c", nil, nil)
	b := Compute("a", "bc", nil, nil)
	assert.NotEqual(t, a, b)

	// file name vs content boundary
	c := Compute("n", "", nil, map[string]string{"run.py": "print(1)"})
	d := Compute("n", "", nil, map[string]string{"run.pyp": "rint(1)"})
	assert.NotEqual(t, c, d)

	// two tags vs one tag holding both values
	e := Compute("n", "", []string{"x", "a"}, nil)
	f := Compute("n", "", []string{"xa"}, nil)
	assert.NotEqual(t, e, f)

	// a file split into two files with the same total bytes
	g := Compute("n", "", nil, map[string]string{"a": "12", "b": "34"})
	i := Compute("n", "", nil, map[string]string{"a": "1", "b": "234"})
	assert.NotEqual(t, g, i)
}

func TestComputeEmptyInputs(t *testing.T) {
	first := Compute("", "", nil, nil)
	second := Compute("", "", []string{}, map[string]string{})
	assert.Equal(t, first, second, "nil and empty collections are equivalent")
	assert.True(t, first.IsValid())
}

func TestParse(t *testing.T) {
	sig := Compute("n", "", nil, nil)
	parsed, ok := Parse(string(sig))
	assert.True(t, ok)
	assert.Equal(t, sig, parsed)

	_, ok = Parse("not-a-signature")
	assert.False(t, ok)
	_, ok = Parse(string(sig[:Size-1]) + "G")
	assert.False(t, ok)
}
