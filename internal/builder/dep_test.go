package builder

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDepSource(t *testing.T) {
	tests := []struct {
		dep  string
		want depSource
	}{
		{
			dep: "gh:someone/something@master#0.1.0",
			want: depSource{
				kind:        depGit,
				location:    "https://github.com/someone/something.git",
				branch:      "master",
				commitOrTag: "0.1.0",
			},
		},
		{
			dep:  "cb:someone/something",
			want: depSource{kind: depGit, location: "https://codeberg.org/someone/something.git"},
		},
		{
			dep:  "git:https://example.com/something.git#12345abc",
			want: depSource{kind: depGit, location: "https://example.com/something.git", commitOrTag: "12345abc"},
		},
		{
			dep:  "git:ssh://git@example.com/something.git",
			want: depSource{kind: depGit, location: "ssh://git@example.com/something.git"},
		},
		{
			dep:  "https://example.com/something.zip",
			want: depSource{kind: depArchive, location: "https://example.com/something.zip"},
		},
		{
			dep:  "  ../relative/path ",
			want: depSource{kind: depPath, location: "../relative/path"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.dep, func(t *testing.T) {
			got, err := parseDepSource(tt.dep)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseDepSourceIllegal(t *testing.T) {
	for _, dep := range []string{"", "   ", "gh:", "git:"} {
		_, err := parseDepSource(dep)
		assert.ErrorIs(t, err, errIllegalDep, "dep %q", dep)
	}
}

func TestFetchPath(t *testing.T) {
	parent := t.TempDir()

	dir, err := depSource{kind: depPath, location: "../zlib"}.fetch("unused", parent)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(parent, "..", "zlib"), dir)

	abs := filepath.Join(parent, "abs")
	dir, err = depSource{kind: depPath, location: abs}.fetch("unused", "/elsewhere")
	require.NoError(t, err)
	assert.Equal(t, abs, dir)
}

func TestFetchArchiveUnsupported(t *testing.T) {
	_, err := depSource{kind: depArchive, location: "https://example.com/a.zip"}.fetch(t.TempDir(), "")
	assert.ErrorIs(t, err, errArchiveUnsupported)
}
