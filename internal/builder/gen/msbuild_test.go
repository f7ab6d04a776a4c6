package gen

import (
	"errors"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stubMsbuildLookup(t *testing.T, onPath string, roots []string, rootsErr error) {
	t.Helper()
	oldLook, oldRoots := lookPath, vsInstallationPaths
	t.Cleanup(func() { lookPath, vsInstallationPaths = oldLook, oldRoots })

	lookPath = func(file string) (string, error) {
		if onPath == "" {
			return "", exec.ErrNotFound
		}
		return onPath, nil
	}
	vsInstallationPaths = func() ([]string, error) { return roots, rootsErr }
}

func TestFindMsbuildPrefersPath(t *testing.T) {
	stubMsbuildLookup(t, "/usr/bin/msbuild", nil, errors.New("should not be asked"))
	path, err := FindMsbuild()
	require.NoError(t, err)
	assert.Equal(t, "/usr/bin/msbuild", path)
}

func TestFindMsbuildInInstance(t *testing.T) {
	empty := t.TempDir()
	vs := t.TempDir()
	exe := filepath.Join(vs, "MSBuild", "Current", "Bin", "MSBuild.exe")
	writeFile(t, exe, "")

	stubMsbuildLookup(t, "", []string{empty, vs}, nil)
	path, err := FindMsbuild()
	require.NoError(t, err)
	assert.Equal(t, exe, path)
}

func TestFindMsbuildMissing(t *testing.T) {
	stubMsbuildLookup(t, "", []string{t.TempDir()}, nil)
	_, err := FindMsbuild()
	assert.ErrorIs(t, err, errNoMsbuild)

	setupErr := errors.New("setup API unavailable")
	stubMsbuildLookup(t, "", nil, setupErr)
	_, err = FindMsbuild()
	assert.ErrorIs(t, err, errNoMsbuild)
	assert.ErrorIs(t, err, setupErr)
}
