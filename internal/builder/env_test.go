package builder

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/qobs-build/qobs/internal/native"
	"github.com/sergi/go-diff/diffmatchpatch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEval(t *testing.T) {
	env := linuxEnv()
	env.BuildType = "debug"

	ok, err := env.Eval(`target_os == "linux" && build_type == "debug"`)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = env.Eval(`environ.HOME == "/root"`)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = env.Eval(`target_os`)
	assert.ErrorContains(t, err, "failed to compile expression")
}

func TestEvaluateString(t *testing.T) {
	env := linuxEnv()
	got, err := evaluateString("lib{{ target_arch }}-{{ 1 + 2 }}.a", env)
	require.NoError(t, err)
	assert.Equal(t, "libx86_64-3.a", got)

	got, err = evaluateString("no expressions", env)
	require.NoError(t, err)
	assert.Equal(t, "no expressions", got)
}

func TestForVariant(t *testing.T) {
	ids := identities(t, crossConfig)
	var id native.Identity
	for _, candidate := range ids {
		if candidate.Name == "releaseWindowsX86_64Shared" {
			id = candidate
		}
	}
	require.NotEmpty(t, id.Name)

	env := linuxEnv().ForVariant(id)
	assert.Equal(t, "windows", env.TargetOS)
	assert.Equal(t, "x86_64", env.TargetArch)
	assert.Equal(t, "release", env.BuildType)
	assert.Equal(t, "shared", env.Linkage)
	assert.Equal(t, "releaseWindowsX86_64Shared", env.Variant)
}

func TestReadFileAndPatch(t *testing.T) {
	dir := t.TempDir()
	const before = "int answer(void) { return 41; }\n"
	const after = "int answer(void) { return 42; }\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "answer.c"), []byte(before), 0o644))

	env := NewConfigEnv(dir)
	assert.Equal(t, before, env.ReadFile("answer.c"))

	dmp := diffmatchpatch.New()
	patch := dmp.PatchToText(dmp.PatchMake(before, after))
	assert.True(t, env.Patch("answer.c", patch))
	assert.Equal(t, after, env.ReadFile("answer.c"))
}

func TestResolveOutsidePackage(t *testing.T) {
	env := NewConfigEnv(t.TempDir())
	assert.Panics(t, func() { env.ReadFile("../secrets") })
}

func TestRunBuildScript(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "VERSION"), []byte("1.0\n"), 0o644))
	env := NewConfigEnv(dir)

	cfg := Config{Package: PackageSection{Name: "app"}}
	assert.NoError(t, cfg.RunBuildScript(env))

	cfg.Package.Build = `ReadFile("VERSION") == "1.0\n"`
	assert.NoError(t, cfg.RunBuildScript(env))

	cfg.Package.Build = `target_os == "plan9"`
	assert.ErrorContains(t, cfg.RunBuildScript(env), `build script for package "app" returned false`)

	cfg.Package.Build = `ReadFile("MISSING") == ""`
	assert.Error(t, cfg.RunBuildScript(env))
}
