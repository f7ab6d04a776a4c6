package gen

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// testUnits is an executable linking a static library, both in the debug variant
func testUnits(t *testing.T) (app, zip Unit) {
	src := t.TempDir()
	writeFile(t, filepath.Join(src, "app", "main.c"), "int main(void) { return 0; }\n")
	writeFile(t, filepath.Join(src, "zip", "zip.cc"), "int zip() { return 1; }\n")

	zip = Unit{
		Package: "zip",
		Name:    "libzip.a",
		Variant: "debug",
		Kind:    StaticLibrary,
		Basedir: filepath.Join(src, "zip"),
		Sources: []string{filepath.Join(src, "zip", "zip.cc")},
		Cflags:  []string{"-g"},
	}
	app = Unit{
		Package:      "app",
		Name:         "app",
		Variant:      "debug",
		Kind:         Executable,
		Basedir:      filepath.Join(src, "app"),
		Sources:      []string{filepath.Join(src, "app", "main.c")},
		Dependencies: []string{zip.Key()},
		Cflags:       []string{"-g"},
		Ldflags:      []string{"-lm"},
	}
	return app, zip
}

func newTestBuilder(buildDir string, units ...Unit) *QobsBuilder {
	g := NewQobsBuilder()
	g.SetCompiler("cc", "c++")
	g.buildDir = buildDir
	g.stateFile = filepath.Join(buildDir, g.BuildFile())
	for _, u := range units {
		g.AddUnit(u)
	}
	return g
}

func TestLinkLevels(t *testing.T) {
	g := NewQobsBuilder()
	g.AddUnit(Unit{Name: "app", Dependencies: []string{"libpng.a", "libfmt.a"}})
	g.AddUnit(Unit{Name: "libpng.a", Dependencies: []string{"libz.a"}})
	g.AddUnit(Unit{Name: "libz.a"})
	g.AddUnit(Unit{Name: "libfmt.a"})

	levels, err := g.linkLevels()
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"libfmt.a", "libz.a"}, {"libpng.a"}, {"app"}}, levels)
}

func TestLinkLevelsErrors(t *testing.T) {
	g := NewQobsBuilder()
	g.AddUnit(Unit{Name: "a", Dependencies: []string{"b"}})
	g.AddUnit(Unit{Name: "b", Dependencies: []string{"a"}})
	g.AddUnit(Unit{Name: "c"})
	_, err := g.linkLevels()
	assert.EqualError(t, err, "dependency cycle detected involving units: [a b]")

	g = NewQobsBuilder()
	g.AddUnit(Unit{Name: "a", Dependencies: []string{"missing"}})
	_, err = g.linkLevels()
	assert.EqualError(t, err, "unit `a` lists a non-existent dependency: `missing`")
}

func TestPlanBuildIncremental(t *testing.T) {
	app, zip := testUnits(t)
	buildDir := t.TempDir()

	g := newTestBuilder(buildDir, app, zip)
	levels, err := g.linkLevels()
	require.NoError(t, err)

	// nothing built yet
	compiles, waves, err := g.planBuild(levels)
	require.NoError(t, err)
	require.Len(t, compiles, 2)
	assert.Equal(t, "c++", compiles[0].cc)
	assert.Equal(t, filepath.Join(buildDir, "QobsFiles", "debug", "libzip.a.dir", "zip.cc.obj"), compiles[0].obj)
	assert.Equal(t, "cc", compiles[1].cc)
	require.Len(t, waves, 2)
	assert.Equal(t, zip.Key(), waves[0][0].key)
	assert.Equal(t, app.Key(), waves[1][0].key)

	link := waves[1][0]
	assert.Equal(t, "c++", link.cc, "linking C++ code needs the C++ driver")
	assert.Equal(t, []string{filepath.Join(buildDir, zip.Key())}, link.deps)
	assert.Equal(t, []string{"-lm"}, link.ldflags)

	// pretend the build ran
	for _, job := range compiles {
		writeFile(t, job.obj, "obj")
	}
	writeFile(t, filepath.Join(buildDir, zip.Key()), "archive")
	writeFile(t, filepath.Join(buildDir, app.Key()), "exe")
	require.NoError(t, g.updateBuildState(zip))
	require.NoError(t, g.updateBuildState(app))
	require.NoError(t, g.saveBuildState())

	// a fresh run loads the state and finds nothing to do
	g = newTestBuilder(buildDir, app, zip)
	require.NoError(t, g.loadBuildState())
	compiles, waves, err = g.planBuild(levels)
	require.NoError(t, err)
	assert.Empty(t, compiles)
	assert.Empty(t, waves)

	// touching the library recompiles it and relinks its dependents
	writeFile(t, zip.Sources[0], "int zip() { return 2; }\n")
	state := g.buildState
	g = newTestBuilder(buildDir, app, zip)
	g.buildState = state
	compiles, waves, err = g.planBuild(levels)
	require.NoError(t, err)
	require.Len(t, compiles, 1)
	assert.Equal(t, zip.Sources[0], compiles[0].src)
	require.Len(t, waves, 2)

	// changed flags relink without recompiling
	app.Ldflags = []string{"-lm", "-lpthread"}
	writeFile(t, zip.Sources[0], "int zip() { return 1; }\n")
	g = newTestBuilder(buildDir, app, zip)
	g.buildState = state
	compiles, waves, err = g.planBuild(levels)
	require.NoError(t, err)
	assert.Empty(t, compiles)
	require.Len(t, waves, 1)
	assert.Equal(t, app.Key(), waves[0][0].key)

	// changed cflags recompile every source of the unit and relink dependents
	zip.Cflags = []string{"-g", "-O2"}
	g = newTestBuilder(buildDir, app, zip)
	g.buildState = state
	compiles, waves, err = g.planBuild(levels)
	require.NoError(t, err)
	require.Len(t, compiles, 1)
	assert.Equal(t, zip.Sources[0], compiles[0].src)
	assert.Equal(t, []string{"-g", "-O2"}, compiles[0].cflags)
	require.Len(t, waves, 2)
	assert.Equal(t, zip.Key(), waves[0][0].key)
	assert.Equal(t, app.Key(), waves[1][0].key)
}

func TestSaveBuildStateRoundTrip(t *testing.T) {
	app, zip := testUnits(t)
	buildDir := t.TempDir()
	writeFile(t, filepath.Join(buildDir, zip.Key()), "archive")

	g := newTestBuilder(buildDir, app, zip)
	require.NoError(t, g.updateBuildState(zip))
	require.NoError(t, g.saveBuildState())
	assert.FileExists(t, filepath.Join(buildDir, "qobs_build_state.json"))

	g = newTestBuilder(buildDir, app, zip)
	require.NoError(t, g.loadBuildState())
	require.Contains(t, g.buildState, zip.Key())
	assert.Equal(t, []string{"-g"}, g.buildState[zip.Key()].Cflags)
}

func TestQobsBuilderGeneratesNothing(t *testing.T) {
	out, err := NewQobsBuilder().Generate()
	require.NoError(t, err)
	assert.Empty(t, out)
}
