package gen

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUnitKey(t *testing.T) {
	assert.Equal(t, "libzip.a", UnitKey("", "libzip.a"))
	assert.Equal(t, filepath.Join("debugShared", "libzip.so"), Unit{Variant: "debugShared", Name: "libzip.so"}.Key())
}

func TestObjectPath(t *testing.T) {
	u := Unit{Name: "app", Variant: "debug", Basedir: filepath.FromSlash("/src/app")}
	assert.Equal(t,
		filepath.Join("QobsFiles", "debug", "app.dir", "src", "main.c.obj"),
		objectPath(u, filepath.FromSlash("/src/app/src/main.c")))

	// same base name outside basedir in two directories
	a := objectPath(u, filepath.FromSlash("/tmp/a/gen.c"))
	b := objectPath(u, filepath.FromSlash("/tmp/b/gen.c"))
	assert.NotEqual(t, a, b)
	assert.Equal(t, a, objectPath(u, filepath.FromSlash("/tmp/a/gen.c")))
	assert.Equal(t, filepath.Join("QobsFiles", "debug", "app.dir", "_ext"), filepath.Dir(filepath.Dir(a)))
	assert.Equal(t, "gen.c.obj", filepath.Base(a))

	// a name starting with dots is still inside basedir
	assert.Equal(t,
		filepath.Join("QobsFiles", "debug", "app.dir", "..gen.c.obj"),
		objectPath(u, filepath.FromSlash("/src/app/..gen.c")))
}

func TestHasCxx(t *testing.T) {
	units := map[string]Unit{
		"app":      {Name: "app", Sources: []string{"main.c"}, Dependencies: []string{"libfmt.a"}},
		"libfmt.a": {Name: "libfmt.a", Sources: []string{"format.cc"}},
		"tool":     {Name: "tool", Sources: []string{"tool.c"}},
	}
	assert.True(t, hasCxx(units, units["app"]))
	assert.False(t, hasCxx(units, units["tool"]))
	assert.True(t, isCxx("Widget.CPP"))
	assert.False(t, isCxx("widget.c"))
}
