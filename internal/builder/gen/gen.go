package gen

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"strings"
)

// Kind is what a unit produces
type Kind int

const (
	Executable Kind = iota
	StaticLibrary
	SharedLibrary
)

func (k Kind) IsLib() bool { return k != Executable }

// Unit is one artifact of one package in one variant
type Unit struct {
	Package       string // package name
	Name          string // artifact file name, e.g. libfoo.a
	Variant       string // variant name, empty when a package has a single variant
	Configuration string // human label of the variant, e.g. Debug or ReleaseShared
	Arch          string // target architecture
	Debuggable    bool
	Optimized     bool
	Kind          Kind
	Basedir       string
	Sources       []string
	Dependencies  []string // keys of units in the same variant
	Cflags        []string
	Ldflags       []string
}

// Key identifies the unit among all units of a build: its output path
// relative to the build directory.
func (u Unit) Key() string {
	return UnitKey(u.Variant, u.Name)
}

func UnitKey(variant, name string) string {
	if variant == "" {
		return name
	}
	return filepath.Join(variant, name)
}

type Generator interface {
	SetCompiler(cc, cxx string)
	AddUnit(u Unit)
	Generate() (string, error)
	BuildFile() string
	Invoke(buildDir string) error
}

var cxxExtensions = []string{".cpp", ".cc", ".cxx", ".c++", ".cppm", ".ixx", ".mm"}

func isCxx(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range cxxExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

// sourceFile is a source file and the object file it compiles to
type sourceFile struct {
	src   string
	obj   string
	isCxx bool
}

// objectPath places objects under QobsFiles/<variant>/<name>.dir mirroring
// the source tree. Sources outside basedir go under a directory named after
// a hash of their parent directory.
func objectPath(u Unit, src string) string {
	rel, err := filepath.Rel(u.Basedir, src)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		sum := sha256.Sum256([]byte(filepath.Dir(src)))
		rel = filepath.Join("_ext", hex.EncodeToString(sum[:4]), filepath.Base(src))
	}
	return filepath.Join("QobsFiles", u.Variant, u.Name+".dir", rel+".obj")
}

func unitSources(u Unit) []sourceFile {
	files := make([]sourceFile, len(u.Sources))
	for i, src := range u.Sources {
		files[i] = sourceFile{src: src, obj: objectPath(u, src), isCxx: isCxx(src)}
	}
	return files
}

// hasCxx reports whether the unit or anything it links has C++ sources
func hasCxx(units map[string]Unit, u Unit) bool {
	seen := map[string]bool{}
	var visit func(Unit) bool
	visit = func(u Unit) bool {
		if seen[u.Key()] {
			return false
		}
		seen[u.Key()] = true
		for _, src := range u.Sources {
			if isCxx(src) {
				return true
			}
		}
		for _, dep := range u.Dependencies {
			if d, ok := units[dep]; ok && visit(d) {
				return true
			}
		}
		return false
	}
	return visit(u)
}
