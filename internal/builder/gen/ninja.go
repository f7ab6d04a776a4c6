package gen

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

type NinjaGen struct {
	cc, cxx string
	units   map[string]Unit
}

func NewNinjaGen() *NinjaGen {
	return &NinjaGen{units: make(map[string]Unit)}
}

func (g *NinjaGen) SetCompiler(cc, cxx string) {
	g.cc, g.cxx = cc, cxx
}

func (g *NinjaGen) BuildFile() string { return "build.ninja" }

var (
	ninjaPathEscaper = strings.NewReplacer("$", "$$", ":", "$:", " ", "$ ")
	ninjaVarEscaper  = strings.NewReplacer("$", "$$")
)

func quote(s string) string { return ninjaPathEscaper.Replace(filepath.ToSlash(s)) }

func flags(f []string) string { return ninjaVarEscaper.Replace(strings.Join(f, " ")) }

func (g *NinjaGen) AddUnit(u Unit) {
	g.units[u.Key()] = u
}

func (g *NinjaGen) Generate() (string, error) {
	var sb strings.Builder

	writeln(&sb, "ninja_required_version = 1.1")
	writeln(&sb, "cc = ", g.cc)
	writeln(&sb, "cxx = ", g.cxx)
	writeln(&sb)

	write(&sb,
		`rule cc
  command = $cc $cflags -c $in -o $out
  description = CC $out
rule cxx
  command = $cxx $cflags -c $in -o $out
  description = CXX $out
rule link
  command = $ld -o $out $in $ldflags
  description = LINK $out
rule shlink
  command = $ld -shared -o $out $in $ldflags
  description = LINK $out
rule ar
  command = ar rcs $out $in
  description = AR $out
`)

	units := sortedUnits(g.units)
	for _, u := range units {
		writeln(&sb)
		writeln(&sb, "# ", u.Package, " (", variantLabel(u.Variant), ")")

		sources := unitSources(u)
		for _, src := range sources {
			rule := "cc"
			if src.isCxx {
				rule = "cxx"
			}
			writeln(&sb, "build ", quote(src.obj), ": ", rule, " ", quote(src.src))
			writeln(&sb, "  cflags = ", flags(u.Cflags))
		}

		rule := "link"
		switch u.Kind {
		case StaticLibrary:
			rule = "ar"
		case SharedLibrary:
			rule = "shlink"
		}

		write(&sb, "build ", quote(u.Key()), ": ", rule)
		for _, src := range sources {
			write(&sb, " ", quote(src.obj))
		}
		// static libraries don't link their dependencies in
		if u.Kind != StaticLibrary {
			for _, dep := range u.Dependencies {
				write(&sb, " ", quote(dep))
			}
		} else if len(u.Dependencies) > 0 {
			write(&sb, " ||")
			for _, dep := range u.Dependencies {
				write(&sb, " ", quote(dep))
			}
		}
		writeln(&sb)

		if u.Kind != StaticLibrary {
			ld := "$cc"
			if hasCxx(g.units, u) {
				ld = "$cxx"
			}
			writeln(&sb, "  ld = ", ld)
			writeln(&sb, "  ldflags = ", flags(u.Ldflags))
		}
	}

	return sb.String(), nil
}

func variantLabel(variant string) string {
	if variant == "" {
		return "default variant"
	}
	return variant
}

func (g *NinjaGen) Invoke(buildDir string) error {
	cmd := exec.Command("ninja", "-C", buildDir)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	return cmd.Run()
}
