package builder

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/qobs-build/qobs/internal/builder/gen"
	"github.com/qobs-build/qobs/internal/msg"
	"github.com/qobs-build/qobs/internal/native"
)

var (
	errCantRunLib      = errors.New("can't run a library target (target.lib is true)")
	errRunNeedsVariant = errors.New("run builds a single variant, pick one with --variant")
	errNoCompiler      = errors.New("no C/C++ compiler found, set CC and CXX")
)

const (
	GeneratorNinja  = "ninja"
	GeneratorQobs   = "qobs"
	GeneratorVS2022 = "vs2022"
)

// Package represents a single component (root package or dependency) in the build graph
type Package struct {
	Name   string
	Path   string
	Config *Config
	IsRoot bool
}

// kind is what the package produces in variant id. Dependencies are always
// linked statically.
func (p *Package) kind(id native.Identity) gen.Kind {
	switch {
	case !p.Config.Target.Lib:
		return gen.Executable
	case p.IsRoot && id.Linkage == native.Shared:
		return gen.SharedLibrary
	default:
		return gen.StaticLibrary
	}
}

// outputName returns the artifact file name of a package built for family
func outputName(name string, kind gen.Kind, family native.OperatingSystemFamily) string {
	switch kind {
	case gen.StaticLibrary:
		if family == native.Windows {
			return name + ".lib"
		}
		return "lib" + name + ".a"
	case gen.SharedLibrary:
		switch family {
		case native.Windows:
			return name + ".dll"
		case native.MacOS:
			return "lib" + name + ".dylib"
		}
		return "lib" + name + ".so"
	default:
		if family == native.Windows {
			return name + ".exe"
		}
		return name
	}
}

type Builder struct {
	cfg     *Config
	basedir string
	env     ConfigEnv
	host    native.TargetMachine

	// build scripts have side effects, so each package runs its script once
	scriptsRun map[string]bool
}

func NewBuilderInDirectory(path string) (*Builder, error) {
	var err error
	path, err = filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	env := NewConfigEnv(path)
	cfg, err := ParseConfigFromFile(filepath.Join(path, ConfigFilename), env)
	if err != nil {
		return nil, err
	}
	return &Builder{
		cfg:        cfg,
		basedir:    path,
		env:        env,
		host:       native.Host(),
		scriptsRun: make(map[string]bool),
	}, nil
}

func (b *Builder) Config() *Config            { return b.cfg }
func (b *Builder) Host() native.TargetMachine { return b.host }

// Identities enumerates every variant of the root package
func (b *Builder) Identities() ([]native.Identity, error) {
	return Identities(b.cfg)
}

// resolveBuildGraph fetches and parses every package reachable from the
// root, evaluating each Qobs.toml in env. Dependencies see the static
// linkage they are built with.
func (b *Builder) resolveBuildGraph(env ConfigEnv, depsDir string) (map[string]*Package, error) {
	rootCfg, err := ParseConfigFromFile(filepath.Join(b.basedir, ConfigFilename), env)
	if err != nil {
		return nil, err
	}

	packages := map[string]*Package{
		rootCfg.Package.Name: {Name: rootCfg.Package.Name, Path: b.basedir, Config: rootCfg, IsRoot: true},
	}

	type pending struct{ name, source, parentDir string }
	var queue []pending
	enqueue := func(pkg *Package) {
		for _, name := range slices.Sorted(maps.Keys(pkg.Config.Dependencies)) {
			queue = append(queue, pending{name, pkg.Config.Dependencies[name], pkg.Path})
		}
	}
	enqueue(packages[rootCfg.Package.Name])

	depEnv := env
	depEnv.Linkage = string(native.Static)

	for len(queue) > 0 {
		dep := queue[0]
		queue = queue[1:]
		if _, exists := packages[dep.name]; exists {
			continue
		}

		src, err := parseDepSource(dep.source)
		if err != nil {
			return nil, fmt.Errorf("dependency %q: %w", dep.name, err)
		}

		// remote dependencies are fetched once into depsDir
		dir := filepath.Join(depsDir, dep.name)
		if src.kind == depPath {
			if dir, err = src.fetch(dir, dep.parentDir); err != nil {
				return nil, fmt.Errorf("dependency %q: %w", dep.name, err)
			}
		} else if stat, err := os.Stat(dir); os.IsNotExist(err) || !stat.IsDir() {
			if err := os.MkdirAll(depsDir, 0o755); err != nil {
				return nil, err
			}
			if dir, err = src.fetch(dir, dep.parentDir); err != nil {
				return nil, fmt.Errorf("failed to fetch dependency %q: %w", dep.name, err)
			}
		}

		depConfig, err := ParseConfigFromFile(filepath.Join(dir, ConfigFilename), depEnv.WithBasedir(dir))
		if err != nil {
			return nil, fmt.Errorf("failed to parse config for dependency %q: %w", dep.name, err)
		}
		if depConfig.Package.Name != dep.name {
			msg.Warn("dependency %q has a mismatched package name: %q", dep.name, depConfig.Package.Name)
		}

		pkg := &Package{Name: depConfig.Package.Name, Path: dir, Config: depConfig}
		packages[dep.name] = pkg
		enqueue(pkg)
	}

	return packages, nil
}

// collectFiles globs patterns inside the package. With dirsOnly, matched
// files are replaced by their directories (used for include paths).
func collectFiles(pkg *Package, patterns []string, dirsOnly bool) ([]string, error) {
	var files []string
	dirs := make(map[string]struct{})
	fsys := os.DirFS(pkg.Path)

	var globparams []doublestar.GlobOption
	if !dirsOnly {
		globparams = append(globparams, doublestar.WithFilesOnly())
	}

	for _, pat := range patterns {
		if filepath.IsAbs(pat) {
			files = append(files, filepath.Clean(pat))
			continue
		}
		matches, err := doublestar.Glob(fsys, pat, globparams...)
		if err != nil {
			return nil, fmt.Errorf("bad pattern %q: %w", pat, err)
		}
		for _, match := range matches {
			absPath := filepath.Clean(filepath.Join(pkg.Path, match))
			if !dirsOnly {
				files = append(files, absPath)
				continue
			}
			if stat, err := os.Stat(absPath); err == nil && !stat.IsDir() {
				dirs[filepath.Dir(absPath)] = struct{}{}
			} else {
				dirs[absPath] = struct{}{}
			}
		}
	}

	if dirsOnly {
		files = append(files, slices.Collect(maps.Keys(dirs))...)
	}
	slices.Sort(files)
	return slices.Compact(files), nil
}

func createGenerator(generator, buildDir string) gen.Generator {
	switch generator {
	case GeneratorNinja:
		return gen.NewNinjaGen()
	case GeneratorQobs:
		return gen.NewQobsBuilder()
	case GeneratorVS2022:
		return gen.NewVS2022Gen(buildDir)
	default:
		panic("createGenerator: unreachable")
	}
}

// profileFlags are the compile flags of a build type
func (b *Builder) profileFlags(bt native.BuildType) []string {
	var cflags []string
	if bt.Debuggable {
		cflags = append(cflags, "-g")
	}
	if level := b.cfg.Profile[bt.Name].OptLevelString(); level != "" {
		cflags = append(cflags, "-O"+level)
	}
	return cflags
}

// linkOrder returns the non-header-only libraries name depends on,
// transitively, dependents first
func linkOrder(packages map[string]*Package, name string) []string {
	var order []string
	seen := make(map[string]bool)
	var visit func(string)
	visit = func(name string) {
		pkg, ok := packages[name]
		if !ok || seen[name] || pkg.IsRoot {
			return
		}
		seen[name] = true
		for _, dep := range slices.Sorted(maps.Keys(pkg.Config.Dependencies)) {
			visit(dep)
		}
		order = append(order, name)
	}
	for _, dep := range slices.Sorted(maps.Keys(packages[name].Config.Dependencies)) {
		visit(dep)
	}
	slices.Reverse(order)

	return slices.DeleteFunc(order, func(name string) bool {
		return packages[name].Config.Target.HeaderOnly
	})
}

// configurationLabel names a variant for IDEs, e.g. DebugShared
func configurationLabel(id native.Identity) string {
	label := title(id.BuildType.Name)
	if id.Linkage != "" {
		label += title(string(id.Linkage))
	}
	return label
}

func title(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// variantUnits configures the build graph for one variant of the root
// package and returns a unit per package that produces an artifact
func (b *Builder) variantUnits(id native.Identity, depsDir string, machineFlags []string) ([]gen.Unit, error) {
	env := b.env.ForVariant(id)
	packages, err := b.resolveBuildGraph(env, depsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve dependency graph: %w", err)
	}

	profileFlags := b.profileFlags(id.BuildType)
	// static dependencies of a shared library end up inside it
	pic := id.Linkage == native.Shared && id.TargetMachine.OS != native.Windows

	var units []gen.Unit
	for _, name := range slices.Sorted(maps.Keys(packages)) {
		pkg := packages[name]

		if !b.scriptsRun[pkg.Path] {
			if err := pkg.Config.RunBuildScript(env.WithBasedir(pkg.Path)); err != nil {
				return nil, err
			}
			b.scriptsRun[pkg.Path] = true
		}

		if pkg.Config.Target.HeaderOnly {
			continue
		}

		sources, err := collectFiles(pkg, pkg.Config.Target.Sources, false)
		if err != nil {
			return nil, fmt.Errorf("failed to collect sources for %s: %w", pkg.Name, err)
		}
		ownHeaders, err := collectFiles(pkg, pkg.Config.Target.Headers, true)
		if err != nil {
			return nil, fmt.Errorf("failed to collect headers for %s: %w", pkg.Name, err)
		}

		kind := pkg.kind(id)
		cflags := slices.Clone(profileFlags)
		cflags = append(cflags, machineFlags...)
		if pic && kind.IsLib() {
			cflags = append(cflags, "-fPIC")
		}
		cflags = append(cflags, pkg.Config.Target.Cflags...)
		for _, includePath := range ownHeaders {
			cflags = append(cflags, "-I"+includePath)
		}

		var deps []string
		for _, depName := range slices.Sorted(maps.Keys(pkg.Config.Dependencies)) {
			dep, ok := packages[depName]
			if !ok {
				return nil, fmt.Errorf("internal error: resolved dependency %q not found in package map", depName)
			}
			if !dep.Config.Target.Lib && !dep.Config.Target.HeaderOnly {
				return nil, fmt.Errorf("package %q depends on %q, which is not a library (target.lib = false)", pkg.Name, dep.Name)
			}
			depHeaders, err := collectFiles(dep, dep.Config.Target.Headers, true)
			if err != nil {
				return nil, fmt.Errorf("failed to collect headers for dependency %q: %w", dep.Name, err)
			}
			for _, includePath := range depHeaders {
				cflags = append(cflags, "-I"+includePath)
			}
		}
		for _, depName := range linkOrder(packages, name) {
			dep := packages[depName]
			depOutput := outputName(dep.Config.Package.Name, gen.StaticLibrary, id.TargetMachine.OS)
			deps = append(deps, gen.UnitKey(id.Name, depOutput))
		}

		for _, define := range slices.Sorted(maps.Keys(pkg.Config.Target.Defines)) {
			if v := pkg.Config.Target.Defines[define]; v != "" {
				cflags = append(cflags, "-D"+define+"="+v)
			} else {
				cflags = append(cflags, "-D"+define)
			}
		}

		ldflags := slices.Clone(machineFlags)
		ldflags = append(ldflags, pkg.Config.Target.Ldflags...)
		for _, lib := range pkg.Config.Target.Links {
			ldflags = append(ldflags, "-l"+lib)
		}
		for _, depName := range linkOrder(packages, name) {
			for _, lib := range packages[depName].Config.Target.Links {
				ldflags = append(ldflags, "-l"+lib)
			}
		}

		units = append(units, gen.Unit{
			Package:       pkg.Config.Package.Name,
			Name:          outputName(pkg.Config.Package.Name, kind, id.TargetMachine.OS),
			Variant:       id.Name,
			Configuration: configurationLabel(id),
			Arch:          string(id.TargetMachine.Arch),
			Debuggable:    id.Debuggable(),
			Optimized:     id.Optimized(),
			Kind:          kind,
			Basedir:       pkg.Path,
			Sources:       sources,
			Dependencies:  deps,
			Cflags:        cflags,
			Ldflags:       ldflags,
		})
	}

	return units, nil
}

// Build builds the selected variants of the root package with generator
// and returns them
func (b *Builder) Build(sel Selection, generator string) ([]native.Identity, error) {
	ids, err := b.Identities()
	if err != nil {
		return nil, err
	}
	selected, err := sel.Select(ids, b.host)
	if err != nil {
		return nil, err
	}

	buildDir := filepath.Join(b.basedir, "build")
	depsDir := filepath.Join(buildDir, "_deps")
	if err := os.MkdirAll(buildDir, 0o755); err != nil {
		return nil, err
	}

	g := createGenerator(generator, buildDir)
	cc, cxx := findCompiler(false), findCompiler(true)
	if generator != GeneratorVS2022 {
		if cc == "" || cxx == "" {
			return nil, errNoCompiler
		}
		g.SetCompiler(cc, cxx)
	}

	for _, id := range selected {
		msg.Status("Configuring", "%s %s", b.cfg.Package.Name, variantDisplayName(id))

		var flags []string
		if generator != GeneratorVS2022 {
			if flags, err = machineFlags(cc, id.TargetMachine, b.host); err != nil {
				return nil, fmt.Errorf("variant %s: %w", variantDisplayName(id), err)
			}
		}

		units, err := b.variantUnits(id, depsDir, flags)
		if err != nil {
			return nil, fmt.Errorf("variant %s: %w", variantDisplayName(id), err)
		}
		for _, u := range units {
			g.AddUnit(u)
		}
	}

	out, err := g.Generate()
	if err != nil {
		return nil, err
	}
	if out != "" {
		buildFile := filepath.Join(buildDir, g.BuildFile())
		if err := os.WriteFile(buildFile, []byte(out), 0o644); err != nil {
			return nil, err
		}
	}

	msg.Status("Building", "%s", b.cfg.Package.Name)
	if err := g.Invoke(buildDir); err != nil {
		return nil, err
	}
	return selected, nil
}

// ArtifactPath is where the root package's artifact for id ends up
func (b *Builder) ArtifactPath(id native.Identity) string {
	kind := (&Package{Config: b.cfg, IsRoot: true}).kind(id)
	name := outputName(b.cfg.Package.Name, kind, id.TargetMachine.OS)
	return filepath.Join(b.basedir, "build", gen.UnitKey(id.Name, name))
}

func (b *Builder) BuildAndRun(args []string, sel Selection, generator string) error {
	if b.cfg.Target.Lib {
		return errCantRunLib
	}
	if sel.All {
		return errRunNeedsVariant
	}

	built, err := b.Build(sel, generator)
	if err != nil {
		return err
	}
	if len(built) != 1 {
		return errRunNeedsVariant
	}

	cmd := exec.Command(b.ArtifactPath(built[0]), args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Stdin = os.Stdin
	return cmd.Run()
}

func variantDisplayName(id native.Identity) string {
	if id.Name == "" {
		return "(default variant)"
	}
	return id.Name
}
