package gen

import (
	"bufio"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"slices"
	"sync"

	"github.com/qobs-build/qobs/internal/msg"
	"golang.org/x/sync/errgroup"
)

// BuildState is what the last successful build of a unit was made from
type BuildState struct {
	Sources      map[string]string `json:"sources,omitempty"`      // source file -> hash
	Dependencies map[string]string `json:"dependencies,omitempty"` // dependency key -> hash
	Cflags       []string          `json:"cflags,omitempty"`
	Ldflags      []string          `json:"ldflags,omitempty"`
}

type compileJob struct {
	src    string
	obj    string
	cflags []string
	cc     string
}

type linkJob struct {
	key     string
	objs    []string
	deps    []string
	out     string
	ldflags []string
	kind    Kind
	cc      string
}

// QobsBuilder compiles and links units itself, rebuilding only what changed
type QobsBuilder struct {
	cc, cxx    string
	units      map[string]Unit
	buildDir   string
	stateFile  string
	buildState map[string]*BuildState
	jobs       int

	hashMu    sync.Mutex
	hashCache map[string]string
}

func NewQobsBuilder() *QobsBuilder {
	return &QobsBuilder{
		units:      make(map[string]Unit),
		buildState: make(map[string]*BuildState),
		jobs:       runtime.NumCPU(),
		hashCache:  make(map[string]string),
	}
}

func (g *QobsBuilder) SetCompiler(cc, cxx string) {
	g.cc, g.cxx = cc, cxx
}

func (g *QobsBuilder) BuildFile() string {
	return "qobs_build_state.json"
}

func (g *QobsBuilder) AddUnit(u Unit) {
	g.units[u.Key()] = u
}

func (g *QobsBuilder) Generate() (string, error) {
	return "", nil // no build file needed
}

// Invoke performs the actual build
func (g *QobsBuilder) Invoke(buildDir string) error {
	g.buildDir = buildDir
	g.stateFile = filepath.Join(buildDir, g.BuildFile())

	if err := g.loadBuildState(); err != nil {
		msg.Warn("failed to load build state: %v", err)
	}

	levels, err := g.linkLevels()
	if err != nil {
		return err
	}

	compileJobs, linkWaves, err := g.planBuild(levels)
	if err != nil {
		return fmt.Errorf("build planning failed: %w", err)
	}

	total := len(compileJobs)
	for _, wave := range linkWaves {
		total += len(wave)
	}
	if total == 0 {
		msg.Info("no work to do")
		return nil
	}

	pb := msg.NewProgressBar(total, 2, os.Stdout)
	err = g.executeBuild(compileJobs, linkWaves, pb)
	pb.Finish()
	if err != nil {
		return err
	}

	if err := g.saveBuildState(); err != nil {
		msg.Warn("failed to save build state: %v", err)
	}
	return nil
}

// planBuild determines which compile and link jobs are necessary. Link jobs
// come in waves: a wave only depends on earlier waves.
func (g *QobsBuilder) planBuild(levels [][]string) (compileJobs []compileJob, linkWaves [][]linkJob, err error) {
	rebuilt := make(map[string]bool)

	for _, level := range levels {
		var wave []linkJob
		for _, key := range level {
			unit := g.units[key]
			oldState := g.buildState[key]

			relink, err := g.needsRelink(unit, oldState, rebuilt)
			if err != nil {
				return nil, nil, err
			}

			compiler := g.cc
			for _, src := range unitSources(unit) {
				objPath := filepath.Join(g.buildDir, src.obj)
				dirty, err := g.isSourceFileDirty(src, objPath, unit.Cflags, oldState)
				if err != nil {
					return nil, nil, fmt.Errorf("could not check status of %s: %w", src.src, err)
				}
				if !dirty {
					continue
				}
				compiler = g.cc
				if src.isCxx {
					compiler = g.cxx
				}
				compileJobs = append(compileJobs, compileJob{
					src:    src.src,
					obj:    objPath,
					cflags: unit.Cflags,
					cc:     compiler,
				})
				relink = true
			}

			if relink {
				rebuilt[key] = true
				wave = append(wave, g.createLinkJob(unit))
			}
		}
		if len(wave) > 0 {
			linkWaves = append(linkWaves, wave)
		}
	}

	return compileJobs, linkWaves, nil
}

// needsRelink covers everything except recompiled sources
func (g *QobsBuilder) needsRelink(unit Unit, oldState *BuildState, rebuilt map[string]bool) (bool, error) {
	if _, err := os.Stat(filepath.Join(g.buildDir, unit.Key())); os.IsNotExist(err) {
		return true, nil
	}
	if oldState == nil {
		return true, nil
	}
	if !slices.Equal(oldState.Cflags, unit.Cflags) || !slices.Equal(oldState.Ldflags, unit.Ldflags) {
		return true, nil
	}

	for _, dep := range unit.Dependencies {
		if rebuilt[dep] {
			return true, nil
		}
		hash, err := g.fileHash(filepath.Join(g.buildDir, dep))
		if err != nil {
			if os.IsNotExist(err) {
				return true, nil
			}
			return false, fmt.Errorf("failed to hash dependency %s: %w", dep, err)
		}
		if oldState.Dependencies[dep] != hash {
			return true, nil
		}
	}
	return false, nil
}

// isSourceFileDirty checks if a single source file needs to be recompiled.
// Objects built with different cflags are always stale.
func (g *QobsBuilder) isSourceFileDirty(src sourceFile, objPath string, cflags []string, state *BuildState) (bool, error) {
	if _, err := os.Stat(objPath); os.IsNotExist(err) {
		return true, nil
	}
	if state == nil || !slices.Equal(state.Cflags, cflags) {
		return true, nil
	}

	hash, err := g.fileHash(src.src)
	if err != nil {
		if os.IsNotExist(err) {
			return true, fmt.Errorf("source file %s not found", src.src)
		}
		return true, err
	}
	prevHash, exists := state.Sources[src.src]
	return !exists || prevHash != hash, nil
}

func (g *QobsBuilder) createLinkJob(unit Unit) linkJob {
	sources := unitSources(unit)
	objects := make([]string, len(sources))
	for i, src := range sources {
		objects[i] = filepath.Join(g.buildDir, src.obj)
	}

	deps := make([]string, len(unit.Dependencies))
	for i, dep := range unit.Dependencies {
		deps[i] = filepath.Join(g.buildDir, dep)
	}

	linker := g.cc
	if hasCxx(g.units, unit) {
		linker = g.cxx
	}

	return linkJob{
		key:     unit.Key(),
		objs:    objects,
		deps:    deps,
		out:     filepath.Join(g.buildDir, unit.Key()),
		ldflags: unit.Ldflags,
		kind:    unit.Kind,
		cc:      linker,
	}
}

// linkLevels groups unit keys so every unit's dependencies are in an earlier
// group. Keys within a group are sorted.
func (g *QobsBuilder) linkLevels() ([][]string, error) {
	dependents := make(map[string][]string)
	inDegree := make(map[string]int)

	for key := range g.units {
		inDegree[key] = 0
	}
	for key, unit := range g.units {
		for _, dep := range unit.Dependencies {
			if _, ok := g.units[dep]; !ok {
				return nil, fmt.Errorf("unit `%s` lists a non-existent dependency: `%s`", key, dep)
			}
			dependents[dep] = append(dependents[dep], key)
			inDegree[key]++
		}
	}

	var current []string
	for key, degree := range inDegree {
		if degree == 0 {
			current = append(current, key)
		}
	}

	var levels [][]string
	visited := 0
	for len(current) > 0 {
		slices.Sort(current)
		levels = append(levels, current)
		visited += len(current)

		var next []string
		for _, key := range current {
			for _, dependent := range dependents[key] {
				inDegree[dependent]--
				if inDegree[dependent] == 0 {
					next = append(next, dependent)
				}
			}
		}
		current = next
	}

	if visited != len(g.units) {
		var cycle []string
		for key, degree := range inDegree {
			if degree > 0 {
				cycle = append(cycle, key)
			}
		}
		slices.Sort(cycle)
		return nil, fmt.Errorf("dependency cycle detected involving units: %v", cycle)
	}

	return levels, nil
}

func (g *QobsBuilder) executeBuild(compileJobs []compileJob, linkWaves [][]linkJob, pb *msg.ProgressBar) error {
	if err := runJobs(compileJobs, func(job compileJob) error {
		err := runCompileJob(job)
		pb.Step("CC " + filepath.Base(job.src))
		return err
	}, g.jobs); err != nil {
		return fmt.Errorf("compilation failed: %w", err)
	}

	for _, wave := range linkWaves {
		if err := runJobs(wave, func(job linkJob) error {
			err := runLinkJob(job)
			pb.Step("LINK " + job.key)
			return err
		}, g.jobs); err != nil {
			return fmt.Errorf("linking failed: %w", err)
		}

		for _, job := range wave {
			if err := g.updateBuildState(g.units[job.key]); err != nil {
				msg.Warn("failed to update build state for %s: %v", job.key, err)
			}
		}
	}

	return nil
}

func (g *QobsBuilder) loadBuildState() error {
	f, err := os.Open(g.stateFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // first build
		}
		return err
	}
	defer f.Close()
	return json.NewDecoder(bufio.NewReader(f)).Decode(&g.buildState)
}

func (g *QobsBuilder) saveBuildState() error {
	data, err := json.MarshalIndent(g.buildState, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(g.stateFile, data, 0o644)
}

// fileHash computes the SHA-256 of a file, cached for the lifetime of the builder
func (g *QobsBuilder) fileHash(path string) (string, error) {
	g.hashMu.Lock()
	hash, ok := g.hashCache[path]
	g.hashMu.Unlock()
	if ok {
		return hash, nil
	}

	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	h := sha256.New()
	if _, err := io.Copy(h, file); err != nil {
		return "", err
	}
	hash = hex.EncodeToString(h.Sum(nil))

	g.hashMu.Lock()
	g.hashCache[path] = hash
	g.hashMu.Unlock()
	return hash, nil
}

// forgetHash drops a cached hash after the file was rewritten
func (g *QobsBuilder) forgetHash(path string) {
	g.hashMu.Lock()
	delete(g.hashCache, path)
	g.hashMu.Unlock()
}

// runJobs runs jobs in parallel, at most limit at a time
func runJobs[T any](jobs []T, jobfunc func(job T) error, limit int) error {
	if len(jobs) == 0 {
		return nil
	}

	eg, _ := errgroup.WithContext(context.Background())
	eg.SetLimit(limit)
	for _, job := range jobs {
		eg.Go(func() error {
			return jobfunc(job)
		})
	}
	return eg.Wait()
}

// runTool runs a compiler or archiver, returning its output in the error
// so parallel jobs don't interleave their diagnostics
func runTool(name string, args ...string) error {
	var out bytes.Buffer
	cmd := exec.Command(name, args...)
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s: %w\n%s", filepath.Base(name), err, out.String())
	}
	return nil
}

func runCompileJob(job compileJob) error {
	if err := os.MkdirAll(filepath.Dir(job.obj), 0o755); err != nil {
		return fmt.Errorf("failed to create object directory: %w", err)
	}

	args := make([]string, 0, len(job.cflags)+4)
	args = append(args, job.cflags...)
	args = append(args, "-c", job.src, "-o", job.obj)
	return runTool(job.cc, args...)
}

func runLinkJob(job linkJob) error {
	if err := os.MkdirAll(filepath.Dir(job.out), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	switch job.kind {
	case StaticLibrary:
		// ar appends to existing archives
		if err := os.Remove(job.out); err != nil && !os.IsNotExist(err) {
			return err
		}
		args := append([]string{"rcs", job.out}, job.objs...)
		return runTool("ar", args...)
	case SharedLibrary:
		args := []string{"-shared", "-o", job.out}
		args = append(args, job.objs...)
		args = append(args, job.deps...)
		args = append(args, job.ldflags...)
		return runTool(job.cc, args...)
	default:
		args := []string{"-o", job.out}
		args = append(args, job.objs...)
		args = append(args, job.deps...)
		args = append(args, job.ldflags...)
		return runTool(job.cc, args...)
	}
}

// updateBuildState records the inputs of a unit after a successful link
func (g *QobsBuilder) updateBuildState(unit Unit) error {
	state := &BuildState{
		Sources:      make(map[string]string),
		Dependencies: make(map[string]string),
		Cflags:       slices.Clone(unit.Cflags),
		Ldflags:      slices.Clone(unit.Ldflags),
	}

	for _, src := range unit.Sources {
		hash, err := g.fileHash(src)
		if err != nil {
			return fmt.Errorf("failed to hash source file %s: %w", src, err)
		}
		state.Sources[src] = hash
	}

	for _, dep := range unit.Dependencies {
		depPath := filepath.Join(g.buildDir, dep)
		g.forgetHash(depPath)
		hash, err := g.fileHash(depPath)
		if err != nil {
			msg.Warn("could not hash dependency %s for state update: %v", dep, err)
			continue
		}
		state.Dependencies[dep] = hash
	}

	g.buildState[unit.Key()] = state
	return nil
}
