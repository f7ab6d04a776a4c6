package builder

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/qobs-build/qobs/internal/native"
	"github.com/sergi/go-diff/diffmatchpatch"
)

// ConfigEnv is the environment Qobs.toml expressions are evaluated in. The
// variant fields are empty while a package's variants are being discovered.
type ConfigEnv struct {
	TargetOS   string            `expr:"target_os"`
	TargetArch string            `expr:"target_arch"`
	BuildType  string            `expr:"build_type"`
	Linkage    string            `expr:"linkage"`
	Variant    string            `expr:"variant"`
	Environ    map[string]string `expr:"environ"`
	basedir    string
}

func currentEnviron() map[string]string {
	environ := make(map[string]string)
	for _, e := range os.Environ() {
		if k, v, ok := strings.Cut(e, "="); ok {
			environ[k] = v
		}
	}
	return environ
}

// NewConfigEnv returns the host environment for the package in basedir
func NewConfigEnv(basedir string) ConfigEnv {
	host := native.Host()
	return ConfigEnv{
		TargetOS:   string(host.OS),
		TargetArch: string(host.Arch),
		Environ:    currentEnviron(),
		basedir:    basedir,
	}
}

// ForVariant returns env with the variant's target machine, build type and linkage
func (env ConfigEnv) ForVariant(id native.Identity) ConfigEnv {
	env.TargetOS = string(id.TargetMachine.OS)
	env.TargetArch = string(id.TargetMachine.Arch)
	env.BuildType = id.BuildType.Name
	env.Linkage = string(id.Linkage)
	env.Variant = id.Name
	return env
}

// WithBasedir returns env rooted at another package directory
func (env ConfigEnv) WithBasedir(basedir string) ConfigEnv {
	env.basedir = basedir
	return env
}

// Eval evaluates a boolean expression
func (env ConfigEnv) Eval(expression string) (bool, error) {
	program, err := expr.Compile(expression, expr.Env(env), expr.AsBool())
	if err != nil {
		return false, fmt.Errorf("failed to compile expression %q: %w", expression, err)
	}
	result, err := expr.Run(program, env)
	if err != nil {
		return false, fmt.Errorf("failed to run expression %q: %w", expression, err)
	}
	matched, _ := result.(bool)
	return matched, nil
}

func (env ConfigEnv) evalString(expression string) (string, error) {
	program, err := expr.Compile(expression, expr.Env(env))
	if err != nil {
		return "", fmt.Errorf("failed to compile expression %q: %w", expression, err)
	}
	result, err := expr.Run(program, env)
	if err != nil {
		return "", fmt.Errorf("failed to run expression %q: %w", expression, err)
	}
	return fmt.Sprint(result), nil
}

var exprRegex = regexp.MustCompile(`\{\{(.+?)\}\}`)

// evaluateString replaces every {{...}} in s with the value of its expression
func evaluateString(s string, env ConfigEnv) (string, error) {
	matches := exprRegex.FindAllStringSubmatchIndex(s, -1)
	if len(matches) == 0 {
		return s, nil
	}

	var sb strings.Builder
	last := 0
	for _, m := range matches {
		sb.WriteString(s[last:m[0]])
		value, err := env.evalString(strings.TrimSpace(s[m[2]:m[3]]))
		if err != nil {
			return "", err
		}
		sb.WriteString(value)
		last = m[1]
	}
	sb.WriteString(s[last:])

	return sb.String(), nil
}

// processExpressions walks parsed TOML data and interpolates every string.
// Keys are left alone: conditional section keys are expressions themselves.
func processExpressions(data any, env ConfigEnv) (any, error) {
	switch v := data.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, val := range v {
			processed, err := processExpressions(val, env)
			if err != nil {
				return nil, err
			}
			out[key] = processed
		}
		return out, nil
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			processed, err := processExpressions(item, env)
			if err != nil {
				return nil, err
			}
			out[i] = processed
		}
		return out, nil
	case string:
		return evaluateString(v, env)
	default:
		return data, nil
	}
}

// RunBuildScript runs [package] build, which must evaluate to true
func (cfg Config) RunBuildScript(env ConfigEnv) error {
	if cfg.Package.Build == "" {
		return nil
	}

	ok, err := env.Eval(cfg.Package.Build)
	if err != nil {
		return fmt.Errorf("build script for package %q: %w", cfg.Package.Name, err)
	}
	if !ok {
		return fmt.Errorf("build script for package %q returned false\n%s", cfg.Package.Name, cfg.Package.Build)
	}
	return nil
}

// resolve returns path inside the package directory, panicking when it
// escapes. Panics surface as expression errors.
func (env ConfigEnv) resolve(path string) string {
	full := filepath.Join(env.basedir, path)
	rel, err := filepath.Rel(env.basedir, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		panic(fmt.Sprintf("path %q is outside of package directory %q", path, env.basedir))
	}
	return full
}

// Patch applies a diff-match-patch patch to a file in the package. It
// returns false when no hunk applied.
func (env ConfigEnv) Patch(path, patchText string) bool {
	fullPath := env.resolve(path)
	data, err := os.ReadFile(fullPath)
	if err != nil {
		panic(err)
	}

	dmp := diffmatchpatch.New()
	patches, err := dmp.PatchFromText(patchText)
	if err != nil {
		panic(err)
	}
	patched, results := dmp.PatchApply(patches, string(data))

	applied := false
	for _, ok := range results {
		applied = applied || ok
	}
	if !applied {
		return false
	}

	if err := os.WriteFile(fullPath, []byte(patched), 0o644); err != nil {
		panic(err)
	}
	return true
}

func (env ConfigEnv) ReadFile(path string) string {
	data, err := os.ReadFile(env.resolve(path))
	if err != nil {
		panic(err)
	}
	return string(data)
}
