package builder

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"reflect"
	"slices"
	"strconv"

	"github.com/expr-lang/expr"
	"github.com/pelletier/go-toml/v2"
)

const ConfigFilename = "Qobs.toml"

func defaultProfiles() map[string]ProfileSection {
	return map[string]ProfileSection{
		"debug":   {Debug: true},
		"release": {OptLevel: int64(3)},
	}
}

type Config struct {
	Package      PackageSection            `toml:"package"`
	Target       TargetSection             `toml:"target"`
	Dependencies map[string]string         `toml:"dependencies"`
	Profile      map[string]ProfileSection `toml:"profile"`
	Variants     VariantsSection           `toml:"variants"`
}

// Profiles returns the profile names, sorted
func (c Config) Profiles() []string {
	return slices.Sorted(maps.Keys(c.Profile))
}

// ProfileSection defines a [profile.*] section. Every profile is a build type.
type ProfileSection struct {
	OptLevel any  `toml:"opt-level"` // int64 or string
	Debug    bool `toml:"debug"`
}

// OptLevelString renders opt-level as it goes after -O, empty for none
func (p ProfileSection) OptLevelString() string {
	switch v := p.OptLevel.(type) {
	case int64:
		return strconv.FormatInt(v, 10)
	case int:
		return strconv.Itoa(v)
	case string:
		return v
	default:
		return ""
	}
}

// Optimized is true for any opt-level other than none or 0
func (p ProfileSection) Optimized() bool {
	level := p.OptLevelString()
	return level != "" && level != "0"
}

// PackageSection defines the [package] section
type PackageSection struct {
	Name        string   `toml:"name"`
	Description string   `toml:"description"`
	Authors     []string `toml:"authors"`
	Build       string   `toml:"build"`
	Group       string   `toml:"group"`
	Version     string   `toml:"version"`
}

// TargetSection defines the [target(.*)] section
type TargetSection struct {
	Lib        bool              `toml:"lib"`
	HeaderOnly bool              `toml:"header-only"`
	Sources    []string          `toml:"sources"`
	Headers    []string          `toml:"headers"`
	Defines    map[string]string `toml:"defines"`
	Links      []string          `toml:"links"`
	Cflags     []string          `toml:"cflags"`
	Ldflags    []string          `toml:"ldflags"`
}

// VariantsSection defines the [variants] section. Nil lists fall back to defaults.
type VariantsSection struct {
	BuildTypes     []string `toml:"build-types"`
	TargetMachines []string `toml:"target-machines"`
	Linkages       []string `toml:"linkages"`
}

// mergeInto merges src into dst. Structs are merged field by field (slices
// appended, maps and set scalars overwritten, bools or'ed); maps key by key.
func mergeInto(dst, src any) error {
	dstVal := reflect.ValueOf(dst)
	if dstVal.Kind() != reflect.Pointer {
		return errors.New("dst must be a pointer")
	}
	dstElem := dstVal.Elem()

	srcVal := reflect.ValueOf(src)
	if srcVal.Kind() == reflect.Pointer {
		srcVal = srcVal.Elem()
	}
	if dstElem.Type() != srcVal.Type() {
		return fmt.Errorf("can't merge %s into %s", srcVal.Type(), dstElem.Type())
	}

	switch dstElem.Kind() {
	case reflect.Map:
		mergeMap(dstElem, srcVal)
		return nil
	case reflect.Struct:
	default:
		return fmt.Errorf("can't merge values of kind %s", dstElem.Kind())
	}

	for i := range srcVal.NumField() {
		srcField := srcVal.Field(i)
		dstField := dstElem.Field(i)

		if !dstField.CanSet() {
			continue
		}

		switch dstField.Kind() {
		case reflect.Slice:
			if !srcField.IsNil() {
				dstField.Set(reflect.AppendSlice(dstField, srcField))
			}
		case reflect.Map:
			mergeMap(dstField, srcField)
		case reflect.Bool:
			dstField.SetBool(dstField.Bool() || srcField.Bool())
		default:
			if !srcField.IsZero() {
				dstField.Set(srcField)
			}
		}
	}

	return nil
}

func mergeMap(dst, src reflect.Value) {
	if src.IsNil() {
		return
	}
	if dst.IsNil() {
		dst.Set(reflect.MakeMap(dst.Type()))
	}
	iter := src.MapRange()
	for iter.Next() {
		dst.SetMapIndex(iter.Key(), iter.Value())
	}
}

// decodeValue re-encodes a generic TOML value and decodes it into dst
func decodeValue(data any, dst any) error {
	b, err := toml.Marshal(data)
	if err != nil {
		return err
	}
	return toml.Unmarshal(b, dst)
}

// unmarshalSection parses a section without conditional sub-tables
func unmarshalSection(rawCfg map[string]any, name string, dst any) error {
	if data, ok := rawCfg[name]; ok {
		if err := decodeValue(data, dst); err != nil {
			return fmt.Errorf("failed to parse [%s] section: %w", name, err)
		}
	}
	return nil
}

// unmarshalConditionalSection parses a section, then merges every sub-table
// whose key is an expression that evaluates to true in env.
func unmarshalConditionalSection[T any](rawCfg map[string]any, name string, dst *T, env ConfigEnv) error {
	sectionData, ok := rawCfg[name]
	if !ok {
		return nil
	}

	sectionMap, ok := sectionData.(map[string]any)
	if !ok {
		return fmt.Errorf("invalid [%s] section format: expected a table", name)
	}

	baseFields := make(map[string]any)
	conditions := make(map[string]map[string]any)

	for key, val := range sectionMap {
		subMap, isTable := val.(map[string]any)
		if isTable && isCondition(key, env) {
			conditions[key] = subMap
		} else {
			baseFields[key] = val
		}
	}

	if len(baseFields) > 0 {
		if err := decodeValue(baseFields, dst); err != nil {
			return fmt.Errorf("failed to parse base [%s] section: %w", name, err)
		}
	}

	// sorted so that overlapping conditions merge the same way every time
	for _, expression := range slices.Sorted(maps.Keys(conditions)) {
		matched, err := env.Eval(expression)
		if err != nil {
			return fmt.Errorf("[%s.%q]: %w", name, expression, err)
		}
		if !matched {
			continue
		}

		var condSection T
		if err := decodeValue(conditions[expression], &condSection); err != nil {
			return fmt.Errorf("failed to parse conditional section [%s.%q]: %w", name, expression, err)
		}
		if err := mergeInto(dst, condSection); err != nil {
			return fmt.Errorf("failed to merge conditional section [%s.%q]: %w", name, expression, err)
		}
	}

	return nil
}

// isCondition reports whether a table key is an expression rather than a
// plain name (e.g. a profile or dependency name)
func isCondition(key string, env ConfigEnv) bool {
	program, err := expr.Compile(key, expr.Env(env), expr.AsBool())
	return err == nil && program != nil
}

// ParseConfig decodes a Qobs.toml, evaluating {{...}} interpolation and
// conditional sections against env.
func ParseConfig(rdr io.Reader, env ConfigEnv) (*Config, error) {
	var rawConfig map[string]any
	dec := toml.NewDecoder(rdr)
	if err := dec.Decode(&rawConfig); err != nil {
		var derr *toml.DecodeError
		if errors.As(err, &derr) {
			return nil, errors.New(derr.String())
		}
		return nil, err
	}

	processed, err := processExpressions(rawConfig, env)
	if err != nil {
		return nil, fmt.Errorf("error processing expressions in config: %w", err)
	}
	rawConfig = processed.(map[string]any)

	cfg := &Config{Profile: defaultProfiles()}

	if err := unmarshalSection(rawConfig, "package", &cfg.Package); err != nil {
		return nil, err
	}
	if err := unmarshalSection(rawConfig, "variants", &cfg.Variants); err != nil {
		return nil, err
	}
	if err := unmarshalConditionalSection(rawConfig, "dependencies", &cfg.Dependencies, env); err != nil {
		return nil, err
	}
	if err := unmarshalConditionalSection(rawConfig, "profile", &cfg.Profile, env); err != nil {
		return nil, err
	}
	if err := unmarshalConditionalSection(rawConfig, "target", &cfg.Target, env); err != nil {
		return nil, err
	}

	if cfg.Package.Name == "" {
		return nil, errors.New("[package] name is required")
	}

	return cfg, nil
}

// ParseConfigFromFile parses a config file from a filepath
func ParseConfigFromFile(path string, env ConfigEnv) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	cfg, err := ParseConfig(bufio.NewReader(f), env)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}
