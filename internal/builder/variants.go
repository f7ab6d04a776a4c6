package builder

import (
	"errors"
	"fmt"
	"strings"

	"github.com/qobs-build/qobs/internal/native"
	"github.com/qobs-build/qobs/internal/variant"
)

var errLinkageOnExecutable = errors.New("[variants] linkages only apply to library targets (target.lib = true)")

// buildTypes resolves [variants] build-types against the known profiles
func (c *Config) buildTypes() ([]native.BuildType, error) {
	names := c.Variants.BuildTypes
	if names == nil {
		names = make([]string, 0, len(native.DefaultBuildTypes))
		for _, bt := range native.DefaultBuildTypes {
			names = append(names, bt.Name)
		}
	}

	types := make([]native.BuildType, 0, len(names))
	for _, name := range names {
		prof, ok := c.Profile[name]
		if !ok {
			return nil, fmt.Errorf("unknown build type %q, known profiles: %s", name, strings.Join(c.Profiles(), ", "))
		}
		types = append(types, native.BuildType{
			Name:       name,
			Debuggable: prof.Debug,
			Optimized:  prof.Optimized(),
		})
	}
	return types, nil
}

func (c *Config) targetMachines() ([]native.TargetMachine, error) {
	if c.Variants.TargetMachines == nil {
		return native.DefaultTargetMachines(), nil
	}
	machines := make([]native.TargetMachine, 0, len(c.Variants.TargetMachines))
	for _, s := range c.Variants.TargetMachines {
		m, err := native.ParseTargetMachine(s)
		if err != nil {
			return nil, err
		}
		machines = append(machines, m)
	}
	return machines, nil
}

// linkages returns the linkages of a library (static by default) and none
// for executables
func (c *Config) linkages() ([]native.Linkage, error) {
	if !c.Target.Lib {
		if len(c.Variants.Linkages) > 0 {
			return nil, errLinkageOnExecutable
		}
		return nil, nil
	}
	if c.Variants.Linkages == nil {
		return []native.Linkage{native.Static}, nil
	}
	linkages := make([]native.Linkage, 0, len(c.Variants.Linkages))
	for _, s := range c.Variants.Linkages {
		l, err := native.ParseLinkage(s)
		if err != nil {
			return nil, err
		}
		linkages = append(linkages, l)
	}
	return linkages, nil
}

// PackageVariants returns the lazily enumerated variants of a package:
// build type x target machine x linkage
func PackageVariants(cfg *Config) *variant.Set {
	return variant.Lazy(
		func() (variant.Dimension, error) {
			types, err := cfg.buildTypes()
			if err != nil {
				return variant.Dimension{}, err
			}
			return native.BuildTypeDimension(types), nil
		},
		func() (variant.Dimension, error) {
			machines, err := cfg.targetMachines()
			if err != nil {
				return variant.Dimension{}, err
			}
			return native.TargetMachineDimension(machines), nil
		},
		func() (variant.Dimension, error) {
			linkages, err := cfg.linkages()
			if err != nil {
				return variant.Dimension{}, err
			}
			return native.LinkageDimension(linkages, cfg.Target.Lib), nil
		},
	)
}

// Identities enumerates the variants of cfg's package
func Identities(cfg *Config) ([]native.Identity, error) {
	variants, err := PackageVariants(cfg).Get()
	if err != nil {
		return nil, fmt.Errorf("package %q: %w", cfg.Package.Name, err)
	}
	return native.Identities(variants, native.Coordinates{
		BaseName: cfg.Package.Name,
		Group:    cfg.Package.Group,
		Version:  cfg.Package.Version,
	})
}

// Selection chooses which variants a build covers. With nothing set, only
// the development variant is built.
type Selection struct {
	Variant string // exact variant name
	Profile string // build type name
	All     bool
}

// Select filters ids down to the buildable variants matching s
func (s Selection) Select(ids []native.Identity, host native.TargetMachine) ([]native.Identity, error) {
	var buildable []native.Identity
	for _, id := range ids {
		if id.BuildableOn(host.OS) {
			buildable = append(buildable, id)
		}
	}
	if len(buildable) == 0 {
		return nil, fmt.Errorf("no variant can be built on %s", host)
	}

	switch {
	case s.Variant != "":
		for _, id := range ids {
			if id.Name != s.Variant {
				continue
			}
			if !id.BuildableOn(host.OS) {
				return nil, fmt.Errorf("variant %q targets %s and can't be built on %s", id.Name, id.TargetMachine, host)
			}
			return []native.Identity{id}, nil
		}
		return nil, fmt.Errorf("unknown variant %q, known variants: %s", s.Variant, strings.Join(variantNames(ids), ", "))
	case s.All:
		return buildable, nil
	case s.Profile != "":
		var res []native.Identity
		for _, id := range buildable {
			if id.BuildType.Name == s.Profile {
				res = append(res, id)
			}
		}
		if len(res) == 0 {
			return nil, fmt.Errorf("no buildable variant with build type %q", s.Profile)
		}
		return res, nil
	default:
		dev, _ := native.DevelopmentIdentity(buildable, host)
		return []native.Identity{dev}, nil
	}
}

func variantNames(ids []native.Identity) []string {
	names := make([]string, len(ids))
	for i, id := range ids {
		names[i] = id.Name
		if names[i] == "" {
			names[i] = `""`
		}
	}
	return names
}
