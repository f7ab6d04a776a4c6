// Package native describes the dimensions native (C/C++) binaries vary over:
// build type, target machine and linkage.
package native

import (
	"fmt"
	"strings"

	"github.com/qobs-build/qobs/internal/variant"
)

// Attribute keys carried by native variants
const (
	DebuggableAttribute      = "debuggable"
	OptimizedAttribute       = "optimized"
	OperatingSystemAttribute = "os"
	ArchitectureAttribute    = "arch"
	LinkageAttribute         = "linkage"
	UsageAttribute           = "usage"
)

// BuildType is a named combination of debug info and optimization, defined
// by a [profile.*] section.
type BuildType struct {
	Name       string
	Debuggable bool
	Optimized  bool
}

var (
	Debug             = BuildType{Name: "debug", Debuggable: true}
	Release           = BuildType{Name: "release", Optimized: true}
	DefaultBuildTypes = []BuildType{Debug, Release}
)

func (b BuildType) String() string { return b.Name }

// Linkage is how a library is linked into its consumers
type Linkage string

const (
	Static Linkage = "static"
	Shared Linkage = "shared"
)

func ParseLinkage(s string) (Linkage, error) {
	switch l := Linkage(strings.ToLower(strings.TrimSpace(s))); l {
	case Static, Shared:
		return l, nil
	default:
		return "", fmt.Errorf("invalid linkage %q, expected %q or %q", s, Static, Shared)
	}
}

var (
	BuildTypeKey     = variant.NewKey[BuildType]("buildType")
	TargetMachineKey = variant.NewKey[TargetMachine]("targetMachine")
	LinkageKey       = variant.NewKey[Linkage]("linkage")
)

func BuildTypeDimension(types []BuildType) variant.Dimension {
	return variant.NewDimension(BuildTypeKey, types,
		variant.Named(func(b BuildType) string { return b.Name }),
		variant.Attribute(DebuggableAttribute, func(b BuildType) any { return b.Debuggable }),
		variant.Attribute(OptimizedAttribute, func(b BuildType) any { return b.Optimized }),
	)
}

// TargetMachineDimension names each machine by its OS and architecture, each
// part only shown when the machines differ in it.
func TargetMachineDimension(machines []TargetMachine) variant.Dimension {
	osFamilies := make(map[OperatingSystemFamily]struct{})
	archs := make(map[Architecture]struct{})
	for _, m := range machines {
		osFamilies[m.OS] = struct{}{}
		archs[m.Arch] = struct{}{}
	}

	return variant.NewDimension(TargetMachineKey, machines,
		variant.Suffixed(func(m TargetMachine) string {
			return variant.Suffix(string(m.OS), len(osFamilies)) + variant.Suffix(string(m.Arch), len(archs))
		}),
		variant.Attribute(OperatingSystemAttribute, func(m TargetMachine) any { return m.OS }),
		variant.Attribute(ArchitectureAttribute, func(m TargetMachine) any { return m.Arch }),
	)
}

// LinkageDimension declares the linkages of a library. Applications pass no
// linkages with required=false.
func LinkageDimension(linkages []Linkage, required bool) variant.Dimension {
	opts := []variant.Option[Linkage]{
		variant.Named(func(l Linkage) string { return string(l) }),
		variant.Attribute(LinkageAttribute, func(l Linkage) any { return l }),
	}
	if !required {
		opts = append(opts, variant.Optional[Linkage]())
	}
	return variant.NewDimension(LinkageKey, linkages, opts...)
}
