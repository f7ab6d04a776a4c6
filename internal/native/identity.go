package native

import (
	"fmt"

	"github.com/qobs-build/qobs/internal/variant"
)

// Usage tells consumers what a set of artifacts is for
type Usage string

const (
	NativeRuntime Usage = "native-runtime"
	NativeLink    Usage = "native-link"
)

// UsageContext is the attribute set published for one usage of a variant
type UsageContext struct {
	Name       string
	Usage      Usage
	Attributes variant.Attributes
}

func newUsageContext(variantName string, usage Usage, suffix string, attrs variant.Attributes) UsageContext {
	name := suffix
	if variantName != "" {
		name = variantName + "-" + suffix
	}
	return UsageContext{
		Name:       name,
		Usage:      usage,
		Attributes: attrs.With(UsageAttribute, usage),
	}
}

// Coordinates identify the component the variants belong to
type Coordinates struct {
	BaseName string
	Group    string
	Version  string
}

// Identity is a native variant resolved into the values the builder needs
type Identity struct {
	Name          string
	BaseName      string
	Group         string
	Version       string
	BuildType     BuildType
	TargetMachine TargetMachine
	Linkage       Linkage // empty for applications
	Runtime       UsageContext
	Link          *UsageContext // nil without a linkage
	Variant       variant.Variant
}

func (id Identity) Debuggable() bool { return id.BuildType.Debuggable }
func (id Identity) Optimized() bool  { return id.BuildType.Optimized }

// Buildable reports whether the variant can be built on this host
func (id Identity) Buildable() bool {
	return id.BuildableOn(Host().OS)
}

// BuildableOn reports whether the variant targets the given OS family.
// Cross-OS variants are known but not built.
func (id Identity) BuildableOn(host OperatingSystemFamily) bool {
	return id.TargetMachine.OS == host
}

func NewIdentity(v variant.Variant, coords Coordinates) (Identity, error) {
	buildType, ok := BuildTypeKey.From(v)
	if !ok {
		return Identity{}, fmt.Errorf("variant %q has no build type", v.Name())
	}
	machine, ok := TargetMachineKey.From(v)
	if !ok {
		return Identity{}, fmt.Errorf("variant %q has no target machine", v.Name())
	}

	id := Identity{
		Name:          v.Name(),
		BaseName:      coords.BaseName,
		Group:         coords.Group,
		Version:       coords.Version,
		BuildType:     buildType,
		TargetMachine: machine,
		Variant:       v,
		Runtime:       newUsageContext(v.Name(), NativeRuntime, "runtime", v.Attributes()),
	}

	if linkage, ok := LinkageKey.From(v); ok {
		id.Linkage = linkage
		link := newUsageContext(v.Name(), NativeLink, "link", v.Attributes())
		id.Link = &link
	}

	return id, nil
}

func Identities(variants []variant.Variant, coords Coordinates) ([]Identity, error) {
	ids := make([]Identity, 0, len(variants))
	for _, v := range variants {
		id, err := NewIdentity(v, coords)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// DevelopmentIdentity picks the variant used for day-to-day work: a
// non-optimized build for the host architecture, shared over static. Ties go
// to the first declared variant. Optimized variants are still candidates when
// nothing else builds on the host.
func DevelopmentIdentity(ids []Identity, host TargetMachine) (Identity, bool) {
	best, bestRank := -1, -1
	for i, id := range ids {
		if !id.BuildableOn(host.OS) {
			continue
		}
		rank := 0
		if !id.Optimized() {
			rank += 4
		}
		if id.TargetMachine.Arch == host.Arch {
			rank += 2
		}
		if id.Linkage == Shared {
			rank++
		}
		if rank > bestRank {
			best, bestRank = i, rank
		}
	}
	if best < 0 {
		return Identity{}, false
	}
	return ids[best], true
}
