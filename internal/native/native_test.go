package native

import (
	"testing"

	"github.com/qobs-build/qobs/internal/variant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	linuxX64   = TargetMachine{OS: Linux, Arch: X86_64}
	linuxArm64 = TargetMachine{OS: Linux, Arch: Aarch64}
	winX64     = TargetMachine{OS: Windows, Arch: X86_64}
)

func enumerate(t *testing.T, dims ...variant.Dimension) []Identity {
	t.Helper()
	vs, err := variant.Enumerate(dims...)
	require.NoError(t, err)
	ids, err := Identities(vs, Coordinates{BaseName: "hello", Group: "org.example", Version: "1.0"})
	require.NoError(t, err)
	return ids
}

func idNames(ids []Identity) []string {
	res := make([]string, len(ids))
	for i, id := range ids {
		res[i] = id.Name
	}
	return res
}

func TestParseTargetMachine(t *testing.T) {
	tests := []struct {
		in   string
		want TargetMachine
	}{
		{"linux-x86_64", linuxX64},
		{"Linux-X86_64", linuxX64},
		{"linux-amd64", linuxX64},
		{"linux-x86-64", linuxX64},
		{"darwin-arm64", TargetMachine{OS: MacOS, Arch: Aarch64}},
		{"windows-x86", TargetMachine{OS: Windows, Arch: X86}},
		{"haiku-sparc", TargetMachine{OS: "haiku", Arch: "sparc"}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseTargetMachine(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	for _, bad := range []string{"", "linux", "-x86", "linux-"} {
		_, err := ParseTargetMachine(bad)
		assert.Error(t, err, "input %q", bad)
	}
}

func TestParseLinkage(t *testing.T) {
	l, err := ParseLinkage(" Shared ")
	require.NoError(t, err)
	assert.Equal(t, Shared, l)

	_, err = ParseLinkage("dynamic")
	assert.Error(t, err)
}

func TestHost(t *testing.T) {
	host := Host()
	assert.NotEmpty(t, host.OS)
	assert.NotEmpty(t, host.Arch)
	assert.Equal(t, []TargetMachine{host}, DefaultTargetMachines())
}

func TestTargetMachineNaming(t *testing.T) {
	tests := []struct {
		name     string
		machines []TargetMachine
		want     []string
	}{
		{"single machine", []TargetMachine{linuxX64}, []string{""}},
		{"arch differs", []TargetMachine{linuxX64, linuxArm64}, []string{"x86_64", "aarch64"}},
		{"os differs", []TargetMachine{linuxX64, winX64}, []string{"linux", "windows"}},
		{"both differ", []TargetMachine{linuxX64, winX64, linuxArm64}, []string{"linuxX86_64", "windowsX86_64", "linuxAarch64"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ids := enumerate(t, BuildTypeDimension([]BuildType{Debug}), TargetMachineDimension(tt.machines))
			assert.Equal(t, tt.want, idNames(ids))
		})
	}
}

func TestIdentities_Application(t *testing.T) {
	ids := enumerate(t,
		BuildTypeDimension(DefaultBuildTypes),
		TargetMachineDimension([]TargetMachine{linuxX64}),
		LinkageDimension(nil, false),
	)
	require.Len(t, ids, 2)
	assert.Equal(t, []string{"debug", "release"}, idNames(ids))

	debug := ids[0]
	assert.True(t, debug.Debuggable())
	assert.False(t, debug.Optimized())
	assert.Equal(t, "hello", debug.BaseName)
	assert.Equal(t, "org.example", debug.Group)
	assert.Equal(t, "1.0", debug.Version)
	assert.Empty(t, debug.Linkage)
	assert.Nil(t, debug.Link, "applications have no link usage")

	assert.Equal(t, "debug-runtime", debug.Runtime.Name)
	assert.Equal(t, NativeRuntime, debug.Runtime.Usage)
	usage, _ := debug.Runtime.Attributes.Get(UsageAttribute)
	assert.Equal(t, NativeRuntime, usage)
	os, _ := debug.Runtime.Attributes.Get(OperatingSystemAttribute)
	assert.Equal(t, Linux, os)

	_, hasUsage := debug.Variant.Attributes().Get(UsageAttribute)
	assert.False(t, hasUsage, "usage must not leak into the variant attributes")
}

func TestIdentities_Library(t *testing.T) {
	ids := enumerate(t,
		BuildTypeDimension([]BuildType{Debug}),
		TargetMachineDimension([]TargetMachine{linuxX64}),
		LinkageDimension([]Linkage{Shared, Static}, true),
	)
	assert.Equal(t, []string{"shared", "static"}, idNames(ids))

	shared := ids[0]
	assert.Equal(t, Shared, shared.Linkage)
	require.NotNil(t, shared.Link)
	assert.Equal(t, "shared-link", shared.Link.Name)
	linkage, _ := shared.Link.Attributes.Get(LinkageAttribute)
	assert.Equal(t, Shared, linkage)
	usage, _ := shared.Link.Attributes.Get(UsageAttribute)
	assert.Equal(t, NativeLink, usage)
}

func TestIdentities_SingleVariantUsageNames(t *testing.T) {
	ids := enumerate(t, BuildTypeDimension([]BuildType{Release}), TargetMachineDimension([]TargetMachine{linuxX64}))
	require.Len(t, ids, 1)
	assert.Equal(t, "", ids[0].Name)
	assert.Equal(t, "runtime", ids[0].Runtime.Name)
}

func TestNewIdentity_MissingDimensions(t *testing.T) {
	vs, err := variant.Enumerate(BuildTypeDimension([]BuildType{Debug}))
	require.NoError(t, err)
	_, err = NewIdentity(vs[0], Coordinates{})
	assert.ErrorContains(t, err, "no target machine")

	vs, err = variant.Enumerate(TargetMachineDimension([]TargetMachine{linuxX64}))
	require.NoError(t, err)
	_, err = NewIdentity(vs[0], Coordinates{})
	assert.ErrorContains(t, err, "no build type")
}

func TestBuildableOn(t *testing.T) {
	ids := enumerate(t, BuildTypeDimension([]BuildType{Debug}), TargetMachineDimension([]TargetMachine{linuxX64, winX64}))
	assert.True(t, ids[0].BuildableOn(Linux))
	assert.False(t, ids[1].BuildableOn(Linux))
	assert.True(t, ids[1].BuildableOn(Windows))
}

func TestDevelopmentIdentity(t *testing.T) {
	ids := enumerate(t,
		BuildTypeDimension(DefaultBuildTypes),
		TargetMachineDimension([]TargetMachine{linuxArm64, linuxX64, winX64}),
		LinkageDimension([]Linkage{Static, Shared}, true),
	)

	dev, ok := DevelopmentIdentity(ids, linuxX64)
	require.True(t, ok)
	assert.Equal(t, "debugLinuxX86_64Shared", dev.Name)

	// no shared variants: first debug static for the host arch
	statics := enumerate(t,
		BuildTypeDimension(DefaultBuildTypes),
		TargetMachineDimension([]TargetMachine{linuxArm64, linuxX64}),
		LinkageDimension([]Linkage{Static}, true),
	)
	dev, ok = DevelopmentIdentity(statics, linuxX64)
	require.True(t, ok)
	assert.Equal(t, "debugX86_64", dev.Name)

	// nothing for the host OS
	_, ok = DevelopmentIdentity(statics, TargetMachine{OS: Windows, Arch: X86_64})
	assert.False(t, ok)

	// only optimized variants: still pick one so a release-only package builds
	releases := enumerate(t,
		BuildTypeDimension([]BuildType{Release}),
		TargetMachineDimension([]TargetMachine{linuxArm64, linuxX64}),
	)
	dev, ok = DevelopmentIdentity(releases, linuxX64)
	require.True(t, ok)
	assert.Equal(t, Release, dev.BuildType)
	assert.Equal(t, linuxX64, dev.TargetMachine)
}
