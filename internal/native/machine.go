package native

import (
	"fmt"
	"runtime"
	"strings"
)

// OperatingSystemFamily is the OS a binary is built for
type OperatingSystemFamily string

const (
	Linux   OperatingSystemFamily = "linux"
	Windows OperatingSystemFamily = "windows"
	MacOS   OperatingSystemFamily = "macos"
	FreeBSD OperatingSystemFamily = "freebsd"
)

// Architecture is the CPU architecture a binary is built for
type Architecture string

const (
	X86     Architecture = "x86"
	X86_64  Architecture = "x86_64"
	Aarch64 Architecture = "aarch64"
	Arm     Architecture = "arm"
	Riscv64 Architecture = "riscv64"
)

var osAliases = map[string]OperatingSystemFamily{
	"linux":   Linux,
	"windows": Windows,
	"win":     Windows,
	"macos":   MacOS,
	"darwin":  MacOS,
	"osx":     MacOS,
	"freebsd": FreeBSD,
}

var archAliases = map[string]Architecture{
	"x86":     X86,
	"i386":    X86,
	"386":     X86,
	"x86_64":  X86_64,
	"x86-64":  X86_64,
	"amd64":   X86_64,
	"x64":     X86_64,
	"aarch64": Aarch64,
	"arm64":   Aarch64,
	"arm":     Arm,
	"riscv64": Riscv64,
}

// TargetMachine is an OS family + architecture pair, written as "linux-x86_64"
type TargetMachine struct {
	OS   OperatingSystemFamily
	Arch Architecture
}

func (m TargetMachine) String() string {
	return string(m.OS) + "-" + string(m.Arch)
}

// ParseTargetMachine parses "<os>-<arch>". Common aliases (darwin, amd64,
// arm64, ...) are normalized; unknown names are kept lowercased.
func ParseTargetMachine(s string) (TargetMachine, error) {
	osName, archName, ok := strings.Cut(strings.ToLower(strings.TrimSpace(s)), "-")
	if !ok || osName == "" || archName == "" {
		return TargetMachine{}, fmt.Errorf("invalid target machine %q, expected <os>-<arch> (e.g. linux-x86_64)", s)
	}
	return TargetMachine{OS: normalizeOS(osName), Arch: normalizeArch(archName)}, nil
}

func normalizeOS(name string) OperatingSystemFamily {
	if os, ok := osAliases[name]; ok {
		return os
	}
	return OperatingSystemFamily(name)
}

func normalizeArch(name string) Architecture {
	if arch, ok := archAliases[name]; ok {
		return arch
	}
	return Architecture(name)
}

// Host returns the machine qobs is running on
func Host() TargetMachine {
	return TargetMachine{OS: normalizeOS(runtime.GOOS), Arch: normalizeArch(runtime.GOARCH)}
}

// DefaultTargetMachines is used when a package doesn't list any
func DefaultTargetMachines() []TargetMachine {
	return []TargetMachine{Host()}
}
