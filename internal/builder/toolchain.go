package builder

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/qobs-build/qobs/internal/native"
)

// TODO: zig cc
var (
	commonCCompilers   = []string{"clang", "gcc", "icx", "icc", "tcc", "cl"}
	commonCxxCompilers = []string{"clang++", "g++", "clang", "gcc", "icpx", "icx", "icpc", "icc", "cl"}
)

// findCompiler attempts to find a suitable C or C++ compiler on the system
func findCompiler(needCxx bool) string {
	cc := os.Getenv("CC")
	cxx := os.Getenv("CXX")

	if needCxx && cxx != "" {
		return cxx
	}
	if !needCxx && cc != "" {
		return cc
	}
	if cxx != "" {
		return cxx
	}
	if cc != "" {
		return cc
	}

	compilers := commonCCompilers
	if needCxx {
		compilers = commonCxxCompilers
	}
	for _, compiler := range compilers {
		if path, err := exec.LookPath(compiler); err == nil {
			return path
		}
	}

	return ""
}

type compilerFamily int

const (
	familyGCC compilerFamily = iota // gcc and everything that takes its flags
	familyClang
	familyMSVC
)

func detectFamily(compiler string) compilerFamily {
	base := strings.ToLower(strings.TrimSuffix(filepath.Base(compiler), filepath.Ext(compiler)))
	switch {
	case base == "cl" || base == "clang-cl":
		return familyMSVC
	case strings.Contains(base, "clang"):
		return familyClang
	default:
		return familyGCC
	}
}

var clangTriples = map[native.TargetMachine]string{
	{OS: native.Linux, Arch: native.X86}:       "i686-linux-gnu",
	{OS: native.Linux, Arch: native.X86_64}:    "x86_64-linux-gnu",
	{OS: native.Linux, Arch: native.Aarch64}:   "aarch64-linux-gnu",
	{OS: native.Linux, Arch: native.Arm}:       "arm-linux-gnueabihf",
	{OS: native.Linux, Arch: native.Riscv64}:   "riscv64-linux-gnu",
	{OS: native.Windows, Arch: native.X86}:     "i686-pc-windows-msvc",
	{OS: native.Windows, Arch: native.X86_64}:  "x86_64-pc-windows-msvc",
	{OS: native.Windows, Arch: native.Aarch64}: "aarch64-pc-windows-msvc",
	{OS: native.MacOS, Arch: native.X86_64}:    "x86_64-apple-macos",
	{OS: native.MacOS, Arch: native.Aarch64}:   "arm64-apple-macos",
	{OS: native.FreeBSD, Arch: native.X86_64}:  "x86_64-unknown-freebsd",
	{OS: native.FreeBSD, Arch: native.Aarch64}: "aarch64-unknown-freebsd",
}

// machineFlags returns the compile and link flags that make compiler target
// machine from host. Same-machine builds need none.
func machineFlags(compiler string, target, host native.TargetMachine) ([]string, error) {
	if target == host {
		return nil, nil
	}
	if target.OS != host.OS {
		return nil, fmt.Errorf("cross-OS builds are not supported (%s on %s)", target, host)
	}

	switch detectFamily(compiler) {
	case familyClang:
		if triple, ok := clangTriples[target]; ok {
			return []string{"--target=" + triple}, nil
		}
	case familyGCC:
		switch {
		case target.Arch == native.X86 && host.Arch == native.X86_64:
			return []string{"-m32"}, nil
		case target.Arch == native.X86_64 && host.Arch == native.X86:
			return []string{"-m64"}, nil
		}
	}

	return nil, fmt.Errorf("no toolchain flags known to build for %s with %s on %s", target, filepath.Base(compiler), host)
}
