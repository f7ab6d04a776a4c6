package builder

import (
	"testing"

	"github.com/qobs-build/qobs/internal/native"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectFamily(t *testing.T) {
	tests := map[string]compilerFamily{
		"/usr/bin/gcc":               familyGCC,
		"x86_64-w64-mingw32-g++":     familyGCC,
		"/usr/lib/llvm-17/bin/clang": familyClang,
		"clang++-17":                 familyClang,
		"clang-cl.exe":               familyMSVC,
		"CL.EXE":                     familyMSVC,
	}
	for compiler, want := range tests {
		assert.Equal(t, want, detectFamily(compiler), compiler)
	}
}

func TestFindCompilerFromEnv(t *testing.T) {
	t.Setenv("CC", "my-cc")
	t.Setenv("CXX", "my-c++")
	assert.Equal(t, "my-cc", findCompiler(false))
	assert.Equal(t, "my-c++", findCompiler(true))

	t.Setenv("CXX", "")
	assert.Equal(t, "my-cc", findCompiler(true))
}

func TestMachineFlags(t *testing.T) {
	host := native.TargetMachine{OS: native.Linux, Arch: native.X86_64}
	x86 := native.TargetMachine{OS: native.Linux, Arch: native.X86}
	arm := native.TargetMachine{OS: native.Linux, Arch: native.Aarch64}

	flags, err := machineFlags("gcc", host, host)
	require.NoError(t, err)
	assert.Nil(t, flags)

	flags, err = machineFlags("/usr/bin/clang", arm, host)
	require.NoError(t, err)
	assert.Equal(t, []string{"--target=aarch64-linux-gnu"}, flags)

	flags, err = machineFlags("gcc", x86, host)
	require.NoError(t, err)
	assert.Equal(t, []string{"-m32"}, flags)

	_, err = machineFlags("gcc", arm, host)
	assert.EqualError(t, err, "no toolchain flags known to build for linux-aarch64 with gcc on linux-x86_64")

	_, err = machineFlags("clang", native.TargetMachine{OS: native.Windows, Arch: native.X86_64}, host)
	assert.EqualError(t, err, "cross-OS builds are not supported (windows-x86_64 on linux-x86_64)")
}
