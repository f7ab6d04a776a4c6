package gen

import (
	"errors"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/heaths/go-vssetup"
)

var errNoMsbuild = errors.New("could not find MSBuild, install Visual Studio 2022 or the Build Tools")

var msbuildInInstance = filepath.Join("MSBuild", "Current", "Bin", "MSBuild.exe")

// replaced in tests
var (
	lookPath            = exec.LookPath
	vsInstallationPaths = installationPaths
)

// installationPaths lists the roots of launchable Visual Studio instances
func installationPaths() ([]string, error) {
	instances, err := vssetup.Instances(false)
	if err != nil {
		return nil, err
	}

	var paths []string
	for _, inst := range instances {
		path, err := inst.InstallationPath()
		inst.Close()
		if err != nil {
			continue
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// FindMsbuild locates MSBuild.exe on PATH, then in installed Visual Studio instances
func FindMsbuild() (string, error) {
	if path, err := lookPath("msbuild"); err == nil {
		return path, nil
	}

	roots, err := vsInstallationPaths()
	if err != nil {
		return "", errors.Join(errNoMsbuild, err)
	}
	for _, root := range roots {
		candidate := filepath.Join(root, msbuildInInstance)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", errNoMsbuild
}
