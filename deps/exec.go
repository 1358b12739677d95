package deps

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"

	"github.com/stevecastle/lkgquilt/platform"
)

var (
	overridesMu sync.RWMutex
	overrides   = map[string]string{}
)

// SetExecutableOverride points exeName at an explicitly configured path.
// An empty path removes the override.
func SetExecutableOverride(exeName, path string) {
	overridesMu.Lock()
	defer overridesMu.Unlock()
	if path == "" {
		delete(overrides, exeName)
		return
	}
	overrides[exeName] = path
}

func override(exeName string) string {
	overridesMu.RLock()
	defer overridesMu.RUnlock()
	return overrides[exeName]
}

// ResolveExecutable finds exeName, trying a configured override first, then
// the dependency's install directory, then the system PATH.
func ResolveExecutable(depID string, exeName string) (string, error) {
	if p := override(exeName); p != "" {
		if fileExists(p) {
			return p, nil
		}
		return "", fmt.Errorf("configured %s path %s does not exist", exeName, p)
	}

	if exePath, err := GetExecutablePath(depID, exeName); err == nil && fileExists(exePath) {
		return exePath, nil
	}

	systemPath, err := exec.LookPath(exeName)
	if err != nil {
		return "", fmt.Errorf("executable %q not found in dependency %q or system PATH: %w", exeName, depID, err)
	}
	return systemPath, nil
}

// GetExec builds an exec.Cmd for a dependency executable. See ResolveExecutable.
func GetExec(ctx context.Context, depID string, exeName string, args ...string) (*exec.Cmd, error) {
	exePath, err := ResolveExecutable(depID, exeName)
	if err != nil {
		return nil, err
	}
	cmd := exec.CommandContext(ctx, exePath, args...)
	configureSysProcAttr(cmd)
	return cmd, nil
}

// GetExecutablePath returns the full path to an executable within a dependency.
// The path may not exist.
func GetExecutablePath(depID string, exeName string) (string, error) {
	base, err := GetInstallPath(depID)
	if err != nil {
		return "", err
	}

	fullName := GetExecutableName(exeName)

	meta, ok := GetMetadataStore().Get(depID)
	if ok && meta.Files != nil {
		if fileInfo, exists := meta.Files[fullName]; exists && fileInfo.Path != "" {
			return fileInfo.Path, nil
		}
	}

	return filepath.Join(base, fullName), nil
}

// GetExecutableName returns the platform-specific executable name.
func GetExecutableName(baseName string) string {
	return baseName + platform.BinaryExtension()
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
