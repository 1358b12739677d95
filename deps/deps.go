package deps

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"sync"

	"github.com/stevecastle/lkgquilt/downloads"
)

// DependencyStatus represents the current state of a dependency.
type DependencyStatus string

const (
	StatusNotInstalled DependencyStatus = "not_installed"
	StatusInstalled    DependencyStatus = "installed"
	StatusOutdated     DependencyStatus = "outdated"
	StatusDownloading  DependencyStatus = "downloading"
)

// Dependency represents an external tool that can be checked and downloaded.
type Dependency struct {
	ID            string
	Name          string
	Description   string
	TargetDir     string // Base directory for installation
	LatestVersion string
	DownloadURL   string

	// Executables the dependency provides, without platform extension
	Executables []string

	// Check reports whether the dependency is usable and its version.
	Check func(ctx context.Context) (exists bool, version string, err error)

	// DownloadFn fetches url and installs it into TargetDir.
	DownloadFn func(ctx context.Context, url string, progress downloads.ProgressCallback) error
}

// DependencyRegistry stores all registered dependencies.
type DependencyRegistry map[string]*Dependency

var (
	registry DependencyRegistry = make(DependencyRegistry)
	mu       sync.RWMutex
)

// Register adds a dependency to the global registry.
func Register(dep *Dependency) {
	mu.Lock()
	defer mu.Unlock()
	registry[dep.ID] = dep
}

// GetAll returns all registered dependencies sorted by ID.
func GetAll() []*Dependency {
	mu.RLock()
	defer mu.RUnlock()

	deps := make([]*Dependency, 0, len(registry))
	for _, d := range registry {
		deps = append(deps, d)
	}
	sort.Slice(deps, func(i, j int) bool { return deps[i].ID < deps[j].ID })
	return deps
}

// Get retrieves a dependency by its ID.
func Get(id string) (*Dependency, bool) {
	mu.RLock()
	defer mu.RUnlock()

	dep, ok := registry[id]
	return dep, ok
}

// EnsureAvailable returns an error naming the first executable of depID
// that cannot be resolved.
func EnsureAvailable(depID string) error {
	dep, ok := Get(depID)
	if !ok {
		return fmt.Errorf("unknown dependency: %s", depID)
	}
	for _, exe := range dep.Executables {
		if _, err := ResolveExecutable(depID, exe); err != nil {
			return fmt.Errorf("%s is not available, run `lkg-quilt deps install` or set its path in the config: %w", exe, err)
		}
	}
	return nil
}

// GetInstallPath retrieves the base installation directory for a dependency.
func GetInstallPath(depID string) (string, error) {
	meta, ok := GetMetadataStore().Get(depID)
	if ok && meta.InstallPath != "" {
		return meta.InstallPath, nil
	}

	dep, ok := Get(depID)
	if !ok {
		return "", fmt.Errorf("unknown dependency: %s", depID)
	}
	return dep.TargetDir, nil
}

// GetMissing returns the registered dependencies whose Check fails.
func GetMissing(ctx context.Context) []*Dependency {
	var missing []*Dependency
	for _, d := range GetAll() {
		exists, _, err := d.Check(ctx)
		if err != nil || !exists {
			missing = append(missing, d)
		}
	}
	return missing
}

// Install downloads depID from url, or from its default URL when url is
// empty, reporting progress to listener.
func Install(ctx context.Context, depID, url string, listener downloads.ProgressCallback) error {
	dep, ok := Get(depID)
	if !ok {
		return fmt.Errorf("unknown dependency: %s", depID)
	}
	if url == "" {
		url = dep.DownloadURL
	}
	if url == "" {
		return fmt.Errorf("no prebuilt %s download for %s/%s; install it with your package manager or pass --url", dep.Name, runtime.GOOS, runtime.GOARCH)
	}

	GetMetadataStore().UpdateStatus(depID, StatusDownloading)

	m := downloads.NewDownloadManager(listener)
	err := m.Install(ctx, dep.ID, dep.Name, func(ctx context.Context, progress downloads.ProgressCallback) error {
		return dep.DownloadFn(ctx, url, progress)
	})
	if err != nil {
		GetMetadataStore().UpdateStatus(depID, StatusNotInstalled)
		return fmt.Errorf("install %s: %w", dep.Name, err)
	}
	return nil
}
