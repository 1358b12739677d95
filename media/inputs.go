package media

import (
	"fmt"
	"os"
	"strings"
	"sync"
)

// IsPattern reports whether path is a printf-style sequence pattern such as
// frame_%04d.png, which only ffmpeg can expand.
func IsPattern(path string) bool {
	return strings.Contains(path, "%")
}

// CheckFileExists checks if a file exists at the given path
func CheckFileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

type fileExistenceResult struct {
	Path   string
	Exists bool
}

// CheckFilesExistConcurrent checks file existence for multiple paths concurrently
func CheckFilesExistConcurrent(paths []string) map[string]bool {
	if len(paths) == 0 {
		return make(map[string]bool)
	}

	results := make(chan fileExistenceResult, len(paths))
	var wg sync.WaitGroup

	for _, path := range paths {
		wg.Add(1)
		go func(p string) {
			defer wg.Done()
			results <- fileExistenceResult{Path: p, Exists: CheckFileExists(p)}
		}(path)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	existenceMap := make(map[string]bool, len(paths))
	for result := range results {
		existenceMap[result.Path] = result.Exists
	}
	return existenceMap
}

// CheckInputsExist returns ErrNoInput naming the first explicit input that is
// missing. Patterns are left for ffprobe to resolve.
func CheckInputsExist(inputs []string) error {
	var explicit []string
	for _, in := range inputs {
		if !IsPattern(in) {
			explicit = append(explicit, in)
		}
	}
	exists := CheckFilesExistConcurrent(explicit)
	for _, in := range explicit {
		if !exists[in] {
			return fmt.Errorf("%w: %s", ErrNoInput, in)
		}
	}
	return nil
}
