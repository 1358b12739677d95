package deps

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"time"

	"github.com/stevecastle/lkgquilt/downloads"
	"github.com/stevecastle/lkgquilt/platform"
)

// FFmpegID is the registry ID of the ffmpeg/ffprobe dependency.
const FFmpegID = "ffmpeg"

var LatestFFmpegVersion = "N-122344-g649a4e98f4-20260103"

var ffmpegVersionRe = regexp.MustCompile(`(?:ffmpeg|ffprobe) version (\S+)`)

func init() {
	Register(&Dependency{
		ID:            FFmpegID,
		Name:          "FFmpeg",
		Description:   "Probes captures and renders the quilt filter graph",
		TargetDir:     GetDepsDir("ffmpeg"),
		LatestVersion: LatestFFmpegVersion,
		DownloadURL:   GetFFmpegDownloadURL(),
		Executables:   []string{"ffmpeg", "ffprobe"},
		Check:         checkFFmpeg,
		DownloadFn:    downloadFFmpeg,
	})
}

// checkFFmpeg reports whether ffmpeg resolves from any source and its version.
func checkFFmpeg(ctx context.Context) (bool, string, error) {
	exePath, err := ResolveExecutable(FFmpegID, "ffmpeg")
	if err != nil {
		return false, "", nil
	}
	return true, executableVersion(ctx, exePath), nil
}

// executableVersion runs `exe -version` and returns "unknown" when the
// output cannot be parsed.
func executableVersion(ctx context.Context, exePath string) string {
	versionCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	cmd := exec.CommandContext(versionCtx, exePath, "-version")
	configureSysProcAttr(cmd)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return "unknown"
	}
	return parseFFmpegVersion(string(output))
}

// parseFFmpegVersion extracts the version from `ffmpeg -version` output.
func parseFFmpegVersion(output string) string {
	matches := ffmpegVersionRe.FindStringSubmatch(output)
	if len(matches) > 1 {
		return matches[1]
	}
	return "unknown"
}

// downloadFFmpeg fetches an ffmpeg build archive and keeps only the
// ffmpeg and ffprobe binaries from it.
func downloadFFmpeg(ctx context.Context, url string, progress downloads.ProgressCallback) error {
	dep, ok := Get(FFmpegID)
	if !ok {
		return fmt.Errorf("ffmpeg dependency not found in registry")
	}

	if err := os.MkdirAll(dep.TargetDir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	kind := downloads.DetectArchiveType(url)
	if kind == downloads.ArchiveUnknown {
		return fmt.Errorf("cannot tell archive type of %s", url)
	}
	staging := platform.GetTempDir()
	if err := os.MkdirAll(staging, 0755); err != nil {
		return fmt.Errorf("failed to create staging directory: %w", err)
	}
	archivePath := filepath.Join(staging, "ffmpeg-download."+kind.String())
	defer os.Remove(archivePath)

	tracker := downloads.NewSpeedTracker()
	err := downloads.DownloadWithRetry(ctx, archivePath, url, func(downloaded, total int64) {
		var pct float64
		if total > 0 {
			pct = float64(downloaded) / float64(total) * 100
		}
		progress(downloads.Progress{
			Status:          downloads.StatusDownloading,
			Message:         "Downloading...",
			BytesDownloaded: downloaded,
			TotalBytes:      total,
			Percent:         pct,
			Speed:           tracker.Update(downloaded),
		})
	})
	if err != nil {
		return fmt.Errorf("download failed: %w", err)
	}

	names := make([]string, 0, len(dep.Executables))
	for _, exe := range dep.Executables {
		names = append(names, GetExecutableName(exe))
	}
	if err := downloads.ExtractArchive(archivePath, dep.TargetDir, downloads.FlattenBase(names...), progress); err != nil {
		return fmt.Errorf("extraction failed: %w", err)
	}

	files := make(map[string]FileInfo)
	for _, name := range names {
		exePath := filepath.Join(dep.TargetDir, name)
		info, err := os.Stat(exePath)
		if err != nil {
			return fmt.Errorf("%s missing from archive: %w", name, err)
		}
		files[name] = FileInfo{Path: exePath, Size: info.Size()}
	}

	version := executableVersion(ctx, files[GetExecutableName("ffmpeg")].Path)
	if version == "unknown" {
		version = dep.LatestVersion
	}

	store := GetMetadataStore()
	store.Update(FFmpegID, DependencyMetadata{
		InstalledVersion: version,
		Status:           StatusInstalled,
		InstallPath:      dep.TargetDir,
		SourceURL:        url,
		LastChecked:      time.Now(),
		LastUpdated:      time.Now(),
		Files:            files,
	})
	if err := store.Save(); err != nil {
		return fmt.Errorf("save dependency metadata: %w", err)
	}

	progress(downloads.Progress{Status: downloads.StatusExtracting, Message: "Installed " + version})
	return nil
}
