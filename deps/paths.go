package deps

import (
	"path/filepath"
	"runtime"

	"github.com/stevecastle/lkgquilt/platform"
)

// GetDepsDir returns the installation directory for a dependency,
// e.g. ~/.local/share/lkg-quilt/ffmpeg on Linux.
func GetDepsDir(subdir string) string {
	return filepath.Join(platform.GetDataDir(), subdir)
}

// GetFFmpegDownloadURL returns the prebuilt ffmpeg archive for this platform,
// or "" where no static build is published.
func GetFFmpegDownloadURL() string {
	return ffmpegDownloadURL(runtime.GOOS, runtime.GOARCH)
}

func ffmpegDownloadURL(goos, goarch string) string {
	const base = "https://github.com/BtbN/FFmpeg-Builds/releases/download/latest/"
	switch goos {
	case "windows":
		if goarch == "arm64" {
			return base + "ffmpeg-master-latest-winarm64-gpl.zip"
		}
		return base + "ffmpeg-master-latest-win64-gpl.zip"
	case "linux":
		if goarch == "arm64" {
			return base + "ffmpeg-master-latest-linuxarm64-gpl.tar.xz"
		}
		return base + "ffmpeg-master-latest-linux64-gpl.tar.xz"
	}
	return ""
}
