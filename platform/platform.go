// Package platform provides cross-platform utilities for directory paths,
// binary extensions, and OS-specific operations.
package platform

import (
	"os"
)

// AppName is the application name used for directory naming
const AppName = "lkg-quilt"

// AppDisplayName is the display name used on Windows and macOS
const AppDisplayName = "LKG Quilt"

// GetDataDir returns the application data directory.
// Windows: %APPDATA%\LKG Quilt
// macOS: ~/Library/Application Support/LKG Quilt
// Linux: ~/.local/share/lkg-quilt
func GetDataDir() string {
	return getDataDir()
}

// GetTempDir returns the staging directory for dependency downloads.
// Linux: XDG_RUNTIME_DIR/lkg-quilt or /tmp/lkg-quilt
// macOS: TMPDIR/lkg-quilt
func GetTempDir() string {
	return getTempDir()
}

// BinaryExtension returns the executable file extension for the current platform.
// Windows: ".exe"
// Linux: ""
func BinaryExtension() string {
	return binaryExtension()
}

// EnsureExecutable ensures a file has executable permissions.
// On Windows, this is a no-op.
func EnsureExecutable(path string) error {
	return ensureExecutable(path)
}

// UserHomeDir returns the user's home directory with proper fallbacks.
func UserHomeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
