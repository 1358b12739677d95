package downloads

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/bodgit/sevenzip"
	"github.com/stevecastle/lkgquilt/platform"
	"github.com/ulikunitz/xz"
)

// ArchiveType identifies a supported archive container.
type ArchiveType int

const (
	ArchiveUnknown ArchiveType = iota
	ArchiveZip
	Archive7z
	ArchiveTarGz
	ArchiveTarXz
)

func (t ArchiveType) String() string {
	switch t {
	case ArchiveZip:
		return "zip"
	case Archive7z:
		return "7z"
	case ArchiveTarGz:
		return "tar.gz"
	case ArchiveTarXz:
		return "tar.xz"
	default:
		return "unknown"
	}
}

// DetectArchiveType guesses the archive type from a file name or URL.
func DetectArchiveType(name string) ArchiveType {
	name = strings.ToLower(name)
	if i := strings.IndexAny(name, "?#"); i >= 0 {
		name = name[:i]
	}
	switch {
	case strings.HasSuffix(name, ".zip"):
		return ArchiveZip
	case strings.HasSuffix(name, ".7z"):
		return Archive7z
	case strings.HasSuffix(name, ".tar.gz"), strings.HasSuffix(name, ".tgz"):
		return ArchiveTarGz
	case strings.HasSuffix(name, ".tar.xz"), strings.HasSuffix(name, ".txz"):
		return ArchiveTarXz
	}
	return ArchiveUnknown
}

// Selector maps an archive entry name to a path relative to the destination
// directory. Returning false skips the entry.
type Selector func(name string) (string, bool)

// FlattenBase keeps only entries whose base name is one of names and
// extracts them directly into the destination directory.
func FlattenBase(names ...string) Selector {
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = true
	}
	return func(name string) (string, bool) {
		base := path.Base(strings.ReplaceAll(name, "\\", "/"))
		return base, want[base]
	}
}

// ExtractArchive extracts archivePath into destDir, choosing the format from
// the file extension. A nil selector extracts everything unchanged.
func ExtractArchive(archivePath, destDir string, sel Selector, progressCb ProgressCallback) error {
	switch t := DetectArchiveType(archivePath); t {
	case ArchiveZip:
		return ExtractZip(archivePath, destDir, sel, progressCb)
	case Archive7z:
		return Extract7z(archivePath, destDir, sel, progressCb)
	case ArchiveTarGz:
		return ExtractTarGz(archivePath, destDir, sel, progressCb)
	case ArchiveTarXz:
		return ExtractTarXz(archivePath, destDir, sel, progressCb)
	default:
		return fmt.Errorf("unsupported archive type: %s", filepath.Base(archivePath))
	}
}

// ExtractZip extracts a ZIP archive to the destination directory.
func ExtractZip(archivePath, destDir string, sel Selector, progressCb ProgressCallback) error {
	reader, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("failed to open zip archive: %w", err)
	}
	defer reader.Close()

	for i, file := range reader.File {
		reportExtracting(progressCb, i, len(reader.File))
		if file.FileInfo().IsDir() {
			continue
		}
		rc, err := file.Open()
		if err != nil {
			return fmt.Errorf("failed to open %s in archive: %w", file.Name, err)
		}
		err = writeEntry(destDir, file.Name, file.Mode(), rc, sel)
		rc.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

// Extract7z extracts a 7z archive to the destination directory.
func Extract7z(archivePath, destDir string, sel Selector, progressCb ProgressCallback) error {
	reader, err := sevenzip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("failed to open 7z archive: %w", err)
	}
	defer reader.Close()

	for i, file := range reader.File {
		reportExtracting(progressCb, i, len(reader.File))
		info := file.FileInfo()
		if info.IsDir() {
			continue
		}
		rc, err := file.Open()
		if err != nil {
			return fmt.Errorf("failed to open %s in archive: %w", file.Name, err)
		}
		err = writeEntry(destDir, file.Name, info.Mode(), rc, sel)
		rc.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

// ExtractTarGz extracts a gzip compressed tarball.
func ExtractTarGz(archivePath, destDir string, sel Selector, progressCb ProgressCallback) error {
	file, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}
	defer file.Close()

	gzReader, err := gzip.NewReader(file)
	if err != nil {
		return fmt.Errorf("failed to create gzip reader: %w", err)
	}
	defer gzReader.Close()

	if progressCb != nil {
		progressCb(Progress{Status: StatusExtracting, Message: "Extracting tar.gz archive..."})
	}
	return extractTar(gzReader, destDir, sel)
}

// ExtractTarXz extracts an xz compressed tarball, the format of the Linux
// ffmpeg builds.
func ExtractTarXz(archivePath, destDir string, sel Selector, progressCb ProgressCallback) error {
	file, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}
	defer file.Close()

	xzReader, err := xz.NewReader(file)
	if err != nil {
		return fmt.Errorf("failed to create xz reader: %w", err)
	}

	if progressCb != nil {
		progressCb(Progress{Status: StatusExtracting, Message: "Extracting tar.xz archive..."})
	}
	return extractTar(xzReader, destDir, sel)
}

func extractTar(r io.Reader, destDir string, sel Selector) error {
	tarReader := tar.NewReader(r)
	for {
		header, err := tarReader.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read tar: %w", err)
		}
		if header.Typeflag != tar.TypeReg {
			continue
		}
		if err := writeEntry(destDir, header.Name, header.FileInfo().Mode(), tarReader, sel); err != nil {
			return err
		}
	}
}

func reportExtracting(progressCb ProgressCallback, i, total int) {
	if progressCb != nil && i%10 == 0 {
		progressCb(Progress{
			Status:  StatusExtracting,
			Message: fmt.Sprintf("Extracting %d/%d files...", i+1, total),
		})
	}
}

// writeEntry copies one archive member to disk if the selector accepts it.
func writeEntry(destDir, name string, mode os.FileMode, r io.Reader, sel Selector) error {
	rel := name
	if sel != nil {
		var ok bool
		if rel, ok = sel(name); !ok {
			return nil
		}
	}

	destPath, err := safeJoin(destDir, rel)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	outFile, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", destPath, err)
	}
	if _, err := io.Copy(outFile, r); err != nil {
		outFile.Close()
		return fmt.Errorf("failed to extract %s: %w", name, err)
	}
	if err := outFile.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", destPath, err)
	}

	if mode&0111 != 0 {
		// Non-fatal; the caller verifies the executables it needs
		_ = platform.EnsureExecutable(destPath)
	}
	return nil
}

// safeJoin rejects entries that would land outside destDir.
func safeJoin(destDir, rel string) (string, error) {
	root := filepath.Clean(destDir)
	p := filepath.Join(root, filepath.FromSlash(rel))
	if p != root && !strings.HasPrefix(p, root+string(os.PathSeparator)) {
		return "", fmt.Errorf("illegal path in archive: %s", rel)
	}
	return p, nil
}
