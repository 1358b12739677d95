// Package preview checks rendered quilts and writes small thumbnails of them.
package preview

import (
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/nfnt/resize"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Path returns where the thumbnail of output is written:
// "quilt.png" becomes "quilt.preview.png".
func Path(output string) string {
	return strings.TrimSuffix(output, filepath.Ext(output)) + ".preview.png"
}

// Verify decodes the header of the image at path and checks its size.
// It returns the detected format.
func Verify(path string, width, height int) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	cfg, format, err := image.DecodeConfig(f)
	if err != nil {
		return "", fmt.Errorf("failed to decode %s: %w", path, err)
	}
	if cfg.Width != width || cfg.Height != height {
		return format, fmt.Errorf("%s is %dx%d, expected %dx%d", path, cfg.Width, cfg.Height, width, height)
	}
	return format, nil
}

// Load decodes the image at path.
func Load(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return img, nil
}

// Thumbnail writes a PNG copy of src scaled to width, keeping the aspect ratio.
func Thumbnail(src, dst string, width int) error {
	if width <= 0 {
		return fmt.Errorf("thumbnail width must be positive, got %d", width)
	}
	img, err := Load(src)
	if err != nil {
		return err
	}

	thumb := resize.Resize(uint(width), 0, img, resize.Lanczos3)

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if err := png.Encode(out, thumb); err != nil {
		out.Close()
		return fmt.Errorf("failed to encode %s: %w", dst, err)
	}
	return out.Close()
}
