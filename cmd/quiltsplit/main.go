// quiltsplit cuts a quilt image back into one file per view.
package main

import (
	"errors"
	"flag"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	_ "golang.org/x/image/webp"

	xdraw "golang.org/x/image/draw"

	"github.com/stevecastle/lkgquilt/quilt"
)

type options struct {
	in       string
	outDir   string
	pattern  string
	rows     int
	columns  int
	width    int // per-view output size; 0 keeps the tile size
	height   int
	quality  int // JPEG quality, used when pattern ends in .jpg
	threads  int
	reversed bool
}

func main() {
	var o options
	flag.StringVar(&o.in, "in", "", "quilt image path (PNG/JPEG/WEBP)")
	flag.StringVar(&o.outDir, "out", ".", "directory the views are written to")
	flag.StringVar(&o.pattern, "pattern", "view_%02d.png", "view file name, printf style")
	flag.IntVar(&o.rows, "rows", 6, "quilt rows")
	flag.IntVar(&o.columns, "columns", 8, "quilt columns")
	flag.IntVar(&o.width, "width", 0, "resize each view to this width")
	flag.IntVar(&o.height, "height", 0, "resize each view to this height")
	flag.IntVar(&o.quality, "quality", 92, "JPEG quality 1..100")
	flag.IntVar(&o.threads, "threads", runtime.GOMAXPROCS(0), "worker goroutines")
	flag.BoolVar(&o.reversed, "invert", false, "number views from the top-right instead of the bottom-left")
	flag.Parse()

	if o.in == "" {
		fmt.Fprintln(os.Stderr, "usage: quiltsplit --in <quilt> [--rows 6 --columns 8] [--out dir] ...")
		os.Exit(2)
	}

	n, err := run(o)
	if err != nil {
		fmt.Fprintf(os.Stderr, "quiltsplit: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Wrote %d views to %s\n", n, o.outDir)
}

func run(o options) (int, error) {
	if o.rows <= 0 || o.columns <= 0 {
		return 0, fmt.Errorf("rows and columns must be positive, got %dx%d", o.columns, o.rows)
	}
	if (o.width > 0) != (o.height > 0) {
		return 0, errors.New("--width and --height must be given together")
	}

	img, err := loadImage(o.in)
	if err != nil {
		return 0, fmt.Errorf("failed to load quilt: %w", err)
	}
	b := img.Bounds()
	layout := quilt.NewLayout(o.rows, o.columns, b.Dx(), b.Dy())

	views, err := splitQuilt(img, layout, o.width, o.height)
	if err != nil {
		return 0, err
	}
	if o.reversed {
		for i, j := 0, len(views)-1; i < j; i, j = i+1, j-1 {
			views[i], views[j] = views[j], views[i]
		}
	}

	if err := os.MkdirAll(o.outDir, 0755); err != nil {
		return 0, err
	}
	return len(views), writeViews(views, o.outDir, o.pattern, o.quality, o.threads)
}

// splitQuilt copies every view of img out into its own image, scaled to
// width x height when those are set.
func splitQuilt(img image.Image, layout quilt.Layout, width, height int) ([]*image.RGBA, error) {
	origin := img.Bounds().Min
	views := make([]*image.RGBA, layout.Views())
	for i := range views {
		r, err := layout.ViewRect(i)
		if err != nil {
			return nil, err
		}
		r = r.Add(origin)

		if width > 0 && height > 0 {
			dst := image.NewRGBA(image.Rect(0, 0, width, height))
			xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, r, xdraw.Src, nil)
			views[i] = dst
			continue
		}
		dst := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
		xdraw.Copy(dst, image.Point{}, img, r, xdraw.Src, nil)
		views[i] = dst
	}
	return views, nil
}

// writeViews saves views concurrently and returns the first error.
func writeViews(views []*image.RGBA, dir, pattern string, quality, threads int) error {
	if threads < 1 {
		threads = 1
	}
	jobs := make(chan int)
	errs := make([]error, len(views))
	var wg sync.WaitGroup
	for w := 0; w < threads; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				errs[i] = saveView(filepath.Join(dir, fmt.Sprintf(pattern, i)), views[i], quality)
			}
		}()
	}
	for i := range views {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
	return errors.Join(errs...)
}

func saveView(path string, img image.Image, quality int) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return saveJPEG(path, img, quality)
	default:
		return savePNG(path, img)
	}
}

func loadImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	return img, err
}

func savePNG(path string, img image.Image) error {
	enc := png.Encoder{CompressionLevel: png.BestSpeed}
	return saveWith(path, func(w io.Writer) error { return enc.Encode(w, img) })
}

func saveJPEG(path string, img image.Image, quality int) error {
	if quality < 1 || quality > 100 {
		return errors.New("jpeg quality 1..100")
	}
	return saveWith(path, func(w io.Writer) error {
		return jpeg.Encode(w, img, &jpeg.Options{Quality: quality})
	})
}

func saveWith(path string, encode func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	return encodeAndClose(f, encode)
}

// encodeAndClose returns the Close error too; a view whose last write
// failed there is truncated.
func encodeAndClose(f io.WriteCloser, encode func(io.Writer) error) error {
	if err := encode(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
