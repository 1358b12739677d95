// Package quilt computes the geometry of a lightfield quilt and turns it
// into the ffmpeg filter chain that renders one.
package quilt

import (
	"fmt"
	"image"
	"math"
)

// CroppedDimensions returns the largest rectangle of the target aspect
// (width/height) that fits inside w x h. Wider sources keep their height,
// narrower ones keep their width.
func CroppedDimensions(w, h int, aspect float64) (int, int) {
	if float64(w)/float64(h) > aspect {
		return int(float64(h) * aspect), h
	}
	return w, int(float64(w) / aspect)
}

// Layout is the tile grid of a quilt canvas.
type Layout struct {
	Rows         int
	Columns      int
	CanvasWidth  int
	CanvasHeight int
	TileWidth    float64
	TileHeight   float64
}

// NewLayout divides a canvas into rows x columns tiles.
func NewLayout(rows, columns, canvasWidth, canvasHeight int) Layout {
	return Layout{
		Rows:         rows,
		Columns:      columns,
		CanvasWidth:  canvasWidth,
		CanvasHeight: canvasHeight,
		TileWidth:    float64(canvasWidth) / float64(columns),
		TileHeight:   float64(canvasHeight) / float64(rows),
	}
}

// Views is the number of tiles.
func (l Layout) Views() int {
	return l.Rows * l.Columns
}

// ViewRect returns the pixel rectangle of view i on the canvas. Quilts
// start at the bottom-left tile and fill each row left to right, moving up.
func (l Layout) ViewRect(i int) (image.Rectangle, error) {
	if i < 0 || i >= l.Views() {
		return image.Rectangle{}, fmt.Errorf("view %d out of range [0,%d)", i, l.Views())
	}
	col := i % l.Columns
	row := i / l.Columns

	x0 := int(math.Floor(float64(col) * l.TileWidth))
	x1 := int(math.Floor(float64(col+1) * l.TileWidth))
	y1 := l.CanvasHeight - int(math.Floor(float64(row)*l.TileHeight))
	y0 := l.CanvasHeight - int(math.Floor(float64(row+1)*l.TileHeight))
	if col == l.Columns-1 {
		x1 = l.CanvasWidth
	}
	if row == l.Rows-1 {
		y0 = 0
	}
	return image.Rect(x0, y0, x1, y1), nil
}

// FocusShift holds the pad and zoompan parameters that simulate moving the
// focal plane by panning each successive view horizontally.
type FocusShift struct {
	PaddingFactor float64
	MaxShift      float64
	ShiftPerView  float64
	StartX        float64
}

// NewFocusShift computes the focus parameters for a source origWidth pixels
// wide cropped to cropWidth. Only the magnitude of focus is used.
func NewFocusShift(origWidth, cropWidth, totalViews int, focus float64) FocusShift {
	maxShift := float64(cropWidth) * math.Abs(focus*2)
	zoompanWidth := float64(origWidth) + maxShift
	padding := zoompanWidth / float64(origWidth)
	padWidth := float64(origWidth) * padding
	return FocusShift{
		PaddingFactor: padding,
		MaxShift:      maxShift,
		ShiftPerView:  maxShift / float64(totalViews),
		StartX:        (padWidth - zoompanWidth) / 2,
	}
}
