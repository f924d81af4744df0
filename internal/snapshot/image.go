package snapshot

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"math"

	"golang.org/x/image/draw"
	"golang.org/x/image/vector"

	"github.com/satriahrh/studylive/domain/entities"
)

// Image defaults
const (
	DefaultMaxEdge   = 1024
	DefaultQuality   = 80
	DefaultLineWidth = 4
)

var outlineColor = color.RGBA{R: 255, G: 48, B: 48, A: 255}

// Annotate copies img and strokes the source-space outline onto it as a
// closed polygon.
func Annotate(img image.Image, outline []entities.Point, lineWidth float64) *image.RGBA {
	bounds := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(dst, dst.Bounds(), img, bounds.Min, draw.Src)

	if len(outline) < 2 {
		return dst
	}
	if lineWidth <= 0 {
		lineWidth = DefaultLineWidth
	}

	w, h := dst.Bounds().Dx(), dst.Bounds().Dy()
	z := vector.NewRasterizer(w, h)
	src := image.NewUniform(outlineColor)

	segments := len(outline)
	if segments == 2 {
		segments = 1
	}
	for i := 0; i < segments; i++ {
		a := outline[i]
		b := outline[(i+1)%len(outline)]

		z.Reset(w, h)
		z.DrawOp = draw.Over
		if !strokeSegment(z, a, b, lineWidth/2) {
			continue
		}
		z.Draw(dst, dst.Bounds(), src, image.Point{})
	}

	return dst
}

// strokeSegment adds the quad covering segment ab with the given half width
func strokeSegment(z *vector.Rasterizer, a, b entities.Point, half float64) bool {
	dx, dy := b.X-a.X, b.Y-a.Y
	length := math.Hypot(dx, dy)
	if length == 0 {
		return false
	}
	nx, ny := -dy/length*half, dx/length*half

	z.MoveTo(float32(a.X+nx), float32(a.Y+ny))
	z.LineTo(float32(b.X+nx), float32(b.Y+ny))
	z.LineTo(float32(b.X-nx), float32(b.Y-ny))
	z.LineTo(float32(a.X-nx), float32(a.Y-ny))
	z.ClosePath()
	return true
}

// Scale shrinks img so its longest edge is at most maxEdge
func Scale(img image.Image, maxEdge int) image.Image {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if maxEdge <= 0 || (width <= maxEdge && height <= maxEdge) {
		return img
	}

	ratio := float64(maxEdge) / float64(max(width, height))
	targetWidth := max(1, int(float64(width)*ratio))
	targetHeight := max(1, int(float64(height)*ratio))

	dst := image.NewRGBA(image.Rect(0, 0, targetWidth, targetHeight))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
	return dst
}

// EncodeJPEG compresses img at the given quality
func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	if quality <= 0 || quality > 100 {
		quality = DefaultQuality
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("failed to encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}
