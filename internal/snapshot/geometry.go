package snapshot

import (
	"github.com/satriahrh/studylive/domain/entities"
)

// Rect is the area of the container actually covered by the displayed media
type Rect struct {
	X      float64
	Y      float64
	Width  float64
	Height float64
}

// ContentRect fits source inside container preserving aspect ratio and
// centers it, returning the letterboxed or pillarboxed content area.
func ContentRect(container, source entities.Size) Rect {
	if container.Width <= 0 || container.Height <= 0 || source.Width <= 0 || source.Height <= 0 {
		return Rect{Width: container.Width, Height: container.Height}
	}

	containerRatio := container.Width / container.Height
	sourceRatio := source.Width / source.Height

	if sourceRatio > containerRatio {
		// Wider than the container: bars above and below.
		height := container.Width / sourceRatio
		return Rect{
			X:      0,
			Y:      (container.Height - height) / 2,
			Width:  container.Width,
			Height: height,
		}
	}

	width := container.Height * sourceRatio
	return Rect{
		X:      (container.Width - width) / 2,
		Y:      0,
		Width:  width,
		Height: container.Height,
	}
}

// MapPoint converts a container-space point into source pixel coordinates
func MapPoint(p entities.Point, rect Rect, source entities.Size) entities.Point {
	if rect.Width <= 0 || rect.Height <= 0 {
		return entities.Point{}
	}
	return entities.Point{
		X: (p.X - rect.X) * (source.Width / rect.Width),
		Y: (p.Y - rect.Y) * (source.Height / rect.Height),
	}
}

// MapOutline maps every point of a screen-space outline into source space
func MapOutline(outline []entities.Point, container, source entities.Size) []entities.Point {
	rect := ContentRect(container, source)
	mapped := make([]entities.Point, len(outline))
	for i, p := range outline {
		mapped[i] = MapPoint(p, rect, source)
	}
	return mapped
}
