package snapshot

import (
	"bytes"
	"context"
	"encoding/base64"
	"image"
	"image/color"
	"image/jpeg"
	"math"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/satriahrh/studylive/domain/entities"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestContentRect(t *testing.T) {
	tests := []struct {
		name      string
		container entities.Size
		source    entities.Size
		want      Rect
	}{
		{
			name:      "letterbox wide video in square box",
			container: entities.Size{Width: 800, Height: 800},
			source:    entities.Size{Width: 1920, Height: 1080},
			want:      Rect{X: 0, Y: 175, Width: 800, Height: 450},
		},
		{
			name:      "pillarbox tall video in wide box",
			container: entities.Size{Width: 1600, Height: 900},
			source:    entities.Size{Width: 1080, Height: 1920},
			want:      Rect{X: 546.875, Y: 0, Width: 506.25, Height: 900},
		},
		{
			name:      "exact fit",
			container: entities.Size{Width: 1280, Height: 720},
			source:    entities.Size{Width: 1920, Height: 1080},
			want:      Rect{X: 0, Y: 0, Width: 1280, Height: 720},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ContentRect(tt.container, tt.source)
			if !almostEqual(got.X, tt.want.X) || !almostEqual(got.Y, tt.want.Y) ||
				!almostEqual(got.Width, tt.want.Width) || !almostEqual(got.Height, tt.want.Height) {
				t.Errorf("ContentRect() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestMapPointCenter(t *testing.T) {
	containers := []entities.Size{
		{Width: 800, Height: 800},
		{Width: 1600, Height: 900},
		{Width: 333, Height: 1000},
	}
	source := entities.Size{Width: 1920, Height: 1080}

	for _, container := range containers {
		rect := ContentRect(container, source)
		center := entities.Point{X: container.Width / 2, Y: container.Height / 2}

		got := MapPoint(center, rect, source)
		if !almostEqual(got.X, source.Width/2) || !almostEqual(got.Y, source.Height/2) {
			t.Errorf("Container %+v: center mapped to %+v, want source center", container, got)
		}
	}
}

func TestMapPointCorners(t *testing.T) {
	container := entities.Size{Width: 800, Height: 800}
	source := entities.Size{Width: 1920, Height: 1080}
	rect := ContentRect(container, source)

	topLeft := MapPoint(entities.Point{X: rect.X, Y: rect.Y}, rect, source)
	if !almostEqual(topLeft.X, 0) || !almostEqual(topLeft.Y, 0) {
		t.Errorf("Top-left of content mapped to %+v", topLeft)
	}

	bottomRight := MapPoint(entities.Point{X: rect.X + rect.Width, Y: rect.Y + rect.Height}, rect, source)
	if !almostEqual(bottomRight.X, 1920) || !almostEqual(bottomRight.Y, 1080) {
		t.Errorf("Bottom-right of content mapped to %+v", bottomRight)
	}
}

func solidImage(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{B: 200, A: 255})
		}
	}
	return img
}

func TestAnnotateDrawsOutline(t *testing.T) {
	img := solidImage(100, 100)
	outline := []entities.Point{{X: 10, Y: 50}, {X: 90, Y: 50}}

	annotated := Annotate(img, outline, 4)

	r, _, _, _ := annotated.At(50, 50).RGBA()
	if r>>8 < 200 {
		t.Errorf("Expected outline pixel to be red, got r=%d", r>>8)
	}
	r, _, _, _ = annotated.At(50, 10).RGBA()
	if r>>8 != 0 {
		t.Errorf("Expected untouched pixel away from outline, got r=%d", r>>8)
	}
	r, _, _, _ = img.At(50, 50).RGBA()
	if r != 0 {
		t.Error("Annotate must not modify the source image")
	}
}

func TestScale(t *testing.T) {
	scaled := Scale(solidImage(2048, 1024), 1024)
	if scaled.Bounds().Dx() != 1024 || scaled.Bounds().Dy() != 512 {
		t.Errorf("Unexpected scaled size %v", scaled.Bounds())
	}

	small := solidImage(320, 240)
	if Scale(small, 1024) != image.Image(small) {
		t.Error("Images within the limit should be returned unchanged")
	}
}

func TestRender(t *testing.T) {
	view := entities.ViewState{
		Container: entities.Size{Width: 640, Height: 360},
		Outline:   []entities.Point{{X: 100, Y: 100}, {X: 200, Y: 100}, {X: 200, Y: 200}},
	}

	data, err := Render(solidImage(1920, 1080), view, DefaultConfig())
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}

	decoded, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Output is not a JPEG: %v", err)
	}
	if decoded.Bounds().Dx() != 1024 {
		t.Errorf("Expected width 1024, got %d", decoded.Bounds().Dx())
	}

	if _, err := Render(nil, view, DefaultConfig()); err == nil {
		t.Error("Expected error for nil frame")
	}
}

type staticSource struct {
	img image.Image
	err error
}

func (s *staticSource) Frame(ctx context.Context, videoPath string, position time.Duration) (image.Image, error) {
	return s.img, s.err
}

func TestSnapshotterSendsFrames(t *testing.T) {
	var mu sync.Mutex
	var sent []entities.MediaChunk
	got := make(chan struct{}, 10)

	s := New(
		&staticSource{img: solidImage(64, 48)},
		func() entities.ViewState { return entities.ViewState{} },
		func(chunk entities.MediaChunk) error {
			mu.Lock()
			sent = append(sent, chunk)
			mu.Unlock()
			got <- struct{}{}
			return nil
		},
		Config{Interval: 10 * time.Millisecond},
		zaptest.NewLogger(t),
	)

	s.Start(context.Background())
	select {
	case <-got:
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for snapshot")
	}
	s.Stop()
	s.Stop()

	mu.Lock()
	defer mu.Unlock()
	if sent[0].MIMEType != entities.MIMETypeJPEG {
		t.Errorf("Expected image/jpeg, got %s", sent[0].MIMEType)
	}
	if _, err := base64.StdEncoding.DecodeString(sent[0].Data); err != nil {
		t.Errorf("Snapshot is not base64: %v", err)
	}
}

func TestSnapshotterSkipsMissingFrames(t *testing.T) {
	sends := 0
	s := New(
		&staticSource{err: entities.ErrNoFrame},
		func() entities.ViewState { return entities.ViewState{} },
		func(chunk entities.MediaChunk) error { sends++; return nil },
		DefaultConfig(),
		zaptest.NewLogger(t),
	)

	s.tick(context.Background())
	if sends != 0 {
		t.Errorf("Expected no sends without a frame, got %d", sends)
	}
}
