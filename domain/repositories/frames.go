package repositories

import (
	"context"
	"image"
	"time"
)

// FrameSource captures the visual frame currently shown by the player
type FrameSource interface {
	Frame(ctx context.Context, videoPath string, position time.Duration) (image.Image, error)
}
