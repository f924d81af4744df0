package frames

import (
	"context"
	"fmt"
	"image"
	"os"
	"sync"
	"time"

	"github.com/satriahrh/studylive/domain/entities"
	"github.com/satriahrh/studylive/domain/repositories"
)

// StaticSource serves still images, such as slide decks exported as
// pictures. The position is ignored.
type StaticSource struct {
	mu    sync.Mutex
	cache map[string]image.Image
}

var _ repositories.FrameSource = (*StaticSource)(nil)

// NewStaticSource creates a static image frame source
func NewStaticSource() *StaticSource {
	return &StaticSource{cache: make(map[string]image.Image)}
}

func (s *StaticSource) Frame(ctx context.Context, path string, position time.Duration) (image.Image, error) {
	if path == "" {
		return nil, entities.ErrNoFrame
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if img, ok := s.cache[path]; ok {
		return img, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", entities.ErrNoFrame, err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	s.cache[path] = img
	return img, nil
}
