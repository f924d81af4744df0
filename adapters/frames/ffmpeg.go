// Package frames captures the video frame the player is showing.
package frames

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"os/exec"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/studylive/domain/entities"
	"github.com/satriahrh/studylive/domain/repositories"
)

const (
	defaultFFmpegPath    = "ffmpeg"
	defaultFFmpegTimeout = 5 * time.Second
)

// ErrFFmpegNotFound is returned when the ffmpeg binary is not on PATH
var ErrFFmpegNotFound = errors.New("ffmpeg not found")

// FFmpegConfig holds configuration for the ffmpeg frame source
type FFmpegConfig struct {
	Path    string
	Timeout time.Duration
}

// FFmpegSource extracts single frames from a local video file with ffmpeg
type FFmpegSource struct {
	path    string
	timeout time.Duration
	logger  *zap.Logger
}

var _ repositories.FrameSource = (*FFmpegSource)(nil)

// NewFFmpegSource creates an ffmpeg frame source
func NewFFmpegSource(config FFmpegConfig, logger *zap.Logger) *FFmpegSource {
	if config.Path == "" {
		config.Path = defaultFFmpegPath
		logger.Info("Using default ffmpeg path", zap.String("path", config.Path))
	}
	if config.Timeout <= 0 {
		config.Timeout = defaultFFmpegTimeout
	}
	return &FFmpegSource{path: config.Path, timeout: config.Timeout, logger: logger}
}

// Frame decodes the frame at position. It returns entities.ErrNoFrame when
// nothing is loaded in the player.
func (s *FFmpegSource) Frame(ctx context.Context, videoPath string, position time.Duration) (image.Image, error) {
	if videoPath == "" {
		return nil, entities.ErrNoFrame
	}
	if _, err := os.Stat(videoPath); err != nil {
		return nil, fmt.Errorf("%w: %v", entities.ErrNoFrame, err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, s.path, ffmpegArgs(videoPath, position)...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		var execErr *exec.Error
		if errors.As(err, &execErr) && errors.Is(execErr.Err, exec.ErrNotFound) {
			return nil, ErrFFmpegNotFound
		}
		return nil, fmt.Errorf("failed to extract frame: %w: %s", err, truncate(stderr.String(), 256))
	}

	// Seeking past the end yields no output.
	if stdout.Len() == 0 {
		return nil, entities.ErrNoFrame
	}

	frame, _, err := image.Decode(&stdout)
	if err != nil {
		return nil, fmt.Errorf("failed to decode frame: %w", err)
	}
	return frame, nil
}

func ffmpegArgs(videoPath string, position time.Duration) []string {
	return []string{
		"-hide_banner",
		"-loglevel", "error",
		"-ss", strconv.FormatFloat(position.Seconds(), 'f', 3, 64),
		"-i", videoPath,
		"-frames:v", "1",
		"-f", "image2pipe",
		"-vcodec", "png",
		"-",
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
