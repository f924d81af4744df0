// Package audio converts between float PCM frames and the 16-bit wire format.
package audio

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/satriahrh/studylive/domain/entities"
)

const bytesPerSample = 2

var (
	// ErrEmptyAudioData indicates no audio data provided
	ErrEmptyAudioData = errors.New("empty audio data")
	// ErrInvalidChannels indicates a non-positive channel count
	ErrInvalidChannels = errors.New("invalid channel count")
)

// MIMEType returns the wire tag for 16-bit PCM at the given rate
func MIMEType(sampleRate int) string {
	return "audio/pcm;rate=" + strconv.Itoa(sampleRate)
}

// SampleRateFromMIME parses the rate parameter of an audio/pcm tag
func SampleRateFromMIME(mimeType string, fallback int) int {
	for _, param := range strings.Split(mimeType, ";")[1:] {
		key, value, ok := strings.Cut(strings.TrimSpace(param), "=")
		if !ok || key != "rate" {
			continue
		}
		if rate, err := strconv.Atoi(value); err == nil && rate > 0 {
			return rate
		}
	}
	return fallback
}

// EncodePCM16 clamps samples to [-1, 1] and serializes them as 16-bit signed little-endian
func EncodePCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*bytesPerSample)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*bytesPerSample:], uint16(toInt16(s)))
	}
	return out
}

func toInt16(s float32) int16 {
	if s != s { // NaN
		return 0
	}
	v := float64(s)
	if v > 1 {
		v = 1
	} else if v < -1 {
		v = -1
	}
	scaled := math.Round(v * 32768)
	if scaled > math.MaxInt16 {
		scaled = math.MaxInt16
	}
	return int16(scaled)
}

// DecodePCM16 de-interleaves 16-bit little-endian PCM into one float slice per channel
func DecodePCM16(data []byte, channels int) ([][]float32, error) {
	if channels <= 0 {
		return nil, ErrInvalidChannels
	}
	if len(data) == 0 {
		return nil, ErrEmptyAudioData
	}

	frameSize := bytesPerSample * channels
	if len(data)%frameSize != 0 {
		return nil, fmt.Errorf("PCM data size %d not aligned to frame size %d", len(data), frameSize)
	}

	frames := len(data) / frameSize
	out := make([][]float32, channels)
	for ch := range out {
		out[ch] = make([]float32, frames)
	}

	for i := 0; i < frames; i++ {
		for ch := 0; ch < channels; ch++ {
			offset := (i*channels + ch) * bytesPerSample
			s := int16(binary.LittleEndian.Uint16(data[offset:]))
			out[ch][i] = float32(s) / 32768
		}
	}

	return out, nil
}

// EncodeChunk encodes a mono frame into a transport-safe media chunk
func EncodeChunk(samples []float32, sampleRate int) entities.MediaChunk {
	return entities.MediaChunk{
		MIMEType: MIMEType(sampleRate),
		Data:     base64.StdEncoding.EncodeToString(EncodePCM16(samples)),
	}
}

// DecodeChunk decodes a media chunk into an audio frame. The sample rate is
// taken from the chunk's MIME tag, or fallbackRate if the tag has none.
func DecodeChunk(chunk entities.MediaChunk, channels, fallbackRate int) (entities.AudioFrame, error) {
	if chunk.Data == "" {
		return entities.AudioFrame{}, ErrEmptyAudioData
	}

	data, err := base64.StdEncoding.DecodeString(chunk.Data)
	if err != nil {
		return entities.AudioFrame{}, fmt.Errorf("failed to decode base64 audio: %w", err)
	}

	samples, err := DecodePCM16(data, channels)
	if err != nil {
		return entities.AudioFrame{}, err
	}

	return entities.AudioFrame{
		SampleRate: SampleRateFromMIME(chunk.MIMEType, fallbackRate),
		Channels:   samples,
	}, nil
}

// RMS estimates loudness from every stride-th sample
func RMS(samples []float32, stride int) float64 {
	if stride <= 0 {
		stride = 1
	}

	var sum float64
	var n int
	for i := 0; i < len(samples); i += stride {
		v := float64(samples[i])
		sum += v * v
		n++
	}
	if n == 0 {
		return 0
	}
	return math.Sqrt(sum / float64(n))
}
