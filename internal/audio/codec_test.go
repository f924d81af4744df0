package audio

import (
	"encoding/base64"
	"math"
	"math/rand"
	"testing"

	"github.com/satriahrh/studylive/domain/entities"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for run := 0; run < 50; run++ {
		samples := make([]float32, 1+rng.Intn(4096))
		for i := range samples {
			samples[i] = rng.Float32()*2 - 1
		}
		samples[0] = 1
		if len(samples) > 1 {
			samples[1] = -1
		}

		decoded, err := DecodePCM16(EncodePCM16(samples), 1)
		if err != nil {
			t.Fatalf("DecodePCM16 failed: %v", err)
		}

		for i, want := range samples {
			if diff := math.Abs(float64(decoded[0][i] - want)); diff > 1.0/32768 {
				t.Fatalf("sample %d: got %f, want %f (diff %g)", i, decoded[0][i], want, diff)
			}
		}
	}
}

func TestEncodeClampsOutOfRange(t *testing.T) {
	data := EncodePCM16([]float32{2, -3, float32(math.NaN())})
	decoded, err := DecodePCM16(data, 1)
	if err != nil {
		t.Fatalf("DecodePCM16 failed: %v", err)
	}

	if decoded[0][0] != 32767.0/32768 {
		t.Errorf("Expected positive clamp, got %f", decoded[0][0])
	}
	if decoded[0][1] != -1 {
		t.Errorf("Expected negative clamp to -1, got %f", decoded[0][1])
	}
	if decoded[0][2] != 0 {
		t.Errorf("Expected NaN to encode as silence, got %f", decoded[0][2])
	}
}

func TestEncodeLittleEndian(t *testing.T) {
	data := EncodePCM16([]float32{0.5})
	// 0.5 * 32768 = 16384 = 0x4000
	if len(data) != 2 || data[0] != 0x00 || data[1] != 0x40 {
		t.Errorf("Unexpected bytes %x", data)
	}
}

func TestDecodePCM16Stereo(t *testing.T) {
	interleaved := EncodePCM16([]float32{0.25, -0.25, 0.5, -0.5})
	channels, err := DecodePCM16(interleaved, 2)
	if err != nil {
		t.Fatalf("DecodePCM16 failed: %v", err)
	}

	if len(channels) != 2 || len(channels[0]) != 2 {
		t.Fatalf("Unexpected shape %d x %d", len(channels), len(channels[0]))
	}
	if channels[0][1] != 0.5 || channels[1][1] != -0.5 {
		t.Errorf("Channels not de-interleaved: %v", channels)
	}
}

func TestDecodePCM16Errors(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		channels int
	}{
		{"empty", nil, 1},
		{"misaligned", []byte{1, 2, 3}, 1},
		{"misaligned stereo", []byte{1, 2}, 2},
		{"zero channels", []byte{1, 2}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DecodePCM16(tt.data, tt.channels); err == nil {
				t.Error("Expected error")
			}
		})
	}
}

func TestEncodeChunk(t *testing.T) {
	chunk := EncodeChunk([]float32{0, 0.5}, entities.CaptureSampleRate)

	if chunk.MIMEType != "audio/pcm;rate=16000" {
		t.Errorf("Unexpected MIME type %s", chunk.MIMEType)
	}

	raw, err := base64.StdEncoding.DecodeString(chunk.Data)
	if err != nil {
		t.Fatalf("Chunk data is not base64: %v", err)
	}
	if len(raw) != 4 {
		t.Errorf("Expected 4 bytes, got %d", len(raw))
	}
}

func TestDecodeChunk(t *testing.T) {
	chunk := EncodeChunk(make([]float32, 2400), 24000)

	frame, err := DecodeChunk(chunk, 1, entities.PlaybackSampleRate)
	if err != nil {
		t.Fatalf("DecodeChunk failed: %v", err)
	}
	if frame.SampleRate != 24000 {
		t.Errorf("Expected 24000, got %d", frame.SampleRate)
	}
	if frame.Len() != 2400 {
		t.Errorf("Expected 2400 samples, got %d", frame.Len())
	}

	if _, err := DecodeChunk(entities.MediaChunk{MIMEType: "audio/pcm", Data: "!!"}, 1, 24000); err == nil {
		t.Error("Expected base64 error")
	}
}

func TestSampleRateFromMIME(t *testing.T) {
	tests := []struct {
		mime string
		want int
	}{
		{"audio/pcm;rate=24000", 24000},
		{"audio/pcm; rate=16000", 16000},
		{"audio/pcm", 24000},
		{"audio/pcm;rate=abc", 24000},
	}

	for _, tt := range tests {
		if got := SampleRateFromMIME(tt.mime, 24000); got != tt.want {
			t.Errorf("SampleRateFromMIME(%q) = %d, want %d", tt.mime, got, tt.want)
		}
	}
}

func TestRMS(t *testing.T) {
	if RMS(nil, 4) != 0 {
		t.Error("RMS of nothing should be 0")
	}

	quiet := make([]float32, 1024)
	loud := make([]float32, 1024)
	for i := range quiet {
		quiet[i] = 0.01
		loud[i] = 0.5
	}

	if RMS(quiet, 4) >= RMS(loud, 4) {
		t.Error("Louder signal should have a higher estimate")
	}
}
