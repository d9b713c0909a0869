package audio_test

import (
	"bytes"
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"binky/internal/audio"
	"binky/internal/services"
	"binky/internal/testsupport"
)

func writeSilentMP3(t *testing.T, frames int) string {
	t.Helper()
	return testsupport.WriteSilentMP3(t, t.TempDir(), frames)
}

func TestProbeCountsFrames(t *testing.T) {
	path := writeSilentMP3(t, 100)
	info, err := audio.Probe(path)
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if info.Frames != 100 || info.SampleRate != 44100 || info.Channels != 1 {
		t.Fatalf("unexpected info: %+v", info)
	}
	if info.Samples != 115200 {
		t.Fatalf("expected 115200 samples, got %d", info.Samples)
	}
	second := float64(time.Second)
	want := time.Duration(second * 115200 / 44100)
	if diff := info.Duration - want; diff < -10*time.Millisecond || diff > 10*time.Millisecond {
		t.Fatalf("duration %v too far from %v", info.Duration, want)
	}
}

func TestProbeRejectsNonAudio(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.mp3")
	if err := os.WriteFile(path, bytes.Repeat([]byte("not audio "), 200), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, err := audio.Probe(path)
	if !errors.Is(err, audio.ErrNoAudioTrack) {
		t.Fatalf("expected ErrNoAudioTrack, got %v", err)
	}
	if !errors.Is(err, services.ErrDecode) {
		t.Fatalf("expected decode marker, got %v", err)
	}
}

func TestProbeMissingFileIsUnreadable(t *testing.T) {
	_, err := audio.Probe(filepath.Join(t.TempDir(), "missing.mp3"))
	if !errors.Is(err, audio.ErrUnreadable) {
		t.Fatalf("expected ErrUnreadable, got %v", err)
	}
}

func TestDecodeFileRoundTripDuration(t *testing.T) {
	path := writeSilentMP3(t, 100)
	samples, err := audio.DecodeFile(context.Background(), path, audio.TargetSampleRate)
	if err != nil {
		t.Fatalf("DecodeFile: %v", err)
	}
	want := 115200 * audio.TargetSampleRate / 44100
	tolerance := audio.ResampleWindow * audio.TargetSampleRate / 44100
	if diff := len(samples) - want; diff < -tolerance || diff > tolerance {
		t.Fatalf("decoded %d samples, want %d within %d", len(samples), want, tolerance)
	}
	for i, s := range samples {
		if s != 0 {
			t.Fatalf("expected silence, sample %d = %v", i, s)
		}
	}
}

func TestDecodeFileHonorsCancellation(t *testing.T) {
	path := writeSilentMP3(t, 20)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := audio.DecodeFile(ctx, path, audio.TargetSampleRate); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestResamplerPassThrough(t *testing.T) {
	r := audio.NewResampler(16000, 16000)
	if !r.PassThrough() {
		t.Fatal("expected pass-through for equal rates")
	}
	in := []float32{0.1, -0.2, 0.3, 0.4}
	out := r.Process(nil, in)
	out = r.Flush(out)
	if len(out) != len(in) {
		t.Fatalf("expected %d samples, got %d", len(in), len(out))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Fatalf("sample %d changed: %v -> %v", i, in[i], out[i])
		}
	}
}

func TestResamplerOutputLength(t *testing.T) {
	cases := []struct {
		in, out int
		n       int
	}{
		{44100, 16000, 100000},
		{48000, 16000, 48000*3 + 7},
		{22050, 16000, 12345},
		{8000, 16000, 9999},
		{32000, 16000, 1},
		{24000, 16000, 0},
	}
	for _, tc := range cases {
		r := audio.NewResampler(tc.in, tc.out)
		var out []float32
		src := make([]float32, tc.n)
		for start := 0; start < len(src); {
			end := start + 1000 + start%777
			if end > len(src) {
				end = len(src)
			}
			out = r.Process(out, src[start:end])
			start = end
		}
		out = r.Flush(out)
		want := int(int64(tc.n) * int64(tc.out) / int64(tc.in))
		if len(out) != want {
			t.Fatalf("%d->%d with %d samples: got %d, want %d", tc.in, tc.out, tc.n, len(out), want)
		}
	}
}

func TestResamplerChunkingDoesNotChangeOutput(t *testing.T) {
	src := make([]float32, 30000)
	for i := range src {
		src[i] = float32(math.Sin(float64(i) * 0.01))
	}

	oneShot := audio.NewResampler(44100, 16000)
	want := oneShot.Flush(oneShot.Process(nil, src))

	chunked := audio.NewResampler(44100, 16000)
	var got []float32
	for i := 0; i < len(src); i += 333 {
		end := i + 333
		if end > len(src) {
			end = len(src)
		}
		got = chunked.Process(got, src[i:end])
	}
	got = chunked.Flush(got)

	if len(got) != len(want) {
		t.Fatalf("length mismatch: %d vs %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("sample %d differs: %v vs %v", i, got[i], want[i])
		}
	}
}

func TestResamplerPreservesInBandSine(t *testing.T) {
	const (
		inRate  = 48000
		outRate = 16000
		freq    = 440.0
	)
	src := make([]float32, inRate)
	for i := range src {
		src[i] = float32(0.5 * math.Sin(2*math.Pi*freq*float64(i)/inRate))
	}
	r := audio.NewResampler(inRate, outRate)
	out := r.Flush(r.Process(nil, src))

	// Skip the edges where the filter sees zero padding.
	for k := 200; k < len(out)-200; k++ {
		want := 0.5 * math.Sin(2*math.Pi*freq*float64(k)/outRate)
		if diff := math.Abs(float64(out[k]) - want); diff > 0.01 {
			t.Fatalf("sample %d = %v, want %v", k, out[k], want)
		}
	}
}

func TestResamplerKeepsDCLevel(t *testing.T) {
	src := make([]float32, 20000)
	for i := range src {
		src[i] = 0.25
	}
	r := audio.NewResampler(22050, 16000)
	out := r.Flush(r.Process(nil, src))
	for k := 100; k < len(out)-100; k++ {
		if math.Abs(float64(out[k])-0.25) > 1e-3 {
			t.Fatalf("sample %d = %v, want 0.25", k, out[k])
		}
	}
}
