package testsupport

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

// SilentFrameSamples is the PCM sample count of one SilentMP3 frame.
const SilentFrameSamples = 1152

// SilentMP3 returns frames MPEG-1 Layer III frames (128 kbit/s, 44.1 kHz,
// mono) with zeroed side info and main data. They decode to silence.
func SilentMP3(frames int) []byte {
	frame := make([]byte, 417)
	copy(frame, []byte{0xFF, 0xFB, 0x90, 0xC0})
	return bytes.Repeat(frame, frames)
}

// WriteSilentMP3 writes SilentMP3(frames) under dir and returns the path.
func WriteSilentMP3(t testing.TB, dir string, frames int) string {
	t.Helper()
	path := filepath.Join(dir, "silence.mp3")
	if err := os.WriteFile(path, SilentMP3(frames), 0o644); err != nil {
		t.Fatalf("write mp3: %v", err)
	}
	return path
}
