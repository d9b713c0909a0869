package audio

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"os"

	gomp3 "github.com/hajimehoshi/go-mp3"
)

// TargetSampleRate is the rate both inference engines expect.
const TargetSampleRate = 16000

const (
	// go-mp3 always yields interleaved 16-bit little endian stereo.
	decodedChannels   = 2
	bytesPerFrame     = 2 * decodedChannels
	decodeBlockFrames = ResampleWindow
)

// DecodeFile decodes path to mono float32 PCM at targetRate. The file is
// streamed in fixed blocks and ctx is checked between blocks.
func DecodeFile(ctx context.Context, path string, targetRate int) ([]float32, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, decodeError(ErrUnreadable, "open", err)
	}
	defer file.Close()
	// bufio hides Seek so the decoder streams instead of indexing every frame.
	samples, _, err := Decode(ctx, bufio.NewReaderSize(file, 64*1024), targetRate)
	return samples, err
}

// Decode streams MP3 data from r and returns mono samples at targetRate along
// with the source sample rate.
func Decode(ctx context.Context, r io.Reader, targetRate int) ([]float32, int, error) {
	if targetRate <= 0 {
		targetRate = TargetSampleRate
	}
	dec, err := gomp3.NewDecoder(r)
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, 0, decodeError(ErrNoAudioTrack, "open stream", err)
		}
		return nil, 0, decodeError(ErrUnreadable, "open stream", err)
	}
	sourceRate := dec.SampleRate()
	resampler := NewResampler(sourceRate, targetRate)

	var (
		out   []float32
		raw   = make([]byte, decodeBlockFrames*bytesPerFrame)
		mono  = make([]float32, 0, decodeBlockFrames)
		carry int
	)
	for {
		if err := ctx.Err(); err != nil {
			return nil, sourceRate, err
		}
		n, readErr := dec.Read(raw[carry:])
		n += carry
		whole := n - n%bytesPerFrame
		mono = mixToMono(mono[:0], raw[:whole])
		out = resampler.Process(out, mono)
		carry = copy(raw, raw[whole:n])

		if errors.Is(readErr, io.EOF) {
			break
		}
		if readErr != nil {
			if len(out) == 0 && resampler.consumed == 0 {
				return nil, sourceRate, decodeError(ErrUnreadable, "read frames", readErr)
			}
			// Keep the samples decoded before a damaged tail.
			break
		}
	}
	out = resampler.Flush(out)
	if len(out) == 0 {
		return nil, sourceRate, decodeError(ErrNoSamples, "decode", nil)
	}
	return out, sourceRate, nil
}

func mixToMono(dst []float32, pcm []byte) []float32 {
	for i := 0; i+bytesPerFrame <= len(pcm); i += bytesPerFrame {
		left := int16(binary.LittleEndian.Uint16(pcm[i:]))
		right := int16(binary.LittleEndian.Uint16(pcm[i+2:]))
		dst = append(dst, (float32(left)+float32(right))/(2*32768))
	}
	return dst
}
