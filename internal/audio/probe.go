package audio

import (
	"bufio"
	"errors"
	"io"
	"os"
	"time"

	"github.com/tcolgate/mp3"
)

// Info summarizes an MP3 file without decoding it.
type Info struct {
	SampleRate int
	Channels   int
	Frames     int
	Samples    int64
	Duration   time.Duration
	// SkippedBytes counts non-audio bytes such as ID3 tags.
	SkippedBytes int64
}

// DurationMS returns the duration in whole milliseconds.
func (i Info) DurationMS() int64 {
	return i.Duration.Milliseconds()
}

// Probe walks the MPEG frame headers of path and reports the stream layout.
func Probe(path string) (Info, error) {
	file, err := os.Open(path)
	if err != nil {
		return Info{}, decodeError(ErrUnreadable, "open", err)
	}
	defer file.Close()
	return ProbeReader(bufio.NewReaderSize(file, 64*1024))
}

// ProbeReader is Probe over an arbitrary stream.
func ProbeReader(r io.Reader) (Info, error) {
	var (
		info    Info
		frame   mp3.Frame
		skipped int
	)
	dec := mp3.NewDecoder(r)
	for {
		err := dec.Decode(&frame, &skipped)
		info.SkippedBytes += int64(skipped)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				break
			}
			if info.Frames == 0 {
				return Info{}, decodeError(ErrUnreadable, "probe", err)
			}
			break
		}
		header := frame.Header()
		if info.Frames == 0 {
			info.SampleRate = int(header.SampleRate())
			info.Channels = channelCount(header.ChannelMode())
		}
		info.Frames++
		info.Samples += int64(frame.Samples())
		info.Duration += frame.Duration()
	}
	if info.Frames == 0 {
		return Info{}, decodeError(ErrNoAudioTrack, "probe", nil)
	}
	return info, nil
}

func channelCount(mode mp3.FrameChannelMode) int {
	if mode == mp3.SingleChannel {
		return 1
	}
	return 2
}
