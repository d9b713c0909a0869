package audio

import (
	"errors"
	"fmt"

	"binky/internal/services"
)

const stageName = "decode"

var (
	// ErrUnreadable means the file could not be opened or parsed as MP3.
	ErrUnreadable = errors.New("audio unreadable")
	// ErrNoAudioTrack means the file contains no MPEG audio frames.
	ErrNoAudioTrack = errors.New("no audio track")
	// ErrNoSamples means decoding finished without producing any samples.
	ErrNoSamples = errors.New("no samples decoded")
)

func decodeError(kind error, operation string, cause error) error {
	if cause != nil {
		kind = fmt.Errorf("%w: %w", kind, cause)
	}
	return services.Wrap(services.ErrDecode, stageName, operation, "", kind)
}
