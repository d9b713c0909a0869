// Package transcription drives speech-to-text over long episodes.
//
// Audio is cut into fixed non-overlapping windows. Each window gets a brand
// new Session from the Model, and its segment timestamps are shifted onto the
// episode timeline and clamped so the sequence never runs backwards or past
// the end of the audio. Progress and segments are posted to a channel with
// non-blocking sends.
package transcription
