// Package audio probes and decodes MP3 episodes into 16 kHz mono PCM.
//
// Probe reads frame headers only. DecodeFile streams PCM in fixed blocks,
// mixes to mono, and feeds a polyphase windowed-sinc Resampler that keeps a
// single input window in memory, so peak usage is the output buffer plus a
// constant.
package audio
