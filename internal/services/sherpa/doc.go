// Package sherpa adapts sherpa-onnx offline speaker diarization (pyannote
// segmentation plus a speaker embedding model) to diarization.Engine.
package sherpa
