// Package models locates the on-disk model files the inference backends load.
//
// Whisper models follow the ggml naming convention (ggml-<name>.bin) directly
// under the models directory. Diarization needs a pyannote segmentation model
// and a speaker embedding model under models/diarization. The resolver never
// downloads anything; it only reports what is present so the pipeline can fail
// fast with an actionable message.
package models
