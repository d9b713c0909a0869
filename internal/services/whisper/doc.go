// Package whisper adapts the whisper.cpp Go bindings to transcription.Model.
//
// Every Session owns its own whisper context so no native state is shared
// between windows.
package whisper
