// Package language normalizes transcription language settings.
//
// Whisper expects ISO 639-1 codes or "auto". Settings arrive from the CLI,
// the settings table, and the config file in whatever form the user typed,
// so everything funnels through Normalize before reaching a backend.
package language
