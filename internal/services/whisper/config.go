package whisper

// Config captures runtime settings for whisper.cpp inference.
type Config struct {
	// ModelPath is the ggml model file.
	ModelPath string
	// Name identifies the model in stored transcripts, e.g. "large-v3".
	Name string
	// Threads is the CPU thread count per session. Zero keeps the library default.
	Threads int
}

// autoLanguage asks whisper to detect the spoken language.
const autoLanguage = "auto"
