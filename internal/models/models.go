package models

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"binky/internal/config"
)

const (
	whisperPrefix = "ggml-"
	whisperSuffix = ".bin"

	diarizationDir  = "diarization"
	segmentationRel = "segmentation/model.onnx"
	embeddingDir    = "embedding"
)

// ErrModelMissing reports that a required model file is not installed.
var ErrModelMissing = errors.New("model missing")

// MissingError carries the user-facing explanation for a missing model.
type MissingError struct {
	Kind    string
	Path    string
	Message string
}

func (e *MissingError) Error() string {
	return e.Message
}

func (e *MissingError) Unwrap() error {
	return ErrModelMissing
}

// Whisper identifies a resolved whisper model.
type Whisper struct {
	Name string
	Path string
}

// Diarization holds the pair of models the diarization engine loads.
type Diarization struct {
	Segmentation string
	Embedding    string
}

// Status reports the availability of one model requirement.
type Status struct {
	Name        string `json:"name"`
	Path        string `json:"path"`
	Description string `json:"description"`
	Optional    bool   `json:"optional"`
	Available   bool   `json:"available"`
	Detail      string `json:"detail,omitempty"`
}

// Resolver maps configuration onto model paths.
type Resolver struct {
	dir          string
	whisperName  string
	diarizeOptin bool
}

// NewResolver builds a resolver from the models directory and model settings.
func NewResolver(cfg *config.Config) *Resolver {
	if cfg == nil {
		return &Resolver{}
	}
	return &Resolver{
		dir:          cfg.Paths.ModelsDir,
		whisperName:  cfg.Transcription.Model,
		diarizeOptin: cfg.Diarization.Enabled,
	}
}

// Dir returns the models directory.
func (r *Resolver) Dir() string {
	return r.dir
}

// WhisperModel returns the configured model, or the first installed ggml
// model when no name is configured.
func (r *Resolver) WhisperModel() (Whisper, error) {
	if strings.TrimSpace(r.dir) == "" {
		return Whisper{}, &MissingError{Kind: "whisper", Message: "models directory is not configured"}
	}
	if r.whisperName != "" {
		path := filepath.Join(r.dir, whisperPrefix+r.whisperName+whisperSuffix)
		if !nonEmptyFile(path) {
			return Whisper{}, &MissingError{
				Kind:    "whisper",
				Path:    path,
				Message: fmt.Sprintf("whisper model %q is not installed (expected %s)", r.whisperName, path),
			}
		}
		return Whisper{Name: r.whisperName, Path: path}, nil
	}

	installed := r.installedWhisper()
	if len(installed) == 0 {
		return Whisper{}, &MissingError{
			Kind:    "whisper",
			Path:    r.dir,
			Message: fmt.Sprintf("no whisper model installed; place a ggml-<name>.bin file in %s", r.dir),
		}
	}
	return installed[0], nil
}

// DiarizationModels returns the segmentation and embedding model paths.
func (r *Resolver) DiarizationModels() (Diarization, error) {
	root := filepath.Join(r.dir, diarizationDir)
	segmentation := filepath.Join(root, filepath.FromSlash(segmentationRel))
	if !nonEmptyFile(segmentation) {
		return Diarization{}, &MissingError{
			Kind:    "segmentation",
			Path:    segmentation,
			Message: fmt.Sprintf("diarization segmentation model is not installed (expected %s)", segmentation),
		}
	}
	embedding := firstONNX(filepath.Join(root, embeddingDir))
	if embedding == "" {
		dir := filepath.Join(root, embeddingDir)
		return Diarization{}, &MissingError{
			Kind:    "embedding",
			Path:    dir,
			Message: fmt.Sprintf("no speaker embedding model installed; place an .onnx file in %s", dir),
		}
	}
	return Diarization{Segmentation: segmentation, Embedding: embedding}, nil
}

// DiarizationReady reports whether diarization is enabled and its models are
// installed.
func (r *Resolver) DiarizationReady() bool {
	if !r.diarizeOptin {
		return false
	}
	_, err := r.DiarizationModels()
	return err == nil
}

// Status evaluates every model requirement for display.
func (r *Resolver) Status() []Status {
	results := make([]Status, 0, 3)

	whisper := Status{Name: "Whisper", Description: "Speech-to-text model"}
	if model, err := r.WhisperModel(); err != nil {
		whisper.Path = missingPath(err)
		whisper.Detail = err.Error()
	} else {
		whisper.Name = "Whisper (" + model.Name + ")"
		whisper.Path = model.Path
		whisper.Available = true
	}
	results = append(results, whisper)

	segmentation := Status{Name: "Segmentation", Description: "Speaker segmentation model", Optional: true}
	embedding := Status{Name: "Embedding", Description: "Speaker embedding model", Optional: true}
	models, err := r.DiarizationModels()
	switch {
	case err == nil:
		segmentation.Path, segmentation.Available = models.Segmentation, true
		embedding.Path, embedding.Available = models.Embedding, true
	default:
		var missing *MissingError
		errors.As(err, &missing)
		if missing != nil && missing.Kind == "embedding" {
			segmentation.Path = filepath.Join(r.dir, diarizationDir, filepath.FromSlash(segmentationRel))
			segmentation.Available = true
			embedding.Path = missing.Path
			embedding.Detail = missing.Message
		} else {
			segmentation.Path = missingPath(err)
			segmentation.Detail = err.Error()
			embedding.Path = filepath.Join(r.dir, diarizationDir, embeddingDir)
			embedding.Detail = "not checked"
		}
	}
	if !r.diarizeOptin {
		segmentation.Detail = joinDetail(segmentation.Detail, "diarization disabled")
		embedding.Detail = joinDetail(embedding.Detail, "diarization disabled")
	}
	results = append(results, segmentation, embedding)
	return results
}

func (r *Resolver) installedWhisper() []Whisper {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return nil
	}
	var found []Whisper
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, whisperPrefix) || !strings.HasSuffix(name, whisperSuffix) {
			continue
		}
		path := filepath.Join(r.dir, name)
		if !nonEmptyFile(path) {
			continue
		}
		found = append(found, Whisper{
			Name: strings.TrimSuffix(strings.TrimPrefix(name, whisperPrefix), whisperSuffix),
			Path: path,
		})
	}
	sort.Slice(found, func(i, j int) bool { return found[i].Name < found[j].Name })
	return found
}

func firstONNX(dir string) string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".onnx") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if nonEmptyFile(path) {
			return path
		}
	}
	return ""
}

func nonEmptyFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular() && info.Size() > 0
}

func missingPath(err error) string {
	var missing *MissingError
	if errors.As(err, &missing) {
		return missing.Path
	}
	return ""
}

func joinDetail(existing, extra string) string {
	if existing == "" {
		return extra
	}
	return existing + "; " + extra
}
