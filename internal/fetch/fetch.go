package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"binky/internal/config"
	"binky/internal/logging"
	"binky/internal/services"
)

const (
	defaultChunkSize = 64 * 1024
	defaultTimeout   = 30 * time.Minute
	stageName        = "acquisition"
)

// ErrCancelled is returned when the caller's context ends mid-download. It is
// not a failure outcome.
var ErrCancelled = services.ErrCancelled

// Range maps download progress onto a slice of the overall job percentage.
type Range struct {
	Lo int
	Hi int
}

func (r Range) at(downloaded, total int64) int {
	if total <= 0 || r.Hi <= r.Lo {
		return r.Lo
	}
	if downloaded > total {
		downloaded = total
	}
	return r.Lo + int(downloaded*int64(r.Hi-r.Lo)/total)
}

// Result describes a completed download.
type Result struct {
	Path        string
	Bytes       int64
	ContentType string
}

// Options configures a Downloader.
type Options struct {
	Timeout   time.Duration
	ChunkSize int
	UserAgent string
	Client    *http.Client
	Logger    *slog.Logger
}

// Downloader streams remote audio to local files.
type Downloader struct {
	client    *http.Client
	chunkSize int
	userAgent string
	logger    *slog.Logger
}

// New constructs a Downloader, filling unset options with defaults.
func New(opts Options) *Downloader {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = defaultChunkSize
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Downloader{
		client:    client,
		chunkSize: opts.ChunkSize,
		userAgent: strings.TrimSpace(opts.UserAgent),
		logger:    logger,
	}
}

// NewFromConfig constructs a Downloader from the acquisition settings.
func NewFromConfig(cfg *config.Config, logger *slog.Logger) *Downloader {
	return New(Options{
		Timeout:   time.Duration(cfg.Acquisition.TimeoutSeconds) * time.Second,
		ChunkSize: cfg.Acquisition.ChunkSize,
		UserAgent: cfg.Acquisition.UserAgent,
		Logger:    logger,
	})
}

// TempPath returns a unique temp file name for an episode's stage download.
func TempPath(dir string, episodeID int64, stage string) string {
	stage = strings.TrimSpace(stage)
	if stage == "" {
		stage = "audio"
	}
	return filepath.Join(dir, fmt.Sprintf("%s-%d-%s.mp3", stage, episodeID, uuid.NewString()))
}

// Download streams url into dest in fixed-size chunks, checking ctx before
// each chunk. Any failure or cancellation removes the partial file. progress
// receives the mapped percentage only when its integer value changes.
func (d *Downloader) Download(ctx context.Context, url, dest string, span Range, progress func(int)) (Result, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return Result{}, services.Wrap(services.ErrValidation, stageName, "download", "audio url is empty", nil)
	}
	if err := ctx.Err(); err != nil {
		return Result{}, cancelled(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Result{}, services.Wrap(services.ErrValidation, stageName, "build request", "invalid audio url", err)
	}
	if d.userAgent != "" {
		req.Header.Set("User-Agent", d.userAgent)
	}

	logger := logging.WithContext(ctx, d.logger)
	logger.Debug("download starting", logging.String("url", url), logging.String("dest", dest))

	resp, err := d.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, cancelled(ctx.Err())
		}
		return Result{}, services.Wrap(services.ErrNetwork, stageName, "request", "http request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Result{}, services.Wrap(services.ErrNetwork, stageName, "request",
			fmt.Sprintf("server returned status %d", resp.StatusCode), nil)
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return Result{}, services.Wrap(services.ErrIO, stageName, "create temp dir", dest, err)
	}
	file, err := os.Create(dest)
	if err != nil {
		return Result{}, services.Wrap(services.ErrIO, stageName, "create temp file", dest, err)
	}
	fail := func(out error) (Result, error) {
		_ = file.Close()
		_ = os.Remove(dest)
		return Result{}, out
	}

	total := resp.ContentLength
	var (
		downloaded int64
		last       = -1
	)
	report := func() {
		if progress == nil {
			return
		}
		if pct := span.at(downloaded, total); pct != last {
			last = pct
			progress(pct)
		}
	}
	report()

	buf := make([]byte, d.chunkSize)
	for {
		if err := ctx.Err(); err != nil {
			return fail(cancelled(err))
		}
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, err := file.Write(buf[:n]); err != nil {
				return fail(services.Wrap(services.ErrIO, stageName, "write chunk", dest, err))
			}
			downloaded += int64(n)
			report()
		}
		if errors.Is(readErr, io.EOF) {
			break
		}
		if readErr != nil {
			if ctx.Err() != nil {
				return fail(cancelled(ctx.Err()))
			}
			return fail(services.Wrap(services.ErrNetwork, stageName, "read body", "download stream error", readErr))
		}
	}

	if err := file.Sync(); err != nil {
		return fail(services.Wrap(services.ErrIO, stageName, "sync", dest, err))
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(dest)
		return Result{}, services.Wrap(services.ErrIO, stageName, "close", dest, err)
	}

	logger.Debug("download complete",
		logging.String("dest", dest),
		logging.Int64("bytes", downloaded),
		logging.String("content_type", resp.Header.Get("Content-Type")),
	)
	return Result{
		Path:        dest,
		Bytes:       downloaded,
		ContentType: resp.Header.Get("Content-Type"),
	}, nil
}

func cancelled(cause error) error {
	return services.Wrap(ErrCancelled, stageName, "download", "cancelled", cause)
}
