package preflight

import (
	"fmt"

	"golang.org/x/sys/unix"

	"binky/internal/audio"
	"binky/internal/config"
)

const (
	// MinTempSpaceBytes leaves room for a long episode download plus slack.
	MinTempSpaceBytes = 1 << 30

	bytesPerSample = 4
	// modelHeadroomBytes approximates a medium whisper model and the
	// diarization networks resident at the same time.
	modelHeadroomBytes = 2 << 30
	// referenceEpisode sizes the decoded buffer for a three hour episode.
	referenceEpisodeSeconds = 3 * 60 * 60
)

// sysinfo is swapped in tests.
var sysinfo = unix.Sysinfo

// EstimatedMemory returns the peak bytes a job needs with the configured
// concurrency: one decoded mono buffer per inference slot plus model weights.
func EstimatedMemory(cfg *config.Config) uint64 {
	slots := cfg.Pipeline.MaxConcurrentInference
	if slots <= 0 {
		slots = 1
	}
	buffer := uint64(referenceEpisodeSeconds * audio.TargetSampleRate * bytesPerSample)
	return uint64(slots)*buffer + modelHeadroomBytes
}

// CheckMemory compares total RAM against EstimatedMemory.
func CheckMemory(cfg *config.Config) Result {
	const name = "Memory"

	var info unix.Sysinfo_t
	if err := sysinfo(&info); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("sysinfo failed: %v", err)}
	}
	total := uint64(info.Totalram) * uint64(info.Unit)
	need := EstimatedMemory(cfg)
	detail := fmt.Sprintf("%s total, %s estimated peak", formatBytes(total), formatBytes(need))
	if total < need {
		return Result{Name: name, Detail: detail + " (lower pipeline.max_concurrent_inference)"}
	}
	return Result{Name: name, Passed: true, Detail: detail}
}

// CheckTempSpace verifies the temp directory's filesystem has at least min
// bytes available.
func CheckTempSpace(path string, min uint64) Result {
	const name = "Temp space"

	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: statfs: %v)", path, err)}
	}
	free := stat.Bavail * uint64(stat.Bsize)
	detail := fmt.Sprintf("%s free in %s", formatBytes(free), path)
	if free < min {
		return Result{Name: name, Detail: detail + fmt.Sprintf(" (need %s)", formatBytes(min))}
	}
	return Result{Name: name, Passed: true, Detail: detail}
}

func formatBytes(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := uint64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
