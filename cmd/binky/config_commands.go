package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"binky/internal/audio"
	"binky/internal/config"
	"binky/internal/daemonctl"
	"binky/internal/diarization"
	"binky/internal/language"
	"binky/internal/models"
	"binky/internal/notifications"
)

func newConfigCommand(ctx *commandContext) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration utilities",
	}
	configCmd.AddCommand(newConfigInitCommand(), newConfigValidateCommand(ctx))
	return configCmd
}

func newConfigInitCommand() *cobra.Command {
	var (
		targetPath string
		overwrite  bool
	)
	cmd := &cobra.Command{
		Use:         "init",
		Short:       "Write the sample configuration file",
		Annotations: map[string]string{skipConfigLoad: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := initTarget(targetPath)
			if err != nil {
				return err
			}
			if !overwrite {
				if _, err := os.Stat(target); err == nil {
					return fmt.Errorf("config file already exists at %s (use --overwrite to replace it)", target)
				}
			}
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return fmt.Errorf("create config directory: %w", err)
			}
			if err := config.CreateSample(target); err != nil {
				return fmt.Errorf("create sample config: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Wrote sample configuration to %s\n", target)
			defaults := config.Default()
			modelsDir, err := config.ExpandPath(defaults.Paths.ModelsDir)
			if err != nil {
				modelsDir = defaults.Paths.ModelsDir
			}
			fmt.Fprintf(out, "Place a whisper model (ggml-<name>.bin) in %s before running `binky start`.\n", modelsDir)
			fmt.Fprintln(out, "Diarization also needs diarization/segmentation/model.onnx and diarization/embedding/<name>.onnx there.")
			return nil
		},
	}
	cmd.Flags().StringVarP(&targetPath, "path", "p", "", "Destination for the configuration file")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Replace an existing configuration file")
	return cmd
}

func initTarget(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		path, err := config.DefaultConfigPath()
		if err != nil {
			return "", fmt.Errorf("determine default config path: %w", err)
		}
		return path, nil
	}
	path, err := config.ExpandPath(raw)
	if err != nil {
		return "", fmt.Errorf("resolve config path: %w", err)
	}
	return path, nil
}

// configReport is the effective configuration as the daemon would run it.
type configReport struct {
	Path     string                 `json:"path"`
	Defaults bool                   `json:"defaults"`
	Settings []daemonctl.StatusLine `json:"settings"`
	Problems int                    `json:"problems"`
}

func newConfigValidateCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:         "validate",
		Short:       "Validate the configuration and show the settings it resolves to",
		Annotations: map[string]string{skipConfigLoad: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			var path string
			if ctx.configFlag != nil {
				path = strings.TrimSpace(*ctx.configFlag)
			}
			cfg, resolved, exists, err := config.Load(path)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := cfg.EnsureDirectories(); err != nil {
				return fmt.Errorf("ensure directories: %w", err)
			}

			report := configReport{Path: resolved, Defaults: !exists, Settings: effectiveSettings(cfg)}
			for _, line := range report.Settings {
				if line.Severity == "error" {
					report.Problems++
				}
			}
			if asJSON {
				if err := writeJSON(cmd, report); err != nil {
					return err
				}
			} else {
				printConfigReport(cmd, report)
			}
			if report.Problems > 0 {
				return fmt.Errorf("configuration has %d problem(s)", report.Problems)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func printConfigReport(cmd *cobra.Command, report configReport) {
	out := cmd.OutOrStdout()
	colorize := shouldColorize(out)
	fmt.Fprintf(out, "Config path: %s\n", report.Path)
	if report.Defaults {
		fmt.Fprintln(out, "Config file does not exist; showing defaults")
	}
	fmt.Fprintln(out)
	for _, line := range renderSectionHeader("Effective Settings", colorize) {
		fmt.Fprintln(out, line)
	}
	for _, line := range renderStatusLines(report.Settings, colorize) {
		fmt.Fprintln(out, line)
	}
	fmt.Fprintln(out)
	if report.Problems == 0 {
		fmt.Fprintln(out, "Configuration valid")
	}
}

// effectiveSettings resolves models, language and stage tuning the way the
// pipeline will see them.
func effectiveSettings(cfg *config.Config) []daemonctl.StatusLine {
	resolver := models.NewResolver(cfg)
	lines := make([]daemonctl.StatusLine, 0, 8)

	if model, err := resolver.WhisperModel(); err != nil {
		lines = append(lines, daemonctl.StatusLine{Label: "Whisper model", Severity: "error", Detail: modelProblem(err)})
	} else {
		lines = append(lines, daemonctl.StatusLine{Label: "Whisper model", Severity: "ok", Detail: fmt.Sprintf("%s (%s)", model.Name, model.Path)})
	}

	lines = append(lines, daemonctl.StatusLine{
		Label:    "Window",
		Severity: "info",
		Detail: fmt.Sprintf("%d s (%d samples at %d Hz)",
			cfg.Transcription.WindowSeconds, cfg.WindowSamples(audio.TargetSampleRate), audio.TargetSampleRate),
	})

	if code, ok := language.Normalize(cfg.Transcription.DefaultLanguage); ok {
		lines = append(lines, daemonctl.StatusLine{Label: "Default language", Severity: "ok", Detail: fmt.Sprintf("%s (%s)", language.DisplayName(code), code)})
	} else {
		lines = append(lines, daemonctl.StatusLine{Label: "Default language", Severity: "error", Detail: fmt.Sprintf("unknown language %q", cfg.Transcription.DefaultLanguage)})
	}

	lines = append(lines, diarizationSettings(cfg, resolver)...)

	lines = append(lines, daemonctl.StatusLine{
		Label:    "Inference slots",
		Severity: "info",
		Detail:   fmt.Sprintf("%d (auto diarize: %s)", cfg.Pipeline.MaxConcurrentInference, yesNo(cfg.Pipeline.AutoDiarize)),
	})

	if notifications.Enabled(cfg) {
		lines = append(lines, daemonctl.StatusLine{Label: "Notifications", Severity: "ok", Detail: cfg.Notifications.NtfyTopic})
	} else {
		lines = append(lines, daemonctl.StatusLine{Label: "Notifications", Severity: "info", Detail: "disabled"})
	}
	return lines
}

func diarizationSettings(cfg *config.Config, resolver *models.Resolver) []daemonctl.StatusLine {
	if !cfg.Diarization.Enabled {
		return []daemonctl.StatusLine{{Label: "Diarization", Severity: "info", Detail: "disabled"}}
	}
	var lines []daemonctl.StatusLine
	if paths, err := resolver.DiarizationModels(); err != nil {
		lines = append(lines, daemonctl.StatusLine{Label: "Diarization models", Severity: "warn", Detail: modelProblem(err)})
	} else {
		lines = append(lines, daemonctl.StatusLine{
			Label:    "Diarization models",
			Severity: "ok",
			Detail:   fmt.Sprintf("%s, %s", paths.Segmentation, paths.Embedding),
		})
	}

	clustering := fmt.Sprintf("%d speakers", cfg.Diarization.NumClusters)
	if cfg.Diarization.NumClusters == 0 {
		clustering = fmt.Sprintf("threshold %.2f", cfg.Diarization.ClusterThreshold)
	}
	solo := cfg.Diarization.SoloThreshold
	if solo <= 0 || solo > 0.5 {
		solo = diarization.DefaultSoloThreshold
	}
	lines = append(lines, daemonctl.StatusLine{
		Label:    "Speakers",
		Severity: "info",
		Detail:   fmt.Sprintf("%s, solo below %.1f%% of talk time", clustering, solo*100),
	})
	return lines
}

func modelProblem(err error) string {
	var missing *models.MissingError
	if errors.As(err, &missing) {
		return missing.Message
	}
	return err.Error()
}
