package transcriber

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/foxseedlab/localscribe/internal/audio"
	"github.com/foxseedlab/localscribe/internal/transcriber"
)

const stderrTailBytes = 512

type WhisperConfig struct {
	CLIPath       string
	ModelDir      string
	ModelFast     string
	ModelAccurate string
	Language      string
	Threads       int
	WorkDir       string
}

type commandResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

type commandRunner interface {
	Run(ctx context.Context, name string, args ...string) (commandResult, error)
}

type execRunner struct{}

func (r *execRunner) Run(ctx context.Context, name string, args ...string) (commandResult, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := commandResult{Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		result.ExitCode = -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		}
		return result, err
	}
	return result, nil
}

// WhisperCppEngine runs the whisper.cpp CLI once per transcription.
// Loading a model only resolves and checks the model file; the CLI maps it per call.
type WhisperCppEngine struct {
	cfg      WhisperConfig
	runner   commandRunner
	lookPath func(file string) (string, error)
	stat     func(name string) (os.FileInfo, error)
}

type whisperHandle struct {
	variant   string
	modelPath string
}

func (h *whisperHandle) Variant() string {
	return h.variant
}

func NewWhisperCppEngine(cfg WhisperConfig) *WhisperCppEngine {
	return &WhisperCppEngine{cfg: cfg, runner: &execRunner{}, lookPath: exec.LookPath, stat: os.Stat}
}

func (e *WhisperCppEngine) Name() string {
	return "whisper_cpp"
}

func (e *WhisperCppEngine) modelFile(variant string) (string, error) {
	switch transcriber.Mode(variant) {
	case transcriber.ModeFast:
		return e.cfg.ModelFast, nil
	case transcriber.ModeAccurate:
		return e.cfg.ModelAccurate, nil
	}
	return "", fmt.Errorf("no whisper model configured for variant %q", variant)
}

func (e *WhisperCppEngine) LoadModel(ctx context.Context, variant string) (transcriber.Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", transcriber.ErrModelLoadFailed, err)
	}
	name, err := e.modelFile(variant)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", transcriber.ErrModelLoadFailed, err)
	}
	modelPath := name
	if !filepath.IsAbs(modelPath) {
		modelPath = filepath.Join(e.cfg.ModelDir, name)
	}
	info, err := e.stat(modelPath)
	if err != nil {
		return nil, fmt.Errorf("%w: cannot access model %s: %v", transcriber.ErrModelLoadFailed, modelPath, err)
	}
	if info.IsDir() || info.Size() == 0 {
		return nil, fmt.Errorf("%w: %s is not a model file", transcriber.ErrModelLoadFailed, modelPath)
	}
	if _, err := e.lookPath(e.cfg.CLIPath); err != nil {
		return nil, fmt.Errorf("%w: whisper cli %q not found: %v", transcriber.ErrModelLoadFailed, e.cfg.CLIPath, err)
	}
	slog.Info("whisper model resolved", "variant", variant, "model_path", modelPath)
	return &whisperHandle{variant: variant, modelPath: modelPath}, nil
}

func (e *WhisperCppEngine) Transcribe(ctx context.Context, h transcriber.Handle, a audio.NormalizedAudio) (string, error) {
	wh, ok := h.(*whisperHandle)
	if !ok || wh == nil {
		return "", fmt.Errorf("%w: handle %T does not belong to whisper_cpp", transcriber.ErrInferenceFailed, h)
	}
	if err := os.MkdirAll(e.cfg.WorkDir, 0o755); err != nil {
		return "", fmt.Errorf("%w: create work dir: %v", transcriber.ErrInferenceFailed, err)
	}
	tmpDir, err := os.MkdirTemp(e.cfg.WorkDir, "whisper-")
	if err != nil {
		return "", fmt.Errorf("%w: create temp dir: %v", transcriber.ErrInferenceFailed, err)
	}
	defer func() {
		if err := os.RemoveAll(tmpDir); err != nil {
			slog.Warn("failed to remove whisper temp dir", "error", err, "path", tmpDir)
		}
	}()

	wavPath := filepath.Join(tmpDir, "input.wav")
	if err := audio.EncodeFile(wavPath, a); err != nil {
		return "", fmt.Errorf("%w: %v", transcriber.ErrInferenceFailed, err)
	}
	textBase := filepath.Join(tmpDir, "transcript")
	args := buildWhisperArgs(wh.modelPath, wavPath, textBase, e.cfg.Language, e.cfg.Threads)

	slog.Debug("running whisper cli", "command", e.cfg.CLIPath, "args", args)
	res, err := e.runner.Run(ctx, e.cfg.CLIPath, args...)
	if err != nil {
		return "", fmt.Errorf("%w: whisper exited with %d: %v: %s", transcriber.ErrInferenceFailed, res.ExitCode, err, tail(res.Stderr, stderrTailBytes))
	}
	text, err := os.ReadFile(textBase + ".txt")
	if err != nil {
		return "", fmt.Errorf("%w: whisper produced no transcript: %v", transcriber.ErrInferenceFailed, err)
	}
	return joinTranscriptLines(string(text)), nil
}

func (e *WhisperCppEngine) Release(h transcriber.Handle) error {
	if h != nil {
		slog.Info("whisper model released", "variant", h.Variant())
	}
	return nil
}

func buildWhisperArgs(modelPath, audioPath, textBase, language string, threads int) []string {
	args := []string{
		"-m", modelPath,
		"-f", audioPath,
		"-of", textBase,
		"-otxt",
		"-np",
	}
	if lang := normalizeLanguage(language); lang != "" {
		args = append(args, "-l", lang)
	}
	if threads > 0 {
		args = append(args, "-t", strconv.Itoa(threads))
	}
	return args
}

// normalizeLanguage maps "auto" and empty language to no CLI override.
func normalizeLanguage(raw string) string {
	lang := strings.TrimSpace(raw)
	if lang == "" || strings.EqualFold(lang, "auto") {
		return ""
	}
	return lang
}

func joinTranscriptLines(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return strings.Join(out, " ")
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
