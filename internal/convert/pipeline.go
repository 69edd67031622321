package convert

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/foxseedlab/localscribe/internal/audio"
	"github.com/google/uuid"
)

const (
	inputPrefix     = "input_"
	outputPrefix    = "audio_"
	outputExt       = ".wav"
	convertedSubdir = "converted"
	defaultInputExt = "bin"
	maxExtLen       = 8
)

// Pipeline turns an arbitrary audio stream into a 16 kHz mono PCM16 WAV in its scratch directory.
// Concurrent conversions are safe: every file name carries a timestamp and random suffix.
type Pipeline struct {
	scratchDir string
	decoder    audio.Decoder
	now        func() time.Time
}

func NewPipeline(scratchDir string, decoder audio.Decoder) *Pipeline {
	return &Pipeline{scratchDir: scratchDir, decoder: decoder, now: time.Now}
}

func (p *Pipeline) ScratchDir() string {
	return p.scratchDir
}

func (p *Pipeline) ConvertedDir() string {
	return filepath.Join(p.scratchDir, convertedSubdir)
}

// Convert returns the path of the normalized WAV. The materialized input is always deleted.
func (p *Pipeline) Convert(ctx context.Context, src io.Reader, displayName string) (string, error) {
	started := p.now()
	stamp := fmt.Sprintf("%d_%s", started.UnixMilli(), randomSuffix())

	inputPath, err := p.materialize(src, stamp, displayName)
	if err != nil {
		return "", err
	}
	defer func() {
		if err := os.Remove(inputPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			slog.Error("failed to delete scratch input", "error", err, "path", inputPath)
		}
	}()

	if err := ctx.Err(); err != nil {
		return "", newError(StageDecode, audio.ErrIO, "canceled before decode", err)
	}
	track, err := p.decoder.Open(inputPath)
	if err != nil {
		kind := classify(err, audio.ErrUnsupportedCodec, audio.ErrNoAudioTrack, audio.ErrUnsupportedCodec, audio.ErrIO)
		return "", newError(StageDecode, kind, "open audio track", err)
	}
	samples, err := track.ReadAll()
	closeErr := track.Close()
	if err != nil {
		return "", newError(StageDecode, classify(err, audio.ErrIO, audio.ErrUnsupportedCodec), "decode "+track.Codec, err)
	}
	if closeErr != nil {
		slog.Warn("failed to close decoded track", "error", closeErr, "path", inputPath)
	}
	if len(samples) == 0 {
		return "", newError(StageDecode, audio.ErrNoAudioTrack, "track has no samples", nil)
	}
	slog.Info("decoded audio track",
		"display_name", displayName,
		"container", track.Container,
		"codec", track.Codec,
		"sample_rate", track.SampleRate,
		"channels", track.Channels,
		"samples", len(samples))

	if err := ctx.Err(); err != nil {
		return "", newError(StageNormalize, audio.ErrIO, "canceled before normalize", err)
	}
	normalized, err := audio.Normalize(samples, track.Channels, track.SampleRate)
	if err != nil {
		return "", newError(StageNormalize, audio.ErrUnsupportedCodec, "normalize", err)
	}

	if err := ctx.Err(); err != nil {
		return "", newError(StageEncode, audio.ErrIO, "canceled before encode", err)
	}
	if err := os.MkdirAll(p.ConvertedDir(), 0o755); err != nil {
		return "", newError(StageEncode, audio.ErrIO, "create converted directory", err)
	}
	wavPath := filepath.Join(p.ConvertedDir(), outputPrefix+stamp+outputExt)
	if err := audio.EncodeFile(wavPath, normalized); err != nil {
		return "", newError(StageEncode, audio.ErrIO, "write wav", err)
	}

	slog.Info("converted audio",
		"display_name", displayName,
		"wav_path", wavPath,
		"samples", len(normalized.Samples),
		"duration", normalized.Duration().String(),
		"elapsed_ms", p.now().Sub(started).Milliseconds())
	return wavPath, nil
}

func (p *Pipeline) materialize(src io.Reader, stamp, displayName string) (string, error) {
	if src == nil {
		return "", newError(StageMaterialize, audio.ErrIO, "no source stream", nil)
	}
	if err := os.MkdirAll(p.scratchDir, 0o755); err != nil {
		return "", newError(StageMaterialize, audio.ErrIO, "create scratch directory", err)
	}
	path := filepath.Join(p.scratchDir, inputPrefix+stamp+"."+extensionHint(displayName))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return "", newError(StageMaterialize, audio.ErrIO, "create scratch input", err)
	}
	n, copyErr := io.Copy(f, src)
	closeErr := f.Close()
	if err := errors.Join(copyErr, closeErr); err != nil {
		_ = os.Remove(path)
		return "", newError(StageMaterialize, audio.ErrIO, "copy source to scratch input", err)
	}
	slog.Info("materialized source", "display_name", displayName, "path", path, "bytes", n)
	return path, nil
}

func (p *Pipeline) Remove(path string) error {
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", path, err)
	}
	return nil
}

// Sweep deletes scratch files last modified before now-olderThan and joins the errors.
func (p *Pipeline) Sweep(olderThan time.Duration) (int, error) {
	cutoff := p.now().Add(-olderThan)
	removed := 0
	var errs []error
	sweepDir := func(dir string, match func(name string) bool) {
		entries, err := os.ReadDir(dir)
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				errs = append(errs, err)
			}
			return
		}
		for _, e := range entries {
			if e.IsDir() || !match(e.Name()) {
				continue
			}
			info, err := e.Info()
			if err != nil {
				continue
			}
			if info.ModTime().After(cutoff) {
				continue
			}
			if err := os.Remove(filepath.Join(dir, e.Name())); err != nil && !errors.Is(err, fs.ErrNotExist) {
				errs = append(errs, err)
				continue
			}
			removed++
		}
	}
	sweepDir(p.scratchDir, IsScratchInput)
	sweepDir(p.ConvertedDir(), IsConvertedWAV)
	return removed, errors.Join(errs...)
}

func IsScratchInput(name string) bool {
	return strings.HasPrefix(name, inputPrefix)
}

func IsConvertedWAV(name string) bool {
	return strings.HasPrefix(name, outputPrefix) && strings.HasSuffix(name, outputExt)
}

func extensionHint(displayName string) string {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(displayName), "."))
	if ext == "" || len(ext) > maxExtLen {
		return defaultInputExt
	}
	for _, r := range ext {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return defaultInputExt
		}
	}
	return ext
}

func randomSuffix() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}
