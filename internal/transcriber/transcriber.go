package transcriber

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/foxseedlab/localscribe/internal/audio"
)

var (
	ErrModelLoadFailed = errors.New("model load failed")
	ErrInferenceFailed = errors.New("inference failed")
)

type Mode string

const (
	ModeFast     Mode = "fast"
	ModeAccurate Mode = "accurate"
)

func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeFast:
		return ModeFast, nil
	case ModeAccurate:
		return ModeAccurate, nil
	}
	return "", fmt.Errorf("unknown transcription mode %q", s)
}

func (m Mode) Variant() string {
	return string(m)
}

type Handle interface {
	Variant() string
}

// Engine is the speech-to-text collaborator. Implementations wrap failures
// with ErrModelLoadFailed or ErrInferenceFailed.
type Engine interface {
	Name() string
	LoadModel(ctx context.Context, variant string) (Handle, error)
	Transcribe(ctx context.Context, h Handle, a audio.NormalizedAudio) (string, error)
	Release(h Handle) error
}
