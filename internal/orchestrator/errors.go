package orchestrator

import (
	"errors"
	"fmt"
)

var (
	ErrBusy              = errors.New("a transcription is already in progress")
	ErrNotResettable     = errors.New("stage cannot be reset while a run is active")
	ErrSourceUnavailable = errors.New("source unavailable")
	ErrClosed            = errors.New("orchestrator is closed")
)

// wrapKind makes err match kind without losing the original chain.
func wrapKind(kind, err error) error {
	if err == nil {
		return kind
	}
	if errors.Is(err, kind) {
		return err
	}
	return fmt.Errorf("%w: %w", kind, err)
}
