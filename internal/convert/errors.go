package convert

import (
	"errors"
	"fmt"
)

var ErrConversionFailed = errors.New("conversion failed")

const (
	StageMaterialize = "materialize"
	StageDecode      = "decode"
	StageNormalize   = "normalize"
	StageEncode      = "encode"
)

// Error reports which conversion step failed. It matches ErrConversionFailed,
// its Kind (one of the audio sentinels) and the underlying cause.
type Error struct {
	Stage   string
	Kind    error
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("convert %s: %s", e.Stage, e.Message)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() []error {
	errs := []error{ErrConversionFailed}
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

func newError(stage string, kind error, message string, err error) *Error {
	return &Error{Stage: stage, Kind: kind, Message: message, Err: err}
}

// classify picks the audio sentinel err already carries, or fallback.
func classify(err error, fallback error, kinds ...error) error {
	for _, k := range kinds {
		if errors.Is(err, k) {
			return k
		}
	}
	return fallback
}
