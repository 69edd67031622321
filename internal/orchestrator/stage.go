package orchestrator

import (
	"errors"

	"github.com/foxseedlab/localscribe/internal/audio"
	"github.com/foxseedlab/localscribe/internal/convert"
	"github.com/foxseedlab/localscribe/internal/transcriber"
)

type StageKind string

const (
	KindIdle            StageKind = "idle"
	KindReceivingFile   StageKind = "receiving_file"
	KindConvertingAudio StageKind = "converting_audio"
	KindLoadingModel    StageKind = "loading_model"
	KindTranscribing    StageKind = "transcribing"
	KindCompleted       StageKind = "completed"
	KindError           StageKind = "error"
)

type Stage interface {
	Kind() StageKind
	isStage()
}

type Idle struct{}

type ReceivingFile struct {
	DisplayName string
}

type ConvertingAudio struct{}

type LoadingModel struct {
	Variant string
}

type Transcribing struct{}

type Completed struct {
	Text      string
	ElapsedMs int64
}

// Error is the failure stage. Cause wraps one of the taxonomy sentinels.
type Error struct {
	Message     string
	Cause       error
	FailedStage StageKind
}

func (Idle) Kind() StageKind            { return KindIdle }
func (ReceivingFile) Kind() StageKind   { return KindReceivingFile }
func (ConvertingAudio) Kind() StageKind { return KindConvertingAudio }
func (LoadingModel) Kind() StageKind    { return KindLoadingModel }
func (Transcribing) Kind() StageKind    { return KindTranscribing }
func (Completed) Kind() StageKind       { return KindCompleted }
func (Error) Kind() StageKind           { return KindError }

func (Idle) isStage()            {}
func (ReceivingFile) isStage()   {}
func (ConvertingAudio) isStage() {}
func (LoadingModel) isStage()    {}
func (Transcribing) isStage()    {}
func (Completed) isStage()       {}
func (Error) isStage()           {}

func isTerminal(s Stage) bool {
	k := s.Kind()
	return k == KindCompleted || k == KindError
}

type StageView struct {
	Kind        StageKind `json:"kind"`
	DisplayName string    `json:"display_name,omitempty"`
	Variant     string    `json:"variant,omitempty"`
	Text        string    `json:"text,omitempty"`
	ElapsedMs   int64     `json:"elapsed_ms,omitempty"`
	Message     string    `json:"message,omitempty"`
	ErrorKind   string    `json:"error_kind,omitempty"`
	ErrorDetail string    `json:"error_detail,omitempty"`
	FailedStage StageKind `json:"failed_stage,omitempty"`
}

func Describe(s Stage) StageView {
	switch st := s.(type) {
	case Idle:
		return StageView{Kind: KindIdle}
	case ReceivingFile:
		return StageView{Kind: KindReceivingFile, DisplayName: st.DisplayName}
	case ConvertingAudio:
		return StageView{Kind: KindConvertingAudio}
	case LoadingModel:
		return StageView{Kind: KindLoadingModel, Variant: st.Variant}
	case Transcribing:
		return StageView{Kind: KindTranscribing}
	case Completed:
		return StageView{Kind: KindCompleted, Text: st.Text, ElapsedMs: st.ElapsedMs}
	case Error:
		v := StageView{Kind: KindError, Message: st.Message, FailedStage: st.FailedStage, ErrorKind: ErrorKind(st.Cause)}
		if st.Cause != nil {
			v.ErrorDetail = st.Cause.Error()
		}
		return v
	}
	return StageView{Kind: s.Kind()}
}

// ErrorKind names the taxonomy entry err belongs to. Specific decode failures
// take precedence over the wrapping conversion failure.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrSourceUnavailable):
		return "source_unavailable"
	case errors.Is(err, audio.ErrNoAudioTrack):
		return "no_audio_track"
	case errors.Is(err, audio.ErrUnsupportedCodec):
		return "unsupported_codec"
	case errors.Is(err, convert.ErrConversionFailed):
		return "conversion_failed"
	case errors.Is(err, transcriber.ErrModelLoadFailed):
		return "model_load_failed"
	case errors.Is(err, transcriber.ErrInferenceFailed):
		return "inference_failed"
	case errors.Is(err, audio.ErrIO):
		return "io_error"
	}
	return "internal"
}
