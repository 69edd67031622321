package orchestrator

const (
	messageSourceUnavailable = "The shared file could not be opened."
	messageNoAudioTrack      = "The file does not contain an audio track."
	messageUnsupportedCodec  = "This audio format is not supported."
	messageConversionFailed  = "The audio could not be converted."
	messageModelLoadFailed   = "The speech model could not be loaded."
	messageInferenceFailed   = "Transcription failed."
	messageUnexpected        = "Something went wrong while transcribing."
)

func userMessage(kind string) string {
	switch kind {
	case "source_unavailable":
		return messageSourceUnavailable
	case "no_audio_track":
		return messageNoAudioTrack
	case "unsupported_codec":
		return messageUnsupportedCodec
	case "conversion_failed", "io_error":
		return messageConversionFailed
	case "model_load_failed":
		return messageModelLoadFailed
	case "inference_failed":
		return messageInferenceFailed
	}
	return messageUnexpected
}
