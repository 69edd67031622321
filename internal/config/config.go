package config

import (
	"fmt"
	"time"
)

const (
	EngineWhisperCpp  = "whisper_cpp"
	EngineCloudSpeech = "cloud_speech"

	ModeFast     = "fast"
	ModeAccurate = "accurate"
)

type Config struct {
	Env                string
	ScratchDir         string
	ScratchRetention   time.Duration
	HTTPAddr           string
	MaxUploadMB        int
	TranscriptionMode  string
	TranscribeLanguage string

	TranscriptionEngine  string
	WhisperCLIPath       string
	WhisperModelDir      string
	WhisperModelFast     string
	WhisperModelAccurate string
	WhisperThreads       int

	GoogleCloudProjectID           string
	GoogleCloudCredentialsJSON     string
	GoogleCloudSpeechLocation      string
	GoogleCloudSpeechModelFast     string
	GoogleCloudSpeechModelAccurate string

	DatabaseURL          string
	DiscordToken         string
	DiscordChannelID     string
	TranscriptWebhookURL string
}

func (c *Config) Validate() error {
	for _, req := range c.requiredFieldChecks() {
		if req.value == "" {
			return fmt.Errorf("%s is required", req.name)
		}
	}
	if c.ScratchRetention <= 0 {
		return fmt.Errorf("SCRATCH_RETENTION must be positive, got %s", c.ScratchRetention)
	}
	if c.MaxUploadMB <= 0 {
		return fmt.Errorf("MAX_UPLOAD_MB must be positive, got %d", c.MaxUploadMB)
	}
	if c.TranscriptionMode != ModeFast && c.TranscriptionMode != ModeAccurate {
		return fmt.Errorf("TRANSCRIPTION_MODE must be %q or %q, got %q", ModeFast, ModeAccurate, c.TranscriptionMode)
	}
	switch c.TranscriptionEngine {
	case EngineWhisperCpp:
		if c.WhisperModelDir == "" {
			return fmt.Errorf("WHISPER_MODEL_DIR is required when TRANSCRIPTION_ENGINE=%s", EngineWhisperCpp)
		}
		if c.WhisperThreads <= 0 {
			return fmt.Errorf("WHISPER_THREADS must be positive, got %d", c.WhisperThreads)
		}
	case EngineCloudSpeech:
		if c.GoogleCloudProjectID == "" {
			return fmt.Errorf("GOOGLE_CLOUD_PROJECT_ID is required when TRANSCRIPTION_ENGINE=%s", EngineCloudSpeech)
		}
		if c.GoogleCloudCredentialsJSON == "" {
			return fmt.Errorf("GOOGLE_CLOUD_CREDENTIALS_JSON is required when TRANSCRIPTION_ENGINE=%s", EngineCloudSpeech)
		}
	default:
		return fmt.Errorf("TRANSCRIPTION_ENGINE must be %q or %q, got %q", EngineWhisperCpp, EngineCloudSpeech, c.TranscriptionEngine)
	}
	return nil
}

type requiredEnvField struct {
	name  string
	value string
}

func (c *Config) requiredFieldChecks() []requiredEnvField {
	return []requiredEnvField{
		{name: "SCRATCH_DIR", value: c.ScratchDir},
		{name: "HTTP_ADDR", value: c.HTTPAddr},
		{name: "TRANSCRIBE_LANGUAGE", value: c.TranscribeLanguage},
	}
}

func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func (c *Config) MaxUploadBytes() int64 {
	return int64(c.MaxUploadMB) << 20
}

func (c *Config) DiscordEnabled() bool {
	return c.DiscordToken != ""
}

func (c *Config) UsesPostgres() bool {
	return c.DatabaseURL != ""
}
