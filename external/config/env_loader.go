package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	internalconfig "github.com/foxseedlab/localscribe/internal/config"
)

type envConfig struct {
	Env                string        `env:"ENV" envDefault:"production"`
	ScratchDir         string        `env:"SCRATCH_DIR"`
	ScratchRetention   time.Duration `env:"SCRATCH_RETENTION" envDefault:"1h"`
	HTTPAddr           string        `env:"HTTP_ADDR" envDefault:":8080"`
	MaxUploadMB        int           `env:"MAX_UPLOAD_MB" envDefault:"200"`
	TranscriptionMode  string        `env:"TRANSCRIPTION_MODE" envDefault:"fast"`
	TranscribeLanguage string        `env:"TRANSCRIBE_LANGUAGE" envDefault:"es"`

	TranscriptionEngine  string `env:"TRANSCRIPTION_ENGINE" envDefault:"whisper_cpp"`
	WhisperCLIPath       string `env:"WHISPER_CLI_PATH" envDefault:"whisper-cli"`
	WhisperModelDir      string `env:"WHISPER_MODEL_DIR"`
	WhisperModelFast     string `env:"WHISPER_MODEL_FAST" envDefault:"ggml-tiny.bin"`
	WhisperModelAccurate string `env:"WHISPER_MODEL_ACCURATE" envDefault:"ggml-base.bin"`
	WhisperThreads       int    `env:"WHISPER_THREADS" envDefault:"4"`

	GoogleCloudProjectID           string `env:"GOOGLE_CLOUD_PROJECT_ID"`
	GoogleCloudCredentialsJSON     string `env:"GOOGLE_CLOUD_CREDENTIALS_JSON"`
	GoogleCloudSpeechLocation      string `env:"GOOGLE_CLOUD_SPEECH_LOCATION" envDefault:"global"`
	GoogleCloudSpeechModelFast     string `env:"GOOGLE_CLOUD_SPEECH_MODEL_FAST" envDefault:"short"`
	GoogleCloudSpeechModelAccurate string `env:"GOOGLE_CLOUD_SPEECH_MODEL_ACCURATE" envDefault:"chirp_3"`

	DatabaseURL          string `env:"DATABASE_URL"`
	DiscordToken         string `env:"DISCORD_TOKEN"`
	DiscordChannelID     string `env:"DISCORD_CHANNEL_ID"`
	TranscriptWebhookURL string `env:"TRANSCRIPT_WEBHOOK_URL"`
}

func Load() (*internalconfig.Config, error) {
	var raw envConfig
	if err := env.Parse(&raw); err != nil {
		return nil, fmt.Errorf("environment variables are invalid or missing: %w", err)
	}
	if raw.ScratchDir == "" {
		raw.ScratchDir = filepath.Join(os.TempDir(), "localscribe")
	}

	cfg := &internalconfig.Config{
		Env:                            raw.Env,
		ScratchDir:                     raw.ScratchDir,
		ScratchRetention:               raw.ScratchRetention,
		HTTPAddr:                       raw.HTTPAddr,
		MaxUploadMB:                    raw.MaxUploadMB,
		TranscriptionMode:              raw.TranscriptionMode,
		TranscribeLanguage:             raw.TranscribeLanguage,
		TranscriptionEngine:            raw.TranscriptionEngine,
		WhisperCLIPath:                 raw.WhisperCLIPath,
		WhisperModelDir:                raw.WhisperModelDir,
		WhisperModelFast:               raw.WhisperModelFast,
		WhisperModelAccurate:           raw.WhisperModelAccurate,
		WhisperThreads:                 raw.WhisperThreads,
		GoogleCloudProjectID:           raw.GoogleCloudProjectID,
		GoogleCloudCredentialsJSON:     raw.GoogleCloudCredentialsJSON,
		GoogleCloudSpeechLocation:      raw.GoogleCloudSpeechLocation,
		GoogleCloudSpeechModelFast:     raw.GoogleCloudSpeechModelFast,
		GoogleCloudSpeechModelAccurate: raw.GoogleCloudSpeechModelAccurate,
		DatabaseURL:                    raw.DatabaseURL,
		DiscordToken:                   raw.DiscordToken,
		DiscordChannelID:               raw.DiscordChannelID,
		TranscriptWebhookURL:           raw.TranscriptWebhookURL,
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
