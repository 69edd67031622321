package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("WHISPER_MODEL_DIR", "/models")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.TranscriptionEngine != "whisper_cpp" || cfg.TranscriptionMode != "fast" {
		t.Fatalf("unexpected engine/mode: %s/%s", cfg.TranscriptionEngine, cfg.TranscriptionMode)
	}
	if cfg.TranscribeLanguage != "es" {
		t.Fatalf("expected default language es, got %q", cfg.TranscribeLanguage)
	}
	if cfg.ScratchRetention != time.Hour {
		t.Fatalf("expected 1h retention, got %s", cfg.ScratchRetention)
	}
	if cfg.ScratchDir != filepath.Join(os.TempDir(), "localscribe") {
		t.Fatalf("unexpected scratch dir %q", cfg.ScratchDir)
	}
	if cfg.DiscordEnabled() || cfg.UsesPostgres() {
		t.Fatal("expected discord and postgres to be disabled by default")
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("TRANSCRIPTION_ENGINE", "cloud_speech")
	t.Setenv("TRANSCRIPTION_MODE", "accurate")
	t.Setenv("GOOGLE_CLOUD_PROJECT_ID", "project-id")
	t.Setenv("GOOGLE_CLOUD_CREDENTIALS_JSON", `{"type":"service_account"}`)
	t.Setenv("SCRATCH_RETENTION", "15m")
	t.Setenv("SCRATCH_DIR", "/var/tmp/scribe")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ScratchRetention != 15*time.Minute || cfg.ScratchDir != "/var/tmp/scribe" {
		t.Fatalf("unexpected scratch settings: %s %s", cfg.ScratchDir, cfg.ScratchRetention)
	}
	if cfg.GoogleCloudSpeechModelAccurate != "chirp_3" {
		t.Fatalf("unexpected accurate model %q", cfg.GoogleCloudSpeechModelAccurate)
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	t.Setenv("WHISPER_MODEL_DIR", "/models")
	t.Setenv("SCRATCH_RETENTION", "soon")
	if _, err := Load(); err == nil {
		t.Fatal("expected parse error for invalid duration")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	t.Setenv("WHISPER_MODEL_DIR", "")
	if _, err := Load(); err == nil {
		t.Fatal("expected validation error without a whisper model dir")
	}
}
