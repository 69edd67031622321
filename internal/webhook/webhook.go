package webhook

import (
	"context"
	"time"
)

type TranscriptWebhookPayload struct {
	RunID        string    `json:"run_id"`
	DisplayName  string    `json:"display_name"`
	Engine       string    `json:"engine"`
	Variant      string    `json:"variant"`
	Language     string    `json:"language"`
	Transcript   string    `json:"transcript"`
	AudioSeconds float64   `json:"audio_seconds"`
	ElapsedMs    int64     `json:"elapsed_ms"`
	CompletedAt  time.Time `json:"completed_at"`
}

type Sender interface {
	SendTranscript(ctx context.Context, payload TranscriptWebhookPayload) error
}
