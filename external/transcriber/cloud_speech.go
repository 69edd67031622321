package transcriber

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"cloud.google.com/go/auth/credentials"
	speech "cloud.google.com/go/speech/apiv2"
	speechpb "cloud.google.com/go/speech/apiv2/speechpb"
	"github.com/foxseedlab/localscribe/internal/audio"
	"github.com/foxseedlab/localscribe/internal/transcriber"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	speechAPIEndpointPort = 443
	// synchronous Recognize accepts up to 60 s of inline audio
	recognizeWindowSeconds = 55
)

type CloudSpeechConfig struct {
	ProjectID       string
	CredentialsJSON string
	Language        string
	Location        string
	ModelFast       string
	ModelAccurate   string
}

type recognizeClient interface {
	Recognize(ctx context.Context, req *speechpb.RecognizeRequest) (*speechpb.RecognizeResponse, error)
	Close() error
}

type speechClient struct {
	c *speech.Client
}

func (s speechClient) Recognize(ctx context.Context, req *speechpb.RecognizeRequest) (*speechpb.RecognizeResponse, error) {
	return s.c.Recognize(ctx, req)
}

func (s speechClient) Close() error {
	return s.c.Close()
}

// CloudSpeechEngine sends normalized audio to Google Cloud Speech-to-Text v2.
// A loaded model is an open client bound to one recognizer model name.
type CloudSpeechEngine struct {
	projectID       string
	credentialsJSON string
	language        string
	location        string
	modelFast       string
	modelAccurate   string
	newClient       func(ctx context.Context) (recognizeClient, error)
}

type cloudSpeechHandle struct {
	variant string
	model   string
	client  recognizeClient
}

func (h *cloudSpeechHandle) Variant() string {
	return h.variant
}

func NewCloudSpeechEngine(cfg CloudSpeechConfig) *CloudSpeechEngine {
	e := &CloudSpeechEngine{
		projectID:       cfg.ProjectID,
		credentialsJSON: cfg.CredentialsJSON,
		language:        cfg.Language,
		location:        strings.TrimSpace(cfg.Location),
		modelFast:       strings.TrimSpace(cfg.ModelFast),
		modelAccurate:   strings.TrimSpace(cfg.ModelAccurate),
	}
	if e.location == "" {
		e.location = "global"
	}
	e.newClient = e.dial
	return e
}

func (e *CloudSpeechEngine) Name() string {
	return "cloud_speech"
}

func (e *CloudSpeechEngine) dial(ctx context.Context) (recognizeClient, error) {
	creds, err := credentials.DetectDefault(&credentials.DetectOptions{
		CredentialsJSON: []byte(e.credentialsJSON),
		Scopes:          []string{"https://www.googleapis.com/auth/cloud-platform"},
	})
	if err != nil {
		return nil, fmt.Errorf("detect credentials: %w", err)
	}
	opts := []option.ClientOption{
		option.WithAuthCredentials(creds),
	}
	if e.location != "global" {
		opts = append(opts, option.WithEndpoint(fmt.Sprintf("%s-speech.googleapis.com:%d", e.location, speechAPIEndpointPort)))
	}
	client, err := speech.NewClient(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return speechClient{c: client}, nil
}

func (e *CloudSpeechEngine) modelName(variant string) (string, error) {
	switch transcriber.Mode(variant) {
	case transcriber.ModeFast:
		return e.modelFast, nil
	case transcriber.ModeAccurate:
		return e.modelAccurate, nil
	}
	return "", fmt.Errorf("no cloud speech model configured for variant %q", variant)
}

func (e *CloudSpeechEngine) LoadModel(ctx context.Context, variant string) (transcriber.Handle, error) {
	model, err := e.modelName(variant)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", transcriber.ErrModelLoadFailed, err)
	}
	if model == "" {
		return nil, fmt.Errorf("%w: empty model name for variant %q", transcriber.ErrModelLoadFailed, variant)
	}
	client, err := e.newClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", transcriber.ErrModelLoadFailed, err)
	}
	slog.Info("cloud speech client ready", "variant", variant, "model", model, "location", e.location)
	return &cloudSpeechHandle{variant: variant, model: model, client: client}, nil
}

func (e *CloudSpeechEngine) recognizer() string {
	return fmt.Sprintf("projects/%s/locations/%s/recognizers/_", e.projectID, e.location)
}

func (e *CloudSpeechEngine) Transcribe(ctx context.Context, h transcriber.Handle, a audio.NormalizedAudio) (string, error) {
	ch, ok := h.(*cloudSpeechHandle)
	if !ok || ch == nil {
		return "", fmt.Errorf("%w: handle %T does not belong to cloud_speech", transcriber.ErrInferenceFailed, h)
	}
	windows := splitWindows(a.Samples, a.SampleRate*recognizeWindowSeconds)
	parts := make([]string, 0, len(windows))
	for i, w := range windows {
		req := e.buildRecognizeRequest(ch.model, a.SampleRate, audio.SamplesToBytes(w))
		resp, err := ch.client.Recognize(ctx, req)
		if err != nil && isRetryableRecognizeError(err) {
			slog.Warn("cloud speech recognize failed with retryable error; retrying once", "error", err, "window", i)
			resp, err = ch.client.Recognize(ctx, req)
		}
		if err != nil {
			return "", fmt.Errorf("%w: window %d/%d: %s", transcriber.ErrInferenceFailed, i+1, len(windows), describeRPCError(err))
		}
		if text := joinResults(resp); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " "), nil
}

func (e *CloudSpeechEngine) buildRecognizeRequest(model string, sampleRate int, pcm []byte) *speechpb.RecognizeRequest {
	return &speechpb.RecognizeRequest{
		Recognizer: e.recognizer(),
		Config: &speechpb.RecognitionConfig{
			Model:         model,
			LanguageCodes: []string{e.language},
			DecodingConfig: &speechpb.RecognitionConfig_ExplicitDecodingConfig{
				ExplicitDecodingConfig: &speechpb.ExplicitDecodingConfig{
					Encoding:          speechpb.ExplicitDecodingConfig_LINEAR16,
					SampleRateHertz:   int32(sampleRate),
					AudioChannelCount: audio.TargetChannels,
				},
			},
			Features: &speechpb.RecognitionFeatures{EnableAutomaticPunctuation: true},
		},
		AudioSource: &speechpb.RecognizeRequest_Content{Content: pcm},
	}
}

func (e *CloudSpeechEngine) Release(h transcriber.Handle) error {
	ch, ok := h.(*cloudSpeechHandle)
	if !ok || ch == nil {
		return nil
	}
	slog.Info("cloud speech client released", "variant", ch.variant, "model", ch.model)
	return ch.client.Close()
}

func splitWindows(samples []int16, size int) [][]int16 {
	if size <= 0 || len(samples) <= size {
		if len(samples) == 0 {
			return nil
		}
		return [][]int16{samples}
	}
	var out [][]int16
	for start := 0; start < len(samples); start += size {
		end := min(start+size, len(samples))
		out = append(out, samples[start:end])
	}
	return out
}

func joinResults(resp *speechpb.RecognizeResponse) string {
	var parts []string
	for _, result := range resp.GetResults() {
		if len(result.GetAlternatives()) == 0 {
			continue
		}
		if t := strings.TrimSpace(result.GetAlternatives()[0].GetTranscript()); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " ")
}

func isRetryableRecognizeError(err error) bool {
	st, ok := status.FromError(err)
	if !ok {
		return false
	}
	return st.Code() == codes.Unavailable || st.Code() == codes.Aborted
}

func describeRPCError(err error) string {
	st, ok := status.FromError(err)
	if !ok {
		return err.Error()
	}
	return fmt.Sprintf("%s: %s", st.Code(), st.Message())
}
