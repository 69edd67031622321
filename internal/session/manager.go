package session

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/foxseedlab/localscribe/internal/discord"
	"github.com/foxseedlab/localscribe/internal/orchestrator"
)

const downloadTimeout = 2 * time.Minute

var audioExtensions = map[string]struct{}{
	".wav": {}, ".wave": {}, ".mp3": {}, ".ogg": {}, ".oga": {}, ".opus": {},
	".flac": {}, ".m4a": {}, ".mp4": {}, ".aac": {}, ".mov": {},
}

type Runner interface {
	Reset() error
	Run(ctx context.Context, src orchestrator.Source) (orchestrator.Completed, error)
	LastError() (orchestrator.Error, bool)
}

type Manager struct {
	discord    discord.Client
	runner     Runner
	channelID  string
	maxBytes   int64
	httpClient *http.Client

	ctx       context.Context
	botUserID string
}

func NewManager(dc discord.Client, runner Runner, channelID string, maxBytes int64) *Manager {
	return &Manager{
		discord:    dc,
		runner:     runner,
		channelID:  channelID,
		maxBytes:   maxBytes,
		httpClient: &http.Client{Timeout: downloadTimeout},
		ctx:        context.Background(),
	}
}

// Runs started from Discord are cancelled with ctx.
func (m *Manager) Start(ctx context.Context) error {
	m.ctx = ctx
	m.discord.RegisterMessageHandler(m.HandleMessage)
	if err := m.discord.Connect(ctx); err != nil {
		return err
	}
	id, err := m.discord.GetBotUserID()
	if err != nil {
		return err
	}
	m.botUserID = id
	return nil
}

func (m *Manager) Close() error {
	return m.discord.Close()
}

func (m *Manager) HandleMessage(event discord.MessageEvent) {
	if event.AuthorIsBot || (m.botUserID != "" && event.AuthorID == m.botUserID) {
		return
	}
	if m.channelID != "" && event.ChannelID != m.channelID {
		return
	}
	att, ok := firstAudioAttachment(event.Attachments)
	if !ok {
		return
	}
	slog.Info("audio attachment received", "channel_id", event.ChannelID, "message_id", event.MessageID, "filename", att.Filename, "size", att.Size)

	if m.maxBytes > 0 && int64(att.Size) > m.maxBytes {
		m.reply(event, tooLargeMessage(att.Filename, m.maxBytes))
		return
	}

	src := orchestrator.URLSource{
		URL:      att.URL,
		Name:     att.Filename,
		MaxBytes: m.maxBytes,
		Client:   m.httpClient,
	}
	done, err := m.runner.Run(m.ctx, src)
	if errors.Is(err, orchestrator.ErrBusy) {
		m.reply(event, messageBusy)
		return
	}
	// The reply delivers this run's outcome, so its terminal stage is dismissed.
	defer m.dismiss()
	if err != nil {
		reason := "Transcription failed."
		if stage, ok := m.runner.LastError(); ok && stage.Message != "" {
			reason = stage.Message
		}
		m.reply(event, failedMessage(reason))
		return
	}

	r := buildTranscriptReply(att.Filename, done)
	if r.FileBody == nil {
		m.reply(event, r.Content)
		return
	}
	if err := m.discord.SendChannelMessageWithFile(discord.FileMessage{
		ChannelID: event.ChannelID,
		ReplyToID: event.MessageID,
		Content:   r.Content,
		Filename:  transcriptFilename,
		FileBody:  r.FileBody,
	}); err != nil {
		slog.Error("failed to send transcript file", "channel_id", event.ChannelID, "error", err)
	}
}

func (m *Manager) reply(event discord.MessageEvent, content string) {
	if err := m.discord.SendChannelMessage(event.ChannelID, event.MessageID, content); err != nil {
		slog.Error("failed to send discord reply", "channel_id", event.ChannelID, "error", err)
	}
}

func firstAudioAttachment(atts []discord.Attachment) (discord.Attachment, bool) {
	for _, a := range atts {
		if isAudioAttachment(a) {
			return a, true
		}
	}
	return discord.Attachment{}, false
}

func isAudioAttachment(a discord.Attachment) bool {
	ct := strings.ToLower(a.ContentType)
	if strings.HasPrefix(ct, "audio/") || strings.HasPrefix(ct, "video/") {
		return true
	}
	_, ok := audioExtensions[strings.ToLower(filepath.Ext(a.Filename))]
	return ok
}

func (m *Manager) dismiss() {
	if err := m.runner.Reset(); err != nil && !errors.Is(err, orchestrator.ErrNotResettable) {
		slog.Warn("failed to dismiss finished run", "error", err)
	}
}
