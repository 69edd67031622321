package discord

import "context"

type FileMessage struct {
	ChannelID string
	ReplyToID string
	Content   string
	Filename  string
	FileBody  []byte
}

type Attachment struct {
	ID          string
	Filename    string
	ContentType string
	URL         string
	Size        int
}

type MessageEvent struct {
	MessageID   string
	GuildID     string
	ChannelID   string
	AuthorID    string
	AuthorIsBot bool
	Content     string
	Attachments []Attachment
}

type Client interface {
	Connect(ctx context.Context) error
	Close() error
	RegisterMessageHandler(handler func(MessageEvent))
	SendChannelMessage(channelID, replyToID, content string) error
	SendChannelMessageWithFile(msg FileMessage) error
	GetBotUserID() (string, error)
}
