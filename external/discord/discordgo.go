package discord

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"
	discordpkg "github.com/foxseedlab/localscribe/internal/discord"
)

type Client struct {
	session   *discordgo.Session
	token     string
	botUserID string
}

func NewClient(token string) discordpkg.Client {
	return &Client{
		token: token,
	}
}

// Connect opens the gateway. Handlers must be registered before the first
// event arrives, so the session is created here and opened last.
func (c *Client) Connect(ctx context.Context) error {
	_ = ctx
	if c.session == nil {
		if err := c.newSession(); err != nil {
			return err
		}
	}
	if err := c.session.Open(); err != nil {
		return err
	}
	userID, err := c.GetBotUserID()
	if err != nil {
		return err
	}
	c.botUserID = userID
	slog.Info("discord gateway connected", "bot_user_id", userID)
	return nil
}

func (c *Client) newSession() error {
	s, err := discordgo.New("Bot " + c.token)
	if err != nil {
		return err
	}
	s.Identify.Intents = discordgo.MakeIntent(discordgo.IntentsGuildMessages | discordgo.IntentsDirectMessages | discordgo.IntentMessageContent)
	c.session = s
	return nil
}

func (c *Client) Close() error {
	if c.session != nil {
		return c.session.Close()
	}
	return nil
}

func (c *Client) RegisterMessageHandler(handler func(discordpkg.MessageEvent)) {
	if c.session == nil {
		if err := c.newSession(); err != nil {
			slog.Error("failed to create discord session", "error", err)
			return
		}
	}
	c.session.AddHandler(func(s *discordgo.Session, mc *discordgo.MessageCreate) {
		event, ok := toMessageEvent(mc)
		if !ok {
			return
		}
		handler(event)
	})
}

func toMessageEvent(mc *discordgo.MessageCreate) (discordpkg.MessageEvent, bool) {
	if mc == nil || mc.Message == nil || mc.Author == nil {
		return discordpkg.MessageEvent{}, false
	}
	event := discordpkg.MessageEvent{
		MessageID:   mc.ID,
		GuildID:     mc.GuildID,
		ChannelID:   mc.ChannelID,
		AuthorID:    mc.Author.ID,
		AuthorIsBot: mc.Author.Bot,
		Content:     mc.Content,
	}
	for _, a := range mc.Attachments {
		if a == nil || a.URL == "" {
			continue
		}
		event.Attachments = append(event.Attachments, discordpkg.Attachment{
			ID:          a.ID,
			Filename:    a.Filename,
			ContentType: a.ContentType,
			URL:         a.URL,
			Size:        a.Size,
		})
	}
	return event, true
}

func (c *Client) SendChannelMessage(channelID, replyToID, content string) error {
	_, err := c.session.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
		Content:   content,
		Reference: messageReference(channelID, replyToID),
	})
	return err
}

func (c *Client) SendChannelMessageWithFile(msg discordpkg.FileMessage) error {
	_, err := c.session.ChannelMessageSendComplex(msg.ChannelID, &discordgo.MessageSend{
		Content:   msg.Content,
		Reference: messageReference(msg.ChannelID, msg.ReplyToID),
		Files: []*discordgo.File{
			{Name: msg.Filename, ContentType: "text/plain", Reader: bytes.NewReader(msg.FileBody)},
		},
	})
	return err
}

func messageReference(channelID, messageID string) *discordgo.MessageReference {
	if messageID == "" {
		return nil
	}
	return &discordgo.MessageReference{ChannelID: channelID, MessageID: messageID}
}

func (c *Client) GetBotUserID() (string, error) {
	if c.botUserID != "" {
		return c.botUserID, nil
	}
	if c.session == nil {
		return "", fmt.Errorf("discord session is not initialized")
	}
	if c.session.State != nil && c.session.State.User != nil && c.session.State.User.ID != "" {
		c.botUserID = c.session.State.User.ID
		return c.botUserID, nil
	}
	u, err := c.session.User("@me")
	if err != nil {
		return "", err
	}
	c.botUserID = u.ID
	return c.botUserID, nil
}
