// Package discordapi wraps the Discord REST calls the bot needs: channel lookup, recent
// message listing, posting and thread creation. It never opens a gateway session.
package discordapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"
)

// maxContent is Discord's message length limit, in characters.
const maxContent = 2000

// ErrNotFound is returned when a channel, thread or message does not exist or is not visible
// to the bot.
var ErrNotFound = errors.New("discord: not found")

// Channel is a guild channel or thread.
type Channel struct {
	ID       string `json:"id"`
	Type     int    `json:"type"`
	Name     string `json:"name"`
	ParentID string `json:"parent_id,omitempty"`
}

// Message is a posted message. Thread is set when a thread was started from it.
type Message struct {
	ID        string   `json:"id"`
	ChannelID string   `json:"channel_id"`
	Content   string   `json:"content"`
	Thread    *Channel `json:"thread,omitempty"`
}

// Client talks to the Discord REST API with a bot token.
type Client struct {
	session *discordgo.Session
}

// New returns a client for the given bot token. hc may be nil to keep discordgo's default.
func New(token string, hc *http.Client) *Client {
	// New only builds the session struct; it cannot fail for a bot token.
	s, _ := discordgo.New("Bot " + token)
	if hc != nil {
		s.Client = hc
	}
	return &Client{session: s}
}

// wrap maps 404 responses to ErrNotFound while keeping the *discordgo.RESTError reachable.
func wrap(op string, err error) error {
	var rest *discordgo.RESTError
	if errors.As(err, &rest) && rest.Response != nil && rest.Response.StatusCode == http.StatusNotFound {
		return fmt.Errorf("discord %s: %w: %w", op, ErrNotFound, err)
	}
	return fmt.Errorf("discord %s: %w", op, err)
}

func fromChannel(ch *discordgo.Channel) *Channel {
	if ch == nil {
		return nil
	}
	return &Channel{ID: ch.ID, Type: int(ch.Type), Name: ch.Name, ParentID: ch.ParentID}
}

func fromMessage(m *discordgo.Message) Message {
	return Message{ID: m.ID, ChannelID: m.ChannelID, Content: m.Content, Thread: fromChannel(m.Thread)}
}

// Truncate caps content at Discord's limit, counting characters, and marks the cut with "...".
func Truncate(content string) string {
	if utf8.RuneCountInString(content) <= maxContent {
		return content
	}
	runes := []rune(content)
	return string(runes[:maxContent-3]) + "..."
}

// GetChannel fetches a channel or thread by id.
func (c *Client) GetChannel(ctx context.Context, channelID string) (*Channel, error) {
	if channelID == "" {
		return nil, fmt.Errorf("channel id empty: %w", ErrNotFound)
	}
	ch, err := c.session.Channel(channelID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, wrap("get channel", err)
	}
	return fromChannel(ch), nil
}

// ListMessages returns up to limit of the most recent messages in a channel, newest first.
// Discord caps a single page at 100.
func (c *Client) ListMessages(ctx context.Context, channelID string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 100 {
		limit = 100
	}
	msgs, err := c.session.ChannelMessages(channelID, limit, "", "", "", discordgo.WithContext(ctx))
	if err != nil {
		return nil, wrap("list messages", err)
	}
	out := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, fromMessage(m))
	}
	return out, nil
}

// SendMessage posts content to a channel or thread and returns the created message.
func (c *Client) SendMessage(ctx context.Context, channelID, content string) (*Message, error) {
	msg, err := c.session.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
		Content: Truncate(content),
		// announcements carry links; never ping anyone from relayed chat text
		AllowedMentions: &discordgo.MessageAllowedMentions{Parse: []discordgo.AllowedMentionType{}},
	}, discordgo.WithContext(ctx))
	if err != nil {
		return nil, wrap("send message", err)
	}
	out := fromMessage(msg)
	return &out, nil
}

// StartThread creates a public thread attached to an existing message.
// autoArchiveMinutes must be one of 60, 1440, 4320 or 10080.
func (c *Client) StartThread(ctx context.Context, channelID, messageID, name string, autoArchiveMinutes int) (*Channel, error) {
	th, err := c.session.MessageThreadStartComplex(channelID, messageID, &discordgo.ThreadStart{
		Name:                name,
		AutoArchiveDuration: autoArchiveMinutes,
	}, discordgo.WithContext(ctx))
	if err != nil {
		return nil, wrap("start thread", err)
	}
	return fromChannel(th), nil
}
