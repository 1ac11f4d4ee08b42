package chat

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	twitch "github.com/gempir/go-twitch-irc/v4"
)

// User is the sender of a chat line.
type User struct {
	ID          string
	Name        string // login, lowercase
	DisplayName string
}

// Message is one chat line with the metadata commands need.
type Message struct {
	ID      string
	Channel string
	User    User
	Text    string
	SentMs  int64          // platform send time, ms since epoch
	Badges  map[string]int // badge name -> version
}

// SentAt returns the platform send time.
func (m *Message) SentAt() time.Time { return time.UnixMilli(m.SentMs).UTC() }

// Handler receives every chat line.
type Handler func(ctx context.Context, msg *Message)

// Sender posts a line to a channel.
type Sender interface {
	Say(channel, text string)
}

// FromPrivateMessage converts a go-twitch-irc PRIVMSG.
func FromPrivateMessage(pm twitch.PrivateMessage) *Message {
	sent := pm.Time.UnixMilli()
	if v, ok := pm.Tags["tmi-sent-ts"]; ok {
		if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
			sent = ms
		}
	}
	badges := make(map[string]int, len(pm.User.Badges))
	for k, v := range pm.User.Badges {
		badges[k] = v
	}
	return &Message{
		ID:      pm.ID,
		Channel: pm.Channel,
		User: User{
			ID:          pm.User.ID,
			Name:        strings.ToLower(pm.User.Name),
			DisplayName: pm.User.DisplayName,
		},
		Text:   pm.Message,
		SentMs: sent,
		Badges: badges,
	}
}

// Connector owns the IRC client for a single channel.
type Connector struct {
	channel string
	client  *twitch.Client
	logger  *slog.Logger

	mu        sync.RWMutex
	handler   Handler
	connected bool
}

// NewConnector builds a connector for channel using the bot's login and user token.
// The token may be given with or without the "oauth:" prefix.
func NewConnector(username, oauthToken, channel string) *Connector {
	if !strings.HasPrefix(oauthToken, "oauth:") {
		oauthToken = "oauth:" + oauthToken
	}
	c := &Connector{
		channel: strings.ToLower(strings.TrimPrefix(channel, "#")),
		client:  twitch.NewClient(username, oauthToken),
		logger:  slog.Default().With(slog.String("component", "chat")),
	}
	return c
}

// Channel returns the joined channel name.
func (c *Connector) Channel() string { return c.channel }

// OnMessage sets the handler for incoming lines. It must be set before Run.
func (c *Connector) OnMessage(h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = h
}

// Connected reports whether the IRC connection is up.
func (c *Connector) Connected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// Say sends text to channel.
func (c *Connector) Say(channel, text string) {
	c.client.Say(channel, text)
}

// Run connects and blocks until ctx is cancelled, reconnecting after connection errors.
func (c *Connector) Run(ctx context.Context) error {
	c.client.OnConnect(func() {
		c.setConnected(true)
		c.logger.Info("connected to twitch chat", slog.String("channel", c.channel))
	})
	c.client.OnPrivateMessage(func(pm twitch.PrivateMessage) {
		c.mu.RLock()
		h := c.handler
		c.mu.RUnlock()
		if h != nil {
			h(ctx, FromPrivateMessage(pm))
		}
	})
	c.client.Join(c.channel)

	go func() {
		<-ctx.Done()
		if err := c.client.Disconnect(); err != nil && !errors.Is(err, twitch.ErrConnectionIsNotOpen) {
			c.logger.Warn("twitch chat disconnect", slog.Any("err", err))
		}
	}()

	backoff := time.Second
	for {
		err := c.client.Connect()
		c.setConnected(false)
		if ctx.Err() != nil || errors.Is(err, twitch.ErrClientDisconnected) {
			return nil
		}
		c.logger.Error("twitch chat connect error", slog.Any("err", err), slog.Duration("retry_in", backoff))
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		if backoff < time.Minute {
			backoff *= 2
		}
	}
}

func (c *Connector) setConnected(v bool) {
	c.mu.Lock()
	c.connected = v
	c.mu.Unlock()
}
