// Package config loads the static bot configuration (config.yaml) into a typed Config.
// Secrets may be overridden from the environment so they can stay out of the file.
// Missing required fields are reported by Load; the process should not start without them.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/onnwee/vod-stamp/store"
)

// Default command prefixes, matched case-insensitively.
const (
	DefaultBookmarkPrefix = "!timestamp "
	DefaultAdminPrefix    = "!fiendotabot"
	DefaultThreadName     = "Timestamps"
)

type Config struct {
	// Twitch
	TwitchChannel      string
	TwitchBotUsername  string
	TwitchOAuthToken   string
	TwitchClientID     string
	TwitchClientSecret string

	// Discord
	DiscordBotToken       string
	DiscordVODChannelID   string
	DiscordLiveChannelID  string
	DiscordThreadName     string
	AnnouncementScanLimit int
	ThreadSettleDelay     time.Duration

	// Commands
	BookmarkPrefix string
	AdminPrefix    string

	// Runtime
	RequestTimeout time.Duration
	HTTPAddr       string
	DBDsn          string
	ArchiveBucket  string
	ArchiveRegion  string

	// Optional S3-compatible endpoint and static credentials for the archive.
	ArchiveEndpoint        string
	ArchiveAccessKeyID     string
	ArchiveSecretAccessKey string
}

// Load reads path through the nested store and applies environment overrides.
func Load(path string) (*Config, error) {
	s, err := store.Open(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	cfg := FromStore(s)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromStore builds a Config from an already opened store without validating it.
func FromStore(s *store.Store) *Config {
	cfg := &Config{
		TwitchChannel:      strings.ToLower(strings.TrimPrefix(s.String("twitch.channelName", ""), "#")),
		TwitchBotUsername:  s.String("twitch.bot.name", ""),
		TwitchOAuthToken:   s.String("twitch.bot.token", ""),
		TwitchClientID:     s.String("twitch.api.clientId", ""),
		TwitchClientSecret: s.String("twitch.api.clientSecret", ""),

		DiscordBotToken:       s.String("discord.bot.token", ""),
		DiscordVODChannelID:   s.Snowflake("discord.vodChannelId", ""),
		DiscordLiveChannelID:  s.Snowflake("discord.liveChannelId", ""),
		DiscordThreadName:     s.String("discord.threadName", DefaultThreadName),
		AnnouncementScanLimit: s.Int("discord.scanLimit", 50),
		ThreadSettleDelay:     time.Duration(s.Int("discord.threadDelaySeconds", 5)) * time.Second,

		BookmarkPrefix: s.String("commands.bookmarkPrefix", DefaultBookmarkPrefix),
		AdminPrefix:    s.String("commands.adminPrefix", DefaultAdminPrefix),

		RequestTimeout: time.Duration(s.Int("http.requestTimeoutSeconds", 10)) * time.Second,
		HTTPAddr:       s.String("http.addr", ":8080"),
		DBDsn:          s.String("journal.dsn", ""),
		ArchiveBucket:  s.String("archive.bucket", ""),
		ArchiveRegion:  s.String("archive.region", ""),

		ArchiveEndpoint: s.String("archive.endpoint", ""),
	}

	if v := os.Getenv("TWITCH_OAUTH_TOKEN"); v != "" {
		cfg.TwitchOAuthToken = v
	}
	if v := os.Getenv("TWITCH_CLIENT_SECRET"); v != "" {
		cfg.TwitchClientSecret = v
	}
	if v := os.Getenv("DISCORD_BOT_TOKEN"); v != "" {
		cfg.DiscordBotToken = v
	}
	if v := os.Getenv("HTTP_ADDR"); v != "" {
		cfg.HTTPAddr = v
	}
	if v := os.Getenv("DB_DSN"); v != "" {
		cfg.DBDsn = v
	}
	if v := os.Getenv("ARCHIVE_S3_BUCKET"); v != "" {
		cfg.ArchiveBucket = v
	}
	if v := os.Getenv("ARCHIVE_S3_REGION"); v != "" {
		cfg.ArchiveRegion = v
	}
	if v := os.Getenv("ARCHIVE_S3_ENDPOINT"); v != "" {
		cfg.ArchiveEndpoint = v
	}
	cfg.ArchiveAccessKeyID = os.Getenv("ARCHIVE_S3_ACCESS_KEY_ID")
	cfg.ArchiveSecretAccessKey = os.Getenv("ARCHIVE_S3_SECRET_ACCESS_KEY")

	// The scan window must cover at least the most recent 50 announcements.
	if cfg.AnnouncementScanLimit < 50 {
		cfg.AnnouncementScanLimit = 50
	}
	if cfg.AnnouncementScanLimit > 100 {
		cfg.AnnouncementScanLimit = 100
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	if cfg.ThreadSettleDelay < 0 {
		cfg.ThreadSettleDelay = 0
	}
	return cfg
}

// Validate checks that every field needed to connect to Twitch and Discord is present.
func (c *Config) Validate() error {
	var missing []string
	check := func(v, name string) {
		if strings.TrimSpace(v) == "" {
			missing = append(missing, name)
		}
	}
	check(c.TwitchChannel, "twitch.channelName")
	check(c.TwitchBotUsername, "twitch.bot.name")
	check(c.TwitchOAuthToken, "twitch.bot.token (or TWITCH_OAUTH_TOKEN)")
	check(c.TwitchClientID, "twitch.api.clientId")
	check(c.TwitchClientSecret, "twitch.api.clientSecret (or TWITCH_CLIENT_SECRET)")
	check(c.DiscordBotToken, "discord.bot.token (or DISCORD_BOT_TOKEN)")
	check(c.DiscordVODChannelID, "discord.vodChannelId")
	check(c.DiscordLiveChannelID, "discord.liveChannelId")
	if len(missing) > 0 {
		return fmt.Errorf("missing required config: %s", strings.Join(missing, ", "))
	}
	if c.ArchiveBucket != "" && c.ArchiveRegion == "" {
		return errors.New("archive.region (or ARCHIVE_S3_REGION) is required when an archive bucket is set")
	}
	if (c.ArchiveAccessKeyID == "") != (c.ArchiveSecretAccessKey == "") {
		return errors.New("ARCHIVE_S3_ACCESS_KEY_ID and ARCHIVE_S3_SECRET_ACCESS_KEY must be set together")
	}
	return nil
}

// ArchiveEnabled reports whether finished broadcasts should be exported to S3.
func (c *Config) ArchiveEnabled() bool { return c.ArchiveBucket != "" && c.DBDsn != "" }
