// Command vod-stamp follows one Twitch channel and mirrors its broadcasts into Discord.
// It:
//   - Loads config.yaml (static settings) and db.yaml (runtime settings edited from chat).
//   - Polls Helix for live status and resolves one Discord thread per recording.
//   - Listens to Twitch chat for timestamp bookmarks and admin commands.
//   - Optionally journals broadcasts and bookmarks to Postgres and exports them to S3.
//   - Exposes /healthz, /readyz, /status, /bookmarks and /metrics.
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	_ "net/http/pprof" //nolint:gosec // G108: pprof endpoints enabled only when ENABLE_PPROF=1
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/onnwee/vod-stamp/archive"
	"github.com/onnwee/vod-stamp/chat"
	"github.com/onnwee/vod-stamp/commands"
	"github.com/onnwee/vod-stamp/config"
	"github.com/onnwee/vod-stamp/db"
	"github.com/onnwee/vod-stamp/discordapi"
	"github.com/onnwee/vod-stamp/server"
	"github.com/onnwee/vod-stamp/store"
	"github.com/onnwee/vod-stamp/stream"
	"github.com/onnwee/vod-stamp/telemetry"
	"github.com/onnwee/vod-stamp/twitchapi"
)

func main() {
	// Load .env file if present (local dev convenience only; production relies on real env)
	_ = godotenv.Load()

	setupLogging()

	cfg, err := config.Load(envOr("CONFIG_PATH", "config.yaml"))
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}
	settings, err := store.Open(envOr("DB_PATH", "db.yaml"))
	if err != nil {
		slog.Error("settings load failed", slog.Any("err", err))
		os.Exit(1)
	}

	telemetry.Init()
	shutdownTracing, err := telemetry.InitTracing("vod-stamp", "1.0.0")
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdownTracing()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Journal (optional)
	var journal *db.Journal
	if cfg.DBDsn != "" {
		database, err := openJournal(ctx, cfg.DBDsn)
		if err != nil {
			slog.Error("journal unavailable", slog.Any("err", err))
			os.Exit(1)
		}
		defer func() {
			if err := database.Close(); err != nil {
				slog.Error("failed to close database", slog.Any("err", err))
			}
		}()
		journal = &db.Journal{DB: database}
	} else {
		slog.Info("journal disabled (no journal.dsn / DB_DSN)")
	}

	var archiver *archive.Archiver
	if cfg.ArchiveEnabled() {
		archiver, err = archive.New(ctx, cfg.ArchiveBucket, cfg.TwitchChannel, journal, archive.Options{
			Region:          cfg.ArchiveRegion,
			Endpoint:        cfg.ArchiveEndpoint,
			AccessKeyID:     cfg.ArchiveAccessKeyID,
			SecretAccessKey: cfg.ArchiveSecretAccessKey,
		})
		if err != nil {
			slog.Error("archive init failed", slog.Any("err", err))
			os.Exit(1)
		}
	}

	// Clients
	helix := &twitchapi.HelixClient{
		AppTokenSource: &twitchapi.TokenSource{ClientID: cfg.TwitchClientID, ClientSecret: cfg.TwitchClientSecret},
		ClientID:       cfg.TwitchClientID,
		HTTPClient:     &http.Client{Timeout: cfg.RequestTimeout},
	}
	discord := discordapi.New(cfg.DiscordBotToken, &http.Client{Timeout: cfg.RequestTimeout})
	irc := chat.NewConnector(cfg.TwitchBotUsername, cfg.TwitchOAuthToken, cfg.TwitchChannel)

	// Stream monitor
	state := &stream.State{}
	monitor := &stream.Monitor{
		Helix:   helix,
		Discord: discord,
		Resolver: &stream.ThreadResolver{
			Discord:        discord,
			Store:          settings,
			ChannelID:      cfg.DiscordVODChannelID,
			ThreadName:     cfg.DiscordThreadName,
			ScanLimit:      cfg.AnnouncementScanLimit,
			SettleDelay:    cfg.ThreadSettleDelay,
			RequestTimeout: cfg.RequestTimeout,
		},
		State:          state,
		Store:          settings,
		Channel:        cfg.TwitchChannel,
		LiveChannelID:  cfg.DiscordLiveChannelID,
		RequestTimeout: cfg.RequestTimeout,
	}
	var transitions *transitionJournal
	if journal != nil {
		var exports broadcastArchiver
		if archiver != nil {
			exports = archiver
		}
		transitions = newTransitionJournal(journal, exports, cfg.TwitchChannel)
		monitor.OnTransition = transitions.Handle
	}

	// Chat commands
	env := commands.Env{Chat: irc, Store: settings}
	timestamp := &commands.Timestamp{
		Env:         env,
		Prefix:      cfg.BookmarkPrefix,
		State:       state,
		Cooldown:    &commands.CooldownGate{},
		Threads:     discord,
		PostTimeout: cfg.RequestTimeout,
	}
	if journal != nil {
		timestamp.Journal = journal
	}
	dispatcher := commands.NewDispatcher(timestamp)
	for _, c := range commands.AdminCommands(env, cfg.AdminPrefix) {
		dispatcher.Register(c)
	}
	irc.OnMessage(func(ctx context.Context, msg *chat.Message) {
		dispatcher.Handle(ctx, msg)
	})

	monitorDone := make(chan struct{})
	go func() {
		defer close(monitorDone)
		monitor.Run(ctx)
	}()
	go func() {
		if err := irc.Run(ctx); err != nil {
			slog.Error("chat connector exited", slog.Any("err", err))
		}
	}()

	startPprof()

	var readJournal server.Journal
	if journal != nil {
		readJournal = journal
	}
	go func() {
		h := server.NewHandlers(state, monitor, readJournal, cfg.TwitchChannel)
		if err := server.Start(ctx, cfg.HTTPAddr, h); err != nil {
			slog.Error("http server exited with error", slog.Any("err", err))
		}
	}()

	slog.Info("bot started", slog.String("channel", cfg.TwitchChannel))
	<-ctx.Done()
	slog.Info("shutting down")

	// Stop taking new work, then let in-flight thread posts, journal writes and
	// exports finish.
	irc.OnMessage(nil)
	timestamp.Close()
	done := make(chan struct{})
	go func() {
		defer close(done)
		<-monitorDone
		if transitions != nil {
			transitions.Close()
			transitions.Wait()
		}
		timestamp.Wait()
	}()
	select {
	case <-done:
	case <-time.After(15 * time.Second):
		slog.Warn("timed out waiting for pending bookmark posts and exports")
	}
}

// setupLogging configures the default logger from LOG_LEVEL and LOG_FORMAT.
// Defaults: level=info, format=text.
func setupLogging() {
	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
	default:
		tmp := slog.New(slog.NewTextHandler(os.Stdout, nil))
		tmp.Warn("unknown LOG_LEVEL, using info", slog.String("value", os.Getenv("LOG_LEVEL")))
	}
	format := strings.ToLower(os.Getenv("LOG_FORMAT")) // text | json
	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	default:
		format = "text"
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))
	slog.Info("logger initialized", slog.String("level", lvl.String()), slog.String("format", format))
}

func openJournal(ctx context.Context, dsn string) (*sql.DB, error) {
	database, err := db.Connect(ctx, dsn)
	if err != nil {
		return nil, err
	}
	slog.Info("running database migrations", slog.String("component", "db_migrate"))
	if err := db.Migrate(ctx, database); err != nil {
		_ = database.Close()
		return nil, err
	}
	return database, nil
}

// startPprof enables profiling endpoints in debug mode (ENABLE_PPROF=1).
func startPprof() {
	if os.Getenv("ENABLE_PPROF") != "1" {
		return
	}
	addr := envOr("PPROF_ADDR", "localhost:6060")
	go func() {
		slog.Info("pprof profiling enabled", slog.String("addr", addr))
		srv := &http.Server{
			Addr:              addr,
			Handler:           nil, // default mux exposes /debug/pprof
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       10 * time.Second,
			WriteTimeout:      10 * time.Second,
			IdleTimeout:       60 * time.Second,
		}
		if err := srv.ListenAndServe(); err != nil {
			slog.Error("pprof server error", slog.Any("err", err))
		}
	}()
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
