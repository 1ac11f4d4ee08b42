package stream

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/onnwee/vod-stamp/store"
	"github.com/onnwee/vod-stamp/telemetry"
	"github.com/onnwee/vod-stamp/twitchapi"
)

// Defaults for the poll loop and live announcement.
const (
	DefaultPollInterval = 60 * time.Second
	DefaultLiveMessage  = "Went live: "
)

// Helix is the subset of the Twitch API the monitor polls.
type Helix interface {
	GetUserID(ctx context.Context, login string) (string, error)
	GetStreams(ctx context.Context, userID string) ([]twitchapi.Stream, error)
	ListVideos(ctx context.Context, userID, after string, first int) ([]twitchapi.VideoMeta, string, error)
}

// TransitionKind identifies what a poll observed.
type TransitionKind int

const (
	NoChange TransitionKind = iota
	WentLive
	WentOffline
)

func (k TransitionKind) String() string {
	switch k {
	case WentLive:
		return "live"
	case WentOffline:
		return "offline"
	default:
		return "none"
	}
}

// Transition describes the effect of one poll.
type Transition struct {
	Kind TransitionKind
	// Broadcast is the state after a WentLive transition, or the broadcast that
	// just ended for WentOffline.
	Broadcast     Snapshot
	ThreadCreated bool
	Title         string
}

// Monitor polls the Twitch API for the followed channel and drives thread resolution
// on live transitions. Poll is not reentrant; Run calls it sequentially.
type Monitor struct {
	Helix          Helix
	Discord        Discord
	Resolver       *ThreadResolver
	State          *State
	Store          *store.Store // streamStatusPollSpeed, liveMessage
	Channel        string
	LiveChannelID  string
	RequestTimeout time.Duration
	Logger         *slog.Logger

	// OnTransition, if set, is called after each committed transition.
	OnTransition func(ctx context.Context, t Transition)

	userID   string
	lastPoll atomic.Int64 // unix nanos of the last completed poll
}

func (m *Monitor) logger() *slog.Logger {
	if m.Logger != nil {
		return m.Logger
	}
	return slog.Default().With(slog.String("component", "stream_monitor"))
}

func (m *Monitor) timeout() time.Duration {
	if m.RequestTimeout > 0 {
		return m.RequestTimeout
	}
	return defaultRequestTimeout
}

// Interval returns the configured poll interval, re-read from the store so edits apply
// on the next cycle.
func (m *Monitor) Interval() time.Duration {
	if m.Store == nil {
		return DefaultPollInterval
	}
	secs := m.Store.Int("streamStatusPollSpeed", int(DefaultPollInterval/time.Second))
	if secs <= 0 {
		return DefaultPollInterval
	}
	return time.Duration(secs) * time.Second
}

// LastPoll returns when the last poll finished (successfully or not), zero before the first.
func (m *Monitor) LastPoll() time.Time {
	n := m.lastPoll.Load()
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}

// Run polls until ctx is cancelled. Errors are logged and never end the loop.
func (m *Monitor) Run(ctx context.Context) {
	log := m.logger()
	log.Info("stream monitor started", slog.String("channel", m.Channel))
	for {
		if _, err := m.Poll(ctx); err != nil && ctx.Err() == nil {
			log.Warn("poll failed", slog.Any("err", err))
		}
		select {
		case <-ctx.Done():
			log.Info("stream monitor stopped")
			return
		case <-time.After(m.Interval()):
		}
	}
}

// Poll runs one cycle. On error nothing is committed, so the same transition is
// detected again on the next cycle.
func (m *Monitor) Poll(ctx context.Context) (tr Transition, err error) {
	ctx = telemetry.WithCorrelation(ctx, telemetry.NewCorrelationID())
	ctx, span := telemetry.StartSpan(ctx, "stream", "stream.poll", attribute.String("channel", m.Channel))
	defer span.End()

	telemetry.TimeFunc(telemetry.PollDuration, func() {
		tr, err = m.poll(ctx)
	})
	telemetry.Inc(telemetry.PollCycles)
	if err != nil {
		telemetry.Inc(telemetry.PollErrors)
		telemetry.RecordError(span, err)
	} else {
		span.SetAttributes(attribute.String("transition", tr.Kind.String()))
		telemetry.SetSpanSuccess(span)
	}
	m.lastPoll.Store(time.Now().UnixNano())
	return tr, err
}

func (m *Monitor) poll(ctx context.Context) (Transition, error) {
	if m.userID == "" {
		cctx, cancel := context.WithTimeout(ctx, m.timeout())
		id, err := m.Helix.GetUserID(cctx, m.Channel)
		cancel()
		if err != nil {
			return Transition{}, fmt.Errorf("lookup user %s: %w", m.Channel, err)
		}
		m.userID = id
	}

	cctx, cancel := context.WithTimeout(ctx, m.timeout())
	streams, err := m.Helix.GetStreams(cctx, m.userID)
	cancel()
	if err != nil {
		return Transition{}, fmt.Errorf("get streams: %w", err)
	}

	cur := m.State.Snapshot()
	if len(streams) == 0 {
		if !cur.Live() {
			return Transition{}, nil
		}
		tr := Transition{Kind: WentOffline, Broadcast: m.State.End()}
		m.logger().Info("stream went offline", slog.Time("started_at", tr.Broadcast.StartedAt))
		m.committed(ctx, tr)
		return tr, nil
	}

	live := streams[0]
	if cur.Live() && cur.StartedAt.Equal(live.StartedAt) {
		return Transition{}, nil
	}
	return m.goLive(ctx, live)
}

func (m *Monitor) goLive(ctx context.Context, live twitchapi.Stream) (Transition, error) {
	log := telemetry.LoggerWithCorr(ctx).With(slog.String("component", "stream_monitor"), slog.Time("started_at", live.StartedAt))
	log.Info("stream went live", slog.String("title", live.Title))

	cctx, cancel := context.WithTimeout(ctx, m.timeout())
	videos, _, err := m.Helix.ListVideos(cctx, m.userID, "", 1)
	cancel()
	if err != nil {
		return Transition{}, fmt.Errorf("list videos: %w", err)
	}

	tr := Transition{Kind: WentLive, Title: live.Title}
	var recordingURL string
	var res Resolution
	if len(videos) > 0 {
		recordingURL = videos[0].URL
		res, err = m.Resolver.Resolve(ctx, recordingURL)
		if err != nil {
			return Transition{}, fmt.Errorf("resolve thread: %w", err)
		}
	} else {
		// Twitch publishes the archive a little after the stream starts; this broadcast
		// stays without a recording until the next live transition.
		log.Warn("no recording found for live broadcast")
	}

	// A new start time while still live means the stream restarted between two polls.
	// The previous broadcast ends here so its hook runs before the new one begins.
	if prev := m.State.Snapshot(); prev.Live() {
		log.Info("previous broadcast ended between polls", slog.Time("previous_started_at", prev.StartedAt))
		m.committed(ctx, Transition{Kind: WentOffline, Broadcast: prev})
	}

	m.State.Begin(live.StartedAt, recordingURL, res.ThreadID)
	tr.Broadcast = m.State.Snapshot()
	tr.ThreadCreated = res.Created

	if res.Created {
		m.announceLive(ctx, log)
	}
	m.committed(ctx, tr)
	return tr, nil
}

func (m *Monitor) announceLive(ctx context.Context, log *slog.Logger) {
	if m.Discord == nil || m.LiveChannelID == "" {
		return
	}
	text := DefaultLiveMessage
	if m.Store != nil {
		text = m.Store.String("liveMessage", DefaultLiveMessage)
	}
	text += " https://twitch.tv/" + m.Channel
	cctx, cancel := context.WithTimeout(ctx, m.timeout())
	defer cancel()
	if _, err := m.Discord.SendMessage(cctx, m.LiveChannelID, text); err != nil {
		log.Error("live announcement failed", slog.Any("err", err))
	}
}

func (m *Monitor) committed(ctx context.Context, tr Transition) {
	telemetry.IncVec(telemetry.Transitions, tr.Kind.String())
	telemetry.SetLive(tr.Kind == WentLive)
	if m.OnTransition != nil {
		m.OnTransition(ctx, tr)
	}
}
