// Package telemetry provides Prometheus metrics and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	PollCycles         prometheus.Counter
	PollErrors         prometheus.Counter
	Transitions        *prometheus.CounterVec // kind=live|offline
	Announcements      prometheus.Counter
	ThreadsReused      prometheus.Counter
	Bookmarks          *prometheus.CounterVec // outcome=accepted|offline|denied|blacklisted|cooldown
	ThreadPostFailures prometheus.Counter
	CommandsHandled    *prometheus.CounterVec // command=<name>
	ArchiveUploads     *prometheus.CounterVec // result=ok|error

	// Histograms (seconds)
	PollDuration prometheus.Observer

	// Gauges
	LiveGauge prometheus.Gauge // 1=live,0=offline
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		PollCycles = promauto.NewCounter(prometheus.CounterOpts{Name: "stamp_poll_cycles_total", Help: "Number of stream status poll cycles"})
		PollErrors = promauto.NewCounter(prometheus.CounterOpts{Name: "stamp_poll_errors_total", Help: "Number of poll cycles aborted by an API error"})
		Transitions = promauto.NewCounterVec(prometheus.CounterOpts{Name: "stamp_transitions_total", Help: "Detected live/offline transitions"}, []string{"kind"})
		Announcements = promauto.NewCounter(prometheus.CounterOpts{Name: "stamp_announcements_total", Help: "VOD announcements posted with a new thread"})
		ThreadsReused = promauto.NewCounter(prometheus.CounterOpts{Name: "stamp_threads_reused_total", Help: "Broadcasts whose announcement was already posted"})
		Bookmarks = promauto.NewCounterVec(prometheus.CounterOpts{Name: "stamp_bookmarks_total", Help: "Bookmark command attempts by outcome"}, []string{"outcome"})
		ThreadPostFailures = promauto.NewCounter(prometheus.CounterOpts{Name: "stamp_thread_post_failures_total", Help: "Background thread posts that failed"})
		CommandsHandled = promauto.NewCounterVec(prometheus.CounterOpts{Name: "stamp_commands_total", Help: "Chat lines handled by command"}, []string{"command"})
		ArchiveUploads = promauto.NewCounterVec(prometheus.CounterOpts{Name: "stamp_archive_uploads_total", Help: "Bookmark archive uploads by result"}, []string{"result"})
		PollDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "stamp_poll_duration_seconds", Help: "Poll cycle duration seconds", Buckets: prometheus.DefBuckets})
		LiveGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "stamp_stream_live", Help: "Stream live=1 offline=0"})
	})
}

// SetLive sets the live gauge to 1 if live else 0.
func SetLive(live bool) {
	if LiveGauge == nil {
		return
	}
	if live {
		LiveGauge.Set(1)
	} else {
		LiveGauge.Set(0)
	}
}

// Inc increments c if metrics are initialized.
func Inc(c prometheus.Counter) {
	if c != nil {
		c.Inc()
	}
}

// IncVec increments the labelled child of v if metrics are initialized.
func IncVec(v *prometheus.CounterVec, label string) {
	if v != nil {
		v.WithLabelValues(label).Inc()
	}
}

// TimeFunc measures the duration of fn and records in observer if non-nil.
func TimeFunc(obs prometheus.Observer, fn func()) time.Duration {
	start := time.Now()
	fn()
	d := time.Since(start)
	if obs != nil {
		obs.Observe(d.Seconds())
	}
	return d
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// NewCorrelationID returns a fresh random id.
func NewCorrelationID() string { return uuid.New().String() }

// WithCorrelation returns a new context embedding the correlation id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	if s, ok := ctx.Value(corrKey).(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
