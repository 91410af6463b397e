// Package telemetry provides Prometheus metrics and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	MessagesReceived  *prometheus.CounterVec
	MessagesPersisted prometheus.Counter
	PersistFailures   prometheus.Counter
	BroadcastsSent    prometheus.Counter
	RoomJoins         prometheus.Counter
	JoinRejections    prometheus.Counter

	// Histograms (seconds)
	PersistDuration prometheus.Observer
	HTTPDuration    *prometheus.HistogramVec

	// Gauges
	OpenRoomsGauge   prometheus.Gauge
	ConnectionsGauge prometheus.Gauge
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		MessagesReceived = promauto.NewCounterVec(prometheus.CounterOpts{Name: "relay_messages_received_total", Help: "Messages accepted for ingestion, by platform"}, []string{"platform"})
		MessagesPersisted = promauto.NewCounter(prometheus.CounterOpts{Name: "relay_messages_persisted_total", Help: "Messages written to the store"})
		PersistFailures = promauto.NewCounter(prometheus.CounterOpts{Name: "relay_persist_failures_total", Help: "Message writes that failed"})
		BroadcastsSent = promauto.NewCounter(prometheus.CounterOpts{Name: "relay_broadcasts_sent_total", Help: "Message frames delivered to room subscribers"})
		RoomJoins = promauto.NewCounter(prometheus.CounterOpts{Name: "relay_room_joins_total", Help: "Successful room joins"})
		JoinRejections = promauto.NewCounter(prometheus.CounterOpts{Name: "relay_join_rejections_total", Help: "Room joins rejected by access control"})
		PersistDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "relay_persist_duration_seconds", Help: "Message persistence duration seconds", Buckets: prometheus.DefBuckets})
		HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{Name: "relay_http_request_duration_seconds", Help: "HTTP request duration seconds", Buckets: prometheus.DefBuckets}, []string{"method", "status"})
		OpenRoomsGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "relay_open_rooms", Help: "Rooms with at least one live subscriber"})
		ConnectionsGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "relay_connections", Help: "Live realtime connections"})
	})
}

// CountReceived bumps the per-platform ingestion counter if metrics are initialized.
func CountReceived(platform string) {
	if MessagesReceived != nil {
		MessagesReceived.WithLabelValues(platform).Inc()
	}
}

// SetOpenRooms records the current number of non-empty rooms.
func SetOpenRooms(n int) {
	if OpenRoomsGauge != nil {
		OpenRoomsGauge.Set(float64(n))
	}
}

// SetConnections records the current number of live realtime connections.
func SetConnections(n int) {
	if ConnectionsGauge != nil {
		ConnectionsGauge.Set(float64(n))
	}
}

// ObserveHTTP records one served request's duration.
func ObserveHTTP(method string, status int, d time.Duration) {
	if HTTPDuration != nil {
		HTTPDuration.WithLabelValues(method, strconv.Itoa(status)).Observe(d.Seconds())
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

// WithCorrelation returns a new context embedding correlation id (if absent) and the id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	v := ctx.Value(corrKey)
	if s, ok := v.(string); ok {
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
