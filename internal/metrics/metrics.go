// Package metrics provides Prometheus metrics for the voice client.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "arunika_client"

// Metrics holds all Prometheus metrics for one client process. Each instance
// owns its registry so tests can build as many as they like.
type Metrics struct {
	registry *prometheus.Registry

	// Outbound audio
	FramesTotal     *prometheus.CounterVec
	SamplesCaptured prometheus.Counter
	PoolAllocations prometheus.Counter

	// Inbound events
	EventsTotal      *prometheus.CounterVec
	DecodeFailures   prometheus.Counter
	ChunksDropped    prometheus.Counter
	TTSSamplesQueued prometheus.Counter

	// Playback
	PlaybackTransitions *prometheus.CounterVec
	Playing             prometheus.Gauge

	// Pending commands
	CommandsTotal *prometheus.CounterVec

	// Credentials
	RefreshesTotal *prometheus.CounterVec

	// Sessions
	SessionsTotal   *prometheus.CounterVec
	SessionsActive  prometheus.Gauge
	SessionDuration prometheus.Histogram
}

// New creates and registers all metrics on a fresh registry
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		FramesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_total",
			Help:      "Total number of outbound audio frames by outcome",
		}, []string{"outcome"}),
		SamplesCaptured: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "samples_captured_total",
			Help:      "Total number of microphone samples pushed into the pump",
		}),
		PoolAllocations: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pool_allocations_total",
			Help:      "Total number of frame buffers allocated because the pool was empty",
		}),

		EventsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Total number of inbound server events dispatched",
		}, []string{"type"}),
		DecodeFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decode_failures_total",
			Help:      "Total number of inbound messages that could not be decoded",
		}),
		ChunksDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tts_chunks_dropped_total",
			Help:      "Total number of TTS chunks discarded after an interruption",
		}),
		TTSSamplesQueued: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tts_samples_queued_total",
			Help:      "Total number of TTS samples handed to playback",
		}),

		PlaybackTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "playback_transitions_total",
			Help:      "Total number of playback state transitions",
		}, []string{"to"}),
		Playing: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "playback_active",
			Help:      "1 while assistant audio is playing",
		}),

		CommandsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Total number of session commands by kind and result",
		}, []string{"kind", "result"}),

		RefreshesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "credential_refreshes_total",
			Help:      "Total number of credential refresh attempts by result",
		}, []string{"result"}),

		SessionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Total number of sessions ended by final status",
		}, []string{"status"}),
		SessionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of currently open sessions",
		}),
		SessionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_duration_seconds",
			Help:      "Duration of voice sessions in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
		}),
	}
}

// Registry exposes the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// The Record methods are no-ops on a nil *Metrics.

// RecordFrame records one finalized outbound frame
func (m *Metrics) RecordFrame(outcome string) {
	if m == nil {
		return
	}
	m.FramesTotal.WithLabelValues(outcome).Inc()
}

// RecordCapture records samples delivered by the microphone
func (m *Metrics) RecordCapture(samples int) {
	if m == nil {
		return
	}
	m.SamplesCaptured.Add(float64(samples))
}

// RecordPoolAllocations adds newly allocated frame buffers
func (m *Metrics) RecordPoolAllocations(n int) {
	if m == nil {
		return
	}
	if n > 0 {
		m.PoolAllocations.Add(float64(n))
	}
}

// RecordEvent records a dispatched inbound event
func (m *Metrics) RecordEvent(eventType string) {
	if m == nil {
		return
	}
	m.EventsTotal.WithLabelValues(eventType).Inc()
}

// RecordDecodeFailure records an inbound message that failed to decode
func (m *Metrics) RecordDecodeFailure() {
	if m == nil {
		return
	}
	m.DecodeFailures.Inc()
}

// RecordChunkDropped records a TTS chunk ignored during an interruption
func (m *Metrics) RecordChunkDropped() {
	if m == nil {
		return
	}
	m.ChunksDropped.Inc()
}

// RecordTTSSamples records samples handed to the speaker
func (m *Metrics) RecordTTSSamples(n int) {
	if m == nil {
		return
	}
	m.TTSSamplesQueued.Add(float64(n))
}

// RecordPlayback records a playback transition
func (m *Metrics) RecordPlayback(to string, playing bool) {
	if m == nil {
		return
	}
	m.PlaybackTransitions.WithLabelValues(to).Inc()
	if playing {
		m.Playing.Set(1)
	} else {
		m.Playing.Set(0)
	}
}

// RecordCommand records a session command outcome: sent, queued, flushed or rejected
func (m *Metrics) RecordCommand(kind, result string) {
	if m == nil {
		return
	}
	m.CommandsTotal.WithLabelValues(kind, result).Inc()
}

// RecordRefresh records a credential refresh outcome
func (m *Metrics) RecordRefresh(result string) {
	if m == nil {
		return
	}
	m.RefreshesTotal.WithLabelValues(result).Inc()
}

// RecordSessionStart records a session opening
func (m *Metrics) RecordSessionStart() {
	if m == nil {
		return
	}
	m.SessionsActive.Inc()
}

// RecordSessionEnd records a session ending
func (m *Metrics) RecordSessionEnd(status string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.SessionsActive.Dec()
	m.SessionsTotal.WithLabelValues(status).Inc()
	m.SessionDuration.Observe(durationSeconds)
}
