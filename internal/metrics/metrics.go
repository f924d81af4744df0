package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "live_sessions_active",
		Help: "Currently open live sessions",
	})

	SessionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "live_sessions_total",
		Help: "Live sessions by outcome",
	}, []string{"outcome"})

	ConnectDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "live_connect_duration_seconds",
		Help:    "Time from Connect to setup handshake complete",
		Buckets: []float64{0.1, 0.2, 0.5, 1.0, 2.0, 5.0, 10.0},
	})

	AudioChunksSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "live_audio_chunks_sent_total",
		Help: "Microphone chunks transmitted",
	})

	AudioChunksReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "live_audio_chunks_received_total",
		Help: "Synthesized audio chunks received",
	})

	PlaybackUnderruns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "playback_underruns_total",
		Help: "Segments scheduled after the playback cursor had already passed",
	})

	PlaybackInterrupts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "playback_interrupts_total",
		Help: "Barge-in interruptions that flushed scheduled audio",
	})

	SnapshotsSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "snapshot_frames_sent_total",
		Help: "Video frame snapshots transmitted",
	})

	ToolCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "live_tool_calls_total",
		Help: "Tool calls by name and result",
	}, []string{"tool", "result"})

	AskDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ask_duration_seconds",
		Help:    "Ask path latency including retries",
		Buckets: []float64{0.2, 0.5, 1.0, 2.0, 3.0, 5.0, 10.0},
	})

	AskRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ask_retries_total",
		Help: "Retried ask generation attempts",
	})

	Errors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "live_errors_total",
		Help: "Error counts by stage",
	}, []string{"stage", "error_type"})
)
