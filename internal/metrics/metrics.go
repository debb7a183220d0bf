// Package metrics counts external tool runs and per-channel stage outcomes for one batch.
// The registry is written once as a node_exporter textfile when the batch completes.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is safe for concurrent use. A nil *Metrics is valid and records nothing.
type Metrics struct {
	Registry *prometheus.Registry

	toolRuns     *prometheus.CounterVec
	channels     *prometheus.CounterVec
	scanAttempts prometheus.Counter
	stageSeconds *prometheus.GaugeVec
}

// New returns a Metrics with its own registry.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		toolRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "iptv_portal",
			Name:      "tool_runs_total",
			Help:      "External tool invocations by tool and outcome.",
		}, []string{"tool", "outcome"}),
		channels: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "iptv_portal",
			Name:      "channels_total",
			Help:      "Channels processed by stage and result.",
		}, []string{"stage", "result"}),
		scanAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "iptv_portal",
			Name:      "octet_scan_candidates_total",
			Help:      "Candidate hosts tested by the playback octet scan.",
		}),
		stageSeconds: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "iptv_portal",
			Name:      "stage_duration_seconds",
			Help:      "Wall time of the last run of each pipeline stage.",
		}, []string{"stage"}),
	}
	m.Registry.MustRegister(m.toolRuns, m.channels, m.scanAttempts, m.stageSeconds)
	return m
}

// ToolRun counts one ffprobe/ffmpeg invocation.
func (m *Metrics) ToolRun(tool, outcome string) {
	if m == nil {
		return
	}
	m.toolRuns.WithLabelValues(tool, outcome).Inc()
}

// Channel counts one channel leaving a stage with result (e.g. "resolved", "no_redirect").
func (m *Metrics) Channel(stage, result string) {
	if m == nil {
		return
	}
	m.channels.WithLabelValues(stage, result).Inc()
}

// ScanCandidate counts one host tried by the octet scan.
func (m *Metrics) ScanCandidate() {
	if m == nil {
		return
	}
	m.scanAttempts.Inc()
}

// ObserveStage records how long a stage took.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.stageSeconds.WithLabelValues(stage).Set(d.Seconds())
}

// WriteTextfile writes the registry to path in the text exposition format. "" is a no-op.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.Registry)
}
