package agent

import (
	"sync"
	"sync/atomic"
)

// DropReason names why an inbound frame was discarded
type DropReason string

const (
	DropMalformed   DropReason = "malformed"
	DropMissingType DropReason = "missing_type"
	DropUnknownType DropReason = "unknown_type"
	DropMissingData DropReason = "missing_data"
	DropEmptyText   DropReason = "empty_text"
)

// Metrics holds agent counters
type Metrics struct {
	connectAttempts atomic.Int64
	sessionsOpened  atomic.Int64
	registrations   atomic.Int64
	framesReceived  atomic.Int64
	binaryFrames    atomic.Int64
	alertsDelivered atomic.Int64
	utterances      atomic.Int64

	mu    sync.Mutex
	drops map[DropReason]int64
}

func newMetrics() *Metrics {
	return &Metrics{drops: make(map[DropReason]int64)}
}

func (m *Metrics) recordDrop(reason DropReason) {
	m.mu.Lock()
	m.drops[reason]++
	m.mu.Unlock()
}

// Dropped returns the number of frames discarded for reason
func (m *Metrics) Dropped(reason DropReason) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.drops[reason]
}

// Snapshot returns the counters keyed by Prometheus metric name
func (m *Metrics) Snapshot() map[string]interface{} {
	out := map[string]interface{}{
		"alertagent_connect_attempts_total":  m.connectAttempts.Load(),
		"alertagent_sessions_opened_total":   m.sessionsOpened.Load(),
		"alertagent_registrations_total":     m.registrations.Load(),
		"alertagent_frames_received_total":   m.framesReceived.Load(),
		"alertagent_binary_frames_total":     m.binaryFrames.Load(),
		"alertagent_alerts_delivered_total":  m.alertsDelivered.Load(),
		"alertagent_utterances_spoken_total": m.utterances.Load(),
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for reason, n := range m.drops {
		out[`alertagent_frames_dropped_total{reason="`+string(reason)+`"}`] = n
	}
	return out
}
