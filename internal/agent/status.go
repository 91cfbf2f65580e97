package agent

import (
	"github.com/dennisdiepolder/monti/alertagent/internal/types"
	"github.com/rs/zerolog"
)

// StatusText maps a connection state to the text shown to the user
func StatusText(state types.ConnectionState) string {
	switch state {
	case types.StateConnecting:
		return "Connecting..."
	case types.StateConnected:
		return "Connected - Ready for alerts"
	case types.StateDisconnecting:
		return "Disconnecting..."
	case types.StateDisconnected:
		return "Disconnected - Retrying..."
	default:
		return "Stopped"
	}
}

// StatusReporter projects state transitions onto the status sink. It holds no state.
type StatusReporter struct {
	sink   StatusSink
	logger zerolog.Logger
}

// NewStatusReporter creates a reporter; sink may be nil
func NewStatusReporter(sink StatusSink, logger zerolog.Logger) *StatusReporter {
	return &StatusReporter{
		sink:   sink,
		logger: logger.With().Str("component", "status").Logger(),
	}
}

// Report forwards the text for state to the sink
func (r *StatusReporter) Report(state types.ConnectionState) {
	if r.sink == nil {
		return
	}
	safeCall(r.logger, "status", func() error { return r.sink.UpdateStatus(StatusText(state)) })
}
