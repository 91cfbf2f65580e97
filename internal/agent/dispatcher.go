package agent

import (
	"encoding/json"
	"errors"

	"github.com/dennisdiepolder/monti/alertagent/internal/types"
	"github.com/rs/zerolog"
)

// Dispatcher routes inbound frames to triggers by envelope type.
// It never returns an error: a bad frame is logged, counted and discarded.
type Dispatcher struct {
	alerts    *AlertTrigger
	announcer *Announcer
	metrics   *Metrics
	logger    zerolog.Logger
}

// NewDispatcher creates a dispatcher
func NewDispatcher(alerts *AlertTrigger, announcer *Announcer, metrics *Metrics, logger zerolog.Logger) *Dispatcher {
	if metrics == nil {
		metrics = newMetrics()
	}
	return &Dispatcher{
		alerts:    alerts,
		announcer: announcer,
		metrics:   metrics,
		logger:    logger.With().Str("component", "dispatcher").Logger(),
	}
}

// Dispatch handles one inbound frame
func (d *Dispatcher) Dispatch(f Frame) {
	d.metrics.framesReceived.Add(1)

	if f.Kind == FrameBinary {
		// Reserved
		d.metrics.binaryFrames.Add(1)
		d.logger.Debug().Int("bytes", len(f.Data)).Msg("binary frame ignored")
		return
	}

	d.logger.Debug().RawJSON("frame", validOrQuoted(f.Data)).Msg("received message")

	var env types.Envelope
	if err := json.Unmarshal(f.Data, &env); err != nil {
		d.drop(DropMalformed, err, "")
		return
	}
	if env.Type == "" {
		d.drop(DropMissingType, nil, "")
		return
	}

	switch env.Type {
	case types.MsgTypeAlert:
		if d.alerts != nil {
			d.alerts.Trigger(env.Data)
		}
	case types.MsgTypeSpeak:
		d.handleSpeak(env.Data)
	default:
		d.drop(DropUnknownType, nil, env.Type)
	}
}

func (d *Dispatcher) handleSpeak(raw json.RawMessage) {
	if isAbsent(raw) {
		d.drop(DropMissingData, nil, types.MsgTypeSpeak)
		return
	}

	var data types.SpeakData
	if err := json.Unmarshal(raw, &data); err != nil {
		d.drop(DropMalformed, err, types.MsgTypeSpeak)
		return
	}

	if d.announcer == nil {
		return
	}
	if err := d.announcer.Announce(data.Text); errors.Is(err, ErrEmptyUtterance) {
		d.drop(DropEmptyText, nil, types.MsgTypeSpeak)
	}
}

func (d *Dispatcher) drop(reason DropReason, err error, msgType string) {
	d.metrics.recordDrop(reason)
	ev := d.logger.Warn().Str("reason", string(reason))
	if err != nil {
		ev = ev.Err(err)
	}
	if msgType != "" {
		ev = ev.Str("type", msgType)
	}
	ev.Msg("frame discarded")
}

// validOrQuoted keeps debug logging well-formed for frames that are not JSON
func validOrQuoted(data []byte) []byte {
	if json.Valid(data) {
		return data
	}
	quoted, _ := json.Marshal(string(data))
	return quoted
}
