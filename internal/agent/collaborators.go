package agent

import (
	"errors"
	"fmt"
	"time"

	"github.com/dennisdiepolder/monti/alertagent/internal/types"
	"github.com/rs/zerolog"
)

var (
	// ErrSessionClosed is returned when writing to a session that has ended
	ErrSessionClosed = errors.New("session closed")
	// ErrEmptyUtterance is returned when there is nothing to speak
	ErrEmptyUtterance = errors.New("empty utterance")
	// ErrSpeechNotReady is returned when the speech engine is not initialised
	ErrSpeechNotReady = errors.New("speech engine not ready")
)

// AlertPresenter renders a delivered alert. Show must not block.
type AlertPresenter interface {
	Show(alert types.AlertPayload) error
}

// SpeechEngine speaks utterances. flushPending replaces anything queued or in progress.
type SpeechEngine interface {
	Ready() bool
	Speak(text string, flushPending bool) error
}

// HapticDevice plays a waveform of alternating off/on durations
type HapticDevice interface {
	Vibrate(pattern []time.Duration) error
}

// StatusSink displays a human-readable connection status
type StatusSink interface {
	UpdateStatus(text string) error
}

// LocationSource supplies the label sent in every registration
type LocationSource interface {
	LocationLabel() string
}

// Collaborators groups the external side-effect targets of the agent.
// Any of them may be nil; a nil collaborator is skipped.
type Collaborators struct {
	Presenter AlertPresenter
	Speech    SpeechEngine
	Haptics   HapticDevice
	Status    StatusSink
	Location  LocationSource
}

// safeCall runs a collaborator call, logging returned errors and recovered panics
func safeCall(logger zerolog.Logger, name string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s panicked: %v", name, r)
			logger.Error().Str("collaborator", name).Interface("panic", r).Msg("collaborator panicked")
		}
	}()

	if err = fn(); err != nil {
		logger.Error().Err(err).Str("collaborator", name).Msg("collaborator call failed")
	}
	return err
}
