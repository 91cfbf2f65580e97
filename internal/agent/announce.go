package agent

import (
	"strings"

	"github.com/rs/zerolog"
)

// Announcer forwards utterances to the speech engine, always flushing
// whatever was queued before.
type Announcer struct {
	engine  SpeechEngine
	metrics *Metrics
	logger  zerolog.Logger
}

// NewAnnouncer creates an announcer; engine may be nil
func NewAnnouncer(engine SpeechEngine, metrics *Metrics, logger zerolog.Logger) *Announcer {
	if metrics == nil {
		metrics = newMetrics()
	}
	return &Announcer{
		engine:  engine,
		metrics: metrics,
		logger:  logger.With().Str("component", "speech").Logger(),
	}
}

// Announce speaks text, replacing any utterance in progress
func (a *Announcer) Announce(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyUtterance
	}
	if a.engine == nil {
		return ErrSpeechNotReady
	}

	ready := false
	if err := safeCall(a.logger, "speech", func() error {
		ready = a.engine.Ready()
		return nil
	}); err != nil {
		return err
	}
	if !ready {
		a.logger.Warn().Str("text", text).Msg("speech engine not ready, skipping announcement")
		return ErrSpeechNotReady
	}

	if err := safeCall(a.logger, "speech", func() error { return a.engine.Speak(text, true) }); err != nil {
		return err
	}
	a.metrics.utterances.Add(1)
	a.logger.Debug().Str("text", text).Msg("announcement spoken")
	return nil
}
