package agent

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/dennisdiepolder/monti/alertagent/internal/types"
	"github.com/rs/zerolog"
)

// AlertVibrationPattern is played on every alert: silence, buzz, pause, buzz
var AlertVibrationPattern = []time.Duration{
	0,
	500 * time.Millisecond,
	200 * time.Millisecond,
	500 * time.Millisecond,
}

var (
	codeColorPattern = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)

	errMissingAlertData = errors.New("alert data absent")
)

// ParseAlert decodes an inbound alert payload, filling every absent or
// unusable field with its default. The returned payload is always complete;
// err describes what had to be defaulted away and is informational only.
func ParseAlert(raw json.RawMessage) (types.AlertPayload, error) {
	var data types.AlertData
	var err error

	if isAbsent(raw) {
		err = errMissingAlertData
	} else if uerr := json.Unmarshal(raw, &data); uerr != nil {
		// Type mismatches leave the other fields decoded; keep what arrived
		err = uerr
	}

	alert := types.AlertPayload{
		CodeName:     stringOr(data.CodeName, types.DefaultCodeName),
		CodeColor:    stringOr(data.CodeColor, types.DefaultCodeColor),
		LocationName: stringOr(data.LocationName, types.DefaultLocationName),
		Message:      stringOr(data.Message, ""),
		Priority:     strings.ToUpper(stringOr(data.Priority, types.DefaultPriority)),
		VoiceText:    stringOr(data.VoiceText, ""),
	}
	if data.VoiceEnabled != nil {
		alert.VoiceEnabled = *data.VoiceEnabled
	}
	if !codeColorPattern.MatchString(alert.CodeColor) {
		alert.CodeColor = types.DefaultCodeColor
	}

	return alert, err
}

func isAbsent(raw json.RawMessage) bool {
	trimmed := strings.TrimSpace(string(raw))
	return trimmed == "" || trimmed == "null"
}

func stringOr(v *string, def string) string {
	if v == nil {
		return def
	}
	if s := strings.TrimSpace(*v); s != "" {
		return s
	}
	return def
}

// AlertTrigger fans one alert out to presentation, haptics and speech.
// The three effects are isolated from each other.
type AlertTrigger struct {
	presenter AlertPresenter
	haptics   HapticDevice
	announcer *Announcer
	metrics   *Metrics
	logger    zerolog.Logger
}

// NewAlertTrigger creates an alert trigger; any collaborator may be nil
func NewAlertTrigger(presenter AlertPresenter, haptics HapticDevice, announcer *Announcer, metrics *Metrics, logger zerolog.Logger) *AlertTrigger {
	if metrics == nil {
		metrics = newMetrics()
	}
	return &AlertTrigger{
		presenter: presenter,
		haptics:   haptics,
		announcer: announcer,
		metrics:   metrics,
		logger:    logger.With().Str("component", "alert").Logger(),
	}
}

// Trigger handles the data of one "alert" envelope
func (t *AlertTrigger) Trigger(raw json.RawMessage) {
	alert, err := ParseAlert(raw)
	if err != nil {
		t.logger.Warn().Err(err).Msg("alert payload incomplete, using defaults")
	}

	t.logger.Info().
		Str("code", alert.CodeName).
		Str("location", alert.LocationName).
		Str("priority", alert.Priority).
		Msg("alert received")

	if t.presenter != nil {
		if safeCall(t.logger, "presenter", func() error { return t.presenter.Show(alert) }) == nil {
			t.metrics.alertsDelivered.Add(1)
		}
	}

	if t.haptics != nil {
		// The motor driver may block for the length of the waveform
		go safeCall(t.logger, "haptics", func() error { return t.haptics.Vibrate(AlertVibrationPattern) })
	}

	if alert.VoiceEnabled && alert.VoiceText != "" && t.announcer != nil {
		t.announcer.Announce(alert.VoiceText)
	}
}
