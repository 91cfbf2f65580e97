package device

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// LogHaptics stands in for a vibration motor on hosts without one
type LogHaptics struct {
	logger zerolog.Logger
}

// NewLogHaptics creates a haptic device that logs each pattern
func NewLogHaptics(logger zerolog.Logger) *LogHaptics {
	return &LogHaptics{logger: logger.With().Str("component", "haptics").Logger()}
}

// Vibrate logs an alternating wait/vibrate pattern
func (h *LogHaptics) Vibrate(pattern []time.Duration) error {
	for i, d := range pattern {
		if d < 0 {
			return fmt.Errorf("pattern step %d is negative: %v", i, d)
		}
	}
	h.logger.Info().Durs("pattern", pattern).Msg("vibrate")
	return nil
}
