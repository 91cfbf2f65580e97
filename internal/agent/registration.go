package agent

import (
	"encoding/json"
	"fmt"

	"github.com/dennisdiepolder/monti/alertagent/internal/prefs"
	"github.com/dennisdiepolder/monti/alertagent/internal/types"
)

// Registrar builds and sends the identity message for a new session
type Registrar struct {
	deviceClass string
	location    LocationSource
}

// NewRegistrar creates a registrar; location may be nil
func NewRegistrar(deviceClass string, location LocationSource) *Registrar {
	return &Registrar{deviceClass: deviceClass, location: location}
}

// Message builds a fresh registration message, re-reading the location label
func (r *Registrar) Message() types.AgentRegistration {
	label := ""
	if r.location != nil {
		label = r.location.LocationLabel()
	}
	if label == "" {
		label = prefs.DefaultLocationLabel
	}

	return types.AgentRegistration{
		Type:     types.MsgTypeRegistration,
		Device:   r.deviceClass,
		Location: label,
	}
}

// Register sends the registration message on sess
func (r *Registrar) Register(sess Session) error {
	data, err := json.Marshal(r.Message())
	if err != nil {
		return fmt.Errorf("marshal registration: %w", err)
	}
	if err := sess.Send(data); err != nil {
		return fmt.Errorf("send registration: %w", err)
	}
	return nil
}
