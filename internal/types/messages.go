package types

import "encoding/json"

// Message types carried in the envelope "type" field
const (
	MsgTypeRegistration = "agent-registration"
	MsgTypeAlert        = "alert"
	MsgTypeSpeak        = "speak"
)

// AgentRegistration is sent from agent to endpoint on every successful connect
type AgentRegistration struct {
	Type     string `json:"type"` // "agent-registration"
	Device   string `json:"device"`
	Location string `json:"location"`
}

// Envelope is the outer structure of every inbound frame.
// Data is decoded by the handler for Type, not by the dispatcher.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// AlertData is the inbound "alert" payload as sent on the wire.
// Pointer fields distinguish absent values from empty ones.
type AlertData struct {
	CodeName     *string `json:"codeName"`
	CodeColor    *string `json:"codeColor"`
	LocationName *string `json:"locationName"`
	Message      *string `json:"message"`
	Priority     *string `json:"priority"`
	VoiceEnabled *bool   `json:"voiceEnabled"`
	VoiceText    *string `json:"voiceText"`
}

// SpeakData is the inbound "speak" payload
type SpeakData struct {
	Text string `json:"text"`
}
