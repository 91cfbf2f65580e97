package types

import "time"

// ConnectionState represents the supervisor's view of the control connection
type ConnectionState string

const (
	StateIdle          ConnectionState = "idle"
	StateConnecting    ConnectionState = "connecting"
	StateConnected     ConnectionState = "connected"
	StateDisconnecting ConnectionState = "disconnecting"
	StateDisconnected  ConnectionState = "disconnected"
)

// Alert rendering defaults used when the inbound payload omits a field
const (
	DefaultCodeName     = "EMERGENCY ALERT"
	DefaultCodeColor    = "#3B82F6"
	DefaultLocationName = "Unknown Location"
	DefaultPriority     = "HIGH"
)

// AlertPayload is a fully populated alert, ready for presentation.
// Every field is set; absent inbound fields are replaced by the defaults above.
type AlertPayload struct {
	CodeName     string `json:"codeName"`
	CodeColor    string `json:"codeColor"` // #RRGGBB
	LocationName string `json:"locationName"`
	Message      string `json:"message"`
	Priority     string `json:"priority"`
	VoiceEnabled bool   `json:"voiceEnabled"`
	VoiceText    string `json:"voiceText"`
}

// Presentation is one delivered alert as held by the presenter
type Presentation struct {
	ID           string       `json:"id"`
	Alert        AlertPayload `json:"alert"`
	ReceivedAt   time.Time    `json:"receivedAt"`
	Acknowledged bool         `json:"acknowledged"`
	AckedAt      *time.Time   `json:"ackedAt,omitempty"`
}

// AgentStatus represents the current connection status reported by the agent
type AgentStatus struct {
	State       ConnectionState `json:"state"`
	Text        string          `json:"text"`
	Since       time.Time       `json:"since"`
	Location    string          `json:"location,omitempty"`
	Endpoint    string          `json:"endpoint,omitempty"`
	ActiveCount int             `json:"activeAlerts"`
}
