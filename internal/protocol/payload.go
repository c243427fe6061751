package protocol

import "encoding/json"

// Capabilities advertises the optional features this client implements.
type Capabilities struct {
	OfflineMode      bool `json:"offlineMode"`
	TypingIndicators bool `json:"typingIndicators"`
	MessageStatus    bool `json:"messageStatus"`
}

// Handshake is the payload of the first envelope sent after the socket
// opens.
type Handshake struct {
	ProtocolVersion    string       `json:"protocolVersion"`
	ClientCapabilities Capabilities `json:"clientCapabilities"`
}

// NewHandshake builds the handshake envelope announcing full client
// capabilities.
func NewHandshake() (Envelope, error) {
	return New(TypeHandshake, Handshake{
		ProtocolVersion: Version,
		ClientCapabilities: Capabilities{
			OfflineMode:      true,
			TypingIndicators: true,
			MessageStatus:    true,
		},
	})
}

// Broadcast change types. Each selects the state domain a partial update
// applies to.
const (
	ChangeGit        = "git"
	ChangeFileSystem = "fileSystem"
	ChangePrompt     = "prompt"
	ChangeConfig     = "config"
)

// BroadcastPayload is the data of a broadcast envelope.
type BroadcastPayload struct {
	ChangeType string          `json:"changeType"`
	Data       json.RawMessage `json:"data,omitempty"`
}

// ErrorPayload is the data of an error envelope from the host.
type ErrorPayload struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// TypingPayload is the data of a typing envelope.
type TypingPayload struct {
	ParticipantID string `json:"participantId"`
	Section       string `json:"section,omitempty"`
}

// StatusPayload is the data of a periodic status envelope.
type StatusPayload struct {
	State  string `json:"state"`
	Detail string `json:"detail,omitempty"`
}
