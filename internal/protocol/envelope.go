package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Version is the protocol version announced in the handshake.
const Version = "2.0"

// Errors
var (
	ErrMissingType = errors.New("envelope missing type")
)

// Type identifies the kind of payload an envelope carries.
type Type string

// Envelope types understood by client and host.
const (
	TypeHandshake  Type = "handshake"
	TypeCommand    Type = "command"
	TypeResponse   Type = "response"
	TypeBroadcast  Type = "broadcast"
	TypeStatus     Type = "status"
	TypeError      Type = "error"
	TypePing       Type = "ping"
	TypePong       Type = "pong"
	TypeAck        Type = "ack"
	TypeTyping     Type = "typing"
	TypeGit        Type = "git"
	TypeFileSystem Type = "fileSystem"
	TypePrompt     Type = "prompt"
	TypeConfig     Type = "config"
)

// Envelope is the wire format for every message in both directions.
type Envelope struct {
	Type            Type            `json:"type"`
	ID              string          `json:"id,omitempty"`
	Data            json.RawMessage `json:"data,omitempty"`
	Timestamp       int64           `json:"timestamp,omitempty"` // Unix milliseconds
	ProtocolVersion string          `json:"protocolVersion,omitempty"`
	WasOffline      bool            `json:"wasOffline,omitempty"` // Set on messages replayed from the offline queue
}

// New builds an envelope of the given type with data marshaled as the
// payload. Types that expect a reply are assigned a correlation id.
func New(t Type, data any) (Envelope, error) {
	env := Envelope{
		Type:      t,
		Timestamp: NowMillis(),
	}

	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return Envelope{}, fmt.Errorf("marshal %s payload: %w", t, err)
		}
		env.Data = raw
	}

	if ExpectsReply(t) {
		env.ID = uuid.NewString()
	}

	return env, nil
}

// NewPing builds a heartbeat probe. The id correlates the pong.
func NewPing() Envelope {
	return Envelope{
		Type:      TypePing,
		ID:        uuid.NewString(),
		Timestamp: NowMillis(),
	}
}

// NewPong answers a ping, echoing its id.
func NewPong(ping Envelope) Envelope {
	return Envelope{
		Type:      TypePong,
		ID:        ping.ID,
		Timestamp: NowMillis(),
	}
}

// NewAck acknowledges receipt of the envelope with the given id.
func NewAck(id string) Envelope {
	return Envelope{
		Type:      TypeAck,
		ID:        id,
		Timestamp: NowMillis(),
	}
}

// EnsureID assigns a fresh id if the envelope has none, and returns it.
func (e *Envelope) EnsureID() string {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	return e.ID
}

// Encode marshals the envelope for the wire.
func (e Envelope) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// Decode parses a wire message into an envelope. Only the type field is
// required.
func Decode(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Type == "" {
		return Envelope{}, ErrMissingType
	}
	return env, nil
}

// UnmarshalData unmarshals the envelope payload into v.
func UnmarshalData(e Envelope, v any) error {
	if len(e.Data) == 0 {
		return fmt.Errorf("%s envelope has no data", e.Type)
	}
	return json.Unmarshal(e.Data, v)
}

// NowMillis returns the current time in the timestamp unit used on the
// wire (Unix milliseconds).
func NowMillis() int64 {
	return time.Now().UnixMilli()
}

// Time converts the envelope timestamp to a time.Time. A zero timestamp
// yields the zero time.
func (e Envelope) Time() time.Time {
	if e.Timestamp == 0 {
		return time.Time{}
	}
	return time.UnixMilli(e.Timestamp)
}
