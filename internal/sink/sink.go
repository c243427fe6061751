package sink

import (
	"encoding/json"
	"time"
)

// ConnectionUpdate is the partial connection-state record pushed to the
// state sink on every phase change.
type ConnectionUpdate struct {
	Phase       string  `json:"phase"`
	Attempt     int     `json:"attempt"`
	HealthScore int     `json:"healthScore"`
	LatencyEMA  float64 `json:"latencyEma"`
	Error       string  `json:"error,omitempty"`
}

// State receives partial updates keyed by broadcast change type. The
// client calls these; it never renders anything itself.
type State interface {
	UpdateConnection(ConnectionUpdate)
	UpdateGit(json.RawMessage)
	UpdateFileSystem(json.RawMessage)
	UpdatePrompt(json.RawMessage)
	UpdateConfig(json.RawMessage)
}

// Notifier receives user-facing notification requests on state
// transitions and terminal errors.
type Notifier interface {
	Success(title, message string)
	Warning(title, message string)
	Error(title, message string)
}

// Error categories used in reporter records.
const (
	CategoryTransport = "transport"
	CategoryTimeout   = "timeout"
	CategoryProtocol  = "protocol"
	CategoryPolicy    = "policy"
	CategoryCapacity  = "capacity"
	CategoryHost      = "host"
)

// Record is a structured error report.
type Record struct {
	Type      string    `json:"type"`
	Category  string    `json:"category"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorReporter receives structured error records for connection and
// transport failures. Optional: the client works without one.
type ErrorReporter interface {
	Report(Record)
}

// NopState is a State that discards all updates.
type NopState struct{}

func (NopState) UpdateConnection(ConnectionUpdate) {}
func (NopState) UpdateGit(json.RawMessage)         {}
func (NopState) UpdateFileSystem(json.RawMessage)  {}
func (NopState) UpdatePrompt(json.RawMessage)      {}
func (NopState) UpdateConfig(json.RawMessage)      {}

// NopNotifier is a Notifier that discards all notifications.
type NopNotifier struct{}

func (NopNotifier) Success(title, message string) {}
func (NopNotifier) Warning(title, message string) {}
func (NopNotifier) Error(title, message string)   {}

// NopReporter is an ErrorReporter that discards all records.
type NopReporter struct{}

func (NopReporter) Report(Record) {}
