package protocol

// WebSocket close codes with a defined reconnect policy.
const (
	CloseNormal          = 1000
	CloseGoingAway       = 1001
	CloseProtocolError   = 1002
	CloseUnsupportedData = 1003
	CloseAbnormal        = 1006
	CloseInvalidPayload  = 1007
	ClosePolicyViolation = 1008
	CloseMandatoryExt    = 1010
)

// ExpectsReply reports whether envelopes of this type are tracked as
// pending requests until a response or ack arrives.
func ExpectsReply(t Type) bool {
	switch t {
	case TypeCommand, TypeGit, TypeFileSystem, TypePrompt, TypeConfig:
		return true
	}
	return false
}

// Immediate reports whether this type is only meaningful at send time.
// Immediate envelopes are never queued: when the connection is down they
// are dropped instead.
func Immediate(t Type) bool {
	return t == TypePing || t == TypeTyping
}

// Dedupable reports whether an equivalent envelope already waiting in a
// queue makes this one redundant.
func Dedupable(t Type) bool {
	return t == TypeStatus
}

// RetryableClose reports whether a close with this code should trigger
// reconnection. Normal closure ends the session on purpose; the protocol
// violation family would only reproduce the same failure on a new
// connection.
func RetryableClose(code int) bool {
	switch code {
	case CloseNormal, CloseProtocolError, CloseUnsupportedData,
		CloseInvalidPayload, ClosePolicyViolation, CloseMandatoryExt:
		return false
	}
	return true
}

// FatalClose reports whether this close code marks the session failed
// rather than merely over.
func FatalClose(code int) bool {
	return !RetryableClose(code) && code != CloseNormal
}
