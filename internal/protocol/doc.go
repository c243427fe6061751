// Package protocol defines the wire format spoken between the control-panel
// client and its host workspace process.
//
// The protocol:
//   - Wraps every message in a JSON envelope (type, id, data, timestamp)
//   - Opens each session with a handshake announcing protocol version 2.0
//     and client capabilities
//   - Classifies envelope types for queueing, deduplication, and reply
//     tracking
//   - Maps WebSocket close codes onto the reconnect policy
package protocol
