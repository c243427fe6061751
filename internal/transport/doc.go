// Package transport owns the physical WebSocket for the messaging
// client.
//
// The transport:
//   - Dials with a bounded connect timeout through gorilla/websocket
//   - Delivers open, message, and close events on one ordered channel
//   - Serializes writes under a write deadline
//   - Reports every teardown as exactly one terminal close event with
//     the close code and whether the close handshake completed
//
// Instances are single-use: the bridge dials a fresh transport per
// connection attempt and discards superseded ones.
package transport
