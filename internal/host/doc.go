// Package host implements a loopback development host.
//
// The host speaks the client's envelope protocol over a WebSocket at
// /ws and exposes a JSON health endpoint at /healthz. It exists so the
// client can be exercised end to end without a production workspace
// behind it:
//   - Answers pings with pongs
//   - Answers reply-expecting envelopes with an executed response and
//     acks id-carrying status reports
//   - Relays typing indicators to the other connected sessions
//   - Emits periodic state broadcasts, rotating through the change
//     types, and pushes an initial snapshot after each handshake
package host
