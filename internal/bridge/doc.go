// Package bridge assembles the client: one WebSocket transport at a
// time, watched by the health monitor, revived by the reconnection
// engine, buffered by the message queues, and fed by the inbound
// router.
//
// The client moves through six phases: disconnected, connecting,
// connected, recovering, offline, and failed. Every transition is
// published to the state sink and the Events stream. A clean host
// close (code 1000) ends the session for good; policy closes put the
// client in the failed state until a manual retry; everything else
// starts the reconnection cycle.
package bridge
