// Package reconnect implements the reconnection engine.
//
// The engine:
//   - Schedules attempts on an exponential backoff with uniform jitter,
//     floored at the base delay and capped at the max delay
//   - Gives up after a fixed attempt ceiling; only a manual retry
//     resets the counter
//   - Parks on a fixed 5s poll while the network is reported offline,
//     without burning attempts, and dials immediately when it returns
//   - Supports an immediate manual retry that leaves the counter alone
package reconnect
