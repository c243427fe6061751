// Package health implements the heartbeat health monitor.
//
// The monitor:
//   - Sends an envelope ping on an interval that adapts to the score
//     (widened when healthy, narrowed when degraded)
//   - Arms a pong deadline per ping and reports a missed deadline as a
//     heartbeat timeout
//   - Maintains a latency EMA, a sample ring buffer, and the 0-100
//     health score
//   - Pauses while the hosting document is hidden and resumes with an
//     immediate ping
package health
