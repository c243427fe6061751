// Package queue buffers outbound envelopes while the connection is
// unavailable and tracks requests that expect a reply.
//
// Two bounded queues with different overflow behavior:
//   - Live queue: holds messages during brief reconnect gaps. When
//     full the oldest entry is evicted to keep the freshest state.
//   - Offline queue: holds messages while the network is down. When
//     full new messages are rejected so nothing silently vanishes.
//
// On reconnect the live queue flushes first in small spaced batches
// to avoid overwhelming the host, then the offline queue drains in
// full with each envelope tagged as having waited offline.
//
// The pending tracker pairs replies with their requests by id and
// fails them with a timeout when the host never answers. A periodic
// sweeper evicts pending entries, delivery statuses, and dedup
// signatures that outlive their TTLs.
package queue
