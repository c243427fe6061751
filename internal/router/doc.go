// Package router parses inbound frames and routes each envelope to
// the component that owns it.
//
// A few types are intercepted before the dispatch table is consulted:
//   - pong feeds the health monitor
//   - response and ack resolve pending requests by id
//   - error rejects the matching pending request, penalizes the
//     health score, and produces an error report
//   - broadcast fans partial state updates out by changeType
//   - typing maintains the who-is-typing registry
//
// Everything else goes through handlers registered per type. Unknown
// types are counted and ignored so newer hosts can keep talking to
// older clients.
package router
