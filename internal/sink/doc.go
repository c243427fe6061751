// Package sink defines the collaborator interfaces the messaging client
// pushes into: an application state store, a user notifier, and an
// optional error reporter. No-op implementations are provided so every
// collaborator can be absent.
package sink
