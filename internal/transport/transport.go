// Copyright 2026 Robert Macrae. All rights reserved.
// SPDX-License-Identifier: LicenseRef-Proprietary

// Package transport abstracts a bidirectional, message-oriented connection
// to a single peer. It is used identically for browser sessions, bridge
// attachments, and the outbound bridge-to-hub connection: none of those
// callers know or care that the wire implementation is a WebSocket.
package transport

import "encoding/json"

// AckFunc delivers a one-shot acknowledgement payload back to whichever side
// sent the event this ack belongs to. Calling it more than once is a no-op
// after the first call.
type AckFunc func(args ...json.RawMessage)

// EventHandler handles one inbound event. ack is nil when the sender did not
// request an acknowledgement.
type EventHandler func(args []json.RawMessage, ack AckFunc)

// Adapter is a connection-oriented, message-oriented duplex channel to one
// peer. Implementations must preserve per-event payload order on a single
// connection. There is no delivery guarantee across reconnects: a reconnect
// is a new connection with a new ID.
type Adapter interface {
	// ID returns an opaque, connection-scoped identifier.
	ID() string

	// Emit sends a named event with positional arguments. If ack is non-nil,
	// the remote side may deliver exactly one acknowledgement payload that
	// invokes ack. Emit itself does not block on that ack arriving.
	Emit(event string, args []any, ack AckFunc) error

	// On registers a handler invoked once per matching inbound event.
	// Registering for the same event name again replaces the prior handler.
	On(event string, handler EventHandler)

	// OnDisconnect registers a handler invoked exactly once when the
	// connection is lost, locally or remotely.
	OnDisconnect(handler func(reason error))

	// OnConnect registers a handler invoked once the connection's read/write
	// pumps are live and ready to carry traffic.
	OnConnect(handler func())

	// Close terminates the connection from this side.
	Close() error
}
