// Copyright 2026 Robert Macrae. All rights reserved.
// SPDX-License-Identifier: LicenseRef-Proprietary

// Package rpc layers request/response procedure calls on top of a
// transport.Adapter. It generalizes the correlation-table pattern the CDP
// client uses to match websocket replies back to the call that sent them:
// the transport's pending-ack table (keyed by frame id) routes each reply to
// its Call, which is resolved by whichever of {ack, deadline, context
// cancellation, transport close} happens first.
package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/hyperint/annotator-hub/internal/transport"
)

// ErrorKind is the fixed taxonomy of failures an RPC call can surface. It is
// never raised as a transport or protocol error; callers turn it into
// tool-result text.
type ErrorKind string

const (
	KindNoBrowserConnected ErrorKind = "no-browser-connected"
	KindSessionAmbiguous   ErrorKind = "session-ambiguous"
	KindSessionNotFound    ErrorKind = "session-not-found"
	KindTransportClosed    ErrorKind = "transport-closed"
	KindTimeout            ErrorKind = "timeout"
	KindProcedureError     ErrorKind = "procedure-error"
	KindInvalidArguments   ErrorKind = "invalid-arguments"
	KindIOError            ErrorKind = "io-error"
)

// RPCError is the typed error carried in an Envelope's Err field.
type RPCError struct {
	Kind      ErrorKind `json:"kind"`
	Message   string    `json:"message"`
	Retriable bool      `json:"retriable,omitempty"`

	// Literal marks Message as already being the complete tool-result text
	// (e.g. a session-resolution error naming the cause, or the bridge's
	// not-connected message) rather than a bare cause to be wrapped behind
	// a tool-specific "Error:"-style prefix.
	Literal bool `json:"-"`
}

func (e *RPCError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// NewError builds an *RPCError, marking transport-closed and timeout kinds
// retriable since both recover on the next successful reconnect/attempt.
func NewError(kind ErrorKind, message string) *RPCError {
	return &RPCError{
		Kind:      kind,
		Message:   message,
		Retriable: kind == KindTransportClosed || kind == KindTimeout,
	}
}

// NewLiteralError builds an *RPCError whose Message is already full,
// presentable tool-result text and must be rendered verbatim, with no
// generic prefix added on top.
func NewLiteralError(kind ErrorKind, message string) *RPCError {
	e := NewError(kind, message)
	e.Literal = true
	return e
}

// Envelope is the tagged-variant result of a Call or a served procedure.
type Envelope struct {
	OK    bool            `json:"success"`
	Value json.RawMessage `json:"data,omitempty"`
	Err   *RPCError       `json:"-"`
}

// envelopeWire is the shape acks are actually encoded as on the wire,
// matching spec's {success, data} | {success: false, error: string}.
type envelopeWire struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// ProcHandler serves one procedure. Returning a non-nil *RPCError fails the
// call with that kind; otherwise result is marshaled as the ack payload.
type ProcHandler func(ctx context.Context, args []json.RawMessage) (any, *RPCError)

// Peer wraps one transport.Adapter with request/response semantics layered
// on top of its bare event/ack mechanism.
type Peer struct {
	adapter transport.Adapter

	mu       sync.Mutex
	handlers map[string]ProcHandler
	disposed bool
}

// NewPeer wraps adapter. The caller is expected to route every inbound
// event it wants served as an RPC procedure through Peer.Handle, one call
// per procedure name, before traffic starts flowing.
func NewPeer(adapter transport.Adapter) *Peer {
	return &Peer{adapter: adapter, handlers: make(map[string]ProcHandler)}
}

// Handle installs fn as the server for proc. Inbound events named proc are
// dispatched to it; the returned envelope is delivered back via ack.
func (p *Peer) Handle(proc string, fn ProcHandler) {
	p.mu.Lock()
	p.handlers[proc] = fn
	p.mu.Unlock()

	p.adapter.On(proc, func(args []json.RawMessage, ack transport.AckFunc) {
		result, rpcErr := fn(context.Background(), args)
		if ack == nil {
			return
		}
		wire := envelopeWire{Success: rpcErr == nil}
		if rpcErr != nil {
			wire.Success = false
			wire.Error = rpcErr.Error()
		} else if result != nil {
			data, err := json.Marshal(result)
			if err != nil {
				wire.Success = false
				wire.Error = fmt.Sprintf("marshal result: %v", err)
			} else {
				wire.Data = data
			}
		}
		payload, _ := json.Marshal(wire)
		ack(json.RawMessage(payload))
	})
}

// Call invokes proc on the remote peer and waits up to deadline for its ack.
// The race between the ack arriving, the deadline elapsing, ctx being
// cancelled, and Dispose being called is resolved exactly once: whichever
// fires first wins, and the others become no-ops.
func (p *Peer) Call(ctx context.Context, proc string, args []any, deadline time.Duration) (json.RawMessage, *RPCError) {
	p.mu.Lock()
	if p.disposed {
		p.mu.Unlock()
		return nil, NewError(KindTransportClosed, "peer is disposed")
	}
	p.mu.Unlock()

	type outcome struct {
		value json.RawMessage
		err   *RPCError
	}
	done := make(chan outcome, 1)
	var once sync.Once
	resolve := func(o outcome) {
		once.Do(func() { done <- o })
	}

	ack := func(raw ...json.RawMessage) {
		if len(raw) == 0 {
			resolve(outcome{err: NewError(KindTransportClosed, "connection closed before reply")})
			return
		}
		var wire envelopeWire
		if err := json.Unmarshal(raw[0], &wire); err != nil {
			resolve(outcome{err: NewError(KindProcedureError, "malformed reply: "+err.Error())})
			return
		}
		if !wire.Success {
			resolve(outcome{err: NewError(KindProcedureError, wire.Error)})
			return
		}
		resolve(outcome{value: wire.Data})
	}

	if err := p.adapter.Emit(proc, args, ack); err != nil {
		return nil, NewError(KindTransportClosed, err.Error())
	}

	timer := time.NewTimer(deadline)
	defer timer.Stop()

	select {
	case o := <-done:
		return o.value, o.err
	case <-timer.C:
		resolve(outcome{err: NewError(KindTimeout, fmt.Sprintf("%s timed out after %s", proc, deadline))})
		return nil, NewError(KindTimeout, fmt.Sprintf("%s timed out after %s", proc, deadline))
	case <-ctx.Done():
		resolve(outcome{err: NewError(KindTimeout, ctx.Err().Error())})
		return nil, NewError(KindTimeout, ctx.Err().Error())
	}
}

// Dispose marks the peer dead. Subsequent Calls fail immediately;
// already-in-flight Calls are not tracked here since each owns its own
// timer/select — disposal reaches them via the adapter's own disconnect,
// which the transport already turns into a closed ack channel.
func (p *Peer) Dispose() {
	p.mu.Lock()
	p.disposed = true
	p.mu.Unlock()
	p.adapter.Close()
}

// Adapter returns the underlying transport, for callers that need its ID or
// connect/disconnect hooks.
func (p *Peer) Adapter() transport.Adapter { return p.adapter }
