// Copyright 2026 Robert Macrae. All rights reserved.
// SPDX-License-Identifier: LicenseRef-Proprietary

package rpc

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/hyperint/annotator-hub/internal/transport"
)

// fakeAdapter is a minimal in-memory transport.Adapter whose Emit behavior
// is controlled per-test via onEmit, letting each test simulate an
// immediate ack, a delayed ack, or silence (to exercise the timeout path).
type fakeAdapter struct {
	onEmit func(event string, args []any, ack transport.AckFunc)
}

func (f *fakeAdapter) ID() string { return "fake" }
func (f *fakeAdapter) Emit(event string, args []any, ack transport.AckFunc) error {
	if f.onEmit != nil {
		f.onEmit(event, args, ack)
	}
	return nil
}
func (f *fakeAdapter) On(string, transport.EventHandler) {}
func (f *fakeAdapter) OnDisconnect(func(error))          {}
func (f *fakeAdapter) OnConnect(func())                  {}
func (f *fakeAdapter) Close() error                       { return nil }

func TestCallSuccess(t *testing.T) {
	adapter := &fakeAdapter{
		onEmit: func(_ string, _ []any, ack transport.AckFunc) {
			payload, _ := json.Marshal(envelopeWire{Success: true, Data: json.RawMessage(`"ok"`)})
			ack(json.RawMessage(payload))
		},
	}
	peer := NewPeer(adapter)

	value, err := peer.Call(context.Background(), "ping", nil, time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(value) != `"ok"` {
		t.Fatalf("unexpected value: %s", value)
	}
}

func TestCallProcedureError(t *testing.T) {
	adapter := &fakeAdapter{
		onEmit: func(_ string, _ []any, ack transport.AckFunc) {
			payload, _ := json.Marshal(envelopeWire{Success: false, Error: "boom"})
			ack(json.RawMessage(payload))
		},
	}
	peer := NewPeer(adapter)

	_, err := peer.Call(context.Background(), "ping", nil, time.Second)
	if err == nil || err.Kind != KindProcedureError || err.Message != "boom" {
		t.Fatalf("expected procedure-error 'boom', got %v", err)
	}
}

func TestCallTimeout(t *testing.T) {
	adapter := &fakeAdapter{onEmit: func(string, []any, transport.AckFunc) {}} // never acks

	peer := NewPeer(adapter)
	_, err := peer.Call(context.Background(), "ping", nil, 10*time.Millisecond)
	if err == nil || err.Kind != KindTimeout {
		t.Fatalf("expected timeout, got %v", err)
	}
}

func TestCallLateAckAfterTimeoutIsDiscarded(t *testing.T) {
	var late transport.AckFunc
	adapter := &fakeAdapter{
		onEmit: func(_ string, _ []any, ack transport.AckFunc) {
			late = ack // stash it; invoke after the caller has already timed out
		},
	}
	peer := NewPeer(adapter)

	_, err := peer.Call(context.Background(), "ping", nil, 10*time.Millisecond)
	if err == nil || err.Kind != KindTimeout {
		t.Fatalf("expected timeout, got %v", err)
	}

	payload, _ := json.Marshal(envelopeWire{Success: true, Data: json.RawMessage(`"too late"`)})
	late(json.RawMessage(payload)) // must not panic or deadlock
}

func TestDisposeFailsSubsequentCalls(t *testing.T) {
	adapter := &fakeAdapter{}
	peer := NewPeer(adapter)
	peer.Dispose()

	_, err := peer.Call(context.Background(), "ping", nil, time.Second)
	if err == nil || err.Kind != KindTransportClosed {
		t.Fatalf("expected transport-closed, got %v", err)
	}
}

func TestHandleServesProcedure(t *testing.T) {
	var handler transport.EventHandler
	adapter := &fakeAdapter{}
	recordingOn := func(event string, h transport.EventHandler) { handler = h }

	peer := NewPeer(adapterWithOn{fakeAdapter: adapter, on: recordingOn})
	peer.Handle("echo", func(_ context.Context, args []json.RawMessage) (any, *RPCError) {
		return "echoed", nil
	})

	var ackPayload json.RawMessage
	handler(nil, func(args ...json.RawMessage) { ackPayload = args[0] })

	var wire envelopeWire
	if err := json.Unmarshal(ackPayload, &wire); err != nil {
		t.Fatalf("unmarshal ack payload: %v", err)
	}
	if !wire.Success || string(wire.Data) != `"echoed"` {
		t.Fatalf("unexpected wire envelope: %+v", wire)
	}
}

// adapterWithOn lets TestHandleServesProcedure capture the handler Handle
// installs, since fakeAdapter's own On is a no-op by default.
type adapterWithOn struct {
	*fakeAdapter
	on func(string, transport.EventHandler)
}

func (a adapterWithOn) On(event string, h transport.EventHandler) { a.on(event, h) }
