// Copyright 2026 Robert Macrae. All rights reserved.
// SPDX-License-Identifier: LicenseRef-Proprietary

package bridge

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestConnectFailureReturnsError(t *testing.T) {
	log := zap.NewNop()
	client := NewClient("ws://127.0.0.1:1/ws", log)
	if err := client.Connect(200 * time.Millisecond); err == nil {
		t.Fatal("expected connect to an unreachable address to fail")
	}
}

func TestCallWithoutConnectionTriggersReconnectAndFails(t *testing.T) {
	log := zap.NewNop()
	client := &Client{serverURL: "ws://127.0.0.1:1/ws", log: log, wake: make(chan struct{}, 1), done: make(chan struct{})}

	_, err := client.Call(context.Background(), "mcp:list-sessions", nil, time.Second)
	if err != ErrNotConnected {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
	select {
	case <-client.wake:
	default:
		t.Fatal("expected Call to signal an immediate reconnect")
	}
}
