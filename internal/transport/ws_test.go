// Copyright 2026 Robert Macrae. All rights reserved.
// SPDX-License-Identifier: LicenseRef-Proprietary

package transport

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func setupTestServer(t *testing.T) (*httptest.Server, chan *WSAdapter, func()) {
	t.Helper()
	accepted := make(chan *WSAdapter, 4)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		adapter, err := Upgrade(w, r)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		accepted <- adapter
	})

	server := httptest.NewServer(mux)
	return server, accepted, server.Close
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
}

func TestEmitAndOnRoundTrip(t *testing.T) {
	server, accepted, cleanup := setupTestServer(t)
	defer cleanup()

	client, err := Dial(wsURL(server), nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer client.Close()

	var serverSide *WSAdapter
	select {
	case serverSide = <-accepted:
	case <-time.After(2 * time.Second):
		t.Fatal("server never accepted connection")
	}

	received := make(chan []json.RawMessage, 1)
	serverSide.On("greet", func(args []json.RawMessage, ack AckFunc) {
		received <- args
		if ack != nil {
			ack(json.RawMessage(`"hi back"`))
		}
	})

	ackCh := make(chan json.RawMessage, 1)
	err = client.Emit("greet", []any{"hello"}, func(args ...json.RawMessage) {
		if len(args) > 0 {
			ackCh <- args[0]
		}
	})
	if err != nil {
		t.Fatalf("emit failed: %v", err)
	}

	select {
	case args := <-received:
		if len(args) != 1 || string(args[0]) != `"hello"` {
			t.Fatalf("unexpected args: %v", args)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server never received event")
	}

	select {
	case ack := <-ackCh:
		if string(ack) != `"hi back"` {
			t.Fatalf("unexpected ack payload: %s", ack)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("client never received ack")
	}
}

func TestCloseTriggersDisconnectOnBothSides(t *testing.T) {
	server, accepted, cleanup := setupTestServer(t)
	defer cleanup()

	client, err := Dial(wsURL(server), nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}

	var serverSide *WSAdapter
	select {
	case serverSide = <-accepted:
	case <-time.After(2 * time.Second):
		t.Fatal("server never accepted connection")
	}

	disconnected := make(chan struct{}, 1)
	serverSide.OnDisconnect(func(error) { disconnected <- struct{}{} })
	clientDisconnected := make(chan struct{}, 1)
	client.OnDisconnect(func(error) { clientDisconnected <- struct{}{} })

	client.Close()

	select {
	case <-disconnected:
	case <-time.After(2 * time.Second):
		t.Fatal("server side never observed disconnect")
	}
	select {
	case <-clientDisconnected:
	case <-time.After(2 * time.Second):
		t.Fatal("client side never observed disconnect")
	}
}

func TestEmitAfterCloseReturnsErrClosed(t *testing.T) {
	server, _, cleanup := setupTestServer(t)
	defer cleanup()

	client, err := Dial(wsURL(server), nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	client.Close()

	if err := client.Emit("anything", nil, nil); err != ErrClosed {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}
