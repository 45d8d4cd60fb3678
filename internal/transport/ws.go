// Copyright 2026 Robert Macrae. All rights reserved.
// SPDX-License-Identifier: LicenseRef-Proprietary

package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// ErrClosed is returned by Emit once the adapter has been closed.
var ErrClosed = errors.New("transport: connection closed")

// frame is the wire envelope for every message. Event carries a reply when
// Ack is true, matched back to the originating Emit by ID; otherwise it is a
// normal named event, optionally itself expecting a reply (ID != 0).
type frame struct {
	Event string            `json:"event"`
	ID    uint64            `json:"id,omitempty"`
	Ack   bool              `json:"ack,omitempty"`
	Args  []json.RawMessage `json:"args,omitempty"`
}

const writeQueueDepth = 64

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// WSAdapter implements Adapter over a single *websocket.Conn. One writer
// goroutine owns the connection so concurrent Emit calls never interleave
// writes on the wire, the same single-writer convention the pty hub uses for
// its own websocket connections.
type WSAdapter struct {
	id   string
	conn *websocket.Conn

	sendMu sync.Mutex // guards send against use-after-close
	send   chan frame

	ackMu   sync.Mutex
	nextID  uint64
	pending map[uint64]AckFunc

	handlersMu sync.RWMutex
	handlers   map[string]EventHandler

	closeOnce  sync.Once
	closed     chan struct{}
	onDisconnect func(error)
	onConnect    func()
}

// Upgrade upgrades an HTTP request to a WebSocket and wraps it as an Adapter.
// The returned adapter's read/write pumps are already running.
func Upgrade(w http.ResponseWriter, r *http.Request) (*WSAdapter, error) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("transport: upgrade failed: %w", err)
	}
	return newAdapter(conn), nil
}

// Dial opens an outbound WebSocket connection and wraps it as an Adapter.
// Used by the bridge process to open its auxiliary connection to the hub.
func Dial(url string, header http.Header) (*WSAdapter, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.Dial(url, header)
	if err != nil {
		return nil, fmt.Errorf("transport: dial failed: %w", err)
	}
	return newAdapter(conn), nil
}

func newAdapter(conn *websocket.Conn) *WSAdapter {
	a := &WSAdapter{
		id:      uuid.NewString(),
		conn:    conn,
		send:    make(chan frame, writeQueueDepth),
		pending: make(map[uint64]AckFunc),
		handlers: make(map[string]EventHandler),
		closed:  make(chan struct{}),
	}
	go a.writePump()
	go a.readPump()
	return a
}

func (a *WSAdapter) ID() string { return a.id }

func (a *WSAdapter) OnDisconnect(handler func(reason error)) { a.onDisconnect = handler }
func (a *WSAdapter) OnConnect(handler func()) {
	a.onConnect = handler
	if handler != nil {
		go handler()
	}
}

func (a *WSAdapter) On(event string, handler EventHandler) {
	a.handlersMu.Lock()
	defer a.handlersMu.Unlock()
	a.handlers[event] = handler
}

// Emit marshals args and sends them as a named event. If ack is non-nil a
// frame ID is allocated and the remote side's reply is routed to ack.
func (a *WSAdapter) Emit(event string, args []any, ack AckFunc) error {
	raw := make([]json.RawMessage, len(args))
	for i, v := range args {
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("transport: marshal arg %d for %q: %w", i, event, err)
		}
		raw[i] = b
	}

	select {
	case <-a.closed:
		return ErrClosed
	default:
	}

	f := frame{Event: event, Args: raw}
	if ack != nil {
		a.ackMu.Lock()
		a.nextID++
		id := a.nextID
		a.pending[id] = ack
		a.ackMu.Unlock()
		f.ID = id
	}

	select {
	case a.send <- f:
		return nil
	case <-a.closed:
		if ack != nil {
			a.ackMu.Lock()
			delete(a.pending, f.ID)
			a.ackMu.Unlock()
		}
		return ErrClosed
	}
}

func (a *WSAdapter) Close() error {
	var err error
	a.closeOnce.Do(func() {
		close(a.closed)
		err = a.conn.Close()
		a.failPending(ErrClosed)
	})
	return err
}

func (a *WSAdapter) failPending(reason error) {
	a.ackMu.Lock()
	pending := a.pending
	a.pending = make(map[uint64]AckFunc)
	a.ackMu.Unlock()
	_ = reason
	for _, ack := range pending {
		ack() // no payload: caller distinguishes "never acked" from deadline via its own timeout path
	}
}

func (a *WSAdapter) writePump() {
	for {
		select {
		case f := <-a.send:
			a.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := a.conn.WriteJSON(f); err != nil {
				// Closing the conn makes readPump fail and run teardown, so
				// the disconnect handler fires once, from readPump only.
				a.conn.Close()
				return
			}
		case <-a.closed:
			return
		}
	}
}

func (a *WSAdapter) readPump() {
	for {
		_, payload, err := a.conn.ReadMessage()
		if err != nil {
			a.teardown(err)
			return
		}

		var f frame
		if err := json.Unmarshal(payload, &f); err != nil {
			continue // malformed frame from a misbehaving peer; drop and keep reading
		}

		if f.Ack {
			a.ackMu.Lock()
			ack, ok := a.pending[f.ID]
			if ok {
				delete(a.pending, f.ID)
			}
			a.ackMu.Unlock()
			if ok {
				ack(f.Args...)
			}
			continue
		}

		a.handlersMu.RLock()
		handler := a.handlers[f.Event]
		a.handlersMu.RUnlock()
		if handler == nil {
			continue
		}

		var ackFn AckFunc
		if f.ID != 0 {
			replyID := f.ID
			ackFn = func(args ...json.RawMessage) {
				reply := frame{Event: f.Event, ID: replyID, Ack: true, Args: args}
				select {
				case a.send <- reply:
				case <-a.closed:
				}
			}
		}
		handler(f.Args, ackFn)
	}
}

func (a *WSAdapter) teardown(reason error) {
	a.closeOnce.Do(func() {
		close(a.closed)
		a.conn.Close()
		a.failPending(reason)
	})
	if a.onDisconnect != nil {
		a.onDisconnect(reason)
	}
}
