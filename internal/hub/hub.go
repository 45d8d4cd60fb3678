// Copyright 2026 Robert Macrae. All rights reserved.
// SPDX-License-Identifier: LicenseRef-Proprietary

// Package hub implements the session-brokering server: it accepts websocket
// connections from annotation-toolbar browser pages and from bridge
// processes, classifies each by an advertised client type, and wires it
// into either the Session Registry or the bridge forwarding path.
package hub

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hyperint/annotator-hub/internal/registry"
	"github.com/hyperint/annotator-hub/internal/rpc"
	"github.com/hyperint/annotator-hub/internal/transport"
)

// clientType values advertised by an inbound connection via the ?type= query
// parameter on the /ws endpoint.
const (
	clientTypeBrowser = "browser"
	clientTypeBridge  = "bridge"
)

// Hub owns the session registry and every live bridge connection.
type Hub struct {
	log      *zap.Logger
	registry *registry.Registry

	bridgesMu sync.RWMutex
	bridges   map[string]*rpc.Peer
}

// New constructs a Hub with an empty registry.
func New(log *zap.Logger) *Hub {
	return &Hub{
		log:      log,
		registry: registry.New(),
		bridges:  make(map[string]*rpc.Peer),
	}
}

// Registry exposes the session registry, e.g. for a hub.Backend.
func (h *Hub) Registry() *registry.Registry { return h.registry }

// HandleWebSocket upgrades the request and classifies the resulting
// connection by its ?type= query parameter.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	adapter, err := transport.Upgrade(w, r)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	switch r.URL.Query().Get("type") {
	case clientTypeBridge:
		h.attachBridge(adapter)
	default:
		h.attachBrowser(adapter)
	}
}

// attachBrowser wires a browser-page connection: registers it in the
// session registry, installs the procedures the hub serves to it
// (list-sessions, ping), subscribes to its page-context reports, and emits
// the connected handshake carrying the freshly allocated session id.
func (h *Hub) attachBrowser(adapter transport.Adapter) {
	peer := rpc.NewPeer(adapter)
	sessionID := h.registry.Register(peer)
	log := h.log.With(zap.String("sessionId", sessionID), zap.String("connId", adapter.ID()))
	log.Info("browser connected")

	peer.Handle("list-sessions", func(ctx context.Context, args []json.RawMessage) (any, *rpc.RPCError) {
		return h.listSessions(), nil
	})
	peer.Handle("ping", func(ctx context.Context, args []json.RawMessage) (any, *rpc.RPCError) {
		return "pong", nil
	})

	adapter.On("page-context-changed", func(args []json.RawMessage, ack transport.AckFunc) {
		var payload struct {
			URL   string `json:"url"`
			Title string `json:"title"`
		}
		if len(args) > 0 {
			_ = json.Unmarshal(args[0], &payload)
		}
		h.registry.UpdateMetadata(sessionID, payload.URL, payload.Title)
	})

	adapter.OnDisconnect(func(reason error) {
		log.Info("browser disconnected", zap.Error(reason))
		h.registry.Remove(sessionID)
	})

	if err := adapter.Emit("connected", []any{map[string]string{"sessionId": sessionID}}, nil); err != nil {
		log.Warn("failed to emit connected handshake", zap.Error(err))
	}
}

// attachBridge wires a bridge process's auxiliary connection: one named
// event per MCP tool, each carrying (session-id-or-null, ...args) and
// expecting an ack. The bridge exposes no procedures of its own; every
// handler here forwards into a browser session through the registry.
func (h *Hub) attachBridge(adapter transport.Adapter) {
	peer := rpc.NewPeer(adapter)
	log := h.log.With(zap.String("connId", adapter.ID()))
	log.Info("bridge connected")

	h.bridgesMu.Lock()
	h.bridges[adapter.ID()] = peer
	h.bridgesMu.Unlock()

	adapter.OnDisconnect(func(reason error) {
		log.Info("bridge disconnected", zap.Error(reason))
		h.bridgesMu.Lock()
		delete(h.bridges, adapter.ID())
		h.bridgesMu.Unlock()
	})

	register := func(tool, proc string, deadline time.Duration) {
		peer.Handle("mcp:"+tool, h.forwardHandler(proc, deadline))
	}

	peer.Handle("mcp:list-sessions", func(ctx context.Context, args []json.RawMessage) (any, *rpc.RPCError) {
		return h.listSessions(), nil
	})
	register("get-page-context", "get-page-context", 10*time.Second)
	register("trigger-selection", "trigger-selection", 10*time.Second)
	register("get-selected-elements", "get-selected-elements", 15*time.Second)
	register("capture-screenshot", "capture-screenshot", 30*time.Second)
	register("clear-selection", "clear-selection", 10*time.Second)
	register("inject-css", "inject-css", 10*time.Second)
	register("inject-js", "inject-js", 15*time.Second)
	register("get-console", "get-console", 15*time.Second)
}

// forwardHandler builds a bridge-event handler that resolves a session from
// the event's first argument (a session id or null) and forwards the
// remaining arguments to the browser procedure proc with the given deadline.
func (h *Hub) forwardHandler(proc string, deadline time.Duration) rpc.ProcHandler {
	return func(ctx context.Context, args []json.RawMessage) (any, *rpc.RPCError) {
		var sessionID *string
		if len(args) > 0 {
			var raw *string
			if err := json.Unmarshal(args[0], &raw); err == nil {
				sessionID = raw
			}
		}

		browserPeer, rpcErr := h.registry.Resolve(sessionID)
		if rpcErr != nil {
			return nil, rpcErr
		}

		callArgs := make([]any, 0, len(args)-1)
		for _, a := range args[1:] {
			callArgs = append(callArgs, json.RawMessage(a))
		}

		result, rpcErr := browserPeer.Call(ctx, proc, callArgs, deadline)
		if rpcErr != nil {
			return nil, rpcErr
		}
		return json.RawMessage(result), nil
	}
}

func (h *Hub) listSessions() []registry.Metadata {
	entries := h.registry.List()
	out := make([]registry.Metadata, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Meta)
	}
	return out
}

// Shutdown disposes every session and bridge peer.
func (h *Hub) Shutdown() {
	h.registry.Shutdown()

	h.bridgesMu.Lock()
	bridges := h.bridges
	h.bridges = make(map[string]*rpc.Peer)
	h.bridgesMu.Unlock()
	for _, p := range bridges {
		p.Dispose()
	}
}
