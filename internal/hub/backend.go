// Copyright 2026 Robert Macrae. All rights reserved.
// SPDX-License-Identifier: LicenseRef-Proprietary

package hub

import (
	"context"
	"encoding/json"
	"time"

	"github.com/hyperint/annotator-hub/internal/registry"
	"github.com/hyperint/annotator-hub/internal/rpc"
)

// Backend implements mcptools.Backend directly against the hub's in-process
// registry, calling straight through a session's RPC peer with no
// intermediate transport hop.
type Backend struct {
	h *Hub
}

// NewBackend returns a Backend bound to hub h, for mounting the HTTP MCP
// front.
func NewBackend(h *Hub) *Backend { return &Backend{h: h} }

func (b *Backend) ListSessions() []registry.Metadata {
	return b.h.listSessions()
}

func (b *Backend) call(ctx context.Context, sessionID *string, proc string, args []any, deadline time.Duration) (json.RawMessage, *rpc.RPCError) {
	peer, rpcErr := b.h.registry.Resolve(sessionID)
	if rpcErr != nil {
		return nil, rpcErr
	}
	return peer.Call(ctx, proc, args, deadline)
}

func (b *Backend) GetPageContext(ctx context.Context, sessionID *string) (json.RawMessage, *rpc.RPCError) {
	return b.call(ctx, sessionID, "get-page-context", nil, 10*time.Second)
}

func (b *Backend) SelectFeedback(ctx context.Context, sessionID *string, args map[string]any) (json.RawMessage, *rpc.RPCError) {
	return b.call(ctx, sessionID, "trigger-selection", []any{args}, 10*time.Second)
}

func (b *Backend) GetFeedback(ctx context.Context, sessionID *string, fields []string) (json.RawMessage, *rpc.RPCError) {
	return b.call(ctx, sessionID, "get-selected-elements", []any{fields}, 15*time.Second)
}

func (b *Backend) CaptureScreenshot(ctx context.Context, sessionID *string, args map[string]any) (json.RawMessage, *rpc.RPCError) {
	return b.call(ctx, sessionID, "capture-screenshot", []any{args}, 30*time.Second)
}

func (b *Backend) ClearFeedback(ctx context.Context, sessionID *string) (json.RawMessage, *rpc.RPCError) {
	return b.call(ctx, sessionID, "clear-selection", nil, 10*time.Second)
}

func (b *Backend) InjectCSS(ctx context.Context, sessionID *string, css string) (json.RawMessage, *rpc.RPCError) {
	return b.call(ctx, sessionID, "inject-css", []any{css}, 10*time.Second)
}

func (b *Backend) InjectJS(ctx context.Context, sessionID *string, code string) (json.RawMessage, *rpc.RPCError) {
	return b.call(ctx, sessionID, "inject-js", []any{code}, 15*time.Second)
}

func (b *Backend) GetConsole(ctx context.Context, sessionID *string, clear bool) (json.RawMessage, *rpc.RPCError) {
	return b.call(ctx, sessionID, "get-console", []any{clear}, 15*time.Second)
}
