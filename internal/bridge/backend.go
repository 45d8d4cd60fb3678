// Copyright 2026 Robert Macrae. All rights reserved.
// SPDX-License-Identifier: LicenseRef-Proprietary

package bridge

import (
	"context"
	"encoding/json"
	"time"

	"github.com/hyperint/annotator-hub/internal/registry"
	"github.com/hyperint/annotator-hub/internal/rpc"
)

// Backend implements mcptools.Backend by forwarding every call to the hub
// as a named "mcp:<tool>" auxiliary event over the bridge's Client.
type Backend struct {
	client *Client
}

// NewBackend returns a Backend bound to client, for mounting the stdio MCP
// front.
func NewBackend(client *Client) *Backend { return &Backend{client: client} }

func (b *Backend) call(ctx context.Context, tool string, sessionID *string, args []any, deadline time.Duration) (json.RawMessage, *rpc.RPCError) {
	callArgs := append([]any{sessionID}, args...)
	envelope, err := b.client.Call(ctx, "mcp:"+tool, callArgs, deadline)
	if err != nil {
		return nil, rpc.NewLiteralError(rpc.KindTransportClosed, "Not connected to server. Reconnecting...")
	}
	return envelope.Value, envelope.Err
}

// ListSessions has no meaningful immediate deadline on a remote call, so it
// uses the same default as the other quick reads.
func (b *Backend) ListSessions() []registry.Metadata {
	data, rpcErr := b.call(context.Background(), "list-sessions", nil, nil, 10*time.Second)
	if rpcErr != nil || len(data) == 0 {
		return nil
	}
	var sessions []registry.Metadata
	_ = json.Unmarshal(data, &sessions)
	return sessions
}

func (b *Backend) GetPageContext(ctx context.Context, sessionID *string) (json.RawMessage, *rpc.RPCError) {
	return b.call(ctx, "get-page-context", sessionID, nil, 10*time.Second)
}

func (b *Backend) SelectFeedback(ctx context.Context, sessionID *string, args map[string]any) (json.RawMessage, *rpc.RPCError) {
	return b.call(ctx, "trigger-selection", sessionID, []any{args}, 10*time.Second)
}

func (b *Backend) GetFeedback(ctx context.Context, sessionID *string, fields []string) (json.RawMessage, *rpc.RPCError) {
	return b.call(ctx, "get-selected-elements", sessionID, []any{fields}, 15*time.Second)
}

func (b *Backend) CaptureScreenshot(ctx context.Context, sessionID *string, args map[string]any) (json.RawMessage, *rpc.RPCError) {
	return b.call(ctx, "capture-screenshot", sessionID, []any{args}, 30*time.Second)
}

func (b *Backend) ClearFeedback(ctx context.Context, sessionID *string) (json.RawMessage, *rpc.RPCError) {
	return b.call(ctx, "clear-selection", sessionID, nil, 10*time.Second)
}

func (b *Backend) InjectCSS(ctx context.Context, sessionID *string, css string) (json.RawMessage, *rpc.RPCError) {
	return b.call(ctx, "inject-css", sessionID, []any{css}, 10*time.Second)
}

func (b *Backend) InjectJS(ctx context.Context, sessionID *string, code string) (json.RawMessage, *rpc.RPCError) {
	return b.call(ctx, "inject-js", sessionID, []any{code}, 15*time.Second)
}

func (b *Backend) GetConsole(ctx context.Context, sessionID *string, clear bool) (json.RawMessage, *rpc.RPCError) {
	return b.call(ctx, "get-console", sessionID, []any{clear}, 15*time.Second)
}
