// Copyright 2026 Robert Macrae. All rights reserved.
// SPDX-License-Identifier: LicenseRef-Proprietary

// Package mcptools registers the fixed annotator tool catalog against an
// mcp-go server. It is deliberately backend-agnostic: the hub's HTTP front
// and the bridge's stdio front register the identical catalog against two
// different Backend implementations, following the registerTool/wrapTool
// split browserNerd's MCP server uses to keep tool wiring separate from
// tool-specific logic.
package mcptools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/hyperint/annotator-hub/internal/registry"
	"github.com/hyperint/annotator-hub/internal/rpc"
	"github.com/hyperint/annotator-hub/internal/screenshot"
)

// Backend is the browser-procedure surface a tool call is ultimately served
// by: either the hub's in-process registry or the bridge's forwarding
// connection to the hub.
type Backend interface {
	ListSessions() []registry.Metadata
	GetPageContext(ctx context.Context, sessionID *string) (json.RawMessage, *rpc.RPCError)
	SelectFeedback(ctx context.Context, sessionID *string, args map[string]any) (json.RawMessage, *rpc.RPCError)
	GetFeedback(ctx context.Context, sessionID *string, fields []string) (json.RawMessage, *rpc.RPCError)
	CaptureScreenshot(ctx context.Context, sessionID *string, args map[string]any) (json.RawMessage, *rpc.RPCError)
	ClearFeedback(ctx context.Context, sessionID *string) (json.RawMessage, *rpc.RPCError)
	InjectCSS(ctx context.Context, sessionID *string, css string) (json.RawMessage, *rpc.RPCError)
	InjectJS(ctx context.Context, sessionID *string, code string) (json.RawMessage, *rpc.RPCError)
	GetConsole(ctx context.Context, sessionID *string, clear bool) (json.RawMessage, *rpc.RPCError)
}

// ToolNames lists the fixed tool catalog, for surfaces (like the hub's
// /mcp/info endpoint) that describe the catalog without a live server.
var ToolNames = []string{
	"annotator_list_sessions",
	"annotator_get_page_context",
	"annotator_select_feedback",
	"annotator_get_feedback",
	"annotator_capture_screenshot",
	"annotator_clear_feedback",
	"annotator_inject_css",
	"annotator_inject_js",
	"annotator_get_console",
}

// Register installs the full tool catalog on mcpServer, resolving every
// call against backend and routing screenshot payloads through sink.
func Register(mcpServer *mcpserver.MCPServer, backend Backend, sink *screenshot.Sink) {
	add(mcpServer, "annotator_list_sessions",
		"List currently connected browser sessions with their URL and title.",
		rawSchema(`{"type":"object","properties":{}}`),
		func(ctx context.Context, args map[string]any) (string, error) {
			sessions := backend.ListSessions()
			if len(sessions) == 0 {
				return "No browser sessions connected. Add the annotator script to your webpage.", nil
			}
			payload, err := json.Marshal(sessions)
			if err != nil {
				return "", err
			}
			return string(payload), nil
		})

	add(mcpServer, "annotator_get_page_context",
		"Get the URL and title of a connected browser session's current page.",
		sessionSchema(nil),
		withSession(10*time.Second, func(ctx context.Context, sid *string, args map[string]any) (string, error) {
			data, rpcErr := backend.GetPageContext(ctx, sid)
			return renderResult(data, rpcErr, "Error")
		}))

	add(mcpServer, "annotator_select_feedback",
		"Start an element-selection interaction in the browser, either by user inspection or by a CSS/XPath selector.",
		sessionSchema(map[string]any{
			"mode":         map[string]any{"type": "string", "enum": []string{"inspect", "selector"}},
			"selector":     map[string]any{"type": "string"},
			"selectorType": map[string]any{"type": "string", "enum": []string{"css", "xpath"}},
		}),
		withSession(10*time.Second, func(ctx context.Context, sid *string, args map[string]any) (string, error) {
			data, rpcErr := backend.SelectFeedback(ctx, sid, args)
			return renderResult(data, rpcErr, "Feedback selection failed")
		}))

	add(mcpServer, "annotator_get_feedback",
		"Get the elements the user has selected for feedback, optionally projecting extra fields (xpath, attributes, styles, children).",
		sessionSchema(map[string]any{
			"fields": map[string]any{
				"type":  "array",
				"items": map[string]any{"type": "string", "enum": []string{"xpath", "attributes", "styles", "children"}},
			},
		}),
		withSession(15*time.Second, func(ctx context.Context, sid *string, args map[string]any) (string, error) {
			fields := stringSlice(args["fields"])
			data, rpcErr := backend.GetFeedback(ctx, sid, fields)
			if rpcErr != nil {
				return errorText(rpcErr, "Error"), nil
			}
			var items []json.RawMessage
			if err := json.Unmarshal(data, &items); err == nil && len(items) == 0 {
				return "No feedback selected. Use annotator_select_feedback to start a selection.", nil
			}
			projected, err := projectFeedbackFields(data, fields)
			if err != nil {
				return "Error: malformed feedback payload: " + err.Error(), nil
			}
			return string(projected), nil
		}))

	add(mcpServer, "annotator_capture_screenshot",
		"Capture a screenshot of the page or a specific element and save it to disk, returning the absolute path.",
		sessionSchema(map[string]any{
			"selector": map[string]any{"type": "string"},
			"quality":  map[string]any{"type": "number", "minimum": 0, "maximum": 1},
		}),
		withSession(30*time.Second, func(ctx context.Context, sid *string, args map[string]any) (string, error) {
			data, rpcErr := backend.CaptureScreenshot(ctx, sid, args)
			if rpcErr != nil {
				return errorText(rpcErr, "Screenshot failed"), nil
			}
			var base64Payload string
			if err := json.Unmarshal(data, &base64Payload); err != nil {
				return "Screenshot failed: malformed capture payload", nil
			}
			path, err := sink.Save(base64Payload)
			if err != nil {
				return "Screenshot failed: " + err.Error(), nil
			}
			return path, nil
		}))

	add(mcpServer, "annotator_clear_feedback",
		"Clear the current feedback selection in the browser.",
		sessionSchema(nil),
		withSession(10*time.Second, func(ctx context.Context, sid *string, args map[string]any) (string, error) {
			data, rpcErr := backend.ClearFeedback(ctx, sid)
			return renderResult(data, rpcErr, "Error")
		}))

	add(mcpServer, "annotator_inject_css",
		"Inject a CSS stylesheet into the connected page.",
		sessionSchema(map[string]any{"css": map[string]any{"type": "string"}}),
		withSession(10*time.Second, func(ctx context.Context, sid *string, args map[string]any) (string, error) {
			css, _ := args["css"].(string)
			if css == "" {
				return "Error: css is required", nil
			}
			data, rpcErr := backend.InjectCSS(ctx, sid, css)
			return renderResult(data, rpcErr, "Error")
		}))

	add(mcpServer, "annotator_inject_js",
		"Evaluate a JavaScript snippet in the connected page and return its result.",
		sessionSchema(map[string]any{"code": map[string]any{"type": "string"}}),
		withSession(15*time.Second, func(ctx context.Context, sid *string, args map[string]any) (string, error) {
			code, _ := args["code"].(string)
			if code == "" {
				return "Error: code is required", nil
			}
			data, rpcErr := backend.InjectJS(ctx, sid, code)
			return renderResult(data, rpcErr, "Error")
		}))

	add(mcpServer, "annotator_get_console",
		"Get console messages captured from the connected page, optionally clearing the buffer.",
		sessionSchema(map[string]any{"clear": map[string]any{"type": "boolean"}}),
		withSession(15*time.Second, func(ctx context.Context, sid *string, args map[string]any) (string, error) {
			clear, _ := args["clear"].(bool)
			data, rpcErr := backend.GetConsole(ctx, sid, clear)
			return renderResult(data, rpcErr, "Error")
		}))
}

// errorText renders rpcErr as tool-result text. A Literal error (a session
// resolution failure, or the bridge's not-connected message) already names
// its cause in full and is returned verbatim; anything else is a genuine
// RPC/procedure failure and gets the tool's own "Error:"-style prefix.
func errorText(rpcErr *rpc.RPCError, prefix string) string {
	if rpcErr.Literal {
		return rpcErr.Message
	}
	return prefix + ": " + rpcErr.Message
}

func renderResult(data json.RawMessage, rpcErr *rpc.RPCError, prefix string) (string, error) {
	if rpcErr != nil {
		return errorText(rpcErr, prefix), nil
	}
	if len(data) == 0 {
		return "{}", nil
	}
	return string(data), nil
}

func stringSlice(v any) []string {
	arr, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(arr))
	for _, e := range arr {
		if s, ok := e.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func sessionSchema(extra map[string]any) json.RawMessage {
	props := map[string]any{
		"sessionId": map[string]any{"type": "string"},
	}
	for k, v := range extra {
		props[k] = v
	}
	schema := map[string]any{"type": "object", "properties": props}
	raw, _ := json.Marshal(schema)
	return raw
}

func rawSchema(s string) json.RawMessage { return json.RawMessage(s) }

// withSession extracts the optional sessionId argument and enforces a
// per-tool deadline before invoking fn.
func withSession(deadline time.Duration, fn func(ctx context.Context, sid *string, args map[string]any) (string, error)) func(context.Context, map[string]any) (string, error) {
	return func(ctx context.Context, args map[string]any) (string, error) {
		var sid *string
		if v, ok := args["sessionId"].(string); ok && v != "" {
			sid = &v
		}
		ctx, cancel := context.WithTimeout(ctx, deadline)
		defer cancel()
		return fn(ctx, sid, args)
	}
}

func add(mcpServer *mcpserver.MCPServer, name, description string, schema json.RawMessage, fn func(context.Context, map[string]any) (string, error)) {
	tool := mcp.NewToolWithRawSchema(name, description, schema)
	mcpServer.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := request.GetArguments()
		if args == nil {
			args = map[string]any{}
		}
		text, err := fn(ctx, args)
		if err != nil {
			return &mcp.CallToolResult{
				Content: []mcp.Content{mcp.NewTextContent(fmt.Sprintf("tool %s failed: %v", name, err))},
				IsError: true,
			}, nil
		}
		return &mcp.CallToolResult{Content: []mcp.Content{mcp.NewTextContent(text)}}, nil
	})
}
