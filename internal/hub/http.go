// Copyright 2026 Robert Macrae. All rights reserved.
// SPDX-License-Identifier: LicenseRef-Proprietary

package hub

import (
	"encoding/json"
	"net/http"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/hyperint/annotator-hub/internal/buildinfo"
	"github.com/hyperint/annotator-hub/internal/mcptools"
	"github.com/hyperint/annotator-hub/internal/screenshot"
)

// ToolbarScript is the pre-built client bundle served at /toolbar-script. The
// bundle is a build artifact rather than something this package generates;
// nothing in this repository sets it, and while it is empty /toolbar-script
// responds 404.
var ToolbarScript []byte

// Handler builds the hub's full HTTP surface: /health, /api/sessions,
// /toolbar-script, /ws, and the MCP HTTP front mounted at /mcp.
func (h *Hub) Handler(publicAddress string, sink *screenshot.Sink) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", h.handleHealth)
	mux.HandleFunc("/api/sessions", h.handleAPISessions)
	mux.HandleFunc("/toolbar-script", h.handleToolbarScript(publicAddress))
	mux.HandleFunc("/ws", h.HandleWebSocket)
	mux.HandleFunc("/mcp/info", h.handleMCPInfo)

	mcpServer := mcpserver.NewMCPServer("annotator-hub", buildinfo.Version,
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithLogging(),
		mcpserver.WithRecovery(),
	)
	mcptools.Register(mcpServer, NewBackend(h), sink)
	streamable := mcpserver.NewStreamableHTTPServer(mcpServer, mcpserver.WithEndpointPath("/mcp"))
	mux.Handle("/mcp", streamable)

	return mux
}

func (h *Hub) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":        "ok",
		"sessionsCount": h.registry.Count(),
	})
}

func (h *Hub) handleAPISessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.listSessions())
}

func (h *Hub) handleMCPInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "annotator-hub",
		"version": buildinfo.Version,
		"tools":   mcptools.ToolNames,
	})
}

// handleToolbarScript serves the embedded bundle plus a trailing config
// snippet. The toolbar UI itself (the injected DOM element) is the embedded
// bundle's own responsibility, not this handler's — see DESIGN.md for why
// this stays a pure config hook rather than synthesizing DOM here.
func (h *Hub) handleToolbarScript(publicAddress string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if len(ToolbarScript) == 0 {
			http.Error(w, "toolbar script not embedded in this build", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/javascript")
		_, _ = w.Write(ToolbarScript)
		_, _ = w.Write([]byte("\n;window.__AI_ANNOTATOR_HUB_URL__ = " + jsonString(publicAddress) + ";\n"))
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func jsonString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
