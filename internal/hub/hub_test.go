// Copyright 2026 Robert Macrae. All rights reserved.
// SPDX-License-Identifier: LicenseRef-Proprietary

package hub

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/hyperint/annotator-hub/internal/bridge"
	"github.com/hyperint/annotator-hub/internal/screenshot"
	"github.com/hyperint/annotator-hub/internal/transport"
)

func connectBrowser(t *testing.T, url string) (*transport.WSAdapter, error) {
	t.Helper()
	return transport.Dial(url, nil)
}

func newTestHub(t *testing.T) *Hub {
	t.Helper()
	return New(zap.NewNop())
}

func TestHealthReportsZeroSessions(t *testing.T) {
	h := newTestHub(t)
	sink, err := screenshot.NewSink()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	h.Handler("http://localhost:7318", sink).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body struct {
		Status        string `json:"status"`
		SessionsCount int    `json:"sessionsCount"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if body.Status != "ok" || body.SessionsCount != 0 {
		t.Fatalf("unexpected health body: %+v", body)
	}
}

func TestAPISessionsEmpty(t *testing.T) {
	h := newTestHub(t)
	sink, err := screenshot.NewSink()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/sessions", nil)
	rec := httptest.NewRecorder()
	h.Handler("http://localhost:7318", sink).ServeHTTP(rec, req)

	var sessions []any
	if err := json.Unmarshal(rec.Body.Bytes(), &sessions); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if len(sessions) != 0 {
		t.Fatalf("expected no sessions, got %d", len(sessions))
	}
}

func TestToolbarScriptNotEmbeddedReturns404(t *testing.T) {
	h := newTestHub(t)
	sink, err := screenshot.NewSink()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ToolbarScript = nil

	req := httptest.NewRequest(http.MethodGet, "/toolbar-script", nil)
	rec := httptest.NewRecorder()
	h.Handler("http://localhost:7318", sink).ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 without an embedded bundle, got %d", rec.Code)
	}
}

func TestListSessionsReflectsRegistry(t *testing.T) {
	h := newTestHub(t)
	if got := h.listSessions(); len(got) != 0 {
		t.Fatalf("expected no sessions initially, got %d", len(got))
	}
}

func TestBridgeForwardsListSessionsOverWebsocket(t *testing.T) {
	h := newTestHub(t)
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", h.HandleWebSocket)
	server := httptest.NewServer(mux)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	client := bridge.NewClient(wsURL, zap.NewNop())
	if err := client.Connect(2 * time.Second); err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	defer client.Close()

	envelope, err := client.Call(context.Background(), "mcp:list-sessions", nil, 2*time.Second)
	if err != nil {
		t.Fatalf("call failed: %v", err)
	}
	if !envelope.OK {
		t.Fatalf("expected ok envelope, got error %v", envelope.Err)
	}

	var sessions []any
	if err := json.Unmarshal(envelope.Value, &sessions); err != nil {
		t.Fatalf("unmarshal sessions: %v", err)
	}
	if len(sessions) != 0 {
		t.Fatalf("expected no sessions, got %d", len(sessions))
	}
}

func TestBrowserIsOnlySessionWithBridgeAttached(t *testing.T) {
	h := newTestHub(t)
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", h.HandleWebSocket)
	server := httptest.NewServer(mux)
	defer server.Close()

	browserURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws?type=browser"
	browser, err := connectBrowser(t, browserURL)
	if err != nil {
		t.Fatalf("browser connect failed: %v", err)
	}
	defer browser.Close()

	bridgeURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	client := bridge.NewClient(bridgeURL, zap.NewNop())
	if err := client.Connect(2 * time.Second); err != nil {
		t.Fatalf("bridge connect failed: %v", err)
	}
	defer client.Close()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if h.Registry().Count() == 1 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if got := h.Registry().Count(); got != 1 {
		t.Fatalf("expected 1 registered session, got %d", got)
	}
}
