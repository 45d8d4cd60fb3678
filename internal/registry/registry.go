// Copyright 2026 Robert Macrae. All rights reserved.
// SPDX-License-Identifier: LicenseRef-Proprietary

// Package registry tracks connected browser sessions. It generalizes the
// sandbox's session manager (id -> *Session, guarded by one RWMutex) to a
// id -> {rpc peer, metadata} record, and adds the pure session-resolution
// rule the MCP tool surface needs on every call.
package registry

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hyperint/annotator-hub/internal/rpc"
)

// Metadata is the browser-reported state of one session, refreshed on
// page-context-changed events.
type Metadata struct {
	URL          string    `json:"url"`
	Title        string    `json:"title"`
	ConnectedAt  time.Time `json:"connectedAt"`
	LastActivity time.Time `json:"lastActivity"`
}

// Entry is one row of the registry: the peer used to issue RPCs against the
// session's browser page, and its latest reported metadata.
type Entry struct {
	ID   string
	Peer *rpc.Peer
	Meta Metadata
}

// Registry is the process-wide session-id -> Entry table.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Entry
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{sessions: make(map[string]*Entry)}
}

// Register allocates a new session id for peer and seeds empty metadata.
func (r *Registry) Register(peer *rpc.Peer) string {
	id := uuid.NewString()
	now := time.Now()
	r.mu.Lock()
	r.sessions[id] = &Entry{
		ID:   id,
		Peer: peer,
		Meta: Metadata{ConnectedAt: now, LastActivity: now},
	}
	r.mu.Unlock()
	return id
}

// UpdateMetadata applies a page-context-changed report, touching
// LastActivity. A call for an id that no longer exists is a silent no-op,
// since the disconnect and the in-flight report can race harmlessly.
func (r *Registry) UpdateMetadata(id, url, title string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[id]
	if !ok {
		return
	}
	e.Meta.URL = url
	e.Meta.Title = title
	e.Meta.LastActivity = time.Now()
}

// Remove drops a session, typically from its transport's disconnect hook.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	delete(r.sessions, id)
	r.mu.Unlock()
}

// List returns a snapshot of every session's id and metadata, sorted by id
// so callers see a stable, deterministic order.
func (r *Registry) List() []struct {
	ID   string
	Meta Metadata
} {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]struct {
		ID   string
		Meta Metadata
	}, 0, len(r.sessions))
	for id, e := range r.sessions {
		out = append(out, struct {
			ID   string
			Meta Metadata
		}{ID: id, Meta: e.Meta})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Resolve implements the auto-select rule: an explicit id must exist; with
// no id, exactly one session resolves automatically, zero is
// no-browser-connected, and two or more is session-ambiguous, enumerating
// the candidate ids in the error message. It is a pure function of a single
// point-in-time snapshot taken under the read lock.
func (r *Registry) Resolve(id *string) (*rpc.Peer, *rpc.RPCError) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if id != nil {
		e, ok := r.sessions[*id]
		if !ok {
			return nil, rpc.NewLiteralError(rpc.KindSessionNotFound, fmt.Sprintf("no session with id %q", *id))
		}
		return e.Peer, nil
	}

	switch len(r.sessions) {
	case 0:
		return nil, rpc.NewLiteralError(rpc.KindNoBrowserConnected, "no browser is connected")
	case 1:
		for _, e := range r.sessions {
			return e.Peer, nil
		}
	}

	ids := make([]string, 0, len(r.sessions))
	for sid := range r.sessions {
		ids = append(ids, sid)
	}
	sort.Strings(ids)
	message := fmt.Sprintf("Multiple sessions available. Specify sessionId. Available: %s", strings.Join(ids, ", "))
	return nil, rpc.NewLiteralError(rpc.KindSessionAmbiguous, message)
}

// Shutdown disposes every session's peer and empties the table. Disposing a
// peer fails its outstanding calls with transport-closed.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]*Entry)
	r.mu.Unlock()

	for _, e := range sessions {
		e.Peer.Dispose()
	}
}

// Count returns the number of connected sessions, used by /health.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
