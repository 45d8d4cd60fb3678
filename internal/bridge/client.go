// Copyright 2026 Robert Macrae. All rights reserved.
// SPDX-License-Identifier: LicenseRef-Proprietary

// Package bridge implements the standalone MCP-over-stdio process that
// forwards tool calls to a hub over a single long-lived auxiliary
// websocket connection, reconnecting with backoff when that connection
// drops.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hyperint/annotator-hub/internal/rpc"
	"github.com/hyperint/annotator-hub/internal/transport"
)

const (
	maxReconnectAttempts = 20
	reconnectDelay       = 10 * time.Second
)

// ErrNotConnected is returned by Call while the client is reconnecting.
var ErrNotConnected = errors.New("not connected to server")

// Client owns the bridge's single outbound connection to a hub and its
// reconnect state machine. It is safe for concurrent Call invocations.
type Client struct {
	serverURL string
	log       *zap.Logger

	mu        sync.RWMutex
	peer      *rpc.Peer
	connected bool

	wake chan struct{}
	done chan struct{}
}

// NewClient builds a Client targeting serverURL (e.g.
// "ws://localhost:7318/ws"). Connect must be called before any Call.
func NewClient(serverURL string, log *zap.Logger) *Client {
	return &Client{
		serverURL: serverURL,
		log:       log,
		wake:      make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
}

// Connect performs the initial dial, failing if it does not succeed within
// timeout, and then starts the background reconnect loop.
func (c *Client) Connect(timeout time.Duration) error {
	result := make(chan error, 1)
	go func() { result <- c.dial() }()

	select {
	case err := <-result:
		if err != nil {
			return fmt.Errorf("connect to %s: %w", c.serverURL, err)
		}
	case <-time.After(timeout):
		return fmt.Errorf("connect to %s: timed out after %s", c.serverURL, timeout)
	}

	go c.reconnectLoop()
	return nil
}

func (c *Client) dial() error {
	u, err := url.Parse(c.serverURL)
	if err != nil {
		return err
	}
	q := u.Query()
	q.Set("type", "bridge")
	u.RawQuery = q.Encode()

	adapter, err := transport.Dial(u.String(), nil)
	if err != nil {
		return err
	}

	peer := rpc.NewPeer(adapter)
	c.mu.Lock()
	c.peer = peer
	c.connected = true
	c.mu.Unlock()

	adapter.OnDisconnect(func(reason error) {
		c.log.Warn("lost connection to hub", zap.Error(reason))
		c.mu.Lock()
		c.connected = false
		c.mu.Unlock()
		c.triggerReconnect()
	})

	return nil
}

// reconnectLoop implements the connected/reconnecting state machine: on
// disconnect it waits a backoff interval, interruptible by Call waking it
// early, and retries until success or the attempt budget is exhausted.
func (c *Client) reconnectLoop() {
	for {
		select {
		case <-c.wake:
		case <-c.done:
			return
		}
		// Close closes done before the connection, so a wake caused by
		// Close's own disconnect must not start a redial.
		select {
		case <-c.done:
			return
		default:
		}

		attempts := 0
		for {
			if c.isConnected() {
				break
			}

			err := c.dial()
			if err == nil {
				c.log.Info("reconnected to hub")
				break
			}

			attempts++
			c.log.Warn("reconnect attempt failed", zap.Int("attempt", attempts), zap.Error(err))
			if attempts >= maxReconnectAttempts {
				c.log.Error("exhausted reconnect attempts, exiting")
				close(c.done)
				return
			}

			timer := time.NewTimer(reconnectDelay)
			select {
			case <-timer.C:
			case <-c.wake:
				timer.Stop()
			case <-c.done:
				timer.Stop()
				return
			}
		}
	}
}

func (c *Client) triggerReconnect() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// Done returns a channel that closes once the reconnect budget is
// exhausted. The caller is expected to exit the process on closure.
func (c *Client) Done() <-chan struct{} { return c.done }

func (c *Client) isConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// Call forwards proc (an "mcp:<tool>" event name) with args to the hub,
// waiting up to deadline. If the client is not currently connected, it
// triggers an immediate reconnect attempt and fails fast rather than
// queuing, matching the "Reconnecting..." tool-result contract.
func (c *Client) Call(ctx context.Context, proc string, args []any, deadline time.Duration) (rpc.Envelope, error) {
	c.mu.RLock()
	peer, connected := c.peer, c.connected
	c.mu.RUnlock()

	if !connected || peer == nil {
		c.triggerReconnect()
		return rpc.Envelope{}, ErrNotConnected
	}

	value, rpcErr := peer.Call(ctx, proc, args, deadline)
	return rpc.Envelope{OK: rpcErr == nil, Value: value, Err: rpcErr}, nil
}

// Close stops the reconnect loop and closes the current connection.
func (c *Client) Close() {
	c.mu.Lock()
	peer := c.peer
	c.mu.Unlock()

	select {
	case <-c.done:
	default:
		close(c.done)
	}
	if peer != nil {
		peer.Dispose()
	}
}
