// Copyright 2026 Robert Macrae. All rights reserved.
// SPDX-License-Identifier: LicenseRef-Proprietary

// Command bridge runs the standalone MCP-over-stdio process that forwards
// tool calls to a hub over a single long-lived auxiliary websocket
// connection, typically spawned by an agent host.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hyperint/annotator-hub/internal/bridge"
	"github.com/hyperint/annotator-hub/internal/buildinfo"
	"github.com/hyperint/annotator-hub/internal/mcptools"
	"github.com/hyperint/annotator-hub/internal/screenshot"
)

const initialConnectTimeout = 10 * time.Second

func main() {
	root := &cobra.Command{
		Use:     "bridge",
		Short:   "Bridge an MCP agent host to an AI annotator hub over stdio",
		Version: buildinfo.Version,
	}
	root.AddCommand(newMCPCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "bridge: %v\n", err)
		os.Exit(1)
	}
}

func newMCPCmd() *cobra.Command {
	var server string

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Speak MCP over stdio, forwarding tool calls to a hub",
		RunE: func(_ *cobra.Command, _ []string) error {
			if server == "" {
				server = os.Getenv("AI_ANNOTATOR_SERVER")
			}
			if server == "" {
				return fmt.Errorf("--server is required (or set AI_ANNOTATOR_SERVER)")
			}
			return runMCP(server)
		},
	}
	cmd.Flags().StringVar(&server, "server", "", "hub websocket URL, e.g. ws://localhost:7318/ws")
	return cmd
}

func runMCP(server string) error {
	log, err := zap.NewDevelopment()
	if err != nil {
		log = zap.NewNop()
	}
	defer log.Sync()

	client := bridge.NewClient(server, log)
	if err := client.Connect(initialConnectTimeout); err != nil {
		fmt.Fprintf(os.Stderr, "bridge: could not connect to %s: %v\n", server, err)
		fmt.Fprintln(os.Stderr, "bridge: is the hub running and reachable at that address?")
		os.Exit(1)
	}

	sink, err := screenshot.NewSink()
	if err != nil {
		return fmt.Errorf("initialize screenshot sink: %w", err)
	}

	mcpServer := mcpserver.NewMCPServer("annotator-bridge", buildinfo.Version,
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithLogging(),
		mcpserver.WithRecovery(),
	)
	mcptools.Register(mcpServer, bridge.NewBackend(client), sink)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		cancel()
	}()

	stdio := mcpserver.NewStdioServer(mcpServer)
	errCh := make(chan error, 1)
	go func() { errCh <- stdio.Listen(ctx, os.Stdin, os.Stdout) }()

	select {
	case <-ctx.Done():
		client.Close()
		return nil
	case err := <-errCh:
		client.Close()
		return err
	case <-client.Done():
		client.Close()
		return fmt.Errorf("exhausted reconnect attempts to %s", server)
	}
}
