// Copyright 2026 Robert Macrae. All rights reserved.
// SPDX-License-Identifier: LicenseRef-Proprietary

// Command hub runs the annotator session-brokering server: it accepts
// websocket connections from annotation-toolbar browser pages and bridge
// processes, and exposes an MCP tool surface over HTTP.
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hyperint/annotator-hub/internal/buildinfo"
	"github.com/hyperint/annotator-hub/internal/diagnostics"
	"github.com/hyperint/annotator-hub/internal/hub"
	"github.com/hyperint/annotator-hub/internal/screenshot"
)

var allowedListenAddrs = map[string]bool{
	"localhost": true,
	"127.0.0.1": true,
	"::1":       true,
	"0.0.0.0":   true,
	"::":        true,
}

func main() {
	var (
		port          int
		listen        string
		publicAddress string
		verbose       bool
	)

	cmd := &cobra.Command{
		Use:     "hub",
		Short:   "Run the AI annotator session-brokering hub",
		Version: buildinfo.Version,
		RunE: func(_ *cobra.Command, _ []string) error {
			return run(port, listen, publicAddress, verbose)
		},
	}

	cmd.Flags().IntVar(&port, "port", defaultPort(), "port to listen on")
	cmd.Flags().StringVar(&listen, "listen", "localhost", "address to listen on (localhost, 127.0.0.1, ::1, 0.0.0.0, ::)")
	cmd.Flags().StringVar(&publicAddress, "public-address", "", "public URL the toolbar script advertises (default http://<listen>:<port>)")
	cmd.Flags().BoolVar(&verbose, "verbose", os.Getenv("VERBOSE") == "true", "enable verbose logging")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "hub: %v\n", err)
		os.Exit(1)
	}
}

func defaultPort() int {
	for _, env := range []string{"INSPECTOR_PORT", "PORT"} {
		if v := os.Getenv(env); v != "" {
			if p, err := strconv.Atoi(v); err == nil {
				return p
			}
		}
	}
	return 7318
}

// resolveConfig validates the boundary arguments and fills in the default
// --public-address, without touching the network. Kept separate from run so
// the validation rules can be exercised without binding a real listener.
func resolveConfig(port int, listen, publicAddress string) (string, error) {
	if port < 1 || port > 65535 {
		return "", fmt.Errorf("invalid --port %d: must be in range 1..65535", port)
	}
	if !allowedListenAddrs[listen] {
		return "", fmt.Errorf("invalid --listen %q: must be one of localhost, 127.0.0.1, ::1, 0.0.0.0, ::", listen)
	}
	if publicAddress == "" {
		publicAddress = fmt.Sprintf("http://%s:%d", listen, port)
	}
	if _, err := url.ParseRequestURI(publicAddress); err != nil {
		return "", fmt.Errorf("invalid --public-address %q: %w", publicAddress, err)
	}
	return publicAddress, nil
}

func run(port int, listen, publicAddress string, verbose bool) error {
	publicAddress, err := resolveConfig(port, listen, publicAddress)
	if err != nil {
		return err
	}

	log := newLogger(verbose)
	defer log.Sync()

	sink, err := screenshot.NewSink()
	if err != nil {
		return fmt.Errorf("initialize screenshot sink: %w", err)
	}

	monitor := diagnostics.NewMonitor(diagnostics.DefaultConfig(), log)
	monitor.Start()
	defer monitor.Stop()

	h := hub.New(log)
	server := &http.Server{
		Addr:              net.JoinHostPort(listen, strconv.Itoa(port)),
		Handler:           h.Handler(publicAddress, sink),
		ReadHeaderTimeout: 10 * time.Second,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serveErr := make(chan error, 1)
	go func() {
		log.Info("hub listening", zap.String("addr", server.Addr), zap.String("publicAddress", publicAddress))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("bind failed: %w", err)
		}
	case <-shutdown:
		log.Info("shutting down")
		h.Shutdown()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown: %w", err)
		}
	}
	return nil
}

func newLogger(verbose bool) *zap.Logger {
	cfg := zap.NewProductionConfig()
	if verbose {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Encoding = "console"
	cfg.EncoderConfig.TimeKey = "ts"
	log, err := cfg.Build()
	if err != nil {
		log = zap.NewNop()
	}
	return log
}
