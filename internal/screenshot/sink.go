// Copyright 2026 Robert Macrae. All rights reserved.
// SPDX-License-Identifier: LicenseRef-Proprietary

// Package screenshot writes captured page screenshots to a per-user cache
// directory, the same decode/MkdirAll/WriteFile shape the sandbox's browser
// controller uses for its own screenshot path, generalized away from a
// workspace-relative path to the OS user cache directory.
package screenshot

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const dirName = "ai-annotator-screenshots"

// Sink writes decoded screenshot bytes under a fixed cache subdirectory.
type Sink struct {
	dir string
}

// NewSink resolves the target directory via os.UserCacheDir but does not
// create it; Save creates it lazily on first use.
func NewSink() (*Sink, error) {
	base, err := os.UserCacheDir()
	if err != nil {
		return nil, fmt.Errorf("screenshot: resolve cache dir: %w", err)
	}
	return &Sink{dir: filepath.Join(base, dirName)}, nil
}

// Save decodes a base64 payload and writes it as a timestamped .webp file,
// returning its absolute path.
func (s *Sink) Save(base64Data string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(base64Data)
	if err != nil {
		return "", fmt.Errorf("decode screenshot payload: %w", err)
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("create screenshot directory: %w", err)
	}

	name := fmt.Sprintf("screenshot-%d.webp", time.Now().UnixMilli())
	path := filepath.Join(s.dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write screenshot: %w", err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return path, nil
	}
	return abs, nil
}
