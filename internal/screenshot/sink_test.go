// Copyright 2026 Robert Macrae. All rights reserved.
// SPDX-License-Identifier: LicenseRef-Proprietary

package screenshot

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSaveWritesDecodedBytes(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CACHE_HOME", dir)

	sink, err := NewSink()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	payload := []byte("fake-webp-bytes")
	encoded := base64.StdEncoding.EncodeToString(payload)

	path, err := sink.Save(encoded)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !strings.HasSuffix(path, ".webp") {
		t.Errorf("expected .webp suffix, got %s", path)
	}
	if !filepath.IsAbs(path) {
		t.Errorf("expected absolute path, got %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read written file: %v", err)
	}
	if string(data) != string(payload) {
		t.Errorf("expected %q, got %q", payload, data)
	}
}

func TestSaveInvalidBase64(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CACHE_HOME", dir)

	sink, err := NewSink()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := sink.Save("not-valid-base64!!"); err == nil {
		t.Error("expected an error for invalid base64 input")
	}
}
