// Copyright 2026 Robert Macrae. All rights reserved.
// SPDX-License-Identifier: LicenseRef-Proprietary

// Package buildinfo holds the version string both binaries report on
// --version, overridable at link time via -ldflags "-X ...Version=...".
package buildinfo

// Version is "dev" unless overridden at build time.
var Version = "dev"
