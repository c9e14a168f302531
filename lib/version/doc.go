// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package version reports the build identity of the edgerelay binary.
//
// [GitCommit], [GitDirty], [BuildTime] and [Version] are injected with
// -ldflags, for example:
//
//	go build -ldflags "-X github.com/edgerelay/edgerelay/lib/version.GitCommit=$(git rev-parse --short HEAD)"
//
// Without injection, [Current] falls back to the VCS information the
// Go toolchain embeds in the binary.
package version
