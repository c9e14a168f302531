// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the agent's YAML configuration.
//
// A file is read over [Default], so it only needs the keys it changes.
// After parsing, ${VAR} and ${VAR:-default} references in string
// values that name hosts, credentials or paths are expanded from the
// environment, and a small set of EDGERELAY_* variables override the
// file:
//
//	EDGERELAY_SERVER           server
//	EDGERELAY_TRANSPORT        transport
//	EDGERELAY_DEVICE_ID        device_id
//	EDGERELAY_BUFFER_PATH      buffer.path
//	EDGERELAY_BUFFER_CAPACITY  buffer.capacity
//	EDGERELAY_LOG_LEVEL        log.level
//
// Command-line flags are applied by the caller after loading.
// [Config.Validate] reports every problem at once through
// [errors.Join].
//
// This package depends on no other edgerelay packages.
package config
