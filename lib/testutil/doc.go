// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil holds helpers shared by the agent's tests: bounded
// channel waits and short socket directories.
package testutil
