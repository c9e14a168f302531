// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec holds the one CBOR configuration used by the agent's
// local protocols: the ingest socket and status snapshots. Collector
// traffic is plain newline-delimited text and never passes through
// here.
//
// Types tagged `cbor` are only ever CBOR. Use Marshal/Unmarshal for
// whole buffers and NewEncoder/NewDecoder for socket streams.
package codec
