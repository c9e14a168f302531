// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package service holds the process scaffolding around the reporter:
// the JSON logger and the local request socket.
//
// [SocketServer] speaks a CBOR request/response protocol on a Unix
// socket, one request per connection. A request is a CBOR map with an
// "action" key plus action-specific fields; the reply is a [Response]
// envelope {ok, error, data}. CBOR is self-delimiting, so there is no
// framing. [Client] is the matching caller.
//
// Only processes that can reach the socket file can submit records;
// the server sets the file mode and does no further authentication.
package service
