// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/edgerelay/edgerelay/lib/codec"
)

const (
	dialTimeout         = 5 * time.Second
	responseReadTimeout = 30 * time.Second
	maxResponseSize     = 1024 * 1024
)

// ActionError is returned by Call when the server replies ok=false.
type ActionError struct {
	Action  string
	Message string
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("action %q failed: %s", e.Action, e.Message)
}

// Client calls a SocketServer, one connection per call.
type Client struct {
	path string
}

// NewClient returns a client for the socket at path.
func NewClient(path string) *Client {
	return &Client{path: path}
}

// Call sends action with fields and decodes the reply's data into
// result, which may be nil when the caller needs no data.
func (c *Client) Call(ctx context.Context, action string, fields map[string]any, result any) error {
	request := make(map[string]any, len(fields)+1)
	for key, value := range fields {
		request[key] = value
	}
	request["action"] = action

	dialer := net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "unix", c.path)
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", c.path, err)
	}
	defer conn.Close()

	deadline := time.Now().Add(responseReadTimeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	conn.SetDeadline(deadline)

	if err := codec.NewEncoder(conn).Encode(request); err != nil {
		return fmt.Errorf("sending %q: %w", action, err)
	}
	var response Response
	if err := codec.NewDecoder(io.LimitReader(conn, maxResponseSize)).Decode(&response); err != nil {
		return fmt.Errorf("reading %q response: %w", action, err)
	}
	if !response.OK {
		return &ActionError{Action: action, Message: response.Error}
	}
	if result != nil && len(response.Data) > 0 {
		if err := codec.Unmarshal(response.Data, result); err != nil {
			return fmt.Errorf("decoding %q response: %w", action, err)
		}
	}
	return nil
}
