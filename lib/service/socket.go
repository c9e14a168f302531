// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/edgerelay/edgerelay/lib/codec"
)

// ActionFunc handles one request. raw is the whole CBOR request,
// action field included; the handler decodes its own fields from it.
// A nil result yields {ok: true}; anything else is encoded into the
// response's data field.
type ActionFunc func(ctx context.Context, raw []byte) (any, error)

// Response is the envelope every reply is wrapped in.
type Response struct {
	OK    bool             `cbor:"ok"`
	Error string           `cbor:"error,omitempty"`
	Data  codec.RawMessage `cbor:"data,omitempty"`
}

const (
	readTimeout    = 10 * time.Second
	writeTimeout   = 10 * time.Second
	maxRequestSize = 1024 * 1024
)

// SocketServer answers one CBOR request per connection on a Unix
// socket.
type SocketServer struct {
	path     string
	mode     os.FileMode
	handlers map[string]ActionFunc
	logger   *slog.Logger

	listener net.Listener
	active   sync.WaitGroup
}

// NewSocketServer returns a server for path. The socket file is
// created with mode once Listen runs.
func NewSocketServer(path string, mode os.FileMode, logger *slog.Logger) *SocketServer {
	return &SocketServer{
		path:     path,
		mode:     mode,
		handlers: make(map[string]ActionFunc),
		logger:   logger,
	}
}

// Handle registers the handler for action. Register everything before
// Serve; a duplicate registration panics.
func (s *SocketServer) Handle(action string, handler ActionFunc) {
	if _, exists := s.handlers[action]; exists {
		panic(fmt.Sprintf("service.SocketServer: duplicate handler for action %q", action))
	}
	s.handlers[action] = handler
}

// Listen binds the socket, replacing a stale socket file left by a
// previous run. Serve calls it if the caller has not.
func (s *SocketServer) Listen() error {
	if s.listener != nil {
		return nil
	}
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing stale socket %s: %w", s.path, err)
	}
	listener, err := net.Listen("unix", s.path)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.path, err)
	}
	if s.mode != 0 {
		if err := os.Chmod(s.path, s.mode); err != nil {
			listener.Close()
			return fmt.Errorf("setting mode on %s: %w", s.path, err)
		}
	}
	s.listener = listener
	return nil
}

// Serve accepts connections until ctx is cancelled, then waits for
// in-flight requests and removes the socket file.
func (s *SocketServer) Serve(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}
	listener := s.listener
	defer func() {
		listener.Close()
		os.Remove(s.path)
	}()

	stop := context.AfterFunc(ctx, func() { listener.Close() })
	defer stop()

	s.logger.Info("ingest socket listening", "path", s.path)
	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			s.logger.Error("accept failed", "error", err)
			continue
		}
		s.active.Add(1)
		go func() {
			defer s.active.Done()
			s.serveConn(ctx, conn)
		}()
	}
	s.active.Wait()
	return nil
}

func (s *SocketServer) serveConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(readTimeout))

	var raw codec.RawMessage
	if err := codec.NewDecoder(io.LimitReader(conn, maxRequestSize)).Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return
		}
		s.reply(conn, Response{Error: fmt.Sprintf("invalid request: %v", err)})
		return
	}

	var header struct {
		Action string `cbor:"action"`
	}
	if err := codec.Unmarshal(raw, &header); err != nil {
		s.reply(conn, Response{Error: fmt.Sprintf("invalid request: %v", err)})
		return
	}
	handler, exists := s.handlers[header.Action]
	switch {
	case header.Action == "":
		s.reply(conn, Response{Error: "missing required field: action"})
		return
	case !exists:
		s.reply(conn, Response{Error: fmt.Sprintf("unknown action %q", header.Action)})
		return
	}

	result, err := handler(ctx, raw)
	if err != nil {
		s.logger.Debug("action failed", "action", header.Action, "error", err)
		s.reply(conn, Response{Error: err.Error()})
		return
	}

	response := Response{OK: true}
	if result != nil {
		data, err := codec.Marshal(result)
		if err != nil {
			s.reply(conn, Response{Error: fmt.Sprintf("internal: encoding response: %v", err)})
			return
		}
		response.Data = data
	}
	s.reply(conn, response)
}

func (s *SocketServer) reply(conn net.Conn, response Response) {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := codec.NewEncoder(conn).Encode(response); err != nil {
		s.logger.Debug("writing response failed", "error", err)
	}
}
