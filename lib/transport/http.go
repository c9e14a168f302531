// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// maxResponseSize bounds a collector reply read into memory.
const maxResponseSize = 1 << 20

// HTTPOptions configures an HTTP transport.
type HTTPOptions struct {
	// URL receives each payload as a POST.
	URL string

	Username string
	Password string

	// Encoding compresses request bodies.
	Encoding Encoding

	Timeout time.Duration

	// Client defaults to a fresh http.Client.
	Client *http.Client
}

// HTTP is the RequestResponse transport. Payloads are POSTed as
// text/plain; the reply body is kept for the caller to route.
type HTTP struct {
	url      string
	username string
	password string
	encoding Encoding
	timeout  time.Duration
	client   *http.Client

	response []byte
}

var _ RequestResponse = (*HTTP)(nil)

// NewHTTP returns an HTTP transport.
func NewHTTP(options HTTPOptions) *HTTP {
	client := options.Client
	if client == nil {
		client = &http.Client{}
	}
	encoding := options.Encoding
	if encoding == "" {
		encoding = EncodingNone
	}
	return &HTTP{
		url:      options.URL,
		username: options.Username,
		password: options.Password,
		encoding: encoding,
		timeout:  options.Timeout,
		client:   client,
	}
}

func (h *HTTP) SetTimeout(d time.Duration) { h.timeout = d }

func (h *HTTP) Response() []byte { return h.response }

func (h *HTTP) ClearResponse() { h.response = nil }

// Post sends payload and stores the reply body.
func (h *HTTP) Post(ctx context.Context, payload []byte) error {
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	body, err := h.encoding.Encode(payload)
	if err != nil {
		return fmt.Errorf("encoding payload: %w", err)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	request.Header.Set("Content-Type", "text/plain; charset=utf-8")
	request.Header.Set("Accept-Encoding", "gzip, zstd, lz4")
	request.Header.Set("Idempotency-Key", PayloadKey(payload))
	if contentEncoding := h.encoding.ContentEncoding(); contentEncoding != "" {
		request.Header.Set("Content-Encoding", contentEncoding)
	}
	if h.username != "" || h.password != "" {
		request.SetBasicAuth(h.username, h.password)
	}

	response, err := h.client.Do(request)
	if err != nil {
		return fmt.Errorf("posting to collector: %w", err)
	}
	defer response.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(response.Body, maxResponseSize+1))
	if err != nil {
		return fmt.Errorf("reading collector reply: %w", err)
	}
	if len(raw) > maxResponseSize {
		return fmt.Errorf("collector reply exceeds %d bytes", maxResponseSize)
	}

	if response.StatusCode < 200 || response.StatusCode > 299 {
		return fmt.Errorf("collector returned %s: %s", response.Status, snippet(raw))
	}

	replyEncoding, err := ParseEncoding(response.Header.Get("Content-Encoding"))
	if err != nil {
		return err
	}
	decoded, err := replyEncoding.Decode(raw)
	if err != nil {
		return fmt.Errorf("decoding collector reply: %w", err)
	}
	h.response = decoded
	return nil
}

func snippet(body []byte) string {
	text := strings.TrimSpace(string(body))
	if len(text) > 200 {
		text = text[:200] + "..."
	}
	return text
}
