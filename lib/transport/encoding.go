// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Encoding is a payload compression scheme. The names double as HTTP
// Content-Encoding values.
type Encoding string

const (
	EncodingNone Encoding = "none"
	EncodingGzip Encoding = "gzip"
	EncodingZstd Encoding = "zstd"
	EncodingLZ4  Encoding = "lz4"
)

// maxDecodedSize bounds decompressed collector replies.
const maxDecodedSize = 16 << 20

var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		panic("transport: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil, zstd.WithDecoderMaxMemory(maxDecodedSize))
	if err != nil {
		panic("transport: zstd decoder initialization failed: " + err.Error())
	}
}

// ParseEncoding accepts an Encoding name; the empty string and
// "identity" mean none.
func ParseEncoding(name string) (Encoding, error) {
	switch name {
	case "", "none", "identity":
		return EncodingNone, nil
	case "gzip":
		return EncodingGzip, nil
	case "zstd":
		return EncodingZstd, nil
	case "lz4":
		return EncodingLZ4, nil
	}
	return "", fmt.Errorf("unknown payload encoding %q", name)
}

// ContentEncoding is the HTTP header value, empty for none.
func (e Encoding) ContentEncoding() string {
	if e == EncodingNone || e == "" {
		return ""
	}
	return string(e)
}

// Encode compresses data.
func (e Encoding) Encode(data []byte) ([]byte, error) {
	switch e {
	case EncodingNone, "":
		return data, nil
	case EncodingZstd:
		return zstdEncoder.EncodeAll(data, nil), nil
	case EncodingGzip:
		var out bytes.Buffer
		writer := gzip.NewWriter(&out)
		if _, err := writer.Write(data); err != nil {
			return nil, fmt.Errorf("gzip: %w", err)
		}
		if err := writer.Close(); err != nil {
			return nil, fmt.Errorf("gzip: %w", err)
		}
		return out.Bytes(), nil
	case EncodingLZ4:
		var out bytes.Buffer
		writer := lz4.NewWriter(&out)
		if _, err := writer.Write(data); err != nil {
			return nil, fmt.Errorf("lz4: %w", err)
		}
		if err := writer.Close(); err != nil {
			return nil, fmt.Errorf("lz4: %w", err)
		}
		return out.Bytes(), nil
	}
	return nil, fmt.Errorf("unsupported payload encoding %q", e)
}

// Decode reverses Encode.
func (e Encoding) Decode(data []byte) ([]byte, error) {
	switch e {
	case EncodingNone, "":
		return data, nil
	case EncodingZstd:
		decoded, err := zstdDecoder.DecodeAll(data, nil)
		if err != nil {
			return nil, fmt.Errorf("zstd: %w", err)
		}
		return decoded, nil
	case EncodingGzip:
		reader, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("gzip: %w", err)
		}
		defer reader.Close()
		return readBounded(reader, "gzip")
	case EncodingLZ4:
		return readBounded(lz4.NewReader(bytes.NewReader(data)), "lz4")
	}
	return nil, fmt.Errorf("unsupported payload encoding %q", e)
}

func readBounded(reader io.Reader, name string) ([]byte, error) {
	decoded, err := io.ReadAll(io.LimitReader(reader, maxDecodedSize+1))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	if len(decoded) > maxDecodedSize {
		return nil, fmt.Errorf("%s: decoded payload exceeds %d bytes", name, maxDecodedSize)
	}
	return decoded, nil
}
