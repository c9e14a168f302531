// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"bytes"
	"strings"
	"testing"
)

func TestEncodingRoundTrip(t *testing.T) {
	payload := []byte(strings.Repeat("15,A\n200,c8y_Temperature,T,21.5\n", 200))

	for _, encoding := range []Encoding{EncodingNone, EncodingGzip, EncodingZstd, EncodingLZ4} {
		encoded, err := encoding.Encode(payload)
		if err != nil {
			t.Fatalf("%s Encode: %v", encoding, err)
		}
		if encoding != EncodingNone && len(encoded) >= len(payload) {
			t.Errorf("%s did not shrink a repetitive payload (%d >= %d)", encoding, len(encoded), len(payload))
		}
		decoded, err := encoding.Decode(encoded)
		if err != nil {
			t.Fatalf("%s Decode: %v", encoding, err)
		}
		if !bytes.Equal(decoded, payload) {
			t.Fatalf("%s round trip changed the payload", encoding)
		}
	}
}

func TestParseEncoding(t *testing.T) {
	tests := map[string]Encoding{
		"":         EncodingNone,
		"none":     EncodingNone,
		"identity": EncodingNone,
		"gzip":     EncodingGzip,
		"zstd":     EncodingZstd,
		"lz4":      EncodingLZ4,
	}
	for name, want := range tests {
		got, err := ParseEncoding(name)
		if err != nil || got != want {
			t.Errorf("ParseEncoding(%q) = (%q, %v), want %q", name, got, err, want)
		}
	}
	if _, err := ParseEncoding("brotli"); err == nil {
		t.Error("ParseEncoding(brotli) succeeded")
	}
}

func TestContentEncoding(t *testing.T) {
	if got := EncodingNone.ContentEncoding(); got != "" {
		t.Errorf("none ContentEncoding = %q, want empty", got)
	}
	if got := EncodingZstd.ContentEncoding(); got != "zstd" {
		t.Errorf("zstd ContentEncoding = %q", got)
	}
}

func TestDecodeCorrupt(t *testing.T) {
	for _, encoding := range []Encoding{EncodingGzip, EncodingZstd} {
		if _, err := encoding.Decode([]byte("definitely not compressed")); err == nil {
			t.Errorf("%s Decode accepted garbage", encoding)
		}
	}
}

func TestPayloadKey(t *testing.T) {
	a := PayloadKey([]byte("15,A\nx\n"))
	if a != PayloadKey([]byte("15,A\nx\n")) {
		t.Fatal("PayloadKey is not stable")
	}
	if a == PayloadKey([]byte("15,A\ny\n")) {
		t.Fatal("different payloads share a key")
	}
	if len(a) != 32 {
		t.Fatalf("key length = %d, want 32 hex characters", len(a))
	}
}

func TestDefaultTopics(t *testing.T) {
	topics := DefaultTopics("")
	if topics.Uplink != "s/ul" {
		t.Fatalf("Uplink = %q", topics.Uplink)
	}
	names, qos := topics.Subscriptions("xid-7")
	wantNames := []string{"s/dl", "s/ol/xid-7", "s/e"}
	wantQoS := []byte{1, 1, 0}
	for i := range wantNames {
		if names[i] != wantNames[i] || qos[i] != wantQoS[i] {
			t.Fatalf("subscription %d = (%s, %d), want (%s, %d)", i, names[i], qos[i], wantNames[i], wantQoS[i])
		}
	}

	if got := DefaultTopics("site-4/").Errors; got != "site-4/s/e" {
		t.Fatalf("prefixed Errors = %q", got)
	}
}
