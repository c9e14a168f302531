// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"io"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	// Core Deterministic Encoding: sorted keys, shortest integers.
	// Status snapshots compare byte-for-byte in tests.
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		// Ingest clients send string-keyed maps; decode untyped maps
		// as map[string]any instead of map[any]any.
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
		// Bound what a single socket request can allocate.
		MaxArrayElements: 65536,
	}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}
}

// Marshal encodes v deterministically.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes data into v. Unknown fields are ignored.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

type (
	Encoder    = cbor.Encoder
	Decoder    = cbor.Decoder
	RawMessage = cbor.RawMessage
)

// NewEncoder returns a deterministic stream encoder writing to w.
func NewEncoder(w io.Writer) *Encoder {
	return encMode.NewEncoder(w)
}

// NewDecoder returns a stream decoder reading from r. CBOR items are
// self-delimiting, so one decoder can read a sequence off a socket.
func NewDecoder(r io.Reader) *Decoder {
	return decMode.NewDecoder(r)
}
