// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"encoding/hex"

	"github.com/zeebo/blake3"
)

// PayloadKey identifies a payload by content. Delivery is
// at-least-once, so a batch can reach the collector more than once
// after a lost reply; the collector drops repeats with the same key.
func PayloadKey(payload []byte) string {
	sum := blake3.Sum256(payload)
	return hex.EncodeToString(sum[:16])
}
