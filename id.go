package mcphost

import (
	"crypto/rand"
	"encoding/hex"
	"time"
)

const prefixConversation = "conv"

// generateID produces a unique identifier with the given prefix and embedded timestamp.
// Format: {prefix}_{YYYYMMDDTHHmmss}_{16 hex chars}  e.g. "conv_20260829T150405_a1b2c3d4e5f6a7b8"
func generateID(prefix string) string {
	ts := time.Now().UTC().Format("20060102T150405")
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return prefix + "_" + ts + "_" + hex.EncodeToString(b)
}
