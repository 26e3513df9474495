package proxy

import (
	"fmt"

	"github.com/google/uuid"
)

// handshakeLen is the VLESS handshake prefix length: 1 version byte + a
// 16-byte UUID, grounded verbatim on proxy_server.rs's `[0u8; 17]` /
// `handshake[1..17]`.
const handshakeLen = 17

// parseHandshakeUUID extracts the UUID from a 17-byte VLESS handshake
// prefix.
func parseHandshakeUUID(handshake []byte) (uuid.UUID, error) {
	if len(handshake) < handshakeLen {
		return uuid.UUID{}, fmt.Errorf("handshake too short: %d bytes", len(handshake))
	}
	return uuid.FromBytes(handshake[1:handshakeLen])
}
