package proxy

import (
	"testing"

	"github.com/google/uuid"
)

func TestParseHandshakeUUID(t *testing.T) {
	want := uuid.New()
	handshake := make([]byte, handshakeLen)
	handshake[0] = 0x00 // VLESS version byte
	copy(handshake[1:], want[:])

	got, err := parseHandshakeUUID(handshake)
	if err != nil {
		t.Fatalf("parseHandshakeUUID() error = %v", err)
	}
	if got != want {
		t.Errorf("parseHandshakeUUID() = %v, want %v", got, want)
	}
}

func TestParseHandshakeUUIDTooShort(t *testing.T) {
	_, err := parseHandshakeUUID(make([]byte, handshakeLen-1))
	if err == nil {
		t.Errorf("expected an error for a too-short handshake, got nil")
	}
}

func TestParseHandshakeUUIDIgnoresTrailingBytes(t *testing.T) {
	want := uuid.New()
	handshake := make([]byte, handshakeLen+50)
	copy(handshake[1:handshakeLen], want[:])

	got, err := parseHandshakeUUID(handshake)
	if err != nil {
		t.Fatalf("parseHandshakeUUID() error = %v", err)
	}
	if got != want {
		t.Errorf("parseHandshakeUUID() = %v, want %v", got, want)
	}
}
