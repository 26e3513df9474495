package proxy

import "testing"

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		peek string
		want connKind
	}{
		{"GET request line is routed to the WS bridge", "GET /ray HTTP/1.1", kindWebSocket},
		{"POST request line is HTTP-framed VLESS", "POST /ray HTTP/1.1", kindHTTP},
		{"raw VLESS handshake bytes", "\x00\x01\x02\x03\x04\x05\x06\x07\x08\x09\x0a\x0b\x0c\x0d", kindRaw},
		{"too short to match any method", "GE", kindRaw},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classify([]byte(tt.peek)); got != tt.want {
				t.Errorf("classify(%q) = %v, want %v", tt.peek, got, tt.want)
			}
		})
	}
}
