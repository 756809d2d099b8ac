package logger

import (
	"context"
	"testing"
)

func TestMaskIP(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"ipv4", "192.168.1.100", "192.168.*.*"},
		{"ipv6", "2001:0db8:85a3:0000:0000:8a2e:0370:7334", "2001:0db8:85a3:0000:*:*:*:*"},
		{"short ipv6", "::1", "***"},
		{"sentinel", "unknown", "***"},
		{"garbage", "not-an-ip", "***"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MaskIP(tt.in); got != tt.want {
				t.Fatalf("MaskIP(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestRequestIDFromContext(t *testing.T) {
	if got := RequestIDFromContext(context.Background()); got != "" {
		t.Fatalf("expected empty request id, got %q", got)
	}

	ctx := context.WithValue(context.Background(), RequestIDKey{}, "req-1")
	if got := RequestIDFromContext(ctx); got != "req-1" {
		t.Fatalf("expected req-1, got %q", got)
	}
}
