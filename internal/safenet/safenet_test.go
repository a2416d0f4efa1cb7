package safenet

import (
	"net"
	"testing"
)

func TestIsPrivateIP(t *testing.T) {
	tests := []struct {
		ip   string
		want bool
	}{
		{"127.0.0.1", true},
		{"10.1.2.3", true},
		{"172.16.0.1", true},
		{"192.168.1.1", true},
		{"169.254.1.1", true},
		{"100.64.0.1", true},
		{"::1", true},
		{"fe80::1", true},
		{"fc00::1", true},
		{"8.8.8.8", false},
		{"1.1.1.1", false},
		{"2606:4700::1111", false},
	}
	for _, tt := range tests {
		if got := IsPrivateIP(net.ParseIP(tt.ip)); got != tt.want {
			t.Errorf("IsPrivateIP(%s) = %v, want %v", tt.ip, got, tt.want)
		}
	}
}

func TestDialControl(t *testing.T) {
	if err := DialControl("tcp", "127.0.0.1:80", nil); err == nil {
		t.Fatal("expected loopback to be blocked")
	}
	if err := DialControl("tcp", "8.8.8.8:443", nil); err != nil {
		t.Fatalf("expected public IP to be allowed: %v", err)
	}
	if err := DialControl("tcp", "not-an-address", nil); err == nil {
		t.Fatal("expected malformed address to be blocked")
	}
}

func TestGuardControl(t *testing.T) {
	g := Guard{}
	if g.Control("example.com") == nil {
		t.Fatal("default guard must restrict")
	}

	g = Guard{AllowPrivate: true}
	if g.Control("example.com") != nil {
		t.Fatal("allow_private disables the guard")
	}

	g = Guard{AllowlistHosts: []string{"Internal.Example.COM"}}
	if g.Control("internal.example.com") != nil {
		t.Fatal("allowlisted host must be exempt")
	}
	if g.Control("other.example.com") == nil {
		t.Fatal("non-allowlisted host must be restricted")
	}
}
