package transport

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"golang.org/x/time/rate"
)

func TestParseGroup(t *testing.T) {
	tests := []struct {
		in       string
		iface    string
		endpoint string
		wantErr  error
	}{
		{in: "239.1.2.3:5000", endpoint: "udp://239.1.2.3:5000"},
		{in: "udp://239.1.2.3:5000", endpoint: "udp://239.1.2.3:5000"},
		{in: "udp://eth0;239.1.2.3:5000", iface: "eth0", endpoint: "udp://239.1.2.3:5000"},
		{in: "epgm://192.168.1.10;239.0.0.9:7000", iface: "192.168.1.10", endpoint: "udp://239.0.0.9:7000"},
		{in: "udp://10.0.0.1:5000", wantErr: ErrNotMulticast},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			g, err := ParseGroup(tt.in)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("got %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseGroup failed: %v", err)
			}
			if g.Interface != tt.iface {
				t.Errorf("Interface = %q, want %q", g.Interface, tt.iface)
			}
			if g.Endpoint() != tt.endpoint {
				t.Errorf("Endpoint = %q, want %q", g.Endpoint(), tt.endpoint)
			}
		})
	}
}

func TestParseGroupMalformed(t *testing.T) {
	if _, err := ParseGroup("udp://not-an-address"); err == nil {
		t.Error("expected error for malformed group")
	}
}

func TestRateLimit(t *testing.T) {
	l := RateLimit(DefaultMulticastRate)
	if want := rate.Limit(DefaultMulticastRate * 1024 / 8); l.Limit() != want {
		t.Errorf("Limit = %v, want %v", l.Limit(), want)
	}
	if l.Burst() < MaxDatagramSize {
		t.Errorf("Burst = %d, smaller than a datagram", l.Burst())
	}

	if RateLimit(-1).Limit() != rate.Inf {
		t.Error("negative rate should be unlimited")
	}
}

func TestMulticastRejectsOversizedMessage(t *testing.T) {
	sock, err := DialMulticast(context.Background(), "udp://239.255.0.1:9999", MulticastOptions{})
	if err != nil {
		t.Skipf("multicast socket unavailable: %v", err)
	}
	defer sock.Close()

	if sock.Endpoint() != "udp://239.255.0.1:9999" {
		t.Errorf("Endpoint = %q", sock.Endpoint())
	}

	released := false
	big := bytes.Repeat([]byte{1}, MaxDatagramSize)
	err = sock.SendZeroCopy([][]byte{[]byte("t"), big}, func() { released = true })
	if !errors.Is(err, ErrMessageTooLarge) {
		t.Errorf("got %v, want ErrMessageTooLarge", err)
	}
	if !released {
		t.Error("release not called")
	}
}

func TestMulticastClosed(t *testing.T) {
	sock, err := DialMulticast(context.Background(), "239.255.0.2:9998", MulticastOptions{Hops: 1})
	if err != nil {
		t.Skipf("multicast socket unavailable: %v", err)
	}
	if err := sock.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := sock.Send([][]byte{[]byte("t")}); !errors.Is(err, ErrClosed) {
		t.Errorf("got %v, want ErrClosed", err)
	}
	if err := sock.Close(); err != nil {
		t.Errorf("second Close returned %v", err)
	}
}

func TestDialMulticastUnknownInterface(t *testing.T) {
	_, err := DialMulticast(context.Background(), "239.255.0.3:9997", MulticastOptions{Interface: "no-such-if0"})
	if err == nil {
		t.Error("expected error for unknown interface")
	}
}
