package fingerprint

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectFromPorts(t *testing.T) {
	tests := []struct {
		name  string
		ports []int
		want  string
	}{
		{"rdp and smb", []int{3389, 445}, "Windows"},
		{"rdp only", []int{3389}, "Windows"},
		{"smb without ssh", []int{445}, "Windows"},
		{"ssh many ports", []int{22, 80, 443}, "Linux (Server)"},
		{"ssh alone", []int{22}, "Linux"},
		{"ssh snmp no web", []int{22, 161}, "Network Equipment"},
		{"snmp sparse", []int{161}, "Network Equipment"},
		{"rtsp", []int{554}, "IP Camera"},
		{"mqtt", []int{1883}, "IoT Device"},
		{"jetdirect", []int{9100}, "Printer"},
		{"web only", []int{80, 443}, "Web Server"},
		{"nothing", nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectFromPorts(tt.ports))
		})
	}
}

func TestDetectFromBanner(t *testing.T) {
	tests := []struct {
		banner string
		want   string
	}{
		{"Server: Apache/2.4.57 (Debian)", "Linux"},
		{"Server: nginx/1.24.0", "Linux (Web Server)"},
		{"Server: Microsoft-IIS/10.0", "Windows"},
		{"SSH-2.0-OpenSSH_9.3", "Linux"},
		{"MikroTik RouterOS", "Network Equipment (MikroTik)"},
		{"App-webs/ Hikvision", "IP Camera"},
		{"HP JetDirect", "Printer"},
		{"something else", ""},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, DetectFromBanner(tt.banner), "banner %q", tt.banner)
	}
}

// bannerServer accepts one connection and writes a canned banner.
func bannerServer(t *testing.T, banner string) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				buf := make([]byte, 256)
				_ = c.SetReadDeadline(time.Now().Add(time.Second))
				_, _ = c.Read(buf)
				_, _ = c.Write([]byte(banner))
			}(conn)
		}
	}()
	return ln.Addr().String()
}

func TestFingerprintBannerTakesPrecedence(t *testing.T) {
	addr := bannerServer(t, "SSH-2.0-OpenSSH_9.3 Ubuntu")
	host, portStr, err := net.SplitHostPort(addr)
	require.NoError(t, err)

	f := New(time.Second)
	// Redirect the port-22 probe to the test listener.
	f.dial = func(ctx context.Context, network, dialAddr string) (net.Conn, error) {
		return (&net.Dialer{}).DialContext(ctx, network, net.JoinHostPort(host, portStr))
	}

	hint := f.Fingerprint(context.Background(), host, []int{22, 161})
	assert.Equal(t, "Linux", hint)
}

func TestFingerprintFailedGrabKeepsPortProfile(t *testing.T) {
	f := New(100 * time.Millisecond)
	f.dial = func(ctx context.Context, network, addr string) (net.Conn, error) {
		return nil, context.DeadlineExceeded
	}

	hint := f.Fingerprint(context.Background(), "10.255.255.1", []int{22, 161})
	assert.Equal(t, "Network Equipment", hint)
}
