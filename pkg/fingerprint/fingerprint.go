// Package fingerprint infers an OS/role hint for a host from its open-port
// profile and, when available, from service banners.
package fingerprint

import (
	"context"
	"fmt"
	"net"
	"regexp"
	"strings"
	"time"
)

// DefaultTimeout bounds each banner-grab connection.
const DefaultTimeout = 2 * time.Second

// bannerPorts are probed in this order; at most two grabs run per host.
var bannerPorts = []int{22, 80, 8080}

const maxBannerGrabs = 2

var bannerPatterns = []struct {
	re   *regexp.Regexp
	hint string
}{
	{regexp.MustCompile(`microsoft|windows|iis`), "Windows"},
	{regexp.MustCompile(`ubuntu|debian|centos|fedora|red\s?hat`), "Linux"},
	{regexp.MustCompile(`apache|nginx|lighttpd`), "Linux (Web Server)"},
	{regexp.MustCompile(`openssh`), "Linux"},
	{regexp.MustCompile(`mikrotik|routeros`), "Network Equipment (MikroTik)"},
	{regexp.MustCompile(`cisco|ios`), "Network Equipment (Cisco)"},
	{regexp.MustCompile(`hikvision|dahua`), "IP Camera"},
	{regexp.MustCompile(`printer|jetdirect|cups`), "Printer"},
}

// Fingerprinter resolves OS hints. The zero value is not usable; construct
// with New so the timeout is always set.
type Fingerprinter struct {
	timeout time.Duration

	// dial is swappable in tests.
	dial func(ctx context.Context, network, addr string) (net.Conn, error)
}

// New builds a Fingerprinter with the given per-connection timeout
// (DefaultTimeout when zero).
func New(timeout time.Duration) *Fingerprinter {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	d := &net.Dialer{Timeout: timeout}
	return &Fingerprinter{timeout: timeout, dial: d.DialContext}
}

// Fingerprint combines the port-profile heuristic with banner grabs.
// A more specific banner match takes precedence over the port profile.
// All probe failures are swallowed; the port-profile hint survives them.
func (f *Fingerprinter) Fingerprint(ctx context.Context, ip string, openPorts []int) string {
	hint := DetectFromPorts(openPorts)

	portSet := make(map[int]struct{}, len(openPorts))
	for _, p := range openPorts {
		portSet[p] = struct{}{}
	}

	grabs := 0
	for _, port := range bannerPorts {
		if grabs >= maxBannerGrabs {
			break
		}
		if _, open := portSet[port]; !open {
			continue
		}
		grabs++
		banner := f.grabBanner(ctx, ip, port)
		if bannerHint := DetectFromBanner(banner); bannerHint != "" {
			return bannerHint
		}
	}
	return hint
}

// DetectFromPorts applies the known port-combination signatures.
func DetectFromPorts(openPorts []int) string {
	portSet := make(map[int]struct{}, len(openPorts))
	for _, p := range openPorts {
		portSet[p] = struct{}{}
	}
	has := func(p int) bool {
		_, ok := portSet[p]
		return ok
	}

	switch {
	case has(3389):
		return "Windows"
	case has(445) && !has(22):
		return "Windows"
	case has(22) && has(161) && !has(80):
		return "Network Equipment"
	case has(161) && len(portSet) <= 2:
		return "Network Equipment"
	case has(22):
		if len(portSet) >= 3 {
			return "Linux (Server)"
		}
		return "Linux"
	case has(554):
		return "IP Camera"
	case has(1883):
		return "IoT Device"
	case has(9100):
		return "Printer"
	}

	if len(portSet) > 0 && onlyWebPorts(portSet) {
		return "Web Server"
	}
	return ""
}

func onlyWebPorts(portSet map[int]struct{}) bool {
	for p := range portSet {
		switch p {
		case 80, 443, 8080, 8443:
		default:
			return false
		}
	}
	return true
}

// DetectFromBanner extracts an OS hint from a service banner.
func DetectFromBanner(banner string) string {
	if banner == "" {
		return ""
	}
	lower := strings.ToLower(banner)
	for _, p := range bannerPatterns {
		if p.re.MatchString(lower) {
			return p.hint
		}
	}
	return ""
}

// grabBanner connects, sends a protocol-appropriate probe, and reads up to
// 1024 bytes. Every failure returns an empty banner.
func (f *Fingerprinter) grabBanner(ctx context.Context, ip string, port int) string {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	conn, err := f.dial(ctx, "tcp", net.JoinHostPort(ip, fmt.Sprintf("%d", port)))
	if err != nil {
		return ""
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(f.timeout))

	var probe string
	switch port {
	case 80, 443, 8080, 8443:
		probe = fmt.Sprintf("HEAD / HTTP/1.0\r\nHost: %s\r\n\r\n", ip)
	default:
		probe = "\r\n"
	}
	if _, err := conn.Write([]byte(probe)); err != nil {
		return ""
	}

	buf := make([]byte, 1024)
	n, _ := conn.Read(buf)
	if n <= 0 {
		return ""
	}
	return strings.TrimSpace(string(buf[:n]))
}
