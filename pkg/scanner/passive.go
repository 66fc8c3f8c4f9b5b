// Package scanner implements the discovery pipeline: passive ARP-table
// harvest, active TCP/ARP probing, mDNS service discovery, and the hybrid
// orchestrator that merges the three.
package scanner

import (
	"context"
	"net"
	"os"
	"os/exec"
	"regexp"
	"runtime"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/okanyucel/bigr-discovery/pkg/model"
)

const (
	procNetARPPath = "/proc/net/arp"

	defaultLookupTimeout = 2 * time.Second
)

// arpLinePattern matches `hostname (ip) at mac ...` lines from `arp -a`.
var arpLinePattern = regexp.MustCompile(`[\w.\-?]+\s+\((\d+\.\d+\.\d+\.\d+)\)\s+at\s+([0-9a-fA-F:]+)`)

// arpHostnamePattern captures the leading hostname token when present.
var arpHostnamePattern = regexp.MustCompile(`^([\w.\-]+)\s+\(`)

// Passive harvests hosts from the system ARP table without privileges and
// enriches them with reverse DNS and NetBIOS names.
type Passive struct {
	// LookupTimeout bounds each reverse DNS / NetBIOS query.
	LookupTimeout time.Duration

	// NetBIOS enables the UDP/137 name probe for hosts PTR could not name.
	NetBIOS bool

	logger zerolog.Logger

	// Swappable for tests.
	runARP      func(ctx context.Context) (string, error)
	readProcARP func() (string, error)
	resolveAddr func(ctx context.Context, ip string) string
	netbiosName func(ctx context.Context, ip string, timeout time.Duration) string
}

// NewPassive builds a passive scanner with default lookup behavior.
func NewPassive(logger zerolog.Logger) *Passive {
	p := &Passive{
		LookupTimeout: defaultLookupTimeout,
		NetBIOS:       true,
		logger:        logger,
	}
	p.runARP = func(ctx context.Context) (string, error) {
		out, err := exec.CommandContext(ctx, "arp", "-a").Output()
		return string(out), err
	}
	p.readProcARP = func() (string, error) {
		data, err := os.ReadFile(procNetARPPath)
		return string(data), err
	}
	p.resolveAddr = p.reverseLookup
	p.netbiosName = queryNetBIOSName
	return p
}

// Scan runs every passive source, deduplicates by MAC (or IP when the MAC
// is unknown), fills hostnames best-effort, and filters to targetIPs when
// a target list is supplied. It never fails: unavailable sources simply
// contribute nothing.
func (p *Passive) Scan(ctx context.Context, targetIPs []string) []*model.Asset {
	seen := map[string]*model.Asset{}
	var order []string

	add := func(asset *model.Asset) {
		key := asset.Key()
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = asset
		order = append(order, key)
	}

	cmdCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if out, err := p.runARP(cmdCtx); err == nil {
		for _, asset := range parseARPOutput(out) {
			add(asset)
		}
	} else {
		p.logger.Debug().Err(err).Msg("arp command unavailable")
	}

	if runtime.GOOS == "linux" {
		if content, err := p.readProcARP(); err == nil {
			for _, asset := range parseProcNetARP(content) {
				add(asset)
			}
		}
	}

	var targetSet map[string]struct{}
	if len(targetIPs) > 0 {
		targetSet = make(map[string]struct{}, len(targetIPs))
		for _, ip := range targetIPs {
			targetSet[ip] = struct{}{}
		}
	}

	assets := make([]*model.Asset, 0, len(order))
	for _, key := range order {
		asset := seen[key]
		if targetSet != nil {
			if _, ok := targetSet[asset.IP]; !ok {
				continue
			}
		}
		if asset.Hostname == "" {
			asset.Hostname = p.resolveAddr(ctx, asset.IP)
		}
		if asset.Hostname == "" && p.NetBIOS {
			asset.Hostname = p.netbiosName(ctx, asset.IP, p.LookupTimeout)
		}
		assets = append(assets, asset)
	}
	return assets
}

// parseARPOutput extracts assets from `arp -a` output.
func parseARPOutput(out string) []*model.Asset {
	var assets []*model.Asset
	for _, line := range strings.Split(out, "\n") {
		m := arpLinePattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		mac := model.NormalizeMAC(m[2])
		if !usableMAC(mac) {
			continue
		}

		asset := model.NewAsset(m[1])
		asset.MAC = mac
		asset.ScanMethod = model.MethodPassive
		asset.RawEvidence = map[string]any{"source": "arp_table"}

		if hm := arpHostnamePattern.FindStringSubmatch(line); hm != nil && hm[1] != "?" {
			asset.Hostname = hm[1]
		}
		assets = append(assets, asset)
	}
	return assets
}

// parseProcNetARP extracts assets from /proc/net/arp content.
func parseProcNetARP(content string) []*model.Asset {
	lines := strings.Split(content, "\n")
	if len(lines) < 2 {
		return nil
	}

	var assets []*model.Asset
	for _, line := range lines[1:] { // skip header
		fields := strings.Fields(line)
		if len(fields) < 4 {
			continue
		}
		mac := model.NormalizeMAC(fields[3])
		if !usableMAC(mac) {
			continue
		}

		asset := model.NewAsset(fields[0])
		asset.MAC = mac
		asset.ScanMethod = model.MethodPassive
		asset.RawEvidence = map[string]any{"source": "proc_net_arp"}
		assets = append(assets, asset)
	}
	return assets
}

// usableMAC filters the sentinel values ARP tables report for entries that
// never resolved.
func usableMAC(mac string) bool {
	switch mac {
	case "", "00:00:00:00:00:00", "ff:ff:ff:ff:ff:ff", "(incomplete)":
		return false
	}
	return len(strings.Split(mac, ":")) == 6
}

func (p *Passive) reverseLookup(ctx context.Context, ip string) string {
	ctx, cancel := context.WithTimeout(ctx, p.LookupTimeout)
	defer cancel()

	names, err := net.DefaultResolver.LookupAddr(ctx, ip)
	if err != nil || len(names) == 0 {
		return ""
	}
	return strings.TrimSuffix(names[0], ".")
}

// netbiosQuery is a NBSTAT wildcard name query.
var netbiosQuery = []byte{
	0x80, 0x94, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x20, 'C', 'K',
	'A', 'A', 'A', 'A', 'A', 'A', 'A', 'A', 'A', 'A', 'A', 'A', 'A', 'A', 'A',
	'A', 'A', 'A', 'A', 'A', 'A', 'A', 'A', 'A', 'A', 'A', 'A', 'A', 'A', 'A',
	0x00,
	0x00, 0x21, 0x00, 0x01,
}

// queryNetBIOSName asks UDP/137 for the host's NetBIOS name. Best effort:
// any failure yields an empty name.
func queryNetBIOSName(ctx context.Context, ip string, timeout time.Duration) string {
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "udp", net.JoinHostPort(ip, "137"))
	if err != nil {
		return ""
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(timeout))

	if _, err := conn.Write(netbiosQuery); err != nil {
		return ""
	}

	buf := make([]byte, 1024)
	n, err := conn.Read(buf)
	if err != nil || n <= 57 {
		return ""
	}

	end := 57 + 15
	if end > n {
		end = n
	}
	name := strings.TrimSpace(strings.Map(func(r rune) rune {
		if r < 0x20 || r > 0x7e {
			return -1
		}
		return r
	}, string(buf[57:end])))
	return name
}
