package scanner

import (
	"context"
	"errors"
	"net"
	"net/netip"
	"os"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/go-ping/ping"
	"github.com/mdlayher/arp"
	"github.com/rs/zerolog"

	"github.com/okanyucel/bigr-discovery/pkg/model"
)

// DefaultPorts are the ports that matter for BİGR classification: remote
// management, web, databases, SNMP, printing, camera/IoT protocols, and the
// common consumer-device endpoints.
var DefaultPorts = []int{
	21,    // FTP
	22,    // SSH
	23,    // Telnet
	25,    // SMTP
	53,    // DNS
	80,    // HTTP
	161,   // SNMP
	443,   // HTTPS
	445,   // SMB
	548,   // AFP
	554,   // RTSP
	631,   // CUPS / IPP
	1433,  // MSSQL
	1883,  // MQTT
	1900,  // UPnP / SSDP
	3306,  // MySQL
	3389,  // RDP
	5000,  // assorted web UIs
	5353,  // mDNS
	5432,  // PostgreSQL
	8008,  // Chromecast
	8080,  // HTTP alt
	8443,  // HTTPS alt
	8888,  // common IoT web UI
	9100,  // JetDirect
	49152, // UPnP dynamic
	62078, // Apple lockdownd
}

const (
	defaultPortTimeout = 2 * time.Second
	defaultPortWorkers = 20

	arpSweepWindow = 3 * time.Second
)

// PortScanner connect-scans TCP ports with a bounded worker pool.
type PortScanner struct {
	Timeout time.Duration
	Workers int

	// dial is swappable in tests.
	dial func(ctx context.Context, network, addr string) (net.Conn, error)
}

// NewPortScanner builds a scanner with the given per-port timeout and
// worker-pool size; zero values take the defaults.
func NewPortScanner(timeout time.Duration, workers int) *PortScanner {
	if timeout <= 0 {
		timeout = defaultPortTimeout
	}
	if workers <= 0 {
		workers = defaultPortWorkers
	}
	d := &net.Dialer{Timeout: timeout}
	return &PortScanner{Timeout: timeout, Workers: workers, dial: d.DialContext}
}

// ScanPorts probes every port concurrently and returns the ascending,
// deduplicated list of ports that accepted a connection. Needs no
// privileges and honors ctx cancellation between probes.
func (s *PortScanner) ScanPorts(ctx context.Context, ip string, ports []int) []int {
	if len(ports) == 0 {
		ports = DefaultPorts
	}

	sem := make(chan struct{}, s.Workers)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var open []int

	for _, port := range ports {
		select {
		case <-ctx.Done():
			wg.Wait()
			return model.NormalizePorts(open)
		default:
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(p int) {
			defer wg.Done()
			defer func() { <-sem }()

			dialCtx, cancel := context.WithTimeout(ctx, s.Timeout)
			defer cancel()
			conn, err := s.dial(dialCtx, "tcp", net.JoinHostPort(ip, strconv.Itoa(p)))
			if err != nil {
				return
			}
			conn.Close()

			mu.Lock()
			open = append(open, p)
			mu.Unlock()
		}(port)
	}

	wg.Wait()
	sort.Ints(open)
	return model.NormalizePorts(open)
}

// IsRoot reports whether the process runs with raw-socket privileges.
func IsRoot() bool {
	return os.Geteuid() == 0
}

// ARPSweep broadcasts ARP requests over the local segment for every host in
// the expanded target and collects replies for a fixed window. It requires
// raw-socket privileges; every failure path degrades to an empty result.
func ARPSweep(ctx context.Context, hostIPs []string, logger zerolog.Logger) []*model.Asset {
	if len(hostIPs) == 0 {
		return nil
	}

	ifi, err := sweepInterface(hostIPs[0])
	if err != nil {
		logger.Debug().Err(err).Msg("no usable interface for ARP sweep")
		return nil
	}

	client, err := arp.Dial(ifi)
	if err != nil {
		// Typically EPERM when unprivileged.
		logger.Debug().Err(err).Str("interface", ifi.Name).Msg("ARP sweep unavailable")
		return nil
	}
	defer client.Close()

	for _, ip := range hostIPs {
		addr, err := netip.ParseAddr(ip)
		if err != nil || !addr.Is4() {
			continue
		}
		if err := client.Request(addr); err != nil {
			logger.Debug().Err(err).Str("ip", ip).Msg("ARP request failed")
		}
		select {
		case <-ctx.Done():
			return nil
		default:
		}
	}

	wanted := make(map[string]struct{}, len(hostIPs))
	for _, ip := range hostIPs {
		wanted[ip] = struct{}{}
	}

	deadline := time.Now().Add(arpSweepWindow)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	if err := client.SetReadDeadline(deadline); err != nil {
		return nil
	}

	seen := map[string]struct{}{}
	var assets []*model.Asset
	for {
		pkt, _, err := client.Read()
		if err != nil {
			break // deadline or socket error ends the collection window
		}
		if pkt.Operation != arp.OperationReply {
			continue
		}
		ip := pkt.SenderIP.String()
		if _, ok := wanted[ip]; !ok {
			continue
		}
		if _, dup := seen[ip]; dup {
			continue
		}
		seen[ip] = struct{}{}

		asset := model.NewAsset(ip)
		asset.MAC = model.NormalizeMAC(pkt.SenderHardwareAddr.String())
		asset.ScanMethod = model.MethodActive
		asset.RawEvidence = map[string]any{"source": "arp_sweep"}
		assets = append(assets, asset)
	}
	return assets
}

// sweepInterface picks the first up, non-loopback interface whose IPv4
// network contains the target address.
func sweepInterface(targetIP string) (*net.Interface, error) {
	target := net.ParseIP(targetIP)

	ifis, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	var fallback *net.Interface
	for i := range ifis {
		ifi := &ifis[i]
		if ifi.Flags&net.FlagUp == 0 || ifi.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := ifi.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			ipNet, ok := addr.(*net.IPNet)
			if !ok || ipNet.IP.To4() == nil {
				continue
			}
			if fallback == nil {
				fallback = ifi
			}
			if target != nil && ipNet.Contains(target) {
				return ifi, nil
			}
		}
	}
	if fallback != nil {
		return fallback, nil
	}
	return nil, errors.New("no usable IPv4 interface")
}

// PingLiveness probes candidate IPs with unprivileged ICMP echo and returns
// the subset that responded. Used by active scans that cannot ARP-sweep so
// the port scanner only visits hosts that exist. Failures skip the host.
func PingLiveness(ctx context.Context, hostIPs []string, timeout time.Duration, workers int, logger zerolog.Logger) []string {
	if timeout <= 0 {
		timeout = time.Second
	}
	if workers <= 0 {
		workers = 50
	}

	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var live []string

	for _, ip := range hostIPs {
		select {
		case <-ctx.Done():
			wg.Wait()
			return live
		default:
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(addr string) {
			defer wg.Done()
			defer func() { <-sem }()

			pinger, err := ping.NewPinger(addr)
			if err != nil {
				return
			}
			pinger.Count = 1
			pinger.Timeout = timeout
			pinger.SetPrivileged(false)
			if err := pinger.Run(); err != nil {
				return
			}
			if pinger.Statistics().PacketsRecv > 0 {
				mu.Lock()
				live = append(live, addr)
				mu.Unlock()
			}
		}(ip)
	}

	wg.Wait()
	sort.Strings(live)
	logger.Debug().Int("candidates", len(hostIPs)).Int("live", len(live)).Msg("ICMP liveness sweep finished")
	return live
}
