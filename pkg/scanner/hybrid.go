package scanner

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/okanyucel/bigr-discovery/pkg/model"
	"github.com/okanyucel/bigr-discovery/pkg/netutil"
)

// mdnsJoinGrace pads the mDNS window when joining the listener goroutine so
// a slow resolve cannot stall the scan forever.
const mdnsJoinGrace = 5 * time.Second

// Hybrid orchestrates the full discovery pipeline: passive harvest and mDNS
// listening run concurrently, the privileged ARP sweep follows, and the
// results merge deterministically before mDNS enrichment.
type Hybrid struct {
	Passive *Passive
	Ports   *PortScanner
	MDNS    *MDNSListener

	// Ping enables the ICMP liveness pre-check for active scans that
	// cannot ARP-sweep.
	Ping bool

	logger zerolog.Logger

	// Swappable for tests.
	privileged func() bool
	arpSweep   func(ctx context.Context, hostIPs []string, logger zerolog.Logger) []*model.Asset
	pingSweep  func(ctx context.Context, hostIPs []string, timeout time.Duration, workers int, logger zerolog.Logger) []string
}

// NewHybrid wires a Hybrid scanner from its parts.
func NewHybrid(passive *Passive, ports *PortScanner, mdnsListener *MDNSListener, logger zerolog.Logger) *Hybrid {
	return &Hybrid{
		Passive:    passive,
		Ports:      ports,
		MDNS:       mdnsListener,
		Ping:       true,
		logger:     logger,
		privileged: IsRoot,
		arpSweep:   ARPSweep,
		pingSweep:  PingLiveness,
	}
}

// Scan runs one complete scan over target in the given mode and returns the
// ScanResult. An empty or host-less target yields an empty result, not an
// error; only a malformed target fails.
func (h *Hybrid) Scan(ctx context.Context, target string, mode model.ScanMethod, ports []int) (*model.ScanResult, error) {
	startedAt := time.Now().UTC()
	root := h.privileged()

	hostIPs, err := netutil.ExpandTarget(target)
	if err != nil {
		return nil, err
	}
	if len(hostIPs) == 0 {
		// An empty target is an empty scan, not a failure.
		return &model.ScanResult{
			Target:      target,
			ScanMethod:  mode,
			StartedAt:   startedAt,
			CompletedAt: time.Now().UTC(),
			IsRoot:      root,
		}, nil
	}

	var passiveAssets, activeAssets []*model.Asset

	// Phase A: mDNS listener and passive discovery, both unprivileged,
	// run concurrently. Port-scan passive hosts that came back bare.
	var mdnsCh chan []MDNSService
	if mode == model.MethodPassive || mode == model.MethodHybrid {
		mdnsCh = make(chan []MDNSService, 1)
		go func() {
			mdnsCh <- h.MDNS.Discover(ctx)
		}()

		passiveAssets = h.Passive.Scan(ctx, hostIPs)
		for _, asset := range passiveAssets {
			if len(asset.OpenPorts) == 0 {
				asset.OpenPorts = h.Ports.ScanPorts(ctx, asset.IP, ports)
			}
		}
	}

	// Phase B: privileged ARP sweep plus port scan of its findings. When
	// privileges are missing the sweep silently degrades; an ICMP liveness
	// pre-check then keeps a pure active scan from dialing every address.
	if mode == model.MethodActive || mode == model.MethodHybrid {
		if root {
			activeAssets = h.arpSweep(ctx, hostIPs, h.logger)
		} else if mode == model.MethodActive && h.Ping {
			for _, ip := range h.pingSweep(ctx, hostIPs, time.Second, 50, h.logger) {
				asset := model.NewAsset(ip)
				asset.ScanMethod = model.MethodActive
				asset.RawEvidence = map[string]any{"source": "icmp_ping"}
				activeAssets = append(activeAssets, asset)
			}
		}
		for _, asset := range activeAssets {
			asset.OpenPorts = h.Ports.ScanPorts(ctx, asset.IP, ports)
		}
	}

	// Merge is strictly sequential after both phases.
	var assets []*model.Asset
	switch mode {
	case model.MethodHybrid:
		assets = MergeAssets(passiveAssets, activeAssets)
	case model.MethodActive:
		assets = activeAssets
	default:
		assets = passiveAssets
	}

	// mDNS enrichment always runs last so its evidence reaches the
	// classifier.
	if mdnsCh != nil {
		select {
		case services := <-mdnsCh:
			if len(services) > 0 {
				h.logger.Info().Int("assets", len(assets)).Int("services", len(services)).Msg("enriching assets with mDNS services")
				EnrichWithMDNS(assets, services)
			}
		case <-time.After(h.MDNS.Window + mdnsJoinGrace):
			h.logger.Warn().Msg("mDNS discovery did not finish in time")
		case <-ctx.Done():
		}
	}

	return &model.ScanResult{
		Target:      target,
		ScanMethod:  mode,
		StartedAt:   startedAt,
		CompletedAt: time.Now().UTC(),
		Assets:      assets,
		IsRoot:      root,
	}, nil
}

// MergeAssets combines passive and active results keyed by MAC (or IP).
// Passive entries seed the map; active entries overwrite while preserving
// passive hostnames, unioning open ports, and merging evidence with active
// winning key conflicts. Merged assets carry the hybrid scan method.
func MergeAssets(passive, active []*model.Asset) []*model.Asset {
	merged := map[string]*model.Asset{}
	var order []string

	for _, asset := range passive {
		key := asset.Key()
		if _, ok := merged[key]; !ok {
			order = append(order, key)
		}
		merged[key] = asset
	}

	for _, asset := range active {
		key := asset.Key()
		existing, ok := merged[key]
		if !ok {
			merged[key] = asset
			order = append(order, key)
			continue
		}

		if asset.Hostname == "" && existing.Hostname != "" {
			asset.Hostname = existing.Hostname
		}
		asset.OpenPorts = model.NormalizePorts(append(append([]int{}, existing.OpenPorts...), asset.OpenPorts...))
		asset.ScanMethod = model.MethodHybrid

		evidence := map[string]any{}
		for k, v := range existing.RawEvidence {
			evidence[k] = v
		}
		for k, v := range asset.RawEvidence {
			evidence[k] = v
		}
		asset.RawEvidence = evidence

		merged[key] = asset
	}

	assets := make([]*model.Asset, 0, len(order))
	for _, key := range order {
		assets = append(assets, merged[key])
	}
	return assets
}
