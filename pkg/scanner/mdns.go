package scanner

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/mdns"
	"github.com/rs/zerolog"

	"github.com/okanyucel/bigr-discovery/pkg/model"
)

// DefaultMDNSWindow is how long the listener collects advertisements.
const DefaultMDNSWindow = 8 * time.Second

// mdnsServiceTypes are the DNS-SD service types worth browsing on home and
// enterprise networks: web, printing, casting, Apple ecosystem, file
// sharing, cameras, and smart speakers.
var mdnsServiceTypes = []string{
	"_http._tcp.local.",
	"_ipp._tcp.local.",
	"_printer._tcp.local.",
	"_airplay._tcp.local.",
	"_raop._tcp.local.",
	"_googlecast._tcp.local.",
	"_smb._tcp.local.",
	"_afpovertcp._tcp.local.",
	"_ssh._tcp.local.",
	"_rtsp._tcp.local.",
	"_hap._tcp.local.",
	"_homekit._tcp.local.",
	"_companion-link._tcp.local.",
	"_spotify-connect._tcp.local.",
	"_sonos._tcp.local.",
}

// MDNSService is a single resolved service advertisement.
type MDNSService struct {
	Name        string            `json:"name"`
	ServiceType string            `json:"service_type"`
	IP          string            `json:"ip"`
	Port        int               `json:"port"`
	Hostname    string            `json:"hostname,omitempty"`
	Properties  map[string]string `json:"properties,omitempty"`
}

// MDNSListener browses the fixed service-type set for a bounded window.
type MDNSListener struct {
	Window time.Duration
	logger zerolog.Logger

	// query is swappable in tests.
	query func(params *mdns.QueryParam) error
}

// NewMDNSListener builds a listener with the given collection window
// (DefaultMDNSWindow when zero).
func NewMDNSListener(window time.Duration, logger zerolog.Logger) *MDNSListener {
	if window <= 0 {
		window = DefaultMDNSWindow
	}
	return &MDNSListener{Window: window, logger: logger, query: mdns.Query}
}

// Discover browses every service type concurrently and returns the
// deduplicated services seen within the window. Listener or query failures
// are non-fatal: the affected service type simply contributes nothing.
func (l *MDNSListener) Discover(ctx context.Context) []MDNSService {
	type tagged struct {
		entry       *mdns.ServiceEntry
		serviceType string
	}
	collected := make(chan tagged, 64)

	var queryWG sync.WaitGroup
	for _, serviceType := range mdnsServiceTypes {
		queryWG.Add(1)
		go func(st string) {
			defer queryWG.Done()

			ch := make(chan *mdns.ServiceEntry, 16)
			done := make(chan struct{})
			go func() {
				defer close(done)
				for entry := range ch {
					select {
					case collected <- tagged{entry: entry, serviceType: st}:
					case <-ctx.Done():
					}
				}
			}()

			err := l.query(&mdns.QueryParam{
				Service:     strings.TrimSuffix(strings.TrimSuffix(st, "."), ".local"),
				Domain:      "local",
				Timeout:     l.Window,
				Entries:     ch,
				DisableIPv6: true,
			})
			if err != nil {
				l.logger.Debug().Err(err).Str("service", st).Msg("mDNS browse failed")
			}
			close(ch)
			<-done
		}(serviceType)
	}

	go func() {
		queryWG.Wait()
		close(collected)
	}()

	type dedupeKey struct{ name, serviceType, ip string }
	seen := map[dedupeKey]struct{}{}
	var services []MDNSService

	for t := range collected {
		entry := t.entry
		if entry == nil || entry.AddrV4 == nil {
			continue
		}
		ip := entry.AddrV4.String()
		key := dedupeKey{name: entry.Name, serviceType: t.serviceType, ip: ip}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		services = append(services, MDNSService{
			Name:        entry.Name,
			ServiceType: t.serviceType,
			IP:          ip,
			Port:        entry.Port,
			Hostname:    entry.Host,
			Properties:  parseTXTFields(entry.InfoFields),
		})
	}

	sort.Slice(services, func(i, j int) bool {
		if services[i].IP != services[j].IP {
			return services[i].IP < services[j].IP
		}
		return services[i].ServiceType < services[j].ServiceType
	})
	l.logger.Debug().Int("services", len(services)).Dur("window", l.Window).Msg("mDNS discovery finished")
	return services
}

// parseTXTFields splits DNS-SD TXT records into key/value pairs. Entries
// without an '=' become flag keys with empty values.
func parseTXTFields(fields []string) map[string]string {
	if len(fields) == 0 {
		return nil
	}
	props := make(map[string]string, len(fields))
	for _, f := range fields {
		if f == "" {
			continue
		}
		k, v, _ := strings.Cut(f, "=")
		props[k] = v
	}
	return props
}

// EnrichWithMDNS attaches discovered services to assets by IP. An asset
// missing a hostname adopts the first mDNS-reported one. The service list
// lands in raw_evidence under "mdns_services".
func EnrichWithMDNS(assets []*model.Asset, services []MDNSService) {
	if len(services) == 0 {
		return
	}

	byIP := map[string][]MDNSService{}
	for _, svc := range services {
		byIP[svc.IP] = append(byIP[svc.IP], svc)
	}

	for _, asset := range assets {
		matched := byIP[asset.IP]
		if len(matched) == 0 {
			continue
		}

		if asset.Hostname == "" {
			for _, svc := range matched {
				if svc.Hostname != "" {
					asset.Hostname = strings.TrimSuffix(svc.Hostname, ".")
					break
				}
			}
		}

		evidence := make([]map[string]any, 0, len(matched))
		for _, svc := range matched {
			entry := map[string]any{
				"name":         svc.Name,
				"service_type": svc.ServiceType,
				"port":         svc.Port,
			}
			if svc.Hostname != "" {
				entry["hostname"] = svc.Hostname
			}
			if len(svc.Properties) > 0 {
				entry["properties"] = svc.Properties
			}
			evidence = append(evidence, entry)
		}
		asset.Evidence()["mdns_services"] = evidence
	}
}

// ServiceTypesFromEvidence extracts the unique mDNS service types recorded
// on an asset, for the classifier's service rules.
func ServiceTypesFromEvidence(rawEvidence map[string]any) []string {
	raw, ok := rawEvidence["mdns_services"]
	if !ok {
		return nil
	}

	var types []string
	seen := map[string]struct{}{}
	appendType := func(st string) {
		if st == "" {
			return
		}
		if _, dup := seen[st]; dup {
			return
		}
		seen[st] = struct{}{}
		types = append(types, st)
	}

	switch list := raw.(type) {
	case []map[string]any:
		for _, entry := range list {
			if st, ok := entry["service_type"].(string); ok {
				appendType(st)
			}
		}
	case []any:
		for _, item := range list {
			if entry, ok := item.(map[string]any); ok {
				if st, ok := entry["service_type"].(string); ok {
					appendType(st)
				}
			}
		}
	}
	return types
}
