// Package classify scores assets against the rule catalogs and assigns each
// one a BİGR category with a confidence value and human-readable evidence.
package classify

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/okanyucel/bigr-discovery/pkg/fingerprint"
	"github.com/okanyucel/bigr-discovery/pkg/model"
	"github.com/okanyucel/bigr-discovery/pkg/oui"
	"github.com/okanyucel/bigr-discovery/pkg/rules"
	"github.com/okanyucel/bigr-discovery/pkg/scanner"
)

// assignmentThreshold is the minimum confidence for a category to stick;
// below it the asset stays unclassified. The boundary itself classifies.
const assignmentThreshold = 0.30

// randomizedMACPenalty is subtracted from every category when a
// locally-administered MAC shows no open ports, pushing anonymous
// privacy-randomized clients toward unclassified.
const randomizedMACPenalty = 0.1

// OverrideSource exposes manual category tags. The inventory store
// implements it; a nil source disables overrides.
type OverrideSource interface {
	// Override returns the manual category and note for an IP, with
	// ok=false when the asset carries no tag.
	Override(ctx context.Context, ip string) (category model.Category, note string, ok bool)
}

// Classifier applies vendor, port, hostname, OS, and service scoring to
// assets. Construct with New; all collaborators are injected so tests can
// substitute them.
type Classifier struct {
	ruleset   *rules.Set
	vendors   *oui.Lookup
	fp        *fingerprint.Fingerprinter
	overrides OverrideSource
	logger    zerolog.Logger
}

// New builds a Classifier. A nil ruleset uses the built-in baseline for
// every family; a non-nil ruleset falls back to the baseline family by
// family when a family is empty. overrides may be nil.
func New(ruleset *rules.Set, vendors *oui.Lookup, fp *fingerprint.Fingerprinter, overrides OverrideSource, logger zerolog.Logger) *Classifier {
	if ruleset == nil {
		ruleset = &rules.Set{}
	}
	if vendors == nil {
		vendors = oui.NewLookup("", logger)
	}
	if fp == nil {
		fp = fingerprint.New(0)
	}
	return &Classifier{
		ruleset:   ruleset,
		vendors:   vendors,
		fp:        fp,
		overrides: overrides,
		logger:    logger,
	}
}

// scores accumulates per-category deltas plus the evidence that produced
// them.
type scores struct {
	byCategory map[model.Category]float64
	evidence   map[string]any
}

func newScores() *scores {
	s := &scores{
		byCategory: make(map[model.Category]float64, len(model.ScorableCategories)),
		evidence:   map[string]any{},
	}
	for _, c := range model.ScorableCategories {
		s.byCategory[c] = 0
	}
	return s
}

func (s *scores) add(deltas map[string]float64) {
	for cat, delta := range deltas {
		c := model.Category(cat)
		if _, ok := s.byCategory[c]; ok {
			s.byCategory[c] += delta
		}
	}
}

// winner returns the highest-scoring category; ties resolve in the fixed
// category order so results are deterministic.
func (s *scores) winner() model.Category {
	best := model.ScorableCategories[0]
	for _, c := range model.ScorableCategories[1:] {
		if s.byCategory[c] > s.byCategory[best] {
			best = c
		}
	}
	return best
}

// confidence is the winner's share of the total score, zero when nothing
// scored (or the penalty pushed the total below zero).
func (s *scores) confidence() float64 {
	var total, max float64
	first := true
	for _, c := range model.ScorableCategories {
		v := s.byCategory[c]
		total += v
		if first || v > max {
			max = v
			first = false
		}
	}
	if total <= 0 {
		return 0
	}
	return max / total
}

// Classify scores a single asset in place and returns it. The manual
// override short-circuits everything else. Enrichment failures never
// propagate; the asset always comes back with a valid category and a
// confidence in [0,1].
func (c *Classifier) Classify(ctx context.Context, asset *model.Asset, doFingerprint bool) *model.Asset {
	if c.overrides != nil {
		if category, note, ok := c.overrides.Override(ctx, asset.IP); ok {
			if note == "" {
				note = "User override"
			}
			asset.Category = category
			asset.ConfidenceScore = 1.0
			asset.RawEvidence = map[string]any{"manual_override": note}
			asset.Sensitivity = model.DeriveSensitivity(asset.Category, asset.Hostname, asset.OSHint)
			return asset
		}
	}

	if asset.Vendor == "" {
		asset.Vendor = c.vendors.Vendor(asset.MAC)
	}
	if asset.OSHint == "" && doFingerprint && len(asset.OpenPorts) > 0 {
		asset.OSHint = c.fp.Fingerprint(ctx, asset.IP, asset.OpenPorts)
	}

	s := newScores()
	c.scoreByPorts(asset.OpenPorts, s)
	c.scoreByVendor(asset.Vendor, s)
	c.scoreByHostname(asset.Hostname, s)
	scoreByOS(asset.OSHint, s)
	c.scoreByServices(asset.RawEvidence, s)
	scoreMACRandomization(asset.MAC, asset.OpenPorts, s)

	// mDNS evidence survives the evidence-map rebuild.
	mdnsServices, hadMDNS := asset.Evidence()["mdns_services"]

	confidence := s.confidence()
	if confidence >= assignmentThreshold {
		asset.Category = s.winner()
	} else {
		asset.Category = model.CategoryUnclassified
	}
	asset.ConfidenceScore = model.RoundScore(confidence)
	asset.RawEvidence = s.evidence
	if hadMDNS {
		asset.RawEvidence["mdns_services"] = mdnsServices
	}
	asset.Sensitivity = model.DeriveSensitivity(asset.Category, asset.Hostname, asset.OSHint)

	return asset
}

// ClassifyAll classifies every asset in the slice.
func (c *Classifier) ClassifyAll(ctx context.Context, assets []*model.Asset, doFingerprint bool) {
	for _, asset := range assets {
		c.Classify(ctx, asset, doFingerprint)
	}
}

func (c *Classifier) portRules() []rules.Rule {
	if len(c.ruleset.PortRules) > 0 {
		return c.ruleset.PortRules
	}
	return rules.Builtin().PortRules
}

func (c *Classifier) vendorRules() []rules.Rule {
	if len(c.ruleset.VendorRules) > 0 {
		return c.ruleset.VendorRules
	}
	return rules.Builtin().VendorRules
}

func (c *Classifier) hostnameRules() []rules.Rule {
	if len(c.ruleset.HostnameRules) > 0 {
		return c.ruleset.HostnameRules
	}
	return rules.Builtin().HostnameRules
}

func (c *Classifier) serviceRules() []rules.Rule {
	if len(c.ruleset.ServiceRules) > 0 {
		return c.ruleset.ServiceRules
	}
	return rules.Builtin().ServiceRules
}

func (c *Classifier) scoreByPorts(openPorts []int, s *scores) {
	deltas, evidence := rules.ApplyPortRules(c.portRules(), openPorts)
	s.add(deltas)
	if len(evidence) > 0 {
		s.evidence["port_rules"] = evidence
	}
}

func (c *Classifier) scoreByVendor(vendor string, s *scores) {
	deltas, evidence := rules.ApplyVendorRules(c.vendorRules(), vendor)
	s.add(deltas)
	if evidence != "" {
		s.evidence["vendor_rule"] = evidence
	}
}

func (c *Classifier) scoreByHostname(hostname string, s *scores) {
	deltas, evidence := rules.ApplyHostnameRules(c.hostnameRules(), hostname)
	s.add(deltas)
	if len(evidence) > 0 {
		s.evidence["hostname_rules"] = evidence
	}
}

func (c *Classifier) scoreByServices(rawEvidence map[string]any, s *scores) {
	serviceTypes := scanner.ServiceTypesFromEvidence(rawEvidence)
	if len(serviceTypes) == 0 {
		return
	}
	deltas, evidence := rules.ApplyServiceRules(c.serviceRules(), serviceTypes)
	s.add(deltas)
	if len(evidence) > 0 {
		s.evidence["service_rules"] = evidence
	}
}

// scoreByOS applies the fixed OS-hint table.
func scoreByOS(osHint string, s *scores) {
	if osHint == "" {
		return
	}
	lower := strings.ToLower(osHint)
	var evidence string

	switch {
	case strings.Contains(lower, "network equipment") || strings.Contains(lower, "routeros"):
		s.byCategory[model.CategoryNetworkSystems] += 0.4
		evidence = fmt.Sprintf("OS '%s' → Ağ/Sistem", osHint)
	case strings.Contains(lower, "linux (server)") || strings.Contains(lower, "web server"):
		s.byCategory[model.CategoryNetworkSystems] += 0.2
		s.byCategory[model.CategoryApplications] += 0.2
		evidence = fmt.Sprintf("OS '%s' → Ağ/Sistem + Uygulama", osHint)
	case strings.Contains(lower, "windows"):
		s.byCategory[model.CategoryPortable] += 0.3
		evidence = fmt.Sprintf("OS '%s' → Taşınabilir", osHint)
	case strings.Contains(lower, "ip camera"):
		s.byCategory[model.CategoryIoT] += 0.5
		evidence = fmt.Sprintf("OS '%s' → IoT", osHint)
	case strings.Contains(lower, "printer"):
		s.byCategory[model.CategoryIoT] += 0.5
		evidence = fmt.Sprintf("OS '%s' → IoT", osHint)
	case strings.Contains(lower, "iot"):
		s.byCategory[model.CategoryIoT] += 0.4
		evidence = fmt.Sprintf("OS '%s' → IoT", osHint)
	}

	if evidence != "" {
		s.evidence["os_rule"] = evidence
	}
}

// scoreMACRandomization penalizes anonymous privacy-randomized clients:
// a locally-administered MAC with no open ports says almost nothing about
// the device, so every category loses a little.
func scoreMACRandomization(mac string, openPorts []int, s *scores) {
	if !model.IsRandomizedMAC(mac) || len(openPorts) > 0 {
		return
	}
	for _, c := range model.ScorableCategories {
		s.byCategory[c] -= randomizedMACPenalty
	}
	s.evidence["randomized_mac"] = "locally administered MAC with no open ports"
}
