// Package rules loads and evaluates the YAML classification rule catalogs.
// Four rule families exist, one per file: port_rules, vendor_rules,
// hostname_rules, and service_rules. A loaded Set is immutable and safe for
// concurrent readers.
package rules

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Match holds the predicate fields of a rule. Which fields are meaningful
// depends on the rule family; unknown YAML keys are ignored.
type Match struct {
	PortsIncludeAll     []int    `yaml:"ports_include_all"`
	PortsIncludeAny     []int    `yaml:"ports_include_any"`
	PortsExclude        []int    `yaml:"ports_exclude"`
	VendorContains      []string `yaml:"vendor_contains"`
	HostnamePattern     string   `yaml:"hostname_pattern"`
	ServiceTypeContains []string `yaml:"service_type_contains"`
}

// Rule is a named predicate plus per-category score deltas.
type Rule struct {
	Name        string             `yaml:"name"`
	Description string             `yaml:"description"`
	Match       Match              `yaml:"match"`
	Scores      map[string]float64 `yaml:"scores"`

	hostnameRegex *regexp.Regexp
}

// EvaluatePorts reports whether the rule's port predicates hold for the
// given open-port set. At least one include predicate must be present.
func (r *Rule) EvaluatePorts(openPorts []int) bool {
	if len(r.Match.PortsIncludeAll) == 0 && len(r.Match.PortsIncludeAny) == 0 {
		return false
	}
	portSet := make(map[int]struct{}, len(openPorts))
	for _, p := range openPorts {
		portSet[p] = struct{}{}
	}

	for _, p := range r.Match.PortsIncludeAll {
		if _, ok := portSet[p]; !ok {
			return false
		}
	}
	if len(r.Match.PortsIncludeAny) > 0 {
		hit := false
		for _, p := range r.Match.PortsIncludeAny {
			if _, ok := portSet[p]; ok {
				hit = true
				break
			}
		}
		if !hit {
			return false
		}
	}
	for _, p := range r.Match.PortsExclude {
		if _, ok := portSet[p]; ok {
			return false
		}
	}
	return true
}

// EvaluateVendor reports whether any vendor_contains entry is a
// case-insensitive substring of the vendor name.
func (r *Rule) EvaluateVendor(vendor string) bool {
	if len(r.Match.VendorContains) == 0 || vendor == "" {
		return false
	}
	lower := strings.ToLower(vendor)
	for _, v := range r.Match.VendorContains {
		if strings.Contains(lower, strings.ToLower(v)) {
			return true
		}
	}
	return false
}

// EvaluateHostname reports whether the hostname matches the rule's pattern.
func (r *Rule) EvaluateHostname(hostname string) bool {
	if r.hostnameRegex == nil || hostname == "" {
		return false
	}
	return r.hostnameRegex.MatchString(hostname)
}

// EvaluateServices reports whether any discovered mDNS service type contains
// one of the rule's substrings.
func (r *Rule) EvaluateServices(serviceTypes []string) bool {
	if len(r.Match.ServiceTypeContains) == 0 {
		return false
	}
	for _, st := range serviceTypes {
		lower := strings.ToLower(st)
		for _, sub := range r.Match.ServiceTypeContains {
			if strings.Contains(lower, strings.ToLower(sub)) {
				return true
			}
		}
	}
	return false
}

// Set is the full collection of loaded rules, split by family.
type Set struct {
	PortRules     []Rule
	VendorRules   []Rule
	HostnameRules []Rule
	ServiceRules  []Rule
}

// Total counts all rules in the set.
func (s *Set) Total() int {
	return len(s.PortRules) + len(s.VendorRules) + len(s.HostnameRules) + len(s.ServiceRules)
}

// familyForFile maps a rule file's base name to the matching family slot.
func (s *Set) familyForFile(stem string) *[]Rule {
	switch stem {
	case "port_rules":
		return &s.PortRules
	case "vendor_rules":
		return &s.VendorRules
	case "hostname_rules":
		return &s.HostnameRules
	case "service_rules":
		return &s.ServiceRules
	}
	return nil
}

// Load reads every *.yaml file in dir into a Set. A missing or empty
// directory yields a valid empty Set. A file that fails to parse is logged
// and skipped without poisoning the rest of the catalog.
func Load(dir string, logger zerolog.Logger) *Set {
	set := &Set{}
	if dir == "" {
		return set
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		logger.Debug().Err(err).Str("dir", dir).Msg("rules directory unavailable")
		return set
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".yaml") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		stem := strings.TrimSuffix(name, ".yaml")
		family := set.familyForFile(stem)
		if family == nil {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			logger.Warn().Err(err).Str("file", name).Msg("cannot read rule file, skipping")
			continue
		}
		parsed, err := parseRules(data, logger)
		if err != nil {
			logger.Warn().Err(err).Str("file", name).Msg("cannot parse rule file, skipping")
			continue
		}
		*family = append(*family, parsed...)
	}

	logger.Debug().Int("rules", set.Total()).Str("dir", dir).Msg("loaded classification rules")
	return set
}

func parseRules(data []byte, logger zerolog.Logger) ([]Rule, error) {
	var raw []Rule
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("unmarshal rules: %w", err)
	}

	rules := make([]Rule, 0, len(raw))
	for _, r := range raw {
		if r.Name == "" {
			r.Name = "unnamed"
		}
		if r.Match.HostnamePattern != "" {
			re, err := regexp.Compile("(?i)" + r.Match.HostnamePattern)
			if err != nil {
				logger.Warn().Err(err).Str("rule", r.Name).Msg("invalid hostname pattern, skipping rule")
				continue
			}
			r.hostnameRegex = re
		}
		rules = append(rules, r)
	}
	return rules, nil
}

// ApplyPortRules evaluates every port rule; all matches accumulate.
func ApplyPortRules(rules []Rule, openPorts []int) (map[string]float64, []string) {
	deltas := map[string]float64{}
	var evidence []string
	for i := range rules {
		r := &rules[i]
		if !r.EvaluatePorts(openPorts) {
			continue
		}
		addScores(deltas, r.Scores)
		desc := r.Description
		if desc == "" {
			desc = "matched"
		}
		evidence = append(evidence, fmt.Sprintf("%s: %s", r.Name, desc))
	}
	return deltas, evidence
}

// ApplyVendorRules stops at the first matching vendor rule so a vendor
// string matching several aliases is not over-weighted.
func ApplyVendorRules(rules []Rule, vendor string) (map[string]float64, string) {
	for i := range rules {
		r := &rules[i]
		if r.EvaluateVendor(vendor) {
			return r.Scores, fmt.Sprintf("%s → %s", vendor, r.Name)
		}
	}
	return nil, ""
}

// ApplyHostnameRules stops at the first matching hostname rule.
func ApplyHostnameRules(rules []Rule, hostname string) (map[string]float64, []string) {
	for i := range rules {
		r := &rules[i]
		if r.EvaluateHostname(hostname) {
			return r.Scores, []string{fmt.Sprintf("hostname '%s' → %s", hostname, r.Name)}
		}
	}
	return nil, nil
}

// ApplyServiceRules evaluates every service rule; all matches accumulate.
func ApplyServiceRules(rules []Rule, serviceTypes []string) (map[string]float64, []string) {
	deltas := map[string]float64{}
	var evidence []string
	for i := range rules {
		r := &rules[i]
		if !r.EvaluateServices(serviceTypes) {
			continue
		}
		addScores(deltas, r.Scores)
		desc := r.Description
		if desc == "" {
			desc = "matched"
		}
		evidence = append(evidence, fmt.Sprintf("%s: %s", r.Name, desc))
	}
	return deltas, evidence
}

func addScores(dst map[string]float64, src map[string]float64) {
	for cat, delta := range src {
		dst[cat] += delta
	}
}
