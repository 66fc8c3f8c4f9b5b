// Package output serializes scan results to their JSON and CSV wire
// formats.
package output

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/okanyucel/bigr-discovery/pkg/model"
)

// AssetJSON is the wire form of a single asset.
type AssetJSON struct {
	IP               string         `json:"ip"`
	MAC              string         `json:"mac,omitempty"`
	Hostname         string         `json:"hostname,omitempty"`
	Vendor           string         `json:"vendor,omitempty"`
	OpenPorts        []int          `json:"open_ports"`
	OSHint           string         `json:"os_hint,omitempty"`
	Category         string         `json:"bigr_category"`
	CategoryTR       string         `json:"bigr_category_tr"`
	ConfidenceScore  float64        `json:"confidence_score"`
	ConfidenceLevel  string         `json:"confidence_level"`
	ScanMethod       string         `json:"scan_method"`
	FirstSeen        string         `json:"first_seen"`
	LastSeen         string         `json:"last_seen"`
	SensitivityLevel string         `json:"sensitivity_level,omitempty"`
	RawEvidence      map[string]any `json:"raw_evidence"`
}

// ScanResultJSON is the wire form of a completed scan.
type ScanResultJSON struct {
	Target          string         `json:"target"`
	ScanMethod      string         `json:"scan_method"`
	StartedAt       string         `json:"started_at"`
	CompletedAt     *string        `json:"completed_at"`
	DurationSeconds *float64       `json:"duration_seconds"`
	IsRoot          bool           `json:"is_root"`
	TotalAssets     int            `json:"total_assets"`
	CategorySummary map[string]int `json:"category_summary"`
	Assets          []AssetJSON    `json:"assets"`
}

// ToJSON converts a scan result to its wire representation.
func ToJSON(result *model.ScanResult) ScanResultJSON {
	out := ScanResultJSON{
		Target:          result.Target,
		ScanMethod:      string(result.ScanMethod),
		StartedAt:       result.StartedAt.UTC().Format(time.RFC3339Nano),
		IsRoot:          result.IsRoot,
		TotalAssets:     len(result.Assets),
		CategorySummary: result.CategorySummary(),
		Assets:          make([]AssetJSON, 0, len(result.Assets)),
	}
	if !result.CompletedAt.IsZero() {
		completed := result.CompletedAt.UTC().Format(time.RFC3339Nano)
		out.CompletedAt = &completed
		duration := result.CompletedAt.Sub(result.StartedAt).Seconds()
		out.DurationSeconds = &duration
	}
	for _, asset := range result.Assets {
		out.Assets = append(out.Assets, assetToJSON(asset))
	}
	return out
}

func assetToJSON(asset *model.Asset) AssetJSON {
	ports := model.NormalizePorts(asset.OpenPorts)
	if ports == nil {
		ports = []int{}
	}
	evidence := asset.RawEvidence
	if evidence == nil {
		evidence = map[string]any{}
	}
	return AssetJSON{
		IP:               asset.IP,
		MAC:              asset.MAC,
		Hostname:         asset.Hostname,
		Vendor:           asset.Vendor,
		OpenPorts:        ports,
		OSHint:           asset.OSHint,
		Category:         string(asset.Category),
		CategoryTR:       asset.Category.LabelTR(),
		ConfidenceScore:  model.RoundScore(asset.ConfidenceScore),
		ConfidenceLevel:  string(asset.ConfidenceLevel()),
		ScanMethod:       string(asset.ScanMethod),
		FirstSeen:        asset.FirstSeen.UTC().Format(time.RFC3339Nano),
		LastSeen:         asset.LastSeen.UTC().Format(time.RFC3339Nano),
		SensitivityLevel: string(asset.Sensitivity),
		RawEvidence:      evidence,
	}
}

// WriteJSON writes the indented JSON document to w.
func WriteJSON(result *model.ScanResult, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(ToJSON(result))
}

// ParseJSON decodes a serialized scan result back into model form.
func ParseJSON(data []byte) (*model.ScanResult, error) {
	var wire ScanResultJSON
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("parse scan result: %w", err)
	}

	method, err := model.ParseScanMethod(wire.ScanMethod)
	if err != nil {
		return nil, err
	}
	startedAt, err := time.Parse(time.RFC3339Nano, wire.StartedAt)
	if err != nil {
		return nil, fmt.Errorf("parse started_at: %w", err)
	}

	result := &model.ScanResult{
		Target:     wire.Target,
		ScanMethod: method,
		StartedAt:  startedAt,
		IsRoot:     wire.IsRoot,
	}
	if wire.CompletedAt != nil {
		completedAt, err := time.Parse(time.RFC3339Nano, *wire.CompletedAt)
		if err != nil {
			return nil, fmt.Errorf("parse completed_at: %w", err)
		}
		result.CompletedAt = completedAt
	}

	for _, wa := range wire.Assets {
		category, err := model.ParseCategory(wa.Category)
		if err != nil {
			return nil, err
		}
		assetMethod, err := model.ParseScanMethod(wa.ScanMethod)
		if err != nil {
			return nil, err
		}

		asset := &model.Asset{
			IP:              wa.IP,
			MAC:             wa.MAC,
			Hostname:        wa.Hostname,
			Vendor:          wa.Vendor,
			OSHint:          wa.OSHint,
			OpenPorts:       model.NormalizePorts(wa.OpenPorts),
			Category:        category,
			ConfidenceScore: wa.ConfidenceScore,
			ScanMethod:      assetMethod,
			RawEvidence:     wa.RawEvidence,
			Sensitivity:     model.SensitivityLevel(wa.SensitivityLevel),
		}
		if t, err := time.Parse(time.RFC3339Nano, wa.FirstSeen); err == nil {
			asset.FirstSeen = t
		}
		if t, err := time.Parse(time.RFC3339Nano, wa.LastSeen); err == nil {
			asset.LastSeen = t
		}
		result.Assets = append(result.Assets, asset)
	}
	return result, nil
}

// csvHeader is the flattened column set; open_ports is semicolon-joined.
var csvHeader = []string{
	"ip", "mac", "hostname", "vendor", "open_ports",
	"os_hint", "bigr_category", "bigr_category_tr",
	"confidence_score", "confidence_level", "scan_method",
}

// WriteCSV writes one row per asset to w.
func WriteCSV(result *model.ScanResult, w io.Writer) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(csvHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	for _, asset := range result.Assets {
		ports := make([]string, 0, len(asset.OpenPorts))
		for _, p := range model.NormalizePorts(asset.OpenPorts) {
			ports = append(ports, fmt.Sprintf("%d", p))
		}
		row := []string{
			asset.IP,
			asset.MAC,
			asset.Hostname,
			asset.Vendor,
			strings.Join(ports, ";"),
			asset.OSHint,
			string(asset.Category),
			asset.Category.LabelTR(),
			fmt.Sprintf("%.4f", asset.ConfidenceScore),
			string(asset.ConfidenceLevel()),
			string(asset.ScanMethod),
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}

	writer.Flush()
	return writer.Error()
}
