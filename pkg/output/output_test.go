package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okanyucel/bigr-discovery/pkg/model"
)

func sampleResult() *model.ScanResult {
	started := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	asset := &model.Asset{
		IP:              "10.0.0.1",
		MAC:             "00:1e:bd:aa:bb:cc",
		Hostname:        "core-sw-01",
		Vendor:          "Cisco",
		OpenPorts:       []int{22, 80, 443},
		OSHint:          "Network Equipment",
		Category:        model.CategoryNetworkSystems,
		ConfidenceScore: 0.8571,
		ScanMethod:      model.MethodHybrid,
		FirstSeen:       started,
		LastSeen:        started,
		RawEvidence:     map[string]any{"vendor_rule": "Cisco → cisco-network"},
		Sensitivity:     model.SensitivitySafe,
	}
	return &model.ScanResult{
		Target:      "10.0.0.0/24",
		ScanMethod:  model.MethodHybrid,
		StartedAt:   started,
		CompletedAt: started.Add(42 * time.Second),
		Assets:      []*model.Asset{asset},
		IsRoot:      true,
	}
}

func TestToJSONContract(t *testing.T) {
	wire := ToJSON(sampleResult())

	assert.Equal(t, "10.0.0.0/24", wire.Target)
	assert.Equal(t, "hybrid", wire.ScanMethod)
	assert.Equal(t, 1, wire.TotalAssets)
	assert.True(t, wire.IsRoot)
	require.NotNil(t, wire.DurationSeconds)
	assert.InDelta(t, 42.0, *wire.DurationSeconds, 0.001)
	assert.Equal(t, map[string]int{"ag_ve_sistemler": 1}, wire.CategorySummary)

	require.Len(t, wire.Assets, 1)
	a := wire.Assets[0]
	assert.Equal(t, "ag_ve_sistemler", a.Category)
	assert.Equal(t, "Ağ ve Sistemler", a.CategoryTR)
	assert.Equal(t, "high", a.ConfidenceLevel)
	assert.Equal(t, 0.8571, a.ConfidenceScore)
}

func TestToJSONIncompleteScan(t *testing.T) {
	r := sampleResult()
	r.CompletedAt = time.Time{}

	wire := ToJSON(r)
	assert.Nil(t, wire.CompletedAt)
	assert.Nil(t, wire.DurationSeconds)
}

func TestJSONRoundTrip(t *testing.T) {
	original := sampleResult()

	var buf bytes.Buffer
	require.NoError(t, WriteJSON(original, &buf))

	parsed, err := ParseJSON(buf.Bytes())
	require.NoError(t, err)

	assert.Equal(t, original.Target, parsed.Target)
	assert.Equal(t, original.ScanMethod, parsed.ScanMethod)
	assert.True(t, original.StartedAt.Equal(parsed.StartedAt))
	assert.True(t, original.CompletedAt.Equal(parsed.CompletedAt))
	assert.Equal(t, original.IsRoot, parsed.IsRoot)

	require.Len(t, parsed.Assets, 1)
	got, want := parsed.Assets[0], original.Assets[0]
	assert.Equal(t, want.IP, got.IP)
	assert.Equal(t, want.MAC, got.MAC)
	assert.Equal(t, want.OpenPorts, got.OpenPorts)
	assert.Equal(t, want.Category, got.Category)
	assert.Equal(t, want.ConfidenceScore, got.ConfidenceScore)
	assert.Equal(t, "Cisco → cisco-network", got.RawEvidence["vendor_rule"])
}

func TestParseJSONRejectsInvalidEnum(t *testing.T) {
	wire := ToJSON(sampleResult())
	wire.Assets[0].Category = "laptops"
	data, err := json.Marshal(wire)
	require.NoError(t, err)

	_, err = ParseJSON(data)
	assert.Error(t, err)
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(sampleResult(), &buf))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, strings.Join(csvHeader, ","), lines[0])
	assert.Contains(t, lines[1], "22;80;443")
	assert.Contains(t, lines[1], "ag_ve_sistemler")
	assert.Contains(t, lines[1], "0.8571")
}

func TestWriteCSVEmptyScan(t *testing.T) {
	r := sampleResult()
	r.Assets = nil

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(r, &buf))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Len(t, lines, 1)
}
