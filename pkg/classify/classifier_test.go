package classify

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okanyucel/bigr-discovery/pkg/model"
)

type staticOverrides map[string]struct {
	category model.Category
	note     string
}

func (o staticOverrides) Override(_ context.Context, ip string) (model.Category, string, bool) {
	entry, ok := o[ip]
	return entry.category, entry.note, ok
}

func newTestClassifier(overrides OverrideSource) *Classifier {
	return New(nil, nil, nil, overrides, zerolog.Nop())
}

func TestClassifyCiscoCoreSwitch(t *testing.T) {
	c := newTestClassifier(nil)

	asset := model.NewAsset("10.0.0.1")
	asset.MAC = "00:1e:bd:aa:bb:cc"
	asset.Hostname = "core-sw-01"
	asset.OpenPorts = []int{22, 80, 443, 161}

	c.Classify(context.Background(), asset, false)

	assert.Equal(t, model.CategoryNetworkSystems, asset.Category)
	assert.GreaterOrEqual(t, asset.ConfidenceScore, 0.4)

	vendorEvidence, _ := asset.RawEvidence["vendor_rule"].(string)
	assert.Contains(t, vendorEvidence, "Cisco")
	hostnameEvidence, _ := asset.RawEvidence["hostname_rules"].([]string)
	require.NotEmpty(t, hostnameEvidence)
	assert.Contains(t, hostnameEvidence[0], "core-sw-01")
}

func TestClassifyHikvisionCamera(t *testing.T) {
	c := newTestClassifier(nil)

	asset := model.NewAsset("10.0.0.50")
	asset.MAC = "a4:14:37:00:11:22"
	asset.Hostname = "lobby-cam-01"
	asset.OpenPorts = []int{80, 554}

	c.Classify(context.Background(), asset, false)

	assert.Equal(t, model.CategoryIoT, asset.Category)
	assert.GreaterOrEqual(t, asset.ConfidenceScore, 0.4)

	portEvidence, _ := asset.RawEvidence["port_rules"].([]string)
	require.NotEmpty(t, portEvidence)
	vendorEvidence, _ := asset.RawEvidence["vendor_rule"].(string)
	assert.Contains(t, vendorEvidence, "Hikvision")

	// Camera-looking IoT is fragile for safe-mode scans.
	assert.Equal(t, model.SensitivityFragile, asset.Sensitivity)
}

func TestClassifyUnknownMinimal(t *testing.T) {
	c := newTestClassifier(nil)

	asset := model.NewAsset("10.0.0.200")
	c.Classify(context.Background(), asset, false)

	assert.Equal(t, model.CategoryUnclassified, asset.Category)
	assert.Less(t, asset.ConfidenceScore, 0.3)
	assert.Equal(t, model.ConfidenceUnclassified, asset.ConfidenceLevel())
}

func TestClassifyManualOverrideBeatsAuto(t *testing.T) {
	overrides := staticOverrides{
		"10.0.0.1": {category: model.CategoryIoT, note: "print-server"},
	}
	c := newTestClassifier(overrides)

	asset := model.NewAsset("10.0.0.1")
	asset.MAC = "aa:bb:cc:dd:ee:ff"
	asset.Vendor = "HP"
	asset.OpenPorts = []int{9100}

	c.Classify(context.Background(), asset, false)

	assert.Equal(t, model.CategoryIoT, asset.Category)
	assert.Equal(t, 1.0, asset.ConfidenceScore)
	assert.Equal(t, "print-server", asset.RawEvidence["manual_override"])
}

func TestClassifyManualOverrideDefaultNote(t *testing.T) {
	overrides := staticOverrides{
		"10.0.0.2": {category: model.CategoryPortable},
	}
	c := newTestClassifier(overrides)

	asset := model.NewAsset("10.0.0.2")
	c.Classify(context.Background(), asset, false)

	assert.Equal(t, "User override", asset.RawEvidence["manual_override"])
}

func TestClassifyVendorEnrichment(t *testing.T) {
	c := newTestClassifier(nil)

	asset := model.NewAsset("10.0.0.3")
	asset.MAC = "00:1e:bd:00:00:01"
	c.Classify(context.Background(), asset, false)

	assert.Equal(t, "Cisco", asset.Vendor)
}

func TestClassifyRandomizedMACStaysUnclassified(t *testing.T) {
	c := newTestClassifier(nil)

	asset := model.NewAsset("10.0.0.77")
	asset.MAC = "3e:45:12:aa:bb:cc"
	c.Classify(context.Background(), asset, false)

	assert.Equal(t, model.CategoryUnclassified, asset.Category)
	assert.Equal(t, 0.0, asset.ConfidenceScore)
	assert.Contains(t, asset.RawEvidence, "randomized_mac")
}

func TestClassifyRandomizedMACWithPortsStillScores(t *testing.T) {
	c := newTestClassifier(nil)

	asset := model.NewAsset("10.0.0.78")
	asset.MAC = "3e:45:12:aa:bb:cc"
	asset.OpenPorts = []int{554}
	c.Classify(context.Background(), asset, false)

	assert.NotContains(t, asset.RawEvidence, "randomized_mac")
	assert.Equal(t, model.CategoryIoT, asset.Category)
}

func TestClassifyMDNSServiceEvidence(t *testing.T) {
	c := newTestClassifier(nil)

	asset := model.NewAsset("192.168.1.30")
	asset.RawEvidence["mdns_services"] = []map[string]any{
		{"name": "TV._googlecast._tcp.local.", "service_type": "_googlecast._tcp.local.", "port": 8009},
	}

	c.Classify(context.Background(), asset, false)

	assert.Equal(t, model.CategoryIoT, asset.Category)
	// Service evidence is preserved through the evidence rebuild.
	assert.Contains(t, asset.RawEvidence, "mdns_services")
	assert.Contains(t, asset.RawEvidence, "service_rules")
}

func TestClassifyOSHintTable(t *testing.T) {
	tests := []struct {
		osHint string
		want   model.Category
	}{
		{"Network Equipment", model.CategoryNetworkSystems},
		{"Windows", model.CategoryPortable},
		{"IP Camera", model.CategoryIoT},
		{"Printer", model.CategoryIoT},
		{"IoT Device", model.CategoryIoT},
	}
	for _, tt := range tests {
		c := newTestClassifier(nil)
		asset := model.NewAsset("10.1.1.1")
		asset.OSHint = tt.osHint
		c.Classify(context.Background(), asset, false)
		assert.Equal(t, tt.want, asset.Category, "os hint %q", tt.osHint)
		assert.Contains(t, asset.RawEvidence, "os_rule")
	}
}

func TestClassifyConfidenceExactlyAtThreshold(t *testing.T) {
	s := newScores()
	s.byCategory[model.CategoryIoT] = 0.3
	s.byCategory[model.CategoryApplications] = 0.7
	// applications share: 0.7 / 1.0 = 0.7 -> high; iot would be 0.3.
	assert.InDelta(t, 0.7, s.confidence(), 1e-9)

	// A winner share of exactly 0.30 must classify.
	s2 := newScores()
	s2.byCategory[model.CategoryIoT] = 0.3
	s2.byCategory[model.CategoryApplications] = 0.3
	s2.byCategory[model.CategoryNetworkSystems] = 0.3
	s2.byCategory[model.CategoryPortable] = 0.1
	conf := s2.confidence()
	assert.InDelta(t, 0.3, conf, 1e-9)
	assert.GreaterOrEqual(t, conf, assignmentThreshold)
}

func TestClassifyInvariants(t *testing.T) {
	c := newTestClassifier(nil)

	fixtures := []*model.Asset{
		func() *model.Asset {
			a := model.NewAsset("10.0.0.1")
			a.MAC = "00:1e:bd:aa:bb:cc"
			a.OpenPorts = []int{443, 22, 22, 80}
			return a
		}(),
		model.NewAsset("10.0.0.2"),
		func() *model.Asset {
			a := model.NewAsset("10.0.0.3")
			a.MAC = "3e:00:00:00:00:01"
			return a
		}(),
	}

	for _, asset := range fixtures {
		asset.OpenPorts = model.NormalizePorts(asset.OpenPorts)
		c.Classify(context.Background(), asset, false)

		assert.True(t, asset.Category.Valid())
		assert.GreaterOrEqual(t, asset.ConfidenceScore, 0.0)
		assert.LessOrEqual(t, asset.ConfidenceScore, 1.0)
	}
}

func TestWinnerTieIsDeterministic(t *testing.T) {
	s := newScores()
	s.byCategory[model.CategoryNetworkSystems] = 0.5
	s.byCategory[model.CategoryIoT] = 0.5
	assert.Equal(t, model.CategoryNetworkSystems, s.winner())
}
