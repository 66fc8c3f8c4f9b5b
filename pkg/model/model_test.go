package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeMAC(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"already normalized", "aa:bb:cc:dd:ee:ff", "aa:bb:cc:dd:ee:ff"},
		{"uppercase with dashes", "AA-BB-CC-DD-EE-FF", "aa:bb:cc:dd:ee:ff"},
		{"short octets", "cc:8:fa:6d:fc:59", "cc:08:fa:6d:fc:59"},
		{"leading short octet", "6:11:e5:ea:68:5c", "06:11:e5:ea:68:5c"},
		{"empty", "", ""},
		{"unparseable passes through", "(incomplete)", "(incomplete)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeMAC(tt.in))
		})
	}
}

func TestIsRandomizedMAC(t *testing.T) {
	assert.True(t, IsRandomizedMAC("3e:11:22:33:44:55"))
	assert.True(t, IsRandomizedMAC("ba:11:22:33:44:55"))
	assert.True(t, IsRandomizedMAC("06:11:22:33:44:55"))
	assert.False(t, IsRandomizedMAC("00:1e:bd:aa:bb:cc"))
	assert.False(t, IsRandomizedMAC("a4:14:37:00:11:22"))
	assert.False(t, IsRandomizedMAC(""))
	assert.False(t, IsRandomizedMAC("junk"))
}

func TestParseCategory(t *testing.T) {
	for _, c := range Categories {
		got, err := ParseCategory(string(c))
		require.NoError(t, err)
		assert.Equal(t, c, got)
	}
	_, err := ParseCategory("laptops")
	assert.Error(t, err)
}

func TestCategoryLabelTR(t *testing.T) {
	assert.Equal(t, "Ağ ve Sistemler", CategoryNetworkSystems.LabelTR())
	assert.Equal(t, "Taşınabilir Cihazlar", CategoryPortable.LabelTR())
	assert.Equal(t, "Sınıflandırılmamış", CategoryUnclassified.LabelTR())
}

func TestConfidenceLevelFromScore(t *testing.T) {
	tests := []struct {
		score float64
		want  ConfidenceLevel
	}{
		{0.95, ConfidenceHigh},
		{0.7, ConfidenceHigh},
		{0.69, ConfidenceMedium},
		{0.4, ConfidenceMedium},
		{0.35, ConfidenceLow},
		{0.3, ConfidenceLow},
		{0.29, ConfidenceUnclassified},
		{0, ConfidenceUnclassified},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ConfidenceLevelFromScore(tt.score), "score %v", tt.score)
	}
}

func TestNormalizePorts(t *testing.T) {
	assert.Equal(t, []int{22, 80, 443}, NormalizePorts([]int{443, 22, 80, 22}))
	assert.Nil(t, NormalizePorts(nil))
}

func TestDeriveSensitivity(t *testing.T) {
	assert.Equal(t, SensitivityFragile, DeriveSensitivity(CategoryIoT, "lobby-cam-01", ""))
	assert.Equal(t, SensitivityFragile, DeriveSensitivity(CategoryIoT, "device", "Embedded Linux"))
	assert.Equal(t, SensitivityCautious, DeriveSensitivity(CategoryIoT, "printer-3f", ""))
	assert.Equal(t, SensitivitySafe, DeriveSensitivity(CategoryNetworkSystems, "core-sw-01", ""))
	assert.Equal(t, SensitivitySafe, DeriveSensitivity(CategoryUnclassified, "", ""))
}

func TestAssetKey(t *testing.T) {
	a := NewAsset("10.0.0.1")
	assert.Equal(t, "10.0.0.1", a.Key())
	a.MAC = "aa:bb:cc:dd:ee:ff"
	assert.Equal(t, "aa:bb:cc:dd:ee:ff", a.Key())
}

func TestScanResultDuration(t *testing.T) {
	r := &ScanResult{StartedAt: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	_, ok := r.DurationSeconds()
	assert.False(t, ok)

	r.CompletedAt = r.StartedAt.Add(30 * time.Second)
	d, ok := r.DurationSeconds()
	require.True(t, ok)
	assert.InDelta(t, 30.0, d, 0.001)
}

func TestCategorySummary(t *testing.T) {
	r := &ScanResult{Assets: []*Asset{
		{IP: "10.0.0.1", Category: CategoryIoT},
		{IP: "10.0.0.2", Category: CategoryIoT},
		{IP: "10.0.0.3", Category: CategoryUnclassified},
	}}
	assert.Equal(t, map[string]int{"iot": 2, "unclassified": 1}, r.CategorySummary())

	empty := &ScanResult{}
	assert.Empty(t, empty.CategorySummary())
}

func TestRoundScore(t *testing.T) {
	assert.Equal(t, 0.8571, RoundScore(0.857142857))
	assert.Equal(t, 1.0, RoundScore(1.0))
	assert.Equal(t, 0.0, RoundScore(0))
}
